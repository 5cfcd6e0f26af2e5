package audit

import (
	"bytes"
	"context"
	"encoding/json"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

type blockingSink struct {
	release chan struct{}
	mu      sync.Mutex
	seen    []Event
}

func (s *blockingSink) Emit(_ context.Context, e Event) {
	<-s.release
	s.mu.Lock()
	s.seen = append(s.seen, e)
	s.mu.Unlock()
}

type panicSink struct{}

func (panicSink) Emit(context.Context, Event) { panic("sink exploded") }

func TestDispatcherDropIfFullCountsDrops(t *testing.T) {
	sink := &blockingSink{release: make(chan struct{})}
	d := NewDispatcher(Config{Enabled: true, BufferSize: 1, DropIfFull: true}, sink)

	for i := 0; i < 10; i++ {
		d.Emit(context.Background(), Event{EventType: "reset_initiate"})
	}
	close(sink.release)
	d.Close()

	if d.Dropped() == 0 {
		t.Fatal("expected dropped events with a full buffer")
	}
	if got := d.Delivered() + d.Dropped(); got != 10 {
		t.Fatalf("delivered+dropped=%d, want 10", got)
	}
}

func TestDispatcherCloseDrainsBuffer(t *testing.T) {
	sink := NewChannelSink(16)
	d := NewDispatcher(Config{Enabled: true, BufferSize: 8}, sink)

	for i := 0; i < 5; i++ {
		d.Emit(context.Background(), Event{EventType: "reset_code_sent"})
	}
	d.Close()
	d.Emit(context.Background(), Event{EventType: "after_close"})

	if len(sink.Events()) != 5 {
		t.Fatalf("expected 5 delivered events, got %d", len(sink.Events()))
	}
}

func TestDispatcherSurvivesPanickingSink(t *testing.T) {
	d := NewDispatcher(Config{Enabled: true, BufferSize: 4}, panicSink{})
	d.Emit(context.Background(), Event{EventType: "reset_complete"})
	d.Emit(context.Background(), Event{EventType: "reset_complete"})
	d.Close()

	if d.SinkPanics() != 2 {
		t.Fatalf("expected 2 recovered panics, got %d", d.SinkPanics())
	}
}

func TestDisabledDispatcherIsNil(t *testing.T) {
	d := NewDispatcher(Config{Enabled: false}, NoOpSink{})
	if d != nil {
		t.Fatal("expected nil dispatcher when disabled")
	}
	d.Emit(context.Background(), Event{})
	d.Close()
	if d.Dropped() != 0 {
		t.Fatal("nil dispatcher must report zero drops")
	}
}

func TestJSONWriterSinkWritesLines(t *testing.T) {
	var buf bytes.Buffer
	sink := NewJSONWriterSink(&buf)
	sink.Emit(context.Background(), Event{
		Timestamp: time.Unix(1700000000, 0).UTC(),
		EventType: "reset_code_verify",
		AttemptID: "att-1",
		Success:   false,
		Code:      "INVALID_CODE",
	})

	line := strings.TrimSuffix(buf.String(), "\n")
	var decoded Event
	if err := json.Unmarshal([]byte(line), &decoded); err != nil {
		t.Fatalf("invalid json line %q: %v", line, err)
	}
	if decoded.Code != "INVALID_CODE" || decoded.AttemptID != "att-1" {
		t.Fatalf("unexpected decoded event: %+v", decoded)
	}
}

func TestZerologSinkLevels(t *testing.T) {
	var buf bytes.Buffer
	sink := NewZerologSink(zerolog.New(&buf))

	sink.Emit(context.Background(), Event{EventType: "reset_initiate", Success: true, SubjectID: "s-1"})
	sink.Emit(context.Background(), Event{EventType: "rate_limit_triggered", Success: false, ClientIP: "10.0.0.9"})

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 2 {
		t.Fatalf("expected 2 log lines, got %d: %q", len(lines), buf.String())
	}

	var first, second map[string]any
	if err := json.Unmarshal([]byte(lines[0]), &first); err != nil {
		t.Fatalf("bad log line: %v", err)
	}
	if err := json.Unmarshal([]byte(lines[1]), &second); err != nil {
		t.Fatalf("bad log line: %v", err)
	}
	if first["level"] != "info" || first["subject_id"] != "s-1" || first["component"] != "audit" {
		t.Fatalf("unexpected first line: %v", first)
	}
	if second["level"] != "warn" || second["client_ip"] != "10.0.0.9" {
		t.Fatalf("unexpected second line: %v", second)
	}
}
