package main

import (
	"context"
	"testing"
	"time"

	"github.com/pensionportal/recovery"
	"github.com/pensionportal/recovery/accounts"
)

func TestPercentile(t *testing.T) {
	samples := make([]time.Duration, 100)
	for i := range samples {
		samples[i] = time.Duration(i+1) * time.Millisecond
	}

	if got := percentile(samples, 50); got != 50*time.Millisecond {
		t.Fatalf("p50: expected 50ms, got %s", got)
	}
	if got := percentile(samples, 99); got != 99*time.Millisecond {
		t.Fatalf("p99: expected 99ms, got %s", got)
	}
	if got := percentile(samples, 100); got != 100*time.Millisecond {
		t.Fatalf("p100: expected 100ms, got %s", got)
	}
	if got := percentile(nil, 50); got != 0 {
		t.Fatalf("empty: expected 0, got %s", got)
	}
}

func TestComputeStatsSortsSamples(t *testing.T) {
	s := computeStats([]time.Duration{3 * time.Millisecond, time.Millisecond, 2 * time.Millisecond}, 1)
	if s.ops != 3 || s.failures != 1 || s.p50 != 2*time.Millisecond || s.p99 != 2*time.Millisecond {
		t.Fatalf("unexpected stats %+v", s)
	}
}

func TestRunFlowCompletesReset(t *testing.T) {
	dir, err := accounts.NewStaticDirectory([]accounts.StaticSubject{
		{ID: "p-7", Identifier: identifierFor(7), Email: "p-7@example.org"},
	})
	if err != nil {
		t.Fatalf("directory: %v", err)
	}

	cfg := recovery.DefaultConfig()
	cfg.Reset.EnumerationDelay = false
	cfg.Password.BcryptCost = 4
	cfg.Store.SweepInterval = 0

	box := &codeBox{}
	engine, err := recovery.New().
		WithConfig(cfg).
		WithDirectory(dir).
		WithNotifier(box).
		WithCredentialStore(dir).
		Build()
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	defer engine.Close()

	c := &collector{}
	runFlow(engine, box, c, 7)

	for s := step(0); s < stepCount; s++ {
		if len(c.latencies[s]) != 1 || c.failures[s] != 0 {
			t.Fatalf("%s: expected one successful sample, got %d samples %d failures", stepNames[s], len(c.latencies[s]), c.failures[s])
		}
	}
	if _, ok := dir.PasswordHash("p-7"); !ok {
		t.Fatalf("expected password hash to be stored")
	}
	if _, err := dir.LookupSubject(context.Background(), identifierFor(7)); err != nil {
		t.Fatalf("lookup: %v", err)
	}
}
