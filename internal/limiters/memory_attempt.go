package limiters

import (
	"context"
	"sync"
	"time"
)

type attemptRecord struct {
	count       int
	windowStart time.Time
}

// MemoryAttemptLimiter keeps one record per key in process memory. A record
// whose window has elapsed is reset by the next attempt.
type MemoryAttemptLimiter struct {
	mu      sync.Mutex
	config  AttemptConfig
	records map[string]*attemptRecord
}

func NewMemoryAttemptLimiter(cfg AttemptConfig) *MemoryAttemptLimiter {
	return &MemoryAttemptLimiter{
		config:  cfg,
		records: make(map[string]*attemptRecord),
	}
}

func (l *MemoryAttemptLimiter) Allow(_ context.Context, key string, now time.Time) (Decision, error) {
	if l == nil {
		return Decision{Allowed: true}, nil
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	rec, ok := l.records[key]
	if !ok || now.Sub(rec.windowStart) > l.config.Window {
		l.records[key] = &attemptRecord{count: 1, windowStart: now}
		return Decision{Allowed: true}, nil
	}

	if rec.count < l.config.MaxAttempts {
		rec.count++
		return Decision{Allowed: true}, nil
	}

	retry := rec.windowStart.Add(l.config.Window).Sub(now)
	if retry < 0 {
		retry = 0
	}
	return Decision{Allowed: false, RetryAfter: retry}, nil
}

func (l *MemoryAttemptLimiter) SweepExpired(ctx context.Context, now time.Time) (int, error) {
	if l == nil {
		return 0, nil
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	removed := 0
	for key, rec := range l.records {
		if err := ctx.Err(); err != nil {
			return removed, err
		}
		if now.Sub(rec.windowStart) > l.config.Window {
			delete(l.records, key)
			removed++
		}
	}
	return removed, nil
}

// Len returns the number of tracked keys.
func (l *MemoryAttemptLimiter) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.records)
}
