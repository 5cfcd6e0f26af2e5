package limiters

import (
	"context"
	"errors"
	"time"
)

var ErrLimiterUnavailable = errors.New("attempt limiter unavailable")

// Decision is the outcome of recording one attempt.
type Decision struct {
	Allowed    bool
	RetryAfter time.Duration
}

// AttemptLimiter counts attempts per key inside a fixed window.
type AttemptLimiter interface {
	Allow(ctx context.Context, key string, now time.Time) (Decision, error)
	SweepExpired(ctx context.Context, now time.Time) (int, error)
}

// AttemptConfig bounds a limiter: at most MaxAttempts per Window.
type AttemptConfig struct {
	Window      time.Duration
	MaxAttempts int
}
