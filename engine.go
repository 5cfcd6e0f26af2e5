package recovery

import (
	"context"
	"sync"
	"time"

	internalaudit "github.com/pensionportal/recovery/internal/audit"
	"github.com/pensionportal/recovery/internal/limiters"
	"github.com/pensionportal/recovery/internal/stores"
	"github.com/pensionportal/recovery/password"
)

// Engine runs the forgot-password flow. It is safe for concurrent use once
// built and must not be copied.
type Engine struct {
	config Config
	clock  func() time.Time

	sessions stores.SessionStore
	limiter  limiters.AttemptLimiter

	directory   SubjectDirectory
	notifier    Notifier
	credentials CredentialStore

	hasher password.Hasher
	policy password.Policy

	audit   *internalaudit.Dispatcher
	metrics *Metrics

	sweepStop chan struct{}
	sweepDone chan struct{}
	closeOnce sync.Once
}

// Close stops the background sweeper and drains the audit dispatcher.
// It is safe to call more than once.
func (e *Engine) Close() {
	if e == nil {
		return
	}
	e.closeOnce.Do(func() {
		if e.sweepStop != nil {
			close(e.sweepStop)
			<-e.sweepDone
		}
		if e.audit != nil {
			e.audit.Close()
		}
	})
}

// AuditDropped returns the number of audit events discarded because the
// dispatcher buffer was full.
func (e *Engine) AuditDropped() uint64 {
	if e == nil || e.audit == nil {
		return 0
	}
	return e.audit.Dropped()
}

// MetricsSnapshot returns a point-in-time copy of the engine counters.
func (e *Engine) MetricsSnapshot() MetricsSnapshot {
	if e == nil || e.metrics == nil {
		return MetricsSnapshot{
			Counters:      map[MetricID]uint64{},
			Histograms:    map[MetricID][]uint64{},
			HistogramSums: map[MetricID]time.Duration{},
		}
	}
	return e.metrics.Snapshot()
}

// CheckPassword returns every password rule pw fails, in a fixed order, or
// nil when pw is acceptable. It does not touch any session.
func (e *Engine) CheckPassword(pw string) []password.Rule {
	if e == nil {
		return password.DefaultPolicy().Check(pw)
	}
	return e.policy.Check(pw)
}

// SweepExpired removes expired sessions and limiter windows. Backends that
// expire records on their own report zero.
func (e *Engine) SweepExpired(ctx context.Context) (int, error) {
	if e == nil || e.sessions == nil {
		return 0, ErrEngineNotReady
	}

	now := e.now()
	removed, err := e.sessions.SweepExpired(ctx, now)
	if err != nil {
		return removed, err
	}
	if removed > 0 && e.metrics != nil {
		e.metrics.Add(MetricSessionsSwept, uint64(removed))
	}

	if e.limiter != nil {
		if _, err := e.limiter.SweepExpired(ctx, now); err != nil {
			return removed, err
		}
	}
	return removed, nil
}

func (e *Engine) now() time.Time {
	if e == nil || e.clock == nil {
		return time.Now()
	}
	return e.clock()
}

func (e *Engine) metricInc(id MetricID) {
	if e == nil || e.metrics == nil {
		return
	}
	e.metrics.Inc(id)
}

func (e *Engine) startSweeper(interval time.Duration) {
	e.sweepStop = make(chan struct{})
	e.sweepDone = make(chan struct{})

	go func() {
		defer close(e.sweepDone)

		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-e.sweepStop:
				return
			case <-ticker.C:
				ctx, cancel := context.WithTimeout(context.Background(), interval)
				// Sweeping is hygiene only; lazy expiry keeps reads correct.
				_, _ = e.SweepExpired(ctx)
				cancel()
			}
		}
	}()
}
