package twofa

import (
	"context"
	"time"

	"github.com/raed-saidi/twofa/internal/limiters"
	"github.com/raed-saidi/twofa/internal/rate"
	"github.com/raed-saidi/twofa/internal/stores"
	"github.com/raed-saidi/twofa/session"
)

// Engine defines a public type used by twofa APIs.
//
// Engine instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type Engine struct {
	config   Config
	accounts AccountProvider

	profiles *stores.ProfileStore
	history  *stores.HistoryStore
	sessions *session.Store

	loginLimiter        *rate.Limiter
	secondFactorLimiter *limiters.SecondFactorLimiter

	audit   *auditDispatcher
	metrics *Metrics
	totp    *totpManager
}

// Close describes the close operation and its observable behavior.
//
// Close may return an error when input validation, dependency calls, or security checks fail.
// Close does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (e *Engine) Close() {
	if e == nil {
		return
	}
	if e.audit != nil {
		e.audit.Close()
	}
}

// AuditDropped describes the auditdropped operation and its observable behavior.
//
// AuditDropped may return an error when input validation, dependency calls, or security checks fail.
// AuditDropped does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (e *Engine) AuditDropped() uint64 {
	if e == nil || e.audit == nil {
		return 0
	}
	return e.audit.Dropped()
}

// MetricsSnapshot describes the metricssnapshot operation and its observable behavior.
//
// MetricsSnapshot may return an error when input validation, dependency calls, or security checks fail.
// MetricsSnapshot does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (e *Engine) MetricsSnapshot() MetricsSnapshot {
	if e == nil || e.metrics == nil {
		return MetricsSnapshot{
			Counters:   map[MetricID]uint64{},
			Histograms: map[MetricID][]uint64{},
		}
	}
	return e.metrics.Snapshot()
}

// Ping verifies Redis connectivity for the profile and session stores.
func (e *Engine) Ping(ctx context.Context) error {
	if e == nil || e.profiles == nil || e.sessions == nil {
		return ErrEngineNotReady
	}
	if err := e.profiles.Ping(ctx); err != nil {
		return err
	}
	if _, err := e.sessions.Ping(ctx); err != nil {
		return err
	}
	return nil
}

// LoginAttempts reports the failed-login counter the rate limiter currently
// holds against the account. A missing counter reads as zero and does not
// reveal whether the account exists.
func (e *Engine) LoginAttempts(ctx context.Context, accountID string) (int, error) {
	if e == nil || e.loginLimiter == nil {
		return 0, ErrEngineNotReady
	}
	return e.loginLimiter.GetLoginAttempts(ctx, accountID)
}

func (e *Engine) metricInc(id MetricID) {
	if e == nil || e.metrics == nil {
		return
	}
	e.metrics.Inc(id)
}

func (e *Engine) observeLatency(id MetricID, d time.Duration) {
	if e == nil || e.metrics == nil {
		return
	}
	e.metrics.Observe(id, d)
}

// recordAttempt appends to the login history. History writes are best
// effort; a Redis failure here must not change the authentication outcome.
func (e *Engine) recordAttempt(ctx context.Context, accountID string, success bool, at time.Time) {
	if e.history == nil {
		return
	}
	_ = e.history.Append(ctx, accountID, stores.Attempt{
		At:      at.Unix(),
		Origin:  clientIPFromContext(ctx),
		Success: success,
	})
}
