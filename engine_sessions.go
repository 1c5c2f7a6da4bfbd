package twofa

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
)

// Sessions lists the account's live sessions, most recently active first.
//
// Sessions may return an error when input validation, dependency calls, or security checks fail.
// Sessions does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (e *Engine) Sessions(ctx context.Context, accountID string) ([]SessionInfo, error) {
	if e == nil || e.sessions == nil {
		return nil, ErrEngineNotReady
	}

	list, err := e.sessions.ListForAccount(ctx, accountID)
	if err != nil {
		return nil, errors.Join(ErrSessionUnavailable, err)
	}

	out := make([]SessionInfo, 0, len(list))
	for _, sess := range list {
		out = append(out, SessionInfo{
			SessionID:    sess.SessionID,
			Device:       sess.Device,
			Origin:       sess.Origin,
			CreatedAt:    time.Unix(sess.CreatedAt, 0),
			LastActiveAt: time.Unix(sess.LastActiveAt, 0),
		})
	}
	return out, nil
}

// TouchSession refreshes a session's last-activity timestamp, moving it to
// the front of the recency ordering. Concurrent touches of the same session
// do not conflict; the later write wins.
func (e *Engine) TouchSession(ctx context.Context, sessionID string) error {
	if e == nil || e.sessions == nil {
		return ErrEngineNotReady
	}

	if _, err := e.sessions.Touch(ctx, sessionID); err != nil {
		if errors.Is(err, redis.Nil) {
			return ErrSessionNotFound
		}
		return errors.Join(ErrSessionUnavailable, err)
	}

	e.metricInc(MetricSessionTouched)
	return nil
}

// RevokeSession removes one session. Returns [ErrSessionNotFound] when the
// session does not exist or already expired.
func (e *Engine) RevokeSession(ctx context.Context, accountID, sessionID string) error {
	if e == nil || e.sessions == nil {
		return ErrEngineNotReady
	}

	existed, err := e.sessions.Delete(ctx, accountID, sessionID)
	if err != nil {
		return errors.Join(ErrSessionUnavailable, err)
	}
	if !existed {
		return ErrSessionNotFound
	}

	e.metricInc(MetricSessionRevoked)
	e.emitAudit(ctx, auditEventSessionRevoked, true, accountID, sessionID, nil, nil)
	return nil
}

// RevokeOtherSessions removes every session for the account except the one
// named, the "log out everywhere else" operation. Returns how many sessions
// were removed.
func (e *Engine) RevokeOtherSessions(ctx context.Context, accountID, keepSessionID string) (int, error) {
	if e == nil || e.sessions == nil {
		return 0, ErrEngineNotReady
	}

	removed, err := e.sessions.DeleteOthers(ctx, accountID, keepSessionID)
	if err != nil {
		return removed, errors.Join(ErrSessionUnavailable, err)
	}

	if removed > 0 {
		e.metricInc(MetricSessionsRevokedAll)
		e.emitAudit(ctx, auditEventSessionsRevokedAll, true, accountID, keepSessionID, nil, func() map[string]string {
			return map[string]string{
				"kept": keepSessionID,
			}
		})
	}
	return removed, nil
}

// RevokeAllSessions removes every session for the account. Returns how many
// sessions were removed.
func (e *Engine) RevokeAllSessions(ctx context.Context, accountID string) (int, error) {
	if e == nil || e.sessions == nil {
		return 0, ErrEngineNotReady
	}

	removed, err := e.sessions.DeleteAllForAccount(ctx, accountID)
	if err != nil {
		return removed, errors.Join(ErrSessionUnavailable, err)
	}

	if removed > 0 {
		e.metricInc(MetricSessionsRevokedAll)
		e.emitAudit(ctx, auditEventSessionsRevokedAll, true, accountID, "", nil, nil)
	}
	return removed, nil
}
