package twofa

import (
	"context"
	"errors"
	"time"
)

// LoginHistory returns the account's recent login attempts, newest first.
// limit values at or below zero fall back to the configured default; the
// stored cap bounds the result either way.
func (e *Engine) LoginHistory(ctx context.Context, accountID string, limit int) ([]LoginAttempt, error) {
	if e == nil || e.history == nil {
		return nil, ErrEngineNotReady
	}

	if limit <= 0 {
		limit = e.config.History.DefaultQueryLimit
	}

	attempts, err := e.history.Recent(ctx, accountID, limit)
	if err != nil {
		return nil, errors.Join(ErrHistoryUnavailable, err)
	}

	out := make([]LoginAttempt, 0, len(attempts))
	for _, a := range attempts {
		out = append(out, LoginAttempt{
			Timestamp: time.Unix(a.At, 0),
			Origin:    a.Origin,
			Success:   a.Success,
		})
	}
	return out, nil
}
