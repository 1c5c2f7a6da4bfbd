package twofa

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/raed-saidi/twofa/internal/flows"
	"github.com/raed-saidi/twofa/internal/limiters"
	"github.com/raed-saidi/twofa/internal/rate"
	"github.com/raed-saidi/twofa/internal/stores"
	"github.com/raed-saidi/twofa/session"
)

// Authenticate runs the full login gate: rate limit, password check, second
// factor when the account is enrolled, then session creation and history
// recording.
//
// Credential failures of every kind — unknown account, wrong password,
// missing or invalid second factor — collapse into [ErrAuthenticationFailed]
// so a caller cannot probe which stage rejected. Rate limit errors surface
// distinctly because the caller must know to back off.
//
// A valid TOTP code never consumes a backup code: the backup vault is only
// consulted after the TOTP comparison rejects.
//
//	Performance: hot path. See doc.go for the latency contract.
func (e *Engine) Authenticate(ctx context.Context, req AuthRequest) (*AuthResult, error) {
	if e == nil {
		return nil, ErrEngineNotReady
	}

	start := time.Now()
	defer func() {
		e.observeLatency(MetricAuthenticateLatency, time.Since(start))
	}()

	deps := flows.LoginDeps{
		Now:                 time.Now,
		ClientIPFromContext: clientIPFromContext,

		CheckLoginRate:     e.loginLimiter.CheckLogin,
		IncrementLoginRate: e.loginLimiter.IncrementLogin,
		ResetLoginRate:     e.loginLimiter.ResetLogin,
		IsRateLimited: func(err error) bool {
			return errors.Is(err, rate.ErrRateLimited) || errors.Is(err, ErrSecondFactorRateLimited)
		},

		GetAccountByID: func(ctx context.Context, id string) (flows.LoginAccount, error) {
			account, err := e.accounts.GetAccountByID(ctx, id)
			if err != nil || account == nil {
				return flows.LoginAccount{}, ErrAccountNotFound
			}
			return flows.LoginAccount{
				AccountID:  account.AccountID,
				Identifier: account.Identifier,
			}, nil
		},
		VerifyPassword: e.accounts.VerifyPassword,

		SecondFactorEnabled: func(ctx context.Context, accountID string) (bool, error) {
			profile, err := e.profiles.Get(ctx, accountID)
			if err != nil {
				return false, err
			}
			return profile.State == stores.StateEnabled, nil
		},
		VerifySecondFactor: e.verifySecondFactor,

		CreateSession: func(ctx context.Context, accountID, device string) (string, error) {
			return e.createSession(ctx, accountID, device)
		},
		RecordAttempt: e.recordAttempt,

		MetricInc: func(id int) { e.metricInc(MetricID(id)) },
		EmitAudit: e.emitAudit,

		Metrics: flows.LoginMetrics{
			AuthSuccess:     int(MetricAuthSuccess),
			AuthFailure:     int(MetricAuthFailure),
			AuthRateLimited: int(MetricAuthRateLimited),
			SessionCreated:  int(MetricSessionCreated),
		},
		Events: flows.LoginEvents{
			LoginSuccess:     auditEventLoginSuccess,
			LoginFailure:     auditEventLoginFailure,
			LoginRateLimited: auditEventLoginRateLimited,
		},
		Errors: flows.LoginErrors{
			EngineNotReady:       ErrEngineNotReady,
			AuthenticationFailed: ErrAuthenticationFailed,
			RateLimited:          ErrLoginRateLimited,
			Unavailable:          ErrProfileUnavailable,
		},
	}

	result, err := flows.RunAuthenticate(ctx, req.AccountID, req.Password, req.SecondFactor, req.Device, deps)
	if err != nil {
		return nil, err
	}

	return &AuthResult{
		AccountID:      result.AccountID,
		SessionID:      result.SessionID,
		UsedBackupCode: result.UsedBackupCode,
	}, nil
}

// verifySecondFactor accepts a TOTP code or a backup code. TOTP is checked
// first; only a rejected TOTP comparison falls through to the vault, so a
// valid authenticator code never burns a backup code.
func (e *Engine) verifySecondFactor(ctx context.Context, accountID, code string) (bool, error) {
	if err := e.secondFactorLimiter.Check(ctx, accountID); err != nil {
		if errors.Is(err, limiters.ErrSecondFactorRateLimited) {
			e.emitRateLimit(ctx, "second_factor", nil)
			return false, ErrSecondFactorRateLimited
		}
		return false, errors.Join(ErrProfileUnavailable, err)
	}

	verify := func(secret []byte, lastUsed int64) (int64, bool, error) {
		ok, counter, err := e.totp.VerifyCode(secret, code, time.Now())
		if err != nil {
			return 0, false, err
		}
		if ok && e.config.TOTP.EnforceReplayProtection && counter <= lastUsed {
			ok = false
		}
		return counter, ok, nil
	}

	err := e.profiles.VerifyTOTP(ctx, accountID, verify)
	if err == nil {
		_ = e.secondFactorLimiter.Reset(ctx, accountID)
		e.metricInc(MetricTOTPAccepted)
		e.emitAudit(ctx, auditEventSecondFactorSuccess, true, accountID, "", nil, nil)
		return false, nil
	}

	switch {
	case errors.Is(err, stores.ErrNotEnabled):
		return false, ErrTwoFactorNotEnabled
	case errors.Is(err, stores.ErrUpdateConflict):
		return false, errors.Join(ErrProfileUnavailable, err)
	case errors.Is(err, stores.ErrRedisUnavailable):
		return false, errors.Join(ErrProfileUnavailable, err)
	case !errors.Is(err, stores.ErrCodeRejected):
		return false, err
	}

	e.metricInc(MetricTOTPRejected)

	redeemErr := flows.RunRedeemBackupCode(ctx, accountID, code, flows.BackupCodeDeps{
		ConsumeBackupCode:    e.profiles.ConsumeBackupCode,
		CheckLimiter:         e.secondFactorLimiter.Check,
		RecordLimiterFailure: e.secondFactorLimiter.RecordFailure,
		ResetLimiter:         e.secondFactorLimiter.Reset,
		IsRateLimited: func(err error) bool {
			return errors.Is(err, limiters.ErrSecondFactorRateLimited)
		},
		MetricInc: func(id int) { e.metricInc(MetricID(id)) },
		EmitAudit: e.emitAudit,
		Metrics: flows.BackupCodeMetrics{
			BackupCodeUsed:   int(MetricBackupCodeUsed),
			BackupCodeFailed: int(MetricBackupCodeFailed),
		},
		Events: flows.BackupCodeEvents{
			BackupCodeUsed:   auditEventBackupCodeUsed,
			BackupCodeFailed: auditEventBackupCodeFailed,
		},
		Errors: flows.BackupCodeErrors{
			EngineNotReady:        ErrEngineNotReady,
			BackupCodeUnavailable: ErrBackupCodeUnavailable,
			BackupCodeInvalid:     ErrInvalidCode,
			BackupCodeRateLimited: ErrSecondFactorRateLimited,
		},
	})
	if redeemErr != nil {
		e.emitAudit(ctx, auditEventSecondFactorFailure, false, accountID, "", redeemErr, nil)
		return false, redeemErr
	}

	e.emitAudit(ctx, auditEventSecondFactorSuccess, true, accountID, "", nil, func() map[string]string {
		return map[string]string{
			"used_backup_code": "true",
		}
	})
	return true, nil
}

func (e *Engine) createSession(ctx context.Context, accountID, device string) (string, error) {
	if device == "" {
		device = userAgentFromContext(ctx)
	}
	if max := e.config.Session.MaxDeviceLength; max > 0 && len(device) > max {
		device = device[:max]
	}

	now := time.Now()
	sess := &session.Session{
		SessionID:    uuid.NewString(),
		AccountID:    accountID,
		Device:       device,
		Origin:       clientIPFromContext(ctx),
		CreatedAt:    now.Unix(),
		LastActiveAt: now.Unix(),
		ExpiresAt:    now.Add(e.config.Session.TTL).Unix(),
	}

	if err := e.sessions.Save(ctx, sess, e.config.Session.TTL); err != nil {
		return "", errors.Join(ErrSessionUnavailable, err)
	}
	return sess.SessionID, nil
}
