package twofa

import (
	"context"
	"errors"
	"time"

	"github.com/raed-saidi/twofa/internal/flows"
	"github.com/raed-saidi/twofa/internal/limiters"
	"github.com/raed-saidi/twofa/internal/stores"
)

// BeginEnrollment starts two-factor setup for an account. It verifies the
// account password, generates a fresh TOTP secret, and stages it as pending.
// The secret is not trusted for login until [Engine.ConfirmEnrollment]
// proves the authenticator produces valid codes.
//
// Calling BeginEnrollment again while a setup is pending replaces the staged
// secret. Returns [ErrTwoFactorAlreadyEnabled] when the account already has
// a committed second factor.
func (e *Engine) BeginEnrollment(ctx context.Context, accountID, password string) (*EnrollmentSetup, error) {
	if e == nil || e.accounts == nil || e.profiles == nil || e.totp == nil {
		return nil, ErrEngineNotReady
	}

	account, err := e.accounts.GetAccountByID(ctx, accountID)
	if err != nil || account == nil {
		return nil, ErrAccountNotFound
	}

	ok, err := e.accounts.VerifyPassword(ctx, account.AccountID, password)
	if err != nil {
		return nil, errors.Join(ErrProfileUnavailable, err)
	}
	if !ok {
		e.emitAudit(ctx, auditEventSetupStarted, false, account.AccountID, "", ErrInvalidCredentials, nil)
		return nil, ErrInvalidCredentials
	}

	raw, encoded, err := e.totp.GenerateSecret()
	if err != nil {
		return nil, err
	}

	if err := e.profiles.StageSetup(ctx, account.AccountID, raw, e.config.Enrollment.PendingSetupTTL); err != nil {
		switch {
		case errors.Is(err, stores.ErrAlreadyEnabled):
			return nil, ErrTwoFactorAlreadyEnabled
		case errors.Is(err, stores.ErrUpdateConflict):
			return nil, ErrEnrollmentConflict
		case errors.Is(err, stores.ErrRedisUnavailable):
			return nil, errors.Join(ErrProfileUnavailable, err)
		}
		return nil, err
	}

	e.metricInc(MetricEnrollmentStarted)
	e.emitAudit(ctx, auditEventSetupStarted, true, account.AccountID, "", nil, nil)

	return &EnrollmentSetup{
		Secret: encoded,
		URI:    e.totp.ProvisionURI(encoded, account.Identifier),
	}, nil
}

// ConfirmEnrollment proves the pending authenticator works by checking one
// code against the staged secret. On success the secret is committed, the
// account moves to enabled, and a fresh batch of one-time backup codes is
// returned in plaintext. The plaintext codes are never stored and cannot be
// retrieved again.
func (e *Engine) ConfirmEnrollment(ctx context.Context, accountID, code string) ([]string, error) {
	if e == nil || e.profiles == nil || e.totp == nil {
		return nil, ErrEngineNotReady
	}

	codes, hashes, err := flows.NewBackupCodeBatch(
		accountID,
		e.config.BackupCodes.Count,
		e.config.BackupCodes.Length,
		nil,
	)
	if err != nil {
		return nil, errors.Join(ErrBackupCodeUnavailable, err)
	}

	verify := func(secret []byte) (int64, bool, error) {
		ok, counter, err := e.totp.VerifyCode(secret, code, time.Now())
		return counter, ok, err
	}

	if err := e.profiles.CommitSetup(ctx, accountID, verify, hashes); err != nil {
		switch {
		case errors.Is(err, stores.ErrNotPending):
			return nil, ErrEnrollmentNotPending
		case errors.Is(err, stores.ErrCodeRejected):
			e.metricInc(MetricTOTPRejected)
			e.emitAudit(ctx, auditEventSetupConfirmed, false, accountID, "", ErrInvalidCode, nil)
			return nil, ErrInvalidCode
		case errors.Is(err, stores.ErrUpdateConflict):
			return nil, ErrEnrollmentConflict
		case errors.Is(err, stores.ErrRedisUnavailable):
			return nil, errors.Join(ErrProfileUnavailable, err)
		}
		return nil, err
	}

	e.metricInc(MetricEnrollmentConfirmed)
	e.metricInc(MetricBackupCodesIssued)
	e.emitAudit(ctx, auditEventSetupConfirmed, true, accountID, "", nil, nil)
	e.emitAudit(ctx, auditEventBackupCodesIssued, true, accountID, "", nil, nil)

	return codes, nil
}

// AbandonEnrollment discards a pending setup without touching committed
// state. Safe to call when enrollment stalled; returns
// [ErrEnrollmentNotPending] when there is nothing staged.
func (e *Engine) AbandonEnrollment(ctx context.Context, accountID string) error {
	if e == nil || e.profiles == nil {
		return ErrEngineNotReady
	}

	if err := e.profiles.AbandonSetup(ctx, accountID); err != nil {
		switch {
		case errors.Is(err, stores.ErrNotPending):
			return ErrEnrollmentNotPending
		case errors.Is(err, stores.ErrUpdateConflict):
			return ErrEnrollmentConflict
		case errors.Is(err, stores.ErrRedisUnavailable):
			return errors.Join(ErrProfileUnavailable, err)
		}
		return err
	}

	e.metricInc(MetricEnrollmentAbandoned)
	e.emitAudit(ctx, auditEventSetupAbandoned, true, accountID, "", nil, nil)
	return nil
}

// DisableTwoFactor turns two-factor off for an account. The caller must
// present the password plus a valid second factor: a current TOTP code or
// an unused backup code. The profile and the remaining backup codes are
// removed in one transaction, so no orphan codes survive a disable.
func (e *Engine) DisableTwoFactor(ctx context.Context, accountID, password, code string) error {
	if e == nil || e.accounts == nil || e.profiles == nil || e.totp == nil {
		return ErrEngineNotReady
	}

	account, err := e.accounts.GetAccountByID(ctx, accountID)
	if err != nil || account == nil {
		return ErrAccountNotFound
	}

	ok, err := e.accounts.VerifyPassword(ctx, account.AccountID, password)
	if err != nil {
		return errors.Join(ErrProfileUnavailable, err)
	}
	if !ok {
		e.emitAudit(ctx, auditEventTwoFactorDisabled, false, account.AccountID, "", ErrInvalidCredentials, nil)
		return ErrInvalidCredentials
	}

	if err := e.secondFactorLimiter.Check(ctx, account.AccountID); err != nil {
		if errors.Is(err, limiters.ErrSecondFactorRateLimited) {
			e.emitRateLimit(ctx, "second_factor", nil)
			return ErrSecondFactorRateLimited
		}
		return errors.Join(ErrProfileUnavailable, err)
	}

	verifyTOTP := func(secret []byte, lastUsed int64) (int64, bool, error) {
		ok, counter, err := e.totp.VerifyCode(secret, code, time.Now())
		if err != nil {
			return 0, false, err
		}
		if ok && e.config.TOTP.EnforceReplayProtection && counter <= lastUsed {
			ok = false
		}
		return counter, ok, nil
	}

	var backupHash *[32]byte
	if canonical := flows.CanonicalizeBackupCode(code); canonical != "" {
		h := flows.BackupCodeHash(account.AccountID, canonical)
		backupHash = &h
	}

	if err := e.profiles.Disable(ctx, account.AccountID, verifyTOTP, backupHash); err != nil {
		switch {
		case errors.Is(err, stores.ErrNotEnabled):
			return ErrTwoFactorNotEnabled
		case errors.Is(err, stores.ErrCodeRejected):
			_ = e.secondFactorLimiter.RecordFailure(ctx, account.AccountID)
			e.metricInc(MetricTOTPRejected)
			e.emitAudit(ctx, auditEventTwoFactorDisabled, false, account.AccountID, "", ErrInvalidCode, nil)
			return ErrInvalidCode
		case errors.Is(err, stores.ErrUpdateConflict):
			return ErrEnrollmentConflict
		case errors.Is(err, stores.ErrRedisUnavailable):
			return errors.Join(ErrProfileUnavailable, err)
		}
		return err
	}

	_ = e.secondFactorLimiter.Reset(ctx, account.AccountID)
	e.metricInc(MetricTwoFactorDisabled)
	e.emitAudit(ctx, auditEventTwoFactorDisabled, true, account.AccountID, "", nil, nil)
	return nil
}

// TwoFactorStatus reports the current enrollment state. A pending setup
// whose deadline passed reads as not pending; the stale staged secret is
// ignored until the next enrollment overwrites it.
func (e *Engine) TwoFactorStatus(ctx context.Context, accountID string) (*EnrollmentStatus, error) {
	if e == nil || e.profiles == nil {
		return nil, ErrEngineNotReady
	}

	profile, err := e.profiles.Get(ctx, accountID)
	if err != nil {
		if errors.Is(err, stores.ErrRedisUnavailable) {
			return nil, errors.Join(ErrProfileUnavailable, err)
		}
		return nil, err
	}

	status := &EnrollmentStatus{
		Enabled:      profile.State == stores.StateEnabled,
		PendingSetup: profile.State == stores.StatePendingSetup && !profile.PendingExpired(time.Now()),
	}

	if status.Enabled {
		remaining, err := e.profiles.BackupCodeCount(ctx, accountID)
		if err != nil {
			return nil, errors.Join(ErrBackupCodeUnavailable, err)
		}
		status.BackupCodesRemaining = remaining
	}

	return status, nil
}
