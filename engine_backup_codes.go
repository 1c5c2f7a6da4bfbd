package twofa

import (
	"context"
	"errors"
	"time"

	"github.com/raed-saidi/twofa/internal/flows"
	"github.com/raed-saidi/twofa/internal/limiters"
	"github.com/raed-saidi/twofa/internal/stores"
)

// RegenerateBackupCodes replaces the account's remaining backup codes with a
// fresh batch and returns the new plaintext codes once. The caller must
// present the password and a current TOTP code; a backup code cannot
// authorize its own regeneration, otherwise one leaked code could mint ten.
func (e *Engine) RegenerateBackupCodes(ctx context.Context, accountID, password, totpCode string) ([]string, error) {
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
		e.emitAudit(ctx, auditEventBackupCodesIssued, false, account.AccountID, "", ErrInvalidCredentials, nil)
		return nil, ErrInvalidCredentials
	}

	if err := e.secondFactorLimiter.Check(ctx, account.AccountID); err != nil {
		if errors.Is(err, limiters.ErrSecondFactorRateLimited) {
			e.emitRateLimit(ctx, "second_factor", nil)
			return nil, ErrSecondFactorRateLimited
		}
		return nil, errors.Join(ErrProfileUnavailable, err)
	}

	verify := func(secret []byte, lastUsed int64) (int64, bool, error) {
		ok, counter, err := e.totp.VerifyCode(secret, totpCode, time.Now())
		if err != nil {
			return 0, false, err
		}
		if ok && e.config.TOTP.EnforceReplayProtection && counter <= lastUsed {
			ok = false
		}
		return counter, ok, nil
	}

	if err := e.profiles.VerifyTOTP(ctx, account.AccountID, verify); err != nil {
		switch {
		case errors.Is(err, stores.ErrNotEnabled):
			return nil, ErrTwoFactorNotEnabled
		case errors.Is(err, stores.ErrCodeRejected):
			_ = e.secondFactorLimiter.RecordFailure(ctx, account.AccountID)
			e.metricInc(MetricTOTPRejected)
			e.emitAudit(ctx, auditEventBackupCodesIssued, false, account.AccountID, "", ErrInvalidCode, nil)
			return nil, ErrInvalidCode
		case errors.Is(err, stores.ErrUpdateConflict), errors.Is(err, stores.ErrRedisUnavailable):
			return nil, errors.Join(ErrProfileUnavailable, err)
		}
		return nil, err
	}

	codes, hashes, err := flows.NewBackupCodeBatch(
		account.AccountID,
		e.config.BackupCodes.Count,
		e.config.BackupCodes.Length,
		nil,
	)
	if err != nil {
		return nil, errors.Join(ErrBackupCodeUnavailable, err)
	}

	if err := e.profiles.ReplaceBackupCodes(ctx, account.AccountID, hashes); err != nil {
		switch {
		case errors.Is(err, stores.ErrNotEnabled):
			return nil, ErrTwoFactorNotEnabled
		case errors.Is(err, stores.ErrUpdateConflict), errors.Is(err, stores.ErrRedisUnavailable):
			return nil, errors.Join(ErrBackupCodeUnavailable, err)
		}
		return nil, err
	}

	_ = e.secondFactorLimiter.Reset(ctx, account.AccountID)
	e.metricInc(MetricBackupCodesIssued)
	e.emitAudit(ctx, auditEventBackupCodesIssued, true, account.AccountID, "", nil, nil)

	return codes, nil
}
