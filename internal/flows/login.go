package flows

import (
	"context"
	"errors"
	"time"
)

// LoginResult is the flow-local authentication response shape.
type LoginResult struct {
	AccountID      string
	SessionID      string
	UsedBackupCode bool
}

// LoginAccount is a flow-local account model used by the login flow.
type LoginAccount struct {
	AccountID  string
	Identifier string
}

// LoginMetrics carries metric IDs needed by the login flow.
type LoginMetrics struct {
	AuthSuccess     int
	AuthFailure     int
	AuthRateLimited int
	SessionCreated  int
}

// LoginEvents carries audit event names used by the login flow.
type LoginEvents struct {
	LoginSuccess     string
	LoginFailure     string
	LoginRateLimited string
}

// LoginErrors carries host-level sentinel errors used by the login flow.
type LoginErrors struct {
	EngineNotReady       error
	AuthenticationFailed error
	RateLimited          error
	Unavailable          error
}

// LoginDeps captures authentication dependencies.
type LoginDeps struct {
	Now                 func() time.Time
	ClientIPFromContext func(context.Context) string

	CheckLoginRate     func(context.Context, string, string) error
	IncrementLoginRate func(context.Context, string, string) error
	ResetLoginRate     func(context.Context, string, string) error
	IsRateLimited      func(error) bool

	GetAccountByID func(context.Context, string) (LoginAccount, error)
	VerifyPassword func(context.Context, string, string) (bool, error)

	// VerifySecondFactor checks the submitted TOTP or backup code and
	// reports whether a backup code was consumed. Returning an error that
	// IsRateLimited recognizes surfaces the rate-limit verbatim; any other
	// error collapses into AuthenticationFailed.
	SecondFactorEnabled func(context.Context, string) (bool, error)
	VerifySecondFactor  func(ctx context.Context, accountID, code string) (usedBackup bool, err error)

	CreateSession func(ctx context.Context, accountID, device string) (string, error)
	RecordAttempt func(ctx context.Context, accountID string, success bool, at time.Time)

	MetricInc func(int)
	EmitAudit func(context.Context, string, bool, string, string, error, func() map[string]string)

	Metrics LoginMetrics
	Events  LoginEvents
	Errors  LoginErrors
}

func normalizeLoginDeps(deps *LoginDeps) {
	if deps.Now == nil {
		deps.Now = time.Now
	}
	if deps.MetricInc == nil {
		deps.MetricInc = func(int) {}
	}
	if deps.EmitAudit == nil {
		deps.EmitAudit = func(context.Context, string, bool, string, string, error, func() map[string]string) {}
	}
	if deps.ClientIPFromContext == nil {
		deps.ClientIPFromContext = func(context.Context) string { return "" }
	}
	if deps.RecordAttempt == nil {
		deps.RecordAttempt = func(context.Context, string, bool, time.Time) {}
	}
	if deps.IsRateLimited == nil {
		deps.IsRateLimited = func(error) bool { return false }
	}
}

// RunAuthenticate executes the full authentication gate: rate limit, password,
// second factor when enrolled, then session creation and history recording.
//
// Every credential failure, including unknown accounts, collapses into
// Errors.AuthenticationFailed so the caller cannot distinguish which stage
// rejected. The attempt is recorded in history either way.
func RunAuthenticate(ctx context.Context, accountID, password, secondFactor, device string, deps LoginDeps) (*LoginResult, error) {
	normalizeLoginDeps(&deps)

	if deps.GetAccountByID == nil ||
		deps.VerifyPassword == nil ||
		deps.SecondFactorEnabled == nil ||
		deps.VerifySecondFactor == nil ||
		deps.CreateSession == nil {
		return nil, deps.Errors.EngineNotReady
	}

	ip := deps.ClientIPFromContext(ctx)

	if deps.CheckLoginRate != nil {
		if err := deps.CheckLoginRate(ctx, accountID, ip); err != nil {
			if deps.IsRateLimited(err) {
				deps.MetricInc(deps.Metrics.AuthRateLimited)
				deps.EmitAudit(ctx, deps.Events.LoginRateLimited, false, accountID, "", deps.Errors.RateLimited, nil)
				return nil, deps.Errors.RateLimited
			}
			return nil, errors.Join(deps.Errors.Unavailable, err)
		}
	}

	fail := func(reason string) (*LoginResult, error) {
		deps.RecordAttempt(ctx, accountID, false, deps.Now())
		if deps.IncrementLoginRate != nil {
			if err := deps.IncrementLoginRate(ctx, accountID, ip); err != nil && deps.IsRateLimited(err) {
				deps.MetricInc(deps.Metrics.AuthRateLimited)
				deps.EmitAudit(ctx, deps.Events.LoginRateLimited, false, accountID, "", deps.Errors.RateLimited, nil)
				return nil, deps.Errors.RateLimited
			}
		}
		deps.MetricInc(deps.Metrics.AuthFailure)
		deps.EmitAudit(ctx, deps.Events.LoginFailure, false, accountID, "", deps.Errors.AuthenticationFailed, func() map[string]string {
			return map[string]string{
				"reason": reason,
			}
		})
		return nil, deps.Errors.AuthenticationFailed
	}

	if password == "" {
		return fail("empty_password")
	}

	account, err := deps.GetAccountByID(ctx, accountID)
	if err != nil {
		return fail("account_not_found")
	}

	ok, err := deps.VerifyPassword(ctx, account.AccountID, password)
	if err != nil {
		return nil, errors.Join(deps.Errors.Unavailable, err)
	}
	if !ok {
		return fail("password_mismatch")
	}

	usedBackup := false
	enabled, err := deps.SecondFactorEnabled(ctx, account.AccountID)
	if err != nil {
		return nil, errors.Join(deps.Errors.Unavailable, err)
	}
	if enabled {
		if secondFactor == "" {
			return fail("second_factor_missing")
		}
		usedBackup, err = deps.VerifySecondFactor(ctx, account.AccountID, secondFactor)
		if err != nil {
			if deps.IsRateLimited(err) {
				deps.RecordAttempt(ctx, account.AccountID, false, deps.Now())
				deps.MetricInc(deps.Metrics.AuthRateLimited)
				deps.EmitAudit(ctx, deps.Events.LoginRateLimited, false, account.AccountID, "", err, nil)
				return nil, err
			}
			return fail("second_factor_rejected")
		}
	}

	if deps.ResetLoginRate != nil {
		// Best effort; a failed reset must not block a valid login.
		_ = deps.ResetLoginRate(ctx, accountID, ip)
	}

	sessionID, err := deps.CreateSession(ctx, account.AccountID, device)
	if err != nil {
		deps.MetricInc(deps.Metrics.AuthFailure)
		deps.EmitAudit(ctx, deps.Events.LoginFailure, false, account.AccountID, "", err, func() map[string]string {
			return map[string]string{
				"reason": "session_create_failed",
			}
		})
		return nil, errors.Join(deps.Errors.Unavailable, err)
	}

	deps.RecordAttempt(ctx, account.AccountID, true, deps.Now())
	deps.MetricInc(deps.Metrics.SessionCreated)
	deps.MetricInc(deps.Metrics.AuthSuccess)
	deps.EmitAudit(ctx, deps.Events.LoginSuccess, true, account.AccountID, sessionID, nil, func() map[string]string {
		return map[string]string{
			"used_backup_code": boolString(usedBackup),
		}
	})

	return &LoginResult{
		AccountID:      account.AccountID,
		SessionID:      sessionID,
		UsedBackupCode: usedBackup,
	}, nil
}

func boolString(b bool) string {
	if b {
		return "true"
	}
	return "false"
}
