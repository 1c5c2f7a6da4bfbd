package twofa

import (
	"context"
	"errors"
	"strings"
	"testing"
)

func TestAuthenticatePasswordOnly(t *testing.T) {
	engine, _, done := newTestEngine(t, defaultTestConfig())
	defer done()

	result, err := engine.Authenticate(context.Background(), AuthRequest{
		AccountID: "u1",
		Password:  "correct-horse",
		Device:    "Firefox on Linux",
	})
	if err != nil {
		t.Fatalf("authenticate failed: %v", err)
	}
	if result.AccountID != "u1" || result.SessionID == "" {
		t.Fatalf("unexpected result: %+v", result)
	}
	if result.UsedBackupCode {
		t.Fatal("expected UsedBackupCode false for password-only login")
	}
}

func TestAuthenticateUniformCredentialFailure(t *testing.T) {
	engine, _, done := newTestEngine(t, defaultTestConfig())
	defer done()
	ctx := context.Background()

	// Unknown account, wrong password, and empty password all collapse
	// into the same sentinel so callers cannot probe accounts.
	cases := []AuthRequest{
		{AccountID: "ghost", Password: "whatever"},
		{AccountID: "u1", Password: "wrong"},
		{AccountID: "u1", Password: ""},
	}
	for _, req := range cases {
		if _, err := engine.Authenticate(ctx, req); !errors.Is(err, ErrAuthenticationFailed) {
			t.Fatalf("expected ErrAuthenticationFailed for %+v, got %v", req, err)
		}
	}
}

func TestAuthenticateMissingSecondFactor(t *testing.T) {
	engine, _, done := newTestEngine(t, defaultTestConfig())
	defer done()

	enrollTwoFactor(t, engine, "u1", "correct-horse")

	_, err := engine.Authenticate(context.Background(), AuthRequest{
		AccountID: "u1",
		Password:  "correct-horse",
	})
	if !errors.Is(err, ErrAuthenticationFailed) {
		t.Fatalf("expected ErrAuthenticationFailed without second factor, got %v", err)
	}
}

func TestAuthenticateWithTOTP(t *testing.T) {
	engine, _, done := newTestEngine(t, defaultTestConfig())
	defer done()

	secret, _ := enrollTwoFactor(t, engine, "u1", "correct-horse")

	result, err := engine.Authenticate(context.Background(), AuthRequest{
		AccountID:    "u1",
		Password:     "correct-horse",
		SecondFactor: codeForStep(t, secret, engine.config.TOTP, 1),
	})
	if err != nil {
		t.Fatalf("authenticate failed: %v", err)
	}
	if result.UsedBackupCode {
		t.Fatal("expected TOTP login not to consume a backup code")
	}
}

func TestAuthenticateReplayRejected(t *testing.T) {
	engine, _, done := newTestEngine(t, defaultTestConfig())
	defer done()
	ctx := context.Background()

	secret, _ := enrollTwoFactor(t, engine, "u1", "correct-horse")
	code := codeForStep(t, secret, engine.config.TOTP, 1)

	if _, err := engine.Authenticate(ctx, AuthRequest{
		AccountID: "u1", Password: "correct-horse", SecondFactor: code,
	}); err != nil {
		t.Fatalf("first authenticate failed: %v", err)
	}

	_, err := engine.Authenticate(ctx, AuthRequest{
		AccountID: "u1", Password: "correct-horse", SecondFactor: code,
	})
	if !errors.Is(err, ErrAuthenticationFailed) {
		t.Fatalf("expected replayed code rejected, got %v", err)
	}
}

func TestAuthenticateWrongTOTPCode(t *testing.T) {
	engine, _, done := newTestEngine(t, defaultTestConfig())
	defer done()

	enrollTwoFactor(t, engine, "u1", "correct-horse")

	_, err := engine.Authenticate(context.Background(), AuthRequest{
		AccountID: "u1", Password: "correct-horse", SecondFactor: "000000",
	})
	if !errors.Is(err, ErrAuthenticationFailed) {
		t.Fatalf("expected ErrAuthenticationFailed, got %v", err)
	}
}

func TestAuthenticateBackupCodeFallback(t *testing.T) {
	engine, _, done := newTestEngine(t, defaultTestConfig())
	defer done()
	ctx := context.Background()

	_, codes := enrollTwoFactor(t, engine, "u1", "correct-horse")

	result, err := engine.Authenticate(ctx, AuthRequest{
		AccountID: "u1", Password: "correct-horse", SecondFactor: codes[0],
	})
	if err != nil {
		t.Fatalf("backup code login failed: %v", err)
	}
	if !result.UsedBackupCode {
		t.Fatal("expected UsedBackupCode true")
	}

	status, err := engine.TwoFactorStatus(ctx, "u1")
	if err != nil {
		t.Fatalf("status failed: %v", err)
	}
	if status.BackupCodesRemaining != engine.config.BackupCodes.Count-1 {
		t.Fatalf("expected one code consumed, got %d remaining", status.BackupCodesRemaining)
	}

	// A spent code never redeems twice.
	_, err = engine.Authenticate(ctx, AuthRequest{
		AccountID: "u1", Password: "correct-horse", SecondFactor: codes[0],
	})
	if !errors.Is(err, ErrAuthenticationFailed) {
		t.Fatalf("expected spent code rejected, got %v", err)
	}
}

func TestAuthenticateValidTOTPNeverConsumesBackupCode(t *testing.T) {
	engine, _, done := newTestEngine(t, defaultTestConfig())
	defer done()
	ctx := context.Background()

	secret, _ := enrollTwoFactor(t, engine, "u1", "correct-horse")

	if _, err := engine.Authenticate(ctx, AuthRequest{
		AccountID: "u1", Password: "correct-horse",
		SecondFactor: codeForStep(t, secret, engine.config.TOTP, 1),
	}); err != nil {
		t.Fatalf("authenticate failed: %v", err)
	}

	status, err := engine.TwoFactorStatus(ctx, "u1")
	if err != nil {
		t.Fatalf("status failed: %v", err)
	}
	if status.BackupCodesRemaining != engine.config.BackupCodes.Count {
		t.Fatalf("expected vault untouched by TOTP login, got %d remaining", status.BackupCodesRemaining)
	}
}

func TestAuthenticateLoginRateLimited(t *testing.T) {
	cfg := defaultTestConfig()
	cfg.Security.MaxLoginAttempts = 2

	engine, _, done := newTestEngine(t, cfg)
	defer done()
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		_, err := engine.Authenticate(ctx, AuthRequest{AccountID: "u1", Password: "wrong"})
		if !errors.Is(err, ErrAuthenticationFailed) {
			t.Fatalf("attempt %d: expected ErrAuthenticationFailed, got %v", i, err)
		}
	}

	// The attempt that exceeds the budget surfaces the limit distinctly.
	_, err := engine.Authenticate(ctx, AuthRequest{AccountID: "u1", Password: "wrong"})
	if !errors.Is(err, ErrLoginRateLimited) {
		t.Fatalf("expected ErrLoginRateLimited, got %v", err)
	}

	// Even the correct password is refused while the window holds.
	_, err = engine.Authenticate(ctx, AuthRequest{AccountID: "u1", Password: "correct-horse"})
	if !errors.Is(err, ErrLoginRateLimited) {
		t.Fatalf("expected ErrLoginRateLimited with correct password, got %v", err)
	}
}

func TestAuthenticateSuccessResetsLoginBudget(t *testing.T) {
	cfg := defaultTestConfig()
	cfg.Security.MaxLoginAttempts = 3

	engine, _, done := newTestEngine(t, cfg)
	defer done()
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		_, _ = engine.Authenticate(ctx, AuthRequest{AccountID: "u1", Password: "wrong"})
	}
	if _, err := engine.Authenticate(ctx, AuthRequest{AccountID: "u1", Password: "correct-horse"}); err != nil {
		t.Fatalf("login failed: %v", err)
	}

	// The counter restarted, so the full budget is available again.
	for i := 0; i < 3; i++ {
		_, err := engine.Authenticate(ctx, AuthRequest{AccountID: "u1", Password: "wrong"})
		if !errors.Is(err, ErrAuthenticationFailed) {
			t.Fatalf("attempt %d: expected ErrAuthenticationFailed, got %v", i, err)
		}
	}
}

func TestAuthenticateSecondFactorRateLimitSurfaced(t *testing.T) {
	cfg := defaultTestConfig()
	cfg.Security.SecondFactorMaxAttempts = 2
	cfg.Security.MaxLoginAttempts = 50

	engine, _, done := newTestEngine(t, cfg)
	defer done()
	ctx := context.Background()

	enrollTwoFactor(t, engine, "u1", "correct-horse")

	if _, err := engine.Authenticate(ctx, AuthRequest{
		AccountID: "u1", Password: "correct-horse", SecondFactor: "000000",
	}); !errors.Is(err, ErrAuthenticationFailed) {
		t.Fatalf("expected ErrAuthenticationFailed, got %v", err)
	}

	// The failure that reaches the cap reports the limit, not a generic failure.
	_, err := engine.Authenticate(ctx, AuthRequest{
		AccountID: "u1", Password: "correct-horse", SecondFactor: "000000",
	})
	if !errors.Is(err, ErrSecondFactorRateLimited) {
		t.Fatalf("expected ErrSecondFactorRateLimited, got %v", err)
	}
}

func TestAuthenticateTruncatesDevice(t *testing.T) {
	engine, _, done := newTestEngine(t, defaultTestConfig())
	defer done()
	ctx := context.Background()

	long := strings.Repeat("d", 200)
	result, err := engine.Authenticate(ctx, AuthRequest{
		AccountID: "u1", Password: "correct-horse", Device: long,
	})
	if err != nil {
		t.Fatalf("authenticate failed: %v", err)
	}

	sessions, err := engine.Sessions(ctx, "u1")
	if err != nil {
		t.Fatalf("sessions failed: %v", err)
	}
	if len(sessions) != 1 || sessions[0].SessionID != result.SessionID {
		t.Fatalf("expected the new session listed, got %+v", sessions)
	}
	if len(sessions[0].Device) != engine.config.Session.MaxDeviceLength {
		t.Fatalf("expected device truncated to %d, got %d",
			engine.config.Session.MaxDeviceLength, len(sessions[0].Device))
	}
}

func TestAuthenticateDeviceFallsBackToUserAgent(t *testing.T) {
	engine, _, done := newTestEngine(t, defaultTestConfig())
	defer done()

	ctx := WithUserAgent(context.Background(), "agent/1.0 (X11; Linux x86_64)")
	result, err := engine.Authenticate(ctx, AuthRequest{
		AccountID: "u1", Password: "correct-horse",
	})
	if err != nil {
		t.Fatalf("authenticate failed: %v", err)
	}

	sessions, err := engine.Sessions(ctx, "u1")
	if err != nil {
		t.Fatalf("sessions failed: %v", err)
	}
	if len(sessions) != 1 || sessions[0].SessionID != result.SessionID {
		t.Fatalf("expected the new session listed, got %+v", sessions)
	}
	if sessions[0].Device != "agent/1.0 (X11; Linux x86_64)" {
		t.Fatalf("expected user agent as device descriptor, got %q", sessions[0].Device)
	}
}

func TestAuthenticateExplicitDeviceWinsOverUserAgent(t *testing.T) {
	engine, _, done := newTestEngine(t, defaultTestConfig())
	defer done()

	ctx := WithUserAgent(context.Background(), "agent/1.0")
	if _, err := engine.Authenticate(ctx, AuthRequest{
		AccountID: "u1", Password: "correct-horse", Device: "Firefox on Linux",
	}); err != nil {
		t.Fatalf("authenticate failed: %v", err)
	}

	sessions, err := engine.Sessions(ctx, "u1")
	if err != nil {
		t.Fatalf("sessions failed: %v", err)
	}
	if len(sessions) != 1 || sessions[0].Device != "Firefox on Linux" {
		t.Fatalf("expected explicit device to win, got %+v", sessions)
	}
}

func TestAuthenticateTruncatesUserAgentFallback(t *testing.T) {
	engine, _, done := newTestEngine(t, defaultTestConfig())
	defer done()

	ctx := WithUserAgent(context.Background(), strings.Repeat("u", 200))
	if _, err := engine.Authenticate(ctx, AuthRequest{
		AccountID: "u1", Password: "correct-horse",
	}); err != nil {
		t.Fatalf("authenticate failed: %v", err)
	}

	sessions, err := engine.Sessions(ctx, "u1")
	if err != nil {
		t.Fatalf("sessions failed: %v", err)
	}
	if len(sessions) != 1 || len(sessions[0].Device) != engine.config.Session.MaxDeviceLength {
		t.Fatalf("expected fallback device truncated to %d, got %+v",
			engine.config.Session.MaxDeviceLength, sessions)
	}
}

func TestLoginAttemptsTracksFailures(t *testing.T) {
	engine, _, done := newTestEngine(t, defaultTestConfig())
	defer done()
	ctx := context.Background()

	count, err := engine.LoginAttempts(ctx, "u1")
	if err != nil {
		t.Fatalf("login attempts failed: %v", err)
	}
	if count != 0 {
		t.Fatalf("expected zero attempts before any login, got %d", count)
	}

	for i := 0; i < 2; i++ {
		_, _ = engine.Authenticate(ctx, AuthRequest{AccountID: "u1", Password: "wrong"})
	}

	count, err = engine.LoginAttempts(ctx, "u1")
	if err != nil {
		t.Fatalf("login attempts failed: %v", err)
	}
	if count != 2 {
		t.Fatalf("expected 2 failed attempts, got %d", count)
	}

	if _, err := engine.Authenticate(ctx, AuthRequest{AccountID: "u1", Password: "correct-horse"}); err != nil {
		t.Fatalf("authenticate failed: %v", err)
	}

	count, err = engine.LoginAttempts(ctx, "u1")
	if err != nil {
		t.Fatalf("login attempts failed: %v", err)
	}
	if count != 0 {
		t.Fatalf("expected counter cleared after success, got %d", count)
	}
}

func TestAuthenticateRecordsOrigin(t *testing.T) {
	engine, _, done := newTestEngine(t, defaultTestConfig())
	defer done()

	ctx := WithClientIP(context.Background(), "203.0.113.7")
	if _, err := engine.Authenticate(ctx, AuthRequest{AccountID: "u1", Password: "correct-horse"}); err != nil {
		t.Fatalf("authenticate failed: %v", err)
	}

	sessions, err := engine.Sessions(ctx, "u1")
	if err != nil {
		t.Fatalf("sessions failed: %v", err)
	}
	if len(sessions) != 1 || sessions[0].Origin != "203.0.113.7" {
		t.Fatalf("expected session origin from context, got %+v", sessions)
	}
}
