package twofa

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"
)

func TestEnrollmentLifecycle(t *testing.T) {
	engine, _, done := newTestEngine(t, defaultTestConfig())
	defer done()
	ctx := context.Background()

	setup, err := engine.BeginEnrollment(ctx, "u1", "correct-horse")
	if err != nil {
		t.Fatalf("BeginEnrollment failed: %v", err)
	}
	if setup.Secret == "" {
		t.Fatal("expected base32 secret")
	}
	if !strings.HasPrefix(setup.URI, "otpauth://totp/") {
		t.Fatalf("expected otpauth URI, got %q", setup.URI)
	}
	if !strings.Contains(setup.URI, "alice%40example.com") && !strings.Contains(setup.URI, "alice@example.com") {
		t.Fatalf("expected account identifier in URI, got %q", setup.URI)
	}

	status, err := engine.TwoFactorStatus(ctx, "u1")
	if err != nil {
		t.Fatalf("status failed: %v", err)
	}
	if status.Enabled || !status.PendingSetup {
		t.Fatalf("expected pending state, got %+v", status)
	}

	codes, err := engine.ConfirmEnrollment(ctx, "u1", codeForStep(t, setup.Secret, engine.config.TOTP, 0))
	if err != nil {
		t.Fatalf("ConfirmEnrollment failed: %v", err)
	}
	if len(codes) != engine.config.BackupCodes.Count {
		t.Fatalf("expected %d backup codes, got %d", engine.config.BackupCodes.Count, len(codes))
	}
	for _, code := range codes {
		if !strings.Contains(code, "-") {
			t.Fatalf("expected formatted backup code, got %q", code)
		}
	}

	status, err = engine.TwoFactorStatus(ctx, "u1")
	if err != nil {
		t.Fatalf("status failed: %v", err)
	}
	if !status.Enabled || status.PendingSetup {
		t.Fatalf("expected enabled state, got %+v", status)
	}
	if status.BackupCodesRemaining != engine.config.BackupCodes.Count {
		t.Fatalf("expected %d codes remaining, got %d", engine.config.BackupCodes.Count, status.BackupCodesRemaining)
	}
}

func TestBeginEnrollmentWrongPassword(t *testing.T) {
	engine, _, done := newTestEngine(t, defaultTestConfig())
	defer done()

	_, err := engine.BeginEnrollment(context.Background(), "u1", "wrong")
	if !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials, got %v", err)
	}
}

func TestBeginEnrollmentUnknownAccount(t *testing.T) {
	engine, _, done := newTestEngine(t, defaultTestConfig())
	defer done()

	_, err := engine.BeginEnrollment(context.Background(), "ghost", "pw")
	if !errors.Is(err, ErrAccountNotFound) {
		t.Fatalf("expected ErrAccountNotFound, got %v", err)
	}
}

func TestBeginEnrollmentAlreadyEnabled(t *testing.T) {
	engine, _, done := newTestEngine(t, defaultTestConfig())
	defer done()

	enrollTwoFactor(t, engine, "u1", "correct-horse")

	_, err := engine.BeginEnrollment(context.Background(), "u1", "correct-horse")
	if !errors.Is(err, ErrTwoFactorAlreadyEnabled) {
		t.Fatalf("expected ErrTwoFactorAlreadyEnabled, got %v", err)
	}
}

func TestConfirmEnrollmentWrongCodeLeavesPending(t *testing.T) {
	engine, _, done := newTestEngine(t, defaultTestConfig())
	defer done()
	ctx := context.Background()

	setup, err := engine.BeginEnrollment(ctx, "u1", "correct-horse")
	if err != nil {
		t.Fatalf("BeginEnrollment failed: %v", err)
	}

	if _, err := engine.ConfirmEnrollment(ctx, "u1", "000000"); !errors.Is(err, ErrInvalidCode) {
		t.Fatalf("expected ErrInvalidCode, got %v", err)
	}

	status, err := engine.TwoFactorStatus(ctx, "u1")
	if err != nil {
		t.Fatalf("status failed: %v", err)
	}
	if !status.PendingSetup || status.Enabled {
		t.Fatalf("expected setup still pending after wrong code, got %+v", status)
	}

	// A correct code still completes the same pending setup.
	if _, err := engine.ConfirmEnrollment(ctx, "u1", codeForStep(t, setup.Secret, engine.config.TOTP, 0)); err != nil {
		t.Fatalf("confirm after retry failed: %v", err)
	}
}

func TestConfirmEnrollmentWithoutPending(t *testing.T) {
	engine, _, done := newTestEngine(t, defaultTestConfig())
	defer done()

	_, err := engine.ConfirmEnrollment(context.Background(), "u1", "123456")
	if !errors.Is(err, ErrEnrollmentNotPending) {
		t.Fatalf("expected ErrEnrollmentNotPending, got %v", err)
	}
}

func TestPendingSetupExpires(t *testing.T) {
	cfg := defaultTestConfig()
	cfg.Enrollment.PendingSetupTTL = time.Nanosecond

	engine, _, done := newTestEngine(t, cfg)
	defer done()
	ctx := context.Background()

	setup, err := engine.BeginEnrollment(ctx, "u1", "correct-horse")
	if err != nil {
		t.Fatalf("BeginEnrollment failed: %v", err)
	}

	status, err := engine.TwoFactorStatus(ctx, "u1")
	if err != nil {
		t.Fatalf("status failed: %v", err)
	}
	if status.PendingSetup {
		t.Fatal("expected expired setup to read as not pending")
	}

	_, err = engine.ConfirmEnrollment(ctx, "u1", codeForStep(t, setup.Secret, engine.config.TOTP, 0))
	if !errors.Is(err, ErrEnrollmentNotPending) {
		t.Fatalf("expected ErrEnrollmentNotPending for expired setup, got %v", err)
	}
}

func TestAbandonEnrollment(t *testing.T) {
	engine, _, done := newTestEngine(t, defaultTestConfig())
	defer done()
	ctx := context.Background()

	if _, err := engine.BeginEnrollment(ctx, "u1", "correct-horse"); err != nil {
		t.Fatalf("BeginEnrollment failed: %v", err)
	}
	if err := engine.AbandonEnrollment(ctx, "u1"); err != nil {
		t.Fatalf("abandon failed: %v", err)
	}

	status, err := engine.TwoFactorStatus(ctx, "u1")
	if err != nil {
		t.Fatalf("status failed: %v", err)
	}
	if status.PendingSetup || status.Enabled {
		t.Fatalf("expected clean state after abandon, got %+v", status)
	}

	if err := engine.AbandonEnrollment(ctx, "u1"); !errors.Is(err, ErrEnrollmentNotPending) {
		t.Fatalf("expected ErrEnrollmentNotPending on second abandon, got %v", err)
	}
}

func TestDisableTwoFactorWithTOTP(t *testing.T) {
	engine, _, done := newTestEngine(t, defaultTestConfig())
	defer done()
	ctx := context.Background()

	secret, _ := enrollTwoFactor(t, engine, "u1", "correct-horse")

	err := engine.DisableTwoFactor(ctx, "u1", "correct-horse", codeForStep(t, secret, engine.config.TOTP, 1))
	if err != nil {
		t.Fatalf("disable failed: %v", err)
	}

	status, err := engine.TwoFactorStatus(ctx, "u1")
	if err != nil {
		t.Fatalf("status failed: %v", err)
	}
	if status.Enabled || status.BackupCodesRemaining != 0 {
		t.Fatalf("expected two-factor fully removed, got %+v", status)
	}

	// With two-factor off the password alone signs in again.
	if _, err := engine.Authenticate(ctx, AuthRequest{AccountID: "u1", Password: "correct-horse"}); err != nil {
		t.Fatalf("expected password-only login after disable, got %v", err)
	}
}

func TestDisableTwoFactorWithBackupCode(t *testing.T) {
	engine, _, done := newTestEngine(t, defaultTestConfig())
	defer done()
	ctx := context.Background()

	_, codes := enrollTwoFactor(t, engine, "u1", "correct-horse")

	if err := engine.DisableTwoFactor(ctx, "u1", "correct-horse", codes[0]); err != nil {
		t.Fatalf("disable with backup code failed: %v", err)
	}

	status, err := engine.TwoFactorStatus(ctx, "u1")
	if err != nil {
		t.Fatalf("status failed: %v", err)
	}
	if status.Enabled {
		t.Fatal("expected two-factor disabled")
	}
}

func TestDisableTwoFactorWrongPassword(t *testing.T) {
	engine, _, done := newTestEngine(t, defaultTestConfig())
	defer done()

	secret, _ := enrollTwoFactor(t, engine, "u1", "correct-horse")

	err := engine.DisableTwoFactor(context.Background(), "u1", "wrong", codeForStep(t, secret, engine.config.TOTP, 1))
	if !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials, got %v", err)
	}
}

func TestDisableTwoFactorWrongCodeLeavesEnabled(t *testing.T) {
	engine, _, done := newTestEngine(t, defaultTestConfig())
	defer done()
	ctx := context.Background()

	enrollTwoFactor(t, engine, "u1", "correct-horse")

	err := engine.DisableTwoFactor(ctx, "u1", "correct-horse", "000000")
	if !errors.Is(err, ErrInvalidCode) {
		t.Fatalf("expected ErrInvalidCode, got %v", err)
	}

	status, err := engine.TwoFactorStatus(ctx, "u1")
	if err != nil {
		t.Fatalf("status failed: %v", err)
	}
	if !status.Enabled {
		t.Fatal("expected two-factor still enabled after rejected disable")
	}
	if status.BackupCodesRemaining != engine.config.BackupCodes.Count {
		t.Fatalf("expected backup codes untouched, got %d", status.BackupCodesRemaining)
	}
}

func TestDisableTwoFactorNotEnabled(t *testing.T) {
	engine, _, done := newTestEngine(t, defaultTestConfig())
	defer done()

	err := engine.DisableTwoFactor(context.Background(), "u1", "correct-horse", "123456")
	if !errors.Is(err, ErrTwoFactorNotEnabled) {
		t.Fatalf("expected ErrTwoFactorNotEnabled, got %v", err)
	}
}

func TestBackupCodesRejectedAfterDisable(t *testing.T) {
	engine, _, done := newTestEngine(t, defaultTestConfig())
	defer done()
	ctx := context.Background()

	secret, codes := enrollTwoFactor(t, engine, "u1", "correct-horse")
	if err := engine.DisableTwoFactor(ctx, "u1", "correct-horse", codeForStep(t, secret, engine.config.TOTP, 1)); err != nil {
		t.Fatalf("disable failed: %v", err)
	}

	// Re-enroll. Codes from the old vault must not survive the disable.
	newSecret, _ := enrollTwoFactor(t, engine, "u1", "correct-horse")
	_ = newSecret

	_, err := engine.Authenticate(ctx, AuthRequest{
		AccountID:    "u1",
		Password:     "correct-horse",
		SecondFactor: codes[0],
	})
	if !errors.Is(err, ErrAuthenticationFailed) {
		t.Fatalf("expected stale backup code rejected, got %v", err)
	}
}
