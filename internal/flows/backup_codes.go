package flows

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"math/big"
	"strings"
)

const BackupCodeAlphabet = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"

type BackupCodeMetrics struct {
	BackupCodeUsed   int
	BackupCodeFailed int
}

type BackupCodeEvents struct {
	BackupCodeUsed   string
	BackupCodeFailed string
}

type BackupCodeErrors struct {
	EngineNotReady        error
	BackupCodeUnavailable error
	BackupCodeInvalid     error
	BackupCodeRateLimited error
}

type BackupCodeDeps struct {
	ConsumeBackupCode func(context.Context, string, [32]byte) (bool, error)

	CheckLimiter         func(context.Context, string) error
	RecordLimiterFailure func(context.Context, string) error
	ResetLimiter         func(context.Context, string) error
	IsRateLimited        func(error) bool

	MetricInc func(int)
	EmitAudit func(context.Context, string, bool, string, string, error, func() map[string]string)

	Metrics BackupCodeMetrics
	Events  BackupCodeEvents
	Errors  BackupCodeErrors
}

// RunRedeemBackupCode canonicalizes and consumes a backup code for the
// account. Success means this caller removed the hash from the vault, so a
// code redeems exactly once even under concurrent attempts.
func RunRedeemBackupCode(ctx context.Context, accountID, code string, deps BackupCodeDeps) error {
	normalizeBackupCodeDeps(&deps)

	if deps.ConsumeBackupCode == nil || deps.CheckLimiter == nil || deps.RecordLimiterFailure == nil || deps.ResetLimiter == nil {
		return deps.Errors.EngineNotReady
	}

	if err := deps.CheckLimiter(ctx, accountID); err != nil {
		if deps.IsRateLimited(err) {
			return deps.Errors.BackupCodeRateLimited
		}
		return deps.Errors.BackupCodeUnavailable
	}

	canonical := CanonicalizeBackupCode(code)
	if canonical == "" {
		deps.MetricInc(deps.Metrics.BackupCodeFailed)
		if err := deps.RecordLimiterFailure(ctx, accountID); err != nil {
			if deps.IsRateLimited(err) {
				return deps.Errors.BackupCodeRateLimited
			}
			return deps.Errors.BackupCodeUnavailable
		}
		return deps.Errors.BackupCodeInvalid
	}

	ok, err := deps.ConsumeBackupCode(ctx, accountID, BackupCodeHash(accountID, canonical))
	if err != nil {
		return deps.Errors.BackupCodeUnavailable
	}
	if !ok {
		deps.MetricInc(deps.Metrics.BackupCodeFailed)
		deps.EmitAudit(ctx, deps.Events.BackupCodeFailed, false, accountID, "", deps.Errors.BackupCodeInvalid, nil)
		if err := deps.RecordLimiterFailure(ctx, accountID); err != nil {
			if deps.IsRateLimited(err) {
				return deps.Errors.BackupCodeRateLimited
			}
			return deps.Errors.BackupCodeUnavailable
		}
		return deps.Errors.BackupCodeInvalid
	}

	_ = deps.ResetLimiter(ctx, accountID)
	deps.MetricInc(deps.Metrics.BackupCodeUsed)
	deps.EmitAudit(ctx, deps.Events.BackupCodeUsed, true, accountID, "", nil, nil)
	return nil
}

// NewBackupCodeBatch generates count plaintext codes of the given length
// together with their vault hashes, bound to the account. The plaintext
// codes are shown to the caller once and never stored.
func NewBackupCodeBatch(accountID string, count, length int, randomIndex func(int) (int, error)) ([]string, [][32]byte, error) {
	codes := make([]string, 0, count)
	hashes := make([][32]byte, 0, count)
	for i := 0; i < count; i++ {
		raw, err := NewBackupCode(length, randomIndex)
		if err != nil {
			return nil, nil, err
		}
		canonical := CanonicalizeBackupCode(raw)
		hashes = append(hashes, BackupCodeHash(accountID, canonical))
		codes = append(codes, FormatBackupCode(raw))
	}
	return codes, hashes, nil
}

func NewBackupCode(length int, randomIndex func(int) (int, error)) (string, error) {
	if randomIndex == nil {
		randomIndex = cryptoRandomIndex
	}
	var b strings.Builder
	b.Grow(length)
	for i := 0; i < length; i++ {
		n, err := randomIndex(len(BackupCodeAlphabet))
		if err != nil {
			return "", err
		}
		b.WriteByte(BackupCodeAlphabet[n])
	}
	return b.String(), nil
}

func FormatBackupCode(code string) string {
	n := len(code)
	if n < 8 {
		return code
	}
	mid := n / 2
	return code[:mid] + "-" + code[mid:]
}

func CanonicalizeBackupCode(code string) string {
	s := strings.ToUpper(strings.TrimSpace(code))
	s = strings.ReplaceAll(s, "-", "")
	s = strings.ReplaceAll(s, " ", "")
	return s
}

// BackupCodeHash binds the code digest to the owning account so a code
// leaked from one vault cannot redeem against another.
func BackupCodeHash(accountID, canonicalCode string) [32]byte {
	data := make([]byte, 0, len(accountID)+1+len(canonicalCode))
	data = append(data, accountID...)
	data = append(data, 0)
	data = append(data, canonicalCode...)
	return sha256.Sum256(data)
}

func cryptoRandomIndex(max int) (int, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(int64(max)))
	if err != nil {
		return 0, err
	}
	return int(n.Int64()), nil
}

func normalizeBackupCodeDeps(deps *BackupCodeDeps) {
	if deps.MetricInc == nil {
		deps.MetricInc = func(int) {}
	}
	if deps.EmitAudit == nil {
		deps.EmitAudit = func(context.Context, string, bool, string, string, error, func() map[string]string) {}
	}
	if deps.IsRateLimited == nil {
		deps.IsRateLimited = func(error) bool { return false }
	}
}
