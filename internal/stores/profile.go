package stores

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/redis/go-redis/v9"
)

var (
	ErrRedisUnavailable = errors.New("redis unavailable")
	ErrUpdateConflict   = errors.New("concurrent profile update")
	ErrAlreadyEnabled   = errors.New("two-factor already enabled")
	ErrNotPending       = errors.New("no pending setup")
	ErrNotEnabled       = errors.New("two-factor not enabled")
	ErrCodeRejected     = errors.New("code rejected")
)

// Profile states. A missing profile record decodes as StateDisabled.
const (
	StateDisabled     uint8 = 0
	StatePendingSetup uint8 = 1
	StateEnabled      uint8 = 2
)

const profileSchemaVersion byte = 1

// maxRetries bounds WATCH retry attempts before surfacing ErrUpdateConflict.
const maxRetries = 4

// Profile is the per-account two-factor record.
//
// Secret is the committed TOTP secret, non-empty only in StateEnabled.
// PendingSecret is staged during enrollment and never used for login.
// LastUsedCounter is the highest accepted TOTP counter, the replay floor.
type Profile struct {
	State            uint8
	Secret           []byte
	PendingSecret    []byte
	PendingExpiresAt int64
	LastUsedCounter  int64
	UpdatedAt        int64
}

// PendingExpired reports whether a staged setup has passed its deadline.
func (p *Profile) PendingExpired(now time.Time) bool {
	return p.State == StatePendingSetup && p.PendingExpiresAt > 0 && now.Unix() >= p.PendingExpiresAt
}

func encodeProfile(p *Profile) []byte {
	var buf bytes.Buffer
	buf.WriteByte(profileSchemaVersion)
	buf.WriteByte(p.State)
	writeBytes(&buf, p.Secret)
	writeBytes(&buf, p.PendingSecret)
	writeInt64(&buf, p.PendingExpiresAt)
	writeInt64(&buf, p.LastUsedCounter)
	writeInt64(&buf, p.UpdatedAt)
	return buf.Bytes()
}

func decodeProfile(data []byte) (*Profile, error) {
	r := bytes.NewReader(data)

	version, err := r.ReadByte()
	if err != nil {
		return nil, fmt.Errorf("profile decode: %w", err)
	}
	if version != profileSchemaVersion {
		return nil, fmt.Errorf("profile decode: unsupported version %d", version)
	}

	p := &Profile{}
	if p.State, err = r.ReadByte(); err != nil {
		return nil, fmt.Errorf("profile decode: %w", err)
	}
	if p.Secret, err = readBytes(r); err != nil {
		return nil, fmt.Errorf("profile decode: %w", err)
	}
	if p.PendingSecret, err = readBytes(r); err != nil {
		return nil, fmt.Errorf("profile decode: %w", err)
	}
	if p.PendingExpiresAt, err = readInt64(r); err != nil {
		return nil, fmt.Errorf("profile decode: %w", err)
	}
	if p.LastUsedCounter, err = readInt64(r); err != nil {
		return nil, fmt.Errorf("profile decode: %w", err)
	}
	if p.UpdatedAt, err = readInt64(r); err != nil {
		return nil, fmt.Errorf("profile decode: %w", err)
	}
	return p, nil
}

func writeBytes(buf *bytes.Buffer, b []byte) {
	if len(b) > 255 {
		b = b[:255]
	}
	buf.WriteByte(byte(len(b)))
	buf.Write(b)
}

func readBytes(r *bytes.Reader) ([]byte, error) {
	n, err := r.ReadByte()
	if err != nil {
		return nil, err
	}
	if n == 0 {
		return nil, nil
	}
	b := make([]byte, n)
	if _, err := io.ReadFull(r, b); err != nil {
		return nil, err
	}
	return b, nil
}

func writeInt64(buf *bytes.Buffer, v int64) {
	var b [8]byte
	binary.BigEndian.PutUint64(b[:], uint64(v))
	buf.Write(b[:])
}

func readInt64(r *bytes.Reader) (int64, error) {
	var b [8]byte
	if _, err := io.ReadFull(r, b[:]); err != nil {
		return 0, err
	}
	return int64(binary.BigEndian.Uint64(b[:])), nil
}

// ProfileStore persists two-factor profiles and backup-code vaults.
type ProfileStore struct {
	redis redis.UniversalClient
}

// NewProfileStore creates a [ProfileStore] backed by the given Redis client.
func NewProfileStore(redisClient redis.UniversalClient) *ProfileStore {
	return &ProfileStore{redis: redisClient}
}

func profileKey(accountID string) string {
	return "2fp:" + accountID
}

func vaultKey(accountID string) string {
	return "2fv:" + accountID
}

type vaultOp int

const (
	vaultKeep vaultOp = iota
	vaultReplace
	vaultClear
)

// Get loads the profile for an account. A missing record returns a zero
// profile in StateDisabled, never an error.
func (s *ProfileStore) Get(ctx context.Context, accountID string) (*Profile, error) {
	data, err := s.redis.Get(ctx, profileKey(accountID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return &Profile{State: StateDisabled}, nil
		}
		return nil, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return decodeProfile(data)
}

// apply runs fn against the current profile inside a WATCH transaction
// covering the profile and vault keys, then commits the mutated profile
// and the requested vault operation atomically. Retries on conflict.
func (s *ProfileStore) apply(ctx context.Context, accountID string, fn func(p *Profile, now time.Time) (vaultOp, [][32]byte, error)) (*Profile, error) {
	pKey := profileKey(accountID)
	vKey := vaultKey(accountID)

	var result *Profile

	txn := func(tx *redis.Tx) error {
		var p *Profile
		data, err := tx.Get(ctx, pKey).Bytes()
		switch {
		case errors.Is(err, redis.Nil):
			p = &Profile{State: StateDisabled}
		case err != nil:
			return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
		default:
			if p, err = decodeProfile(data); err != nil {
				return err
			}
		}

		now := time.Now()
		op, hashes, err := fn(p, now)
		if err != nil {
			return err
		}
		p.UpdatedAt = now.Unix()
		result = p

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			if p.State == StateDisabled && len(p.Secret) == 0 && len(p.PendingSecret) == 0 {
				pipe.Del(ctx, pKey)
			} else {
				pipe.Set(ctx, pKey, encodeProfile(p), 0)
			}
			switch op {
			case vaultReplace:
				pipe.Del(ctx, vKey)
				if len(hashes) > 0 {
					members := make([]interface{}, len(hashes))
					for i := range hashes {
						members[i] = hashes[i][:]
					}
					pipe.SAdd(ctx, vKey, members...)
				}
			case vaultClear:
				pipe.Del(ctx, vKey)
			}
			return nil
		})
		return err
	}

	for attempt := 0; attempt < maxRetries; attempt++ {
		err := s.redis.Watch(ctx, txn, pKey, vKey)
		if err == nil {
			return result, nil
		}
		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		return nil, err
	}
	return nil, ErrUpdateConflict
}

// StageSetup stores a fresh pending secret for an account that is not
// already enabled. A stale pending setup is overwritten.
func (s *ProfileStore) StageSetup(ctx context.Context, accountID string, secret []byte, ttl time.Duration) error {
	_, err := s.apply(ctx, accountID, func(p *Profile, now time.Time) (vaultOp, [][32]byte, error) {
		if p.State == StateEnabled {
			return vaultKeep, nil, ErrAlreadyEnabled
		}
		p.State = StatePendingSetup
		p.PendingSecret = secret
		if ttl > 0 {
			p.PendingExpiresAt = now.Add(ttl).Unix()
		} else {
			p.PendingExpiresAt = 0
		}
		return vaultKeep, nil, nil
	})
	return err
}

// CommitSetup promotes the pending secret to the committed secret when
// verify accepts a code against it, and installs the backup-code vault.
// verify returns the matched counter so the replay floor starts correct.
func (s *ProfileStore) CommitSetup(ctx context.Context, accountID string, verify func(secret []byte) (int64, bool, error), hashes [][32]byte) error {
	_, err := s.apply(ctx, accountID, func(p *Profile, now time.Time) (vaultOp, [][32]byte, error) {
		if p.State != StatePendingSetup || len(p.PendingSecret) == 0 || p.PendingExpired(now) {
			return vaultKeep, nil, ErrNotPending
		}
		counter, ok, err := verify(p.PendingSecret)
		if err != nil {
			return vaultKeep, nil, err
		}
		if !ok {
			return vaultKeep, nil, ErrCodeRejected
		}
		p.State = StateEnabled
		p.Secret = p.PendingSecret
		p.PendingSecret = nil
		p.PendingExpiresAt = 0
		p.LastUsedCounter = counter
		return vaultReplace, hashes, nil
	})
	return err
}

// AbandonSetup discards a pending setup. Committed state is untouched.
func (s *ProfileStore) AbandonSetup(ctx context.Context, accountID string) error {
	_, err := s.apply(ctx, accountID, func(p *Profile, now time.Time) (vaultOp, [][32]byte, error) {
		if p.State != StatePendingSetup {
			return vaultKeep, nil, ErrNotPending
		}
		p.State = StateDisabled
		p.PendingSecret = nil
		p.PendingExpiresAt = 0
		return vaultKeep, nil, nil
	})
	return err
}

// Disable verifies a second factor and then removes the profile and the
// backup-code vault in one transaction. verifyTOTP gets the committed
// secret and the current replay floor; backupHash, when non-nil, is
// checked against the vault if the TOTP path rejects.
func (s *ProfileStore) Disable(ctx context.Context, accountID string, verifyTOTP func(secret []byte, lastUsed int64) (int64, bool, error), backupHash *[32]byte) error {
	pKey := profileKey(accountID)
	vKey := vaultKey(accountID)

	txn := func(tx *redis.Tx) error {
		data, err := tx.Get(ctx, pKey).Bytes()
		if errors.Is(err, redis.Nil) {
			return ErrNotEnabled
		}
		if err != nil {
			return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
		}
		p, err := decodeProfile(data)
		if err != nil {
			return err
		}
		if p.State != StateEnabled {
			return ErrNotEnabled
		}

		_, ok, err := verifyTOTP(p.Secret, p.LastUsedCounter)
		if err != nil {
			return err
		}
		if !ok {
			if backupHash == nil {
				return ErrCodeRejected
			}
			member, err := tx.SIsMember(ctx, vKey, backupHash[:]).Result()
			if err != nil {
				return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
			}
			if !member {
				return ErrCodeRejected
			}
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Del(ctx, pKey)
			pipe.Del(ctx, vKey)
			return nil
		})
		return err
	}

	for attempt := 0; attempt < maxRetries; attempt++ {
		err := s.redis.Watch(ctx, txn, pKey, vKey)
		if err == nil {
			return nil
		}
		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		return err
	}
	return ErrUpdateConflict
}

// VerifyTOTP runs verify against the committed secret and advances the
// replay floor to the matched counter on acceptance.
func (s *ProfileStore) VerifyTOTP(ctx context.Context, accountID string, verify func(secret []byte, lastUsed int64) (int64, bool, error)) error {
	_, err := s.apply(ctx, accountID, func(p *Profile, now time.Time) (vaultOp, [][32]byte, error) {
		if p.State != StateEnabled {
			return vaultKeep, nil, ErrNotEnabled
		}
		counter, ok, err := verify(p.Secret, p.LastUsedCounter)
		if err != nil {
			return vaultKeep, nil, err
		}
		if !ok {
			return vaultKeep, nil, ErrCodeRejected
		}
		if counter > p.LastUsedCounter {
			p.LastUsedCounter = counter
		}
		return vaultKeep, nil, nil
	})
	return err
}

// ConsumeBackupCode removes a hash from the vault. Returns true only for
// the caller whose SREM actually removed the member, so a code spends
// exactly once even under concurrent redemption.
func (s *ProfileStore) ConsumeBackupCode(ctx context.Context, accountID string, hash [32]byte) (bool, error) {
	removed, err := s.redis.SRem(ctx, vaultKey(accountID), hash[:]).Result()
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return removed == 1, nil
}

// BackupCodeCount returns the number of unused backup codes.
func (s *ProfileStore) BackupCodeCount(ctx context.Context, accountID string) (int, error) {
	n, err := s.redis.SCard(ctx, vaultKey(accountID)).Result()
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return int(n), nil
}

// ReplaceBackupCodes swaps the entire vault for an enabled account.
func (s *ProfileStore) ReplaceBackupCodes(ctx context.Context, accountID string, hashes [][32]byte) error {
	_, err := s.apply(ctx, accountID, func(p *Profile, now time.Time) (vaultOp, [][32]byte, error) {
		if p.State != StateEnabled {
			return vaultKeep, nil, ErrNotEnabled
		}
		return vaultReplace, hashes, nil
	})
	return err
}

// Ping verifies Redis connectivity.
func (s *ProfileStore) Ping(ctx context.Context) error {
	if err := s.redis.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return nil
}
