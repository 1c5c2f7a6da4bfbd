package stores

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const historySchemaVersion byte = 1

// Attempt is a single login attempt record.
type Attempt struct {
	At      int64
	Origin  string
	Success bool
}

func encodeAttempt(a Attempt) []byte {
	var buf bytes.Buffer
	buf.WriteByte(historySchemaVersion)
	if a.Success {
		buf.WriteByte(1)
	} else {
		buf.WriteByte(0)
	}
	writeInt64(&buf, a.At)
	writeBytes(&buf, []byte(a.Origin))
	return buf.Bytes()
}

func decodeAttempt(data []byte) (Attempt, error) {
	r := bytes.NewReader(data)

	version, err := r.ReadByte()
	if err != nil {
		return Attempt{}, fmt.Errorf("attempt decode: %w", err)
	}
	if version != historySchemaVersion {
		return Attempt{}, fmt.Errorf("attempt decode: unsupported version %d", version)
	}

	var a Attempt
	success, err := r.ReadByte()
	if err != nil {
		return Attempt{}, fmt.Errorf("attempt decode: %w", err)
	}
	a.Success = success == 1
	if a.At, err = readInt64(r); err != nil {
		return Attempt{}, fmt.Errorf("attempt decode: %w", err)
	}
	origin, err := readBytes(r)
	if err != nil {
		return Attempt{}, fmt.Errorf("attempt decode: %w", err)
	}
	a.Origin = string(origin)
	return a, nil
}

// HistoryStore keeps a capped, newest-first login attempt log per account.
type HistoryStore struct {
	redis      redis.UniversalClient
	maxEntries int
	retention  time.Duration
}

// NewHistoryStore creates a [HistoryStore]. maxEntries bounds the list
// length; retention, when positive, sets a rolling TTL on the whole list.
func NewHistoryStore(redisClient redis.UniversalClient, maxEntries int, retention time.Duration) *HistoryStore {
	if maxEntries <= 0 {
		maxEntries = 10
	}
	return &HistoryStore{
		redis:      redisClient,
		maxEntries: maxEntries,
		retention:  retention,
	}
}

func historyKey(accountID string) string {
	return "2fh:" + accountID
}

// Append records an attempt and trims the list to the cap.
func (s *HistoryStore) Append(ctx context.Context, accountID string, attempt Attempt) error {
	key := historyKey(accountID)
	_, err := s.redis.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.LPush(ctx, key, encodeAttempt(attempt))
		pipe.LTrim(ctx, key, 0, int64(s.maxEntries-1))
		if s.retention > 0 {
			pipe.Expire(ctx, key, s.retention)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return nil
}

// Recent returns up to limit attempts, newest first. Corrupt entries are
// skipped rather than failing the whole read.
func (s *HistoryStore) Recent(ctx context.Context, accountID string, limit int) ([]Attempt, error) {
	if limit <= 0 || limit > s.maxEntries {
		limit = s.maxEntries
	}
	raw, err := s.redis.LRange(ctx, historyKey(accountID), 0, int64(limit-1)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}

	attempts := make([]Attempt, 0, len(raw))
	for _, entry := range raw {
		a, err := decodeAttempt([]byte(entry))
		if err != nil {
			continue
		}
		attempts = append(attempts, a)
	}
	return attempts, nil
}
