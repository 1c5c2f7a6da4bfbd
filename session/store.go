package session

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"math"
	"math/big"
	"time"

	"github.com/redis/go-redis/v9"
)

// ErrRedisUnavailable is an exported constant or variable used by the two-factor engine.
var ErrRedisUnavailable = errors.New("redis unavailable")

const minSlidingTTL = time.Second

const deleteSessionScript = `
local existed = redis.call("EXISTS", KEYS[1])
redis.call("ZREM", KEYS[2], ARGV[1])
if existed == 1 then
  redis.call("DEL", KEYS[1])
end
return existed
`

var deleteSessionLua = redis.NewScript(deleteSessionScript)

// Store is a Redis-backed session store that handles persistence, expiration,
// sliding window renewal, and the per-account recency index.
//
//	Docs: docs/session.md
type Store struct {
	redis         redis.UniversalClient
	prefix        string
	sliding       bool
	jitterEnabled bool
	jitterRange   time.Duration
}

// NewStore creates a session [Store] backed by the given Redis client.
// prefix sets the Redis key namespace; sliding, jitterEnabled, and
// jitterRange control expiration behavior.
func NewStore(
	redis redis.UniversalClient,
	prefix string,
	sliding bool,
	jitterEnabled bool,
	jitterRange time.Duration,
) *Store {
	return &Store{
		redis:         redis,
		prefix:        prefix,
		sliding:       sliding,
		jitterEnabled: jitterEnabled,
		jitterRange:   jitterRange,
	}
}

func (s *Store) key(sessionID string) string {
	return s.prefix + ":" + sessionID
}

func (s *Store) indexKey(accountID string) string {
	return s.prefix + "x:" + accountID
}

// Save persists a [Session] to Redis with the given TTL and adds it to the
// account's recency index.
//
//	Performance: 3 Redis commands in one MULTI (SET + ZADD + EXPIRE).
func (s *Store) Save(ctx context.Context, sess *Session, ttl time.Duration) error {
	data, err := Encode(sess)
	if err != nil {
		return err
	}

	sessionKey := s.key(sess.SessionID)
	indexKey := s.indexKey(sess.AccountID)

	_, err = s.redis.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, sessionKey, data, ttl)
		pipe.ZAdd(ctx, indexKey, redis.Z{Score: float64(sess.LastActiveAt), Member: sess.SessionID})
		pipe.Expire(ctx, indexKey, ttl)
		return nil
	})
	if err != nil {
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}

	return nil
}

// Get retrieves a session by ID. Returns redis.Nil when the session does
// not exist or has passed its stored expiry. When sliding expiration is on,
// the key TTL is extended toward the remaining absolute lifetime.
//
//	Performance: 1 Redis GET, plus EXPIRE when sliding.
func (s *Store) Get(ctx context.Context, sessionID string) (*Session, error) {
	key := s.key(sessionID)

	data, err := s.redis.Get(ctx, key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}

	sess, err := Decode(data)
	if err != nil {
		return nil, err
	}
	sess.SessionID = sessionID

	now := time.Now()
	remaining := time.Unix(sess.ExpiresAt, 0).Sub(now)
	if remaining <= 0 {
		_ = s.deleteSessionAndIndex(ctx, sess.AccountID, sessionID)
		return nil, redis.Nil
	}

	if s.sliding {
		nextTTL, err := s.nextSlidingTTL(remaining)
		if err != nil {
			return nil, err
		}
		if err := s.redis.Expire(ctx, key, nextTTL).Err(); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
		}
	}

	return sess, nil
}

// Touch refreshes a session's last-activity timestamp and its position in
// the recency index. Concurrent touches of the same session do not error;
// the later write wins.
func (s *Store) Touch(ctx context.Context, sessionID string) (*Session, error) {
	sess, err := s.Get(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	sess.LastActiveAt = time.Now().Unix()
	data, err := Encode(sess)
	if err != nil {
		return nil, err
	}

	_, err = s.redis.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, s.key(sessionID), data, redis.KeepTTL)
		pipe.ZAdd(ctx, s.indexKey(sess.AccountID), redis.Z{Score: float64(sess.LastActiveAt), Member: sessionID})
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}

	return sess, nil
}

// ListForAccount returns the account's live sessions, most recently active
// first. Index entries whose session key has expired are pruned on the way.
func (s *Store) ListForAccount(ctx context.Context, accountID string) ([]*Session, error) {
	indexKey := s.indexKey(accountID)

	sessionIDs, err := s.redis.ZRevRange(ctx, indexKey, 0, -1).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return []*Session{}, nil
		}
		return nil, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	if len(sessionIDs) == 0 {
		return []*Session{}, nil
	}

	pipe := s.redis.Pipeline()
	cmds := make([]*redis.StringCmd, len(sessionIDs))
	for i, sid := range sessionIDs {
		cmds[i] = pipe.Get(ctx, s.key(sid))
	}
	if _, err := pipe.Exec(ctx); err != nil && !errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}

	sessions := make([]*Session, 0, len(sessionIDs))
	var stale []interface{}
	nowUnix := time.Now().Unix()
	for i, cmd := range cmds {
		data, cmdErr := cmd.Bytes()
		if cmdErr != nil {
			if errors.Is(cmdErr, redis.Nil) {
				stale = append(stale, sessionIDs[i])
				continue
			}
			return nil, fmt.Errorf("%w: %v", ErrRedisUnavailable, cmdErr)
		}

		sess, decErr := Decode(data)
		if decErr != nil {
			stale = append(stale, sessionIDs[i])
			continue
		}
		sess.SessionID = sessionIDs[i]
		if nowUnix >= sess.ExpiresAt {
			stale = append(stale, sessionIDs[i])
			continue
		}
		sessions = append(sessions, sess)
	}

	if len(stale) > 0 {
		_ = s.redis.ZRem(ctx, indexKey, stale...).Err()
	}

	return sessions, nil
}

// Delete removes one session and its index entry. Returns false when the
// session did not exist.
func (s *Store) Delete(ctx context.Context, accountID, sessionID string) (bool, error) {
	result, err := deleteSessionLua.Run(
		ctx,
		s.redis,
		[]string{s.key(sessionID), s.indexKey(accountID)},
		sessionID,
	).Result()
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}

	existed, ok := result.(int64)
	if !ok {
		return false, fmt.Errorf("%w: invalid delete script response", ErrRedisUnavailable)
	}
	return existed == 1, nil
}

// DeleteOthers removes all of the account's sessions except keepSessionID.
// Returns the number of sessions removed.
func (s *Store) DeleteOthers(ctx context.Context, accountID, keepSessionID string) (int, error) {
	sessionIDs, err := s.redis.ZRange(ctx, s.indexKey(accountID), 0, -1).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return 0, nil
		}
		return 0, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}

	removed := 0
	for _, sid := range sessionIDs {
		if sid == keepSessionID {
			continue
		}
		existed, err := s.Delete(ctx, accountID, sid)
		if err != nil {
			return removed, err
		}
		if existed {
			removed++
		}
	}
	return removed, nil
}

// DeleteAllForAccount removes every session for an account plus the index.
//
// ATOMICITY NOTE: This operation is NOT fully atomic. It reads the index,
// then deletes the session keys and the index in one MULTI. A session
// created between the read and delete phases will not be captured by this
// call; it will expire naturally or be caught by the next invocation.
func (s *Store) DeleteAllForAccount(ctx context.Context, accountID string) (int, error) {
	indexKey := s.indexKey(accountID)

	sessionIDs, err := s.redis.ZRange(ctx, indexKey, 0, -1).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return 0, nil
		}
		return 0, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}

	sessionKeys := make([]string, 0, len(sessionIDs))
	for _, sid := range sessionIDs {
		sessionKeys = append(sessionKeys, s.key(sid))
	}

	_, err = s.redis.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		if len(sessionKeys) > 0 {
			pipe.Del(ctx, sessionKeys...)
		}
		pipe.Del(ctx, indexKey)
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}

	return len(sessionIDs), nil
}

// Ping returns a point-in-time Redis availability check and latency.
func (s *Store) Ping(ctx context.Context) (time.Duration, error) {
	start := time.Now()
	if err := s.redis.Ping(ctx).Err(); err != nil {
		return time.Since(start), fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return time.Since(start), nil
}

func (s *Store) deleteSessionAndIndex(ctx context.Context, accountID, sessionID string) error {
	_, err := deleteSessionLua.Run(
		ctx,
		s.redis,
		[]string{s.key(sessionID), s.indexKey(accountID)},
		sessionID,
	).Result()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return nil
}

func (s *Store) nextSlidingTTL(remainingAbsolute time.Duration) (time.Duration, error) {
	nextTTL := remainingAbsolute

	if s.jitterEnabled && s.jitterRange > 0 {
		jitter, err := randomJitter(s.jitterRange)
		if err != nil {
			return 0, err
		}
		nextTTL += jitter
	}

	if nextTTL > remainingAbsolute {
		nextTTL = remainingAbsolute
	}

	minTTL := minSlidingTTL
	if remainingAbsolute < minTTL {
		minTTL = remainingAbsolute
	}
	if nextTTL < minTTL {
		nextTTL = minTTL
	}

	return nextTTL, nil
}

func randomJitter(jitterRange time.Duration) (time.Duration, error) {
	if jitterRange <= 0 {
		return 0, nil
	}

	max := jitterRange.Nanoseconds()
	if max > (math.MaxInt64-1)/2 {
		return 0, errors.New("jitter range too large")
	}
	span := max*2 + 1

	n, err := rand.Int(rand.Reader, big.NewInt(span))
	if err != nil {
		return 0, err
	}

	return time.Duration(n.Int64() - max), nil
}
