package limiters

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

var (
	ErrSecondFactorRateLimited = errors.New("second factor rate limited")
	ErrSecondFactorUnavailable = errors.New("second factor limiter unavailable")
)

type SecondFactorConfig struct {
	MaxAttempts int
	Cooldown    time.Duration
}

// SecondFactorLimiter throttles failed TOTP and backup-code attempts
// per account with a fixed-window counter.
type SecondFactorLimiter struct {
	redis       redis.UniversalClient
	maxAttempts int
	cooldown    time.Duration
}

func NewSecondFactorLimiter(redisClient redis.UniversalClient, cfg SecondFactorConfig) *SecondFactorLimiter {
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 5
	}
	if cfg.Cooldown <= 0 {
		cfg.Cooldown = time.Minute
	}
	return &SecondFactorLimiter{
		redis:       redisClient,
		maxAttempts: cfg.MaxAttempts,
		cooldown:    cfg.Cooldown,
	}
}

func (l *SecondFactorLimiter) key(accountID string) string {
	return "tfa:" + accountID
}

func (l *SecondFactorLimiter) Check(ctx context.Context, accountID string) error {
	if l == nil || l.redis == nil {
		return nil
	}
	count, err := l.redis.Get(ctx, l.key(accountID)).Int64()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil
		}
		return fmt.Errorf("%w: %v", ErrSecondFactorUnavailable, err)
	}
	if int(count) >= l.maxAttempts {
		return ErrSecondFactorRateLimited
	}
	return nil
}

func (l *SecondFactorLimiter) RecordFailure(ctx context.Context, accountID string) error {
	if l == nil || l.redis == nil {
		return nil
	}
	count, err := l.redis.Incr(ctx, l.key(accountID)).Result()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrSecondFactorUnavailable, err)
	}
	if count == 1 {
		if err := l.redis.Expire(ctx, l.key(accountID), l.cooldown).Err(); err != nil {
			return fmt.Errorf("%w: %v", ErrSecondFactorUnavailable, err)
		}
	}
	if int(count) >= l.maxAttempts {
		return ErrSecondFactorRateLimited
	}
	return nil
}

func (l *SecondFactorLimiter) Reset(ctx context.Context, accountID string) error {
	if l == nil || l.redis == nil {
		return nil
	}
	if err := l.redis.Del(ctx, l.key(accountID)).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrSecondFactorUnavailable, err)
	}
	return nil
}
