package rate

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func newLimiterTest(t *testing.T, cfg Config) (*Limiter, *miniredis.Miniredis, func()) {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis start: %v", err)
	}
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	return New(rdb, cfg), mr, func() {
		rdb.Close()
		mr.Close()
	}
}

func TestCheckLoginAllowsUnderBudget(t *testing.T) {
	l, _, done := newLimiterTest(t, Config{
		MaxLoginAttempts:      3,
		LoginCooldownDuration: time.Minute,
	})
	defer done()
	ctx := context.Background()

	if err := l.CheckLogin(ctx, "acct-1", ""); err != nil {
		t.Fatalf("expected fresh account allowed, got %v", err)
	}
	for i := 0; i < 3; i++ {
		if err := l.IncrementLogin(ctx, "acct-1", ""); err != nil {
			t.Fatalf("increment %d failed: %v", i, err)
		}
	}
	if err := l.CheckLogin(ctx, "acct-1", ""); err != nil {
		t.Fatalf("expected account at budget still allowed, got %v", err)
	}
}

func TestIncrementPastBudgetRateLimits(t *testing.T) {
	l, _, done := newLimiterTest(t, Config{
		MaxLoginAttempts:      2,
		LoginCooldownDuration: time.Minute,
	})
	defer done()
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		if err := l.IncrementLogin(ctx, "acct-1", ""); err != nil {
			t.Fatalf("increment %d failed: %v", i, err)
		}
	}
	if err := l.IncrementLogin(ctx, "acct-1", ""); !errors.Is(err, ErrRateLimited) {
		t.Fatalf("expected ErrRateLimited past budget, got %v", err)
	}
	if err := l.CheckLogin(ctx, "acct-1", ""); !errors.Is(err, ErrRateLimited) {
		t.Fatalf("expected check to rate limit, got %v", err)
	}
}

func TestIPThrottleIndependentOfAccount(t *testing.T) {
	l, _, done := newLimiterTest(t, Config{
		EnableIPThrottle:      true,
		MaxLoginAttempts:      2,
		LoginCooldownDuration: time.Minute,
	})
	defer done()
	ctx := context.Background()

	// Burn the IP budget across different accounts.
	for i := 0; i < 3; i++ {
		_ = l.IncrementLogin(ctx, "acct-a", "203.0.113.5")
	}

	if err := l.CheckLogin(ctx, "acct-fresh", "203.0.113.5"); !errors.Is(err, ErrRateLimited) {
		t.Fatalf("expected IP throttle to trip for fresh account, got %v", err)
	}
	if err := l.CheckLogin(ctx, "acct-fresh", "198.51.100.1"); err != nil {
		t.Fatalf("expected different IP allowed, got %v", err)
	}
}

func TestResetLoginClearsCounters(t *testing.T) {
	l, _, done := newLimiterTest(t, Config{
		EnableIPThrottle:      true,
		MaxLoginAttempts:      2,
		LoginCooldownDuration: time.Minute,
	})
	defer done()
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		_ = l.IncrementLogin(ctx, "acct-1", "203.0.113.5")
	}
	if err := l.ResetLogin(ctx, "acct-1", "203.0.113.5"); err != nil {
		t.Fatalf("reset failed: %v", err)
	}
	if err := l.CheckLogin(ctx, "acct-1", "203.0.113.5"); err != nil {
		t.Fatalf("expected allowed after reset, got %v", err)
	}
	n, err := l.GetLoginAttempts(ctx, "acct-1")
	if err != nil {
		t.Fatalf("get attempts failed: %v", err)
	}
	if n != 0 {
		t.Fatalf("expected 0 attempts after reset, got %d", n)
	}
}

func TestWindowExpiryClearsBudget(t *testing.T) {
	l, mr, done := newLimiterTest(t, Config{
		MaxLoginAttempts:      1,
		LoginCooldownDuration: time.Minute,
	})
	defer done()
	ctx := context.Background()

	_ = l.IncrementLogin(ctx, "acct-1", "")
	if err := l.IncrementLogin(ctx, "acct-1", ""); !errors.Is(err, ErrRateLimited) {
		t.Fatalf("expected rate limited, got %v", err)
	}

	mr.FastForward(2 * time.Minute)

	if err := l.CheckLogin(ctx, "acct-1", ""); err != nil {
		t.Fatalf("expected fresh window after cooldown, got %v", err)
	}
}

func TestGetLoginAttemptsMissingKeyIsZero(t *testing.T) {
	l, _, done := newLimiterTest(t, Config{
		MaxLoginAttempts:      5,
		LoginCooldownDuration: time.Minute,
	})
	defer done()

	n, err := l.GetLoginAttempts(context.Background(), "nobody")
	if err != nil {
		t.Fatalf("get attempts failed: %v", err)
	}
	if n != 0 {
		t.Fatalf("expected 0 for missing key, got %d", n)
	}
}
