//go:build integration
// +build integration

package ratelimit

import (
	"context"
	"os"
	"testing"
	"time"

	"cityos/internal/config"

	"github.com/google/uuid"
)

func TestRedisLimiterWindow(t *testing.T) {
	addr := os.Getenv("REDIS_ADDR_TEST")
	if addr == "" {
		t.Skip("REDIS_ADDR_TEST not set")
	}
	now := time.Now().Truncate(time.Minute).Add(10 * time.Second)
	limiter, err := NewRedisLimiter(
		config.Config{RedisAddr: addr, RedisPassword: os.Getenv("REDIS_PASSWORD_TEST")},
		WithRedisClock(func() time.Time { return now }),
		WithRedisKeyPrefix("cityos:test:"+uuid.NewString()+":"),
	)
	if err != nil {
		t.Fatalf("new limiter: %v", err)
	}
	t.Cleanup(func() { _ = limiter.Close() })

	ctx := context.Background()
	for i := 0; i < 2; i++ {
		d, err := limiter.Allow(ctx, "tenant:t1", 2, time.Minute)
		if err != nil || !d.Allowed {
			t.Fatalf("request %d: expected allowed, got %+v %v", i, d, err)
		}
	}
	d, err := limiter.Allow(ctx, "tenant:t1", 2, time.Minute)
	if err != nil {
		t.Fatalf("allow: %v", err)
	}
	if d.Allowed || d.Remaining != 0 {
		t.Fatalf("expected third request denied, got %+v", d)
	}
	if !d.ResetAt.Equal(now.Truncate(time.Minute).Add(time.Minute)) {
		t.Fatalf("expected reset at window end, got %s", d.ResetAt)
	}

	if d, err := limiter.Allow(ctx, "tenant:t2", 2, time.Minute); err != nil || !d.Allowed {
		t.Fatalf("expected other tenant allowed, got %+v %v", d, err)
	}

	now = now.Add(time.Minute)
	if d, err := limiter.Allow(ctx, "tenant:t1", 2, time.Minute); err != nil || !d.Allowed {
		t.Fatalf("expected new window allowed, got %+v %v", d, err)
	}
}
