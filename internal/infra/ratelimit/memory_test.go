package ratelimit

import (
	"context"
	"errors"
	"testing"
	"time"

	"cityos/internal/config"
	"cityos/internal/domain"
)

func TestMemoryLimiterWindow(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	limiter := NewMemoryLimiter(MemoryLimiterConfig{Now: func() time.Time { return now }})
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		d, err := limiter.Allow(ctx, "tenant:t1", 3, time.Minute)
		if err != nil || !d.Allowed {
			t.Fatalf("request %d: expected allowed, got %+v %v", i, d, err)
		}
		if d.Remaining != 2-i {
			t.Fatalf("request %d: expected remaining %d, got %d", i, 2-i, d.Remaining)
		}
	}
	d, err := limiter.Allow(ctx, "tenant:t1", 3, time.Minute)
	if err != nil || d.Allowed {
		t.Fatalf("expected fourth request denied, got %+v %v", d, err)
	}
	if d.ResetAt != now.Add(time.Minute) {
		t.Fatalf("unexpected reset %s", d.ResetAt)
	}

	if d, _ := limiter.Allow(ctx, "tenant:t2", 3, time.Minute); !d.Allowed {
		t.Fatal("expected separate key to have its own budget")
	}

	now = now.Add(time.Minute)
	if d, _ := limiter.Allow(ctx, "tenant:t1", 3, time.Minute); !d.Allowed {
		t.Fatal("expected new window to reset the budget")
	}
}

func TestMemoryLimiterCapacity(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	limiter := NewMemoryLimiter(MemoryLimiterConfig{Now: func() time.Time { return now }, MaxKeys: 2})
	ctx := context.Background()

	for _, key := range []string{"a", "b"} {
		if _, err := limiter.Allow(ctx, key, 1, time.Second); err != nil {
			t.Fatalf("allow %s: %v", key, err)
		}
	}
	if _, err := limiter.Allow(ctx, "c", 1, time.Second); !errors.Is(err, ErrCapacity) {
		t.Fatalf("expected capacity error, got %v", err)
	}
	now = now.Add(time.Second)
	if _, err := limiter.Allow(ctx, "c", 1, time.Second); err != nil {
		t.Fatalf("expected expired keys collected, got %v", err)
	}
}

func TestMemoryLimiterUnlimited(t *testing.T) {
	limiter := NewMemoryLimiter(MemoryLimiterConfig{})
	d, err := limiter.Allow(context.Background(), "k", 0, time.Second)
	if err != nil || !d.Allowed {
		t.Fatalf("expected zero limit to allow, got %+v %v", d, err)
	}
}

func TestKeyFor(t *testing.T) {
	if got := KeyFor(domain.ResolvedContext{TenantID: "t1"}, "10.0.0.1"); got != "tenant:t1" {
		t.Fatalf("unexpected tenant key %q", got)
	}
	if got := KeyFor(domain.UnresolvedContext(domain.AuthClaims{}), "10.0.0.1"); got != "anon:10.0.0.1" {
		t.Fatalf("unexpected anonymous key %q", got)
	}
}

func TestSettingsFrom(t *testing.T) {
	s := SettingsFrom(config.Config{RateLimitRequests: 10})
	if !s.Enabled() || s.Window != time.Minute {
		t.Fatalf("unexpected settings %+v", s)
	}
	if SettingsFrom(config.Config{}).Enabled() {
		t.Fatal("expected zero requests to disable limiting")
	}
}
