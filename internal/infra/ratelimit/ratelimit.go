package ratelimit

import (
	"errors"
	"strconv"
	"time"

	"cityos/internal/config"
	"cityos/internal/domain"
)

const DefaultMaxKeys = 10000

var ErrCapacity = errors.New("rate limiter capacity exceeded")

// Settings is the per-key budget applied by the gateway.
type Settings struct {
	Requests   int
	Window     time.Duration
	FailClosed bool
}

func (s Settings) Enabled() bool {
	return s.Requests > 0
}

func SettingsFrom(cfg config.Config) Settings {
	window := time.Duration(cfg.RateLimitWindowSeconds) * time.Second
	if window <= 0 {
		window = time.Minute
	}
	return Settings{
		Requests:   cfg.RateLimitRequests,
		Window:     window,
		FailClosed: cfg.RateLimitFailClosed,
	}
}

// New picks the redis limiter when REDIS_ADDR is set and the in-memory one
// otherwise.
func New(cfg config.Config) (domain.RateLimiter, error) {
	if cfg.RedisAddr != "" {
		limiter, err := NewRedisLimiter(cfg)
		if err != nil {
			return nil, err
		}
		return limiter, nil
	}
	return NewMemoryLimiter(MemoryLimiterConfig{MaxKeys: cfg.RateLimitMaxKeys}), nil
}

// KeyFor buckets tenant-scoped traffic per tenant and everything else per
// client address.
func KeyFor(rc domain.ResolvedContext, clientIP string) string {
	if rc.HasTenant() {
		return "tenant:" + rc.TenantID
	}
	return "anon:" + clientIP
}

// windowBounds aligns now to a window of the given length. Non-positive
// windows count as one second.
func windowBounds(now time.Time, window time.Duration) (time.Time, time.Time) {
	if window <= 0 {
		window = time.Second
	}
	start := now.Truncate(window)
	return start, start.Add(window)
}

func windowKey(prefix, bucket string, start time.Time) string {
	return prefix + bucket + ":" + strconv.FormatInt(start.UnixMilli(), 10)
}

// decide turns the post-increment count of a window into a decision.
func decide(count int64, limit int, resetAt time.Time) domain.RateLimitDecision {
	remaining := int64(limit) - count
	if remaining < 0 {
		remaining = 0
	}
	return domain.RateLimitDecision{
		Allowed:   count <= int64(limit),
		Limit:     limit,
		Remaining: int(remaining),
		ResetAt:   resetAt,
	}
}

func unlimited(limit int) domain.RateLimitDecision {
	return domain.RateLimitDecision{Allowed: true, Limit: limit, Remaining: limit}
}
