package ratelimit

import (
	"context"
	"fmt"
	"strings"
	"time"

	"cityos/internal/config"
	"cityos/internal/domain"

	"github.com/redis/go-redis/v9"
)

const (
	DefaultRedisKeyPrefix = "cityos:ratelimit:"

	// Window keys outlive their window briefly so replicas with slightly
	// skewed clocks still land on a live counter.
	redisExpiryGrace = 5 * time.Second
)

// RedisLimiter shares clock-aligned windows across gateway replicas. Every
// bucket gets one counter per window, named after the window start.
type RedisLimiter struct {
	client redis.UniversalClient
	prefix string
	now    func() time.Time
}

type RedisOption func(*RedisLimiter)

func WithRedisClock(now func() time.Time) RedisOption {
	return func(l *RedisLimiter) {
		if now != nil {
			l.now = now
		}
	}
}

func WithRedisKeyPrefix(prefix string) RedisOption {
	return func(l *RedisLimiter) {
		if prefix != "" {
			l.prefix = prefix
		}
	}
}

func NewRedisLimiter(cfg config.Config, opts ...RedisOption) (*RedisLimiter, error) {
	addr := strings.TrimSpace(cfg.RedisAddr)
	if addr == "" {
		return nil, fmt.Errorf("%w: REDIS_ADDR is required for the redis rate limiter", domain.ErrConfig)
	}
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	return newRedisLimiter(client, opts...), nil
}

func newRedisLimiter(client redis.UniversalClient, opts ...RedisOption) *RedisLimiter {
	l := &RedisLimiter{client: client, prefix: DefaultRedisKeyPrefix, now: time.Now}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Allow counts one request against bucket (see KeyFor) in the current window.
func (l *RedisLimiter) Allow(ctx context.Context, bucket string, limit int, window time.Duration) (domain.RateLimitDecision, error) {
	if limit <= 0 {
		return unlimited(limit), nil
	}
	start, end := windowBounds(l.now(), window)
	key := windowKey(l.prefix, bucket, start)

	pipe := l.client.TxPipeline()
	count := pipe.Incr(ctx, key)
	pipe.PExpireAt(ctx, key, end.Add(redisExpiryGrace))
	if _, err := pipe.Exec(ctx); err != nil {
		return domain.RateLimitDecision{}, fmt.Errorf("count %s: %w", bucket, err)
	}
	return decide(count.Val(), limit, end), nil
}

func (l *RedisLimiter) Close() error {
	return l.client.Close()
}
