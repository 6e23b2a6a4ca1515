package rate

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Config holds limiter budgets. A zero Max disables that limit.
type Config struct {
	Prefix        string
	RepairMax     int
	RepairWindow  time.Duration
	RefreshMax    int
	RefreshWindow time.Duration
}

// Limiter enforces per-session repair and refresh budgets using Redis
// counters.
type Limiter struct {
	redis  redis.UniversalClient
	config Config
}

// New creates a rate [Limiter] backed by the given Redis client.
func New(redisClient redis.UniversalClient, cfg Config) *Limiter {
	if cfg.Prefix == "" {
		cfg.Prefix = "sf"
	}
	return &Limiter{
		redis:  redisClient,
		config: cfg,
	}
}

// AllowRepair counts one repair attempt for the session and fails with
// ErrRateLimited once the window budget is spent.
func (l *Limiter) AllowRepair(ctx context.Context, sessionID string) error {
	return l.allow(ctx, l.repairKey(sessionID), l.config.RepairMax, l.config.RepairWindow)
}

// AllowRefresh counts one refresh attempt for the session.
func (l *Limiter) AllowRefresh(ctx context.Context, sessionID string) error {
	return l.allow(ctx, l.refreshKey(sessionID), l.config.RefreshMax, l.config.RefreshWindow)
}

// RepairAttempts returns the attempts recorded in the current window.
func (l *Limiter) RepairAttempts(ctx context.Context, sessionID string) (int, error) {
	count, err := l.redis.Get(ctx, l.repairKey(sessionID)).Int64()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return 0, nil
		}
		return 0, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	if count < 0 {
		return 0, nil
	}
	return int(count), nil
}

// Reset clears both counters for the session.
func (l *Limiter) Reset(ctx context.Context, sessionID string) error {
	if err := l.redis.Del(ctx, l.repairKey(sessionID), l.refreshKey(sessionID)).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return nil
}

func (l *Limiter) allow(ctx context.Context, key string, max int, window time.Duration) error {
	if l == nil || max <= 0 {
		return nil
	}

	count, err := l.incrementWithTTL(ctx, key, window)
	if err != nil {
		return err
	}
	if count > int64(max) {
		return ErrRateLimited
	}
	return nil
}

func (l *Limiter) incrementWithTTL(ctx context.Context, key string, ttl time.Duration) (int64, error) {
	count, err := l.redis.Incr(ctx, key).Result()
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}

	// Fixed-window semantics: set TTL only for the first hit in the window.
	if count == 1 && ttl > 0 {
		if err := l.redis.Expire(ctx, key, ttl).Err(); err != nil {
			return 0, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
		}
	}

	return count, nil
}

func (l *Limiter) repairKey(sessionID string) string {
	return l.config.Prefix + ":rr:" + sessionID
}

func (l *Limiter) refreshKey(sessionID string) string {
	return l.config.Prefix + ":rf:" + sessionID
}
