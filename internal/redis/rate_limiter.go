package redis

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// RateLimiter caps submissions per transformation type using a sliding-window
// count in Redis.
type RateLimiter interface {
	Allow(ctx context.Context, key string) (bool, error)
	Limit() int
}

type slidingWindowLimiter struct {
	client *redis.Client
	limit  int
	window time.Duration
}

// NewRateLimiter returns a Redis-backed sliding-window rate limiter.
// limit is the maximum number of submissions allowed per window for a key.
// A non-positive limit disables limiting.
func NewRateLimiter(client *redis.Client, limit int, window time.Duration) RateLimiter {
	if limit <= 0 {
		return unlimited{}
	}
	return &slidingWindowLimiter{client: client, limit: limit, window: window}
}

func (r *slidingWindowLimiter) Limit() int { return r.limit }

// Allow reports whether one more submission fits in the current window.
// Timestamps are kept in a sorted set scored by Unix nanoseconds.
func (r *slidingWindowLimiter) Allow(ctx context.Context, key string) (bool, error) {
	now := time.Now().UnixNano()
	windowStart := now - r.window.Nanoseconds()
	rkey := "taskagent:ratelimit:" + key

	pipe := r.client.TxPipeline()
	pipe.ZRemRangeByScore(ctx, rkey, "0", strconv.FormatInt(windowStart, 10))
	pipe.ZAdd(ctx, rkey, redis.Z{Score: float64(now), Member: strconv.FormatInt(now, 10)})
	countCmd := pipe.ZCard(ctx, rkey)
	pipe.Expire(ctx, rkey, r.window*2)

	if _, err := pipe.Exec(ctx); err != nil {
		return false, fmt.Errorf("rate limiter pipeline for %q: %w", key, err)
	}
	return countCmd.Val() <= int64(r.limit), nil
}

type unlimited struct{}

func (unlimited) Allow(context.Context, string) (bool, error) { return true, nil }
func (unlimited) Limit() int                                  { return 0 }
