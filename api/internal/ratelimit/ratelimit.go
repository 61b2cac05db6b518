// Package ratelimit implements the sliding-window limiter (spec §4.1: "at
// most RateLimitCapacity uploads per RateLimitWindow per user"), and is also
// reused by the supplemented upload-velocity guard (SPEC_FULL.md §7) under a
// different key prefix and capacity/window pair. There is no Redis client
// anywhere in the example pack; this is grounded instead in original_source's
// Redis+RQ rate limiter (see SPEC_FULL.md §4 domain stack), expressed the
// idiomatic Go way with go-redis sorted sets.
package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

type Limiter struct {
	rdb      *redis.Client
	prefix   string
	capacity int
	window   time.Duration
}

// New builds the primary per-user rate limiter, keyed "ratelimit:<key>".
func New(rdb *redis.Client, capacity int, window time.Duration) *Limiter {
	return NewNamed(rdb, "ratelimit", capacity, window)
}

// NewNamed builds a sliding-window limiter under its own key namespace, so
// multiple independent limiters (rate-limit, upload-velocity) can share one
// Redis instance without colliding on the same per-user keys.
func NewNamed(rdb *redis.Client, name string, capacity int, window time.Duration) *Limiter {
	return &Limiter{rdb: rdb, prefix: name, capacity: capacity, window: window}
}

// Allow reports whether one more attempt for key falls within the configured
// capacity for the trailing window, and — per spec §4.1's literal algorithm
// — only records the attempt (ZADD) when it is allowed; a rejected attempt
// never gets added to the set. On rejection, wait is the time remaining
// until the oldest surviving entry ages out of the window, the "wait N
// seconds" hint spec §4.1 and fixture S6 require. The key's TTL is extended
// to 2×window on every accepted attempt.
func (l *Limiter) Allow(ctx context.Context, key string) (bool, time.Duration, error) {
	now := time.Now()
	zkey := l.prefix + ":" + key
	cutoff := now.Add(-l.window)

	if err := l.rdb.ZRemRangeByScore(ctx, zkey, "-inf", fmt.Sprintf("%d", cutoff.UnixNano())).Err(); err != nil {
		return false, 0, fmt.Errorf("ratelimit: trim %s: %w", key, err)
	}

	count, err := l.rdb.ZCard(ctx, zkey).Result()
	if err != nil {
		return false, 0, fmt.Errorf("ratelimit: card %s: %w", key, err)
	}

	if count >= int64(l.capacity) {
		wait := l.window
		oldest, err := l.rdb.ZRangeWithScores(ctx, zkey, 0, 0).Result()
		if err == nil && len(oldest) == 1 {
			oldestAt := time.Unix(0, int64(oldest[0].Score))
			if remaining := l.window - now.Sub(oldestAt); remaining > 0 {
				wait = remaining
			} else {
				wait = 0
			}
		}
		return false, wait, nil
	}

	member := now.UnixNano()
	pipe := l.rdb.TxPipeline()
	pipe.ZAdd(ctx, zkey, redis.Z{Score: float64(member), Member: member})
	pipe.Expire(ctx, zkey, 2*l.window)
	if _, err := pipe.Exec(ctx); err != nil {
		return false, 0, fmt.Errorf("ratelimit: allow %s: %w", key, err)
	}
	return true, 0, nil
}
