package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Redis is a fixed-window limiter shared by every API instance
type Redis struct {
	client  redis.UniversalClient
	prefix  string
	window  time.Duration
	maxReqs int
}

// NewRedis creates a limiter allowing maxReqs per window for each key
func NewRedis(client redis.UniversalClient, prefix string, window time.Duration, maxReqs int) *Redis {
	return &Redis{client: client, prefix: prefix, window: window, maxReqs: maxReqs}
}

// Allow increments the key's counter and reports whether it is within budget
func (r *Redis) Allow(ctx context.Context, key string) (bool, error) {
	fullKey := r.prefix + key
	count, err := r.client.Incr(ctx, fullKey).Result()
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}

	// Fixed-window semantics: set TTL only for the first hit in the window.
	if count == 1 {
		if err := r.client.Expire(ctx, fullKey, r.window).Err(); err != nil {
			return false, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
		}
	}

	return count <= int64(r.maxReqs), nil
}
