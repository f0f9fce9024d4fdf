// Package ratelimit provides per-key request budgets backed by process memory
// or Redis.
package ratelimit

import (
	"context"
	"errors"
)

var (
	// ErrRedisUnavailable wraps failures talking to the Redis backend
	ErrRedisUnavailable = errors.New("ratelimit: redis unavailable")
)

// Limiter decides whether one more request for key fits in the current window
type Limiter interface {
	Allow(ctx context.Context, key string) (bool, error)
}
