package ratelimit

import (
	"context"
	"sync"
	"time"
)

// Memory implements a simple in-memory rate limiter using a sliding window
type Memory struct {
	mu       sync.Mutex
	requests map[string][]time.Time
	window   time.Duration
	maxReqs  int
	now      func() time.Time
}

// NewMemory creates a sliding-window limiter allowing maxReqs per window
func NewMemory(window time.Duration, maxReqs int) *Memory {
	return &Memory{
		requests: make(map[string][]time.Time),
		window:   window,
		maxReqs:  maxReqs,
		now:      time.Now,
	}
}

// Allow checks if a request is allowed for the given key
func (m *Memory) Allow(_ context.Context, key string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	filtered := prune(m.requests[key], now.Add(-m.window))
	if len(filtered) >= m.maxReqs {
		m.requests[key] = filtered
		return false, nil
	}

	m.requests[key] = append(filtered, now)
	return true, nil
}

// Run periodically drops idle keys until ctx is done
func (m *Memory) Run(ctx context.Context, every time.Duration) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.cleanup()
		}
	}
}

func (m *Memory) cleanup() {
	m.mu.Lock()
	defer m.mu.Unlock()

	cutoff := m.now().Add(-m.window)
	for key, reqs := range m.requests {
		filtered := prune(reqs, cutoff)
		if len(filtered) == 0 {
			delete(m.requests, key)
		} else {
			m.requests[key] = filtered
		}
	}
}

func prune(reqs []time.Time, cutoff time.Time) []time.Time {
	filtered := make([]time.Time, 0, len(reqs))
	for _, t := range reqs {
		if t.After(cutoff) {
			filtered = append(filtered, t)
		}
	}
	return filtered
}
