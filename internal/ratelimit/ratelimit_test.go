package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()

	mr, err := miniredis.Run()
	require.NoError(t, err)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() {
		_ = client.Close()
		mr.Close()
	})
	return mr, client
}

func TestMemory_SlidingWindow(t *testing.T) {
	now := time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)
	m := NewMemory(time.Minute, 2)
	m.now = func() time.Time { return now }
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		ok, err := m.Allow(ctx, "ip:1")
		require.NoError(t, err)
		assert.True(t, ok)
	}
	ok, _ := m.Allow(ctx, "ip:1")
	assert.False(t, ok)

	// other keys have their own budget
	ok, _ = m.Allow(ctx, "ip:2")
	assert.True(t, ok)

	now = now.Add(time.Minute + time.Second)
	ok, _ = m.Allow(ctx, "ip:1")
	assert.True(t, ok)
}

func TestMemory_CleanupDropsIdleKeys(t *testing.T) {
	now := time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)
	m := NewMemory(time.Minute, 5)
	m.now = func() time.Time { return now }

	_, _ = m.Allow(context.Background(), "ip:1")
	now = now.Add(2 * time.Minute)
	m.cleanup()

	m.mu.Lock()
	defer m.mu.Unlock()
	assert.Empty(t, m.requests)
}

func TestRedis_FixedWindow(t *testing.T) {
	mr, client := newTestRedis(t)
	l := NewRedis(client, "rl:login:", time.Minute, 3)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		ok, err := l.Allow(ctx, "ip:1")
		require.NoError(t, err)
		assert.True(t, ok, "request %d", i+1)
	}
	ok, err := l.Allow(ctx, "ip:1")
	require.NoError(t, err)
	assert.False(t, ok)

	assert.Equal(t, time.Minute, mr.TTL("rl:login:ip:1"))

	mr.FastForward(time.Minute)
	ok, err = l.Allow(ctx, "ip:1")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestRedis_Unavailable(t *testing.T) {
	mr, client := newTestRedis(t)
	l := NewRedis(client, "rl:", time.Minute, 3)
	mr.Close()

	_, err := l.Allow(context.Background(), "ip:1")
	assert.ErrorIs(t, err, ErrRedisUnavailable)
}
