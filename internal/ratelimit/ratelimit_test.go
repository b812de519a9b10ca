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

func TestMemoryLimiter_FixedWindow(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	l := NewMemoryLimiter(2, time.Minute)
	l.now = func() time.Time { return now }

	d, err := l.Allow(ctx, "login:ip:1.2.3.4")
	require.NoError(t, err)
	assert.True(t, d.Allowed)
	assert.Equal(t, 1, d.Remaining)

	d, _ = l.Allow(ctx, "login:ip:1.2.3.4")
	assert.True(t, d.Allowed)

	d, _ = l.Allow(ctx, "login:ip:1.2.3.4")
	assert.False(t, d.Allowed)
	assert.Equal(t, time.Minute, d.RetryAfter)

	other, _ := l.Allow(ctx, "login:ip:5.6.7.8")
	assert.True(t, other.Allowed)

	now = now.Add(61 * time.Second)
	d, _ = l.Allow(ctx, "login:ip:1.2.3.4")
	assert.True(t, d.Allowed)
}

func TestMemoryLimiter_ResetAndSweep(t *testing.T) {
	ctx := context.Background()
	now := time.Now()
	l := NewMemoryLimiter(1, time.Minute)
	l.now = func() time.Time { return now }

	_, _ = l.Allow(ctx, "a")
	d, _ := l.Allow(ctx, "a")
	assert.False(t, d.Allowed)

	require.NoError(t, l.Reset(ctx, "a"))
	d, _ = l.Allow(ctx, "a")
	assert.True(t, d.Allowed)

	now = now.Add(2 * time.Minute)
	assert.Equal(t, 1, l.Sweep())
}

func TestRedisLimiter(t *testing.T) {
	ctx := context.Background()
	srv := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: srv.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	l := NewRedisLimiter(client, 3, time.Minute)
	for i := 0; i < 3; i++ {
		d, err := l.Allow(ctx, "login:email:jane@example.com")
		require.NoError(t, err)
		assert.True(t, d.Allowed)
		assert.Equal(t, 2-i, d.Remaining)
	}

	d, err := l.Allow(ctx, "login:email:jane@example.com")
	require.NoError(t, err)
	assert.False(t, d.Allowed)
	assert.Greater(t, d.RetryAfter, time.Duration(0))

	srv.FastForward(time.Minute + time.Second)
	d, err = l.Allow(ctx, "login:email:jane@example.com")
	require.NoError(t, err)
	assert.True(t, d.Allowed)

	require.NoError(t, l.Reset(ctx, "login:email:jane@example.com"))
	assert.False(t, srv.Exists("ratelimit:login:email:jane@example.com"))
}

func TestKeyedLimiter(t *testing.T) {
	now := time.Now()
	k := NewKeyedLimiter(1, 2)
	k.now = func() time.Time { return now }

	ok, _ := k.Allow("10.0.0.1")
	assert.True(t, ok)
	ok, _ = k.Allow("10.0.0.1")
	assert.True(t, ok)
	ok, wait := k.Allow("10.0.0.1")
	assert.False(t, ok)
	assert.Equal(t, time.Second, wait)

	ok, _ = k.Allow("10.0.0.2")
	assert.True(t, ok)

	now = now.Add(10 * time.Minute)
	assert.Equal(t, 2, k.Evict(5*time.Minute))
	assert.Equal(t, 0, k.Len())
}
