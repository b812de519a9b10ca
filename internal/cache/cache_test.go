package cache

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	redisv9 "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"adjusterhub/internal/model"
)

func TestTTLCache_Expiry(t *testing.T) {
	now := time.Now()
	c := NewTTLCache[int](time.Minute)
	c.now = func() time.Time { return now }

	c.Set("a", 1)
	c.SetWithTTL("b", 2, 10*time.Second)

	v, ok := c.Get("a")
	require.True(t, ok)
	assert.Equal(t, 1, v)

	now = now.Add(11 * time.Second)
	_, ok = c.Get("b")
	assert.False(t, ok)
	assert.Equal(t, 1, c.Len())

	now = now.Add(time.Minute)
	_, ok = c.Get("a")
	assert.False(t, ok)
	assert.Equal(t, 0, c.Len())
}

func TestTTLCache_SweepAndDelete(t *testing.T) {
	now := time.Now()
	c := NewTTLCache[string](time.Second)
	c.now = func() time.Time { return now }

	c.Set("x", "1")
	c.Set("y", "2")
	c.SetWithTTL("z", "3", time.Hour)
	c.Delete("y")

	now = now.Add(2 * time.Second)
	assert.Equal(t, 1, c.Sweep())
	_, ok := c.Get("z")
	assert.True(t, ok)
}

func newHistoryCache(t *testing.T, window int) (*HistoryCache, *miniredis.Miniredis) {
	t.Helper()
	srv := miniredis.RunT(t)
	client := redisv9.NewClient(&redisv9.Options{Addr: srv.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewHistoryCache(client, time.Minute, 5*time.Second, window), srv
}

func chatMessages(n int) []model.ChatMessage {
	out := make([]model.ChatMessage, 0, n)
	for i := 1; i <= n; i++ {
		out = append(out, model.ChatMessage{ID: uint(i), SessionID: 7, Role: "user", Content: fmt.Sprintf("m%d", i)})
	}
	return out
}

func TestHistoryCache_FillKeepsWindowTail(t *testing.T) {
	ctx := context.Background()
	hc, srv := newHistoryCache(t, 3)
	assert.Equal(t, 3, hc.Window())

	_, hit, err := hc.Recent(ctx, 7)
	require.NoError(t, err)
	assert.False(t, hit)

	require.NoError(t, hc.Fill(ctx, 7, chatMessages(5)))
	got, hit, err := hc.Recent(ctx, 7)
	require.NoError(t, err)
	require.True(t, hit)
	require.Len(t, got, 3)
	assert.Equal(t, "m3", got[0].Content)
	assert.Equal(t, "m5", got[2].Content)

	require.NoError(t, hc.Fill(ctx, 7, chatMessages(2)))
	got, _, err = hc.Recent(ctx, 7)
	require.NoError(t, err)
	assert.Len(t, got, 2)

	srv.FastForward(2 * time.Minute)
	_, hit, err = hc.Recent(ctx, 7)
	require.NoError(t, err)
	assert.False(t, hit)
}

func TestHistoryCache_InvalidateBlocksFillUntilMarkerExpires(t *testing.T) {
	ctx := context.Background()
	hc, srv := newHistoryCache(t, 10)
	require.NoError(t, hc.Fill(ctx, 7, chatMessages(2)))

	require.NoError(t, hc.Invalidate(ctx, 7))
	_, hit, err := hc.Recent(ctx, 7)
	require.NoError(t, err)
	assert.False(t, hit)

	require.NoError(t, hc.Fill(ctx, 7, chatMessages(4)))
	_, hit, err = hc.Recent(ctx, 7)
	require.NoError(t, err)
	assert.False(t, hit, "fill while dirty must not publish a stale window")

	srv.FastForward(6 * time.Second)
	require.NoError(t, hc.Fill(ctx, 7, chatMessages(4)))
	got, hit, err := hc.Recent(ctx, 7)
	require.NoError(t, err)
	require.True(t, hit)
	assert.Len(t, got, 4)

	require.NoError(t, hc.Forget(ctx, 7))
	_, hit, err = hc.Recent(ctx, 7)
	require.NoError(t, err)
	assert.False(t, hit)
}
