// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package cache

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestKey(t *testing.T) {
	a := Key([]byte("frame"))
	assert.True(t, strings.HasPrefix(a, keyPrefix))
	assert.Equal(t, a, Key([]byte("frame")))
	assert.NotEqual(t, a, Key([]byte("other")))
	assert.NotEqual(t, a, RefKey("https://gate/blobs/1"))
	assert.True(t, strings.HasPrefix(RefKey("https://gate/blobs/1"), refPrefix))
}

func memoryLen(c *Memory) int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

func TestMemory_GetSetExpire(t *testing.T) {
	ctx := context.Background()
	c := NewMemory(0)

	c.Set(ctx, "k", "https://gate/blobs/1", time.Minute)
	got, ok := c.Get(ctx, "k")
	require.True(t, ok)
	assert.Equal(t, "https://gate/blobs/1", got)

	c.Set(ctx, "short", "x", 20*time.Millisecond)
	time.Sleep(50 * time.Millisecond)
	_, ok = c.Get(ctx, "short")
	assert.False(t, ok)

	c.Delete(ctx, "k")
	_, ok = c.Get(ctx, "k")
	assert.False(t, ok)
}

func TestMemory_JanitorStops(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	c := NewMemory(10 * time.Millisecond)
	c.Set(context.Background(), "k", "v", time.Millisecond)
	assert.Eventually(t, func() bool { return memoryLen(c) == 0 }, time.Second, 10*time.Millisecond)
	require.NoError(t, c.Close())
	require.NoError(t, c.Close())
}

func setupMiniRedis(t *testing.T) (*miniredis.Miniredis, *Redis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	c := newRedisWithClient(client, zerolog.Nop())
	t.Cleanup(func() { _ = c.Close() })
	return mr, c
}

func TestRedis_GetSetTTL(t *testing.T) {
	mr, c := setupMiniRedis(t)
	ctx := context.Background()
	key := Key([]byte("payload"))

	_, ok := c.Get(ctx, key)
	assert.False(t, ok)

	c.Set(ctx, key, "https://gate/blobs/7", time.Minute)
	got, ok := c.Get(ctx, key)
	require.True(t, ok)
	assert.Equal(t, "https://gate/blobs/7", got)

	assert.Equal(t, []string{key}, mr.Keys())
	assert.Equal(t, time.Minute, mr.TTL(key))

	c.Delete(ctx, key)
	assert.False(t, mr.Exists(key))

	c.Set(ctx, key, "https://gate/blobs/8", time.Minute)
	mr.FastForward(2 * time.Minute)
	_, ok = c.Get(ctx, key)
	assert.False(t, ok)
}

func TestRedis_ServerDown(t *testing.T) {
	mr, c := setupMiniRedis(t)
	mr.Close()

	c.Set(context.Background(), "k", "v", time.Minute)
	_, ok := c.Get(context.Background(), "k")
	assert.False(t, ok)
	c.Delete(context.Background(), "k")
}

func TestNew_Backends(t *testing.T) {
	c, err := New(Config{}, zerolog.Nop())
	require.NoError(t, err)
	c.Set(context.Background(), "k", "v", time.Minute)
	_, ok := c.Get(context.Background(), "k")
	assert.False(t, ok, "none backend stores nothing")

	mem, err := New(Config{Backend: BackendMemory}, zerolog.Nop())
	require.NoError(t, err)
	require.NoError(t, mem.Close())

	mr := miniredis.RunT(t)
	rc, err := New(Config{Backend: BackendRedis, Redis: RedisConfig{Addr: mr.Addr()}}, zerolog.Nop())
	require.NoError(t, err)
	require.NoError(t, rc.Close())

	_, err = New(Config{Backend: "disk"}, zerolog.Nop())
	assert.Error(t, err)
}
