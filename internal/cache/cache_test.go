package cache

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func TestMemoryCache_GetSetExpiry(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	c := NewMemoryCache()
	c.now = func() time.Time { return now }

	c.Set(ctx, "a", []byte("1"), time.Minute)
	c.Set(ctx, "b", []byte("2"), 10*time.Minute)
	c.Set(ctx, "zero", []byte("x"), 0)

	v, ok := c.Get(ctx, "a")
	require.True(t, ok)
	assert.Equal(t, "1", string(v))

	_, ok = c.Get(ctx, "zero")
	assert.False(t, ok, "non-positive TTL is not stored")

	now = now.Add(2 * time.Minute)
	_, ok = c.Get(ctx, "a")
	assert.False(t, ok, "expired entry is hidden")
	_, ok = c.Get(ctx, "b")
	assert.True(t, ok)

	assert.Equal(t, 2, c.Len())
	assert.Equal(t, 1, c.Cleanup())
	assert.Equal(t, 1, c.Len())
}

func TestMemoryCache_CleanupConcurrentWithWrites(t *testing.T) {
	ctx := context.Background()
	c := NewMemoryCache()
	for i := 0; i < 100; i++ {
		c.Set(ctx, string(rune('a'+i%26))+time.Duration(i).String(), []byte("v"), time.Nanosecond)
	}
	time.Sleep(time.Millisecond)

	done := make(chan struct{})
	go func() {
		for i := 0; i < 100; i++ {
			c.Set(ctx, "live", []byte("v"), time.Hour)
		}
		close(done)
	}()
	c.Cleanup()
	<-done

	_, ok := c.Get(ctx, "live")
	assert.True(t, ok)
}

func TestRedisCache_GetSet(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	defer mr.Close()

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	c := NewRedisCacheFromClient(client, "erpquery:", zaptest.NewLogger(t))
	defer c.Close()

	ctx := context.Background()
	_, ok := c.Get(ctx, "missing")
	assert.False(t, ok)

	c.Set(ctx, "k", []byte(`{"x":1}`), time.Minute)
	assert.True(t, mr.Exists("erpquery:k"))

	v, ok := c.Get(ctx, "k")
	require.True(t, ok)
	assert.JSONEq(t, `{"x":1}`, string(v))

	mr.FastForward(2 * time.Minute)
	_, ok = c.Get(ctx, "k")
	assert.False(t, ok)
}

func TestRedisCache_ServerDownIsMiss(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)

	client := redis.NewClient(&redis.Options{Addr: mr.Addr(), MaxRetries: -1})
	c := NewRedisCacheFromClient(client, "", nil)
	defer c.Close()

	mr.Close()

	ctx := context.Background()
	c.Set(ctx, "k", []byte("v"), time.Minute)
	_, ok := c.Get(ctx, "k")
	assert.False(t, ok)
}

func TestNop(t *testing.T) {
	var c Cache = Nop{}
	c.Set(context.Background(), "k", []byte("v"), time.Minute)
	_, ok := c.Get(context.Background(), "k")
	assert.False(t, ok)
}
