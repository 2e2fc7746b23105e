package store

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRedisStore(t *testing.T) (*RedisStore, *miniredis.Miniredis) {
	t.Helper()

	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	config := DefaultRedisConfig()
	config.Address = mr.Addr()

	s, err := NewRedisStore(config)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })

	return s, mr
}

func TestNewRedisStore_ConnectFailure(t *testing.T) {
	config := DefaultRedisConfig()
	config.Address = "127.0.0.1:1"
	config.DialTimeout = 100 * time.Millisecond
	config.MaxRetries = 0

	_, err := NewRedisStore(config)
	require.Error(t, err)
}

func TestRedisStore_GetMissingKey(t *testing.T) {
	s, _ := newTestRedisStore(t)

	_, err := s.Get(context.Background(), "missing")
	require.Error(t, err)
	assert.True(t, IsKeyNotFound(err))
}

func TestRedisStore_IncrementWithExpiry(t *testing.T) {
	s, mr := newTestRedisStore(t)
	ctx := context.Background()

	v, err := s.IncrementWithExpiry(ctx, "k", 1, time.Minute)
	require.NoError(t, err)
	assert.Equal(t, int64(1), v)

	v, err = s.IncrementWithExpiry(ctx, "k", 1, time.Minute)
	require.NoError(t, err)
	assert.Equal(t, int64(2), v)

	// The expiry is attached on creation only.
	ttl := mr.TTL(s.prefixKey("k"))
	assert.Greater(t, ttl, time.Duration(0))
	assert.LessOrEqual(t, ttl, time.Minute)

	got, err := s.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, int64(2), got)
}

func TestRedisStore_CounterExpires(t *testing.T) {
	s, mr := newTestRedisStore(t)
	ctx := context.Background()

	_, err := s.IncrementWithExpiry(ctx, "k", 3, time.Second)
	require.NoError(t, err)

	mr.FastForward(2 * time.Second)

	// After the window lapses the counter restarts.
	v, err := s.IncrementWithExpiry(ctx, "k", 1, time.Second)
	require.NoError(t, err)
	assert.Equal(t, int64(1), v)
}

func TestRedisStore_Delete(t *testing.T) {
	s, _ := newTestRedisStore(t)
	ctx := context.Background()

	_, err := s.IncrementWithExpiry(ctx, "k", 1, time.Minute)
	require.NoError(t, err)

	require.NoError(t, s.Delete(ctx, "k"))

	_, err = s.Get(ctx, "k")
	assert.True(t, IsKeyNotFound(err))
}

func TestRedisStore_KeysArePrefixed(t *testing.T) {
	s, mr := newTestRedisStore(t)
	ctx := context.Background()

	_, err := s.IncrementWithExpiry(ctx, "k", 1, time.Minute)
	require.NoError(t, err)

	assert.True(t, mr.Exists("apiguard:k"))
}

func TestRedisStore_CloseIsIdempotent(t *testing.T) {
	s, _ := newTestRedisStore(t)
	require.NoError(t, s.Close())
	require.NoError(t, s.Close())
}
