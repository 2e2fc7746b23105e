package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kabhishek18/apiguard/internal/ratelimit/store"
)

func newClientLimiter(t *testing.T, defaults Defaults, opts ...ClientLimiterOption) *ClientLimiter {
	t.Helper()
	s := store.NewMemoryStore()
	t.Cleanup(func() { _ = s.Close() })
	return NewClientLimiter(s, defaults, opts...)
}

func TestClientLimiter_MinuteQuota(t *testing.T) {
	c := newClientLimiter(t, Defaults{PerMinute: 2, PerHour: 100})
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		d, err := c.Check(ctx, "client-1", 0, 0)
		require.NoError(t, err)
		assert.True(t, d.Allowed)
		assert.Empty(t, d.Scope)
		assert.Zero(t, d.RetryAfter())
	}

	d, err := c.Check(ctx, "client-1", 0, 0)
	require.NoError(t, err)
	assert.False(t, d.Allowed)
	assert.Equal(t, ScopeMinute, d.Scope)
	assert.Nil(t, d.Hour)
	assert.Greater(t, d.RetryAfter(), time.Duration(0))
	assert.LessOrEqual(t, d.RetryAfter(), time.Minute)
}

func TestClientLimiter_HourQuota(t *testing.T) {
	c := newClientLimiter(t, Defaults{PerMinute: 100, PerHour: 3})
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		d, err := c.Check(ctx, "client-1", 0, 0)
		require.NoError(t, err)
		assert.True(t, d.Allowed)
	}

	d, err := c.Check(ctx, "client-1", 0, 0)
	require.NoError(t, err)
	assert.False(t, d.Allowed)
	assert.Equal(t, ScopeHour, d.Scope)
	require.NotNil(t, d.Hour)
	assert.Greater(t, d.RetryAfter(), time.Minute)
	assert.LessOrEqual(t, d.RetryAfter(), time.Hour)
}

func TestClientLimiter_PerClientOverrides(t *testing.T) {
	c := newClientLimiter(t, Defaults{PerMinute: 100, PerHour: 1000})
	ctx := context.Background()

	// The client's own limit overrides the default.
	d, err := c.Check(ctx, "client-1", 1, 10)
	require.NoError(t, err)
	assert.True(t, d.Allowed)
	assert.Equal(t, 1, d.Minute.Limit)
	assert.Equal(t, 10, d.Hour.Limit)

	d, err = c.Check(ctx, "client-1", 1, 10)
	require.NoError(t, err)
	assert.False(t, d.Allowed)
	assert.Equal(t, ScopeMinute, d.Scope)
}

func TestClientLimiter_ClientsAreIsolated(t *testing.T) {
	c := newClientLimiter(t, Defaults{PerMinute: 1, PerHour: 100})
	ctx := context.Background()

	d, err := c.Check(ctx, "client-1", 0, 0)
	require.NoError(t, err)
	assert.True(t, d.Allowed)

	d, err = c.Check(ctx, "client-1", 0, 0)
	require.NoError(t, err)
	assert.False(t, d.Allowed)

	// One client exhausting its quota never affects another.
	d, err = c.Check(ctx, "client-2", 0, 0)
	require.NoError(t, err)
	assert.True(t, d.Allowed)
}

func TestClientLimiter_MinuteRejectionSkipsHourWindow(t *testing.T) {
	c := newClientLimiter(t, Defaults{PerMinute: 1, PerHour: 2})
	ctx := context.Background()

	d, err := c.Check(ctx, "client-1", 0, 0)
	require.NoError(t, err)
	assert.True(t, d.Allowed)

	// Minute rejections leave the hour counter untouched, so a fresh
	// minute still has the remaining hour budget available.
	for i := 0; i < 5; i++ {
		d, err = c.Check(ctx, "client-1", 0, 0)
		require.NoError(t, err)
		assert.False(t, d.Allowed)
		assert.Equal(t, ScopeMinute, d.Scope)
	}

	assert.Equal(t, 1, d.Minute.Limit)
	require.NotNil(t, d.Minute)
	assert.Nil(t, d.Hour)
}

func TestClientLimiter_Reset(t *testing.T) {
	c := newClientLimiter(t, Defaults{PerMinute: 1, PerHour: 1})
	ctx := context.Background()

	d, err := c.Check(ctx, "client-1", 0, 0)
	require.NoError(t, err)
	assert.True(t, d.Allowed)

	d, err = c.Check(ctx, "client-1", 0, 0)
	require.NoError(t, err)
	assert.False(t, d.Allowed)

	require.NoError(t, c.Reset(ctx, "client-1"))

	d, err = c.Check(ctx, "client-1", 0, 0)
	require.NoError(t, err)
	assert.True(t, d.Allowed)
}

func TestClientLimiter_WindowRollover(t *testing.T) {
	now := time.Date(2026, 1, 1, 12, 0, 59, 0, time.UTC)
	c := newClientLimiter(t,
		Defaults{PerMinute: 1, PerHour: 100},
		WithClientLimiterClock(func() time.Time { return now }),
	)
	ctx := context.Background()

	d, err := c.Check(ctx, "client-1", 0, 0)
	require.NoError(t, err)
	assert.True(t, d.Allowed)

	d, err = c.Check(ctx, "client-1", 0, 0)
	require.NoError(t, err)
	assert.False(t, d.Allowed)
	assert.Equal(t, time.Second, d.RetryAfter())

	now = now.Add(time.Second)
	d, err = c.Check(ctx, "client-1", 0, 0)
	require.NoError(t, err)
	assert.True(t, d.Allowed)
}

func TestClientLimiter_RecordsBothScopes(t *testing.T) {
	m := NewMetricsWithRegisterer("apiguard", prometheus.NewRegistry())
	c := newClientLimiter(t,
		Defaults{PerMinute: 2, PerHour: 100},
		WithClientLimiterMetrics(m),
	)
	ctx := context.Background()

	// Both windows admit, so each scope counts one admission.
	_, err := c.Check(ctx, "client-1", 0, 0)
	require.NoError(t, err)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.decisionsTotal.WithLabelValues(ScopeMinute, "allowed")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.decisionsTotal.WithLabelValues(ScopeHour, "allowed")))

	_, err = c.Check(ctx, "client-1", 0, 0)
	require.NoError(t, err)

	// A minute rejection counts against the minute scope only; the hour
	// window is never consulted.
	d, err := c.Check(ctx, "client-1", 0, 0)
	require.NoError(t, err)
	require.False(t, d.Allowed)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.decisionsTotal.WithLabelValues(ScopeMinute, "rejected")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.decisionsTotal.WithLabelValues(ScopeHour, "allowed")))
	assert.Equal(t, 0.0, testutil.ToFloat64(m.decisionsTotal.WithLabelValues(ScopeHour, "rejected")))
}
