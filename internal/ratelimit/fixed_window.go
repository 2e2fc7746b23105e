package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/kabhishek18/apiguard/internal/observability"
	"github.com/kabhishek18/apiguard/internal/ratelimit/store"
)

// FixedWindowLimiter counts requests in fixed windows aligned to the
// window duration. The counter is incremented before the comparison, so
// under concurrent load each request observes a distinct count and
// exactly limit requests are admitted per window.
type FixedWindowLimiter struct {
	store  store.Store
	limit  int
	window time.Duration
	logger observability.Logger
	now    func() time.Time
}

// FixedWindowOption is a functional option for the FixedWindowLimiter.
type FixedWindowOption func(*FixedWindowLimiter)

// WithFixedWindowLogger sets the logger.
func WithFixedWindowLogger(logger observability.Logger) FixedWindowOption {
	return func(l *FixedWindowLimiter) {
		l.logger = logger
	}
}

// WithFixedWindowClock sets the time source.
func WithFixedWindowClock(now func() time.Time) FixedWindowOption {
	return func(l *FixedWindowLimiter) {
		l.now = now
	}
}

// NewFixedWindowLimiter creates a fixed window limiter backed by the
// given counter store.
func NewFixedWindowLimiter(s store.Store, limit int, window time.Duration, opts ...FixedWindowOption) *FixedWindowLimiter {
	l := &FixedWindowLimiter{
		store:  s,
		limit:  limit,
		window: window,
		logger: observability.NopLogger(),
		now:    time.Now,
	}

	for _, opt := range opts {
		opt(l)
	}

	return l
}

// windowStart returns the start of the window containing t.
func (l *FixedWindowLimiter) windowStart(t time.Time) time.Time {
	return t.Truncate(l.window)
}

// windowKey returns the counter key for the window containing t.
func (l *FixedWindowLimiter) windowKey(key string, t time.Time) string {
	return fmt.Sprintf("%s:%d", key, l.windowStart(t).Unix())
}

// Allow implements Limiter.
func (l *FixedWindowLimiter) Allow(ctx context.Context, key string) (*Result, error) {
	now := l.now()
	windowStart := l.windowStart(now)

	// Expiry buffer absorbs clock skew between instances.
	expiration := l.window + time.Second

	count, err := l.store.IncrementWithExpiry(ctx, l.windowKey(key, now), 1, expiration)
	if err != nil {
		return nil, fmt.Errorf("increment window counter: %w", err)
	}

	allowed := count <= int64(l.limit)

	remaining := l.limit - int(count)
	if remaining < 0 {
		remaining = 0
	}

	resetAfter := windowStart.Add(l.window).Sub(now)
	if resetAfter < 0 {
		resetAfter = 0
	}

	var retryAfter time.Duration
	if !allowed {
		retryAfter = resetAfter
	}

	return &Result{
		Allowed:    allowed,
		Limit:      l.limit,
		Remaining:  remaining,
		ResetAfter: resetAfter,
		RetryAfter: retryAfter,
	}, nil
}

// Reset implements Limiter.
func (l *FixedWindowLimiter) Reset(ctx context.Context, key string) error {
	if err := l.store.Delete(ctx, l.windowKey(key, l.now())); err != nil {
		return fmt.Errorf("delete window counter: %w", err)
	}
	return nil
}
