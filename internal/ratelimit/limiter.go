// Package ratelimit enforces per-client request quotas using fixed
// counting windows.
package ratelimit

import (
	"context"
	"time"
)

// Limiter admits or rejects requests against a quota.
type Limiter interface {
	// Allow consumes one request for the given key and reports whether it
	// fits inside the quota.
	Allow(ctx context.Context, key string) (*Result, error)

	// Reset clears the current window state for the given key.
	Reset(ctx context.Context, key string) error
}

// Result is the outcome of a quota check.
type Result struct {
	// Allowed indicates whether the request is admitted.
	Allowed bool

	// Limit is the maximum number of requests allowed in the window.
	Limit int

	// Remaining is the number of requests remaining in the current window.
	Remaining int

	// ResetAfter is the duration until the current window ends.
	ResetAfter time.Duration

	// RetryAfter is the duration to wait before retrying. Zero when the
	// request is allowed.
	RetryAfter time.Duration
}

// NoopLimiter admits every request. Used when rate limiting is disabled.
type NoopLimiter struct{}

// NewNoopLimiter creates a limiter that never rejects.
func NewNoopLimiter() *NoopLimiter {
	return &NoopLimiter{}
}

// Allow implements Limiter.
func (l *NoopLimiter) Allow(ctx context.Context, key string) (*Result, error) {
	return &Result{Allowed: true}, nil
}

// Reset implements Limiter.
func (l *NoopLimiter) Reset(ctx context.Context, key string) error {
	return nil
}
