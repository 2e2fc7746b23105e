package ratelimit

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/kabhishek18/apiguard/internal/observability"
	"github.com/kabhishek18/apiguard/internal/ratelimit/store"
)

const (
	// ScopeMinute identifies the per-minute window.
	ScopeMinute = "minute"

	// ScopeHour identifies the per-hour window.
	ScopeHour = "hour"
)

// Defaults are the quota values applied when a client has no explicit
// limits configured.
type Defaults struct {
	PerMinute int
	PerHour   int
}

// Decision is the combined outcome of the per-minute and per-hour quota
// checks for a single request.
type Decision struct {
	// Allowed indicates whether the request is admitted by both windows.
	Allowed bool

	// Scope names the exhausted window when the request is rejected,
	// ScopeMinute or ScopeHour. Empty when allowed.
	Scope string

	// Minute is the per-minute window result.
	Minute *Result

	// Hour is the per-hour window result. Nil when the minute window
	// already rejected the request.
	Hour *Result
}

// RetryAfter returns the wait before the exhausted window resets. Zero
// when the request is allowed.
func (d *Decision) RetryAfter() time.Duration {
	switch d.Scope {
	case ScopeMinute:
		return d.Minute.RetryAfter
	case ScopeHour:
		return d.Hour.RetryAfter
	default:
		return 0
	}
}

// ClientLimiter enforces dual fixed-window quotas per client: one
// counted per minute and one per hour. Both windows share a single
// counter store so every instance of the service sees the same counts.
type ClientLimiter struct {
	store   store.Store
	logger  observability.Logger
	metrics *Metrics
	now     func() time.Time

	mu       sync.RWMutex
	defaults Defaults
}

// ClientLimiterOption is a functional option for the ClientLimiter.
type ClientLimiterOption func(*ClientLimiter)

// WithClientLimiterLogger sets the logger.
func WithClientLimiterLogger(logger observability.Logger) ClientLimiterOption {
	return func(c *ClientLimiter) {
		c.logger = logger
	}
}

// WithClientLimiterMetrics sets the metrics.
func WithClientLimiterMetrics(metrics *Metrics) ClientLimiterOption {
	return func(c *ClientLimiter) {
		c.metrics = metrics
	}
}

// WithClientLimiterClock sets the time source.
func WithClientLimiterClock(now func() time.Time) ClientLimiterOption {
	return func(c *ClientLimiter) {
		c.now = now
	}
}

// NewClientLimiter creates a dual-window client limiter.
func NewClientLimiter(s store.Store, defaults Defaults, opts ...ClientLimiterOption) *ClientLimiter {
	c := &ClientLimiter{
		store:    s,
		defaults: defaults,
		logger:   observability.NopLogger(),
		now:      time.Now,
	}

	for _, opt := range opts {
		opt(c)
	}

	return c
}

// SetDefaults replaces the fallback quotas. Applied on config reload.
func (c *ClientLimiter) SetDefaults(d Defaults) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.defaults = d
}

// Check consumes one request for the client against both windows.
// perMinute and perHour override the defaults when positive. The minute
// window is checked first; a minute rejection leaves the hour counter
// untouched. A minute admission followed by an hour rejection leaves one
// count consumed in the minute window, which is the accepted behavior of
// fixed window counting.
func (c *ClientLimiter) Check(ctx context.Context, clientID string, perMinute, perHour int) (*Decision, error) {
	c.mu.RLock()
	defaults := c.defaults
	c.mu.RUnlock()

	if perMinute <= 0 {
		perMinute = defaults.PerMinute
	}
	if perHour <= 0 {
		perHour = defaults.PerHour
	}

	minute, err := c.allow(ctx, c.minuteKey(clientID), perMinute, time.Minute)
	if err != nil {
		return nil, fmt.Errorf("minute window: %w", err)
	}

	if !minute.Allowed {
		c.metrics.RecordDecision(ScopeMinute, "rejected")
		c.logger.Debug("minute quota exhausted",
			observability.String("client_id", clientID),
			observability.Int("limit", perMinute),
		)
		return &Decision{Allowed: false, Scope: ScopeMinute, Minute: minute}, nil
	}

	c.metrics.RecordDecision(ScopeMinute, "allowed")

	hour, err := c.allow(ctx, c.hourKey(clientID), perHour, time.Hour)
	if err != nil {
		return nil, fmt.Errorf("hour window: %w", err)
	}

	if !hour.Allowed {
		c.metrics.RecordDecision(ScopeHour, "rejected")
		c.logger.Debug("hour quota exhausted",
			observability.String("client_id", clientID),
			observability.Int("limit", perHour),
		)
		return &Decision{Allowed: false, Scope: ScopeHour, Minute: minute, Hour: hour}, nil
	}

	c.metrics.RecordDecision(ScopeHour, "allowed")
	return &Decision{Allowed: true, Minute: minute, Hour: hour}, nil
}

// Reset clears the client's counters in both windows.
func (c *ClientLimiter) Reset(ctx context.Context, clientID string) error {
	now := c.now()

	minuteKey := fmt.Sprintf("%s:%d", c.minuteKey(clientID), now.Truncate(time.Minute).Unix())
	if err := c.store.Delete(ctx, minuteKey); err != nil {
		return fmt.Errorf("reset minute window: %w", err)
	}

	hourKey := fmt.Sprintf("%s:%d", c.hourKey(clientID), now.Truncate(time.Hour).Unix())
	if err := c.store.Delete(ctx, hourKey); err != nil {
		return fmt.Errorf("reset hour window: %w", err)
	}

	return nil
}

func (c *ClientLimiter) minuteKey(clientID string) string {
	return "rl:" + clientID + ":m"
}

func (c *ClientLimiter) hourKey(clientID string) string {
	return "rl:" + clientID + ":h"
}

// allow runs one fixed window check against the shared store.
func (c *ClientLimiter) allow(ctx context.Context, key string, limit int, window time.Duration) (*Result, error) {
	limiter := NewFixedWindowLimiter(c.store, limit, window, WithFixedWindowClock(c.now))
	return limiter.Allow(ctx, key)
}
