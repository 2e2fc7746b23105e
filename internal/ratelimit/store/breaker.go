package store

import (
	"context"
	"time"

	"github.com/sony/gobreaker"

	"github.com/kabhishek18/apiguard/internal/observability"
)

// BreakerStore wraps a primary counter store with a circuit breaker.
// While the breaker is open, operations fall back to a process-local
// store so rate limiting keeps working during a Redis outage. Fallback
// counters are per instance, so enforcement degrades from global to
// local until the primary recovers.
type BreakerStore struct {
	primary  Store
	fallback Store
	cb       *gobreaker.CircuitBreaker
	logger   observability.Logger
}

// BreakerConfig holds circuit breaker settings for the counter store.
type BreakerConfig struct {
	// Name identifies the breaker in logs.
	Name string

	// Threshold is the minimum number of requests before the failure
	// ratio can trip the breaker.
	Threshold uint32

	// Timeout is how long the breaker stays open before probing the
	// primary again.
	Timeout time.Duration

	Logger observability.Logger
}

// DefaultBreakerConfig returns a BreakerConfig with default values.
func DefaultBreakerConfig() *BreakerConfig {
	return &BreakerConfig{
		Name:      "ratelimit-store",
		Threshold: 5,
		Timeout:   30 * time.Second,
	}
}

// NewBreakerStore creates a breaker-protected store. The fallback store
// is owned by the BreakerStore and closed with it.
func NewBreakerStore(primary Store, config *BreakerConfig) *BreakerStore {
	if config == nil {
		config = DefaultBreakerConfig()
	}

	logger := config.Logger
	if logger == nil {
		logger = observability.NopLogger()
	}

	b := &BreakerStore{
		primary:  primary,
		fallback: NewMemoryStore(),
		logger:   logger,
	}

	b.cb = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:    config.Name,
		Timeout: config.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			return counts.Requests >= config.Threshold && failureRatio >= 0.5
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			logger.Warn("counter store circuit breaker state change",
				observability.String("name", name),
				observability.String("from", from.String()),
				observability.String("to", to.String()),
			)
		},
		IsSuccessful: func(err error) bool {
			// A missing key is a normal outcome, not a backend failure.
			return err == nil || IsKeyNotFound(err)
		},
	})

	return b
}

// Get implements Store.
func (b *BreakerStore) Get(ctx context.Context, key string) (int64, error) {
	result, err := b.cb.Execute(func() (interface{}, error) {
		return b.primary.Get(ctx, key)
	})
	if err != nil {
		if IsKeyNotFound(err) {
			return 0, err
		}
		return b.fallback.Get(ctx, key)
	}
	return result.(int64), nil
}

// IncrementWithExpiry implements Store.
func (b *BreakerStore) IncrementWithExpiry(ctx context.Context, key string, delta int64, expiration time.Duration) (int64, error) {
	result, err := b.cb.Execute(func() (interface{}, error) {
		return b.primary.IncrementWithExpiry(ctx, key, delta, expiration)
	})
	if err != nil {
		b.logger.Debug("primary counter store unavailable, using local fallback",
			observability.String("key", key),
			observability.Error(err),
		)
		return b.fallback.IncrementWithExpiry(ctx, key, delta, expiration)
	}
	return result.(int64), nil
}

// Delete implements Store. Both stores are cleared so a reset survives a
// failover in either direction.
func (b *BreakerStore) Delete(ctx context.Context, key string) error {
	_ = b.fallback.Delete(ctx, key)

	_, err := b.cb.Execute(func() (interface{}, error) {
		return nil, b.primary.Delete(ctx, key)
	})
	return err
}

// Close implements Store.
func (b *BreakerStore) Close() error {
	_ = b.fallback.Close()
	return b.primary.Close()
}

// State returns the current breaker state.
func (b *BreakerStore) State() gobreaker.State {
	return b.cb.State()
}
