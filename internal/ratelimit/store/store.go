// Package store provides counter storage backends for rate limiting.
package store

import (
	"context"
	"time"
)

// Store is a windowed counter store. Implementations must make
// IncrementWithExpiry atomic: concurrent callers each observe a distinct
// post-increment value.
type Store interface {
	// Get retrieves the counter value for the given key.
	Get(ctx context.Context, key string) (int64, error)

	// IncrementWithExpiry increments the counter by delta and returns the
	// new value. The expiration is applied when the increment creates the
	// key.
	IncrementWithExpiry(ctx context.Context, key string, delta int64, expiration time.Duration) (int64, error)

	// Delete removes the key from the store.
	Delete(ctx context.Context, key string) error

	// Close releases store resources.
	Close() error
}

// ErrKeyNotFound is returned when a counter key does not exist.
type ErrKeyNotFound struct {
	Key string
}

func (e *ErrKeyNotFound) Error() string {
	return "key not found: " + e.Key
}

// IsKeyNotFound returns true if the error is a key not found error.
func IsKeyNotFound(err error) bool {
	_, ok := err.(*ErrKeyNotFound)
	return ok
}
