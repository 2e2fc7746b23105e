package store

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// maxCASRetries bounds compare-and-swap retry attempts under contention.
const maxCASRetries = 100

// entry is a counter value with an expiration deadline.
type entry struct {
	value      int64
	expiration time.Time
}

// MemoryStore implements Store with process-local counters. Counters are
// advanced with compare-and-swap so concurrent increments never observe
// the same post-increment value.
type MemoryStore struct {
	data    sync.Map
	cleanup *time.Ticker
	done    chan struct{}
	mu      sync.Mutex
	closed  bool
}

// NewMemoryStore creates a memory store that sweeps expired counters
// every minute.
func NewMemoryStore() *MemoryStore {
	return NewMemoryStoreWithCleanupInterval(time.Minute)
}

// NewMemoryStoreWithCleanupInterval creates a memory store with a custom
// sweep interval.
func NewMemoryStoreWithCleanupInterval(interval time.Duration) *MemoryStore {
	s := &MemoryStore{
		cleanup: time.NewTicker(interval),
		done:    make(chan struct{}),
	}

	go s.sweepLoop()

	return s
}

// Get implements Store.
func (s *MemoryStore) Get(ctx context.Context, key string) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	value, ok := s.data.Load(key)
	if !ok {
		return 0, &ErrKeyNotFound{Key: key}
	}

	e := value.(*entry)
	if !e.expiration.IsZero() && time.Now().After(e.expiration) {
		s.data.Delete(key)
		return 0, &ErrKeyNotFound{Key: key}
	}

	return e.value, nil
}

// IncrementWithExpiry implements Store.
func (s *MemoryStore) IncrementWithExpiry(ctx context.Context, key string, delta int64, expiration time.Duration) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	var exp time.Time
	if expiration > 0 {
		exp = time.Now().Add(expiration)
	}

	for retries := 0; retries < maxCASRetries; retries++ {
		value, ok := s.data.Load(key)
		if !ok {
			newEntry := &entry{value: delta, expiration: exp}
			if actual, loaded := s.data.LoadOrStore(key, newEntry); loaded {
				value = actual
			} else {
				return delta, nil
			}
		}

		e := value.(*entry)

		// An expired entry restarts the counter under a fresh deadline.
		if !e.expiration.IsZero() && time.Now().After(e.expiration) {
			newEntry := &entry{value: delta, expiration: exp}
			if s.data.CompareAndSwap(key, e, newEntry) {
				return delta, nil
			}
			continue
		}

		newEntry := &entry{
			value:      e.value + delta,
			expiration: e.expiration,
		}
		if s.data.CompareAndSwap(key, e, newEntry) {
			return newEntry.value, nil
		}
	}

	return 0, fmt.Errorf("increment with expiry failed: max retries (%d) exceeded", maxCASRetries)
}

// Delete implements Store.
func (s *MemoryStore) Delete(ctx context.Context, key string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.data.Delete(key)
	return nil
}

// Close implements Store. Close is idempotent.
func (s *MemoryStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}

	s.closed = true
	s.cleanup.Stop()
	close(s.done)

	return nil
}

// Size returns the number of live counters.
func (s *MemoryStore) Size() int {
	count := 0
	s.data.Range(func(key, value interface{}) bool {
		count++
		return true
	})
	return count
}

func (s *MemoryStore) sweepLoop() {
	for {
		select {
		case <-s.cleanup.C:
			s.sweepExpired()
		case <-s.done:
			return
		}
	}
}

func (s *MemoryStore) sweepExpired() {
	now := time.Now()

	s.data.Range(func(key, value interface{}) bool {
		e := value.(*entry)
		if !e.expiration.IsZero() && now.After(e.expiration) {
			s.data.Delete(key)
		}
		return true
	})
}
