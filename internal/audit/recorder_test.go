package audit

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kabhishek18/apiguard/internal/store"
)

// fakeUsageStore collects appended records.
type fakeUsageStore struct {
	mu       sync.Mutex
	records  []*store.UsageRecord
	attempts int
	err      error
	block    chan struct{}
}

func (f *fakeUsageStore) AppendUsage(ctx context.Context, rec *store.UsageRecord) error {
	if f.block != nil {
		<-f.block
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	f.attempts++
	if f.err != nil {
		return f.err
	}
	f.records = append(f.records, rec)
	return nil
}

func (f *fakeUsageStore) RecentUsage(ctx context.Context, clientID string, limit int) ([]*store.UsageRecord, error) {
	return nil, nil
}

func (f *fakeUsageStore) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.records)
}

func TestRecorder_WritesRecords(t *testing.T) {
	fs := &fakeUsageStore{}
	r := NewRecorder(fs)
	defer r.Close()

	for i := 0; i < 5; i++ {
		r.Record(&store.UsageRecord{ClientID: "c1", Endpoint: "/api/v1/posts"})
	}

	assert.Eventually(t, func() bool {
		return fs.count() == 5
	}, time.Second, 10*time.Millisecond)

	fs.mu.Lock()
	defer fs.mu.Unlock()
	for _, rec := range fs.records {
		assert.Equal(t, "c1", rec.ClientID)
		assert.Equal(t, "/api/v1/posts", rec.Endpoint)
	}
}

func TestRecorder_CloseDrainsQueue(t *testing.T) {
	fs := &fakeUsageStore{}
	r := NewRecorder(fs, WithQueueSize(100))

	for i := 0; i < 50; i++ {
		r.Record(&store.UsageRecord{ClientID: "c1"})
	}

	require.NoError(t, r.Close())
	assert.Equal(t, 50, fs.count())
}

func TestRecorder_CloseIsIdempotent(t *testing.T) {
	r := NewRecorder(&fakeUsageStore{})
	require.NoError(t, r.Close())
	require.NoError(t, r.Close())
}

func TestRecorder_RecordAfterCloseIsDropped(t *testing.T) {
	fs := &fakeUsageStore{}
	r := NewRecorder(fs)
	require.NoError(t, r.Close())

	// Must not panic or block.
	r.Record(&store.UsageRecord{ClientID: "c1"})
	assert.Zero(t, fs.count())
}

func TestRecorder_FullQueueDropsWithoutBlocking(t *testing.T) {
	block := make(chan struct{})
	fs := &fakeUsageStore{block: block}
	r := NewRecorder(fs, WithQueueSize(1), WithFlushTimeout(50*time.Millisecond))
	defer r.Close()

	done := make(chan struct{})
	go func() {
		defer close(done)
		// Far more records than the queue holds. The consumer is blocked,
		// so most are dropped, but Record must return promptly.
		for i := 0; i < 100; i++ {
			r.Record(&store.UsageRecord{ClientID: "c1"})
		}
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Record blocked on a full queue")
	}

	close(block)
}

func TestRecorder_WriteFailureDoesNotStopConsumer(t *testing.T) {
	fs := &fakeUsageStore{err: errors.New("disk full")}
	r := NewRecorder(fs)
	defer r.Close()

	r.Record(&store.UsageRecord{ClientID: "c1"})

	// Wait for the failed write, then let the next one succeed. The
	// failure is logged and the consumer keeps running.
	require.Eventually(t, func() bool {
		fs.mu.Lock()
		defer fs.mu.Unlock()
		return fs.attempts == 1
	}, time.Second, 10*time.Millisecond)

	fs.mu.Lock()
	fs.err = nil
	fs.mu.Unlock()

	r.Record(&store.UsageRecord{ClientID: "c1"})

	assert.Eventually(t, func() bool {
		return fs.count() == 1
	}, time.Second, 10*time.Millisecond)
}
