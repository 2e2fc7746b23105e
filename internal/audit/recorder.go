// Package audit records API usage asynchronously. Recording never blocks
// or fails the request being recorded.
package audit

import (
	"context"
	"sync"
	"time"

	"github.com/kabhishek18/apiguard/internal/observability"
	"github.com/kabhishek18/apiguard/internal/store"
)

const (
	// DefaultQueueSize is the default capacity of the record queue.
	DefaultQueueSize = 1024

	// DefaultFlushTimeout bounds how long Close waits for the queue to
	// drain.
	DefaultFlushTimeout = 5 * time.Second

	// writeTimeout bounds a single usage write.
	writeTimeout = 3 * time.Second
)

// Recorder appends usage records through a buffered queue consumed by a
// single background goroutine. When the queue is full the record is
// dropped and counted, keeping the request path non-blocking.
type Recorder struct {
	usage        store.UsageStore
	queue        chan *store.UsageRecord
	logger       observability.Logger
	metrics      *Metrics
	flushTimeout time.Duration

	mu     sync.RWMutex
	closed bool
	done   chan struct{}
}

// RecorderOption is a functional option for the Recorder.
type RecorderOption func(*Recorder)

// WithLogger sets the logger.
func WithLogger(logger observability.Logger) RecorderOption {
	return func(r *Recorder) {
		r.logger = logger
	}
}

// WithMetrics sets the metrics.
func WithMetrics(metrics *Metrics) RecorderOption {
	return func(r *Recorder) {
		r.metrics = metrics
	}
}

// WithQueueSize sets the queue capacity.
func WithQueueSize(size int) RecorderOption {
	return func(r *Recorder) {
		if size > 0 {
			r.queue = make(chan *store.UsageRecord, size)
		}
	}
}

// WithFlushTimeout sets how long Close waits for pending records.
func WithFlushTimeout(timeout time.Duration) RecorderOption {
	return func(r *Recorder) {
		if timeout > 0 {
			r.flushTimeout = timeout
		}
	}
}

// NewRecorder creates a usage recorder and starts its consumer.
func NewRecorder(usage store.UsageStore, opts ...RecorderOption) *Recorder {
	r := &Recorder{
		usage:        usage,
		queue:        make(chan *store.UsageRecord, DefaultQueueSize),
		logger:       observability.NopLogger(),
		flushTimeout: DefaultFlushTimeout,
		done:         make(chan struct{}),
	}

	for _, opt := range opts {
		opt(r)
	}

	go r.consume()

	return r
}

// Record enqueues a usage record. It never blocks: when the queue is
// full or the recorder is closed the record is dropped.
func (r *Recorder) Record(rec *store.UsageRecord) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if r.closed {
		r.metrics.RecordOutcome("dropped")
		return
	}

	select {
	case r.queue <- rec:
		r.metrics.RecordOutcome("enqueued")
	default:
		r.metrics.RecordOutcome("dropped")
		r.logger.Warn("usage record dropped, queue full",
			observability.String("client_id", rec.ClientID),
		)
	}
}

// Close stops accepting records and waits up to the flush timeout for
// the queue to drain. Close is idempotent.
func (r *Recorder) Close() error {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil
	}
	r.closed = true
	close(r.queue)
	r.mu.Unlock()

	select {
	case <-r.done:
		return nil
	case <-time.After(r.flushTimeout):
		r.logger.Warn("usage recorder closed before queue drained")
		return nil
	}
}

func (r *Recorder) consume() {
	defer close(r.done)

	for rec := range r.queue {
		r.write(rec)
	}
}

func (r *Recorder) write(rec *store.UsageRecord) {
	ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
	defer cancel()

	if err := r.usage.AppendUsage(ctx, rec); err != nil {
		r.metrics.RecordOutcome("failed")
		r.logger.Error("failed to append usage record",
			observability.String("client_id", rec.ClientID),
			observability.String("endpoint", rec.Endpoint),
			observability.Error(err),
		)
		return
	}

	r.metrics.RecordOutcome("written")
}
