// Package queue buffers readings between ingestion and the zone workers.
//
// The queue is bounded: a full queue rejects new readings instead of
// blocking the producer, so callers can surface backpressure.
package queue

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/okian/crowdews/internal/domain/model"
	"github.com/okian/crowdews/pkg/metrics"
)

const defaultQueueCapacity = 10000

// Queue provides non-blocking enqueue and channel-based dequeue semantics.
type Queue interface {
	// Enqueue adds a reading. It returns ErrFull or ErrClosed instead of
	// blocking.
	Enqueue(ctx context.Context, r model.SignalReading) error

	// Dequeue returns a channel that yields readings in FIFO order. The
	// channel is closed after Close once the backlog is drained, or when
	// ctx is done.
	Dequeue(ctx context.Context) <-chan model.SignalReading

	// Len returns the current number of queued readings.
	Len(ctx context.Context) int

	// Close stops accepting readings.
	Close() error

	IsClosed() bool
}

// InMemoryQueue implements Queue using a buffered channel.
type InMemoryQueue struct {
	items    chan model.SignalReading
	capacity int

	mu     sync.RWMutex
	closed bool
}

// NewInMemoryQueue creates a new in-memory queue with configuration options.
func NewInMemoryQueue(opts ...Option) *InMemoryQueue {
	q := &InMemoryQueue{capacity: defaultQueueCapacity}
	for _, opt := range opts {
		opt(q)
	}
	q.items = make(chan model.SignalReading, q.capacity)

	metrics.UpdateQueueCapacity(q.capacity)
	metrics.UpdateQueueSize(0)
	metrics.UpdateQueueUtilization(0)
	return q
}

// Capacity returns the configured capacity.
func (q *InMemoryQueue) Capacity() int { return q.capacity }

// Enqueue adds a reading to the queue.
func (q *InMemoryQueue) Enqueue(ctx context.Context, r model.SignalReading) error { //nolint:gocritic // value semantics for channel send
	start := time.Now()
	defer func() {
		metrics.RecordQueueProcessingLatency(float64(time.Since(start).Microseconds()) / 1000)
	}()

	q.mu.RLock()
	defer q.mu.RUnlock()

	if q.closed {
		q.enqueueFailed("closed")
		return ErrClosed
	}
	if err := ctx.Err(); err != nil {
		q.enqueueFailed("context_cancelled")
		return fmt.Errorf("enqueue: %w", err)
	}

	select {
	case q.items <- r:
		metrics.RecordQueueEnqueue()
		q.observe()
		return nil
	default:
		q.enqueueFailed("queue_full")
		return ErrFull
	}
}

func (q *InMemoryQueue) enqueueFailed(kind string) {
	metrics.RecordQueueEnqueueError()
	metrics.RecordErrorByComponent("queue", kind)
}

func (q *InMemoryQueue) observe() {
	size := len(q.items)
	metrics.UpdateQueueSize(size)
	metrics.UpdateQueueUtilization(float64(size) / float64(q.capacity))
}

// Dequeue returns a channel that will receive readings as they become available.
func (q *InMemoryQueue) Dequeue(ctx context.Context) <-chan model.SignalReading {
	out := make(chan model.SignalReading)
	go func() {
		defer close(out)
		for {
			select {
			case r, ok := <-q.items:
				if !ok {
					return
				}
				select {
				case out <- r:
					metrics.RecordQueueDequeue()
					q.observe()
				case <-ctx.Done():
					return
				}
			case <-ctx.Done():
				return
			}
		}
	}()
	return out
}

// Len returns the current number of queued readings.
func (q *InMemoryQueue) Len(_ context.Context) int {
	q.observe()
	return len(q.items)
}

// Close stops accepting readings. Readings already queued are still
// delivered to consumers.
func (q *InMemoryQueue) Close() error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return nil
	}
	close(q.items)
	q.closed = true
	return nil
}

// IsClosed returns true if the queue has been closed.
func (q *InMemoryQueue) IsClosed() bool {
	q.mu.RLock()
	defer q.mu.RUnlock()
	return q.closed
}
