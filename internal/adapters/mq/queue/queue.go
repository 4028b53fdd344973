// Package queue is the bounded in-memory hand-off between the capture loop
// and the inference loop.
package queue

import (
	"context"
	"sync"
	"time"

	"github.com/okian/worksight/internal/domain/model"
	"github.com/okian/worksight/pkg/metrics"
)

// Default queue configuration constants.
const (
	defaultQueueCapacity = 200
)

// Item is the payload type flowing through the queue.
type Item = model.Capture

// Queue is a bounded FIFO with timed enqueue and dequeue.
type Queue interface {
	// Enqueue adds an item, waiting at most timeout for space.
	// Returns false if the queue stayed full, was closed or ctx ended.
	Enqueue(ctx context.Context, it Item, timeout time.Duration) bool

	// Dequeue waits at most timeout for an item. It returns ErrEmpty on
	// timeout, ErrClosed once the queue is closed and drained, and the
	// context error if ctx ends first.
	Dequeue(ctx context.Context, timeout time.Duration) (Item, error)

	// Len returns the current number of queued items.
	Len() int

	// Cap returns the queue capacity.
	Cap() int

	// Close stops accepting items. Queued items can still be dequeued.
	Close() error

	// IsClosed returns true if the queue has been closed.
	IsClosed() bool
}

// InMemoryQueue implements Queue using a buffered channel.
type InMemoryQueue struct {
	items    chan Item
	capacity int

	mu     sync.RWMutex
	closed bool
}

// NewInMemoryQueue creates a new in-memory queue with configuration options.
func NewInMemoryQueue(opts ...Option) *InMemoryQueue {
	q := &InMemoryQueue{
		capacity: defaultQueueCapacity,
	}
	for _, opt := range opts {
		opt(q)
	}
	q.items = make(chan Item, q.capacity)

	metrics.UpdateHandoffQueueCapacity(q.capacity)
	metrics.UpdateHandoffQueueSize(0)

	return q
}

// Enqueue adds an item to the queue, waiting up to timeout for space.
func (q *InMemoryQueue) Enqueue(ctx context.Context, it Item, timeout time.Duration) bool {
	// The read lock keeps Close from closing the channel under a pending send.
	q.mu.RLock()
	defer q.mu.RUnlock()

	if q.closed {
		metrics.RecordErrorByComponent("handoff_queue", "closed")
		return false
	}

	select {
	case q.items <- it:
		metrics.UpdateHandoffQueueSize(len(q.items))
		return true
	default:
	}
	if timeout <= 0 {
		metrics.RecordErrorByComponent("handoff_queue", "queue_full")
		return false
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case q.items <- it:
		metrics.UpdateHandoffQueueSize(len(q.items))
		return true
	case <-timer.C:
		metrics.RecordErrorByComponent("handoff_queue", "queue_full")
		return false
	case <-ctx.Done():
		metrics.RecordErrorByComponent("handoff_queue", "context_cancelled")
		return false
	}
}

// Dequeue waits up to timeout for the next item.
func (q *InMemoryQueue) Dequeue(ctx context.Context, timeout time.Duration) (Item, error) {
	select {
	case it, ok := <-q.items:
		return q.received(it, ok)
	default:
	}
	if timeout <= 0 {
		return Item{}, ErrEmpty
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case it, ok := <-q.items:
		return q.received(it, ok)
	case <-timer.C:
		return Item{}, ErrEmpty
	case <-ctx.Done():
		return Item{}, ctx.Err()
	}
}

func (q *InMemoryQueue) received(it Item, ok bool) (Item, error) {
	if !ok {
		return Item{}, ErrClosed
	}
	metrics.UpdateHandoffQueueSize(len(q.items))
	return it, nil
}

// Len returns the current number of queued items.
func (q *InMemoryQueue) Len() int {
	return len(q.items)
}

// Cap returns the configured capacity.
func (q *InMemoryQueue) Cap() int {
	return q.capacity
}

// Close gracefully shuts down the queue.
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
