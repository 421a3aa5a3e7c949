// Package queue holds lifecycle events between the HTTP surface and the
// workers that load and detach entity records.
package queue

import (
	"context"
	"sync"

	"github.com/okian/tally/internal/domain/model"
	"github.com/okian/tally/pkg/metrics"
)

// Default queue configuration constants.
const (
	defaultQueueCapacity = 1024
)

// Event represents the payload type flowing through the queue.
type Event = model.LifecycleEvent

// Queue provides non-blocking enqueue and channel-based dequeue semantics.
type Queue interface {
	// Enqueue adds an event without blocking. It fails with ErrFull or ErrClosed.
	Enqueue(ctx context.Context, e Event) error

	// Dequeue returns the receive side of the queue. It is closed, after
	// the remaining events are drained, once Close is called.
	Dequeue() <-chan Event

	// Len returns the current number of queued events.
	Len() int

	// Close stops accepting events.
	Close() error

	// IsClosed returns true if the queue has been closed.
	IsClosed() bool
}

// InMemoryQueue implements Queue using a buffered channel.
type InMemoryQueue struct {
	events   chan Event
	capacity int
	mu       sync.RWMutex
	closed   bool
}

// NewInMemoryQueue creates a new in-memory queue with configuration options.
func NewInMemoryQueue(opts ...Option) *InMemoryQueue {
	q := &InMemoryQueue{capacity: defaultQueueCapacity}
	for _, opt := range opts {
		opt(q)
	}
	q.events = make(chan Event, q.capacity)
	return q
}

// Enqueue adds an event to the queue.
func (q *InMemoryQueue) Enqueue(ctx context.Context, e Event) error {
	q.mu.RLock()
	defer q.mu.RUnlock()

	if q.closed {
		metrics.RecordQueueEnqueueError("closed")
		return ErrClosed
	}
	if err := ctx.Err(); err != nil {
		metrics.RecordQueueEnqueueError("context_cancelled")
		return err
	}

	select {
	case q.events <- e:
		return nil
	default:
		metrics.RecordQueueEnqueueError("full")
		metrics.RecordErrorByComponent("queue", "full")
		return ErrFull
	}
}

// Dequeue returns the queue's receive channel.
func (q *InMemoryQueue) Dequeue() <-chan Event {
	return q.events
}

// Len returns the current number of queued events.
func (q *InMemoryQueue) Len() int {
	return len(q.events)
}

// Capacity returns the configured bound.
func (q *InMemoryQueue) Capacity() int {
	return q.capacity
}

// Close gracefully shuts down the queue.
func (q *InMemoryQueue) Close() error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return nil
	}
	close(q.events)
	q.closed = true
	return nil
}

// IsClosed returns true if the queue has been closed.
func (q *InMemoryQueue) IsClosed() bool {
	q.mu.RLock()
	defer q.mu.RUnlock()
	return q.closed
}
