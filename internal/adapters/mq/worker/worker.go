// Package worker applies lifecycle events to the datastore. Events are
// sharded by entity so one entity's attach and detach run in order.
package worker

import (
	"context"
	"errors"
	"fmt"
	"hash/fnv"
	"strconv"
	"sync"
	"time"

	"github.com/okian/tally/internal/adapters/mq/queue"
	"github.com/okian/tally/internal/domain/model"
	"github.com/okian/tally/pkg/logger"
	"github.com/okian/tally/pkg/metrics"
)

// Default worker configuration constants.
const (
	poolShutdownTimeout = 30 * time.Second
)

// ErrStopped is returned by Submit after Shutdown.
var ErrStopped = errors.New("worker pool stopped")

// Event abstracts what workers read off the queue.
type Event = model.LifecycleEvent

// Handler applies one lifecycle event.
type Handler interface {
	Handle(ctx context.Context, e Event) error
}

// HandlerFunc adapts a function to Handler.
type HandlerFunc func(ctx context.Context, e Event) error

// Handle calls f.
func (f HandlerFunc) Handle(ctx context.Context, e Event) error { return f(ctx, e) }

// Queue defines how workers receive events.
type Queue interface {
	Dequeue() <-chan Event
}

// InMemoryWorker drains one queue sequentially.
type InMemoryWorker struct {
	queue   Queue
	handler Handler
	name    string

	done chan struct{}

	logger logger.Logger
}

// NewInMemoryWorker creates a new worker with configuration options.
func NewInMemoryWorker(q Queue, handler Handler, opts ...Option) *InMemoryWorker {
	w := &InMemoryWorker{
		queue:   q,
		handler: handler,
		name:    "worker",
		done:    make(chan struct{}),
		logger:  logger.Get().Named("worker"),
	}
	for _, opt := range opts {
		opt(w)
	}
	if w.name != "worker" {
		w.logger = w.logger.Named(w.name)
	}
	return w
}

// Run processes events until the queue is closed and drained. Events are
// applied with ctx even after it is cancelled so detaches still reach the
// store during shutdown.
func (w *InMemoryWorker) Run(ctx context.Context) {
	defer close(w.done)

	for event := range w.queue.Dequeue() {
		if err := w.processEvent(ctx, event); err != nil {
			w.logger.Error(ctx, "error processing event", logger.Error(err))
		}
	}
}

// Done is closed when Run returns.
func (w *InMemoryWorker) Done() <-chan struct{} { return w.done }

func (w *InMemoryWorker) processEvent(ctx context.Context, event Event) error {
	start := time.Now()
	err := w.handler.Handle(context.WithoutCancel(ctx), event)
	if err != nil {
		metrics.RecordLifecycleEvent(string(event.Kind), "error")
		metrics.RecordErrorByComponent("worker", string(event.Kind))
		metrics.RecordErrorLatency("worker", string(event.Kind), float64(time.Since(start).Milliseconds()))
		return fmt.Errorf("%s %s for %d: %w", event.Kind, event.EventID, event.EntityID, err)
	}
	metrics.RecordLifecycleEvent(string(event.Kind), "ok")
	return nil
}

// Pool runs one worker per shard.
type Pool struct {
	shards  []*queue.InMemoryQueue
	workers []*InMemoryWorker

	mu      sync.RWMutex
	stopped bool

	logger logger.Logger
}

// NewPool creates shardCount queues of queueSize each, all feeding handler.
func NewPool(shardCount, queueSize int, handler Handler) *Pool {
	if shardCount < 1 {
		shardCount = 1
	}
	p := &Pool{
		shards:  make([]*queue.InMemoryQueue, shardCount),
		workers: make([]*InMemoryWorker, shardCount),
		logger:  logger.Get().Named("worker-pool"),
	}
	for i := 0; i < shardCount; i++ {
		p.shards[i] = queue.NewInMemoryQueue(queue.WithCapacity(queueSize))
		p.workers[i] = NewInMemoryWorker(p.shards[i], handler, WithName("worker-"+strconv.Itoa(i)))
	}
	metrics.UpdateWorkerCount(shardCount)
	metrics.UpdateQueueCapacity(shardCount * p.shards[0].Capacity())
	return p
}

// Start starts all workers in the pool.
func (p *Pool) Start(ctx context.Context) {
	for _, w := range p.workers {
		go w.Run(ctx)
	}
}

func (p *Pool) shard(entityID int64) *queue.InMemoryQueue {
	h := fnv.New32a()
	_, _ = h.Write([]byte(strconv.FormatInt(entityID, 10)))
	return p.shards[h.Sum32()%uint32(len(p.shards))]
}

// Submit routes e to its entity's shard without blocking. It fails with
// queue.ErrFull when that shard is saturated.
func (p *Pool) Submit(ctx context.Context, e Event) error {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.stopped {
		return ErrStopped
	}
	if err := p.shard(e.EntityID).Enqueue(ctx, e); err != nil {
		return err
	}
	metrics.UpdateQueueSize(p.Len())
	return nil
}

// Len returns the number of events waiting across all shards.
func (p *Pool) Len() int {
	n := 0
	for _, q := range p.shards {
		n += q.Len()
	}
	return n
}

// Shutdown stops intake and waits for every shard to drain.
func (p *Pool) Shutdown(ctx context.Context) error {
	p.mu.Lock()
	if p.stopped {
		p.mu.Unlock()
		return nil
	}
	p.stopped = true
	for _, q := range p.shards {
		if err := q.Close(); err != nil {
			p.logger.Error(ctx, "error closing queue", logger.Error(err))
		}
	}
	p.mu.Unlock()

	shutdownCtx, cancel := context.WithTimeout(ctx, poolShutdownTimeout)
	defer cancel()

	for i, w := range p.workers {
		select {
		case <-w.Done():
		case <-shutdownCtx.Done():
			p.logger.Warn(ctx, "worker shutdown timed out", logger.Int("worker_id", i))
			return fmt.Errorf("worker %d: %w", i, shutdownCtx.Err())
		}
	}
	metrics.UpdateQueueSize(0)
	return nil
}
