// Package dedupe tracks lifecycle event ids so redelivered events are dropped.
package dedupe

import (
	"container/list"
	"context"
	"sync"
)

// DefaultMaxSize bounds the seen-set when no option overrides it.
const DefaultMaxSize = 50_000

// Deduper records seen event IDs so at-least-once delivery is applied once.
type Deduper interface {
	// SeenAndRecord atomically checks if id was seen and records it if not.
	// Returns true if id was already seen, false if it was newly recorded.
	SeenAndRecord(ctx context.Context, id string) bool

	// Unrecord forgets id so a rejected delivery (e.g. backpressure) can
	// be retried by the sender.
	Unrecord(ctx context.Context, id string)

	Size() int64
}

// inMemoryDeduper keeps the newest maxSize ids and evicts the oldest first.
// A non-positive maxSize disables eviction.
type inMemoryDeduper struct {
	mu      sync.Mutex
	seen    map[string]*list.Element
	order   *list.List // front = oldest
	maxSize int
}

// NewInMemoryDeduper creates a new in-memory deduper with configuration options.
func NewInMemoryDeduper(opts ...Option) Deduper {
	d := &inMemoryDeduper{
		seen:    make(map[string]*list.Element),
		order:   list.New(),
		maxSize: DefaultMaxSize,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

func (d *inMemoryDeduper) SeenAndRecord(_ context.Context, id string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	if _, ok := d.seen[id]; ok {
		return true
	}
	if d.maxSize > 0 {
		for d.order.Len() >= d.maxSize {
			oldest := d.order.Front()
			d.order.Remove(oldest)
			delete(d.seen, oldest.Value.(string))
		}
	}
	d.seen[id] = d.order.PushBack(id)
	return false
}

func (d *inMemoryDeduper) Unrecord(_ context.Context, id string) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if el, ok := d.seen[id]; ok {
		d.order.Remove(el)
		delete(d.seen, id)
	}
}

func (d *inMemoryDeduper) Size() int64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	return int64(len(d.seen))
}
