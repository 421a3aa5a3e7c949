// Package repository holds the remote store contracts consumed by the
// datastore layer and their adapters (bbolt, sqlite, in-memory).
package repository

import "context"

// Entry is one row of a ranked page.
type Entry struct {
	Rank  int
	Key   string
	Score float64
}

// KeyValueStore persists opaque documents by namespace and key.
// Implementations may fail transiently; callers retry.
type KeyValueStore interface {
	// Get returns the stored bytes and true, or false when nothing is stored.
	Get(ctx context.Context, namespace, key string) ([]byte, bool, error)

	// Set overwrites the value stored under key.
	Set(ctx context.Context, namespace, key string, value []byte) error

	Close() error
}

// RankedStore keeps a total order over key -> score per namespace.
type RankedStore interface {
	// Increment atomically adds delta to key's score (starting from zero)
	// and returns the new score.
	Increment(ctx context.Context, namespace, key string, delta float64) (float64, error)

	// TopPage returns up to pageSize entries ordered by score.
	TopPage(ctx context.Context, namespace string, descending bool, pageSize int) ([]Entry, error)

	Close() error
}
