// Package identity resolves numeric entity ids into display names.
package identity

import (
	"context"
	"strings"
	"sync"
)

// Resolver maps a numeric entity id to a display name.
type Resolver interface {
	Resolve(ctx context.Context, id int64) (string, bool)
}

// Directory is an in-memory Resolver fed from configuration and attach events.
type Directory struct {
	mu    sync.RWMutex
	names map[int64]string
}

// NewDirectory creates a Directory seeded with names.
func NewDirectory(names map[int64]string) *Directory {
	d := &Directory{names: make(map[int64]string, len(names))}
	for id, name := range names {
		d.Register(id, name)
	}
	return d
}

// Register records name for id. Blank names are ignored.
func (d *Directory) Register(id int64, name string) {
	name = strings.TrimSpace(name)
	if name == "" {
		return
	}
	d.mu.Lock()
	d.names[id] = name
	d.mu.Unlock()
}

// Resolve implements Resolver.
func (d *Directory) Resolve(_ context.Context, id int64) (string, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	name, ok := d.names[id]
	return name, ok
}

// Len returns the number of known names.
func (d *Directory) Len() int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.names)
}
