package repository

import (
	"context"
	"sync"
)

// MemoryStore is a process-local KeyValueStore. Values are copied on the
// way in and out so callers cannot alias stored bytes.
type MemoryStore struct {
	mu     sync.RWMutex
	data   map[string]map[string][]byte
	closed bool
}

var _ KeyValueStore = (*MemoryStore)(nil)

// NewMemoryStore returns an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{data: make(map[string]map[string][]byte)}
}

func (m *MemoryStore) Get(ctx context.Context, namespace, key string) ([]byte, bool, error) {
	if err := validateKV(namespace, key); err != nil {
		return nil, false, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return nil, false, ErrClosed
	}
	val, ok := m.data[namespace][key]
	if !ok {
		return nil, false, nil
	}
	return append([]byte(nil), val...), true, nil
}

func (m *MemoryStore) Set(ctx context.Context, namespace, key string, value []byte) error {
	if err := validateKV(namespace, key); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrClosed
	}
	ns, ok := m.data[namespace]
	if !ok {
		ns = make(map[string][]byte)
		m.data[namespace] = ns
	}
	ns[key] = append([]byte(nil), value...)
	return nil
}

func (m *MemoryStore) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}
