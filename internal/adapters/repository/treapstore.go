package repository

import (
	"context"
	"hash/fnv"
	"strings"
	"sync"
	"time"

	"github.com/okian/tally/pkg/metrics"
)

// Treap-based, in-memory RankedStore implementation.
//
// Ordering: score DESC, then key ASC (deterministic).
// "less" means ranks earlier, so in-order traversal produces the board from
// best to worst and reverse in-order from worst to best.

// treap node
type node struct {
	key   string
	score float64
	prio  uint64
	left  *node
	right *node
	size  int
}

func nsize(n *node) int {
	if n == nil {
		return 0
	}
	return n.size
}

func fix(n *node) {
	if n != nil {
		n.size = 1 + nsize(n.left) + nsize(n.right)
	}
}

// less returns true if (aScore, aKey) should appear before (bScore, bKey).
func less(aScore float64, aKey string, bScore float64, bKey string) bool {
	if aScore != bScore {
		return aScore > bScore
	}
	return aKey < bKey
}

func rotateRight(y *node) *node {
	x := y.left
	t2 := x.right
	x.right = y
	y.left = t2
	fix(y)
	fix(x)
	return x
}

func rotateLeft(x *node) *node {
	y := x.right
	t2 := y.left
	y.left = x
	x.right = t2
	fix(x)
	fix(y)
	return y
}

// keyPriority derives a stable heap priority from the key so the tree shape
// does not depend on score order.
func keyPriority(key string) uint64 {
	h := fnv.New64a()
	_, _ = h.Write([]byte(key))
	return h.Sum64()
}

func insert(n *node, key string, score float64) *node {
	if n == nil {
		return &node{key: key, score: score, prio: keyPriority(key), size: 1}
	}
	if less(score, key, n.score, n.key) {
		n.left = insert(n.left, key, score)
		if n.left.prio > n.prio {
			n = rotateRight(n)
		}
	} else {
		n.right = insert(n.right, key, score)
		if n.right.prio > n.prio {
			n = rotateLeft(n)
		}
	}
	fix(n)
	return n
}

func deleteNode(n *node, key string, score float64) *node {
	if n == nil {
		return nil
	}
	if score == n.score && key == n.key {
		if n.left == nil {
			return n.right
		}
		if n.right == nil {
			return n.left
		}
		if n.left.prio > n.right.prio {
			n = rotateRight(n)
			n.right = deleteNode(n.right, key, score)
		} else {
			n = rotateLeft(n)
			n.left = deleteNode(n.left, key, score)
		}
	} else if less(score, key, n.score, n.key) {
		n.left = deleteNode(n.left, key, score)
	} else {
		n.right = deleteNode(n.right, key, score)
	}
	fix(n)
	return n
}

// collectBest appends up to limit entries from best to worst.
func collectBest(n *node, limit int, out *[]Entry) {
	if n == nil || len(*out) >= limit {
		return
	}
	collectBest(n.left, limit, out)
	if len(*out) < limit {
		*out = append(*out, Entry{Key: n.key, Score: n.score})
	}
	if len(*out) < limit {
		collectBest(n.right, limit, out)
	}
}

// collectWorst appends up to limit entries from worst to best.
func collectWorst(n *node, limit int, out *[]Entry) {
	if n == nil || len(*out) >= limit {
		return
	}
	collectWorst(n.right, limit, out)
	if len(*out) < limit {
		*out = append(*out, Entry{Key: n.key, Score: n.score})
	}
	if len(*out) < limit {
		collectWorst(n.left, limit, out)
	}
}

// board is one namespace's ordered set.
type board struct {
	root  *node
	byKey map[string]float64
}

// TreapStore keeps one treap per namespace.
type TreapStore struct {
	mu     sync.RWMutex
	boards map[string]*board
	closed bool
}

var _ RankedStore = (*TreapStore)(nil)

// NewTreapStore constructs an empty in-memory ranked store.
func NewTreapStore() *TreapStore {
	return &TreapStore{boards: make(map[string]*board)}
}

// Increment adds delta to key's score in O(log n) expected time.
func (s *TreapStore) Increment(ctx context.Context, namespace, key string, delta float64) (float64, error) {
	start := time.Now()
	defer func() {
		metrics.RecordRepositoryUpdateLatency(float64(time.Since(start).Milliseconds()))
	}()

	if strings.TrimSpace(namespace) == "" {
		return 0, ErrInvalidNamespace
	}
	if key == "" {
		return 0, ErrInvalidKey
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return 0, ErrClosed
	}

	b, ok := s.boards[namespace]
	if !ok {
		b = &board{byKey: make(map[string]float64)}
		s.boards[namespace] = b
	}
	old, exists := b.byKey[key]
	if exists {
		b.root = deleteNode(b.root, key, old)
	}
	score := old + delta
	b.byKey[key] = score
	b.root = insert(b.root, key, score)
	return score, nil
}

// TopPage returns up to pageSize entries in the requested direction.
// Unknown namespaces yield an empty page.
func (s *TreapStore) TopPage(ctx context.Context, namespace string, descending bool, pageSize int) ([]Entry, error) {
	start := time.Now()
	defer func() {
		metrics.RecordRepositoryQueryLatency(float64(time.Since(start).Milliseconds()))
	}()

	if pageSize < 1 {
		return nil, ErrInvalidLimit
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, ErrClosed
	}

	b, ok := s.boards[namespace]
	if !ok {
		return []Entry{}, nil
	}
	out := make([]Entry, 0, min(pageSize, len(b.byKey)))
	if descending {
		collectBest(b.root, pageSize, &out)
	} else {
		collectWorst(b.root, pageSize, &out)
	}
	assignRanks(out)
	return out, nil
}

// Count returns the number of keys tracked in namespace.
func (s *TreapStore) Count(namespace string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if b, ok := s.boards[namespace]; ok {
		return len(b.byKey)
	}
	return 0
}

// Close marks the store closed; later calls fail with ErrClosed.
func (s *TreapStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

// assignRanks numbers entries consecutively, giving equal scores equal ranks.
func assignRanks(entries []Entry) {
	rank := 0
	for i := range entries {
		if i == 0 || entries[i].Score != entries[i-1].Score {
			rank++
		}
		entries[i].Rank = rank
	}
}
