package datastore

import (
	"context"
	"errors"
	"sync"

	"github.com/okian/tally/internal/adapters/repository"
)

var errTransient = errors.New("transient store failure")

// flakyKV fails the next getFailures/setFailures calls, then delegates.
type flakyKV struct {
	repository.KeyValueStore

	mu          sync.Mutex
	getFailures int
	setFailures int
	gets        int
	sets        int
	onSet       func()
}

func newFlakyKV() *flakyKV {
	return &flakyKV{KeyValueStore: repository.NewMemoryStore()}
}

func (f *flakyKV) Get(ctx context.Context, ns, key string) ([]byte, bool, error) {
	f.mu.Lock()
	f.gets++
	fail := f.getFailures > 0
	if fail {
		f.getFailures--
	}
	f.mu.Unlock()
	if fail {
		return nil, false, errTransient
	}
	return f.KeyValueStore.Get(ctx, ns, key)
}

func (f *flakyKV) Set(ctx context.Context, ns, key string, value []byte) error {
	f.mu.Lock()
	f.sets++
	fail := f.setFailures > 0
	if fail {
		f.setFailures--
	}
	hook := f.onSet
	f.mu.Unlock()
	if hook != nil {
		hook()
	}
	if fail {
		return errTransient
	}
	return f.KeyValueStore.Set(ctx, ns, key, value)
}

func (f *flakyKV) counts() (gets, sets int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.gets, f.sets
}

// flakyRanked fails the next incFailures/topFailures calls, then delegates.
type flakyRanked struct {
	*repository.TreapStore

	mu          sync.Mutex
	incFailures int
	topFailures int
	increments  int
	tops        int

	// gate, when set, parks the next non-zero increment until it is closed.
	gate    chan struct{}
	entered chan struct{}
}

func newFlakyRanked() *flakyRanked {
	return &flakyRanked{TreapStore: repository.NewTreapStore()}
}

func (f *flakyRanked) Increment(ctx context.Context, ns, key string, delta float64) (float64, error) {
	f.mu.Lock()
	f.increments++
	fail := f.incFailures > 0
	if fail {
		f.incFailures--
	}
	gate, entered := f.gate, f.entered
	if delta != 0 && gate != nil {
		f.gate, f.entered = nil, nil
	} else {
		gate = nil
	}
	f.mu.Unlock()
	if gate != nil {
		close(entered)
		<-gate
	}
	if fail {
		return 0, errTransient
	}
	return f.TreapStore.Increment(ctx, ns, key, delta)
}

// hold arms the gate and returns the channel closed once an increment parks.
func (f *flakyRanked) hold(gate chan struct{}) <-chan struct{} {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.gate = gate
	f.entered = make(chan struct{})
	return f.entered
}

func (f *flakyRanked) TopPage(ctx context.Context, ns string, descending bool, n int) ([]repository.Entry, error) {
	f.mu.Lock()
	f.tops++
	fail := f.topFailures > 0
	if fail {
		f.topFailures--
	}
	f.mu.Unlock()
	if fail {
		return nil, errTransient
	}
	return f.TreapStore.TopPage(ctx, ns, descending, n)
}

func (f *flakyRanked) score(ctx context.Context, ns, key string) (float64, bool) {
	page, err := f.TreapStore.TopPage(ctx, ns, true, 1000)
	if err != nil {
		return 0, false
	}
	for _, e := range page {
		if e.Key == key {
			return e.Score, true
		}
	}
	return 0, false
}
