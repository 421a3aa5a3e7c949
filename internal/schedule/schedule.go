// Package schedule runs keyed periodic tasks that can be cancelled
// individually (detach) or all at once (shutdown).
package schedule

import (
	"context"
	"sync"
	"time"

	"github.com/okian/tally/pkg/logger"
)

// Task is invoked on every tick. Returning false stops the task.
type Task func(ctx context.Context) bool

type entry struct {
	cancel context.CancelFunc
	done   chan struct{}
}

// Scheduler owns a set of periodic tasks keyed by string.
type Scheduler struct {
	mu     sync.Mutex
	tasks  map[string]*entry
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
	logger logger.Logger
}

// Option applies a configuration option to the Scheduler.
type Option func(*Scheduler)

// WithLogger sets a custom logger for the scheduler.
func WithLogger(l logger.Logger) Option {
	return func(s *Scheduler) {
		if l != nil {
			s.logger = l
		}
	}
}

// New creates an empty Scheduler.
func New(opts ...Option) *Scheduler {
	ctx, cancel := context.WithCancel(context.Background())
	s := &Scheduler{
		tasks:  make(map[string]*entry),
		ctx:    ctx,
		cancel: cancel,
		logger: logger.Get().Named("schedule"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Arm starts fn every interval under key, replacing any task already
// armed under the same key. It returns false once the scheduler is stopped
// or when interval is not positive.
func (s *Scheduler) Arm(key string, interval time.Duration, fn Task) bool {
	if interval <= 0 || fn == nil {
		return false
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ctx.Err() != nil {
		return false
	}
	if old, ok := s.tasks[key]; ok {
		old.cancel()
	}

	ctx, cancel := context.WithCancel(s.ctx)
	e := &entry{cancel: cancel, done: make(chan struct{})}
	s.tasks[key] = e

	s.wg.Add(1)
	go s.run(ctx, key, e, interval, fn)
	return true
}

func (s *Scheduler) run(ctx context.Context, key string, e *entry, interval time.Duration, fn Task) {
	defer s.wg.Done()
	defer close(e.done)
	defer s.release(key, e)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			// select picks randomly when both are ready
			if ctx.Err() != nil {
				return
			}
			if !fn(ctx) {
				s.logger.Debug(ctx, "task finished", logger.String("key", key))
				return
			}
		}
	}
}

// release drops key only if it still maps to e; a re-armed task keeps its slot.
func (s *Scheduler) release(key string, e *entry) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if cur, ok := s.tasks[key]; ok && cur == e {
		e.cancel()
		delete(s.tasks, key)
	}
}

// Cancel stops the task under key. It does not wait for an in-flight tick.
func (s *Scheduler) Cancel(key string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.tasks[key]
	if !ok {
		return false
	}
	e.cancel()
	delete(s.tasks, key)
	return true
}

// Armed reports whether a task is currently armed under key.
func (s *Scheduler) Armed(key string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.tasks[key]
	return ok
}

// Len returns the number of armed tasks.
func (s *Scheduler) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.tasks)
}

// Stop cancels every task and waits for running ticks to return, or for
// ctx to expire. Arm fails after Stop.
func (s *Scheduler) Stop(ctx context.Context) error {
	s.mu.Lock()
	s.cancel()
	clear(s.tasks)
	s.mu.Unlock()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
