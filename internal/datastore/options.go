package datastore

import (
	"github.com/okian/tally/internal/domain/identity"
	"github.com/okian/tally/internal/domain/retry"
	"github.com/okian/tally/internal/schedule"
	"github.com/okian/tally/pkg/logger"
)

// DefaultVersion is appended to every namespace unless overridden.
const DefaultVersion = 2

// Option applies a configuration option to the Manager.
type Option func(*Manager)

// WithVersion sets the namespace version tag.
func WithVersion(v int) Option {
	return func(m *Manager) {
		if v > 0 {
			m.version = v
		}
	}
}

// WithRetry sets the executor wrapping every remote call.
func WithRetry(e *retry.Executor) Option {
	return func(m *Manager) {
		if e != nil {
			m.retry = e
		}
	}
}

// WithResolver sets the identity collaborator used by TopN.
func WithResolver(r identity.Resolver) Option {
	return func(m *Manager) {
		if r != nil {
			m.resolver = r
		}
	}
}

// WithScheduler sets the scheduler that runs autosave timers.
func WithScheduler(s *schedule.Scheduler) Option {
	return func(m *Manager) {
		if s != nil {
			m.scheduler = s
		}
	}
}

// WithLogger sets a custom logger for the manager.
func WithLogger(l logger.Logger) Option {
	return func(m *Manager) {
		if l != nil {
			m.logger = l
		}
	}
}
