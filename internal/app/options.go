package service

import (
	"time"

	"github.com/okian/tally/internal/domain/identity"
	"github.com/okian/tally/internal/domain/record"
	"github.com/okian/tally/pkg/logger"
)

// Option applies a configuration option to the Service.
type Option func(*Service)

// WithWorkerCount sets the number of worker shards.
func WithWorkerCount(count int) Option {
	return func(s *Service) {
		if count > 0 {
			s.workerCount = count
		}
	}
}

// WithQueueSize sets the capacity of each shard's queue.
func WithQueueSize(size int) Option {
	return func(s *Service) {
		if size > 0 {
			s.queueSize = size
		}
	}
}

// WithDedupeSize sets the size of the deduplication cache.
func WithDedupeSize(size int) Option {
	return func(s *Service) {
		if size > 0 {
			s.dedupeSize = size
		}
	}
}

// WithVersion sets the store version appended to every namespace.
func WithVersion(v int) Option {
	return func(s *Service) {
		if v > 0 {
			s.version = v
		}
	}
}

// WithMaxAttempts sets how many times a remote store call is tried.
func WithMaxAttempts(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.maxAttempts = n
		}
	}
}

// WithDefaults replaces the built-in player record defaults.
func WithDefaults(r *record.Record) Option {
	return func(s *Service) {
		if r != nil {
			s.defaults = r
		}
	}
}

// WithAutosave sets the autosave period. Zero disables autosave.
func WithAutosave(d time.Duration) Option {
	return func(s *Service) {
		if d >= 0 {
			s.autosave = d
		}
	}
}

// WithPlaytime sets how often the playtime stat ticks.
func WithPlaytime(d time.Duration) Option {
	return func(s *Service) {
		if d > 0 {
			s.playtime = d
		}
	}
}

// WithLeaderboard sets the board size, the largest accepted limit and the
// refresh period.
func WithLeaderboard(size, maxLimit int, refresh time.Duration) Option {
	return func(s *Service) {
		if size > 0 {
			s.leaderboardSize = size
		}
		if maxLimit > 0 {
			s.maxLimit = maxLimit
		}
		if refresh > 0 {
			s.refresh = refresh
		}
	}
}

// WithDirectory sets the directory display names are resolved from.
func WithDirectory(d *identity.Directory) Option {
	return func(s *Service) {
		if d != nil {
			s.directory = d
		}
	}
}

// WithLogger sets a custom logger for the service.
func WithLogger(l logger.Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.logger = l
		}
	}
}
