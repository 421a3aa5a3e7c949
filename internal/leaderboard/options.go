package leaderboard

import (
	"time"

	"github.com/okian/tally/pkg/logger"
)

// Option applies a configuration option to the Service.
type Option func(*Service)

// WithSource sets the scalar template and numeric field feeding the boards.
func WithSource(template, field string) Option {
	return func(s *Service) {
		if template != "" {
			s.source = template
		}
		if field != "" {
			s.field = field
		}
	}
}

// WithBuckets fixes the day and week tags.
func WithBuckets(b Buckets) Option {
	return func(s *Service) {
		if b.Day != "" && b.Week != "" {
			s.buckets = b
		}
	}
}

// WithSize sets how many standings each refresh keeps.
func WithSize(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.size = n
		}
	}
}

// WithMaxLimit caps the limit accepted by Top.
func WithMaxLimit(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.maxLimit = n
		}
	}
}

// WithRefreshInterval sets the refresh period of Run.
func WithRefreshInterval(d time.Duration) Option {
	return func(s *Service) {
		if d > 0 {
			s.every = d
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
