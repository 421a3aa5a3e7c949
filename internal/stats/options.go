package stats

import (
	"time"

	"github.com/okian/tally/internal/schedule"
	"github.com/okian/tally/pkg/logger"
)

// Option applies a configuration option to the Keeper.
type Option func(*Keeper)

// WithTemplate sets the scalar template holding the stats.
func WithTemplate(name string) Option {
	return func(k *Keeper) {
		if name != "" {
			k.template = name
		}
	}
}

// WithScheduler sets the scheduler running playtime accrual.
func WithScheduler(s *schedule.Scheduler) Option {
	return func(k *Keeper) {
		if s != nil {
			k.scheduler = s
		}
	}
}

// WithPlaytime sets the field and period of playtime accrual.
func WithPlaytime(field string, every time.Duration) Option {
	return func(k *Keeper) {
		if field != "" {
			k.playtimeField = field
		}
		if every > 0 {
			k.playtimeEvery = every
		}
	}
}

// WithLogger sets a custom logger for the keeper.
func WithLogger(l logger.Logger) Option {
	return func(k *Keeper) {
		if l != nil {
			k.logger = l
		}
	}
}
