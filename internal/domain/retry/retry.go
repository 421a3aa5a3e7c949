// Package retry wraps remote store calls with a bounded number of attempts.
//
// There is no delay between attempts: the remote store applies its own rate
// limiting. Operations are re-invoked as-is, so callers own idempotency.
package retry

import (
	"context"
	"fmt"
	"time"

	"github.com/okian/tally/pkg/logger"
	"github.com/okian/tally/pkg/metrics"
)

// DefaultMaxAttempts bounds how many times an operation is invoked.
const DefaultMaxAttempts = 4

// Executor runs operations with bounded retry.
type Executor struct {
	maxAttempts int
	logger      logger.Logger
}

// Option applies a configuration option to the Executor.
type Option func(*Executor)

// WithMaxAttempts sets the attempt bound.
func WithMaxAttempts(n int) Option {
	return func(e *Executor) {
		if n > 0 {
			e.maxAttempts = n
		}
	}
}

// WithLogger sets a custom logger for the executor.
func WithLogger(l logger.Logger) Option {
	return func(e *Executor) {
		if l != nil {
			e.logger = l
		}
	}
}

// New creates an Executor with DefaultMaxAttempts.
func New(opts ...Option) *Executor {
	e := &Executor{
		maxAttempts: DefaultMaxAttempts,
		logger:      logger.Get().Named("retry"),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// MaxAttempts returns the configured attempt bound.
func (e *Executor) MaxAttempts() int { return e.maxAttempts }

// Run invokes fn until it succeeds or the attempt bound is reached.
func (e *Executor) Run(ctx context.Context, op string, fn func(ctx context.Context) error) error {
	_, err := Do(ctx, e, op, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, fn(ctx)
	})
	return err
}

// Do invokes fn until it succeeds or the attempt bound is reached and
// returns the first successful result. On exhaustion the returned error
// wraps both ErrExhausted and the last failure.
func Do[T any](ctx context.Context, e *Executor, op string, fn func(ctx context.Context) (T, error)) (T, error) {
	var zero T
	var last error
	for attempt := 1; attempt <= e.maxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return zero, fmt.Errorf("%s: %w", op, err)
		}

		start := time.Now()
		out, err := fn(ctx)
		metrics.RecordStoreLatency(op, float64(time.Since(start).Milliseconds()))
		metrics.RecordStoreAttempt(op)
		if err == nil {
			return out, nil
		}

		last = err
		metrics.RecordStoreFailure(op)
		e.logger.Debug(ctx, "store operation failed",
			logger.String("op", op),
			logger.Int("attempt", attempt),
			logger.Error(err),
		)
	}

	metrics.RecordRetryExhausted(op)
	e.logger.Warn(ctx, "store operation exhausted retries",
		logger.String("op", op),
		logger.Int("attempts", e.maxAttempts),
		logger.Error(last),
	)
	return zero, fmt.Errorf("%s: %w after %d attempts: %w", op, ErrExhausted, e.maxAttempts, last)
}
