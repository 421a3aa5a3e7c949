package datastore

import (
	"context"
	"fmt"
	"strconv"

	"github.com/okian/tally/internal/adapters/repository"
	"github.com/okian/tally/internal/domain/retry"
	"github.com/okian/tally/internal/domain/types"
	"github.com/okian/tally/pkg/logger"
	"github.com/okian/tally/pkg/metrics"
)

// IncrementRanked adds delta to key's score in the ranked template and
// returns the new score. A retried increment may be applied twice when an
// attempt fails after the store committed it.
func (m *Manager) IncrementRanked(ctx context.Context, template, key string, delta float64) (float64, error) {
	t, ok := m.rankedTemplate(template)
	if !ok {
		metrics.RecordRankedIncrement(template, "unknown")
		return 0, fmt.Errorf("%w: %s", ErrUnknownTemplate, template)
	}
	score, err := retry.Do(ctx, m.retry, "ranked.increment", func(ctx context.Context) (float64, error) {
		return m.ranked.Increment(ctx, t.namespace, key, delta)
	})
	if err != nil {
		metrics.RecordRankedIncrement(template, "error")
		return 0, fmt.Errorf("increment %s/%s: %w", template, key, err)
	}
	metrics.RecordRankedIncrement(template, "ok")
	return score, nil
}

// TopN returns the n best entries of a ranked template with their display
// names. Keys that are not numeric ids or cannot be resolved are skipped.
// An unknown template or a failed fetch yields an empty slice and the error;
// an empty store yields an empty slice and no error.
func (m *Manager) TopN(ctx context.Context, template string, n int) ([]types.Standing, error) {
	t, ok := m.rankedTemplate(template)
	if !ok {
		metrics.RecordLeaderboardRead(template, "unknown")
		return []types.Standing{}, fmt.Errorf("%w: %s", ErrUnknownTemplate, template)
	}
	if n <= 0 {
		return []types.Standing{}, nil
	}

	page, err := retry.Do(ctx, m.retry, "ranked.top", func(ctx context.Context) ([]repository.Entry, error) {
		return m.ranked.TopPage(ctx, t.namespace, true, n)
	})
	if err != nil {
		metrics.RecordLeaderboardRead(template, "error")
		m.logger.Warn(ctx, "top-n fetch failed",
			logger.String("template", template),
			logger.Error(err),
		)
		return []types.Standing{}, fmt.Errorf("top %d of %s: %w", n, template, err)
	}

	out := make([]types.Standing, 0, len(page))
	for _, e := range page {
		id, err := strconv.ParseInt(e.Key, 10, 64)
		if err != nil {
			continue
		}
		name, ok := m.resolver.Resolve(ctx, id)
		if !ok {
			continue
		}
		out = append(out, types.Standing{Rank: e.Rank, EntityID: id, Name: name, Score: e.Score})
	}
	metrics.RecordLeaderboardRead(template, "ok")
	return out, nil
}
