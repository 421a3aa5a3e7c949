// Package leaderboard maintains coin boards (all-time, weekly, daily) fed by
// the sync of a numeric player field, and keeps a periodically refreshed
// top-N snapshot of each.
package leaderboard

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/okian/tally/internal/datastore"
	"github.com/okian/tally/internal/domain/record"
	"github.com/okian/tally/internal/domain/types"
	"github.com/okian/tally/pkg/logger"
)

// Board names accepted by Top.
const (
	BoardAll    = "all"
	BoardWeekly = "weekly"
	BoardDaily  = "daily"
)

// ErrUnknownBoard is returned for board names other than all, weekly, daily.
var ErrUnknownBoard = errors.New("unknown board")

// Store is the slice of the datastore the boards need.
type Store interface {
	RegisterRankedTemplate(name string, defaultScore float64) error
	AddSync(template, field string, fn datastore.Observer)
	IncrementRanked(ctx context.Context, template, key string, delta float64) (float64, error)
	TopN(ctx context.Context, template string, n int) ([]types.Standing, error)
}

// Board binds a public board name to its ranked template.
type Board struct {
	Name     string
	Template string
}

// Service owns the coin boards.
type Service struct {
	store    Store
	source   string
	field    string
	buckets  Buckets
	boards   []Board
	size     int
	maxLimit int
	every    time.Duration
	logger   logger.Logger

	snapshot atomic.Pointer[map[string]types.Board]
}

// New creates the boards for field of the source template.
func New(store Store, opts ...Option) *Service {
	s := &Service{
		store:    store,
		source:   "PlayerData",
		field:    "Coins",
		buckets:  BucketsAt(time.Now()),
		size:     10,
		maxLimit: 100,
		every:    15 * time.Second,
		logger:   logger.Get().Named("leaderboard"),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.boards = []Board{
		{Name: BoardAll, Template: "A_" + s.field},
		{Name: BoardWeekly, Template: s.buckets.Week + "_W_" + s.field},
		{Name: BoardDaily, Template: s.buckets.Day + "_D_" + s.field},
	}
	empty := map[string]types.Board{}
	s.snapshot.Store(&empty)
	return s
}

// Boards returns the boards in all, weekly, daily order.
func (s *Service) Boards() []Board {
	return append([]Board(nil), s.boards...)
}

// Register creates the ranked templates and the sync observer.
func (s *Service) Register() error {
	for _, b := range s.boards {
		if err := s.store.RegisterRankedTemplate(b.Template, 0); err != nil {
			return fmt.Errorf("register board %s: %w", b.Name, err)
		}
	}
	s.store.AddSync(s.source, s.field, s.observe)
	return nil
}

// observe pushes the field's delta into every board, then marks it synced.
// Failed increments are logged and do not hold back the sync mark.
func (s *Service) observe(ctx context.Context, entityID int64, f *record.Field) {
	delta, ok := f.Delta()
	if !ok {
		return
	}
	if delta != 0 {
		key := datastore.RankedKey(entityID)
		for _, b := range s.boards {
			if _, err := s.store.IncrementRanked(ctx, b.Template, key, delta); err != nil {
				s.logger.Error(ctx, "board increment failed",
					logger.String("sync_id", datastore.SyncID(ctx)),
					logger.String("board", b.Template),
					logger.Int64("entity", entityID),
					logger.Float64("delta", delta),
					logger.Error(err),
				)
			}
		}
	}
	f.MarkSynced()
}

// Refresh fetches the top entries of every board and replaces the snapshot.
func (s *Service) Refresh(ctx context.Context) []types.Board {
	next := make(map[string]types.Board, len(s.boards))
	out := make([]types.Board, 0, len(s.boards))
	for _, b := range s.boards {
		top, err := s.store.TopN(ctx, b.Template, s.size)
		if err != nil {
			s.logger.Warn(ctx, "board refresh failed",
				logger.String("board", b.Template),
				logger.Error(err),
			)
		}
		board := types.Board{Name: b.Name, Template: b.Template, Standings: top}
		next[b.Name] = board
		out = append(out, board)

		for _, st := range top {
			s.logger.Debug(ctx, "standing",
				logger.String("board", b.Name),
				logger.Int("rank", st.Rank),
				logger.String("name", st.Name),
				logger.Float64("score", st.Score),
			)
		}
	}
	s.snapshot.Store(&next)
	return out
}

// Run refreshes immediately and then on every tick until ctx is done.
func (s *Service) Run(ctx context.Context) {
	s.Refresh(ctx)

	ticker := time.NewTicker(s.every)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.Refresh(ctx)
		}
	}
}

// Top returns up to limit standings of the named board. It serves the last
// snapshot when it covers limit and queries the store otherwise.
func (s *Service) Top(ctx context.Context, name string, limit int) (types.Board, error) {
	var board Board
	found := false
	for _, b := range s.boards {
		if b.Name == name {
			board, found = b, true
			break
		}
	}
	if !found {
		return types.Board{}, fmt.Errorf("%w: %s", ErrUnknownBoard, name)
	}
	if limit <= 0 {
		limit = s.size
	}
	limit = min(limit, s.maxLimit)

	if snap, ok := (*s.snapshot.Load())[name]; ok && limit <= s.size {
		n := min(limit, len(snap.Standings))
		snap.Standings = append([]types.Standing(nil), snap.Standings[:n]...)
		return snap, nil
	}

	top, err := s.store.TopN(ctx, board.Template, limit)
	if err != nil {
		return types.Board{}, err
	}
	return types.Board{Name: board.Name, Template: board.Template, Standings: top}, nil
}
