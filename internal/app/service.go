// Package service wires the datastore, stat keeper, boards and lifecycle
// workers into the dependencies required by the HTTP API.
package service

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"sync"
	"time"

	"github.com/okian/tally/internal/adapters/mq/worker"
	"github.com/okian/tally/internal/adapters/repository"
	"github.com/okian/tally/internal/datastore"
	"github.com/okian/tally/internal/domain/dedupe"
	"github.com/okian/tally/internal/domain/identity"
	"github.com/okian/tally/internal/domain/model"
	"github.com/okian/tally/internal/domain/record"
	"github.com/okian/tally/internal/domain/retry"
	"github.com/okian/tally/internal/domain/types"
	"github.com/okian/tally/internal/leaderboard"
	"github.com/okian/tally/internal/schedule"
	"github.com/okian/tally/internal/stats"
	"github.com/okian/tally/pkg/logger"
)

// ErrNotStarted is returned by calls that need a started service.
var ErrNotStarted = errors.New("service not started")

// Service hosts the player record and the coin boards.
type Service struct {
	mu sync.RWMutex

	kv     repository.KeyValueStore
	ranked repository.RankedStore

	// Core components
	directory *identity.Directory
	scheduler *schedule.Scheduler
	manager   *datastore.Manager
	keeper    *stats.Keeper
	boards    *leaderboard.Service
	deduper   dedupe.Deduper
	pool      *worker.Pool

	// Configuration
	workerCount     int
	queueSize       int
	dedupeSize      int
	version         int
	maxAttempts     int
	defaults        *record.Record
	autosave        time.Duration
	playtime        time.Duration
	refresh         time.Duration
	leaderboardSize int
	maxLimit        int

	// State
	started       bool
	cancelRefresh context.CancelFunc
	refreshDone   chan struct{}

	logger logger.Logger
}

// DefaultRecord is the player record used when no defaults file is given.
func DefaultRecord() *record.Record {
	zero := 0
	return &record.Record{
		Name: stats.DefaultTemplate,
		Fields: []record.Field{
			{Name: "Coins", Priority: &zero, Value: record.Number(0), LastSynced: record.Number(0)},
			{Name: stats.DefaultPlaytimeField, Priority: &zero, Value: record.Number(0), LastSynced: record.Number(0)},
		},
	}
}

// New constructs a Service over the given stores. Nothing runs until Start.
func New(kv repository.KeyValueStore, ranked repository.RankedStore, opts ...Option) *Service {
	s := &Service{
		kv:              kv,
		ranked:          ranked,
		workerCount:     runtime.NumCPU(),
		queueSize:       1024,
		dedupeSize:      dedupe.DefaultMaxSize,
		version:         datastore.DefaultVersion,
		maxAttempts:     retry.DefaultMaxAttempts,
		defaults:        DefaultRecord(),
		autosave:        10 * time.Second,
		playtime:        stats.DefaultPlaytimeEvery,
		refresh:         15 * time.Second,
		leaderboardSize: 10,
		maxLimit:        100,
		logger:          logger.Get().Named("service"),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.directory == nil {
		s.directory = identity.NewDirectory(nil)
	}
	return s
}

// Start registers the templates and boards, then starts the workers and
// the board refresh loop.
func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started {
		return nil
	}
	s.logger.Info(ctx, "starting tally service...")

	s.scheduler = schedule.New(schedule.WithLogger(s.logger.Named("schedule")))
	s.manager = datastore.New(s.kv, s.ranked,
		datastore.WithVersion(s.version),
		datastore.WithRetry(retry.New(retry.WithMaxAttempts(s.maxAttempts))),
		datastore.WithResolver(s.directory),
		datastore.WithScheduler(s.scheduler),
	)
	if err := s.manager.RegisterScalarTemplate(stats.DefaultTemplate, s.defaults, s.autosave); err != nil {
		return fmt.Errorf("register %s: %w", stats.DefaultTemplate, err)
	}
	s.keeper = stats.New(s.manager,
		stats.WithScheduler(s.scheduler),
		stats.WithPlaytime(stats.DefaultPlaytimeField, s.playtime),
	)
	s.boards = leaderboard.New(s.manager,
		leaderboard.WithSource(stats.DefaultTemplate, "Coins"),
		leaderboard.WithSize(s.leaderboardSize),
		leaderboard.WithMaxLimit(s.maxLimit),
		leaderboard.WithRefreshInterval(s.refresh),
	)
	if err := s.boards.Register(); err != nil {
		return err
	}

	s.deduper = dedupe.NewInMemoryDeduper(dedupe.WithMaxSize(s.dedupeSize))
	s.pool = worker.NewPool(s.workerCount, s.queueSize, s)
	s.pool.Start(ctx)

	refreshCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	s.cancelRefresh = cancel
	s.refreshDone = make(chan struct{})
	go func() {
		defer close(s.refreshDone)
		s.boards.Run(refreshCtx)
	}()

	s.started = true
	s.logger.Info(ctx, "tally service started",
		logger.Int("workers", s.workerCount),
		logger.Int("queueSize", s.queueSize),
		logger.Int("dedupeSize", s.dedupeSize),
		logger.Int("version", s.version),
		logger.String("autosave", s.autosave.String()),
	)
	return nil
}

// Stop drains the workers, stops the board refresh and force-detaches every
// entity still loaded so its record is saved and synced.
func (s *Service) Stop(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.started {
		return nil
	}
	s.logger.Info(ctx, "stopping tally service...")

	var errs []error
	if err := s.pool.Shutdown(ctx); err != nil {
		errs = append(errs, fmt.Errorf("drain workers: %w", err))
	}
	s.cancelRefresh()
	<-s.refreshDone
	if err := s.manager.Shutdown(ctx); err != nil {
		errs = append(errs, err)
	}

	s.started = false
	s.logger.Info(ctx, "tally service stopped")
	return errors.Join(errs...)
}

// Handle applies one lifecycle event. It is called by the workers.
func (s *Service) Handle(ctx context.Context, e model.LifecycleEvent) error {
	switch e.Kind {
	case model.KindAttach:
		s.directory.Register(e.EntityID, e.DisplayName)
		_, err := s.manager.LoadInstance(ctx, e.EntityID, stats.DefaultTemplate)
		if s.manager.IsLoaded(e.EntityID, stats.DefaultTemplate) {
			s.keeper.StartPlaytime(e.EntityID)
		}
		if err != nil {
			return fmt.Errorf("attach %d: %w", e.EntityID, err)
		}
		s.logger.Debug(ctx, "entity attached", logger.Int64("entity", e.EntityID))
		return nil
	case model.KindDetach:
		s.keeper.StopPlaytime(e.EntityID)
		var errs []error
		for _, res := range s.manager.DetachInstance(ctx, e.EntityID) {
			if res.Err != nil {
				errs = append(errs, fmt.Errorf("save %s: %w", res.Template, res.Err))
			}
		}
		s.logger.Debug(ctx, "entity detached", logger.Int64("entity", e.EntityID))
		return errors.Join(errs...)
	default:
		return fmt.Errorf("%w: unknown kind %q", model.ErrInvalidEvent, e.Kind)
	}
}

// SeenAndRecord reports whether id was already seen and records it if not.
func (s *Service) SeenAndRecord(ctx context.Context, id string) bool {
	return s.deduper.SeenAndRecord(ctx, id)
}

// Unrecord removes an event ID from the seen list, allowing it to be retried.
func (s *Service) Unrecord(ctx context.Context, id string) {
	s.deduper.Unrecord(ctx, id)
}

// Size returns the current number of entries in the deduper.
func (s *Service) Size() int64 {
	if s.deduper == nil {
		return 0
	}
	return s.deduper.Size()
}

// Submit queues a lifecycle event for the entity's worker.
func (s *Service) Submit(ctx context.Context, e model.LifecycleEvent) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.started {
		return ErrNotStarted
	}
	return s.pool.Submit(ctx, e)
}

// Top returns the standings of the named board.
func (s *Service) Top(ctx context.Context, board string, limit int) (types.Board, error) {
	return s.boards.Top(ctx, board, limit)
}

// List returns the entity's numeric stats.
func (s *Service) List(entityID int64) ([]types.Stat, bool) {
	return s.keeper.List(entityID)
}

// Update adds delta to a stat, clamping at zero.
func (s *Service) Update(entityID int64, name string, delta float64) (float64, bool) {
	return s.keeper.Update(entityID, name, delta)
}

// Add is Update with the failure reason.
func (s *Service) Add(entityID int64, name string, delta float64) (float64, error) {
	return s.keeper.Add(entityID, name, delta)
}

// TryUpdate adds delta to a stat unless it would go negative.
func (s *Service) TryUpdate(entityID int64, name string, delta float64) (float64, error) {
	return s.keeper.TryUpdate(entityID, name, delta)
}

// Manager exposes the datastore, mostly for tests and tooling.
func (s *Service) Manager() *datastore.Manager {
	return s.manager
}
