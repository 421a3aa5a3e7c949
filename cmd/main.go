package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"runtime"
	"strconv"
	"syscall"
	"time"

	"github.com/okian/tally/internal/adapters/http/api"
	"github.com/okian/tally/internal/adapters/repository"
	app "github.com/okian/tally/internal/app"
	"github.com/okian/tally/internal/config"
	"github.com/okian/tally/internal/domain/identity"
	"github.com/okian/tally/internal/domain/record"
	"github.com/okian/tally/pkg/logger"
	"github.com/okian/tally/pkg/metrics"
)

// HTTP server timeout constants.
const (
	readTimeout               = 10 * time.Second
	writeTimeout              = 10 * time.Second
	idleTimeout               = 60 * time.Second
	readHeaderTimeout         = 5 * time.Second
	shutdownTimeout           = 30 * time.Second
	systemMetricsInterval     = 10 * time.Second
	nanosecondsPerMillisecond = 1e6
)

func main() {
	if err := run(); err != nil {
		os.Stderr.WriteString(err.Error() + "\n")
		os.Exit(1)
	}
}

func run() error {
	// Load configuration (defaults -> optional file -> env)
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	if err := logger.Init(logger.WithFormat(cfg.LogFormat)); err != nil {
		return fmt.Errorf("failed to initialize logging: %w", err)
	}
	defer func() { _ = logger.Sync() }()
	log := logger.Get()

	// Root context with cancel on SIGINT/SIGTERM.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Apply configured log level (fallback to info on invalid input)
	if err := logger.SetLevelString(cfg.LogLevel); err != nil {
		log.Warn(ctx, "invalid log_level; falling back to info", logger.String("log_level", cfg.LogLevel), logger.Error(err))
		_ = logger.SetLevelString("info")
	}

	kv, err := openKV(cfg)
	if err != nil {
		return err
	}
	defer closeStore(ctx, log, "kv", kv)

	ranked, err := openRanked(cfg)
	if err != nil {
		return err
	}
	defer closeStore(ctx, log, "ranked", ranked)

	defaults, err := loadDefaults(cfg.DefaultsFile)
	if err != nil {
		return err
	}
	directory, err := directoryFrom(cfg.DisplayNames)
	if err != nil {
		return err
	}

	svc := app.New(kv, ranked,
		app.WithLogger(log.Named("service")),
		app.WithWorkerCount(cfg.WorkerCount),
		app.WithQueueSize(cfg.EventQueueSize),
		app.WithDedupeSize(cfg.DedupeSize),
		app.WithVersion(cfg.StoreVersion),
		app.WithMaxAttempts(cfg.MaxAttempts),
		app.WithDefaults(defaults),
		app.WithAutosave(cfg.Autosave()),
		app.WithPlaytime(cfg.Playtime()),
		app.WithLeaderboard(cfg.LeaderboardSize, cfg.MaxLeaderboardLimit, cfg.Refresh()),
		app.WithDirectory(directory),
	)
	if err := svc.Start(ctx); err != nil {
		return fmt.Errorf("failed to start service: %w", err)
	}

	// Start system metrics updater
	go startSystemMetricsUpdater(ctx)

	mux := http.NewServeMux()
	api.NewServer(svc, cfg.MaxLeaderboardLimit).Register(mux)

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           mux,
		ReadTimeout:       readTimeout,
		WriteTimeout:      writeTimeout,
		IdleTimeout:       idleTimeout,
		ReadHeaderTimeout: readHeaderTimeout,
	}

	serveErr := make(chan error, 1)
	go func() {
		log.Info(ctx, "starting HTTP server", logger.String("addr", cfg.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	// Wait for shutdown signal
	select {
	case <-ctx.Done():
	case err := <-serveErr:
		if err != nil {
			log.Error(ctx, "HTTP server failed", logger.Error(err))
		}
	}
	log.Info(ctx, "shutting down server...")

	// Graceful shutdown with timeout
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error(ctx, "server shutdown failed", logger.Error(err))
	}
	if err := svc.Stop(shutdownCtx); err != nil {
		log.Error(ctx, "service shutdown incomplete", logger.Error(err))
	}

	log.Info(ctx, "server stopped")
	return nil
}

func openKV(cfg *config.Config) (repository.KeyValueStore, error) {
	switch cfg.KVBackend {
	case config.BackendMemory:
		return repository.NewMemoryStore(), nil
	case config.BackendBolt:
		s, err := repository.NewBoltStore(cfg.BoltPath)
		if err != nil {
			return nil, fmt.Errorf("open bolt store %s: %w", cfg.BoltPath, err)
		}
		return s, nil
	default:
		return nil, fmt.Errorf("%w: kv_backend %q", config.ErrInvalidConfig, cfg.KVBackend)
	}
}

func openRanked(cfg *config.Config) (repository.RankedStore, error) {
	switch cfg.RankedBackend {
	case config.BackendTreap:
		return repository.NewTreapStore(), nil
	case config.BackendSQLite:
		s, err := repository.OpenSQLiteRankedStore(cfg.SQLitePath)
		if err != nil {
			return nil, fmt.Errorf("open sqlite store %s: %w", cfg.SQLitePath, err)
		}
		return s, nil
	default:
		return nil, fmt.Errorf("%w: ranked_backend %q", config.ErrInvalidConfig, cfg.RankedBackend)
	}
}

// loadDefaults reads the player record defaults from a YAML file. An empty
// path keeps the built-in record.
func loadDefaults(path string) (*record.Record, error) {
	if path == "" {
		return app.DefaultRecord(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read defaults %s: %w", path, err)
	}
	rec, err := record.DecodeYAML(data)
	if err != nil {
		return nil, fmt.Errorf("decode defaults %s: %w", path, err)
	}
	return rec, nil
}

func directoryFrom(names map[string]string) (*identity.Directory, error) {
	byID := make(map[int64]string, len(names))
	for k, name := range names {
		id, err := strconv.ParseInt(k, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("%w: display_names key %q", config.ErrInvalidConfig, k)
		}
		byID[id] = name
	}
	return identity.NewDirectory(byID), nil
}

func closeStore(ctx context.Context, log logger.Logger, name string, s interface{ Close() error }) {
	if err := s.Close(); err != nil {
		log.Error(ctx, "close store failed", logger.String("store", name), logger.Error(err))
	}
}

// startSystemMetricsUpdater starts a background goroutine that updates system metrics.
func startSystemMetricsUpdater(ctx context.Context) {
	ticker := time.NewTicker(systemMetricsInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			updateSystemMetrics()
		}
	}
}

// updateSystemMetrics updates system-level metrics.
func updateSystemMetrics() {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)
	metrics.UpdateSystemMemoryUsage(m.Alloc)
	metrics.UpdateSystemGoroutineCount(runtime.NumGoroutine())

	if m.NumGC > 0 {
		avgPauseMs := float64(m.PauseTotalNs) / float64(m.NumGC) / nanosecondsPerMillisecond
		metrics.RecordSystemGCPauseTime(avgPauseMs)
	}
}
