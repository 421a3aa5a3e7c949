// Package config defines service configuration structures and loading hooks.
//
// Conventions:
// - Provide New() initializer to build a Config with defaults.
// - Load layers a YAML file and the environment on top of New().
// - Validation failures wrap ErrInvalidConfig.
package config

import (
	"fmt"
	"runtime"
	"strconv"
	"time"
)

// Backend names.
const (
	BackendBolt   = "bolt"
	BackendMemory = "memory"
	BackendTreap  = "treap"
	BackendSQLite = "sqlite"
)

// Config contains process configuration.
type Config struct {
	// LogLevel controls verbosity: debug, info, warn, error.
	LogLevel string `koanf:"log_level"`

	// LogFormat selects the log handler: text, json or tint.
	LogFormat string `koanf:"log_format"`

	// Addr configures the HTTP listen address, e.g. ":8080".
	Addr string `koanf:"addr"`

	// StoreVersion is appended to every remote namespace. Bumping it
	// points the service at fresh, empty stores.
	StoreVersion int `koanf:"store_version"`

	// MaxAttempts bounds every remote store call.
	MaxAttempts int `koanf:"max_attempts"`

	// KVBackend selects the record store: bolt or memory.
	KVBackend string `koanf:"kv_backend"`
	BoltPath  string `koanf:"bolt_path"`

	// RankedBackend selects the leaderboard store: treap or sqlite.
	RankedBackend string `koanf:"ranked_backend"`
	SQLitePath    string `koanf:"sqlite_path"`

	// DefaultsFile optionally replaces the built-in PlayerData defaults
	// with a record declared in YAML.
	DefaultsFile string `koanf:"defaults_file"`

	AutosaveSeconds int `koanf:"autosave_seconds"`
	PlaytimeSeconds int `koanf:"playtime_seconds"`
	RefreshSeconds  int `koanf:"refresh_seconds"`

	// LeaderboardSize is how many entries each periodic refresh keeps.
	LeaderboardSize int `koanf:"leaderboard_size"`

	// MaxLeaderboardLimit caps GET /leaderboard?limit.
	MaxLeaderboardLimit int `koanf:"max_leaderboard_limit"`

	// EventQueueSize bounds each lifecycle shard queue.
	EventQueueSize int `koanf:"queue_size"`

	// WorkerCount sets the number of lifecycle shards.
	WorkerCount int `koanf:"worker_count"`

	// DedupeSize sets the size of the lifecycle deduplication cache.
	DedupeSize int `koanf:"dedupe_size"`

	// DisplayNames seeds the identity directory, keyed by numeric entity id.
	DisplayNames map[string]string `koanf:"display_names"`
}

// New creates a Config populated with defaults.
func New() *Config {
	return &Config{
		LogLevel:            "info",
		LogFormat:           "text",
		Addr:                ":9080",
		StoreVersion:        2,
		MaxAttempts:         4,
		KVBackend:           BackendBolt,
		BoltPath:            "tally.db",
		RankedBackend:       BackendTreap,
		SQLitePath:          "tally-ranked.db",
		AutosaveSeconds:     10,
		PlaytimeSeconds:     5,
		RefreshSeconds:      15,
		LeaderboardSize:     10,
		MaxLeaderboardLimit: 100,
		EventQueueSize:      1024,
		WorkerCount:         runtime.NumCPU(),
		DedupeSize:          100_000,
		DisplayNames:        map[string]string{},
	}
}

// Validate reports the first invalid setting.
func (c *Config) Validate() error {
	switch {
	case c.Addr == "":
		return fmt.Errorf("%w: addr must not be empty", ErrInvalidConfig)
	case c.StoreVersion <= 0:
		return fmt.Errorf("%w: store_version must be positive", ErrInvalidConfig)
	case c.MaxAttempts <= 0:
		return fmt.Errorf("%w: max_attempts must be positive", ErrInvalidConfig)
	case c.KVBackend != BackendBolt && c.KVBackend != BackendMemory:
		return fmt.Errorf("%w: unknown kv_backend %q", ErrInvalidConfig, c.KVBackend)
	case c.RankedBackend != BackendTreap && c.RankedBackend != BackendSQLite:
		return fmt.Errorf("%w: unknown ranked_backend %q", ErrInvalidConfig, c.RankedBackend)
	case c.KVBackend == BackendBolt && c.BoltPath == "":
		return fmt.Errorf("%w: bolt_path must not be empty", ErrInvalidConfig)
	case c.RankedBackend == BackendSQLite && c.SQLitePath == "":
		return fmt.Errorf("%w: sqlite_path must not be empty", ErrInvalidConfig)
	case c.AutosaveSeconds < 0:
		return fmt.Errorf("%w: autosave_seconds must not be negative", ErrInvalidConfig)
	case c.PlaytimeSeconds <= 0 || c.RefreshSeconds <= 0:
		return fmt.Errorf("%w: playtime_seconds and refresh_seconds must be positive", ErrInvalidConfig)
	case c.LeaderboardSize <= 0 || c.MaxLeaderboardLimit <= 0:
		return fmt.Errorf("%w: leaderboard sizes must be positive", ErrInvalidConfig)
	case c.EventQueueSize <= 0 || c.WorkerCount <= 0 || c.DedupeSize <= 0:
		return fmt.Errorf("%w: queue_size, worker_count and dedupe_size must be positive", ErrInvalidConfig)
	}
	for id := range c.DisplayNames {
		if _, err := strconv.ParseInt(id, 10, 64); err != nil {
			return fmt.Errorf("%w: display_names key %q is not a numeric id", ErrInvalidConfig, id)
		}
	}
	return nil
}

// Autosave returns the autosave interval; zero disables autosave.
func (c *Config) Autosave() time.Duration { return time.Duration(c.AutosaveSeconds) * time.Second }

// Playtime returns the playtime accrual period.
func (c *Config) Playtime() time.Duration { return time.Duration(c.PlaytimeSeconds) * time.Second }

// Refresh returns the leaderboard refresh period.
func (c *Config) Refresh() time.Duration { return time.Duration(c.RefreshSeconds) * time.Second }
