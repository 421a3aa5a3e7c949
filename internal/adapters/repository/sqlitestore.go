package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/okian/tally/pkg/metrics"

	_ "github.com/mattn/go-sqlite3"
)

const rankedSchema = `
CREATE TABLE IF NOT EXISTS ranked_scores (
	namespace TEXT NOT NULL,
	key       TEXT NOT NULL,
	score     REAL NOT NULL DEFAULT 0,
	PRIMARY KEY (namespace, key)
);
CREATE INDEX IF NOT EXISTS ranked_scores_order ON ranked_scores (namespace, score);
`

// SQLiteRankedStore implements RankedStore on a SQLite table.
// Increments are single UPSERT statements, so they are atomic per key.
type SQLiteRankedStore struct {
	db *sql.DB
}

var _ RankedStore = (*SQLiteRankedStore)(nil)

// OpenSQLiteRankedStore creates or opens the database at path and applies
// the schema. The connection is configured with:
//   - WAL mode for concurrent reads during writes
//   - a 5-second busy timeout for lock contention
func OpenSQLiteRankedStore(path string) (*SQLiteRankedStore, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	// SQLite only supports one writer at a time.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	for _, pragma := range []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA busy_timeout = 5000",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to execute %q: %w", pragma, err)
		}
	}
	if _, err := db.Exec(rankedSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to apply schema: %w", err)
	}
	return &SQLiteRankedStore{db: db}, nil
}

// Increment adds delta to key's score and returns the new score.
func (s *SQLiteRankedStore) Increment(ctx context.Context, namespace, key string, delta float64) (float64, error) {
	start := time.Now()
	defer func() {
		metrics.RecordRepositoryUpdateLatency(float64(time.Since(start).Milliseconds()))
	}()

	if strings.TrimSpace(namespace) == "" {
		return 0, ErrInvalidNamespace
	}
	if key == "" {
		return 0, ErrInvalidKey
	}

	var score float64
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO ranked_scores (namespace, key, score)
		VALUES (?, ?, ?)
		ON CONFLICT(namespace, key) DO UPDATE SET score = score + excluded.score
		RETURNING score
	`, namespace, key, delta).Scan(&score)
	if err != nil {
		return 0, fmt.Errorf("increment %s/%s: %w", namespace, key, err)
	}
	return score, nil
}

// TopPage returns up to pageSize rows ordered by score, ties by key.
func (s *SQLiteRankedStore) TopPage(ctx context.Context, namespace string, descending bool, pageSize int) ([]Entry, error) {
	start := time.Now()
	defer func() {
		metrics.RecordRepositoryQueryLatency(float64(time.Since(start).Milliseconds()))
	}()

	if pageSize < 1 {
		return nil, ErrInvalidLimit
	}

	order := "score ASC, key DESC"
	if descending {
		order = "score DESC, key ASC"
	}
	rows, err := s.db.QueryContext(ctx,
		"SELECT key, score FROM ranked_scores WHERE namespace = ? ORDER BY "+order+" LIMIT ?",
		namespace, pageSize)
	if err != nil {
		return nil, fmt.Errorf("top page %s: %w", namespace, err)
	}
	defer rows.Close()

	out := make([]Entry, 0, pageSize)
	for rows.Next() {
		var e Entry
		if err := rows.Scan(&e.Key, &e.Score); err != nil {
			return nil, fmt.Errorf("top page %s: %w", namespace, err)
		}
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("top page %s: %w", namespace, err)
	}
	assignRanks(out)
	return out, nil
}

// Close closes the database connection.
func (s *SQLiteRankedStore) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}
