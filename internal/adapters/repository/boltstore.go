package repository

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/okian/tally/pkg/metrics"

	"go.etcd.io/bbolt"
)

const boltOpenTimeout = 5 * time.Second

// BoltStore implements KeyValueStore on a bbolt file. Each namespace is a
// bucket, created on first write.
type BoltStore struct {
	db *bbolt.DB
}

var _ KeyValueStore = (*BoltStore)(nil)

// NewBoltStore opens (or creates) the bbolt database at path.
func NewBoltStore(path string) (*BoltStore, error) {
	db, err := bbolt.Open(path, 0o600, &bbolt.Options{Timeout: boltOpenTimeout})
	if err != nil {
		return nil, fmt.Errorf("failed to open bolt db: %w", err)
	}
	return &BoltStore{db: db}, nil
}

// Get reads key from the namespace bucket. A missing bucket or key is not
// an error.
func (bs *BoltStore) Get(ctx context.Context, namespace, key string) ([]byte, bool, error) {
	start := time.Now()
	defer func() {
		metrics.RecordRepositoryQueryLatency(float64(time.Since(start).Milliseconds()))
	}()

	if err := validateKV(namespace, key); err != nil {
		return nil, false, err
	}
	if err := ctx.Err(); err != nil {
		return nil, false, err
	}

	var out []byte
	err := bs.db.View(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket([]byte(namespace))
		if bucket == nil {
			return nil
		}
		val := bucket.Get([]byte(key))
		if val == nil {
			return nil
		}
		// bbolt memory is only valid inside the transaction.
		out = append([]byte(nil), val...)
		return nil
	})
	if err != nil {
		return nil, false, fmt.Errorf("bolt get %s/%s: %w", namespace, key, err)
	}
	return out, out != nil, nil
}

// Set writes value under key, creating the namespace bucket if needed.
func (bs *BoltStore) Set(ctx context.Context, namespace, key string, value []byte) error {
	start := time.Now()
	defer func() {
		metrics.RecordRepositoryUpdateLatency(float64(time.Since(start).Milliseconds()))
	}()

	if err := validateKV(namespace, key); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	err := bs.db.Update(func(tx *bbolt.Tx) error {
		bucket, err := tx.CreateBucketIfNotExists([]byte(namespace))
		if err != nil {
			return err
		}
		return bucket.Put([]byte(key), value)
	})
	if err != nil {
		return fmt.Errorf("bolt set %s/%s: %w", namespace, key, err)
	}
	return nil
}

// Close releases the database file.
func (bs *BoltStore) Close() error {
	return bs.db.Close()
}

func validateKV(namespace, key string) error {
	if strings.TrimSpace(namespace) == "" {
		return ErrInvalidNamespace
	}
	if key == "" {
		return ErrInvalidKey
	}
	return nil
}
