// Package store checkpoints aggregate state to a local bbolt database.
// Saves happen at clean shutdown and loads at startup; the absence of a
// prior checkpoint is never an error.
package store

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"
	"go.etcd.io/bbolt"
)

const bucketCheckpoints = "checkpoints"

// Checkpoint keys used by the pipeline.
const (
	KeyTracker = "centroid_tracker"
	KeyMetrics = "metrics_manager"
)

// Store is a bbolt-backed key-value checkpoint store.
type Store struct {
	db     *bbolt.DB
	logger zerolog.Logger
}

// Open opens (creating if needed) the checkpoint database at path.
func Open(path string, logger zerolog.Logger) (*Store, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create checkpoint dir: %w", err)
		}
	}

	db, err := bbolt.Open(path, 0o600, &bbolt.Options{Timeout: 2 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("open checkpoint db: %w", err)
	}

	err = db.Update(func(tx *bbolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists([]byte(bucketCheckpoints))
		return err
	})
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create checkpoint bucket: %w", err)
	}

	return &Store{
		db:     db,
		logger: logger.With().Str("component", "store").Logger(),
	}, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Save serializes v and writes it under key, overwriting any prior value.
// The write is atomic at the transaction level.
func (s *Store) Save(key string, v any) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode checkpoint %q: %w", key, err)
	}

	err = s.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket([]byte(bucketCheckpoints)).Put([]byte(key), raw)
	})
	if err != nil {
		return fmt.Errorf("write checkpoint %q: %w", key, err)
	}

	s.logger.Info().Str("key", key).Int("bytes", len(raw)).Msg("checkpoint saved")
	return nil
}

// Load reads the state saved under key into a value built by fresh. A
// missing key or an undecodable value falls back to a newly constructed
// default, so callers can always start.
func Load[T any](s *Store, key string, fresh func() T) T {
	var raw []byte
	_ = s.db.View(func(tx *bbolt.Tx) error {
		if v := tx.Bucket([]byte(bucketCheckpoints)).Get([]byte(key)); v != nil {
			raw = make([]byte, len(v))
			copy(raw, v)
		}
		return nil
	})

	if raw == nil {
		s.logger.Info().Str("key", key).Msg("no prior checkpoint, starting fresh")
		return fresh()
	}

	v := fresh()
	if err := json.Unmarshal(raw, v); err != nil {
		s.logger.Warn().Err(err).Str("key", key).Msg("corrupt checkpoint, starting fresh")
		return fresh()
	}

	s.logger.Info().Str("key", key).Msg("checkpoint restored")
	return v
}
