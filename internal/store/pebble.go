package store

import (
	"errors"
	"fmt"

	"github.com/cockroachdb/pebble"
)

// PebbleStore keeps blobs in a single Pebble database. Writes are synced.
type PebbleStore struct {
	db *pebble.DB
}

// OpenPebble opens or creates a Pebble database at path
func OpenPebble(path string) (*PebbleStore, error) {
	db, err := pebble.Open(path, &pebble.Options{})
	if err != nil {
		return nil, fmt.Errorf("failed to open pebble store: %w", err)
	}
	return &PebbleStore{db: db}, nil
}

// Get reads the blob stored under key
func (s *PebbleStore) Get(key string) ([]byte, error) {
	if err := ValidateKey(key); err != nil {
		return nil, err
	}
	val, closer, err := s.db.Get([]byte(key))
	if errors.Is(err, pebble.ErrNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", key, err)
	}
	defer closer.Close()

	// val is only valid until closer is closed
	return append([]byte(nil), val...), nil
}

// Put replaces the blob stored under key
func (s *PebbleStore) Put(key string, value []byte) error {
	if err := ValidateKey(key); err != nil {
		return err
	}
	if err := s.db.Set([]byte(key), value, pebble.Sync); err != nil {
		return fmt.Errorf("failed to write %s: %w", key, err)
	}
	return nil
}

// Close closes the database
func (s *PebbleStore) Close() error {
	return s.db.Close()
}
