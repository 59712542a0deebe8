// Package store persists index blobs under string keys.
package store

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

// ErrNotFound is returned by Get for keys that were never written
var ErrNotFound = errors.New("key not found")

// Store is a flat key/value blob store
type Store interface {
	Get(key string) ([]byte, error)
	Put(key string, value []byte) error
	Close() error
}

// ValidateKey rejects keys that cannot be mapped safely onto a file path
func ValidateKey(key string) error {
	if key == "" {
		return fmt.Errorf("empty store key")
	}
	if strings.HasPrefix(key, "/") || strings.Contains(key, `\`) {
		return fmt.Errorf("invalid store key %q", key)
	}
	for _, part := range strings.Split(key, "/") {
		if part == "" || part == "." || part == ".." {
			return fmt.Errorf("invalid store key %q", key)
		}
	}
	return nil
}

// FileStore keeps one file per key below a root directory.
// Writes go to a temporary file that is synced and renamed into place, so a
// reader never observes a partially written blob.
type FileStore struct {
	root string
}

// NewFileStore creates the root directory if needed
func NewFileStore(root string) (*FileStore, error) {
	if err := os.MkdirAll(root, 0755); err != nil {
		return nil, fmt.Errorf("failed to create store directory: %w", err)
	}
	return &FileStore{root: root}, nil
}

// Path returns the file backing a key
func (s *FileStore) Path(key string) string {
	return filepath.Join(s.root, filepath.FromSlash(key))
}

// Get reads the blob stored under key
func (s *FileStore) Get(key string) ([]byte, error) {
	if err := ValidateKey(key); err != nil {
		return nil, err
	}
	data, err := os.ReadFile(s.Path(key))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", key, err)
	}
	return data, nil
}

// Put atomically replaces the blob stored under key
func (s *FileStore) Put(key string, value []byte) error {
	if err := ValidateKey(key); err != nil {
		return err
	}

	dest := s.Path(key)
	dir := filepath.Dir(dest)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create directory for %s: %w", key, err)
	}

	tmp, err := os.CreateTemp(dir, ".tmp-*")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpPath := tmp.Name()

	if _, err := tmp.Write(value); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("failed to write %s: %w", key, err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("failed to sync %s: %w", key, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("failed to close %s: %w", key, err)
	}

	if err := os.Rename(tmpPath, dest); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("failed to publish %s: %w", key, err)
	}
	return nil
}

// Close implements Store
func (s *FileStore) Close() error { return nil }
