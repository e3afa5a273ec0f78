package storage

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"sync"
)

const blobExtension = ".blob"

// FileStore keeps one file per key under a directory. Writes go to a temp
// file that is synced and renamed over the target.
type FileStore struct {
	dir string

	mu     sync.Mutex
	closed bool
}

// NewFileStore creates the directory if needed.
func NewFileStore(dir string) (*FileStore, error) {
	if dir == "" {
		return nil, fmt.Errorf("file store: dir is required")
	}
	if err := os.MkdirAll(dir, 0750); err != nil {
		return nil, fmt.Errorf("file store: create dir: %w", err)
	}
	return &FileStore{dir: dir}, nil
}

// Dir returns the storage directory.
func (s *FileStore) Dir() string {
	return s.dir
}

func (s *FileStore) path(key string) string {
	return filepath.Join(s.dir, url.PathEscape(key)+blobExtension)
}

func (s *FileStore) Get(ctx context.Context, key string) ([]byte, error) {
	if err := s.check(); err != nil {
		return nil, err
	}
	data, err := os.ReadFile(s.path(key))
	if errors.Is(err, os.ErrNotExist) {
		return nil, ErrKeyNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("file store: read %s: %w", key, err)
	}
	return data, nil
}

func (s *FileStore) Set(ctx context.Context, key string, blob []byte) error {
	if err := validateKey(key); err != nil {
		return err
	}
	if err := s.check(); err != nil {
		return err
	}

	final := s.path(key)
	tmp, err := os.CreateTemp(s.dir, filepath.Base(final)+".*.tmp")
	if err != nil {
		return fmt.Errorf("file store: create temp file: %w", err)
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath)

	if _, err := tmp.Write(blob); err != nil {
		tmp.Close()
		return fmt.Errorf("file store: write: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("file store: sync: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("file store: close: %w", err)
	}
	if err := os.Rename(tmpPath, final); err != nil {
		return fmt.Errorf("file store: rename: %w", err)
	}
	return nil
}

func (s *FileStore) Remove(ctx context.Context, key string) error {
	if err := s.check(); err != nil {
		return err
	}
	err := os.Remove(s.path(key))
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("file store: remove %s: %w", key, err)
	}
	return nil
}

func (s *FileStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

func (s *FileStore) check() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	return nil
}
