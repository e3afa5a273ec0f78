package storage

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/yndnr/savevault/internal/core/domain"
)

// Common errors
var (
	ErrKeyNotFound = errors.New("key not found")
	ErrClosed      = errors.New("store closed")
)

// Store is a durable map from string keys to byte blobs.
//
// Implementation requirements:
//   - Set replaces the whole blob atomically: a reader sees either the old or
//     the new value, never a mix
//   - Get returns ErrKeyNotFound for a missing key
//   - Remove of a missing key succeeds
//   - Safe for concurrent use
type Store interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, blob []byte) error
	Remove(ctx context.Context, key string) error
	Close() error
}

// SlotKey returns the store key holding slot under namespace.
func SlotKey(namespace string, slot domain.Slot) string {
	return namespace + "." + string(slot)
}

// Backend names a Store implementation.
type Backend string

const (
	BackendMemory Backend = "memory"
	BackendFile   Backend = "file"
	BackendBadger Backend = "badger"
	BackendBolt   Backend = "bolt"
	BackendSQLite Backend = "sqlite"
	BackendRedis  Backend = "redis"
)

// Backends lists every supported backend.
var Backends = []Backend{BackendMemory, BackendFile, BackendBadger, BackendBolt, BackendSQLite, BackendRedis}

// ParseBackend resolves a configured backend name.
func ParseBackend(name string) (Backend, error) {
	b := Backend(strings.ToLower(strings.TrimSpace(name)))
	for _, known := range Backends {
		if b == known {
			return b, nil
		}
	}
	return "", fmt.Errorf("unknown storage backend %q", name)
}

// Persistent reports whether the backend survives process restarts.
func (b Backend) Persistent() bool {
	return b != BackendMemory
}

// validateKey rejects keys no backend can hold.
func validateKey(key string) error {
	if key == "" {
		return errors.New("empty key")
	}
	return nil
}
