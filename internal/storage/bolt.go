package storage

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/boltdb/bolt"
)

var slotsBucket = []byte("slots")

// BoltStore implements Store on a single Bolt database file.
type BoltStore struct {
	db *bolt.DB
}

// NewBoltStore opens (or creates) the database at path.
func NewBoltStore(path string) (*BoltStore, error) {
	if path == "" {
		return nil, fmt.Errorf("bolt: path is required")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0750); err != nil {
		return nil, fmt.Errorf("bolt: create dir: %w", err)
	}

	db, err := bolt.Open(path, 0600, &bolt.Options{Timeout: 2 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("bolt: open %s: %w", path, err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(slotsBucket)
		return err
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("bolt: create bucket: %w", err)
	}

	return &BoltStore{db: db}, nil
}

func (s *BoltStore) Get(ctx context.Context, key string) ([]byte, error) {
	var value []byte
	err := s.db.View(func(tx *bolt.Tx) error {
		v := tx.Bucket(slotsBucket).Get([]byte(key))
		if v == nil {
			return ErrKeyNotFound
		}
		// Bolt values are only valid inside the transaction.
		value = append([]byte(nil), v...)
		return nil
	})
	if err != nil {
		return nil, mapBoltErr(err)
	}
	return value, nil
}

func (s *BoltStore) Set(ctx context.Context, key string, blob []byte) error {
	if err := validateKey(key); err != nil {
		return err
	}
	return mapBoltErr(s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(slotsBucket).Put([]byte(key), blob)
	}))
}

func (s *BoltStore) Remove(ctx context.Context, key string) error {
	return mapBoltErr(s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(slotsBucket).Delete([]byte(key))
	}))
}

func (s *BoltStore) Close() error {
	return s.db.Close()
}

func mapBoltErr(err error) error {
	if errors.Is(err, bolt.ErrDatabaseNotOpen) {
		return ErrClosed
	}
	return err
}
