package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	_ "modernc.org/sqlite"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS slots (
	key        TEXT PRIMARY KEY,
	blob       BLOB NOT NULL,
	updated_at INTEGER NOT NULL DEFAULT (CAST(strftime('%s','now') AS INTEGER))
);`

// SQLiteStore implements Store on a SQLite database (pure Go driver).
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens (or creates) the database at path.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	if path == "" {
		return nil, fmt.Errorf("sqlite: path is required")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0750); err != nil {
		return nil, fmt.Errorf("sqlite: create dir: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("sqlite: open %s: %w", path, err)
	}
	// One writer at a time keeps SQLite from returning SQLITE_BUSY.
	db.SetMaxOpenConns(1)

	for _, stmt := range []string{"PRAGMA journal_mode=WAL", "PRAGMA busy_timeout=5000", sqliteSchema} {
		if _, err := db.Exec(stmt); err != nil {
			db.Close()
			return nil, fmt.Errorf("sqlite: init %q: %w", strings.Fields(stmt)[0], err)
		}
	}

	return &SQLiteStore{db: db}, nil
}

func (s *SQLiteStore) Get(ctx context.Context, key string) ([]byte, error) {
	var blob []byte
	err := s.db.QueryRowContext(ctx, `SELECT blob FROM slots WHERE key = ?`, key).Scan(&blob)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrKeyNotFound
	}
	if err != nil {
		return nil, mapSQLErr(err)
	}
	if blob == nil {
		blob = []byte{}
	}
	return blob, nil
}

func (s *SQLiteStore) Set(ctx context.Context, key string, blob []byte) error {
	if err := validateKey(key); err != nil {
		return err
	}
	if blob == nil {
		blob = []byte{}
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO slots (key, blob, updated_at) VALUES (?, ?, CAST(strftime('%s','now') AS INTEGER))
		 ON CONFLICT(key) DO UPDATE SET blob = excluded.blob, updated_at = excluded.updated_at`,
		key, blob)
	return mapSQLErr(err)
}

func (s *SQLiteStore) Remove(ctx context.Context, key string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM slots WHERE key = ?`, key)
	return mapSQLErr(err)
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func mapSQLErr(err error) error {
	if errors.Is(err, sql.ErrConnDone) || (err != nil && strings.Contains(err.Error(), "database is closed")) {
		return ErrClosed
	}
	return err
}
