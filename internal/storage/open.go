package storage

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
)

// Config selects and configures a Store backend.
type Config struct {
	Backend string       `koanf:"backend" json:"backend" yaml:"backend"`
	Dir     string       `koanf:"dir" json:"dir" yaml:"dir"`
	Redis   RedisConfig  `koanf:"redis" json:"redis" yaml:"redis"`
	Badger  BadgerConfig `koanf:"badger" json:"badger" yaml:"badger"`
}

// DefaultConfig returns the default storage configuration.
func DefaultConfig() Config {
	return Config{
		Backend: string(BackendFile),
		Dir:     "./data",
		Redis:   DefaultRedisConfig(),
		Badger:  DefaultBadgerConfig(),
	}
}

// File names used inside Config.Dir.
const (
	badgerDirName  = "badger"
	boltFileName   = "savevault.bolt"
	sqliteFileName = "savevault.db"
)

// Open creates the configured Store.
func Open(ctx context.Context, cfg Config, logger *slog.Logger) (Store, error) {
	backend, err := ParseBackend(cfg.Backend)
	if err != nil {
		return nil, err
	}
	if backend.Persistent() && backend != BackendRedis && cfg.Dir == "" {
		return nil, fmt.Errorf("storage: %s backend needs a dir", backend)
	}

	switch backend {
	case BackendMemory:
		return NewMemoryStore(), nil
	case BackendFile:
		return NewFileStore(cfg.Dir)
	case BackendBadger:
		return NewBadgerStore(filepath.Join(cfg.Dir, badgerDirName), cfg.Badger, logger)
	case BackendBolt:
		return NewBoltStore(filepath.Join(cfg.Dir, boltFileName))
	case BackendSQLite:
		return NewSQLiteStore(filepath.Join(cfg.Dir, sqliteFileName))
	case BackendRedis:
		return NewRedisStore(ctx, cfg.Redis)
	default:
		return nil, fmt.Errorf("storage: unsupported backend %q", backend)
	}
}
