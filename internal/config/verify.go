package config

import (
	"fmt"

	"github.com/yndnr/savevault/internal/core/domain"
	"github.com/yndnr/savevault/internal/integrity"
	"github.com/yndnr/savevault/internal/storage"
	"github.com/yndnr/savevault/internal/telemetry/logger"
	"github.com/yndnr/savevault/internal/transport"
)

// Verify validates the configuration. Every failure is an InvalidConfig
// domain error.
func Verify(cfg *Config) error {
	if err := verifyVault(&cfg.Vault); err != nil {
		return err
	}
	if err := verifyTransport(&cfg.Transport); err != nil {
		return err
	}
	if err := verifyStorage(&cfg.Storage); err != nil {
		return err
	}
	if cfg.Autosave.Interval <= 0 {
		return invalid("autosave.interval must be positive")
	}
	if cfg.Autosave.MinGap < 0 {
		return invalid("autosave.min_gap must not be negative")
	}
	if !logger.ValidLevel(cfg.Log.Level) {
		return invalid(fmt.Sprintf("log.level %q is not one of debug, info, warn, error", cfg.Log.Level))
	}
	if cfg.Log.Format != "json" && cfg.Log.Format != "text" {
		return invalid(fmt.Sprintf("log.format %q is not json or text", cfg.Log.Format))
	}
	return nil
}

func verifyVault(cfg *VaultSection) error {
	if cfg.Namespace == "" {
		return invalid("vault.namespace is required")
	}
	if len(cfg.Partitions) == 0 {
		return invalid("vault.partitions must name at least one partition")
	}
	seen := make(map[string]bool, len(cfg.Partitions))
	for _, name := range cfg.Partitions {
		if name == "" {
			return invalid("vault.partitions contains an empty name")
		}
		if seen[name] {
			return invalid(fmt.Sprintf("vault.partitions lists %q twice", name))
		}
		seen[name] = true
	}

	alg, err := integrity.ParseAlgorithm(cfg.Digest)
	if err != nil {
		return domain.ErrInvalidConfig.Wrapf(err, "vault.digest")
	}
	if !alg.Writable() {
		return invalid(fmt.Sprintf("vault.digest %q is only accepted for reading old saves", alg))
	}
	return nil
}

func verifyTransport(cfg *TransportSection) error {
	if _, err := transport.ParseCompression(cfg.Compression); err != nil {
		return domain.ErrInvalidConfig.Wrapf(err, "transport.compression")
	}
	if _, err := transport.ParseLevel(cfg.Level); err != nil {
		return domain.ErrInvalidConfig.Wrapf(err, "transport.level")
	}
	if _, err := transport.ParseSealKey(cfg.SealKey); err != nil {
		return domain.ErrInvalidConfig.Wrapf(err, "transport.seal_key")
	}
	return nil
}

func verifyStorage(cfg *storage.Config) error {
	backend, err := storage.ParseBackend(cfg.Backend)
	if err != nil {
		return domain.ErrInvalidConfig.Wrapf(err, "storage.backend")
	}

	switch backend {
	case storage.BackendRedis:
		if cfg.Redis.Addr == "" {
			return invalid("storage.redis.addr is required for the redis backend")
		}
	case storage.BackendMemory:
	default:
		if cfg.Dir == "" {
			return invalid(fmt.Sprintf("storage.dir is required for the %s backend", backend))
		}
	}

	if cfg.Badger.GCThreshold < 0 || cfg.Badger.GCThreshold > 1 {
		return invalid("storage.badger.gc_threshold must be between 0 and 1")
	}
	return nil
}

func invalid(details string) error {
	return domain.ErrInvalidConfig.WithDetails(details)
}
