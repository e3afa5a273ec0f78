package config

import (
	"github.com/yndnr/savevault/internal/integrity"
	"github.com/yndnr/savevault/internal/storage"
	"github.com/yndnr/savevault/internal/transport"
	"github.com/yndnr/savevault/internal/vault"
)

// Default configuration values.
const (
	DefaultLogLevel  = "info"
	DefaultLogFormat = "json"
)

// DefaultPartitions are the partitions of a fresh configuration.
var DefaultPartitions = []string{"core", "narrative", "social"}

// Default returns the default configuration.
func Default() *Config {
	return &Config{
		Vault: VaultSection{
			Namespace:  vault.DefaultNamespace,
			Digest:     string(integrity.DefaultAlgorithm),
			Partitions: append([]string(nil), DefaultPartitions...),
			Metadata:   vault.DefaultMetadataPaths(),
		},
		Transport: TransportSection{
			Compression: transport.DefaultCompression.String(),
			Level:       transport.LevelDefault.String(),
		},
		Storage:  storage.DefaultConfig(),
		Autosave: vault.DefaultAutoSaverConfig(),
		Log: LogSection{
			Level:  DefaultLogLevel,
			Format: DefaultLogFormat,
		},
	}
}
