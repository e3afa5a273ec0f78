package config

import (
	"github.com/yndnr/savevault/internal/storage"
	"github.com/yndnr/savevault/internal/vault"
)

// Config is the root configuration for savevault-cli.
type Config struct {
	Vault     VaultSection          `koanf:"vault" json:"vault" yaml:"vault"`
	Transport TransportSection      `koanf:"transport" json:"transport" yaml:"transport"`
	Storage   storage.Config        `koanf:"storage" json:"storage" yaml:"storage"`
	Autosave  vault.AutoSaverConfig `koanf:"autosave" json:"autosave" yaml:"autosave"`
	Log       LogSection            `koanf:"log" json:"log" yaml:"log"`
}

// VaultSection configures the orchestrator.
type VaultSection struct {
	// Namespace prefixes the slot keys ("<namespace>.primary").
	Namespace string `koanf:"namespace" json:"namespace" yaml:"namespace"`

	// LegacyKeys are removed together with the slots on clear.
	LegacyKeys []string `koanf:"legacy_keys" json:"legacy_keys" yaml:"legacy_keys"`

	// RejectWhenBusy fails overlapping operations instead of queueing them.
	RejectWhenBusy bool `koanf:"reject_when_busy" json:"reject_when_busy" yaml:"reject_when_busy"`

	// Digest is the algorithm used for new envelopes.
	// Values: murmur3-128, xxhash64
	Digest string `koanf:"digest" json:"digest" yaml:"digest"`

	// Partitions are the partition names, in snapshot and apply order.
	Partitions []string `koanf:"partitions" json:"partitions" yaml:"partitions"`

	// Metadata maps the summary fields to paths in the payload.
	Metadata vault.MetadataPaths `koanf:"metadata" json:"metadata" yaml:"metadata"`
}

// TransportSection configures blob compression and sealing.
type TransportSection struct {
	// Compression: none, zstd, s2, gzip.
	Compression string `koanf:"compression" json:"compression" yaml:"compression"`

	// Level: fastest, default, better, best.
	Level string `koanf:"level" json:"level" yaml:"level"`

	// SealKey is a 64 character hex key. Empty disables sealing.
	SealKey string `koanf:"seal_key" json:"seal_key" yaml:"seal_key"`
}

// LogSection configures logging.
type LogSection struct {
	Level  string `koanf:"level" json:"level" yaml:"level"`
	Format string `koanf:"format" json:"format" yaml:"format"`
}
