package config

import "strings"

// Sanitize returns a copy of the config with sensitive fields masked.
//
// This is used for logging and printing the configuration without exposing
// secrets.
func Sanitize(cfg *Config) *Config {
	sanitized := *cfg
	sanitized.Vault.LegacyKeys = append([]string(nil), cfg.Vault.LegacyKeys...)
	sanitized.Vault.Partitions = append([]string(nil), cfg.Vault.Partitions...)

	if sanitized.Transport.SealKey != "" {
		sanitized.Transport.SealKey = maskSecret(sanitized.Transport.SealKey)
	}
	if sanitized.Storage.Redis.Password != "" {
		sanitized.Storage.Redis.Password = maskSecret(sanitized.Storage.Redis.Password)
	}

	return &sanitized
}

// maskSecret masks a secret value for safe logging.
func maskSecret(s string) string {
	if len(s) <= 4 {
		return "****"
	}
	return s[:2] + strings.Repeat("*", len(s)-4) + s[len(s)-2:]
}
