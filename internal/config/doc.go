// Package config provides the SaveVault configuration.
//
// This package defines the configuration structure and validation:
//
//   - spec.go: Config struct definition
//   - default.go: Default configuration values
//   - verify.go: Validation (algorithm names, seal key, storage backend)
//   - sanitize.go: Log sanitization (hide sensitive values)
//
// Configuration is loaded via internal/infra/confloader from a YAML file
// and SAVEVAULT_ environment variables.
package config
