// Package logger provides structured logging for SaveVault.
//
// It wraps the standard library log/slog:
//
//   - logger.go: Logger interface, JSON/text handlers, dynamic level
//   - context.go: context propagation of the logger, operation id and namespace
//   - redact.go: redaction of seal keys and other secrets
//
// Digests are logged by their first eight characters; payloads are never
// logged.
package logger
