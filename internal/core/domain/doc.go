// Package domain defines the core domain models for SaveVault.
//
// It holds the types shared by every layer of the persistence core:
//
//   - envelope.go: Envelope, Metadata and Slot
//   - errors.go: DomainError and the error taxonomy
//
// Error codes are grouped by area (STOR, ENV, PART, SAVE, CONF). Envelope
// errors are the recoverable group: load retries them once against backup.
package domain
