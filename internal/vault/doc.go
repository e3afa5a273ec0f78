// Package vault is the persistence orchestrator of SaveVault.
//
// A Vault snapshots its registered partitions into one versioned, digested
// envelope, packs it through the transport and writes it to the primary
// slot after moving the previous primary to the backup slot. Load reverses
// the pipeline and applies every partition or none of them; a damaged
// primary is retried once against the backup.
//
// All mutating operations (Save, Load, ExportEnvelope, ImportEnvelope and
// Clear) share a single in-flight slot. By default a second caller waits
// for it; WithRejectWhenBusy makes it fail with ErrBusy instead.
package vault
