// Package main provides the entry point for savevault-cli.
//
// The CLI works directly against a slot backend for:
//
//   - Saving state files and loading them back
//   - Verifying and dumping primary and backup slots
//   - Exporting and importing portable save blobs
//   - Auto-saving a state file while it changes
//
// Usage:
//
//	savevault-cli [global flags] command [flags]
//	savevault-cli --config savevault.yaml save --from state.json
//	savevault-cli -o json verify --slot all
package main
