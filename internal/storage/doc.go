// Package storage holds the slot backends.
//
// Every backend implements Store, a small blob map with atomic whole-value
// writes. The vault keeps each slot under its own key, so swapping a
// backend never changes save semantics.
//
// Backends:
//
//   - memory: process memory, for tests and ephemeral sessions
//   - file: one file per key, written via temp file and rename
//   - badger: Badger v3 LSM store with background value log GC
//   - bolt: single-file Bolt B+tree
//   - sqlite: SQLite table through the pure Go driver
//   - redis: remote Redis server, keys prefixed per deployment
//
// Open builds a backend from Config.
package storage
