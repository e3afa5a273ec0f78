// Package migrate upgrades stored envelopes to the current schema version.
//
// Migration works on a Document, the envelope parsed into raw top-level
// fields, before any payload is decoded into values. Each Step lifts a
// document exactly one version; a Chain applies steps in order until the
// document reaches the current version.
//
// Version history:
//
//	1  legacy layout: data/checksum, camelCase metadata, untagged flag maps
//	2  payload/digest, tagged maps, murmur3-128 digest implied
//	3  adds a time-ordered id and an explicit digest_alg
//
// Documents newer than the current version are refused, never downgraded.
package migrate
