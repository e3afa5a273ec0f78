// Package integrity computes and verifies envelope payload digests.
//
// A digest is a non-cryptographic fingerprint of the exact payload bytes; it
// detects corruption and truncation, not tampering. Sealing in the transport
// layer covers the latter.
//
// Supported algorithms:
//
//   - murmur3-128: default, 32 lowercase hex characters
//   - xxhash64: 16 lowercase hex characters
//   - additive32: legacy 32-bit string hash of version 1 saves, verify only
package integrity
