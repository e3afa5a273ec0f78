// Package transport turns envelope text into stored blobs and back.
//
// A blob is a small frame around the compressed envelope:
//
//	+--------+-------+------------------------------+
//	| "SVLT" | flags | body                         |
//	+--------+-------+------------------------------+
//
// The low nibble of flags holds the compressor id (none, zstd, s2, gzip) and
// bit 7 marks a sealed body. A sealed body is a 24-byte nonce followed by the
// XChaCha20-Poly1305 ciphertext of the compressed envelope, with the 5-byte
// header as associated data.
//
// Unpack detects the compressor from the frame, so blobs written under any
// earlier configuration stay readable. Blobs that are bare JSON text are
// returned unchanged. Every unpack failure is reported as
// domain.ErrDecompressionFailure.
package transport
