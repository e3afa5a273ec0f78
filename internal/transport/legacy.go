package transport

import (
	"encoding/binary"
	"fmt"

	lzstring "github.com/daku10/go-lz-string"

	"github.com/yndnr/savevault/internal/core/domain"
)

// Legacy blobs predate the frame. They hold lz-string output as UTF-16LE
// code units; the units may include lone surrogates, so they are kept raw.

// IsLegacyLZ reports whether blob decodes as an lz-string compressed
// envelope.
func IsLegacyLZ(blob []byte) bool {
	_, err := unpackLegacyLZ(blob)
	return err == nil
}

func unpackLegacyLZ(blob []byte) ([]byte, error) {
	if len(blob) == 0 || len(blob)%2 != 0 {
		return nil, domain.ErrDecompressionFailure.WithDetails("unrecognized blob format")
	}
	units := make([]uint16, len(blob)/2)
	for i := range units {
		units[i] = binary.LittleEndian.Uint16(blob[2*i:])
	}

	text, err := lzstring.Decompress(units)
	if err != nil {
		return nil, domain.ErrDecompressionFailure.Wrapf(err, "decompress legacy lz-string")
	}
	if len(text) > maxDecodedSize {
		return nil, domain.ErrDecompressionFailure.WithDetails("decoded size exceeds limit")
	}
	if !IsBareJSON([]byte(text)) {
		return nil, domain.ErrDecompressionFailure.WithDetails("unrecognized blob format")
	}
	return []byte(text), nil
}

// PackLegacyLZ encodes text the way pre-frame builds stored it. It exists
// for fixtures and conversion tooling; Pack never produces it.
func PackLegacyLZ(text []byte) ([]byte, error) {
	units, err := lzstring.Compress(string(text))
	if err != nil {
		return nil, fmt.Errorf("transport: legacy compress: %w", err)
	}
	blob := make([]byte, 2*len(units))
	for i, u := range units {
		binary.LittleEndian.PutUint16(blob[2*i:], u)
	}
	return blob, nil
}
