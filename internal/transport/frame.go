package transport

import (
	"bytes"
	"fmt"

	"github.com/yndnr/savevault/internal/core/domain"
)

// Magic identifies framed blobs.
var Magic = []byte("SVLT")

const (
	headerSize = 5
	sealedFlag = 0x80
	compMask   = 0x0f
)

// Transport packs envelope text into blobs and unpacks them.
// It is safe for concurrent use.
type Transport struct {
	compression Compression
	codecs      *codecs
	sealer      *sealer
}

// Option configures a Transport.
type Option func(*options)

type options struct {
	compression Compression
	level       Level
	sealKey     []byte
}

// WithCompression selects the compressor used by Pack.
func WithCompression(c Compression) Option {
	return func(o *options) { o.compression = c }
}

// WithLevel selects the compression level.
func WithLevel(l Level) Option {
	return func(o *options) { o.level = l }
}

// WithSealKey enables sealing with a 32-byte key. A nil key disables it.
func WithSealKey(key []byte) Option {
	return func(o *options) { o.sealKey = key }
}

// New creates a Transport. The default packs with zstd at LevelDefault and
// does not seal.
func New(opts ...Option) (*Transport, error) {
	o := options{compression: DefaultCompression, level: LevelDefault}
	for _, opt := range opts {
		opt(&o)
	}

	if _, ok := compressionNames[o.compression]; !ok {
		return nil, domain.ErrInvalidConfig.WithDetails(fmt.Sprintf("unknown compression id %d", uint8(o.compression)))
	}
	if o.level < LevelFastest || o.level > LevelBest {
		return nil, domain.ErrInvalidConfig.WithDetails(fmt.Sprintf("unknown compression level %d", int(o.level)))
	}

	t := &Transport{compression: o.compression}
	if o.sealKey != nil {
		s, err := newSealer(o.sealKey)
		if err != nil {
			return nil, domain.ErrInvalidConfig.WithCause(err)
		}
		t.sealer = s
	}

	c, err := newCodecs(o.level)
	if err != nil {
		return nil, err
	}
	t.codecs = c
	return t, nil
}

// Compression returns the compressor used by Pack.
func (t *Transport) Compression() Compression {
	return t.compression
}

// Sealed reports whether Pack seals blobs.
func (t *Transport) Sealed() bool {
	return t.sealer != nil
}

// Close releases compressor resources.
func (t *Transport) Close() {
	t.codecs.close()
}

// Pack compresses (and optionally seals) envelope text into a blob.
func (t *Transport) Pack(text []byte) ([]byte, error) {
	body, err := t.codecs.compress(t.compression, text)
	if err != nil {
		return nil, fmt.Errorf("transport: compress %s: %w", t.compression, err)
	}

	header := make([]byte, headerSize)
	copy(header, Magic)
	header[4] = byte(t.compression)

	if t.sealer != nil {
		header[4] |= sealedFlag
		body, err = t.sealer.seal(body, header)
		if err != nil {
			return nil, fmt.Errorf("transport: seal: %w", err)
		}
	}

	blob := make([]byte, 0, headerSize+len(body))
	blob = append(blob, header...)
	return append(blob, body...), nil
}

// Unpack reverses Pack. Bare JSON blobs are returned as they are and
// unframed blobs are tried as legacy lz-string.
func (t *Transport) Unpack(blob []byte) ([]byte, error) {
	if IsBareJSON(blob) {
		return blob, nil
	}
	if len(blob) < headerSize || !bytes.Equal(blob[:4], Magic) {
		return unpackLegacyLZ(blob)
	}

	header := blob[:headerSize]
	flags := header[4]
	alg := Compression(flags & compMask)
	if flags&^(sealedFlag|compMask) != 0 {
		return nil, domain.ErrDecompressionFailure.WithDetails(fmt.Sprintf("reserved flag bits set: %#02x", flags))
	}

	body := blob[headerSize:]
	if flags&sealedFlag != 0 {
		if t.sealer == nil {
			return nil, domain.ErrDecompressionFailure.WithDetails("blob is sealed and no seal key is configured")
		}
		opened, err := t.sealer.open(body, header)
		if err != nil {
			return nil, domain.ErrDecompressionFailure.Wrapf(err, "open sealed body")
		}
		body = opened
	}

	text, err := t.codecs.decompress(alg, body)
	if err != nil {
		return nil, domain.ErrDecompressionFailure.Wrapf(err, "decompress %s", alg)
	}
	return text, nil
}

// Describe reports the compressor and seal state of a framed blob without
// unpacking it. Bare JSON reports None and unsealed; a pre-frame lz-string
// blob reports LegacyLZ.
func Describe(blob []byte) (Compression, bool, error) {
	if IsBareJSON(blob) {
		return None, false, nil
	}
	if len(blob) < headerSize || !bytes.Equal(blob[:4], Magic) {
		if IsLegacyLZ(blob) {
			return LegacyLZ, false, nil
		}
		return 0, false, domain.ErrDecompressionFailure.WithDetails("unrecognized blob format")
	}
	return Compression(blob[4] & compMask), blob[4]&sealedFlag != 0, nil
}

// IsBareJSON reports whether blob is uncompressed JSON object text.
func IsBareJSON(blob []byte) bool {
	trimmed := bytes.TrimLeft(blob, " \t\r\n")
	return len(trimmed) > 0 && trimmed[0] == '{'
}
