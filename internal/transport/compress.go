package transport

import (
	"bytes"
	"fmt"
	"io"
	"strings"

	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/s2"
	"github.com/klauspost/compress/zstd"
)

// Compression identifies a blob compressor. The value is stored in the frame.
type Compression uint8

const (
	None Compression = 0
	Zstd Compression = 1
	S2   Compression = 2
	Gzip Compression = 3

	// LegacyLZ marks unframed lz-string blobs. It is reported by Describe
	// and cannot be selected for Pack.
	LegacyLZ Compression = 0xff
)

// DefaultCompression is used when none is configured.
const DefaultCompression = Zstd

var compressionNames = map[Compression]string{
	None: "none",
	Zstd: "zstd",
	S2:   "s2",
	Gzip: "gzip",
}

func (c Compression) String() string {
	if name, ok := compressionNames[c]; ok {
		return name
	}
	if c == LegacyLZ {
		return "lz-string"
	}
	return fmt.Sprintf("compression(%d)", uint8(c))
}

// ParseCompression resolves a configured compressor name. An empty name
// selects DefaultCompression.
func ParseCompression(name string) (Compression, error) {
	name = strings.ToLower(strings.TrimSpace(name))
	if name == "" {
		return DefaultCompression, nil
	}
	for c, n := range compressionNames {
		if n == name {
			return c, nil
		}
	}
	return 0, fmt.Errorf("unknown compression %q", name)
}

// Level trades speed for ratio. Each compressor maps it to its own scale.
type Level int

const (
	LevelFastest Level = iota
	LevelDefault
	LevelBetter
	LevelBest
)

var levelNames = []string{"fastest", "default", "better", "best"}

func (l Level) String() string {
	if l >= 0 && int(l) < len(levelNames) {
		return levelNames[l]
	}
	return fmt.Sprintf("level(%d)", int(l))
}

// ParseLevel resolves a configured level name. An empty name selects
// LevelDefault.
func ParseLevel(name string) (Level, error) {
	name = strings.ToLower(strings.TrimSpace(name))
	if name == "" {
		return LevelDefault, nil
	}
	for i, n := range levelNames {
		if n == name {
			return Level(i), nil
		}
	}
	return 0, fmt.Errorf("unknown compression level %q", name)
}

// maxDecodedSize bounds the size of a decompressed envelope.
const maxDecodedSize = 256 << 20

// codecs holds the stateful zstd encoder and decoder; both are safe for
// concurrent EncodeAll/DecodeAll calls.
type codecs struct {
	level Level
	zenc  *zstd.Encoder
	zdec  *zstd.Decoder
}

func newCodecs(level Level) (*codecs, error) {
	zenc, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstdLevel(level)))
	if err != nil {
		return nil, fmt.Errorf("zstd encoder: %w", err)
	}
	zdec, err := zstd.NewReader(nil, zstd.WithDecoderMaxMemory(maxDecodedSize))
	if err != nil {
		zenc.Close()
		return nil, fmt.Errorf("zstd decoder: %w", err)
	}
	return &codecs{level: level, zenc: zenc, zdec: zdec}, nil
}

func (c *codecs) close() {
	c.zenc.Close()
	c.zdec.Close()
}

func zstdLevel(l Level) zstd.EncoderLevel {
	switch l {
	case LevelFastest:
		return zstd.SpeedFastest
	case LevelBetter:
		return zstd.SpeedBetterCompression
	case LevelBest:
		return zstd.SpeedBestCompression
	default:
		return zstd.SpeedDefault
	}
}

func gzipLevel(l Level) int {
	switch l {
	case LevelFastest:
		return gzip.BestSpeed
	case LevelBetter:
		return 7
	case LevelBest:
		return gzip.BestCompression
	default:
		return gzip.DefaultCompression
	}
}

func (c *codecs) compress(alg Compression, src []byte) ([]byte, error) {
	switch alg {
	case None:
		return src, nil
	case Zstd:
		return c.zenc.EncodeAll(src, make([]byte, 0, len(src)/2)), nil
	case S2:
		switch c.level {
		case LevelBetter:
			return s2.EncodeBetter(nil, src), nil
		case LevelBest:
			return s2.EncodeBest(nil, src), nil
		default:
			return s2.Encode(nil, src), nil
		}
	case Gzip:
		var buf bytes.Buffer
		w, err := gzip.NewWriterLevel(&buf, gzipLevel(c.level))
		if err != nil {
			return nil, err
		}
		if _, err := w.Write(src); err != nil {
			return nil, err
		}
		if err := w.Close(); err != nil {
			return nil, err
		}
		return buf.Bytes(), nil
	default:
		return nil, fmt.Errorf("unsupported compression %s", alg)
	}
}

func (c *codecs) decompress(alg Compression, src []byte) ([]byte, error) {
	switch alg {
	case None:
		return src, nil
	case Zstd:
		return c.zdec.DecodeAll(src, nil)
	case S2:
		n, err := s2.DecodedLen(src)
		if err != nil {
			return nil, err
		}
		if n > maxDecodedSize {
			return nil, fmt.Errorf("decoded size %d exceeds limit", n)
		}
		return s2.Decode(nil, src)
	case Gzip:
		r, err := gzip.NewReader(bytes.NewReader(src))
		if err != nil {
			return nil, err
		}
		defer r.Close()
		out, err := io.ReadAll(io.LimitReader(r, maxDecodedSize+1))
		if err != nil {
			return nil, err
		}
		if len(out) > maxDecodedSize {
			return nil, fmt.Errorf("decoded size exceeds limit")
		}
		return out, nil
	default:
		return nil, fmt.Errorf("unknown compressor id %d", uint8(alg))
	}
}
