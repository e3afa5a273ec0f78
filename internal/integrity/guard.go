package integrity

import (
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"

	"github.com/cespare/xxhash/v2"
	"github.com/spaolacci/murmur3"

	"github.com/yndnr/savevault/internal/core/domain"
)

// Algorithm names a digest function.
type Algorithm string

const (
	Murmur3    Algorithm = "murmur3-128"
	XXHash64   Algorithm = "xxhash64"
	Additive32 Algorithm = "additive32"
)

// DefaultAlgorithm is used when none is configured.
const DefaultAlgorithm = Murmur3

// ParseAlgorithm resolves a configured algorithm name. An empty name selects
// DefaultAlgorithm.
func ParseAlgorithm(name string) (Algorithm, error) {
	switch alg := Algorithm(strings.ToLower(strings.TrimSpace(name))); alg {
	case "":
		return DefaultAlgorithm, nil
	case Murmur3, XXHash64, Additive32:
		return alg, nil
	default:
		return "", fmt.Errorf("unknown digest algorithm %q", name)
	}
}

// Writable reports whether new envelopes may be stamped with alg.
func (a Algorithm) Writable() bool {
	return a == Murmur3 || a == XXHash64
}

// Stamp is a digest value together with the algorithm that produced it.
type Stamp struct {
	Algorithm Algorithm
	Value     string
}

// Short returns the first eight characters of the digest, for logs.
func (s Stamp) Short() string {
	if len(s.Value) > 8 {
		return s.Value[:8]
	}
	return s.Value
}

// Guard stamps payloads with one configured algorithm and verifies stamps
// of any supported algorithm.
//
// The zero Guard uses DefaultAlgorithm.
type Guard struct {
	alg Algorithm
}

// NewGuard creates a guard that stamps with alg.
func NewGuard(alg Algorithm) (*Guard, error) {
	if alg == "" {
		alg = DefaultAlgorithm
	}
	if !alg.Writable() {
		return nil, domain.ErrInvalidConfig.WithDetails(fmt.Sprintf("digest algorithm %q cannot stamp new envelopes", alg))
	}
	return &Guard{alg: alg}, nil
}

// Algorithm returns the stamping algorithm.
func (g *Guard) Algorithm() Algorithm {
	if g == nil || g.alg == "" {
		return DefaultAlgorithm
	}
	return g.alg
}

// Digest stamps payload.
func (g *Guard) Digest(payload []byte) (Stamp, error) {
	alg := g.Algorithm()
	if !alg.Writable() {
		return Stamp{}, domain.ErrInvalidConfig.WithDetails(fmt.Sprintf("digest algorithm %q cannot stamp", alg))
	}
	sum, err := Sum(alg, payload)
	if err != nil {
		return Stamp{}, err
	}
	return Stamp{Algorithm: alg, Value: sum}, nil
}

// Verify checks payload against stamp. A mismatch or an unknown algorithm
// yields ErrDigestMismatch.
func (g *Guard) Verify(payload []byte, stamp Stamp) error {
	return Verify(payload, stamp)
}

// Verify checks payload against stamp without a Guard.
func Verify(payload []byte, stamp Stamp) error {
	if stamp.Value == "" {
		return domain.ErrDigestMismatch.WithDetails("empty digest")
	}
	got, err := Sum(stamp.Algorithm, payload)
	if err != nil {
		return domain.ErrDigestMismatch.WithCause(err)
	}
	if !strings.EqualFold(got, stamp.Value) {
		return domain.ErrDigestMismatch.WithDetails(fmt.Sprintf("%s: stored %s, computed %s", stamp.Algorithm, stamp.Value, got))
	}
	return nil
}

// Sum computes the digest of payload under alg.
func Sum(alg Algorithm, payload []byte) (string, error) {
	switch alg {
	case Murmur3:
		h1, h2 := murmur3.Sum128(payload)
		var buf [16]byte
		binary.BigEndian.PutUint64(buf[:8], h1)
		binary.BigEndian.PutUint64(buf[8:], h2)
		return hex.EncodeToString(buf[:]), nil
	case XXHash64:
		return fmt.Sprintf("%016x", xxhash.Sum64(payload)), nil
	case Additive32:
		return strconv.FormatInt(int64(additive32(payload)), 16), nil
	default:
		return "", fmt.Errorf("unsupported digest algorithm %q", alg)
	}
}
