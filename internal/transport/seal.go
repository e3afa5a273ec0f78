package transport

import (
	"crypto/cipher"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"strings"

	"golang.org/x/crypto/chacha20poly1305"
)

// SealKeySize is the required sealing key length in bytes.
const SealKeySize = chacha20poly1305.KeySize

var errSealedTooShort = errors.New("sealed body too short")

// ParseSealKey decodes a hex sealing key. An empty string disables sealing
// and returns a nil key.
func ParseSealKey(text string) ([]byte, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, nil
	}
	key, err := hex.DecodeString(text)
	if err != nil {
		return nil, fmt.Errorf("seal key: %w", err)
	}
	if len(key) != SealKeySize {
		return nil, fmt.Errorf("seal key must be %d bytes, got %d", SealKeySize, len(key))
	}
	return key, nil
}

// sealer wraps an XChaCha20-Poly1305 AEAD. The random nonce is prepended to
// the ciphertext.
type sealer struct {
	aead cipher.AEAD
}

func newSealer(key []byte) (*sealer, error) {
	if len(key) != SealKeySize {
		return nil, fmt.Errorf("seal key must be %d bytes, got %d", SealKeySize, len(key))
	}
	aead, err := chacha20poly1305.NewX(key)
	if err != nil {
		return nil, err
	}
	return &sealer{aead: aead}, nil
}

func (s *sealer) seal(plaintext, additionalData []byte) ([]byte, error) {
	nonce := make([]byte, s.aead.NonceSize(), s.aead.NonceSize()+len(plaintext)+s.aead.Overhead())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, fmt.Errorf("nonce: %w", err)
	}
	return s.aead.Seal(nonce, nonce, plaintext, additionalData), nil
}

func (s *sealer) open(body, additionalData []byte) ([]byte, error) {
	ns := s.aead.NonceSize()
	if len(body) < ns+s.aead.Overhead() {
		return nil, errSealedTooShort
	}
	return s.aead.Open(nil, body[:ns], body[ns:], additionalData)
}
