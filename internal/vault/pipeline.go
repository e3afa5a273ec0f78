package vault

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/yndnr/savevault/internal/core/domain"
	"github.com/yndnr/savevault/internal/integrity"
	"github.com/yndnr/savevault/internal/migrate"
	"github.com/yndnr/savevault/pkg/codec"
)

// decoded is a blob that passed the whole read pipeline.
type decoded struct {
	Envelope *domain.Envelope
	// SourceVersion is the version stored in the blob before migration.
	SourceVersion int
	Migrated      bool
	// Verified is false only for legacy envelopes written without a checksum.
	Verified bool
	Payload  codec.Record
}

// decode runs unpack, parse, version gate, digest check, migration and
// payload decoding. Every failure is one of the recoverable envelope errors.
func (v *Vault) decode(blob []byte) (*decoded, error) {
	// 1. Unpack
	text, err := v.transport.Unpack(blob)
	if err != nil {
		return nil, err
	}

	// 2. Parse and gate the version
	doc, err := migrate.Parse(text)
	if err != nil {
		return nil, err
	}
	if err := v.chain.Check(doc.Version); err != nil {
		return nil, err
	}

	// 3. Verify the digest as stored
	verified, err := doc.Verify()
	if err != nil {
		return nil, err
	}

	out := &decoded{SourceVersion: doc.Version, Verified: verified}

	// 4. Migrate and verify the restamped result
	if doc.Version != v.chain.Current() {
		if doc, err = v.chain.Migrate(doc); err != nil {
			return nil, err
		}
		if _, err := doc.Verify(); err != nil {
			return nil, err
		}
		out.Migrated = true
	}

	// 5. Decode the payload
	env, err := doc.Envelope()
	if err != nil {
		return nil, err
	}
	tree, err := codec.Unmarshal(env.Payload)
	if err != nil {
		return nil, domain.ErrParseFailure.Wrapf(err, "payload")
	}
	payload, ok := tree.(codec.Record)
	if !ok {
		return nil, domain.ErrParseFailure.WithDetails(fmt.Sprintf("payload is %s, not a record", tree.Kind()))
	}

	out.Envelope = env
	out.Payload = payload
	return out, nil
}

// encodeEnvelope renders env as compact JSON without HTML escaping so the
// payload bytes stay exactly as digested.
func encodeEnvelope(env *domain.Envelope) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(env); err != nil {
		return nil, fmt.Errorf("encode envelope: %w", err)
	}
	return bytes.TrimSuffix(buf.Bytes(), []byte{'\n'}), nil
}

// stampOf returns the envelope digest as an integrity stamp.
func stampOf(env *domain.Envelope) integrity.Stamp {
	return integrity.Stamp{Algorithm: integrity.Algorithm(env.DigestAlg), Value: env.Digest}
}
