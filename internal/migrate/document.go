package migrate

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"

	"github.com/yndnr/savevault/internal/core/domain"
	"github.com/yndnr/savevault/internal/integrity"
	"github.com/yndnr/savevault/pkg/codec"
)

// Envelope field names across all versions.
const (
	FieldVersion   = "version"
	FieldID        = "id"
	FieldTimestamp = "timestamp"
	FieldDigest    = "digest"
	FieldDigestAlg = "digest_alg"
	FieldMetadata  = "metadata"
	FieldPayload   = "payload"

	// Version 1 names.
	FieldData     = "data"
	FieldChecksum = "checksum"
)

// Document is an envelope of any version held as raw top-level fields.
// Raw values keep the exact bytes that were read, so digests can be checked
// against them.
type Document struct {
	Version int
	fields  map[string]json.RawMessage
}

// Parse reads envelope text. A missing, non-integer or non-positive version
// is a ParseFailure; version range checks are left to the Chain.
func Parse(text []byte) (*Document, error) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(text, &fields); err != nil {
		return nil, domain.ErrParseFailure.Wrapf(err, "envelope text")
	}
	if fields == nil {
		return nil, domain.ErrParseFailure.WithDetails("envelope is not an object")
	}

	raw, ok := fields[FieldVersion]
	if !ok {
		return nil, domain.ErrParseFailure.WithDetails("missing version")
	}
	var version int
	if err := json.Unmarshal(raw, &version); err != nil {
		return nil, domain.ErrParseFailure.Wrapf(err, "version %s", raw)
	}
	if version < 1 {
		return nil, domain.ErrParseFailure.WithDetails(fmt.Sprintf("invalid version %d", version))
	}

	return &Document{Version: version, fields: fields}, nil
}

// Clone returns a copy that shares no field map with d.
func (d *Document) Clone() *Document {
	fields := make(map[string]json.RawMessage, len(d.fields))
	for k, v := range d.fields {
		fields[k] = v
	}
	return &Document{Version: d.Version, fields: fields}
}

// Has reports whether the field is present.
func (d *Document) Has(name string) bool {
	_, ok := d.fields[name]
	return ok
}

// Raw returns the raw bytes of a field, or nil.
func (d *Document) Raw(name string) json.RawMessage {
	return d.fields[name]
}

// SetRaw replaces a field with raw JSON bytes.
func (d *Document) SetRaw(name string, raw json.RawMessage) {
	if d.fields == nil {
		d.fields = make(map[string]json.RawMessage)
	}
	d.fields[name] = raw
}

// Set marshals v canonically into a field.
func (d *Document) Set(name string, v any) error {
	raw, err := codec.MarshalTree(v)
	if err != nil {
		return err
	}
	d.SetRaw(name, raw)
	return nil
}

// Delete removes a field.
func (d *Document) Delete(name string) {
	delete(d.fields, name)
}

// String decodes a string field. A missing field yields "".
func (d *Document) String(name string) (string, error) {
	raw, ok := d.fields[name]
	if !ok {
		return "", nil
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return "", domain.ErrParseFailure.Wrapf(err, "field %s", name)
	}
	return s, nil
}

// Int decodes an integer field. A missing field yields 0.
func (d *Document) Int(name string) (int64, error) {
	raw, ok := d.fields[name]
	if !ok {
		return 0, nil
	}
	var n json.Number
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	if err := dec.Decode(&n); err != nil {
		return 0, domain.ErrParseFailure.Wrapf(err, "field %s", name)
	}
	if i, err := n.Int64(); err == nil {
		return i, nil
	}
	f, err := n.Float64()
	if err != nil {
		return 0, domain.ErrParseFailure.Wrapf(err, "field %s", name)
	}
	return int64(f), nil
}

// Covered returns the bytes the stored digest was computed over and the
// stored stamp. For version 1 that is the data field under the legacy
// additive hash; later versions cover the payload field.
func (d *Document) Covered() ([]byte, integrity.Stamp, error) {
	if d.Version == 1 {
		sum, err := d.checksumText()
		if err != nil {
			return nil, integrity.Stamp{}, err
		}
		return d.fields[FieldData], integrity.Stamp{Algorithm: integrity.Additive32, Value: sum}, nil
	}

	digest, err := d.String(FieldDigest)
	if err != nil {
		return nil, integrity.Stamp{}, err
	}
	alg, err := d.String(FieldDigestAlg)
	if err != nil {
		return nil, integrity.Stamp{}, err
	}
	if alg == "" {
		alg = string(integrity.Murmur3)
	}
	return d.fields[FieldPayload], integrity.Stamp{Algorithm: integrity.Algorithm(alg), Value: digest}, nil
}

// checksumText reads the version 1 checksum, which older writers stored as
// either a hex string or a bare number.
func (d *Document) checksumText() (string, error) {
	raw, ok := d.fields[FieldChecksum]
	if !ok || string(raw) == "null" {
		return "", nil
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s, nil
	}
	n, err := d.Int(FieldChecksum)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%x", n), nil
}

// Verify checks the stored digest against the covered bytes. A version 1
// document without a checksum cannot be verified; Verify then reports
// false with no error. Every other version must carry a digest.
func (d *Document) Verify() (bool, error) {
	covered, stamp, err := d.Covered()
	if err != nil {
		return false, err
	}
	if d.Version == 1 && stamp.Value == "" {
		return false, nil
	}
	if covered == nil {
		return false, domain.ErrParseFailure.WithDetails("envelope has no payload")
	}
	if err := integrity.Verify(covered, stamp); err != nil {
		return false, err
	}
	return true, nil
}

// Restamp recomputes the payload digest with alg.
func (d *Document) Restamp(alg integrity.Algorithm) error {
	payload, ok := d.fields[FieldPayload]
	if !ok {
		return domain.ErrParseFailure.WithDetails("envelope has no payload")
	}
	sum, err := integrity.Sum(alg, payload)
	if err != nil {
		return err
	}
	return d.Set(FieldDigest, sum)
}

// Envelope converts a current-version document into a domain.Envelope.
// The payload bytes are carried over unchanged.
func (d *Document) Envelope() (*domain.Envelope, error) {
	if d.Version != domain.CurrentVersion {
		return nil, domain.ErrUnsupportedVersion.WithDetails(fmt.Sprintf("document is version %d", d.Version))
	}

	env := &domain.Envelope{Version: d.Version}
	var err error
	if env.ID, err = d.String(FieldID); err != nil {
		return nil, err
	}
	if env.Timestamp, err = d.Int(FieldTimestamp); err != nil {
		return nil, err
	}
	if env.Digest, err = d.String(FieldDigest); err != nil {
		return nil, err
	}
	if env.DigestAlg, err = d.String(FieldDigestAlg); err != nil {
		return nil, err
	}
	if raw, ok := d.fields[FieldMetadata]; ok {
		if err := json.Unmarshal(raw, &env.Metadata); err != nil {
			return nil, domain.ErrParseFailure.Wrapf(err, "metadata")
		}
	}
	payload, ok := d.fields[FieldPayload]
	if !ok {
		return nil, domain.ErrParseFailure.WithDetails("envelope has no payload")
	}
	env.Payload = append(json.RawMessage(nil), payload...)
	return env, nil
}

// FieldNames returns the present field names, sorted.
func (d *Document) FieldNames() []string {
	names := make([]string, 0, len(d.fields))
	for k := range d.fields {
		names = append(names, k)
	}
	sort.Strings(names)
	return names
}
