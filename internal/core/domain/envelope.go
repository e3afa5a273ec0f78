package domain

import (
	"encoding/json"
	"time"
)

// CurrentVersion is the envelope schema version written by save.
const CurrentVersion = 3

// Slot names a persistent location holding one envelope.
type Slot string

const (
	SlotPrimary Slot = "primary"
	SlotBackup  Slot = "backup"
)

// Valid reports whether s is a known slot.
func (s Slot) Valid() bool {
	return s == SlotPrimary || s == SlotBackup
}

// Metadata is a small summary extracted from the payload at save time.
// It is a cache for fast display and never authoritative.
type Metadata struct {
	DisplayName string   `json:"display_name,omitempty" yaml:"display_name,omitempty"`
	Day         int64    `json:"day" yaml:"day"`
	Level       int64    `json:"level" yaml:"level"`
	Playtime    int64    `json:"playtime" yaml:"playtime"`
	Partitions  []string `json:"partitions,omitempty" yaml:"partitions,omitempty"`
}

// Envelope is the unit of persistence.
//
// Payload holds the exact compact JSON bytes the digest was computed over;
// it is kept raw so that verification sees precisely what was written.
type Envelope struct {
	Version   int             `json:"version"`
	ID        string          `json:"id,omitempty"`
	Timestamp int64           `json:"timestamp"`
	Digest    string          `json:"digest"`
	DigestAlg string          `json:"digest_alg,omitempty"`
	Metadata  Metadata        `json:"metadata"`
	Payload   json.RawMessage `json:"payload"`
}

// CreatedAt returns the envelope timestamp as a time.Time.
func (e *Envelope) CreatedAt() time.Time {
	return time.UnixMilli(e.Timestamp)
}
