package vault

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/yndnr/savevault/internal/core/domain"
	"github.com/yndnr/savevault/internal/integrity"
	"github.com/yndnr/savevault/pkg/codec"
)

// SaveResult describes a written envelope.
type SaveResult struct {
	Envelope *domain.Envelope
	Stamp    integrity.Stamp
	// Rotated is true when a previous primary was moved to backup.
	Rotated       bool
	PayloadBytes  int
	EnvelopeBytes int
	BlobBytes     int
}

// Ratio returns envelope text size over blob size.
func (r *SaveResult) Ratio() float64 {
	if r.BlobBytes == 0 {
		return 0
	}
	return float64(r.EnvelopeBytes) / float64(r.BlobBytes)
}

// Save snapshots every partition and writes a new envelope to the primary
// slot. The previous primary becomes the backup.
func (v *Vault) Save(ctx context.Context) (*SaveResult, error) {
	if err := v.acquire(ctx); err != nil {
		return nil, err
	}
	defer v.release()

	res, _, err := v.save(ctx)
	return res, err
}

// save runs the save pipeline and returns the written blob. The caller
// holds the in-flight slot.
func (v *Vault) save(ctx context.Context) (*SaveResult, []byte, error) {
	start := v.now()
	res, blob, err := v.buildAndWrite(ctx)
	elapsed := v.now().Sub(start)

	v.mu.Lock()
	v.stats.TotalSaves++
	if err != nil {
		v.stats.FailedSaves++
	} else {
		v.stats.LastSaveAt = time.UnixMilli(res.Envelope.Timestamp)
		v.stats.PayloadBytes = res.PayloadBytes
		v.stats.EnvelopeBytes = res.EnvelopeBytes
		v.stats.BlobBytes = res.BlobBytes
		v.stats.CompressionRatio = res.Ratio()
	}
	v.mu.Unlock()

	if err != nil {
		v.recorder.SaveDone(resultLabel(err), 0, 0, elapsed)
		v.log(ctx).Error("save failed", "kind", Kind(err), "error", err)
		return nil, nil, err
	}

	v.recorder.SaveDone(resultLabel(nil), res.BlobBytes, res.Ratio(), elapsed)
	v.log(ctx).Info("save completed",
		"slot", string(domain.SlotPrimary),
		"id", res.Envelope.ID,
		"version", res.Envelope.Version,
		"digest", res.Stamp.Short(),
		"bytes", res.BlobBytes,
		"rotated", res.Rotated,
	)
	return res, blob, nil
}

func (v *Vault) buildAndWrite(ctx context.Context) (*SaveResult, []byte, error) {
	// 1. Snapshot partitions
	payload, err := v.snapshot(ctx)
	if err != nil {
		return nil, nil, err
	}

	// 2. Encode the canonical payload and stamp it
	payloadText, err := codec.Marshal(payload)
	if err != nil {
		return nil, nil, domain.ErrPartitionSnapshotFailure.Wrapf(err, "encode payload")
	}
	stamp, err := v.guard.Digest(payloadText)
	if err != nil {
		return nil, nil, err
	}

	// 3. Build the envelope
	now := v.now()
	v.mu.Lock()
	id, err := ulid.New(ulid.Timestamp(now), v.entropy)
	v.mu.Unlock()
	if err != nil {
		return nil, nil, fmt.Errorf("envelope id: %w", err)
	}
	env := &domain.Envelope{
		Version:   domain.CurrentVersion,
		ID:        id.String(),
		Timestamp: now.UnixMilli(),
		Digest:    stamp.Value,
		DigestAlg: string(stamp.Algorithm),
		Metadata:  v.extractMetadata(payload),
		Payload:   payloadText,
	}
	text, err := encodeEnvelope(env)
	if err != nil {
		return nil, nil, err
	}

	// 4. Pack
	blob, err := v.transport.Pack(text)
	if err != nil {
		return nil, nil, err
	}

	// 5. Rotate slots
	prev, err := v.readSlots(ctx)
	if err != nil {
		return nil, nil, err
	}
	if err := v.rotate(ctx, prev, blob); err != nil {
		return nil, nil, err
	}

	return &SaveResult{
		Envelope:      env,
		Stamp:         stamp,
		Rotated:       prev.hasPrimary,
		PayloadBytes:  len(payloadText),
		EnvelopeBytes: len(text),
		BlobBytes:     len(blob),
	}, blob, nil
}

// snapshot collects every partition value into one payload record.
func (v *Vault) snapshot(ctx context.Context) (codec.Record, error) {
	payload := make(codec.Record, len(v.partitions))
	for _, p := range v.partitions {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		val, err := p.Snapshot(ctx)
		if err != nil {
			return nil, domain.ErrPartitionSnapshotFailure.Wrapf(err, "partition %s", p.Name())
		}
		if val == nil {
			val = codec.Null{}
		}
		payload[p.Name()] = val
	}
	return payload, nil
}

// extractMetadata reads the configured paths from payload. Missing or
// mistyped values leave the field at its zero value.
func (v *Vault) extractMetadata(payload codec.Record) domain.Metadata {
	meta := domain.Metadata{Partitions: v.Partitions()}

	if path := v.metaPaths.DisplayName; path != "" {
		if name, ok := lookupValue(payload, path).(codec.String); ok {
			meta.DisplayName = string(name)
		}
	}
	meta.Day = lookupInt(payload, v.metaPaths.Day)
	meta.Level = lookupInt(payload, v.metaPaths.Level)
	meta.Playtime = lookupInt(payload, v.metaPaths.Playtime)
	return meta
}

func lookupValue(payload codec.Record, path string) codec.Value {
	val, ok := codec.Lookup(payload, path)
	if !ok {
		return nil
	}
	return val
}

func lookupInt(payload codec.Record, path string) int64 {
	if path == "" {
		return 0
	}
	switch n := lookupValue(payload, path).(type) {
	case codec.Int:
		return int64(n)
	case codec.Float:
		f := float64(n)
		if math.IsNaN(f) || math.IsInf(f, 0) {
			return 0
		}
		return int64(f)
	}
	return 0
}
