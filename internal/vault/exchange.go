package vault

import (
	"context"
	"errors"
	"fmt"

	"github.com/yndnr/savevault/internal/core/domain"
	"github.com/yndnr/savevault/internal/migrate"
	"github.com/yndnr/savevault/internal/transport"
	"github.com/yndnr/savevault/pkg/codec"
)

// ============================================================================
// Export / Import
// ============================================================================

// ExportEnvelope saves and returns the blob written to the primary slot.
func (v *Vault) ExportEnvelope(ctx context.Context) ([]byte, error) {
	if err := v.acquire(ctx); err != nil {
		return nil, err
	}
	defer v.release()

	_, blob, err := v.save(ctx)
	if err != nil {
		return nil, err
	}
	return blob, nil
}

// ImportEnvelope installs blob as the primary slot and loads it. The blob
// is fully verified before any slot is touched. If the load fails, both
// slots are restored to their state before the import.
func (v *Vault) ImportEnvelope(ctx context.Context, blob []byte) (*LoadResult, error) {
	if err := v.acquire(ctx); err != nil {
		return nil, err
	}
	defer v.release()

	// 1. Verify without side effects
	dec, err := v.decode(blob)
	if err != nil {
		v.log(ctx).Warn("import rejected", "kind", Kind(err), "error", err)
		return nil, err
	}

	// 2. Rotate the blob in
	prev, err := v.readSlots(ctx)
	if err != nil {
		return nil, err
	}
	if err := v.rotate(ctx, prev, blob); err != nil {
		return nil, err
	}

	// 3. Load it, undoing the rotation on failure
	res, err := v.load(ctx)
	if err != nil {
		v.restore(ctx, prev)
		return nil, err
	}

	v.log(ctx).Info("import completed", "id", dec.Envelope.ID, "version", dec.SourceVersion)
	return res, nil
}

// ============================================================================
// Slot management
// ============================================================================

// Clear removes both slots and the configured legacy keys. Partition state
// is not touched.
func (v *Vault) Clear(ctx context.Context) error {
	if err := v.acquire(ctx); err != nil {
		return err
	}
	defer v.release()

	keys := []string{v.key(domain.SlotPrimary), v.key(domain.SlotBackup)}
	keys = append(keys, v.legacyKeys...)

	var errs []error
	for _, key := range keys {
		if err := v.removeKey(ctx, key); err != nil {
			errs = append(errs, err)
		}
	}
	if err := errors.Join(errs...); err != nil {
		return err
	}

	v.log(ctx).Info("slots cleared", "keys", len(keys))
	return nil
}

// HasSave reports whether the primary slot holds a blob. The blob is not
// validated.
func (v *Vault) HasSave(ctx context.Context) (bool, error) {
	_, found, err := v.readSlot(ctx, domain.SlotPrimary)
	if err != nil {
		return false, err
	}
	return found, nil
}

// Metadata returns the primary envelope metadata lifted to the current
// layout. The digest is not checked.
func (v *Vault) Metadata(ctx context.Context) (*domain.Metadata, error) {
	blob, found, err := v.readSlot(ctx, domain.SlotPrimary)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, domain.ErrNoSave.WithDetails(v.key(domain.SlotPrimary))
	}

	text, err := v.transport.Unpack(blob)
	if err != nil {
		return nil, err
	}
	doc, err := migrate.Parse(text)
	if err != nil {
		return nil, err
	}
	meta, err := v.chain.MigrateMetadata(doc.Version, doc.Raw(migrate.FieldMetadata))
	if err != nil {
		return nil, err
	}
	return &meta, nil
}

// ============================================================================
// Inspection
// ============================================================================

// Inspection is a fully verified slot that was not applied.
type Inspection struct {
	Slot        domain.Slot
	Envelope    *domain.Envelope
	Version     int
	Migrated    bool
	Verified    bool
	Compression transport.Compression
	Sealed      bool
	BlobBytes   int
	Payload     codec.Record
}

// Inspect reads slot through the whole load pipeline without applying it.
func (v *Vault) Inspect(ctx context.Context, slot domain.Slot) (*Inspection, error) {
	if !slot.Valid() {
		return nil, domain.ErrInvalidConfig.WithDetails(fmt.Sprintf("unknown slot %q", slot))
	}

	blob, found, err := v.readSlot(ctx, slot)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, domain.ErrNoSave.WithDetails(v.key(slot))
	}

	comp, sealed, err := transport.Describe(blob)
	if err != nil {
		return nil, err
	}
	dec, err := v.decode(blob)
	if err != nil {
		return nil, err
	}

	return &Inspection{
		Slot:        slot,
		Envelope:    dec.Envelope,
		Version:     dec.SourceVersion,
		Migrated:    dec.Migrated,
		Verified:    dec.Verified,
		Compression: comp,
		Sealed:      sealed,
		BlobBytes:   len(blob),
		Payload:     dec.Payload,
	}, nil
}
