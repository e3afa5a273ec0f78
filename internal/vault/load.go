package vault

import (
	"context"
	"fmt"

	"github.com/yndnr/savevault/internal/core/domain"
	"github.com/yndnr/savevault/pkg/codec"
)

// LoadResult describes an applied envelope.
type LoadResult struct {
	// Slot is the slot the envelope was read from.
	Slot     domain.Slot
	Envelope *domain.Envelope
	// Version is the envelope version as stored, before migration.
	Version  int
	Migrated bool
	Verified bool
	// PrimaryErr is the primary slot failure when the backup was used.
	PrimaryErr error
	// Skipped lists partitions absent from the payload; they keep their state.
	Skipped []string
}

// Fallback reports whether the backup slot served the load.
func (r *LoadResult) Fallback() bool {
	return r.Slot == domain.SlotBackup
}

// Load reads the primary slot and applies it to every partition. An
// envelope error on the primary is retried once against the backup.
// Partitions are applied all together or not at all; slots are never
// modified.
func (v *Vault) Load(ctx context.Context) (*LoadResult, error) {
	if err := v.acquire(ctx); err != nil {
		return nil, err
	}
	defer v.release()

	return v.load(ctx)
}

func (v *Vault) load(ctx context.Context) (*LoadResult, error) {
	start := v.now()
	res, err := v.readAndApply(ctx)
	elapsed := v.now().Sub(start)

	v.mu.Lock()
	v.stats.TotalLoads++
	if err != nil {
		v.stats.FailedLoads++
	} else {
		v.stats.LastLoadAt = v.now()
		if res.Fallback() {
			v.stats.FallbackLoads++
		}
	}
	v.mu.Unlock()

	if err != nil {
		v.recorder.LoadDone(resultLabel(err), "", elapsed)
		v.log(ctx).Error("load failed", "kind", Kind(err), "error", err)
		return nil, err
	}

	v.recorder.LoadDone(resultLabel(nil), string(res.Slot), elapsed)
	v.log(ctx).Info("load completed",
		"slot", string(res.Slot),
		"id", res.Envelope.ID,
		"version", res.Version,
		"migrated", res.Migrated,
		"digest", stampOf(res.Envelope).Short(),
	)
	return res, nil
}

func (v *Vault) readAndApply(ctx context.Context) (*LoadResult, error) {
	// 1. Read and decode the primary
	blob, found, err := v.readSlot(ctx, domain.SlotPrimary)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, domain.ErrNoSave.WithDetails(v.key(domain.SlotPrimary))
	}

	res := &LoadResult{Slot: domain.SlotPrimary}
	dec, err := v.decode(blob)

	// 2. One hop to the backup on an envelope error
	if err != nil {
		if !domain.IsRecoverable(err) {
			return nil, err
		}
		primaryErr := err
		v.recorder.Fallback()
		v.log(ctx).Warn("primary slot unreadable, trying backup", "kind", Kind(err), "error", err)

		backup, found, rerr := v.readSlot(ctx, domain.SlotBackup)
		if rerr != nil {
			return nil, rerr
		}
		if !found {
			return nil, primaryErr
		}
		if dec, err = v.decode(backup); err != nil {
			return nil, fmt.Errorf("backup: %w (primary: %v)", err, primaryErr)
		}
		res.Slot = domain.SlotBackup
		res.PrimaryErr = primaryErr
	}

	if !dec.Verified {
		v.log(ctx).Warn("envelope has no checksum, loaded unverified", "slot", string(res.Slot), "version", dec.SourceVersion)
	}

	// 3. Stage and apply
	skipped, err := v.apply(ctx, dec.Payload)
	if err != nil {
		return nil, err
	}

	res.Envelope = dec.Envelope
	res.Version = dec.SourceVersion
	res.Migrated = dec.Migrated
	res.Verified = dec.Verified
	res.Skipped = skipped
	return res, nil
}

// apply validates every staged value, then applies them in partition order.
// If an apply fails, every partition touched so far is put back to its
// state from before the apply phase.
func (v *Vault) apply(ctx context.Context, payload codec.Record) ([]string, error) {
	// 1. Stage
	var (
		parts   []Partition
		values  []codec.Value
		skipped []string
	)
	for _, p := range v.partitions {
		val, ok := payload[p.Name()]
		if !ok {
			skipped = append(skipped, p.Name())
			continue
		}
		parts = append(parts, p)
		values = append(values, val)
	}
	if len(skipped) > 0 {
		v.log(ctx).Warn("partitions missing from payload", "partitions", skipped)
	}

	// 2. Validate all
	for i, p := range parts {
		if val, ok := p.(Validator); ok {
			if err := val.Validate(values[i]); err != nil {
				return nil, domain.ErrPartitionApplyFailure.Wrapf(err, "validate %s", p.Name())
			}
		}
	}

	// 3. Snapshot current state for rollback
	prior := make([]codec.Value, len(parts))
	for i, p := range parts {
		cur, err := p.Snapshot(ctx)
		if err != nil {
			return nil, domain.ErrPartitionApplyFailure.Wrapf(err, "snapshot %s before apply", p.Name())
		}
		prior[i] = cur
	}

	// 4. Apply all
	for i, p := range parts {
		if err := p.Apply(ctx, values[i]); err != nil {
			v.rollback(ctx, parts[:i+1], prior[:i+1])
			return nil, domain.ErrPartitionApplyFailure.Wrapf(err, "apply %s", p.Name())
		}
	}
	return skipped, nil
}

// rollback re-applies prior values in reverse order. The failing partition
// is included since it may have been partly mutated.
func (v *Vault) rollback(ctx context.Context, parts []Partition, prior []codec.Value) {
	for i := len(parts) - 1; i >= 0; i-- {
		if err := parts[i].Apply(ctx, prior[i]); err != nil {
			v.log(ctx).Error("partition rollback failed", "partition", parts[i].Name(), "error", err)
		}
	}
}
