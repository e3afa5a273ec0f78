package vault

import (
	"bytes"
	"context"
	"errors"
	"testing"

	"github.com/yndnr/savevault/internal/core/domain"
	"github.com/yndnr/savevault/internal/partition"
	"github.com/yndnr/savevault/internal/storage"
	"github.com/yndnr/savevault/internal/telemetry/logger"
	"github.com/yndnr/savevault/pkg/codec"
)

func TestExportImport_Identity(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.setPath(t, f.core, "world.day", codec.Int(21))
	f.setPath(t, f.narrative, "flags", codec.NewMap(codec.Entry{Key: codec.String("met"), Value: codec.Bool(true)}))
	wantCore, wantNarrative := f.core.Value(), f.narrative.Value()

	blob, err := f.vault.ExportEnvelope(ctx)
	if err != nil {
		t.Fatalf("ExportEnvelope() error = %v", err)
	}
	if !bytes.Equal(blob, f.primary(t)) {
		t.Error("exported blob should be the new primary")
	}

	f.setPath(t, f.core, "world.day", codec.Int(1))
	f.setPath(t, f.narrative, "flags", codec.NewMap())
	f.save(t)

	res, err := f.vault.ImportEnvelope(ctx, blob)
	if err != nil {
		t.Fatalf("ImportEnvelope() error = %v", err)
	}
	if res.Slot != domain.SlotPrimary {
		t.Errorf("Slot = %s", res.Slot)
	}
	if !codec.Equal(f.core.Value(), wantCore) || !codec.Equal(f.narrative.Value(), wantNarrative) {
		t.Error("import did not reproduce the exported state")
	}

	f.setPath(t, f.core, "world.day", codec.Int(2))
	if _, err := f.vault.Load(ctx); err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if !codec.Equal(f.core.Value(), wantCore) {
		t.Error("load after import did not reproduce the exported state")
	}
}

func TestImport_IntoFreshStore(t *testing.T) {
	src := newFixture(t)
	src.setPath(t, src.core, "player.level", codec.Int(8))
	blob, err := src.vault.ExportEnvelope(context.Background())
	if err != nil {
		t.Fatalf("ExportEnvelope() error = %v", err)
	}

	dst := newFixture(t)
	if _, err := dst.vault.ImportEnvelope(context.Background(), blob); err != nil {
		t.Fatalf("ImportEnvelope() error = %v", err)
	}
	if got := intAt(t, dst.core, "player.level"); got != 8 {
		t.Errorf("level = %d, want 8", got)
	}
	if dst.backup(t) != nil {
		t.Error("import into an empty store should leave backup empty")
	}
}

func TestImport_InvalidBlobLeavesSlots(t *testing.T) {
	f := newFixture(t)
	f.save(t)
	f.save(t)
	primary, backup := f.primary(t), f.backup(t)

	tests := []struct {
		name string
		blob []byte
		want error
	}{
		{"garbage", []byte("garbage"), domain.ErrDecompressionFailure},
		{"bad json", []byte(`{"version":3,`), domain.ErrParseFailure},
		{"future", v2Blob(t, domain.CurrentVersion+1, 1), domain.ErrUnsupportedVersion},
		{"bad digest", bytes.Replace(v2Blob(t, 2, 4), []byte(`"day":4}}`), []byte(`"day":5}}`), 1), domain.ErrDigestMismatch},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.vault.ImportEnvelope(context.Background(), tt.blob)
			if !errors.Is(err, tt.want) {
				t.Errorf("ImportEnvelope() error = %v, want %v", err, tt.want)
			}
			if !bytes.Equal(f.primary(t), primary) || !bytes.Equal(f.backup(t), backup) {
				t.Error("slots changed after a rejected import")
			}
		})
	}
}

func TestImport_ApplyFailureRestoresSlots(t *testing.T) {
	src := newFixture(t)
	src.setPath(t, src.core, "world.day", codec.Int(13))
	blob, err := src.vault.ExportEnvelope(context.Background())
	if err != nil {
		t.Fatal(err)
	}

	store := newFaultStore()
	core := partition.NewDocument("core", codec.Record{"world": codec.Record{"day": codec.Int(1)}},
		partition.WithValidator(func(v codec.Value) error {
			if d, _ := codec.Lookup(v, "world.day"); codec.Equal(d, codec.Int(13)) {
				return errors.New("unlucky day")
			}
			return nil
		}))
	v, err := New(store, []Partition{core}, WithLogger(logger.Nop()))
	if err != nil {
		t.Fatal(err)
	}
	defer v.Close()
	if _, err := v.Save(context.Background()); err != nil {
		t.Fatal(err)
	}
	primary := store.raw(t, v.key(domain.SlotPrimary))

	_, err = v.ImportEnvelope(context.Background(), blob)
	if !errors.Is(err, domain.ErrPartitionApplyFailure) {
		t.Fatalf("ImportEnvelope() error = %v, want PartitionApplyFailure", err)
	}
	if !bytes.Equal(store.raw(t, v.key(domain.SlotPrimary)), primary) {
		t.Error("primary should be restored")
	}
	if store.raw(t, v.key(domain.SlotBackup)) != nil {
		t.Error("backup should be restored to empty")
	}
	if got := intAt(t, core, "world.day"); got != 1 {
		t.Errorf("day = %d, want 1", got)
	}
}

func TestImport_LegacyBareJSON(t *testing.T) {
	f := newFixture(t)
	res, err := f.vault.ImportEnvelope(context.Background(), legacyBlob(t))
	if err != nil {
		t.Fatalf("ImportEnvelope() error = %v", err)
	}
	if res.Version != 1 || !res.Migrated {
		t.Errorf("LoadResult = %+v", res)
	}
	if got := intAt(t, f.core, "world.day"); got != 7 {
		t.Errorf("day = %d, want 7", got)
	}
}

func TestClear(t *testing.T) {
	f := newFixture(t, WithLegacyKeys("gameSave", "gameSave_backup"))
	ctx := context.Background()
	for _, k := range []string{"gameSave", "gameSave_backup", "unrelated"} {
		if err := f.store.MemoryStore.Set(ctx, k, []byte("x")); err != nil {
			t.Fatal(err)
		}
	}
	f.save(t)
	f.save(t)
	f.setPath(t, f.core, "world.day", codec.Int(77))

	if err := f.vault.Clear(ctx); err != nil {
		t.Fatalf("Clear() error = %v", err)
	}
	if ok, _ := f.vault.HasSave(ctx); ok {
		t.Error("HasSave() should be false after Clear")
	}
	if f.store.Keys() != 1 {
		t.Errorf("store keys = %d, want only the unrelated key", f.store.Keys())
	}
	if got := intAt(t, f.core, "world.day"); got != 77 {
		t.Error("Clear must not touch partitions")
	}
	if err := f.vault.Clear(ctx); err != nil {
		t.Errorf("second Clear() error = %v", err)
	}
}

func TestMetadata_SkipsDigestCheck(t *testing.T) {
	f := newFixture(t, WithTransport(rawTransport(t)))
	f.setPath(t, f.core, "world.day", codec.Int(4))
	f.save(t)

	blob := f.primary(t)
	at := bytes.LastIndex(blob, []byte(`"day":4`))
	blob[at+len(`"day":`)] = '6'
	f.putPrimary(t, blob)

	meta, err := f.vault.Metadata(context.Background())
	if err != nil {
		t.Fatalf("Metadata() error = %v", err)
	}
	if meta.Day != 4 || meta.DisplayName != "Maya" || len(meta.Partitions) != 3 {
		t.Errorf("Metadata() = %+v", meta)
	}
	if ok, err := f.vault.HasSave(context.Background()); !ok || err != nil {
		t.Errorf("HasSave() = %v, %v", ok, err)
	}
}

func TestInspect(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	if _, err := f.vault.Inspect(ctx, domain.Slot("middle")); !errors.Is(err, domain.ErrInvalidConfig) {
		t.Errorf("Inspect(bad slot) error = %v", err)
	}
	if _, err := f.vault.Inspect(ctx, domain.SlotBackup); !errors.Is(err, domain.ErrNoSave) {
		t.Errorf("Inspect(empty) error = %v", err)
	}

	f.save(t)
	f.setPath(t, f.core, "world.day", codec.Int(3))
	info, err := f.vault.Inspect(ctx, domain.SlotPrimary)
	if err != nil {
		t.Fatalf("Inspect() error = %v", err)
	}
	if !info.Verified || info.Migrated || info.BlobBytes == 0 || info.Sealed {
		t.Errorf("Inspection = %+v", info)
	}
	if got := intAt(t, f.core, "world.day"); got != 3 {
		t.Error("Inspect must not apply")
	}
}

func TestClear_BackendFailure(t *testing.T) {
	store := &removeFailStore{MemoryStore: storage.NewMemoryStore()}
	v, err := New(store, []Partition{partition.NewDocument("core", nil)}, WithLogger(logger.Nop()))
	if err != nil {
		t.Fatal(err)
	}
	defer v.Close()

	if err := v.Clear(context.Background()); !errors.Is(err, domain.ErrBackendUnavailable) {
		t.Errorf("Clear() error = %v, want BackendUnavailable", err)
	}
}

type removeFailStore struct {
	*storage.MemoryStore
}

func (s *removeFailStore) Remove(ctx context.Context, key string) error {
	return errors.New("permission denied")
}
