package vault

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/yndnr/savevault/internal/core/domain"
	"github.com/yndnr/savevault/internal/integrity"
	"github.com/yndnr/savevault/internal/partition"
	"github.com/yndnr/savevault/internal/storage"
	"github.com/yndnr/savevault/internal/telemetry/logger"
	"github.com/yndnr/savevault/internal/transport"
	"github.com/yndnr/savevault/pkg/codec"
)

func TestLoad_RestoresSavedState(t *testing.T) {
	f := newFixture(t)
	f.setPath(t, f.core, "world.day", codec.Int(5))
	f.setPath(t, f.core, "player.level", codec.Int(3))
	f.save(t)

	f.setPath(t, f.core, "world.day", codec.Int(40))
	f.setPath(t, f.core, "player.level", codec.Int(12))
	f.setPath(t, f.narrative, "chapter", codec.Int(9))

	res, err := f.vault.Load(context.Background())
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if res.Slot != domain.SlotPrimary || res.Fallback() || res.Migrated || !res.Verified {
		t.Errorf("LoadResult = %+v", res)
	}
	if got := intAt(t, f.core, "world.day"); got != 5 {
		t.Errorf("day = %d, want 5", got)
	}
	if got := intAt(t, f.core, "player.level"); got != 3 {
		t.Errorf("level = %d, want 3", got)
	}
	if got := intAt(t, f.narrative, "chapter"); got != 1 {
		t.Errorf("chapter = %d, want 1", got)
	}
}

func TestLoad_Fidelity(t *testing.T) {
	f := newFixture(t)
	flags := codec.NewMap(
		codec.Entry{Key: codec.String("a"), Value: codec.Int(1)},
		codec.Entry{Key: codec.String("b"), Value: codec.Int(2)},
	)
	tricky := codec.Record{
		"ints_and_floats": codec.List{codec.Int(2), codec.Float(2), codec.Float(0.1)},
		"empty_map":       codec.NewMap(),
		"empty_record":    codec.Record{},
		"kind":            codec.String("looks like a tag"),
		"numeric_keys":    codec.NewMap(codec.Entry{Key: codec.Int(7), Value: codec.Null{}}),
	}
	if err := f.narrative.Set(codec.Record{"flags": flags, "tricky": tricky}); err != nil {
		t.Fatalf("Set() error = %v", err)
	}
	saved := f.narrative.Value()
	f.save(t)

	if err := f.narrative.Set(codec.Record{}); err != nil {
		t.Fatalf("Set() error = %v", err)
	}
	if _, err := f.vault.Load(context.Background()); err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	got := f.narrative.Value()
	if !codec.Equal(got, saved) {
		t.Errorf("narrative after load = %#v, want %#v", got, saved)
	}
	m, ok := got.(codec.Record)["flags"].(*codec.Map)
	if !ok {
		t.Fatalf("flags is %T, want *codec.Map", got.(codec.Record)["flags"])
	}
	if v, _ := m.Get(codec.String("b")); !codec.Equal(v, codec.Int(2)) {
		t.Errorf("flags[b] = %v, want 2", v)
	}
}

func TestLoad_NoSave(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	if _, err := f.vault.Load(ctx); !errors.Is(err, domain.ErrNoSave) {
		t.Errorf("Load() error = %v, want NoSave", err)
	}
	if ok, err := f.vault.HasSave(ctx); err != nil || ok {
		t.Errorf("HasSave() = %v, %v", ok, err)
	}
	if _, err := f.vault.Metadata(ctx); !errors.Is(err, domain.ErrNoSave) {
		t.Errorf("Metadata() error = %v, want NoSave", err)
	}
}

func TestLoad_CorruptPrimaryFallsBack(t *testing.T) {
	rec := &recorder{}
	f := newFixture(t, WithTransport(rawTransport(t)), WithRecorder(rec))

	f.setPath(t, f.core, "world.day", codec.Int(1))
	f.save(t)
	f.setPath(t, f.core, "world.day", codec.Int(2))
	f.save(t)
	backupBefore := f.backup(t)

	// Flip one payload character; the envelope stays valid JSON. The
	// payload comes after the metadata, which carries the same day.
	corrupt := f.primary(t)
	at := bytes.LastIndex(corrupt, []byte(`"day":2`))
	if at < 0 {
		t.Fatal("test setup: payload marker not found")
	}
	corrupt[at+len(`"day":`)] = '3'
	f.putPrimary(t, corrupt)
	f.setPath(t, f.core, "world.day", codec.Int(99))

	res, err := f.vault.Load(context.Background())
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if res.Slot != domain.SlotBackup || !errors.Is(res.PrimaryErr, domain.ErrDigestMismatch) {
		t.Errorf("Slot = %s, PrimaryErr = %v", res.Slot, res.PrimaryErr)
	}
	if got := intAt(t, f.core, "world.day"); got != 1 {
		t.Errorf("day = %d, want backup value 1", got)
	}
	if !bytes.Equal(f.backup(t), backupBefore) || !bytes.Equal(f.primary(t), corrupt) {
		t.Error("load must not modify either slot")
	}
	if s := f.vault.Stats(); s.FallbackLoads != 1 {
		t.Errorf("FallbackLoads = %d, want 1", s.FallbackLoads)
	}
	if rec.fallbacks != 1 || rec.loads[0] != "ok@backup" {
		t.Errorf("recorder = %d %v", rec.fallbacks, rec.loads)
	}
}

func TestLoad_EveryPayloadByteIsCovered(t *testing.T) {
	f := newFixture(t, WithTransport(rawTransport(t)))
	f.save(t)
	good := f.primary(t)

	res, err := f.vault.Inspect(context.Background(), domain.SlotPrimary)
	if err != nil {
		t.Fatalf("Inspect() error = %v", err)
	}
	start := bytes.Index(good, res.Envelope.Payload)
	if start < 0 {
		t.Fatal("payload not found in blob")
	}

	for i := start; i < start+len(res.Envelope.Payload); i++ {
		blob := append([]byte(nil), good...)
		blob[i] ^= 0x01
		f.putPrimary(t, blob)

		_, err := f.vault.Load(context.Background())
		if err == nil {
			t.Fatalf("flip at payload byte %d was not detected", i-start)
		}
		if !domain.IsRecoverable(err) {
			t.Fatalf("flip at %d: error %v is not an envelope error", i-start, err)
		}
	}
}

func TestLoad_BothSlotsCorrupt(t *testing.T) {
	f := newFixture(t)
	f.save(t)
	f.save(t)

	f.putPrimary(t, []byte("not a blob"))
	if err := f.store.MemoryStore.Set(context.Background(), f.vault.key(domain.SlotBackup), []byte(`{"version":1`)); err != nil {
		t.Fatalf("Set() error = %v", err)
	}

	_, err := f.vault.Load(context.Background())
	if !errors.Is(err, domain.ErrParseFailure) {
		t.Errorf("Load() error = %v, want backup ParseFailure", err)
	}
	if Kind(err) != "ParseFailure" {
		t.Errorf("Kind() = %q", Kind(err))
	}
}

func TestLoad_CorruptPrimaryNoBackup(t *testing.T) {
	f := newFixture(t)
	f.save(t)
	f.putPrimary(t, []byte("SVLT\x01garbage"))

	_, err := f.vault.Load(context.Background())
	if !errors.Is(err, domain.ErrDecompressionFailure) {
		t.Errorf("Load() error = %v, want DecompressionFailure", err)
	}
}

func TestLoad_BackendFailureDoesNotFallBack(t *testing.T) {
	rec := &recorder{}
	f := newFixture(t, WithRecorder(rec))
	f.save(t)
	f.save(t)
	f.store.failGetOn(f.vault.key(domain.SlotPrimary), errors.New("io timeout"))

	_, err := f.vault.Load(context.Background())
	if !errors.Is(err, domain.ErrBackendUnavailable) {
		t.Errorf("Load() error = %v, want BackendUnavailable", err)
	}
	if rec.fallbacks != 0 {
		t.Error("backend errors must not fall back")
	}
}

func v2Blob(t *testing.T, version int, day int64) []byte {
	t.Helper()
	payload, err := codec.Marshal(codec.Record{
		"core":      codec.Record{"world": codec.Record{"day": codec.Int(day)}},
		"narrative": codec.Record{"flags": codec.NewMap(codec.Entry{Key: codec.String("x"), Value: codec.Bool(true)})},
		"social":    codec.Record{},
	})
	if err != nil {
		t.Fatalf("Marshal() error = %v", err)
	}
	sum, err := integrity.Sum(integrity.Murmur3, payload)
	if err != nil {
		t.Fatalf("Sum() error = %v", err)
	}
	return []byte(fmt.Sprintf(`{"version":%d,"timestamp":1700000000000,"digest":%q,`+
		`"metadata":{"display_name":"Old","day":%d},"payload":%s}`, version, sum, day, payload))
}

func TestLoad_PreviousVersionMigrates(t *testing.T) {
	f := newFixture(t)
	f.putPrimary(t, v2Blob(t, domain.CurrentVersion-1, 9))

	res, err := f.vault.Load(context.Background())
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if !res.Migrated || res.Version != domain.CurrentVersion-1 || res.Envelope.Version != domain.CurrentVersion {
		t.Errorf("LoadResult = %+v", res)
	}
	if res.Envelope.ID == "" || res.Envelope.DigestAlg != string(integrity.Murmur3) {
		t.Errorf("migrated envelope = %+v", res.Envelope)
	}
	if got := intAt(t, f.core, "world.day"); got != 9 {
		t.Errorf("day = %d, want 9", got)
	}
}

func TestLoad_FutureVersionRejected(t *testing.T) {
	f := newFixture(t)
	f.putPrimary(t, v2Blob(t, domain.CurrentVersion+1, 9))

	if _, err := f.vault.Load(context.Background()); !errors.Is(err, domain.ErrUnsupportedVersion) {
		t.Errorf("Load() error = %v, want UnsupportedVersion", err)
	}
	if got := intAt(t, f.core, "world.day"); got != 1 {
		t.Errorf("day = %d, partitions must be untouched", got)
	}
}

const legacyData = `{"core":{"character":{"name":"Ana"},"world":{"day":7,"playtime":300},"player":{"level":2}},` +
	`"narrative":{"chapter":2,"flags":{"story":[["metElena",true],["joinedClub",false]]}},` +
	`"social":{"npcs":[{"kind":"rival","name":"Jo"}]}}`

func legacyBlob(t *testing.T) []byte {
	t.Helper()
	sum, err := integrity.Sum(integrity.Additive32, []byte(legacyData))
	if err != nil {
		t.Fatalf("Sum() error = %v", err)
	}
	return []byte(fmt.Sprintf(`{"version":1,"timestamp":1700000000000,"checksum":%q,`+
		`"metadata":{"playerName":"Ana","gameDay":7,"playerLevel":2,"playtime":300},"data":%s}`, sum, legacyData))
}

func TestLoad_TruncatedPrimaryFallsBack(t *testing.T) {
	f := newFixture(t)

	f.setPath(t, f.core, "world.day", codec.Int(1))
	f.save(t)
	f.setPath(t, f.core, "world.day", codec.Int(2))
	f.save(t)
	f.putPrimary(t, []byte{})

	ok, err := f.vault.HasSave(context.Background())
	if err != nil || !ok {
		t.Errorf("HasSave() = %v, %v, want true", ok, err)
	}

	res, err := f.vault.Load(context.Background())
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if res.Slot != domain.SlotBackup || !errors.Is(res.PrimaryErr, domain.ErrDecompressionFailure) {
		t.Errorf("Slot = %s, PrimaryErr = %v", res.Slot, res.PrimaryErr)
	}
	if got := intAt(t, f.core, "world.day"); got != 1 {
		t.Errorf("day = %d, want backup value 1", got)
	}
}

func TestLoad_LegacyEnvelope(t *testing.T) {
	f := newFixture(t)
	f.putPrimary(t, legacyBlob(t))

	meta, err := f.vault.Metadata(context.Background())
	if err != nil {
		t.Fatalf("Metadata() error = %v", err)
	}
	if meta.DisplayName != "Ana" || meta.Day != 7 || meta.Level != 2 || meta.Playtime != 300 {
		t.Errorf("Metadata() = %+v", meta)
	}

	res, err := f.vault.Load(context.Background())
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if res.Version != 1 || !res.Migrated || !res.Verified {
		t.Errorf("LoadResult = %+v", res)
	}

	story, ok := f.narrative.Get("flags.story")
	if !ok {
		t.Fatal("flags.story missing")
	}
	m, ok := story.(*codec.Map)
	if !ok {
		t.Fatalf("flags.story is %T, want *codec.Map", story)
	}
	entries := m.Entries()
	if len(entries) != 2 || !codec.Equal(entries[0].Key, codec.String("metElena")) || !codec.Equal(entries[0].Value, codec.Bool(true)) {
		t.Errorf("flags.story entries = %v", entries)
	}
	if npc, _ := f.social.Get("npcs"); !codec.Equal(npc, codec.List{codec.Record{"kind": codec.String("rival"), "name": codec.String("Jo")}}) {
		t.Errorf("npcs = %#v", npc)
	}

	// Saving a migrated state writes a current envelope that loads as is.
	f.save(t)
	res, err = f.vault.Load(context.Background())
	if err != nil || res.Migrated {
		t.Errorf("reload = %+v, %v", res, err)
	}
}

func TestLoad_LegacyCompressedEnvelope(t *testing.T) {
	f := newFixture(t)
	blob, err := transport.PackLegacyLZ(legacyBlob(t))
	if err != nil {
		t.Fatalf("PackLegacyLZ() error = %v", err)
	}
	f.putPrimary(t, blob)

	res, err := f.vault.Load(context.Background())
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if res.Slot != domain.SlotPrimary || res.Version != 1 || !res.Migrated || !res.Verified {
		t.Errorf("LoadResult = %+v", res)
	}
	if npc, _ := f.social.Get("npcs"); !codec.Equal(npc, codec.List{codec.Record{"kind": codec.String("rival"), "name": codec.String("Jo")}}) {
		t.Errorf("npcs = %#v", npc)
	}

	info, err := f.vault.Inspect(context.Background(), domain.SlotPrimary)
	if err != nil {
		t.Fatalf("Inspect() error = %v", err)
	}
	if info.Compression != transport.LegacyLZ || info.Sealed {
		t.Errorf("Inspect() compression = %s, sealed = %v", info.Compression, info.Sealed)
	}
}

func TestLoad_LegacyWrongChecksum(t *testing.T) {
	f := newFixture(t)
	blob := bytes.Replace(legacyBlob(t), []byte(`"day":7`), []byte(`"day":8`), 1)
	f.putPrimary(t, blob)

	if _, err := f.vault.Load(context.Background()); !errors.Is(err, domain.ErrDigestMismatch) {
		t.Errorf("Load() error = %v, want DigestMismatch", err)
	}
}

func TestLoad_ApplyFailureRollsBack(t *testing.T) {
	core := partition.NewDocument("core", codec.Record{"day": codec.Int(1)})
	applied := 0
	broken := PartitionFunc{
		ID:         "broken",
		SnapshotFn: func(ctx context.Context) (codec.Value, error) { return codec.Int(0), nil },
		ApplyFn: func(ctx context.Context, v codec.Value) error {
			applied++
			return errors.New("rejected")
		},
	}
	v, err := New(storage.NewMemoryStore(), []Partition{core, broken}, WithLogger(logger.Nop()))
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	defer v.Close()

	if _, err := v.Save(context.Background()); err != nil {
		t.Fatalf("Save() error = %v", err)
	}
	if err := core.SetPath("day", codec.Int(42)); err != nil {
		t.Fatal(err)
	}

	_, err = v.Load(context.Background())
	if !errors.Is(err, domain.ErrPartitionApplyFailure) {
		t.Fatalf("Load() error = %v, want PartitionApplyFailure", err)
	}
	if got := intAt(t, core, "day"); got != 42 {
		t.Errorf("core day = %d, want rolled back to 42", got)
	}
	if applied != 2 {
		t.Errorf("broken apply calls = %d, want apply and rollback", applied)
	}
}

func TestLoad_ValidationRunsBeforeAnyApply(t *testing.T) {
	core := partition.NewDocument("core", codec.Record{"day": codec.Int(1)})
	picky := PartitionFunc{
		ID:         "picky",
		SnapshotFn: func(ctx context.Context) (codec.Value, error) { return codec.String("ok"), nil },
		ApplyFn: func(ctx context.Context, v codec.Value) error {
			t.Error("Apply must not run when validation fails")
			return nil
		},
		ValidateFn: func(v codec.Value) error { return errors.New("never valid") },
	}
	v, err := New(storage.NewMemoryStore(), []Partition{core, picky}, WithLogger(logger.Nop()))
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	defer v.Close()

	if _, err := v.Save(context.Background()); err != nil {
		t.Fatalf("Save() error = %v", err)
	}
	if err := core.SetPath("day", codec.Int(5)); err != nil {
		t.Fatal(err)
	}
	rev := core.Revision()

	if _, err := v.Load(context.Background()); !errors.Is(err, domain.ErrPartitionApplyFailure) {
		t.Fatalf("Load() error = %v, want PartitionApplyFailure", err)
	}
	if core.Revision() != rev || intAt(t, core, "day") != 5 {
		t.Error("core must not be touched when another partition fails validation")
	}
}

func TestLoad_MissingPartitionIsSkipped(t *testing.T) {
	store := storage.NewMemoryStore()
	core := partition.NewDocument("core", codec.Record{"day": codec.Int(3)})

	older, err := New(store, []Partition{core}, WithLogger(logger.Nop()))
	if err != nil {
		t.Fatal(err)
	}
	defer older.Close()
	if _, err := older.Save(context.Background()); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	extra := partition.NewDocument("extra", codec.Record{"x": codec.Int(1)})
	newer, err := New(store, []Partition{core, extra}, WithLogger(logger.Nop()))
	if err != nil {
		t.Fatal(err)
	}
	defer newer.Close()

	res, err := newer.Load(context.Background())
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if len(res.Skipped) != 1 || res.Skipped[0] != "extra" {
		t.Errorf("Skipped = %v", res.Skipped)
	}
	if got := intAt(t, extra, "x"); got != 1 {
		t.Errorf("extra.x = %d, want untouched 1", got)
	}
}
