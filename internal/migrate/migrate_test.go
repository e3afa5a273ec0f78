package migrate

import (
	"encoding/json"
	"errors"
	"fmt"
	"testing"

	"github.com/oklog/ulid/v2"

	"github.com/yndnr/savevault/internal/core/domain"
	"github.com/yndnr/savevault/internal/integrity"
	"github.com/yndnr/savevault/pkg/codec"
)

const legacyData = `{"core":{"character":{"name":"Maya"},"world":{"day":12}},` +
	`"narrative":{"flags":{"story":[["metElena",true],["joinedClub",false]],"count":3,"odd":[1,2]}},` +
	`"social":{"npcs":[{"kind":"friend","name":"Elena"}]}}`

const legacyTimestamp = 1700000000000

func legacyEnvelope(t *testing.T, withChecksum bool) []byte {
	t.Helper()
	checksum := ""
	if withChecksum {
		sum, err := integrity.Sum(integrity.Additive32, []byte(legacyData))
		if err != nil {
			t.Fatalf("Sum() error = %v", err)
		}
		checksum = fmt.Sprintf(`"checksum":%q,`, sum)
	}
	return []byte(fmt.Sprintf(`{"version":1,"timestamp":%d,%s`+
		`"metadata":{"playerName":"Maya","gameDay":12,"playerLevel":4,"playtime":3600},"data":%s}`,
		legacyTimestamp, checksum, legacyData))
}

func mustParse(t *testing.T, text []byte) *Document {
	t.Helper()
	doc, err := Parse(text)
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	return doc
}

func TestMigrateV1(t *testing.T) {
	doc := mustParse(t, legacyEnvelope(t, true))

	verified, err := doc.Verify()
	if err != nil || !verified {
		t.Fatalf("Verify() = %v, %v; want verified", verified, err)
	}

	out, err := DefaultChain().Migrate(doc)
	if err != nil {
		t.Fatalf("Migrate() error = %v", err)
	}
	if out.Version != domain.CurrentVersion {
		t.Fatalf("Version = %d, want %d", out.Version, domain.CurrentVersion)
	}
	if ok, err := out.Verify(); err != nil || !ok {
		t.Fatalf("migrated Verify() = %v, %v", ok, err)
	}

	env, err := out.Envelope()
	if err != nil {
		t.Fatalf("Envelope() error = %v", err)
	}
	if env.DigestAlg != string(integrity.Murmur3) {
		t.Errorf("DigestAlg = %q", env.DigestAlg)
	}
	if env.Timestamp != legacyTimestamp {
		t.Errorf("Timestamp = %d", env.Timestamp)
	}
	want := domain.Metadata{DisplayName: "Maya", Day: 12, Level: 4, Playtime: 3600,
		Partitions: []string{"core", "narrative", "social"}}
	if fmt.Sprint(env.Metadata) != fmt.Sprint(want) {
		t.Errorf("Metadata = %+v, want %+v", env.Metadata, want)
	}

	payload, err := codec.Unmarshal(env.Payload)
	if err != nil {
		t.Fatalf("payload Unmarshal() error = %v", err)
	}

	story, ok := codec.Lookup(payload, "narrative.flags.story")
	if !ok || story.Kind() != codec.KindMap {
		t.Fatalf("story flags = %v, want a map", story)
	}
	wantStory := codec.NewMap(
		codec.Entry{Key: codec.String("metElena"), Value: codec.Bool(true)},
		codec.Entry{Key: codec.String("joinedClub"), Value: codec.Bool(false)},
	)
	if !codec.Equal(story, wantStory) {
		t.Errorf("story = %#v", story)
	}

	if odd, _ := codec.Lookup(payload, "narrative.flags.odd"); odd.Kind() != codec.KindList {
		t.Errorf("non-pair array should stay a list, got %v", odd.Kind())
	}

	npcs, _ := codec.Lookup(payload, "social.npcs")
	friend := npcs.(codec.List)[0].(codec.Record)
	if !codec.Equal(friend["kind"], codec.String("friend")) {
		t.Errorf("record kind field lost: %#v", friend)
	}
}

func TestMigrateIsPureAndDeterministic(t *testing.T) {
	doc := mustParse(t, legacyEnvelope(t, true))
	before := doc.FieldNames()

	a, err := DefaultChain().Migrate(doc)
	if err != nil {
		t.Fatalf("Migrate() error = %v", err)
	}
	b, err := DefaultChain().Migrate(doc)
	if err != nil {
		t.Fatalf("Migrate() error = %v", err)
	}

	if doc.Version != 1 || fmt.Sprint(doc.FieldNames()) != fmt.Sprint(before) {
		t.Error("Migrate should not modify its input")
	}

	idA, _ := a.String(FieldID)
	idB, _ := b.String(FieldID)
	if idA == "" || idA != idB {
		t.Errorf("ids %q and %q should be equal and non-empty", idA, idB)
	}
	parsed, err := ulid.Parse(idA)
	if err != nil {
		t.Fatalf("ulid.Parse() error = %v", err)
	}
	if parsed.Time() != legacyTimestamp {
		t.Errorf("id time = %d, want %d", parsed.Time(), legacyTimestamp)
	}
	if string(a.Raw(FieldPayload)) != string(b.Raw(FieldPayload)) {
		t.Error("payload bytes should be identical across runs")
	}
}

func TestV1WithoutChecksum(t *testing.T) {
	doc := mustParse(t, legacyEnvelope(t, false))
	verified, err := doc.Verify()
	if err != nil {
		t.Fatalf("Verify() error = %v", err)
	}
	if verified {
		t.Error("Verify() should report unverified for a missing checksum")
	}
}

func TestV1WrongChecksum(t *testing.T) {
	text := legacyEnvelope(t, true)
	doc := mustParse(t, text)
	doc.SetRaw(FieldChecksum, json.RawMessage(`"1234"`))

	if _, err := doc.Verify(); !errors.Is(err, domain.ErrDigestMismatch) {
		t.Errorf("Verify() error = %v, want DigestMismatch", err)
	}
}

func TestV2ToV3KeepsPayloadAndDigest(t *testing.T) {
	payload := `{"core":{"world":{"day":2}}}`
	sum, _ := integrity.Sum(integrity.Murmur3, []byte(payload))
	text := fmt.Sprintf(`{"version":2,"timestamp":5,"digest":%q,"metadata":{"day":2},"payload":%s}`, sum, payload)

	doc := mustParse(t, []byte(text))
	if ok, err := doc.Verify(); err != nil || !ok {
		t.Fatalf("Verify() = %v, %v", ok, err)
	}

	out, err := DefaultChain().Migrate(doc)
	if err != nil {
		t.Fatalf("Migrate() error = %v", err)
	}
	if string(out.Raw(FieldPayload)) != payload {
		t.Errorf("payload changed: %s", out.Raw(FieldPayload))
	}
	digest, _ := out.String(FieldDigest)
	if digest != sum {
		t.Errorf("digest = %q, want %q", digest, sum)
	}
	alg, _ := out.String(FieldDigestAlg)
	if alg != string(integrity.Murmur3) {
		t.Errorf("digest_alg = %q", alg)
	}
}

func TestCurrentVersionIsCopiedUnchanged(t *testing.T) {
	text := `{"version":3,"id":"x","timestamp":1,"digest":"d","digest_alg":"xxhash64","metadata":{},"payload":{}}`
	doc := mustParse(t, []byte(text))
	out, err := DefaultChain().Migrate(doc)
	if err != nil {
		t.Fatalf("Migrate() error = %v", err)
	}
	if out == doc {
		t.Error("Migrate should return a copy")
	}
	if fmt.Sprint(out.FieldNames()) != fmt.Sprint(doc.FieldNames()) {
		t.Error("fields changed")
	}
}

func TestVersionGate(t *testing.T) {
	chain := DefaultChain()

	tests := []struct {
		version int
		want    error
	}{
		{1, nil},
		{domain.CurrentVersion, nil},
		{domain.CurrentVersion + 1, domain.ErrUnsupportedVersion},
		{0, domain.ErrParseFailure},
	}

	for _, tt := range tests {
		t.Run(fmt.Sprint(tt.version), func(t *testing.T) {
			err := chain.Check(tt.version)
			if tt.want == nil {
				if err != nil {
					t.Errorf("Check() error = %v", err)
				}
				return
			}
			if !errors.Is(err, tt.want) {
				t.Errorf("Check() error = %v, want %v", err, tt.want)
			}
		})
	}

	doc := mustParse(t, []byte(`{"version":4,"payload":{}}`))
	if _, err := chain.Migrate(doc); !errors.Is(err, domain.ErrUnsupportedVersion) {
		t.Errorf("Migrate(v4) error = %v, want UnsupportedVersion", err)
	}
}

func TestMissingStep(t *testing.T) {
	chain := NewChain(v2ToV3())
	doc := mustParse(t, legacyEnvelope(t, true))
	if _, err := chain.Migrate(doc); !errors.Is(err, domain.ErrUnsupportedVersion) {
		t.Errorf("Migrate() error = %v, want UnsupportedVersion", err)
	}
}

func TestParseRejects(t *testing.T) {
	tests := []struct {
		name string
		text string
	}{
		{"not json", `{{`},
		{"array", `[1,2]`},
		{"null", `null`},
		{"missing version", `{"payload":{}}`},
		{"string version", `{"version":"3"}`},
		{"fractional version", `{"version":2.5}`},
		{"zero version", `{"version":0}`},
		{"negative version", `{"version":-1}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := Parse([]byte(tt.text)); !errors.Is(err, domain.ErrParseFailure) {
				t.Errorf("Parse() error = %v, want ParseFailure", err)
			}
		})
	}
}

func TestMigrateMetadata(t *testing.T) {
	chain := DefaultChain()

	meta, err := chain.MigrateMetadata(1, json.RawMessage(`{"playerName":"Maya","gameDay":3,"playerLevel":2,"playtime":90}`))
	if err != nil {
		t.Fatalf("MigrateMetadata(v1) error = %v", err)
	}
	if meta.DisplayName != "Maya" || meta.Day != 3 || meta.Level != 2 || meta.Playtime != 90 {
		t.Errorf("MigrateMetadata(v1) = %+v", meta)
	}

	meta, err = chain.MigrateMetadata(3, json.RawMessage(`{"display_name":"Ada","day":7,"level":1,"playtime":5}`))
	if err != nil || meta.DisplayName != "Ada" || meta.Day != 7 {
		t.Errorf("MigrateMetadata(v3) = %+v, %v", meta, err)
	}

	if _, err := chain.MigrateMetadata(9, nil); !errors.Is(err, domain.ErrUnsupportedVersion) {
		t.Errorf("MigrateMetadata(v9) error = %v", err)
	}
	if _, err := chain.MigrateMetadata(3, json.RawMessage(`[1]`)); !errors.Is(err, domain.ErrParseFailure) {
		t.Errorf("MigrateMetadata(array) error = %v", err)
	}
}

func TestEnvelopeRequiresCurrentVersion(t *testing.T) {
	doc := mustParse(t, legacyEnvelope(t, true))
	if _, err := doc.Envelope(); !errors.Is(err, domain.ErrUnsupportedVersion) {
		t.Errorf("Envelope() error = %v", err)
	}
}
