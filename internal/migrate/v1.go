package migrate

import (
	"github.com/yndnr/savevault/internal/core/domain"
	"github.com/yndnr/savevault/internal/integrity"
	"github.com/yndnr/savevault/pkg/codec"
)

// legacyFlagsField holds the per-partition flag collections that version 1
// stored as arrays of [key, value] pairs.
const legacyFlagsField = "flags"

// v1MetadataKeys maps version 1 metadata names to their current names.
var v1MetadataKeys = map[string]string{
	"playerName":  "display_name",
	"gameDay":     "day",
	"playerLevel": "level",
}

// v1ToV2 moves data/checksum to payload/digest. The payload is rebuilt in
// tagged form: flag pair arrays become maps and records carrying a "kind"
// field are wrapped. The new payload is stamped with murmur3-128.
func v1ToV2() Step {
	return Step{
		From:     1,
		Envelope: upgradeV1Envelope,
		Metadata: upgradeV1Metadata,
	}
}

func upgradeV1Envelope(doc *Document) error {
	data := doc.Raw(FieldData)
	if data == nil {
		return domain.ErrParseFailure.WithDetails("version 1 envelope has no data")
	}

	tree, err := codec.UnmarshalTree(data)
	if err != nil {
		return domain.ErrParseFailure.Wrapf(err, "version 1 data")
	}
	value, err := codec.DecodePlain(tree)
	if err != nil {
		return domain.ErrParseFailure.Wrapf(err, "version 1 data")
	}
	partitions, ok := value.(codec.Record)
	if !ok {
		return domain.ErrParseFailure.WithDetails("version 1 data is not an object")
	}
	for _, slice := range partitions {
		if rec, ok := slice.(codec.Record); ok {
			tagLegacyFlags(rec)
		}
	}

	payload, err := codec.Marshal(partitions)
	if err != nil {
		return err
	}
	doc.SetRaw(FieldPayload, payload)
	doc.Delete(FieldData)
	doc.Delete(FieldChecksum)

	meta := map[string]any{}
	if raw := doc.Raw(FieldMetadata); raw != nil {
		tree, err := codec.UnmarshalTree(raw)
		if err != nil {
			return domain.ErrParseFailure.Wrapf(err, "version 1 metadata")
		}
		if obj, ok := tree.(map[string]any); ok {
			meta = obj
		}
	}
	if err := upgradeV1Metadata(meta); err != nil {
		return err
	}
	names := partitions.Keys()
	list := make([]any, len(names))
	for i, n := range names {
		list[i] = n
	}
	meta["partitions"] = list
	if err := doc.Set(FieldMetadata, meta); err != nil {
		return err
	}

	return doc.Restamp(integrity.Murmur3)
}

func upgradeV1Metadata(meta map[string]any) error {
	for oldKey, newKey := range v1MetadataKeys {
		if v, ok := meta[oldKey]; ok {
			if _, taken := meta[newKey]; !taken {
				meta[newKey] = v
			}
			delete(meta, oldKey)
		}
	}
	return nil
}

// tagLegacyFlags replaces every pair array under rec.flags with a Map.
// Arrays whose elements are not all two-element arrays are left alone.
func tagLegacyFlags(rec codec.Record) {
	flags, ok := rec[legacyFlagsField].(codec.Record)
	if !ok {
		return
	}
	for name, v := range flags {
		list, ok := v.(codec.List)
		if !ok {
			continue
		}
		if m, ok := pairsToMap(list); ok {
			flags[name] = m
		}
	}
}

func pairsToMap(list codec.List) (*codec.Map, bool) {
	entries := make([]codec.Entry, 0, len(list))
	for _, item := range list {
		pair, ok := item.(codec.List)
		if !ok || len(pair) != 2 {
			return nil, false
		}
		entries = append(entries, codec.Entry{Key: pair[0], Value: pair[1]})
	}
	return codec.NewMap(entries...), true
}
