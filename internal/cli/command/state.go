package command

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/yndnr/savevault/pkg/codec"
)

// readState reads a state file: one JSON object keyed by partition name.
// Tagged maps are recognised unless plain is set, in which case every
// object is a record.
func readState(path string, plain bool) (codec.Record, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var v codec.Value
	if plain {
		tree, err := codec.UnmarshalTree(data)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", path, err)
		}
		v, err = codec.DecodePlain(tree)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", path, err)
		}
	} else {
		v, err = codec.Unmarshal(data)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", path, err)
		}
	}

	rec, ok := v.(codec.Record)
	if !ok {
		return nil, fmt.Errorf("%s: state must be an object keyed by partition, got %s", path, v.Kind())
	}
	return rec, nil
}

// marshalState encodes state as indented JSON in the tagged form.
func marshalState(state codec.Value) ([]byte, error) {
	compact, err := codec.Marshal(state)
	if err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	if err := json.Indent(&buf, compact, "", "  "); err != nil {
		return nil, err
	}
	buf.WriteByte('\n')
	return buf.Bytes(), nil
}

// applyState replaces the documents named in state. Names that are not
// configured partitions are rejected before anything changes.
func (rt *runtime) applyState(state codec.Record) error {
	var unknown []string
	for name := range state {
		if _, ok := rt.docs[name]; !ok {
			unknown = append(unknown, name)
		}
	}
	if len(unknown) > 0 {
		sort.Strings(unknown)
		return fmt.Errorf("state names unknown partitions: %s", strings.Join(unknown, ", "))
	}

	for name, v := range state {
		if err := rt.docs[name].Set(v); err != nil {
			return fmt.Errorf("partition %s: %w", name, err)
		}
	}
	return nil
}

// state returns the current value of every document.
func (rt *runtime) state() codec.Record {
	rec := make(codec.Record, len(rt.docs))
	for name, doc := range rt.docs {
		rec[name] = doc.Value()
	}
	return rec
}
