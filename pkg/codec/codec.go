package codec

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"
	"unicode/utf8"
)

// Reserved tag vocabulary of the transport form.
const (
	KindKey    = "kind"
	EntriesKey = "entries"
	FieldsKey  = "fields"
	ValueKey   = "value"

	TagMap    = "map"
	TagRecord = "record"
	TagFloat  = "float"
)

// Non-finite float spellings.
const (
	nanText    = "NaN"
	posInfText = "+Inf"
	negInfText = "-Inf"
)

// ErrMalformed is wrapped by every Decode and Unmarshal failure.
var ErrMalformed = errors.New("codec: malformed tree")

// ErrInvalidUTF8 is returned by Marshal for a String or Record key that is
// not valid UTF-8. JSON text cannot carry such bytes unchanged.
var ErrInvalidUTF8 = errors.New("codec: invalid UTF-8")

// Encode converts v into a JSON-ready tree made of nil, bool, json.Number,
// string, []any and map[string]any. It never fails.
//
//   - Int encodes as an integer literal; Float always carries a fraction or
//     exponent so the two stay distinguishable.
//   - NaN and infinities encode as {"kind":"float","value":"NaN"}.
//   - Map encodes as {"kind":"map","entries":[[k,v],...]} in insertion order.
//   - A Record that has its own "kind" field is wrapped as
//     {"kind":"record","fields":{...}}.
func Encode(v Value) any {
	switch val := orNull(v).(type) {
	case Null:
		return nil
	case Bool:
		return bool(val)
	case Int:
		return json.Number(strconv.FormatInt(int64(val), 10))
	case Float:
		return encodeFloat(float64(val))
	case String:
		return string(val)
	case List:
		out := make([]any, len(val))
		for i, elem := range val {
			out[i] = Encode(elem)
		}
		return out
	case Record:
		fields := make(map[string]any, len(val))
		for k, elem := range val {
			fields[k] = Encode(elem)
		}
		if _, reserved := val[KindKey]; reserved {
			return map[string]any{KindKey: TagRecord, FieldsKey: fields}
		}
		return fields
	case *Map:
		entries := make([]any, 0, val.Len())
		for _, e := range val.Entries() {
			entries = append(entries, []any{Encode(e.Key), Encode(e.Value)})
		}
		return map[string]any{KindKey: TagMap, EntriesKey: entries}
	default:
		return nil
	}
}

func encodeFloat(f float64) any {
	switch {
	case math.IsNaN(f):
		return map[string]any{KindKey: TagFloat, ValueKey: nanText}
	case math.IsInf(f, 1):
		return map[string]any{KindKey: TagFloat, ValueKey: posInfText}
	case math.IsInf(f, -1):
		return map[string]any{KindKey: TagFloat, ValueKey: negInfText}
	}
	s := strconv.FormatFloat(f, 'g', -1, 64)
	if !strings.ContainsAny(s, ".eE") {
		s += ".0"
	}
	return json.Number(s)
}

// Decode converts a JSON tree back into a Value. The tree is expected to
// come from a decoder with UseNumber enabled; plain float64 leaves are
// accepted and decode as Float.
func Decode(tree any) (Value, error) {
	return decode(tree, "$")
}

func decode(tree any, path string) (Value, error) {
	switch node := tree.(type) {
	case nil:
		return Null{}, nil
	case bool:
		return Bool(node), nil
	case json.Number:
		return decodeNumber(node, path)
	case float64:
		return Float(node), nil
	case string:
		return String(node), nil
	case []any:
		list := make(List, len(node))
		for i, elem := range node {
			v, err := decode(elem, fmt.Sprintf("%s[%d]", path, i))
			if err != nil {
				return nil, err
			}
			list[i] = v
		}
		return list, nil
	case map[string]any:
		if tag, tagged := node[KindKey]; tagged {
			return decodeTagged(node, tag, path)
		}
		return decodeFields(node, path)
	default:
		return nil, malformed(path, "unexpected %T", tree)
	}
}

func decodeNumber(n json.Number, path string) (Value, error) {
	s := string(n)
	if !strings.ContainsAny(s, ".eE") {
		if i, err := strconv.ParseInt(s, 10, 64); err == nil {
			return Int(i), nil
		}
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return nil, malformed(path, "bad number %q", s)
	}
	return Float(f), nil
}

func decodeTagged(node map[string]any, tag any, path string) (Value, error) {
	name, ok := tag.(string)
	if !ok {
		return nil, malformed(path, "kind tag must be a string, got %T", tag)
	}

	switch name {
	case TagMap:
		raw, ok := node[EntriesKey].([]any)
		if !ok || len(node) != 2 {
			return nil, malformed(path, "map node needs exactly kind and entries")
		}
		m := &Map{entries: make([]Entry, 0, len(raw))}
		for i, item := range raw {
			pair, ok := item.([]any)
			if !ok || len(pair) != 2 {
				return nil, malformed(path, "map entry %d is not a [key, value] pair", i)
			}
			ep := fmt.Sprintf("%s.entries[%d]", path, i)
			k, err := decode(pair[0], ep+"[0]")
			if err != nil {
				return nil, err
			}
			v, err := decode(pair[1], ep+"[1]")
			if err != nil {
				return nil, err
			}
			m.Set(k, v)
		}
		return m, nil

	case TagRecord:
		fields, ok := node[FieldsKey].(map[string]any)
		if !ok || len(node) != 2 {
			return nil, malformed(path, "record node needs exactly kind and fields")
		}
		return decodeFields(fields, path+".fields")

	case TagFloat:
		text, ok := node[ValueKey].(string)
		if !ok || len(node) != 2 {
			return nil, malformed(path, "float node needs exactly kind and value")
		}
		switch text {
		case nanText:
			return Float(math.NaN()), nil
		case posInfText:
			return Float(math.Inf(1)), nil
		case negInfText:
			return Float(math.Inf(-1)), nil
		default:
			return nil, malformed(path, "unknown float spelling %q", text)
		}

	default:
		return nil, malformed(path, "unknown kind tag %q", name)
	}
}

func decodeFields(node map[string]any, path string) (Value, error) {
	rec := make(Record, len(node))
	for k, elem := range node {
		v, err := decode(elem, path+"."+k)
		if err != nil {
			return nil, err
		}
		rec[k] = v
	}
	return rec, nil
}

func malformed(path, format string, args ...any) error {
	return fmt.Errorf("%w at %s: %s", ErrMalformed, path, fmt.Sprintf(format, args...))
}

// Marshal encodes v into compact JSON text. Object keys are sorted and
// HTML characters are left unescaped, so equal values marshal to equal bytes.
// Every String and Record key must be valid UTF-8.
func Marshal(v Value) ([]byte, error) {
	if err := checkUTF8(v, "$"); err != nil {
		return nil, err
	}
	return MarshalTree(Encode(v))
}

func checkUTF8(v Value, path string) error {
	switch val := orNull(v).(type) {
	case String:
		if !utf8.ValidString(string(val)) {
			return fmt.Errorf("%w at %s", ErrInvalidUTF8, path)
		}
	case List:
		for i, elem := range val {
			if err := checkUTF8(elem, fmt.Sprintf("%s[%d]", path, i)); err != nil {
				return err
			}
		}
	case Record:
		for k, elem := range val {
			if !utf8.ValidString(k) {
				return fmt.Errorf("%w in key at %s", ErrInvalidUTF8, path)
			}
			if err := checkUTF8(elem, path+"."+k); err != nil {
				return err
			}
		}
	case *Map:
		for i, e := range val.Entries() {
			at := fmt.Sprintf("%s<%d>", path, i)
			if err := checkUTF8(e.Key, at); err != nil {
				return err
			}
			if err := checkUTF8(e.Value, at); err != nil {
				return err
			}
		}
	}
	return nil
}

// MarshalTree writes an already encoded tree as canonical compact JSON.
func MarshalTree(tree any) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(tree); err != nil {
		return nil, fmt.Errorf("codec: marshal: %w", err)
	}
	return bytes.TrimSuffix(buf.Bytes(), []byte{'\n'}), nil
}

// Unmarshal parses JSON text and decodes it into a Value.
func Unmarshal(data []byte) (Value, error) {
	tree, err := UnmarshalTree(data)
	if err != nil {
		return nil, err
	}
	return Decode(tree)
}

// UnmarshalTree parses JSON text into a generic tree with json.Number
// leaves. Trailing data after the first value is rejected.
func UnmarshalTree(data []byte) (any, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	var tree any
	if err := dec.Decode(&tree); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if _, err := dec.Token(); err != io.EOF {
		return nil, fmt.Errorf("%w: trailing data after value", ErrMalformed)
	}
	return tree, nil
}

// DecodePlain converts an untagged JSON tree into a Value: every object is a
// Record and "kind" keys carry no meaning. It reads trees written before
// tagging existed.
func DecodePlain(tree any) (Value, error) {
	return decodePlain(tree, "$")
}

func decodePlain(tree any, path string) (Value, error) {
	switch node := tree.(type) {
	case []any:
		list := make(List, len(node))
		for i, elem := range node {
			v, err := decodePlain(elem, fmt.Sprintf("%s[%d]", path, i))
			if err != nil {
				return nil, err
			}
			list[i] = v
		}
		return list, nil
	case map[string]any:
		rec := make(Record, len(node))
		for k, elem := range node {
			v, err := decodePlain(elem, path+"."+k)
			if err != nil {
				return nil, err
			}
			rec[k] = v
		}
		return rec, nil
	default:
		return decode(tree, path)
	}
}
