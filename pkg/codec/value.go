package codec

import (
	"fmt"
	"math"
	"sort"
)

// Kind identifies the shape of a Value.
type Kind uint8

const (
	KindNull Kind = iota
	KindBool
	KindInt
	KindFloat
	KindString
	KindList
	KindRecord
	KindMap
)

var kindNames = [...]string{"null", "bool", "int", "float", "string", "list", "record", "map"}

func (k Kind) String() string {
	if int(k) < len(kindNames) {
		return kindNames[k]
	}
	return fmt.Sprintf("kind(%d)", k)
}

// Value is a sealed interface over the snapshot value kinds.
// Only the types in this file implement it.
type Value interface {
	Kind() Kind
	sealed()
}

// Null is the absent value.
type Null struct{}

// Bool is a boolean value.
type Bool bool

// Int is a 64-bit signed integer value.
type Int int64

// Float is a 64-bit floating point value. NaN and infinities are allowed.
type Float float64

// String is a UTF-8 string value.
type String string

// List is an ordered sequence of values.
type List []Value

// Record is a string-keyed structure. Field order carries no meaning.
type Record map[string]Value

func (Null) Kind() Kind   { return KindNull }
func (Bool) Kind() Kind   { return KindBool }
func (Int) Kind() Kind    { return KindInt }
func (Float) Kind() Kind  { return KindFloat }
func (String) Kind() Kind { return KindString }
func (List) Kind() Kind   { return KindList }
func (Record) Kind() Kind { return KindRecord }
func (*Map) Kind() Kind   { return KindMap }

func (Null) sealed()   {}
func (Bool) sealed()   {}
func (Int) sealed()    {}
func (Float) sealed()  {}
func (String) sealed() {}
func (List) sealed()   {}
func (Record) sealed() {}
func (*Map) sealed()   {}

// Keys returns the record field names in sorted order.
func (r Record) Keys() []string {
	keys := make([]string, 0, len(r))
	for k := range r {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Entry is one key/value pair of a Map.
type Entry struct {
	Key   Value
	Value Value
}

// Map is an associative collection with arbitrary Value keys that keeps
// insertion order. Keys are compared with Equal.
//
// A nil *Map behaves as an empty map for reads.
type Map struct {
	entries []Entry
}

// NewMap returns a map holding entries in order. Later duplicates replace
// earlier values in place.
func NewMap(entries ...Entry) *Map {
	m := &Map{entries: make([]Entry, 0, len(entries))}
	for _, e := range entries {
		m.Set(e.Key, e.Value)
	}
	return m
}

// Len returns the number of entries.
func (m *Map) Len() int {
	if m == nil {
		return 0
	}
	return len(m.entries)
}

// Entries returns a copy of the entries in insertion order.
func (m *Map) Entries() []Entry {
	if m == nil {
		return nil
	}
	out := make([]Entry, len(m.entries))
	copy(out, m.entries)
	return out
}

// Get returns the value stored under key.
func (m *Map) Get(key Value) (Value, bool) {
	if i := m.index(key); i >= 0 {
		return m.entries[i].Value, true
	}
	return nil, false
}

// Set stores value under key. An existing key keeps its position.
func (m *Map) Set(key, value Value) {
	key, value = orNull(key), orNull(value)
	if i := m.index(key); i >= 0 {
		m.entries[i].Value = value
		return
	}
	m.entries = append(m.entries, Entry{Key: key, Value: value})
}

// Delete removes key, reporting whether it was present.
func (m *Map) Delete(key Value) bool {
	i := m.index(key)
	if i < 0 {
		return false
	}
	m.entries = append(m.entries[:i], m.entries[i+1:]...)
	return true
}

func (m *Map) index(key Value) int {
	if m == nil {
		return -1
	}
	key = orNull(key)
	for i, e := range m.entries {
		if Equal(e.Key, key) {
			return i
		}
	}
	return -1
}

func orNull(v Value) Value {
	if v == nil {
		return Null{}
	}
	return v
}

// Equal reports whether a and b are deeply equal. A nil Value equals Null.
// Floats compare numerically except that NaN equals NaN. Map entries must
// match in order.
func Equal(a, b Value) bool {
	a, b = orNull(a), orNull(b)
	if a.Kind() != b.Kind() {
		return false
	}

	switch av := a.(type) {
	case Null:
		return true
	case Bool:
		return av == b.(Bool)
	case Int:
		return av == b.(Int)
	case Float:
		bv := b.(Float)
		if math.IsNaN(float64(av)) {
			return math.IsNaN(float64(bv))
		}
		return av == bv
	case String:
		return av == b.(String)
	case List:
		bv := b.(List)
		if len(av) != len(bv) {
			return false
		}
		for i := range av {
			if !Equal(av[i], bv[i]) {
				return false
			}
		}
		return true
	case Record:
		bv := b.(Record)
		if len(av) != len(bv) {
			return false
		}
		for k, v := range av {
			other, ok := bv[k]
			if !ok || !Equal(v, other) {
				return false
			}
		}
		return true
	case *Map:
		bv := b.(*Map)
		if av.Len() != bv.Len() {
			return false
		}
		for i := 0; i < av.Len(); i++ {
			if !Equal(av.entries[i].Key, bv.entries[i].Key) || !Equal(av.entries[i].Value, bv.entries[i].Value) {
				return false
			}
		}
		return true
	default:
		return false
	}
}

// From converts plain Go data into a Value. It accepts nil, bool, signed and
// unsigned integers (unsigned values above MaxInt64 are rejected), float32,
// float64, string, Value, []any, map[string]any and *Map.
func From(v any) (Value, error) {
	switch val := v.(type) {
	case nil:
		return Null{}, nil
	case Value:
		return val, nil
	case bool:
		return Bool(val), nil
	case int:
		return Int(val), nil
	case int8:
		return Int(val), nil
	case int16:
		return Int(val), nil
	case int32:
		return Int(val), nil
	case int64:
		return Int(val), nil
	case uint:
		return fromUint(uint64(val))
	case uint8:
		return Int(val), nil
	case uint16:
		return Int(val), nil
	case uint32:
		return Int(val), nil
	case uint64:
		return fromUint(val)
	case float32:
		return Float(val), nil
	case float64:
		return Float(val), nil
	case string:
		return String(val), nil
	case []any:
		list := make(List, len(val))
		for i, elem := range val {
			ev, err := From(elem)
			if err != nil {
				return nil, fmt.Errorf("[%d]: %w", i, err)
			}
			list[i] = ev
		}
		return list, nil
	case map[string]any:
		rec := make(Record, len(val))
		for k, elem := range val {
			ev, err := From(elem)
			if err != nil {
				return nil, fmt.Errorf("[%q]: %w", k, err)
			}
			rec[k] = ev
		}
		return rec, nil
	default:
		return nil, fmt.Errorf("codec: unsupported type %T", v)
	}
}

// MustFrom is like From but panics on error. Intended for tests and literals.
func MustFrom(v any) Value {
	out, err := From(v)
	if err != nil {
		panic(err)
	}
	return out
}

func fromUint(u uint64) (Value, error) {
	if u > math.MaxInt64 {
		return nil, fmt.Errorf("codec: unsigned value %d overflows int64", u)
	}
	return Int(u), nil
}

// Clone returns a deep copy of v. Scalars are returned as they are.
func Clone(v Value) Value {
	switch val := orNull(v).(type) {
	case List:
		out := make(List, len(val))
		for i, elem := range val {
			out[i] = Clone(elem)
		}
		return out
	case Record:
		out := make(Record, len(val))
		for k, elem := range val {
			out[k] = Clone(elem)
		}
		return out
	case *Map:
		out := &Map{entries: make([]Entry, len(val.entries))}
		for i, e := range val.entries {
			out.entries[i] = Entry{Key: Clone(e.Key), Value: Clone(e.Value)}
		}
		return out
	default:
		return val
	}
}
