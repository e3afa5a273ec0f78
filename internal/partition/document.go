// Package partition provides ready-made partitions for the vault.
package partition

import (
	"context"
	"fmt"
	"sync"

	"github.com/yndnr/savevault/pkg/codec"
)

// Document is an in-memory partition holding one value tree.
//
// Snapshot and Value return deep copies, so callers never share state with
// the document.
type Document struct {
	name string

	mu       sync.RWMutex
	value    codec.Value
	revision uint64

	kind     codec.Kind
	hasKind  bool
	validate func(codec.Value) error
	onChange func()
}

// Option configures a Document.
type Option func(*Document)

// WithKind requires applied values to have kind k at the top level.
func WithKind(k codec.Kind) Option {
	return func(d *Document) {
		d.kind = k
		d.hasKind = true
	}
}

// WithValidator adds a check run before the document accepts a value.
func WithValidator(fn func(codec.Value) error) Option {
	return func(d *Document) { d.validate = fn }
}

// WithOnChange registers fn to run after every local mutation. Apply does
// not trigger it.
func WithOnChange(fn func()) Option {
	return func(d *Document) { d.onChange = fn }
}

// NewDocument creates a document named name holding initial. A nil initial
// value starts the document as an empty record.
func NewDocument(name string, initial codec.Value, opts ...Option) *Document {
	if initial == nil {
		initial = codec.Record{}
	}
	d := &Document{name: name, value: codec.Clone(initial)}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Name returns the partition name.
func (d *Document) Name() string {
	return d.name
}

// Snapshot returns a copy of the current value.
func (d *Document) Snapshot(ctx context.Context) (codec.Value, error) {
	return d.Value(), nil
}

// Validate checks v against the configured kind and validator.
func (d *Document) Validate(v codec.Value) error {
	if v == nil {
		v = codec.Null{}
	}
	if d.hasKind && v.Kind() != d.kind {
		return fmt.Errorf("partition %s: want %s, got %s", d.name, d.kind, v.Kind())
	}
	if d.validate != nil {
		return d.validate(v)
	}
	return nil
}

// Apply replaces the document value with a copy of v.
func (d *Document) Apply(ctx context.Context, v codec.Value) error {
	if err := d.Validate(v); err != nil {
		return err
	}
	d.mu.Lock()
	d.value = codec.Clone(v)
	d.revision++
	d.mu.Unlock()
	return nil
}

// Value returns a copy of the current value.
func (d *Document) Value() codec.Value {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return codec.Clone(d.value)
}

// Revision counts every change to the document, local or applied.
func (d *Document) Revision() uint64 {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.revision
}

// Get reads the value at a dotted path.
func (d *Document) Get(path string) (codec.Value, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	v, ok := codec.Lookup(d.value, path)
	if !ok {
		return nil, false
	}
	return codec.Clone(v), true
}

// Set replaces the whole value.
func (d *Document) Set(v codec.Value) error {
	if err := d.Validate(v); err != nil {
		return err
	}
	d.mu.Lock()
	d.value = codec.Clone(v)
	d.revision++
	d.mu.Unlock()
	d.changed()
	return nil
}

// SetPath stores v at a dotted path. The document must hold a record.
func (d *Document) SetPath(path string, v codec.Value) error {
	d.mu.Lock()
	root, ok := d.value.(codec.Record)
	if !ok {
		d.mu.Unlock()
		return fmt.Errorf("partition %s: value is %s, not a record", d.name, d.value.Kind())
	}
	if err := codec.SetPath(root, path, codec.Clone(v)); err != nil {
		d.mu.Unlock()
		return err
	}
	d.revision++
	d.mu.Unlock()
	d.changed()
	return nil
}

func (d *Document) changed() {
	if d.onChange != nil {
		d.onChange()
	}
}
