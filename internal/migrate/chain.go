package migrate

import (
	"encoding/json"
	"fmt"

	"github.com/yndnr/savevault/internal/core/domain"
	"github.com/yndnr/savevault/pkg/codec"
)

// Step lifts a document from version From to From+1.
type Step struct {
	From int

	// Envelope rewrites the whole document in place.
	Envelope func(doc *Document) error

	// Metadata rewrites a metadata object alone. Nil means the step leaves
	// metadata unchanged.
	Metadata func(meta map[string]any) error
}

// Chain applies registered steps up to a target version.
type Chain struct {
	current int
	steps   map[int]Step
}

// NewChain creates a chain targeting domain.CurrentVersion.
func NewChain(steps ...Step) *Chain {
	c := &Chain{current: domain.CurrentVersion, steps: make(map[int]Step, len(steps))}
	for _, s := range steps {
		c.Register(s)
	}
	return c
}

// DefaultChain returns the chain with every built-in step.
func DefaultChain() *Chain {
	return NewChain(v1ToV2(), v2ToV3())
}

// Register adds or replaces the step for s.From.
func (c *Chain) Register(s Step) {
	c.steps[s.From] = s
}

// Current returns the target version.
func (c *Chain) Current() int {
	return c.current
}

// Check reports whether version can be brought to the current version.
func (c *Chain) Check(version int) error {
	switch {
	case version < 1:
		return domain.ErrParseFailure.WithDetails(fmt.Sprintf("invalid version %d", version))
	case version > c.current:
		return domain.ErrUnsupportedVersion.WithDetails(fmt.Sprintf("version %d is newer than %d", version, c.current))
	}
	for v := version; v < c.current; v++ {
		if _, ok := c.steps[v]; !ok {
			return domain.ErrUnsupportedVersion.WithDetails(fmt.Sprintf("no migration from version %d", v))
		}
	}
	return nil
}

// Migrate returns a copy of doc lifted to the current version. doc itself
// is not modified. A current-version document is returned as a copy with no
// steps applied.
func (c *Chain) Migrate(doc *Document) (*Document, error) {
	if err := c.Check(doc.Version); err != nil {
		return nil, err
	}

	out := doc.Clone()
	for out.Version < c.current {
		step := c.steps[out.Version]
		if err := step.Envelope(out); err != nil {
			return nil, fmt.Errorf("migrate v%d to v%d: %w", step.From, step.From+1, err)
		}
		out.Version = step.From + 1
		if err := out.Set(FieldVersion, out.Version); err != nil {
			return nil, err
		}
	}
	return out, nil
}

// MigrateMetadata lifts a raw metadata object written at version to the
// current layout. It needs no payload and checks no digest.
func (c *Chain) MigrateMetadata(version int, raw json.RawMessage) (domain.Metadata, error) {
	var meta domain.Metadata
	if err := c.Check(version); err != nil {
		return meta, err
	}
	if len(raw) == 0 {
		return meta, nil
	}

	tree, err := codec.UnmarshalTree(raw)
	if err != nil {
		return meta, domain.ErrParseFailure.Wrapf(err, "metadata")
	}
	obj, ok := tree.(map[string]any)
	if !ok {
		return meta, domain.ErrParseFailure.WithDetails("metadata is not an object")
	}

	for v := version; v < c.current; v++ {
		if step := c.steps[v]; step.Metadata != nil {
			if err := step.Metadata(obj); err != nil {
				return meta, fmt.Errorf("migrate metadata v%d: %w", v, err)
			}
		}
	}

	text, err := codec.MarshalTree(obj)
	if err != nil {
		return meta, domain.ErrParseFailure.Wrapf(err, "metadata")
	}
	if err := json.Unmarshal(text, &meta); err != nil {
		return meta, domain.ErrParseFailure.Wrapf(err, "metadata")
	}
	return meta, nil
}
