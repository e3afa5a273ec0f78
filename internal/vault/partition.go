package vault

import (
	"context"

	"github.com/yndnr/savevault/pkg/codec"
)

// Partition is an independently owned slice of state.
//
// Name must be unique within a Vault and becomes the payload key. Snapshot
// is called without locks; Apply replaces the partition state wholesale.
type Partition interface {
	Name() string
	Snapshot(ctx context.Context) (codec.Value, error)
	Apply(ctx context.Context, v codec.Value) error
}

// Validator is implemented by partitions that can check a decoded value
// before any partition is applied.
type Validator interface {
	Validate(v codec.Value) error
}

// PartitionFunc adapts a pair of functions to Partition.
type PartitionFunc struct {
	ID         string
	SnapshotFn func(ctx context.Context) (codec.Value, error)
	ApplyFn    func(ctx context.Context, v codec.Value) error
	ValidateFn func(v codec.Value) error
}

func (p PartitionFunc) Name() string { return p.ID }

func (p PartitionFunc) Snapshot(ctx context.Context) (codec.Value, error) {
	return p.SnapshotFn(ctx)
}

func (p PartitionFunc) Apply(ctx context.Context, v codec.Value) error {
	return p.ApplyFn(ctx, v)
}

// Validate calls ValidateFn when set.
func (p PartitionFunc) Validate(v codec.Value) error {
	if p.ValidateFn == nil {
		return nil
	}
	return p.ValidateFn(v)
}
