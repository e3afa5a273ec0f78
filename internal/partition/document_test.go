package partition

import (
	"context"
	"errors"
	"testing"

	"github.com/yndnr/savevault/pkg/codec"
)

func TestDocument_SnapshotIsACopy(t *testing.T) {
	d := NewDocument("core", codec.Record{"world": codec.Record{"day": codec.Int(1)}})

	snap, err := d.Snapshot(context.Background())
	if err != nil {
		t.Fatalf("Snapshot() error = %v", err)
	}
	snap.(codec.Record)["world"].(codec.Record)["day"] = codec.Int(99)

	if v, _ := d.Get("world.day"); !codec.Equal(v, codec.Int(1)) {
		t.Errorf("world.day = %v, want 1", v)
	}
}

func TestDocument_ApplyReplaces(t *testing.T) {
	d := NewDocument("core", nil)
	in := codec.Record{"player": codec.Record{"level": codec.Int(3)}}

	if err := d.Apply(context.Background(), in); err != nil {
		t.Fatalf("Apply() error = %v", err)
	}
	in["player"] = codec.Null{}

	if v, ok := d.Get("player.level"); !ok || !codec.Equal(v, codec.Int(3)) {
		t.Errorf("player.level = %v, %v", v, ok)
	}
	if d.Revision() != 1 {
		t.Errorf("Revision() = %d, want 1", d.Revision())
	}
}

func TestDocument_Validate(t *testing.T) {
	errOdd := errors.New("odd day")
	d := NewDocument("core", nil,
		WithKind(codec.KindRecord),
		WithValidator(func(v codec.Value) error {
			if day, ok := codec.Lookup(v, "world.day"); ok && int64(day.(codec.Int))%2 == 1 {
				return errOdd
			}
			return nil
		}),
	)

	tests := []struct {
		name    string
		v       codec.Value
		wantErr bool
	}{
		{"record", codec.Record{}, false},
		{"wrong kind", codec.List{}, true},
		{"nil is null", nil, true},
		{"validator rejects", codec.Record{"world": codec.Record{"day": codec.Int(3)}}, true},
		{"validator accepts", codec.Record{"world": codec.Record{"day": codec.Int(4)}}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := d.Validate(tt.v)
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}

	if err := d.Apply(context.Background(), codec.List{}); err == nil {
		t.Error("Apply() should run validation")
	}
}

func TestDocument_SetPathNotifies(t *testing.T) {
	changes := 0
	d := NewDocument("social", nil, WithOnChange(func() { changes++ }))

	if err := d.SetPath("flags.metElena", codec.Bool(true)); err != nil {
		t.Fatalf("SetPath() error = %v", err)
	}
	if err := d.Set(codec.Record{"x": codec.Int(1)}); err != nil {
		t.Fatalf("Set() error = %v", err)
	}
	if err := d.Apply(context.Background(), codec.Record{}); err != nil {
		t.Fatalf("Apply() error = %v", err)
	}

	if changes != 2 {
		t.Errorf("onChange calls = %d, want 2", changes)
	}
	if d.Revision() != 3 {
		t.Errorf("Revision() = %d, want 3", d.Revision())
	}
}

func TestDocument_SetPathNeedsRecord(t *testing.T) {
	d := NewDocument("scalar", codec.Int(1))
	if err := d.SetPath("a", codec.Int(2)); err == nil {
		t.Error("SetPath() on a scalar document should fail")
	}
}
