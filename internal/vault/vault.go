package vault

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/yndnr/savevault/internal/core/domain"
	"github.com/yndnr/savevault/internal/integrity"
	"github.com/yndnr/savevault/internal/migrate"
	"github.com/yndnr/savevault/internal/storage"
	"github.com/yndnr/savevault/internal/telemetry/logger"
	"github.com/yndnr/savevault/internal/transport"
)

// DefaultNamespace prefixes the slot keys when no namespace is configured.
const DefaultNamespace = "save"

// MetadataPaths are the dotted payload paths metadata is extracted from.
// The first path segment is the partition name.
type MetadataPaths struct {
	DisplayName string `koanf:"display_name" json:"display_name" yaml:"display_name"`
	Day         string `koanf:"day" json:"day" yaml:"day"`
	Level       string `koanf:"level" json:"level" yaml:"level"`
	Playtime    string `koanf:"playtime" json:"playtime" yaml:"playtime"`
}

// DefaultMetadataPaths returns the paths used by the stock partitions.
func DefaultMetadataPaths() MetadataPaths {
	return MetadataPaths{
		DisplayName: "core.character.name",
		Day:         "core.world.day",
		Level:       "core.player.level",
		Playtime:    "core.world.playtime",
	}
}

// Recorder receives operation outcomes. result is "ok" or the error kind.
type Recorder interface {
	SaveDone(result string, blobBytes int, ratio float64, elapsed time.Duration)
	LoadDone(result, slot string, elapsed time.Duration)
	Fallback()
}

type nopRecorder struct{}

func (nopRecorder) SaveDone(string, int, float64, time.Duration) {}
func (nopRecorder) LoadDone(string, string, time.Duration)       {}
func (nopRecorder) Fallback()                                    {}

// Stats are cumulative counters since the Vault was created.
type Stats struct {
	TotalSaves       int64     `json:"total_saves" yaml:"total_saves"`
	TotalLoads       int64     `json:"total_loads" yaml:"total_loads"`
	FailedSaves      int64     `json:"failed_saves" yaml:"failed_saves"`
	FailedLoads      int64     `json:"failed_loads" yaml:"failed_loads"`
	FallbackLoads    int64     `json:"fallback_loads" yaml:"fallback_loads"`
	LastSaveAt       time.Time `json:"last_save_at" yaml:"last_save_at"`
	LastLoadAt       time.Time `json:"last_load_at" yaml:"last_load_at"`
	PayloadBytes     int       `json:"payload_bytes" yaml:"payload_bytes"`
	EnvelopeBytes    int       `json:"envelope_bytes" yaml:"envelope_bytes"`
	BlobBytes        int       `json:"blob_bytes" yaml:"blob_bytes"`
	CompressionRatio float64   `json:"compression_ratio" yaml:"compression_ratio"`
}

// Option configures a Vault.
type Option func(*Vault)

// WithNamespace sets the slot key prefix.
func WithNamespace(ns string) Option {
	return func(v *Vault) { v.namespace = ns }
}

// WithLegacyKeys lists extra store keys removed by Clear.
func WithLegacyKeys(keys ...string) Option {
	return func(v *Vault) { v.legacyKeys = append([]string(nil), keys...) }
}

// WithRejectWhenBusy makes operations fail with ErrBusy instead of waiting
// for the in-flight operation.
func WithRejectWhenBusy() Option {
	return func(v *Vault) { v.rejectWhenBusy = true }
}

// WithGuard sets the integrity guard used to stamp new envelopes.
func WithGuard(g *integrity.Guard) Option {
	return func(v *Vault) { v.guard = g }
}

// WithTransport sets the blob transport. The caller keeps ownership.
func WithTransport(t *transport.Transport) Option {
	return func(v *Vault) { v.transport = t }
}

// WithChain sets the migration chain.
func WithChain(c *migrate.Chain) Option {
	return func(v *Vault) { v.chain = c }
}

// WithMetadataPaths sets where metadata is read from in the payload.
func WithMetadataPaths(p MetadataPaths) Option {
	return func(v *Vault) { v.metaPaths = p }
}

// WithLogger sets the logger.
func WithLogger(l logger.Logger) Option {
	return func(v *Vault) { v.logger = l }
}

// WithRecorder sets the metrics recorder.
func WithRecorder(r Recorder) Option {
	return func(v *Vault) { v.recorder = r }
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(v *Vault) { v.now = now }
}

// Vault orchestrates save and load of a fixed set of partitions against the
// primary and backup slots of a store.
type Vault struct {
	store      storage.Store
	partitions []Partition

	namespace      string
	legacyKeys     []string
	rejectWhenBusy bool
	guard          *integrity.Guard
	transport      *transport.Transport
	ownsTransport  bool
	chain          *migrate.Chain
	metaPaths      MetadataPaths
	logger         logger.Logger
	recorder       Recorder
	now            func() time.Time

	// inflight holds one token while an operation runs.
	inflight chan struct{}

	// mu guards stats and entropy. The monotonic reader is not safe for
	// concurrent use.
	mu      sync.Mutex
	stats   Stats
	entropy io.Reader
}

// New creates a Vault over store. Partition order is kept for snapshot,
// validate and apply.
func New(store storage.Store, partitions []Partition, opts ...Option) (*Vault, error) {
	if store == nil {
		return nil, domain.ErrInvalidConfig.WithDetails("store is required")
	}

	v := &Vault{
		store:      store,
		partitions: append([]Partition(nil), partitions...),
		namespace:  DefaultNamespace,
		metaPaths:  DefaultMetadataPaths(),
		logger:     logger.Default(),
		recorder:   nopRecorder{},
		now:        time.Now,
		inflight:   make(chan struct{}, 1),
	}
	for _, opt := range opts {
		opt(v)
	}

	if v.namespace == "" {
		return nil, domain.ErrInvalidConfig.WithDetails("namespace is empty")
	}
	seen := make(map[string]bool, len(v.partitions))
	for i, p := range v.partitions {
		if p == nil {
			return nil, domain.ErrInvalidConfig.WithDetails(fmt.Sprintf("partition %d is nil", i))
		}
		name := p.Name()
		if name == "" {
			return nil, domain.ErrInvalidConfig.WithDetails(fmt.Sprintf("partition %d has no name", i))
		}
		if seen[name] {
			return nil, domain.ErrInvalidConfig.WithDetails(fmt.Sprintf("duplicate partition %q", name))
		}
		seen[name] = true
	}

	if v.guard == nil {
		g, err := integrity.NewGuard(integrity.DefaultAlgorithm)
		if err != nil {
			return nil, err
		}
		v.guard = g
	}
	if v.chain == nil {
		v.chain = migrate.DefaultChain()
	}
	if v.transport == nil {
		t, err := transport.New()
		if err != nil {
			return nil, err
		}
		v.transport = t
		v.ownsTransport = true
	}
	v.entropy = ulid.Monotonic(rand.Reader, 0)

	return v, nil
}

// log returns the vault logger tagged with the namespace and the operation
// id carried by ctx.
func (v *Vault) log(ctx context.Context) logger.Logger {
	return logger.L(logger.WithNamespace(logger.WithLogger(ctx, v.logger), v.namespace))
}

// Close releases resources the Vault created itself. The store is left open.
func (v *Vault) Close() error {
	if v.ownsTransport {
		v.transport.Close()
	}
	return nil
}

// Partitions returns the registered partition names in order.
func (v *Vault) Partitions() []string {
	names := make([]string, len(v.partitions))
	for i, p := range v.partitions {
		names[i] = p.Name()
	}
	return names
}

// Namespace returns the slot key prefix.
func (v *Vault) Namespace() string {
	return v.namespace
}

// Stats returns a copy of the operation counters.
func (v *Vault) Stats() Stats {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.stats
}

// Kind returns the short error kind of err ("DigestMismatch", "Busy", ...).
func Kind(err error) string {
	return domain.Kind(err)
}

// ============================================================================
// In-flight guard
// ============================================================================

func (v *Vault) acquire(ctx context.Context) error {
	if v.rejectWhenBusy {
		select {
		case v.inflight <- struct{}{}:
			return nil
		default:
			return domain.ErrBusy
		}
	}

	select {
	case v.inflight <- struct{}{}:
		return nil
	case <-ctx.Done():
		return domain.ErrBusy.Wrapf(ctx.Err(), "waiting for in-flight operation")
	}
}

func (v *Vault) release() {
	<-v.inflight
}

// ============================================================================
// Slot access
// ============================================================================

func (v *Vault) key(slot domain.Slot) string {
	return storage.SlotKey(v.namespace, slot)
}

// readSlot returns the slot blob. found is false only when the backend has
// no such key; a stored zero-length blob is found and left to decoding.
func (v *Vault) readSlot(ctx context.Context, slot domain.Slot) (blob []byte, found bool, err error) {
	blob, err = v.store.Get(ctx, v.key(slot))
	if errors.Is(err, storage.ErrKeyNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, domain.ErrBackendUnavailable.Wrapf(err, "read %s", slot)
	}
	return blob, true, nil
}

func (v *Vault) writeSlot(ctx context.Context, slot domain.Slot, blob []byte) error {
	if err := v.store.Set(ctx, v.key(slot), blob); err != nil {
		return domain.ErrBackendUnavailable.Wrapf(err, "write %s", slot)
	}
	return nil
}

func (v *Vault) removeKey(ctx context.Context, key string) error {
	if err := v.store.Remove(ctx, key); err != nil {
		return domain.ErrBackendUnavailable.Wrapf(err, "remove %s", key)
	}
	return nil
}

// slotState is the pair of slot blobs before a mutating operation.
type slotState struct {
	primary    []byte
	backup     []byte
	hasPrimary bool
	hasBackup  bool
}

func (v *Vault) readSlots(ctx context.Context) (slotState, error) {
	var s slotState
	var err error
	if s.primary, s.hasPrimary, err = v.readSlot(ctx, domain.SlotPrimary); err != nil {
		return s, err
	}
	if s.backup, s.hasBackup, err = v.readSlot(ctx, domain.SlotBackup); err != nil {
		return s, err
	}
	return s, nil
}

// rotate moves the current primary to backup and writes blob as primary.
// Without a current primary the backup is removed, so backup only ever
// holds the primary that blob replaced. If a later step fails, both slots
// are put back as they were.
func (v *Vault) rotate(ctx context.Context, prev slotState, blob []byte) error {
	// 1. Relocate the old primary, or drop a backup that has none
	switch {
	case prev.hasPrimary:
		if err := v.writeSlot(ctx, domain.SlotBackup, prev.primary); err != nil {
			v.restore(ctx, prev)
			return err
		}
	case prev.hasBackup:
		if err := v.removeKey(ctx, v.key(domain.SlotBackup)); err != nil {
			v.restore(ctx, prev)
			return err
		}
	}

	// 2. Write the new primary
	if err := v.writeSlot(ctx, domain.SlotPrimary, blob); err != nil {
		v.restore(ctx, prev)
		return err
	}
	return nil
}

// restore puts both slots back to prev. Failures are logged; the caller
// already returns the original error.
func (v *Vault) restore(ctx context.Context, prev slotState) {
	restoreOne := func(slot domain.Slot, blob []byte, found bool) {
		var err error
		if found {
			err = v.writeSlot(ctx, slot, blob)
		} else {
			err = v.removeKey(ctx, v.key(slot))
		}
		if err != nil {
			v.log(ctx).Error("slot restore failed", "slot", string(slot), "error", err)
		}
	}
	restoreOne(domain.SlotBackup, prev.backup, prev.hasBackup)
	restoreOne(domain.SlotPrimary, prev.primary, prev.hasPrimary)
}

func resultLabel(err error) string {
	if err == nil {
		return "ok"
	}
	return Kind(err)
}
