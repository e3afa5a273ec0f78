package command

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/urfave/cli/v2"

	"github.com/yndnr/savevault/internal/config"
	"github.com/yndnr/savevault/internal/infra/confloader"
	"github.com/yndnr/savevault/internal/integrity"
	"github.com/yndnr/savevault/internal/partition"
	"github.com/yndnr/savevault/internal/storage"
	"github.com/yndnr/savevault/internal/telemetry/logger"
	"github.com/yndnr/savevault/internal/telemetry/metric"
	"github.com/yndnr/savevault/internal/transport"
	"github.com/yndnr/savevault/internal/vault"
)

// runtime is everything one command invocation works with.
type runtime struct {
	cfg       *config.Config
	loader    *confloader.Loader
	log       logger.Logger
	store     storage.Store
	transport *transport.Transport
	vault     *vault.Vault
	docs      map[string]*partition.Document
	metrics   *metric.Registry

	// changed runs after any document is modified locally. Set it before
	// documents are touched from other goroutines.
	changed func()
}

// metricsRegistrar is implemented by stores that export their own metrics.
type metricsRegistrar interface {
	RegisterMetrics(reg prometheus.Registerer, interval time.Duration) error
}

// openRuntime builds the runtime for c once and caches it in the app
// metadata. The app's After hook closes it.
func openRuntime(c *cli.Context) (*runtime, error) {
	if rt, ok := c.App.Metadata[runtimeKey].(*runtime); ok {
		return rt, nil
	}

	cfg, loader, err := loadConfig(c)
	if err != nil {
		return nil, err
	}
	log, err := logger.New(logger.Config{
		Level:  cfg.Log.Level,
		Format: cfg.Log.Format,
		Output: c.App.ErrWriter,
	})
	if err != nil {
		return nil, err
	}

	rt, err := newRuntime(c.Context, cfg, log)
	if err != nil {
		return nil, err
	}
	rt.loader = loader
	c.App.Metadata[runtimeKey] = rt
	return rt, nil
}

func newRuntime(ctx context.Context, cfg *config.Config, log logger.Logger) (*runtime, error) {
	rt := &runtime{
		cfg:     cfg,
		log:     log,
		docs:    make(map[string]*partition.Document, len(cfg.Vault.Partitions)),
		metrics: metric.NewRegistry(),
	}

	guard, err := newGuard(cfg.Vault.Digest)
	if err != nil {
		return nil, err
	}
	rt.transport, err = newTransport(cfg.Transport)
	if err != nil {
		return nil, err
	}

	rt.store, err = storage.Open(ctx, cfg.Storage, log.Slog())
	if err != nil {
		rt.transport.Close()
		return nil, err
	}
	if r, ok := rt.store.(metricsRegistrar); ok {
		if err := r.RegisterMetrics(rt.metrics.Registerer(), 0); err != nil {
			log.Warn("backend metrics unavailable", "error", err)
		}
	}

	parts := make([]vault.Partition, 0, len(cfg.Vault.Partitions))
	for _, name := range cfg.Vault.Partitions {
		doc := partition.NewDocument(name, nil, partition.WithOnChange(rt.notifyChanged))
		rt.docs[name] = doc
		parts = append(parts, doc)
	}

	opts := []vault.Option{
		vault.WithNamespace(cfg.Vault.Namespace),
		vault.WithLegacyKeys(cfg.Vault.LegacyKeys...),
		vault.WithGuard(guard),
		vault.WithTransport(rt.transport),
		vault.WithMetadataPaths(cfg.Vault.Metadata),
		vault.WithLogger(log),
		vault.WithRecorder(rt.metrics),
	}
	if cfg.Vault.RejectWhenBusy {
		opts = append(opts, vault.WithRejectWhenBusy())
	}

	rt.vault, err = vault.New(rt.store, parts, opts...)
	if err != nil {
		rt.store.Close()
		rt.transport.Close()
		return nil, err
	}

	v := rt.vault
	rt.metrics.Registerer().MustRegister(metric.NewCollector(func() metric.Snapshot {
		s := v.Stats()
		return metric.Snapshot{
			LastSaveAt:   s.LastSaveAt,
			LastLoadAt:   s.LastLoadAt,
			PayloadBytes: s.PayloadBytes,
			Partitions:   len(v.Partitions()),
		}
	}))
	return rt, nil
}

func newGuard(name string) (*integrity.Guard, error) {
	alg, err := integrity.ParseAlgorithm(name)
	if err != nil {
		return nil, err
	}
	return integrity.NewGuard(alg)
}

func newTransport(cfg config.TransportSection) (*transport.Transport, error) {
	comp, err := transport.ParseCompression(cfg.Compression)
	if err != nil {
		return nil, err
	}
	level, err := transport.ParseLevel(cfg.Level)
	if err != nil {
		return nil, err
	}
	key, err := transport.ParseSealKey(cfg.SealKey)
	if err != nil {
		return nil, err
	}

	opts := []transport.Option{transport.WithCompression(comp), transport.WithLevel(level)}
	if key != nil {
		opts = append(opts, transport.WithSealKey(key))
	}
	return transport.New(opts...)
}

func (rt *runtime) notifyChanged() {
	if rt.changed != nil {
		rt.changed()
	}
}

// Close releases the vault, the transport and the store.
func (rt *runtime) Close() error {
	var errs []error
	if err := rt.vault.Close(); err != nil {
		errs = append(errs, err)
	}
	rt.transport.Close()
	if err := rt.store.Close(); err != nil {
		errs = append(errs, fmt.Errorf("close store: %w", err))
	}
	return errors.Join(errs...)
}

func (rt *runtime) writeMetrics(path string) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("metrics: %w", err)
	}
	if err := rt.metrics.WriteText(f); err != nil {
		f.Close()
		return fmt.Errorf("metrics: %w", err)
	}
	return f.Close()
}
