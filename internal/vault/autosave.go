package vault

import (
	"context"
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"

	"github.com/yndnr/savevault/internal/core/domain"
)

// AutoSaverConfig controls periodic saving.
type AutoSaverConfig struct {
	// Interval is how often the dirty flag is checked.
	Interval time.Duration `koanf:"interval" json:"interval" yaml:"interval"`
	// MinGap is the minimum time between two automatic saves. Zero disables
	// the limit.
	MinGap time.Duration `koanf:"min_gap" json:"min_gap" yaml:"min_gap"`
	// FlushTimeout bounds the final save when Run stops.
	FlushTimeout time.Duration `koanf:"flush_timeout" json:"flush_timeout" yaml:"flush_timeout"`
}

// DefaultAutoSaverConfig returns the default auto-save settings.
func DefaultAutoSaverConfig() AutoSaverConfig {
	return AutoSaverConfig{
		Interval:     30 * time.Second,
		MinGap:       5 * time.Second,
		FlushTimeout: 10 * time.Second,
	}
}

// AutoSaver saves a Vault periodically while it is marked dirty.
type AutoSaver struct {
	vault   *Vault
	cfg     AutoSaverConfig
	limiter *rate.Limiter
	dirty   atomic.Bool
	saves   atomic.Int64
}

// NewAutoSaver creates an auto-saver for v.
func NewAutoSaver(v *Vault, cfg AutoSaverConfig) (*AutoSaver, error) {
	if v == nil {
		return nil, domain.ErrInvalidConfig.WithDetails("vault is required")
	}
	if cfg.Interval <= 0 {
		return nil, domain.ErrInvalidConfig.WithDetails("autosave interval must be positive")
	}
	if cfg.MinGap < 0 {
		return nil, domain.ErrInvalidConfig.WithDetails("autosave min_gap must not be negative")
	}
	if cfg.FlushTimeout <= 0 {
		cfg.FlushTimeout = DefaultAutoSaverConfig().FlushTimeout
	}

	limit := rate.Inf
	if cfg.MinGap > 0 {
		limit = rate.Every(cfg.MinGap)
	}

	return &AutoSaver{
		vault:   v,
		cfg:     cfg,
		limiter: rate.NewLimiter(limit, 1),
	}, nil
}

// Notify marks the state as changed since the last save.
func (a *AutoSaver) Notify() {
	a.dirty.Store(true)
}

// Dirty reports whether a change is waiting to be saved.
func (a *AutoSaver) Dirty() bool {
	return a.dirty.Load()
}

// Saves returns the number of successful saves made by the auto-saver.
func (a *AutoSaver) Saves() int64 {
	return a.saves.Load()
}

// Flush saves now regardless of the dirty flag and the rate limit.
func (a *AutoSaver) Flush(ctx context.Context) (*SaveResult, error) {
	wasDirty := a.dirty.Swap(false)
	res, err := a.vault.Save(ctx)
	if err != nil {
		if wasDirty {
			a.dirty.Store(true)
		}
		return nil, err
	}
	a.saves.Add(1)
	return res, nil
}

// Run checks the dirty flag every interval until ctx is done, then flushes
// pending changes one last time.
func (a *AutoSaver) Run(ctx context.Context) error {
	ticker := time.NewTicker(a.cfg.Interval)
	defer ticker.Stop()

	log := a.vault.log(ctx).With("component", "autosave")
	log.Info("autosave started", "interval", a.cfg.Interval, "min_gap", a.cfg.MinGap)

	for {
		select {
		case <-ticker.C:
			if !a.Dirty() || !a.limiter.Allow() {
				continue
			}
			if _, err := a.Flush(ctx); err != nil {
				log.Warn("autosave failed", "kind", Kind(err), "error", err)
			}

		case <-ctx.Done():
			if a.Dirty() {
				flushCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), a.cfg.FlushTimeout)
				_, err := a.Flush(flushCtx)
				cancel()
				if err != nil {
					log.Error("final autosave failed", "kind", Kind(err), "error", err)
					return err
				}
			}
			log.Info("autosave stopped", "saves", a.Saves())
			return nil
		}
	}
}
