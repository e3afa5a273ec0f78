package command

import (
	"context"
	"errors"
	"net/http"
	"path/filepath"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/yndnr/savevault/internal/config"
	"github.com/yndnr/savevault/internal/core/domain"
	"github.com/yndnr/savevault/internal/infra/confloader"
	"github.com/yndnr/savevault/internal/infra/shutdown"
	"github.com/yndnr/savevault/internal/telemetry/logger"
	"github.com/yndnr/savevault/internal/vault"
)

// AutosaveCommand keeps a state file saved while it changes.
func AutosaveCommand() *cli.Command {
	return &cli.Command{
		Name:  "autosave",
		Usage: "Watch a state file and save it while it changes",
		Description: "The existing save is loaded first. Every write to the state " +
			"file marks the state dirty and the auto-saver persists it on its next " +
			"tick. Changes to the configuration file update the log level. " +
			"With --metrics-addr the metrics are served over HTTP while it runs. " +
			"Pending changes are flushed on SIGINT or SIGTERM.",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:     "watch",
				Aliases:  []string{"w"},
				Usage:    "State `FILE` to watch",
				Required: true,
			},
			&cli.BoolFlag{
				Name:  "plain",
				Usage: "Read every JSON object as a record",
			},
			&cli.DurationFlag{
				Name:  "interval",
				Usage: "Override autosave.interval",
			},
			&cli.DurationFlag{
				Name:  "min-gap",
				Usage: "Override autosave.min_gap",
			},
			&cli.StringFlag{
				Name:  "metrics-addr",
				Usage: "Serve Prometheus metrics on `ADDR` at /metrics",
			},
		},
		Action: runAutosave,
	}
}

func runAutosave(c *cli.Context) error {
	rt, err := openRuntime(c)
	if err != nil {
		return err
	}
	statePath, err := filepath.Abs(c.String("watch"))
	if err != nil {
		return err
	}

	cfg := rt.cfg.Autosave
	if c.IsSet("interval") {
		cfg.Interval = c.Duration("interval")
	}
	if c.IsSet("min-gap") {
		cfg.MinGap = c.Duration("min-gap")
	}
	saver, err := vault.NewAutoSaver(rt.vault, cfg)
	if err != nil {
		return err
	}

	// 1. Restore the current save, if any
	if _, err := rt.vault.Load(c.Context); err != nil && !errors.Is(err, domain.ErrNoSave) {
		return err
	}

	// 2. Pick up the state file as it is now; document changes mark the
	// saver dirty from here on
	rt.changed = saver.Notify
	reloadState := func() {
		state, err := readState(statePath, c.Bool("plain"))
		if err != nil {
			rt.log.Warn("state file unreadable", "path", statePath, "error", err)
			return
		}
		if err := rt.applyState(state); err != nil {
			rt.log.Warn("state file rejected", "path", statePath, "error", err)
		}
	}
	reloadState()

	// 3. Watch the state file and the configuration file
	watcher, err := confloader.NewWatcher(confloader.WithWatcherLogger(rt.log.Slog()))
	if err != nil {
		return err
	}
	if err := watcher.Watch(statePath); err != nil {
		watcher.Stop()
		return err
	}
	configPath := ""
	if path := rt.loader.FilePath(); path != "" {
		if configPath, err = filepath.Abs(path); err != nil {
			watcher.Stop()
			return err
		}
		if err := watcher.Watch(configPath); err != nil {
			watcher.Stop()
			return err
		}
	}
	watcher.OnChange(func(path string) {
		switch path {
		case statePath:
			reloadState()
		case configPath:
			reloadConfig(rt.loader, rt.log)
		}
	})
	watcher.StartAsync()

	handler := shutdown.NewHandler(cfg.FlushTimeout)
	handler.OnShutdown(func(context.Context) error { return watcher.Stop() })

	// 4. Expose metrics while running
	if addr := c.String("metrics-addr"); addr != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", rt.metrics.Handler())
		srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
		go func() {
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				rt.log.Error("metrics server failed", "addr", addr, "error", err)
			}
		}()
		handler.OnShutdown(srv.Shutdown)
	}

	// 5. Run until signalled
	rt.log.Info("autosave watching", "state", statePath, "config", configPath)
	runErr := saver.Run(handler.Context(c.Context))
	if err := handler.Run(); err != nil {
		rt.log.Warn("shutdown hooks failed", "error", err)
	}
	if runErr != nil {
		return runErr
	}

	printf(c, "autosave stopped after %d save(s)", saver.Saves())
	return nil
}

// reloadConfig re-reads the configuration and applies the settings that can
// change at runtime. Only the log level is live.
func reloadConfig(loader *confloader.Loader, log logger.Logger) {
	cfg := config.Default()
	if err := loader.Reload(cfg); err != nil {
		log.Warn("config reload failed", "error", err)
		return
	}
	if err := config.Verify(cfg); err != nil {
		log.Warn("reloaded config rejected", "error", err)
		return
	}
	if prev := logger.GetLevel(); prev != cfg.Log.Level {
		logger.SetLevel(cfg.Log.Level)
		log.Info("log level changed", "from", prev, "to", logger.GetLevel())
	}
}
