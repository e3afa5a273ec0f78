package command

import (
	"errors"
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/oklog/ulid/v2"
	"github.com/urfave/cli/v2"

	"github.com/yndnr/savevault/internal/cli/output"
	"github.com/yndnr/savevault/internal/config"
	"github.com/yndnr/savevault/internal/infra/buildinfo"
	"github.com/yndnr/savevault/internal/infra/confloader"
	"github.com/yndnr/savevault/internal/telemetry/logger"
)

const runtimeKey = "runtime"

// App creates the CLI application.
func App() *cli.App {
	return &cli.App{
		Name:    "savevault-cli",
		Usage:   "Inspect and manage SaveVault save slots",
		Version: buildinfo.String(),
		Flags:   globalFlags(),
		Commands: []*cli.Command{
			SaveCommand(),
			LoadCommand(),
			InfoCommand(),
			VerifyCommand(),
			DumpCommand(),
			ExportCommand(),
			ImportCommand(),
			ClearCommand(),
			AutosaveCommand(),
			ConfigCommand(),
			VersionCommand(),
		},
		Before:   before,
		After:    after,
		Metadata: map[string]any{},
	}
}

// globalFlags returns the global CLI flags.
func globalFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:    "config",
			Aliases: []string{"c"},
			Usage:   "Configuration file (YAML)",
			EnvVars: []string{"SAVEVAULT_CONFIG"},
		},
		&cli.StringFlag{
			Name:  "env-file",
			Usage: "Load environment variables from `FILE` before reading configuration",
		},
		&cli.StringFlag{
			Name:    "output",
			Aliases: []string{"o"},
			Usage:   "Output format: table, json, yaml",
			Value:   string(output.FormatTable),
		},
		&cli.StringFlag{
			Name:  "metrics-out",
			Usage: "Write Prometheus text metrics to `FILE` on exit",
		},
		&cli.StringFlag{
			Name:  "backend",
			Usage: "Storage backend: memory, file, badger, bolt, sqlite, redis",
		},
		&cli.StringFlag{
			Name:  "dir",
			Usage: "Storage directory",
		},
		&cli.StringFlag{
			Name:    "namespace",
			Aliases: []string{"n"},
			Usage:   "Slot namespace",
		},
		&cli.StringFlag{
			Name:  "log-level",
			Usage: "Log level: debug, info, warn, error",
		},
	}
}

// GlobalFlags holds the parsed global flags.
type GlobalFlags struct {
	Config     string
	EnvFile    string
	Output     output.Format
	MetricsOut string
}

// ParseGlobalFlags extracts global flags from context.
func ParseGlobalFlags(c *cli.Context) (*GlobalFlags, error) {
	format, err := output.ParseFormat(c.String("output"))
	if err != nil {
		return nil, err
	}
	return &GlobalFlags{
		Config:     c.String("config"),
		EnvFile:    c.String("env-file"),
		Output:     format,
		MetricsOut: c.String("metrics-out"),
	}, nil
}

func before(c *cli.Context) error {
	flags, err := ParseGlobalFlags(c)
	if err != nil {
		return err
	}
	if flags.EnvFile != "" {
		if err := godotenv.Load(flags.EnvFile); err != nil {
			return fmt.Errorf("load env file: %w", err)
		}
	} else if _, err := os.Stat(".env"); err == nil {
		if err := godotenv.Load(); err != nil {
			return fmt.Errorf("load .env: %w", err)
		}
	}

	// Every log line of one invocation shares an operation id.
	c.Context = logger.WithOperationID(c.Context, ulid.Make().String())
	return nil
}

func after(c *cli.Context) error {
	rt, ok := c.App.Metadata[runtimeKey].(*runtime)
	if !ok {
		return nil
	}
	delete(c.App.Metadata, runtimeKey)

	var errs []error
	if path := c.String("metrics-out"); path != "" {
		if err := rt.writeMetrics(path); err != nil {
			errs = append(errs, err)
		}
	}
	if err := rt.Close(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// loadConfig reads the configuration file, the environment and the global
// flag overrides, in that order.
func loadConfig(c *cli.Context) (*config.Config, *confloader.Loader, error) {
	cfg := config.Default()
	loader := confloader.NewLoader(confloader.WithConfigFile(c.String("config")))
	if err := loader.Load(cfg); err != nil {
		return nil, nil, err
	}

	overrides := map[string]any{}
	for flag, key := range map[string]string{
		"backend":   "storage.backend",
		"dir":       "storage.dir",
		"namespace": "vault.namespace",
		"log-level": "log.level",
	} {
		if c.IsSet(flag) {
			overrides[key] = c.String(flag)
		}
	}
	if len(overrides) > 0 {
		if err := loader.LoadMap(overrides); err != nil {
			return nil, nil, err
		}
		if err := loader.Unmarshal(cfg); err != nil {
			return nil, nil, fmt.Errorf("unmarshal config: %w", err)
		}
	}

	if err := config.Verify(cfg); err != nil {
		return nil, nil, err
	}
	return cfg, loader, nil
}

// render writes data to the app writer in the selected format.
func render(c *cli.Context, data any) error {
	flags, err := ParseGlobalFlags(c)
	if err != nil {
		return err
	}
	return output.NewFormatter(flags.Output).Format(c.App.Writer, data)
}

// printf writes a plain line to the app writer. It is used for messages in
// table mode only, so json and yaml output stays machine readable.
func printf(c *cli.Context, format string, args ...any) {
	if flags, err := ParseGlobalFlags(c); err == nil && flags.Output != output.FormatTable {
		return
	}
	fmt.Fprintf(c.App.Writer, format+"\n", args...)
}
