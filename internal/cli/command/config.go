package command

import (
	"github.com/urfave/cli/v2"

	"github.com/yndnr/savevault/internal/cli/output"
	"github.com/yndnr/savevault/internal/config"
)

// ConfigCommand returns the config command group.
func ConfigCommand() *cli.Command {
	return &cli.Command{
		Name:  "config",
		Usage: "Inspect the effective configuration",
		Subcommands: []*cli.Command{
			configShowCommand(),
			configCheckCommand(),
		},
	}
}

func configShowCommand() *cli.Command {
	return &cli.Command{
		Name:   "show",
		Usage:  "Print the merged configuration with secrets masked",
		Action: runConfigShow,
	}
}

func runConfigShow(c *cli.Context) error {
	cfg, _, err := loadConfig(c)
	if err != nil {
		return err
	}
	flags, err := ParseGlobalFlags(c)
	if err != nil {
		return err
	}

	// Nested sections read better as YAML than as a two-column table.
	format := flags.Output
	if format == output.FormatTable {
		format = output.FormatYAML
	}
	return output.NewFormatter(format).Format(c.App.Writer, config.Sanitize(cfg))
}

func configCheckCommand() *cli.Command {
	return &cli.Command{
		Name:   "check",
		Usage:  "Validate the configuration and exit",
		Action: runConfigCheck,
	}
}

func runConfigCheck(c *cli.Context) error {
	cfg, loader, err := loadConfig(c)
	if err != nil {
		return cli.Exit(err.Error(), 1)
	}

	source := loader.FilePath()
	if source == "" {
		source = "defaults and environment"
	}
	printf(c, "configuration OK (%s): backend=%s namespace=%s", source, cfg.Storage.Backend, cfg.Vault.Namespace)
	return nil
}
