// Package main provides the entry point for savevault-cli.
//
// savevault-cli manages SaveVault save slots from the command line.
package main

import (
	"fmt"
	"os"

	"github.com/yndnr/savevault/internal/cli/command"
)

func main() {
	app := command.App()

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}
