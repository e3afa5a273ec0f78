// Package command defines the savevault-cli commands.
//
// It uses urfave/cli/v2 for command parsing:
//
//   - root.go: App, global flags, configuration and runtime wiring
//   - runtime.go: store, transport, vault and metrics for one invocation
//   - state.go: reading and writing partition state files
//   - vault.go: save, load, info, verify, dump, export, import, clear
//   - autosave.go: watch a state file and save it as it changes
//   - config.go: show and check the effective configuration
//   - version.go: build information
//
// Results go to the app writer in the format chosen with --output; logs go
// to the error writer.
package command
