// Package confloader loads configuration from files and the environment.
//
// Sources are layered with koanf; later sources override earlier ones:
//
//  1. Values already present in the target struct (defaults)
//  2. Configuration file (YAML)
//  3. Environment variables (SAVEVAULT_ prefix)
//  4. Maps loaded explicitly, e.g. from command-line flags
//
// Watcher reports configuration file changes through fsnotify so a running
// process can reload settings such as the log level.
package confloader
