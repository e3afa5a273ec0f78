package confloader

import (
	"fmt"
	"strings"
	"sync"

	"github.com/go-viper/mapstructure/v2"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// DefaultEnvPrefix is the default environment variable prefix.
const DefaultEnvPrefix = "SAVEVAULT_"

// envNestSep separates nesting levels in environment variable names. A single
// underscore stays part of the key, so SAVEVAULT_TRANSPORT__SEAL_KEY sets
// transport.seal_key.
const envNestSep = "__"

// Loader loads configuration from multiple sources.
type Loader struct {
	mu        sync.RWMutex
	k         *koanf.Koanf
	envPrefix string
	filePath  string
	overrides []map[string]any
	loaded    bool
}

// Option is a function that configures the Loader.
type Option func(*Loader)

// WithEnvPrefix sets the environment variable prefix.
func WithEnvPrefix(prefix string) Option {
	return func(l *Loader) {
		l.envPrefix = prefix
	}
}

// WithConfigFile sets the configuration file path.
func WithConfigFile(path string) Option {
	return func(l *Loader) {
		l.filePath = path
	}
}

// NewLoader creates a new configuration loader.
func NewLoader(opts ...Option) *Loader {
	l := &Loader{
		k:         koanf.New("."),
		envPrefix: DefaultEnvPrefix,
	}

	for _, opt := range opts {
		opt(l)
	}

	return l
}

// FilePath returns the configured file path, or "".
func (l *Loader) FilePath() string {
	return l.filePath
}

// Load reads the file and the environment, then unmarshals into target.
// Fields of target that no source sets keep their current values, so callers
// pass a struct pre-filled with defaults.
func (l *Loader) Load(target any) error {
	if l.filePath != "" {
		if err := l.LoadFile(l.filePath); err != nil {
			return fmt.Errorf("load config file: %w", err)
		}
	}

	if err := l.LoadEnv(); err != nil {
		return fmt.Errorf("load env: %w", err)
	}

	if err := l.Unmarshal(target); err != nil {
		return fmt.Errorf("unmarshal config: %w", err)
	}

	l.loaded = true
	return nil
}

// Reload discards loaded values and repeats Load into target. Maps passed to
// LoadMap are applied again on top.
func (l *Loader) Reload(target any) error {
	l.mu.Lock()
	l.k = koanf.New(".")
	overrides := l.overrides
	l.overrides = nil
	l.mu.Unlock()

	if l.filePath != "" {
		if err := l.LoadFile(l.filePath); err != nil {
			return fmt.Errorf("reload config file: %w", err)
		}
	}
	if err := l.LoadEnv(); err != nil {
		return fmt.Errorf("reload env: %w", err)
	}
	for _, m := range overrides {
		if err := l.LoadMap(m); err != nil {
			return err
		}
	}
	return l.Unmarshal(target)
}

// LoadFile loads configuration from a YAML file.
func (l *Loader) LoadFile(path string) error {
	if path == "" {
		return nil
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if err := l.k.Load(file.Provider(path), yaml.Parser()); err != nil {
		return fmt.Errorf("load file %s: %w", path, err)
	}
	return nil
}

// LoadEnv loads configuration from environment variables.
// SAVEVAULT_LOG__LEVEL=debug sets log.level and
// SAVEVAULT_STORAGE__REDIS__ADDR=host:6379 sets storage.redis.addr.
func (l *Loader) LoadEnv() error {
	prefix := l.envPrefix
	transform := func(s string) string {
		s = strings.TrimPrefix(s, prefix)
		s = strings.ToLower(s)
		return strings.ReplaceAll(s, envNestSep, ".")
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if err := l.k.Load(env.Provider(prefix, ".", transform), nil); err != nil {
		return fmt.Errorf("load env: %w", err)
	}
	return nil
}

// LoadMap loads configuration from a map of dotted keys, typically set from
// command-line flags. The map is kept and re-applied by Reload.
func (l *Loader) LoadMap(data map[string]any) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if err := l.k.Load(mapProvider(data), nil); err != nil {
		return fmt.Errorf("load map: %w", err)
	}
	l.overrides = append(l.overrides, data)
	return nil
}

// Unmarshal unmarshals the loaded configuration into the target struct.
// Slices and maps that a source sets replace the target's values instead of
// merging with them.
func (l *Loader) Unmarshal(target any) error {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.k.UnmarshalWithConf("", target, koanf.UnmarshalConf{
		Tag: "koanf",
		DecoderConfig: &mapstructure.DecoderConfig{
			DecodeHook: mapstructure.ComposeDecodeHookFunc(
				mapstructure.StringToTimeDurationHookFunc(),
				mapstructure.StringToSliceHookFunc(","),
				mapstructure.TextUnmarshallerHookFunc(),
			),
			Result:           target,
			TagName:          "koanf",
			WeaklyTypedInput: true,
			ZeroFields:       true,
		},
	})
}

// Exists reports whether any source set key.
func (l *Loader) Exists(key string) bool {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.k.Exists(key)
}

// GetString returns a string value from the configuration.
func (l *Loader) GetString(key string) string {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.k.String(key)
}

// GetInt returns an int value from the configuration.
func (l *Loader) GetInt(key string) int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.k.Int(key)
}

// GetBool returns a bool value from the configuration.
func (l *Loader) GetBool(key string) bool {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.k.Bool(key)
}

// IsLoaded returns true if configuration has been loaded.
func (l *Loader) IsLoaded() bool {
	return l.loaded
}

// Keys returns all configuration keys.
func (l *Loader) Keys() []string {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.k.Keys()
}
