// SPDX-License-Identifier: MIT

package settings

import (
	"fmt"
	"strings"
	"sync"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env/v2"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// AppConfig bundles everything a process needs to boot: the persisted
// Settings document's loaded shape, the document/log paths, and the
// prober's heartbeat knobs. Grounded on the teacher's Config/KoanfConfig
// split, folded into one struct since here all three groups are small.
type AppConfig struct {
	Settings Settings     `koanf:"settings"`
	Paths    Paths        `koanf:"paths"`
	Prober   ProberConfig `koanf:"prober"`
}

// DefaultAppConfig returns the built-in baseline for all three groups.
func DefaultAppConfig() AppConfig {
	return AppConfig{Settings: Defaults(), Paths: DefaultPaths(), Prober: DefaultProberConfig()}
}

// Loader wraps koanf for layered configuration: built-in defaults, then an
// optional YAML file, then environment variables, in increasing precedence.
type Loader struct {
	k         *koanf.Koanf
	mu        sync.RWMutex
	filePath  string
	envPrefix string
}

// LoaderOption configures a Loader.
type LoaderOption func(*Loader)

// WithYAMLFile sets the YAML configuration file path.
func WithYAMLFile(path string) LoaderOption {
	return func(l *Loader) { l.filePath = path }
}

// WithEnvPrefix overrides the environment variable prefix (default "RECORDER").
func WithEnvPrefix(prefix string) LoaderOption {
	return func(l *Loader) { l.envPrefix = prefix }
}

// NewLoader builds a Loader and performs its first load.
func NewLoader(opts ...LoaderOption) (*Loader, error) {
	l := &Loader{k: koanf.New("."), envPrefix: "RECORDER"}
	for _, opt := range opts {
		opt(l)
	}
	if err := l.reload(); err != nil {
		return nil, err
	}
	return l, nil
}

// Load unmarshals the layered configuration into an AppConfig, merging it
// on top of DefaultAppConfig and validating the resulting Settings.
func (l *Loader) Load() (AppConfig, error) {
	cfg := DefaultAppConfig()

	l.mu.RLock()
	k := l.k
	l.mu.RUnlock()

	var override AppConfig
	if err := k.Unmarshal("", &override); err != nil {
		return AppConfig{}, fmt.Errorf("settings: unmarshal config: %w", err)
	}

	cfg.Settings = Merge(cfg.Settings, override.Settings)
	if override.Paths.RecordingsDoc != "" {
		cfg.Paths.RecordingsDoc = override.Paths.RecordingsDoc
	}
	if override.Paths.SettingsDoc != "" {
		cfg.Paths.SettingsDoc = override.Paths.SettingsDoc
	}
	if override.Paths.StreamsDoc != "" {
		cfg.Paths.StreamsDoc = override.Paths.StreamsDoc
	}
	if override.Paths.LogDir != "" {
		cfg.Paths.LogDir = override.Paths.LogDir
	}
	if override.Prober.HeartbeatIntervalSeconds != 0 {
		cfg.Prober.HeartbeatIntervalSeconds = override.Prober.HeartbeatIntervalSeconds
	}
	// HeartbeatEnabled has no "unset" representation in a bool override, so
	// it is only applied when the env/file layer actually set the key.
	if k.Exists("prober.heartbeat_enabled") {
		cfg.Prober.HeartbeatEnabled = override.Prober.HeartbeatEnabled
	}

	if err := cfg.Settings.Validate(); err != nil {
		return AppConfig{}, err
	}
	return cfg, nil
}

// Reload reloads all layers from their sources.
func (l *Loader) Reload() error { return l.reload() }

// reload rebuilds the koanf tree: YAML file (if any), then environment
// variables, which take precedence. The named variables from spec.md 6
// (document paths, output dir, log dir, transcoder path, container format,
// prober heartbeat interval/enable) are ordinary dotted keys under this
// scheme: RECORDER_PATHS_RECORDINGS_DOC_PATH, RECORDER_SETTINGS_OUTPUT_DIR,
// RECORDER_SETTINGS_TRANSCODER_PATH, RECORDER_SETTINGS_CONTAINER,
// RECORDER_PROBER_HEARTBEAT_INTERVAL_SECONDS, RECORDER_PROBER_HEARTBEAT_ENABLED.
func (l *Loader) reload() error {
	newK := koanf.New(".")

	if l.filePath != "" {
		if err := newK.Load(file.Provider(l.filePath), yaml.Parser()); err != nil {
			return fmt.Errorf("settings: load yaml %s: %w", l.filePath, err)
		}
	}

	envProvider := env.Provider(".", env.Opt{
		Prefix: l.envPrefix + "_",
		TransformFunc: func(k, v string) (string, any) {
			k = strings.TrimPrefix(k, l.envPrefix+"_")
			k = strings.ToLower(k)

			for _, top := range []string{"settings_", "paths_", "prober_"} {
				if strings.HasPrefix(k, top) {
					rest := strings.TrimPrefix(k, top)
					return strings.TrimSuffix(top, "_") + "." + rest, v
				}
			}
			return strings.ReplaceAll(k, "_", "."), v
		},
	})
	if err := newK.Load(envProvider, nil); err != nil {
		return fmt.Errorf("settings: load env: %w", err)
	}

	l.mu.Lock()
	l.k = newK
	l.mu.Unlock()
	return nil
}
