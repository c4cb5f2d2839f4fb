// SPDX-License-Identifier: MIT

package settings

// Paths holds the on-disk locations the process needs outside of the
// Settings document itself: where the three persisted documents live and
// where logs go. These, plus the prober heartbeat knobs, are the values
// spec.md 6 says the named environment variables override.
type Paths struct {
	RecordingsDoc string `koanf:"recordings_doc_path"`
	SettingsDoc   string `koanf:"settings_doc_path"`
	StreamsDoc    string `koanf:"streams_doc_path"`
	LogDir        string `koanf:"log_dir"`
}

// DefaultPaths returns the baseline document/log locations.
func DefaultPaths() Paths {
	return Paths{
		RecordingsDoc: "./data/recordings.json",
		SettingsDoc:   "./data/settings.json",
		StreamsDoc:    "./data/streams.json",
		LogDir:        "./logs",
	}
}

// ProberConfig holds the liveness prober's heartbeat knobs, which live
// outside the persisted Settings document but are still environment
// overridable per spec.md 6.
type ProberConfig struct {
	HeartbeatEnabled         bool `koanf:"heartbeat_enabled"`
	HeartbeatIntervalSeconds int  `koanf:"heartbeat_interval_seconds"`
}

// DefaultProberConfig returns heartbeat disabled, 30s interval when enabled
// — the Open Question resolution recorded in SPEC_FULL.md 9.
func DefaultProberConfig() ProberConfig {
	return ProberConfig{HeartbeatEnabled: false, HeartbeatIntervalSeconds: 30}
}
