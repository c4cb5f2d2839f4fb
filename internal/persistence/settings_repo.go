// SPDX-License-Identifier: MIT

package persistence

import (
	"log/slog"

	"github.com/gnimrodg/rtsp-recorder/internal/settings"
)

// SettingsRepo is the Settings document (spec.md 3, 4.1, 6) viewed as a
// single mutable record layered on top of settings.Defaults(). Unlike
// RecordingRepo/StreamRepo it holds one value, not a slice: "update
// settings" merges a partial record on top of whatever is currently
// persisted, exactly as settings.Merge does for the YAML/env layers.
type SettingsRepo struct {
	store *Store[settings.Settings]
}

// NewSettingsRepo opens the settings document at path. A missing or
// corrupt file falls back to base (the process's merged YAML/env
// baseline), matching spec.md 4.1's "missing/corrupt -> defaults" rule for
// the settings document specifically (as opposed to "empty" for the array
// documents).
func NewSettingsRepo(path string, base settings.Settings, logger *slog.Logger) *SettingsRepo {
	return &SettingsRepo{store: New(path, logger, func() settings.Settings { return base })}
}

// Get returns the current effective settings.
func (r *SettingsRepo) Get() settings.Settings {
	return r.store.Get()
}

// Update merges override on top of the current settings, validates the
// result, and durably persists it. The previous value is left untouched on
// validation failure.
func (r *SettingsRepo) Update(override settings.Settings) (settings.Settings, error) {
	merged := settings.Merge(r.store.Get(), override)
	if err := merged.Validate(); err != nil {
		return settings.Settings{}, err
	}
	if err := r.store.Put(merged); err != nil {
		return settings.Settings{}, err
	}
	return merged, nil
}
