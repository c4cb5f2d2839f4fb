// SPDX-License-Identifier: MIT

// Package command implements the transport-agnostic Command Surface of
// spec.md 6: one method per row of the command table, each returning
// either a value or one of internal/coreerr's typed errors. It is the
// thin layer every external collaborator — internal/httpapi, recorderctl,
// internal/menu — goes through to reach the Recording Supervisor, the
// Liveness Prober, and the Storage Custodian; none of those transports
// touch internal/recording or internal/persistence directly.
package command

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/thejerf/suture/v4"

	"github.com/gnimrodg/rtsp-recorder/internal/coreerr"
	"github.com/gnimrodg/rtsp-recorder/internal/custodian"
	"github.com/gnimrodg/rtsp-recorder/internal/persistence"
	"github.com/gnimrodg/rtsp-recorder/internal/recording"
	"github.com/gnimrodg/rtsp-recorder/internal/registry"
	"github.com/gnimrodg/rtsp-recorder/internal/rtsp"
	"github.com/gnimrodg/rtsp-recorder/internal/settings"
	"github.com/gnimrodg/rtsp-recorder/internal/transcoder"
)

// Tree is the subset of *suture.Supervisor the surface needs: adding a
// newly created Recording's state machine to the process's root
// supervision tree. Expressed as an interface so tests can use a fake
// instead of standing up a real suture.Supervisor.
type Tree interface {
	Add(service suture.Service) suture.ServiceToken
}

// Deps are every collaborator the Surface needs. Supplied once at
// process startup (cmd/recorderd) and shared by every command.
type Deps struct {
	Recordings *persistence.RecordingRepo
	Streams    *persistence.StreamRepo
	Settings   *persistence.SettingsRepo
	Registry   *registry.Registry[*recording.Supervisor]
	Tree       Tree
	Prober     rtsp.Prober
	Driver     *transcoder.Driver
	Custodian  *custodian.Custodian
	OutputDir  string
	LogDir     string
	Logger     *slog.Logger
	NewID      func() string
}

// Surface implements spec.md 6's command table.
type Surface struct {
	deps Deps
}

// New builds a Surface. A nil NewID defaults to uuid.NewString.
func New(deps Deps) *Surface {
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	if deps.NewID == nil {
		deps.NewID = uuid.NewString
	}
	return &Surface{deps: deps}
}

// recordingDeps returns the shared collaborators used to construct every
// per-Recording Supervisor.
func (s *Surface) recordingDeps() recording.Deps {
	return recording.Deps{
		Driver:    s.deps.Driver,
		Prober:    s.deps.Prober,
		Repo:      s.deps.Recordings,
		Registry:  s.deps.Registry,
		Custodian: s.deps.Custodian,
		OutputDir: s.deps.OutputDir,
		LogDir:    s.deps.LogDir,
		Logger:    s.deps.Logger,
	}
}

// RecordingView is a Recording plus its derived runtime status (spec.md
// 4.5, 7: "callers distinguish retrying from failed via the derived status
// snapshot, not via the persisted fields").
type RecordingView struct {
	ID           string
	Name         string
	RTSPURL      string
	StartTime    time.Time
	Duration     int
	Status       recording.Status
	Success      persistence.Success
	OutputPath   string
	ErrorMessage string
	CreatedAt    time.Time
	UpdatedAt    time.Time
	CompletedAt  *time.Time
	IgnoreProbe  bool
	Progress     ProgressView
}

type ProgressView struct {
	Frame       int
	FPS         float64
	BitrateKBPS float64
	Speed       float64
}

// view merges a persisted Recording row with its live Supervisor snapshot,
// if one is currently registered.
func (s *Surface) view(rec persistence.Recording) RecordingView {
	v := RecordingView{
		ID: rec.ID, Name: rec.Name, RTSPURL: rec.RTSPURL, StartTime: rec.StartTime,
		Duration: rec.Duration, Success: rec.Success, OutputPath: rec.OutputPath,
		ErrorMessage: rec.ErrorMessage, CreatedAt: rec.CreatedAt, UpdatedAt: rec.UpdatedAt,
		CompletedAt: rec.CompletedAt,
	}
	if sup, ok := s.deps.Registry.Lookup(rec.ID); ok {
		snap := sup.Snapshot()
		v.Status = snap.Status
		v.IgnoreProbe = snap.IgnoreProbe
		if snap.ErrorMessage != "" {
			v.ErrorMessage = snap.ErrorMessage
		}
		v.Progress = ProgressView{
			Frame:       snap.Progress.Frame,
			FPS:         snap.Progress.FPS,
			BitrateKBPS: snap.Progress.BitrateKBPS,
			Speed:       snap.Progress.Speed,
		}
		return v
	}

	switch rec.Success {
	case persistence.SuccessTrue:
		v.Status = recording.StatusCompleted
	case persistence.SuccessFalse:
		if rec.ErrorMessage == "cancelled" {
			v.Status = recording.StatusCancelled
		} else {
			v.Status = recording.StatusFailed
		}
	default:
		v.Status = recording.StatusScheduled
	}
	return v
}

// ListRecordings returns every recording with its derived status.
func (s *Surface) ListRecordings() []RecordingView {
	recs := s.deps.Recordings.List()
	out := make([]RecordingView, len(recs))
	for i, r := range recs {
		out[i] = s.view(r)
	}
	return out
}

// GetRecording returns one recording or coreerr.NotFound.
func (s *Surface) GetRecording(id string) (RecordingView, error) {
	rec, ok := s.deps.Recordings.Get(id)
	if !ok {
		return RecordingView{}, coreerr.NewNotFound("recording", id)
	}
	return s.view(rec), nil
}

// CreateInput is the "create recording" command's input (spec.md 6).
type CreateInput struct {
	Name      string
	RTSPURL   string
	StartTime time.Time
	Duration  time.Duration
}

// CreateRecording validates input, persists a new row, and instantiates
// (and starts) its Supervisor. ValidationError on a bad url/duration/time,
// per spec.md 3's invariants.
func (s *Surface) CreateRecording(in CreateInput) (RecordingView, error) {
	if err := validateSchedule(in.Name, in.RTSPURL, in.Duration); err != nil {
		return RecordingView{}, err
	}
	if in.StartTime.IsZero() {
		return RecordingView{}, coreerr.NewValidation("startTime", "must be a valid instant")
	}

	id := s.deps.NewID()
	now := time.Now()
	rec := persistence.Recording{
		ID: id, Name: in.Name, RTSPURL: in.RTSPURL, StartTime: in.StartTime,
		Duration: int(in.Duration.Seconds()), CreatedAt: now, UpdatedAt: now,
	}
	if err := s.deps.Recordings.Insert(rec); err != nil {
		return RecordingView{}, fmt.Errorf("command: persist recording: %w", err)
	}

	if err := s.spawn(id, recording.Schedule{
		Name: in.Name, URL: in.RTSPURL, StartTime: in.StartTime, Duration: in.Duration,
	}); err != nil {
		return RecordingView{}, fmt.Errorf("command: start supervisor: %w", err)
	}

	rec, _ = s.deps.Recordings.Get(id)
	return s.view(rec), nil
}

// spawn constructs a Supervisor for id and adds it to the root tree.
func (s *Surface) spawn(id string, sched recording.Schedule) error {
	sup, err := recording.New(id, sched, s.deps.Settings.Get(), s.recordingDeps())
	if err != nil {
		return err
	}
	s.deps.Tree.Add(sup)
	return nil
}

// UpdateInput is the "update recording" command's partial-field input.
// A zero value for a field means "leave unchanged".
type UpdateInput struct {
	Name      string
	RTSPURL   string
	StartTime time.Time
	Duration  time.Duration
}

// UpdateRecording mutates name/URL/startTime/duration. Conflict if the
// recording has already started or completed (spec.md 4.5's "accepted
// only while scheduled" rule).
func (s *Surface) UpdateRecording(id string, in UpdateInput) (RecordingView, error) {
	rec, ok := s.deps.Recordings.Get(id)
	if !ok {
		return RecordingView{}, coreerr.NewNotFound("recording", id)
	}
	sup, ok := s.deps.Registry.Lookup(id)
	if !ok {
		return RecordingView{}, coreerr.NewConflict("recording has already finished")
	}

	sched := recording.Schedule{Name: rec.Name, URL: rec.RTSPURL, StartTime: rec.StartTime, Duration: time.Duration(rec.Duration) * time.Second}
	if in.Name != "" {
		sched.Name = in.Name
	}
	if in.RTSPURL != "" {
		sched.URL = in.RTSPURL
	}
	if !in.StartTime.IsZero() {
		sched.StartTime = in.StartTime
	}
	if in.Duration != 0 {
		sched.Duration = in.Duration
	}
	if err := validateSchedule(sched.Name, sched.URL, sched.Duration); err != nil {
		return RecordingView{}, err
	}

	if err := sup.Update(sched); err != nil {
		return RecordingView{}, coreerr.NewConflict(err.Error())
	}

	if err := s.deps.Recordings.Update(id, func(r *persistence.Recording) {
		r.Name = sched.Name
		r.RTSPURL = sched.URL
		r.StartTime = sched.StartTime
		r.Duration = int(sched.Duration.Seconds())
	}); err != nil {
		return RecordingView{}, err
	}

	rec, _ = s.deps.Recordings.Get(id)
	return s.view(rec), nil
}

// DeleteRecording cancels any in-flight Supervisor, deletes the output
// file (if any), and removes the Persistence row.
func (s *Surface) DeleteRecording(id string) error {
	rec, ok := s.deps.Recordings.Get(id)
	if !ok {
		return coreerr.NewNotFound("recording", id)
	}
	if sup, ok := s.deps.Registry.Lookup(id); ok {
		_ = sup.Stop()
	}
	if rec.OutputPath != "" {
		deleteIfExists(rec.OutputPath)
	}
	return s.deps.Recordings.Delete(id)
}

// StartRecording forces an immediate transition out of "scheduled".
// Conflict if not currently scheduled.
func (s *Surface) StartRecording(id string) error {
	sup, ok := s.deps.Registry.Lookup(id)
	if !ok {
		if _, exists := s.deps.Recordings.Get(id); !exists {
			return coreerr.NewNotFound("recording", id)
		}
		return coreerr.NewConflict("recording has already finished")
	}
	if err := sup.Start(); err != nil {
		return coreerr.NewConflict(err.Error())
	}
	return nil
}

// StopRecording cancels a running, starting, or retrying Supervisor.
// Conflict if already terminal.
func (s *Surface) StopRecording(id string) error {
	sup, ok := s.deps.Registry.Lookup(id)
	if !ok {
		if _, exists := s.deps.Recordings.Get(id); !exists {
			return coreerr.NewNotFound("recording", id)
		}
		return coreerr.NewConflict("recording has already finished")
	}
	return sup.Stop()
}

// SetProbeMode toggles the ignore-probe flag.
func (s *Surface) SetProbeMode(id string, ignoreProbe bool) error {
	sup, ok := s.deps.Registry.Lookup(id)
	if !ok {
		if _, exists := s.deps.Recordings.Get(id); !exists {
			return coreerr.NewNotFound("recording", id)
		}
		return coreerr.NewConflict("recording has already finished")
	}
	if ignoreProbe {
		sup.DisableLiveCheck()
	} else {
		sup.EnableLiveCheck()
	}
	return nil
}

// Stats is the "get recording stats" command's output: counts per status
// plus the total.
type Stats struct {
	ByStatus map[recording.Status]int
	Total    int
}

// GetRecordingStats tallies every recording's derived status.
func (s *Surface) GetRecordingStats() Stats {
	views := s.ListRecordings()
	st := Stats{ByStatus: make(map[recording.Status]int), Total: len(views)}
	for _, v := range views {
		st.ByStatus[v.Status]++
	}
	return st
}

// ListSavedStreams, CreateSavedStream, UpdateSavedStream, DeleteSavedStream
// are the standard CRUD commands for SavedStream (spec.md 3, 6).
func (s *Surface) ListSavedStreams() []persistence.SavedStream {
	return s.deps.Streams.List()
}

func (s *Surface) GetSavedStream(id string) (persistence.SavedStream, error) {
	st, ok := s.deps.Streams.Get(id)
	if !ok {
		return persistence.SavedStream{}, coreerr.NewNotFound("saved stream", id)
	}
	return st, nil
}

type SavedStreamInput struct {
	Name        string
	RTSPURL     string
	Description string
	Favorite    bool
}

func (s *Surface) CreateSavedStream(in SavedStreamInput) (persistence.SavedStream, error) {
	if strings.TrimSpace(in.Name) == "" {
		return persistence.SavedStream{}, coreerr.NewValidation("name", "must not be empty")
	}
	if !strings.HasPrefix(in.RTSPURL, "rtsp://") {
		return persistence.SavedStream{}, coreerr.NewValidation("rtspUrl", "must begin with rtsp://")
	}
	now := time.Now()
	st := persistence.SavedStream{
		ID: s.deps.NewID(), Name: in.Name, RTSPURL: in.RTSPURL,
		Description: in.Description, Favorite: in.Favorite, CreatedAt: now, UpdatedAt: now,
	}
	if err := s.deps.Streams.Insert(st); err != nil {
		return persistence.SavedStream{}, err
	}
	return st, nil
}

func (s *Surface) UpdateSavedStream(id string, in SavedStreamInput) (persistence.SavedStream, error) {
	err := s.deps.Streams.Update(id, func(st *persistence.SavedStream) {
		if in.Name != "" {
			st.Name = in.Name
		}
		if in.RTSPURL != "" {
			st.RTSPURL = in.RTSPURL
		}
		if in.Description != "" {
			st.Description = in.Description
		}
		st.Favorite = in.Favorite
	})
	if err != nil {
		return persistence.SavedStream{}, err
	}
	updated, _ := s.deps.Streams.Get(id)
	return updated, nil
}

func (s *Surface) DeleteSavedStream(id string) error {
	return s.deps.Streams.Delete(id)
}

// ProbeStream answers the "probe stream" command directly via the
// Liveness Prober, independent of any Recording.
func (s *Surface) ProbeStream(ctx context.Context, rawURL string, timeout time.Duration) rtsp.Result {
	if timeout <= 0 {
		timeout = time.Second
	}
	return s.deps.Prober.Probe(ctx, rawURL, timeout)
}

// StorageStats is the "get storage stats" command's output.
type StorageStats struct {
	UsedGB         float64
	MaxGB          int
	Percentage     float64
	AutoDeleteDays int
}

func (s *Surface) GetStorageStats() StorageStats {
	st := s.deps.Settings.Get()
	usedGB := s.deps.Custodian.CurrentStorageGB()
	stats := StorageStats{UsedGB: usedGB, MaxGB: st.MaxStorageGB, AutoDeleteDays: st.AutoDeleteDays}
	if st.MaxStorageGB > 0 {
		stats.Percentage = (usedGB / float64(st.MaxStorageGB)) * 100
	}
	return stats
}

// RunStorageCleanup triggers an immediate Custodian sweep.
func (s *Surface) RunStorageCleanup(ctx context.Context) custodian.Result {
	return s.deps.Custodian.RunNow(ctx)
}

// GetSettings returns the current effective settings.
func (s *Surface) GetSettings() settings.Settings {
	return s.deps.Settings.Get()
}

// UpdateSettings merges a partial record on top of the current settings.
func (s *Surface) UpdateSettings(override settings.Settings) (settings.Settings, error) {
	merged, err := s.deps.Settings.Update(override)
	if err != nil {
		return settings.Settings{}, coreerr.NewValidation("settings", err.Error())
	}
	return merged, nil
}

func validateSchedule(name, rtspURL string, duration time.Duration) error {
	if strings.TrimSpace(name) == "" {
		return coreerr.NewValidation("name", "must not be empty")
	}
	if !strings.HasPrefix(rtspURL, "rtsp://") {
		return coreerr.NewValidation("rtspUrl", "must begin with rtsp://")
	}
	if duration <= 0 {
		return coreerr.NewValidation("duration", "must be > 0")
	}
	return nil
}

func deleteIfExists(path string) {
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		// Best-effort: a file that could not be removed is left on disk and
		// does not block deletion; DeleteRecording removes the row regardless.
		_ = err
	}
}
