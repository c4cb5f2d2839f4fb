// SPDX-License-Identifier: MIT

// Package recording implements the per-Recording state machine described
// in spec.md 4.5: scheduling, live-probing before capture, subprocess
// supervision with retry, and finalization (stitch) into the recording's
// canonical output file. One *Supervisor exists per Recording, registered
// in internal/registry under the recording's id, and runs as a
// suture.Service so the process-wide root supervisor restarts/tracks it
// the same way the teacher's supervisor tree manages stream managers.
package recording

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"sync"
	"time"

	"github.com/gnimrodg/rtsp-recorder/internal/persistence"
	"github.com/gnimrodg/rtsp-recorder/internal/registry"
	"github.com/gnimrodg/rtsp-recorder/internal/rtsp"
	"github.com/gnimrodg/rtsp-recorder/internal/settings"
	"github.com/gnimrodg/rtsp-recorder/internal/transcoder"
)

// CompletionNotifier is the narrow slice of *custodian.Custodian a
// Supervisor needs: a signal that a successful recording just finished, so
// the Storage Custodian can run its out-of-band sweep (spec.md 4.6).
type CompletionNotifier interface {
	NotifyCompletion()
}

// Deps are the collaborators a Supervisor needs; shared across every
// Recording in the process.
type Deps struct {
	Driver    *transcoder.Driver
	Prober    rtsp.Prober
	Repo      *persistence.RecordingRepo
	Registry  *registry.Registry[*Supervisor]
	Custodian CompletionNotifier
	OutputDir string
	LogDir    string
	Logger    *slog.Logger
}

// Schedule is a Recording's mutable identity and timing, as accepted by
// New and Update.
type Schedule struct {
	Name      string
	URL       string
	StartTime time.Time
	Duration  time.Duration
}

// Snapshot is a point-in-time, race-free view of a Supervisor's state.
type Snapshot struct {
	ID           string
	Schedule     Schedule
	Status       Status
	ErrorMessage string
	AttemptPaths []string
	IgnoreProbe  bool
	Progress     transcoder.Progress
}

// Supervisor owns the full lifecycle of one Recording. Construct with New,
// which also registers it; run it with Serve to drive the state machine.
type Supervisor struct {
	id       string
	deps     Deps
	settings settings.Settings
	logger   *slog.Logger

	mu               sync.Mutex
	sched            Schedule
	initialStartTime time.Time
	status           Status
	errorMessage     string
	ignoreProbe      bool
	attemptPaths     []string
	retryCount       int
	progress         transcoder.Progress
	handle           *transcoder.Handle

	rearm    chan struct{}
	cancelFn context.CancelFunc
	stopped  chan struct{}
}

// New constructs a Supervisor for one Recording and registers it in
// deps.Registry under id. Registration enforces the one-instance-per-id
// invariant; New returns an error if id is already registered.
func New(id string, sched Schedule, s settings.Settings, deps Deps) (*Supervisor, error) {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	sup := &Supervisor{
		id:       id,
		deps:     deps,
		settings: s,
		logger:   logger,
		sched:    sched,
		status:   StatusScheduled,
		rearm:    make(chan struct{}, 1),
		stopped:  make(chan struct{}),
	}
	if deps.Registry != nil {
		if err := deps.Registry.Register(id, sup); err != nil {
			return nil, err
		}
	}
	return sup, nil
}

// ID returns the recording id this Supervisor owns.
func (s *Supervisor) ID() string { return s.id }

// wake signals the scheduled-wait loop to recompute without blocking if a
// signal is already pending.
func (s *Supervisor) wake() {
	select {
	case s.rearm <- struct{}{}:
	default:
	}
}

// Start forces an immediate transition out of "scheduled" by pulling the
// start time to now. It is a no-op that reports an error if the recording
// is not currently scheduled.
func (s *Supervisor) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.status != StatusScheduled {
		return fmt.Errorf("recording: cannot start from status %q", s.status)
	}
	s.sched.StartTime = time.Now()
	s.wake()
	return nil
}

// Stop requests cancellation. It is a no-op from a terminal state.
func (s *Supervisor) Stop() error {
	s.mu.Lock()
	terminal := s.status.Terminal()
	cancel := s.cancelFn
	s.mu.Unlock()
	if terminal || cancel == nil {
		return nil
	}
	cancel()
	return nil
}

// Update mutates name/URL/startTime/duration. Only accepted while
// scheduled; any other status rejects the update as an error. Changing
// startTime re-arms the scheduled wait.
func (s *Supervisor) Update(sched Schedule) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.status != StatusScheduled {
		return fmt.Errorf("recording: cannot update from status %q", s.status)
	}
	timeChanged := !sched.StartTime.IsZero() && !sched.StartTime.Equal(s.sched.StartTime)
	s.sched = sched
	if timeChanged {
		s.wake()
	}
	return nil
}

// EnableLiveCheck clears the ignore-probe flag so the starting phase waits
// for a live probe before recording.
func (s *Supervisor) EnableLiveCheck() {
	s.mu.Lock()
	s.ignoreProbe = false
	s.mu.Unlock()
}

// DisableLiveCheck sets the ignore-probe flag so the starting phase skips
// straight to recording without waiting on a probe.
func (s *Supervisor) DisableLiveCheck() {
	s.mu.Lock()
	s.ignoreProbe = true
	s.mu.Unlock()
}

// Snapshot returns a race-free copy of the current state.
func (s *Supervisor) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	paths := make([]string, len(s.attemptPaths))
	copy(paths, s.attemptPaths)
	return Snapshot{
		ID:           s.id,
		Schedule:     s.sched,
		Status:       s.status,
		ErrorMessage: s.errorMessage,
		AttemptPaths: paths,
		IgnoreProbe:  s.ignoreProbe,
		Progress:     s.progress,
	}
}

// remainingDuration implements spec.md 4.5's remaining-duration formula:
// max(0, duration - (now - initialStartTime)).
func (s *Supervisor) remainingDuration() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.remainingLocked()
}

func (s *Supervisor) remainingLocked() time.Duration {
	elapsed := time.Since(s.initialStartTime)
	remaining := s.sched.Duration - elapsed
	if remaining < 0 {
		return 0
	}
	return remaining
}

// Serve runs the state machine until it reaches a terminal status or ctx
// is cancelled, satisfying suture.Service.
func (s *Supervisor) Serve(parentCtx context.Context) error {
	ctx, cancel := context.WithCancel(parentCtx)
	s.mu.Lock()
	s.cancelFn = cancel
	status := s.status
	s.mu.Unlock()
	defer cancel()
	defer close(s.stopped)

	for {
		switch status {
		case StatusScheduled:
			status = s.waitScheduled(ctx)
		case StatusStarting:
			status = s.runStarting(ctx)
		case StatusRecording, StatusRetrying:
			status = s.runRecording(ctx)
		default:
			s.finalize(ctx)
			if s.deps.Registry != nil {
				s.deps.Registry.Remove(s.id)
			}
			return nil
		}
		s.mu.Lock()
		s.status = status
		s.mu.Unlock()
	}
}

// waitScheduled blocks until startTime arrives, a rearm signal requires
// recomputing the wait, or ctx is cancelled.
func (s *Supervisor) waitScheduled(ctx context.Context) Status {
	for {
		s.mu.Lock()
		delay := time.Until(s.sched.StartTime)
		s.mu.Unlock()
		if delay <= 0 {
			s.mu.Lock()
			s.initialStartTime = time.Now()
			s.mu.Unlock()
			return StatusStarting
		}

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return StatusCancelled
		case <-timer.C:
			s.mu.Lock()
			s.initialStartTime = time.Now()
			s.mu.Unlock()
			return StatusStarting
		case <-s.rearm:
			timer.Stop()
		}
	}
}

// runStarting implements the probe waiter of spec.md 4.5: wait for a live
// probe (or ignore-probe) before recording, retrying on a fixed interval
// and finalizing once the attempt budget or remaining duration runs out.
func (s *Supervisor) runStarting(ctx context.Context) Status {
	s.mu.Lock()
	ignore := s.ignoreProbe
	url := s.sched.URL
	delay := time.Duration(s.settings.ReconnectDelay) * time.Second
	maxAttempts := s.settings.ReconnectAttempts
	s.mu.Unlock()

	if ignore {
		return StatusRecording
	}

	if live, cancelled := s.probeOnce(ctx, url); live {
		return StatusRecording
	} else if cancelled {
		return StatusCancelled
	}

	ticker := time.NewTicker(delay)
	defer ticker.Stop()
	attempts := 0
	for {
		select {
		case <-ctx.Done():
			return StatusCancelled
		case <-ticker.C:
			attempts++
			s.mu.Lock()
			ignore := s.ignoreProbe
			s.mu.Unlock()
			if ignore {
				return StatusRecording
			}
			if live, cancelled := s.probeOnce(ctx, url); live {
				return StatusRecording
			} else if cancelled {
				return StatusCancelled
			}
			if maxAttempts != -1 && attempts >= maxAttempts {
				return s.finalizeOnExhaustion()
			}
			if s.remainingDuration() <= 0 {
				return s.finalizeOnExhaustion()
			}
		}
	}
}

func (s *Supervisor) probeOnce(ctx context.Context, url string) (live bool, cancelled bool) {
	if s.deps.Prober == nil {
		return true, false
	}
	res := s.deps.Prober.Probe(ctx, url, 5*time.Second)
	if ctx.Err() != nil {
		return false, true
	}
	return res.Status == rtsp.StatusLive, false
}

// finalizeOnExhaustion applies the shared rule used by both the probe
// waiter and the retry loop: completed if at least one segment exists on
// disk, failed otherwise.
func (s *Supervisor) finalizeOnExhaustion() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.attemptPaths) > 0 {
		return StatusCompleted
	}
	if s.errorMessage == "" {
		s.errorMessage = fmt.Sprintf("stream %q never became live", s.sched.URL)
	}
	return StatusFailed
}

// runRecording spawns one subprocess per attempt and retries within the
// remaining duration and attempt budget, per spec.md 4.5's recording and
// retrying transitions.
func (s *Supervisor) runRecording(ctx context.Context) Status {
	remaining := s.remainingDuration()
	if remaining <= 0 {
		return StatusCompleted
	}

	outPath := s.nextAttemptPath()
	s.mu.Lock()
	s.attemptPaths = append(s.attemptPaths, outPath)
	url := s.sched.URL
	st := s.settings
	s.mu.Unlock()

	var logWriter io.Writer
	if s.deps.LogDir != "" {
		if w, err := transcoder.NewRotatingWriter(transcoder.LogPath(s.deps.LogDir, s.id), 0, 0); err == nil {
			logWriter = w
			defer w.Close()
		}
	}

	handle, err := s.deps.Driver.Start(ctx, st, url, outPath, int(remaining.Seconds()), logWriter)
	if err != nil {
		s.mu.Lock()
		s.errorMessage = err.Error()
		s.mu.Unlock()
		return s.finalizeOnExhaustion()
	}

	s.mu.Lock()
	s.handle = handle
	s.mu.Unlock()

	select {
	case <-ctx.Done():
		handle.Stop(5 * time.Second)
		<-handle.Done()
		s.clearProgress()
		return StatusCancelled
	case res := <-handle.Done():
		s.clearProgress()
		if res.Err != nil {
			s.setError(res.Err.Error())
		} else if res.ExitCode != 0 {
			s.setError(fmt.Sprintf("transcoder exited %d: %s", res.ExitCode, res.LastLine))
		}

		if s.remainingDuration() <= 0 {
			return StatusCompleted
		}

		s.mu.Lock()
		s.retryCount++
		retry := s.retryCount
		budget := s.settings.ReconnectAttempts
		s.status = StatusRetrying
		s.mu.Unlock()
		if budget != -1 && retry > budget {
			return s.finalizeOnExhaustion()
		}
		return StatusStarting
	}
}

func (s *Supervisor) setError(msg string) {
	s.mu.Lock()
	s.errorMessage = msg
	s.mu.Unlock()
}

func (s *Supervisor) clearProgress() {
	s.mu.Lock()
	s.progress = transcoder.Progress{}
	s.handle = nil
	s.mu.Unlock()
}

// nextAttemptPath builds the path for the next capture attempt, per
// spec.md's on-disk layout: <sanitized_name>_<iso_timestamp>_attempt<k>.<ext>.
// Segments live alongside the eventual stitched file so the concat demuxer
// can reference them by basename.
func (s *Supervisor) nextAttemptPath() string {
	s.mu.Lock()
	name := Sanitize(s.sched.Name)
	attempt := len(s.attemptPaths) + 1
	ext := s.settings.Container.Extension()
	s.mu.Unlock()
	ts := time.Now().Format("2006-01-02T15-04-05.000")
	return filepath.Join(s.deps.OutputDir, fmt.Sprintf("%s_%s_attempt%d.%s", name, ts, attempt, ext))
}

// finalPath is the canonical stitched output path, <dir>/<sanitizedName>_<id>.<ext>.
func (s *Supervisor) finalPath() string {
	s.mu.Lock()
	name := Sanitize(s.sched.Name)
	ext := s.settings.Container.Extension()
	s.mu.Unlock()
	return filepath.Join(s.deps.OutputDir, fmt.Sprintf("%s_%s.%s", name, s.id, ext))
}

// finalize stitches any captured segments into the canonical output path
// and writes the terminal outcome through Persistence exactly once, per
// spec.md 4.5. Stitch failure does not demote a successful terminal
// status; it is appended to errorMessage instead.
func (s *Supervisor) finalize(ctx context.Context) {
	snap := s.Snapshot()

	var outputPath string
	if len(snap.AttemptPaths) > 0 {
		dest := s.finalPath()
		if err := s.deps.Driver.Stitch(ctx, snap.AttemptPaths, dest); err != nil {
			s.mu.Lock()
			if s.errorMessage != "" {
				s.errorMessage += "; "
			}
			s.errorMessage += "stitch: " + err.Error()
			s.mu.Unlock()
		} else {
			outputPath = dest
		}
	}

	if snap.Status == StatusCancelled && snap.ErrorMessage == "" {
		s.setError("cancelled")
		snap = s.Snapshot()
	}

	if s.deps.Repo == nil {
		return
	}

	success := persistence.SuccessFalse
	var completedAt *time.Time
	if snap.Status == StatusCompleted {
		success = persistence.SuccessTrue
		t := time.Now()
		completedAt = &t
		if s.deps.Custodian != nil {
			s.deps.Custodian.NotifyCompletion()
		}
	}

	err := s.deps.Repo.Update(s.id, func(rec *persistence.Recording) {
		rec.Success = success
		rec.OutputPath = outputPath
		rec.CompletedAt = completedAt
		rec.ErrorMessage = snap.ErrorMessage
	})
	if err != nil {
		s.logger.Error("recording: failed to persist terminal state", "id", s.id, "error", err)
	}
}
