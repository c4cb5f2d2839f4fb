// SPDX-License-Identifier: MIT

// Package transcoder spawns and supervises the media-transcoder (ffmpeg)
// subprocess that performs one capture, per spec.md 4.4. It builds the
// subprocess's argument vector from a Settings document, scans its stderr
// for progress lines, and exposes lifecycle events (exit, error) plus a
// segment-stitching operation for finalizing a recording's output file.
package transcoder

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"sync"
	"syscall"
	"time"

	"github.com/gnimrodg/rtsp-recorder/internal/settings"
)

// Result reports how a subprocess exited.
type Result struct {
	ExitCode int
	Signal   string
	Err      error // non-nil for spawn-time or wait-time errors other than a plain non-zero exit
	LastLine string
}

// Config configures a Driver.
type Config struct {
	BinaryPath string
	Logger     *slog.Logger
}

// Driver spawns media-transcoder subprocesses.
type Driver struct {
	binaryPath string
	logger     *slog.Logger
}

// New builds a Driver. An empty BinaryPath defaults to "ffmpeg" found on
// PATH; a nil Logger uses slog.Default().
func New(cfg Config) *Driver {
	bin := cfg.BinaryPath
	if bin == "" {
		bin = "ffmpeg"
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Driver{binaryPath: bin, logger: logger}
}

// Handle is a running (or just-exited) transcoder subprocess.
type Handle struct {
	cmd *exec.Cmd

	mu       sync.Mutex
	progress Progress

	done chan Result
}

// Start builds the argument vector for one capture from s and spawns the
// transcoder binary against it, per spec.md 4.4 step 1. logWriter receives
// the subprocess's stderr verbatim, one line at a time; it may be nil.
//
// ctx is accepted for symmetry with the rest of the package's blocking
// calls but is not wired into exec.Cmd's own cancellation: exec.CommandContext
// would SIGKILL the subprocess the instant ctx is done, racing the graceful
// interrupt-then-timeout sequence Handle.Stop performs. Shutdown goes through
// Handle.Stop exclusively.
func (d *Driver) Start(ctx context.Context, s settings.Settings, rtspURL, outPath string, durationSecs int, logWriter io.Writer) (*Handle, error) {
	if err := s.Validate(); err != nil {
		return nil, fmt.Errorf("transcoder: build arguments: %w", err)
	}
	args := s.BuildTranscoderArgs(rtspURL, outPath, durationSecs)

	cmd := exec.Command(d.binaryPath, args...)
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return nil, fmt.Errorf("transcoder: attach stderr: %w", err)
	}

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("transcoder: spawn: %w", err)
	}

	h := &Handle{cmd: cmd, done: make(chan Result, 1)}
	go h.monitor(stderr, logWriter, d.logger)
	return h, nil
}

// monitor scans the subprocess's stderr line by line, per spec.md 4.4 step
// 2: each line is appended verbatim to logWriter and scanned for a
// progress line (identified by the substring "frame="), which updates the
// handle's progress snapshot.
func (h *Handle) monitor(stderr io.Reader, logWriter io.Writer, logger *slog.Logger) {
	scanner := bufio.NewScanner(stderr)
	var lastLine string
	for scanner.Scan() {
		line := scanner.Text()
		lastLine = line
		if logWriter != nil {
			if _, err := fmt.Fprintln(logWriter, line); err != nil {
				logger.Debug("transcoder: log write failed", "error", err)
			}
		}
		if p, ok := parseProgressLine(line); ok {
			h.mu.Lock()
			h.progress = p
			h.mu.Unlock()
		}
	}

	res := Result{LastLine: lastLine}
	err := h.cmd.Wait()
	var exitErr *exec.ExitError
	switch {
	case err == nil:
	case errors.As(err, &exitErr):
		res.ExitCode = exitErr.ExitCode()
		if ws, ok := exitErr.Sys().(syscall.WaitStatus); ok && ws.Signaled() {
			res.Signal = ws.Signal().String()
		}
	default:
		res.Err = err
	}
	h.done <- res
	close(h.done)
}

// Progress returns the most recent progress snapshot.
func (h *Handle) Progress() Progress {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.progress
}

// Done resolves exactly once, with the subprocess's exit result, per
// spec.md 4.4 step 3.
func (h *Handle) Done() <-chan Result {
	return h.done
}

// Pid returns the subprocess's process id.
func (h *Handle) Pid() int {
	if h.cmd.Process == nil {
		return 0
	}
	return h.cmd.Process.Pid
}

// Stop sends the subprocess a graceful interrupt and force-kills it if it
// has not exited within timeout. It does not block; observe Done() for the
// actual exit.
func (h *Handle) Stop(timeout time.Duration) {
	proc := h.cmd.Process
	if proc == nil {
		return
	}
	// Already-exited process signals ESRCH here; that race is expected and
	// harmless.
	_ = proc.Signal(os.Interrupt)

	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	killCtx, cancel := context.WithTimeout(context.Background(), timeout)
	go func() {
		defer cancel()
		<-killCtx.Done()
		if killCtx.Err() == context.DeadlineExceeded {
			_ = proc.Kill()
		}
	}()
}
