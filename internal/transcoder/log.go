// SPDX-License-Identifier: MIT

package transcoder

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

const (
	// DefaultMaxLogSize is the default maximum per-recording log size
	// before rotation.
	DefaultMaxLogSize = 10 * 1024 * 1024

	// DefaultMaxLogFiles is the default number of rotated logs kept per
	// recording.
	DefaultMaxLogFiles = 3
)

// RotatingWriter is an io.Writer that rotates a recording's log file once it
// exceeds a size limit, keeping a bounded number of previous rotations.
type RotatingWriter struct {
	path     string
	maxSize  int64
	maxFiles int

	mu   sync.Mutex
	file *os.File
	size int64
}

// NewRotatingWriter opens (creating if needed) the log file at path.
func NewRotatingWriter(path string, maxSize int64, maxFiles int) (*RotatingWriter, error) {
	if maxSize <= 0 {
		maxSize = DefaultMaxLogSize
	}
	if maxFiles <= 0 {
		maxFiles = DefaultMaxLogFiles
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return nil, fmt.Errorf("transcoder: create log directory: %w", err)
	}
	w := &RotatingWriter{path: path, maxSize: maxSize, maxFiles: maxFiles}
	if err := w.openFile(); err != nil {
		return nil, err
	}
	return w, nil
}

// Write implements io.Writer.
func (w *RotatingWriter) Write(p []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.size+int64(len(p)) > w.maxSize {
		if err := w.rotate(); err != nil {
			// Keep writing to the oversized file rather than lose output.
			_ = err
		}
	}
	n, err := w.file.Write(p)
	w.size += int64(n)
	return n, err
}

// Close closes the underlying file.
func (w *RotatingWriter) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.file == nil {
		return nil
	}
	err := w.file.Close()
	w.file = nil
	return err
}

func (w *RotatingWriter) openFile() error {
	f, err := os.OpenFile(w.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o640)
	if err != nil {
		return fmt.Errorf("transcoder: open log file: %w", err)
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return fmt.Errorf("transcoder: stat log file: %w", err)
	}
	w.file = f
	w.size = info.Size()
	return nil
}

// rotate must be called with w.mu held.
func (w *RotatingWriter) rotate() error {
	if w.file != nil {
		if err := w.file.Close(); err != nil {
			return err
		}
		w.file = nil
	}
	for i := w.maxFiles - 1; i >= 1; i-- {
		old := w.rotatedPath(i)
		newp := w.rotatedPath(i + 1)
		if _, err := os.Stat(old); err == nil {
			_ = os.Rename(old, newp)
		}
	}
	if err := os.Rename(w.path, w.rotatedPath(1)); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("transcoder: rotate log file: %w", err)
	}
	for i := w.maxFiles + 1; i <= w.maxFiles+5; i++ {
		os.Remove(w.rotatedPath(i))
	}
	return w.openFile()
}

func (w *RotatingWriter) rotatedPath(n int) string {
	return fmt.Sprintf("%s.%d", w.path, n)
}

// LogPath returns the per-recording log file path for a recording id under
// logDir.
func LogPath(logDir, recordingID string) string {
	safe := strings.Map(func(r rune) rune {
		if (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') || r == '-' || r == '_' {
			return r
		}
		return '_'
	}, recordingID)
	return filepath.Join(logDir, fmt.Sprintf("transcoder-%s.log", safe))
}
