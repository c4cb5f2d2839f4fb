// SPDX-License-Identifier: MIT

package transcoder

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/gnimrodg/rtsp-recorder/internal/settings"
)

// Stitch combines N segment paths on disk into finalPath, per spec.md 4.4
// step 4. With a single segment, the file is renamed in place. With more
// than one, the transcoder is invoked in concat-demuxer mode with -c copy
// against a temporary list file. Post-stitch, the destination must be at
// least 90% of the sum of segment sizes or the stitch is reported as
// suspicious via ErrSuspiciousStitch. On success, segment files are
// deleted.
func (d *Driver) Stitch(ctx context.Context, segments []string, finalPath string) error {
	if len(segments) == 0 {
		return ErrNoSegments
	}

	if len(segments) == 1 {
		if err := os.Rename(segments[0], finalPath); err != nil {
			return fmt.Errorf("transcoder: stitch rename: %w", err)
		}
		return nil
	}

	segSize, err := sumSizes(segments)
	if err != nil {
		return fmt.Errorf("transcoder: stitch stat segments: %w", err)
	}

	listFile, err := writeConcatList(finalPath, segments)
	if err != nil {
		return fmt.Errorf("transcoder: stitch list file: %w", err)
	}
	defer os.Remove(listFile)

	args := settings.BuildStitchArgs(listFile, finalPath)
	cmd := exec.CommandContext(ctx, d.binaryPath, args...)
	out, runErr := cmd.CombinedOutput()
	if runErr != nil {
		return fmt.Errorf("transcoder: stitch invocation failed: %w (output: %s)", runErr, trimOutput(out))
	}

	info, err := os.Stat(finalPath)
	if err != nil {
		return fmt.Errorf("transcoder: stitch stat output: %w", err)
	}
	if segSize > 0 && float64(info.Size()) < 0.9*float64(segSize) {
		return ErrSuspiciousStitch
	}

	for _, seg := range segments {
		if err := os.Remove(seg); err != nil {
			return fmt.Errorf("transcoder: stitch cleanup: %w", err)
		}
	}
	return nil
}

func sumSizes(paths []string) (int64, error) {
	var total int64
	for _, p := range paths {
		info, err := os.Stat(p)
		if err != nil {
			return 0, err
		}
		total += info.Size()
	}
	return total, nil
}

// writeConcatList writes a transcoder concat-demuxer list file next to
// finalPath, with one "file '<basename>'" line per segment, quotes escaped
// per the demuxer's own quoting rule.
func writeConcatList(finalPath string, segments []string) (string, error) {
	dir := filepath.Dir(finalPath)
	listPath := filepath.Join(dir, fmt.Sprintf(".%s.concat", filepath.Base(finalPath)))

	var b strings.Builder
	for _, seg := range segments {
		name := filepath.Base(seg)
		escaped := strings.ReplaceAll(name, "'", `'\''`)
		fmt.Fprintf(&b, "file '%s'\n", escaped)
	}
	if err := os.WriteFile(listPath, []byte(b.String()), 0o640); err != nil {
		return "", err
	}
	return listPath, nil
}

func trimOutput(b []byte) string {
	s := string(b)
	if len(s) > 500 {
		s = s[len(s)-500:]
	}
	return strings.TrimSpace(s)
}
