// SPDX-License-Identifier: MIT

package transcoder

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"runtime"
	"testing"
	"time"

	"github.com/gnimrodg/rtsp-recorder/internal/settings"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// writeFakeBinary writes a shell script standing in for the transcoder
// binary, so these tests exercise Driver's subprocess plumbing without
// depending on a real ffmpeg install. script is the shell body.
func writeFakeBinary(t *testing.T, script string) string {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("fake binary is a shell script, not supported on windows")
	}
	path := filepath.Join(t.TempDir(), "fake-transcoder.sh")
	body := "#!/bin/sh\n" + script
	require.NoError(t, os.WriteFile(path, []byte(body), 0o750))
	return path
}

func TestDriverStartCapturesProgressAndLog(t *testing.T) {
	bin := writeFakeBinary(t, `
echo "frame=   10 fps=25 time=00:00:01.00 bitrate= 128.0kbits/s speed=1.0x" 1>&2
echo "frame=   20 fps=25 time=00:00:02.00 bitrate= 128.0kbits/s speed=1.0x" 1>&2
exit 0
`)
	d := New(Config{BinaryPath: bin})
	s := settings.Defaults()

	var logBuf bytes.Buffer
	h, err := d.Start(context.Background(), s, "rtsp://example/stream", filepath.Join(t.TempDir(), "out.mp4"), 10, &logBuf)
	require.NoError(t, err)

	select {
	case res := <-h.Done():
		assert.Equal(t, 0, res.ExitCode)
		assert.NoError(t, res.Err)
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for subprocess exit")
	}

	assert.Equal(t, 20, h.Progress().Frame)
	assert.Contains(t, logBuf.String(), "frame=   20")
}

func TestDriverStartNonZeroExit(t *testing.T) {
	bin := writeFakeBinary(t, `
echo "some error from the transcoder" 1>&2
exit 7
`)
	d := New(Config{BinaryPath: bin})
	s := settings.Defaults()

	h, err := d.Start(context.Background(), s, "rtsp://example/stream", filepath.Join(t.TempDir(), "out.mp4"), 10, nil)
	require.NoError(t, err)

	res := <-h.Done()
	assert.Equal(t, 7, res.ExitCode)
	assert.Equal(t, "some error from the transcoder", res.LastLine)
}

func TestDriverStartInvalidSettingsFailsFast(t *testing.T) {
	d := New(Config{BinaryPath: "irrelevant"})
	s := settings.Defaults()
	s.ReconnectAttempts = -2 // only -1 or >= 0 is valid

	_, err := d.Start(context.Background(), s, "rtsp://example/stream", "/tmp/out.mp4", 10, nil)
	assert.Error(t, err)
}

func TestDriverStopSendsInterruptThenKills(t *testing.T) {
	bin := writeFakeBinary(t, `
trap 'exit 0' INT
sleep 30
`)
	d := New(Config{BinaryPath: bin})
	s := settings.Defaults()

	h, err := d.Start(context.Background(), s, "rtsp://example/stream", filepath.Join(t.TempDir(), "out.mp4"), 30, nil)
	require.NoError(t, err)

	h.Stop(2 * time.Second)

	select {
	case <-h.Done():
	case <-time.After(5 * time.Second):
		t.Fatal("subprocess did not exit after Stop")
	}
}
