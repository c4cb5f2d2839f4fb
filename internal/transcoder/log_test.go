// SPDX-License-Identifier: MIT

package transcoder

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRotatingWriterRotatesPastMaxSize(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "sub", "rec.log")

	w, err := NewRotatingWriter(path, 10, 2)
	require.NoError(t, err)
	defer w.Close()

	_, err = w.Write([]byte("0123456789")) // exactly fills the file
	require.NoError(t, err)
	_, err = w.Write([]byte("more")) // triggers rotation first
	require.NoError(t, err)

	_, err = os.Stat(path + ".1")
	assert.NoError(t, err, "expected a rotated .1 file")

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "more", string(data))
}

func TestRotatingWriterShiftsOlderFiles(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "rec.log")

	w, err := NewRotatingWriter(path, 5, 2)
	require.NoError(t, err)
	defer w.Close()

	for i := 0; i < 3; i++ {
		_, err = w.Write([]byte("123456")) // always exceeds the 5-byte limit
		require.NoError(t, err)
	}

	_, err = os.Stat(path + ".1")
	assert.NoError(t, err)
	_, err = os.Stat(path + ".2")
	assert.NoError(t, err)
	// maxFiles=2, so a .3 must never appear.
	_, err = os.Stat(path + ".3")
	assert.True(t, os.IsNotExist(err))
}

func TestLogPathSanitizesRecordingID(t *testing.T) {
	got := LogPath("/var/log/recorder", "rec/../../etc")
	assert.Equal(t, filepath.Join("/var/log/recorder", "transcoder-rec_______etc.log"), got)
}
