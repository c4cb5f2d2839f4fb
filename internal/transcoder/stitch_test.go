// SPDX-License-Identifier: MIT

package transcoder

import (
	"context"
	"os"
	"path/filepath"
	"runtime"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStitchSingleSegmentRenames(t *testing.T) {
	dir := t.TempDir()
	seg := filepath.Join(dir, "seg1.mp4")
	require.NoError(t, os.WriteFile(seg, []byte("segment-bytes"), 0o640))

	d := New(Config{BinaryPath: "unused"})
	final := filepath.Join(dir, "final.mp4")
	err := d.Stitch(context.Background(), []string{seg}, final)
	require.NoError(t, err)

	_, err = os.Stat(seg)
	assert.True(t, os.IsNotExist(err))
	data, err := os.ReadFile(final)
	require.NoError(t, err)
	assert.Equal(t, "segment-bytes", string(data))
}

func TestStitchNoSegmentsErrors(t *testing.T) {
	d := New(Config{BinaryPath: "unused"})
	err := d.Stitch(context.Background(), nil, "/tmp/out.mp4")
	assert.ErrorIs(t, err, ErrNoSegments)
}

func TestStitchMultiSegmentInvokesConcatAndCleansUp(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("fake binary is a shell script, not supported on windows")
	}
	dir := t.TempDir()
	seg1 := filepath.Join(dir, "seg1.mp4")
	seg2 := filepath.Join(dir, "seg2.mp4")
	require.NoError(t, os.WriteFile(seg1, []byte("0123456789"), 0o640)) // 10 bytes
	require.NoError(t, os.WriteFile(seg2, []byte("0123456789"), 0o640)) // 10 bytes

	final := filepath.Join(dir, "final.mp4")
	// Fake transcoder: write an output file at least 90% of the 20-byte
	// segment sum, ignoring its concat-list argument.
	bin := writeFakeBinary(t, `
for a in "$@"; do
  last="$a"
done
printf '01234567890123456789' > "$last"
exit 0
`)

	d := New(Config{BinaryPath: bin})
	err := d.Stitch(context.Background(), []string{seg1, seg2}, final)
	require.NoError(t, err)

	_, err = os.Stat(seg1)
	assert.True(t, os.IsNotExist(err))
	_, err = os.Stat(seg2)
	assert.True(t, os.IsNotExist(err))
	data, readErr := os.ReadFile(final)
	require.NoError(t, readErr)
	assert.Len(t, data, 20)
}

func TestStitchSuspiciousSizeReportsError(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("fake binary is a shell script, not supported on windows")
	}
	dir := t.TempDir()
	seg1 := filepath.Join(dir, "seg1.mp4")
	seg2 := filepath.Join(dir, "seg2.mp4")
	require.NoError(t, os.WriteFile(seg1, []byte("0123456789"), 0o640))
	require.NoError(t, os.WriteFile(seg2, []byte("0123456789"), 0o640))

	final := filepath.Join(dir, "final.mp4")
	// Fake transcoder writes a suspiciously small output (well under 90%
	// of the 20-byte segment sum).
	bin := writeFakeBinary(t, `
for a in "$@"; do
  last="$a"
done
printf '1' > "$last"
exit 0
`)

	d := New(Config{BinaryPath: bin})
	err := d.Stitch(context.Background(), []string{seg1, seg2}, final)
	assert.ErrorIs(t, err, ErrSuspiciousStitch)

	// Segments must survive a suspicious stitch for manual recovery.
	_, err = os.Stat(seg1)
	assert.NoError(t, err)
}
