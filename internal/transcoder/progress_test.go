// SPDX-License-Identifier: MIT

package transcoder

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestParseProgressLineFull(t *testing.T) {
	line := "frame=  123 fps= 25 q=28.0 size=    1234kB time=00:00:12.34 bitrate= 800.0kbits/s speed=1.02x"
	p, ok := parseProgressLine(line)
	assert.True(t, ok)
	assert.Equal(t, 123, p.Frame)
	assert.Equal(t, 25.0, p.FPS)
	assert.InDelta(t, (12*time.Second + 340*time.Millisecond).Seconds(), p.Time.Seconds(), 0.001)
	assert.Equal(t, 800.0, p.BitrateKBPS)
	assert.Equal(t, 1.02, p.Speed)
}

func TestParseProgressLineNAFields(t *testing.T) {
	line := "frame=    1 fps=0.0 q=-1.0 size=N/A time=00:00:00.04 bitrate=N/A speed=N/A"
	p, ok := parseProgressLine(line)
	assert.True(t, ok)
	assert.Equal(t, 1, p.Frame)
	assert.Equal(t, 0.0, p.BitrateKBPS)
	assert.Equal(t, 0.0, p.Speed)
}

func TestParseProgressLineNotAProgressLine(t *testing.T) {
	_, ok := parseProgressLine("Input #0, rtsp, from 'rtsp://example/stream':")
	assert.False(t, ok)
}

func TestParseProgressLineBareBitrateNoKbits(t *testing.T) {
	line := "frame=   10 fps=10 time=00:00:01.00 bitrate= 64.0kb/s speed=1.0x"
	p, ok := parseProgressLine(line)
	assert.True(t, ok)
	assert.Equal(t, 64.0, p.BitrateKBPS)
}

func TestParseFFmpegTime(t *testing.T) {
	d, err := parseFFmpegTime("01:02:03.50")
	assert.NoError(t, err)
	want := time.Hour + 2*time.Minute + 3*time.Second + 500*time.Millisecond
	assert.InDelta(t, want.Seconds(), d.Seconds(), 0.001)
}

func TestParseFFmpegTimeInvalid(t *testing.T) {
	_, err := parseFFmpegTime("not-a-time")
	assert.Error(t, err)
}
