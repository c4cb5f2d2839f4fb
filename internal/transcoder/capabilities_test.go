// SPDX-License-Identifier: MIT

package transcoder

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseHWAccels(t *testing.T) {
	out := "Hardware acceleration methods:\nvdpau\ncuda\nvaapi\nqsv\n"
	accels := parseHWAccels(out)
	assert.Equal(t, []string{"vdpau", "cuda", "vaapi", "qsv"}, accels)
}

func TestParseEncoders(t *testing.T) {
	out := "Encoders:\n" +
		" V..... libx264              libx264 H.264 / AVC / MPEG-4 AVC\n" +
		" V..... h264_nvenc            NVIDIA NVENC H.264 encoder\n" +
		" A..... aac                   AAC (Advanced Audio Coding)\n"
	encoders := parseEncoders(out)
	assert.Contains(t, encoders, "libx264")
	assert.Contains(t, encoders, "h264_nvenc")
	assert.Contains(t, encoders, "aac")
}

func TestCapabilitiesHasHelpers(t *testing.T) {
	c := Capabilities{HWAccels: []string{"cuda", "qsv"}, Encoders: []string{"libx264", "h264_nvenc"}}
	assert.True(t, c.HasHWAccel("cuda"))
	assert.False(t, c.HasHWAccel("vaapi"))
	assert.True(t, c.HasEncoder("libx264"))
	assert.False(t, c.HasEncoder("libvpx-vp9"))
}
