// SPDX-License-Identifier: MIT

package settings

import "fmt"

// hwaccelInputFlags returns the input-side hwaccel flags, or nil for none.
func hwaccelInputFlags(h HWAccel) []string {
	switch h {
	case HWAccelNvidia:
		return []string{"-hwaccel", "cuda", "-hwaccel_output_format", "cuda"}
	case HWAccelIntel:
		return []string{"-hwaccel", "qsv", "-hwaccel_output_format", "qsv"}
	case HWAccelAMD:
		return []string{"-hwaccel", "amf"}
	case HWAccelAuto:
		return []string{"-hwaccel", "auto"}
	default: // HWAccelNone
		return nil
	}
}

// resolveVideoEncoder maps (codec, hwaccel) to a concrete ffmpeg -c:v value.
// "copy" always short-circuits regardless of hwaccel. Combinations with no
// hardware encoder in the resolution table (e.g. vp9 on nvidia/amd) fall
// back to the software encoder, since no such hardware encoder exists.
func resolveVideoEncoder(codec VideoCodec, hw HWAccel) string {
	if codec == VideoCopy {
		return "copy"
	}
	software := map[VideoCodec]string{
		VideoH264: "libx264",
		VideoH265: "libx265",
		VideoVP9:  "libvpx-vp9",
	}
	switch hw {
	case HWAccelNvidia:
		switch codec {
		case VideoH264:
			return "h264_nvenc"
		case VideoH265:
			return "hevc_nvenc"
		}
	case HWAccelIntel:
		switch codec {
		case VideoH264:
			return "h264_qsv"
		case VideoH265:
			return "hevc_qsv"
		case VideoVP9:
			return "vp9_qsv"
		}
	case HWAccelAMD:
		switch codec {
		case VideoH264:
			return "h264_amf"
		case VideoH265:
			return "hevc_amf"
		}
	}
	return software[codec]
}

// resolveAudioEncoder maps an audio codec selection to an ffmpeg -c:a value.
func resolveAudioEncoder(codec AudioCodec) string {
	switch codec {
	case AudioCopy:
		return "copy"
	case AudioAAC:
		return "aac"
	case AudioMP3:
		return "libmp3lame"
	case AudioOpus:
		return "libopus"
	default:
		return "copy"
	}
}

// containerFlags returns mux flags appended just before -y <outPath>.
func containerFlags(c Container) []string {
	if c == ContainerMP4 {
		return []string{"-movflags", "+faststart"}
	}
	return nil
}

// Extension returns the output file extension for a container format.
func (c Container) Extension() string { return string(c) }

// BuildTranscoderArgs builds the argument vector for one capture, per
// spec.md 6's Invocation contract:
//
//	[hwaccel-input]*, -rtsp_transport <t>, -rtsp_flags prefer_tcp,
//	-i <url>, -c:v <vcodec>, -c:a <acodec>, -t <duration>,
//	[container-flags]*, -y, <outPath>
func (s Settings) BuildTranscoderArgs(url, outPath string, durationSecs int) []string {
	var args []string
	args = append(args, hwaccelInputFlags(s.HWAccel)...)
	args = append(args,
		"-rtsp_transport", string(s.RTSPTransport),
		"-rtsp_flags", "prefer_tcp",
		"-i", url,
		"-c:v", resolveVideoEncoder(s.VideoCodec, s.HWAccel),
		"-c:a", resolveAudioEncoder(s.AudioCodec),
		"-t", fmt.Sprintf("%d", durationSecs),
	)
	args = append(args, containerFlags(s.Container)...)
	args = append(args, "-y", outPath)
	return args
}

// BuildStitchArgs builds the concat-demuxer invocation described in
// spec.md 6: -f concat -safe 0 -i <listfile> -c copy -y <finalPath>.
func BuildStitchArgs(listFile, finalPath string) []string {
	return []string{"-f", "concat", "-safe", "0", "-i", listFile, "-c", "copy", "-y", finalPath}
}
