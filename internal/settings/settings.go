// SPDX-License-Identifier: MIT

// Package settings implements the process-wide tunable record described in
// spec.md 4.2: a typed bag of options, a pure merge-with-defaults function,
// and the transcoder argument builder whose contract is spec.md 6's
// "Invocation contract".
//
// Generalized from the teacher's internal/config.Config / KoanfConfig pair:
// the same "typed struct + Merge + Validate" shape, retargeted from ALSA
// capture parameters to RTSP/transcoder parameters.
package settings

import "fmt"

// HWAccel selects the encoder family and input hwaccel flag.
type HWAccel string

const (
	HWAccelAuto   HWAccel = "auto"
	HWAccelNvidia HWAccel = "nvidia"
	HWAccelIntel  HWAccel = "intel"
	HWAccelAMD    HWAccel = "amd"
	HWAccelNone   HWAccel = "none"
)

// Container is the output container format.
type Container string

const (
	ContainerMP4 Container = "mp4"
	ContainerMKV Container = "mkv"
	ContainerAVI Container = "avi"
	ContainerTS  Container = "ts"
)

// VideoCodec is the requested video codec, independent of hwaccel.
type VideoCodec string

const (
	VideoCopy VideoCodec = "copy"
	VideoH264 VideoCodec = "h264"
	VideoH265 VideoCodec = "h265"
	VideoVP9  VideoCodec = "vp9"
)

// AudioCodec is the requested audio codec.
type AudioCodec string

const (
	AudioCopy AudioCodec = "copy"
	AudioAAC  AudioCodec = "aac"
	AudioMP3  AudioCodec = "mp3"
	AudioOpus AudioCodec = "opus"
)

// Transport is the RTSP transport used for -rtsp_transport.
type Transport string

const (
	TransportTCP  Transport = "tcp"
	TransportUDP  Transport = "udp"
	TransportHTTP Transport = "http"
)

// Settings is the typed record described in spec.md 4.2. Zero values are
// not meaningful on their own; Defaults() returns a complete record and
// Merge layers a partial override on top of it.
type Settings struct {
	TranscoderPath string `koanf:"transcoder_path"`

	HWAccel        HWAccel    `koanf:"hwaccel"`
	Container      Container  `koanf:"container"`
	VideoCodec     VideoCodec `koanf:"video_codec"`
	AudioCodec     AudioCodec `koanf:"audio_codec"`
	RTSPTransport  Transport  `koanf:"rtsp_transport"`

	DefaultDuration    int `koanf:"default_duration_seconds"`
	ReconnectAttempts  int `koanf:"reconnect_attempts"` // -1 infinite, 0 none
	ReconnectDelay     int `koanf:"reconnect_delay_seconds"`

	OutputDir      string `koanf:"output_dir"`
	MaxStorageGB   int    `koanf:"max_storage_gb"`   // 0 = unlimited
	AutoDeleteDays int    `koanf:"auto_delete_days"` // 0 = disabled

	PreviewEnabled  bool `koanf:"preview_enabled"`
	PreviewQuality  int  `koanf:"preview_quality"`
	PreviewInterval int  `koanf:"preview_interval_seconds"`
}

// Defaults returns the built-in baseline, the bottom layer that every
// loaded or merged Settings value is built on top of.
func Defaults() Settings {
	return Settings{
		TranscoderPath:    "ffmpeg",
		HWAccel:           HWAccelNone,
		Container:         ContainerMP4,
		VideoCodec:        VideoCopy,
		AudioCodec:        AudioCopy,
		RTSPTransport:     TransportTCP,
		DefaultDuration:   3600,
		ReconnectAttempts: 5,
		ReconnectDelay:    5,
		OutputDir:         "./recordings",
		MaxStorageGB:      0,
		AutoDeleteDays:    0,
		PreviewEnabled:    false,
		PreviewQuality:    3,
		PreviewInterval:   10,
	}
}

// Merge layers override on top of defaults, field by field: a zero-value
// field in override (empty string, zero int, false bool) is treated as "not
// set" and defaults's value wins. Because override's non-zero fields always
// win over defaults's, Merge is idempotent in the sense spec.md 8 requires:
// merge(defaults, merge(defaults, s)) == merge(defaults, s).
func Merge(defaults, override Settings) Settings {
	out := defaults

	if override.TranscoderPath != "" {
		out.TranscoderPath = override.TranscoderPath
	}
	if override.HWAccel != "" {
		out.HWAccel = override.HWAccel
	}
	if override.Container != "" {
		out.Container = override.Container
	}
	if override.VideoCodec != "" {
		out.VideoCodec = override.VideoCodec
	}
	if override.AudioCodec != "" {
		out.AudioCodec = override.AudioCodec
	}
	if override.RTSPTransport != "" {
		out.RTSPTransport = override.RTSPTransport
	}
	if override.DefaultDuration != 0 {
		out.DefaultDuration = override.DefaultDuration
	}
	if override.ReconnectAttempts != 0 {
		out.ReconnectAttempts = override.ReconnectAttempts
	}
	if override.ReconnectDelay != 0 {
		out.ReconnectDelay = override.ReconnectDelay
	}
	if override.OutputDir != "" {
		out.OutputDir = override.OutputDir
	}
	if override.MaxStorageGB != 0 {
		out.MaxStorageGB = override.MaxStorageGB
	}
	if override.AutoDeleteDays != 0 {
		out.AutoDeleteDays = override.AutoDeleteDays
	}
	if override.PreviewEnabled {
		out.PreviewEnabled = true
	}
	if override.PreviewQuality != 0 {
		out.PreviewQuality = override.PreviewQuality
	}
	if override.PreviewInterval != 0 {
		out.PreviewInterval = override.PreviewInterval
	}
	return out
}

// Validate checks internal consistency. Grounded on the teacher's
// Config.Validate: collect every violation rather than stopping at the
// first.
func (s Settings) Validate() error {
	var errs []string

	if s.TranscoderPath == "" {
		errs = append(errs, "transcoder path must not be empty")
	}
	switch s.HWAccel {
	case HWAccelAuto, HWAccelNvidia, HWAccelIntel, HWAccelAMD, HWAccelNone:
	default:
		errs = append(errs, fmt.Sprintf("unknown hwaccel %q", s.HWAccel))
	}
	switch s.Container {
	case ContainerMP4, ContainerMKV, ContainerAVI, ContainerTS:
	default:
		errs = append(errs, fmt.Sprintf("unknown container %q", s.Container))
	}
	switch s.VideoCodec {
	case VideoCopy, VideoH264, VideoH265, VideoVP9:
	default:
		errs = append(errs, fmt.Sprintf("unknown video codec %q", s.VideoCodec))
	}
	switch s.AudioCodec {
	case AudioCopy, AudioAAC, AudioMP3, AudioOpus:
	default:
		errs = append(errs, fmt.Sprintf("unknown audio codec %q", s.AudioCodec))
	}
	switch s.RTSPTransport {
	case TransportTCP, TransportUDP, TransportHTTP:
	default:
		errs = append(errs, fmt.Sprintf("unknown rtsp transport %q", s.RTSPTransport))
	}
	if s.DefaultDuration <= 0 {
		errs = append(errs, "default duration must be > 0")
	}
	if s.ReconnectAttempts < -1 {
		errs = append(errs, "reconnect attempts must be -1, 0, or positive")
	}
	if s.ReconnectDelay < 1 {
		errs = append(errs, "reconnect delay must be >= 1 second")
	}
	if s.OutputDir == "" {
		errs = append(errs, "output directory must not be empty")
	}
	if s.MaxStorageGB < 0 {
		errs = append(errs, "max storage must be >= 0")
	}
	if s.AutoDeleteDays < 0 {
		errs = append(errs, "auto-delete days must be >= 0")
	}

	if len(errs) == 0 {
		return nil
	}
	msg := errs[0]
	for _, e := range errs[1:] {
		msg += "; " + e
	}
	return fmt.Errorf("settings: %s", msg)
}
