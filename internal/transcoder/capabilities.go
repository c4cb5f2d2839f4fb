// SPDX-License-Identifier: MIT

package transcoder

import (
	"bufio"
	"context"
	"os/exec"
	"regexp"
	"strings"
)

// Capabilities reports what the configured transcoder binary actually
// supports, probed by running it with -hwaccels and -encoders and parsing
// the resulting text tables — a line-oriented scan in the same style as
// the teacher's ALSA capability probe, retargeted from /proc/asound text
// to ffmpeg's own self-description output.
type Capabilities struct {
	HWAccels []string
	Encoders []string
}

var encoderLineRe = regexp.MustCompile(`^\s*[VAS.][F.][S.][X.][B.][D.]\s+(\S+)\s`)

// ProbeCapabilities runs `<binary> -hwaccels` and `<binary> -encoders` and
// parses their output. A command that fails leaves its list empty; the
// returned error is always nil.
func (d *Driver) ProbeCapabilities(ctx context.Context) (Capabilities, error) {
	var caps Capabilities

	hwOut, err := exec.CommandContext(ctx, d.binaryPath, "-hwaccels").Output()
	if err == nil {
		caps.HWAccels = parseHWAccels(string(hwOut))
	}

	encOut, err := exec.CommandContext(ctx, d.binaryPath, "-encoders").Output()
	if err == nil {
		caps.Encoders = parseEncoders(string(encOut))
	}

	return caps, nil
}

// parseHWAccels parses the one-name-per-line body following the
// "Hardware acceleration methods:" banner.
func parseHWAccels(out string) []string {
	var accels []string
	scanner := bufio.NewScanner(strings.NewReader(out))
	started := false
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if strings.Contains(line, "Hardware acceleration methods") {
			started = true
			continue
		}
		if started {
			accels = append(accels, line)
		}
	}
	return accels
}

// parseEncoders parses ffmpeg's `-encoders` table, one entry per line:
// a 6-character capability flag field, the encoder name, then a free-text
// description.
func parseEncoders(out string) []string {
	var names []string
	scanner := bufio.NewScanner(strings.NewReader(out))
	for scanner.Scan() {
		if m := encoderLineRe.FindStringSubmatch(scanner.Text()); m != nil {
			names = append(names, m[1])
		}
	}
	return names
}

// HasHWAccel reports whether caps lists the given hwaccel name.
func (c Capabilities) HasHWAccel(name string) bool {
	for _, a := range c.HWAccels {
		if a == name {
			return true
		}
	}
	return false
}

// HasEncoder reports whether caps lists the given encoder name.
func (c Capabilities) HasEncoder(name string) bool {
	for _, e := range c.Encoders {
		if e == name {
			return true
		}
	}
	return false
}
