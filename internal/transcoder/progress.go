// SPDX-License-Identifier: MIT

package transcoder

import (
	"strconv"
	"strings"
	"time"
)

// Progress is the runtime snapshot exposed to observers while a capture is
// in flight, per spec.md 4.4: frame count, fps, elapsed time, bitrate, and
// speed, extracted from the transcoder's progress output.
type Progress struct {
	Frame       int
	FPS         float64
	Time        time.Duration
	BitrateKBPS float64
	Speed       float64
}

// parseProgressLine extracts a Progress snapshot from one line of
// transcoder output, or reports ok=false if the line carries no progress
// fields. Fields use substring extraction rather than a regex: a key like
// "frame=" is located, leading spaces after it are skipped, and the value
// runs to the next space or end of line. Any field absent or showing "N/A"
// is simply left at its zero value; the line still counts as found as long
// as at least one field parsed.
func parseProgressLine(line string) (Progress, bool) {
	if !strings.Contains(line, "frame=") {
		return Progress{}, false
	}

	var p Progress
	found := false

	extract := func(key string) string {
		idx := strings.Index(line, key)
		if idx == -1 {
			return ""
		}
		rest := strings.TrimLeft(line[idx+len(key):], " ")
		if rest == "" {
			return ""
		}
		if sp := strings.IndexByte(rest, ' '); sp != -1 {
			return rest[:sp]
		}
		return rest
	}

	if v := extract("frame="); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			p.Frame = n
			found = true
		}
	}
	if v := extract("fps="); v != "" && v != "N/A" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			p.FPS = f
			found = true
		}
	}
	if v := extract("time="); v != "" && v != "N/A" {
		if d, err := parseFFmpegTime(v); err == nil {
			p.Time = d
			found = true
		}
	}
	if v := extract("bitrate="); v != "" && v != "N/A" {
		v = strings.TrimSuffix(v, "kbits/s")
		v = strings.TrimSuffix(v, "kb/s")
		if b, err := strconv.ParseFloat(v, 64); err == nil {
			p.BitrateKBPS = b
			found = true
		}
	}
	if v := extract("speed="); v != "" && v != "N/A" {
		v = strings.TrimSuffix(v, "x")
		if s, err := strconv.ParseFloat(v, 64); err == nil {
			p.Speed = s
			found = true
		}
	}

	if !found {
		return Progress{}, false
	}
	return p, true
}

// parseFFmpegTime parses an "HH:MM:SS[.ms]" timestamp as used in transcoder
// progress output.
func parseFFmpegTime(val string) (time.Duration, error) {
	parts := strings.Split(val, ":")
	if len(parts) != 3 {
		return 0, errInvalidTime
	}
	hours, err := strconv.ParseFloat(parts[0], 64)
	if err != nil {
		return 0, err
	}
	mins, err := strconv.ParseFloat(parts[1], 64)
	if err != nil {
		return 0, err
	}
	secs, err := strconv.ParseFloat(parts[2], 64)
	if err != nil {
		return 0, err
	}
	total := hours*3600 + mins*60 + secs
	return time.Duration(total * float64(time.Second)), nil
}
