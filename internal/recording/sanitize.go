// SPDX-License-Identifier: MIT

package recording

import (
	"fmt"
	"regexp"
	"strings"
	"time"
)

const (
	maxSanitizedNameLength = 64
	maxRawNameLength       = 1024
)

var collapseUnderscoresRe = regexp.MustCompile(`_+`)

// Sanitize produces a filesystem-safe name for use in a recording's final
// output path, adapted from the teacher's SanitizeDeviceName: reject
// suspicious or oversized input outright (timestamped fallback), otherwise
// truncate, replace non-alphanumerics with underscores, collapse and trim
// them, and prefix "rec_" if the result would start with a digit.
func Sanitize(name string) string {
	if name == "" || len(name) > maxRawNameLength || containsControlChars(name) {
		return fallback()
	}
	if strings.Contains(name, "..") || strings.ContainsAny(name, "/$") || strings.HasPrefix(name, "-") {
		return fallback()
	}

	if len(name) > maxSanitizedNameLength {
		name = name[:maxSanitizedNameLength]
	}

	var b strings.Builder
	b.Grow(len(name))
	for i := 0; i < len(name); i++ {
		c := name[i]
		if (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') || (c >= '0' && c <= '9') {
			b.WriteByte(c)
		} else {
			b.WriteByte('_')
		}
	}

	sanitized := collapseUnderscoresRe.ReplaceAllString(b.String(), "_")
	sanitized = strings.Trim(sanitized, "_")

	if sanitized == "" {
		return fallback()
	}
	if sanitized[0] >= '0' && sanitized[0] <= '9' {
		sanitized = "rec_" + sanitized
	}
	return sanitized
}

func containsControlChars(s string) bool {
	for i := 0; i < len(s); i++ {
		c := s[i]
		if c < 0x20 && c != 0x09 && c != 0x0A && c != 0x0D {
			return true
		}
		if c == 0x7F {
			return true
		}
	}
	return false
}

func fallback() string {
	return fmt.Sprintf("unknown_recording_%d", time.Now().Unix())
}
