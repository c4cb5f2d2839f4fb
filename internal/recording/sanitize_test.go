// SPDX-License-Identifier: MIT

package recording

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSanitizeReplacesNonAlphanumerics(t *testing.T) {
	assert.Equal(t, "Front_Door_Camera", Sanitize("Front Door Camera"))
}

func TestSanitizeCollapsesAndTrimsUnderscores(t *testing.T) {
	assert.Equal(t, "a_b", Sanitize("  a   b  "))
}

func TestSanitizePrefixesLeadingDigit(t *testing.T) {
	assert.Equal(t, "rec_5GHz", Sanitize("5GHz"))
}

func TestSanitizeRejectsPathTraversal(t *testing.T) {
	assert.True(t, strings.HasPrefix(Sanitize("../../etc/passwd"), "unknown_recording_"))
}

func TestSanitizeRejectsEmpty(t *testing.T) {
	assert.True(t, strings.HasPrefix(Sanitize(""), "unknown_recording_"))
}

func TestSanitizeTruncatesLongNames(t *testing.T) {
	long := strings.Repeat("a", 200)
	got := Sanitize(long)
	assert.LessOrEqual(t, len(got), maxSanitizedNameLength)
}
