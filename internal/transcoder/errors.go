// SPDX-License-Identifier: MIT

package transcoder

import "errors"

var (
	errInvalidTime = errors.New("transcoder: invalid progress timestamp")

	// ErrSuspiciousStitch is returned when the stitched output is smaller
	// than 90% of the sum of its segment sizes, per spec.md 4.4.
	ErrSuspiciousStitch = errors.New("transcoder: stitched output smaller than expected, reported as suspicious")

	// ErrNoSegments is returned by Stitch when called with zero segment
	// paths; spec.md 4.4 requires N >= 1.
	ErrNoSegments = errors.New("transcoder: stitch requires at least one segment")
)
