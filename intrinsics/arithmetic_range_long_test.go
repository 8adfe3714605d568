//go:build long

package intrinsics

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

// TestReciprocalShiftFactorMatchesDivisionWideRange widens
// TestReciprocalShiftFactorMatchesDivision to the full divisor range (d up
// to 65535), sampling dividends rather than sweeping every n for every d,
// since the full cross product is 2^32 pairs.
// Run with `go test -tags long ./intrinsics/...`.
func TestReciprocalShiftFactorMatchesDivisionWideRange(t *testing.T) {
	for d := int64(1); d <= 65535; d += 3 {
		for n := int64(0); n <= 65535; n += 97 {
			q, r := reciprocalDivideCorrected(n, d)
			assert.Equalf(t, n/d, q, "n=%d d=%d: quotient", n, d)
			assert.Equalf(t, n%d, r, "n=%d d=%d: remainder", n, d)
		}
	}
}
