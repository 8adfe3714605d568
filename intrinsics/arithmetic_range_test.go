package intrinsics

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

// TestReciprocalShiftFactorMatchesDivision property-checks the numeric law
// the constant-reciprocal divider must satisfy: q*d+r==n and 0<=r<d, over a
// representative (not exhaustive) sample of divisors and dividends. This is
// the range that previously would have caught the correction step only
// firing on r>d and missing r==d.
func TestReciprocalShiftFactorMatchesDivision(t *testing.T) {
	for d := int64(1); d <= 512; d++ {
		for n := int64(0); n <= 2048; n += 7 {
			q, r := reciprocalDivideCorrected(n, d)
			assert.Equalf(t, n/d, q, "n=%d d=%d: quotient", n, d)
			assert.Equalf(t, n%d, r, "n=%d d=%d: remainder", n, d)
			assert.GreaterOrEqualf(t, r, int64(0), "n=%d d=%d: remainder must be >= 0", n, d)
			assert.Lessf(t, r, d, "n=%d d=%d: remainder must be < d", n, d)
		}
	}
}

// TestReciprocalShiftFactorCatchesExactRemainder pins the regression this
// divider previously had: an exact multiple n=d*k is the case most likely to
// have the raw multiply-shift quotient undershoot by exactly one (raw
// remainder lands exactly on the divisor), which a correction that only
// fires on r>d silently leaves uncorrected.
func TestReciprocalShiftFactorCatchesExactRemainder(t *testing.T) {
	for d := int64(2); d <= 4096; d++ {
		for k := int64(1); k <= 3; k++ {
			n := d * k
			q, r := reciprocalDivideCorrected(n, d)
			assert.Equalf(t, k, q, "n=%d d=%d: exact multiple must divide evenly", n, d)
			assert.Equalf(t, int64(0), r, "n=%d d=%d: exact multiple must leave no remainder", n, d)
		}
	}
}

// TestReciprocalShiftFactorStaysWithin32Bits pins the shift formula to
// spec.md's own worked example (d=7: shift=ceil(log2(7*16100))=17, factor
// 18725) and guards against a too-large shift making n*factor overflow
// mul24's true 32-bit-truncating hardware multiply for any n in range.
func TestReciprocalShiftFactorStaysWithin32Bits(t *testing.T) {
	shift, factor := reciprocalShiftFactor(7)
	assert.Equal(t, 17, shift)
	assert.Equal(t, int64(18725), factor)

	for d := int64(1); d <= 65535; d += 37 {
		_, factor := reciprocalShiftFactor(d)
		prod := uint64(65535) * uint64(factor)
		assert.Lessf(t, prod, uint64(1)<<32, "d=%d: n*factor must fit in 32 bits for n up to 65535", d)
	}

	q, r := reciprocalDivideCorrected(65535, 3)
	assert.Equal(t, int64(21845), q)
	assert.Equal(t, int64(0), r)
}
