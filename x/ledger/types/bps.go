package types

import (
	"fmt"

	sdkmath "cosmossdk.io/math"
)

// BpsBase is the total basis points representing 100%. Every percentage
// carried by the engine is an integer number of basis points; no floating
// point is used anywhere in a value-moving path.
const BpsBase int64 = 10000

// Rate is a fixed-point percentage expressed in basis points.
type Rate int64

// Validate checks that the rate is within [0, 10000].
func (r Rate) Validate() error {
	if r < 0 || int64(r) > BpsBase {
		return fmt.Errorf("rate must be in [0, %d] bps, got %d", BpsBase, r)
	}
	return nil
}

// ValidateUnbounded checks that the rate is non-negative. Bonus rates
// (for example anti-dump multipliers) may legitimately exceed 100%.
func (r Rate) ValidateUnbounded() error {
	if r < 0 {
		return fmt.Errorf("rate must be non-negative bps, got %d", r)
	}
	return nil
}

// MulBps returns amount * r / 10000 with the remainder truncated.
// Intermediate math runs over big integers, so the product cannot
// overflow for any representable amount.
func (r Rate) MulBps(amount sdkmath.Int) sdkmath.Int {
	return amount.Mul(sdkmath.NewInt(int64(r))).Quo(sdkmath.NewInt(BpsBase))
}

// IsZero reports whether the rate is zero basis points.
func (r Rate) IsZero() bool { return r == 0 }
