package types

import (
	"fmt"
	"math/big"

	sdkmath "cosmossdk.io/math"
)

// SafeMath provides overflow-safe arithmetic for economic calculations.
// All operations use sdkmath.Int, with big.Int pre-checks so overflow
// surfaces as a typed error instead of a panic mid-transfer.
type SafeMath struct{}

// NewSafeMath creates a new SafeMath instance.
func NewSafeMath() *SafeMath {
	return &SafeMath{}
}

// SafeAdd performs overflow-checked addition.
func (sm *SafeMath) SafeAdd(a, b sdkmath.Int) (result sdkmath.Int, err error) {
	result = sdkmath.ZeroInt()
	defer func() {
		if r := recover(); r != nil {
			result = sdkmath.ZeroInt()
			err = fmt.Errorf("integer overflow in addition: %s + %s", a, b)
		}
	}()

	sumBig := new(big.Int).Add(a.BigInt(), b.BigInt())
	if sumBig.BitLen() > sdkmath.MaxBitLen {
		return sdkmath.ZeroInt(), fmt.Errorf("integer overflow in addition: %s + %s", a, b)
	}

	result = a.Add(b)
	return result, nil
}

// SafeSub performs subtraction, recovering any internal panic as error.
func (sm *SafeMath) SafeSub(a, b sdkmath.Int) (result sdkmath.Int, err error) {
	result = sdkmath.ZeroInt()
	defer func() {
		if r := recover(); r != nil {
			result = sdkmath.ZeroInt()
			err = fmt.Errorf("integer overflow in subtraction: %s - %s", a, b)
		}
	}()

	result = a.Sub(b)
	return result, nil
}

// SafeMul performs overflow-checked multiplication.
func (sm *SafeMath) SafeMul(a, b sdkmath.Int) (result sdkmath.Int, err error) {
	result = sdkmath.ZeroInt()
	defer func() {
		if r := recover(); r != nil {
			result = sdkmath.ZeroInt()
			err = fmt.Errorf("integer overflow in multiplication: %s * %s", a, b)
		}
	}()

	if !a.IsZero() && !b.IsZero() {
		productBig := new(big.Int).Mul(a.BigInt(), b.BigInt())
		if productBig.BitLen() > sdkmath.MaxBitLen {
			return sdkmath.ZeroInt(), fmt.Errorf("integer overflow in multiplication: %s * %s", a, b)
		}
	}

	result = a.Mul(b)
	return result, nil
}

// SafeDiv performs division with zero-check.
func (sm *SafeMath) SafeDiv(a, b sdkmath.Int) (sdkmath.Int, error) {
	if b.IsZero() {
		return sdkmath.ZeroInt(), fmt.Errorf("division by zero: %s / 0", a)
	}
	return a.Quo(b), nil
}

// SafeMulDiv performs (a * b) / c over big integers so the intermediate
// product cannot overflow. This is the workhorse for rate math.
func (sm *SafeMath) SafeMulDiv(a, b, c sdkmath.Int) (sdkmath.Int, error) {
	if c.IsZero() {
		return sdkmath.ZeroInt(), fmt.Errorf("division by zero in MulDiv")
	}

	intermediate := new(big.Int).Mul(a.BigInt(), b.BigInt())
	resultBig := new(big.Int).Quo(intermediate, c.BigInt())

	return sdkmath.NewIntFromBigInt(resultBig), nil
}

// SafeBpsMultiply multiplies a value by basis points.
// Example: SafeBpsMultiply(1000, 500) = 1000 * 500 / 10000 = 50
func (sm *SafeMath) SafeBpsMultiply(value sdkmath.Int, bps int64) (sdkmath.Int, error) {
	return sm.SafeMulDiv(value, sdkmath.NewInt(bps), sdkmath.NewInt(BpsBase))
}
