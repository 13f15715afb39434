/*

This file contains the signed-amount representation used for all delta
arithmetic. The execution environments this engine instructs do not share a
native signed wide-integer type, so deltas are carried as a non-negative
256-bit magnitude plus an explicit sign flag. All arithmetic goes through
big.Int internally and reports overflow instead of wrapping.

*/

package types

import (
	"math/big"

	sdkmath "cosmossdk.io/math"
)

// maxMagnitudeBits is the widest magnitude sdkmath.Int can carry.
const maxMagnitudeBits = 256

// SignedAmount is a signed quantity expressed as (magnitude, sign).
// Invariant: Magnitude is never negative and zero is always positive.
type SignedAmount struct {
	Magnitude sdkmath.Int `json:"magnitude"`
	Negative  bool        `json:"negative"`
}

// NewSignedAmount builds a SignedAmount from a non-negative magnitude and a
// sign flag. Rejects negative or nil magnitudes.
func NewSignedAmount(magnitude sdkmath.Int, negative bool) (SignedAmount, error) {
	if magnitude.IsNil() {
		return SignedAmount{}, ErrInvalidParameter
	}
	if magnitude.IsNegative() {
		return SignedAmount{}, ErrNegativeAmount
	}
	return SignedAmount{Magnitude: magnitude, Negative: negative}.canonical(), nil
}

// ZeroSigned returns the canonical zero (positive sign).
func ZeroSigned() SignedAmount {
	return SignedAmount{Magnitude: sdkmath.ZeroInt(), Negative: false}
}

// SignedFromInt converts a native sdkmath.Int (which may be negative) into
// the magnitude+flag representation.
func SignedFromInt(v sdkmath.Int) SignedAmount {
	if v.IsNil() {
		return ZeroSigned()
	}
	return SignedAmount{Magnitude: v.Abs(), Negative: v.IsNegative()}.canonical()
}

// SignedFromInt64 is a convenience constructor used mostly in tests.
func SignedFromInt64(v int64) SignedAmount {
	return SignedFromInt(sdkmath.NewInt(v))
}

// canonical normalizes the zero sign so that zero compares and serializes
// identically regardless of how it was produced.
func (s SignedAmount) canonical() SignedAmount {
	if s.Magnitude.IsNil() {
		return ZeroSigned()
	}
	if s.Magnitude.IsZero() {
		s.Negative = false
	}
	return s
}

// bigValue returns the signed big.Int value of s. The result is a copy.
func (s SignedAmount) bigValue() *big.Int {
	if s.Magnitude.IsNil() {
		return new(big.Int)
	}
	v := s.Magnitude.BigInt()
	if s.Negative {
		v.Neg(v)
	}
	return v
}

// signedFromBig converts a signed big.Int back into the canonical
// representation, reporting overflow if the magnitude no longer fits.
func signedFromBig(v *big.Int) (SignedAmount, error) {
	abs := new(big.Int).Abs(v)
	if abs.BitLen() > maxMagnitudeBits {
		return SignedAmount{}, ErrArithmeticOverflow
	}
	return SignedAmount{
		Magnitude: sdkmath.NewIntFromBigInt(abs),
		Negative:  v.Sign() < 0,
	}.canonical(), nil
}

// Add returns s + o, or ErrArithmeticOverflow if the result exceeds 256 bits.
func (s SignedAmount) Add(o SignedAmount) (SignedAmount, error) {
	return signedFromBig(new(big.Int).Add(s.bigValue(), o.bigValue()))
}

// Sub returns s - o, or ErrArithmeticOverflow if the result exceeds 256 bits.
func (s SignedAmount) Sub(o SignedAmount) (SignedAmount, error) {
	return signedFromBig(new(big.Int).Sub(s.bigValue(), o.bigValue()))
}

// Neg returns -s. Negation cannot overflow in this representation.
func (s SignedAmount) Neg() SignedAmount {
	if s.IsZero() {
		return ZeroSigned()
	}
	return SignedAmount{Magnitude: s.Magnitude, Negative: !s.Negative}
}

// Abs returns the magnitude of s as a non-negative Int.
func (s SignedAmount) Abs() sdkmath.Int {
	if s.Magnitude.IsNil() {
		return sdkmath.ZeroInt()
	}
	return s.Magnitude
}

// Sign returns -1, 0 or 1.
func (s SignedAmount) Sign() int {
	if s.IsZero() {
		return 0
	}
	if s.Negative {
		return -1
	}
	return 1
}

// IsZero reports whether the value is zero regardless of sign flag.
func (s SignedAmount) IsZero() bool {
	return s.Magnitude.IsNil() || s.Magnitude.IsZero()
}

// IsNegative reports whether the value is strictly below zero.
func (s SignedAmount) IsNegative() bool {
	return s.Sign() < 0
}

// Cmp compares s and o, returning -1, 0 or 1.
func (s SignedAmount) Cmp(o SignedAmount) int {
	return s.bigValue().Cmp(o.bigValue())
}

// Equal reports value equality (canonical zero compares equal to any zero).
func (s SignedAmount) Equal(o SignedAmount) bool {
	return s.Cmp(o) == 0
}

// String renders the signed decimal value.
func (s SignedAmount) String() string {
	if s.IsZero() {
		return "0"
	}
	if s.Negative {
		return "-" + s.Magnitude.String()
	}
	return s.Magnitude.String()
}
