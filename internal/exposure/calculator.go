// Package exposure computes the portfolio's net delta picture. Compute is a
// pure function: same inputs, same snapshot, no side effects. Arithmetic is
// checked; an input combination that cannot be represented aborts with
// ErrArithmeticOverflow instead of wrapping.
package exposure

import (
	"fmt"
	"time"

	sdkmath "cosmossdk.io/math"

	"github.com/definite-protocol/dne/internal/types"
)

// Compute derives an ExposureSnapshot from the three legs and the target.
//
// Inputs:
//   - long: spot holdings in base units (non-negative).
//   - short: perpetual short notional in base units (non-negative).
//   - optionsDelta: signed delta contributed by the options book.
//   - target: desired net delta (zero for a delta-neutral mandate).
//
// Output:
//   - A snapshot satisfying net = long - short + optionsDelta and
//     deviation = |net - target|.
func Compute(long, short sdkmath.Int, optionsDelta, target types.SignedAmount, now time.Time) (types.ExposureSnapshot, error) {
	if long.IsNil() || short.IsNil() {
		return types.ExposureSnapshot{}, fmt.Errorf("%w: exposure legs cannot be nil", types.ErrInvalidParameter)
	}
	if long.IsNegative() {
		return types.ExposureSnapshot{}, fmt.Errorf("%w: long exposure", types.ErrNegativeAmount)
	}
	if short.IsNegative() {
		return types.ExposureSnapshot{}, fmt.Errorf("%w: short exposure", types.ErrNegativeAmount)
	}

	spotLeg, err := types.SignedFromInt(long).Sub(types.SignedFromInt(short))
	if err != nil {
		return types.ExposureSnapshot{}, err
	}
	netDelta, err := spotLeg.Add(optionsDelta)
	if err != nil {
		return types.ExposureSnapshot{}, err
	}

	adjustment, err := netDelta.Sub(target)
	if err != nil {
		return types.ExposureSnapshot{}, err
	}

	return types.ExposureSnapshot{
		LongExposure:  long,
		ShortExposure: short,
		OptionsDelta:  optionsDelta,
		NetDelta:      netDelta,
		TargetDelta:   target,
		Deviation:     adjustment.Abs(),
		Timestamp:     now,
	}, nil
}
