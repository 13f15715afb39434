/*

This file contains the exposure snapshot type produced fresh on every
evaluation cycle. Snapshots are never mutated after creation; a newer
snapshot supersedes the previous one.

*/

package types

import (
	"time"

	sdkmath "cosmossdk.io/math"
)

// ExposureSnapshot captures the portfolio's delta picture at a point in
// time. Invariants: NetDelta = LongExposure - ShortExposure + OptionsDelta,
// and Deviation = |NetDelta - TargetDelta| (always non-negative).
type ExposureSnapshot struct {
	LongExposure  sdkmath.Int  `json:"long_exposure"`  // Spot holdings, base units.
	ShortExposure sdkmath.Int  `json:"short_exposure"` // Perpetual short notional, base units.
	OptionsDelta  SignedAmount `json:"options_delta"`
	NetDelta      SignedAmount `json:"net_delta"`
	TargetDelta   SignedAmount `json:"target_delta"`
	Deviation     sdkmath.Int  `json:"deviation"`
	Timestamp     time.Time    `json:"timestamp"`
}

// IsNetShort reports whether the portfolio is short overall.
func (s ExposureSnapshot) IsNetShort() bool {
	return s.NetDelta.IsNegative()
}

// IsNetLong reports whether the portfolio is long overall.
func (s ExposureSnapshot) IsNetLong() bool {
	return s.NetDelta.Sign() > 0
}
