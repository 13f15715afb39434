/*

This file contains the types for rebalancing: the planned actions, the
per-cycle result reported to the caller, and the append-only execution
record used for keeper rewards and audit.

*/

package types

import (
	"time"

	sdkmath "cosmossdk.io/math"
)

// Address identifies an external caller (owner, keeper, operator).
type Address string

// ActionKind defines the specific rebalancing operations.
type ActionKind string

const (
	ActionOpenShort         ActionKind = "OPEN_SHORT"          // Increase perpetual short exposure.
	ActionCloseShort        ActionKind = "CLOSE_SHORT"         // Reduce perpetual short exposure.
	ActionHedgeOptionsDelta ActionKind = "HEDGE_OPTIONS_DELTA" // Offset options delta at the options venue.
)

// VenueKind identifies the execution venue an action targets.
type VenueKind string

const (
	VenuePerpetual VenueKind = "perpetual"
	VenueOptions   VenueKind = "options"
)

// Direction is the hint passed alongside an options hedge.
type Direction string

const (
	DirectionPositive Direction = "positive"
	DirectionNegative Direction = "negative"
)

// RebalancingAction is a single executable step in a rebalancing plan.
// Actions are ephemeral: produced by the planner and consumed by the
// executor within the same cycle, never persisted beyond the record.
type RebalancingAction struct {
	Kind                 ActionKind  `json:"kind"`
	Venue                VenueKind   `json:"venue"`
	Amount               sdkmath.Int `json:"amount"`
	Direction            Direction   `json:"direction,omitempty"` // Sign of the exposure being adjusted.
	SlippageToleranceBps uint64      `json:"slippage_tolerance_bps"`
}

// RebalancingResult is returned from perform_upkeep / manual_rebalance.
type RebalancingResult struct {
	Performed       bool         `json:"performed"`
	ActionsPlanned  int          `json:"actions_planned"`
	ActionsExecuted int          `json:"actions_executed"`
	Success         bool         `json:"success"`
	DeltaBefore     SignedAmount `json:"delta_before"`
	DeltaAfter      SignedAmount `json:"delta_after"`
	TotalVolume     sdkmath.Int  `json:"total_volume"`
	KeeperReward    sdkmath.Int  `json:"keeper_reward"`
	FailureReason   string       `json:"failure_reason,omitempty"`
	Timestamp       time.Time    `json:"timestamp"`
}

// RebalancingRecord is the append-only history entry written once per
// executed cycle.
type RebalancingRecord struct {
	RecordID        int64        `json:"record_id,omitempty"` // Auto-incremented by DB.
	Keeper          Address      `json:"keeper"`
	ActionsExecuted int          `json:"actions_executed"`
	TotalVolume     sdkmath.Int  `json:"total_volume"`
	DeltaBefore     SignedAmount `json:"delta_before"`
	DeltaAfter      SignedAmount `json:"delta_after"`
	KeeperReward    sdkmath.Int  `json:"keeper_reward"`
	Success         bool         `json:"success"`
	Timestamp       time.Time    `json:"timestamp"`
}
