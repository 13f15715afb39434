/*

This file contains the rebalancing planner. Plan is pure and deterministic:
the same snapshot and parameters always yield the same action list, and
planning mutates nothing. Action order is fixed, the perpetual leg first and
the options hedge after it, so the executor can dispatch sequentially.

*/

package planner

import (
	"errors"
	"fmt"
	"time"

	"github.com/definite-protocol/dne/internal/logger"
	"github.com/definite-protocol/dne/internal/types"
)

var ErrInvalidSnapshot = errors.New("invalid exposure snapshot")

var planLogger = logger.GetForComponent("rebalance_planner")

// Plan derives the action list that moves net delta toward the target.
//
// Inputs:
//   - snapshot: the freshly computed exposure picture.
//   - params: execution threshold and slippage tolerance.
//   - forceDeleverage: plan regardless of the threshold (emergency path).
//
// Output:
//   - Zero actions when the deviation is below the execution threshold (and
//     no deleverage was forced) or the adjustment is exactly zero.
//   - Otherwise OpenShort/CloseShort sized to the perpetual adjustment,
//     followed by HedgeOptionsDelta when the options book carries delta.
func Plan(snapshot types.ExposureSnapshot, params types.RebalanceParams, forceDeleverage bool) ([]types.RebalancingAction, error) {
	if err := validateSnapshot(snapshot); err != nil {
		return nil, errors.Join(ErrInvalidSnapshot, err)
	}
	if err := params.Validate(); err != nil {
		return nil, err
	}

	if !forceDeleverage && snapshot.Deviation.LT(params.ExecutionThreshold) {
		planLogger.Debug().
			Str("deviation", snapshot.Deviation.String()).
			Str("threshold", params.ExecutionThreshold.String()).
			Msg("Deviation below execution threshold, nothing to plan")
		return nil, nil
	}

	adjustment, err := snapshot.NetDelta.Sub(snapshot.TargetDelta)
	if err != nil {
		return nil, err
	}

	var actions []types.RebalancingAction

	switch adjustment.Sign() {
	case 1:
		// Net long of target: increase the short leg.
		actions = append(actions, types.RebalancingAction{
			Kind:                 types.ActionOpenShort,
			Venue:                types.VenuePerpetual,
			Amount:               adjustment.Magnitude,
			Direction:            types.DirectionNegative,
			SlippageToleranceBps: params.MaxSlippageBps,
		})
	case -1:
		// Net short of target: unwind part of the short leg.
		actions = append(actions, types.RebalancingAction{
			Kind:                 types.ActionCloseShort,
			Venue:                types.VenuePerpetual,
			Amount:               adjustment.Magnitude,
			Direction:            types.DirectionPositive,
			SlippageToleranceBps: params.MaxSlippageBps,
		})
	}

	// The options hedge is independent of the perpetual adjustment: any
	// residual delta on the options book gets flattened in the same pass.
	// The direction hint carries the sign of the delta being hedged.
	if !snapshot.OptionsDelta.IsZero() {
		direction := types.DirectionPositive
		if snapshot.OptionsDelta.IsNegative() {
			direction = types.DirectionNegative
		}
		actions = append(actions, types.RebalancingAction{
			Kind:                 types.ActionHedgeOptionsDelta,
			Venue:                types.VenueOptions,
			Amount:               snapshot.OptionsDelta.Abs(),
			Direction:            direction,
			SlippageToleranceBps: params.MaxSlippageBps,
		})
	}

	if len(actions) == 0 {
		planLogger.Debug().Msg("Adjustment is zero, nothing to plan")
		return nil, nil
	}

	planLogger.Info().
		Int("actionCount", len(actions)).
		Str("adjustment", adjustment.String()).
		Bool("forceDeleverage", forceDeleverage).
		Msg("Rebalancing plan produced")
	return actions, nil
}

func validateSnapshot(snapshot types.ExposureSnapshot) error {
	if snapshot.Deviation.IsNil() || snapshot.Deviation.IsNegative() {
		return fmt.Errorf("%w: deviation must be a non-negative amount", types.ErrInvalidParameter)
	}
	if snapshot.Timestamp.IsZero() {
		return fmt.Errorf("%w: snapshot timestamp is required", types.ErrInvalidParameter)
	}
	if snapshot.Timestamp.After(time.Now().Add(time.Minute)) {
		return fmt.Errorf("%w: snapshot timestamp is in the future", types.ErrInvalidParameter)
	}
	return nil
}
