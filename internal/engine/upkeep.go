/*

This file contains the executor: the precondition chain, the fresh exposure
evaluation, and best-effort action dispatch. Dispatch is forward-only: a
venue failure stops the sequence and leaves the executed legs in place; no
rollback is attempted, the next cycle corrects from the new reading.

*/

package engine

import (
	"errors"
	"fmt"

	sdkmath "cosmossdk.io/math"

	"github.com/definite-protocol/dne/internal/events"
	"github.com/definite-protocol/dne/internal/exposure"
	"github.com/definite-protocol/dne/internal/planner"
	"github.com/definite-protocol/dne/internal/types"
)

// PerformUpkeep runs one keeper-triggered rebalancing pass.
//
// Preconditions, checked in order with first failure winning: no reentrant
// call in flight; not paused; circuit breaker inactive; caller is an
// authorized keeper; the check interval has elapsed; a fresh exposure
// evaluation shows deviation at or above the execution threshold. An
// unauthorized caller is rejected before any exposure computation.
func (e *Engine) PerformUpkeep(caller types.Address) (types.RebalancingResult, error) {
	if err := e.enterBusy(); err != nil {
		return types.RebalancingResult{}, err
	}
	defer e.exitBusy()

	if err := e.checkStateGuards(); err != nil {
		return types.RebalancingResult{}, err
	}
	if !e.IsAuthorizedKeeper(caller) {
		return types.RebalancingResult{}, types.ErrNotKeeper
	}

	now := e.now()
	e.mu.Lock()
	interval := e.params.CheckInterval
	if e.emergencyInterval {
		interval = e.params.EmergencyCheckInterval
	}
	if !e.lastCheck.IsZero() && now.Sub(e.lastCheck) < interval {
		remaining := interval - now.Sub(e.lastCheck)
		e.mu.Unlock()
		return types.RebalancingResult{}, fmt.Errorf("%w: %s remaining", types.ErrCooldownActive, remaining)
	}
	e.lastCheck = now
	e.mu.Unlock()

	return e.executeRebalance(caller, false)
}

// ManualRebalance is the owner's emergency path: it bypasses the interval
// and keeper checks but still respects the pause state and the breaker, and
// plans regardless of the execution threshold.
func (e *Engine) ManualRebalance(caller types.Address) (types.RebalancingResult, error) {
	if err := e.enterBusy(); err != nil {
		return types.RebalancingResult{}, err
	}
	defer e.exitBusy()

	if err := e.checkStateGuards(); err != nil {
		return types.RebalancingResult{}, err
	}
	if err := e.owner.AssertOwner(caller); err != nil {
		return types.RebalancingResult{}, err
	}
	return e.executeRebalance(caller, true)
}

// executeRebalance evaluates exposure, plans, and dispatches. The caller
// holds the busy flag and has passed every guard.
func (e *Engine) executeRebalance(caller types.Address, force bool) (types.RebalancingResult, error) {
	now := e.now()

	snapshot, err := e.computeExposure()
	if err != nil {
		return types.RebalancingResult{}, errors.Join(errors.New("exposure evaluation failed"), err)
	}
	if e.archiver != nil {
		if err := e.archiver.SaveExposureSnapshot(snapshot); err != nil {
			e.logger.Error().Err(err).Msg("Failed to archive exposure snapshot")
		}
	}

	e.mu.Lock()
	params := e.params
	if e.deleverageRequested {
		force = true
		e.deleverageRequested = false
	}
	e.mu.Unlock()

	if !force && snapshot.Deviation.LT(params.ExecutionThreshold) {
		return types.RebalancingResult{
			Performed:   false,
			DeltaBefore: snapshot.NetDelta,
			DeltaAfter:  snapshot.NetDelta,
			TotalVolume: sdkmath.ZeroInt(),
			Timestamp:   now,
		}, fmt.Errorf("%w: deviation %s below threshold %s", types.ErrDeviationBelowThreshold, snapshot.Deviation, params.ExecutionThreshold)
	}

	actions, err := planner.Plan(snapshot, params, force)
	if err != nil {
		return types.RebalancingResult{}, err
	}
	if len(actions) == 0 {
		return types.RebalancingResult{
			Performed:   false,
			DeltaBefore: snapshot.NetDelta,
			DeltaAfter:  snapshot.NetDelta,
			TotalVolume: sdkmath.ZeroInt(),
			Timestamp:   now,
		}, nil
	}

	executed := 0
	volume := sdkmath.ZeroInt()
	var failureReason string
	for _, action := range actions {
		if err := e.dispatch(action); err != nil {
			failureReason = fmt.Sprintf("%s: %v", action.Kind, err)
			e.logger.Error().
				Err(err).
				Str("action", string(action.Kind)).
				Str("amount", action.Amount.String()).
				Msg("Action dispatch failed, stopping sequence")
			break
		}
		executed++
		volume = volume.Add(action.Amount)
	}
	success := executed == len(actions)

	deltaAfter := snapshot.NetDelta
	if after, err := e.computeExposure(); err == nil {
		deltaAfter = after.NetDelta
	} else {
		e.logger.Error().Err(err).Msg("Post-dispatch exposure read failed")
	}

	reward := sdkmath.ZeroInt()
	e.mu.Lock()
	if success {
		e.totalRebalancings++
		e.lastRebalance = now
	} else {
		e.failedRebalancings++
	}
	rewardBps := e.params.KeeperRewardBps
	e.mu.Unlock()

	if success && rewardBps > 0 {
		reward = e.payKeeperReward(caller, rewardBps)
	}

	result := types.RebalancingResult{
		Performed:       true,
		ActionsPlanned:  len(actions),
		ActionsExecuted: executed,
		Success:         success,
		DeltaBefore:     snapshot.NetDelta,
		DeltaAfter:      deltaAfter,
		TotalVolume:     volume,
		KeeperReward:    reward,
		FailureReason:   failureReason,
		Timestamp:       now,
	}

	if e.archiver != nil {
		record := types.RebalancingRecord{
			Keeper:          caller,
			ActionsExecuted: executed,
			TotalVolume:     volume,
			DeltaBefore:     snapshot.NetDelta,
			DeltaAfter:      deltaAfter,
			KeeperReward:    reward,
			Success:         success,
			Timestamp:       now,
		}
		if err := e.archiver.SaveRebalancingRecord(record); err != nil {
			e.logger.Error().Err(err).Msg("Failed to archive rebalancing record")
		}
	}

	if success {
		e.bus.Publish(events.RebalanceExecuted, "Rebalancing executed", map[string]any{
			"keeper":      string(caller),
			"actions":     executed,
			"totalVolume": volume.String(),
		})
		e.logger.Info().
			Str("keeper", string(caller)).
			Int("actionsExecuted", executed).
			Str("totalVolume", volume.String()).
			Str("deltaAfter", deltaAfter.String()).
			Msg("Rebalancing cycle succeeded")
	} else {
		e.bus.Publish(events.RebalanceFailed, "Rebalancing failed", map[string]any{
			"keeper":  string(caller),
			"reason":  failureReason,
			"planned": len(actions),
			"done":    executed,
		})
		e.logger.Error().
			Str("keeper", string(caller)).
			Int("actionsPlanned", len(actions)).
			Int("actionsExecuted", executed).
			Str("reason", failureReason).
			Msg("Rebalancing cycle failed partway")
	}

	return result, nil
}

// dispatch routes one action to its venue.
func (e *Engine) dispatch(action types.RebalancingAction) error {
	switch action.Kind {
	case types.ActionOpenShort:
		return e.perp.OpenShort(action.Amount)
	case types.ActionCloseShort:
		return e.perp.CloseShort(action.Amount)
	case types.ActionHedgeOptionsDelta:
		return e.options.HedgeDelta(action.Amount, action.Direction)
	default:
		return fmt.Errorf("%w: unknown action kind %q", types.ErrExecutionFailed, action.Kind)
	}
}

// payKeeperReward computes tvl * rewardBps / 10000 and pays it through the
// custody ledger. Payment failure is logged and forfeits the reward; it
// never fails an otherwise successful cycle.
func (e *Engine) payKeeperReward(keeper types.Address, rewardBps uint64) sdkmath.Int {
	tvl, err := e.custody.TotalAssets()
	if err != nil {
		e.logger.Error().Err(err).Msg("Failed to read TVL for keeper reward")
		return sdkmath.ZeroInt()
	}
	reward := tvl.MulRaw(int64(rewardBps)).QuoRaw(types.BpsDenominator)
	if !reward.IsPositive() {
		return sdkmath.ZeroInt()
	}
	if err := e.custody.PayKeeper(keeper, reward); err != nil {
		e.logger.Error().
			Err(err).
			Str("keeper", string(keeper)).
			Str("reward", reward.String()).
			Msg("Keeper reward payment failed")
		return sdkmath.ZeroInt()
	}
	return reward
}

// computeExposure reads the three legs and derives a fresh snapshot.
func (e *Engine) computeExposure() (types.ExposureSnapshot, error) {
	long, err := e.custody.TotalAssets()
	if err != nil {
		return types.ExposureSnapshot{}, errors.Join(errors.New("custody read failed"), err)
	}
	short, err := e.perp.CurrentShortExposure()
	if err != nil {
		return types.ExposureSnapshot{}, errors.Join(errors.New("perpetual venue read failed"), err)
	}
	optionsDelta, err := e.options.CurrentDelta()
	if err != nil {
		return types.ExposureSnapshot{}, errors.Join(errors.New("options venue read failed"), err)
	}
	return exposure.Compute(long, short, optionsDelta, e.TargetDelta(), e.now())
}

// DeltaExposure returns a fresh read-only exposure evaluation.
func (e *Engine) DeltaExposure() (types.ExposureSnapshot, error) {
	return e.computeExposure()
}

// CheckRebalancingNeeded reports whether a fresh evaluation meets the
// execution threshold. Read-only; no guard interacts with it.
func (e *Engine) CheckRebalancingNeeded() (bool, error) {
	snapshot, err := e.computeExposure()
	if err != nil {
		return false, err
	}
	e.mu.Lock()
	threshold := e.params.ExecutionThreshold
	e.mu.Unlock()
	return snapshot.Deviation.GTE(threshold), nil
}
