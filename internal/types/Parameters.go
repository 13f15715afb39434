/*

This file contains the tunable parameter sets for the risk manager and the
rebalancing engine. Different sets can exist for different market regimes;
the active set is versioned and persisted through the state layer.

All setters validate atomically: an out-of-bounds value rejects the whole
set before any state mutation.

*/

package types

import (
	"fmt"
	"time"

	sdkmath "cosmossdk.io/math"
)

// bps denominator used throughout.
const BpsDenominator = 10_000

// RiskWeights are the five sub-score weights. They must sum to exactly 100
// so the weighted aggregate stays in [0,100] by construction.
type RiskWeights struct {
	Leverage    uint64 `json:"leverage"`
	Liquidity   uint64 `json:"liquidity"`
	Drawdown    uint64 `json:"drawdown"`
	Correlation uint64 `json:"correlation"`
	Volatility  uint64 `json:"volatility"`
}

// Sum returns the total weight.
func (w RiskWeights) Sum() uint64 {
	return w.Leverage + w.Liquidity + w.Drawdown + w.Correlation + w.Volatility
}

// Validate rejects weight sets that do not sum to exactly 100.
func (w RiskWeights) Validate() error {
	if sum := w.Sum(); sum != 100 {
		return fmt.Errorf("%w: risk weights must sum to 100, got %d", ErrInvalidParameter, sum)
	}
	return nil
}

// RiskParameters configure the risk scorer.
type RiskParameters struct {
	Weights           RiskWeights       `json:"weights"`
	MaxLeverage       sdkmath.LegacyDec `json:"max_leverage"`        // Leverage at which the sub-score saturates.
	MinLiquidityRatio sdkmath.LegacyDec `json:"min_liquidity_ratio"` // Ratio at or below which liquidity risk is 100.
	MaxDrawdownBps    uint64            `json:"max_drawdown_bps"`    // Drawdown at which the sub-score saturates.
}

// Validate checks every field; nothing is applied on failure.
func (p RiskParameters) Validate() error {
	if err := p.Weights.Validate(); err != nil {
		return err
	}
	if p.MaxLeverage.IsNil() || !p.MaxLeverage.IsPositive() {
		return fmt.Errorf("%w: max leverage must be positive", ErrInvalidParameter)
	}
	if p.MinLiquidityRatio.IsNil() || p.MinLiquidityRatio.IsNegative() {
		return fmt.Errorf("%w: min liquidity ratio cannot be negative", ErrInvalidParameter)
	}
	if p.MinLiquidityRatio.GTE(sdkmath.LegacyOneDec()) {
		return fmt.Errorf("%w: min liquidity ratio must be below 1.0", ErrInvalidParameter)
	}
	if p.MaxDrawdownBps == 0 || p.MaxDrawdownBps > BpsDenominator {
		return fmt.Errorf("%w: max drawdown must be in (0, %d] bps", ErrInvalidParameter, BpsDenominator)
	}
	return nil
}

// CircuitBreakerParams configure the trigger thresholds.
type CircuitBreakerParams struct {
	PriceDropBps          uint64            `json:"price_drop_bps"`          // Drop over the window that trips the breaker.
	PriceWindow           time.Duration     `json:"price_window"`            // Lookback window for the drop comparison.
	VolatilityMultipleBps uint64            `json:"volatility_multiple_bps"` // Current/baseline ratio that trips, in bps (20000 = 2x).
	MinLiquidityRatio     sdkmath.LegacyDec `json:"min_liquidity_ratio"`     // Shortfall threshold.
	MaxDrawdownBps        uint64            `json:"max_drawdown_bps"`        // Drawdown breach threshold.
}

// Validate checks every field; nothing is applied on failure.
func (p CircuitBreakerParams) Validate() error {
	if p.PriceDropBps == 0 || p.PriceDropBps > BpsDenominator {
		return fmt.Errorf("%w: price drop must be in (0, %d] bps", ErrInvalidParameter, BpsDenominator)
	}
	if p.PriceWindow <= 0 {
		return fmt.Errorf("%w: price window must be positive", ErrInvalidParameter)
	}
	if p.VolatilityMultipleBps < BpsDenominator {
		return fmt.Errorf("%w: volatility multiple must be at least %d bps (1x)", ErrInvalidParameter, BpsDenominator)
	}
	if p.MinLiquidityRatio.IsNil() || p.MinLiquidityRatio.IsNegative() {
		return fmt.Errorf("%w: min liquidity ratio cannot be negative", ErrInvalidParameter)
	}
	if p.MinLiquidityRatio.GTE(sdkmath.LegacyOneDec()) {
		return fmt.Errorf("%w: min liquidity ratio must be below 1.0", ErrInvalidParameter)
	}
	if p.MaxDrawdownBps == 0 || p.MaxDrawdownBps > BpsDenominator {
		return fmt.Errorf("%w: max drawdown must be in (0, %d] bps", ErrInvalidParameter, BpsDenominator)
	}
	return nil
}

// RebalanceParams configure the planner and executor.
type RebalanceParams struct {
	ExecutionThreshold     sdkmath.Int   `json:"execution_threshold"`      // Minimum deviation that justifies acting.
	CheckInterval          time.Duration `json:"check_interval"`           // Cooldown between upkeep evaluations.
	EmergencyCheckInterval time.Duration `json:"emergency_check_interval"` // Shortened cooldown while risk is elevated.
	KeeperRewardBps        uint64        `json:"keeper_reward_bps"`        // Reward as bps of managed assets.
	MaxSlippageBps         uint64        `json:"max_slippage_bps"`         // Tolerance attached to every planned action.
}

// Keeper rewards are capped well below fee revenue; a misconfigured reward
// must never be able to drain the vault.
const MaxKeeperRewardBps = 100

// Validate checks every field; nothing is applied on failure.
func (p RebalanceParams) Validate() error {
	if p.ExecutionThreshold.IsNil() || p.ExecutionThreshold.IsNegative() {
		return fmt.Errorf("%w: execution threshold cannot be negative", ErrInvalidParameter)
	}
	if p.CheckInterval <= 0 {
		return fmt.Errorf("%w: check interval must be positive", ErrInvalidParameter)
	}
	if p.EmergencyCheckInterval <= 0 || p.EmergencyCheckInterval > p.CheckInterval {
		return fmt.Errorf("%w: emergency check interval must be positive and at most the normal interval", ErrInvalidParameter)
	}
	if p.KeeperRewardBps > MaxKeeperRewardBps {
		return fmt.Errorf("%w: keeper reward exceeds %d bps cap", ErrInvalidParameter, MaxKeeperRewardBps)
	}
	if p.MaxSlippageBps == 0 || p.MaxSlippageBps > BpsDenominator {
		return fmt.Errorf("%w: max slippage must be in (0, %d] bps", ErrInvalidParameter, BpsDenominator)
	}
	return nil
}
