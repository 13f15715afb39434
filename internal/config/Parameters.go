/*

This file contains the default parameter sets the daemon starts from when
the database holds no persisted version yet. Owners retune them at runtime
through the owner-only setters; every change is validated atomically and
persisted as a new version.

*/

package config

import (
	"time"

	sdkmath "cosmossdk.io/math"

	"github.com/definite-protocol/dne/internal/types"
)

// DefaultRiskParameters returns the genesis scoring configuration.
func DefaultRiskParameters() types.RiskParameters {
	return types.RiskParameters{
		// Drawdown carries the largest weight: realized loss is the
		// strongest signal the hedge is not doing its job.
		Weights: types.RiskWeights{
			Leverage:    25,
			Liquidity:   20,
			Drawdown:    30,
			Correlation: 15,
			Volatility:  10,
		},
		// 2x leverage saturates the sub-score; the mandate targets ~1x.
		MaxLeverage: sdkmath.LegacyNewDecWithPrec(20, 1), // 2.0
		// Below 10% liquid assets the vault cannot service withdrawals.
		MinLiquidityRatio: sdkmath.LegacyNewDecWithPrec(1, 1), // 0.10
		// A 20% drawdown is a full saturation event for a neutral book.
		MaxDrawdownBps: 2000,
	}
}

// DefaultCircuitBreakerParams returns the genesis trigger thresholds.
func DefaultCircuitBreakerParams() types.CircuitBreakerParams {
	return types.CircuitBreakerParams{
		// A 10% drop inside 15 minutes is a dislocation, not a market move.
		PriceDropBps: 1000,
		PriceWindow:  15 * time.Minute,
		// Trip when realized volatility reaches 3x the long-run baseline.
		VolatilityMultipleBps: 30000,
		// Harder floor than the scoring threshold: by the time liquidity
		// is at 5% the breaker acts instead of the scorer.
		MinLiquidityRatio: sdkmath.LegacyNewDecWithPrec(5, 2), // 0.05
		// 25% drawdown trips regardless of everything else.
		MaxDrawdownBps: 2500,
	}
}

// DefaultRebalanceParams returns the genesis executor configuration.
func DefaultRebalanceParams() types.RebalanceParams {
	return types.RebalanceParams{
		// Deviations below this are cheaper to carry than to trade away.
		ExecutionThreshold: sdkmath.NewInt(100_000),
		CheckInterval:      1 * time.Hour,
		// The responder shortens the cadence to this under elevated risk.
		EmergencyCheckInterval: 15 * time.Minute,
		// 10 bps of TVL per successful upkeep, capped at 100 bps by the
		// parameter validator.
		KeeperRewardBps: 10,
		MaxSlippageBps:  50,
	}
}

// DefaultEngineConfigName is the parameter-store config name the daemon
// loads and persists under.
const DefaultEngineConfigName = "default"
