/*

This file contains the risk scorer: five weighted sub-scores combined into a
single 0-100 aggregate. Saturation (clamping) is acceptable throughout this
file because the outputs are bounded scores, not monetary amounts.

*/

package risk

import (
	"errors"
	"fmt"

	sdkmath "cosmossdk.io/math"

	"github.com/definite-protocol/dne/internal/logger"
	"github.com/definite-protocol/dne/internal/types"
)

var ErrInvalidPortfolioState = errors.New("invalid portfolio state")
var ErrInvalidRiskParameters = errors.New("invalid risk parameters")

var scoreLogger = logger.GetForComponent("risk_scorer")

const maxSubScore = 100

// CalculateRiskScore combines the five weighted sub-scores into aggregate
// risk metrics. The weights are validated to sum to exactly 100, so the
// weighted sum divided by 100 stays within [0,100] by construction; the
// result is clamped anyway.
//
// Inputs:
//   - state: analytic inputs for this evaluation pass.
//   - params: weights and saturation thresholds.
//
// Output:
//   - RiskMetrics carrying the aggregate score and the raw inputs.
func CalculateRiskScore(state types.PortfolioState, params types.RiskParameters) (types.RiskMetrics, error) {
	if err := params.Validate(); err != nil {
		return types.RiskMetrics{}, errors.Join(ErrInvalidRiskParameters, err)
	}
	if err := ValidatePortfolioState(state); err != nil {
		return types.RiskMetrics{}, errors.Join(ErrInvalidPortfolioState, err)
	}

	leverageScore, err := LeverageSubScore(state.LeverageRatio, params.MaxLeverage)
	if err != nil {
		return types.RiskMetrics{}, errors.Join(errors.New("leverage sub-score failed"), err)
	}

	liquidityScore, err := LiquiditySubScore(state.LiquidityRatio, params.MinLiquidityRatio)
	if err != nil {
		return types.RiskMetrics{}, errors.Join(errors.New("liquidity sub-score failed"), err)
	}

	drawdownScore := DrawdownSubScore(state.DrawdownBps, params.MaxDrawdownBps)

	// Correlation and volatility arrive pre-clamped from the portfolio
	// analytics collaborator; ValidatePortfolioState enforces the bound.
	correlationScore := uint64(state.CorrelationRisk)
	volatilityScore := uint64(state.VolatilityRisk)

	weighted := params.Weights.Leverage*leverageScore +
		params.Weights.Liquidity*liquidityScore +
		params.Weights.Drawdown*drawdownScore +
		params.Weights.Correlation*correlationScore +
		params.Weights.Volatility*volatilityScore

	aggregate := weighted / 100
	if aggregate > maxSubScore {
		aggregate = maxSubScore
	}

	scoreLogger.Debug().
		Uint64("leverageScore", leverageScore).
		Uint64("liquidityScore", liquidityScore).
		Uint64("drawdownScore", drawdownScore).
		Uint64("correlationScore", correlationScore).
		Uint64("volatilityScore", volatilityScore).
		Uint64("aggregate", aggregate).
		Msg("Risk score calculated with components")

	return types.RiskMetrics{
		RiskScore:       uint8(aggregate),
		VarBps:          state.VarBps,
		LeverageRatio:   state.LeverageRatio,
		LiquidityRatio:  state.LiquidityRatio,
		DrawdownBps:     state.DrawdownBps,
		CorrelationRisk: state.CorrelationRisk,
		VolatilityRisk:  state.VolatilityRisk,
		Timestamp:       state.Timestamp,
	}, nil
}

// LeverageSubScore scales leverage against the configured maximum:
// min(100, leverage / maxLeverage * 100), floored to an integer.
func LeverageSubScore(leverage, maxLeverage sdkmath.LegacyDec) (uint64, error) {
	if leverage.IsNil() || leverage.IsNegative() {
		return 0, fmt.Errorf("%w: leverage ratio must be non-negative", types.ErrInvalidParameter)
	}
	if maxLeverage.IsNil() || !maxLeverage.IsPositive() {
		return 0, fmt.Errorf("%w: max leverage must be positive", types.ErrInvalidParameter)
	}
	score := leverage.Quo(maxLeverage).MulInt64(maxSubScore).TruncateInt64()
	if score > maxSubScore {
		score = maxSubScore
	}
	return uint64(score), nil
}

// LiquiditySubScore applies inverse scaling: more liquidity means a lower
// score. At or below the minimum ratio the score saturates at 100, so the
// denominator never goes non-positive.
func LiquiditySubScore(ratio, minRatio sdkmath.LegacyDec) (uint64, error) {
	if ratio.IsNil() || ratio.IsNegative() {
		return 0, fmt.Errorf("%w: liquidity ratio must be non-negative", types.ErrInvalidParameter)
	}
	if minRatio.IsNil() || minRatio.IsNegative() || minRatio.GTE(sdkmath.LegacyOneDec()) {
		return 0, fmt.Errorf("%w: min liquidity ratio must be in [0, 1)", types.ErrInvalidParameter)
	}
	if ratio.LTE(minRatio) {
		return maxSubScore, nil
	}

	one := sdkmath.LegacyOneDec()
	if ratio.GTE(one) {
		// Fully liquid: nothing at risk from illiquidity.
		return 0, nil
	}
	score := one.Sub(ratio).Quo(one.Sub(minRatio)).MulInt64(maxSubScore).TruncateInt64()
	if score > maxSubScore {
		score = maxSubScore
	}
	if score < 0 {
		score = 0
	}
	return uint64(score), nil
}

// DrawdownSubScore scales current drawdown against the configured maximum:
// min(100, drawdown / maxDrawdown * 100). maxBps is validated non-zero by
// RiskParameters.Validate.
func DrawdownSubScore(drawdownBps, maxDrawdownBps uint64) uint64 {
	if maxDrawdownBps == 0 {
		return maxSubScore
	}
	score := drawdownBps * maxSubScore / maxDrawdownBps
	if score > maxSubScore {
		score = maxSubScore
	}
	return score
}

// HedgeRatioBps estimates the optimal hedge ratio from correlation and
// volatility, both expressed in bps, clamped to [0, 10000].
func HedgeRatioBps(correlationBps, volatilityBps uint64) uint64 {
	ratio := correlationBps * volatilityBps / types.BpsDenominator
	if ratio > types.BpsDenominator {
		ratio = types.BpsDenominator
	}
	return ratio
}

// ValidatePortfolioState checks the analytic inputs before scoring.
func ValidatePortfolioState(state types.PortfolioState) error {
	if state.TotalAssets.IsNil() || state.TotalAssets.IsNegative() {
		return fmt.Errorf("%w: total assets must be non-negative", types.ErrInvalidParameter)
	}
	if state.LeverageRatio.IsNil() || state.LeverageRatio.IsNegative() {
		return fmt.Errorf("%w: leverage ratio must be non-negative", types.ErrInvalidParameter)
	}
	if state.LiquidityRatio.IsNil() || state.LiquidityRatio.IsNegative() {
		return fmt.Errorf("%w: liquidity ratio must be non-negative", types.ErrInvalidParameter)
	}
	if state.CorrelationRisk > maxSubScore {
		return fmt.Errorf("%w: correlation risk must be 0-100", types.ErrInvalidParameter)
	}
	if state.VolatilityRisk > maxSubScore {
		return fmt.Errorf("%w: volatility risk must be 0-100", types.ErrInvalidParameter)
	}
	if state.Timestamp.IsZero() {
		return fmt.Errorf("%w: portfolio state timestamp is required", types.ErrInvalidParameter)
	}
	return nil
}
