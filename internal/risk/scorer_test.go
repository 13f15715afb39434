package risk

import (
	"testing"
	"time"

	sdkmath "cosmossdk.io/math"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/definite-protocol/dne/internal/types"
)

func testRiskParams() types.RiskParameters {
	return types.RiskParameters{
		Weights:           types.RiskWeights{Leverage: 25, Liquidity: 20, Drawdown: 30, Correlation: 15, Volatility: 10},
		MaxLeverage:       sdkmath.LegacyNewDecWithPrec(20, 1), // 2.0
		MinLiquidityRatio: sdkmath.LegacyNewDecWithPrec(1, 1),  // 0.10
		MaxDrawdownBps:    2000,
	}
}

func testPortfolioState() types.PortfolioState {
	return types.PortfolioState{
		TotalAssets:     sdkmath.NewInt(1_000_000),
		LeverageRatio:   sdkmath.LegacyNewDecWithPrec(15, 1), // 1.5x
		LiquidityRatio:  sdkmath.LegacyNewDecWithPrec(2, 1),  // 0.20
		DrawdownBps:     500,                                 // 5%
		CorrelationRisk: 40,
		VolatilityRisk:  35,
		Timestamp:       time.Now().UTC(),
	}
}

func TestLeverageSubScoreScalesAgainstMax(t *testing.T) {
	score, err := LeverageSubScore(sdkmath.LegacyNewDecWithPrec(15, 1), sdkmath.LegacyNewDecWithPrec(20, 1))
	require.NoError(t, err)
	assert.Equal(t, uint64(75), score)

	// Saturates at 100 beyond the configured maximum.
	score, err = LeverageSubScore(sdkmath.LegacyNewDec(5), sdkmath.LegacyNewDecWithPrec(20, 1))
	require.NoError(t, err)
	assert.Equal(t, uint64(100), score)

	_, err = LeverageSubScore(sdkmath.LegacyNewDec(-1), sdkmath.LegacyNewDec(2))
	assert.ErrorIs(t, err, types.ErrInvalidParameter)
}

func TestLiquiditySubScoreInverseScalingWithFloorRounding(t *testing.T) {
	// (1 - 0.2) / (1 - 0.1) * 100 = 88.88... -> floored to 88.
	score, err := LiquiditySubScore(sdkmath.LegacyNewDecWithPrec(2, 1), sdkmath.LegacyNewDecWithPrec(1, 1))
	require.NoError(t, err)
	assert.Equal(t, uint64(88), score)

	// At or below the minimum the score saturates at 100.
	score, err = LiquiditySubScore(sdkmath.LegacyNewDecWithPrec(1, 1), sdkmath.LegacyNewDecWithPrec(1, 1))
	require.NoError(t, err)
	assert.Equal(t, uint64(100), score)

	score, err = LiquiditySubScore(sdkmath.LegacyNewDecWithPrec(5, 2), sdkmath.LegacyNewDecWithPrec(1, 1))
	require.NoError(t, err)
	assert.Equal(t, uint64(100), score)

	// Fully liquid means no illiquidity risk at all.
	score, err = LiquiditySubScore(sdkmath.LegacyOneDec(), sdkmath.LegacyNewDecWithPrec(1, 1))
	require.NoError(t, err)
	assert.Equal(t, uint64(0), score)
}

func TestDrawdownSubScoreScalesAndSaturates(t *testing.T) {
	assert.Equal(t, uint64(25), DrawdownSubScore(500, 2000))
	assert.Equal(t, uint64(100), DrawdownSubScore(2000, 2000))
	assert.Equal(t, uint64(100), DrawdownSubScore(9000, 2000))
	assert.Equal(t, uint64(0), DrawdownSubScore(0, 2000))
}

func TestCalculateRiskScoreWeightedAggregate(t *testing.T) {
	metrics, err := CalculateRiskScore(testPortfolioState(), testRiskParams())
	require.NoError(t, err)

	// 25*75 + 20*88 + 30*25 + 15*40 + 10*35 = 5335; /100 = 53 (floored).
	assert.Equal(t, uint8(53), metrics.RiskScore)
	assert.Equal(t, types.RiskLevelMedium, types.RiskLevelFromScore(metrics.RiskScore))
	assert.Equal(t, uint8(47), metrics.HealthScore())
}

func TestCalculateRiskScoreStaysWithinBounds(t *testing.T) {
	// Every input maxed out still yields a score of at most 100.
	state := types.PortfolioState{
		TotalAssets:     sdkmath.NewInt(1),
		LeverageRatio:   sdkmath.LegacyNewDec(100),
		LiquidityRatio:  sdkmath.LegacyZeroDec(),
		DrawdownBps:     10_000,
		CorrelationRisk: 100,
		VolatilityRisk:  100,
		Timestamp:       time.Now().UTC(),
	}
	metrics, err := CalculateRiskScore(state, testRiskParams())
	require.NoError(t, err)
	assert.Equal(t, uint8(100), metrics.RiskScore)

	// Every input at rest yields zero.
	calm := types.PortfolioState{
		TotalAssets:    sdkmath.NewInt(1_000_000),
		LeverageRatio:  sdkmath.LegacyZeroDec(),
		LiquidityRatio: sdkmath.LegacyOneDec(),
		Timestamp:      time.Now().UTC(),
	}
	metrics, err = CalculateRiskScore(calm, testRiskParams())
	require.NoError(t, err)
	assert.Equal(t, uint8(0), metrics.RiskScore)
}

func TestCalculateRiskScoreRejectsInvalidInputs(t *testing.T) {
	badParams := testRiskParams()
	badParams.Weights.Volatility = 11
	_, err := CalculateRiskScore(testPortfolioState(), badParams)
	assert.ErrorIs(t, err, ErrInvalidRiskParameters)

	badState := testPortfolioState()
	badState.CorrelationRisk = 101
	_, err = CalculateRiskScore(badState, testRiskParams())
	assert.ErrorIs(t, err, ErrInvalidPortfolioState)
}

func TestHedgeRatioBpsClamped(t *testing.T) {
	// 0.40 correlation x 0.35 volatility = 1400 bps.
	assert.Equal(t, uint64(1400), HedgeRatioBps(4000, 3500))
	assert.Equal(t, uint64(types.BpsDenominator), HedgeRatioBps(types.BpsDenominator, types.BpsDenominator*2))
	assert.Equal(t, uint64(0), HedgeRatioBps(0, 9000))
}
