package risk

import (
	"testing"
	"time"

	sdkmath "cosmossdk.io/math"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/definite-protocol/dne/internal/types"
)

func testBreakerParams() types.CircuitBreakerParams {
	return types.CircuitBreakerParams{
		PriceDropBps:          1000, // 10%
		PriceWindow:           15 * time.Minute,
		VolatilityMultipleBps: 30000, // 3x
		MinLiquidityRatio:     sdkmath.LegacyNewDecWithPrec(5, 2),
		MaxDrawdownBps:        2500,
	}
}

func calmState(now time.Time) types.PortfolioState {
	return types.PortfolioState{
		TotalAssets:    sdkmath.NewInt(1_000_000),
		LeverageRatio:  sdkmath.LegacyOneDec(),
		LiquidityRatio: sdkmath.LegacyNewDecWithPrec(5, 1),
		BaselineVolBps: 1000,
		RealizedVolBps: 1000,
		Timestamp:      now,
	}
}

func TestPriceDropTriggerOverWindow(t *testing.T) {
	now := time.Now().UTC()
	history := NewPriceHistory()

	// 100 at t-900s, 88 at t: a 12% drop over the 15 minute window.
	require.NoError(t, history.Record(sdkmath.LegacyNewDec(100), now.Add(-900*time.Second)))
	require.NoError(t, history.Record(sdkmath.LegacyNewDec(88), now))

	reason, triggered := EvaluateTriggers(history, calmState(now), testBreakerParams(), now)
	assert.True(t, triggered)
	assert.Equal(t, types.TriggerPriceDrop, reason)
}

func TestPriceDropBelowThresholdDoesNotTrigger(t *testing.T) {
	now := time.Now().UTC()
	history := NewPriceHistory()

	require.NoError(t, history.Record(sdkmath.LegacyNewDec(100), now.Add(-900*time.Second)))
	require.NoError(t, history.Record(sdkmath.LegacyNewDec(91), now)) // 9% < 10%

	_, triggered := EvaluateTriggers(history, calmState(now), testBreakerParams(), now)
	assert.False(t, triggered)
}

func TestPriceDropNeedsTwoSamples(t *testing.T) {
	now := time.Now().UTC()
	history := NewPriceHistory()

	// A single sample, or no sample old enough, must never trigger.
	require.NoError(t, history.Record(sdkmath.LegacyNewDec(88), now))
	_, triggered := EvaluateTriggers(history, calmState(now), testBreakerParams(), now)
	assert.False(t, triggered)

	history = NewPriceHistory()
	require.NoError(t, history.Record(sdkmath.LegacyNewDec(100), now.Add(-5*time.Minute)))
	require.NoError(t, history.Record(sdkmath.LegacyNewDec(88), now))
	_, triggered = EvaluateTriggers(history, calmState(now), testBreakerParams(), now)
	assert.False(t, triggered)
}

func TestPriceDropIgnoresStaleReference(t *testing.T) {
	now := time.Now().UTC()
	history := NewPriceHistory()

	// The only sample old enough sits 3 windows back: a 20% decline over
	// 45 minutes is not a drop within the 15 minute window.
	require.NoError(t, history.Record(sdkmath.LegacyNewDec(100), now.Add(-45*time.Minute)))
	require.NoError(t, history.Record(sdkmath.LegacyNewDec(80), now))

	_, triggered := EvaluateTriggers(history, calmState(now), testBreakerParams(), now)
	assert.False(t, triggered)

	// A reference inside the measurement band makes the same drop fire.
	require.NoError(t, history.Record(sdkmath.LegacyNewDec(100), now.Add(time.Second)))
	require.NoError(t, history.Record(sdkmath.LegacyNewDec(80), now.Add(20*time.Minute)))
	reason, triggered := EvaluateTriggers(history, calmState(now), testBreakerParams(), now.Add(20*time.Minute))
	assert.True(t, triggered)
	assert.Equal(t, types.TriggerPriceDrop, reason)
}

func TestVolatilitySpikeTrigger(t *testing.T) {
	now := time.Now().UTC()
	state := calmState(now)
	state.RealizedVolBps = 3000 // exactly 3x baseline

	reason, triggered := EvaluateTriggers(NewPriceHistory(), state, testBreakerParams(), now)
	assert.True(t, triggered)
	assert.Equal(t, types.TriggerVolatilitySpike, reason)

	// Missing baseline means the input is unavailable; skip, never fire.
	state.BaselineVolBps = 0
	_, triggered = EvaluateTriggers(NewPriceHistory(), state, testBreakerParams(), now)
	assert.False(t, triggered)
}

func TestLiquidityShortfallTrigger(t *testing.T) {
	now := time.Now().UTC()
	state := calmState(now)
	state.LiquidityRatio = sdkmath.LegacyNewDecWithPrec(4, 2) // 0.04 < 0.05

	reason, triggered := EvaluateTriggers(NewPriceHistory(), state, testBreakerParams(), now)
	assert.True(t, triggered)
	assert.Equal(t, types.TriggerLiquidityShortfall, reason)
}

func TestMaxDrawdownTrigger(t *testing.T) {
	now := time.Now().UTC()
	state := calmState(now)
	state.DrawdownBps = 2500

	reason, triggered := EvaluateTriggers(NewPriceHistory(), state, testBreakerParams(), now)
	assert.True(t, triggered)
	assert.Equal(t, types.TriggerMaxDrawdown, reason)
}

func TestTriggerOrderIsFirstMatch(t *testing.T) {
	now := time.Now().UTC()
	history := NewPriceHistory()
	require.NoError(t, history.Record(sdkmath.LegacyNewDec(100), now.Add(-900*time.Second)))
	require.NoError(t, history.Record(sdkmath.LegacyNewDec(80), now))

	// Every condition is met at once; price drop wins by ordering.
	state := calmState(now)
	state.RealizedVolBps = 9000
	state.LiquidityRatio = sdkmath.LegacyNewDecWithPrec(1, 2)
	state.DrawdownBps = 5000

	reason, triggered := EvaluateTriggers(history, state, testBreakerParams(), now)
	assert.True(t, triggered)
	assert.Equal(t, types.TriggerPriceDrop, reason)
}

func TestBreakerIsStickyAndKeepsFirstReason(t *testing.T) {
	now := time.Now().UTC()
	breaker := NewCircuitBreaker()

	assert.True(t, breaker.Trip(types.TriggerPriceDrop, now))
	assert.True(t, breaker.Active())

	// A second trip is a no-op preserving the original reason.
	assert.False(t, breaker.Trip(types.TriggerMaxDrawdown, now.Add(time.Minute)))
	assert.Equal(t, types.TriggerPriceDrop, breaker.State().Reason)
	assert.Equal(t, now, breaker.State().ActivatedAt)

	assert.True(t, breaker.Deactivate())
	assert.False(t, breaker.Active())
	assert.False(t, breaker.Deactivate())

	// After deactivation the same stressed inputs can trip it again.
	assert.True(t, breaker.Trip(types.TriggerMaxDrawdown, now.Add(2*time.Minute)))
	assert.Equal(t, types.TriggerMaxDrawdown, breaker.State().Reason)
}

func TestPriceHistoryLookback(t *testing.T) {
	now := time.Now().UTC()
	history := NewPriceHistory()

	require.NoError(t, history.Record(sdkmath.LegacyNewDec(95), now.Add(-30*time.Minute)))
	require.NoError(t, history.Record(sdkmath.LegacyNewDec(100), now.Add(-20*time.Minute)))
	require.NoError(t, history.Record(sdkmath.LegacyNewDec(98), now.Add(-10*time.Minute)))

	latest, ok := history.Latest()
	require.True(t, ok)
	assert.Equal(t, "98.000000000000000000", latest.Price.String())

	// The lookback returns the newest sample at or before the cutoff.
	sample, ok := history.SampleAtOrBefore(now.Add(-15 * time.Minute))
	require.True(t, ok)
	assert.Equal(t, "100.000000000000000000", sample.Price.String())

	_, ok = history.SampleAtOrBefore(now.Add(-time.Hour))
	assert.False(t, ok)

	// Out-of-order and non-positive samples are rejected.
	assert.Error(t, history.Record(sdkmath.LegacyNewDec(97), now.Add(-25*time.Minute)))
	assert.Error(t, history.Record(sdkmath.LegacyZeroDec(), now))
}
