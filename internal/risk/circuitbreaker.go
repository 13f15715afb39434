/*

This file contains the circuit breaker: ordered trigger evaluation plus the
sticky active state. Trigger order is fixed (price drop, volatility spike,
liquidity shortfall, max drawdown) and evaluation stops at the first match.
A trigger whose inputs are missing is skipped, never fired.

*/

package risk

import (
	"sync"
	"time"

	"github.com/definite-protocol/dne/internal/logger"
	"github.com/definite-protocol/dne/internal/types"
)

var breakerLogger = logger.GetForComponent("circuit_breaker")

// EvaluateTriggers runs the ordered trigger checks against the current
// portfolio state and price history. It reports the first matching trigger,
// or false when no stress condition is met.
func EvaluateTriggers(history *PriceHistory, state types.PortfolioState, params types.CircuitBreakerParams, now time.Time) (types.TriggerKind, bool) {
	if kind, ok := priceDropTriggered(history, params, now); ok {
		return kind, true
	}
	if kind, ok := volatilitySpikeTriggered(state, params); ok {
		return kind, true
	}
	if !state.LiquidityRatio.IsNil() && state.LiquidityRatio.LT(params.MinLiquidityRatio) {
		return types.TriggerLiquidityShortfall, true
	}
	if state.DrawdownBps >= params.MaxDrawdownBps {
		return types.TriggerMaxDrawdown, true
	}
	return "", false
}

// referenceWindowMultiple bounds how far past the lookback window the
// reference sample may sit. The trigger measures a drop over the configured
// timeframe; comparing against an arbitrarily old sample would let a slow
// multi-day decline masquerade as a sudden drop.
const referenceWindowMultiple = 2

// priceDropTriggered compares the latest price against the newest sample at
// or before the lookback cutoff. It needs two samples to fire; with fewer,
// with no sample old enough, or with a reference staler than twice the
// window, the trigger is skipped.
func priceDropTriggered(history *PriceHistory, params types.CircuitBreakerParams, now time.Time) (types.TriggerKind, bool) {
	if history == nil {
		return "", false
	}
	latest, ok := history.Latest()
	if !ok {
		return "", false
	}
	reference, ok := history.SampleAtOrBefore(now.Add(-params.PriceWindow))
	if !ok || reference.Timestamp.Equal(latest.Timestamp) {
		return "", false
	}
	if reference.Timestamp.Before(now.Add(-referenceWindowMultiple * params.PriceWindow)) {
		return "", false
	}
	if !reference.Price.IsPositive() || latest.Price.GTE(reference.Price) {
		return "", false
	}

	dropBps := reference.Price.Sub(latest.Price).
		MulInt64(types.BpsDenominator).
		Quo(reference.Price).
		TruncateInt64()
	if uint64(dropBps) >= params.PriceDropBps {
		breakerLogger.Warn().
			Int64("dropBps", dropBps).
			Uint64("thresholdBps", params.PriceDropBps).
			Str("window", params.PriceWindow.String()).
			Msg("Price drop trigger condition met")
		return types.TriggerPriceDrop, true
	}
	return "", false
}

// volatilitySpikeTriggered compares realized volatility against the
// long-run baseline. A zero baseline means the input is unavailable and the
// trigger is skipped.
func volatilitySpikeTriggered(state types.PortfolioState, params types.CircuitBreakerParams) (types.TriggerKind, bool) {
	if state.BaselineVolBps == 0 {
		return "", false
	}
	ratioBps := state.RealizedVolBps * types.BpsDenominator / state.BaselineVolBps
	if ratioBps >= params.VolatilityMultipleBps {
		breakerLogger.Warn().
			Uint64("realizedVolBps", state.RealizedVolBps).
			Uint64("baselineVolBps", state.BaselineVolBps).
			Uint64("ratioBps", ratioBps).
			Msg("Volatility spike trigger condition met")
		return types.TriggerVolatilitySpike, true
	}
	return "", false
}

// CircuitBreaker holds the sticky active state. Once tripped it stays
// active, retaining the original reason and activation time, until an
// authorized operator deactivates it.
type CircuitBreaker struct {
	mu    sync.Mutex
	state types.CircuitBreakerState
}

// NewCircuitBreaker creates an inactive breaker.
func NewCircuitBreaker() *CircuitBreaker {
	return &CircuitBreaker{}
}

// Trip activates the breaker. Tripping an already-active breaker is a no-op
// that preserves the original reason; the return value reports whether this
// call performed the activation.
func (b *CircuitBreaker) Trip(reason types.TriggerKind, now time.Time) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.state.Active {
		return false
	}
	b.state = types.CircuitBreakerState{
		Active:      true,
		Reason:      reason,
		ActivatedAt: now,
	}
	breakerLogger.Error().
		Str("reason", string(reason)).
		Time("activatedAt", now).
		Msg("Circuit breaker ACTIVATED")
	return true
}

// Deactivate clears the breaker. The return value reports whether it was
// active.
func (b *CircuitBreaker) Deactivate() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	if !b.state.Active {
		return false
	}
	previous := b.state.Reason
	b.state = types.CircuitBreakerState{}
	breakerLogger.Info().
		Str("previousReason", string(previous)).
		Msg("Circuit breaker deactivated")
	return true
}

// Active reports whether the breaker is tripped.
func (b *CircuitBreaker) Active() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state.Active
}

// State returns a copy of the breaker state.
func (b *CircuitBreaker) State() types.CircuitBreakerState {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}
