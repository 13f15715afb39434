/*

This file contains the types produced and owned by the risk manager: the
aggregate risk metrics, the discrete risk level derived from the score, and
the circuit breaker state.

*/

package types

import (
	"time"

	sdkmath "cosmossdk.io/math"
)

// RiskLevel is the discrete level derived from the 0-100 risk score.
// The ordering matters: the automated responder escalates on upward
// transitions and unwinds on downward ones.
type RiskLevel int

const (
	RiskLevelLow RiskLevel = iota
	RiskLevelMedium
	RiskLevelHigh
	RiskLevelCritical
)

// Score breakpoints are closed-open consistent: 40 is still Low, 41 is
// Medium, 80 is High, 81 is Critical.
const (
	riskLevelLowMax    = 40
	riskLevelMediumMax = 60
	riskLevelHighMax   = 80
)

// RiskLevelFromScore maps a risk score to its level via fixed breakpoints.
func RiskLevelFromScore(score uint8) RiskLevel {
	switch {
	case score <= riskLevelLowMax:
		return RiskLevelLow
	case score <= riskLevelMediumMax:
		return RiskLevelMedium
	case score <= riskLevelHighMax:
		return RiskLevelHigh
	default:
		return RiskLevelCritical
	}
}

func (l RiskLevel) String() string {
	switch l {
	case RiskLevelLow:
		return "low"
	case RiskLevelMedium:
		return "medium"
	case RiskLevelHigh:
		return "high"
	case RiskLevelCritical:
		return "critical"
	default:
		return "unknown"
	}
}

// RiskMetrics is the aggregate risk assessment produced on each scoring
// pass. Historical values are retained keyed by timestamp for audit and
// backtesting; only the risk scorer mutates the live copy.
type RiskMetrics struct {
	RiskScore       uint8             `json:"risk_score"`       // Weighted aggregate, 0-100.
	VarBps          uint64            `json:"var_bps"`          // Value at risk, basis points of TVL.
	LeverageRatio   sdkmath.LegacyDec `json:"leverage_ratio"`   // e.g. 1.5 for 1.5x.
	LiquidityRatio  sdkmath.LegacyDec `json:"liquidity_ratio"`  // Liquid assets / total assets, 0-1.
	DrawdownBps     uint64            `json:"drawdown_bps"`     // Current drawdown from high-water mark.
	CorrelationRisk uint8             `json:"correlation_risk"` // Supplied pre-clamped, 0-100.
	VolatilityRisk  uint8             `json:"volatility_risk"`  // Supplied pre-clamped, 0-100.
	Timestamp       time.Time         `json:"timestamp"`
}

// HealthScore is the inverse view some operators prefer: 100 means fully
// healthy, 0 means maximally stressed.
func (m RiskMetrics) HealthScore() uint8 {
	return 100 - m.RiskScore
}

// TriggerKind identifies which stress condition tripped the circuit breaker.
type TriggerKind string

const (
	TriggerPriceDrop          TriggerKind = "price_drop"
	TriggerVolatilitySpike    TriggerKind = "volatility_spike"
	TriggerLiquidityShortfall TriggerKind = "liquidity_shortfall"
	TriggerMaxDrawdown        TriggerKind = "max_drawdown"
	TriggerManual             TriggerKind = "manual"
)

// CircuitBreakerState is created on first trigger and persists until an
// authorized operator deactivates it. While active, all mutating operations
// must refuse; read-only queries remain available.
type CircuitBreakerState struct {
	Active      bool        `json:"active"`
	Reason      TriggerKind `json:"reason,omitempty"`
	ActivatedAt time.Time   `json:"activated_at,omitempty"`
}

// PortfolioState carries the analytic inputs for one evaluation pass. The
// leverage, liquidity and drawdown figures come from the custody ledger and
// venue queries; correlation and volatility sub-scores come from the
// portfolio analytics collaborator, pre-clamped to 0-100.
type PortfolioState struct {
	TotalAssets     sdkmath.Int       `json:"total_assets"`
	LeverageRatio   sdkmath.LegacyDec `json:"leverage_ratio"`
	LiquidityRatio  sdkmath.LegacyDec `json:"liquidity_ratio"`
	DrawdownBps     uint64            `json:"drawdown_bps"`
	CorrelationRisk uint8             `json:"correlation_risk"`
	VolatilityRisk  uint8             `json:"volatility_risk"`
	VarBps          uint64            `json:"var_bps"`
	RealizedVolBps  uint64            `json:"realized_vol_bps"` // Realized/implied volatility proxy.
	BaselineVolBps  uint64            `json:"baseline_vol_bps"` // Long-run baseline for the spike trigger.
	Timestamp       time.Time         `json:"timestamp"`
}
