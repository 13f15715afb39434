/*

This file contains the risk manager: the stateful owner of the live risk
metrics, the circuit breaker, and the price history. CalculateRiskScore is
the single mutating scoring entry point; every other read is a copy of the
last committed assessment.

*/

package risk

import (
	"errors"
	"fmt"
	"sync"
	"time"

	sdkmath "cosmossdk.io/math"
	"github.com/rs/zerolog"

	"github.com/definite-protocol/dne/internal/auth"
	"github.com/definite-protocol/dne/internal/events"
	"github.com/definite-protocol/dne/internal/logger"
	"github.com/definite-protocol/dne/internal/types"
	"github.com/definite-protocol/dne/internal/venues"
)

var ErrNoRiskAssessment = errors.New("no risk assessment recorded yet")

// Archiver persists assessments for audit. A nil archiver disables
// persistence; archive failures are logged, never fatal to scoring.
type Archiver interface {
	SaveRiskMetrics(metrics types.RiskMetrics, level types.RiskLevel) error
	SavePrice(price sdkmath.LegacyDec, ts time.Time) error
}

// Manager owns the live risk state.
type Manager struct {
	mu sync.Mutex

	owner     *auth.Ownable
	analytics venues.PortfolioAnalytics
	breaker   *CircuitBreaker
	history   *PriceHistory
	responder *Responder
	archiver  Archiver
	bus       *events.Bus
	logger    zerolog.Logger

	riskParams    types.RiskParameters
	breakerParams types.CircuitBreakerParams

	metrics      types.RiskMetrics
	level        types.RiskLevel
	scored       bool
	lastState    types.PortfolioState
	scoreHistory []scoredEntry
}

type scoredEntry struct {
	metrics types.RiskMetrics
	level   types.RiskLevel
}

// maxScoreHistory bounds the in-memory assessment trail; the full trail
// lives in the audit store.
const maxScoreHistory = 1024

// NewManager creates a manager with validated initial parameters. The
// responder is attached separately because it closes over the engine, which
// is constructed after the manager.
func NewManager(owner types.Address, riskParams types.RiskParameters, breakerParams types.CircuitBreakerParams, analytics venues.PortfolioAnalytics, bus *events.Bus, archiver Archiver) (*Manager, error) {
	if err := riskParams.Validate(); err != nil {
		return nil, errors.Join(ErrInvalidRiskParameters, err)
	}
	if err := breakerParams.Validate(); err != nil {
		return nil, errors.Join(errors.New("invalid circuit breaker parameters"), err)
	}
	if analytics == nil {
		return nil, fmt.Errorf("%w: portfolio analytics collaborator is required", types.ErrInvalidParameter)
	}
	if bus == nil {
		return nil, fmt.Errorf("%w: event bus is required", types.ErrInvalidParameter)
	}
	ownable, err := auth.NewOwnable(owner)
	if err != nil {
		return nil, err
	}

	return &Manager{
		owner:         ownable,
		analytics:     analytics,
		breaker:       NewCircuitBreaker(),
		history:       NewPriceHistory(),
		archiver:      archiver,
		bus:           bus,
		logger:        logger.GetForComponent("risk_manager"),
		riskParams:    riskParams,
		breakerParams: breakerParams,
		level:         types.RiskLevelLow,
	}, nil
}

// AttachResponder installs the automated responder. Scoring before a
// responder is attached still updates metrics; transitions are only logged.
func (m *Manager) AttachResponder(r *Responder) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.responder = r
}

// Owner returns the current owner address.
func (m *Manager) Owner() types.Address {
	return m.owner.Owner()
}

// TransferOwnership hands the manager to a new owner.
func (m *Manager) TransferOwnership(caller, newOwner types.Address) error {
	return m.owner.TransferOwnership(caller, newOwner)
}

// CalculateRiskScore fetches a fresh portfolio snapshot, scores it, commits
// the new metrics and level, archives the assessment, and fires the
// responder when the level changed. The genesis level Low is the baseline
// for the first assessment, so a daemon started under stress escalates on
// its very first score. It returns the committed metrics.
func (m *Manager) CalculateRiskScore() (types.RiskMetrics, error) {
	state, err := m.analytics.Snapshot()
	if err != nil {
		return types.RiskMetrics{}, errors.Join(errors.New("portfolio snapshot failed"), err)
	}

	m.mu.Lock()
	params := m.riskParams
	m.mu.Unlock()

	metrics, err := CalculateRiskScore(state, params)
	if err != nil {
		return types.RiskMetrics{}, err
	}
	level := types.RiskLevelFromScore(metrics.RiskScore)

	m.mu.Lock()
	previous := m.level
	m.metrics = metrics
	m.level = level
	m.scored = true
	m.lastState = state
	m.scoreHistory = append(m.scoreHistory, scoredEntry{metrics: metrics, level: level})
	if len(m.scoreHistory) > maxScoreHistory {
		m.scoreHistory = m.scoreHistory[len(m.scoreHistory)-maxScoreHistory:]
	}
	responder := m.responder
	m.mu.Unlock()

	if m.archiver != nil {
		if err := m.archiver.SaveRiskMetrics(metrics, level); err != nil {
			m.logger.Error().Err(err).Msg("Failed to archive risk metrics")
		}
	}

	if level != previous {
		m.bus.Publish(events.RiskLevelChanged, "Risk level changed", map[string]any{
			"previous": previous.String(),
			"current":  level.String(),
			"score":    metrics.RiskScore,
		})
		if responder != nil {
			responder.Apply(previous, level)
		}
	}

	m.logger.Info().
		Uint8("riskScore", metrics.RiskScore).
		Str("riskLevel", level.String()).
		Uint8("healthScore", metrics.HealthScore()).
		Msg("Risk assessment committed")

	return metrics, nil
}

// GetRiskMetrics returns the last committed assessment.
func (m *Manager) GetRiskMetrics() (types.RiskMetrics, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.scored {
		return types.RiskMetrics{}, ErrNoRiskAssessment
	}
	return m.metrics, nil
}

// GetRiskLevel returns the last committed level. Before any assessment the
// level reports Low.
func (m *Manager) GetRiskLevel() types.RiskLevel {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.level
}

// ScoreAt returns the newest committed assessment at or before ts.
func (m *Manager) ScoreAt(ts time.Time) (types.RiskMetrics, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := len(m.scoreHistory) - 1; i >= 0; i-- {
		if !m.scoreHistory[i].metrics.Timestamp.After(ts) {
			return m.scoreHistory[i].metrics, nil
		}
	}
	return types.RiskMetrics{}, ErrNoRiskAssessment
}

// RecordPrice appends a price observation to the breaker's lookback history
// and archives it.
func (m *Manager) RecordPrice(price sdkmath.LegacyDec, ts time.Time) error {
	if err := m.history.Record(price, ts); err != nil {
		return err
	}
	if m.archiver != nil {
		if err := m.archiver.SavePrice(price, ts); err != nil {
			m.logger.Error().Err(err).Msg("Failed to archive price observation")
		}
	}
	return nil
}

// CheckCircuitBreaker evaluates the ordered triggers against the last
// scored portfolio state and the price history, tripping the breaker on the
// first match. The active state is sticky: once tripped, re-evaluation
// changes nothing until an operator deactivates.
func (m *Manager) CheckCircuitBreaker(now time.Time) types.CircuitBreakerState {
	if m.breaker.Active() {
		return m.breaker.State()
	}

	// Before the first assessment lastState is the zero value: the
	// liquidity and volatility triggers see missing inputs and skip, the
	// drawdown trigger sees zero against a validated positive threshold.
	// Only the price-drop trigger can fire from history alone.
	m.mu.Lock()
	state := m.lastState
	params := m.breakerParams
	m.mu.Unlock()

	reason, triggered := EvaluateTriggers(m.history, state, params, now)
	if !triggered {
		return m.breaker.State()
	}
	if m.breaker.Trip(reason, now) {
		m.bus.Publish(events.CircuitBreakerTriggered, "Circuit breaker triggered", map[string]any{
			"reason": string(reason),
		})
	}
	return m.breaker.State()
}

// BreakerActive reports whether the circuit breaker is tripped.
func (m *Manager) BreakerActive() bool {
	return m.breaker.Active()
}

// CircuitBreakerState returns a copy of the breaker state.
func (m *Manager) CircuitBreakerState() types.CircuitBreakerState {
	return m.breaker.State()
}

// ActivateCircuitBreaker trips the breaker manually. Owner-only.
func (m *Manager) ActivateCircuitBreaker(caller types.Address, reason types.TriggerKind, now time.Time) error {
	if err := m.owner.AssertOwner(caller); err != nil {
		return err
	}
	if reason == "" {
		reason = types.TriggerManual
	}
	if m.breaker.Trip(reason, now) {
		m.bus.Publish(events.CircuitBreakerTriggered, "Circuit breaker triggered manually", map[string]any{
			"reason": string(reason),
			"caller": string(caller),
		})
	}
	return nil
}

// DeactivateCircuitBreaker clears the breaker. Owner-only; this is the only
// path out of the sticky active state.
func (m *Manager) DeactivateCircuitBreaker(caller types.Address) error {
	if err := m.owner.AssertOwner(caller); err != nil {
		return err
	}
	if m.breaker.Deactivate() {
		m.bus.Publish(events.CircuitBreakerDeactivated, "Circuit breaker deactivated", map[string]any{
			"caller": string(caller),
		})
	}
	return nil
}

// SetRiskThresholds replaces the scoring parameters. Owner-only; validation
// is atomic, a rejected set leaves the previous one untouched.
func (m *Manager) SetRiskThresholds(caller types.Address, params types.RiskParameters) error {
	if err := m.owner.AssertOwner(caller); err != nil {
		return err
	}
	if err := params.Validate(); err != nil {
		return errors.Join(ErrInvalidRiskParameters, err)
	}

	m.mu.Lock()
	m.riskParams = params
	m.mu.Unlock()

	m.bus.Publish(events.ParametersUpdated, "Risk parameters updated", map[string]any{
		"caller": string(caller),
	})
	m.logger.Info().Str("caller", string(caller)).Msg("Risk thresholds updated")
	return nil
}

// SetCircuitBreakerParams replaces the trigger thresholds. Owner-only.
func (m *Manager) SetCircuitBreakerParams(caller types.Address, params types.CircuitBreakerParams) error {
	if err := m.owner.AssertOwner(caller); err != nil {
		return err
	}
	if err := params.Validate(); err != nil {
		return errors.Join(errors.New("invalid circuit breaker parameters"), err)
	}

	m.mu.Lock()
	m.breakerParams = params
	m.mu.Unlock()

	m.bus.Publish(events.ParametersUpdated, "Circuit breaker parameters updated", map[string]any{
		"caller": string(caller),
	})
	m.logger.Info().Str("caller", string(caller)).Msg("Circuit breaker parameters updated")
	return nil
}

// RiskParameters returns the active scoring parameters.
func (m *Manager) RiskParameters() types.RiskParameters {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.riskParams
}

// CircuitBreakerParams returns the active trigger thresholds.
func (m *Manager) CircuitBreakerParams() types.CircuitBreakerParams {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.breakerParams
}

// EstimateHedgeRatioBps derives the hedge ratio from the last committed
// assessment's correlation and volatility sub-scores.
func (m *Manager) EstimateHedgeRatioBps() (uint64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.scored {
		return 0, ErrNoRiskAssessment
	}
	correlationBps := uint64(m.metrics.CorrelationRisk) * 100
	volatilityBps := uint64(m.metrics.VolatilityRisk) * 100
	return HedgeRatioBps(correlationBps, volatilityBps), nil
}
