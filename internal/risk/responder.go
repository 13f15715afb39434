/*

This file contains the automated risk responder: a level-transition state
machine. Responses fire on transitions only; a level that is re-reported
without changing never repeats its response. The downgrade path restores
deposits and the normal cadence exactly once.

*/

package risk

import (
	"sync"

	"github.com/rs/zerolog"

	"github.com/definite-protocol/dne/internal/events"
	"github.com/definite-protocol/dne/internal/logger"
	"github.com/definite-protocol/dne/internal/types"
	"github.com/definite-protocol/dne/internal/venues"
)

// Scheduler is the slice of the rebalancing engine the responder drives. It
// is deliberately narrow so the responder stays testable with a fake.
type Scheduler interface {
	// UseEmergencyInterval switches the upkeep cadence between the normal
	// and shortened check intervals.
	UseEmergencyInterval(enabled bool)

	// SetEmergencyMode raises or clears the engine's emergency flag.
	SetEmergencyMode(enabled bool)

	// RequestDeleverage marks the next cycle to plan a full deleverage
	// regardless of the execution threshold.
	RequestDeleverage()
}

// Responder reacts to risk level transitions.
type Responder struct {
	mu        sync.Mutex
	custody   venues.CustodyLedger
	scheduler Scheduler
	bus       *events.Bus
	logger    zerolog.Logger

	// escalated tracks whether this responder is currently holding the
	// deposits pause and emergency cadence, so the downgrade path unwinds
	// them exactly once.
	escalated bool
	emergency bool
}

// NewResponder wires the responder to its collaborators.
func NewResponder(custody venues.CustodyLedger, scheduler Scheduler, bus *events.Bus) *Responder {
	return &Responder{
		custody:   custody,
		scheduler: scheduler,
		bus:       bus,
		logger:    logger.GetForComponent("risk_responder"),
	}
}

// Apply executes the response for a level transition. The caller guarantees
// previous != current; Apply is a no-op otherwise.
func (r *Responder) Apply(previous, current types.RiskLevel) {
	if previous == current {
		return
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	r.logger.Info().
		Str("previousLevel", previous.String()).
		Str("currentLevel", current.String()).
		Msg("Risk level transition")

	switch {
	case current >= types.RiskLevelHigh:
		r.escalate(current)
	case previous >= types.RiskLevelHigh:
		r.deescalate(current)
	default:
		// Low <-> Medium: monitoring cadence only, no operational change.
		r.logger.Info().
			Str("level", current.String()).
			Msg("Risk level within monitoring band, no action taken")
	}
}

func (r *Responder) escalate(current types.RiskLevel) {
	if !r.escalated {
		r.escalated = true
		if err := r.custody.PauseDeposits(); err != nil {
			r.logger.Error().Err(err).Msg("Failed to pause deposits on escalation")
		} else {
			r.bus.Publish(events.DepositsPaused, "Deposits paused by risk responder", map[string]any{
				"level": current.String(),
			})
		}
		r.scheduler.UseEmergencyInterval(true)
	}

	if current == types.RiskLevelCritical && !r.emergency {
		r.emergency = true
		r.scheduler.SetEmergencyMode(true)
		r.scheduler.RequestDeleverage()
		r.bus.Publish(events.EmergencyModeEntered, "Critical risk level reached", map[string]any{
			"level": current.String(),
		})
		r.logger.Error().Msg("EMERGENCY MODE entered, deleverage requested")
	}

	if current == types.RiskLevelHigh && r.emergency {
		// Critical -> High: leave emergency mode, stay escalated.
		r.emergency = false
		r.scheduler.SetEmergencyMode(false)
		r.bus.Publish(events.EmergencyModeExited, "Risk level dropped below critical", map[string]any{
			"level": current.String(),
		})
	}
}

func (r *Responder) deescalate(current types.RiskLevel) {
	if r.emergency {
		r.emergency = false
		r.scheduler.SetEmergencyMode(false)
		r.bus.Publish(events.EmergencyModeExited, "Risk level dropped below critical", map[string]any{
			"level": current.String(),
		})
	}
	if !r.escalated {
		return
	}
	r.escalated = false
	if err := r.custody.ResumeDeposits(); err != nil {
		r.logger.Error().Err(err).Msg("Failed to resume deposits on de-escalation")
	} else {
		r.bus.Publish(events.DepositsResumed, "Deposits resumed by risk responder", map[string]any{
			"level": current.String(),
		})
	}
	r.scheduler.UseEmergencyInterval(false)
	r.logger.Info().
		Str("level", current.String()).
		Msg("Escalation unwound, normal cadence restored")
}
