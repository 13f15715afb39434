// Package events is the typed notification channel the engine publishes to
// after each state transition. Publishing is decoupled from the decision
// logic: the core never blocks on a slow listener, so it stays testable
// without a live event bus.
package events

import (
	"sync"
	"time"

	"github.com/definite-protocol/dne/internal/logger"
	"github.com/rs/zerolog"
)

// EventType identifies the state transition being announced.
type EventType string

const (
	RiskLevelChanged          EventType = "risk_level_changed"
	CircuitBreakerTriggered   EventType = "circuit_breaker_triggered"
	CircuitBreakerDeactivated EventType = "circuit_breaker_deactivated"
	RebalanceExecuted         EventType = "rebalance_executed"
	RebalanceFailed           EventType = "rebalance_failed"
	DepositsPaused            EventType = "deposits_paused"
	DepositsResumed           EventType = "deposits_resumed"
	EmergencyModeEntered      EventType = "emergency_mode_entered"
	EmergencyModeExited       EventType = "emergency_mode_exited"
	ParametersUpdated         EventType = "parameters_updated"
	KeeperAdded               EventType = "keeper_added"
	KeeperRemoved             EventType = "keeper_removed"
	TargetDeltaUpdated        EventType = "target_delta_updated"
	FundingRateUpdated        EventType = "funding_rate_updated"
)

// Event is a single published notification.
type Event struct {
	Type      EventType      `json:"type"`
	Message   string         `json:"message,omitempty"`
	Fields    map[string]any `json:"fields,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
}

// subscriberBuffer bounds per-subscriber queues; a stalled subscriber drops
// events rather than stalling the engine.
const subscriberBuffer = 64

// Bus fans events out to subscribers.
type Bus struct {
	mu     sync.RWMutex
	subs   []chan Event
	logger zerolog.Logger
}

// NewBus creates an empty bus.
func NewBus() *Bus {
	return &Bus{logger: logger.GetForComponent("event_bus")}
}

// Subscribe returns a receive-only channel of future events.
func (b *Bus) Subscribe() <-chan Event {
	ch := make(chan Event, subscriberBuffer)
	b.mu.Lock()
	b.subs = append(b.subs, ch)
	b.mu.Unlock()
	return ch
}

// Publish delivers the event to every subscriber without blocking. Events
// for full subscribers are dropped and counted in the log.
func (b *Bus) Publish(eventType EventType, message string, fields map[string]any) {
	evt := Event{
		Type:      eventType,
		Message:   message,
		Fields:    fields,
		Timestamp: time.Now().UTC(),
	}

	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, ch := range b.subs {
		select {
		case ch <- evt:
		default:
			b.logger.Warn().
				Str("eventType", string(eventType)).
				Msg("Dropped event for slow subscriber")
		}
	}

	b.logger.Debug().
		Str("eventType", string(eventType)).
		Str("message", message).
		Msg("Event published")
}
