package events

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBusFansOutToAllSubscribers(t *testing.T) {
	bus := NewBus()
	first := bus.Subscribe()
	second := bus.Subscribe()

	bus.Publish(RiskLevelChanged, "level changed", map[string]any{"score": 72})

	for _, ch := range []<-chan Event{first, second} {
		select {
		case evt := <-ch:
			assert.Equal(t, RiskLevelChanged, evt.Type)
			assert.Equal(t, "level changed", evt.Message)
			assert.Equal(t, 72, evt.Fields["score"])
			assert.False(t, evt.Timestamp.IsZero())
		default:
			t.Fatal("expected a buffered event")
		}
	}
}

func TestBusPublishWithoutSubscribersDoesNotBlock(t *testing.T) {
	bus := NewBus()
	bus.Publish(RebalanceExecuted, "no listeners", nil)
}

func TestBusDropsEventsForFullSubscriber(t *testing.T) {
	bus := NewBus()
	ch := bus.Subscribe()

	// Overfill the buffer; the publisher must never block on the stall.
	for i := 0; i < subscriberBuffer+10; i++ {
		bus.Publish(ParametersUpdated, "fill", nil)
	}

	received := 0
	for {
		select {
		case <-ch:
			received++
			continue
		default:
		}
		break
	}
	require.Equal(t, subscriberBuffer, received)
}
