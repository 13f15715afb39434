package risk

import (
	"sync"
	"testing"

	sdkmath "cosmossdk.io/math"
	"github.com/stretchr/testify/assert"

	"github.com/definite-protocol/dne/internal/events"
	"github.com/definite-protocol/dne/internal/types"
	"github.com/definite-protocol/dne/internal/venues"
)

type fakeScheduler struct {
	mu              sync.Mutex
	emergencyOn     int
	emergencyOff    int
	intervalToggles []bool
	deleverageCalls int
}

func (f *fakeScheduler) UseEmergencyInterval(enabled bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.intervalToggles = append(f.intervalToggles, enabled)
}

func (f *fakeScheduler) SetEmergencyMode(enabled bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if enabled {
		f.emergencyOn++
	} else {
		f.emergencyOff++
	}
}

func (f *fakeScheduler) RequestDeleverage() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deleverageCalls++
}

func newResponderFixture() (*Responder, *venues.SimCustodyLedger, *fakeScheduler) {
	custody := venues.NewSimCustodyLedger(sdkmath.NewInt(1_000_000), sdkmath.NewInt(1_000_000))
	sched := &fakeScheduler{}
	return NewResponder(custody, sched, events.NewBus()), custody, sched
}

func TestResponderPausesDepositsExactlyOnceOnEscalation(t *testing.T) {
	responder, custody, sched := newResponderFixture()

	responder.Apply(types.RiskLevelMedium, types.RiskLevelHigh)
	assert.True(t, custody.DepositsPaused())
	assert.Equal(t, 1, custody.PauseCalls())
	assert.Equal(t, []bool{true}, sched.intervalToggles)

	// Escalating further must not pause again.
	responder.Apply(types.RiskLevelHigh, types.RiskLevelCritical)
	assert.Equal(t, 1, custody.PauseCalls())
	assert.Equal(t, 1, sched.emergencyOn)
	assert.Equal(t, 1, sched.deleverageCalls)
}

func TestResponderUnchangedLevelIsNoOp(t *testing.T) {
	responder, custody, sched := newResponderFixture()

	responder.Apply(types.RiskLevelMedium, types.RiskLevelHigh)
	responder.Apply(types.RiskLevelHigh, types.RiskLevelHigh)

	assert.Equal(t, 1, custody.PauseCalls())
	assert.Empty(t, sched.intervalToggles[1:])
}

func TestResponderDowngradeRestoresExactlyOnce(t *testing.T) {
	responder, custody, sched := newResponderFixture()

	responder.Apply(types.RiskLevelMedium, types.RiskLevelHigh)
	responder.Apply(types.RiskLevelHigh, types.RiskLevelCritical)

	responder.Apply(types.RiskLevelCritical, types.RiskLevelMedium)
	assert.False(t, custody.DepositsPaused())
	assert.Equal(t, 1, custody.ResumeCalls())
	assert.Equal(t, 1, sched.emergencyOff)
	assert.Equal(t, []bool{true, false}, sched.intervalToggles)

	// Dropping further must not resume a second time.
	responder.Apply(types.RiskLevelMedium, types.RiskLevelLow)
	assert.Equal(t, 1, custody.ResumeCalls())
	assert.Equal(t, []bool{true, false}, sched.intervalToggles)
}

func TestResponderCriticalToHighLeavesEmergencyButStaysEscalated(t *testing.T) {
	responder, custody, sched := newResponderFixture()

	responder.Apply(types.RiskLevelMedium, types.RiskLevelCritical)
	assert.Equal(t, 1, sched.emergencyOn)
	assert.Equal(t, 1, custody.PauseCalls())

	responder.Apply(types.RiskLevelCritical, types.RiskLevelHigh)
	assert.Equal(t, 1, sched.emergencyOff)
	assert.True(t, custody.DepositsPaused())
	assert.Equal(t, 0, custody.ResumeCalls())
}

func TestResponderLowMediumBandTakesNoAction(t *testing.T) {
	responder, custody, sched := newResponderFixture()

	responder.Apply(types.RiskLevelLow, types.RiskLevelMedium)
	responder.Apply(types.RiskLevelMedium, types.RiskLevelLow)

	assert.Equal(t, 0, custody.PauseCalls())
	assert.Equal(t, 0, custody.ResumeCalls())
	assert.Empty(t, sched.intervalToggles)
	assert.Equal(t, 0, sched.deleverageCalls)
}
