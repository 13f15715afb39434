package risk

import (
	"testing"
	"time"

	sdkmath "cosmossdk.io/math"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/definite-protocol/dne/internal/events"
	"github.com/definite-protocol/dne/internal/types"
	"github.com/definite-protocol/dne/internal/venues"
)

const testOwner = types.Address("owner-address")

func newManagerFixture(t *testing.T) (*Manager, *venues.SimAnalytics) {
	t.Helper()
	analytics := venues.NewSimAnalytics(testPortfolioState())
	mgr, err := NewManager(testOwner, testRiskParams(), testBreakerParams(), analytics, events.NewBus(), nil)
	require.NoError(t, err)
	return mgr, analytics
}

func TestManagerCalculateRiskScoreCommitsMetrics(t *testing.T) {
	mgr, _ := newManagerFixture(t)

	_, err := mgr.GetRiskMetrics()
	assert.ErrorIs(t, err, ErrNoRiskAssessment)
	assert.Equal(t, types.RiskLevelLow, mgr.GetRiskLevel())

	metrics, err := mgr.CalculateRiskScore()
	require.NoError(t, err)
	assert.Equal(t, uint8(53), metrics.RiskScore)
	assert.Equal(t, types.RiskLevelMedium, mgr.GetRiskLevel())

	got, err := mgr.GetRiskMetrics()
	require.NoError(t, err)
	assert.Equal(t, metrics, got)
}

func TestManagerScoreAtReturnsPointInTimeAssessment(t *testing.T) {
	mgr, analytics := newManagerFixture(t)

	early := testPortfolioState()
	early.Timestamp = time.Now().UTC().Add(-time.Hour)
	analytics.SetState(early)
	first, err := mgr.CalculateRiskScore()
	require.NoError(t, err)

	late := testPortfolioState()
	late.DrawdownBps = 2000
	late.Timestamp = time.Now().UTC()
	analytics.SetState(late)
	second, err := mgr.CalculateRiskScore()
	require.NoError(t, err)
	require.NotEqual(t, first.RiskScore, second.RiskScore)

	at, err := mgr.ScoreAt(early.Timestamp.Add(time.Minute))
	require.NoError(t, err)
	assert.Equal(t, first.RiskScore, at.RiskScore)

	_, err = mgr.ScoreAt(early.Timestamp.Add(-time.Hour))
	assert.ErrorIs(t, err, ErrNoRiskAssessment)
}

func TestManagerResponderFiresOnTransitionOnly(t *testing.T) {
	mgr, analytics := newManagerFixture(t)
	custody := venues.NewSimCustodyLedger(sdkmath.NewInt(1_000_000), sdkmath.NewInt(1_000_000))
	sched := &fakeScheduler{}
	mgr.AttachResponder(NewResponder(custody, sched, events.NewBus()))

	// First assessment lands on Medium; the Low->Medium band takes no
	// action, so deposits stay open.
	_, err := mgr.CalculateRiskScore()
	require.NoError(t, err)
	assert.Equal(t, 0, custody.PauseCalls())

	// Drive the score into High: 25*75 + 20*88 + 30*75 + 15*60 + 10*50 = 7285 -> 72.
	stressed := testPortfolioState()
	stressed.DrawdownBps = 1500
	stressed.CorrelationRisk = 60
	stressed.VolatilityRisk = 50
	analytics.SetState(stressed)

	_, err = mgr.CalculateRiskScore()
	require.NoError(t, err)
	require.Equal(t, types.RiskLevelHigh, mgr.GetRiskLevel())
	assert.Equal(t, 1, custody.PauseCalls())

	// Re-scoring the same state keeps the level; the pause must not re-fire.
	_, err = mgr.CalculateRiskScore()
	require.NoError(t, err)
	assert.Equal(t, 1, custody.PauseCalls())
}

func TestManagerFirstAssessmentUnderStressEscalatesImmediately(t *testing.T) {
	// A daemon (re)started against an already-stressed portfolio must not
	// wait for a second level change: the genesis level Low is the baseline
	// for the very first assessment.
	stressed := testPortfolioState()
	stressed.DrawdownBps = 2000
	stressed.LeverageRatio = sdkmath.LegacyNewDec(2)
	stressed.LiquidityRatio = sdkmath.LegacyNewDecWithPrec(1, 1)
	stressed.CorrelationRisk = 80
	stressed.VolatilityRisk = 80
	analytics := venues.NewSimAnalytics(stressed)

	mgr, err := NewManager(testOwner, testRiskParams(), testBreakerParams(), analytics, events.NewBus(), nil)
	require.NoError(t, err)
	custody := venues.NewSimCustodyLedger(sdkmath.NewInt(1_000_000), sdkmath.NewInt(1_000_000))
	sched := &fakeScheduler{}
	mgr.AttachResponder(NewResponder(custody, sched, events.NewBus()))

	_, err = mgr.CalculateRiskScore()
	require.NoError(t, err)
	require.Equal(t, types.RiskLevelCritical, mgr.GetRiskLevel())

	assert.Equal(t, 1, custody.PauseCalls())
	assert.True(t, custody.DepositsPaused())
	assert.Equal(t, []bool{true}, sched.intervalToggles)
	assert.Equal(t, 1, sched.emergencyOn)
	assert.Equal(t, 1, sched.deleverageCalls)
}

func TestManagerCheckCircuitBreakerIsSticky(t *testing.T) {
	mgr, analytics := newManagerFixture(t)
	now := time.Now().UTC()

	// Stress liquidity below the breaker floor and score to load the state.
	stressed := testPortfolioState()
	stressed.LiquidityRatio = sdkmath.LegacyNewDecWithPrec(4, 2)
	analytics.SetState(stressed)
	_, err := mgr.CalculateRiskScore()
	require.NoError(t, err)

	state := mgr.CheckCircuitBreaker(now)
	assert.True(t, state.Active)
	assert.Equal(t, types.TriggerLiquidityShortfall, state.Reason)

	// Re-checking changes nothing while active.
	again := mgr.CheckCircuitBreaker(now.Add(time.Minute))
	assert.Equal(t, state, again)

	// Only the owner can deactivate; unchanged stressed inputs re-trigger.
	assert.ErrorIs(t, mgr.DeactivateCircuitBreaker("mallory"), types.ErrNotOwner)
	require.NoError(t, mgr.DeactivateCircuitBreaker(testOwner))
	assert.False(t, mgr.BreakerActive())

	retrip := mgr.CheckCircuitBreaker(now.Add(2 * time.Minute))
	assert.True(t, retrip.Active)
}

func TestManagerManualBreakerControlIsOwnerOnly(t *testing.T) {
	mgr, _ := newManagerFixture(t)
	now := time.Now().UTC()

	assert.ErrorIs(t, mgr.ActivateCircuitBreaker("mallory", types.TriggerManual, now), types.ErrNotOwner)
	require.NoError(t, mgr.ActivateCircuitBreaker(testOwner, "", now))

	state := mgr.CircuitBreakerState()
	assert.True(t, state.Active)
	assert.Equal(t, types.TriggerManual, state.Reason)
}

func TestManagerSettersValidateAtomically(t *testing.T) {
	mgr, _ := newManagerFixture(t)

	bad := testRiskParams()
	bad.Weights.Leverage = 99
	assert.Error(t, mgr.SetRiskThresholds(testOwner, bad))
	assert.Equal(t, testRiskParams(), mgr.RiskParameters())

	assert.ErrorIs(t, mgr.SetRiskThresholds("mallory", testRiskParams()), types.ErrNotOwner)

	badBreaker := testBreakerParams()
	badBreaker.PriceDropBps = 0
	assert.Error(t, mgr.SetCircuitBreakerParams(testOwner, badBreaker))
	assert.Equal(t, testBreakerParams(), mgr.CircuitBreakerParams())
}

func TestManagerRecordPriceFeedsBreakerHistory(t *testing.T) {
	mgr, _ := newManagerFixture(t)
	now := time.Now().UTC()

	require.NoError(t, mgr.RecordPrice(sdkmath.LegacyNewDec(100), now.Add(-900*time.Second)))
	require.NoError(t, mgr.RecordPrice(sdkmath.LegacyNewDec(88), now))

	// No portfolio snapshot yet: only the price-drop trigger can fire.
	state := mgr.CheckCircuitBreaker(now)
	assert.True(t, state.Active)
	assert.Equal(t, types.TriggerPriceDrop, state.Reason)
}
