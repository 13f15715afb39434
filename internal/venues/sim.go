/*

Simulated in-memory collaborators. Used in sim mode and by the test suite;
every figure is injected state, never an assumed market value. The live
integrations implement the same interfaces against the real custody ledger,
perpetual exchange and options AMM.

*/

package venues

import (
	"fmt"
	"sync"
	"time"

	sdkmath "cosmossdk.io/math"
	"github.com/rs/zerolog"

	"github.com/definite-protocol/dne/internal/logger"
	"github.com/definite-protocol/dne/internal/types"
)

// SimPriceFeed is a settable oracle.
type SimPriceFeed struct {
	mu     sync.RWMutex
	points map[string]PricePoint
	now    func() time.Time
}

// NewSimPriceFeed creates an empty feed. The clock is injectable so tests
// can control staleness.
func NewSimPriceFeed(now func() time.Time) *SimPriceFeed {
	if now == nil {
		now = time.Now
	}
	return &SimPriceFeed{points: make(map[string]PricePoint), now: now}
}

// SetPrice records the latest observation for an asset.
func (f *SimPriceFeed) SetPrice(asset string, price sdkmath.LegacyDec, confidence uint8, ts time.Time) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.points[asset] = PricePoint{Price: price, Timestamp: ts, Confidence: confidence}
}

// GetPrice implements PriceFeed.
func (f *SimPriceFeed) GetPrice(asset string) (PricePoint, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	point, ok := f.points[asset]
	if !ok {
		return PricePoint{}, fmt.Errorf("no price recorded for asset %s", asset)
	}
	return point, nil
}

// IsStale implements PriceFeed.
func (f *SimPriceFeed) IsStale(asset string, maxAge time.Duration) (bool, error) {
	point, err := f.GetPrice(asset)
	if err != nil {
		return true, err
	}
	return f.now().Sub(point.Timestamp) > maxAge, nil
}

// SimCustodyLedger is an in-memory custody/accounting ledger.
type SimCustodyLedger struct {
	mu             sync.Mutex
	totalAssets    sdkmath.Int
	totalShares    sdkmath.Int
	depositsPaused bool
	pauseCalls     int
	resumeCalls    int
	rewardsPaid    map[types.Address]sdkmath.Int
	failPayments   bool
	logger         zerolog.Logger
}

// NewSimCustodyLedger seeds the ledger with initial assets and shares.
func NewSimCustodyLedger(assets, shares sdkmath.Int) *SimCustodyLedger {
	return &SimCustodyLedger{
		totalAssets: assets,
		totalShares: shares,
		rewardsPaid: make(map[types.Address]sdkmath.Int),
		logger:      logger.GetForComponent("sim_custody"),
	}
}

// TotalAssets implements CustodyLedger.
func (c *SimCustodyLedger) TotalAssets() (sdkmath.Int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.totalAssets, nil
}

// TotalShares implements CustodyLedger.
func (c *SimCustodyLedger) TotalShares() (sdkmath.Int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.totalShares, nil
}

// Deposit implements CustodyLedger. Shares are minted 1:1 in the simulation.
func (c *SimCustodyLedger) Deposit(amount sdkmath.Int) error {
	if amount.IsNegative() {
		return types.ErrNegativeAmount
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.depositsPaused {
		return types.ErrPaused
	}
	c.totalAssets = c.totalAssets.Add(amount)
	c.totalShares = c.totalShares.Add(amount)
	return nil
}

// Withdraw implements CustodyLedger.
func (c *SimCustodyLedger) Withdraw(shares sdkmath.Int) error {
	if shares.IsNegative() {
		return types.ErrNegativeAmount
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if shares.GT(c.totalShares) {
		return fmt.Errorf("insufficient shares: have %s, want %s", c.totalShares, shares)
	}
	c.totalShares = c.totalShares.Sub(shares)
	c.totalAssets = c.totalAssets.Sub(shares)
	return nil
}

// PauseDeposits implements CustodyLedger.
func (c *SimCustodyLedger) PauseDeposits() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.depositsPaused = true
	c.pauseCalls++
	c.logger.Info().Msg("Deposits paused")
	return nil
}

// ResumeDeposits implements CustodyLedger.
func (c *SimCustodyLedger) ResumeDeposits() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.depositsPaused = false
	c.resumeCalls++
	c.logger.Info().Msg("Deposits resumed")
	return nil
}

// PayKeeper implements CustodyLedger.
func (c *SimCustodyLedger) PayKeeper(keeper types.Address, amount sdkmath.Int) error {
	if amount.IsNegative() {
		return types.ErrNegativeAmount
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.failPayments {
		return fmt.Errorf("%w: keeper payment rejected", types.ErrExecutionFailed)
	}
	paid, ok := c.rewardsPaid[keeper]
	if !ok {
		paid = sdkmath.ZeroInt()
	}
	c.rewardsPaid[keeper] = paid.Add(amount)
	c.totalAssets = c.totalAssets.Sub(amount)
	return nil
}

// DepositsPaused reports the pause flag (test inspection).
func (c *SimCustodyLedger) DepositsPaused() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.depositsPaused
}

// PauseCalls reports how many times PauseDeposits was invoked.
func (c *SimCustodyLedger) PauseCalls() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.pauseCalls
}

// ResumeCalls reports how many times ResumeDeposits was invoked.
func (c *SimCustodyLedger) ResumeCalls() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.resumeCalls
}

// RewardPaidTo returns the cumulative reward paid to a keeper.
func (c *SimCustodyLedger) RewardPaidTo(keeper types.Address) sdkmath.Int {
	c.mu.Lock()
	defer c.mu.Unlock()
	paid, ok := c.rewardsPaid[keeper]
	if !ok {
		return sdkmath.ZeroInt()
	}
	return paid
}

// SetFailPayments makes PayKeeper fail (test injection).
func (c *SimCustodyLedger) SetFailPayments(fail bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.failPayments = fail
}

// SimPerpetualVenue tracks short exposure in memory.
type SimPerpetualVenue struct {
	mu            sync.Mutex
	shortExposure sdkmath.Int
	failNextOpen  bool
	failNextClose bool
}

// NewSimPerpetualVenue seeds the venue with an initial short position.
func NewSimPerpetualVenue(shortExposure sdkmath.Int) *SimPerpetualVenue {
	return &SimPerpetualVenue{shortExposure: shortExposure}
}

// OpenShort implements PerpetualVenue.
func (v *SimPerpetualVenue) OpenShort(amount sdkmath.Int) error {
	if amount.IsNegative() {
		return types.ErrNegativeAmount
	}
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.failNextOpen {
		v.failNextOpen = false
		return fmt.Errorf("%w: perpetual venue rejected open", types.ErrExecutionFailed)
	}
	v.shortExposure = v.shortExposure.Add(amount)
	return nil
}

// CloseShort implements PerpetualVenue.
func (v *SimPerpetualVenue) CloseShort(amount sdkmath.Int) error {
	if amount.IsNegative() {
		return types.ErrNegativeAmount
	}
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.failNextClose {
		v.failNextClose = false
		return fmt.Errorf("%w: perpetual venue rejected close", types.ErrExecutionFailed)
	}
	if amount.GT(v.shortExposure) {
		return fmt.Errorf("%w: cannot close %s of %s short", types.ErrExecutionFailed, amount, v.shortExposure)
	}
	v.shortExposure = v.shortExposure.Sub(amount)
	return nil
}

// CurrentShortExposure implements PerpetualVenue.
func (v *SimPerpetualVenue) CurrentShortExposure() (sdkmath.Int, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.shortExposure, nil
}

// SetFailNextOpen makes the next OpenShort fail (test injection).
func (v *SimPerpetualVenue) SetFailNextOpen(fail bool) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.failNextOpen = fail
}

// SetFailNextClose makes the next CloseShort fail (test injection).
func (v *SimPerpetualVenue) SetFailNextClose(fail bool) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.failNextClose = fail
}

// SimOptionsVenue tracks options delta in memory.
type SimOptionsVenue struct {
	mu            sync.Mutex
	delta         types.SignedAmount
	failNextHedge bool
	hedgeCalls    int
}

// NewSimOptionsVenue seeds the venue with an initial delta.
func NewSimOptionsVenue(delta types.SignedAmount) *SimOptionsVenue {
	return &SimOptionsVenue{delta: delta}
}

// HedgeDelta implements OptionsVenue. A hedge offsets the venue's delta by
// the given magnitude in the opposite direction of the hint.
func (v *SimOptionsVenue) HedgeDelta(amount sdkmath.Int, direction types.Direction) error {
	if amount.IsNegative() {
		return types.ErrNegativeAmount
	}
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.failNextHedge {
		v.failNextHedge = false
		return fmt.Errorf("%w: options venue rejected hedge", types.ErrExecutionFailed)
	}
	v.hedgeCalls++
	offset := types.SignedFromInt(amount)
	if direction == types.DirectionPositive {
		offset = offset.Neg()
	}
	next, err := v.delta.Add(offset)
	if err != nil {
		return err
	}
	v.delta = next
	return nil
}

// CurrentDelta implements OptionsVenue.
func (v *SimOptionsVenue) CurrentDelta() (types.SignedAmount, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.delta, nil
}

// HedgeCalls reports how many hedges executed (test inspection).
func (v *SimOptionsVenue) HedgeCalls() int {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.hedgeCalls
}

// SetFailNextHedge makes the next HedgeDelta fail (test injection).
func (v *SimOptionsVenue) SetFailNextHedge(fail bool) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.failNextHedge = fail
}

// SimAnalytics returns an injected portfolio state.
type SimAnalytics struct {
	mu    sync.Mutex
	state types.PortfolioState
}

// NewSimAnalytics seeds the analytics collaborator.
func NewSimAnalytics(state types.PortfolioState) *SimAnalytics {
	return &SimAnalytics{state: state}
}

// SetState replaces the injected portfolio state.
func (a *SimAnalytics) SetState(state types.PortfolioState) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.state = state
}

// Snapshot implements PortfolioAnalytics.
func (a *SimAnalytics) Snapshot() (types.PortfolioState, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.state, nil
}
