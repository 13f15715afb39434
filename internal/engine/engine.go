/*

This file contains the rebalancing engine's state, construction, guard
checks, keeper registry, and owner-settable knobs. The executor itself
lives in upkeep.go and the evaluation loop in loop.go.

*/

package engine

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
	"github.com/definite-protocol/dne/internal/risk"
	"github.com/definite-protocol/dne/internal/types"
	"github.com/definite-protocol/dne/internal/venues"
)

// Funding rates outside this band indicate a broken feed, not a market.
const maxAbsFundingRateBps = 1000

// Archiver persists the engine's audit trail. A nil archiver disables
// persistence; archive failures are logged, never fatal to a cycle.
type Archiver interface {
	SaveRebalancingRecord(record types.RebalancingRecord) error
	SaveExposureSnapshot(snapshot types.ExposureSnapshot) error
	IncrementCycleCounter() (int64, error)
}

// Config wires an engine's collaborators and initial parameters.
type Config struct {
	Owner    types.Address
	KeeperID types.Address // Identity the loop uses for its own upkeep calls.
	Asset    string        // Oracle symbol for the managed asset.
	Params   types.RebalanceParams

	Custody   venues.CustodyLedger
	Perpetual venues.PerpetualVenue
	Options   venues.OptionsVenue
	PriceFeed venues.PriceFeed

	RiskManager *risk.Manager
	Bus         *events.Bus
	Archiver    Archiver

	// Now is the clock; tests inject a fake, production leaves it nil.
	Now func() time.Time
}

// Engine is the rebalancing executor and scheduler. It exclusively owns the
// keeper registry, the rebalancing history counters, and the transient
// exposure evaluations; custody and venue state is read and instructed but
// never owned.
type Engine struct {
	mu sync.Mutex

	owner   *auth.Ownable
	keepers map[types.Address]bool

	custody venues.CustodyLedger
	perp    venues.PerpetualVenue
	options venues.OptionsVenue
	feed    venues.PriceFeed
	riskMgr *risk.Manager

	bus      *events.Bus
	archiver Archiver
	logger   zerolog.Logger
	now      func() time.Time

	keeperID types.Address
	asset    string
	params   types.RebalanceParams

	targetDelta    types.SignedAmount
	fundingRateBps int64

	busy                bool
	paused              bool
	emergencyMode       bool
	emergencyInterval   bool
	deleverageRequested bool

	lastCheck          time.Time
	lastRebalance      time.Time
	totalRebalancings  uint64
	failedRebalancings uint64
}

// New validates the configuration and builds an engine. The owner is an
// authorized keeper at genesis.
func New(cfg Config) (*Engine, error) {
	ownable, err := auth.NewOwnable(cfg.Owner)
	if err != nil {
		return nil, err
	}
	if err := cfg.Params.Validate(); err != nil {
		return nil, err
	}
	if cfg.Custody == nil || cfg.Perpetual == nil || cfg.Options == nil {
		return nil, fmt.Errorf("%w: custody, perpetual and options collaborators are required", types.ErrInvalidParameter)
	}
	if cfg.RiskManager == nil {
		return nil, fmt.Errorf("%w: risk manager is required", types.ErrInvalidParameter)
	}
	if cfg.Bus == nil {
		return nil, fmt.Errorf("%w: event bus is required", types.ErrInvalidParameter)
	}
	if cfg.Asset == "" {
		return nil, fmt.Errorf("%w: managed asset symbol is required", types.ErrInvalidParameter)
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	keeperID := cfg.KeeperID
	if keeperID == "" {
		keeperID = cfg.Owner
	}

	e := &Engine{
		owner:       ownable,
		keepers:     map[types.Address]bool{cfg.Owner: true},
		custody:     cfg.Custody,
		perp:        cfg.Perpetual,
		options:     cfg.Options,
		feed:        cfg.PriceFeed,
		riskMgr:     cfg.RiskManager,
		bus:         cfg.Bus,
		archiver:    cfg.Archiver,
		logger:      logger.GetForComponent("rebalance_engine"),
		now:         now,
		keeperID:    keeperID,
		asset:       cfg.Asset,
		params:      cfg.Params,
		targetDelta: types.ZeroSigned(),
	}
	if keeperID != cfg.Owner {
		e.keepers[keeperID] = true
	}
	return e, nil
}

// Owner returns the current owner address.
func (e *Engine) Owner() types.Address {
	return e.owner.Owner()
}

// TransferOwnership hands the engine to a new owner. The new owner is not
// automatically a keeper.
func (e *Engine) TransferOwnership(caller, newOwner types.Address) error {
	return e.owner.TransferOwnership(caller, newOwner)
}

// enterBusy sets the reentrancy flag. Callers must pair it with exitBusy.
func (e *Engine) enterBusy() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.busy {
		return types.ErrReentrancy
	}
	e.busy = true
	return nil
}

func (e *Engine) exitBusy() {
	e.mu.Lock()
	e.busy = false
	e.mu.Unlock()
}

// checkStateGuards enforces the pause and circuit breaker guards shared by
// every mutating entry point.
func (e *Engine) checkStateGuards() error {
	e.mu.Lock()
	paused := e.paused
	e.mu.Unlock()
	if paused {
		return types.ErrPaused
	}
	if e.riskMgr.BreakerActive() {
		return types.ErrCircuitBreakerActive
	}
	return nil
}

// Deposit forwards to the custody ledger behind the engine's guards.
func (e *Engine) Deposit(caller types.Address, amount sdkmath.Int) error {
	if err := e.enterBusy(); err != nil {
		return err
	}
	defer e.exitBusy()
	if err := e.checkStateGuards(); err != nil {
		return err
	}
	e.mu.Lock()
	emergency := e.emergencyMode
	e.mu.Unlock()
	if emergency {
		return types.ErrEmergencyMode
	}
	if amount.IsNil() || !amount.IsPositive() {
		return fmt.Errorf("%w: deposit amount must be positive", types.ErrInvalidParameter)
	}
	if err := e.custody.Deposit(amount); err != nil {
		return err
	}
	e.logger.Info().
		Str("caller", string(caller)).
		Str("amount", amount.String()).
		Msg("Deposit accepted")
	return nil
}

// Withdraw forwards to the custody ledger behind the engine's guards.
// Emergency mode pauses every mutating operation, withdrawals included;
// they reopen when the responder downgrades or the owner intervenes.
func (e *Engine) Withdraw(caller types.Address, shares sdkmath.Int) error {
	if err := e.enterBusy(); err != nil {
		return err
	}
	defer e.exitBusy()
	if err := e.checkStateGuards(); err != nil {
		return err
	}
	e.mu.Lock()
	emergency := e.emergencyMode
	e.mu.Unlock()
	if emergency {
		return types.ErrEmergencyMode
	}
	if shares.IsNil() || !shares.IsPositive() {
		return fmt.Errorf("%w: withdrawal shares must be positive", types.ErrInvalidParameter)
	}
	if err := e.custody.Withdraw(shares); err != nil {
		return err
	}
	e.logger.Info().
		Str("caller", string(caller)).
		Str("shares", shares.String()).
		Msg("Withdrawal processed")
	return nil
}

// AddKeeper authorizes an address to call PerformUpkeep. Owner-only.
func (e *Engine) AddKeeper(caller, keeper types.Address) error {
	if err := e.owner.AssertOwner(caller); err != nil {
		return err
	}
	if keeper == "" {
		return fmt.Errorf("%w: keeper address cannot be empty", types.ErrInvalidParameter)
	}
	e.mu.Lock()
	e.keepers[keeper] = true
	e.mu.Unlock()
	e.bus.Publish(events.KeeperAdded, "Keeper authorized", map[string]any{"keeper": string(keeper)})
	return nil
}

// RemoveKeeper revokes an address. Owner-only; the owner cannot revoke
// itself, the registry must never go empty.
func (e *Engine) RemoveKeeper(caller, keeper types.Address) error {
	if err := e.owner.AssertOwner(caller); err != nil {
		return err
	}
	if keeper == e.owner.Owner() {
		return fmt.Errorf("%w: owner cannot be removed from the keeper registry", types.ErrInvalidParameter)
	}
	e.mu.Lock()
	delete(e.keepers, keeper)
	e.mu.Unlock()
	e.bus.Publish(events.KeeperRemoved, "Keeper revoked", map[string]any{"keeper": string(keeper)})
	return nil
}

// IsAuthorizedKeeper reports registry membership.
func (e *Engine) IsAuthorizedKeeper(addr types.Address) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.keepers[addr]
}

// Keepers lists the authorized addresses.
func (e *Engine) Keepers() []types.Address {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]types.Address, 0, len(e.keepers))
	for addr := range e.keepers {
		out = append(out, addr)
	}
	return out
}

// SetRebalancingParams replaces the executor parameters. Owner-only;
// validation is atomic.
func (e *Engine) SetRebalancingParams(caller types.Address, params types.RebalanceParams) error {
	if err := e.owner.AssertOwner(caller); err != nil {
		return err
	}
	if err := params.Validate(); err != nil {
		return err
	}
	e.mu.Lock()
	e.params = params
	e.mu.Unlock()
	e.bus.Publish(events.ParametersUpdated, "Rebalancing parameters updated", map[string]any{
		"caller": string(caller),
	})
	e.logger.Info().Str("caller", string(caller)).Msg("Rebalancing parameters updated")
	return nil
}

// Params returns the active executor parameters.
func (e *Engine) Params() types.RebalanceParams {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.params
}

// SetTargetDelta changes the mandate's target net delta. Owner-only.
func (e *Engine) SetTargetDelta(caller types.Address, target types.SignedAmount) error {
	if err := e.owner.AssertOwner(caller); err != nil {
		return err
	}
	if target.Magnitude.IsNil() {
		return fmt.Errorf("%w: target delta cannot be nil", types.ErrInvalidParameter)
	}
	e.mu.Lock()
	e.targetDelta = target
	e.mu.Unlock()
	e.bus.Publish(events.TargetDeltaUpdated, "Target delta updated", map[string]any{
		"target": target.String(),
	})
	return nil
}

// TargetDelta returns the current mandate target.
func (e *Engine) TargetDelta() types.SignedAmount {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.targetDelta
}

// SetFundingRate records the current funding rate observation. Owner-only;
// rates outside the sanity band are rejected.
func (e *Engine) SetFundingRate(caller types.Address, rateBps int64) error {
	if err := e.owner.AssertOwner(caller); err != nil {
		return err
	}
	if rateBps > maxAbsFundingRateBps || rateBps < -maxAbsFundingRateBps {
		return fmt.Errorf("%w: funding rate %d bps outside ±%d bps band", types.ErrInvalidParameter, rateBps, maxAbsFundingRateBps)
	}
	e.mu.Lock()
	e.fundingRateBps = rateBps
	e.mu.Unlock()
	e.bus.Publish(events.FundingRateUpdated, "Funding rate updated", map[string]any{
		"rateBps": rateBps,
	})
	return nil
}

// FundingRateBps returns the last recorded funding rate.
func (e *Engine) FundingRateBps() int64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.fundingRateBps
}

// Pause halts every mutating operation. Owner-only.
func (e *Engine) Pause(caller types.Address) error {
	if err := e.owner.AssertOwner(caller); err != nil {
		return err
	}
	e.mu.Lock()
	e.paused = true
	e.mu.Unlock()
	e.logger.Warn().Str("caller", string(caller)).Msg("Engine paused")
	return nil
}

// Unpause lifts the hard pause. Owner-only.
func (e *Engine) Unpause(caller types.Address) error {
	if err := e.owner.AssertOwner(caller); err != nil {
		return err
	}
	e.mu.Lock()
	e.paused = false
	e.mu.Unlock()
	e.logger.Info().Str("caller", string(caller)).Msg("Engine unpaused")
	return nil
}

// Paused reports the hard pause flag.
func (e *Engine) Paused() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.paused
}

// EmergencyMode reports the responder-controlled emergency flag.
func (e *Engine) EmergencyMode() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.emergencyMode
}

// UseEmergencyInterval implements risk.Scheduler.
func (e *Engine) UseEmergencyInterval(enabled bool) {
	e.mu.Lock()
	e.emergencyInterval = enabled
	e.mu.Unlock()
	e.logger.Warn().Bool("enabled", enabled).Msg("Emergency check interval toggled")
}

// SetEmergencyMode implements risk.Scheduler.
func (e *Engine) SetEmergencyMode(enabled bool) {
	e.mu.Lock()
	e.emergencyMode = enabled
	e.mu.Unlock()
	if enabled {
		e.logger.Error().Msg("Emergency mode ENABLED")
	} else {
		e.logger.Info().Msg("Emergency mode cleared")
	}
}

// RequestDeleverage implements risk.Scheduler. The flag is consumed by the
// next planning pass, which then ignores the execution threshold.
func (e *Engine) RequestDeleverage() {
	e.mu.Lock()
	e.deleverageRequested = true
	e.mu.Unlock()
	e.logger.Warn().Msg("Deleverage requested for next cycle")
}

// EffectiveCheckInterval is the cooldown currently in force.
func (e *Engine) EffectiveCheckInterval() time.Duration {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.emergencyInterval {
		return e.params.EmergencyCheckInterval
	}
	return e.params.CheckInterval
}

// Counters reports the lifetime totals.
func (e *Engine) Counters() (total, failed uint64) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.totalRebalancings, e.failedRebalancings
}

// LastRebalance reports the timestamp of the last fully successful
// rebalancing, zero if none.
func (e *Engine) LastRebalance() time.Time {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.lastRebalance
}

var errNoPriceFeed = errors.New("no price feed configured")
