// Package venues defines the collaborator contracts the engine consumes.
// The core depends only on these abstractions, which keeps every venue
// substitutable with a simulated implementation in tests and sim mode.
package venues

import (
	"time"

	sdkmath "cosmossdk.io/math"

	"github.com/definite-protocol/dne/internal/types"
)

// PricePoint is a single oracle observation.
type PricePoint struct {
	Price      sdkmath.LegacyDec `json:"price"`
	Timestamp  time.Time         `json:"timestamp"`
	Confidence uint8             `json:"confidence"` // 0-100.
}

// PriceFeed is the multi-source oracle the engine reads but never mutates.
type PriceFeed interface {
	// GetPrice returns the latest observation for the asset.
	GetPrice(asset string) (PricePoint, error)

	// IsStale reports whether the latest observation is older than maxAge.
	IsStale(asset string, maxAge time.Duration) (bool, error)
}

// CustodyLedger is the deposit/withdraw and share-minting collaborator.
// The engine gates calls into it but never owns its state.
type CustodyLedger interface {
	TotalAssets() (sdkmath.Int, error)
	TotalShares() (sdkmath.Int, error)

	Deposit(amount sdkmath.Int) error
	Withdraw(shares sdkmath.Int) error

	PauseDeposits() error
	ResumeDeposits() error

	// PayKeeper transfers the upkeep reward to the calling keeper.
	PayKeeper(keeper types.Address, amount sdkmath.Int) error
}

// PerpetualVenue executes and reports the synthetic short leg.
type PerpetualVenue interface {
	OpenShort(amount sdkmath.Int) error
	CloseShort(amount sdkmath.Int) error
	CurrentShortExposure() (sdkmath.Int, error)
}

// OptionsVenue executes and reports the options hedge leg.
type OptionsVenue interface {
	HedgeDelta(amount sdkmath.Int, direction types.Direction) error
	CurrentDelta() (types.SignedAmount, error)
}

// PortfolioAnalytics supplies the analytic inputs the scorer cannot derive
// from custody and venue queries alone. Correlation and volatility arrive
// pre-clamped to 0-100; nothing here is a hardcoded placeholder.
type PortfolioAnalytics interface {
	Snapshot() (types.PortfolioState, error)
}
