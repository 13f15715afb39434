/*

This file adapts the package-level store functions to the narrow Archiver
interfaces the risk manager and the engine consume, so core components stay
testable without a live database.

*/

package state

import (
	"time"

	sdkmath "cosmossdk.io/math"

	"github.com/definite-protocol/dne/internal/types"
)

// DBArchiver satisfies risk.Archiver and engine.Archiver against the global
// connection pool.
type DBArchiver struct{}

// NewDBArchiver returns an archiver. InitDB must have run first.
func NewDBArchiver() *DBArchiver {
	return &DBArchiver{}
}

// SaveRiskMetrics implements risk.Archiver.
func (a *DBArchiver) SaveRiskMetrics(metrics types.RiskMetrics, level types.RiskLevel) error {
	return SaveRiskScore(metrics, level)
}

// SavePrice implements risk.Archiver.
func (a *DBArchiver) SavePrice(price sdkmath.LegacyDec, ts time.Time) error {
	return SavePriceObservation(price, ts)
}

// SaveRebalancingRecord implements engine.Archiver.
func (a *DBArchiver) SaveRebalancingRecord(record types.RebalancingRecord) error {
	return SaveRebalancingRecord(record)
}

// SaveExposureSnapshot implements engine.Archiver.
func (a *DBArchiver) SaveExposureSnapshot(snapshot types.ExposureSnapshot) error {
	return SaveExposureSnapshot(snapshot)
}

// IncrementCycleCounter implements engine.Archiver.
func (a *DBArchiver) IncrementCycleCounter() (int64, error) {
	return IncrementCycleNumber()
}
