/*

This file contains the autonomous evaluation loop. Each cycle records the
oracle price, refreshes the risk assessment, evaluates the circuit breaker,
and then attempts upkeep under the engine's own keeper identity. The loop
re-arms its timer every cycle because the responder may have shortened the
effective interval in the meantime.

*/

package engine

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/definite-protocol/dne/internal/types"
)

// Price observations older than this many check intervals are refused.
const stalePriceIntervals = 3

// RunLoop drives RunCycle until the context is cancelled.
func (e *Engine) RunLoop(ctx context.Context) error {
	e.logger.Info().
		Str("checkInterval", e.EffectiveCheckInterval().String()).
		Msg("Evaluation loop starting")

	timer := time.NewTimer(0)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			e.logger.Info().Msg("Evaluation loop stopping")
			return ctx.Err()
		case <-timer.C:
		}

		if err := e.RunCycle(ctx); err != nil {
			e.logger.Error().Err(err).Msg("Cycle finished with error")
		}
		timer.Reset(e.EffectiveCheckInterval())
	}
}

// RunCycle executes one full evaluation pass.
func (e *Engine) RunCycle(ctx context.Context) error {
	cycleID := uuid.New().String()
	cycleLogger := e.logger.With().Str("cycleId", cycleID).Logger()

	cycleNumber := int64(-1)
	if e.archiver != nil {
		n, err := e.archiver.IncrementCycleCounter()
		if err != nil {
			cycleLogger.Error().Err(err).Msg("Failed to increment cycle counter")
		} else {
			cycleNumber = n
		}
	}
	cycleLogger.Info().Int64("cycleNumber", cycleNumber).Msg("=== Cycle starting ===")

	if err := ctx.Err(); err != nil {
		return err
	}

	if err := e.recordOraclePrice(cycleLogger); err != nil {
		// Scoring and breaker evaluation still run on whatever history and
		// portfolio data exist.
		cycleLogger.Error().Err(err).Msg("Price recording failed")
	}

	if _, err := e.riskMgr.CalculateRiskScore(); err != nil {
		cycleLogger.Error().Err(err).Msg("Risk scoring failed")
	}

	breaker := e.riskMgr.CheckCircuitBreaker(e.now())
	if breaker.Active {
		cycleLogger.Warn().
			Str("reason", string(breaker.Reason)).
			Msg("Circuit breaker active, skipping upkeep")
		return nil
	}

	result, err := e.PerformUpkeep(e.keeperID)
	switch {
	case err == nil:
		if result.Performed {
			cycleLogger.Info().
				Bool("success", result.Success).
				Int("actionsExecuted", result.ActionsExecuted).
				Msg("=== Cycle complete ===")
		} else {
			cycleLogger.Info().Msg("=== Cycle complete, no rebalancing needed ===")
		}
		return nil
	case types.Classify(err) == types.ClassTiming, types.Classify(err) == types.ClassStateGuard:
		// Expected between eligible windows; not a cycle failure.
		cycleLogger.Debug().Err(err).Msg("Upkeep not eligible this cycle")
		return nil
	default:
		return errors.Join(errors.New("upkeep failed"), err)
	}
}

// recordOraclePrice reads the oracle and feeds the breaker's price history.
// A stale observation is refused rather than recorded.
func (e *Engine) recordOraclePrice(cycleLogger zerolog.Logger) error {
	if e.feed == nil {
		return errNoPriceFeed
	}
	maxAge := stalePriceIntervals * e.EffectiveCheckInterval()
	stale, err := e.feed.IsStale(e.asset, maxAge)
	if err != nil {
		return errors.Join(errors.New("staleness check failed"), err)
	}
	if stale {
		return types.ErrStalePrice
	}
	point, err := e.feed.GetPrice(e.asset)
	if err != nil {
		return errors.Join(errors.New("price read failed"), err)
	}
	if err := e.riskMgr.RecordPrice(point.Price, point.Timestamp); err != nil {
		return err
	}
	cycleLogger.Debug().
		Str("asset", e.asset).
		Str("price", point.Price.String()).
		Uint8("confidence", point.Confidence).
		Msg("Oracle price recorded")
	return nil
}
