/*

This file persists the versioned engine parameter sets. Each save creates a
new version for the config name and atomically makes it the active one, so
the full tuning history stays queryable.

*/

package state

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/definite-protocol/dne/internal/types"
)

// EngineParameters bundles the three tunable sets persisted together.
type EngineParameters struct {
	Risk      types.RiskParameters
	Breaker   types.CircuitBreakerParams
	Rebalance types.RebalanceParams
}

// SaveEngineParameters inserts a new version for configName and activates
// it, deactivating every previous version, in one transaction.
func SaveEngineParameters(configName string, params EngineParameters) error {
	if DB == nil {
		return fmt.Errorf("database not initialized")
	}
	if configName == "" {
		configName = "default"
	}
	if err := params.Risk.Validate(); err != nil {
		return fmt.Errorf("refusing to persist invalid risk parameters: %w", err)
	}
	if err := params.Breaker.Validate(); err != nil {
		return fmt.Errorf("refusing to persist invalid circuit breaker parameters: %w", err)
	}
	if err := params.Rebalance.Validate(); err != nil {
		return fmt.Errorf("refusing to persist invalid rebalance parameters: %w", err)
	}

	tx, err := DB.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin parameters transaction: %w", err)
	}
	defer tx.Rollback()

	var nextVersion int
	row := tx.QueryRow(`SELECT COALESCE(MAX(version), 0) + 1 FROM engine_parameters WHERE config_name = $1;`, configName)
	if err := row.Scan(&nextVersion); err != nil {
		return fmt.Errorf("failed to determine next parameters version: %w", err)
	}

	if _, err := tx.Exec(`UPDATE engine_parameters SET is_active = FALSE WHERE config_name = $1;`, configName); err != nil {
		return fmt.Errorf("failed to deactivate previous parameter versions: %w", err)
	}

	insertSQL := `
		INSERT INTO engine_parameters (
			version, config_name, is_active,
			weight_leverage, weight_liquidity, weight_drawdown,
			weight_correlation, weight_volatility,
			max_leverage, min_liquidity_ratio, max_drawdown_bps,
			cb_price_drop_bps, cb_price_window_seconds, cb_volatility_multiple_bps,
			cb_min_liquidity_ratio, cb_max_drawdown_bps,
			execution_threshold, check_interval_seconds,
			emergency_check_interval_seconds, keeper_reward_bps, max_slippage_bps
		) VALUES ($1, $2, TRUE, $3, $4, $5, $6, $7, $8, $9, $10,
		          $11, $12, $13, $14, $15, $16, $17, $18, $19, $20);`

	_, err = tx.Exec(insertSQL,
		nextVersion, configName,
		params.Risk.Weights.Leverage, params.Risk.Weights.Liquidity, params.Risk.Weights.Drawdown,
		params.Risk.Weights.Correlation, params.Risk.Weights.Volatility,
		params.Risk.MaxLeverage.String(), params.Risk.MinLiquidityRatio.String(), params.Risk.MaxDrawdownBps,
		params.Breaker.PriceDropBps, int64(params.Breaker.PriceWindow/time.Second), params.Breaker.VolatilityMultipleBps,
		params.Breaker.MinLiquidityRatio.String(), params.Breaker.MaxDrawdownBps,
		params.Rebalance.ExecutionThreshold.String(), int64(params.Rebalance.CheckInterval/time.Second),
		int64(params.Rebalance.EmergencyCheckInterval/time.Second), params.Rebalance.KeeperRewardBps, params.Rebalance.MaxSlippageBps,
	)
	if err != nil {
		return fmt.Errorf("failed to insert parameters version %d: %w", nextVersion, err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit parameters transaction: %w", err)
	}

	log.Info().
		Str("configName", configName).
		Int("version", nextVersion).
		Msg("Engine parameters persisted and activated")
	return nil
}

// LoadActiveEngineParameters returns the active set for configName.
func LoadActiveEngineParameters(configName string) (EngineParameters, error) {
	if DB == nil {
		return EngineParameters{}, fmt.Errorf("database not initialized")
	}
	if configName == "" {
		configName = "default"
	}

	query := `
		SELECT weight_leverage, weight_liquidity, weight_drawdown,
		       weight_correlation, weight_volatility,
		       max_leverage, min_liquidity_ratio, max_drawdown_bps,
		       cb_price_drop_bps, cb_price_window_seconds, cb_volatility_multiple_bps,
		       cb_min_liquidity_ratio, cb_max_drawdown_bps,
		       execution_threshold, check_interval_seconds,
		       emergency_check_interval_seconds, keeper_reward_bps, max_slippage_bps
		FROM engine_parameters
		WHERE config_name = $1 AND is_active = TRUE
		ORDER BY activated_at DESC
		LIMIT 1;`

	var (
		params          EngineParameters
		maxLeverageRaw  string
		minLiqRaw       string
		cbMinLiqRaw     string
		priceWindowSecs int64
		checkSecs       int64
		emergencySecs   int64
		thresholdRaw    string
	)
	row := DB.QueryRow(query, configName)
	err := row.Scan(
		&params.Risk.Weights.Leverage, &params.Risk.Weights.Liquidity, &params.Risk.Weights.Drawdown,
		&params.Risk.Weights.Correlation, &params.Risk.Weights.Volatility,
		&maxLeverageRaw, &minLiqRaw, &params.Risk.MaxDrawdownBps,
		&params.Breaker.PriceDropBps, &priceWindowSecs, &params.Breaker.VolatilityMultipleBps,
		&cbMinLiqRaw, &params.Breaker.MaxDrawdownBps,
		&thresholdRaw, &checkSecs,
		&emergencySecs, &params.Rebalance.KeeperRewardBps, &params.Rebalance.MaxSlippageBps,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return EngineParameters{}, fmt.Errorf("no active parameter set for config %q", configName)
		}
		return EngineParameters{}, fmt.Errorf("failed to load active parameters: %w", err)
	}

	if params.Risk.MaxLeverage, err = scanDec(maxLeverageRaw); err != nil {
		return EngineParameters{}, err
	}
	if params.Risk.MinLiquidityRatio, err = scanDec(minLiqRaw); err != nil {
		return EngineParameters{}, err
	}
	if params.Breaker.MinLiquidityRatio, err = scanDec(cbMinLiqRaw); err != nil {
		return EngineParameters{}, err
	}
	if params.Rebalance.ExecutionThreshold, err = scanInt(thresholdRaw); err != nil {
		return EngineParameters{}, err
	}
	params.Breaker.PriceWindow = time.Duration(priceWindowSecs) * time.Second
	params.Rebalance.CheckInterval = time.Duration(checkSecs) * time.Second
	params.Rebalance.EmergencyCheckInterval = time.Duration(emergencySecs) * time.Second

	return params, nil
}
