/*

This file persists the historical risk scores for audit and backtesting.
Rows are append-only; the live assessment stays in memory with the risk
manager, the database is the durable trail.

*/

package state

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/definite-protocol/dne/internal/types"
)

// SaveRiskScore appends one assessment row.
func SaveRiskScore(metrics types.RiskMetrics, level types.RiskLevel) error {
	if DB == nil {
		return fmt.Errorf("database not initialized")
	}

	insertSQL := `
		INSERT INTO risk_scores (
			risk_score, risk_level, health_score, var_bps,
			leverage_ratio, liquidity_ratio, drawdown_bps,
			correlation_risk, volatility_risk, score_timestamp
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10);`

	_, err := DB.Exec(insertSQL,
		metrics.RiskScore,
		level.String(),
		metrics.HealthScore(),
		metrics.VarBps,
		metrics.LeverageRatio.String(),
		metrics.LiquidityRatio.String(),
		metrics.DrawdownBps,
		metrics.CorrelationRisk,
		metrics.VolatilityRisk,
		metrics.Timestamp,
	)
	if err != nil {
		return fmt.Errorf("failed to save risk score: %w", err)
	}

	log.Debug().
		Uint8("riskScore", metrics.RiskScore).
		Str("riskLevel", level.String()).
		Msg("Risk score persisted")
	return nil
}

// GetRiskScoreAt returns the newest persisted assessment at or before ts.
func GetRiskScoreAt(ts time.Time) (types.RiskMetrics, error) {
	if DB == nil {
		return types.RiskMetrics{}, fmt.Errorf("database not initialized")
	}

	query := `
		SELECT risk_score, var_bps, leverage_ratio, liquidity_ratio,
		       drawdown_bps, correlation_risk, volatility_risk, score_timestamp
		FROM risk_scores
		WHERE score_timestamp <= $1
		ORDER BY score_timestamp DESC
		LIMIT 1;`

	var (
		metrics      types.RiskMetrics
		leverageRaw  string
		liquidityRaw string
	)
	row := DB.QueryRow(query, ts)
	err := row.Scan(
		&metrics.RiskScore,
		&metrics.VarBps,
		&leverageRaw,
		&liquidityRaw,
		&metrics.DrawdownBps,
		&metrics.CorrelationRisk,
		&metrics.VolatilityRisk,
		&metrics.Timestamp,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return types.RiskMetrics{}, fmt.Errorf("no risk score recorded at or before %s", ts)
		}
		return types.RiskMetrics{}, fmt.Errorf("failed to query risk score: %w", err)
	}

	if metrics.LeverageRatio, err = scanDec(leverageRaw); err != nil {
		return types.RiskMetrics{}, err
	}
	if metrics.LiquidityRatio, err = scanDec(liquidityRaw); err != nil {
		return types.RiskMetrics{}, err
	}
	return metrics, nil
}

// GetLatestRiskScore returns the newest persisted assessment.
func GetLatestRiskScore() (types.RiskMetrics, error) {
	return GetRiskScoreAt(time.Now().UTC())
}
