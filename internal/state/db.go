// ./internal/state/db.go
package state

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	sdkmath "cosmossdk.io/math"
	_ "github.com/lib/pq" // PostgreSQL driver
	"github.com/rs/zerolog/log"
)

// DB is a global database connection pool.
var DB *sql.DB

// DBConfig holds database connection parameters.
type DBConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	DBName   string
	SSLMode  string // "disable", "require", "verify-full", etc.
}

// InitDB initializes the database connection pool.
func InitDB(cfg DBConfig) error {
	psqlInfo := fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		cfg.Host, cfg.Port, cfg.User, cfg.Password, cfg.DBName, cfg.SSLMode)

	var err error
	DB, err = sql.Open("postgres", psqlInfo)
	if err != nil {
		return fmt.Errorf("failed to open database connection: %w", err)
	}

	DB.SetMaxOpenConns(25)
	DB.SetMaxIdleConns(25)
	DB.SetConnMaxLifetime(5 * time.Minute)

	err = DB.Ping()
	if err != nil {
		DB.Close()
		return fmt.Errorf("failed to ping database: %w", err)
	}

	log.Info().Msg("Successfully connected to the PostgreSQL database!")
	return nil
}

// CloseDB closes the database connection pool.
func CloseDB() {
	if DB != nil {
		log.Info().Msg("Closing database connection...")
		if err := DB.Close(); err != nil {
			log.Error().Err(err).Msg("Error closing database connection")
		}
	}
}

// EnsureSchema applies the necessary DDL to create tables if they don't exist.
func EnsureSchema() error {
	if DB == nil {
		return fmt.Errorf("database not initialized")
	}

	schemaSQL := `
		CREATE TABLE IF NOT EXISTS risk_scores (
			score_id SERIAL PRIMARY KEY,
			risk_score SMALLINT NOT NULL,
			risk_level VARCHAR(16) NOT NULL,
			health_score SMALLINT NOT NULL,
			var_bps BIGINT NOT NULL,
			leverage_ratio DECIMAL(40, 18) NOT NULL,
			liquidity_ratio DECIMAL(40, 18) NOT NULL,
			drawdown_bps BIGINT NOT NULL,
			correlation_risk SMALLINT NOT NULL,
			volatility_risk SMALLINT NOT NULL,
			score_timestamp TIMESTAMPTZ NOT NULL,
			created_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP
		);
		CREATE INDEX IF NOT EXISTS idx_risk_scores_timestamp ON risk_scores(score_timestamp DESC);

		CREATE TABLE IF NOT EXISTS price_observations (
			observation_id SERIAL PRIMARY KEY,
			price DECIMAL(40, 18) NOT NULL,
			observed_at TIMESTAMPTZ NOT NULL,
			created_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP
		);
		CREATE INDEX IF NOT EXISTS idx_price_observations_observed_at ON price_observations(observed_at DESC);

		CREATE TABLE IF NOT EXISTS exposure_snapshots (
			snapshot_id SERIAL PRIMARY KEY,
			long_exposure NUMERIC(78, 0) NOT NULL,
			short_exposure NUMERIC(78, 0) NOT NULL,
			options_delta NUMERIC(78, 0) NOT NULL,
			net_delta NUMERIC(78, 0) NOT NULL,
			target_delta NUMERIC(78, 0) NOT NULL,
			deviation NUMERIC(78, 0) NOT NULL,
			snapshot_timestamp TIMESTAMPTZ NOT NULL,
			created_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP
		);
		CREATE INDEX IF NOT EXISTS idx_exposure_snapshots_timestamp ON exposure_snapshots(snapshot_timestamp DESC);

		CREATE TABLE IF NOT EXISTS rebalancing_records (
			record_id SERIAL PRIMARY KEY,
			keeper VARCHAR(255) NOT NULL,
			actions_executed INTEGER NOT NULL,
			total_volume NUMERIC(78, 0) NOT NULL,
			delta_before NUMERIC(78, 0) NOT NULL,
			delta_after NUMERIC(78, 0) NOT NULL,
			keeper_reward NUMERIC(78, 0) NOT NULL,
			success BOOLEAN NOT NULL,
			executed_at TIMESTAMPTZ NOT NULL,
			created_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP
		);
		CREATE INDEX IF NOT EXISTS idx_rebalancing_records_executed_at ON rebalancing_records(executed_at DESC);
		CREATE INDEX IF NOT EXISTS idx_rebalancing_records_keeper ON rebalancing_records(keeper);

		CREATE TABLE IF NOT EXISTS engine_parameters (
			params_id SERIAL PRIMARY KEY,
			version INTEGER NOT NULL DEFAULT 1,
			config_name VARCHAR(255) NOT NULL DEFAULT 'default',
			is_active BOOLEAN NOT NULL DEFAULT FALSE,
			activated_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP,
			created_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP,
			weight_leverage BIGINT NOT NULL, weight_liquidity BIGINT NOT NULL,
			weight_drawdown BIGINT NOT NULL, weight_correlation BIGINT NOT NULL,
			weight_volatility BIGINT NOT NULL,
			max_leverage DECIMAL(40, 18) NOT NULL,
			min_liquidity_ratio DECIMAL(40, 18) NOT NULL,
			max_drawdown_bps BIGINT NOT NULL,
			cb_price_drop_bps BIGINT NOT NULL,
			cb_price_window_seconds BIGINT NOT NULL,
			cb_volatility_multiple_bps BIGINT NOT NULL,
			cb_min_liquidity_ratio DECIMAL(40, 18) NOT NULL,
			cb_max_drawdown_bps BIGINT NOT NULL,
			execution_threshold NUMERIC(78, 0) NOT NULL,
			check_interval_seconds BIGINT NOT NULL,
			emergency_check_interval_seconds BIGINT NOT NULL,
			keeper_reward_bps BIGINT NOT NULL,
			max_slippage_bps BIGINT NOT NULL,
			CONSTRAINT uq_engine_parameters_config_version UNIQUE (config_name, version)
		);
		CREATE INDEX IF NOT EXISTS idx_engine_parameters_config_active ON engine_parameters(config_name, is_active, activated_at DESC);

		-- Cycle counter table for persistent global cycle tracking
		CREATE TABLE IF NOT EXISTS cycle_counter (
			id INTEGER PRIMARY KEY DEFAULT 1,
			current_cycle INTEGER NOT NULL DEFAULT 0,
			updated_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP,
			CONSTRAINT single_row_check CHECK (id = 1)
		);

		-- Insert initial row if it doesn't exist
		INSERT INTO cycle_counter (id, current_cycle)
		VALUES (1, 0)
		ON CONFLICT (id) DO NOTHING;
	`
	_, err := DB.Exec(schemaSQL)
	if err != nil {
		return fmt.Errorf("failed to execute schema DDL: %w", err)
	}
	log.Info().Msg("Database schema ensured.")
	return nil
}

// TestDBConnection tests if the database connection is healthy
func TestDBConnection() error {
	if DB == nil {
		return fmt.Errorf("database connection is nil")
	}

	// Use a short timeout context for health checks
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	err := DB.PingContext(ctx)
	if err != nil {
		return fmt.Errorf("database ping failed: %w", err)
	}

	return nil
}

// scanInt parses a NUMERIC(78,0) column value into an sdkmath.Int.
func scanInt(raw string) (sdkmath.Int, error) {
	v, ok := sdkmath.NewIntFromString(raw)
	if !ok {
		return sdkmath.Int{}, fmt.Errorf("failed to parse numeric column value %q", raw)
	}
	return v, nil
}

// scanDec parses a DECIMAL column into a LegacyDec.
func scanDec(raw string) (sdkmath.LegacyDec, error) {
	v, err := sdkmath.LegacyNewDecFromStr(raw)
	if err != nil {
		return sdkmath.LegacyDec{}, fmt.Errorf("failed to parse decimal column value %q: %w", raw, err)
	}
	return v, nil
}
