/*

This file persists oracle price observations. The in-memory history owned
by the risk manager serves the circuit breaker's lookback; this table is
the durable copy used for post-incident review.

*/

package state

import (
	"database/sql"
	"fmt"
	"time"

	sdkmath "cosmossdk.io/math"
	"github.com/rs/zerolog/log"
)

// SavePriceObservation appends one observation row.
func SavePriceObservation(price sdkmath.LegacyDec, observedAt time.Time) error {
	if DB == nil {
		return fmt.Errorf("database not initialized")
	}

	insertSQL := `INSERT INTO price_observations (price, observed_at) VALUES ($1, $2);`
	_, err := DB.Exec(insertSQL, price.String(), observedAt)
	if err != nil {
		return fmt.Errorf("failed to save price observation: %w", err)
	}

	log.Debug().Str("price", price.String()).Msg("Price observation persisted")
	return nil
}

// GetPriceAtOrBefore returns the newest persisted price at or before the
// cutoff, mirroring the in-memory lookback semantics.
func GetPriceAtOrBefore(cutoff time.Time) (sdkmath.LegacyDec, time.Time, error) {
	if DB == nil {
		return sdkmath.LegacyDec{}, time.Time{}, fmt.Errorf("database not initialized")
	}

	query := `
		SELECT price, observed_at
		FROM price_observations
		WHERE observed_at <= $1
		ORDER BY observed_at DESC
		LIMIT 1;`

	var (
		priceRaw   string
		observedAt time.Time
	)
	row := DB.QueryRow(query, cutoff)
	if err := row.Scan(&priceRaw, &observedAt); err != nil {
		if err == sql.ErrNoRows {
			return sdkmath.LegacyDec{}, time.Time{}, fmt.Errorf("no price observation at or before %s", cutoff)
		}
		return sdkmath.LegacyDec{}, time.Time{}, fmt.Errorf("failed to query price observation: %w", err)
	}

	price, err := scanDec(priceRaw)
	if err != nil {
		return sdkmath.LegacyDec{}, time.Time{}, err
	}
	return price, observedAt, nil
}
