/*

This file persists exposure snapshots, one row per evaluation that reached
the executor. Signed values are stored as signed NUMERIC and rebuilt into
the magnitude+sign representation on read.

*/

package state

import (
	"database/sql"
	"fmt"

	"github.com/rs/zerolog/log"

	"github.com/definite-protocol/dne/internal/types"
)

// SaveExposureSnapshot appends one snapshot row.
func SaveExposureSnapshot(snapshot types.ExposureSnapshot) error {
	if DB == nil {
		return fmt.Errorf("database not initialized")
	}

	insertSQL := `
		INSERT INTO exposure_snapshots (
			long_exposure, short_exposure, options_delta,
			net_delta, target_delta, deviation, snapshot_timestamp
		) VALUES ($1, $2, $3, $4, $5, $6, $7);`

	_, err := DB.Exec(insertSQL,
		snapshot.LongExposure.String(),
		snapshot.ShortExposure.String(),
		snapshot.OptionsDelta.String(),
		snapshot.NetDelta.String(),
		snapshot.TargetDelta.String(),
		snapshot.Deviation.String(),
		snapshot.Timestamp,
	)
	if err != nil {
		return fmt.Errorf("failed to save exposure snapshot: %w", err)
	}

	log.Debug().
		Str("netDelta", snapshot.NetDelta.String()).
		Str("deviation", snapshot.Deviation.String()).
		Msg("Exposure snapshot persisted")
	return nil
}

// GetLatestExposureSnapshot returns the newest persisted snapshot.
func GetLatestExposureSnapshot() (types.ExposureSnapshot, error) {
	if DB == nil {
		return types.ExposureSnapshot{}, fmt.Errorf("database not initialized")
	}

	query := `
		SELECT long_exposure, short_exposure, options_delta,
		       net_delta, target_delta, deviation, snapshot_timestamp
		FROM exposure_snapshots
		ORDER BY snapshot_timestamp DESC
		LIMIT 1;`

	var (
		snapshot  types.ExposureSnapshot
		longRaw   string
		shortRaw  string
		optRaw    string
		netRaw    string
		targetRaw string
		devRaw    string
	)
	row := DB.QueryRow(query)
	err := row.Scan(&longRaw, &shortRaw, &optRaw, &netRaw, &targetRaw, &devRaw, &snapshot.Timestamp)
	if err != nil {
		if err == sql.ErrNoRows {
			return types.ExposureSnapshot{}, fmt.Errorf("no exposure snapshot recorded")
		}
		return types.ExposureSnapshot{}, fmt.Errorf("failed to query exposure snapshot: %w", err)
	}

	if snapshot.LongExposure, err = scanInt(longRaw); err != nil {
		return types.ExposureSnapshot{}, err
	}
	if snapshot.ShortExposure, err = scanInt(shortRaw); err != nil {
		return types.ExposureSnapshot{}, err
	}
	if snapshot.OptionsDelta, err = scanSigned(optRaw); err != nil {
		return types.ExposureSnapshot{}, err
	}
	if snapshot.NetDelta, err = scanSigned(netRaw); err != nil {
		return types.ExposureSnapshot{}, err
	}
	if snapshot.TargetDelta, err = scanSigned(targetRaw); err != nil {
		return types.ExposureSnapshot{}, err
	}
	if snapshot.Deviation, err = scanInt(devRaw); err != nil {
		return types.ExposureSnapshot{}, err
	}
	return snapshot, nil
}

// scanSigned parses a signed NUMERIC column value into a SignedAmount.
func scanSigned(raw string) (types.SignedAmount, error) {
	v, err := scanInt(raw)
	if err != nil {
		return types.SignedAmount{}, err
	}
	return types.SignedFromInt(v), nil
}
