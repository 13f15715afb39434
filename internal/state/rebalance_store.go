/*

This file persists the append-only rebalancing history used for keeper
reward audit and the failure counter exposed on the API.

*/

package state

import (
	"database/sql"
	"fmt"

	"github.com/rs/zerolog/log"

	"github.com/definite-protocol/dne/internal/types"
)

// SaveRebalancingRecord appends one execution record.
func SaveRebalancingRecord(record types.RebalancingRecord) error {
	if DB == nil {
		return fmt.Errorf("database not initialized")
	}

	insertSQL := `
		INSERT INTO rebalancing_records (
			keeper, actions_executed, total_volume,
			delta_before, delta_after, keeper_reward, success, executed_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8);`

	_, err := DB.Exec(insertSQL,
		string(record.Keeper),
		record.ActionsExecuted,
		record.TotalVolume.String(),
		record.DeltaBefore.String(),
		record.DeltaAfter.String(),
		record.KeeperReward.String(),
		record.Success,
		record.Timestamp,
	)
	if err != nil {
		return fmt.Errorf("failed to save rebalancing record: %w", err)
	}

	log.Debug().
		Str("keeper", string(record.Keeper)).
		Bool("success", record.Success).
		Msg("Rebalancing record persisted")
	return nil
}

// GetRebalancingRecords returns up to limit records, newest first.
func GetRebalancingRecords(limit int) ([]types.RebalancingRecord, error) {
	if DB == nil {
		return nil, fmt.Errorf("database not initialized")
	}
	if limit <= 0 {
		limit = 50
	}

	query := `
		SELECT record_id, keeper, actions_executed, total_volume,
		       delta_before, delta_after, keeper_reward, success, executed_at
		FROM rebalancing_records
		ORDER BY executed_at DESC
		LIMIT $1;`

	rows, err := DB.Query(query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query rebalancing records: %w", err)
	}
	defer rows.Close()

	var records []types.RebalancingRecord
	for rows.Next() {
		record, err := scanRebalancingRecord(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, record)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate rebalancing records: %w", err)
	}
	return records, nil
}

// GetLatestRebalancingRecord returns the newest record.
func GetLatestRebalancingRecord() (types.RebalancingRecord, error) {
	records, err := GetRebalancingRecords(1)
	if err != nil {
		return types.RebalancingRecord{}, err
	}
	if len(records) == 0 {
		return types.RebalancingRecord{}, fmt.Errorf("no rebalancing record found")
	}
	return records[0], nil
}

// CountFailedRebalancings returns the lifetime persisted failure count.
func CountFailedRebalancings() (int64, error) {
	if DB == nil {
		return 0, fmt.Errorf("database not initialized")
	}
	var count int64
	row := DB.QueryRow(`SELECT COUNT(*) FROM rebalancing_records WHERE success = FALSE;`)
	if err := row.Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count failed rebalancings: %w", err)
	}
	return count, nil
}

func scanRebalancingRecord(rows *sql.Rows) (types.RebalancingRecord, error) {
	var (
		record    types.RebalancingRecord
		keeper    string
		volumeRaw string
		beforeRaw string
		afterRaw  string
		rewardRaw string
	)
	err := rows.Scan(
		&record.RecordID,
		&keeper,
		&record.ActionsExecuted,
		&volumeRaw,
		&beforeRaw,
		&afterRaw,
		&rewardRaw,
		&record.Success,
		&record.Timestamp,
	)
	if err != nil {
		return types.RebalancingRecord{}, fmt.Errorf("failed to scan rebalancing record: %w", err)
	}

	record.Keeper = types.Address(keeper)
	if record.TotalVolume, err = scanInt(volumeRaw); err != nil {
		return types.RebalancingRecord{}, err
	}
	if record.DeltaBefore, err = scanSigned(beforeRaw); err != nil {
		return types.RebalancingRecord{}, err
	}
	if record.DeltaAfter, err = scanSigned(afterRaw); err != nil {
		return types.RebalancingRecord{}, err
	}
	if record.KeeperReward, err = scanInt(rewardRaw); err != nil {
		return types.RebalancingRecord{}, err
	}
	return record, nil
}
