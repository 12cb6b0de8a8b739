package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/linksmith/chrono-scraper-sub002/internal/models"
)

// RecordCheckResult appends a Consistency Validator run for an entity type.
func (m *Manager) RecordCheckResult(ctx context.Context, result *models.ConsistencyCheckResult) error {
	if result.RunAt.IsZero() {
		result.RunAt = time.Now().UTC()
	}

	detailsJSON, err := json.Marshal(result.Details)
	if err != nil {
		return fmt.Errorf("marshaling consistency check details: %w", err)
	}

	res, err := m.db.DB().ExecContext(ctx, `
		INSERT INTO consistency_checks (run_at, entity_type, primary_count, secondary_count,
			mismatches, consistency_score, details_json)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		result.RunAt.Unix(), result.EntityType, result.PrimaryCount, result.SecondaryCount,
		result.Mismatches, result.ConsistencyScore, string(detailsJSON))
	if err != nil {
		return fmt.Errorf("inserting consistency check result: %w", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("reading consistency check id: %w", err)
	}
	result.ID = id
	return nil
}

// LatestCheckResult returns the most recent run for an entity type.
func (m *Manager) LatestCheckResult(ctx context.Context, entityType string) (*models.ConsistencyCheckResult, error) {
	row := m.db.DB().QueryRowContext(ctx, consistencyCheckSelect+
		` WHERE entity_type = ? ORDER BY run_at DESC LIMIT 1`, entityType)
	result, err := scanConsistencyCheckRow(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("no consistency check results for %s: %w", entityType, err)
		}
		return nil, err
	}
	return result, nil
}

// ListCheckResults returns the most recent runs for an entity type, capped at limit.
func (m *Manager) ListCheckResults(ctx context.Context, entityType string, limit int) ([]*models.ConsistencyCheckResult, error) {
	rows, err := m.db.DB().QueryContext(ctx, consistencyCheckSelect+
		` WHERE entity_type = ? ORDER BY run_at DESC LIMIT ?`, entityType, limit)
	if err != nil {
		return nil, fmt.Errorf("listing consistency check results: %w", err)
	}
	defer rows.Close()

	var out []*models.ConsistencyCheckResult
	for rows.Next() {
		result, err := scanConsistencyCheckRow(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, result)
	}
	return out, rows.Err()
}

const consistencyCheckSelect = `
	SELECT id, run_at, entity_type, primary_count, secondary_count, mismatches, consistency_score, details_json
	FROM consistency_checks`

type consistencyCheckScanner interface {
	Scan(dest ...interface{}) error
}

func scanConsistencyCheckRow(scanner consistencyCheckScanner) (*models.ConsistencyCheckResult, error) {
	var result models.ConsistencyCheckResult
	var runAt int64
	var detailsJSON sql.NullString

	err := scanner.Scan(&result.ID, &runAt, &result.EntityType, &result.PrimaryCount, &result.SecondaryCount,
		&result.Mismatches, &result.ConsistencyScore, &detailsJSON)
	if err != nil {
		return nil, fmt.Errorf("scanning consistency check result: %w", err)
	}

	result.RunAt = time.Unix(runAt, 0).UTC()
	if detailsJSON.Valid && detailsJSON.String != "" {
		if err := json.Unmarshal([]byte(detailsJSON.String), &result.Details); err != nil {
			return nil, fmt.Errorf("unmarshaling consistency check details: %w", err)
		}
	}

	return &result, nil
}
