package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/linksmith/chrono-scraper-sub002/internal/common"
	"github.com/linksmith/chrono-scraper-sub002/internal/models"
)

// CreateIntent appends a DualWriteIntent to the outbox. Callers append this
// after the primary write it describes has committed, as a separate write.
func (m *Manager) CreateIntent(ctx context.Context, intent *models.DualWriteIntent) error {
	if intent.ID == "" {
		intent.ID = common.NewIntentID()
	}
	if intent.SubmittedAt.IsZero() {
		intent.SubmittedAt = time.Now().UTC()
	}
	if intent.Status == "" {
		intent.Status = models.IntentStatusPending
	}

	_, err := m.db.DB().ExecContext(ctx, `
		INSERT INTO dual_write_intents (id, entity_type, entity_id, payload_json, payload_hash,
			consistency_level, status, attempt_count, last_error, submitted_at, completed_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		intent.ID, intent.EntityType, intent.EntityID, string(intent.Payload), intent.PayloadHash,
		string(intent.ConsistencyLevel), string(intent.Status), intent.AttemptCount,
		nullString(intent.LastError), intent.SubmittedAt.Unix(), nullableUnixPtr(intent.CompletedAt))
	if err != nil {
		return fmt.Errorf("inserting dual-write intent: %w", err)
	}
	return nil
}

// GetIntent fetches a DualWriteIntent by id.
func (m *Manager) GetIntent(ctx context.Context, id string) (*models.DualWriteIntent, error) {
	row := m.db.DB().QueryRowContext(ctx, intentSelect+` WHERE id = ?`, id)
	intent, err := scanIntentRow(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("dual-write intent not found: %w", err)
		}
		return nil, err
	}
	return intent, nil
}

// ListPending returns pending DualWriteIntents, oldest first, capped at limit.
func (m *Manager) ListPending(ctx context.Context, limit int) ([]*models.DualWriteIntent, error) {
	rows, err := m.db.DB().QueryContext(ctx,
		intentSelect+` WHERE status = ? ORDER BY submitted_at ASC LIMIT ?`,
		string(models.IntentStatusPending), limit)
	if err != nil {
		return nil, fmt.Errorf("listing pending intents: %w", err)
	}
	defer rows.Close()

	var out []*models.DualWriteIntent
	for rows.Next() {
		intent, err := scanIntentRow(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, intent)
	}
	return out, rows.Err()
}

// UpdateIntent persists a mutated DualWriteIntent (status, attempt/error bookkeeping).
func (m *Manager) UpdateIntent(ctx context.Context, intent *models.DualWriteIntent) error {
	res, err := m.db.DB().ExecContext(ctx, `
		UPDATE dual_write_intents SET status = ?, attempt_count = ?, last_error = ?, completed_at = ?
		WHERE id = ?`,
		string(intent.Status), intent.AttemptCount, nullString(intent.LastError),
		nullableUnixPtr(intent.CompletedAt), intent.ID)
	if err != nil {
		return fmt.Errorf("updating dual-write intent: %w", err)
	}
	return requireRowsAffected(res, "dual-write intent", intent.ID)
}

const intentSelect = `
	SELECT id, entity_type, entity_id, payload_json, payload_hash, consistency_level, status,
		attempt_count, last_error, submitted_at, completed_at
	FROM dual_write_intents`

type intentScanner interface {
	Scan(dest ...interface{}) error
}

func scanIntentRow(scanner intentScanner) (*models.DualWriteIntent, error) {
	var intent models.DualWriteIntent
	var payload sql.NullString
	var lastError sql.NullString
	var submittedAt int64
	var completedAt sql.NullInt64

	err := scanner.Scan(&intent.ID, &intent.EntityType, &intent.EntityID, &payload, &intent.PayloadHash,
		&intent.ConsistencyLevel, &intent.Status, &intent.AttemptCount, &lastError, &submittedAt, &completedAt)
	if err != nil {
		return nil, fmt.Errorf("scanning dual-write intent: %w", err)
	}

	intent.Payload = []byte(payload.String)
	intent.LastError = lastError.String
	intent.SubmittedAt = time.Unix(submittedAt, 0).UTC()
	if completedAt.Valid {
		ts := time.Unix(completedAt.Int64, 0).UTC()
		intent.CompletedAt = &ts
	}

	return &intent, nil
}
