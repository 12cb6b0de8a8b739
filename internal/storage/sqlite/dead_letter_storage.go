package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/linksmith/chrono-scraper-sub002/internal/common"
	"github.com/linksmith/chrono-scraper-sub002/internal/models"
)

// CreateDeadLetter records a job or dual-write intent that exhausted its retry budget.
func (m *Manager) CreateDeadLetter(ctx context.Context, dl *models.DeadLetter) error {
	if dl.ID == "" {
		dl.ID = common.NewDeadLetterID()
	}
	if dl.CreatedAt.IsZero() {
		dl.CreatedAt = time.Now().UTC()
	}

	_, err := m.db.DB().ExecContext(ctx, `
		INSERT INTO dead_letters (id, source, reference_id, reason, payload_json, attempt_count,
			created_at, resolved_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		dl.ID, dl.Source, dl.ReferenceID, dl.Reason, nullBytes(dl.Payload), dl.AttemptCount,
		dl.CreatedAt.Unix(), nullableUnixPtr(dl.ResolvedAt))
	if err != nil {
		return fmt.Errorf("inserting dead letter: %w", err)
	}
	return nil
}

// ListDeadLetters returns the most recent unresolved dead letters for a source, capped at limit.
func (m *Manager) ListDeadLetters(ctx context.Context, source string, limit int) ([]*models.DeadLetter, error) {
	rows, err := m.db.DB().QueryContext(ctx, `
		SELECT id, source, reference_id, reason, payload_json, attempt_count, created_at, resolved_at
		FROM dead_letters WHERE source = ? ORDER BY created_at DESC LIMIT ?`, source, limit)
	if err != nil {
		return nil, fmt.Errorf("listing dead letters: %w", err)
	}
	defer rows.Close()

	var out []*models.DeadLetter
	for rows.Next() {
		var dl models.DeadLetter
		var payload sql.NullString
		var createdAt int64
		var resolvedAt sql.NullInt64

		if err := rows.Scan(&dl.ID, &dl.Source, &dl.ReferenceID, &dl.Reason, &payload, &dl.AttemptCount,
			&createdAt, &resolvedAt); err != nil {
			return nil, fmt.Errorf("scanning dead letter: %w", err)
		}
		dl.Payload = []byte(payload.String)
		dl.CreatedAt = time.Unix(createdAt, 0).UTC()
		if resolvedAt.Valid {
			ts := time.Unix(resolvedAt.Int64, 0).UTC()
			dl.ResolvedAt = &ts
		}
		out = append(out, &dl)
	}
	return out, rows.Err()
}

// ResolveDeadLetter marks a dead letter as handled.
func (m *Manager) ResolveDeadLetter(ctx context.Context, id string, at time.Time) error {
	res, err := m.db.DB().ExecContext(ctx,
		`UPDATE dead_letters SET resolved_at = ? WHERE id = ?`, at.Unix(), id)
	if err != nil {
		return fmt.Errorf("resolving dead letter: %w", err)
	}
	return requireRowsAffected(res, "dead letter", id)
}
