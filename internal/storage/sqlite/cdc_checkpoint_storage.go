package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// GetCheckpoint returns the CDC Bridge's last processed position for a
// stream, or (0, zero time, nil) if reconciliation has never run.
func (m *Manager) GetCheckpoint(ctx context.Context, streamName string) (int64, time.Time, error) {
	var lastProcessedAt int64
	var lastProcessedID sql.NullString
	err := m.db.DB().QueryRowContext(ctx, `
		SELECT last_processed_at, last_processed_id FROM cdc_checkpoints WHERE checkpoint_key = ?`,
		streamName).Scan(&lastProcessedAt, &lastProcessedID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, time.Time{}, nil
		}
		return 0, time.Time{}, fmt.Errorf("reading cdc checkpoint: %w", err)
	}

	var position int64
	if lastProcessedID.Valid {
		fmt.Sscanf(lastProcessedID.String, "%d", &position)
	}
	return position, time.Unix(lastProcessedAt, 0).UTC(), nil
}

// SaveCheckpoint persists the CDC Bridge's reconciliation progress for a stream.
func (m *Manager) SaveCheckpoint(ctx context.Context, streamName string, position int64, at time.Time) error {
	now := time.Now().UTC()
	_, err := m.db.DB().ExecContext(ctx, `
		INSERT INTO cdc_checkpoints (checkpoint_key, last_processed_at, last_processed_id, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(checkpoint_key) DO UPDATE SET
			last_processed_at = excluded.last_processed_at,
			last_processed_id = excluded.last_processed_id,
			updated_at = excluded.updated_at`,
		streamName, at.Unix(), fmt.Sprintf("%d", position), now.Unix())
	if err != nil {
		return fmt.Errorf("saving cdc checkpoint: %w", err)
	}
	return nil
}
