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

// CreateSession inserts a new crawl Session.
func (m *Manager) CreateSession(ctx context.Context, s *models.Session) error {
	if s.ID == "" {
		s.ID = common.NewSessionID()
	}
	now := time.Now().UTC()
	s.CreatedAt, s.UpdatedAt = now, now
	if s.StartedAt.IsZero() {
		s.StartedAt = now
	}
	if s.Status == "" {
		s.Status = models.SessionStatusRunning
	}

	_, err := m.db.DB().ExecContext(ctx, `
		INSERT INTO sessions (id, project_id, started_at, ended_at, pages_discovered, pages_fetched,
			pages_extracted, pages_failed, status, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		s.ID, s.ProjectID, s.StartedAt.Unix(), nullableUnixPtr(s.EndedAt), s.PagesDiscovered,
		s.PagesFetched, s.PagesExtracted, s.PagesFailed, string(s.Status), now.Unix(), now.Unix())
	if err != nil {
		return fmt.Errorf("inserting session: %w", err)
	}
	return nil
}

// GetSession fetches a Session by id.
func (m *Manager) GetSession(ctx context.Context, id string) (*models.Session, error) {
	row := m.db.DB().QueryRowContext(ctx, `
		SELECT id, project_id, started_at, ended_at, pages_discovered, pages_fetched,
			pages_extracted, pages_failed, status, created_at, updated_at
		FROM sessions WHERE id = ?`, id)
	return scanSession(row)
}

// UpdateSession persists mutated Session counters and status.
func (m *Manager) UpdateSession(ctx context.Context, s *models.Session) error {
	s.UpdatedAt = time.Now().UTC()

	res, err := m.db.DB().ExecContext(ctx, `
		UPDATE sessions SET ended_at = ?, pages_discovered = ?, pages_fetched = ?, pages_extracted = ?,
			pages_failed = ?, status = ?, updated_at = ?
		WHERE id = ?`,
		nullableUnixPtr(s.EndedAt), s.PagesDiscovered, s.PagesFetched, s.PagesExtracted,
		s.PagesFailed, string(s.Status), s.UpdatedAt.Unix(), s.ID)
	if err != nil {
		return fmt.Errorf("updating session: %w", err)
	}
	return requireRowsAffected(res, "session", s.ID)
}

// ListActiveSessions returns every Session still in the running state.
func (m *Manager) ListActiveSessions(ctx context.Context) ([]*models.Session, error) {
	rows, err := m.db.DB().QueryContext(ctx, `
		SELECT id, project_id, started_at, ended_at, pages_discovered, pages_fetched,
			pages_extracted, pages_failed, status, created_at, updated_at
		FROM sessions WHERE status = ? ORDER BY started_at ASC`, string(models.SessionStatusRunning))
	if err != nil {
		return nil, fmt.Errorf("listing active sessions: %w", err)
	}
	defer rows.Close()

	var out []*models.Session
	for rows.Next() {
		s, err := scanSessionRows(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

func scanSession(row *sql.Row) (*models.Session, error) {
	var s models.Session
	var endedAt sql.NullInt64
	var startedAt, createdAt, updatedAt int64

	err := row.Scan(&s.ID, &s.ProjectID, &startedAt, &endedAt, &s.PagesDiscovered, &s.PagesFetched,
		&s.PagesExtracted, &s.PagesFailed, &s.Status, &createdAt, &updatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("session not found: %w", err)
		}
		return nil, fmt.Errorf("scanning session: %w", err)
	}
	return finishSession(&s, startedAt, endedAt, createdAt, updatedAt), nil
}

func scanSessionRows(rows *sql.Rows) (*models.Session, error) {
	var s models.Session
	var endedAt sql.NullInt64
	var startedAt, createdAt, updatedAt int64

	err := rows.Scan(&s.ID, &s.ProjectID, &startedAt, &endedAt, &s.PagesDiscovered, &s.PagesFetched,
		&s.PagesExtracted, &s.PagesFailed, &s.Status, &createdAt, &updatedAt)
	if err != nil {
		return nil, fmt.Errorf("scanning session: %w", err)
	}
	return finishSession(&s, startedAt, endedAt, createdAt, updatedAt), nil
}

func finishSession(s *models.Session, startedAt int64, endedAt sql.NullInt64, createdAt, updatedAt int64) *models.Session {
	s.StartedAt = time.Unix(startedAt, 0).UTC()
	s.CreatedAt = time.Unix(createdAt, 0).UTC()
	s.UpdatedAt = time.Unix(updatedAt, 0).UTC()
	if endedAt.Valid {
		ts := time.Unix(endedAt.Int64, 0).UTC()
		s.EndedAt = &ts
	}
	return s
}
