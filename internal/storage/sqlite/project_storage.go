package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/linksmith/chrono-scraper-sub002/internal/common"
	"github.com/linksmith/chrono-scraper-sub002/internal/models"
)

// CreateProject inserts a new Project row, serializing ArchiveConfig to JSON.
func (m *Manager) CreateProject(ctx context.Context, p *models.Project) error {
	if p.ID == "" {
		p.ID = common.NewProjectID()
	}
	now := time.Now().UTC()
	p.CreatedAt, p.UpdatedAt = now, now

	archiveJSON, err := json.Marshal(p.Archive)
	if err != nil {
		return fmt.Errorf("marshaling archive config: %w", err)
	}

	_, err = m.db.DB().ExecContext(ctx, `
		INSERT INTO projects (id, name, description, archive_config_json, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		p.ID, p.Name, p.Description, string(archiveJSON), now.Unix(), now.Unix())
	if err != nil {
		return fmt.Errorf("inserting project: %w", err)
	}
	return nil
}

// GetProject fetches a Project by id.
func (m *Manager) GetProject(ctx context.Context, id string) (*models.Project, error) {
	row := m.db.DB().QueryRowContext(ctx, `
		SELECT id, name, description, archive_config_json, created_at, updated_at
		FROM projects WHERE id = ?`, id)
	return scanProject(row)
}

// ListProjects returns every Project, most recently created first.
func (m *Manager) ListProjects(ctx context.Context) ([]*models.Project, error) {
	rows, err := m.db.DB().QueryContext(ctx, `
		SELECT id, name, description, archive_config_json, created_at, updated_at
		FROM projects ORDER BY created_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("listing projects: %w", err)
	}
	defer rows.Close()

	var out []*models.Project
	for rows.Next() {
		p, err := scanProjectRows(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// UpdateProject persists mutated Project fields (name, description, archive policy).
func (m *Manager) UpdateProject(ctx context.Context, p *models.Project) error {
	archiveJSON, err := json.Marshal(p.Archive)
	if err != nil {
		return fmt.Errorf("marshaling archive config: %w", err)
	}
	p.UpdatedAt = time.Now().UTC()

	res, err := m.db.DB().ExecContext(ctx, `
		UPDATE projects SET name = ?, description = ?, archive_config_json = ?, updated_at = ?
		WHERE id = ?`,
		p.Name, p.Description, string(archiveJSON), p.UpdatedAt.Unix(), p.ID)
	if err != nil {
		return fmt.Errorf("updating project: %w", err)
	}
	return requireRowsAffected(res, "project", p.ID)
}

// DeleteProject removes a Project; ON DELETE CASCADE drops its targets,
// scrape pages, pages, and sessions.
func (m *Manager) DeleteProject(ctx context.Context, id string) error {
	res, err := m.db.DB().ExecContext(ctx, `DELETE FROM projects WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("deleting project: %w", err)
	}
	return requireRowsAffected(res, "project", id)
}

func scanProject(row *sql.Row) (*models.Project, error) {
	var p models.Project
	var archiveJSON string
	var createdAt, updatedAt int64

	if err := row.Scan(&p.ID, &p.Name, &p.Description, &archiveJSON, &createdAt, &updatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("project not found: %w", err)
		}
		return nil, fmt.Errorf("scanning project: %w", err)
	}
	if err := json.Unmarshal([]byte(archiveJSON), &p.Archive); err != nil {
		return nil, fmt.Errorf("unmarshaling archive config: %w", err)
	}
	p.CreatedAt = time.Unix(createdAt, 0).UTC()
	p.UpdatedAt = time.Unix(updatedAt, 0).UTC()
	return &p, nil
}

func scanProjectRows(rows *sql.Rows) (*models.Project, error) {
	var p models.Project
	var archiveJSON string
	var createdAt, updatedAt int64

	if err := rows.Scan(&p.ID, &p.Name, &p.Description, &archiveJSON, &createdAt, &updatedAt); err != nil {
		return nil, fmt.Errorf("scanning project: %w", err)
	}
	if err := json.Unmarshal([]byte(archiveJSON), &p.Archive); err != nil {
		return nil, fmt.Errorf("unmarshaling archive config: %w", err)
	}
	p.CreatedAt = time.Unix(createdAt, 0).UTC()
	p.UpdatedAt = time.Unix(updatedAt, 0).UTC()
	return &p, nil
}

// requireRowsAffected translates a zero-row UPDATE/DELETE into a not-found
// error so callers can't silently no-op against a missing id.
func requireRowsAffected(res sql.Result, entity, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking rows affected: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("%s %s not found", entity, id)
	}
	return nil
}
