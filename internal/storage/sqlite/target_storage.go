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

// CreateTarget inserts a new Target scoped to a Project.
func (m *Manager) CreateTarget(ctx context.Context, t *models.Target) error {
	if t.ID == "" {
		t.ID = common.NewTargetID()
	}
	now := time.Now().UTC()
	t.CreatedAt, t.UpdatedAt = now, now

	includeJSON, err := json.Marshal(t.IncludePatterns)
	if err != nil {
		return fmt.Errorf("marshaling include patterns: %w", err)
	}
	excludeJSON, err := json.Marshal(t.ExcludePatterns)
	if err != nil {
		return fmt.Errorf("marshaling exclude patterns: %w", err)
	}

	_, err = m.db.DB().ExecContext(ctx, `
		INSERT INTO targets (id, project_id, domain, match_type, url_path, include_attachments,
			include_patterns_json, exclude_patterns_json, date_range_start, date_range_end, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		t.ID, t.ProjectID, t.Domain, string(t.MatchType), nullString(t.URLPath), boolToInt(t.IncludeAttachments),
		string(includeJSON), string(excludeJSON),
		nullableUnixPtr(t.DateRangeStart), nullableUnixPtr(t.DateRangeEnd), now.Unix(), now.Unix())
	if err != nil {
		return fmt.Errorf("inserting target: %w", err)
	}
	return nil
}

const targetSelect = `
	SELECT id, project_id, domain, match_type, url_path, include_attachments,
		include_patterns_json, exclude_patterns_json, date_range_start, date_range_end, created_at, updated_at
	FROM targets`

// GetTarget fetches a Target by id.
func (m *Manager) GetTarget(ctx context.Context, id string) (*models.Target, error) {
	row := m.db.DB().QueryRowContext(ctx, targetSelect+` WHERE id = ?`, id)
	return scanTarget(row)
}

// ListTargetsByProject returns every Target for a Project.
func (m *Manager) ListTargetsByProject(ctx context.Context, projectID string) ([]*models.Target, error) {
	rows, err := m.db.DB().QueryContext(ctx, targetSelect+` WHERE project_id = ? ORDER BY domain`, projectID)
	if err != nil {
		return nil, fmt.Errorf("listing targets: %w", err)
	}
	defer rows.Close()

	var out []*models.Target
	for rows.Next() {
		t, err := scanTargetRows(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

// UpdateTarget persists mutated Target fields.
func (m *Manager) UpdateTarget(ctx context.Context, t *models.Target) error {
	includeJSON, err := json.Marshal(t.IncludePatterns)
	if err != nil {
		return fmt.Errorf("marshaling include patterns: %w", err)
	}
	excludeJSON, err := json.Marshal(t.ExcludePatterns)
	if err != nil {
		return fmt.Errorf("marshaling exclude patterns: %w", err)
	}
	t.UpdatedAt = time.Now().UTC()

	res, err := m.db.DB().ExecContext(ctx, `
		UPDATE targets SET domain = ?, match_type = ?, url_path = ?, include_attachments = ?,
			include_patterns_json = ?, exclude_patterns_json = ?,
			date_range_start = ?, date_range_end = ?, updated_at = ?
		WHERE id = ?`,
		t.Domain, string(t.MatchType), nullString(t.URLPath), boolToInt(t.IncludeAttachments),
		string(includeJSON), string(excludeJSON),
		nullableUnixPtr(t.DateRangeStart), nullableUnixPtr(t.DateRangeEnd), t.UpdatedAt.Unix(), t.ID)
	if err != nil {
		return fmt.Errorf("updating target: %w", err)
	}
	return requireRowsAffected(res, "target", t.ID)
}

// DeleteTarget removes a Target; ON DELETE CASCADE drops its scrape pages and pages.
func (m *Manager) DeleteTarget(ctx context.Context, id string) error {
	res, err := m.db.DB().ExecContext(ctx, `DELETE FROM targets WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("deleting target: %w", err)
	}
	return requireRowsAffected(res, "target", id)
}

func scanTarget(row *sql.Row) (*models.Target, error) {
	var t models.Target
	var matchType string
	var urlPath, includeJSON, excludeJSON sql.NullString
	var includeAttachments int
	var dateStart, dateEnd sql.NullInt64
	var createdAt, updatedAt int64

	err := row.Scan(&t.ID, &t.ProjectID, &t.Domain, &matchType, &urlPath, &includeAttachments, &includeJSON, &excludeJSON,
		&dateStart, &dateEnd, &createdAt, &updatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("target not found: %w", err)
		}
		return nil, fmt.Errorf("scanning target: %w", err)
	}
	t.MatchType = models.MatchType(matchType)
	t.URLPath = urlPath.String
	t.IncludeAttachments = includeAttachments != 0
	return unmarshalTarget(&t, includeJSON, excludeJSON, dateStart, dateEnd, createdAt, updatedAt)
}

func scanTargetRows(rows *sql.Rows) (*models.Target, error) {
	var t models.Target
	var matchType string
	var urlPath, includeJSON, excludeJSON sql.NullString
	var includeAttachments int
	var dateStart, dateEnd sql.NullInt64
	var createdAt, updatedAt int64

	err := rows.Scan(&t.ID, &t.ProjectID, &t.Domain, &matchType, &urlPath, &includeAttachments, &includeJSON, &excludeJSON,
		&dateStart, &dateEnd, &createdAt, &updatedAt)
	if err != nil {
		return nil, fmt.Errorf("scanning target: %w", err)
	}
	t.MatchType = models.MatchType(matchType)
	t.URLPath = urlPath.String
	t.IncludeAttachments = includeAttachments != 0
	return unmarshalTarget(&t, includeJSON, excludeJSON, dateStart, dateEnd, createdAt, updatedAt)
}

func unmarshalTarget(t *models.Target, includeJSON, excludeJSON sql.NullString, dateStart, dateEnd sql.NullInt64, createdAt, updatedAt int64) (*models.Target, error) {
	if includeJSON.Valid && includeJSON.String != "" {
		if err := json.Unmarshal([]byte(includeJSON.String), &t.IncludePatterns); err != nil {
			return nil, fmt.Errorf("unmarshaling include patterns: %w", err)
		}
	}
	if excludeJSON.Valid && excludeJSON.String != "" {
		if err := json.Unmarshal([]byte(excludeJSON.String), &t.ExcludePatterns); err != nil {
			return nil, fmt.Errorf("unmarshaling exclude patterns: %w", err)
		}
	}
	if dateStart.Valid {
		ts := time.Unix(dateStart.Int64, 0).UTC()
		t.DateRangeStart = &ts
	}
	if dateEnd.Valid {
		ts := time.Unix(dateEnd.Int64, 0).UTC()
		t.DateRangeEnd = &ts
	}
	t.CreatedAt = time.Unix(createdAt, 0).UTC()
	t.UpdatedAt = time.Unix(updatedAt, 0).UTC()
	return t, nil
}

// nullableUnixPtr converts an optional *time.Time into a nil-able unix
// timestamp for an ExecContext argument.
func nullableUnixPtr(t *time.Time) interface{} {
	if t == nil {
		return nil
	}
	return t.Unix()
}
