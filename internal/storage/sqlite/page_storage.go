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

// UpsertPage materializes a Page keyed on (target_id, content_digest), the
// §3 identity key: the same content reappearing for a target (e.g. a
// re-crawl of an unchanged snapshot) updates last_seen_timestamp in place
// rather than creating a duplicate row. first_seen_timestamp is set once, on
// the row's first insert, and never touched again.
func (m *Manager) UpsertPage(ctx context.Context, p *models.Page) error {
	now := time.Now().UTC()
	p.UpdatedAt = now

	qualityJSON, err := json.Marshal(p.QualityBreakdown)
	if err != nil {
		return fmt.Errorf("marshaling quality breakdown: %w", err)
	}
	metadataJSON, err := json.Marshal(p.Metadata)
	if err != nil {
		return fmt.Errorf("marshaling page metadata: %w", err)
	}

	var existingID string
	var firstSeen int64
	err = m.db.DB().QueryRowContext(ctx,
		`SELECT id, first_seen_timestamp FROM pages WHERE target_id = ? AND content_digest = ?`,
		p.TargetID, p.ContentDigest).Scan(&existingID, &firstSeen)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		if p.ID == "" {
			p.ID = common.NewPageID()
		}
		p.CreatedAt = now
		p.FirstSeenAt = now
		p.LastSeenAt = now
		_, err = m.db.DB().ExecContext(ctx, `
			INSERT INTO pages (id, scrape_page_id, target_id, url, title, content_markdown, content_text,
				content_digest, extraction_tier, quality_score, quality_breakdown_json, metadata_json, captured_at,
				first_seen_timestamp, last_seen_timestamp, created_at, updated_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			p.ID, p.ScrapePageID, p.TargetID, p.URL, nullString(p.Title), nullString(p.ContentMarkdown),
			nullString(p.ContentText), nullString(p.ContentDigest), p.ExtractionTier, p.QualityScore, string(qualityJSON),
			string(metadataJSON), nullableUnixPtr(p.CapturedAt), now.Unix(), now.Unix(), now.Unix(), now.Unix())
		if err != nil {
			return fmt.Errorf("inserting page: %w", err)
		}
		return nil
	case err != nil:
		return fmt.Errorf("checking existing page: %w", err)
	}

	p.ID = existingID
	p.FirstSeenAt = time.Unix(firstSeen, 0).UTC()
	p.LastSeenAt = now
	_, err = m.db.DB().ExecContext(ctx, `
		UPDATE pages SET scrape_page_id = ?, title = ?, content_markdown = ?, content_text = ?, extraction_tier = ?,
			quality_score = ?, quality_breakdown_json = ?, metadata_json = ?, captured_at = ?,
			last_seen_timestamp = ?, updated_at = ?
		WHERE id = ?`,
		p.ScrapePageID, nullString(p.Title), nullString(p.ContentMarkdown), nullString(p.ContentText), p.ExtractionTier,
		p.QualityScore, string(qualityJSON), string(metadataJSON), nullableUnixPtr(p.CapturedAt),
		now.Unix(), now.Unix(), existingID)
	if err != nil {
		return fmt.Errorf("updating page: %w", err)
	}
	return nil
}

// FindByDigest resolves the §3 duplicate-detection rule: given a domain's
// target scope and a content digest, it reports the Page already holding
// that content, if any, so the Intelligent Filter can point a duplicate's
// related_page_ref at the canonical Page rather than reprocessing it.
func (m *Manager) FindByDigest(ctx context.Context, domain, digest string) (string, bool, error) {
	var pageID string
	err := m.db.DB().QueryRowContext(ctx, `
		SELECT p.id FROM pages p
		JOIN targets t ON t.id = p.target_id
		WHERE t.domain = ? AND p.content_digest = ?
		ORDER BY p.first_seen_timestamp ASC LIMIT 1`, domain, digest).Scan(&pageID)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return "", false, nil
	case err != nil:
		return "", false, fmt.Errorf("finding page by digest: %w", err)
	}
	return pageID, true, nil
}

// GetPage fetches a Page by id.
func (m *Manager) GetPage(ctx context.Context, id string) (*models.Page, error) {
	row := m.db.DB().QueryRowContext(ctx, pageSelect+` WHERE id = ?`, id)
	p, err := scanPageRow(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("page not found: %w", err)
		}
		return nil, err
	}
	return p, nil
}

// GetPageByScrapePageID fetches the Page produced from a given ScrapePage.
func (m *Manager) GetPageByScrapePageID(ctx context.Context, scrapePageID string) (*models.Page, error) {
	row := m.db.DB().QueryRowContext(ctx, pageSelect+` WHERE scrape_page_id = ?`, scrapePageID)
	p, err := scanPageRow(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("page not found: %w", err)
		}
		return nil, err
	}
	return p, nil
}

// ListPagesByTarget returns a page of Pages for a Target, newest first.
func (m *Manager) ListPagesByTarget(ctx context.Context, targetID string, limit, offset int) ([]*models.Page, error) {
	rows, err := m.db.DB().QueryContext(ctx,
		pageSelect+` WHERE target_id = ? ORDER BY created_at DESC LIMIT ? OFFSET ?`,
		targetID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("listing pages by target: %w", err)
	}
	defer rows.Close()

	var out []*models.Page
	for rows.Next() {
		p, err := scanPageRow(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// CountPages returns the total number of Pages for a Target.
func (m *Manager) CountPages(ctx context.Context, targetID string) (int64, error) {
	var count int64
	err := m.db.DB().QueryRowContext(ctx, `SELECT COUNT(*) FROM pages WHERE target_id = ?`, targetID).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("counting pages: %w", err)
	}
	return count, nil
}

// CountAllPages returns the total number of Pages across every Target.
func (m *Manager) CountAllPages(ctx context.Context) (int64, error) {
	var count int64
	err := m.db.DB().QueryRowContext(ctx, `SELECT COUNT(*) FROM pages`).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("counting all pages: %w", err)
	}
	return count, nil
}

// ListAllPages returns up to limit Pages across every Target, newest first.
// It backs the Consistency Validator's hash sample pass, which needs an
// unscoped page window rather than one Target's pages.
func (m *Manager) ListAllPages(ctx context.Context, limit int) ([]*models.Page, error) {
	rows, err := m.db.DB().QueryContext(ctx, pageSelect+` ORDER BY created_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("listing all pages: %w", err)
	}
	defer rows.Close()

	var out []*models.Page
	for rows.Next() {
		p, err := scanPageRow(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// ListPagesUpdatedSince returns Pages whose updated_at is strictly greater
// than the given unix timestamp, oldest first. It backs the CDC Bridge's
// polling reconciliation, which is not part of the formal PageStorage
// contract since only that bridge needs a changelog-style cursor.
func (m *Manager) ListPagesUpdatedSince(ctx context.Context, since int64, limit int) ([]*models.Page, error) {
	rows, err := m.db.DB().QueryContext(ctx,
		pageSelect+` WHERE updated_at > ? ORDER BY updated_at ASC, id ASC LIMIT ?`, since, limit)
	if err != nil {
		return nil, fmt.Errorf("listing pages updated since checkpoint: %w", err)
	}
	defer rows.Close()

	var out []*models.Page
	for rows.Next() {
		p, err := scanPageRow(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// SearchPages performs a full-text search over page title and content when
// FTS5 is available, falling back to a LIKE scan otherwise.
func (m *Manager) SearchPages(ctx context.Context, query string, limit int) ([]*models.Page, error) {
	rows, err := m.db.DB().QueryContext(ctx, `
		SELECT p.id, p.scrape_page_id, p.target_id, p.url, p.title, p.content_markdown, p.content_text,
			p.content_digest, p.extraction_tier, p.quality_score, p.quality_breakdown_json, p.metadata_json,
			p.captured_at, p.first_seen_timestamp, p.last_seen_timestamp, p.created_at, p.updated_at
		FROM pages_fts f
		JOIN pages p ON p.id = f.id
		WHERE pages_fts MATCH ?
		ORDER BY rank LIMIT ?`, query, limit)
	if err == nil {
		defer rows.Close()
		var out []*models.Page
		for rows.Next() {
			p, err := scanPageRow(rows)
			if err != nil {
				return nil, err
			}
			out = append(out, p)
		}
		if err := rows.Err(); err != nil {
			return nil, err
		}
		if len(out) > 0 {
			return out, nil
		}
	}

	like := "%" + query + "%"
	rows, err = m.db.DB().QueryContext(ctx, pageSelect+`
		WHERE title LIKE ? OR content_text LIKE ? ORDER BY created_at DESC LIMIT ?`, like, like, limit)
	if err != nil {
		return nil, fmt.Errorf("searching pages: %w", err)
	}
	defer rows.Close()

	var out []*models.Page
	for rows.Next() {
		p, err := scanPageRow(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

const pageSelect = `
	SELECT id, scrape_page_id, target_id, url, title, content_markdown, content_text, content_digest,
		extraction_tier, quality_score, quality_breakdown_json, metadata_json, captured_at,
		first_seen_timestamp, last_seen_timestamp, created_at, updated_at
	FROM pages`

type pageScanner interface {
	Scan(dest ...interface{}) error
}

func scanPageRow(scanner pageScanner) (*models.Page, error) {
	var p models.Page
	var title, contentMarkdown, contentText, contentDigest, qualityJSON, metadataJSON sql.NullString
	var capturedAt sql.NullInt64
	var firstSeenAt, lastSeenAt, createdAt, updatedAt int64

	err := scanner.Scan(&p.ID, &p.ScrapePageID, &p.TargetID, &p.URL, &title, &contentMarkdown, &contentText,
		&contentDigest, &p.ExtractionTier, &p.QualityScore, &qualityJSON, &metadataJSON, &capturedAt,
		&firstSeenAt, &lastSeenAt, &createdAt, &updatedAt)
	if err != nil {
		return nil, fmt.Errorf("scanning page: %w", err)
	}

	p.Title = title.String
	p.ContentMarkdown = contentMarkdown.String
	p.ContentText = contentText.String
	p.ContentDigest = contentDigest.String
	p.FirstSeenAt = time.Unix(firstSeenAt, 0).UTC()
	p.LastSeenAt = time.Unix(lastSeenAt, 0).UTC()
	p.CreatedAt = time.Unix(createdAt, 0).UTC()
	p.UpdatedAt = time.Unix(updatedAt, 0).UTC()

	if qualityJSON.Valid && qualityJSON.String != "" {
		if err := json.Unmarshal([]byte(qualityJSON.String), &p.QualityBreakdown); err != nil {
			return nil, fmt.Errorf("unmarshaling quality breakdown: %w", err)
		}
	}
	if metadataJSON.Valid && metadataJSON.String != "" {
		if err := json.Unmarshal([]byte(metadataJSON.String), &p.Metadata); err != nil {
			return nil, fmt.Errorf("unmarshaling page metadata: %w", err)
		}
	}
	if capturedAt.Valid {
		ts := time.Unix(capturedAt.Int64, 0).UTC()
		p.CapturedAt = &ts
	}

	return &p, nil
}
