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

// CreateScrapePage inserts a newly discovered ScrapePage. The caller is
// expected to have already run it through the Intelligent Filter, so Status
// and the filter_* audit fields arrive populated (spec.md's rule ordering is
// applied before persistence, not after).
func (m *Manager) CreateScrapePage(ctx context.Context, sp *models.ScrapePage) error {
	if sp.ID == "" {
		sp.ID = common.NewScrapePageID()
	}
	now := time.Now().UTC()
	sp.CreatedAt, sp.UpdatedAt = now, now
	if sp.Status == "" {
		sp.Status = models.ScrapePageStatusPending
	}

	detailsJSON, err := marshalFilterDetails(sp.FilterDetails)
	if err != nil {
		return err
	}

	_, err = m.db.DB().ExecContext(ctx, `
		INSERT INTO scrape_pages (id, target_id, job_id, url, archive_source, snapshot_timestamp,
			status, filter_reason, filter_category, matched_pattern, filter_confidence, priority_score,
			can_be_manually_processed, related_page_ref, original_filter_decision, filter_details_json,
			manual_override, attempt_count, last_error, mime_type, content_length, content_digest,
			created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		sp.ID, sp.TargetID, nullString(sp.JobID), sp.URL, sp.ArchiveSource, nullableUnixPtr(sp.SnapshotTimestamp),
		string(sp.Status), nullString(sp.FilterReason), nullString(sp.FilterCategory), nullString(sp.MatchedPattern),
		sp.FilterConfidence, sp.PriorityScore, boolToInt(sp.CanBeManuallyProcessed), nullString(sp.RelatedPageRef),
		nullString(string(sp.OriginalFilterDecision)), detailsJSON, boolToInt(sp.IsManuallyOverridden),
		sp.AttemptCount, nullString(sp.LastError), nullString(sp.MimeType), sp.ContentLength,
		nullString(sp.ContentDigest), now.Unix(), now.Unix())
	if err != nil {
		return fmt.Errorf("inserting scrape page: %w", err)
	}
	return nil
}

// GetScrapePage fetches a ScrapePage by id.
func (m *Manager) GetScrapePage(ctx context.Context, id string) (*models.ScrapePage, error) {
	row := m.db.DB().QueryRowContext(ctx, scrapePageSelect+` WHERE sp.id = ?`, id)
	return scanScrapePage(row)
}

// GetScrapePageByURL fetches a ScrapePage by its natural key.
func (m *Manager) GetScrapePageByURL(ctx context.Context, targetID, url, archiveSource string) (*models.ScrapePage, error) {
	row := m.db.DB().QueryRowContext(ctx,
		scrapePageSelect+` WHERE sp.target_id = ? AND sp.url = ? AND sp.archive_source = ?`,
		targetID, url, archiveSource)
	return scanScrapePage(row)
}

// ListScrapePagesByStatus lists ScrapePages in a given status, oldest first, capped at limit.
func (m *Manager) ListScrapePagesByStatus(ctx context.Context, status models.ScrapePageStatus, limit int) ([]*models.ScrapePage, error) {
	rows, err := m.db.DB().QueryContext(ctx,
		scrapePageSelect+` WHERE sp.status = ? ORDER BY sp.created_at ASC LIMIT ?`,
		string(status), limit)
	if err != nil {
		return nil, fmt.Errorf("listing scrape pages by status: %w", err)
	}
	defer rows.Close()
	return collectScrapePages(rows)
}

// ListScrapePagesByTarget lists every ScrapePage belonging to a Target.
func (m *Manager) ListScrapePagesByTarget(ctx context.Context, targetID string) ([]*models.ScrapePage, error) {
	rows, err := m.db.DB().QueryContext(ctx,
		scrapePageSelect+` WHERE sp.target_id = ? ORDER BY sp.created_at ASC`, targetID)
	if err != nil {
		return nil, fmt.Errorf("listing scrape pages by target: %w", err)
	}
	defer rows.Close()
	return collectScrapePages(rows)
}

// ApplyFilterDecision records the Intelligent Filter's classification,
// overwriting every audit field in one statement so a re-classification pass
// (without a manual override) is idempotent per spec.md §4.4.
func (m *Manager) ApplyFilterDecision(ctx context.Context, id string, c models.Classification) error {
	detailsJSON, err := marshalFilterDetails(c.FilterDetails)
	if err != nil {
		return err
	}

	res, err := m.db.DB().ExecContext(ctx, `
		UPDATE scrape_pages SET status = ?, filter_reason = ?, filter_category = ?, matched_pattern = ?,
			filter_confidence = ?, priority_score = ?, can_be_manually_processed = ?, related_page_ref = ?,
			filter_details_json = ?, updated_at = ?
		WHERE id = ?`,
		string(c.Status), nullString(c.FilterReason), nullString(c.FilterCategory), nullString(c.MatchedPattern),
		c.FilterConfidence, c.PriorityScore, boolToInt(c.CanBeManuallyProcessed), nullString(c.RelatedPageRef),
		detailsJSON, time.Now().UTC().Unix(), id)
	if err != nil {
		return fmt.Errorf("applying filter decision: %w", err)
	}
	return requireRowsAffected(res, "scrape page", id)
}

// TransitionStatus moves a ScrapePage to next, rejecting any edge not allowed
// by models.ScrapePageStatus.CanTransition.
func (m *Manager) TransitionStatus(ctx context.Context, id string, next models.ScrapePageStatus) error {
	var current string
	err := m.db.DB().QueryRowContext(ctx, `SELECT status FROM scrape_pages WHERE id = ?`, id).Scan(&current)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("scrape page %s not found", id)
		}
		return fmt.Errorf("reading scrape page status: %w", err)
	}

	if !models.ScrapePageStatus(current).CanTransition(next) {
		return fmt.Errorf("invalid scrape page transition: %s -> %s", current, next)
	}

	res, err := m.db.DB().ExecContext(ctx,
		`UPDATE scrape_pages SET status = ?, updated_at = ? WHERE id = ? AND status = ?`,
		string(next), time.Now().UTC().Unix(), id, current)
	if err != nil {
		return fmt.Errorf("updating scrape page status: %w", err)
	}
	return requireRowsAffected(res, "scrape page", id)
}

// RecordOverride appends a manual reclassification to the audit trail and
// updates the ScrapePage's current status and override bookkeeping,
// preserving the original status the first time an override is applied.
func (m *Manager) RecordOverride(ctx context.Context, override *models.ScrapePageOverride) error {
	now := time.Now().UTC()
	override.CreatedAt = now

	tx, err := m.db.DB().BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning override transaction: %w", err)
	}
	defer tx.Rollback()

	var originalStatus sql.NullString
	err = tx.QueryRowContext(ctx,
		`SELECT original_filter_decision FROM scrape_pages WHERE id = ?`, override.ScrapePageID).
		Scan(&originalStatus)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("scrape page %s not found", override.ScrapePageID)
		}
		return fmt.Errorf("reading scrape page for override: %w", err)
	}

	original := override.PreviousStatus
	if originalStatus.Valid && originalStatus.String != "" {
		original = models.ScrapePageStatus(originalStatus.String)
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO scrape_page_overrides (scrape_page_id, previous_status, new_status, reason, actor, created_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		override.ScrapePageID, string(override.PreviousStatus), string(override.NewStatus),
		nullString(override.Reason), nullString(override.Actor), now.Unix())
	if err != nil {
		return fmt.Errorf("inserting override record: %w", err)
	}

	_, err = tx.ExecContext(ctx, `
		UPDATE scrape_pages SET status = ?, original_filter_decision = ?, manual_override = 1, updated_at = ?
		WHERE id = ?`,
		string(override.NewStatus), string(original), now.Unix(), override.ScrapePageID)
	if err != nil {
		return fmt.Errorf("applying override to scrape page: %w", err)
	}

	return tx.Commit()
}

// ListOverrides returns the override audit trail for a ScrapePage, oldest first.
func (m *Manager) ListOverrides(ctx context.Context, scrapePageID string) ([]*models.ScrapePageOverride, error) {
	rows, err := m.db.DB().QueryContext(ctx, `
		SELECT id, scrape_page_id, previous_status, new_status, reason, actor, created_at
		FROM scrape_page_overrides WHERE scrape_page_id = ? ORDER BY created_at ASC`, scrapePageID)
	if err != nil {
		return nil, fmt.Errorf("listing overrides: %w", err)
	}
	defer rows.Close()

	var out []*models.ScrapePageOverride
	for rows.Next() {
		var o models.ScrapePageOverride
		var reason, actor sql.NullString
		var createdAt int64
		if err := rows.Scan(&o.ID, &o.ScrapePageID, &o.PreviousStatus, &o.NewStatus, &reason, &actor, &createdAt); err != nil {
			return nil, fmt.Errorf("scanning override: %w", err)
		}
		o.Reason = reason.String
		o.Actor = actor.String
		o.CreatedAt = time.Unix(createdAt, 0).UTC()
		out = append(out, &o)
	}
	return out, rows.Err()
}

// FindByDigest implementing filter.AlreadyProcessedChecker now lives in
// page_storage.go: it must resolve to a pages.id (the §3 related_page_ref
// target), not a scrape_pages.id, so it's grounded on the durable Page record
// rather than the transient ScrapePage that produced it.

const scrapePageSelect = `
	SELECT sp.id, sp.target_id, sp.job_id, sp.url, t.domain, sp.archive_source, sp.snapshot_timestamp,
		sp.status, sp.filter_reason, sp.filter_category, sp.matched_pattern, sp.filter_confidence,
		sp.priority_score, sp.can_be_manually_processed, sp.related_page_ref, sp.original_filter_decision,
		sp.filter_details_json, sp.manual_override, sp.attempt_count, sp.last_error, sp.mime_type,
		sp.content_length, sp.content_digest, sp.created_at, sp.updated_at
	FROM scrape_pages sp
	JOIN targets t ON t.id = sp.target_id`

type scrapePageScanner interface {
	Scan(dest ...interface{}) error
}

func scanScrapePage(row *sql.Row) (*models.ScrapePage, error) {
	sp, err := scanScrapePageRow(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("scrape page not found: %w", err)
		}
		return nil, err
	}
	return sp, nil
}

func collectScrapePages(rows *sql.Rows) ([]*models.ScrapePage, error) {
	var out []*models.ScrapePage
	for rows.Next() {
		sp, err := scanScrapePageRow(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, sp)
	}
	return out, rows.Err()
}

func scanScrapePageRow(scanner scrapePageScanner) (*models.ScrapePage, error) {
	var sp models.ScrapePage
	var jobID, filterReason, filterCategory, matchedPattern, relatedPageRef sql.NullString
	var originalFilterDecision, filterDetailsJSON sql.NullString
	var lastError, mimeType, contentDigest sql.NullString
	var snapshotTimestamp, contentLength sql.NullInt64
	var filterConfidence sql.NullFloat64
	var priorityScore int
	var createdAt, updatedAt int64
	var manualOverride, canBeManuallyProcessed int

	err := scanner.Scan(&sp.ID, &sp.TargetID, &jobID, &sp.URL, &sp.Domain, &sp.ArchiveSource, &snapshotTimestamp,
		&sp.Status, &filterReason, &filterCategory, &matchedPattern, &filterConfidence,
		&priorityScore, &canBeManuallyProcessed, &relatedPageRef, &originalFilterDecision,
		&filterDetailsJSON, &manualOverride, &sp.AttemptCount, &lastError, &mimeType,
		&contentLength, &contentDigest, &createdAt, &updatedAt)
	if err != nil {
		return nil, fmt.Errorf("scanning scrape page: %w", err)
	}

	sp.JobID = jobID.String
	sp.FilterReason = filterReason.String
	sp.FilterCategory = filterCategory.String
	sp.MatchedPattern = matchedPattern.String
	sp.FilterConfidence = filterConfidence.Float64
	sp.PriorityScore = priorityScore
	sp.CanBeManuallyProcessed = canBeManuallyProcessed != 0
	sp.RelatedPageRef = relatedPageRef.String
	sp.OriginalFilterDecision = models.ScrapePageStatus(originalFilterDecision.String)
	sp.IsManuallyOverridden = manualOverride != 0
	sp.LastError = lastError.String
	sp.MimeType = mimeType.String
	sp.ContentLength = contentLength.Int64
	sp.ContentDigest = contentDigest.String
	sp.CreatedAt = time.Unix(createdAt, 0).UTC()
	sp.UpdatedAt = time.Unix(updatedAt, 0).UTC()

	if snapshotTimestamp.Valid {
		ts := time.Unix(snapshotTimestamp.Int64, 0).UTC()
		sp.SnapshotTimestamp = &ts
	}
	if filterDetailsJSON.Valid && filterDetailsJSON.String != "" {
		var fd models.FilterDetails
		if err := json.Unmarshal([]byte(filterDetailsJSON.String), &fd); err != nil {
			return nil, fmt.Errorf("unmarshaling filter details: %w", err)
		}
		sp.FilterDetails = &fd
	}

	return &sp, nil
}

func marshalFilterDetails(fd *models.FilterDetails) (interface{}, error) {
	if fd == nil {
		return nil, nil
	}
	b, err := json.Marshal(fd)
	if err != nil {
		return nil, fmt.Errorf("marshaling filter details: %w", err)
	}
	return string(b), nil
}

func nullString(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
