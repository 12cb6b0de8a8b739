package server

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/linksmith/chrono-scraper-sub002/internal/models"
)

const defaultScrapePagePageSize = 50

// scrapePageFilters captures the query parameters GET .../scrape-pages accepts.
type scrapePageFilters struct {
	statuses        map[models.ScrapePageStatus]bool
	categories      map[string]bool
	manualOverride  *bool
	priorityMin     int
	priorityMax     int
	search          string
	hasErrors       *bool
	dateFrom        *time.Time
	dateTo          *time.Time
	onlyProcessable bool
	cursor          int
	limit           int
}

func parseScrapePageFilters(r *http.Request) scrapePageFilters {
	q := r.URL.Query()
	f := scrapePageFilters{priorityMin: 0, priorityMax: 10, limit: defaultScrapePagePageSize}

	if vals := q["status"]; len(vals) > 0 {
		f.statuses = make(map[models.ScrapePageStatus]bool, len(vals))
		for _, v := range vals {
			f.statuses[models.ScrapePageStatus(v)] = true
		}
	}
	if vals := q["filter_category"]; len(vals) > 0 {
		f.categories = make(map[string]bool, len(vals))
		for _, v := range vals {
			f.categories[v] = true
		}
	}
	if v := q.Get("is_manually_overridden"); v != "" {
		b := v == "true"
		f.manualOverride = &b
	}
	if v := q.Get("priority_min"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			f.priorityMin = n
		}
	}
	if v := q.Get("priority_max"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			f.priorityMax = n
		}
	}
	f.search = strings.TrimSpace(q.Get("search"))
	if v := q.Get("has_errors"); v != "" {
		b := v == "true"
		f.hasErrors = &b
	}
	if v := q.Get("date_from"); v != "" {
		if t, err := time.Parse(time.RFC3339, v); err == nil {
			f.dateFrom = &t
		}
	}
	if v := q.Get("date_to"); v != "" {
		if t, err := time.Parse(time.RFC3339, v); err == nil {
			f.dateTo = &t
		}
	}
	f.onlyProcessable = q.Get("show_only_processable") == "true"
	if v := q.Get("cursor"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			f.cursor = n
		}
	}
	if v := q.Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			f.limit = n
		}
	}
	return f
}

// matches applies every active filter to one page. session_id is accepted on
// the wire but ScrapePage doesn't carry a session reference (sessions only
// track aggregate counters, see pipeline.bumpSessionCounter), so it's a no-op
// filter kept for API compatibility rather than silently rejected.
func (f scrapePageFilters) matches(sp *models.ScrapePage) bool {
	if f.statuses != nil && !f.statuses[sp.Status] {
		return false
	}
	if f.categories != nil && !f.categories[sp.FilterCategory] {
		return false
	}
	if f.manualOverride != nil && sp.IsManuallyOverridden != *f.manualOverride {
		return false
	}
	if sp.PriorityScore < f.priorityMin || sp.PriorityScore > f.priorityMax {
		return false
	}
	if f.search != "" && !strings.Contains(strings.ToLower(sp.URL), strings.ToLower(f.search)) {
		return false
	}
	if f.hasErrors != nil {
		if (sp.LastError != "") != *f.hasErrors {
			return false
		}
	}
	if f.dateFrom != nil && sp.CreatedAt.Before(*f.dateFrom) {
		return false
	}
	if f.dateTo != nil && sp.CreatedAt.After(*f.dateTo) {
		return false
	}
	if f.onlyProcessable && !sp.CanBeManuallyProcessed {
		return false
	}
	return true
}

// listScrapePages aggregates ScrapePages across every Target in a project
// (ScrapePageStorage is keyed by target, not project) and applies the
// requested filters and cursor pagination in memory.
func (s *Server) listScrapePages(w http.ResponseWriter, r *http.Request, projectID string) {
	targets, err := s.app.Storage.ListTargetsByProject(r.Context(), projectID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	var all []*models.ScrapePage
	for _, t := range targets {
		pages, err := s.app.Storage.ListScrapePagesByTarget(r.Context(), t.ID)
		if err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		all = append(all, pages...)
	}

	filters := parseScrapePageFilters(r)
	var filtered []*models.ScrapePage
	for _, sp := range all {
		if filters.matches(sp) {
			filtered = append(filtered, sp)
		}
	}

	start := filters.cursor
	if start > len(filtered) {
		start = len(filtered)
	}
	end := start + filters.limit
	if end > len(filtered) {
		end = len(filtered)
	}
	page := filtered[start:end]

	resp := map[string]interface{}{
		"scrape_pages": page,
		"total":        len(filtered),
	}
	if end < len(filtered) {
		resp["next_cursor"] = end
	}
	writeJSON(w, http.StatusOK, resp)
}

// bulkActionRequest is the wire shape for both the preview and apply
// manual-processing bulk endpoints; preview runs the same selection and
// validation logic but never mutates storage.
type bulkActionRequest struct {
	ScrapePageIDs []string `json:"scrape_page_ids" validate:"required,min=1"`
	Action        string   `json:"action" validate:"required,oneof=mark_for_processing approve_all skip_all retry reset_status update_priority delete"`
	Priority      int      `json:"priority"`
	Reason        string   `json:"reason"`
	Actor         string   `json:"actor"`
}

type bulkActionOutcome struct {
	ScrapePageID string `json:"scrape_page_id"`
	Applied      bool   `json:"applied"`
	Error        string `json:"error,omitempty"`
}

// bulkScrapePageAction implements the manual-processing bulk endpoint; when
// preview is true it reports what would happen without writing anything.
func (s *Server) bulkScrapePageAction(w http.ResponseWriter, r *http.Request, projectID string, preview bool) {
	var req bulkActionRequest
	if errs := decodeAndValidate(r, &req); errs != nil {
		writeValidationErrors(w, errs)
		return
	}

	outcomes := make([]bulkActionOutcome, 0, len(req.ScrapePageIDs))
	for _, id := range req.ScrapePageIDs {
		outcome := bulkActionOutcome{ScrapePageID: id}

		sp, err := s.app.Storage.GetScrapePage(r.Context(), id)
		if err != nil {
			outcome.Error = "not found"
			outcomes = append(outcomes, outcome)
			continue
		}

		if err := s.applyBulkAction(r.Context(), sp, &req, preview); err != nil {
			outcome.Error = err.Error()
		} else {
			outcome.Applied = true
		}
		outcomes = append(outcomes, outcome)
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"preview": preview,
		"action":  req.Action,
		"results": outcomes,
	})
}

// applyBulkAction implements the manual-processing actions from spec.md
// §6.2. "mark_for_processing" and "approve_all" both approve a filtered page
// for processing (filtered_* → manually_approved → pending, scenario 3);
// "skip_all" rejects it (filtered_* → manually_skipped). "retry" and
// "reset_status" requeue a failed or stuck-in-review page without touching
// the filter decision (failed/awaiting_manual_review → in_progress).
func (s *Server) applyBulkAction(ctx context.Context, sp *models.ScrapePage, req *bulkActionRequest, preview bool) error {
	switch req.Action {
	case "mark_for_processing", "approve_all":
		return s.overrideDecision(ctx, sp, true, req, preview)
	case "skip_all":
		return s.overrideDecision(ctx, sp, false, req, preview)
	case "retry", "reset_status":
		if !sp.Status.CanTransition(models.ScrapePageStatusInProgress) {
			return errInvalidTransition(sp.Status, models.ScrapePageStatusInProgress)
		}
		if preview {
			return nil
		}
		return s.app.Storage.TransitionStatus(ctx, sp.ID, models.ScrapePageStatusInProgress)
	case "update_priority":
		if preview {
			return nil
		}
		c := models.Classification{
			Status:                 sp.Status,
			FilterCategory:         sp.FilterCategory,
			FilterReason:           sp.FilterReason,
			FilterDetails:          sp.FilterDetails,
			MatchedPattern:         sp.MatchedPattern,
			FilterConfidence:       sp.FilterConfidence,
			CanBeManuallyProcessed: sp.CanBeManuallyProcessed,
			RelatedPageRef:         sp.RelatedPageRef,
			PriorityScore:          req.Priority,
		}
		return s.app.Storage.ApplyFilterDecision(ctx, sp.ID, c)
	case "delete":
		// ScrapePageStorage never exposes a delete method: every discovered
		// page is kept as part of the audit trail even after filtering, so
		// bulk delete has nothing to call and is rejected rather than faked.
		return errNotSupported("delete is not supported: scrape pages are retained for audit, use skip_all instead")
	}
	return errNotSupported("unknown action " + req.Action)
}

// overrideDecision reclassifies a page via a manual override (approve or
// skip), then — when approved — advances it one more step to pending,
// matching scenario 3's filtered_list_page → manually_approved → pending
// sequence. No job is enqueued here, and no worker or discovery pass selects
// existing pending pages, so the approved page is not fetched by this call.
func (s *Server) overrideDecision(ctx context.Context, sp *models.ScrapePage, approve bool, req *bulkActionRequest, preview bool) error {
	override, err := s.app.Filter.Override(ctx, sp, approve, req.Reason, req.Actor)
	if err != nil {
		return err
	}
	if preview {
		return nil
	}

	if err := s.app.Storage.TransitionStatus(ctx, sp.ID, override.NewStatus); err != nil {
		return err
	}
	if err := s.app.Storage.RecordOverride(ctx, override); err != nil {
		return err
	}
	if override.NewStatus == models.ScrapePageStatusManuallyApproved {
		return s.app.Storage.TransitionStatus(ctx, sp.ID, models.ScrapePageStatusPending)
	}
	return nil
}

func errInvalidTransition(from, to models.ScrapePageStatus) error {
	return fmt.Errorf("cannot transition from %s to %s", from, to)
}

func errNotSupported(msg string) error {
	return fmt.Errorf("%s", msg)
}
