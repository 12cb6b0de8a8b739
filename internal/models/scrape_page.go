package models

import "time"

// ScrapePageStatus is the closed set of lifecycle states for a ScrapePage.
// Unknown values must be treated as opaque by clients; this set never grows
// without a corresponding spec change.
type ScrapePageStatus string

const (
	ScrapePageStatusPending               ScrapePageStatus = "pending"
	ScrapePageStatusInProgress            ScrapePageStatus = "in_progress"
	ScrapePageStatusCompleted             ScrapePageStatus = "completed"
	ScrapePageStatusFailed                ScrapePageStatus = "failed"
	ScrapePageStatusFilteredListPage      ScrapePageStatus = "filtered_list_page"
	ScrapePageStatusFilteredAlreadyDone   ScrapePageStatus = "filtered_already_processed"
	ScrapePageStatusFilteredAttachment    ScrapePageStatus = "filtered_attachment_disabled"
	ScrapePageStatusFilteredExtension     ScrapePageStatus = "filtered_file_extension"
	ScrapePageStatusFilteredTooSmall      ScrapePageStatus = "filtered_size_too_small"
	ScrapePageStatusFilteredTooLarge      ScrapePageStatus = "filtered_size_too_large"
	ScrapePageStatusFilteredLowPriority   ScrapePageStatus = "filtered_low_priority"
	ScrapePageStatusFilteredCustomRule    ScrapePageStatus = "filtered_custom_rule"
	ScrapePageStatusManuallySkipped       ScrapePageStatus = "manually_skipped"
	ScrapePageStatusManuallyApproved      ScrapePageStatus = "manually_approved"
	ScrapePageStatusAwaitingManualReview  ScrapePageStatus = "awaiting_manual_review"
)

// IsFiltered reports whether s is one of the filtered_* terminal statuses a
// classification rule (rather than the job engine) produced.
func (s ScrapePageStatus) IsFiltered() bool {
	switch s {
	case ScrapePageStatusFilteredListPage, ScrapePageStatusFilteredAlreadyDone,
		ScrapePageStatusFilteredAttachment, ScrapePageStatusFilteredExtension,
		ScrapePageStatusFilteredTooSmall, ScrapePageStatusFilteredTooLarge,
		ScrapePageStatusFilteredLowPriority, ScrapePageStatusFilteredCustomRule:
		return true
	}
	return false
}

// validScrapePageTransitions enumerates the allowed status transitions per
// spec.md §4.8: "from {pending, failed, awaiting_manual_review} → {in_progress}
// → {completed, failed, awaiting_manual_review}. Filter statuses are terminal
// except by manual override (→ manually_approved / manually_skipped → pending)."
// Any edge not listed here is rejected by ScrapePageStorage.TransitionStatus
// with an "invalid scrape page transition" error. Built once from the filtered-status list above so
// every filter_* tag gets the same two override edges without repeating them.
var validScrapePageTransitions = buildTransitionTable()

func buildTransitionTable() map[ScrapePageStatus][]ScrapePageStatus {
	t := map[ScrapePageStatus][]ScrapePageStatus{
		ScrapePageStatusPending:              {ScrapePageStatusInProgress},
		ScrapePageStatusFailed:                {ScrapePageStatusInProgress},
		ScrapePageStatusAwaitingManualReview:  {ScrapePageStatusInProgress},
		ScrapePageStatusInProgress: {
			ScrapePageStatusCompleted, ScrapePageStatusFailed, ScrapePageStatusAwaitingManualReview,
		},
		ScrapePageStatusManuallyApproved: {ScrapePageStatusPending},
		ScrapePageStatusManuallySkipped:  {ScrapePageStatusPending},
	}
	for _, filtered := range []ScrapePageStatus{
		ScrapePageStatusFilteredListPage, ScrapePageStatusFilteredAlreadyDone,
		ScrapePageStatusFilteredAttachment, ScrapePageStatusFilteredExtension,
		ScrapePageStatusFilteredTooSmall, ScrapePageStatusFilteredTooLarge,
		ScrapePageStatusFilteredLowPriority, ScrapePageStatusFilteredCustomRule,
	} {
		t[filtered] = []ScrapePageStatus{ScrapePageStatusManuallyApproved, ScrapePageStatusManuallySkipped}
	}
	return t
}

// CanTransition reports whether moving from the current status to next is allowed.
func (s ScrapePageStatus) CanTransition(next ScrapePageStatus) bool {
	for _, allowed := range validScrapePageTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// FilterDetails is the structured audit payload the Intelligent Filter
// attaches to every classification, per spec.md §3's filter_details shape.
type FilterDetails struct {
	ReasonText      string            `json:"reason_text"`
	MatchedPattern  string            `json:"matched_pattern,omitempty"`
	Confidence      float64           `json:"confidence"`
	OriginalProject string            `json:"original_project,omitempty"`
	FileType        string            `json:"file_type,omitempty"`
	FileSize        int64             `json:"file_size,omitempty"`
	CaptureMetadata map[string]string `json:"capture_metadata,omitempty"`
}

// Classification is the Intelligent Filter's complete verdict for one
// ScrapePage candidate: the resulting status plus every audit field spec.md
// §3/§4.4 requires alongside it.
type Classification struct {
	Status                 ScrapePageStatus
	FilterCategory         string
	FilterReason           string
	FilterDetails          *FilterDetails
	MatchedPattern         string
	FilterConfidence       float64
	PriorityScore          int
	CanBeManuallyProcessed bool
	RelatedPageRef         string
}

// ScrapePage is a single candidate URL+snapshot discovered from an archive
// source, tracked through filtering, fetching, and extraction.
type ScrapePage struct {
	ID                      string           `json:"id"`
	TargetID                string           `json:"target_id"`
	JobID                   string           `json:"job_id,omitempty"`
	URL                     string           `json:"url"`
	Domain                  string           `json:"domain,omitempty"`
	ArchiveSource           string           `json:"archive_source"`
	SnapshotTimestamp       *time.Time       `json:"snapshot_timestamp,omitempty"`
	Status                  ScrapePageStatus `json:"status"`
	FilterReason            string           `json:"filter_reason,omitempty"`
	FilterCategory          string           `json:"filter_category,omitempty"`
	FilterDetails           *FilterDetails   `json:"filter_details,omitempty"`
	MatchedPattern          string           `json:"matched_pattern,omitempty"`
	FilterConfidence        float64          `json:"filter_confidence,omitempty"`
	PriorityScore           int              `json:"priority_score"`
	CanBeManuallyProcessed  bool             `json:"can_be_manually_processed"`
	RelatedPageRef          string           `json:"related_page_ref,omitempty"`
	IsManuallyOverridden    bool             `json:"is_manually_overridden"`
	OriginalFilterDecision  ScrapePageStatus `json:"original_filter_decision,omitempty"`
	AttemptCount            int              `json:"attempt_count"`
	LastError               string           `json:"last_error,omitempty"`
	MimeType                string           `json:"mime_type,omitempty"`
	ContentLength           int64            `json:"content_length,omitempty"`
	ContentDigest           string           `json:"content_digest,omitempty"`
	CreatedAt               time.Time        `json:"created_at"`
	UpdatedAt               time.Time        `json:"updated_at"`
}

// ApplyClassification copies a Classification's fields onto the ScrapePage,
// the shape every call site (discovery, re-classification) uses so the two
// never drift out of sync.
func (sp *ScrapePage) ApplyClassification(c Classification) {
	sp.Status = c.Status
	sp.FilterCategory = c.FilterCategory
	sp.FilterReason = c.FilterReason
	sp.FilterDetails = c.FilterDetails
	sp.MatchedPattern = c.MatchedPattern
	sp.FilterConfidence = c.FilterConfidence
	sp.PriorityScore = c.PriorityScore
	sp.CanBeManuallyProcessed = c.CanBeManuallyProcessed
	sp.RelatedPageRef = c.RelatedPageRef
}

// Override records one manual reclassification of a ScrapePage's status.
type ScrapePageOverride struct {
	ID               int64            `json:"id"`
	ScrapePageID     string           `json:"scrape_page_id"`
	PreviousStatus   ScrapePageStatus `json:"previous_status"`
	NewStatus        ScrapePageStatus `json:"new_status"`
	Reason           string           `json:"reason,omitempty"`
	Actor            string           `json:"actor,omitempty"`
	CreatedAt        time.Time        `json:"created_at"`
}
