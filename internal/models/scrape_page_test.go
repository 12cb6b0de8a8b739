package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

var allScrapePageStatuses = []ScrapePageStatus{
	ScrapePageStatusPending,
	ScrapePageStatusInProgress,
	ScrapePageStatusCompleted,
	ScrapePageStatusFailed,
	ScrapePageStatusFilteredListPage,
	ScrapePageStatusFilteredAlreadyDone,
	ScrapePageStatusFilteredAttachment,
	ScrapePageStatusFilteredExtension,
	ScrapePageStatusFilteredTooSmall,
	ScrapePageStatusFilteredTooLarge,
	ScrapePageStatusFilteredLowPriority,
	ScrapePageStatusFilteredCustomRule,
	ScrapePageStatusManuallySkipped,
	ScrapePageStatusManuallyApproved,
	ScrapePageStatusAwaitingManualReview,
}

var filteredStatuses = []ScrapePageStatus{
	ScrapePageStatusFilteredListPage, ScrapePageStatusFilteredAlreadyDone,
	ScrapePageStatusFilteredAttachment, ScrapePageStatusFilteredExtension,
	ScrapePageStatusFilteredTooSmall, ScrapePageStatusFilteredTooLarge,
	ScrapePageStatusFilteredLowPriority, ScrapePageStatusFilteredCustomRule,
}

func TestScrapePageStatus_IsFiltered(t *testing.T) {
	for _, s := range filteredStatuses {
		assert.Truef(t, s.IsFiltered(), "%s should be filtered", s)
	}
	for _, s := range []ScrapePageStatus{
		ScrapePageStatusPending, ScrapePageStatusInProgress, ScrapePageStatusCompleted,
		ScrapePageStatusFailed, ScrapePageStatusManuallySkipped, ScrapePageStatusManuallyApproved,
		ScrapePageStatusAwaitingManualReview,
	} {
		assert.Falsef(t, s.IsFiltered(), "%s should not be filtered", s)
	}
}

// TestScrapePageStatus_TransitionTable exhaustively checks every (from, to)
// pair in the 15x15 status space against the exact edges spec.md §4.8
// authorizes, so an accidental new edge (or a silently dropped one) fails.
func TestScrapePageStatus_TransitionTable(t *testing.T) {
	allowed := map[ScrapePageStatus]map[ScrapePageStatus]bool{
		ScrapePageStatusPending:              {ScrapePageStatusInProgress: true},
		ScrapePageStatusFailed:                {ScrapePageStatusInProgress: true},
		ScrapePageStatusAwaitingManualReview:  {ScrapePageStatusInProgress: true},
		ScrapePageStatusInProgress: {
			ScrapePageStatusCompleted:            true,
			ScrapePageStatusFailed:               true,
			ScrapePageStatusAwaitingManualReview: true,
		},
		ScrapePageStatusManuallyApproved: {ScrapePageStatusPending: true},
		ScrapePageStatusManuallySkipped:  {ScrapePageStatusPending: true},
	}
	for _, filtered := range filteredStatuses {
		allowed[filtered] = map[ScrapePageStatus]bool{
			ScrapePageStatusManuallyApproved: true,
			ScrapePageStatusManuallySkipped:  true,
		}
	}

	for _, from := range allScrapePageStatuses {
		for _, to := range allScrapePageStatuses {
			want := allowed[from][to]
			got := from.CanTransition(to)
			assert.Equalf(t, want, got, "CanTransition(%s -> %s)", from, to)
		}
	}
}

func TestScrapePageStatus_CompletedAndFailedAreOtherwiseTerminal(t *testing.T) {
	for _, to := range allScrapePageStatuses {
		assert.Falsef(t, ScrapePageStatusCompleted.CanTransition(to), "completed -> %s", to)
	}
	for _, to := range allScrapePageStatuses {
		assert.Equalf(t, to == ScrapePageStatusInProgress, ScrapePageStatusFailed.CanTransition(to), "failed -> %s", to)
	}
}

func TestApplyClassification_CopiesEveryAuditField(t *testing.T) {
	sp := &ScrapePage{ID: "sp_1", Status: ScrapePageStatusPending}
	c := Classification{
		Status:                 ScrapePageStatusFilteredListPage,
		FilterCategory:         "list_page",
		FilterReason:           "matched list-page pattern",
		FilterDetails:          &FilterDetails{ReasonText: "pattern match", Confidence: 0.9},
		MatchedPattern:         `/\d{4}/\d{2}/$`,
		FilterConfidence:       0.9,
		PriorityScore:          3,
		CanBeManuallyProcessed: true,
		RelatedPageRef:         "page_123",
	}

	sp.ApplyClassification(c)

	assert.Equal(t, c.Status, sp.Status)
	assert.Equal(t, c.FilterCategory, sp.FilterCategory)
	assert.Equal(t, c.FilterReason, sp.FilterReason)
	assert.Equal(t, c.FilterDetails, sp.FilterDetails)
	assert.Equal(t, c.MatchedPattern, sp.MatchedPattern)
	assert.Equal(t, c.FilterConfidence, sp.FilterConfidence)
	assert.Equal(t, c.PriorityScore, sp.PriorityScore)
	assert.Equal(t, c.CanBeManuallyProcessed, sp.CanBeManuallyProcessed)
	assert.Equal(t, c.RelatedPageRef, sp.RelatedPageRef)
	// ApplyClassification never touches override bookkeeping fields.
	assert.False(t, sp.IsManuallyOverridden)
	assert.Empty(t, sp.OriginalFilterDecision)
}
