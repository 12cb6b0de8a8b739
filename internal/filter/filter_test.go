package filter

import (
	"context"
	"regexp"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"

	"github.com/linksmith/chrono-scraper-sub002/internal/models"
)

type fakeDupChecker struct {
	found  bool
	pageID string
}

func (f *fakeDupChecker) FindByDigest(ctx context.Context, domain, digest string) (string, bool, error) {
	return f.pageID, f.found, nil
}

func TestChain_Classify_AttachmentDisabled(t *testing.T) {
	t.Log("=== Testing Intelligent Filter - Attachment Disabled ===")

	chain := New(DefaultOptions(), nil, arbor.NewLogger())
	sp := &models.ScrapePage{URL: "https://example.com/report.pdf", MimeType: "application/pdf"}

	c, err := chain.Classify(context.Background(), sp)
	require.NoError(t, err)
	assert.Equal(t, models.ScrapePageStatusFilteredAttachment, c.Status)
	assert.Equal(t, "attachment_disabled", c.FilterReason)
	assert.True(t, c.CanBeManuallyProcessed)
}

func TestChain_Classify_AttachmentsIncluded(t *testing.T) {
	t.Log("=== Testing Intelligent Filter - Attachments Included ===")

	opts := DefaultOptions()
	opts.IncludeAttachments = true
	chain := New(opts, nil, arbor.NewLogger())
	sp := &models.ScrapePage{URL: "https://example.com/report.pdf", MimeType: "application/pdf"}

	c, err := chain.Classify(context.Background(), sp)
	require.NoError(t, err)
	assert.NotEqual(t, models.ScrapePageStatusFilteredAttachment, c.Status)
}

func TestChain_Classify_SizeTooSmall(t *testing.T) {
	t.Log("=== Testing Intelligent Filter - Size Too Small ===")

	opts := DefaultOptions()
	opts.MinSizeBytes = 1024
	chain := New(opts, nil, arbor.NewLogger())
	sp := &models.ScrapePage{URL: "https://example.com/a", MimeType: "text/html", ContentLength: 10}

	c, err := chain.Classify(context.Background(), sp)
	require.NoError(t, err)
	assert.Equal(t, models.ScrapePageStatusFilteredTooSmall, c.Status)
	assert.Equal(t, "size_too_small", c.FilterReason)
}

func TestChain_Classify_SizeTooLarge(t *testing.T) {
	t.Log("=== Testing Intelligent Filter - Size Too Large ===")

	opts := DefaultOptions()
	opts.MaxSizeBytes = 100
	chain := New(opts, nil, arbor.NewLogger())
	sp := &models.ScrapePage{URL: "https://example.com/a", MimeType: "text/html", ContentLength: 1000}

	c, err := chain.Classify(context.Background(), sp)
	require.NoError(t, err)
	assert.Equal(t, models.ScrapePageStatusFilteredTooLarge, c.Status)
}

func TestChain_Classify_AlreadyProcessed(t *testing.T) {
	t.Log("=== Testing Intelligent Filter - Already Processed ===")

	dup := &fakeDupChecker{found: true, pageID: "page_123"}
	chain := New(DefaultOptions(), dup, arbor.NewLogger())
	sp := &models.ScrapePage{
		URL:           "https://example.com/a",
		MimeType:      "text/html",
		Domain:        "example.com",
		ContentDigest: "abc123",
	}

	c, err := chain.Classify(context.Background(), sp)
	require.NoError(t, err)
	assert.Equal(t, models.ScrapePageStatusFilteredAlreadyDone, c.Status)
	assert.Equal(t, "already_processed", c.FilterReason)
	assert.Equal(t, "page_123", c.RelatedPageRef)
}

func TestChain_Classify_NoDigestSkipsDuplicateRule(t *testing.T) {
	t.Log("=== Testing Intelligent Filter - empty digest never calls the duplicate checker ===")

	dup := &fakeDupChecker{found: true, pageID: "page_999"}
	chain := New(DefaultOptions(), dup, arbor.NewLogger())
	sp := &models.ScrapePage{URL: "https://example.com/articles/no-digest-yet", MimeType: "text/html"}

	c, err := chain.Classify(context.Background(), sp)
	require.NoError(t, err)
	assert.Equal(t, models.ScrapePageStatusPending, c.Status)
}

func TestChain_Classify_ListPagePattern(t *testing.T) {
	t.Log("=== Testing Intelligent Filter - List Page Pattern ===")

	chain := New(DefaultOptions(), nil, arbor.NewLogger())
	sp := &models.ScrapePage{URL: "https://example.com/blog/page/3", MimeType: "text/html"}

	c, err := chain.Classify(context.Background(), sp)
	require.NoError(t, err)
	assert.Equal(t, models.ScrapePageStatusFilteredListPage, c.Status)
	assert.NotEmpty(t, c.MatchedPattern)
}

func TestChain_Classify_AttachmentBeatsListPage(t *testing.T) {
	t.Log("=== Testing Intelligent Filter - rule ordering: attachment wins over list-page ===")

	// A PDF whose path also matches the list-page pagination pattern must
	// still classify as filtered_attachment_disabled: attachment filtering
	// runs ahead of list-page detection in the rule chain.
	chain := New(DefaultOptions(), nil, arbor.NewLogger())
	sp := &models.ScrapePage{URL: "https://example.com/blog/page/3", MimeType: "application/pdf"}

	c, err := chain.Classify(context.Background(), sp)
	require.NoError(t, err)
	assert.Equal(t, models.ScrapePageStatusFilteredAttachment, c.Status)
}

func TestChain_Classify_CustomRule(t *testing.T) {
	t.Log("=== Testing Intelligent Filter - Custom Rule ===")

	opts := DefaultOptions()
	opts.CustomRules = []CustomRule{{ID: "no-tag-pages", Pattern: regexp.MustCompile(`/tag/`)}}
	chain := New(opts, nil, arbor.NewLogger())
	sp := &models.ScrapePage{URL: "https://example.com/tag/golang", MimeType: "text/html"}

	c, err := chain.Classify(context.Background(), sp)
	require.NoError(t, err)
	assert.Equal(t, models.ScrapePageStatusFilteredCustomRule, c.Status)
	assert.Equal(t, "custom_rule:no-tag-pages", c.FilterReason)
}

func TestChain_Classify_DefaultPass(t *testing.T) {
	t.Log("=== Testing Intelligent Filter - Default Pass ===")

	chain := New(DefaultOptions(), nil, arbor.NewLogger())
	sp := &models.ScrapePage{URL: "https://example.com/articles/my-great-post", MimeType: "text/html"}

	c, err := chain.Classify(context.Background(), sp)
	require.NoError(t, err)
	assert.Equal(t, models.ScrapePageStatusPending, c.Status)
}

func TestChain_Classify_LowPriority(t *testing.T) {
	t.Log("=== Testing Intelligent Filter - Low Priority ===")

	opts := DefaultOptions()
	opts.LowPriorityThreshold = 9
	chain := New(opts, nil, arbor.NewLogger())
	sp := &models.ScrapePage{URL: "https://example.com/a/b/c/d/e/f?x=1&y=2&z=33333333333333333333", MimeType: "text/html"}

	c, err := chain.Classify(context.Background(), sp)
	require.NoError(t, err)
	assert.Equal(t, models.ScrapePageStatusFilteredLowPriority, c.Status)
	assert.Equal(t, "low_priority", c.FilterReason)
}

func TestChain_Classify_IsIdempotent(t *testing.T) {
	t.Log("=== Testing Intelligent Filter - Idempotent Reclassification ===")

	chain := New(DefaultOptions(), nil, arbor.NewLogger())
	sp := &models.ScrapePage{URL: "https://example.com/blog/page/2", MimeType: "text/html"}

	c1, err := chain.Classify(context.Background(), sp)
	require.NoError(t, err)
	c2, err := chain.Classify(context.Background(), sp)
	require.NoError(t, err)

	assert.Equal(t, c1, c2)
}

func TestChain_Override_ApprovePreservesOriginalAndUnblocksReprocessing(t *testing.T) {
	t.Log("=== Testing Intelligent Filter - Manual Override Preserved ===")

	chain := New(DefaultOptions(), nil, arbor.NewLogger())
	sp := &models.ScrapePage{ID: "sp-1", URL: "https://example.com/blog/page/2", MimeType: "text/html"}

	c, err := chain.Classify(context.Background(), sp)
	require.NoError(t, err)
	sp.ApplyClassification(c)
	require.Equal(t, models.ScrapePageStatusFilteredListPage, sp.Status)

	override, err := chain.Override(context.Background(), sp, true, "human review", "operator_1")
	require.NoError(t, err)
	assert.Equal(t, models.ScrapePageStatusFilteredListPage, override.PreviousStatus)
	assert.Equal(t, models.ScrapePageStatusManuallyApproved, override.NewStatus)
	assert.Equal(t, models.ScrapePageStatusFilteredListPage, sp.OriginalFilterDecision)
	assert.True(t, sp.IsManuallyOverridden)

	// Reclassifying after override must not change the decision.
	final, err := chain.Classify(context.Background(), sp)
	require.NoError(t, err)
	assert.Equal(t, models.ScrapePageStatusManuallyApproved, final.Status)
}

func TestChain_Override_Skip(t *testing.T) {
	t.Log("=== Testing Intelligent Filter - Manual Override (skip) ===")

	chain := New(DefaultOptions(), nil, arbor.NewLogger())
	sp := &models.ScrapePage{
		ID:     "sp-2",
		URL:    "https://example.com/report.pdf",
		Status: models.ScrapePageStatusFilteredAttachment,
	}

	override, err := chain.Override(context.Background(), sp, false, "not relevant", "operator_2")
	require.NoError(t, err)
	assert.Equal(t, models.ScrapePageStatusFilteredAttachment, override.PreviousStatus)
	assert.Equal(t, models.ScrapePageStatusManuallySkipped, override.NewStatus)
	assert.Equal(t, models.ScrapePageStatusManuallySkipped, sp.Status)
}

func TestChain_Override_RejectsIllegalTransition(t *testing.T) {
	t.Log("=== Testing Intelligent Filter - Manual Override rejects an illegal edge ===")

	chain := New(DefaultOptions(), nil, arbor.NewLogger())
	sp := &models.ScrapePage{ID: "sp-3", URL: "https://example.com/a", Status: models.ScrapePageStatusCompleted}

	_, err := chain.Override(context.Background(), sp, true, "reason", "operator_3")
	assert.Error(t, err)
}

func TestIsExcludedExtension(t *testing.T) {
	t.Log("=== Testing IsExcludedExtension ===")

	assert.True(t, IsExcludedExtension("https://example.com/app.js"))
	assert.True(t, IsExcludedExtension("https://example.com/style.css?v=2"))
	assert.False(t, IsExcludedExtension("https://example.com/article"))
}
