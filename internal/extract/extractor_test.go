package extract

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"

	"github.com/linksmith/chrono-scraper-sub002/internal/models"
)

const sampleHTML = `<!DOCTYPE html>
<html lang="en">
<head>
<title>Example Article</title>
<meta name="description" content="A test article about Go testing">
<meta property="og:title" content="Example Article">
</head>
<body>
<header>site nav here</header>
<main>
<article>
<h1>Example Article</h1>
<p>This is a long-form article with plenty of words to clear the minimum word count threshold required by the Tiered Extractor's acceptance rule, so that the readability tier is chosen instead of falling back to a lower-fidelity tier.</p>
<p>A second paragraph adds more content, more sentences, and more words still, ensuring the extraction result is well above the minimum word floor used by this test.</p>
</article>
</main>
<footer>footer links here</footer>
</body>
</html>`

func TestChain_Extract_ReadabilityTierAccepted(t *testing.T) {
	t.Log("=== Testing Tiered Extractor - Readability Tier Accepted ===")

	chain := New(DefaultOptions(), NewRecentWindow(10), arbor.NewLogger())
	capture := &models.CaptureRecord{
		URL:      "https://example.com/article",
		MimeType: "text/html",
		RawBody:  []byte(sampleHTML),
	}

	page, err := chain.Extract(context.Background(), capture)
	require.NoError(t, err)
	assert.Equal(t, 1, page.ExtractionTier)
	assert.Equal(t, "Example Article", page.Title)
	assert.NotContains(t, page.ContentText, "site nav here")
	assert.NotContains(t, page.ContentText, "footer links here")
	assert.Greater(t, page.QualityScore, 0.0)
}

func TestChain_Extract_FallsBackWithoutMainContent(t *testing.T) {
	t.Log("=== Testing Tiered Extractor - Falls Back Without Main Content ===")

	html := `<html><head><title>No Main</title></head><body><p>` +
		strings.Repeat("word ", 60) + `</p></body></html>`

	chain := New(DefaultOptions(), NewRecentWindow(10), arbor.NewLogger())
	capture := &models.CaptureRecord{
		URL:      "https://example.com/no-main",
		MimeType: "text/html",
		RawBody:  []byte(html),
	}

	page, err := chain.Extract(context.Background(), capture)
	require.NoError(t, err)
	assert.Equal(t, 2, page.ExtractionTier)
}

func TestChain_Extract_DuplicateScoresLowUniqueness(t *testing.T) {
	t.Log("=== Testing Tiered Extractor - Duplicate Scores Low Uniqueness ===")

	recent := NewRecentWindow(10)
	chain := New(DefaultOptions(), recent, arbor.NewLogger())
	capture := &models.CaptureRecord{
		URL:      "https://example.com/article",
		MimeType: "text/html",
		RawBody:  []byte(sampleHTML),
	}

	first, err := chain.Extract(context.Background(), capture)
	require.NoError(t, err)
	second, err := chain.Extract(context.Background(), capture)
	require.NoError(t, err)

	assert.Greater(t, first.QualityBreakdown.Uniqueness, second.QualityBreakdown.Uniqueness)
}

func TestChain_Extract_EmptyDocumentFails(t *testing.T) {
	t.Log("=== Testing Tiered Extractor - Empty Document Fails ===")

	chain := New(DefaultOptions(), nil, arbor.NewLogger())
	capture := &models.CaptureRecord{
		URL:      "https://example.com/empty",
		MimeType: "text/html",
		RawBody:  []byte(`<html><body></body></html>`),
	}

	_, err := chain.Extract(context.Background(), capture)
	assert.Error(t, err)
}
