// Package extract implements the Tiered Extractor: a declared-quality-order
// chain of extraction strategies, each guarded by a timeout, producing a
// Page with per-dimension quality scoring. Grounded on this codebase's
// goquery-based metadata/content extraction and html-to-markdown conversion
// conventions.
package extract

import (
	"bytes"
	"context"
	"fmt"
	"strings"
	"time"

	md "github.com/JohannesKaufmann/html-to-markdown"
	"github.com/PuerkitoBio/goquery"
	"github.com/ternarybob/arbor"

	"github.com/linksmith/chrono-scraper-sub002/internal/interfaces"
	"github.com/linksmith/chrono-scraper-sub002/internal/models"
)

// tierResult is one strategy's extraction attempt, scored with a confidence
// comparable across tiers so the chain can fall back to the best degraded
// result when nothing clears the acceptance threshold.
type tierResult struct {
	tier       int
	method     string
	title      string
	text       string
	markdown   string
	wordCount  int
	confidence float64
	metadata   map[string]string
}

// Options configures tier acceptance thresholds.
type Options struct {
	AcceptConfidence float64
	MinWords         int
	TierTimeout      time.Duration
}

// DefaultOptions returns the spec's documented defaults.
func DefaultOptions() Options {
	return Options{
		AcceptConfidence: 0.6,
		MinWords:         20,
		TierTimeout:      10 * time.Second,
	}
}

// recentDigests is a small interface for the uniqueness dimension: a recent
// window of content digests the extractor can compare against.
type recentDigests interface {
	IsDuplicate(digest string) bool
	Remember(digest string)
}

// Chain is the Tiered Extractor. It implements interfaces.Extractor.
type Chain struct {
	opts    Options
	recent  recentDigests
	logger  arbor.ILogger
}

var _ interfaces.Extractor = (*Chain)(nil)

// New builds a Chain. recent may be nil, in which case uniqueness always
// scores 70 on the 0-100 scale.
func New(opts Options, recent recentDigests, logger arbor.ILogger) *Chain {
	return &Chain{opts: opts, recent: recent, logger: logger}
}

// Extract runs capture through the tier chain in declared quality order
// (readability-style, then structured, then plain-text fallback), accepting
// the first result whose confidence and word count clear the configured
// thresholds. A PDF capture goes straight to the PDF tier and skips the HTML
// tiers.
func (c *Chain) Extract(ctx context.Context, capture *models.CaptureRecord) (*models.Page, error) {
	if strings.Contains(capture.MimeType, "pdf") {
		return c.extractPDFTier(ctx, capture)
	}

	tiers := []func(context.Context, *models.CaptureRecord) (*tierResult, error){
		c.extractReadabilityTier,
		c.extractStructuredTier,
		c.extractPlainTextTier,
	}

	var best *tierResult
	for _, tierFn := range tiers {
		tctx, cancel := context.WithTimeout(ctx, c.opts.TierTimeout)
		result, err := tierFn(tctx, capture)
		cancel()
		if err != nil {
			c.logger.Debug().Err(err).Msg("extraction tier failed, trying next")
			continue
		}
		if result.confidence >= c.opts.AcceptConfidence && result.wordCount >= c.opts.MinWords {
			return c.toPage(capture, result, false), nil
		}
		if best == nil || result.confidence > best.confidence {
			best = result
		}
	}

	if best != nil && best.wordCount >= c.opts.MinWords/2 {
		return c.toPage(capture, best, true), nil
	}

	return nil, fmt.Errorf("extraction failed: no tier produced an acceptable result for %s", capture.URL)
}

// extractReadabilityTier mirrors this codebase's main-content isolation
// convention: drop boilerplate containers, prefer <main>/<article>/[role=main].
func (c *Chain) extractReadabilityTier(ctx context.Context, capture *models.CaptureRecord) (*tierResult, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(capture.RawBody))
	if err != nil {
		return nil, fmt.Errorf("parsing HTML: %w", err)
	}

	metadata := extractMetadata(doc)

	main := doc.Find("main, article, [role=main]").First()
	if main.Length() == 0 {
		return nil, fmt.Errorf("no main content container found")
	}
	main.Find("nav, header, footer, aside, script, style, noscript").Remove()

	html, err := main.Html()
	if err != nil {
		return nil, fmt.Errorf("serializing main content: %w", err)
	}

	markdown, err := md.NewConverter(capture.URL, true, nil).ConvertString(html)
	if err != nil {
		return nil, fmt.Errorf("converting to markdown: %w", err)
	}

	text := cleanWhitespace(main.Text())
	words := len(strings.Fields(text))

	confidence := 0.7
	if words > 150 {
		confidence = 0.95
	} else if words > 50 {
		confidence = 0.85
	}

	return &tierResult{
		tier:       1,
		method:     "main_content",
		title:      metadata["title"],
		text:       text,
		markdown:   markdown,
		wordCount:  words,
		confidence: confidence,
		metadata:   metadata,
	}, nil
}

// extractStructuredTier falls back to the <body> tag with boilerplate
// removal but no main-content isolation, tracking the spec's "newspaper"
// quality tier.
func (c *Chain) extractStructuredTier(ctx context.Context, capture *models.CaptureRecord) (*tierResult, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(capture.RawBody))
	if err != nil {
		return nil, fmt.Errorf("parsing HTML: %w", err)
	}

	metadata := extractMetadata(doc)

	body := doc.Find("body")
	if body.Length() == 0 {
		return nil, fmt.Errorf("no body tag found")
	}
	body.Find("script, style, noscript, nav, header, footer, aside").Remove()
	body.Find("[class*=ad], [id*=ad], [class*=promo], [class*=sidebar]").Remove()

	html, err := body.Html()
	if err != nil {
		return nil, fmt.Errorf("serializing body: %w", err)
	}
	markdown, err := md.NewConverter(capture.URL, true, nil).ConvertString(html)
	if err != nil {
		return nil, fmt.Errorf("converting to markdown: %w", err)
	}

	text := cleanWhitespace(body.Text())
	words := len(strings.Fields(text))

	confidence := 0.6
	if words > 100 {
		confidence = 0.75
	}

	return &tierResult{
		tier:       2,
		method:     "body_boilerplate_stripped",
		title:      metadata["title"],
		text:       text,
		markdown:   markdown,
		wordCount:  words,
		confidence: confidence,
		metadata:   metadata,
	}, nil
}

// extractPlainTextTier is the last-resort tier: raw visible text with no
// boilerplate removal, used when the document structure defeats both
// higher-fidelity tiers.
func (c *Chain) extractPlainTextTier(ctx context.Context, capture *models.CaptureRecord) (*tierResult, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(capture.RawBody))
	if err != nil {
		return nil, fmt.Errorf("parsing HTML: %w", err)
	}

	metadata := extractMetadata(doc)
	text := cleanWhitespace(doc.Text())
	words := len(strings.Fields(text))

	return &tierResult{
		tier:       3,
		method:     "plain_text",
		title:      metadata["title"],
		text:       text,
		wordCount:  words,
		confidence: 0.5,
		metadata:   metadata,
	}, nil
}

func (c *Chain) toPage(capture *models.CaptureRecord, result *tierResult, degraded bool) *models.Page {
	breakdown := c.scoreQuality(result, degraded)
	page := &models.Page{
		URL:              capture.URL,
		Title:            result.title,
		ContentMarkdown:  result.markdown,
		ContentText:      result.text,
		ExtractionTier:   result.tier,
		QualityBreakdown: breakdown,
		QualityScore:     breakdown.Overall(),
		Metadata:         result.metadata,
	}
	if degraded {
		if page.Metadata == nil {
			page.Metadata = map[string]string{}
		}
		page.Metadata["degraded"] = "true"
	}
	return page
}

func (c *Chain) scoreQuality(result *tierResult, degraded bool) models.QualityBreakdown {
	readability := result.confidence * 100
	if degraded {
		readability *= 0.7
	}

	completeness := 100.0
	if result.wordCount < 50 {
		completeness = float64(result.wordCount) / 50 * 100
	}

	metaScore := 20.0 * float64(len(result.metadata))
	if metaScore > 100 {
		metaScore = 100
	}

	uniqueness := 70.0
	if c.recent != nil {
		digest := digestOf(result.text)
		if c.recent.IsDuplicate(digest) {
			uniqueness = 10
		} else {
			uniqueness = 90
			c.recent.Remember(digest)
		}
	}

	structure := 50.0
	if result.markdown != "" {
		structure = 80.0
	}

	return models.QualityBreakdown{
		Readability:  clamp(readability),
		Completeness: clamp(completeness),
		Metadata:     clamp(metaScore),
		Uniqueness:   clamp(uniqueness),
		Structure:    clamp(structure),
	}
}

func clamp(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 100 {
		return 100
	}
	return v
}

func extractMetadata(doc *goquery.Document) map[string]string {
	metadata := make(map[string]string)

	if title := strings.TrimSpace(doc.Find("title").First().Text()); title != "" {
		metadata["title"] = title
	}

	doc.Find("meta[name]").Each(func(_ int, s *goquery.Selection) {
		name, _ := s.Attr("name")
		content, _ := s.Attr("content")
		if name == "" || content == "" {
			return
		}
		switch strings.ToLower(name) {
		case "description":
			metadata["description"] = content
		case "author":
			metadata["author"] = content
		case "keywords":
			metadata["keywords"] = content
		}
	})

	if lang, ok := doc.Find("html").Attr("lang"); ok && lang != "" {
		metadata["language"] = lang
	}

	doc.Find("meta[property^='og:']").Each(func(_ int, s *goquery.Selection) {
		property, _ := s.Attr("property")
		content, _ := s.Attr("content")
		if property != "" && content != "" {
			metadata[property] = content
		}
	})

	if canonical, ok := doc.Find("link[rel='canonical']").Attr("href"); ok && canonical != "" {
		metadata["canonical_url"] = canonical
	}

	return metadata
}

func cleanWhitespace(text string) string {
	fields := strings.Fields(text)
	return strings.Join(fields, " ")
}
