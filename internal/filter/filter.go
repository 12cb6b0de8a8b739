// Package filter implements the Intelligent Filter: an ordered, auditable
// rule chain that classifies a discovered ScrapePage candidate before it is
// queued for fetching, grounded on this codebase's link-filtering convention
// of compiled include/exclude regex lists evaluated in a fixed order.
package filter

import (
	"context"
	"fmt"
	"path"
	"regexp"
	"strings"

	"github.com/ternarybob/arbor"

	"github.com/linksmith/chrono-scraper-sub002/internal/interfaces"
	"github.com/linksmith/chrono-scraper-sub002/internal/models"
)

// excludedExtensions never produce a ScrapePage at all (spec.md §4.4 rule 1):
// the discovery pipeline drops the capture before it reaches Classify, via
// IsExcludedExtension below. ScrapePageStatusFilteredExtension exists in the
// closed status set for completeness but is never actually persisted.
var excludedExtensions = map[string]bool{
	".css": true, ".js": true, ".svg": true, ".ico": true,
	".woff": true, ".woff2": true, ".png": true, ".jpg": true,
	".jpeg": true, ".gif": true, ".webp": true, ".mp4": true, ".mp3": true,
}

// IsExcludedExtension reports whether url's path extension belongs to the
// fixed set of asset types that never get a ScrapePage record.
func IsExcludedExtension(url string) bool {
	ext := strings.ToLower(path.Ext(strings.SplitN(url, "?", 2)[0]))
	return excludedExtensions[ext]
}

var attachmentMimeTypes = map[string]bool{
	"application/pdf":             true,
	"application/msword":          true,
	"application/vnd.openxmlformats-officedocument.wordprocessingml.document": true,
}

// listPagePattern is one registered regex rule for the list-page detection
// step; patterns are evaluated in order and the first match wins.
type listPagePattern struct {
	name       string
	pattern    *regexp.Regexp
	confidence float64
}

var defaultListPagePatterns = []listPagePattern{
	{"pagination", regexp.MustCompile(`/page/\d+`), 0.9},
	{"category_pagination", regexp.MustCompile(`/category/.+/page/\d+`), 0.92},
	{"blog_index", regexp.MustCompile(`/blog/?$`), 0.8},
	{"archive_index", regexp.MustCompile(`/archive(s)?/?$`), 0.8},
}

// CustomRule is a project-configured regex rule evaluated after the built-in
// list-page detection step.
type CustomRule struct {
	ID      string
	Pattern *regexp.Regexp
}

// Options configures a Chain's thresholds and project-specific rules.
type Options struct {
	IncludeAttachments   bool
	MinSizeBytes         int64
	MaxSizeBytes         int64
	LowPriorityThreshold int
	CustomRules          []CustomRule
	ListPagePatterns     []listPagePattern // nil uses defaultListPagePatterns
}

// DefaultOptions returns the spec's documented defaults.
func DefaultOptions() Options {
	return Options{
		IncludeAttachments:   false,
		MinSizeBytes:         0,
		MaxSizeBytes:         0, // 0 = unbounded
		LowPriorityThreshold: 2,
	}
}

// AlreadyProcessedChecker looks up whether a content digest has already been
// persisted as a Page for the given domain, letting the filter short-circuit
// duplicate captures without depending on the full PageStorage surface.
type AlreadyProcessedChecker interface {
	FindByDigest(ctx context.Context, domain, digest string) (pageID string, found bool, err error)
}

// Chain is the Intelligent Filter's ordered rule chain. It implements
// interfaces.Filter.
type Chain struct {
	opts     Options
	patterns []listPagePattern
	dup      AlreadyProcessedChecker
	logger   arbor.ILogger
}

var _ interfaces.Filter = (*Chain)(nil)

// New builds a rule Chain. dup may be nil, in which case the "already
// processed" rule is skipped.
func New(opts Options, dup AlreadyProcessedChecker, logger arbor.ILogger) *Chain {
	patterns := opts.ListPagePatterns
	if patterns == nil {
		patterns = defaultListPagePatterns
	}
	return &Chain{opts: opts, patterns: patterns, dup: dup, logger: logger}
}

// Classify runs sp through the rule chain in the contractual order from
// spec.md §4.4 (attachment → size → already-processed → list-page →
// custom-rule → low-priority → default pass), stopping at the first
// matching rule. A manually overridden page is never reclassified.
// Reclassifying an unchanged, non-overridden sp always produces the same
// Classification (modulo wall-clock fields) — no rule here reads a clock or RNG.
func (c *Chain) Classify(ctx context.Context, sp *models.ScrapePage) (models.Classification, error) {
	if sp.IsManuallyOverridden {
		return models.Classification{
			Status:                 sp.Status,
			FilterCategory:         sp.FilterCategory,
			FilterReason:           sp.FilterReason,
			FilterDetails:          sp.FilterDetails,
			MatchedPattern:         sp.MatchedPattern,
			FilterConfidence:       sp.FilterConfidence,
			PriorityScore:          sp.PriorityScore,
			CanBeManuallyProcessed: sp.CanBeManuallyProcessed,
			RelatedPageRef:         sp.RelatedPageRef,
		}, nil
	}

	if cl, ok := c.classifyAttachment(sp); ok {
		return cl, nil
	}
	if cl, ok := c.classifySize(sp); ok {
		return cl, nil
	}
	if c.dup != nil {
		cl, ok, err := c.classifyDuplicate(ctx, sp)
		if err != nil {
			return models.Classification{}, err
		}
		if ok {
			return cl, nil
		}
	}
	if cl, ok := c.classifyListPage(sp); ok {
		return cl, nil
	}
	if cl, ok := c.classifyCustomRules(sp); ok {
		return cl, nil
	}

	score := PriorityScore(sp.URL, sp.MimeType)
	if score <= c.opts.LowPriorityThreshold {
		return models.Classification{
			Status:                 models.ScrapePageStatusFilteredLowPriority,
			FilterCategory:         "priority",
			FilterReason:           "low_priority",
			PriorityScore:          score,
			CanBeManuallyProcessed: true,
			FilterDetails: &models.FilterDetails{
				ReasonText: "priority score at or below threshold",
				Confidence: 1.0,
			},
			FilterConfidence: 1.0,
		}, nil
	}

	return models.Classification{
		Status:         models.ScrapePageStatusPending,
		FilterCategory: "pass",
		FilterReason:   "default_pass",
		PriorityScore:  score,
		FilterDetails:  &models.FilterDetails{ReasonText: "passed all filter rules", Confidence: 1.0},
	}, nil
}

func (c *Chain) classifyAttachment(sp *models.ScrapePage) (models.Classification, bool) {
	if !attachmentMimeTypes[sp.MimeType] || c.opts.IncludeAttachments {
		return models.Classification{}, false
	}
	return models.Classification{
		Status:                 models.ScrapePageStatusFilteredAttachment,
		FilterCategory:         "attachment",
		FilterReason:           "attachment_disabled",
		CanBeManuallyProcessed: true,
		FilterConfidence:       1.0,
		FilterDetails: &models.FilterDetails{
			ReasonText: "attachment ingestion disabled for this target",
			Confidence: 1.0,
			FileType:   sp.MimeType,
			FileSize:   sp.ContentLength,
		},
	}, true
}

func (c *Chain) classifySize(sp *models.ScrapePage) (models.Classification, bool) {
	if c.opts.MinSizeBytes > 0 && sp.ContentLength < c.opts.MinSizeBytes {
		return models.Classification{
			Status:                 models.ScrapePageStatusFilteredTooSmall,
			FilterCategory:         "size",
			FilterReason:           "size_too_small",
			CanBeManuallyProcessed: true,
			FilterConfidence:       1.0,
			FilterDetails: &models.FilterDetails{
				ReasonText: fmt.Sprintf("content length %d below minimum %d", sp.ContentLength, c.opts.MinSizeBytes),
				Confidence: 1.0,
				FileSize:   sp.ContentLength,
			},
		}, true
	}
	if c.opts.MaxSizeBytes > 0 && sp.ContentLength > c.opts.MaxSizeBytes {
		return models.Classification{
			Status:                 models.ScrapePageStatusFilteredTooLarge,
			FilterCategory:         "size",
			FilterReason:           "size_too_large",
			CanBeManuallyProcessed: true,
			FilterConfidence:       1.0,
			FilterDetails: &models.FilterDetails{
				ReasonText: fmt.Sprintf("content length %d exceeds maximum %d", sp.ContentLength, c.opts.MaxSizeBytes),
				Confidence: 1.0,
				FileSize:   sp.ContentLength,
			},
		}, true
	}
	return models.Classification{}, false
}

func (c *Chain) classifyDuplicate(ctx context.Context, sp *models.ScrapePage) (models.Classification, bool, error) {
	if sp.ContentDigest == "" {
		return models.Classification{}, false, nil
	}
	pageID, found, err := c.dup.FindByDigest(ctx, sp.Domain, sp.ContentDigest)
	if err != nil {
		return models.Classification{}, false, fmt.Errorf("checking content digest: %w", err)
	}
	if !found {
		return models.Classification{}, false, nil
	}
	return models.Classification{
		Status:                 models.ScrapePageStatusFilteredAlreadyDone,
		FilterCategory:         "duplicate",
		FilterReason:           "already_processed",
		CanBeManuallyProcessed: true,
		FilterConfidence:       1.0,
		RelatedPageRef:         pageID,
		FilterDetails: &models.FilterDetails{
			ReasonText: "content digest already processed for this domain",
			Confidence: 1.0,
		},
	}, true, nil
}

func (c *Chain) classifyListPage(sp *models.ScrapePage) (models.Classification, bool) {
	for _, p := range c.patterns {
		if p.pattern.MatchString(sp.URL) {
			return models.Classification{
				Status:                 models.ScrapePageStatusFilteredListPage,
				FilterCategory:         "content_quality",
				FilterReason:           "list_page_pattern",
				MatchedPattern:         p.pattern.String(),
				FilterConfidence:       p.confidence,
				CanBeManuallyProcessed: true,
				FilterDetails: &models.FilterDetails{
					ReasonText:     "list page pattern: " + p.name,
					MatchedPattern: p.pattern.String(),
					Confidence:     p.confidence,
				},
			}, true
		}
	}
	return models.Classification{}, false
}

func (c *Chain) classifyCustomRules(sp *models.ScrapePage) (models.Classification, bool) {
	for _, rule := range c.opts.CustomRules {
		if match := rule.Pattern.FindString(sp.URL); match != "" {
			return models.Classification{
				Status:                 models.ScrapePageStatusFilteredCustomRule,
				FilterCategory:         "custom_rule",
				FilterReason:           "custom_rule:" + rule.ID,
				MatchedPattern:         match,
				CanBeManuallyProcessed: true,
				FilterConfidence:       1.0,
				FilterDetails: &models.FilterDetails{
					ReasonText:     "matched custom rule " + rule.ID,
					MatchedPattern: match,
					Confidence:     1.0,
				},
			}, true
		}
	}
	return models.Classification{}, false
}

// Override records a manual reclassification, preserving the original
// status on the ScrapePage the first time an override is applied and
// flipping IsManuallyOverridden so future Classify calls never re-decide
// this page automatically. approve selects manually_approved (eligible for
// processing); otherwise manually_skipped.
func (c *Chain) Override(ctx context.Context, sp *models.ScrapePage, approve bool, reason, actor string) (*models.ScrapePageOverride, error) {
	if !sp.IsManuallyOverridden {
		sp.OriginalFilterDecision = sp.Status
	}
	prev := sp.Status
	next := models.ScrapePageStatusManuallySkipped
	if approve {
		next = models.ScrapePageStatusManuallyApproved
	}
	if !prev.CanTransition(next) {
		return nil, fmt.Errorf("cannot override %s to %s", prev, next)
	}

	sp.Status = next
	sp.IsManuallyOverridden = true

	c.logger.Info().
		Str("scrape_page_id", sp.ID).
		Str("previous", string(prev)).
		Str("new", string(next)).
		Str("actor", actor).
		Msg("manual filter override applied")

	return &models.ScrapePageOverride{
		ScrapePageID:   sp.ID,
		PreviousStatus: prev,
		NewStatus:      next,
		Reason:         reason,
		Actor:          actor,
	}, nil
}
