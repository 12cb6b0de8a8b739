// Package consistency compares the primary transactional store against the
// search sink on a scheduled cadence, producing a ConsistencyCheckResult
// that surfaces drift the dual-write outbox and CDC bridge should already be
// closing, but might not have yet.
package consistency

import (
	"context"
	"fmt"
	"time"

	"github.com/ternarybob/arbor"

	"github.com/linksmith/chrono-scraper-sub002/internal/interfaces"
	"github.com/linksmith/chrono-scraper-sub002/internal/models"
)

// pageReader is the narrow read surface the validator needs from the
// primary store for the "page" entity type.
type pageReader interface {
	CountAllPages(ctx context.Context) (int64, error)
	ListAllPages(ctx context.Context, limit int) ([]*models.Page, error)
}

// hashPeeker lets the validator sample individual entries out of the search
// sink for a content comparison pass. *searchsink.BadgerSink satisfies this
// via its Get method, which is not part of interfaces.SearchSink.
type hashPeeker interface {
	Get(ctx context.Context, pageID string) (*models.Page, bool, error)
}

// Validator implements interfaces.ConsistencyValidator by comparing row
// counts between the primary store and the search sink, with an optional
// per-page hash sample pass when the sink supports point lookups.
type Validator struct {
	pages   pageReader
	sink    interfaces.SearchSink
	results interfaces.ConsistencyStorage
	sample  int
	logger  arbor.ILogger
}

var _ interfaces.ConsistencyValidator = (*Validator)(nil)

// New constructs a Validator. sample bounds how many pages the per-entity
// hash comparison pass inspects (ConsistencyConfig.Limit).
func New(pages pageReader, sink interfaces.SearchSink, results interfaces.ConsistencyStorage, sample int, logger arbor.ILogger) *Validator {
	return &Validator{pages: pages, sink: sink, results: results, sample: sample, logger: logger}
}

// Validate runs one consistency check for entityType and records the result.
// Only "page" is currently supported; other entity types return an error so
// callers notice a typo rather than silently recording a zero-row result.
func (v *Validator) Validate(ctx context.Context, entityType string) (*models.ConsistencyCheckResult, error) {
	if entityType != "page" {
		return nil, fmt.Errorf("consistency validator: unsupported entity type %q", entityType)
	}

	primaryCount, err := v.pages.CountAllPages(ctx)
	if err != nil {
		return nil, fmt.Errorf("counting primary pages: %w", err)
	}
	secondaryCount, err := v.sink.Count(ctx)
	if err != nil {
		return nil, fmt.Errorf("counting sink pages: %w", err)
	}

	mismatches := primaryCount - secondaryCount
	if mismatches < 0 {
		mismatches = -mismatches
	}

	details := map[string]interface{}{
		"primary_count":   primaryCount,
		"secondary_count": secondaryCount,
	}

	if peeker, ok := v.sink.(hashPeeker); ok && v.sample > 0 {
		hashMismatches, sampled, err := v.sampleHashes(ctx, peeker)
		if err != nil {
			v.logger.Warn().Err(err).Msg("Consistency validator hash sample pass failed")
		} else {
			mismatches += int64(hashMismatches)
			details["hash_sampled"] = sampled
			details["hash_mismatches"] = hashMismatches
		}
	}

	score := 1.0
	if primaryCount > 0 {
		score = 1.0 - float64(mismatches)/float64(primaryCount)
		if score < 0 {
			score = 0
		}
	}

	result := &models.ConsistencyCheckResult{
		RunAt:            time.Now().UTC(),
		EntityType:       entityType,
		PrimaryCount:     primaryCount,
		SecondaryCount:   secondaryCount,
		Mismatches:       mismatches,
		ConsistencyScore: score,
		Details:          details,
	}

	if err := v.results.RecordCheckResult(ctx, result); err != nil {
		return nil, fmt.Errorf("recording consistency check result: %w", err)
	}

	return result, nil
}

// sampleHashes walks a bounded window of primary pages, comparing each
// against the sink's copy on QualityScore and ContentText. A page missing
// from the sink, or differing on either field, counts as one mismatch.
func (v *Validator) sampleHashes(ctx context.Context, peeker hashPeeker) (mismatches, sampled int, err error) {
	pages, err := v.pages.ListAllPages(ctx, v.sample)
	if err != nil {
		return 0, 0, fmt.Errorf("listing pages for hash sample: %w", err)
	}

	for _, page := range pages {
		sampled++
		sinkPage, found, err := peeker.Get(ctx, page.ID)
		if err != nil {
			return mismatches, sampled, fmt.Errorf("fetching sink page %s: %w", page.ID, err)
		}
		if !found || sinkPage.QualityScore != page.QualityScore || sinkPage.ContentText != page.ContentText {
			mismatches++
		}
	}

	return mismatches, sampled, nil
}
