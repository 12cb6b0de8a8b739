// Package persistence is the single write path for pipeline state: every
// mutation to a ScrapePage or Page goes through the Facade so status
// transitions are enforced in one place and, for Page writes, a dual-write
// outbox intent is submitted right after the primary row commits, as a
// separate write rather than in the same transaction.
package persistence

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/ternarybob/arbor"

	"github.com/linksmith/chrono-scraper-sub002/internal/interfaces"
	"github.com/linksmith/chrono-scraper-sub002/internal/models"
)

// Facade implements interfaces.PersistenceFacade over the transactional
// store's ScrapePage/Page surfaces, fanning Page writes out to the
// Dual-Write Synchronizer's outbox.
type Facade struct {
	scrapePages      interfaces.ScrapePageStorage
	pages            interfaces.PageStorage
	dualWrite        interfaces.DualWriteSynchronizer
	consistencyLevel models.ConsistencyLevel
	logger           arbor.ILogger
}

var _ interfaces.PersistenceFacade = (*Facade)(nil)

// New constructs a Facade. consistencyLevel is the default applied to every
// outbox intent this Facade submits (DualWriteConfig.ConsistencyLevel).
func New(scrapePages interfaces.ScrapePageStorage, pages interfaces.PageStorage, dualWrite interfaces.DualWriteSynchronizer, consistencyLevel models.ConsistencyLevel, logger arbor.ILogger) *Facade {
	return &Facade{
		scrapePages:      scrapePages,
		pages:            pages,
		dualWrite:        dualWrite,
		consistencyLevel: consistencyLevel,
		logger:           logger,
	}
}

// SaveDiscoveredPage persists a newly discovered ScrapePage candidate.
func (f *Facade) SaveDiscoveredPage(ctx context.Context, sp *models.ScrapePage) error {
	if sp.Status == "" {
		sp.Status = models.ScrapePageStatusPending
	}
	if err := f.scrapePages.CreateScrapePage(ctx, sp); err != nil {
		return fmt.Errorf("saving discovered page: %w", err)
	}
	return nil
}

// ApplyFilterDecision records the Intelligent Filter's classification.
func (f *Facade) ApplyFilterDecision(ctx context.Context, scrapePageID string, c models.Classification) error {
	if err := f.scrapePages.ApplyFilterDecision(ctx, scrapePageID, c); err != nil {
		return fmt.Errorf("applying filter decision: %w", err)
	}
	return nil
}

// TransitionScrapePage moves a ScrapePage to the next lifecycle status,
// rejecting the move if it isn't a legal edge in the state machine.
func (f *Facade) TransitionScrapePage(ctx context.Context, scrapePageID string, next models.ScrapePageStatus) error {
	if err := f.scrapePages.TransitionStatus(ctx, scrapePageID, next); err != nil {
		return fmt.Errorf("transitioning scrape page: %w", err)
	}
	return nil
}

// SavePage persists extracted Page content and submits a dual-write intent
// so the search sink picks up the same content on its own cadence.
func (f *Facade) SavePage(ctx context.Context, page *models.Page) error {
	if err := f.pages.UpsertPage(ctx, page); err != nil {
		return fmt.Errorf("saving page: %w", err)
	}

	payload, err := json.Marshal(page)
	if err != nil {
		return fmt.Errorf("marshaling page for dual-write intent: %w", err)
	}

	if _, err := f.dualWrite.Submit(ctx, "page", page.ID, payload, f.consistencyLevel); err != nil {
		// The primary write already committed; a failed outbox submit is
		// recovered by the CDC Bridge's independent reconciliation pass
		// rather than rolled back here.
		f.logger.Error().Err(err).Str("page_id", page.ID).Msg("Failed to submit dual-write intent")
		return fmt.Errorf("submitting dual-write intent: %w", err)
	}

	return nil
}
