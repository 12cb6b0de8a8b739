// Package fetch implements the Content Fetcher: retrieves raw bytes for a
// queued ScrapePage via the Archive Source Router, preferring the strategy
// that originally discovered the snapshot.
package fetch

import (
	"context"
	"fmt"
	"time"

	"github.com/ternarybob/arbor"

	"github.com/linksmith/chrono-scraper-sub002/internal/archive"
	"github.com/linksmith/chrono-scraper-sub002/internal/interfaces"
	"github.com/linksmith/chrono-scraper-sub002/internal/models"
)

// Fetcher retrieves a CaptureRecord for a ScrapePage through an ArchiveRouter.
type Fetcher struct {
	router interfaces.ArchiveRouter
	logger arbor.ILogger
}

var _ interfaces.Fetcher = (*Fetcher)(nil)

// New builds a Fetcher over the given router.
func New(router interfaces.ArchiveRouter, logger arbor.ILogger) *Fetcher {
	return &Fetcher{router: router, logger: logger}
}

// Fetch retrieves the raw bytes for sp, using the strategy recorded as its
// ArchiveSource, with the router falling back to any other enabled source
// that can serve the snapshot.
func (f *Fetcher) Fetch(ctx context.Context, sp *models.ScrapePage) (*models.CaptureRecord, error) {
	if sp.SnapshotTimestamp == nil {
		return nil, fmt.Errorf("scrape page %s has no snapshot timestamp", sp.ID)
	}

	snap := archive.Snapshot{
		URL:               sp.URL,
		ArchiveSource:     sp.ArchiveSource,
		SnapshotTimestamp: *sp.SnapshotTimestamp,
		MimeType:          sp.MimeType,
	}

	f.logger.Debug().Str("scrape_page_id", sp.ID).Str("url", sp.URL).Str("source", sp.ArchiveSource).Msg("fetching content")

	body, mimeType, err := f.router.Fetch(ctx, snap)
	if err != nil {
		return nil, fmt.Errorf("fetching %s: %w", sp.URL, err)
	}

	return &models.CaptureRecord{
		URL:           sp.URL,
		ArchiveSource: sp.ArchiveSource,
		RawBody:       body,
		MimeType:      mimeType,
		FetchedAt:     time.Now(),
	}, nil
}
