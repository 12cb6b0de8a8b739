// Package archive implements the Archive Source Strategy and Router: one
// Strategy per external archive (Wayback Machine, Common Crawl), and a
// Router that applies a project's fallback policy across them, each guarded
// by its own rate limiter and circuit breaker.
package archive

import (
	"context"
	"net/http"
	"time"

	"github.com/linksmith/chrono-scraper-sub002/internal/errkind"
)

// Snapshot is one archived capture of a URL returned by a Strategy's Discover call.
type Snapshot struct {
	URL               string
	ArchiveSource     string
	SnapshotTimestamp time.Time
	MimeType          string
	StatusCode        int
	Digest            string
	Length            int64
}

// Strategy is one archive source's lookup surface. Implementations never
// retry internally — retry/backoff and circuit breaking are the Router's job.
type Strategy interface {
	// Name identifies the strategy, e.g. "wayback" or "common_crawl".
	Name() string

	// Discover lists known snapshots for a domain, optionally constrained by
	// include/exclude patterns and a date range.
	Discover(ctx context.Context, req DiscoverRequest) ([]Snapshot, error)

	// Fetch retrieves the raw bytes of one snapshot.
	Fetch(ctx context.Context, snap Snapshot) ([]byte, string, error)
}

// classifyStatus maps an archive source's HTTP response status to the
// errkind taxonomy the Router and its RetryPolicy branch on: 429 and 5xx
// (including Cloudflare's 522) are transient source conditions worth
// retrying, everything else in the 4xx range is a permanent rejection of
// the request as sent.
func classifyStatus(status int) errkind.Kind {
	if status == http.StatusTooManyRequests || status >= 500 {
		return errkind.SourceRetriable
	}
	return errkind.SourcePermanent
}

// DiscoverRequest parameterizes a Strategy.Discover call.
type DiscoverRequest struct {
	Domain          string
	IncludePatterns []string
	ExcludePatterns []string
	DateRangeStart  *time.Time
	DateRangeEnd    *time.Time
}
