package interfaces

import (
	"context"

	"github.com/linksmith/chrono-scraper-sub002/internal/archive"
	"github.com/linksmith/chrono-scraper-sub002/internal/models"
)

// ArchiveRouter discovers and fetches archived snapshots for a Target,
// applying a project's fallback policy across the registered strategies.
// *archive.Router satisfies this directly.
type ArchiveRouter interface {
	Discover(ctx context.Context, req archive.DiscoverRequest) ([]archive.Snapshot, error)
	Fetch(ctx context.Context, snap archive.Snapshot) (body []byte, mimeType string, err error)
}

// Filter is the Intelligent Filter's classification surface: given a
// discovered ScrapePage candidate, it produces a Classification carrying the
// resulting status and the audit trail behind it.
type Filter interface {
	Classify(ctx context.Context, sp *models.ScrapePage) (models.Classification, error)
	Override(ctx context.Context, sp *models.ScrapePage, approve bool, reason, actor string) (*models.ScrapePageOverride, error)
}

// Fetcher retrieves raw content for a queued ScrapePage via the ArchiveRouter.
type Fetcher interface {
	Fetch(ctx context.Context, sp *models.ScrapePage) (*models.CaptureRecord, error)
}

// Extractor is the Tiered Extractor's surface: turn a CaptureRecord into a
// Page with quality scoring, trying tiers in order of fidelity until one
// succeeds above the minimum quality floor.
type Extractor interface {
	Extract(ctx context.Context, capture *models.CaptureRecord) (*models.Page, error)
}

// JobEngine dispatches JobRecords across named priority queues with
// heartbeat-based liveness and dead-letter escalation.
type JobEngine interface {
	Enqueue(ctx context.Context, queueName, jobType string, payload []byte, priority int) (*models.JobRecord, error)
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
	RegisterHandler(jobType string, handler JobHandler)
}

// JobHandler processes one JobRecord's payload and optionally returns a
// result to store back on the record.
type JobHandler func(ctx context.Context, job *models.JobRecord) ([]byte, error)

// PersistenceFacade is the single write path for pipeline state, enforcing
// ScrapePageStatus transitions and fanning writes out to the dual-write
// outbox. The outbox intent is submitted after the primary store write
// commits, as a separate write; the two are not one transaction.
type PersistenceFacade interface {
	SaveDiscoveredPage(ctx context.Context, sp *models.ScrapePage) error
	ApplyFilterDecision(ctx context.Context, scrapePageID string, c models.Classification) error
	TransitionScrapePage(ctx context.Context, scrapePageID string, next models.ScrapePageStatus) error
	SavePage(ctx context.Context, page *models.Page) error
}

// DualWriteSynchronizer drains the dual-write outbox, applying pending
// intents to the secondary store (the search sink) per their ConsistencyLevel.
type DualWriteSynchronizer interface {
	Submit(ctx context.Context, entityType, entityID string, payload []byte, level models.ConsistencyLevel) (*models.DualWriteIntent, error)
	DrainPending(ctx context.Context, batchSize int) (processed int, err error)
}

// SearchSink is the secondary store the Dual-Write Synchronizer and CDC
// Bridge keep eventually consistent with the primary transactional store.
type SearchSink interface {
	IndexPage(ctx context.Context, page *models.Page) error
	DeletePage(ctx context.Context, pageID string) error
	Count(ctx context.Context) (int64, error)
}

// CDCBridge reconciles the primary store and the search sink on a polling
// cadence, independent of the dual-write outbox, catching drift the outbox
// path missed (e.g. after a crash between commit and outbox drain).
type CDCBridge interface {
	Reconcile(ctx context.Context) error
}

// ConsistencyValidator compares row counts and content hashes between the
// primary store and the search sink, producing a ConsistencyCheckResult.
type ConsistencyValidator interface {
	Validate(ctx context.Context, entityType string) (*models.ConsistencyCheckResult, error)
}
