// Package interfaces defines the storage and component contracts the rest of
// this codebase programs against, so concrete implementations (SQLite-backed
// storage, the archive strategies, the job engine) stay swappable behind
// narrow seams, matching this codebase's existing layering convention.
package interfaces

import (
	"context"
	"time"

	"github.com/linksmith/chrono-scraper-sub002/internal/models"
)

// ProjectStorage persists Projects and their ArchiveConfig.
type ProjectStorage interface {
	CreateProject(ctx context.Context, p *models.Project) error
	GetProject(ctx context.Context, id string) (*models.Project, error)
	ListProjects(ctx context.Context) ([]*models.Project, error)
	UpdateProject(ctx context.Context, p *models.Project) error
	DeleteProject(ctx context.Context, id string) error
}

// TargetStorage persists Targets belonging to a Project.
type TargetStorage interface {
	CreateTarget(ctx context.Context, t *models.Target) error
	GetTarget(ctx context.Context, id string) (*models.Target, error)
	ListTargetsByProject(ctx context.Context, projectID string) ([]*models.Target, error)
	UpdateTarget(ctx context.Context, t *models.Target) error
	DeleteTarget(ctx context.Context, id string) error
}

// ScrapePageStorage persists ScrapePages and enforces the status state
// machine via models.ScrapePageStatus.CanTransition at the write boundary.
type ScrapePageStorage interface {
	CreateScrapePage(ctx context.Context, sp *models.ScrapePage) error
	GetScrapePage(ctx context.Context, id string) (*models.ScrapePage, error)
	GetScrapePageByURL(ctx context.Context, targetID, url, archiveSource string) (*models.ScrapePage, error)
	ListScrapePagesByStatus(ctx context.Context, status models.ScrapePageStatus, limit int) ([]*models.ScrapePage, error)
	ListScrapePagesByTarget(ctx context.Context, targetID string) ([]*models.ScrapePage, error)
	ApplyFilterDecision(ctx context.Context, id string, c models.Classification) error
	TransitionStatus(ctx context.Context, id string, next models.ScrapePageStatus) error
	RecordOverride(ctx context.Context, override *models.ScrapePageOverride) error
	ListOverrides(ctx context.Context, scrapePageID string) ([]*models.ScrapePageOverride, error)
}

// PageStorage persists the final extracted Page content.
type PageStorage interface {
	UpsertPage(ctx context.Context, p *models.Page) error
	GetPage(ctx context.Context, id string) (*models.Page, error)
	GetPageByScrapePageID(ctx context.Context, scrapePageID string) (*models.Page, error)
	ListPagesByTarget(ctx context.Context, targetID string, limit, offset int) ([]*models.Page, error)
	CountPages(ctx context.Context, targetID string) (int64, error)
	SearchPages(ctx context.Context, query string, limit int) ([]*models.Page, error)
}

// SessionStorage persists crawl Sessions.
type SessionStorage interface {
	CreateSession(ctx context.Context, s *models.Session) error
	GetSession(ctx context.Context, id string) (*models.Session, error)
	UpdateSession(ctx context.Context, s *models.Session) error
	ListActiveSessions(ctx context.Context) ([]*models.Session, error)
}

// JobStorage persists JobRecords across the Job Engine's named priority queues.
type JobStorage interface {
	EnqueueJob(ctx context.Context, j *models.JobRecord) error
	DequeueNext(ctx context.Context, queueName string) (*models.JobRecord, error)
	GetJob(ctx context.Context, id string) (*models.JobRecord, error)
	UpdateJob(ctx context.Context, j *models.JobRecord) error
	Heartbeat(ctx context.Context, id string, at time.Time) error
	ListStale(ctx context.Context, olderThan time.Time) ([]*models.JobRecord, error)
	CountByQueueAndStatus(ctx context.Context, queueName string, status models.JobStatus) (int, error)
}

// DeadLetterStorage persists DeadLetter records for jobs and dual-write
// intents that exhausted their retry budget.
type DeadLetterStorage interface {
	CreateDeadLetter(ctx context.Context, dl *models.DeadLetter) error
	ListDeadLetters(ctx context.Context, source string, limit int) ([]*models.DeadLetter, error)
	ResolveDeadLetter(ctx context.Context, id string, at time.Time) error
}

// DualWriteStorage persists the dual-write outbox.
type DualWriteStorage interface {
	CreateIntent(ctx context.Context, intent *models.DualWriteIntent) error
	GetIntent(ctx context.Context, id string) (*models.DualWriteIntent, error)
	ListPending(ctx context.Context, limit int) ([]*models.DualWriteIntent, error)
	UpdateIntent(ctx context.Context, intent *models.DualWriteIntent) error
}

// ConsistencyStorage persists ConsistencyCheckResult history.
type ConsistencyStorage interface {
	RecordCheckResult(ctx context.Context, result *models.ConsistencyCheckResult) error
	LatestCheckResult(ctx context.Context, entityType string) (*models.ConsistencyCheckResult, error)
	ListCheckResults(ctx context.Context, entityType string, limit int) ([]*models.ConsistencyCheckResult, error)
}

// CDCCheckpointStorage persists polling checkpoints for the CDC Bridge.
type CDCCheckpointStorage interface {
	GetCheckpoint(ctx context.Context, streamName string) (int64, time.Time, error)
	SaveCheckpoint(ctx context.Context, streamName string, position int64, at time.Time) error
}
