// Package pipeline wires the Archive Source Router, Intelligent Filter,
// Content Fetcher, Tiered Extractor, and Persistence Facade together behind
// the Job Engine's handler registry, matching the control flow a scrape
// request follows end to end: discover a target's snapshots, classify each
// one, then fetch and extract the ones the filter passed.
package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/ternarybob/arbor"

	"github.com/linksmith/chrono-scraper-sub002/internal/archive"
	"github.com/linksmith/chrono-scraper-sub002/internal/common"
	"github.com/linksmith/chrono-scraper-sub002/internal/errkind"
	"github.com/linksmith/chrono-scraper-sub002/internal/filter"
	"github.com/linksmith/chrono-scraper-sub002/internal/interfaces"
	"github.com/linksmith/chrono-scraper-sub002/internal/models"
)

// Job types dispatched through the Job Engine. These are the only job types
// the pipeline's handlers are registered against.
const (
	JobTypeScrapeProject     = "scrape_project"
	JobTypeDiscoverTarget    = "discover_target"
	JobTypeProcessScrapePage = "process_scrape_page"
)

// Pipeline owns the handler functions that turn a "scrape project" request
// into discovered, filtered, fetched, and extracted Pages. It holds no job
// queue state itself; RegisterHandlers hands its methods to a JobEngine.
type Pipeline struct {
	router      interfaces.ArchiveRouter
	filter      interfaces.Filter
	fetcher     interfaces.Fetcher
	extractor   interfaces.Extractor
	facade      interfaces.PersistenceFacade
	jobs        interfaces.JobEngine
	targets     interfaces.TargetStorage
	projects    interfaces.ProjectStorage
	sessions    interfaces.SessionStorage
	scrapePages interfaces.ScrapePageStorage
	logger      arbor.ILogger

	// archiveStrategies and breakerCfg back routerForProject, which resolves
	// each project's own archive_config (source, fallback_strategy, retry
	// schedule) into a dedicated Router instead of every scrape sharing the
	// one process-wide Router built in app.go.
	archiveStrategies []archive.Strategy
	breakerCfg        common.CircuitBreakerConfig

	routerCacheMu sync.Mutex
	routerCache   map[string]*projectRouter
}

type projectRouter struct {
	cfg    models.ArchiveConfig
	router *archive.Router
}

// New constructs a Pipeline over the already-wired component instances.
// archiveStrategies and breakerCfg are used only by routerForProject to
// build per-project Routers at discover time; fetcher/router stay process-
// wide since fetch fallback doesn't depend on a project's fallback_strategy.
func New(
	router interfaces.ArchiveRouter,
	filter interfaces.Filter,
	fetcher interfaces.Fetcher,
	extractor interfaces.Extractor,
	facade interfaces.PersistenceFacade,
	jobs interfaces.JobEngine,
	targets interfaces.TargetStorage,
	projects interfaces.ProjectStorage,
	sessions interfaces.SessionStorage,
	scrapePages interfaces.ScrapePageStorage,
	archiveStrategies []archive.Strategy,
	breakerCfg common.CircuitBreakerConfig,
	logger arbor.ILogger,
) *Pipeline {
	return &Pipeline{
		router:            router,
		filter:            filter,
		fetcher:           fetcher,
		extractor:         extractor,
		facade:            facade,
		jobs:              jobs,
		targets:           targets,
		projects:          projects,
		sessions:          sessions,
		scrapePages:       scrapePages,
		archiveStrategies: archiveStrategies,
		breakerCfg:        breakerCfg,
		routerCache:       make(map[string]*projectRouter),
		logger:            logger,
	}
}

// routerForProject resolves projectID's archive_config into a Router,
// rebuilding it only when the project's ArchiveConfig has actually changed
// since the last call so circuit breaker state survives across scrapes.
func (p *Pipeline) routerForProject(ctx context.Context, projectID string) (interfaces.ArchiveRouter, error) {
	project, err := p.projects.GetProject(ctx, projectID)
	if err != nil {
		return nil, fmt.Errorf("loading project %s for archive policy: %w", projectID, err)
	}

	p.routerCacheMu.Lock()
	defer p.routerCacheMu.Unlock()

	if cached, ok := p.routerCache[projectID]; ok && cached.cfg == project.Archive {
		return cached.router, nil
	}

	strategies := selectStrategies(p.archiveStrategies, project.Archive)
	policy := archive.ProjectPolicy{
		FallbackPolicy:     archive.FallbackPolicy(project.Archive.FallbackPolicy),
		Hybrid:             project.Archive.ArchiveSource == models.ArchiveSourceHybrid,
		MaxRetries:         sourceMaxRetries(project.Archive),
		InitialBackoff:     time.Duration(project.Archive.FallbackDelaySeconds * float64(time.Second)),
		MaxBackoff:         time.Duration(project.Archive.MaxFallbackDelay) * time.Second,
		ExponentialBackoff: project.Archive.ExponentialBackoff,
	}
	router := archive.NewRouterForProject(strategies, policy, p.breakerCfg, p.logger)
	p.routerCache[projectID] = &projectRouter{cfg: project.Archive, router: router}
	return router, nil
}

// selectStrategies picks and orders the subset of the process's configured
// strategies a project's archive_source actually uses: a single source, or
// both (primary first by priority) for hybrid when fallback_enabled.
func selectStrategies(all []archive.Strategy, cfg models.ArchiveConfig) []archive.Strategy {
	byName := make(map[string]archive.Strategy, len(all))
	for _, s := range all {
		byName[s.Name()] = s
	}

	switch cfg.ArchiveSource {
	case models.ArchiveSourceWayback:
		if s, ok := byName["wayback"]; ok {
			return []archive.Strategy{s}
		}
		return nil
	case models.ArchiveSourceCommonCrawl:
		if s, ok := byName["common_crawl"]; ok {
			return []archive.Strategy{s}
		}
		return nil
	case models.ArchiveSourceHybrid:
		wayback, hasWayback := byName["wayback"]
		cc, hasCC := byName["common_crawl"]
		ordered := make([]archive.Strategy, 0, 2)
		first, second := wayback, cc
		firstOK, secondOK := hasWayback, hasCC
		if hasWayback && hasCC && cfg.CommonCrawl.Priority < cfg.WaybackMachine.Priority {
			first, second = cc, wayback
			firstOK, secondOK = hasCC, hasWayback
		}
		if firstOK {
			ordered = append(ordered, first)
		}
		if secondOK {
			ordered = append(ordered, second)
		}
		return ordered
	default:
		return all
	}
}

// sourceMaxRetries picks the retry budget for the primary source a project's
// archive_source resolves to, falling back to Wayback's when hybrid.
func sourceMaxRetries(cfg models.ArchiveConfig) int {
	if cfg.ArchiveSource == models.ArchiveSourceCommonCrawl {
		return cfg.CommonCrawl.MaxRetries
	}
	return cfg.WaybackMachine.MaxRetries
}

// RegisterHandlers associates every pipeline job type with its handler on
// the given engine. Called once during app startup, before Engine.Start.
func (p *Pipeline) RegisterHandlers() {
	p.jobs.RegisterHandler(JobTypeScrapeProject, p.handleScrapeProject)
	p.jobs.RegisterHandler(JobTypeDiscoverTarget, p.handleDiscoverTarget)
	p.jobs.RegisterHandler(JobTypeProcessScrapePage, p.handleProcessScrapePage)
}

// StartScrape enqueues the root scrape_project job for a scrape run, whose
// handler fans out one discover_target job per Target under the Session's
// Project. Used by the HTTP
// layer's POST /projects/{id}/scrape handler.
func (p *Pipeline) StartScrape(ctx context.Context, projectID, sessionID string) (*models.JobRecord, error) {
	payload, err := json.Marshal(scrapeProjectPayload{ProjectID: projectID, SessionID: sessionID})
	if err != nil {
		return nil, fmt.Errorf("encoding scrape_project payload: %w", err)
	}
	return p.jobs.Enqueue(ctx, models.QueueScraping, JobTypeScrapeProject, payload, 5)
}

type scrapeProjectPayload struct {
	ProjectID string `json:"project_id"`
	SessionID string `json:"session_id"`
}

type discoverTargetPayload struct {
	TargetID  string `json:"target_id"`
	SessionID string `json:"session_id"`
}

type processScrapePagePayload struct {
	ScrapePageID string `json:"scrape_page_id"`
	SessionID    string `json:"session_id"`
}

// handleScrapeProject fans a scrape run out across every Target belonging
// to the project, one discover_target job each.
func (p *Pipeline) handleScrapeProject(ctx context.Context, job *models.JobRecord) ([]byte, error) {
	var payload scrapeProjectPayload
	if err := json.Unmarshal(job.Payload, &payload); err != nil {
		return nil, errkind.Wrap(errkind.Validation, fmt.Errorf("decoding scrape_project payload: %w", err))
	}

	targets, err := p.targets.ListTargetsByProject(ctx, payload.ProjectID)
	if err != nil {
		return nil, fmt.Errorf("listing targets for project %s: %w", payload.ProjectID, err)
	}

	for _, t := range targets {
		tp, err := json.Marshal(discoverTargetPayload{TargetID: t.ID, SessionID: payload.SessionID})
		if err != nil {
			return nil, fmt.Errorf("encoding discover_target payload: %w", err)
		}
		if _, err := p.jobs.Enqueue(ctx, models.QueueScraping, JobTypeDiscoverTarget, tp, 5); err != nil {
			return nil, fmt.Errorf("enqueuing discover_target for target %s: %w", t.ID, err)
		}
	}

	p.logger.Info().Str("project_id", payload.ProjectID).Int("targets", len(targets)).Msg("Scrape run fanned out across targets")
	return nil, nil
}

// handleDiscoverTarget queries the Archive Source Router for every known
// snapshot of one Target, classifies each through the Intelligent Filter,
// and queues the ones the filter passed for fetch+extract.
func (p *Pipeline) handleDiscoverTarget(ctx context.Context, job *models.JobRecord) ([]byte, error) {
	var payload discoverTargetPayload
	if err := json.Unmarshal(job.Payload, &payload); err != nil {
		return nil, errkind.Wrap(errkind.Validation, fmt.Errorf("decoding discover_target payload: %w", err))
	}

	target, err := p.targets.GetTarget(ctx, payload.TargetID)
	if err != nil {
		return nil, fmt.Errorf("loading target %s: %w", payload.TargetID, err)
	}

	router, err := p.routerForProject(ctx, target.ProjectID)
	if err != nil {
		return nil, err
	}

	snapshots, err := router.Discover(ctx, archive.DiscoverRequest{
		Domain:          target.Domain,
		IncludePatterns: target.IncludePatterns,
		ExcludePatterns: target.ExcludePatterns,
		DateRangeStart:  target.DateRangeStart,
		DateRangeEnd:    target.DateRangeEnd,
	})
	if err != nil {
		return nil, fmt.Errorf("discovering snapshots for %s: %w", target.Domain, err)
	}

	var discovered, queued, rejected int
	for _, snap := range snapshots {
		if filter.IsExcludedExtension(snap.URL) {
			continue // asset URLs never get a ScrapePage
		}
		existing, err := p.scrapePages.GetScrapePageByURL(ctx, target.ID, snap.URL, snap.ArchiveSource)
		if err == nil && existing != nil {
			continue // already discovered in a prior run
		}

		sp := &models.ScrapePage{
			TargetID:          target.ID,
			URL:               snap.URL,
			Domain:            target.Domain,
			ArchiveSource:     snap.ArchiveSource,
			SnapshotTimestamp: timePtr(snap.SnapshotTimestamp),
			MimeType:          snap.MimeType,
			ContentDigest:     snap.Digest,
			ContentLength:     snap.Length,
		}

		classification, err := p.filter.Classify(ctx, sp)
		if err != nil {
			return nil, fmt.Errorf("classifying %s: %w", snap.URL, err)
		}
		sp.ApplyClassification(classification)

		if err := p.facade.SaveDiscoveredPage(ctx, sp); err != nil {
			return nil, fmt.Errorf("saving discovered page %s: %w", snap.URL, err)
		}
		discovered++

		switch {
		case classification.Status == models.ScrapePageStatusPending:
			pp, err := json.Marshal(processScrapePagePayload{ScrapePageID: sp.ID, SessionID: payload.SessionID})
			if err != nil {
				return nil, fmt.Errorf("encoding process_scrape_page payload: %w", err)
			}
			if _, err := p.jobs.Enqueue(ctx, models.QueueScraping, JobTypeProcessScrapePage, pp, classification.PriorityScore); err != nil {
				return nil, fmt.Errorf("enqueuing process_scrape_page for %s: %w", sp.ID, err)
			}
			queued++
		default: // every filtered_* status is terminal until a manual override
			rejected++
		}
	}

	if payload.SessionID != "" {
		p.bumpSessionCounter(ctx, payload.SessionID, func(s *models.Session) { s.PagesDiscovered += discovered })
	}

	p.logger.Info().
		Str("target_id", target.ID).
		Str("domain", target.Domain).
		Int("discovered", discovered).
		Int("queued", queued).
		Int("rejected", rejected).
		Msg("Target discovery complete")
	return nil, nil
}

// handleProcessScrapePage fetches one queued ScrapePage's archived bytes and
// runs it through the Tiered Extractor, persisting the resulting Page.
func (p *Pipeline) handleProcessScrapePage(ctx context.Context, job *models.JobRecord) ([]byte, error) {
	var payload processScrapePagePayload
	if err := json.Unmarshal(job.Payload, &payload); err != nil {
		return nil, errkind.Wrap(errkind.Validation, fmt.Errorf("decoding process_scrape_page payload: %w", err))
	}

	sp, err := p.scrapePages.GetScrapePage(ctx, payload.ScrapePageID)
	if err != nil {
		return nil, fmt.Errorf("loading scrape page %s: %w", payload.ScrapePageID, err)
	}

	if err := p.facade.TransitionScrapePage(ctx, sp.ID, models.ScrapePageStatusInProgress); err != nil {
		return nil, fmt.Errorf("transitioning %s to in_progress: %w", sp.ID, err)
	}

	capture, err := p.fetcher.Fetch(ctx, sp)
	if err != nil {
		p.failScrapePage(ctx, sp.ID, payload.SessionID)
		return nil, fmt.Errorf("fetching %s: %w", sp.URL, err)
	}

	page, err := p.extractor.Extract(ctx, capture)
	if err != nil {
		p.failScrapePage(ctx, sp.ID, payload.SessionID)
		return nil, errkind.Wrap(errkind.ExtractionFailed, fmt.Errorf("extracting %s: %w", sp.URL, err))
	}

	page.ScrapePageID = sp.ID
	page.TargetID = sp.TargetID
	if page.CapturedAt == nil {
		now := capture.FetchedAt
		page.CapturedAt = &now
	}

	if err := p.facade.SavePage(ctx, page); err != nil {
		p.failScrapePage(ctx, sp.ID, payload.SessionID)
		return nil, fmt.Errorf("saving page for %s: %w", sp.ID, err)
	}

	if err := p.facade.TransitionScrapePage(ctx, sp.ID, models.ScrapePageStatusCompleted); err != nil {
		return nil, fmt.Errorf("transitioning %s to completed: %w", sp.ID, err)
	}

	if payload.SessionID != "" {
		p.bumpSessionCounter(ctx, payload.SessionID, func(s *models.Session) {
			s.PagesFetched++
			s.PagesExtracted++
		})
	}

	return nil, nil
}

// failScrapePage transitions a ScrapePage to failed and bumps the Session's
// failure counter. It swallows its own errors since the caller already has a
// more specific error to return to the Job Engine.
func (p *Pipeline) failScrapePage(ctx context.Context, scrapePageID, sessionID string) {
	if err := p.facade.TransitionScrapePage(ctx, scrapePageID, models.ScrapePageStatusFailed); err != nil {
		p.logger.Warn().Err(err).Str("scrape_page_id", scrapePageID).Msg("Failed to mark scrape page failed")
	}
	if sessionID != "" {
		p.bumpSessionCounter(ctx, sessionID, func(s *models.Session) { s.PagesFailed++ })
	}
}

// bumpSessionCounter applies mutate to the current Session and persists it.
// Concurrent workers processing the same session race on this read-modify-
// write; that's an accepted approximation since these counters are
// informational progress indicators, not the system of record for any
// ScrapePage's own status.
func (p *Pipeline) bumpSessionCounter(ctx context.Context, sessionID string, mutate func(*models.Session)) {
	s, err := p.sessions.GetSession(ctx, sessionID)
	if err != nil {
		p.logger.Warn().Err(err).Str("session_id", sessionID).Msg("Failed to load session for counter update")
		return
	}
	mutate(s)
	if err := p.sessions.UpdateSession(ctx, s); err != nil {
		p.logger.Warn().Err(err).Str("session_id", sessionID).Msg("Failed to persist session counter update")
	}
}

func timePtr(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}
