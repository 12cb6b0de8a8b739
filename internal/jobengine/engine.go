// Package jobengine dispatches work across named priority queues with
// heartbeat-based worker liveness and dead-letter escalation, grounded on the
// polling worker-pool idiom this codebase already uses for its queue layer.
package jobengine

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/ternarybob/arbor"

	"github.com/linksmith/chrono-scraper-sub002/internal/common"
	"github.com/linksmith/chrono-scraper-sub002/internal/interfaces"
	"github.com/linksmith/chrono-scraper-sub002/internal/models"
)

// resumableStore is satisfied by storage implementations (e.g.
// *sqlite.Manager) that can requeue in-flight jobs on graceful shutdown. It
// is narrower than interfaces.JobStorage so the engine degrades gracefully
// against a minimal test double.
type resumableStore interface {
	MarkRunningJobsAsPending(ctx context.Context, reason string) (int, error)
}

// JobEvent is a point-in-time status change the engine reports to an
// optional listener, the emit side of the live job-progress feed the HTTP
// layer's websocket hub fans out to connected clients.
type JobEvent struct {
	JobID      string          `json:"job_id"`
	JobType    string          `json:"job_type"`
	QueueName  string          `json:"queue_name"`
	Status     models.JobStatus `json:"status"`
	DurationMs int64           `json:"duration_ms,omitempty"`
	Error      string          `json:"error,omitempty"`
}

// Engine implements interfaces.JobEngine over a JobStorage-backed set of
// named queues (quick, scraping, indexing, default), one worker pool per
// queue, plus a background stale-job detector that requeues or dead-letters
// jobs abandoned by a crashed worker.
type Engine struct {
	jobs        interfaces.JobStorage
	deadLetters interfaces.DeadLetterStorage
	logger      arbor.ILogger

	pollInterval      time.Duration
	heartbeatInterval time.Duration
	staleAfter        time.Duration
	maxReceive        int

	queueWorkers map[string]int

	handlersMu sync.RWMutex
	handlers   map[string]interfaces.JobHandler

	listenerMu sync.RWMutex
	onEvent    func(JobEvent)

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// SetEventListener registers a callback invoked after every job completion,
// failure, or dead-letter escalation. Only one listener is supported; the
// HTTP layer's websocket hub is the only caller today. Passing nil disables
// event reporting.
func (e *Engine) SetEventListener(fn func(JobEvent)) {
	e.listenerMu.Lock()
	defer e.listenerMu.Unlock()
	e.onEvent = fn
}

func (e *Engine) emit(ev JobEvent) {
	e.listenerMu.RLock()
	fn := e.onEvent
	e.listenerMu.RUnlock()
	if fn != nil {
		fn(ev)
	}
}

var _ interfaces.JobEngine = (*Engine)(nil)

// New constructs an Engine from the named-queue worker counts and timing
// configured in common.JobEngineConfig.
func New(jobs interfaces.JobStorage, deadLetters interfaces.DeadLetterStorage, cfg common.JobEngineConfig, logger arbor.ILogger) (*Engine, error) {
	poll, err := time.ParseDuration(cfg.PollInterval)
	if err != nil {
		return nil, fmt.Errorf("parsing job engine poll_interval: %w", err)
	}
	heartbeat, err := time.ParseDuration(cfg.HeartbeatInterval)
	if err != nil {
		return nil, fmt.Errorf("parsing job engine heartbeat_interval: %w", err)
	}
	stale, err := time.ParseDuration(cfg.StaleAfter)
	if err != nil {
		return nil, fmt.Errorf("parsing job engine stale_after: %w", err)
	}

	return &Engine{
		jobs:              jobs,
		deadLetters:       deadLetters,
		logger:            logger,
		pollInterval:      poll,
		heartbeatInterval: heartbeat,
		staleAfter:        stale,
		maxReceive:        cfg.MaxReceive,
		queueWorkers: map[string]int{
			models.QueueQuick:    cfg.QuickWorkers,
			models.QueueScraping: cfg.ScrapingWorkers,
			models.QueueIndexing: cfg.IndexingWorkers,
			models.QueueDefault:  cfg.DefaultWorkers,
		},
		handlers: make(map[string]interfaces.JobHandler),
	}, nil
}

// RegisterHandler associates a job type with the function that processes it.
func (e *Engine) RegisterHandler(jobType string, handler interfaces.JobHandler) {
	e.handlersMu.Lock()
	defer e.handlersMu.Unlock()
	e.handlers[jobType] = handler
	e.logger.Debug().Str("job_type", jobType).Msg("Job handler registered")
}

// Enqueue appends a new JobRecord to the named queue, defaulting MaxAttempts
// to the engine's configured max_receive.
func (e *Engine) Enqueue(ctx context.Context, queueName, jobType string, payload []byte, priority int) (*models.JobRecord, error) {
	if _, ok := e.queueWorkers[queueName]; !ok {
		return nil, fmt.Errorf("unknown queue %q", queueName)
	}

	j := &models.JobRecord{
		QueueName:   queueName,
		JobType:     jobType,
		Payload:     payload,
		Status:      models.JobStatusPending,
		Priority:    priority,
		MaxAttempts: e.maxReceive,
		AvailableAt: time.Now().UTC(),
	}
	if err := e.jobs.EnqueueJob(ctx, j); err != nil {
		return nil, fmt.Errorf("enqueuing job: %w", err)
	}
	return j, nil
}

// Start spawns the configured number of worker goroutines per queue plus the
// background stale-job detector.
func (e *Engine) Start(ctx context.Context) error {
	e.ctx, e.cancel = context.WithCancel(ctx)

	for queueName, count := range e.queueWorkers {
		for i := 0; i < count; i++ {
			e.wg.Add(1)
			go e.worker(queueName, i)
		}
	}

	e.wg.Add(1)
	go e.staleJobDetectorLoop()

	e.logger.Info().
		Int("quick_workers", e.queueWorkers[models.QueueQuick]).
		Int("scraping_workers", e.queueWorkers[models.QueueScraping]).
		Int("indexing_workers", e.queueWorkers[models.QueueIndexing]).
		Int("default_workers", e.queueWorkers[models.QueueDefault]).
		Msg("Job engine started")
	return nil
}

// Stop requeues in-flight work (so it resumes after restart instead of
// waiting out the stale-job detector), cancels every worker's context, and
// waits briefly for in-flight handlers to return.
func (e *Engine) Stop(ctx context.Context) error {
	if e.cancel == nil {
		return nil
	}

	if resumable, ok := e.jobs.(resumableStore); ok {
		count, err := resumable.MarkRunningJobsAsPending(ctx, "job engine shutdown - job will resume on restart")
		if err != nil {
			e.logger.Warn().Err(err).Msg("Failed to mark running jobs as pending during shutdown")
		} else if count > 0 {
			e.logger.Info().Int("count", count).Msg("Marked running jobs as pending for graceful shutdown")
		}
	}

	e.cancel()

	done := make(chan struct{})
	go func() {
		e.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		e.logger.Warn().Msg("Job engine workers did not stop within grace period")
	}

	e.logger.Info().Msg("Job engine stopped")
	return nil
}

func (e *Engine) handlerFor(jobType string) (interfaces.JobHandler, bool) {
	e.handlersMu.RLock()
	defer e.handlersMu.RUnlock()
	h, ok := e.handlers[jobType]
	return h, ok
}
