package jobengine

import (
	"time"

	"github.com/linksmith/chrono-scraper-sub002/internal/models"
)

// staleJobDetectorLoop periodically requeues running jobs whose worker
// stopped heartbeating, escalating to the dead-letter queue once their
// attempt budget is exhausted.
func (e *Engine) staleJobDetectorLoop() {
	defer e.wg.Done()

	ticker := time.NewTicker(e.staleAfter)
	defer ticker.Stop()

	for {
		select {
		case <-e.ctx.Done():
			return
		case <-ticker.C:
			e.detectStaleJobs()
		}
	}
}

func (e *Engine) detectStaleJobs() {
	stale, err := e.jobs.ListStale(e.ctx, time.Now().UTC().Add(-e.staleAfter))
	if err != nil {
		e.logger.Warn().Err(err).Msg("Failed to list stale jobs")
		return
	}

	for _, job := range stale {
		job.AttemptCount++
		job.LastError = "worker heartbeat timeout"

		if job.AttemptCount >= job.MaxAttempts {
			job.Status = models.JobStatusDead
			now := time.Now().UTC()
			job.CompletedAt = &now
			if err := e.jobs.UpdateJob(e.ctx, job); err != nil {
				e.logger.Error().Err(err).Str("job_id", job.ID).Msg("Failed to mark stale job dead")
				continue
			}

			dl := &models.DeadLetter{
				Source:       "job_engine",
				ReferenceID:  job.ID,
				Reason:       "exceeded max_attempts after repeated heartbeat timeouts",
				Payload:      job.Payload,
				AttemptCount: job.AttemptCount,
			}
			if err := e.deadLetters.CreateDeadLetter(e.ctx, dl); err != nil {
				e.logger.Error().Err(err).Str("job_id", job.ID).Msg("Failed to record dead letter for stale job")
			}
			e.logger.Warn().Str("job_id", job.ID).Msg("Stale job moved to dead-letter queue")
			continue
		}

		job.Status = models.JobStatusPending
		job.AvailableAt = time.Now().UTC()
		if err := e.jobs.UpdateJob(e.ctx, job); err != nil {
			e.logger.Error().Err(err).Str("job_id", job.ID).Msg("Failed to requeue stale job")
			continue
		}
		e.logger.Info().Str("job_id", job.ID).Int("attempt", job.AttemptCount).Msg("Requeued stale job")
	}
}
