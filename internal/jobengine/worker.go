package jobengine

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/linksmith/chrono-scraper-sub002/internal/errkind"
	"github.com/linksmith/chrono-scraper-sub002/internal/models"
)

// worker is one queue's polling loop: on every tick it tries to dequeue and
// process a single job, staggering its start so a burst of workers doesn't
// all poll SQLite in the same instant.
func (e *Engine) worker(queueName string, workerID int) {
	defer e.wg.Done()

	staggerDelay := (e.pollInterval / time.Duration(max(e.queueWorkers[queueName], 1))) * time.Duration(workerID)
	if staggerDelay > 0 {
		select {
		case <-time.After(staggerDelay):
		case <-e.ctx.Done():
			return
		}
	}

	e.logger.Debug().Str("queue", queueName).Int("worker_id", workerID).Msg("Job engine worker started")

	ticker := time.NewTicker(e.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-e.ctx.Done():
			e.logger.Debug().Str("queue", queueName).Int("worker_id", workerID).Msg("Job engine worker stopped")
			return
		case <-ticker.C:
			e.processNext(queueName, workerID)
		}
	}
}

// processNext dequeues and runs a single job, if one is eligible.
func (e *Engine) processNext(queueName string, workerID int) {
	job, err := e.jobs.DequeueNext(e.ctx, queueName)
	if err != nil {
		// No eligible job is the overwhelmingly common case on an idle queue.
		return
	}

	handler, ok := e.handlerFor(job.JobType)
	if !ok {
		e.logger.Error().Str("job_type", job.JobType).Str("job_id", job.ID).Msg("No handler registered for job type")
		e.fail(job, fmt.Errorf("no handler registered for job type %q", job.JobType))
		return
	}

	heartbeatCtx, stopHeartbeat := context.WithCancel(e.ctx)
	go e.heartbeatLoop(heartbeatCtx, job.ID)

	start := time.Now()
	result, err := handler(e.ctx, job)
	stopHeartbeat()
	duration := time.Since(start)

	if err != nil {
		e.logger.Error().Err(err).Str("job_id", job.ID).Str("job_type", job.JobType).
			Int("worker_id", workerID).Dur("duration", duration).Msg("Job handler failed")
		e.fail(job, err)
		return
	}

	now := time.Now().UTC()
	job.Status = models.JobStatusCompleted
	job.CompletedAt = &now
	job.Result = result
	if err := e.jobs.UpdateJob(e.ctx, job); err != nil {
		e.logger.Error().Err(err).Str("job_id", job.ID).Msg("Failed to persist job completion")
		return
	}

	e.logger.Info().Str("job_id", job.ID).Str("job_type", job.JobType).
		Dur("duration", duration).Int("worker_id", workerID).Msg("Job completed")

	e.emit(JobEvent{
		JobID: job.ID, JobType: job.JobType, QueueName: job.QueueName,
		Status: job.Status, DurationMs: duration.Milliseconds(),
	})
}

// fail records a handler failure, either rescheduling the job with
// exponential backoff or, once max_receive attempts are exhausted, escalating
// it to the dead-letter store. Cancelled jobs are not retried.
func (e *Engine) fail(job *models.JobRecord, handlerErr error) {
	job.AttemptCount++
	job.LastError = handlerErr.Error()

	if errkind.Is(handlerErr, errkind.Cancelled) || job.AttemptCount >= job.MaxAttempts {
		job.Status = models.JobStatusDead
		now := time.Now().UTC()
		job.CompletedAt = &now
		if err := e.jobs.UpdateJob(e.ctx, job); err != nil {
			e.logger.Error().Err(err).Str("job_id", job.ID).Msg("Failed to mark job dead")
		}

		dl := &models.DeadLetter{
			Source:       "job_engine",
			ReferenceID:  job.ID,
			Reason:       handlerErr.Error(),
			Payload:      job.Payload,
			AttemptCount: job.AttemptCount,
		}
		if err := e.deadLetters.CreateDeadLetter(e.ctx, dl); err != nil {
			e.logger.Error().Err(err).Str("job_id", job.ID).Msg("Failed to record dead letter")
		}
		e.logger.Warn().Str("job_id", job.ID).Int("attempts", job.AttemptCount).Msg("Job moved to dead-letter queue")
		e.emit(JobEvent{JobID: job.ID, JobType: job.JobType, QueueName: job.QueueName, Status: job.Status, Error: handlerErr.Error()})
		return
	}

	job.Status = models.JobStatusPending
	job.AvailableAt = time.Now().UTC().Add(backoff(job.AttemptCount))
	if err := e.jobs.UpdateJob(e.ctx, job); err != nil {
		e.logger.Error().Err(err).Str("job_id", job.ID).Msg("Failed to reschedule failed job")
	}
	e.emit(JobEvent{JobID: job.ID, JobType: job.JobType, QueueName: job.QueueName, Status: job.Status, Error: handlerErr.Error()})
}

// heartbeatLoop records liveness for a running job until ctx is cancelled.
func (e *Engine) heartbeatLoop(ctx context.Context, jobID string) {
	ticker := time.NewTicker(e.heartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := e.jobs.Heartbeat(e.ctx, jobID, time.Now().UTC()); err != nil {
				e.logger.Warn().Err(err).Str("job_id", jobID).Msg("Failed to record job heartbeat")
			}
		}
	}
}

// backoff computes exponential backoff with a one-second base, capped at two minutes.
func backoff(attempt int) time.Duration {
	d := time.Duration(math.Pow(2, float64(attempt))) * time.Second
	if d > 2*time.Minute {
		return 2 * time.Minute
	}
	return d
}
