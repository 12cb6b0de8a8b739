package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/linksmith/chrono-scraper-sub002/internal/common"
	"github.com/linksmith/chrono-scraper-sub002/internal/models"
)

// EnqueueJob inserts a JobRecord onto its named queue. AvailableAt defaults to
// now so the job is immediately eligible for dequeue.
func (m *Manager) EnqueueJob(ctx context.Context, j *models.JobRecord) error {
	if j.ID == "" {
		j.ID = common.NewJobID()
	}
	now := time.Now().UTC()
	j.CreatedAt = now
	if j.AvailableAt.IsZero() {
		j.AvailableAt = now
	}
	if j.Status == "" {
		j.Status = models.JobStatusPending
	}
	if j.MaxAttempts == 0 {
		j.MaxAttempts = 5
	}
	if j.Priority == 0 {
		j.Priority = 5
	}

	_, err := m.db.DB().ExecContext(ctx, `
		INSERT INTO jobs (id, parent_id, queue_name, job_type, payload_json, status, priority,
			attempt_count, max_attempts, last_error, result_json, created_at, started_at,
			completed_at, last_heartbeat, available_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		j.ID, nullString(j.ParentID), j.QueueName, j.JobType, string(j.Payload), string(j.Status),
		j.Priority, j.AttemptCount, j.MaxAttempts, nullString(j.LastError), nullBytes(j.Result),
		now.Unix(), nullableUnixPtr(j.StartedAt), nullableUnixPtr(j.CompletedAt),
		nullableUnixPtr(j.LastHeartbeat), j.AvailableAt.Unix())
	if err != nil {
		return fmt.Errorf("enqueuing job: %w", err)
	}
	return nil
}

// DequeueNext claims the highest-priority, oldest-eligible pending job on a
// queue, marking it running with a fresh heartbeat. Returns sql.ErrNoRows
// (wrapped) when the queue has nothing eligible right now.
func (m *Manager) DequeueNext(ctx context.Context, queueName string) (*models.JobRecord, error) {
	tx, err := m.db.DB().BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("beginning dequeue transaction: %w", err)
	}
	defer tx.Rollback()

	now := time.Now().UTC()
	var id string
	err = tx.QueryRowContext(ctx, `
		SELECT id FROM jobs
		WHERE queue_name = ? AND status = ? AND available_at <= ?
		ORDER BY priority DESC, available_at ASC, created_at ASC
		LIMIT 1`, queueName, string(models.JobStatusPending), now.Unix()).Scan(&id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("no eligible job on queue %s: %w", queueName, err)
		}
		return nil, fmt.Errorf("selecting next job: %w", err)
	}

	res, err := tx.ExecContext(ctx, `
		UPDATE jobs SET status = ?, started_at = ?, last_heartbeat = ?
		WHERE id = ? AND status = ?`,
		string(models.JobStatusRunning), now.Unix(), now.Unix(), id, string(models.JobStatusPending))
	if err != nil {
		return nil, fmt.Errorf("claiming job: %w", err)
	}
	if err := requireRowsAffected(res, "job", id); err != nil {
		return nil, err
	}

	row := tx.QueryRowContext(ctx, jobSelect+` WHERE id = ?`, id)
	j, err := scanJobRow(row)
	if err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("committing dequeue: %w", err)
	}
	return j, nil
}

// GetJob fetches a JobRecord by id.
func (m *Manager) GetJob(ctx context.Context, id string) (*models.JobRecord, error) {
	row := m.db.DB().QueryRowContext(ctx, jobSelect+` WHERE id = ?`, id)
	j, err := scanJobRow(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("job not found: %w", err)
		}
		return nil, err
	}
	return j, nil
}

// UpdateJob persists mutated JobRecord fields (status, attempt/result bookkeeping).
func (m *Manager) UpdateJob(ctx context.Context, j *models.JobRecord) error {
	res, err := m.db.DB().ExecContext(ctx, `
		UPDATE jobs SET status = ?, attempt_count = ?, last_error = ?, result_json = ?,
			started_at = ?, completed_at = ?, last_heartbeat = ?, available_at = ?, priority = ?
		WHERE id = ?`,
		string(j.Status), j.AttemptCount, nullString(j.LastError), nullBytes(j.Result),
		nullableUnixPtr(j.StartedAt), nullableUnixPtr(j.CompletedAt), nullableUnixPtr(j.LastHeartbeat),
		j.AvailableAt.Unix(), j.Priority, j.ID)
	if err != nil {
		return fmt.Errorf("updating job: %w", err)
	}
	return requireRowsAffected(res, "job", j.ID)
}

// Heartbeat records liveness for a running job so stale-job detection leaves it alone.
func (m *Manager) Heartbeat(ctx context.Context, id string, at time.Time) error {
	res, err := m.db.DB().ExecContext(ctx,
		`UPDATE jobs SET last_heartbeat = ? WHERE id = ? AND status = ?`,
		at.Unix(), id, string(models.JobStatusRunning))
	if err != nil {
		return fmt.Errorf("recording heartbeat: %w", err)
	}
	return requireRowsAffected(res, "job", id)
}

// ListStale returns running jobs whose last heartbeat is older than olderThan,
// meaning their worker likely crashed.
func (m *Manager) ListStale(ctx context.Context, olderThan time.Time) ([]*models.JobRecord, error) {
	rows, err := m.db.DB().QueryContext(ctx, jobSelect+`
		WHERE status = ? AND (last_heartbeat IS NULL OR last_heartbeat < ?)
		ORDER BY last_heartbeat ASC`, string(models.JobStatusRunning), olderThan.Unix())
	if err != nil {
		return nil, fmt.Errorf("listing stale jobs: %w", err)
	}
	defer rows.Close()

	var out []*models.JobRecord
	for rows.Next() {
		j, err := scanJobRow(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, j)
	}
	return out, rows.Err()
}

// CountByQueueAndStatus returns the number of jobs on a queue in a given status.
func (m *Manager) CountByQueueAndStatus(ctx context.Context, queueName string, status models.JobStatus) (int, error) {
	var count int
	err := m.db.DB().QueryRowContext(ctx,
		`SELECT COUNT(*) FROM jobs WHERE queue_name = ? AND status = ?`, queueName, string(status)).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("counting jobs: %w", err)
	}
	return count, nil
}

// MarkRunningJobsAsPending requeues every running job as pending, used on
// graceful shutdown so in-flight work resumes after restart instead of
// waiting out the stale-job detector.
func (m *Manager) MarkRunningJobsAsPending(ctx context.Context, reason string) (int, error) {
	res, err := m.db.DB().ExecContext(ctx, `
		UPDATE jobs SET status = ?, last_error = ?, last_heartbeat = NULL
		WHERE status = ?`,
		string(models.JobStatusPending), reason, string(models.JobStatusRunning))
	if err != nil {
		return 0, fmt.Errorf("marking running jobs pending: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("checking rows affected: %w", err)
	}
	return int(n), nil
}

const jobSelect = `
	SELECT id, parent_id, queue_name, job_type, payload_json, status, priority, attempt_count,
		max_attempts, last_error, result_json, created_at, started_at, completed_at,
		last_heartbeat, available_at
	FROM jobs`

type jobScanner interface {
	Scan(dest ...interface{}) error
}

func scanJobRow(scanner jobScanner) (*models.JobRecord, error) {
	var j models.JobRecord
	var parentID, payload, lastError, result sql.NullString
	var startedAt, completedAt, lastHeartbeat sql.NullInt64
	var createdAt, availableAt int64

	err := scanner.Scan(&j.ID, &parentID, &j.QueueName, &j.JobType, &payload, &j.Status, &j.Priority,
		&j.AttemptCount, &j.MaxAttempts, &lastError, &result, &createdAt, &startedAt, &completedAt,
		&lastHeartbeat, &availableAt)
	if err != nil {
		return nil, fmt.Errorf("scanning job: %w", err)
	}

	j.ParentID = parentID.String
	j.Payload = []byte(payload.String)
	j.LastError = lastError.String
	j.Result = []byte(result.String)
	j.CreatedAt = time.Unix(createdAt, 0).UTC()
	j.AvailableAt = time.Unix(availableAt, 0).UTC()

	if startedAt.Valid {
		ts := time.Unix(startedAt.Int64, 0).UTC()
		j.StartedAt = &ts
	}
	if completedAt.Valid {
		ts := time.Unix(completedAt.Int64, 0).UTC()
		j.CompletedAt = &ts
	}
	if lastHeartbeat.Valid {
		ts := time.Unix(lastHeartbeat.Int64, 0).UTC()
		j.LastHeartbeat = &ts
	}

	return &j, nil
}

func nullBytes(b []byte) interface{} {
	if len(b) == 0 {
		return nil
	}
	return string(b)
}
