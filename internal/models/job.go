package models

import "time"

// JobStatus is the closed set of lifecycle states for a JobRecord.
type JobStatus string

const (
	JobStatusPending   JobStatus = "pending"
	JobStatusRunning   JobStatus = "running"
	JobStatusCompleted JobStatus = "completed"
	JobStatusFailed    JobStatus = "failed"
	JobStatusDead      JobStatus = "dead"
)

// Named priority queues the Job Engine dispatches across.
const (
	QueueQuick    = "quick"
	QueueScraping = "scraping"
	QueueIndexing = "indexing"
	QueueDefault  = "default"
)

// JobRecord is a unit of work dispatched through the Job Engine's named
// priority queues, with at-least-once delivery and heartbeat-based liveness.
type JobRecord struct {
	ID             string    `json:"id"`
	ParentID       string    `json:"parent_id,omitempty"`
	QueueName      string    `json:"queue_name"`
	JobType        string    `json:"job_type"`
	Payload        []byte    `json:"payload"`
	Status         JobStatus `json:"status"`
	Priority       int       `json:"priority"`
	AttemptCount   int       `json:"attempt_count"`
	MaxAttempts    int       `json:"max_attempts"`
	LastError      string    `json:"last_error,omitempty"`
	Result         []byte    `json:"result,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
	StartedAt      *time.Time `json:"started_at,omitempty"`
	CompletedAt    *time.Time `json:"completed_at,omitempty"`
	LastHeartbeat  *time.Time `json:"last_heartbeat,omitempty"`
	AvailableAt    time.Time `json:"available_at"`
}

// DeadLetter records a job (or dual-write intent) that exhausted its retry
// budget and was moved out of the active processing path for manual review.
type DeadLetter struct {
	ID           string    `json:"id"`
	Source       string    `json:"source"` // e.g. "job_engine", "dual_write"
	ReferenceID  string    `json:"reference_id"`
	Reason       string    `json:"reason"`
	Payload      []byte    `json:"payload,omitempty"`
	AttemptCount int       `json:"attempt_count"`
	CreatedAt    time.Time `json:"created_at"`
	ResolvedAt   *time.Time `json:"resolved_at,omitempty"`
}
