package models

import "time"

// SessionStatus tracks the lifecycle of a crawl session.
type SessionStatus string

const (
	SessionStatusRunning   SessionStatus = "running"
	SessionStatusCompleted SessionStatus = "completed"
	SessionStatusFailed    SessionStatus = "failed"
)

// Session aggregates counters for one run of a Project's Job Engine activity.
type Session struct {
	ID              string        `json:"id"`
	ProjectID       string        `json:"project_id"`
	StartedAt       time.Time     `json:"started_at"`
	EndedAt         *time.Time    `json:"ended_at,omitempty"`
	PagesDiscovered int           `json:"pages_discovered"`
	PagesFetched    int           `json:"pages_fetched"`
	PagesExtracted  int           `json:"pages_extracted"`
	PagesFailed     int           `json:"pages_failed"`
	Status          SessionStatus `json:"status"`
	CreatedAt       time.Time     `json:"created_at"`
	UpdatedAt       time.Time     `json:"updated_at"`
}
