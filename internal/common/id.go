package common

import (
	"github.com/google/uuid"
)

// NewProjectID generates a unique project identifier with a "proj_" prefix.
func NewProjectID() string {
	return "proj_" + uuid.New().String()
}

// NewTargetID generates a unique target identifier with a "tgt_" prefix.
func NewTargetID() string {
	return "tgt_" + uuid.New().String()
}

// NewPageID generates a unique page identifier with a "page_" prefix.
func NewPageID() string {
	return "page_" + uuid.New().String()
}

// NewScrapePageID generates a unique scrape page identifier with a "scrape_" prefix.
func NewScrapePageID() string {
	return "scrape_" + uuid.New().String()
}

// NewSessionID generates a unique session identifier with a "sess_" prefix.
func NewSessionID() string {
	return "sess_" + uuid.New().String()
}

// NewJobID generates a unique job identifier with a "job_" prefix.
func NewJobID() string {
	return "job_" + uuid.New().String()
}

// NewIntentID generates a unique dual-write intent identifier with an "intent_" prefix.
func NewIntentID() string {
	return "intent_" + uuid.New().String()
}

// NewDeadLetterID generates a unique dead-letter identifier with a "dlq_" prefix.
func NewDeadLetterID() string {
	return "dlq_" + uuid.New().String()
}
