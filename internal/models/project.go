package models

import "time"

// Project groups a set of Targets under one archive configuration.
type Project struct {
	ID          string        `json:"id"`
	Name        string        `json:"name"`
	Description string        `json:"description,omitempty"`
	Archive     ArchiveConfig `json:"archive_config"`
	CreatedAt   time.Time     `json:"created_at"`
	UpdatedAt   time.Time     `json:"updated_at"`
}

// ArchiveSource selects which archive(s) a Project's Targets are discovered
// against. "common_crawl" (with underscore) is the only accepted spelling;
// "commoncrawl" is rejected as a validation error at the HTTP boundary.
type ArchiveSource string

const (
	ArchiveSourceWayback     ArchiveSource = "wayback_machine"
	ArchiveSourceCommonCrawl ArchiveSource = "common_crawl"
	ArchiveSourceHybrid      ArchiveSource = "hybrid"
)

// SourceConfig is the per-archive-source tuning a Project's archive_config
// carries for one of wayback_machine/common_crawl.
type SourceConfig struct {
	Enabled            bool `json:"enabled"`
	TimeoutSeconds      int  `json:"timeout_seconds" validate:"min=10,max=600"`
	MaxRetries          int  `json:"max_retries" validate:"min=0,max=10"`
	PageSize            int  `json:"page_size" validate:"min=100,max=50000"`
	MaxPages            int  `json:"max_pages" validate:"min=0"`
	IncludeAttachments  bool `json:"include_attachments"`
	Priority            int  `json:"priority" validate:"min=1,max=100"`
}

// DefaultSourceConfig returns the §6.1-documented defaults for one source.
func DefaultSourceConfig(priority int) SourceConfig {
	return SourceConfig{
		Enabled:        true,
		TimeoutSeconds: 30,
		MaxRetries:     3,
		PageSize:       1000,
		MaxPages:       0,
		Priority:       priority,
	}
}

// ArchiveConfig is the per-project policy for the Archive Source Router:
// which source(s) to use, whether and how to fall back between them, and
// per-source timeouts/paging.
type ArchiveConfig struct {
	ArchiveSource        ArchiveSource `json:"archive_source" validate:"required,oneof=wayback_machine common_crawl hybrid"`
	FallbackEnabled      bool          `json:"fallback_enabled"`
	FallbackPolicy       string        `json:"fallback_strategy" validate:"oneof=immediate retry_then_fallback circuit_breaker"`
	FallbackDelaySeconds float64       `json:"fallback_delay_seconds" validate:"min=0,max=300"`
	ExponentialBackoff   bool          `json:"exponential_backoff"`
	MaxFallbackDelay     int           `json:"max_fallback_delay" validate:"min=1,max=3600"`
	WaybackMachine       SourceConfig  `json:"wayback_machine"`
	CommonCrawl          SourceConfig  `json:"common_crawl"`
}

// DefaultArchiveConfig returns the §6.1-documented defaults for a new Project.
func DefaultArchiveConfig() ArchiveConfig {
	return ArchiveConfig{
		ArchiveSource:        ArchiveSourceWayback,
		FallbackEnabled:      true,
		FallbackPolicy:       "circuit_breaker",
		FallbackDelaySeconds: 1.0,
		ExponentialBackoff:   true,
		MaxFallbackDelay:     30,
		WaybackMachine:       DefaultSourceConfig(1),
		CommonCrawl:          DefaultSourceConfig(2),
	}
}
