package models

import "time"

// MatchType selects how a Target's domain is matched against a discovered
// snapshot's URL.
type MatchType string

const (
	MatchTypeHostExact MatchType = "host_exact"
	MatchTypeSubdomain MatchType = "subdomain"
	MatchTypePrefix    MatchType = "prefix"
)

// Target is a domain within a Project to be crawled from archive sources.
// match_type=prefix requires a non-empty URLPath; DateRangeStart must not be
// after DateRangeEnd when both are set.
type Target struct {
	ID                 string     `json:"id"`
	ProjectID          string     `json:"project_id"`
	Domain             string     `json:"domain" validate:"required"`
	MatchType          MatchType  `json:"match_type" validate:"required,oneof=host_exact subdomain prefix"`
	URLPath            string     `json:"url_path,omitempty"`
	IncludeAttachments bool       `json:"include_attachments"`
	IncludePatterns    []string   `json:"include_patterns,omitempty"`
	ExcludePatterns    []string   `json:"exclude_patterns,omitempty"`
	DateRangeStart     *time.Time `json:"date_range_start,omitempty"`
	DateRangeEnd       *time.Time `json:"date_range_end,omitempty"`
	CreatedAt          time.Time  `json:"created_at"`
	UpdatedAt          time.Time  `json:"updated_at"`
}
