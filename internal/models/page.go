package models

import "time"

// Page is the final extracted, persisted content for a ScrapePage that made
// it through fetching and extraction.
type Page struct {
	ID               string            `json:"id"`
	ScrapePageID     string            `json:"scrape_page_id"`
	TargetID         string            `json:"target_id"`
	URL              string            `json:"url"`
	Title            string            `json:"title,omitempty"`
	ContentMarkdown  string            `json:"content_markdown,omitempty"`
	ContentText      string            `json:"content_text,omitempty"`
	ContentDigest    string            `json:"content_digest"`
	ExtractionTier   int               `json:"extraction_tier"`
	QualityScore     float64           `json:"quality_score"`
	QualityBreakdown QualityBreakdown  `json:"quality_breakdown"`
	Metadata         map[string]string `json:"metadata,omitempty"`
	CapturedAt       *time.Time        `json:"captured_at,omitempty"`
	FirstSeenAt      time.Time         `json:"first_seen_timestamp"`
	LastSeenAt       time.Time         `json:"last_seen_timestamp"`
	CreatedAt        time.Time         `json:"created_at"`
	UpdatedAt        time.Time         `json:"updated_at"`
}

// QualityBreakdown is the Tiered Extractor's per-dimension quality scoring.
type QualityBreakdown struct {
	Readability  float64 `json:"readability"`
	Completeness float64 `json:"completeness"`
	Metadata     float64 `json:"metadata"`
	Uniqueness   float64 `json:"uniqueness"`
	Structure    float64 `json:"structure"`
}

// Overall computes the weighted composite score from the five dimensions:
// readability 25%, completeness 30%, metadata richness 20%, uniqueness 15%,
// structure 10%.
func (q QualityBreakdown) Overall() float64 {
	return q.Readability*0.25 + q.Completeness*0.30 + q.Metadata*0.20 +
		q.Uniqueness*0.15 + q.Structure*0.10
}

// CaptureRecord is the transient result of a Content Fetcher request before
// it has been run through the Tiered Extractor; it is never persisted on its
// own, only consumed to produce a Page.
type CaptureRecord struct {
	URL            string
	ArchiveSource  string
	RawBody        []byte
	MimeType       string
	StatusCode     int
	FetchedAt      time.Time
}
