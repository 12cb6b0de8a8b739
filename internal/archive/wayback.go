package archive

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/linksmith/chrono-scraper-sub002/internal/errkind"
)

// WaybackStrategy queries the Internet Archive's Wayback Machine CDX API.
type WaybackStrategy struct {
	httpClient *http.Client
	limiter    *rate.Limiter
	baseURL    string
}

// NewWaybackStrategy builds a Wayback strategy rate-limited to ratePerSecond requests/sec.
func NewWaybackStrategy(httpClient *http.Client, ratePerSecond float64) *WaybackStrategy {
	return &WaybackStrategy{
		httpClient: httpClient,
		limiter:    rate.NewLimiter(rate.Limit(ratePerSecond), 1),
		baseURL:    "https://web.archive.org",
	}
}

func (w *WaybackStrategy) Name() string { return "wayback" }

// cdxRow is one row of the Wayback CDX API's default JSON response format:
// ["urlkey","timestamp","original","mimetype","statuscode","digest","length"]
type cdxRow []string

func (w *WaybackStrategy) Discover(ctx context.Context, req DiscoverRequest) ([]Snapshot, error) {
	if err := w.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("wayback rate limiter: %w", err)
	}

	query := fmt.Sprintf("%s/cdx/search/cdx?url=%s/*&output=json&collapse=urlkey&limit=10000",
		w.baseURL, req.Domain)
	if req.DateRangeStart != nil {
		query += "&from=" + req.DateRangeStart.Format("20060102")
	}
	if req.DateRangeEnd != nil {
		query += "&to=" + req.DateRangeEnd.Format("20060102")
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, query, nil)
	if err != nil {
		return nil, fmt.Errorf("building wayback CDX request: %w", err)
	}

	resp, err := w.httpClient.Do(httpReq)
	if err != nil {
		return nil, errkind.Wrap(errkind.SourceRetriable, fmt.Errorf("wayback CDX request: %w", err))
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, errkind.Wrap(classifyStatus(resp.StatusCode),
			fmt.Errorf("wayback CDX returned status %d", resp.StatusCode))
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading wayback CDX response: %w", err)
	}

	var rows []cdxRow
	if err := json.Unmarshal(body, &rows); err != nil {
		return nil, fmt.Errorf("parsing wayback CDX response: %w", err)
	}

	snapshots := make([]Snapshot, 0, len(rows))
	for i, row := range rows {
		if i == 0 || len(row) < 5 {
			continue // header row or malformed
		}
		ts, err := time.Parse("20060102150405", row[1])
		if err != nil {
			continue
		}
		statusCode, _ := strconv.Atoi(row[4])
		snap := Snapshot{
			URL:               row[2],
			ArchiveSource:     w.Name(),
			SnapshotTimestamp: ts,
			MimeType:          row[3],
			StatusCode:        statusCode,
		}
		if len(row) > 5 {
			snap.Digest = row[5]
		}
		if len(row) > 6 {
			if length, err := strconv.ParseInt(row[6], 10, 64); err == nil {
				snap.Length = length
			}
		}
		snapshots = append(snapshots, snap)
	}

	return applyPatternFilters(snapshots, req), nil
}

func (w *WaybackStrategy) Fetch(ctx context.Context, snap Snapshot) ([]byte, string, error) {
	if err := w.limiter.Wait(ctx); err != nil {
		return nil, "", fmt.Errorf("wayback rate limiter: %w", err)
	}

	archiveURL := fmt.Sprintf("%s/web/%sid_/%s", w.baseURL, snap.SnapshotTimestamp.Format("20060102150405"), snap.URL)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, archiveURL, nil)
	if err != nil {
		return nil, "", fmt.Errorf("building wayback fetch request: %w", err)
	}

	resp, err := w.httpClient.Do(req)
	if err != nil {
		return nil, "", errkind.Wrap(errkind.SourceRetriable, fmt.Errorf("wayback fetch: %w", err))
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, "", errkind.Wrap(classifyStatus(resp.StatusCode),
			fmt.Errorf("wayback fetch returned status %d", resp.StatusCode))
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, "", fmt.Errorf("reading wayback fetch body: %w", err)
	}

	return body, resp.Header.Get("Content-Type"), nil
}

func applyPatternFilters(snapshots []Snapshot, req DiscoverRequest) []Snapshot {
	if len(req.IncludePatterns) == 0 && len(req.ExcludePatterns) == 0 {
		return snapshots
	}
	filtered := make([]Snapshot, 0, len(snapshots))
	for _, s := range snapshots {
		if matchesAny(s.URL, req.ExcludePatterns) {
			continue
		}
		if len(req.IncludePatterns) > 0 && !matchesAny(s.URL, req.IncludePatterns) {
			continue
		}
		filtered = append(filtered, s)
	}
	return filtered
}

func matchesAny(url string, substrings []string) bool {
	for _, s := range substrings {
		if s != "" && strings.Contains(url, s) {
			return true
		}
	}
	return false
}
