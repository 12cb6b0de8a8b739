package fetch

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"

	"github.com/linksmith/chrono-scraper-sub002/internal/archive"
	"github.com/linksmith/chrono-scraper-sub002/internal/models"
)

type fakeRouter struct {
	fetchFunc func(ctx context.Context, snap archive.Snapshot) ([]byte, string, error)
}

func (r *fakeRouter) Discover(ctx context.Context, req archive.DiscoverRequest) ([]archive.Snapshot, error) {
	return nil, nil
}

func (r *fakeRouter) Fetch(ctx context.Context, snap archive.Snapshot) ([]byte, string, error) {
	return r.fetchFunc(ctx, snap)
}

func TestFetcher_Fetch_Success(t *testing.T) {
	t.Log("=== Testing Content Fetcher - Success ===")

	router := &fakeRouter{
		fetchFunc: func(ctx context.Context, snap archive.Snapshot) ([]byte, string, error) {
			return []byte("<html>hi</html>"), "text/html", nil
		},
	}
	f := New(router, arbor.NewLogger())

	ts := time.Now()
	sp := &models.ScrapePage{
		ID:                "scrape_1",
		URL:               "https://example.com/a",
		ArchiveSource:     "wayback",
		SnapshotTimestamp: &ts,
	}

	record, err := f.Fetch(context.Background(), sp)
	require.NoError(t, err)
	assert.Equal(t, "text/html", record.MimeType)
	assert.Equal(t, "<html>hi</html>", string(record.RawBody))
}

func TestFetcher_Fetch_MissingSnapshotTimestamp(t *testing.T) {
	t.Log("=== Testing Content Fetcher - Missing Snapshot Timestamp ===")

	f := New(&fakeRouter{}, arbor.NewLogger())
	sp := &models.ScrapePage{ID: "scrape_1", URL: "https://example.com/a"}

	_, err := f.Fetch(context.Background(), sp)
	assert.Error(t, err)
}
