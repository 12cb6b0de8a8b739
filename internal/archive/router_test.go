package archive

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"

	"github.com/linksmith/chrono-scraper-sub002/internal/common"
)

// fakeStrategy is a scriptable Strategy used to drive Router behavior in tests
// without hitting the network.
type fakeStrategy struct {
	name         string
	discoverFunc func(ctx context.Context, req DiscoverRequest) ([]Snapshot, error)
	fetchFunc    func(ctx context.Context, snap Snapshot) ([]byte, string, error)
	calls        int
}

func (f *fakeStrategy) Name() string { return f.name }

func (f *fakeStrategy) Discover(ctx context.Context, req DiscoverRequest) ([]Snapshot, error) {
	f.calls++
	return f.discoverFunc(ctx, req)
}

func (f *fakeStrategy) Fetch(ctx context.Context, snap Snapshot) ([]byte, string, error) {
	if f.fetchFunc != nil {
		return f.fetchFunc(ctx, snap)
	}
	return nil, "", fmt.Errorf("%s: fetch not supported", f.name)
}

func testArchiveConfig() common.ArchiveConfig {
	cfg := common.NewDefaultConfig().Archive
	cfg.MaxRetries = 1
	cfg.InitialBackoff = time.Millisecond
	cfg.MaxBackoff = 2 * time.Millisecond
	cfg.CircuitBreaker.MinRequests = 100 // effectively disable tripping in these tests
	return cfg
}

func TestRouter_Discover_PrimarySucceeds(t *testing.T) {
	t.Log("=== Testing Router Discover - Primary Succeeds ===")

	primary := &fakeStrategy{
		name: "wayback",
		discoverFunc: func(ctx context.Context, req DiscoverRequest) ([]Snapshot, error) {
			return []Snapshot{{URL: "http://example.com", ArchiveSource: "wayback"}}, nil
		},
	}
	fallback := &fakeStrategy{
		name: "common_crawl",
		discoverFunc: func(ctx context.Context, req DiscoverRequest) ([]Snapshot, error) {
			t.Fatal("fallback strategy should not be called when primary succeeds")
			return nil, nil
		},
	}

	router := NewRouter([]Strategy{primary, fallback}, testArchiveConfig(), arbor.NewLogger())

	snaps, err := router.Discover(context.Background(), DiscoverRequest{Domain: "example.com"})
	require.NoError(t, err)
	require.Len(t, snaps, 1)
	assert.Equal(t, "wayback", snaps[0].ArchiveSource)
	assert.Equal(t, 1, primary.calls)
}

func TestRouter_Discover_FallsBackOnPrimaryFailure(t *testing.T) {
	t.Log("=== Testing Router Discover - Falls Back On Primary Failure ===")

	primary := &fakeStrategy{
		name: "wayback",
		discoverFunc: func(ctx context.Context, req DiscoverRequest) ([]Snapshot, error) {
			return nil, fmt.Errorf("wayback unavailable")
		},
	}
	fallback := &fakeStrategy{
		name: "common_crawl",
		discoverFunc: func(ctx context.Context, req DiscoverRequest) ([]Snapshot, error) {
			return []Snapshot{{URL: "http://example.com", ArchiveSource: "common_crawl"}}, nil
		},
	}

	router := NewRouter([]Strategy{primary, fallback}, testArchiveConfig(), arbor.NewLogger())

	snaps, err := router.Discover(context.Background(), DiscoverRequest{Domain: "example.com"})
	require.NoError(t, err)
	require.Len(t, snaps, 1)
	assert.Equal(t, "common_crawl", snaps[0].ArchiveSource)
}

func TestRouter_Discover_AllStrategiesFail(t *testing.T) {
	t.Log("=== Testing Router Discover - All Strategies Fail ===")

	primary := &fakeStrategy{
		name: "wayback",
		discoverFunc: func(ctx context.Context, req DiscoverRequest) ([]Snapshot, error) {
			return nil, fmt.Errorf("wayback unavailable")
		},
	}
	fallback := &fakeStrategy{
		name: "common_crawl",
		discoverFunc: func(ctx context.Context, req DiscoverRequest) ([]Snapshot, error) {
			return nil, fmt.Errorf("common crawl unavailable")
		},
	}

	router := NewRouter([]Strategy{primary, fallback}, testArchiveConfig(), arbor.NewLogger())

	snaps, err := router.Discover(context.Background(), DiscoverRequest{Domain: "example.com"})
	require.Error(t, err)
	assert.Nil(t, snaps)
}

func TestRouter_Discover_HybridMergeDeduplicates(t *testing.T) {
	t.Log("=== Testing Router Discover - Hybrid Merge Deduplicates ===")

	ts := time.Now()
	primary := &fakeStrategy{
		name: "wayback",
		discoverFunc: func(ctx context.Context, req DiscoverRequest) ([]Snapshot, error) {
			return []Snapshot{
				{URL: "http://example.com/a", ArchiveSource: "wayback", SnapshotTimestamp: ts},
			}, nil
		},
	}
	fallback := &fakeStrategy{
		name: "common_crawl",
		discoverFunc: func(ctx context.Context, req DiscoverRequest) ([]Snapshot, error) {
			return []Snapshot{
				{URL: "http://example.com/a", ArchiveSource: "common_crawl", SnapshotTimestamp: ts},
				{URL: "http://example.com/b", ArchiveSource: "common_crawl", SnapshotTimestamp: ts},
			}, nil
		},
	}

	cfg := testArchiveConfig()
	cfg.HybridMergeEnabled = true
	router := NewRouter([]Strategy{primary, fallback}, cfg, arbor.NewLogger())

	snaps, err := router.Discover(context.Background(), DiscoverRequest{Domain: "example.com"})
	require.NoError(t, err)
	assert.Len(t, snaps, 2)
}

func TestRouter_Fetch_FallsBackWhenPrimaryStrategyCannotFetch(t *testing.T) {
	t.Log("=== Testing Router Fetch - Falls Back When Discovering Strategy Cannot Fetch ===")

	wayback := &fakeStrategy{
		name: "wayback",
		fetchFunc: func(ctx context.Context, snap Snapshot) ([]byte, string, error) {
			return []byte("<html>cached</html>"), "text/html", nil
		},
	}
	commonCrawl := &fakeStrategy{
		name: "common_crawl",
		fetchFunc: func(ctx context.Context, snap Snapshot) ([]byte, string, error) {
			return nil, "", fmt.Errorf("common_crawl: direct content fetch not supported")
		},
	}

	router := NewRouter([]Strategy{wayback, commonCrawl}, testArchiveConfig(), arbor.NewLogger())

	snap := Snapshot{URL: "http://example.com/a", ArchiveSource: "common_crawl"}
	body, mime, err := router.Fetch(context.Background(), snap)
	require.NoError(t, err)
	assert.Equal(t, "text/html", mime)
	assert.Equal(t, "<html>cached</html>", string(body))
}

func TestRouter_BreakerState_UnknownStrategy(t *testing.T) {
	t.Log("=== Testing Router BreakerState - Unknown Strategy ===")

	router := NewRouter([]Strategy{&fakeStrategy{name: "wayback"}}, testArchiveConfig(), arbor.NewLogger())

	_, ok := router.BreakerState("does_not_exist")
	assert.False(t, ok)
}
