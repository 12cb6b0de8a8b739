package sqlite

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/linksmith/chrono-scraper-sub002/internal/models"
)

func newTestTarget(t *testing.T, m *Manager, domain string) *models.Target {
	t.Helper()
	ctx := context.Background()

	project := &models.Project{Name: "t", Archive: models.DefaultArchiveConfig()}
	require.NoError(t, m.CreateProject(ctx, project))

	target := &models.Target{ProjectID: project.ID, Domain: domain, MatchType: models.MatchTypeHostExact}
	require.NoError(t, m.CreateTarget(ctx, target))
	return target
}

// newTestScrapePage creates the ScrapePage a Page's scrape_page_id foreign key points at.
func newTestScrapePage(t *testing.T, m *Manager, target *models.Target, url string) *models.ScrapePage {
	t.Helper()
	sp := &models.ScrapePage{TargetID: target.ID, URL: url, ArchiveSource: "wayback_machine"}
	require.NoError(t, m.CreateScrapePage(context.Background(), sp))
	return sp
}

// TestUpsertPage_SameDigestUpdatesInPlace verifies the §3 identity key:
// (target_id, content_digest) resolves to the same row across two writes,
// with first_seen_timestamp held fixed and last_seen_timestamp advanced.
func TestUpsertPage_SameDigestUpdatesInPlace(t *testing.T) {
	m := newTestManager(t)
	ctx := context.Background()
	target := newTestTarget(t, m, "example.com")

	sp1 := newTestScrapePage(t, m, target, "http://example.com/a")
	sp2 := newTestScrapePage(t, m, target, "http://example.com/a-alias")

	first := &models.Page{TargetID: target.ID, URL: "http://example.com/a", ContentDigest: "abc123", ScrapePageID: sp1.ID}
	require.NoError(t, m.UpsertPage(ctx, first))

	second := &models.Page{TargetID: target.ID, URL: "http://example.com/a-alias", ContentDigest: "abc123", ScrapePageID: sp2.ID}
	require.NoError(t, m.UpsertPage(ctx, second))

	require.Equal(t, first.ID, second.ID, "same (target_id, content_digest) must resolve to the same page")
	require.Equal(t, first.FirstSeenAt.Unix(), second.FirstSeenAt.Unix(), "first_seen_timestamp must not move")
	require.False(t, second.LastSeenAt.Before(first.LastSeenAt), "last_seen_timestamp must advance")

	count, err := m.CountPages(ctx, target.ID)
	require.NoError(t, err)
	require.EqualValues(t, 1, count)
}

// TestUpsertPage_DifferentDigestCreatesNewRow ensures distinct content for
// the same target does not collide on the dedup key.
func TestUpsertPage_DifferentDigestCreatesNewRow(t *testing.T) {
	m := newTestManager(t)
	ctx := context.Background()
	target := newTestTarget(t, m, "example.com")

	spA := newTestScrapePage(t, m, target, "http://example.com/a")
	spB := newTestScrapePage(t, m, target, "http://example.com/b")
	a := &models.Page{TargetID: target.ID, URL: "http://example.com/a", ContentDigest: "digest-a", ScrapePageID: spA.ID}
	b := &models.Page{TargetID: target.ID, URL: "http://example.com/b", ContentDigest: "digest-b", ScrapePageID: spB.ID}
	require.NoError(t, m.UpsertPage(ctx, a))
	require.NoError(t, m.UpsertPage(ctx, b))

	require.NotEqual(t, a.ID, b.ID)
	count, err := m.CountPages(ctx, target.ID)
	require.NoError(t, err)
	require.EqualValues(t, 2, count)
}

// TestFindByDigest_ReturnsPageID asserts FindByDigest resolves to a pages.id
// (the §3 related_page_ref target) scoped by domain, not a scrape_pages.id.
func TestFindByDigest_ReturnsPageID(t *testing.T) {
	m := newTestManager(t)
	ctx := context.Background()
	target := newTestTarget(t, m, "example.com")

	sp := newTestScrapePage(t, m, target, "http://example.com/a")
	page := &models.Page{TargetID: target.ID, URL: "http://example.com/a", ContentDigest: "digest-a", ScrapePageID: sp.ID}
	require.NoError(t, m.UpsertPage(ctx, page))

	pageID, found, err := m.FindByDigest(ctx, "example.com", "digest-a")
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, page.ID, pageID)

	_, found, err = m.FindByDigest(ctx, "example.com", "no-such-digest")
	require.NoError(t, err)
	require.False(t, found)

	_, found, err = m.FindByDigest(ctx, "other.com", "digest-a")
	require.NoError(t, err)
	require.False(t, found)
}
