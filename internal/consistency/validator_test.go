package consistency

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"

	"github.com/linksmith/chrono-scraper-sub002/internal/models"
)

type fakePageReader struct {
	count int64
	pages []*models.Page
}

func (f *fakePageReader) CountAllPages(ctx context.Context) (int64, error) { return f.count, nil }
func (f *fakePageReader) ListAllPages(ctx context.Context, limit int) ([]*models.Page, error) {
	if limit < len(f.pages) {
		return f.pages[:limit], nil
	}
	return f.pages, nil
}

// fakeSink implements interfaces.SearchSink and, optionally, the validator's
// unexported hashPeeker interface via Get — exercised only when withPeek is set.
type fakeSink struct {
	count int64
	byID  map[string]*models.Page
}

func (f *fakeSink) IndexPage(ctx context.Context, page *models.Page) error { return nil }
func (f *fakeSink) DeletePage(ctx context.Context, pageID string) error    { return nil }
func (f *fakeSink) Count(ctx context.Context) (int64, error)               { return f.count, nil }

type peekingSink struct {
	fakeSink
}

func (f *peekingSink) Get(ctx context.Context, pageID string) (*models.Page, bool, error) {
	p, ok := f.byID[pageID]
	return p, ok, nil
}

type fakeResultsStore struct {
	recorded []*models.ConsistencyCheckResult
}

func (f *fakeResultsStore) RecordCheckResult(ctx context.Context, result *models.ConsistencyCheckResult) error {
	f.recorded = append(f.recorded, result)
	return nil
}
func (f *fakeResultsStore) LatestCheckResult(ctx context.Context, entityType string) (*models.ConsistencyCheckResult, error) {
	if len(f.recorded) == 0 {
		return nil, nil
	}
	return f.recorded[len(f.recorded)-1], nil
}
func (f *fakeResultsStore) ListCheckResults(ctx context.Context, entityType string, limit int) ([]*models.ConsistencyCheckResult, error) {
	return f.recorded, nil
}

func TestValidate_RejectsUnsupportedEntityType(t *testing.T) {
	v := New(&fakePageReader{}, &fakeSink{}, &fakeResultsStore{}, 10, arbor.NewLogger())
	_, err := v.Validate(context.Background(), "scrape_page")
	require.Error(t, err)
}

func TestValidate_PerfectMatchScoresOne(t *testing.T) {
	pages := &fakePageReader{count: 10}
	sink := &fakeSink{count: 10}
	results := &fakeResultsStore{}
	v := New(pages, sink, results, 0, arbor.NewLogger())

	result, err := v.Validate(context.Background(), "page")
	require.NoError(t, err)
	assert.Equal(t, int64(0), result.Mismatches)
	assert.Equal(t, 1.0, result.ConsistencyScore)
	assert.Len(t, results.recorded, 1)
}

func TestValidate_CountDriftLowersScoreProportionally(t *testing.T) {
	pages := &fakePageReader{count: 10}
	sink := &fakeSink{count: 8}
	v := New(pages, sink, &fakeResultsStore{}, 0, arbor.NewLogger())

	result, err := v.Validate(context.Background(), "page")
	require.NoError(t, err)
	assert.Equal(t, int64(2), result.Mismatches)
	assert.InDelta(t, 0.8, result.ConsistencyScore, 0.001)
}

func TestValidate_ZeroPrimaryCountScoresOneRegardlessOfSink(t *testing.T) {
	pages := &fakePageReader{count: 0}
	sink := &fakeSink{count: 0}
	v := New(pages, sink, &fakeResultsStore{}, 0, arbor.NewLogger())

	result, err := v.Validate(context.Background(), "page")
	require.NoError(t, err)
	assert.Equal(t, 1.0, result.ConsistencyScore)
}

func TestValidate_HashSampleFlagsContentDriftWhenSinkSupportsPeek(t *testing.T) {
	pages := &fakePageReader{count: 2, pages: []*models.Page{
		{ID: "p1", ContentText: "hello", QualityScore: 0.9},
		{ID: "p2", ContentText: "world", QualityScore: 0.5},
	}}
	sink := &peekingSink{fakeSink: fakeSink{count: 2}}
	sink.byID = map[string]*models.Page{
		"p1": {ID: "p1", ContentText: "hello", QualityScore: 0.9},
		"p2": {ID: "p2", ContentText: "STALE", QualityScore: 0.5},
	}
	v := New(pages, sink, &fakeResultsStore{}, 10, arbor.NewLogger())

	result, err := v.Validate(context.Background(), "page")
	require.NoError(t, err)
	assert.Equal(t, int64(1), result.Mismatches)
	assert.Equal(t, 1, result.Details["hash_mismatches"])
	assert.Equal(t, 2, result.Details["hash_sampled"])
}

func TestValidate_HashSampleFlagsMissingSinkEntryAsMismatch(t *testing.T) {
	pages := &fakePageReader{count: 1, pages: []*models.Page{
		{ID: "p1", ContentText: "hello"},
	}}
	sink := &peekingSink{fakeSink: fakeSink{count: 0}, byID: map[string]*models.Page{}}
	v := New(pages, sink, &fakeResultsStore{}, 10, arbor.NewLogger())

	result, err := v.Validate(context.Background(), "page")
	require.NoError(t, err)
	assert.Equal(t, int64(2), result.Mismatches, "missing from sink contributes to both the count drift and the hash sample")
}
