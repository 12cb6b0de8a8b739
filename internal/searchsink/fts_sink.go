package searchsink

import (
	"context"
	"fmt"

	"github.com/linksmith/chrono-scraper-sub002/internal/interfaces"
	"github.com/linksmith/chrono-scraper-sub002/internal/models"
)

// pageStore is the narrow slice of interfaces.PageStorage the FTS5 sink
// needs; *sqlite.Manager satisfies it directly.
type pageStore interface {
	UpsertPage(ctx context.Context, p *models.Page) error
	CountAllPages(ctx context.Context) (int64, error)
}

// deletablePageStore is implemented by storage backends that support hard
// deletes; when the wrapped store does not implement it, DeletePage on
// FTSSink returns nil without deleting anything.
type deletablePageStore interface {
	DeletePage(ctx context.Context, pageID string) error
}

// FTSSink implements interfaces.SearchSink directly on top of the
// transactional store's FTS5 virtual table over pages, kept as the in-repo
// default search sink for tests and single-node deployments that don't need
// a second store.
type FTSSink struct {
	pages pageStore
}

var _ interfaces.SearchSink = (*FTSSink)(nil)

// NewFTSSink wraps a PageStorage-capable store as a SearchSink.
func NewFTSSink(pages pageStore) *FTSSink {
	return &FTSSink{pages: pages}
}

// IndexPage writes the page into the shared pages table/FTS index.
func (s *FTSSink) IndexPage(ctx context.Context, page *models.Page) error {
	if err := s.pages.UpsertPage(ctx, page); err != nil {
		return fmt.Errorf("indexing page in fts sink: %w", err)
	}
	return nil
}

// DeletePage removes a page from the index, if the underlying store supports it.
func (s *FTSSink) DeletePage(ctx context.Context, pageID string) error {
	if del, ok := s.pages.(deletablePageStore); ok {
		return del.DeletePage(ctx, pageID)
	}
	return nil
}

// Count returns the total page count across all targets, since the FTS5
// sink shares storage with the primary store rather than tracking its own
// independent row count.
func (s *FTSSink) Count(ctx context.Context) (int64, error) {
	return s.pages.CountAllPages(ctx)
}
