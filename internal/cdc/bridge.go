// Package cdc polls the primary store for Pages that changed since the last
// checkpoint and pushes them into the search sink directly, independent of
// the dual-write outbox. It exists to catch drift the outbox path missed,
// e.g. a crash between a Page commit and its outbox submit.
package cdc

import (
	"context"
	"fmt"
	"time"

	"github.com/ternarybob/arbor"

	"github.com/linksmith/chrono-scraper-sub002/internal/interfaces"
	"github.com/linksmith/chrono-scraper-sub002/internal/models"
)

// changelogStore is the narrow slice of PageStorage the bridge polls.
// *sqlite.Manager satisfies it via ListPagesUpdatedSince, an extra method
// beyond interfaces.PageStorage.
type changelogStore interface {
	ListPagesUpdatedSince(ctx context.Context, since int64, limit int) ([]*models.Page, error)
}

// Bridge implements interfaces.CDCBridge over a changelog-capable page store
// and the search sink, checkpointing its progress through CDCCheckpointStorage.
type Bridge struct {
	pages       changelogStore
	sink        interfaces.SearchSink
	checkpoints interfaces.CDCCheckpointStorage
	streamName  string
	batchSize   int
	logger      arbor.ILogger
}

var _ interfaces.CDCBridge = (*Bridge)(nil)

// New constructs a Bridge. streamName identifies this bridge's checkpoint
// row (CDCConfig.CheckpointKey).
func New(pages changelogStore, sink interfaces.SearchSink, checkpoints interfaces.CDCCheckpointStorage, streamName string, batchSize int, logger arbor.ILogger) *Bridge {
	return &Bridge{
		pages:       pages,
		sink:        sink,
		checkpoints: checkpoints,
		streamName:  streamName,
		batchSize:   batchSize,
		logger:      logger,
	}
}

// Reconcile pulls one batch of Pages updated since the last checkpoint and
// re-indexes each into the search sink, advancing the checkpoint only after
// the whole batch applies so a mid-batch failure is retried on the next run.
func (b *Bridge) Reconcile(ctx context.Context) error {
	position, _, err := b.checkpoints.GetCheckpoint(ctx, b.streamName)
	if err != nil {
		return fmt.Errorf("reading cdc checkpoint: %w", err)
	}

	pages, err := b.pages.ListPagesUpdatedSince(ctx, position, b.batchSize)
	if err != nil {
		return fmt.Errorf("listing changed pages: %w", err)
	}
	if len(pages) == 0 {
		return nil
	}

	newest := position
	for _, page := range pages {
		if err := b.sink.IndexPage(ctx, page); err != nil {
			return fmt.Errorf("reconciling page %s: %w", page.ID, err)
		}
		if ts := page.UpdatedAt.Unix(); ts > newest {
			newest = ts
		}
	}

	if err := b.checkpoints.SaveCheckpoint(ctx, b.streamName, newest, time.Now().UTC()); err != nil {
		return fmt.Errorf("saving cdc checkpoint: %w", err)
	}

	b.logger.Debug().Int("count", len(pages)).Str("stream", b.streamName).Msg("CDC bridge reconciled batch")
	return nil
}
