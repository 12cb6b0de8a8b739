// Package searchsink provides the secondary, analytical store the Dual-Write
// Synchronizer and CDC Bridge keep eventually consistent with the primary
// transactional store. The badger-backed implementation, used in production,
// gives the Consistency Validator a genuinely independent store to compare
// against; other environments use the FTS5-backed sink, which satisfies the
// same interfaces.SearchSink.
package searchsink

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	badgerdb "github.com/dgraph-io/badger/v4"
	"github.com/ternarybob/arbor"

	internalbadger "github.com/linksmith/chrono-scraper-sub002/internal/storage/badger"

	"github.com/linksmith/chrono-scraper-sub002/internal/interfaces"
	"github.com/linksmith/chrono-scraper-sub002/internal/models"
)

// BadgerSink implements interfaces.SearchSink over the same badger database
// that hosts the Dual-Write Synchronizer's lease store, keyed by page id.
type BadgerSink struct {
	db     *internalbadger.DB
	logger arbor.ILogger
}

var _ interfaces.SearchSink = (*BadgerSink)(nil)

// NewBadgerSink wraps a badger DB as a SearchSink.
func NewBadgerSink(db *internalbadger.DB, logger arbor.ILogger) *BadgerSink {
	return &BadgerSink{db: db, logger: logger}
}

func pageKey(pageID string) []byte {
	return []byte("page:" + pageID)
}

// IndexPage writes (or overwrites) the search-sink copy of a Page.
func (s *BadgerSink) IndexPage(ctx context.Context, page *models.Page) error {
	payload, err := json.Marshal(page)
	if err != nil {
		return fmt.Errorf("marshaling page for search sink: %w", err)
	}

	err = s.db.Store().Update(func(txn *badgerdb.Txn) error {
		return txn.Set(pageKey(page.ID), payload)
	})
	if err != nil {
		return fmt.Errorf("indexing page %s: %w", page.ID, err)
	}
	return nil
}

// DeletePage removes a Page from the search sink.
func (s *BadgerSink) DeletePage(ctx context.Context, pageID string) error {
	err := s.db.Store().Update(func(txn *badgerdb.Txn) error {
		err := txn.Delete(pageKey(pageID))
		if errors.Is(err, badgerdb.ErrKeyNotFound) {
			return nil
		}
		return err
	})
	if err != nil {
		return fmt.Errorf("deleting page %s from search sink: %w", pageID, err)
	}
	return nil
}

// Count returns the number of pages currently indexed in the search sink.
func (s *BadgerSink) Count(ctx context.Context) (int64, error) {
	var count int64
	err := s.db.Store().View(func(txn *badgerdb.Txn) error {
		opts := badgerdb.DefaultIteratorOptions
		opts.PrefetchValues = false
		opts.Prefix = []byte("page:")
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.ValidForPrefix(opts.Prefix); it.Next() {
			count++
		}
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("counting search sink pages: %w", err)
	}
	return count, nil
}

// Get fetches the search-sink copy of a Page by id, used by the Consistency
// Validator's row-hash comparison pass.
func (s *BadgerSink) Get(ctx context.Context, pageID string) (*models.Page, bool, error) {
	var page models.Page
	err := s.db.Store().View(func(txn *badgerdb.Txn) error {
		item, err := txn.Get(pageKey(pageID))
		if err != nil {
			return err
		}
		return item.Value(func(v []byte) error {
			return json.Unmarshal(v, &page)
		})
	})
	if errors.Is(err, badgerdb.ErrKeyNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("getting page %s from search sink: %w", pageID, err)
	}
	return &page, true, nil
}
