// Package badger backs the Dual-Write Synchronizer's claim/lease store with
// a raw github.com/dgraph-io/badger/v4 database: a single outbox intent must
// never be applied to the search sink by two workers at once, and badger's
// native per-key TTL gives a lease that self-expires if a worker dies holding
// it, without a background sweeper.
package badger

import (
	"fmt"
	"os"

	badgerdb "github.com/dgraph-io/badger/v4"
	"github.com/ternarybob/arbor"

	"github.com/linksmith/chrono-scraper-sub002/internal/common"
)

// DB wraps a badger.DB connection, mirroring this codebase's SQLiteDB
// connection-lifecycle shape (open, expose, close).
type DB struct {
	store  *badgerdb.DB
	logger arbor.ILogger
	config *common.BadgerConfig
}

// New opens (or creates) the badger database at config.Path.
func New(logger arbor.ILogger, config *common.BadgerConfig) (*DB, error) {
	if config.ResetOnStartup {
		if _, err := os.Stat(config.Path); err == nil {
			logger.Debug().Str("path", config.Path).Msg("Deleting existing badger database (reset_on_startup=true)")
			if err := os.RemoveAll(config.Path); err != nil {
				logger.Warn().Err(err).Str("path", config.Path).Msg("Failed to delete badger database directory")
			}
		}
	}

	opts := badgerdb.DefaultOptions(config.Path).WithLogger(nil)
	store, err := badgerdb.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("opening badger database at %s: %w", config.Path, err)
	}

	logger.Info().Str("path", config.Path).Msg("Badger database initialized")
	return &DB{store: store, logger: logger, config: config}, nil
}

// Store exposes the underlying *badger.DB for callers that need a raw transaction.
func (d *DB) Store() *badgerdb.DB {
	return d.store
}

// Close closes the badger database.
func (d *DB) Close() error {
	if d.store != nil {
		return d.store.Close()
	}
	return nil
}
