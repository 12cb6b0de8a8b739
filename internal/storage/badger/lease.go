package badger

import (
	"context"
	"errors"
	"fmt"
	"time"

	badgerdb "github.com/dgraph-io/badger/v4"
)

// ErrLeaseHeld is returned by Acquire when another worker already holds the
// lease and it has not yet expired.
var ErrLeaseHeld = errors.New("lease already held")

// LeaseStore hands out short-lived, self-expiring claims over dual-write
// outbox intents so two DrainPending workers never apply the same intent to
// the search sink concurrently.
type LeaseStore struct {
	db *DB
}

// NewLeaseStore wraps a badger DB as a LeaseStore.
func NewLeaseStore(db *DB) *LeaseStore {
	return &LeaseStore{db: db}
}

func leaseKey(intentID string) []byte {
	return []byte("lease:" + intentID)
}

// Acquire claims intentID for holder, valid for ttl. It fails with
// ErrLeaseHeld if a different holder's lease on the same intent is still
// live; re-acquiring with the same holder (e.g. a retry) always succeeds.
func (l *LeaseStore) Acquire(ctx context.Context, intentID, holder string, ttl time.Duration) error {
	return l.db.Store().Update(func(txn *badgerdb.Txn) error {
		item, err := txn.Get(leaseKey(intentID))
		if err == nil {
			var existing string
			if valErr := item.Value(func(v []byte) error {
				existing = string(v)
				return nil
			}); valErr != nil {
				return fmt.Errorf("reading existing lease: %w", valErr)
			}
			if existing != holder {
				return ErrLeaseHeld
			}
		} else if !errors.Is(err, badgerdb.ErrKeyNotFound) {
			return fmt.Errorf("checking existing lease: %w", err)
		}

		entry := badgerdb.NewEntry(leaseKey(intentID), []byte(holder)).WithTTL(ttl)
		if err := txn.SetEntry(entry); err != nil {
			return fmt.Errorf("setting lease: %w", err)
		}
		return nil
	})
}

// Release drops the lease early, e.g. after a successful apply, so a
// different worker need not wait out the TTL to pick up the next intent.
func (l *LeaseStore) Release(ctx context.Context, intentID, holder string) error {
	return l.db.Store().Update(func(txn *badgerdb.Txn) error {
		item, err := txn.Get(leaseKey(intentID))
		if errors.Is(err, badgerdb.ErrKeyNotFound) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("reading lease for release: %w", err)
		}

		var existing string
		if err := item.Value(func(v []byte) error {
			existing = string(v)
			return nil
		}); err != nil {
			return fmt.Errorf("reading lease value: %w", err)
		}
		if existing != holder {
			return nil // someone else's lease; nothing to release
		}

		if err := txn.Delete(leaseKey(intentID)); err != nil {
			return fmt.Errorf("deleting lease: %w", err)
		}
		return nil
	})
}
