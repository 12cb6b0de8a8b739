// Package dualwrite drains the outbox of pending writes destined for the
// search sink, applying them under a badger-backed lease so two drain workers
// never double-apply the same intent. Within one drain batch, an intent for an
// entity that already had a newer intent applied is marked conflicted instead
// of applied; payload_hash is recorded on each intent but not compared here.
package dualwrite

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/cespare/xxhash/v2"
	"github.com/ternarybob/arbor"

	internalbadger "github.com/linksmith/chrono-scraper-sub002/internal/storage/badger"

	"github.com/linksmith/chrono-scraper-sub002/internal/common"
	"github.com/linksmith/chrono-scraper-sub002/internal/errkind"
	"github.com/linksmith/chrono-scraper-sub002/internal/interfaces"
	"github.com/linksmith/chrono-scraper-sub002/internal/models"
)

// leaseTTL bounds how long a single DrainPending worker may hold an intent
// before another worker is allowed to reclaim it, guarding against a crash
// mid-apply.
const leaseTTL = 30 * time.Second

// Synchronizer implements interfaces.DualWriteSynchronizer over the outbox
// (DualWriteStorage), the search sink it applies intents to, and a badger
// lease store guarding concurrent drains.
type Synchronizer struct {
	storage     interfaces.DualWriteStorage
	sink        interfaces.SearchSink
	deadLetters interfaces.DeadLetterStorage
	leases      *internalbadger.LeaseStore
	workerID    string
	maxRetries  int
	retryDelay  time.Duration
	logger      arbor.ILogger
}

var _ interfaces.DualWriteSynchronizer = (*Synchronizer)(nil)

// New constructs a Synchronizer from DualWriteConfig.
func New(storage interfaces.DualWriteStorage, sink interfaces.SearchSink, deadLetters interfaces.DeadLetterStorage, leases *internalbadger.LeaseStore, cfg common.DualWriteConfig, workerID string, logger arbor.ILogger) (*Synchronizer, error) {
	delay, err := time.ParseDuration(cfg.RetryBackoff)
	if err != nil {
		return nil, fmt.Errorf("parsing dual_write retry_backoff: %w", err)
	}

	return &Synchronizer{
		storage:     storage,
		sink:        sink,
		deadLetters: deadLetters,
		leases:      leases,
		workerID:    workerID,
		maxRetries:  cfg.MaxRetries,
		retryDelay:  delay,
		logger:      logger,
	}, nil
}

// Submit appends a DualWriteIntent to the outbox. For ConsistencyStrong,
// Submit also applies the intent inline before returning, so the caller
// observes the search sink already reflecting the write.
func (s *Synchronizer) Submit(ctx context.Context, entityType, entityID string, payload []byte, level models.ConsistencyLevel) (*models.DualWriteIntent, error) {
	intent := &models.DualWriteIntent{
		EntityType:       entityType,
		EntityID:         entityID,
		Payload:          payload,
		PayloadHash:      hashPayload(payload),
		ConsistencyLevel: level,
		Status:           models.IntentStatusPending,
		SubmittedAt:      time.Now().UTC(),
	}

	if err := s.storage.CreateIntent(ctx, intent); err != nil {
		return nil, fmt.Errorf("creating dual-write intent: %w", err)
	}

	if level == models.ConsistencyStrong {
		if err := s.apply(ctx, intent); err != nil {
			return intent, fmt.Errorf("applying strong-consistency intent: %w", err)
		}
	}

	return intent, nil
}

// DrainPending applies up to batchSize pending intents, oldest first,
// returning how many were processed (applied, conflicted, failed, or
// dead-lettered; not counting ones skipped because another worker held the
// lease).
func (s *Synchronizer) DrainPending(ctx context.Context, batchSize int) (int, error) {
	intents, err := s.storage.ListPending(ctx, batchSize)
	if err != nil {
		return 0, fmt.Errorf("listing pending intents: %w", err)
	}

	// Tracks, within this batch, the newest submission time per entity that
	// has already been applied — an older pending intent for the same
	// entity loses the race and is marked conflicted rather than clobbering
	// the sink with stale content.
	appliedAt := make(map[string]time.Time, len(intents))

	processed := 0
	for _, intent := range intents {
		if err := s.leases.Acquire(ctx, intent.ID, s.workerID, leaseTTL); err != nil {
			continue // another worker holds this intent right now
		}

		if newer, ok := appliedAt[intent.EntityID]; ok && newer.After(intent.SubmittedAt) {
			s.markConflict(ctx, intent)
			_ = s.leases.Release(ctx, intent.ID, s.workerID)
			processed++
			continue
		}

		if err := s.apply(ctx, intent); err != nil {
			s.logger.Warn().Err(err).Str("intent_id", intent.ID).Msg("Failed to apply dual-write intent")
		} else {
			appliedAt[intent.EntityID] = intent.SubmittedAt
		}
		_ = s.leases.Release(ctx, intent.ID, s.workerID)
		processed++
	}

	return processed, nil
}

// apply decodes the intent's payload as a Page and writes it to the search
// sink once. A sink failure increments the intent's attempt count and marks
// it failed, or dead-letters it once the count reaches MaxRetries; apply
// itself does not retry.
func (s *Synchronizer) apply(ctx context.Context, intent *models.DualWriteIntent) error {
	var page models.Page
	if err := json.Unmarshal(intent.Payload, &page); err != nil {
		return s.deadLetter(ctx, intent, fmt.Errorf("decoding intent payload: %w", err))
	}

	if err := s.sink.IndexPage(ctx, &page); err != nil {
		intent.AttemptCount++
		intent.LastError = err.Error()

		if intent.AttemptCount >= s.maxRetries {
			return s.deadLetter(ctx, intent, err)
		}

		intent.Status = models.IntentStatusFailed
		if updErr := s.storage.UpdateIntent(ctx, intent); updErr != nil {
			return fmt.Errorf("recording intent failure: %w", updErr)
		}
		return errkind.Wrap(errkind.PersistenceRetriable, err)
	}

	now := time.Now().UTC()
	intent.Status = models.IntentStatusApplied
	intent.CompletedAt = &now
	if err := s.storage.UpdateIntent(ctx, intent); err != nil {
		return fmt.Errorf("recording intent success: %w", err)
	}
	return nil
}

func (s *Synchronizer) markConflict(ctx context.Context, intent *models.DualWriteIntent) {
	intent.Status = models.IntentStatusConflict
	now := time.Now().UTC()
	intent.CompletedAt = &now
	if err := s.storage.UpdateIntent(ctx, intent); err != nil {
		s.logger.Warn().Err(err).Str("intent_id", intent.ID).Msg("Failed to record dual-write conflict")
	}
}

func (s *Synchronizer) deadLetter(ctx context.Context, intent *models.DualWriteIntent, cause error) error {
	intent.Status = models.IntentStatusDead
	intent.LastError = cause.Error()
	now := time.Now().UTC()
	intent.CompletedAt = &now
	if err := s.storage.UpdateIntent(ctx, intent); err != nil {
		s.logger.Warn().Err(err).Str("intent_id", intent.ID).Msg("Failed to mark intent dead")
	}

	dl := &models.DeadLetter{
		Source:       "dual_write",
		ReferenceID:  intent.ID,
		Reason:       cause.Error(),
		Payload:      intent.Payload,
		AttemptCount: intent.AttemptCount,
	}
	if err := s.deadLetters.CreateDeadLetter(ctx, dl); err != nil {
		s.logger.Error().Err(err).Str("intent_id", intent.ID).Msg("Failed to record dual-write dead letter")
	}
	return fmt.Errorf("dual-write intent %s dead-lettered: %w", intent.ID, cause)
}

// hashPayload computes the payload_hash stored on each intent: a fast,
// non-cryptographic digest, since it only needs to detect divergence, not
// resist tampering.
func hashPayload(payload []byte) string {
	return fmt.Sprintf("%x", xxhash.Sum64(payload))
}
