// Package scheduler drives the two background reconciliation loops that
// keep the search sink eventually consistent with the primary store: the
// Consistency Validator's periodic audit (cron-scheduled) and the CDC
// Bridge's changelog poll plus the Dual-Write Synchronizer's outbox drain
// (both ticker-driven, since their cadence is a plain interval rather than a
// cron expression).
package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/ternarybob/arbor"

	"github.com/linksmith/chrono-scraper-sub002/internal/common"
	"github.com/linksmith/chrono-scraper-sub002/internal/interfaces"
)

// drainBatchSize bounds how many outbox intents one drain pass applies.
const drainBatchSize = 200

// Scheduler owns the cron instance and ticker loops for the consistency,
// CDC, and dual-write drain background jobs.
type Scheduler struct {
	cfg         *common.Config
	cdc         interfaces.CDCBridge
	consistency interfaces.ConsistencyValidator
	dualWrite   interfaces.DualWriteSynchronizer
	logger      arbor.ILogger

	cronRunner   *cron.Cron
	cdcInterval  time.Duration
	cancel       context.CancelFunc
}

// New builds a Scheduler from configuration, parsing the CDC poll interval
// up front so a bad duration string fails fast at startup rather than on the
// first tick.
func New(cfg *common.Config, bridge interfaces.CDCBridge, validator interfaces.ConsistencyValidator, dualWrite interfaces.DualWriteSynchronizer, logger arbor.ILogger) (*Scheduler, error) {
	interval, err := time.ParseDuration(cfg.CDC.PollInterval)
	if err != nil {
		return nil, fmt.Errorf("parsing cdc poll_interval: %w", err)
	}

	return &Scheduler{
		cfg:         cfg,
		cdc:         bridge,
		consistency: validator,
		dualWrite:   dualWrite,
		logger:      logger,
		cdcInterval: interval,
	}, nil
}

// Start launches the cron-scheduled consistency check and the ticker-driven
// CDC/drain loops. It returns immediately; every loop runs in its own
// goroutine bound to ctx.
func (s *Scheduler) Start(ctx context.Context) {
	runCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel

	if s.cfg.Consistency.Enabled {
		s.cronRunner = cron.New()
		if _, err := s.cronRunner.AddFunc(s.cfg.Consistency.Schedule, func() {
			s.runConsistencyCheck(runCtx)
		}); err != nil {
			s.logger.Warn().Err(err).Str("schedule", s.cfg.Consistency.Schedule).Msg("invalid consistency schedule, periodic validation disabled")
		} else {
			s.cronRunner.Start()
			s.logger.Info().Str("schedule", s.cfg.Consistency.Schedule).Msg("Consistency validator scheduled")
		}
	}

	if s.cfg.CDC.Enabled {
		go s.runLoop(runCtx, s.cdcInterval, "cdc_reconcile", func(ctx context.Context) error {
			return s.cdc.Reconcile(ctx)
		})
	}

	// The dual-write drain sweeps up eventual/weak-consistency intents that
	// Submit did not apply inline; it shares the CDC loop's cadence since both
	// are eventual-consistency reconciliation passes over the same outbox.
	go s.runLoop(runCtx, s.cdcInterval, "dual_write_drain", func(ctx context.Context) error {
		processed, err := s.dualWrite.DrainPending(ctx, drainBatchSize)
		if err == nil && processed > 0 {
			s.logger.Debug().Int("processed", processed).Msg("drained dual-write outbox intents")
		}
		return err
	})
}

// Stop halts the cron runner and every ticker loop.
func (s *Scheduler) Stop() {
	if s.cronRunner != nil {
		cronCtx := s.cronRunner.Stop()
		<-cronCtx.Done()
	}
	if s.cancel != nil {
		s.cancel()
	}
}

func (s *Scheduler) runConsistencyCheck(ctx context.Context) {
	result, err := s.consistency.Validate(ctx, "page")
	if err != nil {
		s.logger.Warn().Err(err).Msg("scheduled consistency check failed")
		return
	}
	s.logger.Info().
		Float64("score", result.ConsistencyScore).
		Int64("mismatches", result.Mismatches).
		Msg("consistency check complete")
}

func (s *Scheduler) runLoop(ctx context.Context, interval time.Duration, name string, fn func(context.Context) error) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := fn(ctx); err != nil {
				s.logger.Warn().Err(err).Str("loop", name).Msg("scheduled reconciliation pass failed")
			}
		}
	}
}
