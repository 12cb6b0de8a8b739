// Package circuitbreaker wraps github.com/sony/gobreaker with the logging
// and configuration conventions this codebase uses elsewhere (structured
// arbor events, time.Duration config fields), giving each Archive Source
// strategy an independent breaker instance.
package circuitbreaker

import (
	"context"
	"fmt"
	"time"

	"github.com/sony/gobreaker"
	"github.com/ternarybob/arbor"

	"github.com/linksmith/chrono-scraper-sub002/internal/common"
	"github.com/linksmith/chrono-scraper-sub002/internal/errkind"
)

// State mirrors gobreaker.State under this package's own name so callers
// outside circuitbreaker never need to import gobreaker directly.
type State string

const (
	StateClosed   State = "closed"
	StateOpen     State = "open"
	StateHalfOpen State = "half_open"
)

// Breaker guards calls to a single archive source, tripping to open after a
// run of failures and probing for recovery via half-open trial requests.
type Breaker struct {
	name    string
	cb      *gobreaker.CircuitBreaker
	logger  arbor.ILogger
	timeout time.Duration
	maxTimeout time.Duration
	openCount  int
}

// New creates a Breaker named for the archive source it guards (used in logs
// and in the OnStateChange callback).
func New(name string, cfg common.CircuitBreakerConfig, logger arbor.ILogger) *Breaker {
	b := &Breaker{
		name:       name,
		logger:     logger,
		timeout:    cfg.BaseTimeout,
		maxTimeout: cfg.MaxTimeout,
	}

	settings := gobreaker.Settings{
		Name:        name,
		MaxRequests: cfg.MaxRequestsHalfOpen,
		Interval:    cfg.OpenInterval,
		Timeout:     cfg.BaseTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if counts.Requests < cfg.MinRequests {
				return false
			}
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			return failureRatio >= cfg.FailureThreshold
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn().
				Str("breaker", name).
				Str("from", from.String()).
				Str("to", to.String()).
				Msg("circuit breaker state change")
			if to == gobreaker.StateOpen {
				b.openCount++
			}
			if to == gobreaker.StateClosed {
				b.openCount = 0
			}
		},
	}

	b.cb = gobreaker.NewCircuitBreaker(settings)
	return b
}

// Execute runs fn through the breaker. When the breaker is open it returns an
// errkind.CircuitOpen error without calling fn.
func (b *Breaker) Execute(ctx context.Context, fn func(ctx context.Context) (interface{}, error)) (interface{}, error) {
	result, err := b.cb.Execute(func() (interface{}, error) {
		return fn(ctx)
	})
	if err != nil {
		if err == gobreaker.ErrOpenState || err == gobreaker.ErrTooManyRequests {
			return nil, errkind.Wrap(errkind.CircuitOpen,
				fmt.Errorf("circuit breaker %q is open: %w", b.name, err))
		}
		return result, err
	}
	return result, nil
}

// State reports the breaker's current state.
func (b *Breaker) State() State {
	switch b.cb.State() {
	case gobreaker.StateOpen:
		return StateOpen
	case gobreaker.StateHalfOpen:
		return StateHalfOpen
	default:
		return StateClosed
	}
}

// Counts exposes the breaker's rolling request/failure counters.
func (b *Breaker) Counts() gobreaker.Counts {
	return b.cb.Counts()
}

// NextTimeout returns an escalating reopen timeout for this breaker: the base
// timeout doubled once per consecutive trip, capped at maxTimeout. The value
// is only reported; the underlying gobreaker instance always waits the base
// timeout before moving from open to half-open.
func (b *Breaker) NextTimeout() time.Duration {
	timeout := b.timeout
	for i := 0; i < b.openCount; i++ {
		timeout *= 2
		if timeout > b.maxTimeout {
			return b.maxTimeout
		}
	}
	return timeout
}

// Reset clears the consecutive-trip count that NextTimeout escalates on. It
// does not change the breaker's open/half-open/closed state.
func (b *Breaker) Reset() {
	b.openCount = 0
}
