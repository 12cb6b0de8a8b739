package archive

import (
	"context"
	"errors"
	"math/rand"
	"net"
	"time"

	"github.com/ternarybob/arbor"

	"github.com/linksmith/chrono-scraper-sub002/internal/errkind"
)

// RetryPolicy defines retry behavior with exponential backoff, ported from
// this codebase's crawler retry convention and generalized to wrap any
// Strategy call rather than just an HTTP round trip.
type RetryPolicy struct {
	MaxAttempts       int
	InitialBackoff    time.Duration
	MaxBackoff        time.Duration
	BackoffMultiplier float64
}

// NewRetryPolicy creates a default retry policy.
func NewRetryPolicy() *RetryPolicy {
	return &RetryPolicy{
		MaxAttempts:       3,
		InitialBackoff:    time.Second,
		MaxBackoff:        30 * time.Second,
		BackoffMultiplier: 2.0,
	}
}

// CalculateBackoff calculates the backoff duration with exponential backoff and jitter.
func (p *RetryPolicy) CalculateBackoff(attempt int) time.Duration {
	backoff := float64(p.InitialBackoff) * pow(p.BackoffMultiplier, float64(attempt))
	if backoff > float64(p.MaxBackoff) {
		backoff = float64(p.MaxBackoff)
	}

	jitter := backoff * 0.25 * (rand.Float64()*2 - 1)
	backoff += jitter
	if backoff < 0 {
		backoff = float64(p.InitialBackoff)
	}

	return time.Duration(backoff)
}

// ExecuteWithRetry wraps a function with a retry loop, retrying only on
// errors classified as retriable by isRetryableError.
func (p *RetryPolicy) ExecuteWithRetry(ctx context.Context, logger arbor.ILogger, fn func() error) error {
	var lastErr error

	for attempt := 0; attempt < p.MaxAttempts; attempt++ {
		lastErr = fn()
		if lastErr == nil {
			return nil
		}

		if !isRetryableError(lastErr) {
			logger.Debug().Int("attempt", attempt+1).Err(lastErr).Msg("non-retryable error, failing immediately")
			return lastErr
		}

		if attempt < p.MaxAttempts-1 {
			backoff := p.CalculateBackoff(attempt)
			logger.Debug().Int("attempt", attempt+1).Err(lastErr).Dur("backoff", backoff).Msg("retrying after backoff")

			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(backoff):
			}
		}
	}

	logger.Warn().Int("max_attempts", p.MaxAttempts).Err(lastErr).Msg("all retry attempts exhausted")
	return lastErr
}

// isRetryableError consults the strategy's own errkind classification first
// (set from the archive source's HTTP status, see classifyStatus), falling
// back to Go's network-error heuristics only for errors a strategy left
// unclassified (e.g. a raw transport failure that never reached a status
// code).
func isRetryableError(err error) bool {
	if err == nil {
		return false
	}

	if _, ok := errkind.Of(err); ok {
		return errkind.Retriable(err)
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return netErr.Timeout()
	}

	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return true
	}

	return false
}

func pow(base, exp float64) float64 {
	result := 1.0
	for i := 0; i < int(exp); i++ {
		result *= base
	}
	return result
}
