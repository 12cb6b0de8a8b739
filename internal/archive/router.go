package archive

import (
	"context"
	"fmt"
	"time"

	"github.com/ternarybob/arbor"

	"github.com/linksmith/chrono-scraper-sub002/internal/circuitbreaker"
	"github.com/linksmith/chrono-scraper-sub002/internal/common"
	"github.com/linksmith/chrono-scraper-sub002/internal/errkind"
)

// FallbackPolicy selects how the Router behaves when the primary strategy fails.
type FallbackPolicy string

const (
	FallbackImmediate         FallbackPolicy = "immediate"
	FallbackRetryThenFallback FallbackPolicy = "retry_then_fallback"
	FallbackCircuitBreaker    FallbackPolicy = "circuit_breaker"
)

// Router orders strategies by priority (first registered = primary) and
// applies a project's fallback policy across them. Each strategy is guarded
// by its own Breaker so one degraded source cannot starve the others.
type Router struct {
	strategies []Strategy
	breakers   map[string]*circuitbreaker.Breaker
	retry      *RetryPolicy
	policy     FallbackPolicy
	hybrid     bool
	logger     arbor.ILogger
}

// NewRouter builds a Router over strategies in priority order (strategies[0] is primary).
func NewRouter(strategies []Strategy, cfg common.ArchiveConfig, logger arbor.ILogger) *Router {
	breakers := make(map[string]*circuitbreaker.Breaker, len(strategies))
	for _, s := range strategies {
		breakers[s.Name()] = circuitbreaker.New(s.Name(), cfg.CircuitBreaker, logger)
	}

	retry := NewRetryPolicy()
	retry.MaxAttempts = cfg.MaxRetries
	retry.InitialBackoff = cfg.InitialBackoff
	retry.MaxBackoff = cfg.MaxBackoff

	return &Router{
		strategies: strategies,
		breakers:   breakers,
		retry:      retry,
		policy:     FallbackPolicy(cfg.FallbackPolicy),
		hybrid:     cfg.HybridMergeEnabled,
		logger:     logger,
	}
}

// ProjectPolicy is the subset of a Project's archive_config NewRouterForProject
// resolves into Router behavior, decoupled from the models package so archive
// doesn't need to import it just for this one construction path.
type ProjectPolicy struct {
	FallbackPolicy     FallbackPolicy
	Hybrid             bool
	MaxRetries         int
	InitialBackoff     time.Duration
	MaxBackoff         time.Duration
	ExponentialBackoff bool
}

// NewRouterForProject builds a Router scoped to one project's resolved
// archive policy, reusing the process's circuit breaker tuning (breaker
// thresholds are an operational concern, not a per-project one) but
// overriding the fallback policy and retry/backoff schedule per §6.1's
// archive_config.
func NewRouterForProject(strategies []Strategy, policy ProjectPolicy, breakerCfg common.CircuitBreakerConfig, logger arbor.ILogger) *Router {
	breakers := make(map[string]*circuitbreaker.Breaker, len(strategies))
	for _, s := range strategies {
		breakers[s.Name()] = circuitbreaker.New(s.Name(), breakerCfg, logger)
	}

	retry := NewRetryPolicy()
	// max_retries counts retries after the first attempt.
	retry.MaxAttempts = policy.MaxRetries + 1
	retry.InitialBackoff = policy.InitialBackoff
	retry.MaxBackoff = policy.MaxBackoff
	if !policy.ExponentialBackoff {
		retry.BackoffMultiplier = 1.0
	}

	return &Router{
		strategies: strategies,
		breakers:   breakers,
		retry:      retry,
		policy:     policy.FallbackPolicy,
		hybrid:     policy.Hybrid,
		logger:     logger,
	}
}

// Discover runs Discover across strategies per the configured fallback
// policy and returns the combined, deduplicated result.
func (r *Router) Discover(ctx context.Context, req DiscoverRequest) ([]Snapshot, error) {
	if len(r.strategies) == 0 {
		return nil, errkind.Wrap(errkind.Validation, fmt.Errorf("no archive strategies configured"))
	}

	if r.hybrid {
		return r.discoverParallelMerge(ctx, req)
	}

	return r.discoverPrimaryFallback(ctx, req)
}

// discoverPrimaryFallback tries strategies in priority order, stopping at the
// first one that returns without error (an empty result counts as success,
// and the remaining strategies are not tried). Behavior branches on
// the resolved FallbackPolicy per spec §4.3:
//   - immediate: fall back to the next strategy on any error.
//   - retry_then_fallback: callDiscover already retried the failing strategy
//     per r.retry before returning; fall back once that's exhausted.
//   - circuit_breaker: fall back only when the strategy's own breaker is open;
//     any other error is surfaced immediately without trying the rest.
func (r *Router) discoverPrimaryFallback(ctx context.Context, req DiscoverRequest) ([]Snapshot, error) {
	var lastErr error

	for i, strat := range r.strategies {
		snaps, err := r.callDiscover(ctx, strat, req)
		if err == nil {
			return snaps, nil
		}
		lastErr = err

		if r.policy == FallbackCircuitBreaker && !errkind.Is(err, errkind.CircuitOpen) {
			return nil, fmt.Errorf("archive strategy %s failed: %w", strat.Name(), err)
		}

		if i < len(r.strategies)-1 {
			r.logger.Warn().Str("strategy", strat.Name()).Err(err).Msg("archive strategy failed, trying next")
		}
	}

	return nil, fmt.Errorf("all archive strategies failed: %w", lastErr)
}

// discoverParallelMerge runs every strategy concurrently and merges results,
// used when ArchiveConfig.HybridMergeEnabled is set (§9 open question: parallel
// completion-mode merging).
func (r *Router) discoverParallelMerge(ctx context.Context, req DiscoverRequest) ([]Snapshot, error) {
	type result struct {
		snaps []Snapshot
		err   error
	}

	results := make(chan result, len(r.strategies))
	for _, strat := range r.strategies {
		strat := strat
		go func() {
			snaps, err := r.callDiscover(ctx, strat, req)
			results <- result{snaps: snaps, err: err}
		}()
	}

	var merged []Snapshot
	var lastErr error
	seen := make(map[string]bool)

	for i := 0; i < len(r.strategies); i++ {
		res := <-results
		if res.err != nil {
			lastErr = res.err
			continue
		}
		for _, s := range res.snaps {
			key := s.URL + "|" + s.SnapshotTimestamp.String()
			if !seen[key] {
				seen[key] = true
				merged = append(merged, s)
			}
		}
	}

	if len(merged) == 0 && lastErr != nil {
		return nil, fmt.Errorf("all archive strategies failed in hybrid merge: %w", lastErr)
	}

	return merged, nil
}

// callDiscover runs one strategy's Discover through its breaker, retrying
// per this router's retry policy only when the resolved fallback policy is
// retry_then_fallback (§4.3: the other two policies either fall back on any
// error or don't retry at all). The strategy's own errkind classification is
// preserved rather than overwritten, so the Router's fallback-policy checks
// and isRetryableError see the real error class.
func (r *Router) callDiscover(ctx context.Context, strat Strategy, req DiscoverRequest) ([]Snapshot, error) {
	breaker := r.breakers[strat.Name()]

	call := func() ([]Snapshot, error) {
		res, err := breaker.Execute(ctx, func(ctx context.Context) (interface{}, error) {
			return strat.Discover(ctx, req)
		})
		if err != nil {
			return nil, err
		}
		return res.([]Snapshot), nil
	}

	if r.policy != FallbackRetryThenFallback {
		return call()
	}

	var snaps []Snapshot
	err := r.retry.ExecuteWithRetry(ctx, r.logger, func() error {
		s, err := call()
		snaps = s
		return err
	})
	return snaps, err
}

// Fetch retrieves one snapshot's content, using the strategy that discovered
// it; if that strategy cannot fetch content directly (e.g. Common Crawl) it
// tries every other strategy in priority order, outside their breakers. The
// router's fallback policy does not apply to Fetch.
func (r *Router) Fetch(ctx context.Context, snap Snapshot) ([]byte, string, error) {
	for _, strat := range r.strategies {
		if strat.Name() != snap.ArchiveSource {
			continue
		}
		breaker := r.breakers[strat.Name()]
		res, err := breaker.Execute(ctx, func(ctx context.Context) (interface{}, error) {
			body, mime, ferr := strat.Fetch(ctx, snap)
			if ferr != nil {
				return nil, ferr
			}
			return fetchResult{body: body, mime: mime}, nil
		})
		if err == nil {
			fr := res.(fetchResult)
			return fr.body, fr.mime, nil
		}
		r.logger.Warn().Str("strategy", strat.Name()).Err(err).Msg("fetch failed, trying fallback strategy")
	}

	for _, strat := range r.strategies {
		if strat.Name() == snap.ArchiveSource {
			continue
		}
		body, mime, err := strat.Fetch(ctx, snap)
		if err == nil {
			return body, mime, nil
		}
	}

	return nil, "", errkind.Wrap(errkind.SourcePermanent, fmt.Errorf("no strategy could fetch %s", snap.URL))
}

type fetchResult struct {
	body []byte
	mime string
}

// BreakerState reports the current circuit state for a named strategy, used
// by the HTTP API's status surface.
func (r *Router) BreakerState(strategyName string) (circuitbreaker.State, bool) {
	b, ok := r.breakers[strategyName]
	if !ok {
		return "", false
	}
	return b.State(), true
}
