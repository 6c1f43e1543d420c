// Package dispatch fans a single query out to every enabled source
// adapter concurrently, enforcing a per-source sub-deadline, rate limit,
// circuit breaker and retry policy around each call, and collects
// whatever results come back before the overall deadline expires.
package dispatch

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/thetangstr/vehiclesearch/domain"
	"github.com/thetangstr/vehiclesearch/infrastructure/breaker"
	"github.com/thetangstr/vehiclesearch/infrastructure/ratelimit"
	"github.com/thetangstr/vehiclesearch/infrastructure/retrypolicy"
)

// SourceResult is one adapter's contribution to a fan-out.
type SourceResult struct {
	Source   string
	Listings []domain.Listing
	Meta     domain.SourceMeta
	Err      error
	Elapsed  time.Duration
}

// Registered pairs an adapter with its per-operation policies.
type Registered struct {
	Adapter      domain.SourceAdapter
	RetryPolicy  retrypolicy.Policy
	SubDeadline  time.Duration
}

// Engine owns the shared rate limiter and breaker registry every
// registered adapter call is routed through.
type Engine struct {
	limiter *ratelimit.Limiter
	cb      *breaker.Registry

	mu      sync.RWMutex
	sources map[string]Registered
}

// NewEngine builds a dispatch engine against a shared limiter and
// breaker registry, normally one process-wide instance of each.
func NewEngine(limiter *ratelimit.Limiter, cb *breaker.Registry) *Engine {
	return &Engine{
		limiter: limiter,
		cb:      cb,
		sources: make(map[string]Registered),
	}
}

// Register adds or replaces an adapter in the dispatch set.
func (e *Engine) Register(r Registered) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if r.RetryPolicy.MaxAttempts == 0 {
		r.RetryPolicy = retrypolicy.DefaultPolicy()
	}
	if r.SubDeadline == 0 {
		r.SubDeadline = 4 * time.Second
	}
	e.sources[r.Adapter.Tag()] = r
}

// Deregister removes an adapter from the dispatch set.
func (e *Engine) Deregister(tag string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	delete(e.sources, tag)
}

// Tags lists the currently registered source tags.
func (e *Engine) Tags() []string {
	e.mu.RLock()
	defer e.mu.RUnlock()
	tags := make([]string, 0, len(e.sources))
	for tag := range e.sources {
		tags = append(tags, tag)
	}
	return tags
}

func (e *Engine) snapshot() []Registered {
	e.mu.RLock()
	defer e.mu.RUnlock()
	out := make([]Registered, 0, len(e.sources))
	for _, r := range e.sources {
		out = append(out, r)
	}
	return out
}

// Dispatch fans the query out to every registered adapter concurrently.
// Each adapter call gets its own sub-deadline bounded by both its
// configured SubDeadline and ctx's own deadline, whichever is tighter.
// A source whose breaker is open, whose rate limiter is exhausted, or
// that exhausts its retry policy contributes a SourceResult with Err
// set rather than aborting the whole fan-out.
func (e *Engine) Dispatch(ctx context.Context, query string, filters domain.FilterSet, page, perPage int) []SourceResult {
	registered := e.snapshot()
	results := make([]SourceResult, len(registered))

	var wg sync.WaitGroup
	wg.Add(len(registered))
	for i, r := range registered {
		go func(i int, r Registered) {
			defer wg.Done()
			results[i] = e.call(ctx, r, query, filters, page, perPage)
		}(i, r)
	}
	wg.Wait()

	return results
}

func (e *Engine) call(ctx context.Context, r Registered, query string, filters domain.FilterSet, page, perPage int) SourceResult {
	tag := r.Adapter.Tag()
	start := time.Now()

	subCtx, cancel := context.WithTimeout(ctx, r.SubDeadline)
	defer cancel()

	var listings []domain.Listing
	var meta domain.SourceMeta

	err := retrypolicy.Do(subCtx, r.RetryPolicy, func(attemptCtx context.Context) error {
		return e.cb.Call(attemptCtx, tag, "search", func(cbCtx context.Context) error {
			if _, lerr := e.limiter.Acquire(cbCtx, tag, "search", r.SubDeadline); lerr != nil {
				return ratelimit.AsAdapterError(tag, "search", lerr)
			}
			ls, m, serr := r.Adapter.Search(cbCtx, query, filters, page, perPage)
			if serr != nil {
				return serr
			}
			listings, meta = ls, m
			return nil
		})
	})

	elapsed := time.Since(start)
	if err != nil {
		log.Warn().Str("source", tag).Err(err).Dur("elapsed", elapsed).Msg("source dispatch failed")
	}

	return SourceResult{
		Source:   tag,
		Listings: listings,
		Meta:     meta,
		Err:      err,
		Elapsed:  elapsed,
	}
}

// GetDetails routes a single detail lookup to the named source, applying
// the same retry and breaker policy as Dispatch.
func (e *Engine) GetDetails(ctx context.Context, source, sourceListingID string) (*domain.Listing, error) {
	e.mu.RLock()
	r, ok := e.sources[source]
	e.mu.RUnlock()
	if !ok {
		return nil, domain.NewAdapterError(source, "get_details", domain.ErrKindNotFound, domain.ErrNotFound)
	}

	subCtx, cancel := context.WithTimeout(ctx, r.SubDeadline)
	defer cancel()

	var listing *domain.Listing
	err := retrypolicy.Do(subCtx, r.RetryPolicy, func(attemptCtx context.Context) error {
		return e.cb.Call(attemptCtx, source, "get_details", func(cbCtx context.Context) error {
			if _, lerr := e.limiter.Acquire(cbCtx, source, "get_details", r.SubDeadline); lerr != nil {
				return ratelimit.AsAdapterError(source, "get_details", lerr)
			}
			l, gerr := r.Adapter.GetDetails(cbCtx, sourceListingID)
			if gerr != nil {
				return gerr
			}
			listing = l
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	return listing, nil
}

// HealthSnapshot probes every registered adapter's Health concurrently.
func (e *Engine) HealthSnapshot(ctx context.Context) map[string]domain.Health {
	registered := e.snapshot()
	out := make(map[string]domain.Health, len(registered))
	var mu sync.Mutex
	var wg sync.WaitGroup
	wg.Add(len(registered))
	for _, r := range registered {
		go func(r Registered) {
			defer wg.Done()
			h, err := r.Adapter.Health(ctx)
			if err != nil {
				h = domain.Health{State: domain.HealthUnhealthy, Message: err.Error()}
			}
			mu.Lock()
			out[r.Adapter.Tag()] = h
			mu.Unlock()
		}(r)
	}
	wg.Wait()
	return out
}
