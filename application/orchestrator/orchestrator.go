// Package orchestrator implements the top-level Search entry point:
// query preprocessing, cached-and-local lookups, live dispatch to every
// configured source, dedup/merge, relevance scoring, and pagination,
// assembled into one domain.SearchResponse.
package orchestrator

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/thetangstr/vehiclesearch/application/dedup"
	"github.com/thetangstr/vehiclesearch/application/preprocessor"
	"github.com/thetangstr/vehiclesearch/application/scoring"
	"github.com/thetangstr/vehiclesearch/domain"
	"github.com/thetangstr/vehiclesearch/infrastructure/adapters/local"
	"github.com/thetangstr/vehiclesearch/infrastructure/cache"
	"github.com/thetangstr/vehiclesearch/infrastructure/index"
	"github.com/thetangstr/vehiclesearch/internal/dispatch"
)

// Orchestrator composes every application-layer concern behind the one
// Search and GetDetails entry points the transport layer calls.
type Orchestrator struct {
	engine         *dispatch.Engine
	localIndex     index.Store
	localAdapter   domain.SourceAdapter
	cache          *cache.Cache
	scorer         *scoring.Scorer
	sourcePriority map[string]int
	deadline       time.Duration
}

// New builds an Orchestrator. sourcePriority is typically
// Config.Sources.Priority, loaded once at startup. The local index is
// queried through local.Adapter, the same domain.SourceAdapter contract
// every upstream implements, so it is never dispatched through the
// rate-limited/breaker-guarded engine path a remote upstream needs.
func New(engine *dispatch.Engine, localIndex index.Store, c *cache.Cache, weights scoring.Weights, sourcePriority map[string]int, deadline time.Duration) *Orchestrator {
	if deadline <= 0 {
		deadline = 8 * time.Second
	}
	return &Orchestrator{
		engine:         engine,
		localIndex:     localIndex,
		localAdapter:   local.New(localIndex),
		cache:          c,
		scorer:         scoring.NewScorer(weights),
		sourcePriority: sourcePriority,
		deadline:       deadline,
	}
}

func (o *Orchestrator) priorityOf(source string) int {
	if p, ok := o.sourcePriority[source]; ok {
		return p
	}
	return 1000
}

// Search runs a full federated search: preprocess the query, serve from
// cache when possible, otherwise query the local index and fan the
// residual query out to every live source, merge and rank the combined
// result set, and cache the page before returning it.
func (o *Orchestrator) Search(ctx context.Context, req domain.SearchRequest) (*domain.SearchResponse, error) {
	start := time.Now()

	pre := preprocessor.Process(req.Query)
	filters := pre.Filters.Merge(req.Filters)

	if err := validateFilters(filters, start); err != nil {
		return nil, err
	}

	if !req.Deadline.IsZero() && !req.Deadline.After(start) {
		return o.deadlineExpiredResponse(req, start), nil
	}

	deadline := o.deadline
	if !req.Deadline.IsZero() {
		if d := req.Deadline.Sub(start); d < deadline {
			deadline = d
		}
	}
	ctx, cancel := context.WithTimeout(ctx, deadline)
	defer cancel()

	page, perPage := req.Page, req.PerPage
	if page < 1 {
		page = 1
	}
	if perPage < 1 {
		perPage = 20
	} else if perPage > 100 {
		perPage = 100
		filters.Corrections = append(filters.Corrections, "per_page clamped to 100")
	}

	cacheKey := responseCacheKey(pre.ResidualQuery, filters, page, perPage)

	raw, _, err := o.cache.GetOrLoad(ctx, cacheKey, cache.TierHot, func(ctx context.Context) (interface{}, error) {
		return o.execute(ctx, pre.ResidualQuery, filters, page, perPage, start)
	})
	if err != nil {
		return nil, err
	}

	b, err := json.Marshal(raw)
	if err != nil {
		return nil, fmt.Errorf("encode search response: %w", err)
	}
	var resp domain.SearchResponse
	if err := json.Unmarshal(b, &resp); err != nil {
		return nil, fmt.Errorf("decode search response: %w", err)
	}
	resp.SearchTimeMS = time.Since(start).Milliseconds()
	resp.AppliedFilters = filters
	return &resp, nil
}

// validateFilters rejects structurally impossible filter values outright
// rather than letting them silently exclude every listing.
func validateFilters(f domain.FilterSet, now time.Time) error {
	minYear, maxYear := 1900, now.Year()+2
	if f.YearMin != 0 && (f.YearMin < minYear || f.YearMin > maxYear) {
		return domain.NewAdapterError("orchestrator", "search", domain.ErrKindValidation,
			fmt.Errorf("year_min %d out of range [%d,%d]", f.YearMin, minYear, maxYear))
	}
	if f.YearMax != 0 && (f.YearMax < minYear || f.YearMax > maxYear) {
		return domain.NewAdapterError("orchestrator", "search", domain.ErrKindValidation,
			fmt.Errorf("year_max %d out of range [%d,%d]", f.YearMax, minYear, maxYear))
	}
	return nil
}

// deadlineExpiredResponse handles a request whose caller-supplied deadline
// has already elapsed: no dispatch is attempted, and every source the
// engine would otherwise have queried is reported failed.
func (o *Orchestrator) deadlineExpiredResponse(req domain.SearchRequest, start time.Time) *domain.SearchResponse {
	failed := append([]string{"local"}, o.engine.Tags()...)
	sort.Strings(failed)
	page, perPage := req.Page, req.PerPage
	if page < 1 {
		page = 1
	}
	if perPage < 1 || perPage > 100 {
		perPage = 20
	}
	return &domain.SearchResponse{
		Page:           page,
		PerPage:        perPage,
		SourcesFailed:  failed,
		Partial:        true,
		SearchTimeMS:   time.Since(start).Milliseconds(),
		AppliedFilters: req.Filters,
	}
}

func (o *Orchestrator) execute(ctx context.Context, residualQuery string, filters domain.FilterSet, page, perPage int, start time.Time) (*domain.SearchResponse, error) {
	localListings, localMeta, err := o.localAdapter.Search(ctx, residualQuery, filters, 1, 1000)
	if err != nil {
		log.Warn().Err(err).Msg("orchestrator: local index query failed, continuing with live sources only")
		localListings, localMeta = nil, domain.SourceMeta{}
	}
	localTotal := localMeta.TotalClaimed

	results := o.engine.Dispatch(ctx, residualQuery, filters, 1, 200)

	var searched, failed []string
	combined := append([]domain.Listing(nil), localListings...)
	liveCount := 0
	partial := false
	for _, r := range results {
		searched = append(searched, r.Source)
		if r.Err != nil {
			failed = append(failed, r.Source)
			partial = true
			continue
		}
		combined = append(combined, r.Listings...)
		liveCount += len(r.Listings)
	}
	sort.Strings(searched)
	sort.Strings(failed)

	merged := dedup.Merge(combined, o.priorityOf)

	qc := scoring.QueryContext{
		ResidualQuery: residualQuery,
		MedianPrice:   medianPrice(merged),
		MedianMileage: medianMileage(merged),
		Now:           time.Now(),
	}
	scored := o.scorer.Score(merged, qc, o.priorityOf)
	pageScored := scoring.Paginate(scored, page, perPage)

	listings := make([]domain.Listing, 0, len(pageScored))
	for _, s := range pageScored {
		listings = append(listings, s.Listing)
	}

	return &domain.SearchResponse{
		Listings:        listings,
		Total:           len(merged),
		Page:            page,
		PerPage:         perPage,
		LocalCount:      localTotal,
		LiveCount:       liveCount,
		SourcesSearched: searched,
		SourcesFailed:   failed,
		SearchTimeMS:    time.Since(start).Milliseconds(),
		Partial:         partial,
		AppliedFilters:  filters,
	}, nil
}

// GetDetails resolves a single listing by source and source-local id,
// consulting the local index first and falling back to a live source
// fetch on a miss.
func (o *Orchestrator) GetDetails(ctx context.Context, source, sourceListingID string) (*domain.Listing, error) {
	if l, err := o.localIndex.Get(ctx, source, sourceListingID); err == nil {
		return l, nil
	}
	return o.engine.GetDetails(ctx, source, sourceListingID)
}

func medianPrice(listings []domain.Listing) domain.PriceMinorUnits {
	vals := make([]domain.PriceMinorUnits, 0, len(listings))
	for _, l := range listings {
		if l.Price > 0 {
			vals = append(vals, l.Price)
		}
	}
	if len(vals) == 0 {
		return 0
	}
	sort.Slice(vals, func(i, j int) bool { return vals[i] < vals[j] })
	return vals[len(vals)/2]
}

func medianMileage(listings []domain.Listing) int {
	vals := make([]int, 0, len(listings))
	for _, l := range listings {
		if l.Mileage > 0 {
			vals = append(vals, l.Mileage)
		}
	}
	if len(vals) == 0 {
		return 0
	}
	sort.Ints(vals)
	return vals[len(vals)/2]
}

func responseCacheKey(query string, filters domain.FilterSet, page, perPage int) string {
	b, _ := json.Marshal(filters)
	sum := sha256.Sum256([]byte(fmt.Sprintf("%s|%s|%d|%d", query, b, page, perPage)))
	return "search:" + hex.EncodeToString(sum[:16])
}
