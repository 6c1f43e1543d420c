// Package local wraps the local index as a domain.SourceAdapter, so the
// orchestrator queries the local store through the same contract as any
// upstream source. The orchestrator calls it directly rather than through
// the dispatch engine, so no rate limiter or circuit breaker sits in
// front of it.
package local

import (
	"context"

	"github.com/thetangstr/vehiclesearch/domain"
	"github.com/thetangstr/vehiclesearch/infrastructure/index"
)

// Adapter is the local-index-backed SourceAdapter.
type Adapter struct {
	store index.Store
}

// New builds an Adapter over store.
func New(store index.Store) *Adapter {
	return &Adapter{store: store}
}

func (a *Adapter) Tag() string          { return "local" }
func (a *Adapter) Kind() domain.SourceKind { return domain.SourceKindLocal }

// Search matches query case-insensitively against title and description,
// in addition to the preprocessor-derived filters the orchestrator has
// already folded in before dispatch.
func (a *Adapter) Search(ctx context.Context, query string, filters domain.FilterSet, page, perPage int) ([]domain.Listing, domain.SourceMeta, error) {
	listings, total, err := a.store.Query(ctx, query, filters, page, perPage)
	if err != nil {
		return nil, domain.SourceMeta{}, domain.NewAdapterError("local", "search", domain.ErrKindInternal, err)
	}
	return listings, domain.SourceMeta{TotalClaimed: total, Truncated: false}, nil
}

// GetDetails treats sourceListingID as the listing's stable id, since the
// local index aggregates listings originally ingested from every source.
func (a *Adapter) GetDetails(ctx context.Context, sourceListingID string) (*domain.Listing, error) {
	return a.store.GetByID(ctx, sourceListingID)
}

func (a *Adapter) Health(ctx context.Context) (domain.Health, error) {
	return domain.Health{State: domain.HealthHealthy}, nil
}
