// Package sample provides a synthetic, seeded data source used for local
// development and integration tests when no real upstream credentials
// are configured. It is excluded from the default source set and only
// participates when explicitly enabled.
package sample

import (
	"context"
	"strconv"
	"strings"
	"time"

	"github.com/thetangstr/vehiclesearch/domain"
)

const sourceTag = "sample"

// Adapter serves a fixed, in-memory set of seeded listings.
type Adapter struct {
	listings []domain.Listing
}

// New builds a sample adapter from a seed list. If seed is empty, a small
// built-in fixture set is used instead.
func New(seed []domain.Listing) *Adapter {
	if len(seed) == 0 {
		seed = defaultFixtures()
	}
	return &Adapter{listings: seed}
}

func (a *Adapter) Tag() string             { return sourceTag }
func (a *Adapter) Kind() domain.SourceKind { return domain.SourceKindAPI }

// Search filters the seeded set in-memory; no rate limiter or breaker
// applies since there is no real upstream behind it.
func (a *Adapter) Search(ctx context.Context, query string, filters domain.FilterSet, page, perPage int) ([]domain.Listing, domain.SourceMeta, error) {
	matched := make([]domain.Listing, 0, len(a.listings))
	for _, l := range a.listings {
		if query != "" && !matchesQuery(l, query) {
			continue
		}
		if filters.Make != "" && !strings.EqualFold(l.Make, filters.Make) {
			continue
		}
		if filters.YearMin > 0 && l.Year < filters.YearMin {
			continue
		}
		if filters.YearMax > 0 && l.Year > filters.YearMax {
			continue
		}
		matched = append(matched, l)
	}

	start := (page - 1) * perPage
	if start >= len(matched) {
		return nil, domain.SourceMeta{TotalClaimed: len(matched)}, nil
	}
	end := start + perPage
	if end > len(matched) {
		end = len(matched)
	}
	return matched[start:end], domain.SourceMeta{TotalClaimed: len(matched)}, nil
}

func matchesQuery(l domain.Listing, query string) bool {
	q := strings.ToLower(query)
	haystack := strings.ToLower(l.Title + " " + l.Make + " " + l.Model)
	return strings.Contains(haystack, q)
}

// GetDetails looks up a seeded listing by its source listing id.
func (a *Adapter) GetDetails(ctx context.Context, sourceListingID string) (*domain.Listing, error) {
	for i := range a.listings {
		if a.listings[i].SourceID == sourceListingID {
			return &a.listings[i], nil
		}
	}
	return nil, domain.NewAdapterError(sourceTag, "get_details", domain.ErrKindNotFound, domain.ErrNotFound)
}

func (a *Adapter) Health(ctx context.Context) (domain.Health, error) {
	return domain.Health{State: domain.HealthHealthy}, nil
}

func defaultFixtures() []domain.Listing {
	now := time.Now()
	mk := func(id, make_, model string, year int, priceDollars, mileage int) domain.Listing {
		return domain.Listing{
			ID:          domain.StableID(sourceTag, id),
			Source:      sourceTag,
			SourceID:    id,
			IngestedVia: string(domain.SourceKindAPI),
			Title:       strings.TrimSpace(strings.Join([]string{strconv.Itoa(year), make_, model}, " ")),
			Make:        make_,
			Model:       model,
			Year:        year,
			Price:       domain.PriceMinorUnits(priceDollars * 100),
			Mileage:     mileage,
			CreatedAt:   now,
			UpdatedAt:   now,
			LastSeenAt:  now,
			Active:      true,
		}
	}
	return []domain.Listing{
		mk("sample-1", "Honda", "Civic", 2001, 6500, 120000),
		mk("sample-2", "Toyota", "Camry", 2012, 11000, 85000),
		mk("sample-3", "Nissan", "240SX", 1994, 15000, 160000),
		mk("sample-4", "Mazda", "MX-5 Miata", 2018, 21000, 30000),
	}
}
