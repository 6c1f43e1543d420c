// Package marketcheck implements an API-key adapter against the
// MarketCheck vehicle listings API. Unlike the eBay adapter there is no
// OAuth exchange: the key rides in a query parameter on every call, and
// the upstream's daily request allowance is enforced as a daily-quota
// rate limiter bucket rather than a leaky bucket.
package marketcheck

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"
	"time"

	"github.com/thetangstr/vehiclesearch/domain"
	"github.com/thetangstr/vehiclesearch/infrastructure/adapters/httpx"
	"github.com/thetangstr/vehiclesearch/infrastructure/breaker"
	"github.com/thetangstr/vehiclesearch/infrastructure/ratelimit"
)

const sourceTag = "marketcheck"

// Adapter implements domain.SourceAdapter against the MarketCheck search API.
type Adapter struct {
	apiKey  string
	client  *httpx.Client
	limiter *ratelimit.Limiter
	cb      *breaker.Registry
}

// New builds a MarketCheck adapter.
func New(apiKey, baseURL string, limiter *ratelimit.Limiter, cb *breaker.Registry) *Adapter {
	return &Adapter{
		apiKey:  apiKey,
		client:  httpx.New(baseURL, 10*time.Second),
		limiter: limiter,
		cb:      cb,
	}
}

func (a *Adapter) Tag() string             { return sourceTag }
func (a *Adapter) Kind() domain.SourceKind { return domain.SourceKindAPI }

type listing struct {
	ID           string  `json:"id"`
	VIN          string  `json:"vin"`
	Heading      string  `json:"heading"`
	Price        float64 `json:"price"`
	Miles        int     `json:"miles"`
	VDPURL       string  `json:"vdp_url"`
	Build        struct {
		Year  int    `json:"year"`
		Make  string `json:"make"`
		Model string `json:"model"`
		Trim  string `json:"trim"`
	} `json:"build"`
	Dealer struct {
		Name string `json:"name"`
		City string `json:"city"`
		Zip  string `json:"zip"`
	} `json:"dealer"`
	Media struct {
		PhotoLinks []string `json:"photo_links"`
	} `json:"media"`
}

type searchResponse struct {
	NumFound  int       `json:"num_found"`
	Listings  []listing `json:"listings"`
}

// Search dispatches a rate-limited, circuit-broken call against
// MarketCheck's search endpoint.
func (a *Adapter) Search(ctx context.Context, query string, filters domain.FilterSet, page, perPage int) ([]domain.Listing, domain.SourceMeta, error) {
	if _, err := a.limiter.Acquire(ctx, sourceTag, "search", 5*time.Second); err != nil {
		return nil, domain.SourceMeta{}, ratelimit.AsAdapterError(sourceTag, "search", err)
	}

	var parsed searchResponse
	err := a.cb.Call(ctx, sourceTag, "search", func(ctx context.Context) error {
		resp, rerr := a.client.Get(ctx, sourceTag, "search", buildSearchPath(a.apiKey, query, filters, page, perPage), nil)
		if rerr != nil {
			return rerr
		}
		return json.Unmarshal(resp.Body, &parsed)
	})
	if err != nil {
		return nil, domain.SourceMeta{}, err
	}

	now := time.Now()
	out := make([]domain.Listing, 0, len(parsed.Listings))
	for _, item := range parsed.Listings {
		out = append(out, convertListing(item, now))
	}
	return out, domain.SourceMeta{TotalClaimed: parsed.NumFound}, nil
}

func convertListing(item listing, now time.Time) domain.Listing {
	l := domain.Listing{
		ID:         domain.StableID(sourceTag, item.ID),
		Source:     sourceTag,
		SourceID:   item.ID,
		IngestedVia: string(domain.SourceKindAPI),
		VIN:        item.VIN,
		Title:      item.Heading,
		Make:       item.Build.Make,
		Model:      item.Build.Model,
		Year:       item.Build.Year,
		Trim:       item.Build.Trim,
		Price:      domain.PriceMinorUnits(item.Price * 100),
		Mileage:    item.Miles,
		ListingURL: item.VDPURL,
		DealerName: item.Dealer.Name,
		Location:   item.Dealer.City,
		ZIP:        item.Dealer.Zip,
		ImageURLs:  item.Media.PhotoLinks,
		CreatedAt:  now,
		UpdatedAt:  now,
		LastSeenAt: now,
		Active:     true,
	}
	return l
}

func buildSearchPath(apiKey, query string, f domain.FilterSet, page, perPage int) string {
	q := url.Values{}
	q.Set("api_key", apiKey)
	q.Set("car_type", "used")
	if query != "" {
		q.Set("search", query)
	}
	if f.Make != "" {
		q.Set("make", f.Make)
	}
	if len(f.Model) > 0 {
		q.Set("model", f.Model[0])
	}
	if f.YearMin > 0 {
		q.Set("year_range", fmt.Sprintf("%d-", f.YearMin))
	}
	if f.PriceMax > 0 {
		q.Set("price_range", fmt.Sprintf("-%d", int64(f.PriceMax)/100))
	}
	q.Set("rows", strconv.Itoa(perPage))
	q.Set("start", strconv.Itoa((page-1)*perPage))
	return "/v2/search/car/active?" + q.Encode()
}

// GetDetails fetches one listing by its MarketCheck id.
func (a *Adapter) GetDetails(ctx context.Context, sourceListingID string) (*domain.Listing, error) {
	if _, err := a.limiter.Acquire(ctx, sourceTag, "get_details", 5*time.Second); err != nil {
		return nil, ratelimit.AsAdapterError(sourceTag, "get_details", err)
	}

	var item listing
	err := a.cb.Call(ctx, sourceTag, "get_details", func(ctx context.Context) error {
		path := fmt.Sprintf("/v2/listing/car/%s/active?api_key=%s", url.PathEscape(sourceListingID), url.QueryEscape(a.apiKey))
		resp, rerr := a.client.Get(ctx, sourceTag, "get_details", path, nil)
		if rerr != nil {
			return rerr
		}
		return json.Unmarshal(resp.Body, &item)
	})
	if err != nil {
		return nil, err
	}

	l := convertListing(item, time.Now())
	return &l, nil
}

// Health reports the current breaker state for the search operation.
func (a *Adapter) Health(ctx context.Context) (domain.Health, error) {
	status := a.cb.Status(sourceTag, "search")
	switch status.State {
	case breaker.StateOpen:
		return domain.Health{State: domain.HealthUnhealthy, Message: "circuit open"}, nil
	case breaker.StateHalfOpen:
		return domain.Health{State: domain.HealthDegraded, Message: "circuit half-open"}, nil
	default:
		return domain.Health{State: domain.HealthHealthy}, nil
	}
}
