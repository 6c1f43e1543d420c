// Package ebay implements an OAuth2 client-credentials adapter against
// eBay's Browse API: rate limiter and circuit breaker wrapping every
// upstream call, raw JSON response structs converted into the domain
// model, and an OAuth token cache via infrastructure/ratelimit.TokenStore.
package ebay

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/thetangstr/vehiclesearch/domain"
	"github.com/thetangstr/vehiclesearch/infrastructure/adapters/httpx"
	"github.com/thetangstr/vehiclesearch/infrastructure/breaker"
	"github.com/thetangstr/vehiclesearch/infrastructure/ratelimit"
)

const sourceTag = "ebay"

// Credentials holds the client-credentials pair eBay issues per
// application.
type Credentials struct {
	ClientID     string
	ClientSecret string
}

// Adapter implements domain.SourceAdapter against the eBay Browse API.
type Adapter struct {
	creds   Credentials
	client  *httpx.Client
	authURL string
	limiter *ratelimit.Limiter
	tokens  *ratelimit.TokenStore
	cb      *breaker.Registry
}

// New builds an eBay adapter. limiter and cb are shared, process-wide
// registries the orchestrator wires into every adapter.
func New(creds Credentials, baseURL, authURL string, limiter *ratelimit.Limiter, cb *breaker.Registry) *Adapter {
	return &Adapter{
		creds:   creds,
		client:  httpx.New(baseURL, 10*time.Second),
		authURL: authURL,
		limiter: limiter,
		tokens:  ratelimit.NewTokenStore(30 * time.Second),
		cb:      cb,
	}
}

func (a *Adapter) Tag() string             { return sourceTag }
func (a *Adapter) Kind() domain.SourceKind { return domain.SourceKindAPI }

type itemSummary struct {
	ItemID     string `json:"itemId"`
	Title      string `json:"title"`
	Price      struct {
		Value    string `json:"value"`
		Currency string `json:"currency"`
	} `json:"price"`
	Condition  string `json:"condition"`
	ItemWebURL string `json:"itemWebUrl"`
	Image      struct {
		ImageURL string `json:"imageUrl"`
	} `json:"image"`
	Seller struct {
		Username string `json:"username"`
	} `json:"seller"`
	ItemLocation struct {
		PostalCode string `json:"postalCode"`
		Country    string `json:"country"`
	} `json:"itemLocation"`
}

type searchResponse struct {
	Total         int           `json:"total"`
	ItemSummaries []itemSummary `json:"itemSummaries"`
}

// Search dispatches one rate-limited, circuit-broken call against eBay's
// Browse API search endpoint.
func (a *Adapter) Search(ctx context.Context, query string, filters domain.FilterSet, page, perPage int) ([]domain.Listing, domain.SourceMeta, error) {
	if _, err := a.limiter.Acquire(ctx, sourceTag, "search", 5*time.Second); err != nil {
		return nil, domain.SourceMeta{}, ratelimit.AsAdapterError(sourceTag, "search", err)
	}

	var parsed searchResponse
	err := a.cb.Call(ctx, sourceTag, "search", func(ctx context.Context) error {
		token, terr := a.tokens.Get(ctx, sourceTag, a.fetchToken)
		if terr != nil {
			return domain.NewAdapterError(sourceTag, "search", domain.ErrKindUnauthorized, terr)
		}

		path := buildSearchPath(query, filters, page, perPage)
		resp, rerr := a.client.Get(ctx, sourceTag, "search", path, map[string]string{
			"Authorization": "Bearer " + token,
		})
		if rerr != nil {
			if ae, ok := rerr.(*domain.AdapterError); ok && ae.Kind == domain.ErrKindUnauthorized {
				a.tokens.Invalidate(sourceTag)
			}
			return rerr
		}
		return json.Unmarshal(resp.Body, &parsed)
	})
	if err != nil {
		return nil, domain.SourceMeta{}, err
	}

	now := time.Now()
	listings := make([]domain.Listing, 0, len(parsed.ItemSummaries))
	for _, item := range parsed.ItemSummaries {
		l, convErr := convertItem(item, now)
		if convErr == nil {
			listings = append(listings, l)
		}
	}

	return listings, domain.SourceMeta{TotalClaimed: parsed.Total, Truncated: parsed.Total > len(listings)+perPage*(page-1)}, nil
}

func convertItem(item itemSummary, now time.Time) (domain.Listing, error) {
	priceFloat, err := strconv.ParseFloat(item.Price.Value, 64)
	if err != nil {
		return domain.Listing{}, fmt.Errorf("parse price %q: %w", item.Price.Value, err)
	}

	sourceID := canonicalizeItemID(item.ItemID)
	l := domain.Listing{
		ID:          domain.StableID(sourceTag, sourceID),
		Source:      sourceTag,
		SourceID:    sourceID,
		IngestedVia: string(domain.SourceKindAPI),
		Title:       item.Title,
		Price:       domain.PriceMinorUnits(priceFloat * 100),
		ListingURL:  item.ItemWebURL,
		DealerName:  item.Seller.Username,
		ZIP:         item.ItemLocation.PostalCode,
		Location:    item.ItemLocation.Country,
		CreatedAt:   now,
		UpdatedAt:   now,
		LastSeenAt:  now,
		Active:      true,
	}
	if item.Image.ImageURL != "" {
		l.ImageURLs = []string{item.Image.ImageURL}
	}
	l.SetAttributeIfAbsent("condition", item.Condition)
	return l, nil
}

// canonicalizeItemID strips eBay's "v1|<id>|0" composite marketplace-item
// id format down to the bare numeric item id before it reaches the local
// index.
func canonicalizeItemID(raw string) string {
	parts := strings.Split(raw, "|")
	if len(parts) >= 2 {
		return parts[1]
	}
	return raw
}

func buildSearchPath(query string, f domain.FilterSet, page, perPage int) string {
	q := url.Values{}
	q.Set("q", query)
	q.Set("limit", strconv.Itoa(perPage))
	q.Set("offset", strconv.Itoa((page-1)*perPage))

	var filterParts []string
	if f.PriceMin > 0 || f.PriceMax > 0 {
		min := "0"
		max := "*"
		if f.PriceMin > 0 {
			min = fmt.Sprintf("%.2f", float64(f.PriceMin)/100)
		}
		if f.PriceMax > 0 {
			max = fmt.Sprintf("%.2f", float64(f.PriceMax)/100)
		}
		filterParts = append(filterParts, fmt.Sprintf("price:[%s..%s]", min, max))
	}
	if len(filterParts) > 0 {
		q.Set("filter", strings.Join(filterParts, ","))
	}

	return "/buy/browse/v1/item_summary/search?" + q.Encode()
}

type tokenResponse struct {
	AccessToken string `json:"access_token"`
	ExpiresIn   int    `json:"expires_in"`
}

// fetchToken performs the OAuth2 client-credentials grant against eBay's
// identity endpoint. If the response is a JWT, its exp claim is preferred
// over expires_in for the expiry timestamp.
func (a *Adapter) fetchToken(ctx context.Context) (string, time.Time, error) {
	form := url.Values{}
	form.Set("grant_type", "client_credentials")
	form.Set("scope", "https://api.ebay.com/oauth/api_scope")

	client := httpx.New(a.authURL, 10*time.Second)
	basicAuth := base64.StdEncoding.EncodeToString([]byte(a.creds.ClientID + ":" + a.creds.ClientSecret))
	resp, err := client.PostForm(ctx, sourceTag, "oauth_token", "", form.Encode(), map[string]string{
		"Authorization": "Basic " + basicAuth,
	})
	if err != nil {
		return "", time.Time{}, err
	}

	var parsed tokenResponse
	if err := json.Unmarshal(resp.Body, &parsed); err != nil {
		return "", time.Time{}, fmt.Errorf("decode token response: %w", err)
	}

	expiresAt := time.Now().Add(time.Duration(parsed.ExpiresIn) * time.Second)
	if claims, ok := parseJWTExpiry(parsed.AccessToken); ok {
		expiresAt = claims
	}
	return parsed.AccessToken, expiresAt, nil
}

func parseJWTExpiry(token string) (time.Time, bool) {
	claims := jwt.MapClaims{}
	parser := jwt.NewParser()
	_, _, err := parser.ParseUnverified(token, claims)
	if err != nil {
		return time.Time{}, false
	}
	exp, err := claims.GetExpirationTime()
	if err != nil || exp == nil {
		return time.Time{}, false
	}
	return exp.Time, true
}

// GetDetails fetches a single item by its canonical eBay item id.
func (a *Adapter) GetDetails(ctx context.Context, sourceListingID string) (*domain.Listing, error) {
	if _, err := a.limiter.Acquire(ctx, sourceTag, "get_details", 5*time.Second); err != nil {
		return nil, ratelimit.AsAdapterError(sourceTag, "get_details", err)
	}

	var item struct {
		ItemID string `json:"itemId"`
		Title  string `json:"title"`
		Price  struct {
			Value string `json:"value"`
		} `json:"price"`
	}
	err := a.cb.Call(ctx, sourceTag, "get_details", func(ctx context.Context) error {
		token, terr := a.tokens.Get(ctx, sourceTag, a.fetchToken)
		if terr != nil {
			return domain.NewAdapterError(sourceTag, "get_details", domain.ErrKindUnauthorized, terr)
		}
		resp, rerr := a.client.Get(ctx, sourceTag, "get_details",
			"/buy/browse/v1/item/v1|"+sourceListingID+"|0",
			map[string]string{"Authorization": "Bearer " + token})
		if rerr != nil {
			return rerr
		}
		return json.Unmarshal(resp.Body, &item)
	})
	if err != nil {
		return nil, err
	}

	priceFloat, _ := strconv.ParseFloat(item.Price.Value, 64)
	now := time.Now()
	l := domain.Listing{
		ID:         domain.StableID(sourceTag, sourceListingID),
		Source:     sourceTag,
		SourceID:   sourceListingID,
		Title:      item.Title,
		Price:      domain.PriceMinorUnits(priceFloat * 100),
		CreatedAt:  now,
		UpdatedAt:  now,
		LastSeenAt: now,
		Active:     true,
	}
	return &l, nil
}

// Health reports the search breaker's current state; it makes no network
// call and does not check whether a token can be obtained.
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
