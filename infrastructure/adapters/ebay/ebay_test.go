package ebay

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/thetangstr/vehiclesearch/domain"
	"github.com/thetangstr/vehiclesearch/infrastructure/breaker"
	"github.com/thetangstr/vehiclesearch/infrastructure/ratelimit"
)

func newTestAdapter(t *testing.T, authSrv, apiSrv *httptest.Server) *Adapter {
	limiter := ratelimit.NewLimiter()
	limiter.Configure(sourceTag, "search", ratelimit.Profile{
		Algorithm: ratelimit.AlgorithmLeakyBucket, RequestsPerSecond: 100, Burst: 10,
	})
	limiter.Configure(sourceTag, "get_details", ratelimit.Profile{
		Algorithm: ratelimit.AlgorithmLeakyBucket, RequestsPerSecond: 100, Burst: 10,
	})
	cb := breaker.NewRegistry()
	return New(Credentials{ClientID: "id", ClientSecret: "secret"}, apiSrv.URL, authSrv.URL, limiter, cb)
}

func TestAdapter_SearchConvertsItemsAndCanonicalizesIDs(t *testing.T) {
	authSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"access_token":"tok123","expires_in":3600}`))
	}))
	defer authSrv.Close()

	apiSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer tok123", r.Header.Get("Authorization"))
		w.Write([]byte(`{
			"total": 1,
			"itemSummaries": [{
				"itemId": "v1|123456789|0",
				"title": "1998 Honda Civic",
				"price": {"value": "5000.00", "currency": "USD"},
				"condition": "USED",
				"itemWebUrl": "https://ebay.com/itm/123456789"
			}]
		}`))
	}))
	defer apiSrv.Close()

	a := newTestAdapter(t, authSrv, apiSrv)
	listings, meta, err := a.Search(context.Background(), "civic", domain.FilterSet{}, 1, 10)
	require.NoError(t, err)
	assert.Equal(t, 1, meta.TotalClaimed)
	require.Len(t, listings, 1)
	assert.Equal(t, "123456789", listings[0].SourceID)
	assert.Equal(t, domain.PriceMinorUnits(500000), listings[0].Price)
}

func TestAdapter_SearchInvalidatesTokenOnUnauthorized(t *testing.T) {
	tokenCalls := 0
	authSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		tokenCalls++
		w.Write([]byte(`{"access_token":"tok","expires_in":3600}`))
	}))
	defer authSrv.Close()

	apiSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer apiSrv.Close()

	a := newTestAdapter(t, authSrv, apiSrv)
	_, _, err := a.Search(context.Background(), "civic", domain.FilterSet{}, 1, 10)
	require.Error(t, err)
	assert.Equal(t, 1, tokenCalls)

	// A cached token would normally be reused; after the 401 it was
	// invalidated, so the next call fetches again.
	_, _, _ = a.Search(context.Background(), "civic", domain.FilterSet{}, 1, 10)
	assert.Equal(t, 2, tokenCalls)
}

func TestAdapter_HealthReflectsBreakerState(t *testing.T) {
	authSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"access_token":"tok","expires_in":3600}`))
	}))
	defer authSrv.Close()
	apiSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"total":0,"itemSummaries":[]}`))
	}))
	defer apiSrv.Close()

	a := newTestAdapter(t, authSrv, apiSrv)
	h, err := a.Health(context.Background())
	require.NoError(t, err)
	assert.Equal(t, domain.HealthHealthy, h.State)
}

func TestBuildSearchPath_IncludesPriceFilter(t *testing.T) {
	path := buildSearchPath("civic", domain.FilterSet{PriceMin: 100000, PriceMax: 500000}, 1, 25)
	assert.Contains(t, path, "q=civic")
	assert.Contains(t, path, "filter=price")
}

func TestCanonicalizeItemID(t *testing.T) {
	assert.Equal(t, "123456789", canonicalizeItemID("v1|123456789|0"))
	assert.Equal(t, "plain", canonicalizeItemID("plain"))
}
