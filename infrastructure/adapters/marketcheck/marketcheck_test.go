package marketcheck

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

func newTestAdapter(srv *httptest.Server) *Adapter {
	limiter := ratelimit.NewLimiter()
	limiter.Configure(sourceTag, "search", ratelimit.Profile{Algorithm: ratelimit.AlgorithmDailyQuota, DailyQuota: 10})
	limiter.Configure(sourceTag, "get_details", ratelimit.Profile{Algorithm: ratelimit.AlgorithmDailyQuota, DailyQuota: 10})
	return New("test-key", srv.URL, limiter, breaker.NewRegistry())
}

func TestAdapter_SearchConvertsListings(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "test-key", r.URL.Query().Get("api_key"))
		w.Write([]byte(`{
			"num_found": 1,
			"listings": [{
				"id": "abc123",
				"vin": "1HGCM82633A004352",
				"heading": "2003 Honda Civic",
				"price": 4500,
				"miles": 150000,
				"build": {"year": 2003, "make": "Honda", "model": "Civic", "trim": "EX"}
			}]
		}`))
	}))
	defer srv.Close()

	a := newTestAdapter(srv)
	listings, meta, err := a.Search(context.Background(), "civic", domain.FilterSet{}, 1, 20)
	require.NoError(t, err)
	assert.Equal(t, 1, meta.TotalClaimed)
	require.Len(t, listings, 1)
	assert.Equal(t, "Honda", listings[0].Make)
	assert.Equal(t, domain.PriceMinorUnits(450000), listings[0].Price)
}

func TestAdapter_SearchExhaustsDailyQuota(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"num_found":0,"listings":[]}`))
	}))
	defer srv.Close()

	limiter := ratelimit.NewLimiter()
	limiter.Configure(sourceTag, "search", ratelimit.Profile{Algorithm: ratelimit.AlgorithmDailyQuota, DailyQuota: 1})
	a := New("test-key", srv.URL, limiter, breaker.NewRegistry())

	_, _, err := a.Search(context.Background(), "civic", domain.FilterSet{}, 1, 20)
	require.NoError(t, err)

	_, _, err = a.Search(context.Background(), "civic", domain.FilterSet{}, 1, 20)
	require.Error(t, err)
}

func TestAdapter_GetDetailsByID(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"id":"abc123","build":{"year":2003,"make":"Honda","model":"Civic"}}`))
	}))
	defer srv.Close()

	a := newTestAdapter(srv)
	l, err := a.GetDetails(context.Background(), "abc123")
	require.NoError(t, err)
	assert.Equal(t, "Honda", l.Make)
}
