package autotrader

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

const sampleHTML = `
<html><body>
<a class="result-card" href="/listing/1" data-vin="1HGCM82633A004352" data-price="4,500" data-mileage="150,000">
  <span class="title">2003 Honda Civic EX</span>
</a>
</body></html>
`

func newTestAdapter(srv *httptest.Server) *Adapter {
	limiter := ratelimit.NewLimiter()
	limiter.Configure(sourceTag, "search", ratelimit.Profile{Algorithm: ratelimit.AlgorithmLeakyBucket, RequestsPerSecond: 1, Burst: 1})
	return New(srv.URL, limiter, breaker.NewRegistry())
}

func TestAdapter_SearchParsesListingCards(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(sampleHTML))
	}))
	defer srv.Close()

	a := newTestAdapter(srv)
	listings, meta, err := a.Search(context.Background(), "civic", domain.FilterSet{}, 1, 20)
	require.NoError(t, err)
	assert.Equal(t, 1, meta.TotalClaimed)
	require.Len(t, listings, 1)
	assert.Equal(t, "1HGCM82633A004352", listings[0].VIN)
	assert.Equal(t, domain.PriceMinorUnits(450000), listings[0].Price)
	assert.Equal(t, 150000, listings[0].Mileage)
}

func TestAdapter_GetDetailsUnsupported(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	defer srv.Close()

	a := newTestAdapter(srv)
	_, err := a.GetDetails(context.Background(), "anything")
	require.Error(t, err)
	var ae *domain.AdapterError
	require.ErrorAs(t, err, &ae)
	assert.Equal(t, domain.ErrKindNotFound, ae.Kind)
}

func TestParsePrice_StripsCommasAndDollarSign(t *testing.T) {
	assert.Equal(t, domain.PriceMinorUnits(450000), parsePrice("$4,500"))
	assert.Equal(t, domain.PriceMinorUnits(0), parsePrice(""))
}
