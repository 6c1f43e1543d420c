package httpx

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/thetangstr/vehiclesearch/domain"
)

func TestClient_GetSuccess(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"ok":true}`))
	}))
	defer srv.Close()

	c := New(srv.URL, 0)
	resp, err := c.Get(context.Background(), "ebay", "search", "/search", nil)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestClient_GetRateLimited(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Retry-After", "5")
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	c := New(srv.URL, 0)
	_, err := c.Get(context.Background(), "ebay", "search", "/search", nil)
	require.Error(t, err)
	var ae *domain.AdapterError
	require.ErrorAs(t, err, &ae)
	assert.Equal(t, domain.ErrKindRateLimited, ae.Kind)
}

func TestClient_GetNotFound(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	c := New(srv.URL, 0)
	_, err := c.Get(context.Background(), "ebay", "get_details", "/listings/123", nil)
	var ae *domain.AdapterError
	require.ErrorAs(t, err, &ae)
	assert.Equal(t, domain.ErrKindNotFound, ae.Kind)
}

func TestClient_GetServerErrorIsTransient(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	c := New(srv.URL, 0)
	_, err := c.Get(context.Background(), "ebay", "search", "/search", nil)
	var ae *domain.AdapterError
	require.ErrorAs(t, err, &ae)
	assert.True(t, ae.Retryable())
}
