// Package httpx provides the shared HTTP client every API/scrape adapter
// builds on: a thin wrapper over net/http that classifies failures into
// the domain.ErrorKind taxonomy at the call site.
package httpx

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/thetangstr/vehiclesearch/domain"
)

// Client wraps net/http.Client with the base URL, timeout, and
// rate-limit-header extraction every adapter needs.
type Client struct {
	baseURL string
	http    *http.Client
}

// New builds a Client against baseURL with the given per-request timeout.
func New(baseURL string, timeout time.Duration) *Client {
	return &Client{
		baseURL: baseURL,
		http:    &http.Client{Timeout: timeout},
	}
}

// Response wraps the raw body and parsed rate-limit metadata from a call.
type Response struct {
	StatusCode int
	Body       []byte
	RetryAfter time.Duration
}

// Get issues a GET request against path (joined to baseURL), attaching
// headers, and classifies failures into the domain.ErrorKind taxonomy so
// callers can feed the result straight into the retry policy and circuit
// breaker without their own status-code switch.
func (c *Client) Get(ctx context.Context, source, operation, path string, headers map[string]string) (*Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return nil, domain.NewAdapterError(source, operation, domain.ErrKindInternal, err)
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, domain.NewAdapterError(source, operation, domain.ErrKindDeadlineExceeded, err)
		}
		return nil, domain.NewAdapterError(source, operation, domain.ErrKindTransient, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, domain.NewAdapterError(source, operation, domain.ErrKindTransient, err)
	}

	retryAfter := parseRetryAfter(resp.Header.Get("Retry-After"))

	result := &Response{StatusCode: resp.StatusCode, Body: body, RetryAfter: retryAfter}

	switch {
	case resp.StatusCode == http.StatusOK:
		return result, nil
	case resp.StatusCode == http.StatusTooManyRequests:
		ae := domain.NewAdapterError(source, operation, domain.ErrKindRateLimited, fmt.Errorf("status %d", resp.StatusCode))
		ae.RetryAfter = retryAfter
		return result, ae
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return result, domain.NewAdapterError(source, operation, domain.ErrKindUnauthorized, fmt.Errorf("status %d", resp.StatusCode))
	case resp.StatusCode == http.StatusNotFound:
		return result, domain.NewAdapterError(source, operation, domain.ErrKindNotFound, fmt.Errorf("status %d", resp.StatusCode))
	case resp.StatusCode >= 500:
		return result, domain.NewAdapterError(source, operation, domain.ErrKindTransient, fmt.Errorf("status %d", resp.StatusCode))
	case resp.StatusCode >= 400:
		return result, domain.NewAdapterError(source, operation, domain.ErrKindValidation, fmt.Errorf("status %d", resp.StatusCode))
	default:
		return result, domain.NewAdapterError(source, operation, domain.ErrKindInternal, fmt.Errorf("status %d", resp.StatusCode))
	}
}

// PostForm issues a POST with an application/x-www-form-urlencoded body
// against path, classifying failures the same way Get does. Used for
// OAuth2 token grants and other form-encoded upstream writes.
func (c *Client) PostForm(ctx context.Context, source, operation, path, body string, headers map[string]string) (*Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, strings.NewReader(body))
	if err != nil {
		return nil, domain.NewAdapterError(source, operation, domain.ErrKindInternal, err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, domain.NewAdapterError(source, operation, domain.ErrKindDeadlineExceeded, err)
		}
		return nil, domain.NewAdapterError(source, operation, domain.ErrKindTransient, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, domain.NewAdapterError(source, operation, domain.ErrKindTransient, err)
	}

	retryAfter := parseRetryAfter(resp.Header.Get("Retry-After"))
	result := &Response{StatusCode: resp.StatusCode, Body: respBody, RetryAfter: retryAfter}

	switch {
	case resp.StatusCode == http.StatusOK:
		return result, nil
	case resp.StatusCode == http.StatusTooManyRequests:
		ae := domain.NewAdapterError(source, operation, domain.ErrKindRateLimited, fmt.Errorf("status %d", resp.StatusCode))
		ae.RetryAfter = retryAfter
		return result, ae
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return result, domain.NewAdapterError(source, operation, domain.ErrKindUnauthorized, fmt.Errorf("status %d", resp.StatusCode))
	case resp.StatusCode == http.StatusNotFound:
		return result, domain.NewAdapterError(source, operation, domain.ErrKindNotFound, fmt.Errorf("status %d", resp.StatusCode))
	case resp.StatusCode >= 500:
		return result, domain.NewAdapterError(source, operation, domain.ErrKindTransient, fmt.Errorf("status %d", resp.StatusCode))
	case resp.StatusCode >= 400:
		return result, domain.NewAdapterError(source, operation, domain.ErrKindValidation, fmt.Errorf("status %d", resp.StatusCode))
	default:
		return result, domain.NewAdapterError(source, operation, domain.ErrKindInternal, fmt.Errorf("status %d", resp.StatusCode))
	}
}

func parseRetryAfter(header string) time.Duration {
	if header == "" {
		return 0
	}
	if seconds, err := strconv.Atoi(header); err == nil {
		return time.Duration(seconds) * time.Second
	}
	if t, err := http.ParseTime(header); err == nil {
		return time.Until(t)
	}
	return 0
}
