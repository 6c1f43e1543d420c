package ratelimit

import (
	"context"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"
)

// TokenFetcher retrieves a fresh OAuth token from an upstream. It returns
// the raw token and its expiry time as the upstream reported it.
type TokenFetcher func(ctx context.Context) (token string, expiresAt time.Time, err error)

// TokenStore caches OAuth client-credentials tokens per source and
// coalesces concurrent refreshes with singleflight, so a cold cache under
// load triggers exactly one upstream token request.
type TokenStore struct {
	mu      sync.RWMutex
	entries map[string]cachedToken
	group   singleflight.Group

	// earlyRefresh is subtracted from a token's expiry to decide staleness,
	// so callers never hand out a token that expires mid-request.
	earlyRefresh time.Duration
}

type cachedToken struct {
	token     string
	expiresAt time.Time
}

// NewTokenStore builds an empty store. earlyRefresh should be a few times
// the expected request latency against the issuing source.
func NewTokenStore(earlyRefresh time.Duration) *TokenStore {
	if earlyRefresh <= 0 {
		earlyRefresh = 30 * time.Second
	}
	return &TokenStore{
		entries:      make(map[string]cachedToken),
		earlyRefresh: earlyRefresh,
	}
}

// Get returns a cached, non-stale token for source, or invokes fetch exactly
// once across any concurrent callers to obtain a fresh one.
func (s *TokenStore) Get(ctx context.Context, source string, fetch TokenFetcher) (string, error) {
	s.mu.RLock()
	entry, ok := s.entries[source]
	s.mu.RUnlock()

	if ok && time.Now().Before(entry.expiresAt.Add(-s.earlyRefresh)) {
		return entry.token, nil
	}

	v, err, _ := s.group.Do(source, func() (interface{}, error) {
		// Re-check: another goroutine may have refreshed while we waited
		// for the singleflight lock.
		s.mu.RLock()
		entry, ok := s.entries[source]
		s.mu.RUnlock()
		if ok && time.Now().Before(entry.expiresAt.Add(-s.earlyRefresh)) {
			return entry.token, nil
		}

		token, expiresAt, ferr := fetch(ctx)
		if ferr != nil {
			return "", fmt.Errorf("refresh token for %s: %w", source, ferr)
		}

		s.mu.Lock()
		s.entries[source] = cachedToken{token: token, expiresAt: expiresAt}
		s.mu.Unlock()
		return token, nil
	})
	if err != nil {
		return "", err
	}
	return v.(string), nil
}

// Invalidate drops a cached token, forcing the next Get to refresh. Used
// when an adapter observes a 401 against a token it believed was valid.
func (s *TokenStore) Invalidate(source string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.entries, source)
}
