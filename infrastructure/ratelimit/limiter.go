// Package ratelimit implements the process-wide rate limiter and OAuth
// token cache: per-(source, operation) leaky-bucket and daily-quota
// enforcement plus a singleflight-coalesced token store.
package ratelimit

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"

	"github.com/thetangstr/vehiclesearch/domain"
)

// Algorithm selects how a bucket enforces its quota.
type Algorithm string

const (
	AlgorithmLeakyBucket Algorithm = "leaky_bucket"
	AlgorithmDailyQuota  Algorithm = "daily_quota"
)

// Profile configures one (source, operation) bucket.
type Profile struct {
	Algorithm         Algorithm
	RequestsPerSecond float64
	Burst             int
	DailyQuota        int
}

// Lease is returned by Acquire on success.
type Lease struct {
	Source   string
	Op       string
	Waited   time.Duration
}

type bucket struct {
	source  string
	op      string
	profile Profile

	leaky *rate.Limiter

	mu           sync.Mutex
	tokensRemain int
	windowReset  time.Time
}

// Limiter is the process-wide registry of buckets keyed by (source, operation).
type Limiter struct {
	mu      sync.RWMutex
	buckets map[string]*bucket
}

// NewLimiter creates an empty registry; buckets are added via Configure.
func NewLimiter() *Limiter {
	return &Limiter{buckets: make(map[string]*bucket)}
}

func key(source, op string) string { return source + "::" + op }

// Configure installs or replaces the profile for a (source, operation) pair.
func (l *Limiter) Configure(source, op string, p Profile) {
	l.mu.Lock()
	defer l.mu.Unlock()

	b := &bucket{source: source, op: op, profile: p}
	if p.Algorithm == AlgorithmLeakyBucket {
		burst := p.Burst
		if burst <= 0 {
			burst = 1
		}
		b.leaky = rate.NewLimiter(rate.Limit(p.RequestsPerSecond), burst)
	}
	if p.Algorithm == AlgorithmDailyQuota {
		b.tokensRemain = p.DailyQuota
		b.windowReset = nextMidnightUTC(time.Now())
	}
	l.buckets[key(source, op)] = b
}

func nextMidnightUTC(from time.Time) time.Time {
	y, m, d := from.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC).AddDate(0, 0, 1)
}

// ErrRateLimited is returned when max_wait elapses without a lease.
type ErrRateLimited struct {
	Source, Op string
	RetryAfter time.Duration
}

func (e *ErrRateLimited) Error() string {
	return fmt.Sprintf("rate limited: %s/%s, retry after %s", e.Source, e.Op, e.RetryAfter)
}

// Acquire blocks up to maxWait for a lease on (source, op). It returns a
// rate-limited *AdapterError-compatible error when no lease is obtained in
// time.
func (l *Limiter) Acquire(ctx context.Context, source, op string, maxWait time.Duration) (*Lease, error) {
	l.mu.RLock()
	b, ok := l.buckets[key(source, op)]
	l.mu.RUnlock()
	if !ok {
		// Unconfigured buckets are treated as unlimited (e.g. the local source).
		return &Lease{Source: source, Op: op}, nil
	}

	start := time.Now()
	waitCtx, cancel := context.WithTimeout(ctx, maxWait)
	defer cancel()

	switch b.profile.Algorithm {
	case AlgorithmDailyQuota:
		b.mu.Lock()
		if time.Now().After(b.windowReset) {
			b.tokensRemain = b.profile.DailyQuota
			b.windowReset = nextMidnightUTC(time.Now())
		}
		if b.tokensRemain <= 0 {
			retryAfter := time.Until(b.windowReset)
			b.mu.Unlock()
			return nil, &ErrRateLimited{Source: source, Op: op, RetryAfter: retryAfter}
		}
		b.tokensRemain--
		b.mu.Unlock()
		return &Lease{Source: source, Op: op, Waited: time.Since(start)}, nil

	default: // leaky bucket
		if err := b.leaky.WaitN(waitCtx, 1); err != nil {
			return nil, &ErrRateLimited{Source: source, Op: op, RetryAfter: maxWait}
		}
		return &Lease{Source: source, Op: op, Waited: time.Since(start)}, nil
	}
}

// TokensRemaining exposes the remaining-quota admin view.
func (l *Limiter) TokensRemaining(source, op string) (int, bool) {
	l.mu.RLock()
	b, ok := l.buckets[key(source, op)]
	l.mu.RUnlock()
	if !ok {
		return 0, false
	}
	if b.profile.Algorithm != AlgorithmDailyQuota {
		return 0, false
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.tokensRemain, true
}

// BudgetSnapshot lists every configured daily-quota bucket's remaining
// tokens, for the admin surface.
func (l *Limiter) BudgetSnapshot() map[string]int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make(map[string]int)
	for k, b := range l.buckets {
		if b.profile.Algorithm == AlgorithmDailyQuota {
			b.mu.Lock()
			out[k] = b.tokensRemain
			b.mu.Unlock()
		}
	}
	return out
}

// ProcessRateLimitHeaders lets an adapter report a server-told Retry-After
// window. It logs the window at debug level only; no bucket's state
// changes, so subsequent Acquire calls are not delayed by it.
func (l *Limiter) ProcessRateLimitHeaders(source, op string, retryAfter time.Duration) {
	if retryAfter <= 0 {
		return
	}
	log.Debug().Str("source", source).Str("op", op).Dur("retry_after", retryAfter).
		Msg("rate limiter observed upstream retry-after header")
}

// classify turns an Acquire failure into a domain error kind for the retry
// policy to consume.
func classify(err error) domain.ErrorKind {
	if _, ok := err.(*ErrRateLimited); ok {
		return domain.ErrKindRateLimited
	}
	return domain.ErrKindTransient
}

// AsAdapterError wraps an Acquire failure for a given source/operation.
func AsAdapterError(source, op string, err error) *domain.AdapterError {
	ae := domain.NewAdapterError(source, op, classify(err), err)
	if rl, ok := err.(*ErrRateLimited); ok {
		ae.RetryAfter = rl.RetryAfter
	}
	return ae
}
