package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLimiter_UnconfiguredIsUnlimited(t *testing.T) {
	l := NewLimiter()
	lease, err := l.Acquire(context.Background(), "local", "search", time.Second)
	require.NoError(t, err)
	assert.Equal(t, "local", lease.Source)
}

func TestLimiter_LeakyBucketThrottles(t *testing.T) {
	l := NewLimiter()
	l.Configure("ebay", "search", Profile{
		Algorithm:         AlgorithmLeakyBucket,
		RequestsPerSecond: 2,
		Burst:             1,
	})

	ctx := context.Background()
	_, err := l.Acquire(ctx, "ebay", "search", time.Second)
	require.NoError(t, err)

	start := time.Now()
	_, err = l.Acquire(ctx, "ebay", "search", time.Second)
	require.NoError(t, err)
	assert.GreaterOrEqual(t, time.Since(start), 200*time.Millisecond)
}

func TestLimiter_LeakyBucketTimesOut(t *testing.T) {
	l := NewLimiter()
	l.Configure("ebay", "search", Profile{
		Algorithm:         AlgorithmLeakyBucket,
		RequestsPerSecond: 0.1,
		Burst:             1,
	})
	ctx := context.Background()
	_, err := l.Acquire(ctx, "ebay", "search", time.Second)
	require.NoError(t, err)

	_, err = l.Acquire(ctx, "ebay", "search", 50*time.Millisecond)
	require.Error(t, err)
	var rlErr *ErrRateLimited
	assert.ErrorAs(t, err, &rlErr)
}

func TestLimiter_DailyQuotaExhausts(t *testing.T) {
	l := NewLimiter()
	l.Configure("marketcheck", "search", Profile{
		Algorithm:  AlgorithmDailyQuota,
		DailyQuota: 2,
	})
	ctx := context.Background()

	_, err := l.Acquire(ctx, "marketcheck", "search", time.Second)
	require.NoError(t, err)
	_, err = l.Acquire(ctx, "marketcheck", "search", time.Second)
	require.NoError(t, err)

	_, err = l.Acquire(ctx, "marketcheck", "search", time.Second)
	require.Error(t, err)

	remaining, ok := l.TokensRemaining("marketcheck", "search")
	require.True(t, ok)
	assert.Equal(t, 0, remaining)
}

func TestLimiter_BudgetSnapshot(t *testing.T) {
	l := NewLimiter()
	l.Configure("marketcheck", "search", Profile{Algorithm: AlgorithmDailyQuota, DailyQuota: 5})
	snap := l.BudgetSnapshot()
	assert.Equal(t, 5, snap["marketcheck::search"])
}

func TestAsAdapterError_ClassifiesRateLimited(t *testing.T) {
	err := &ErrRateLimited{Source: "ebay", Op: "search", RetryAfter: time.Second}
	ae := AsAdapterError("ebay", "search", err)
	assert.True(t, ae.Retryable())
	assert.Equal(t, time.Second, ae.RetryAfter)
}
