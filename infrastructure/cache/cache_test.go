package cache

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testTTLs() TTLs {
	return TTLs{Hot: 50 * time.Millisecond, Warm: time.Second, Cold: time.Hour}
}

func TestCache_SetGetLocalOnly(t *testing.T) {
	c := New(testTTLs(), nil)
	ctx := context.Background()

	c.Set(ctx, "k1", []byte(`"v1"`), TierHot)
	v, ok := c.Get(ctx, "k1")
	require.True(t, ok)
	assert.Equal(t, `"v1"`, string(v))
}

func TestCache_ExpiresAfterTTL(t *testing.T) {
	c := New(testTTLs(), nil)
	ctx := context.Background()
	c.Set(ctx, "k1", []byte(`"v1"`), TierHot)

	time.Sleep(80 * time.Millisecond)
	_, ok := c.Get(ctx, "k1")
	assert.False(t, ok)
}

func TestCache_GetOrLoadCoalescesConcurrentMisses(t *testing.T) {
	c := New(testTTLs(), nil)
	ctx := context.Background()
	var calls int32

	load := func(ctx context.Context) (interface{}, error) {
		atomic.AddInt32(&calls, 1)
		time.Sleep(20 * time.Millisecond)
		return map[string]string{"result": "ok"}, nil
	}

	done := make(chan struct{}, 5)
	for i := 0; i < 5; i++ {
		go func() {
			_, _, err := c.GetOrLoad(ctx, "search:honda", TierWarm, load)
			assert.NoError(t, err)
			done <- struct{}{}
		}()
	}
	for i := 0; i < 5; i++ {
		<-done
	}

	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
}

func TestCache_InvalidateRemovesLocalEntry(t *testing.T) {
	c := New(testTTLs(), nil)
	ctx := context.Background()
	c.Set(ctx, "k1", []byte(`"v1"`), TierWarm)
	c.Invalidate(ctx, "k1")

	_, ok := c.Get(ctx, "k1")
	assert.False(t, ok)
}

func TestCache_InvalidatePatternClearsLocalTier(t *testing.T) {
	c := New(testTTLs(), nil)
	ctx := context.Background()
	c.Set(ctx, "search:a", []byte(`"1"`), TierWarm)
	c.Set(ctx, "search:b", []byte(`"2"`), TierWarm)

	c.InvalidatePattern(ctx, "search:*")

	_, okA := c.Get(ctx, "search:a")
	_, okB := c.Get(ctx, "search:b")
	assert.False(t, okA)
	assert.False(t, okB)
}
