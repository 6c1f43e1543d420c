// Package cache implements the tiered search-result cache: a Redis-backed
// remote tier with an in-process fallback so the aggregator runs without
// Redis configured, and golang.org/x/sync/singleflight to coalesce
// concurrent misses on the same key.
package cache

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/singleflight"
)

// Tier names the freshness band a cached entry belongs to.
type Tier string

const (
	TierHot  Tier = "hot"
	TierWarm Tier = "warm"
	TierCold Tier = "cold"
)

// TTLs configures each tier's expiry.
type TTLs struct {
	Hot  time.Duration
	Warm time.Duration
	Cold time.Duration
}

func (t TTLs) forTier(tier Tier) time.Duration {
	switch tier {
	case TierHot:
		return t.Hot
	case TierWarm:
		return t.Warm
	default:
		return t.Cold
	}
}

// remote is the subset of *redis.Client the cache depends on, so tests can
// substitute a fake without a live server.
type remote interface {
	Get(ctx context.Context, key string) *redis.StringCmd
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration) *redis.StatusCmd
	Del(ctx context.Context, keys ...string) *redis.IntCmd
	Keys(ctx context.Context, pattern string) *redis.StringSliceCmd
}

// Cache is the tiered, single-flighted search-result cache. It prefers a
// Redis-backed remote tier when configured and always keeps a small
// in-process tier so a cold or unreachable Redis never hard-fails a
// lookup.
type Cache struct {
	ttls  TTLs
	rdb   remote
	group singleflight.Group

	mu    sync.Mutex
	local map[string]localEntry
}

type localEntry struct {
	value     []byte
	expiresAt time.Time
}

// New builds a Cache. rdb may be nil, in which case only the in-process
// tier is used, so the cache keeps working when Redis is unavailable.
func New(ttls TTLs, rdb remote) *Cache {
	return &Cache{ttls: ttls, rdb: rdb, local: make(map[string]localEntry)}
}

// NewFromURL builds a Cache backed by Redis when redisURL is non-empty,
// otherwise it returns a local-only Cache.
func NewFromURL(ctx context.Context, redisURL string, ttls TTLs) (*Cache, error) {
	if redisURL == "" {
		log.Info().Msg("cache: no REDIS_URL configured, using in-process tier only")
		return New(ttls, nil), nil
	}
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, err
	}
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		log.Warn().Err(err).Msg("cache: redis ping failed, falling back to in-process tier")
		return New(ttls, nil), nil
	}
	return New(ttls, client), nil
}

// Get returns the cached bytes for key and whether they were found.
func (c *Cache) Get(ctx context.Context, key string) ([]byte, bool) {
	if c.rdb != nil {
		val, err := c.rdb.Get(ctx, key).Bytes()
		if err == nil {
			return val, true
		}
		if err != redis.Nil {
			log.Warn().Err(err).Str("key", key).Msg("cache: redis get failed, falling back to local tier")
		}
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	entry, ok := c.local[key]
	if !ok || time.Now().After(entry.expiresAt) {
		delete(c.local, key)
		return nil, false
	}
	return entry.value, true
}

// Set writes key into both tiers (when Redis is configured) at the given
// tier's TTL.
func (c *Cache) Set(ctx context.Context, key string, value []byte, tier Tier) {
	ttl := c.ttls.forTier(tier)

	if c.rdb != nil {
		if err := c.rdb.Set(ctx, key, value, ttl).Err(); err != nil {
			log.Warn().Err(err).Str("key", key).Msg("cache: redis set failed")
		}
	}

	c.mu.Lock()
	c.local[key] = localEntry{value: value, expiresAt: time.Now().Add(ttl)}
	c.mu.Unlock()
}

// GetOrLoad returns the cached value for key, or calls load exactly once
// across concurrent callers on a miss (singleflight), storing the result
// at the given tier before returning it.
func (c *Cache) GetOrLoad(ctx context.Context, key string, tier Tier, load func(ctx context.Context) (interface{}, error)) (interface{}, bool, error) {
	if raw, ok := c.Get(ctx, key); ok {
		var v interface{}
		if err := json.Unmarshal(raw, &v); err == nil {
			return v, true, nil
		}
	}

	v, err, _ := c.group.Do(key, func() (interface{}, error) {
		if raw, ok := c.Get(ctx, key); ok {
			var cached interface{}
			if err := json.Unmarshal(raw, &cached); err == nil {
				return cached, nil
			}
		}
		result, err := load(ctx)
		if err != nil {
			return nil, err
		}
		if raw, err := json.Marshal(result); err == nil {
			c.Set(ctx, key, raw, tier)
		}
		return result, nil
	})
	if err != nil {
		return nil, false, err
	}
	return v, false, nil
}

// Invalidate removes key from both tiers.
func (c *Cache) Invalidate(ctx context.Context, key string) {
	if c.rdb != nil {
		if err := c.rdb.Del(ctx, key).Err(); err != nil {
			log.Warn().Err(err).Str("key", key).Msg("cache: redis del failed")
		}
	}
	c.mu.Lock()
	delete(c.local, key)
	c.mu.Unlock()
}

// InvalidatePattern removes every remote key matching pattern, for
// listing-level invalidation on upsert. The local tier is cleared
// entirely since its keys are a small process-local subset.
func (c *Cache) InvalidatePattern(ctx context.Context, pattern string) {
	if c.rdb != nil {
		keys, err := c.rdb.Keys(ctx, pattern).Result()
		if err == nil && len(keys) > 0 {
			if err := c.rdb.Del(ctx, keys...).Err(); err != nil {
				log.Warn().Err(err).Str("pattern", pattern).Msg("cache: redis pattern del failed")
			}
		}
	}
	c.mu.Lock()
	c.local = make(map[string]localEntry)
	c.mu.Unlock()
}
