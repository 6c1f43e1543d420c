package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/thetangstr/vehiclesearch/application/orchestrator"
	"github.com/thetangstr/vehiclesearch/application/scoring"
	"github.com/thetangstr/vehiclesearch/infrastructure/adapters/autotrader"
	"github.com/thetangstr/vehiclesearch/infrastructure/adapters/ebay"
	"github.com/thetangstr/vehiclesearch/infrastructure/adapters/feed"
	"github.com/thetangstr/vehiclesearch/infrastructure/adapters/marketcheck"
	"github.com/thetangstr/vehiclesearch/infrastructure/adapters/sample"
	"github.com/thetangstr/vehiclesearch/infrastructure/breaker"
	"github.com/thetangstr/vehiclesearch/infrastructure/cache"
	"github.com/thetangstr/vehiclesearch/infrastructure/config"
	"github.com/thetangstr/vehiclesearch/infrastructure/index"
	"github.com/thetangstr/vehiclesearch/infrastructure/freshness"
	"github.com/thetangstr/vehiclesearch/infrastructure/ratelimit"
	"github.com/thetangstr/vehiclesearch/infrastructure/scheduler"
	"github.com/thetangstr/vehiclesearch/internal/dispatch"
)

// app bundles every wired component one aggregatorctl invocation needs.
type app struct {
	cfg          *config.Config
	localIndex   index.Store
	cacheLayer   *cache.Cache
	limiter      *ratelimit.Limiter
	breakers     *breaker.Registry
	engine       *dispatch.Engine
	orchestrator *orchestrator.Orchestrator
	scheduler    *scheduler.Scheduler
	freshnessMgr *freshness.Manager
}

// buildApp loads configuration from configDir and wires every
// infrastructure and application component behind it. The local index
// falls back to an in-memory store when POSTGRES_DSN is unset, and every
// source adapter that lacks required credentials is skipped with a
// warning rather than failing startup.
func buildApp(ctx context.Context, configDir string) (*app, error) {
	cfg, err := config.Load(configDir)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	localIndex, err := openLocalIndex(cfg)
	if err != nil {
		return nil, fmt.Errorf("open local index: %w", err)
	}

	cacheLayer, err := cache.NewFromURL(ctx, cfg.Cache.RedisAddr, cache.TTLs{
		Hot: cfg.Cache.HotTTL, Warm: cfg.Cache.WarmTTL, Cold: cfg.Cache.ColdTTL,
	})
	if err != nil {
		return nil, fmt.Errorf("open cache: %w", err)
	}

	limiter := ratelimit.NewLimiter()
	for source, ops := range cfg.RateLimitProfiles() {
		for op, profile := range ops {
			limiter.Configure(source, op, profile)
		}
	}

	cb := breaker.NewRegistry()
	breakerCfgs, err := cfg.BreakerConfigs()
	if err != nil {
		return nil, fmt.Errorf("build breaker configs: %w", err)
	}
	for source, ops := range breakerCfgs {
		for op, bcfg := range ops {
			cb.Configure(source, op, bcfg)
		}
	}

	engine := dispatch.NewEngine(limiter, cb)
	registerAdapters(engine, cfg, localIndex, limiter, cb)

	orch := orchestrator.New(engine, localIndex, cacheLayer, scoring.DefaultWeights, cfg.Sources.Priority, 8*time.Second)

	return &app{
		cfg:          cfg,
		localIndex:   localIndex,
		cacheLayer:   cacheLayer,
		limiter:      limiter,
		breakers:     cb,
		engine:       engine,
		orchestrator: orch,
		scheduler:    scheduler.New(cfg.SchedulerWorkerPoolSize),
		freshnessMgr: freshness.NewManager(freshness.DefaultThresholds()),
	}, nil
}

func openLocalIndex(cfg *config.Config) (index.Store, error) {
	if cfg.Index.PostgresDSN == "" {
		log.Info().Msg("aggregatorctl: no POSTGRES_DSN configured, using in-memory local index")
		return index.NewInMemoryStore(), nil
	}
	return index.Open(cfg.Index.PostgresDSN)
}

// registerAdapters registers the local adapter's sibling upstreams into
// the dispatch engine. The local store itself is never registered here:
// the orchestrator queries it directly, so registering it too would
// double-count every local listing in the merged result set.
func registerAdapters(engine *dispatch.Engine, cfg *config.Config, localIndex index.Store, limiter *ratelimit.Limiter, cb *breaker.Registry) {
	enabled := make(map[string]bool, len(cfg.Sources.Enabled))
	for _, tag := range cfg.Sources.Enabled {
		enabled[tag] = true
	}

	if enabled["ebay"] {
		clientID, secret := os.Getenv("EBAY_CLIENT_ID"), os.Getenv("EBAY_CLIENT_SECRET")
		if clientID == "" || secret == "" {
			log.Warn().Msg("aggregatorctl: ebay enabled but EBAY_CLIENT_ID/EBAY_CLIENT_SECRET unset, skipping")
		} else {
			a := ebay.New(ebay.Credentials{ClientID: clientID, ClientSecret: secret},
				"https://api.ebay.com", "https://api.ebay.com/identity/v1/oauth2/token", limiter, cb)
			engine.Register(dispatch.Registered{Adapter: a})
		}
	}

	if enabled["marketcheck"] {
		apiKey := os.Getenv("MARKETCHECK_API_KEY")
		if apiKey == "" {
			log.Warn().Msg("aggregatorctl: marketcheck enabled but MARKETCHECK_API_KEY unset, skipping")
		} else {
			a := marketcheck.New(apiKey, "https://mc-api.marketcheck.com", limiter, cb)
			engine.Register(dispatch.Registered{Adapter: a})
		}
	}

	if enabled["autotrader"] {
		a := autotrader.New("https://www.autotrader.com", limiter, cb)
		engine.Register(dispatch.Registered{Adapter: a})
	}

	if enabled["classifieds_feed"] {
		feedURL := os.Getenv("CLASSIFIEDS_FEED_URL")
		if feedURL == "" {
			log.Warn().Msg("aggregatorctl: classifieds_feed enabled but CLASSIFIEDS_FEED_URL unset, skipping")
		} else {
			a := feed.New(feedURL, limiter, cb)
			engine.Register(dispatch.Registered{Adapter: a})
		}
	}

	if enabled["sample"] {
		engine.Register(dispatch.Registered{Adapter: sample.New(nil)})
	}
}
