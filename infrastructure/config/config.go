// Package config loads the aggregator's configuration: one YAML file per
// concern, falling back to a coded default when the file is absent, with
// durations expressed as strings and parsed at load time.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v2"

	"github.com/thetangstr/vehiclesearch/infrastructure/breaker"
	"github.com/thetangstr/vehiclesearch/infrastructure/ratelimit"
)

// envOverrides binds the deployment-facing environment variables via
// struct tags using caarlos0/env; YAML-shaped overrides (TTL maps,
// per-source profiles) stay on the file loaders below.
type envOverrides struct {
	RedisURL           string `env:"REDIS_URL"`
	PostgresDSN        string `env:"POSTGRES_DSN"`
	ConfigDir          string `env:"AGGREGATOR_CONFIG_DIR"`
	WorkerPoolSize     int    `env:"WORKER_POOL_SIZE"`
	EnableSampleSource bool   `env:"ENABLE_SAMPLE_SOURCE"`
}

// CacheConfig is the cache.yaml-backed shape for the tiered cache.
type CacheConfig struct {
	RedisAddr     string                   `yaml:"redis_addr"`
	RedisPassword string                   `yaml:"redis_password"`
	RedisDB       int                      `yaml:"redis_db"`
	HotTTL        time.Duration            `yaml:"-"`
	WarmTTL       time.Duration            `yaml:"-"`
	ColdTTL       time.Duration            `yaml:"-"`
	HotTTLRaw     string                   `yaml:"hot_ttl"`
	WarmTTLRaw    string                   `yaml:"warm_ttl"`
	ColdTTLRaw    string                   `yaml:"cold_ttl"`
}

func defaultCacheConfig() CacheConfig {
	return CacheConfig{
		RedisAddr: "localhost:6379",
		HotTTL:    30 * time.Second,
		WarmTTL:   5 * time.Minute,
		ColdTTL:   1 * time.Hour,
	}
}

// RateLimitConfig maps a source+operation to a ratelimit.Profile, the
// shape loaded from rate_limits.yaml.
type RateLimitConfig struct {
	Sources map[string]map[string]RawProfile `yaml:"sources"`
}

// RawProfile is the YAML-facing shape before duration parsing.
type RawProfile struct {
	Algorithm         string `yaml:"algorithm"`
	RequestsPerSecond float64 `yaml:"requests_per_second"`
	Burst             int     `yaml:"burst"`
	DailyQuota        int     `yaml:"daily_quota"`
}

func defaultRateLimitConfig() RateLimitConfig {
	return RateLimitConfig{
		Sources: map[string]map[string]RawProfile{
			"ebay": {
				"search": {Algorithm: "leaky_bucket", RequestsPerSecond: 5, Burst: 10},
			},
			"marketcheck": {
				"search": {Algorithm: "daily_quota", DailyQuota: 2000},
			},
			"autotrader": {
				"search": {Algorithm: "leaky_bucket", RequestsPerSecond: 0.5, Burst: 1},
			},
			"classifieds_feed": {
				"search": {Algorithm: "leaky_bucket", RequestsPerSecond: 2, Burst: 4},
			},
		},
	}
}

// CircuitConfig mirrors circuits.yaml, per (source, operation).
type CircuitConfig struct {
	Sources map[string]map[string]RawBreaker `yaml:"sources"`
}

// RawBreaker is the YAML-facing shape before duration parsing.
type RawBreaker struct {
	FailureThreshold int    `yaml:"failure_threshold"`
	SuccessThreshold int    `yaml:"success_threshold"`
	Timeout          string `yaml:"timeout"`
	MaxRequests      int    `yaml:"max_requests"`
}

func defaultCircuitConfig() CircuitConfig {
	return CircuitConfig{
		Sources: map[string]map[string]RawBreaker{
			"ebay":        {"search": {FailureThreshold: 5, SuccessThreshold: 2, Timeout: "30s", MaxRequests: 1}},
			"marketcheck": {"search": {FailureThreshold: 5, SuccessThreshold: 2, Timeout: "30s", MaxRequests: 1}},
			"autotrader":  {"search": {FailureThreshold: 3, SuccessThreshold: 2, Timeout: "2m", MaxRequests: 1}},
			"classifieds_feed": {"search": {FailureThreshold: 4, SuccessThreshold: 2, Timeout: "60s", MaxRequests: 1}},
		},
	}
}

// IndexConfig mirrors index.yaml.
type IndexConfig struct {
	PostgresDSN     string `yaml:"postgres_dsn"`
	MigrationsPath  string `yaml:"migrations_path"`
}

func defaultIndexConfig() IndexConfig {
	return IndexConfig{MigrationsPath: "infrastructure/index/migrations"}
}

// SourcesConfig mirrors sources.yaml, listing which sources are enabled
// and their priority for dedup winner selection.
type SourcesConfig struct {
	Enabled  []string       `yaml:"enabled"`
	Priority map[string]int `yaml:"priority"`
}

func defaultSourcesConfig() SourcesConfig {
	return SourcesConfig{
		Enabled: []string{"local", "ebay", "marketcheck", "classifieds_feed"},
		Priority: map[string]int{
			"local":            0,
			"ebay":             10,
			"marketcheck":      20,
			"classifieds_feed": 30,
			"autotrader":       40,
			"sample":           100,
		},
	}
}

// Config is the fully-resolved, loaded configuration for one process.
type Config struct {
	Cache   CacheConfig
	Rate    RateLimitConfig
	Circuit CircuitConfig
	Index   IndexConfig
	Sources SourcesConfig

	SchedulerWorkerPoolSize int
	EnableSampleSource      bool
	ConfigDir               string
}

// Load reads per-concern YAML files from dir, falling back to coded
// defaults for any file that does not exist, then applies environment
// overrides and validates the result.
func Load(dir string) (*Config, error) {
	cfg := &Config{ConfigDir: dir, SchedulerWorkerPoolSize: 4}

	var err error
	if cfg.Cache, err = loadCacheConfig(dir); err != nil {
		return nil, fmt.Errorf("load cache config: %w", err)
	}
	if cfg.Rate, err = loadRateLimitConfig(dir); err != nil {
		return nil, fmt.Errorf("load rate limit config: %w", err)
	}
	if cfg.Circuit, err = loadCircuitConfig(dir); err != nil {
		return nil, fmt.Errorf("load circuit config: %w", err)
	}
	if cfg.Index, err = loadIndexConfig(dir); err != nil {
		return nil, fmt.Errorf("load index config: %w", err)
	}
	if cfg.Sources, err = loadSourcesConfig(dir); err != nil {
		return nil, fmt.Errorf("load sources config: %w", err)
	}

	if err := applyEnvOverrides(cfg); err != nil {
		return nil, err
	}

	if err := validate(cfg); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return cfg, nil
}

func readYAML(path string, out interface{}) (bool, error) {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return false, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return false, fmt.Errorf("read %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, out); err != nil {
		return false, fmt.Errorf("unmarshal %s: %w", path, err)
	}
	return true, nil
}

func loadCacheConfig(dir string) (CacheConfig, error) {
	cfg := defaultCacheConfig()
	found, err := readYAML(filepath.Join(dir, "cache.yaml"), &cfg)
	if err != nil {
		return cfg, err
	}
	if !found {
		return cfg, nil
	}
	for raw, dst := range map[string]*time.Duration{
		cfg.HotTTLRaw:  &cfg.HotTTL,
		cfg.WarmTTLRaw: &cfg.WarmTTL,
		cfg.ColdTTLRaw: &cfg.ColdTTL,
	} {
		if raw == "" {
			continue
		}
		d, err := time.ParseDuration(raw)
		if err != nil {
			return cfg, fmt.Errorf("parse cache TTL %q: %w", raw, err)
		}
		*dst = d
	}
	return cfg, nil
}

func loadRateLimitConfig(dir string) (RateLimitConfig, error) {
	cfg := defaultRateLimitConfig()
	if _, err := readYAML(filepath.Join(dir, "rate_limits.yaml"), &cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func loadCircuitConfig(dir string) (CircuitConfig, error) {
	cfg := defaultCircuitConfig()
	if _, err := readYAML(filepath.Join(dir, "circuits.yaml"), &cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func loadIndexConfig(dir string) (IndexConfig, error) {
	cfg := defaultIndexConfig()
	if _, err := readYAML(filepath.Join(dir, "index.yaml"), &cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func loadSourcesConfig(dir string) (SourcesConfig, error) {
	cfg := defaultSourcesConfig()
	if _, err := readYAML(filepath.Join(dir, "sources.yaml"), &cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func applyEnvOverrides(cfg *Config) error {
	var overrides envOverrides
	if err := env.Parse(&overrides); err != nil {
		return fmt.Errorf("parse environment overrides: %w", err)
	}

	if overrides.RedisURL != "" {
		cfg.Cache.RedisAddr = overrides.RedisURL
	}
	if overrides.PostgresDSN != "" {
		cfg.Index.PostgresDSN = overrides.PostgresDSN
	}
	if overrides.WorkerPoolSize > 0 {
		cfg.SchedulerWorkerPoolSize = overrides.WorkerPoolSize
	}
	if overrides.EnableSampleSource {
		cfg.EnableSampleSource = true
		cfg.Sources.Enabled = append(cfg.Sources.Enabled, "sample")
	}
	return nil
}

func validate(cfg *Config) error {
	if cfg.Cache.HotTTL <= 0 || cfg.Cache.WarmTTL <= 0 || cfg.Cache.ColdTTL <= 0 {
		return fmt.Errorf("cache TTLs must be positive")
	}
	if len(cfg.Sources.Enabled) == 0 {
		return fmt.Errorf("at least one source must be enabled")
	}
	return nil
}

// RateLimitProfiles converts the loaded RateLimitConfig into ratelimit.Profile
// values ready for Limiter.Configure.
func (c *Config) RateLimitProfiles() map[string]map[string]ratelimit.Profile {
	out := make(map[string]map[string]ratelimit.Profile)
	for source, ops := range c.Rate.Sources {
		out[source] = make(map[string]ratelimit.Profile)
		for op, raw := range ops {
			out[source][op] = ratelimit.Profile{
				Algorithm:         ratelimit.Algorithm(raw.Algorithm),
				RequestsPerSecond: raw.RequestsPerSecond,
				Burst:             raw.Burst,
				DailyQuota:        raw.DailyQuota,
			}
		}
	}
	return out
}

// BreakerConfigs converts the loaded CircuitConfig into breaker.Config
// values ready for Registry.Configure.
func (c *Config) BreakerConfigs() (map[string]map[string]breaker.Config, error) {
	out := make(map[string]map[string]breaker.Config)
	for source, ops := range c.Circuit.Sources {
		out[source] = make(map[string]breaker.Config)
		for op, raw := range ops {
			timeout, err := time.ParseDuration(raw.Timeout)
			if err != nil {
				return nil, fmt.Errorf("parse breaker timeout for %s/%s: %w", source, op, err)
			}
			out[source][op] = breaker.Config{
				FailureThreshold: uint32(raw.FailureThreshold),
				SuccessThreshold: uint32(raw.SuccessThreshold),
				Timeout:          timeout,
				MaxRequests:      uint32(raw.MaxRequests),
			}
		}
	}
	return out, nil
}
