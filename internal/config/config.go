// Package config loads service configuration from a YAML file with
// environment-variable overrides.
package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

// Server holds the HTTP listener addresses.
type Server struct {
	Addr        string `mapstructure:"addr"`
	MetricsAddr string `mapstructure:"metrics_addr"`
}

// Log holds logging settings.
type Log struct {
	Level string `mapstructure:"level"`
}

// Cache tiers entry lifetimes by query shape.
type Cache struct {
	QuoteTTLSeconds    int `mapstructure:"quote_ttl_seconds"`
	IntradayTTLSeconds int `mapstructure:"intraday_ttl_seconds"`
	HourlyTTLSeconds   int `mapstructure:"hourly_ttl_seconds"`
	DailyTTLSeconds    int `mapstructure:"daily_ttl_seconds"`
}

// Resolve carries the deployment policy switches of the fallback chain.
type Resolve struct {
	ProbeBeforeCache       bool    `mapstructure:"probe_before_cache"`
	AllowSyntheticFallback bool    `mapstructure:"allow_synthetic_fallback"`
	StoreCompleteness      float64 `mapstructure:"store_completeness"`
}

// Backend configures the primary live-data service client.
type Backend struct {
	BaseURL         string `mapstructure:"base_url"`
	APIKey          string `mapstructure:"api_key"`
	QuoteTimeoutMs  int    `mapstructure:"quote_timeout_ms"`
	BarsTimeoutMs   int    `mapstructure:"bars_timeout_ms"`
	HealthTimeoutMs int    `mapstructure:"health_timeout_ms"`
}

// Upstream configures the secondary direct provider client.
type Upstream struct {
	BaseURL            string `mapstructure:"base_url"`
	APIKey             string `mapstructure:"api_key"`
	TimeoutMs          int    `mapstructure:"timeout_ms"`
	RateLimitPerMinute int    `mapstructure:"rate_limit_per_minute"`
}

// Store configures the durable bar store.
type Store struct {
	Path           string `mapstructure:"path"`
	WriteQueueSize int    `mapstructure:"write_queue_size"`
}

// Root is the full configuration tree.
type Root struct {
	Server   Server   `mapstructure:"server"`
	Log      Log      `mapstructure:"log"`
	Cache    Cache    `mapstructure:"cache"`
	Resolve  Resolve  `mapstructure:"resolve"`
	Backend  Backend  `mapstructure:"backend"`
	Upstream Upstream `mapstructure:"upstream"`
	Store    Store    `mapstructure:"store"`
}

// Load reads configuration from path (or ./config.yaml when empty) and the
// environment. Environment variables use the MD_ prefix with underscores,
// e.g. MD_BACKEND_BASE_URL, and take precedence over file values.
func Load(path string) (Root, error) {
	v := viper.New()

	v.SetEnvPrefix("MD")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Root{}, fmt.Errorf("read config %s: %w", path, err)
		}
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		// Missing optional config file is fine; defaults and env apply.
		_ = v.ReadInConfig()
	}

	var c Root
	if err := v.Unmarshal(&c); err != nil {
		return Root{}, fmt.Errorf("unmarshal config: %w", err)
	}

	if c.Resolve.StoreCompleteness <= 0 || c.Resolve.StoreCompleteness > 1 {
		return Root{}, fmt.Errorf("resolve.store_completeness must be in (0,1], got %v", c.Resolve.StoreCompleteness)
	}
	return c, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.addr", ":8080")
	v.SetDefault("server.metrics_addr", ":9090")
	v.SetDefault("log.level", "info")

	v.SetDefault("cache.quote_ttl_seconds", 15)
	v.SetDefault("cache.intraday_ttl_seconds", 30)
	v.SetDefault("cache.hourly_ttl_seconds", 120)
	v.SetDefault("cache.daily_ttl_seconds", 300)

	v.SetDefault("resolve.probe_before_cache", false)
	v.SetDefault("resolve.allow_synthetic_fallback", true)
	v.SetDefault("resolve.store_completeness", 0.8)

	v.SetDefault("backend.base_url", "http://localhost:8091")
	v.SetDefault("backend.quote_timeout_ms", 4000)
	v.SetDefault("backend.bars_timeout_ms", 8000)
	v.SetDefault("backend.health_timeout_ms", 2000)

	v.SetDefault("upstream.base_url", "http://localhost:8092")
	v.SetDefault("upstream.timeout_ms", 5000)
	v.SetDefault("upstream.rate_limit_per_minute", 120)

	v.SetDefault("store.path", "data/bars.db")
	v.SetDefault("store.write_queue_size", 256)
}
