package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Server.Addr != ":8080" || cfg.Server.MetricsAddr != ":9090" {
		t.Fatalf("server defaults wrong: %+v", cfg.Server)
	}
	if cfg.Cache.QuoteTTLSeconds != 15 || cfg.Cache.DailyTTLSeconds != 300 {
		t.Fatalf("cache defaults wrong: %+v", cfg.Cache)
	}
	if cfg.Resolve.ProbeBeforeCache {
		t.Fatalf("probe_before_cache must default off")
	}
	if !cfg.Resolve.AllowSyntheticFallback {
		t.Fatalf("allow_synthetic_fallback must default on")
	}
	if cfg.Resolve.StoreCompleteness != 0.8 {
		t.Fatalf("store_completeness default = %v", cfg.Resolve.StoreCompleteness)
	}
	if cfg.Backend.QuoteTimeoutMs != 4000 || cfg.Backend.BarsTimeoutMs != 8000 {
		t.Fatalf("backend timeout defaults wrong: %+v", cfg.Backend)
	}
	if cfg.Upstream.RateLimitPerMinute != 120 {
		t.Fatalf("upstream rate limit default = %d", cfg.Upstream.RateLimitPerMinute)
	}
}

func TestLoadFileOverridesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	body := []byte(`
server:
  addr: ":9999"
resolve:
  probe_before_cache: true
  allow_synthetic_fallback: false
  store_completeness: 0.5
backend:
  base_url: "http://backend.internal:8091"
  api_key: "secret"
`)
	if err := os.WriteFile(path, body, 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Server.Addr != ":9999" {
		t.Fatalf("addr = %q", cfg.Server.Addr)
	}
	if !cfg.Resolve.ProbeBeforeCache || cfg.Resolve.AllowSyntheticFallback {
		t.Fatalf("resolve flags not loaded: %+v", cfg.Resolve)
	}
	if cfg.Resolve.StoreCompleteness != 0.5 {
		t.Fatalf("store_completeness = %v", cfg.Resolve.StoreCompleteness)
	}
	if cfg.Backend.BaseURL != "http://backend.internal:8091" || cfg.Backend.APIKey != "secret" {
		t.Fatalf("backend not loaded: %+v", cfg.Backend)
	}
	// untouched sections keep their defaults
	if cfg.Cache.QuoteTTLSeconds != 15 {
		t.Fatalf("partial file clobbered defaults: %+v", cfg.Cache)
	}
}

func TestLoadMissingExplicitFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Fatalf("explicitly named missing file must error")
	}
}

func TestLoadRejectsBadCompleteness(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte("resolve:\n  store_completeness: 1.5\n"), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	if _, err := Load(path); err == nil {
		t.Fatalf("store_completeness 1.5 must be rejected")
	}
}
