// mdserver is the market-data resolution service: it answers quote and bar
// queries through a prioritized fallback chain of cache, durable store,
// primary backend and direct upstream, degrading gracefully as sources fail.
package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/tradeview/marketdata/internal/api"
	"github.com/tradeview/marketdata/internal/backend"
	"github.com/tradeview/marketdata/internal/cache"
	"github.com/tradeview/marketdata/internal/config"
	"github.com/tradeview/marketdata/internal/observ"
	"github.com/tradeview/marketdata/internal/resolve"
	"github.com/tradeview/marketdata/internal/store"
	"github.com/tradeview/marketdata/internal/upstream"
)

func main() {
	configPath := flag.String("config", "", "path to config.yaml (optional)")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		// Logger is not up yet.
		os.Stderr.WriteString("config: " + err.Error() + "\n")
		os.Exit(1)
	}

	logger := observ.NewLogger(cfg.Log.Level)
	defer func() { _ = logger.Sync() }()

	barStore, err := store.Open(cfg.Store.Path, logger)
	if err != nil {
		logger.Fatal("open durable store", zap.Error(err))
	}
	writer := store.NewWriter(barStore, cfg.Store.WriteQueueSize, logger)

	ttlCache := cache.New(cache.TTLConfig{
		Quote:    time.Duration(cfg.Cache.QuoteTTLSeconds) * time.Second,
		Intraday: time.Duration(cfg.Cache.IntradayTTLSeconds) * time.Second,
		Hourly:   time.Duration(cfg.Cache.HourlyTTLSeconds) * time.Second,
		Daily:    time.Duration(cfg.Cache.DailyTTLSeconds) * time.Second,
	}, logger)

	primary := backend.New(backend.Config{
		BaseURL:       cfg.Backend.BaseURL,
		APIKey:        cfg.Backend.APIKey,
		QuoteTimeout:  time.Duration(cfg.Backend.QuoteTimeoutMs) * time.Millisecond,
		BarsTimeout:   time.Duration(cfg.Backend.BarsTimeoutMs) * time.Millisecond,
		HealthTimeout: time.Duration(cfg.Backend.HealthTimeoutMs) * time.Millisecond,
	}, logger)
	defer func() { _ = primary.Close() }()

	direct := upstream.New(upstream.Config{
		BaseURL:            cfg.Upstream.BaseURL,
		APIKey:             cfg.Upstream.APIKey,
		Timeout:            time.Duration(cfg.Upstream.TimeoutMs) * time.Millisecond,
		RateLimitPerMinute: cfg.Upstream.RateLimitPerMinute,
	}, logger)
	defer func() { _ = direct.Close() }()

	resolver := resolve.New(ttlCache, barStore, writer, primary, direct, resolve.Policy{
		ProbeBeforeCache:       cfg.Resolve.ProbeBeforeCache,
		AllowSyntheticFallback: cfg.Resolve.AllowSyntheticFallback,
		StoreCompleteness:      cfg.Resolve.StoreCompleteness,
	}, logger)

	router := api.NewRouter(resolver, logger)
	srv := &http.Server{Addr: cfg.Server.Addr, Handler: router}
	metricsSrv := observ.ServeMetrics(cfg.Server.MetricsAddr)

	go func() {
		logger.Info("listening",
			zap.String("addr", cfg.Server.Addr),
			zap.String("metrics_addr", cfg.Server.MetricsAddr),
			zap.Bool("probe_before_cache", cfg.Resolve.ProbeBeforeCache),
			zap.Bool("allow_synthetic_fallback", cfg.Resolve.AllowSyntheticFallback))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("http server", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info("shutting down")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		logger.Warn("http shutdown", zap.Error(err))
	}
	_ = metricsSrv.Shutdown(ctx)

	// Drain queued write-throughs before closing the store.
	writer.Close()
	if err := barStore.Close(); err != nil {
		logger.Warn("store close", zap.Error(err))
	}
	logger.Info("stopped")
}
