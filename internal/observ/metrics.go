package observ

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	ResolveRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "resolve_requests_total", Help: "Resolution requests by query kind"},
		[]string{"kind"},
	)
	ResolveSource = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "resolve_source_total", Help: "Responses by query kind and serving source"},
		[]string{"kind", "source"},
	)
	ResolveDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{Name: "resolve_duration_seconds", Help: "End-to-end resolution latency"},
		[]string{"kind"},
	)
	CacheHits = prometheus.NewCounter(
		prometheus.CounterOpts{Name: "cache_hits_total", Help: "TTL cache hits"},
	)
	CacheMisses = prometheus.NewCounter(
		prometheus.CounterOpts{Name: "cache_misses_total", Help: "TTL cache misses, including lazy expiries"},
	)
	SourceErrors = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "source_errors_total", Help: "Per-source unavailability signals during fallback"},
		[]string{"source"},
	)
	StoreWriteFailures = prometheus.NewCounter(
		prometheus.CounterOpts{Name: "store_write_failures_total", Help: "Background write-through failures (logged, never surfaced)"},
	)
	StoreWriteDrops = prometheus.NewCounter(
		prometheus.CounterOpts{Name: "store_write_drops_total", Help: "Write-through jobs dropped because the queue was full"},
	)
)

func init() {
	prometheus.MustRegister(
		ResolveRequests, ResolveSource, ResolveDuration,
		CacheHits, CacheMisses, SourceErrors,
		StoreWriteFailures, StoreWriteDrops,
	)
}

// ServeMetrics exposes the prometheus registry on its own listener.
func ServeMetrics(addr string) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{Addr: addr, Handler: mux}
	go func() { _ = srv.ListenAndServe() }()
	return srv
}
