// Package resolve implements the multi-source resolution engine: an ordered
// fallback chain (cache, durable store, primary backend, direct upstream,
// stale store, synthetic terminal) with per-source timeouts, write-through
// population, and provenance metadata on every response.
package resolve

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/tradeview/marketdata/internal/marketdata"
	"github.com/tradeview/marketdata/internal/observ"
)

// Cache is the injected TTL cache. Expired entries read as misses.
type Cache interface {
	Get(fp marketdata.Fingerprint) (any, bool)
	Set(fp marketdata.Fingerprint, payload any, ttl time.Duration)
	TTLFor(kind marketdata.Kind, tf marketdata.Timeframe) time.Duration
}

// Backend is the primary live-data service.
type Backend interface {
	Health(ctx context.Context) error
	FetchQuote(ctx context.Context, symbol string) (marketdata.Quote, error)
	FetchBars(ctx context.Context, symbol string, tf marketdata.Timeframe, limit int) ([]marketdata.Bar, error)
}

// Upstream is the secondary direct provider.
type Upstream interface {
	FetchQuotesBatch(ctx context.Context, symbols []string) (map[string]marketdata.Quote, error)
	FetchBars(ctx context.Context, symbol string, tf marketdata.Timeframe, limit int) ([]marketdata.Bar, error)
}

// BarReader reads durably stored history.
type BarReader interface {
	FetchStored(ctx context.Context, symbol string, tf marketdata.Timeframe, limit int) ([]marketdata.Bar, error)
}

// BarWriter accepts fire-and-forget write-through jobs.
type BarWriter interface {
	Enqueue(symbol string, tf marketdata.Timeframe, bars []marketdata.Bar)
}

// Policy carries the deployment-level switches the chain deliberately does
// not hard-code: whether a backend probe gates cache trust, and whether
// exhaustion synthesizes data or fails.
type Policy struct {
	// ProbeBeforeCache: when true, quote resolution probes the backend
	// before trusting cache; a failed probe routes straight to the terminal
	// stage so confirmed-down backends never hide behind warm cache.
	ProbeBeforeCache bool

	// AllowSyntheticFallback: when true, exhaustion yields a deterministic
	// simulated payload marked mock; when false it is a structured
	// DATA_UNAVAILABLE failure.
	AllowSyntheticFallback bool

	// StoreCompleteness is the fraction of the requested limit that stored
	// history must cover to be served as a full answer.
	StoreCompleteness float64
}

// DefaultPolicy matches the common deployment: cache served on hit,
// synthetic fallback on, 80% completeness threshold.
func DefaultPolicy() Policy {
	return Policy{
		ProbeBeforeCache:       false,
		AllowSyntheticFallback: true,
		StoreCompleteness:      0.8,
	}
}

// maximum parallel backend fetches within one multi-symbol request
const backendFanout = 8

// Resolver walks the fallback chain. Stage order is strict: stages are
// never reordered or skipped speculatively, and a source failure is a
// continue-signal, never an error surfaced to the caller.
type Resolver struct {
	cache    Cache
	reader   BarReader
	writer   BarWriter
	backend  Backend
	upstream Upstream
	policy   Policy
	logger   *zap.Logger
	now      func() time.Time
}

// New wires a resolver. reader and writer may be nil when no durable store
// is configured; those stages then read as empty.
func New(cache Cache, reader BarReader, writer BarWriter, backend Backend, upstream Upstream, policy Policy, logger *zap.Logger) *Resolver {
	if policy.StoreCompleteness <= 0 || policy.StoreCompleteness > 1 {
		policy.StoreCompleteness = 0.8
	}
	return &Resolver{
		cache:    cache,
		reader:   reader,
		writer:   writer,
		backend:  backend,
		upstream: upstream,
		policy:   policy,
		logger:   logger,
		now:      time.Now,
	}
}

// ResolveQuotes resolves point-in-time quotes for one or more symbols.
// Symbols walk the chain independently and are merged into one envelope;
// one symbol's failure never blocks another's earlier-stage success.
func (r *Resolver) ResolveQuotes(ctx context.Context, symbols []string) (Envelope, error) {
	start := r.now()
	observ.ResolveRequests.WithLabelValues(string(marketdata.KindQuote)).Inc()
	defer func() {
		observ.ResolveDuration.WithLabelValues(string(marketdata.KindQuote)).
			Observe(time.Since(start).Seconds())
	}()

	normalized := make([]string, 0, len(symbols))
	for _, s := range symbols {
		normalized = append(normalized, marketdata.NormalizeSymbol(s))
	}

	// Stage 1: liveness probe, when policy gates cache on backend health.
	// A failed probe goes directly to the terminal stage: fresh synthetic
	// data is preferred over stale cache once the authoritative source is
	// confirmed down.
	if r.policy.ProbeBeforeCache {
		if err := r.backend.Health(ctx); err != nil {
			observ.SourceErrors.WithLabelValues("probe").Inc()
			r.logger.Warn("backend probe failed, bypassing cache", zap.Error(err))
			return r.terminalQuotes(normalized, "primary backend health probe failed")
		}
	}

	results := make(map[string]symbolResult, len(normalized))

	// Stage 2: cache.
	pending := normalized[:0:0]
	for _, sym := range normalized {
		if v, ok := r.cache.Get(marketdata.QuoteFingerprint(sym)); ok {
			if q, ok := v.(marketdata.Quote); ok {
				results[sym] = symbolResult{quote: q, source: SourceCache}
				continue
			}
		}
		pending = append(pending, sym)
	}

	// Stage 4: primary backend, fanned out per symbol. (Stage 3, the
	// durable store, applies to bar queries only.)
	if len(pending) > 0 {
		pending = r.backendQuotes(ctx, pending, results)
	}

	// Stage 5: direct upstream, one batched call per asset class.
	var unknown []string
	if len(pending) > 0 {
		pending, unknown = r.upstreamQuotes(ctx, pending, results)
	}

	// Stage 7: terminal. Symbols the upstream authoritatively did not know
	// stay failed; symbols that only saw unavailable sources synthesize.
	failed := unknown
	for _, sym := range pending {
		if r.policy.AllowSyntheticFallback {
			results[sym] = symbolResult{quote: marketdata.SyntheticQuote(sym, r.now()), source: SourceMock}
		} else {
			failed = append(failed, sym)
		}
	}

	if len(results) == 0 {
		// When the upstream answered and simply knew none of the symbols,
		// that is an authoritative rejection, not an outage: the failures
		// come back as data. Exhaustion is reserved for nothing-answered.
		if len(unknown) > 0 {
			env := buildQuoteEnvelope(results, failed)
			env.Source = SourceUpstream
			observ.ResolveSource.WithLabelValues(string(marketdata.KindQuote), string(SourceUpstream)).Inc()
			return env, nil
		}
		observ.ResolveSource.WithLabelValues(string(marketdata.KindQuote), "none").Inc()
		return Envelope{}, fmt.Errorf("%w for %v", marketdata.ErrAllSourcesExhausted, normalized)
	}

	env := buildQuoteEnvelope(results, failed)
	observ.ResolveSource.WithLabelValues(string(marketdata.KindQuote), string(env.Source)).Inc()
	return env, nil
}

// backendQuotes fetches pending symbols from the primary backend in
// parallel, records successes (with cache write-through), and returns the
// symbols still unserved.
func (r *Resolver) backendQuotes(ctx context.Context, pending []string, results map[string]symbolResult) []string {
	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(backendFanout)

	served := make(map[string]bool, len(pending))
	for _, sym := range pending {
		sym := sym
		g.Go(func() error {
			q, err := r.backend.FetchQuote(gctx, sym)
			if err != nil {
				observ.SourceErrors.WithLabelValues("backend").Inc()
				r.logger.Debug("backend quote failed", zap.String("symbol", sym), zap.Error(err))
				return nil // a single symbol's failure must not cancel the group
			}
			// An empty successful response is not good enough; fall through.
			if !q.HasPrice() || marketdata.ValidateQuote(q) != nil {
				r.logger.Debug("backend quote empty or invalid", zap.String("symbol", sym))
				return nil
			}
			mu.Lock()
			results[sym] = symbolResult{quote: q, source: SourceBackend}
			served[sym] = true
			mu.Unlock()
			r.cache.Set(marketdata.QuoteFingerprint(sym), q, r.cache.TTLFor(marketdata.KindQuote, ""))
			return nil
		})
	}
	_ = g.Wait()

	remaining := pending[:0:0]
	for _, sym := range pending {
		if !served[sym] {
			remaining = append(remaining, sym)
		}
	}
	return remaining
}

// upstreamQuotes issues the batched fallback call. When the whole batch
// fails every requested symbol stays pending for the terminal stage; when
// it succeeds, symbols absent from the response are authoritatively unknown
// and reported as failed rather than silently dropped or simulated.
func (r *Resolver) upstreamQuotes(ctx context.Context, pending []string, results map[string]symbolResult) (remaining, unknown []string) {
	quotes, err := r.upstream.FetchQuotesBatch(ctx, pending)
	if err != nil {
		observ.SourceErrors.WithLabelValues("upstream").Inc()
		r.logger.Warn("upstream batch failed", zap.Int("symbols", len(pending)), zap.Error(err))
		return pending, nil
	}

	for _, sym := range pending {
		q, ok := quotes[sym]
		if !ok {
			unknown = append(unknown, sym)
			continue
		}
		if marketdata.ValidateQuote(q) != nil {
			unknown = append(unknown, sym)
			continue
		}
		results[sym] = symbolResult{quote: q, source: SourceUpstream}
		r.cache.Set(marketdata.QuoteFingerprint(sym), q, r.cache.TTLFor(marketdata.KindQuote, ""))
	}
	return nil, unknown
}

// terminalQuotes resolves the all-sources-down case per deployment policy.
func (r *Resolver) terminalQuotes(symbols []string, reason string) (Envelope, error) {
	if !r.policy.AllowSyntheticFallback {
		observ.ResolveSource.WithLabelValues(string(marketdata.KindQuote), "none").Inc()
		return Envelope{}, fmt.Errorf("%w: %s", marketdata.ErrAllSourcesExhausted, reason)
	}
	results := make(map[string]symbolResult, len(symbols))
	for _, sym := range symbols {
		results[sym] = symbolResult{quote: marketdata.SyntheticQuote(sym, r.now()), source: SourceMock}
	}
	env := buildQuoteEnvelope(results, nil)
	env.Warning = reason + "; serving simulated data"
	observ.ResolveSource.WithLabelValues(string(marketdata.KindQuote), string(SourceMock)).Inc()
	return env, nil
}

// ResolveBars resolves a historical bar series through the full chain,
// including the durable-store stages quotes do not use.
func (r *Resolver) ResolveBars(ctx context.Context, symbol string, tf marketdata.Timeframe, limit int) (Envelope, error) {
	start := r.now()
	observ.ResolveRequests.WithLabelValues(string(marketdata.KindBars)).Inc()
	defer func() {
		observ.ResolveDuration.WithLabelValues(string(marketdata.KindBars)).
			Observe(time.Since(start).Seconds())
	}()

	symbol = marketdata.NormalizeSymbol(symbol)
	fp := marketdata.BarsFingerprint(symbol, tf, limit)
	ttl := r.cache.TTLFor(marketdata.KindBars, tf)

	// Stage 2: cache.
	if v, ok := r.cache.Get(fp); ok {
		if bars, ok := v.([]marketdata.Bar); ok {
			return r.finishBars(barsEnvelope(bars, SourceCache, "")), nil
		}
	}

	// Stage 3: durable store. A complete-enough answer is served; a partial
	// one is retained for the stale fallback after live sources fail.
	stored := r.fetchStored(ctx, symbol, tf, limit)
	if need := completenessFloor(limit, r.policy.StoreCompleteness); len(stored) >= need {
		r.cache.Set(fp, stored, ttl)
		return r.finishBars(barsEnvelope(stored, SourceStored, "")), nil
	}

	// Stage 4: primary backend.
	if bars, ok := r.liveBars(ctx, "backend", func() ([]marketdata.Bar, error) {
		return r.backend.FetchBars(ctx, symbol, tf, limit)
	}); ok {
		r.cache.Set(fp, bars, ttl)
		if r.writer != nil {
			r.writer.Enqueue(symbol, tf, bars)
		}
		return r.finishBars(barsEnvelope(bars, SourceBackend, "")), nil
	}

	// Stage 5: direct upstream.
	if bars, ok := r.liveBars(ctx, "upstream", func() ([]marketdata.Bar, error) {
		return r.upstream.FetchBars(ctx, symbol, tf, limit)
	}); ok {
		r.cache.Set(fp, bars, ttl)
		if r.writer != nil {
			r.writer.Enqueue(symbol, tf, bars)
		}
		return r.finishBars(barsEnvelope(bars, SourceUpstream, "")), nil
	}

	// Stage 6: stale partial history beats nothing. Not cached: a later
	// request should retry the live sources.
	if len(stored) > 0 {
		newest := stored[len(stored)-1].Timestamp
		warning := fmt.Sprintf("returning %d of %d requested bars from stored history; most recent bar at %s",
			len(stored), limit, newest.UTC().Format(time.RFC3339))
		return r.finishBars(barsEnvelope(stored, SourceStoredPartial, warning)), nil
	}

	// Stage 7: terminal.
	if r.policy.AllowSyntheticFallback {
		bars := marketdata.SyntheticBars(symbol, tf, limit, r.now())
		env := barsEnvelope(bars, SourceMock, "all data sources unavailable; serving simulated bars")
		return r.finishBars(env), nil
	}
	observ.ResolveSource.WithLabelValues(string(marketdata.KindBars), "none").Inc()
	return Envelope{}, fmt.Errorf("%w for %s %s", marketdata.ErrAllSourcesExhausted, symbol, tf)
}

// fetchStored reads durable history, degrading store errors to "no data".
func (r *Resolver) fetchStored(ctx context.Context, symbol string, tf marketdata.Timeframe, limit int) []marketdata.Bar {
	if r.reader == nil {
		return nil
	}
	stored, err := r.reader.FetchStored(ctx, symbol, tf, limit)
	if err != nil {
		observ.SourceErrors.WithLabelValues("store").Inc()
		r.logger.Debug("durable store read failed", zap.String("symbol", symbol), zap.Error(err))
		return nil
	}
	return stored
}

// liveBars runs one live-source fetch and validates the result. Failures
// and empty successes both read as "this source has no data".
func (r *Resolver) liveBars(ctx context.Context, source string, fetch func() ([]marketdata.Bar, error)) ([]marketdata.Bar, bool) {
	if err := ctx.Err(); err != nil {
		return nil, false
	}
	bars, err := fetch()
	if err != nil {
		observ.SourceErrors.WithLabelValues(source).Inc()
		r.logger.Debug("live bars fetch failed", zap.String("source", source), zap.Error(err))
		return nil, false
	}
	valid, rejected := marketdata.FilterValidBars(bars)
	if rejected > 0 {
		r.logger.Warn("rejected inconsistent bars from live source",
			zap.String("source", source), zap.Int("rejected", rejected))
	}
	if len(valid) == 0 {
		return nil, false
	}
	return valid, true
}

func (r *Resolver) finishBars(env Envelope) Envelope {
	observ.ResolveSource.WithLabelValues(string(marketdata.KindBars), string(env.Source)).Inc()
	return env
}

// completenessFloor converts the policy fraction into a minimum bar count.
func completenessFloor(limit int, fraction float64) int {
	need := int(math.Ceil(float64(limit) * fraction))
	if need < 1 {
		need = 1
	}
	return need
}

// IsExhausted reports whether err is the terminal all-sources failure, for
// transport layers mapping it to service-unavailable semantics.
func IsExhausted(err error) bool {
	return errors.Is(err, marketdata.ErrAllSourcesExhausted)
}
