// Package cache provides the in-process TTL cache sitting at the front of
// the resolution chain. It is constructed once at process start and injected
// into the resolver; state lives for the process lifetime only.
package cache

import (
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/tradeview/marketdata/internal/marketdata"
	"github.com/tradeview/marketdata/internal/observ"
)

// TTLConfig selects entry lifetimes by query shape. Intraday bars go stale
// fast enough that caching them long would be misleading; daily bars are
// cheap to hold for minutes.
type TTLConfig struct {
	Quote    time.Duration
	Intraday time.Duration
	Hourly   time.Duration
	Daily    time.Duration
}

// DefaultTTLs mirrors the production tiering: 30s for sub-hour bars,
// 120s for hourly, minutes for daily and for quotes a short live window.
func DefaultTTLs() TTLConfig {
	return TTLConfig{
		Quote:    15 * time.Second,
		Intraday: 30 * time.Second,
		Hourly:   120 * time.Second,
		Daily:    5 * time.Minute,
	}
}

type entry struct {
	payload   any
	expiresAt time.Time
}

// TTLCache is a fingerprint-keyed store with lazy expiry: expired entries
// behave identically to misses and are removed at read time, never swept.
type TTLCache struct {
	mu      sync.RWMutex
	entries map[marketdata.Fingerprint]entry
	ttls    TTLConfig
	logger  *zap.Logger
	now     func() time.Time
}

// New creates an empty cache.
func New(ttls TTLConfig, logger *zap.Logger) *TTLCache {
	return &TTLCache{
		entries: make(map[marketdata.Fingerprint]entry),
		ttls:    ttls,
		logger:  logger,
		now:     time.Now,
	}
}

// Get returns the payload for fp if present and unexpired. The caller
// cannot distinguish "missing" from "expired"; both are misses.
func (c *TTLCache) Get(fp marketdata.Fingerprint) (any, bool) {
	c.mu.RLock()
	e, ok := c.entries[fp]
	c.mu.RUnlock()

	if !ok {
		observ.CacheMisses.Inc()
		return nil, false
	}
	if !c.now().Before(e.expiresAt) {
		c.mu.Lock()
		// Re-check under the write lock; a refresh may have raced us.
		if cur, ok := c.entries[fp]; ok && !c.now().Before(cur.expiresAt) {
			delete(c.entries, fp)
		}
		c.mu.Unlock()
		observ.CacheMisses.Inc()
		return nil, false
	}
	observ.CacheHits.Inc()
	return e.payload, true
}

// Set overwrites the entry for fp wholesale. Last writer wins; a fresh
// fetch fully supersedes a stale entry for the same fingerprint.
func (c *TTLCache) Set(fp marketdata.Fingerprint, payload any, ttl time.Duration) {
	if ttl <= 0 {
		return
	}
	c.mu.Lock()
	c.entries[fp] = entry{payload: payload, expiresAt: c.now().Add(ttl)}
	c.mu.Unlock()

	c.logger.Debug("cache set", zap.String("fingerprint", string(fp)), zap.Duration("ttl", ttl))
}

// TTLFor selects the entry lifetime for a query shape.
func (c *TTLCache) TTLFor(kind marketdata.Kind, tf marketdata.Timeframe) time.Duration {
	if kind == marketdata.KindQuote {
		return c.ttls.Quote
	}
	switch {
	case tf.Intraday():
		return c.ttls.Intraday
	case tf.Hourly():
		return c.ttls.Hourly
	default:
		return c.ttls.Daily
	}
}

// Len reports live entry count, counting expired-but-unswept entries too.
func (c *TTLCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}
