// Package upstream is the client for the secondary direct market-data
// provider, used only after the primary backend has failed. Its batch quote
// endpoint bounds network calls at O(1) in the number of symbols.
package upstream

import (
	"context"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"
	"resty.dev/v3"

	"github.com/tradeview/marketdata/internal/marketdata"
)

// Config holds connection settings for the direct provider.
type Config struct {
	BaseURL            string
	APIKey             string
	Timeout            time.Duration
	RateLimitPerMinute int
}

// Client talks to the direct provider over HTTP, rate-limited.
type Client struct {
	http    *resty.Client
	limiter *rate.Limiter
	cfg     Config
	logger  *zap.Logger
}

// New builds a client with a token-bucket limiter ahead of every call.
func New(cfg Config, logger *zap.Logger) *Client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 5 * time.Second
	}
	if cfg.RateLimitPerMinute <= 0 {
		cfg.RateLimitPerMinute = 120
	}
	client := resty.New().
		SetBaseURL(cfg.BaseURL).
		SetHeader("Accept", "application/json")
	if cfg.APIKey != "" {
		client.SetQueryParam("apikey", cfg.APIKey)
	}
	return &Client{
		http:    client,
		limiter: rate.NewLimiter(rate.Limit(float64(cfg.RateLimitPerMinute)/60), 2),
		cfg:     cfg,
		logger:  logger,
	}
}

// isCrypto classifies pair-style identifiers (BTC/USD, ETH-USD) so the
// batch call hits the provider's crypto endpoint class.
func isCrypto(symbol string) bool {
	return strings.Contains(symbol, "/") || strings.HasSuffix(symbol, "-USD") || strings.HasSuffix(symbol, "-USDT")
}

type batchQuote struct {
	Last          *float64  `json:"last"`
	Bid           *float64  `json:"bid"`
	Ask           *float64  `json:"ask"`
	Volume        *float64  `json:"volume"`
	ChangePercent *float64  `json:"change_percent"`
	Timestamp     time.Time `json:"timestamp"`
}

type batchResponse struct {
	Quotes map[string]batchQuote `json:"quotes"`
}

// FetchQuotesBatch retrieves quotes for all symbols in one call per asset
// class. A symbol the provider does not know is simply absent from the
// returned map; a whole-call failure is ErrUpstreamUnavailable and the
// caller must treat every requested symbol as failed for this source.
func (c *Client) FetchQuotesBatch(ctx context.Context, symbols []string) (map[string]marketdata.Quote, error) {
	var equities, cryptos []string
	for _, s := range symbols {
		s = marketdata.NormalizeSymbol(s)
		if isCrypto(s) {
			cryptos = append(cryptos, s)
		} else {
			equities = append(equities, s)
		}
	}

	results := make(map[string]marketdata.Quote, len(symbols))
	buckets := []struct {
		class   string
		symbols []string
	}{
		{"equity", equities},
		{"crypto", cryptos},
	}
	for _, b := range buckets {
		if len(b.symbols) == 0 {
			continue
		}
		if err := c.fetchBucket(ctx, b.class, b.symbols, results); err != nil {
			return nil, err
		}
	}
	return results, nil
}

func (c *Client) fetchBucket(ctx context.Context, class string, symbols []string, results map[string]marketdata.Quote) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return marketdata.SourceUnavailable(marketdata.ErrUpstreamUnavailable, err)
	}
	ctx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
	defer cancel()

	var out batchResponse
	resp, err := c.http.R().
		SetContext(ctx).
		SetQueryParams(map[string]string{
			"symbols": strings.Join(symbols, ","),
			"class":   class,
		}).
		SetResult(&out).
		Get("/v2/quotes")
	if err != nil {
		return marketdata.SourceUnavailable(marketdata.ErrUpstreamUnavailable, err)
	}
	if !resp.IsSuccess() {
		return marketdata.SourceUnavailable(marketdata.ErrUpstreamUnavailable,
			statusError(resp.StatusCode()))
	}

	for sym, bq := range out.Quotes {
		sym = marketdata.NormalizeSymbol(sym)
		q := marketdata.Quote{
			Symbol:        sym,
			Last:          bq.Last,
			Bid:           bq.Bid,
			Ask:           bq.Ask,
			Volume:        bq.Volume,
			ChangePercent: bq.ChangePercent,
			Timestamp:     bq.Timestamp,
		}
		if q.Timestamp.IsZero() {
			q.Timestamp = time.Now()
		}
		if !q.HasPrice() {
			// A priceless entry is as good as absent.
			continue
		}
		results[sym] = q
	}
	return nil
}

// FetchBars retrieves historical bars for one symbol; bar history is
// inherently per-symbol, so there is no batch variant.
func (c *Client) FetchBars(ctx context.Context, symbol string, tf marketdata.Timeframe, limit int) ([]marketdata.Bar, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, marketdata.SourceUnavailable(marketdata.ErrUpstreamUnavailable, err)
	}
	ctx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
	defer cancel()

	var out struct {
		Bars []struct {
			Timestamp time.Time `json:"timestamp"`
			Open      float64   `json:"open"`
			High      float64   `json:"high"`
			Low       float64   `json:"low"`
			Close     float64   `json:"close"`
			Volume    float64   `json:"volume"`
		} `json:"bars"`
	}
	resp, err := c.http.R().
		SetContext(ctx).
		SetQueryParams(map[string]string{
			"symbol":    marketdata.NormalizeSymbol(symbol),
			"timeframe": string(tf),
			"limit":     strconv.Itoa(limit),
		}).
		SetResult(&out).
		Get("/v2/bars")
	if err != nil {
		return nil, marketdata.SourceUnavailable(marketdata.ErrUpstreamUnavailable, err)
	}
	if !resp.IsSuccess() {
		return nil, marketdata.SourceUnavailable(marketdata.ErrUpstreamUnavailable,
			statusError(resp.StatusCode()))
	}

	bars := make([]marketdata.Bar, 0, len(out.Bars))
	for _, b := range out.Bars {
		bars = append(bars, marketdata.Bar{
			Timestamp: b.Timestamp,
			Open:      b.Open,
			High:      b.High,
			Low:       b.Low,
			Close:     b.Close,
			Volume:    b.Volume,
		})
	}
	return bars, nil
}

// Close releases client resources.
func (c *Client) Close() error {
	return c.http.Close()
}

type httpStatusError int

func (e httpStatusError) Error() string {
	return "unexpected status " + strconv.Itoa(int(e))
}

func statusError(code int) error { return httpStatusError(code) }
