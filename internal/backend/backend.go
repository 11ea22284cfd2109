// Package backend is the client for the authoritative live-data service,
// the primary live stage of the resolution chain.
package backend

import (
	"context"
	"strconv"
	"time"

	"go.uber.org/zap"
	"resty.dev/v3"

	"github.com/tradeview/marketdata/internal/marketdata"
)

// Config holds connection settings. Quote and bars calls carry distinct
// timeout budgets; the health probe gets the shortest one.
type Config struct {
	BaseURL       string
	APIKey        string
	QuoteTimeout  time.Duration
	BarsTimeout   time.Duration
	HealthTimeout time.Duration
}

// Client talks to the primary backend over HTTP.
type Client struct {
	http   *resty.Client
	cfg    Config
	logger *zap.Logger
}

// New builds a client. Retrying is deliberately disabled: the resolver's
// fallback chain is the retry policy for this stage.
func New(cfg Config, logger *zap.Logger) *Client {
	if cfg.QuoteTimeout <= 0 {
		cfg.QuoteTimeout = 4 * time.Second
	}
	if cfg.BarsTimeout <= 0 {
		cfg.BarsTimeout = 8 * time.Second
	}
	if cfg.HealthTimeout <= 0 {
		cfg.HealthTimeout = 2 * time.Second
	}
	client := resty.New().
		SetBaseURL(cfg.BaseURL).
		SetHeader("Accept", "application/json")
	if cfg.APIKey != "" {
		client.SetHeader("X-Api-Key", cfg.APIKey)
	}
	return &Client{http: client, cfg: cfg, logger: logger}
}

// Health performs the cheap liveness probe used to gate cache trust.
func (c *Client) Health(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, c.cfg.HealthTimeout)
	defer cancel()

	resp, err := c.http.R().SetContext(ctx).Get("/health")
	if err != nil {
		return marketdata.SourceUnavailable(marketdata.ErrBackendUnavailable, err)
	}
	if !resp.IsSuccess() {
		return marketdata.SourceUnavailable(marketdata.ErrBackendUnavailable,
			statusError(resp.StatusCode()))
	}
	return nil
}

// quoteResponse is the backend's wire shape. Field names differ from the
// canonical Quote (price vs last, change_percent vs changePercent); they are
// normalized here, at the boundary, so the resolver never coalesces fields.
type quoteResponse struct {
	Symbol        string    `json:"symbol"`
	Price         *float64  `json:"price"`
	Open          *float64  `json:"open"`
	High          *float64  `json:"high"`
	Low           *float64  `json:"low"`
	Close         *float64  `json:"close"`
	Volume        *float64  `json:"volume"`
	Change        *float64  `json:"change"`
	ChangePercent *float64  `json:"change_percent"`
	Bid           *float64  `json:"bid"`
	Ask           *float64  `json:"ask"`
	Timestamp     time.Time `json:"timestamp"`
}

func (r quoteResponse) normalize(symbol string) marketdata.Quote {
	q := marketdata.Quote{
		Symbol:        marketdata.NormalizeSymbol(symbol),
		Last:          r.Price,
		Open:          r.Open,
		High:          r.High,
		Low:           r.Low,
		Close:         r.Close,
		Volume:        r.Volume,
		Change:        r.Change,
		ChangePercent: r.ChangePercent,
		Bid:           r.Bid,
		Ask:           r.Ask,
		Timestamp:     r.Timestamp,
	}
	if q.Timestamp.IsZero() {
		q.Timestamp = time.Now()
	}
	return q
}

// FetchQuote retrieves one live quote within the quote timeout budget.
// Timeouts and non-success statuses both resolve to ErrBackendUnavailable.
func (c *Client) FetchQuote(ctx context.Context, symbol string) (marketdata.Quote, error) {
	ctx, cancel := context.WithTimeout(ctx, c.cfg.QuoteTimeout)
	defer cancel()

	var out quoteResponse
	resp, err := c.http.R().
		SetContext(ctx).
		SetQueryParam("symbol", marketdata.NormalizeSymbol(symbol)).
		SetResult(&out).
		Get("/api/v1/quote")
	if err != nil {
		return marketdata.Quote{}, marketdata.SourceUnavailable(marketdata.ErrBackendUnavailable, err)
	}
	if !resp.IsSuccess() {
		return marketdata.Quote{}, marketdata.SourceUnavailable(marketdata.ErrBackendUnavailable,
			statusError(resp.StatusCode()))
	}
	return out.normalize(symbol), nil
}

type barsResponse struct {
	Symbol string `json:"symbol"`
	Bars   []struct {
		Timestamp time.Time `json:"timestamp"`
		Open      float64   `json:"open"`
		High      float64   `json:"high"`
		Low       float64   `json:"low"`
		Close     float64   `json:"close"`
		Volume    float64   `json:"volume"`
	} `json:"bars"`
}

// FetchBars retrieves up to limit historical bars, oldest first, within the
// bars timeout budget.
func (c *Client) FetchBars(ctx context.Context, symbol string, tf marketdata.Timeframe, limit int) ([]marketdata.Bar, error) {
	ctx, cancel := context.WithTimeout(ctx, c.cfg.BarsTimeout)
	defer cancel()

	var out barsResponse
	resp, err := c.http.R().
		SetContext(ctx).
		SetQueryParams(map[string]string{
			"symbol":    marketdata.NormalizeSymbol(symbol),
			"timeframe": string(tf),
			"limit":     strconv.Itoa(limit),
		}).
		SetResult(&out).
		Get("/api/v1/bars")
	if err != nil {
		return nil, marketdata.SourceUnavailable(marketdata.ErrBackendUnavailable, err)
	}
	if !resp.IsSuccess() {
		return nil, marketdata.SourceUnavailable(marketdata.ErrBackendUnavailable,
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
