package upstream

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sort"
	"strings"
	"sync"
	"testing"

	"go.uber.org/zap"

	"github.com/tradeview/marketdata/internal/marketdata"
)

func newTestClient(t *testing.T, handler http.Handler) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	c := New(Config{BaseURL: srv.URL, APIKey: "test-key", RateLimitPerMinute: 6000}, zap.NewNop())
	t.Cleanup(func() { _ = c.Close() })
	return c
}

func TestIsCrypto(t *testing.T) {
	for _, sym := range []string{"BTC/USD", "ETH-USD", "SOL-USDT"} {
		if !isCrypto(sym) {
			t.Fatalf("%s should classify as crypto", sym)
		}
	}
	for _, sym := range []string{"AAPL", "BRK.B", "USD-JPY2"} {
		if isCrypto(sym) {
			t.Fatalf("%s should classify as equity", sym)
		}
	}
}

func TestFetchQuotesBatchSplitsByAssetClass(t *testing.T) {
	var mu sync.Mutex
	calls := map[string][]string{}

	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v2/quotes" {
			t.Fatalf("unexpected path %s", r.URL.Path)
		}
		if r.URL.Query().Get("apikey") != "test-key" {
			t.Fatalf("missing apikey param")
		}
		class := r.URL.Query().Get("class")
		symbols := strings.Split(r.URL.Query().Get("symbols"), ",")
		mu.Lock()
		calls[class] = symbols
		mu.Unlock()

		quotes := map[string]any{}
		for _, s := range symbols {
			quotes[s] = map[string]any{"last": 100.5, "timestamp": "2026-08-03T14:30:00Z"}
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{"quotes": quotes})
	}))

	got, err := c.FetchQuotesBatch(context.Background(), []string{"AAPL", "BTC/USD", "msft", "ETH-USD"})
	if err != nil {
		t.Fatalf("batch: %v", err)
	}
	if len(got) != 4 {
		t.Fatalf("got %d quotes, want 4", len(got))
	}
	if len(calls) != 2 {
		t.Fatalf("want one call per asset class, got %v", calls)
	}

	sort.Strings(calls["equity"])
	sort.Strings(calls["crypto"])
	if calls["equity"][0] != "AAPL" || calls["equity"][1] != "MSFT" {
		t.Fatalf("equity bucket = %v", calls["equity"])
	}
	if calls["crypto"][0] != "BTC/USD" || calls["crypto"][1] != "ETH-USD" {
		t.Fatalf("crypto bucket = %v", calls["crypto"])
	}
}

func TestFetchQuotesBatchOmitsUnknownAndPriceless(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
			"quotes": {
				"AAPL": {"last": 187.45, "timestamp": "2026-08-03T14:30:00Z"},
				"MSFT": {"volume": 12345}
			}
		}`))
	}))

	got, err := c.FetchQuotesBatch(context.Background(), []string{"AAPL", "MSFT", "ZZZZ"})
	if err != nil {
		t.Fatalf("batch: %v", err)
	}
	if _, ok := got["AAPL"]; !ok {
		t.Fatalf("AAPL missing from results")
	}
	if _, ok := got["MSFT"]; ok {
		t.Fatalf("priceless quote must be treated as absent")
	}
	if _, ok := got["ZZZZ"]; ok {
		t.Fatalf("unknown symbol must be absent, not synthesized")
	}
}

func TestFetchQuotesBatchWholeCallFailure(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "rate limited", http.StatusTooManyRequests)
	}))

	_, err := c.FetchQuotesBatch(context.Background(), []string{"AAPL", "MSFT"})
	if !errors.Is(err, marketdata.ErrUpstreamUnavailable) {
		t.Fatalf("want ErrUpstreamUnavailable, got %v", err)
	}
}

func TestFetchBars(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v2/bars" {
			t.Fatalf("unexpected path %s", r.URL.Path)
		}
		q := r.URL.Query()
		if q.Get("symbol") != "BTC/USD" || q.Get("timeframe") != "1h" || q.Get("limit") != "3" {
			t.Fatalf("unexpected query %v", q)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
			"bars": [
				{"timestamp": "2026-08-03T12:00:00Z", "open": 60000, "high": 60500, "low": 59800, "close": 60200, "volume": 12.5}
			]
		}`))
	}))

	bars, err := c.FetchBars(context.Background(), "btc/usd", marketdata.Timeframe1h, 3)
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if len(bars) != 1 || bars[0].Close != 60200 {
		t.Fatalf("bars decoded wrong: %+v", bars)
	}
}

func TestFetchBarsServerError(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	_, err := c.FetchBars(context.Background(), "AAPL", marketdata.Timeframe1d, 10)
	if !errors.Is(err, marketdata.ErrUpstreamUnavailable) {
		t.Fatalf("want ErrUpstreamUnavailable, got %v", err)
	}
}
