// stubs runs local stand-ins for the primary backend (:8091) and the direct
// upstream provider (:8092) so the service can be exercised end to end
// without real provider credentials. Both serve deterministic synthetic data;
// set STUB_BACKEND_DOWN=1 or STUB_UPSTREAM_DOWN=1 to simulate an outage.
package main

import (
	"encoding/json"
	"log"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/tradeview/marketdata/internal/marketdata"
)

// ---- wire shapes (match the real provider APIs) ----

type quotePayload struct {
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

type batchQuotePayload struct {
	Last          *float64  `json:"last"`
	Bid           *float64  `json:"bid"`
	Ask           *float64  `json:"ask"`
	Volume        *float64  `json:"volume"`
	ChangePercent *float64  `json:"change_percent"`
	Timestamp     time.Time `json:"timestamp"`
}

type batchPayload struct {
	Quotes map[string]batchQuotePayload `json:"quotes"`
}

type barPayload struct {
	Timestamp time.Time `json:"timestamp"`
	Open      float64   `json:"open"`
	High      float64   `json:"high"`
	Low       float64   `json:"low"`
	Close     float64   `json:"close"`
	Volume    float64   `json:"volume"`
}

type barsPayload struct {
	Symbol string       `json:"symbol"`
	Bars   []barPayload `json:"bars"`
}

// ---- helpers ----

func health(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("encode response: %v", err)
	}
}

func barsFor(symbol, timeframe, limitRaw string) (barsPayload, bool) {
	tf, err := marketdata.ParseTimeframe(timeframe)
	if err != nil {
		return barsPayload{}, false
	}
	limit, err := strconv.Atoi(limitRaw)
	if err != nil || limit < 1 {
		limit = 100
	}
	symbol = marketdata.NormalizeSymbol(symbol)
	out := barsPayload{Symbol: symbol}
	for _, b := range marketdata.SyntheticBars(symbol, tf, limit, time.Now()) {
		out.Bars = append(out.Bars, barPayload(b))
	}
	return out, true
}

func serve(port string, down bool, routes map[string]http.HandlerFunc) {
	mux := http.NewServeMux()
	mux.HandleFunc("/health", health)
	for path, fn := range routes {
		mux.HandleFunc(path, fn)
	}
	var handler http.Handler = mux
	if down {
		handler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, "simulated outage", http.StatusServiceUnavailable)
		})
	}
	addr := ":" + port
	log.Printf("listening on %s (down=%v)", addr, down)
	go func() {
		if err := http.ListenAndServe(addr, handler); err != nil {
			log.Fatalf("server %s error: %v", port, err)
		}
	}()
}

func main() {
	// 8091: primary backend
	serve("8091", os.Getenv("STUB_BACKEND_DOWN") == "1", map[string]http.HandlerFunc{
		"/api/v1/quote": func(w http.ResponseWriter, r *http.Request) {
			symbol := marketdata.NormalizeSymbol(r.URL.Query().Get("symbol"))
			if symbol == "" {
				http.Error(w, "symbol required", http.StatusBadRequest)
				return
			}
			q := marketdata.SyntheticQuote(symbol, time.Now())
			writeJSON(w, quotePayload{
				Symbol:        q.Symbol,
				Price:         q.Last,
				Open:          q.Open,
				High:          q.High,
				Low:           q.Low,
				Close:         q.Close,
				Volume:        q.Volume,
				Change:        q.Change,
				ChangePercent: q.ChangePercent,
				Bid:           q.Bid,
				Ask:           q.Ask,
				Timestamp:     q.Timestamp,
			})
		},
		"/api/v1/bars": func(w http.ResponseWriter, r *http.Request) {
			qs := r.URL.Query()
			out, ok := barsFor(qs.Get("symbol"), qs.Get("timeframe"), qs.Get("limit"))
			if !ok {
				http.Error(w, "bad timeframe", http.StatusBadRequest)
				return
			}
			writeJSON(w, out)
		},
	})

	// 8092: direct upstream
	serve("8092", os.Getenv("STUB_UPSTREAM_DOWN") == "1", map[string]http.HandlerFunc{
		"/v2/quotes": func(w http.ResponseWriter, r *http.Request) {
			out := batchPayload{Quotes: make(map[string]batchQuotePayload)}
			for _, raw := range strings.Split(r.URL.Query().Get("symbols"), ",") {
				sym := marketdata.NormalizeSymbol(raw)
				if sym == "" {
					continue
				}
				q := marketdata.SyntheticQuote(sym, time.Now())
				out.Quotes[sym] = batchQuotePayload{
					Last:          q.Last,
					Bid:           q.Bid,
					Ask:           q.Ask,
					Volume:        q.Volume,
					ChangePercent: q.ChangePercent,
					Timestamp:     q.Timestamp,
				}
			}
			writeJSON(w, out)
		},
		"/v2/bars": func(w http.ResponseWriter, r *http.Request) {
			qs := r.URL.Query()
			out, ok := barsFor(qs.Get("symbol"), qs.Get("timeframe"), qs.Get("limit"))
			if !ok {
				http.Error(w, "bad timeframe", http.StatusBadRequest)
				return
			}
			writeJSON(w, out)
		},
	})

	// block forever
	select {}
}
