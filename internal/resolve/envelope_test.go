package resolve

import (
	"strings"
	"testing"

	"github.com/tradeview/marketdata/internal/marketdata"
)

func result(symbol string, src Source) symbolResult {
	return symbolResult{
		quote:  marketdata.Quote{Symbol: symbol, Last: marketdata.Float(100)},
		source: src,
	}
}

func TestEnvelopeAllReal(t *testing.T) {
	env := buildQuoteEnvelope(map[string]symbolResult{
		"AAPL": result("AAPL", SourceCache),
		"MSFT": result("MSFT", SourceBackend),
	}, nil)

	if env.Mock {
		t.Fatalf("all-real envelope marked mock")
	}
	if env.Source != SourceBackend {
		t.Fatalf("envelope source = %s, want deepest real stage backend", env.Source)
	}
	if !env.Cached {
		t.Fatalf("cache-served symbol should set cached")
	}
	if env.Warning != "" {
		t.Fatalf("unexpected warning %q", env.Warning)
	}
	if env.Quotes["AAPL"].Source != string(SourceCache) || env.Quotes["MSFT"].Source != string(SourceBackend) {
		t.Fatalf("per-symbol provenance lost: %+v", env.Quotes)
	}
}

func TestEnvelopeAllMock(t *testing.T) {
	env := buildQuoteEnvelope(map[string]symbolResult{
		"AAPL": result("AAPL", SourceMock),
		"MSFT": result("MSFT", SourceMock),
	}, nil)

	if !env.Mock || env.Source != SourceMock {
		t.Fatalf("all-synthetic envelope must be mock: %+v", env)
	}
	if env.Warning == "" {
		t.Fatalf("mock envelope must warn")
	}
}

func TestEnvelopeMixedKeepsMockFalse(t *testing.T) {
	env := buildQuoteEnvelope(map[string]symbolResult{
		"AAPL": result("AAPL", SourceUpstream),
		"MSFT": result("MSFT", SourceMock),
	}, nil)

	if env.Mock {
		t.Fatalf("mixed envelope must not be mock")
	}
	if env.Source != SourceUpstream {
		t.Fatalf("envelope source = %s, want upstream_direct", env.Source)
	}
	if !strings.Contains(env.Warning, "1 of 2") {
		t.Fatalf("mixed warning = %q", env.Warning)
	}
}

func TestEnvelopeFailedSymbolsSortedAndWarned(t *testing.T) {
	env := buildQuoteEnvelope(map[string]symbolResult{
		"AAPL": result("AAPL", SourceBackend),
	}, []string{"ZZZZ", "BADSYM"})

	if len(env.FailedSymbols) != 2 || env.FailedSymbols[0] != "BADSYM" {
		t.Fatalf("failedSymbols = %v, want sorted [BADSYM ZZZZ]", env.FailedSymbols)
	}
	if !strings.Contains(env.Warning, "BADSYM, ZZZZ") {
		t.Fatalf("warning must list failed symbols, got %q", env.Warning)
	}
}

func TestBarsEnvelopeFlags(t *testing.T) {
	bars := []marketdata.Bar{{Open: 1, High: 2, Low: 0.5, Close: 1.5}}

	if env := barsEnvelope(bars, SourceMock, "w"); !env.Mock || env.Cached {
		t.Fatalf("mock bars envelope flags wrong: %+v", env)
	}
	if env := barsEnvelope(bars, SourceCache, ""); env.Mock || !env.Cached {
		t.Fatalf("cache bars envelope flags wrong: %+v", env)
	}
	if env := barsEnvelope(bars, SourceStoredPartial, "partial"); env.Mock || env.Cached || env.Warning != "partial" {
		t.Fatalf("partial bars envelope flags wrong: %+v", env)
	}
}
