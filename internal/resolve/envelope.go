package resolve

import (
	"fmt"
	"sort"
	"strings"

	"github.com/tradeview/marketdata/internal/marketdata"
)

// Source names the fallback-chain stage that produced a response.
type Source string

const (
	SourceCache         Source = "cache"
	SourceStored        Source = "stored"
	SourceBackend       Source = "backend"
	SourceUpstream      Source = "upstream_direct"
	SourceStoredPartial Source = "stored_partial"
	SourceMock          Source = "mock"
)

// sourceRank orders stages by chain depth, used to pick the envelope-level
// source when a multi-symbol response was served by several stages.
var sourceRank = map[Source]int{
	SourceCache:         0,
	SourceStored:        1,
	SourceBackend:       2,
	SourceUpstream:      3,
	SourceStoredPartial: 4,
	SourceMock:          5,
}

// Envelope wraps a resolved payload with provenance metadata. The consuming
// UI branches its "simulated data" indicator strictly on Mock.
type Envelope struct {
	Quotes        map[string]marketdata.Quote `json:"quotes,omitempty"`
	Bars          []marketdata.Bar            `json:"bars,omitempty"`
	Mock          bool                        `json:"mock"`
	Source        Source                      `json:"source"`
	Warning       string                      `json:"warning,omitempty"`
	FailedSymbols []string                    `json:"failedSymbols,omitempty"`
	Cached        bool                        `json:"cached,omitempty"`
}

// symbolResult is one symbol's outcome, tagged with the stage that served it.
type symbolResult struct {
	quote  marketdata.Quote
	source Source
}

// buildQuoteEnvelope merges per-symbol results into one envelope.
//
// Mock is true only when every served symbol is synthetic. Mixed
// real/synthetic responses keep Mock false but always carry a warning; a
// partial failure is never hidden. The envelope-level source is the deepest
// stage that produced a real result, with per-symbol provenance preserved
// in each quote's own source field.
func buildQuoteEnvelope(results map[string]symbolResult, failed []string) Envelope {
	env := Envelope{Quotes: make(map[string]marketdata.Quote, len(results))}

	realCount := 0
	mockCount := 0
	deepestReal := SourceCache
	for sym, r := range results {
		q := r.quote
		q.Source = string(r.source)
		env.Quotes[sym] = q

		if r.source == SourceMock {
			mockCount++
			continue
		}
		realCount++
		if sourceRank[r.source] > sourceRank[deepestReal] {
			deepestReal = r.source
		}
		if r.source == SourceCache {
			env.Cached = true
		}
	}

	switch {
	case realCount == 0 && mockCount > 0:
		env.Mock = true
		env.Source = SourceMock
		env.Warning = "all live sources unavailable; serving simulated data"
	case realCount > 0:
		env.Source = deepestReal
		if mockCount > 0 {
			env.Warning = fmt.Sprintf("%d of %d symbols served with simulated data", mockCount, len(results))
		}
	default:
		env.Source = SourceMock
	}

	if len(failed) > 0 {
		sort.Strings(failed)
		env.FailedSymbols = failed
		msg := fmt.Sprintf("no data available for: %s", strings.Join(failed, ", "))
		if env.Warning != "" {
			env.Warning += "; " + msg
		} else {
			env.Warning = msg
		}
	}
	return env
}

// barsEnvelope wraps a single-symbol bar series.
func barsEnvelope(bars []marketdata.Bar, source Source, warning string) Envelope {
	return Envelope{
		Bars:    bars,
		Source:  source,
		Mock:    source == SourceMock,
		Cached:  source == SourceCache,
		Warning: warning,
	}
}
