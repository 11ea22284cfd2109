package marketdata

import (
	"fmt"
	"regexp"
	"strings"
	"time"
)

// Timeframe identifies the bar aggregation interval of a historical query.
type Timeframe string

const (
	Timeframe1m  Timeframe = "1m"
	Timeframe5m  Timeframe = "5m"
	Timeframe15m Timeframe = "15m"
	Timeframe30m Timeframe = "30m"
	Timeframe1h  Timeframe = "1h"
	Timeframe2h  Timeframe = "2h"
	Timeframe4h  Timeframe = "4h"
	Timeframe1d  Timeframe = "1d"
	Timeframe1w  Timeframe = "1w"
	Timeframe1mo Timeframe = "1mo"
)

var timeframeDurations = map[Timeframe]time.Duration{
	Timeframe1m:  time.Minute,
	Timeframe5m:  5 * time.Minute,
	Timeframe15m: 15 * time.Minute,
	Timeframe30m: 30 * time.Minute,
	Timeframe1h:  time.Hour,
	Timeframe2h:  2 * time.Hour,
	Timeframe4h:  4 * time.Hour,
	Timeframe1d:  24 * time.Hour,
	Timeframe1w:  7 * 24 * time.Hour,
	Timeframe1mo: 30 * 24 * time.Hour,
}

// ParseTimeframe validates a timeframe string from an inbound request.
func ParseTimeframe(s string) (Timeframe, error) {
	tf := Timeframe(strings.ToLower(strings.TrimSpace(s)))
	if _, ok := timeframeDurations[tf]; !ok {
		return "", fmt.Errorf("unrecognized timeframe %q", s)
	}
	return tf, nil
}

// Duration returns the nominal length of one bar at this timeframe.
// Monthly bars are approximated at 30 days.
func (tf Timeframe) Duration() time.Duration {
	return timeframeDurations[tf]
}

// Intraday reports whether the timeframe is finer than one hour.
func (tf Timeframe) Intraday() bool {
	return tf.Duration() < time.Hour
}

// Hourly reports whether the timeframe is hour-grained (1h..4h).
func (tf Timeframe) Hourly() bool {
	d := tf.Duration()
	return d >= time.Hour && d < 24*time.Hour
}

// Quote is the canonical point-in-time shape all providers normalize into.
// Every numeric field is optional: a bid/ask-only quote from a lightweight
// batch endpoint is still valid.
type Quote struct {
	Symbol        string    `json:"symbol"`
	Last          *float64  `json:"last,omitempty"`
	Open          *float64  `json:"open,omitempty"`
	High          *float64  `json:"high,omitempty"`
	Low           *float64  `json:"low,omitempty"`
	Close         *float64  `json:"close,omitempty"`
	Volume        *float64  `json:"volume,omitempty"`
	Change        *float64  `json:"change,omitempty"`
	ChangePercent *float64  `json:"changePercent,omitempty"`
	Bid           *float64  `json:"bid,omitempty"`
	Ask           *float64  `json:"ask,omitempty"`
	Timestamp     time.Time `json:"timestamp"`
	Source        string    `json:"source,omitempty"`
}

// HasPrice reports whether the quote carries at least one price field.
// A successful fetch that returns a priceless quote is treated as empty
// by the resolver and falls through to the next source.
func (q Quote) HasPrice() bool {
	for _, p := range []*float64{q.Last, q.Bid, q.Ask, q.Close} {
		if p != nil {
			return true
		}
	}
	return false
}

// Bar is one OHLCV aggregate. Timestamp is the bar's opening instant.
type Bar struct {
	Timestamp time.Time `json:"timestamp"`
	Open      float64   `json:"open"`
	High      float64   `json:"high"`
	Low       float64   `json:"low"`
	Close     float64   `json:"close"`
	Volume    float64   `json:"volume"`
}

// Float returns a pointer to v, for building optional Quote fields.
func Float(v float64) *float64 { return &v }

var symbolPattern = regexp.MustCompile(`^[A-Z0-9.\-/]+$`)

// NormalizeSymbol canonicalizes an instrument identifier. Two semantically
// identical symbols must normalize to the same string, since the cache
// fingerprint is derived from it.
func NormalizeSymbol(symbol string) string {
	return strings.ToUpper(strings.TrimSpace(symbol))
}

// ValidateSymbol checks a normalized symbol against the accepted alphabet.
func ValidateSymbol(symbol string) error {
	if symbol == "" {
		return fmt.Errorf("empty symbol")
	}
	if !symbolPattern.MatchString(symbol) {
		return fmt.Errorf("symbol %q contains invalid characters", symbol)
	}
	return nil
}

// ValidateBar checks OHLC consistency for a live bar. Violations from an
// upstream are rejected, not repaired.
func ValidateBar(b Bar) error {
	if b.Timestamp.IsZero() {
		return fmt.Errorf("bar has zero timestamp")
	}
	if b.High < b.Open || b.High < b.Close {
		return fmt.Errorf("bar high %.4f below open/close (open=%.4f close=%.4f)", b.High, b.Open, b.Close)
	}
	if b.Low > b.Open || b.Low > b.Close {
		return fmt.Errorf("bar low %.4f above open/close (open=%.4f close=%.4f)", b.Low, b.Open, b.Close)
	}
	if b.Volume < 0 {
		return fmt.Errorf("negative volume: %.2f", b.Volume)
	}
	return nil
}

// ValidateQuote checks a normalized quote for internal consistency.
func ValidateQuote(q Quote) error {
	if q.Symbol == "" {
		return fmt.Errorf("empty symbol")
	}
	if q.Bid != nil && q.Ask != nil && *q.Ask < *q.Bid {
		return fmt.Errorf("invalid spread: ask(%.4f) < bid(%.4f)", *q.Ask, *q.Bid)
	}
	if q.Volume != nil && *q.Volume < 0 {
		return fmt.Errorf("negative volume: %.2f", *q.Volume)
	}
	if !q.Timestamp.IsZero() && q.Timestamp.After(time.Now().Add(5*time.Minute)) {
		return fmt.Errorf("quote timestamp too far in future: %v", q.Timestamp)
	}
	return nil
}

// FilterValidBars drops bars that fail validation and reports how many
// were rejected.
func FilterValidBars(bars []Bar) (valid []Bar, rejected int) {
	valid = make([]Bar, 0, len(bars))
	for _, b := range bars {
		if err := ValidateBar(b); err != nil {
			rejected++
			continue
		}
		valid = append(valid, b)
	}
	return valid, rejected
}
