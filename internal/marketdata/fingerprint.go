package marketdata

import "fmt"

// Kind distinguishes point-in-time quote queries from historical bar queries.
type Kind string

const (
	KindQuote Kind = "quote"
	KindBars  Kind = "bars"
)

// Fingerprint is a deterministic cache key derived from a normalized query.
// Fingerprint equality implies cache-entry interchangeability.
type Fingerprint string

// QuoteFingerprint keys a point-in-time quote query.
func QuoteFingerprint(symbol string) Fingerprint {
	return Fingerprint(fmt.Sprintf("%s:%s", KindQuote, NormalizeSymbol(symbol)))
}

// BarsFingerprint keys a historical bar query. Limit is part of the key:
// a 50-bar answer is not interchangeable with a 500-bar answer.
func BarsFingerprint(symbol string, tf Timeframe, limit int) Fingerprint {
	return Fingerprint(fmt.Sprintf("%s:%s:%s:%d", KindBars, NormalizeSymbol(symbol), tf, limit))
}
