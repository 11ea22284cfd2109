package marketdata

import "testing"

func TestFingerprintNormalization(t *testing.T) {
	if QuoteFingerprint("aapl") != QuoteFingerprint(" AAPL ") {
		t.Fatalf("equivalent quote queries must share a fingerprint")
	}
	if BarsFingerprint("msft", Timeframe1d, 100) != BarsFingerprint("MSFT", Timeframe1d, 100) {
		t.Fatalf("equivalent bar queries must share a fingerprint")
	}
}

func TestFingerprintDiscriminates(t *testing.T) {
	base := BarsFingerprint("AAPL", Timeframe1d, 100)
	for name, other := range map[string]Fingerprint{
		"symbol":    BarsFingerprint("MSFT", Timeframe1d, 100),
		"timeframe": BarsFingerprint("AAPL", Timeframe1h, 100),
		"limit":     BarsFingerprint("AAPL", Timeframe1d, 50),
		"kind":      QuoteFingerprint("AAPL"),
	} {
		if other == base {
			t.Fatalf("fingerprint failed to discriminate on %s", name)
		}
	}
}
