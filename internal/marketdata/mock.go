package marketdata

import (
	"hash/fnv"
	"math"
	"math/rand"
	"time"
)

// Synthetic payloads keep the consuming UI functional when every real source
// has been exhausted. All numeric values are derived from a seed computed
// over the symbol, so two consecutive resolutions for the same symbol return
// identical numbers rather than freshly randomized ones.

const syntheticSource = "mock"

func symbolSeed(symbol string) int64 {
	h := fnv.New64a()
	h.Write([]byte(NormalizeSymbol(symbol)))
	return int64(h.Sum64())
}

// basePrice draws a plausible starting price from the symbol-seeded rng.
func basePrice(rng *rand.Rand) float64 {
	return roundToTick(8+rng.Float64()*992, 0.01) // 8.00 .. 1000.00
}

// SyntheticQuote builds a deterministic simulated quote. The timestamp is
// the caller's clock; every numeric field depends only on the symbol.
func SyntheticQuote(symbol string, now time.Time) Quote {
	rng := rand.New(rand.NewSource(symbolSeed(symbol)))

	last := basePrice(rng)
	changePct := roundToTick(-3+rng.Float64()*6, 0.01) // -3% .. +3%
	change := roundToTick(last*changePct/100, 0.01)
	open := roundToTick(last-change, 0.01)
	high := roundToTick(math.Max(open, last)*(1+rng.Float64()*0.01), 0.01)
	low := roundToTick(math.Min(open, last)*(1-rng.Float64()*0.01), 0.01)
	spread := math.Max(0.01, roundToTick(last*0.0005, 0.01))
	volume := float64(100_000 + rng.Intn(20_000_000))

	return Quote{
		Symbol:        NormalizeSymbol(symbol),
		Last:          Float(last),
		Open:          Float(open),
		High:          Float(high),
		Low:           Float(low),
		Close:         Float(open),
		Volume:        Float(volume),
		Change:        Float(change),
		ChangePercent: Float(changePct),
		Bid:           Float(roundToTick(last-spread/2, 0.01)),
		Ask:           Float(roundToTick(last+spread/2, 0.01)),
		Timestamp:     now,
		Source:        syntheticSource,
	}
}

// SyntheticBars builds a deterministic random-walk bar series ending at the
// current timeframe boundary, oldest first. Within one bar period the whole
// series is stable across calls.
func SyntheticBars(symbol string, tf Timeframe, limit int, now time.Time) []Bar {
	if limit <= 0 {
		return nil
	}
	rng := rand.New(rand.NewSource(symbolSeed(symbol)))

	price := basePrice(rng)
	end := now.Truncate(tf.Duration())
	bars := make([]Bar, limit)
	for i := 0; i < limit; i++ {
		open := price
		drift := (rng.Float64() - 0.5) * 0.02 // +/-1% per bar
		close := roundToTick(open*(1+drift), 0.01)
		high := roundToTick(math.Max(open, close)*(1+rng.Float64()*0.005), 0.01)
		low := roundToTick(math.Min(open, close)*(1-rng.Float64()*0.005), 0.01)
		volume := float64(50_000 + rng.Intn(5_000_000))

		bars[i] = Bar{
			Timestamp: end.Add(-time.Duration(limit-1-i) * tf.Duration()),
			Open:      open,
			High:      high,
			Low:       low,
			Close:     close,
			Volume:    volume,
		}
		price = close
	}
	return bars
}

func roundToTick(v, tick float64) float64 {
	return math.Round(v/tick) * tick
}
