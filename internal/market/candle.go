package market

import (
	"sort"
	"time"

	"github.com/shopspring/decimal"
)

// Candle is a single OHLCV bar. Prices and volume are decimals because
// they feed comparisons that gate trading decisions.
type Candle struct {
	Timestamp time.Time       `json:"timestamp"`
	Open      decimal.Decimal `json:"open"`
	High      decimal.Decimal `json:"high"`
	Low       decimal.Decimal `json:"low"`
	Close     decimal.Decimal `json:"close"`
	Volume    decimal.Decimal `json:"volume"`
}

// NormalizeCandles returns the series sorted ascending by timestamp with
// duplicate timestamps collapsed (the later occurrence wins). Upstream
// sources promise ordered gap-free data; we do not trust the promise.
func NormalizeCandles(candles []Candle) []Candle {
	if len(candles) == 0 {
		return nil
	}
	out := make([]Candle, len(candles))
	copy(out, candles)
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Timestamp.Before(out[j].Timestamp)
	})
	dedup := out[:0]
	for _, c := range out {
		if n := len(dedup); n > 0 && dedup[n-1].Timestamp.Equal(c.Timestamp) {
			dedup[n-1] = c
			continue
		}
		dedup = append(dedup, c)
	}
	return dedup
}

// Closes extracts the close series as float64 for indicator libraries.
// Indicator math is analytics; decision gates stay on decimal.
func Closes(candles []Candle) []float64 {
	out := make([]float64, len(candles))
	for i, c := range candles {
		out[i], _ = c.Close.Float64()
	}
	return out
}

// Highs extracts the high series as float64.
func Highs(candles []Candle) []float64 {
	out := make([]float64, len(candles))
	for i, c := range candles {
		out[i], _ = c.High.Float64()
	}
	return out
}

// Lows extracts the low series as float64.
func Lows(candles []Candle) []float64 {
	out := make([]float64, len(candles))
	for i, c := range candles {
		out[i], _ = c.Low.Float64()
	}
	return out
}
