package indicators

import (
	"math"

	"alpha_protect/internal/models"
)

// DefaultATRPeriod is the lookback used for stop sizing.
const DefaultATRPeriod = 14

// TrueRange returns the true range of a bar given the previous close.
func TrueRange(high, low, prevClose float64) float64 {
	tr := high - low
	tr = math.Max(tr, math.Abs(high-prevClose))
	tr = math.Max(tr, math.Abs(low-prevClose))
	return tr
}

// ATR computes the average true range over the trailing period as a
// simple mean of true ranges. The first bar has no previous close, so
// period+1 bars are required. Returns false when there is not enough
// history or the result is not a positive finite number.
func ATR(bars []models.Bar, period int) (float64, bool) {
	if period <= 0 || len(bars) < period+1 {
		return 0, false
	}
	sum := 0.0
	start := len(bars) - period
	for i := start; i < len(bars); i++ {
		sum += TrueRange(bars[i].High, bars[i].Low, bars[i-1].Close)
	}
	atr := sum / float64(period)
	if atr <= 0 || math.IsNaN(atr) || math.IsInf(atr, 0) {
		return 0, false
	}
	return atr, true
}

// ATRSeries returns an ATR value aligned with each bar, zero where the
// lookback window is not yet full. Used by the replay engine, which
// needs the ATR as it stood on every historical day.
func ATRSeries(bars []models.Bar, period int) []float64 {
	out := make([]float64, len(bars))
	if period <= 0 || len(bars) < 2 {
		return out
	}
	trs := make([]float64, len(bars))
	for i := 1; i < len(bars); i++ {
		trs[i] = TrueRange(bars[i].High, bars[i].Low, bars[i-1].Close)
	}
	sum := 0.0
	for i := 1; i < len(bars); i++ {
		sum += trs[i]
		if i > period {
			sum -= trs[i-period]
		}
		if i >= period {
			out[i] = sum / float64(period)
		}
	}
	return out
}
