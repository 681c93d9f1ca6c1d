// Package policy holds the exit math for long equity positions: initial
// stop and take-profit placement, the break-even promotion, the ATR
// trailing stop, and the minimum-improvement gate that keeps the live
// engine from churning orders over noise.
package policy

import (
	"math"

	"alpha_protect/internal/ticks"
)

// Params configures the exit policy. Zero values disable the optional
// behaviors; use Defaults as a baseline.
type Params struct {
	ATRMultiple           float64 // initial stop distance in ATRs
	MinStopPercent        float64 // floor on stop distance as a fraction of entry
	TakeProfitATRMultiple float64
	MinRRRatio            float64

	BreakEvenR             float64 // promote stop to entry at this R multiple
	BreakEvenBufferPercent float64 // lift above entry to cover fees

	TrailingEnable            bool
	TrailingATRMultiple       float64
	TrailingProfitATRMultiple float64 // tighter multiple once in profit
	TrailingTightenAtR        float64 // R multiple at which the tighter multiple kicks in
	TrailingFallbackPercent   float64 // percent trail when no ATR is available
	TrailingFallbackProfitPct float64
	MinImprovementPercent     float64 // of the current stop
	MinImprovementUSD         float64 // absolute floor, dominates for cheap stocks
	StopLimitBufferPercent    float64 // 0 means plain stop orders
	Ticks                     ticks.Table
}

// Defaults returns the production baseline.
func Defaults() Params {
	return Params{
		ATRMultiple:               2.0,
		MinStopPercent:            0.05,
		TakeProfitATRMultiple:     3.0,
		MinRRRatio:                1.5,
		BreakEvenR:                1.0,
		BreakEvenBufferPercent:    0.001,
		TrailingEnable:            true,
		TrailingATRMultiple:       2.0,
		TrailingProfitATRMultiple: 1.5,
		TrailingTightenAtR:        2.0,
		TrailingFallbackPercent:   0.03,
		TrailingFallbackProfitPct: 0.02,
		MinImprovementPercent:     0.01,
		MinImprovementUSD:         0.10,
		Ticks:                     ticks.DefaultTable(),
	}
}

// Bracket holds computed protective prices for a prospective entry.
type Bracket struct {
	StopPrice    float64
	TakeProfit   float64
	StopDistance float64
	RRRatio      float64
}

// StopDistance returns the initial stop distance for an entry. With a
// usable ATR it is the wider of ATRMultiple*atr and MinStopPercent of
// the entry; without one, the percent floor alone.
func (p Params) StopDistance(entry, atr float64) float64 {
	if atr > 0 {
		return math.Max(p.ATRMultiple*atr, p.MinStopPercent*entry)
	}
	return p.MinStopPercent * entry
}

// ComputeBracket derives protective prices for an entry. The stop is
// rounded down a tick grid, the target up, so both stay on the safe
// side of the raw values.
func (p Params) ComputeBracket(entry, atr float64) Bracket {
	tick := p.Ticks.Equity(entry)
	dist := p.StopDistance(entry, atr)
	stopRaw := entry - dist
	var tpRaw float64
	if atr > 0 {
		tpRaw = entry + p.TakeProfitATRMultiple*atr
	} else {
		tpRaw = entry * (1 + p.MinStopPercent*p.MinRRRatio)
	}
	stop := ticks.RoundToTick(stopRaw, tick, ticks.Down)
	tp := ticks.RoundToTick(tpRaw, tick, ticks.Up)
	rr := 0.0
	if entry > stop && stop > 0 {
		rr = (tp - entry) / (entry - stop)
	}
	return Bracket{StopPrice: stop, TakeProfit: tp, StopDistance: dist, RRRatio: rr}
}

// ValidateBracket rejects degenerate price relationships before they
// reach the broker.
func ValidateBracket(entry, stop, tp float64) bool {
	if entry <= 0 || stop <= 0 || tp <= 0 {
		return false
	}
	return stop < entry && tp > entry
}

// StopLimitPrice returns the limit leg for a stop-limit order, a buffer
// below the stop, rounded down. Returns the stop itself when the buffer
// is disabled.
func (p Params) StopLimitPrice(stop float64) float64 {
	if p.StopLimitBufferPercent <= 0 || stop <= 0 {
		return stop
	}
	tick := p.Ticks.Equity(stop)
	return ticks.RoundToTick(stop*(1-p.StopLimitBufferPercent), tick, ticks.Down)
}

// RMultiple expresses the open gain in units of initial risk. The risk
// denominator is floored at MinStopPercent of entry so a tiny ATR does
// not inflate R.
func (p Params) RMultiple(entry, last, atr float64) float64 {
	if entry <= 0 || last <= 0 {
		return 0
	}
	risk := math.Max(p.StopDistance(entry, atr), p.MinStopPercent*entry)
	if risk <= 0 {
		return 0
	}
	return (last - entry) / risk
}

// NewStop evaluates break-even promotion and the trailing stop against
// the current stop and returns the ratcheted value with the reasons
// that moved it. The result never falls below oldStop; each candidate
// must clear the old stop by more than one tick to count.
func (p Params) NewStop(entry, last, atr, oldStop float64) (float64, []string) {
	newStop := oldStop
	var reasons []string
	if entry <= 0 || last <= 0 {
		return newStop, nil
	}
	tick := p.Ticks.Equity(last)
	r := p.RMultiple(entry, last, atr)

	if p.BreakEvenR > 0 && r >= p.BreakEvenR {
		be := entry * (1 + p.BreakEvenBufferPercent)
		if be > newStop+tick {
			newStop = be
			reasons = append(reasons, "break_even")
		}
	}

	if p.TrailingEnable {
		inProfit := p.TrailingTightenAtR > 0 && r >= p.TrailingTightenAtR
		var trail float64
		if atr > 0 {
			mult := p.TrailingATRMultiple
			if inProfit {
				mult = p.TrailingProfitATRMultiple
			}
			trail = last - atr*mult
		} else {
			pct := p.TrailingFallbackPercent
			if inProfit {
				pct = p.TrailingFallbackProfitPct
			}
			trail = last * (1 - pct)
		}
		if trail > newStop+tick {
			newStop = trail
			if inProfit {
				reasons = append(reasons, "trailing_profit")
			} else {
				reasons = append(reasons, "trailing")
			}
		}
	}
	return newStop, reasons
}

// MinImprovement returns the smallest stop raise worth acting on: the
// largest of one tick, MinImprovementPercent of the current stop, and
// the absolute USD floor. With no current stop, one tick.
func (p Params) MinImprovement(oldStop, tick float64) float64 {
	if oldStop <= 0 {
		return tick
	}
	return math.Max(tick, math.Max(oldStop*p.MinImprovementPercent, p.MinImprovementUSD))
}
