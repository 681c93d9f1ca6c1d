// Package sim replays the exit policy over historical daily bars. The
// same policy code that drives the live loop decides the stops here, so
// a parameter change can be evaluated before it touches real orders.
package sim

import (
	"math"
	"time"

	"alpha_protect/internal/indicators"
	"alpha_protect/internal/models"
	"alpha_protect/internal/policy"
)

// Result is one simulated round trip.
type Result struct {
	Symbol      string
	EntryTime   time.Time
	ExitTime    time.Time
	EntryPrice  float64
	ExitPrice   float64
	InitialStop float64
	FinalStop   float64
	ExitReason  string // stop_gap, stop, tp, time
	HoldingDays int
	PnLPct      float64
	RMultiple   float64
}

// EntryFunc decides whether to open a position on bar i. It sees the
// full history and the aligned ATR series.
type EntryFunc func(i int, bars []models.Bar, atr []float64) bool

// Simulator replays entries bar by bar.
type Simulator struct {
	Params      policy.Params
	MaxHoldDays int // exit at close after this many days, default 30
	ATRPeriod   int // default 14
}

func New(params policy.Params) *Simulator {
	return &Simulator{
		Params:      params,
		MaxHoldDays: 30,
		ATRPeriod:   indicators.DefaultATRPeriod,
	}
}

// Simulate runs one trade entered at the close of bars[entryIdx].
// Each following day checks, in order: a gap below the stop exits at
// the open, an intraday touch exits at the stop, a take-profit touch
// exits at the target. Otherwise the stop ratchets on the close.
// Returns false when the entry bar has no usable price or ATR.
func (s *Simulator) Simulate(symbol string, bars []models.Bar, atr []float64, entryIdx int) (Result, bool) {
	if entryIdx < 0 || entryIdx >= len(bars)-1 || entryIdx >= len(atr) {
		return Result{}, false
	}
	entry := bars[entryIdx].Close
	entryATR := atr[entryIdx]
	if entry <= 0 || entryATR <= 0 {
		return Result{}, false
	}

	b := s.Params.ComputeBracket(entry, entryATR)
	initialStop := b.StopPrice
	tp := b.TakeProfit
	if !policy.ValidateBracket(entry, initialStop, tp) {
		return Result{}, false
	}

	maxHold := s.MaxHoldDays
	if maxHold <= 0 {
		maxHold = 30
	}

	currentStop := initialStop
	for day := 1; day <= maxHold; day++ {
		i := entryIdx + day
		if i >= len(bars) {
			break
		}
		bar := bars[i]
		barATR := entryATR
		if i < len(atr) && atr[i] > 0 {
			barATR = atr[i]
		}
		if bar.Open <= currentStop {
			return s.result(symbol, bars, entryIdx, i, entry, initialStop, currentStop, bar.Open, "stop_gap"), true
		}
		if bar.Low <= currentStop {
			return s.result(symbol, bars, entryIdx, i, entry, initialStop, currentStop, currentStop, "stop"), true
		}
		if bar.High >= tp {
			return s.result(symbol, bars, entryIdx, i, entry, initialStop, currentStop, tp, "tp"), true
		}
		// End-of-day ratchet with the same policy the live loop runs.
		if newStop, _ := s.Params.NewStop(entry, bar.Close, barATR, currentStop); newStop > currentStop {
			currentStop = newStop
		}
	}

	last := entryIdx + maxHold
	if last > len(bars)-1 {
		last = len(bars) - 1
	}
	return s.result(symbol, bars, entryIdx, last, entry, initialStop, currentStop, bars[last].Close, "time"), true
}

func (s *Simulator) result(symbol string, bars []models.Bar, entryIdx, exitIdx int, entry, initialStop, finalStop, exitPrice float64, reason string) Result {
	risk := math.Max(entry-initialStop, 1e-9)
	return Result{
		Symbol:      symbol,
		EntryTime:   bars[entryIdx].Time,
		ExitTime:    bars[exitIdx].Time,
		EntryPrice:  entry,
		ExitPrice:   exitPrice,
		InitialStop: initialStop,
		FinalStop:   finalStop,
		ExitReason:  reason,
		HoldingDays: exitIdx - entryIdx,
		PnLPct:      (exitPrice - entry) / entry * 100,
		RMultiple:   (exitPrice - entry) / risk,
	}
}

// Replay walks the history, opening a trade wherever shouldEnter fires,
// with a cooldown in bars between entries. The first candidate bar
// leaves room for the ATR warmup.
func (s *Simulator) Replay(symbol string, bars []models.Bar, shouldEnter EntryFunc, cooldownBars int) []Result {
	period := s.ATRPeriod
	if period <= 0 {
		period = indicators.DefaultATRPeriod
	}
	atr := indicators.ATRSeries(bars, period)
	if cooldownBars < 1 {
		cooldownBars = 1
	}

	var results []Result
	lastEntry := -cooldownBars
	for i := period; i < len(bars)-1; i++ {
		if i-lastEntry < cooldownBars {
			continue
		}
		if shouldEnter != nil && !shouldEnter(i, bars, atr) {
			continue
		}
		r, ok := s.Simulate(symbol, bars, atr, i)
		if !ok {
			continue
		}
		results = append(results, r)
		lastEntry = i
	}
	return results
}

// Summary aggregates replay results.
type Summary struct {
	Trades    int
	Wins      int
	WinRate   float64
	AvgPnLPct float64
	AvgR      float64
	ByReason  map[string]int
}

func Summarize(results []Result) Summary {
	s := Summary{ByReason: map[string]int{}}
	if len(results) == 0 {
		return s
	}
	var pnl, r float64
	for _, res := range results {
		s.Trades++
		if res.ExitPrice > res.EntryPrice {
			s.Wins++
		}
		pnl += res.PnLPct
		r += res.RMultiple
		s.ByReason[res.ExitReason]++
	}
	s.WinRate = float64(s.Wins) / float64(s.Trades)
	s.AvgPnLPct = pnl / float64(s.Trades)
	s.AvgR = r / float64(s.Trades)
	return s
}
