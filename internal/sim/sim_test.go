package sim

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"alpha_protect/internal/models"
	"alpha_protect/internal/policy"
)

func day(i int) time.Time {
	return time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC).AddDate(0, 0, i)
}

func mkBar(i int, o, h, l, c float64) models.Bar {
	return models.Bar{Time: day(i), Open: o, High: h, Low: l, Close: c}
}

func flatATR(n int, v float64) []float64 {
	atr := make([]float64, n)
	for i := range atr {
		atr[i] = v
	}
	return atr
}

// Entry at close 100 with ATR 2 puts the stop at 95 and the target
// at 106 under the default parameters.
func entryBars(rest ...models.Bar) []models.Bar {
	bars := []models.Bar{mkBar(0, 99, 101, 98, 100)}
	return append(bars, rest...)
}

func TestSimulateTakeProfitTouch(t *testing.T) {
	bars := entryBars(mkBar(1, 101, 107, 100, 105))
	s := New(policy.Defaults())

	r, ok := s.Simulate("TEST", bars, flatATR(len(bars), 2), 0)
	require.True(t, ok)
	assert.Equal(t, "tp", r.ExitReason)
	assert.InDelta(t, 106.0, r.ExitPrice, 1e-9)
	assert.InDelta(t, 95.0, r.InitialStop, 1e-9)
	assert.Equal(t, 1, r.HoldingDays)
	assert.InDelta(t, 6.0, r.PnLPct, 1e-9)
	assert.InDelta(t, 1.2, r.RMultiple, 1e-9)
}

func TestSimulateGapDownExitsAtOpen(t *testing.T) {
	bars := entryBars(mkBar(1, 90, 92, 88, 91))
	s := New(policy.Defaults())

	r, ok := s.Simulate("TEST", bars, flatATR(len(bars), 2), 0)
	require.True(t, ok)
	assert.Equal(t, "stop_gap", r.ExitReason)
	// The gap fill, not the stop price, is the exit.
	assert.InDelta(t, 90.0, r.ExitPrice, 1e-9)
}

func TestSimulateIntradayStopExitsAtStop(t *testing.T) {
	bars := entryBars(mkBar(1, 96, 97, 94, 96))
	s := New(policy.Defaults())

	r, ok := s.Simulate("TEST", bars, flatATR(len(bars), 2), 0)
	require.True(t, ok)
	assert.Equal(t, "stop", r.ExitReason)
	assert.InDelta(t, 95.0, r.ExitPrice, 1e-9)
	assert.InDelta(t, -5.0, r.PnLPct, 1e-9)
	assert.InDelta(t, -1.0, r.RMultiple, 1e-9)
}

func TestSimulateRatchetsThenGapsOut(t *testing.T) {
	bars := entryBars(
		// Day 1 closes at 105: the trail lifts the stop to 101.
		mkBar(1, 101, 105.5, 100, 105),
		// Day 2 opens below the raised stop.
		mkBar(2, 100.5, 102, 100, 101),
	)
	s := New(policy.Defaults())

	r, ok := s.Simulate("TEST", bars, flatATR(len(bars), 2), 0)
	require.True(t, ok)
	assert.Equal(t, "stop_gap", r.ExitReason)
	assert.InDelta(t, 100.5, r.ExitPrice, 1e-9)
	assert.InDelta(t, 101.0, r.FinalStop, 1e-9)
	assert.Equal(t, 2, r.HoldingDays)
	assert.Greater(t, r.ExitPrice, r.EntryPrice)
}

func TestSimulateTimeExit(t *testing.T) {
	bars := entryBars(
		mkBar(1, 100, 100.5, 99.5, 100),
		mkBar(2, 100, 100.5, 99.5, 100),
		mkBar(3, 100, 100.5, 99.5, 100),
		mkBar(4, 100, 100.5, 99.5, 100),
	)
	s := New(policy.Defaults())
	s.MaxHoldDays = 3

	r, ok := s.Simulate("TEST", bars, flatATR(len(bars), 2), 0)
	require.True(t, ok)
	assert.Equal(t, "time", r.ExitReason)
	assert.Equal(t, 3, r.HoldingDays)
	assert.InDelta(t, 100.0, r.ExitPrice, 1e-9)
	// The flat tape still ratcheted the stop via the trail.
	assert.InDelta(t, 96.0, r.FinalStop, 1e-9)
}

func TestSimulateRejectsUnusableEntry(t *testing.T) {
	bars := entryBars(mkBar(1, 100, 101, 99, 100))
	s := New(policy.Defaults())

	_, ok := s.Simulate("TEST", bars, flatATR(len(bars), 0), 0)
	assert.False(t, ok, "zero atr")
	_, ok = s.Simulate("TEST", bars, flatATR(len(bars), 2), 5)
	assert.False(t, ok, "entry index out of range")
	_, ok = s.Simulate("TEST", bars, flatATR(len(bars), 2), len(bars)-1)
	assert.False(t, ok, "no bars after entry")
}

func TestReplayRisingTapeExitsAtTargets(t *testing.T) {
	// A steady uptrend: every trade should end at its target.
	var bars []models.Bar
	for i := 0; i < 80; i++ {
		c := 100.0 + float64(i)
		bars = append(bars, mkBar(i, c-0.5, c+1, c-1, c))
	}
	s := New(policy.Defaults())

	results := s.Replay("TREND", bars, nil, 10)
	require.NotEmpty(t, results)
	for _, r := range results {
		assert.Equal(t, "tp", r.ExitReason)
		assert.Greater(t, r.ExitPrice, r.EntryPrice)
	}

	summary := Summarize(results)
	assert.Equal(t, len(results), summary.Trades)
	assert.InDelta(t, 1.0, summary.WinRate, 1e-9)
	assert.Equal(t, len(results), summary.ByReason["tp"])
}

func TestReplayHonorsEntryFuncAndCooldown(t *testing.T) {
	var bars []models.Bar
	for i := 0; i < 80; i++ {
		c := 100.0 + float64(i)
		bars = append(bars, mkBar(i, c-0.5, c+1, c-1, c))
	}
	s := New(policy.Defaults())

	none := s.Replay("TREND", bars, func(int, []models.Bar, []float64) bool { return false }, 10)
	assert.Empty(t, none)

	tight := s.Replay("TREND", bars, nil, 5)
	loose := s.Replay("TREND", bars, nil, 40)
	assert.Greater(t, len(tight), len(loose))
}

func TestSummarizeEmpty(t *testing.T) {
	s := Summarize(nil)
	assert.Zero(t, s.Trades)
	assert.Zero(t, s.WinRate)
	assert.NotNil(t, s.ByReason)
}
