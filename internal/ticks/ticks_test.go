package ticks

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRoundToTickModes(t *testing.T) {
	assert.InDelta(t, 95.12, RoundToTick(95.128, 0.01, Down), 1e-9)
	assert.InDelta(t, 95.13, RoundToTick(95.128, 0.01, Up), 1e-9)
	assert.InDelta(t, 95.13, RoundToTick(95.128, 0.01, Nearest), 1e-9)
	// Half rounds away from zero.
	assert.InDelta(t, 95.13, RoundToTick(95.125, 0.01, Nearest), 1e-9)
}

func TestRoundToTickKillsFloatResidue(t *testing.T) {
	price := 1.2083 * 100 // 120.82999999999998 in float64
	assert.InDelta(t, 120.83, RoundToTick(price, 0.01, Nearest), 1e-12)
	assert.InDelta(t, 120.83, RoundToTick(price, 0.01, Up), 1e-12)
}

func TestRoundToTickIdempotent(t *testing.T) {
	for _, mode := range []Mode{Down, Up, Nearest} {
		once := RoundToTick(17.7319, 0.01, mode)
		assert.Equal(t, once, RoundToTick(once, 0.01, mode))
	}
}

func TestRoundToTickDegenerateInputs(t *testing.T) {
	assert.Equal(t, 95.128, RoundToTick(95.128, 0, Down))
	assert.Equal(t, 95.128, RoundToTick(95.128, -0.01, Down))
	assert.Equal(t, 0.0, RoundToTick(0, 0.01, Down))
	assert.Equal(t, -3.5, RoundToTick(-3.5, 0.01, Down))
}

func TestSubDollarTick(t *testing.T) {
	tab := DefaultTable()
	assert.Equal(t, 0.0001, tab.Equity(0.53))
	assert.Equal(t, 0.01, tab.Equity(1.00))
	assert.Equal(t, 0.01, tab.Equity(412.07))
	assert.InDelta(t, 0.5678, RoundToTick(0.56789, tab.Equity(0.56789), Down), 1e-12)
}

func TestForAsset(t *testing.T) {
	tab := DefaultTable()
	assert.Equal(t, 0.0001, tab.ForAsset("us_equity", 0.53))
	assert.Equal(t, 0.01, tab.ForAsset("equity", 412.07))
	assert.Equal(t, 0.01, tab.ForAsset("crypto", 0.53))
	assert.Equal(t, 0.01, tab.ForAsset("", 40000))
}
