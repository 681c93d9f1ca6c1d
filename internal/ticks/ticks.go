// Package ticks rounds prices onto exchange tick grids. All rounding
// goes through decimal arithmetic so that float residue like
// 120.83000000000001 cannot leak into order prices.
package ticks

import "github.com/shopspring/decimal"

// Mode selects the rounding direction.
type Mode int

const (
	Down Mode = iota // floor, used for protective stops
	Up               // ceil, used for take-profit targets
	Nearest
)

// Table holds the tick sizes per asset class. Sub-dollar equities trade
// in hundredths of a cent; everything that is not a US equity gets a
// single fixed tick.
type Table struct {
	EquityGE1 float64 // equity price >= $1
	EquityLT1 float64 // equity price < $1
	Other     float64 // crypto and any other asset class
}

// DefaultTable matches the US equity rule, $0.01 at or above a dollar and
// $0.0001 below, with a flat cent tick for other asset classes.
func DefaultTable() Table {
	return Table{EquityGE1: 0.01, EquityLT1: 0.0001, Other: 0.01}
}

// Equity returns the tick size for an equity trading at the given price.
func (t Table) Equity(price float64) float64 {
	if price < 1 {
		return t.EquityLT1
	}
	return t.EquityGE1
}

// ForAsset returns the tick size for an asset class at the given price.
// Unknown classes fall back to the fixed non-equity tick.
func (t Table) ForAsset(assetClass string, price float64) float64 {
	switch assetClass {
	case "us_equity", "equity":
		return t.Equity(price)
	default:
		return t.Other
	}
}

// RoundToTick snaps price onto the tick grid. A non-positive tick or
// price returns the price unchanged. Nearest rounds half away from zero.
func RoundToTick(price, tick float64, mode Mode) float64 {
	if tick <= 0 || price <= 0 {
		return price
	}
	p := decimal.NewFromFloat(price)
	t := decimal.NewFromFloat(tick)
	steps := p.Div(t)
	switch mode {
	case Up:
		steps = steps.Ceil()
	case Nearest:
		steps = steps.Round(0)
	default:
		steps = steps.Floor()
	}
	v, _ := steps.Mul(t).Float64()
	return v
}
