// Package journal persists protection decisions and planned trades to
// SQLite for after-the-fact review.
package journal

import "time"

// Decision is one evaluated position per protection cycle that led to
// an order action (or would have, in dry-run).
type Decision struct {
	Time     time.Time
	Symbol   string
	Entry    float64
	Last     float64
	ATR      float64
	OldStop  float64
	NewStop  float64
	Reason   string
	DryRun   bool
	OrderID  string
	ClientID string
}

// PlannedTrade is an approved entry plan recorded before submission.
type PlannedTrade struct {
	Time       time.Time
	Symbol     string
	Qty        float64
	Price      float64
	Notional   float64
	StopLoss   float64
	TakeProfit float64
	RRRatio    float64
}

type Journal interface {
	RecordDecision(Decision) error
	RecordPlannedTrade(PlannedTrade) error
	Close() error
}

// Nop discards everything. Used when journaling is disabled.
type Nop struct{}

func (Nop) RecordDecision(Decision) error         { return nil }
func (Nop) RecordPlannedTrade(PlannedTrade) error { return nil }
func (Nop) Close() error                          { return nil }
