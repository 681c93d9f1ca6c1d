package risk

import (
	"strings"
	"time"

	"alpha_protect/internal/market"
	"alpha_protect/internal/models"
)

// Caps holds the account-level limits. A zero numeric cap means the
// check is disabled.
type Caps struct {
	DailyMaxSpendUSD            float64
	DailyMaxSpendPctBuyingPower float64
	DailyMaxNewPositions        int
	MaxTotalOpenPositions       int
	MaxExposurePctEquity        float64
	MaxSymbolExposurePctEquity  float64
	CashBufferPct               float64
	SymbolCooldownDays          int
	IfPositionOpenSkip          bool
	SkipIfOrderPending          bool
}

// Snapshot is one consistent read of the account used for a whole
// planning batch, so every candidate is judged against the same
// equity and exposure numbers.
type Snapshot struct {
	Equity         float64
	Cash           float64
	BuyingPower    float64
	Positions      []models.Position
	OpenOrders     []models.Order
	TotalExposure  float64
	SymbolExposure map[string]float64
}

// BuildSnapshot pulls account, positions and open orders in one pass.
func BuildSnapshot(p market.MarketProvider) (*Snapshot, error) {
	acct, err := p.GetAccount()
	if err != nil {
		return nil, err
	}
	positions, err := p.ListPositions()
	if err != nil {
		return nil, err
	}
	orders, err := p.ListOpenOrders()
	if err != nil {
		return nil, err
	}
	snap := &Snapshot{
		Equity:         acct.Equity.InexactFloat64(),
		Cash:           acct.Cash.InexactFloat64(),
		BuyingPower:    acct.BuyingPower.InexactFloat64(),
		Positions:      positions,
		OpenOrders:     orders,
		SymbolExposure: map[string]float64{},
	}
	for _, pos := range positions {
		mv := pos.MarketValue.InexactFloat64()
		snap.TotalExposure += mv
		snap.SymbolExposure[strings.ToUpper(pos.Symbol)] += mv
	}
	return snap, nil
}

// HasPosition reports whether the account holds shares of the symbol.
func (s *Snapshot) HasPosition(symbol string) bool {
	for _, pos := range s.Positions {
		if strings.EqualFold(pos.Symbol, symbol) && !pos.Qty.IsZero() {
			return true
		}
	}
	return false
}

// HasPendingBuy reports whether an open buy order exists for the symbol.
func (s *Snapshot) HasPendingBuy(symbol string) bool {
	for _, o := range s.OpenOrders {
		if strings.EqualFold(o.Symbol, symbol) && strings.EqualFold(o.Side, "buy") {
			return true
		}
	}
	return false
}

// EffectiveDailyCap resolves the absolute and percent-of-buying-power
// daily spend caps into one number. With both set, the stricter wins.
// Zero means unlimited.
func EffectiveDailyCap(caps Caps, buyingPower float64) float64 {
	abs := caps.DailyMaxSpendUSD
	var pct float64
	if caps.DailyMaxSpendPctBuyingPower > 0 && buyingPower > 0 {
		pct = caps.DailyMaxSpendPctBuyingPower * buyingPower
	}
	switch {
	case abs > 0 && pct > 0:
		if pct < abs {
			return pct
		}
		return abs
	case abs > 0:
		return abs
	case pct > 0:
		return pct
	}
	return 0
}

// CheckLimits evaluates every cap for one candidate and returns all the
// reasons it fails, not just the first. An empty reason list means the
// trade may proceed.
func CheckLimits(symbol string, plannedSpend float64, st State, snap *Snapshot, caps Caps) []string {
	var reasons []string
	symbol = strings.ToUpper(symbol)

	if limit := EffectiveDailyCap(caps, snap.BuyingPower); limit > 0 && st.SpentTodayUSD+plannedSpend > limit {
		reasons = append(reasons, "daily_spend_exceeded")
	}
	if caps.DailyMaxNewPositions > 0 && st.NewPositionsToday >= caps.DailyMaxNewPositions {
		reasons = append(reasons, "daily_positions_exceeded")
	}
	if caps.MaxTotalOpenPositions > 0 && len(snap.Positions) >= caps.MaxTotalOpenPositions {
		reasons = append(reasons, "max_open_positions")
	}
	if snap.Equity <= 0 {
		reasons = append(reasons, "invalid_equity")
	} else {
		if caps.CashBufferPct > 0 && snap.Cash-plannedSpend < snap.Equity*caps.CashBufferPct {
			reasons = append(reasons, "cash_buffer")
		}
		if caps.MaxExposurePctEquity > 0 &&
			snap.TotalExposure+plannedSpend > snap.Equity*caps.MaxExposurePctEquity {
			reasons = append(reasons, "max_exposure")
		}
		if caps.MaxSymbolExposurePctEquity > 0 &&
			snap.SymbolExposure[symbol]+plannedSpend > snap.Equity*caps.MaxSymbolExposurePctEquity {
			reasons = append(reasons, "symbol_exposure")
		}
	}
	if caps.IfPositionOpenSkip && snap.HasPosition(symbol) {
		reasons = append(reasons, "position_open")
	}
	if caps.SkipIfOrderPending && snap.HasPendingBuy(symbol) {
		reasons = append(reasons, "order_pending")
	}
	if st.TradedToday(symbol) {
		reasons = append(reasons, "symbol_traded_today")
	}
	if caps.SymbolCooldownDays > 0 {
		if last, ok := st.SymbolLastTrade[symbol]; ok && last != "" {
			if days, err := daysBetween(last, st.Date); err == nil && days >= 0 && days < caps.SymbolCooldownDays {
				reasons = append(reasons, "symbol_cooldown")
			}
		}
	}
	if plannedSpend <= 0 {
		reasons = append(reasons, "invalid_plan_spend")
	}
	return reasons
}

// daysBetween returns the whole days from one YYYY-MM-DD date to
// another. Both are trading-day keys on the same calendar.
func daysBetween(from, to string) (int, error) {
	a, err := time.Parse(dateLayout, from)
	if err != nil {
		return 0, err
	}
	b, err := time.Parse(dateLayout, to)
	if err != nil {
		return 0, err
	}
	return int(b.Sub(a).Hours() / 24), nil
}
