package risk

import (
	"math"
	"strings"

	"github.com/rs/zerolog"

	"alpha_protect/internal/market"
	"alpha_protect/internal/models"
	"alpha_protect/internal/policy"
)

// Sizing controls how large an approved entry may be.
type Sizing struct {
	MaxPositionSizeUSD float64
	MinPositionSizeUSD float64
	SlippageBufferPct  float64
	MaxSymbolRiskPct   float64
	UseBracket         bool
	TimeInForce        string
}

// Rejection explains why a candidate produced no plan.
type Rejection struct {
	Symbol  string
	Reasons []string
}

// Planner sizes candidate entries and gates them through the daily
// risk limits. Approved plans reserve budget on a working copy of the
// state so a batch cannot collectively overshoot the caps.
type Planner struct {
	provider market.MarketProvider
	store    *Store
	caps     Caps
	sizing   Sizing
	params   policy.Params
	log      zerolog.Logger
}

func NewPlanner(provider market.MarketProvider, store *Store, caps Caps, sizing Sizing, params policy.Params, log zerolog.Logger) *Planner {
	return &Planner{
		provider: provider,
		store:    store,
		caps:     caps,
		sizing:   sizing,
		params:   params,
		log:      log.With().Str("component", "planner").Logger(),
	}
}

// PlanTrades sizes and risk-checks each candidate against a single
// account snapshot. It does not submit anything and does not persist
// the reservations; callers record actual fills via Store.RecordTrade.
func (pl *Planner) PlanTrades(candidates []models.Candidate) ([]models.TradePlan, []Rejection) {
	snap, err := BuildSnapshot(pl.provider)
	if err != nil {
		pl.log.Error().Err(err).Msg("account snapshot failed, no trades planned")
		var rejected []Rejection
		for _, c := range candidates {
			rejected = append(rejected, Rejection{Symbol: c.Symbol, Reasons: []string{"account_snapshot_failed"}})
		}
		return nil, rejected
	}
	working := pl.store.Load().Clone()

	var plans []models.TradePlan
	var rejected []Rejection
	for _, c := range candidates {
		symbol := strings.ToUpper(c.Symbol)
		plan, reason := pl.planOne(c, working, snap)
		if plan == nil {
			rejected = append(rejected, Rejection{Symbol: symbol, Reasons: []string{reason}})
			continue
		}
		if reasons := CheckLimits(symbol, plan.Notional, working, snap, pl.caps); len(reasons) > 0 {
			pl.log.Info().Str("symbol", symbol).Strs("reasons", reasons).Msg("candidate rejected")
			rejected = append(rejected, Rejection{Symbol: symbol, Reasons: reasons})
			continue
		}
		working.Reserve(symbol, plan.Notional)
		snap.TotalExposure += plan.Notional
		snap.SymbolExposure[symbol] += plan.Notional
		plans = append(plans, *plan)
		pl.log.Info().
			Str("symbol", symbol).
			Float64("qty", plan.Qty).
			Float64("notional", plan.Notional).
			Float64("stop", plan.StopLoss).
			Float64("take_profit", plan.TakeProfit).
			Msg("trade planned")
	}
	return plans, rejected
}

// planOne sizes a single candidate. Quantity is the lesser of what the
// risk budget allows (equity * MaxSymbolRiskPct per stop distance) and
// what the dollar budget affords.
func (pl *Planner) planOne(c models.Candidate, st State, snap *Snapshot) (*models.TradePlan, string) {
	symbol := strings.ToUpper(c.Symbol)
	if c.Price <= 0 {
		return nil, "invalid_price"
	}
	if snap.Equity <= 0 {
		return nil, "invalid_equity"
	}

	budget := snap.Cash - snap.Equity*pl.caps.CashBufferPct
	if limit := EffectiveDailyCap(pl.caps, snap.BuyingPower); limit > 0 {
		budget = math.Min(budget, limit-st.SpentTodayUSD)
	}
	if pl.sizing.MaxPositionSizeUSD > 0 {
		budget = math.Min(budget, pl.sizing.MaxPositionSizeUSD)
	}
	if pl.caps.MaxSymbolExposurePctEquity > 0 {
		room := snap.Equity*pl.caps.MaxSymbolExposurePctEquity - snap.SymbolExposure[symbol]
		budget = math.Min(budget, room)
	}
	if budget <= 0 {
		return nil, "cash_unavailable"
	}
	if budget < pl.sizing.MinPositionSizeUSD {
		return nil, "size_below_min"
	}
	budget *= math.Max(0, 1-pl.sizing.SlippageBufferPct)

	stopDist := pl.params.StopDistance(c.Price, c.ATR)
	if stopDist <= 0 {
		return nil, "invalid_stop_distance"
	}
	if pl.sizing.MaxSymbolRiskPct <= 0 {
		return nil, "risk_pct_missing"
	}
	riskQty := math.Floor(snap.Equity * pl.sizing.MaxSymbolRiskPct / stopDist)
	affordableQty := math.Floor(budget / c.Price)
	qty := math.Min(riskQty, affordableQty)
	if qty < 1 {
		return nil, "qty_below_one"
	}
	notional := qty * c.Price
	if notional < pl.sizing.MinPositionSizeUSD {
		return nil, "size_below_min"
	}

	plan := &models.TradePlan{
		Symbol:      symbol,
		Qty:         qty,
		Price:       c.Price,
		Notional:    notional,
		TimeInForce: pl.sizing.TimeInForce,
		UseBracket:  pl.sizing.UseBracket,
	}
	if pl.sizing.UseBracket {
		b := pl.params.ComputeBracket(c.Price, c.ATR)
		if !policy.ValidateBracket(c.Price, b.StopPrice, b.TakeProfit) {
			return nil, "invalid_bracket_prices"
		}
		if pl.params.MinRRRatio > 0 && b.RRRatio < pl.params.MinRRRatio {
			return nil, "rr_ratio_low"
		}
		plan.StopLoss = b.StopPrice
		plan.TakeProfit = b.TakeProfit
		plan.RRRatio = b.RRRatio
	} else {
		stop := c.Price - stopDist
		if stop <= 0 {
			return nil, "invalid_stop_price"
		}
		plan.StopLoss = stop
	}
	return plan, ""
}
