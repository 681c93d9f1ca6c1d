// Package protector runs the live reconciliation loop: every cycle it
// reads the broker's open positions and stop orders, recomputes where
// each stop should sit, and replaces any stop that can move up by a
// meaningful amount. Stops only ever move up.
package protector

import (
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"alpha_protect/internal/journal"
	"alpha_protect/internal/market"
	"alpha_protect/internal/models"
	"alpha_protect/internal/policy"
	"alpha_protect/internal/ticks"
)

// Options configures the engine's loop behavior. Zero durations get the
// production defaults from New.
type Options struct {
	SafeguardsEnabled bool
	TTLDays           float64   // 0 disables the TTL
	StartedAt         time.Time // start of the TTL window
	TimeInForce       string    // day or gtc
	DryRun            bool
	PriceTTL          time.Duration
	ATRTTL            time.Duration
	SuppressFor       time.Duration
	Now               func() time.Time // test hook
}

// Engine is the protection loop. One cycle at a time; an overlapping
// tick is dropped, not queued.
type Engine struct {
	mu       sync.Mutex
	provider market.MarketProvider
	params   policy.Params
	opts     Options
	journal  journal.Journal
	log      zerolog.Logger

	prices    *ttlCache
	atrs      *ttlCache
	suppress  *suppressList
	ttlLogged bool
}

func New(provider market.MarketProvider, params policy.Params, opts Options, jnl journal.Journal, log zerolog.Logger) *Engine {
	if opts.PriceTTL <= 0 {
		opts.PriceTTL = 15 * time.Second
	}
	if opts.ATRTTL <= 0 {
		opts.ATRTTL = 5 * time.Minute
	}
	if opts.SuppressFor <= 0 {
		opts.SuppressFor = 30 * time.Minute
	}
	if opts.TimeInForce == "" {
		opts.TimeInForce = "gtc"
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if jnl == nil {
		jnl = journal.Nop{}
	}
	return &Engine{
		provider: provider,
		params:   params,
		opts:     opts,
		journal:  jnl,
		log:      log.With().Str("component", "protector").Logger(),
		prices:   newTTLCache(opts.PriceTTL),
		atrs:     newTTLCache(opts.ATRTTL),
		suppress: newSuppressList(),
	}
}

// SafeguardsActive reports whether automated protection may act. The
// TTL guards against a forgotten deployment running forever on stale
// parameters.
func (e *Engine) SafeguardsActive(now time.Time) bool {
	if !e.opts.SafeguardsEnabled {
		return false
	}
	if e.opts.TTLDays <= 0 || e.opts.StartedAt.IsZero() {
		return true
	}
	expiry := e.opts.StartedAt.Add(time.Duration(e.opts.TTLDays * 24 * float64(time.Hour)))
	if !now.Before(expiry) {
		if !e.ttlLogged {
			e.log.Warn().Time("expired", expiry).Msg("safeguards ttl expired, protection disabled")
			e.ttlLogged = true
		}
		return false
	}
	return true
}

// Protect runs one protection cycle. Per-position failures are logged
// and skipped; one bad symbol never blocks the rest.
func (e *Engine) Protect() {
	if !e.mu.TryLock() {
		e.log.Info().Str("reason", "lock_busy").Msg("cycle skipped")
		return
	}
	defer e.mu.Unlock()

	now := e.opts.Now()
	if !e.SafeguardsActive(now) {
		e.log.Debug().Str("reason", "safeguards_inactive").Msg("cycle skipped")
		return
	}

	positions, err := e.provider.ListPositions()
	if err != nil {
		e.log.Warn().Err(err).Msg("position fetch failed")
		return
	}
	if len(positions) == 0 {
		return
	}
	openOrders, err := e.provider.ListOpenOrders()
	if err != nil {
		e.log.Warn().Err(err).Msg("open order fetch failed")
		return
	}

	for _, pos := range positions {
		e.protectOne(pos, openOrders, now)
	}
}

func (e *Engine) protectOne(pos models.Position, openOrders []models.Order, now time.Time) {
	symbol := strings.ToUpper(pos.Symbol)
	qty := pos.Qty.InexactFloat64()
	entry := pos.AvgEntryPrice.InexactFloat64()
	if symbol == "" || qty <= 0 || entry <= 0 {
		return
	}
	if pos.Side != "" && !strings.EqualFold(pos.Side, "long") {
		return
	}
	class := pos.AssetClass
	if class == "" {
		class = models.AssetEquity
	}
	if class != models.AssetEquity {
		e.log.Debug().Str("symbol", symbol).Str("asset_class", pos.AssetClass).
			Str("reason", "skip_non_equity").Msg("position skipped")
		return
	}
	if e.suppress.active(symbol, now) {
		e.log.Debug().Str("symbol", symbol).Str("reason", "suppressed").Msg("position skipped")
		return
	}

	stopOrder, oldStop := bestOpenStop(openOrders, symbol)

	last, ok := e.price(symbol, now)
	if !ok {
		e.logDecision(symbol, entry, 0, 0, oldStop, oldStop, "skip_no_price")
		return
	}
	atr, _ := e.atr(symbol, now) // a zero ATR falls back to percent trailing

	newStop, reasons := e.params.NewStop(entry, last, atr, oldStop)
	tick := e.params.Ticks.ForAsset(class, last)
	if newStop <= oldStop+e.params.MinImprovement(oldStop, tick) {
		e.logDecision(symbol, entry, last, atr, oldStop, newStop, "skip_no_improve")
		return
	}

	// Round down onto the grid before validity checks so the submitted
	// price is the one validated.
	stop := ticks.RoundToTick(newStop, e.params.Ticks.ForAsset(class, newStop), ticks.Down)
	if stop <= 0 || stop >= last {
		e.logDecision(symbol, entry, last, atr, oldStop, stop, "skip_invalid_stop")
		return
	}

	reason := strings.Join(reasons, "+")
	if reason == "" {
		reason = "raise"
	}

	if e.opts.DryRun {
		e.logDecision(symbol, entry, last, atr, oldStop, stop, "dry_run:"+reason)
		e.record(journal.Decision{
			Time: now, Symbol: symbol, Entry: entry, Last: last, ATR: atr,
			OldStop: oldStop, NewStop: stop, Reason: reason, DryRun: true,
		})
		return
	}

	// Cancel before submit. If the cancel fails the old protection is
	// still working, so leave the symbol alone this cycle.
	if stopOrder != nil && stopOrder.ID != "" {
		if err := e.provider.CancelOrder(stopOrder.ID); err != nil {
			e.log.Warn().Err(err).Str("symbol", symbol).Str("order_id", stopOrder.ID).
				Str("reason", "cancel_failed").Msg("stop not replaced")
			return
		}
	}

	req := models.OrderRequest{
		Symbol:        symbol,
		Side:          "sell",
		Qty:           pos.Qty,
		Type:          "stop",
		TimeInForce:   e.opts.TimeInForce,
		ClientOrderID: clientOrderID(symbol, stop, now),
		StopPrice:     decimal.NewFromFloat(stop),
	}
	if limit := e.params.StopLimitPrice(stop); limit > 0 && limit < stop {
		req.Type = "stop_limit"
		req.LimitPrice = decimal.NewFromFloat(limit)
	}

	placed, err := e.provider.PlaceOrder(req)
	if err != nil {
		if errors.Is(err, market.ErrInsufficientQty) {
			e.suppress.add(symbol, now.Add(e.opts.SuppressFor))
			e.log.Info().Str("symbol", symbol).Str("reason", "protected_by_bracket").
				Dur("suppress", e.opts.SuppressFor).Msg("shares held by existing order")
			e.record(journal.Decision{
				Time: now, Symbol: symbol, Entry: entry, Last: last, ATR: atr,
				OldStop: oldStop, NewStop: stop, Reason: "protected_by_bracket",
			})
			return
		}
		e.log.Error().Err(err).Str("symbol", symbol).Str("reason", "submit_failed").
			Float64("stop", stop).Msg("stop submission failed")
		return
	}

	e.logDecision(symbol, entry, last, atr, oldStop, stop, reason)
	d := journal.Decision{
		Time: now, Symbol: symbol, Entry: entry, Last: last, ATR: atr,
		OldStop: oldStop, NewStop: stop, Reason: reason, ClientID: req.ClientOrderID,
	}
	if placed != nil {
		d.OrderID = placed.ID
	}
	e.record(d)
}

func (e *Engine) logDecision(symbol string, entry, last, atr, oldStop, newStop float64, reason string) {
	e.log.Info().
		Str("symbol", symbol).
		Float64("entry", entry).
		Float64("last", last).
		Float64("atr", atr).
		Float64("old_stop", oldStop).
		Float64("new_stop", newStop).
		Str("reason", reason).
		Msg("protect")
}

func (e *Engine) record(d journal.Decision) {
	if err := e.journal.RecordDecision(d); err != nil {
		e.log.Warn().Err(err).Str("symbol", d.Symbol).Msg("journal write failed")
	}
}

func (e *Engine) price(symbol string, now time.Time) (float64, bool) {
	if v, ok := e.prices.get(symbol, now); ok {
		return v, true
	}
	v, err := e.provider.GetPrice(symbol)
	if err != nil || v <= 0 {
		if err != nil {
			e.log.Warn().Err(err).Str("symbol", symbol).Msg("price fetch failed")
		}
		return 0, false
	}
	e.prices.put(symbol, v, now)
	return v, true
}

func (e *Engine) atr(symbol string, now time.Time) (float64, bool) {
	if v, ok := e.atrs.get(symbol, now); ok {
		return v, v > 0
	}
	v, err := e.provider.GetATR(symbol)
	if err != nil {
		if !errors.Is(err, market.ErrNoData) {
			e.log.Warn().Err(err).Str("symbol", symbol).Msg("atr fetch failed")
		}
		// Cache the miss too so every cycle does not re-fetch bars for
		// a symbol with no history.
		e.atrs.put(symbol, 0, now)
		return 0, false
	}
	e.atrs.put(symbol, v, now)
	return v, v > 0
}

// bestOpenStop returns the highest open protective sell stop for the
// symbol. Duplicates can exist briefly after a partial failure; the
// highest stop is the effective protection.
func bestOpenStop(orders []models.Order, symbol string) (*models.Order, float64) {
	var best *models.Order
	bestStop := 0.0
	for i := range orders {
		o := &orders[i]
		if !strings.EqualFold(o.Symbol, symbol) || !strings.EqualFold(o.Side, "sell") {
			continue
		}
		if o.Type != "stop" && o.Type != "stop_limit" {
			continue
		}
		stop := o.StopPrice.InexactFloat64()
		if stop > bestStop {
			bestStop = stop
			best = o
		}
	}
	return best, bestStop
}

// clientOrderID builds an idempotency token embedding the symbol and
// the stop in tenths of a cent, so the same computed raise within the
// same instant maps to the same token.
func clientOrderID(symbol string, stop float64, now time.Time) string {
	return fmt.Sprintf("PROTECT.%s.%d.%06d", symbol, int64(stop*10000), now.UnixMilli()%1_000_000)
}
