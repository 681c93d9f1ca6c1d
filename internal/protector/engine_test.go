package protector

import (
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"alpha_protect/internal/market"
	"alpha_protect/internal/models"
	"alpha_protect/internal/policy"
)

// fakeBroker scripts the provider surface. Placed stops are appended to
// the open order book so the next cycle sees them, like the real broker.
type fakeBroker struct {
	positions     []models.Position
	orders        []models.Order
	prices        map[string]float64
	atrs          map[string]float64
	placed        []models.OrderRequest
	canceled      []string
	placeErr      error
	cancelErr     error
	positionCalls int
	nextID        int
}

var _ market.MarketProvider = (*fakeBroker)(nil)

func (f *fakeBroker) GetPrice(symbol string) (float64, error) {
	if v, ok := f.prices[symbol]; ok {
		return v, nil
	}
	return 0, market.ErrNoData
}

func (f *fakeBroker) GetATR(symbol string) (float64, error) {
	if v, ok := f.atrs[symbol]; ok {
		return v, nil
	}
	return 0, market.ErrNoData
}

func (f *fakeBroker) GetBars(symbol string, limit int) ([]models.Bar, error) {
	return nil, market.ErrNoData
}

func (f *fakeBroker) GetClock() (*models.Clock, error) {
	return &models.Clock{IsOpen: true}, nil
}

func (f *fakeBroker) GetAccount() (*models.Account, error) {
	return &models.Account{Equity: decimal.NewFromInt(100000)}, nil
}

func (f *fakeBroker) ListPositions() ([]models.Position, error) {
	f.positionCalls++
	return f.positions, nil
}

func (f *fakeBroker) ListOpenOrders() ([]models.Order, error) {
	return append([]models.Order(nil), f.orders...), nil
}

func (f *fakeBroker) ListFilledBuyOrders(day string) ([]models.Order, error) {
	return nil, nil
}

func (f *fakeBroker) PlaceOrder(req models.OrderRequest) (*models.Order, error) {
	f.placed = append(f.placed, req)
	if f.placeErr != nil {
		return nil, f.placeErr
	}
	f.nextID++
	o := models.Order{
		ID:            fmt.Sprintf("ord-%d", f.nextID),
		ClientOrderID: req.ClientOrderID,
		Symbol:        req.Symbol,
		Qty:           req.Qty,
		Type:          req.Type,
		Side:          req.Side,
		Status:        "new",
		StopPrice:     req.StopPrice,
		LimitPrice:    req.LimitPrice,
	}
	f.orders = append(f.orders, o)
	return &o, nil
}

func (f *fakeBroker) CancelOrder(orderID string) error {
	if f.cancelErr != nil {
		return f.cancelErr
	}
	f.canceled = append(f.canceled, orderID)
	kept := f.orders[:0]
	for _, o := range f.orders {
		if o.ID != orderID {
			kept = append(kept, o)
		}
	}
	f.orders = kept
	return nil
}

func longPosition(symbol string, qty, entry float64) models.Position {
	return models.Position{
		Symbol:        symbol,
		Qty:           decimal.NewFromFloat(qty),
		AvgEntryPrice: decimal.NewFromFloat(entry),
		Side:          "long",
		AssetClass:    models.AssetEquity,
	}
}

type testClock struct{ now time.Time }

func (c *testClock) Now() time.Time          { return c.now }
func (c *testClock) advance(d time.Duration) { c.now = c.now.Add(d) }

func newTestEngine(f *fakeBroker, params policy.Params, opts Options, clock *testClock) *Engine {
	opts.Now = clock.Now
	if opts.TimeInForce == "" {
		opts.TimeInForce = "gtc"
	}
	return New(f, params, opts, nil, zerolog.Nop())
}

func TestProtectRaisesStopAndRatchets(t *testing.T) {
	f := &fakeBroker{
		positions: []models.Position{longPosition("AAPL", 10, 100)},
		prices:    map[string]float64{"AAPL": 105},
		atrs:      map[string]float64{"AAPL": 2},
	}
	clock := &testClock{now: time.Date(2026, 8, 28, 15, 0, 0, 0, time.UTC)}
	e := newTestEngine(f, policy.Defaults(), Options{SafeguardsEnabled: true}, clock)

	// Trail at 105 - 2*2 = 101 becomes the first stop.
	e.Protect()
	require.Len(t, f.placed, 1)
	assert.Equal(t, "sell", f.placed[0].Side)
	assert.Equal(t, "stop", f.placed[0].Type)
	assert.Equal(t, "gtc", f.placed[0].TimeInForce)
	assert.InDelta(t, 101.0, f.placed[0].StopPrice.InexactFloat64(), 1e-9)

	// Price falls: the trail computes lower, the stop must not move.
	clock.advance(16 * time.Second)
	f.prices["AAPL"] = 104
	e.Protect()
	assert.Len(t, f.placed, 1)
	assert.Empty(t, f.canceled)

	// Price pushes on far enough to clear the 1% improvement gate:
	// trail 107 - 4 = 103 beats 101 + 1.01. The old stop is canceled
	// and a higher one submitted.
	clock.advance(16 * time.Second)
	f.prices["AAPL"] = 107
	e.Protect()
	require.Len(t, f.placed, 2)
	assert.Equal(t, []string{"ord-1"}, f.canceled)
	assert.InDelta(t, 103.0, f.placed[1].StopPrice.InexactFloat64(), 1e-9)
}

func TestProtectSkipsTinyImprovement(t *testing.T) {
	f := &fakeBroker{
		positions: []models.Position{longPosition("AAPL", 10, 100)},
		orders: []models.Order{{
			ID: "o1", Symbol: "AAPL", Side: "sell", Type: "stop",
			StopPrice: decimal.NewFromFloat(100.95),
		}},
		prices: map[string]float64{"AAPL": 105},
		atrs:   map[string]float64{"AAPL": 2},
	}
	clock := &testClock{now: time.Now()}
	e := newTestEngine(f, policy.Defaults(), Options{SafeguardsEnabled: true}, clock)

	// Candidate 101 beats 100.95 by only 0.05, below the 1.01 gate
	// (1% of the current stop).
	e.Protect()
	assert.Empty(t, f.placed)
	assert.Empty(t, f.canceled)
}

func TestProtectCancelFailureLeavesOldStop(t *testing.T) {
	f := &fakeBroker{
		positions: []models.Position{longPosition("AAPL", 10, 100)},
		orders: []models.Order{{
			ID: "o1", Symbol: "AAPL", Side: "sell", Type: "stop",
			StopPrice: decimal.NewFromFloat(95),
		}},
		prices:    map[string]float64{"AAPL": 105},
		atrs:      map[string]float64{"AAPL": 2},
		cancelErr: fmt.Errorf("api timeout"),
	}
	clock := &testClock{now: time.Now()}
	e := newTestEngine(f, policy.Defaults(), Options{SafeguardsEnabled: true}, clock)

	e.Protect()
	assert.Empty(t, f.placed, "no submit after a failed cancel")
}

func TestProtectInsufficientQtySuppresses(t *testing.T) {
	f := &fakeBroker{
		positions: []models.Position{longPosition("AAPL", 10, 100)},
		prices:    map[string]float64{"AAPL": 105},
		atrs:      map[string]float64{"AAPL": 2},
		placeErr:  market.ErrInsufficientQty,
	}
	clock := &testClock{now: time.Date(2026, 8, 28, 15, 0, 0, 0, time.UTC)}
	e := newTestEngine(f, policy.Defaults(), Options{SafeguardsEnabled: true}, clock)

	e.Protect()
	require.Len(t, f.placed, 1)

	// Within the window the symbol stays quiet even though the
	// rejection is gone.
	f.placeErr = nil
	clock.advance(time.Minute)
	e.Protect()
	assert.Len(t, f.placed, 1)

	// After the window it tries again.
	clock.advance(31 * time.Minute)
	e.Protect()
	assert.Len(t, f.placed, 2)
}

func TestProtectDryRunTouchesNothing(t *testing.T) {
	f := &fakeBroker{
		positions: []models.Position{longPosition("AAPL", 10, 100)},
		orders: []models.Order{{
			ID: "o1", Symbol: "AAPL", Side: "sell", Type: "stop",
			StopPrice: decimal.NewFromFloat(95),
		}},
		prices: map[string]float64{"AAPL": 105},
		atrs:   map[string]float64{"AAPL": 2},
	}
	clock := &testClock{now: time.Now()}
	e := newTestEngine(f, policy.Defaults(), Options{SafeguardsEnabled: true, DryRun: true}, clock)

	e.Protect()
	assert.Empty(t, f.placed)
	assert.Empty(t, f.canceled)
}

func TestProtectSafeguardsGate(t *testing.T) {
	f := &fakeBroker{
		positions: []models.Position{longPosition("AAPL", 10, 100)},
		prices:    map[string]float64{"AAPL": 105},
		atrs:      map[string]float64{"AAPL": 2},
	}
	clock := &testClock{now: time.Now()}

	// Disabled: the broker is never even queried.
	e := newTestEngine(f, policy.Defaults(), Options{SafeguardsEnabled: false}, clock)
	e.Protect()
	assert.Zero(t, f.positionCalls)

	// Enabled but past the TTL: same.
	e = newTestEngine(f, policy.Defaults(), Options{
		SafeguardsEnabled: true,
		TTLDays:           1,
		StartedAt:         clock.now.Add(-48 * time.Hour),
	}, clock)
	e.Protect()
	assert.Zero(t, f.positionCalls)
}

func TestProtectSkipsNonProtectablePositions(t *testing.T) {
	crypto := longPosition("BTCUSD", 1, 40000)
	crypto.AssetClass = models.AssetCrypto
	short := longPosition("GME", 10, 100)
	short.Side = "short"
	f := &fakeBroker{
		positions: []models.Position{
			crypto,
			short,
			longPosition("NOPRICE", 10, 100),
		},
		prices: map[string]float64{},
		atrs:   map[string]float64{},
	}
	clock := &testClock{now: time.Now()}
	e := newTestEngine(f, policy.Defaults(), Options{SafeguardsEnabled: true}, clock)

	e.Protect()
	assert.Empty(t, f.placed)
}

func TestProtectStopLimitEscalation(t *testing.T) {
	f := &fakeBroker{
		positions: []models.Position{longPosition("AAPL", 10, 100)},
		prices:    map[string]float64{"AAPL": 105},
		atrs:      map[string]float64{"AAPL": 2},
	}
	params := policy.Defaults()
	params.StopLimitBufferPercent = 0.005
	clock := &testClock{now: time.Now()}
	e := newTestEngine(f, params, Options{SafeguardsEnabled: true}, clock)

	e.Protect()
	require.Len(t, f.placed, 1)
	assert.Equal(t, "stop_limit", f.placed[0].Type)
	stop := f.placed[0].StopPrice.InexactFloat64()
	limit := f.placed[0].LimitPrice.InexactFloat64()
	assert.Less(t, limit, stop)
	assert.InDelta(t, stop*(1-0.005), limit, 0.011)
}

func TestClientOrderIDShape(t *testing.T) {
	f := &fakeBroker{
		positions: []models.Position{longPosition("AAPL", 10, 100)},
		prices:    map[string]float64{"AAPL": 105},
		atrs:      map[string]float64{"AAPL": 2},
	}
	clock := &testClock{now: time.Now()}
	e := newTestEngine(f, policy.Defaults(), Options{SafeguardsEnabled: true}, clock)

	e.Protect()
	require.Len(t, f.placed, 1)
	parts := strings.Split(f.placed[0].ClientOrderID, ".")
	require.Len(t, parts, 4)
	assert.Equal(t, "PROTECT", parts[0])
	assert.Equal(t, "AAPL", parts[1])
	assert.Equal(t, "1010000", parts[2]) // 101.0 in tenths of a cent
}

func TestPriceCacheRespectsTTL(t *testing.T) {
	c := newTTLCache(15 * time.Second)
	now := time.Now()
	c.put("AAPL", 105, now)

	v, ok := c.get("AAPL", now.Add(10*time.Second))
	assert.True(t, ok)
	assert.Equal(t, 105.0, v)

	_, ok = c.get("AAPL", now.Add(16*time.Second))
	assert.False(t, ok)
	_, ok = c.get("MSFT", now)
	assert.False(t, ok)
}
