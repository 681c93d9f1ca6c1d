package alpaca

import (
	"fmt"
	"strings"
	"time"

	"alpha_protect/internal/indicators"
	"alpha_protect/internal/market"
	"alpha_protect/internal/models"

	"github.com/alpacahq/alpaca-trade-api-go/v3/alpaca"
	"github.com/alpacahq/alpaca-trade-api-go/v3/marketdata"
	"github.com/shopspring/decimal"
)

// Provider implements the generic MarketProvider interface for Alpaca.
type Provider struct {
	mdClient    *marketdata.Client
	tradeClient *alpaca.Client
	atrPeriod   int
}

// Ensure Provider implements the interface
var _ market.MarketProvider = (*Provider)(nil)

// NewProvider returns a new Alpaca provider. The clients read their
// API keys and base URL from the environment.
func NewProvider() *Provider {
	return &Provider{
		mdClient:    marketdata.NewClient(marketdata.ClientOpts{}),
		tradeClient: alpaca.NewClient(alpaca.ClientOpts{}),
		atrPeriod:   indicators.DefaultATRPeriod,
	}
}

// --- Market Data ---

func (p *Provider) GetPrice(symbol string) (float64, error) {
	trade, err := p.mdClient.GetLatestTrade(symbol, marketdata.GetLatestTradeRequest{})
	if err != nil {
		return 0, err
	}
	if trade == nil || trade.Price <= 0 {
		return 0, fmt.Errorf("%s: %w", symbol, market.ErrNoData)
	}
	return trade.Price, nil
}

func (p *Provider) GetBars(symbol string, limit int) ([]models.Bar, error) {
	// Calendar days, not trading days; ask wide and trim.
	start := time.Now().AddDate(0, 0, -(limit*2 + 10))
	bars, err := p.mdClient.GetBars(symbol, marketdata.GetBarsRequest{
		TimeFrame: marketdata.OneDay,
		Start:     start,
	})
	if err != nil {
		return nil, err
	}
	if len(bars) > limit {
		bars = bars[len(bars)-limit:]
	}
	var result []models.Bar
	for _, b := range bars {
		result = append(result, models.Bar{
			Time:   b.Timestamp,
			Open:   b.Open,
			High:   b.High,
			Low:    b.Low,
			Close:  b.Close,
			Volume: int64(b.Volume),
		})
	}
	return result, nil
}

// GetATR returns the daily ATR for the symbol, or ErrNoData when the
// bar history is too short to compute one.
func (p *Provider) GetATR(symbol string) (float64, error) {
	bars, err := p.GetBars(symbol, p.atrPeriod+1)
	if err != nil {
		return 0, err
	}
	atr, ok := indicators.ATR(bars, p.atrPeriod)
	if !ok {
		return 0, fmt.Errorf("%s: atr needs %d bars, have %d: %w",
			symbol, p.atrPeriod+1, len(bars), market.ErrNoData)
	}
	return atr, nil
}

func (p *Provider) GetClock() (*models.Clock, error) {
	c, err := p.tradeClient.GetClock()
	if err != nil {
		return nil, err
	}
	return &models.Clock{
		Timestamp: c.Timestamp,
		IsOpen:    c.IsOpen,
		NextOpen:  c.NextOpen,
		NextClose: c.NextClose,
	}, nil
}

func (p *Provider) GetAccount() (*models.Account, error) {
	a, err := p.tradeClient.GetAccount()
	if err != nil {
		return nil, err
	}
	return &models.Account{
		ID:          a.ID,
		Currency:    a.Currency,
		Equity:      a.Equity,
		BuyingPower: a.BuyingPower,
		Cash:        a.Cash,
	}, nil
}

func (p *Provider) ListPositions() ([]models.Position, error) {
	alpacaPositions, err := p.tradeClient.GetPositions()
	if err != nil {
		return nil, err
	}
	var result []models.Position
	for _, x := range alpacaPositions {
		// The SDK models optional fields as decimal pointers.
		current := decimal.Zero
		if x.CurrentPrice != nil {
			current = *x.CurrentPrice
		}
		marketValue := decimal.Zero
		if x.MarketValue != nil {
			marketValue = *x.MarketValue
		}
		result = append(result, models.Position{
			Symbol:        x.Symbol,
			Qty:           x.Qty,
			AvgEntryPrice: x.AvgEntryPrice,
			CurrentPrice:  current,
			MarketValue:   marketValue,
			Side:          string(x.Side),
			AssetClass:    string(x.AssetClass),
		})
	}
	return result, nil
}

// --- Orders ---

func (p *Provider) ListOpenOrders() ([]models.Order, error) {
	// Flat listing so bracket legs show up as individual orders.
	orders, err := p.tradeClient.GetOrders(alpaca.GetOrdersRequest{
		Status: "open",
		Limit:  500,
	})
	if err != nil {
		return nil, err
	}
	var result []models.Order
	for i := range orders {
		result = append(result, *mapOrder(&orders[i]))
	}
	return result, nil
}

// ListFilledBuyOrders returns the buy orders filled on the given
// trading day (YYYY-MM-DD, exchange calendar). The daily risk counters
// are rebuilt from this list so a restart cannot forget spend.
func (p *Provider) ListFilledBuyOrders(day string) ([]models.Order, error) {
	loc, err := time.LoadLocation("America/New_York")
	if err != nil {
		return nil, err
	}
	midnight, err := time.ParseInLocation("2006-01-02", day, loc)
	if err != nil {
		return nil, fmt.Errorf("bad trading day %q: %w", day, err)
	}
	orders, err := p.tradeClient.GetOrders(alpaca.GetOrdersRequest{
		Status: "all",
		Limit:  500,
		After:  midnight,
	})
	if err != nil {
		return nil, err
	}
	var result []models.Order
	for i := range orders {
		o := &orders[i]
		if !strings.EqualFold(string(o.Side), "buy") {
			continue
		}
		if !strings.EqualFold(string(o.Status), "filled") {
			continue
		}
		result = append(result, *mapOrder(o))
	}
	return result, nil
}

func (p *Provider) PlaceOrder(req models.OrderRequest) (*models.Order, error) {
	qty := req.Qty
	por := alpaca.PlaceOrderRequest{
		Symbol:        req.Symbol,
		Qty:           &qty,
		Side:          alpaca.Side(req.Side),
		Type:          alpaca.OrderType(req.Type),
		TimeInForce:   alpaca.TimeInForce(req.TimeInForce),
		ClientOrderID: req.ClientOrderID,
	}
	if !req.StopPrice.IsZero() {
		sp := req.StopPrice
		por.StopPrice = &sp
	}
	if !req.LimitPrice.IsZero() {
		lp := req.LimitPrice
		por.LimitPrice = &lp
	}
	o, err := p.tradeClient.PlaceOrder(por)
	if err != nil {
		return nil, classifyOrderError(err)
	}
	return mapOrder(o), nil
}

func (p *Provider) CancelOrder(orderID string) error {
	return p.tradeClient.CancelOrder(orderID)
}

// --- Helpers ---

// classifyOrderError maps Alpaca's held-shares rejection onto the typed
// error the engine branches on. Everything else passes through.
func classifyOrderError(err error) error {
	if err == nil {
		return nil
	}
	msg := strings.ToLower(err.Error())
	if strings.Contains(msg, "insufficient qty") ||
		strings.Contains(msg, "insufficient quantity") ||
		strings.Contains(msg, "held_for_orders") {
		return fmt.Errorf("%w: %s", market.ErrInsufficientQty, err.Error())
	}
	return err
}

func mapOrder(o *alpaca.Order) *models.Order {
	if o == nil {
		return nil
	}
	var qty decimal.Decimal
	if o.Qty != nil {
		qty = *o.Qty
	}
	var stopPrice decimal.Decimal
	if o.StopPrice != nil {
		stopPrice = *o.StopPrice
	}
	var limitPrice decimal.Decimal
	if o.LimitPrice != nil {
		limitPrice = *o.LimitPrice
	}
	var filledAvgPrice decimal.Decimal
	if o.FilledAvgPrice != nil {
		filledAvgPrice = *o.FilledAvgPrice
	}
	res := &models.Order{
		ID:             o.ID,
		ClientOrderID:  o.ClientOrderID,
		Symbol:         o.Symbol,
		Qty:            qty,
		FilledQty:      o.FilledQty,
		Type:           string(o.Type),
		Side:           string(o.Side),
		Status:         string(o.Status),
		StopPrice:      stopPrice,
		LimitPrice:     limitPrice,
		FilledAvgPrice: filledAvgPrice,
		CreatedAt:      o.CreatedAt,
	}
	if o.FilledAt != nil {
		res.FilledAt = o.FilledAt
	}
	return res
}
