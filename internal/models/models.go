package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Asset classes as reported by the broker. Protection only runs for
// plain US equities; crypto and option legs are left alone.
const (
	AssetEquity   = "us_equity"
	AssetCrypto   = "crypto"
	AssetUSOption = "us_option"
)

// Position represents an open position held at the broker.
type Position struct {
	Symbol        string          `json:"symbol"`
	Qty           decimal.Decimal `json:"qty"`
	AvgEntryPrice decimal.Decimal `json:"avg_entry_price"`
	CurrentPrice  decimal.Decimal `json:"current_price"`
	MarketValue   decimal.Decimal `json:"market_value"`
	Side          string          `json:"side"` // long, short
	AssetClass    string          `json:"asset_class"`
}

// Order represents a generic order found in any broker.
type Order struct {
	ID             string          `json:"id"`
	ClientOrderID  string          `json:"client_order_id"`
	Symbol         string          `json:"symbol"`
	Qty            decimal.Decimal `json:"qty"`
	FilledQty      decimal.Decimal `json:"filled_qty"`
	Type           string          `json:"type"`   // market, limit, stop, stop_limit
	Side           string          `json:"side"`   // buy, sell
	Status         string          `json:"status"` // new, filled, canceled, expired, rejected
	StopPrice      decimal.Decimal `json:"stop_price"`
	LimitPrice     decimal.Decimal `json:"limit_price"`
	FilledAvgPrice decimal.Decimal `json:"filled_avg_price"`
	CreatedAt      time.Time       `json:"created_at"`
	FilledAt       *time.Time      `json:"filled_at,omitempty"`
}

// OrderRequest describes an order to be submitted to the broker.
// StopPrice and LimitPrice are only read for stop / stop_limit types.
type OrderRequest struct {
	Symbol        string
	Side          string // buy, sell
	Qty           decimal.Decimal
	Type          string // market, limit, stop, stop_limit
	TimeInForce   string // day, gtc
	ClientOrderID string
	StopPrice     decimal.Decimal
	LimitPrice    decimal.Decimal
}

// Account represents the generic account state.
type Account struct {
	ID          string
	Currency    string
	Equity      decimal.Decimal
	BuyingPower decimal.Decimal
	Cash        decimal.Decimal
}

// Clock represents the market status.
type Clock struct {
	Timestamp time.Time
	IsOpen    bool
	NextOpen  time.Time
	NextClose time.Time
}

// Bar represents a daily candlestick.
type Bar struct {
	Time   time.Time
	Open   float64
	High   float64
	Low    float64
	Close  float64
	Volume int64
}

// Candidate is a symbol under consideration for a new entry, priced
// and measured by whatever produced it (scanner, replay file, test).
type Candidate struct {
	Symbol string
	Price  float64
	ATR    float64
}

// TradePlan is a sized, risk-checked order plan for one candidate.
type TradePlan struct {
	Symbol      string
	Qty         float64
	Price       float64
	Notional    float64
	StopLoss    float64
	TakeProfit  float64
	RRRatio     float64
	TimeInForce string
	UseBracket  bool
}
