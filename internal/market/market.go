package market

import (
	"errors"

	"alpha_protect/internal/models"
)

// ErrInsufficientQty is returned by PlaceOrder when the broker rejects
// the order because the position's shares are already held by another
// order, typically the stop leg of a bracket.
var ErrInsufficientQty = errors.New("insufficient quantity available")

// ErrNoData is returned when the provider has no usable market data for
// a symbol (too few bars, unknown ticker, empty feed).
var ErrNoData = errors.New("no market data")

// MarketProvider defines the behavior the engine needs from a brokerage.
// Any struct that implements these methods satisfies the interface, which
// lets tests substitute a scripted fake for the live Alpaca client.
type MarketProvider interface {
	GetPrice(symbol string) (float64, error)
	GetATR(symbol string) (float64, error)
	GetBars(symbol string, limit int) ([]models.Bar, error)
	GetClock() (*models.Clock, error)
	GetAccount() (*models.Account, error)
	ListPositions() ([]models.Position, error)
	ListOpenOrders() ([]models.Order, error)
	ListFilledBuyOrders(day string) ([]models.Order, error)
	PlaceOrder(req models.OrderRequest) (*models.Order, error)
	CancelOrder(orderID string) error
}
