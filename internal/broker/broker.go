// Package broker defines the brokerage capability surface the assistant
// consumes and the records it exchanges.
package broker

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"

	"voice-trading-assistant-go/internal/intent"
)

// ErrNotFound is returned when the brokerage does not know the referenced object.
var ErrNotFound = errors.New("not found")

// Order is an order as reported by the brokerage.
type Order struct {
	ID            string           `json:"id"`
	ClientOrderID string           `json:"client_order_id,omitempty"`
	Symbol        string           `json:"symbol"`
	Qty           decimal.Decimal  `json:"qty"`
	Side          string           `json:"side"`
	Type          string           `json:"type"`
	TimeInForce   string           `json:"time_in_force,omitempty"`
	LimitPrice    *decimal.Decimal `json:"limit_price,omitempty"`
	StopPrice     *decimal.Decimal `json:"stop_price,omitempty"`
	Status        string           `json:"status"`
	CreatedAt     time.Time        `json:"created_at"`

	// Simulated marks records synthesized locally instead of accepted by a live brokerage.
	Simulated bool   `json:"simulated,omitempty"`
	Error     string `json:"error,omitempty"`
}

// Position is an open holding.
type Position struct {
	Symbol              string          `json:"symbol"`
	Qty                 decimal.Decimal `json:"qty"`
	AvgEntryPrice       decimal.Decimal `json:"avg_entry_price"`
	CurrentPrice        decimal.Decimal `json:"current_price"`
	MarketValue         decimal.Decimal `json:"market_value"`
	UnrealizedPL        decimal.Decimal `json:"unrealized_pl"`
	UnrealizedPLPercent decimal.Decimal `json:"unrealized_plpc"`
	Side                string          `json:"side"`
}

// Account holds the balances relevant to order validation.
type Account struct {
	BuyingPower    decimal.Decimal `json:"buying_power"`
	Cash           decimal.Decimal `json:"cash"`
	PortfolioValue decimal.Decimal `json:"portfolio_value"`
	Status         string          `json:"status"`
	Simulated      bool            `json:"simulated,omitempty"`
}

// Gateway is the brokerage. Read operations prefer empty results over errors;
// write operations may fail.
type Gateway interface {
	CreateOrder(ctx context.Context, in intent.TradeIntent) (*Order, error)
	GetOpenOrders(ctx context.Context) ([]Order, error)
	// GetAllOrders returns at most limit orders, most recent first.
	GetAllOrders(ctx context.Context, limit int) ([]Order, error)
	CancelOrder(ctx context.Context, orderID string) error
	CancelOrdersBySymbol(ctx context.Context, symbol string) ([]Order, error)
	GetPositions(ctx context.Context) ([]Position, error)
	// GetPosition returns nil and no error when there is no position.
	GetPosition(ctx context.Context, symbol string) (*Position, error)
	GetAccount(ctx context.Context) (*Account, error)
}
