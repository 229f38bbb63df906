package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

type OrderSide string

const (
	SideBuy  OrderSide = "BUY"
	SideSell OrderSide = "SELL"
)

type OrderType string

const (
	OrderTypeLimit  OrderType = "LIMIT"
	OrderTypeMarket OrderType = "MARKET"
)

// OrderSpec is what callers hand to the orchestrator. The owning gateway
// assigns the order id.
type OrderSpec struct {
	ClientOrderID string          `json:"clientOrderId"`
	Symbol        string          `json:"symbol"`
	Side          OrderSide       `json:"side"`
	Type          OrderType       `json:"type"`
	Price         decimal.Decimal `json:"price"`
	Quantity      decimal.Decimal `json:"quantity"`
}

// AccountInfo is one gateway's view of the trading account.
type AccountInfo struct {
	Gateway   string          `json:"gateway"`
	Currency  string          `json:"currency"`
	Balance   decimal.Decimal `json:"balance"`
	Available decimal.Decimal `json:"available"`
	Margin    decimal.Decimal `json:"margin"`
	UpdatedAt time.Time       `json:"updatedAt"`
}

// Position is one open position as reported by a gateway.
type Position struct {
	Gateway   string          `json:"gateway"`
	Symbol    string          `json:"symbol"`
	Side      OrderSide       `json:"side"`
	Quantity  decimal.Decimal `json:"quantity"`
	AvgPrice  decimal.Decimal `json:"avgPrice"`
	UpdatedAt time.Time       `json:"updatedAt"`
}
