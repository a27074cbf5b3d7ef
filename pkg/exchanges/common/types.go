package common

import "time"

// Side denotes order side.
type Side string

const (
	SideBuy  Side = "BUY"
	SideSell Side = "SELL"
)

// Opposite returns the closing side for s.
func (s Side) Opposite() Side {
	if s == SideBuy {
		return SideSell
	}
	return SideBuy
}

// OrderType denotes basic order types.
type OrderType string

const (
	OrderTypeMarket OrderType = "MARKET"
	OrderTypeLimit  OrderType = "LIMIT"
)

// OrderStatus normalizes exchange status into a small set.
type OrderStatus string

const (
	StatusNew      OrderStatus = "NEW"
	StatusPartial  OrderStatus = "PARTIAL"
	StatusFilled   OrderStatus = "FILLED"
	StatusCanceled OrderStatus = "CANCELED"
	StatusRejected OrderStatus = "REJECTED"
	StatusExpired  OrderStatus = "EXPIRED"
	StatusUnknown  OrderStatus = "UNKNOWN"
)

// Terminal reports whether the status can no longer change.
func (s OrderStatus) Terminal() bool {
	switch s {
	case StatusFilled, StatusCanceled, StatusRejected, StatusExpired:
		return true
	}
	return false
}

// OrderRequest captures an order intent to be sent to an exchange.
type OrderRequest struct {
	Symbol     string
	Side       Side
	Type       OrderType
	Qty        float64
	Price      float64 // required for LIMIT
	ClientID   string  // optional client order id
	ReduceOnly bool
	Leverage   int
}

// OrderResult returns the exchange ack.
type OrderResult struct {
	ExchangeOrderID string
	Status          OrderStatus
	ClientID        string
	FilledQty       float64
	AvgPrice        float64
}

// Position is the exchange-reported net position for one symbol.
// Qty is signed: positive long, negative short.
type Position struct {
	Symbol        string
	Qty           float64
	EntryPrice    float64
	UnrealizedPnL float64
	Leverage      int
}

// MarginSummary is the exchange-reported account margin view.
type MarginSummary struct {
	AccountValue    float64
	TotalMarginUsed float64
}

// OpenOrder is a resting order as reported by the exchange.
type OpenOrder struct {
	OrderID   string
	Symbol    string
	Side      Side
	Qty       float64
	Price     float64
	CreatedAt time.Time
}

// AccountState is one authoritative snapshot of the account.
type AccountState struct {
	Positions  []Position
	Margin     MarginSummary
	OpenOrders []OpenOrder
}

// AssetMeta is per-symbol metadata reported by the exchange, used as a
// secondary price source (mark price) and a sanity check on the catalog.
type AssetMeta struct {
	Symbol      string
	MarkPrice   float64
	MaxLeverage int
}
