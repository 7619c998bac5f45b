package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// OrderStatus is the lifecycle state of an order. Transitions are monotonic:
// once a terminal status is reached the order never leaves it.
type OrderStatus string

const (
	OrderPending         OrderStatus = "pending"
	OrderOpen            OrderStatus = "open"
	OrderFilled          OrderStatus = "filled"
	OrderPartiallyFilled OrderStatus = "partially_filled"
	OrderCancelled       OrderStatus = "cancelled"
	OrderRejected        OrderStatus = "rejected"
)

// Terminal reports whether the status ends the order lifecycle.
func (s OrderStatus) Terminal() bool {
	switch s {
	case OrderFilled, OrderCancelled, OrderRejected:
		return true
	}
	return false
}

// CanTransition reports whether next is a legal successor of s.
func (s OrderStatus) CanTransition(next OrderStatus) bool {
	if s == next {
		return false
	}
	if s.Terminal() {
		return false
	}
	switch s {
	case OrderPending:
		return next == OrderOpen || next == OrderRejected || next == OrderCancelled
	case OrderOpen:
		return next == OrderFilled || next == OrderPartiallyFilled ||
			next == OrderCancelled || next == OrderRejected
	case OrderPartiallyFilled:
		return next == OrderFilled || next == OrderCancelled
	}
	return false
}

// Side is the order side.
type Side string

const (
	Buy  Side = "buy"
	Sell Side = "sell"
)

// SideFor maps a trade direction to the order side opening it.
func SideFor(d Direction) Side {
	if d == Short {
		return Sell
	}
	return Buy
}

// Order tracks one exchange order. IdempotencyKey is client-generated and
// reused across submission retries so the exchange never creates duplicates.
type Order struct {
	IdempotencyKey string          `json:"idempotency_key"`
	ExchangeID     string          `json:"exchange_id,omitempty"`
	Symbol         string          `json:"symbol"`
	Side           Side            `json:"side"`
	Quantity       decimal.Decimal `json:"quantity"`
	Price          decimal.Decimal `json:"price"` // zero means market
	Status         OrderStatus     `json:"status"`
	FilledQty      decimal.Decimal `json:"filled_qty"`
	CreatedAt      time.Time       `json:"created_at"`
	UpdatedAt      time.Time       `json:"updated_at"`
}

// Fill is an execution report for part (or all) of an order. FillID is the
// exchange-assigned id used to de-duplicate redelivered fills.
type Fill struct {
	FillID     string          `json:"fill_id"`
	ExchangeID string          `json:"exchange_id"`
	Symbol     string          `json:"symbol"`
	Side       Side            `json:"side"`
	Quantity   decimal.Decimal `json:"quantity"`
	Price      decimal.Decimal `json:"price"`
	Timestamp  time.Time       `json:"timestamp"`
}
