package service

import (
	"context"
	"time"

	"TradeFuse/internal/domain/models"
	"TradeFuse/internal/domain/repository"

	"github.com/shopspring/decimal"
)

// Predictor is one loaded model of the ensemble. Kind is "classify" or
// "regress"; Predict must normalize its native output to Signal strength
// in [-1, 1].
type Predictor interface {
	Name() string
	Kind() string
	Predict(ctx context.Context, fv *models.FeatureVector) (models.Signal, error)
}

// Advisor issues a bounded-context reasoning query to a language model and
// parses a structured qualitative verdict. Implementations must degrade to
// a neutral signal instead of failing the cycle.
type Advisor interface {
	Advise(ctx context.Context, symbol string, recent []models.Candle) models.Signal
}

// OrderRequest is the exchange-facing order payload.
type OrderRequest struct {
	Symbol         string
	Side           models.Side
	Quantity       decimal.Decimal
	Price          decimal.Decimal // zero means market
	IdempotencyKey string
}

// OrderAck is the exchange acknowledgment of a placed order.
type OrderAck struct {
	ExchangeID string
	Status     models.OrderStatus
}

// Balance is one asset balance on the exchange account.
type Balance struct {
	Asset string
	Free  decimal.Decimal
	Total decimal.Decimal
}

// Exchange is the REST half of the exchange boundary: the consumed
// capability {placeOrder, cancelOrder, getBalances, getCandles}.
type Exchange interface {
	PlaceOrder(ctx context.Context, req OrderRequest) (OrderAck, error)
	CancelOrder(ctx context.Context, symbol, exchangeID string) error
	GetBalances(ctx context.Context) ([]Balance, error)
	GetCandles(ctx context.Context, symbol string, tf repository.Timeframe, from, to time.Time) ([]models.Candle, error)
	GetFills(ctx context.Context, symbol, exchangeID string) ([]models.Fill, error)
}

// EventKind classifies operator notifications.
type EventKind string

const (
	EventDecision    EventKind = "decision"
	EventOrder       EventKind = "order"
	EventExecFailed  EventKind = "execution_failed"
	EventFeedTrouble EventKind = "feed_trouble"
	EventShock       EventKind = "market_shock"
	EventLifecycle   EventKind = "lifecycle"
)

// Event is an outbound operator message. Delivery is fire-and-forget.
type Event struct {
	Kind     EventKind
	Symbol   string
	Title    string
	Body     string
	Priority string // "low", "normal", "high", "critical"
}

// Notifier delivers events to the operator channel.
type Notifier interface {
	Notify(ctx context.Context, ev Event)
}
