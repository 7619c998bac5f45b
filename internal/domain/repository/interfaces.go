package repository

import (
	"context"
	"time"

	"TradeFuse/internal/domain/models"
)

// MarketStream is the streaming half of the exchange boundary. Read yields
// an infinite tick sequence; the stream is restartable via Reconnect.
type MarketStream interface {
	Connect(ctx context.Context) error
	Subscribe(ctx context.Context, symbols []string) error
	Read(ctx context.Context) (<-chan *models.Tick, <-chan error)
	Reconnect(ctx context.Context) error
	Close() error
	IsConnected() bool
}

// Publisher fans ticks and decisions out to the message bus.
type Publisher interface {
	PublishTick(ctx context.Context, t *models.Tick) error
	PublishDecision(ctx context.Context, d *models.Decision) error
	Close() error
}

// Storage persists pipeline artifacts for audit and lookback queries.
type Storage interface {
	StoreTick(ctx context.Context, t *models.Tick) error
	StoreTickBatch(ctx context.Context, ticks []*models.Tick) error
	StoreCandle(ctx context.Context, c models.Candle) error
	StoreDecision(ctx context.Context, d *models.Decision) error
	StoreOrder(ctx context.Context, o *models.Order) error
	Decisions(ctx context.Context, symbol string, limit int) ([]*models.Decision, error)
	Orders(ctx context.Context, symbol string, limit int) ([]*models.Order, error)
	Health(ctx context.Context) error
	Close() error
}

// FeatureStore provides read access to candle history for evaluation.
type FeatureStore interface {
	GetLatestNCandles(ctx context.Context, symbol string, n int, tf Timeframe) ([]models.Candle, error)
	GetCandles(ctx context.Context, symbol string, from, to time.Time, tf Timeframe) ([]models.Candle, error)
}

// Metrics abstracts the Prometheus recorder.
type Metrics interface {
	RecordTick(symbol string)
	RecordLastPrice(symbol string, price float64)
	RecordDecision(symbol string, direction string)
	RecordOrder(status string)
	RecordError(kind string)
	RecordLatency(op string, seconds float64)
	RecordReconnect()
}
