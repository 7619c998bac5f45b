package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"TradeFuse/internal/domain/models"
	domrepo "TradeFuse/internal/domain/repository"
	pkgch "TradeFuse/pkg/clickhouse"

	"github.com/shopspring/decimal"
)

func decimalFromFloat(v float64) decimal.Decimal {
	return decimal.NewFromFloat(v)
}

// Schema statements for the pipeline tables. Applied idempotently on boot.
var Schema = []string{
	`CREATE TABLE IF NOT EXISTS ticks (
        ts DateTime64(3),
        symbol LowCardinality(String),
        bid Float64,
        ask Float64,
        last Float64,
        volume Float64
    ) ENGINE = MergeTree()
    PARTITION BY toYYYYMMDD(ts)
    ORDER BY (symbol, ts)`,
	`CREATE TABLE IF NOT EXISTS candles (
        bucket DateTime,
        symbol LowCardinality(String),
        timeframe LowCardinality(String),
        open Float64,
        high Float64,
        low Float64,
        close Float64,
        volume Float64,
        gap UInt8
    ) ENGINE = ReplacingMergeTree()
    PARTITION BY toYYYYMMDD(bucket)
    ORDER BY (symbol, timeframe, bucket)`,
	`CREATE TABLE IF NOT EXISTS decisions (
        ts DateTime64(3),
        cycle_id String,
        symbol LowCardinality(String),
        direction LowCardinality(String),
        confidence Float64,
        anchor_price Float64,
        signals String
    ) ENGINE = MergeTree()
    PARTITION BY toYYYYMMDD(ts)
    ORDER BY (symbol, ts)`,
	`CREATE TABLE IF NOT EXISTS orders (
        updated_at DateTime64(3),
        idempotency_key String,
        exchange_id String,
        symbol LowCardinality(String),
        side LowCardinality(String),
        quantity Float64,
        price Float64,
        status LowCardinality(String),
        filled_qty Float64,
        created_at DateTime64(3)
    ) ENGINE = ReplacingMergeTree(updated_at)
    ORDER BY (symbol, idempotency_key)`,
}

// ClickHouseStorage implements Storage over ClickHouse.
type ClickHouseStorage struct {
	db *sql.DB
}

// NewClickHouseStorage creates the storage and applies the schema.
func NewClickHouseStorage(ctx context.Context, ch *pkgch.Client) (*ClickHouseStorage, error) {
	if err := ch.InitSchema(ctx, Schema); err != nil {
		return nil, err
	}
	return &ClickHouseStorage{db: ch.DB()}, nil
}

func (s *ClickHouseStorage) StoreTick(ctx context.Context, t *models.Tick) error {
	const q = `INSERT INTO ticks (ts, symbol, bid, ask, last, volume) VALUES (?, ?, ?, ?, ?, ?)`
	_, err := s.db.ExecContext(ctx, q, t.Time(), t.Symbol, t.Bid, t.Ask, t.Last, t.Volume)
	if err != nil {
		return fmt.Errorf("store tick: %w", err)
	}
	return nil
}

func (s *ClickHouseStorage) StoreTickBatch(ctx context.Context, ticks []*models.Tick) error {
	if len(ticks) == 0 {
		return nil
	}

	const chunkSize = 2000
	for start := 0; start < len(ticks); start += chunkSize {
		end := start + chunkSize
		if end > len(ticks) {
			end = len(ticks)
		}

		values := make([]string, 0, end-start)
		args := make([]interface{}, 0, (end-start)*6)
		for _, t := range ticks[start:end] {
			if t == nil || t.Symbol == "" {
				continue
			}
			values = append(values, "(?, ?, ?, ?, ?, ?)")
			args = append(args, t.Time(), t.Symbol, t.Bid, t.Ask, t.Last, t.Volume)
		}
		if len(values) == 0 {
			continue
		}

		q := fmt.Sprintf("INSERT INTO ticks (ts, symbol, bid, ask, last, volume) VALUES %s",
			strings.Join(values, ","))
		if _, err := s.db.ExecContext(ctx, q, args...); err != nil {
			return fmt.Errorf("store tick batch: %w", err)
		}
	}
	return nil
}

func (s *ClickHouseStorage) StoreCandle(ctx context.Context, c models.Candle) error {
	const q = `INSERT INTO candles (bucket, symbol, timeframe, open, high, low, close, volume, gap)
        VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`
	gap := uint8(0)
	if c.Gap {
		gap = 1
	}
	_, err := s.db.ExecContext(ctx, q,
		c.Bucket, c.Symbol, c.Timeframe, c.Open, c.High, c.Low, c.Close, c.Volume, gap)
	if err != nil {
		return fmt.Errorf("store candle: %w", err)
	}
	return nil
}

func (s *ClickHouseStorage) StoreDecision(ctx context.Context, d *models.Decision) error {
	signals, err := json.Marshal(d.Signals)
	if err != nil {
		return fmt.Errorf("marshal signals: %w", err)
	}

	const q = `INSERT INTO decisions (ts, cycle_id, symbol, direction, confidence, anchor_price, signals)
        VALUES (?, ?, ?, ?, ?, ?, ?)`
	_, err = s.db.ExecContext(ctx, q,
		d.Timestamp, d.CycleID, d.Symbol, string(d.Direction), d.Confidence, d.AnchorPrice, string(signals))
	if err != nil {
		return fmt.Errorf("store decision: %w", err)
	}
	return nil
}

func (s *ClickHouseStorage) StoreOrder(ctx context.Context, o *models.Order) error {
	const q = `INSERT INTO orders (updated_at, idempotency_key, exchange_id, symbol, side, quantity, price, status, filled_qty, created_at)
        VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	_, err := s.db.ExecContext(ctx, q,
		o.UpdatedAt, o.IdempotencyKey, o.ExchangeID, o.Symbol, string(o.Side),
		o.Quantity.InexactFloat64(), o.Price.InexactFloat64(), string(o.Status),
		o.FilledQty.InexactFloat64(), o.CreatedAt)
	if err != nil {
		return fmt.Errorf("store order: %w", err)
	}
	return nil
}

func (s *ClickHouseStorage) Decisions(ctx context.Context, symbol string, limit int) ([]*models.Decision, error) {
	if limit <= 0 {
		limit = 100
	}
	const q = `SELECT ts, cycle_id, symbol, direction, confidence, anchor_price, signals
        FROM decisions WHERE symbol = ? ORDER BY ts DESC LIMIT ?`
	rows, err := s.db.QueryContext(ctx, q, symbol, limit)
	if err != nil {
		return nil, fmt.Errorf("query decisions: %w", err)
	}
	defer rows.Close()

	var out []*models.Decision
	for rows.Next() {
		var d models.Decision
		var direction, signals string
		if err := rows.Scan(&d.Timestamp, &d.CycleID, &d.Symbol, &direction, &d.Confidence, &d.AnchorPrice, &signals); err != nil {
			return nil, fmt.Errorf("scan decision: %w", err)
		}
		d.Direction = models.Direction(direction)
		if err := json.Unmarshal([]byte(signals), &d.Signals); err != nil {
			return nil, fmt.Errorf("unmarshal signals: %w", err)
		}
		out = append(out, &d)
	}
	return out, rows.Err()
}

func (s *ClickHouseStorage) Orders(ctx context.Context, symbol string, limit int) ([]*models.Order, error) {
	if limit <= 0 {
		limit = 100
	}
	const q = `SELECT updated_at, idempotency_key, exchange_id, symbol, side, quantity, price, status, filled_qty, created_at
        FROM orders FINAL WHERE symbol = ? ORDER BY updated_at DESC LIMIT ?`
	rows, err := s.db.QueryContext(ctx, q, symbol, limit)
	if err != nil {
		return nil, fmt.Errorf("query orders: %w", err)
	}
	defer rows.Close()

	var out []*models.Order
	for rows.Next() {
		var o models.Order
		var side, status string
		var qty, price, filled float64
		if err := rows.Scan(&o.UpdatedAt, &o.IdempotencyKey, &o.ExchangeID, &o.Symbol, &side,
			&qty, &price, &status, &filled, &o.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan order: %w", err)
		}
		o.Side = models.Side(side)
		o.Status = models.OrderStatus(status)
		o.Quantity = decimalFromFloat(qty)
		o.Price = decimalFromFloat(price)
		o.FilledQty = decimalFromFloat(filled)
		out = append(out, &o)
	}
	return out, rows.Err()
}

func (s *ClickHouseStorage) Health(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *ClickHouseStorage) Close() error {
	return nil // connection lifecycle owned by pkg/clickhouse
}

// FetchCandles reads closed candles back for warmup after a restart.
func (s *ClickHouseStorage) FetchCandles(ctx context.Context, symbol string, tf domrepo.Timeframe, from, to time.Time) ([]models.Candle, error) {
	const q = `SELECT bucket, symbol, timeframe, open, high, low, close, volume, gap
        FROM candles WHERE symbol = ? AND timeframe = ? AND bucket >= ? AND bucket < ?
        ORDER BY bucket ASC`
	rows, err := s.db.QueryContext(ctx, q, symbol, string(tf), from, to)
	if err != nil {
		return nil, fmt.Errorf("query candles: %w", err)
	}
	defer rows.Close()

	var out []models.Candle
	for rows.Next() {
		var c models.Candle
		var gap uint8
		if err := rows.Scan(&c.Bucket, &c.Symbol, &c.Timeframe, &c.Open, &c.High, &c.Low, &c.Close, &c.Volume, &gap); err != nil {
			return nil, fmt.Errorf("scan candle: %w", err)
		}
		c.Gap = gap == 1
		out = append(out, c)
	}
	return out, rows.Err()
}

var _ domrepo.Storage = (*ClickHouseStorage)(nil)
