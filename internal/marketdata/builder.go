package marketdata

import (
	"context"
	"sync"
	"time"

	"TradeFuse/internal/domain/models"
	drepo "TradeFuse/internal/domain/repository"
)

const dedupeWindow = 4096

// Builder folds deduplicated ticks into fixed-interval candles and keeps a
// bounded in-memory history per symbol. Candle sequences are append-only;
// missed buckets are flagged on the next emitted candle, never interpolated.
type Builder struct {
	tf       drepo.Timeframe
	capacity int

	mu      sync.RWMutex
	current map[string]*models.Candle
	history map[string][]models.Candle
	seen    map[string]struct{}
	seenFWD []string
	seenIdx int
}

// NewBuilder creates a candle builder for one timeframe. capacity bounds the
// per-symbol history length.
func NewBuilder(tf drepo.Timeframe, capacity int) *Builder {
	if capacity <= 0 {
		capacity = 512
	}
	return &Builder{
		tf:       tf,
		capacity: capacity,
		current:  make(map[string]*models.Candle),
		history:  make(map[string][]models.Candle),
		seen:     make(map[string]struct{}, dedupeWindow),
		seenFWD:  make([]string, dedupeWindow),
	}
}

// Apply folds one tick. It returns the completed candle when the tick opens
// a new bucket, nil otherwise. Duplicate ticks are dropped.
func (b *Builder) Apply(t *models.Tick) *models.Candle {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.isDuplicate(t) {
		return nil
	}

	bucket := t.Time().Truncate(b.tf.Duration())
	cur, ok := b.current[t.Symbol]

	if !ok {
		c := &models.Candle{Symbol: t.Symbol, Timeframe: string(b.tf), Bucket: bucket}
		c.Apply(t)
		b.current[t.Symbol] = c
		return nil
	}

	if bucket.Equal(cur.Bucket) {
		cur.Apply(t)
		return nil
	}

	if bucket.Before(cur.Bucket) {
		// late tick for an already-closed bucket: drop, sequences stay ordered
		return nil
	}

	completed := *cur
	b.append(completed)

	next := &models.Candle{Symbol: t.Symbol, Timeframe: string(b.tf), Bucket: bucket}
	// buckets were skipped between the closed candle and this one
	next.Gap = bucket.Sub(cur.Bucket) > b.tf.Duration()
	next.Apply(t)
	b.current[t.Symbol] = next

	return &completed
}

// Backfill inserts candles recovered over REST after a feed outage. Candles
// at or before the latest known bucket are ignored; the first inserted
// candle keeps its Gap flag so downstream smoothing state resets.
func (b *Builder) Backfill(symbol string, candles []models.Candle) {
	b.mu.Lock()
	defer b.mu.Unlock()

	hist := b.history[symbol]
	var last time.Time
	if n := len(hist); n > 0 {
		last = hist[n-1].Bucket
	}

	for _, c := range candles {
		if !c.Bucket.After(last) {
			continue
		}
		b.append(c)
		last = c.Bucket
	}
}

func (b *Builder) isDuplicate(t *models.Tick) bool {
	key := t.Key()
	if _, dup := b.seen[key]; dup {
		return true
	}
	// bounded window: evict the oldest entry once full
	if old := b.seenFWD[b.seenIdx]; old != "" {
		delete(b.seen, old)
	}
	b.seen[key] = struct{}{}
	b.seenFWD[b.seenIdx] = key
	b.seenIdx = (b.seenIdx + 1) % dedupeWindow
	return false
}

func (b *Builder) append(c models.Candle) {
	hist := append(b.history[c.Symbol], c)
	if len(hist) > b.capacity {
		hist = hist[len(hist)-b.capacity:]
	}
	b.history[c.Symbol] = hist
}

// GetLatestNCandles returns the most recent n closed candles, oldest first.
func (b *Builder) GetLatestNCandles(_ context.Context, symbol string, n int, tf drepo.Timeframe) ([]models.Candle, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if tf != b.tf {
		return nil, nil
	}
	hist := b.history[symbol]
	if len(hist) > n {
		hist = hist[len(hist)-n:]
	}
	out := make([]models.Candle, len(hist))
	copy(out, hist)
	return out, nil
}

// GetCandles returns closed candles in [from, to), oldest first.
func (b *Builder) GetCandles(_ context.Context, symbol string, from, to time.Time, tf drepo.Timeframe) ([]models.Candle, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if tf != b.tf {
		return nil, nil
	}
	var out []models.Candle
	for _, c := range b.history[symbol] {
		if c.Bucket.Before(from) || !c.Bucket.Before(to) {
			continue
		}
		out = append(out, c)
	}
	return out, nil
}

// LastPrice returns the close of the open bucket for symbol, or the last
// closed candle when no bucket is open.
func (b *Builder) LastPrice(symbol string) (float64, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if cur, ok := b.current[symbol]; ok {
		return cur.Close, true
	}
	if hist := b.history[symbol]; len(hist) > 0 {
		return hist[len(hist)-1].Close, true
	}
	return 0, false
}

var _ drepo.FeatureStore = (*Builder)(nil)
