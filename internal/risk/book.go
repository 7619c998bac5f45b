package risk

import (
	"sync"

	"TradeFuse/internal/domain/models"

	"github.com/shopspring/decimal"
)

// Book holds the per-symbol positions. Writes go through ApplyFill only;
// fills arrive pre-deduplicated from the execution engine.
type Book struct {
	mu        sync.RWMutex
	positions map[string]*models.Position
}

// NewBook creates an empty position book.
func NewBook() *Book {
	return &Book{positions: make(map[string]*models.Position)}
}

// ApplyFill folds a confirmed fill into the symbol's position.
func (b *Book) ApplyFill(f models.Fill) {
	b.mu.Lock()
	defer b.mu.Unlock()

	p, ok := b.positions[f.Symbol]
	if !ok {
		p = &models.Position{Symbol: f.Symbol}
		b.positions[f.Symbol] = p
	}
	p.ApplyFill(f)
}

// Position returns a copy of the symbol's position.
func (b *Book) Position(symbol string) models.Position {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if p, ok := b.positions[symbol]; ok {
		return *p
	}
	return models.Position{Symbol: symbol}
}

// Positions returns copies of all non-flat positions.
func (b *Book) Positions() []models.Position {
	b.mu.RLock()
	defer b.mu.RUnlock()

	out := make([]models.Position, 0, len(b.positions))
	for _, p := range b.positions {
		if !p.Quantity.IsZero() {
			out = append(out, *p)
		}
	}
	return out
}

// TotalPnL sums realized and unrealized profit across all symbols at the
// given mark prices. Symbols without a mark contribute realized only.
func (b *Book) TotalPnL(marks map[string]decimal.Decimal) decimal.Decimal {
	b.mu.RLock()
	defer b.mu.RUnlock()

	total := decimal.Zero
	for sym, p := range b.positions {
		total = total.Add(p.RealizedPnL)
		if mark, ok := marks[sym]; ok && !mark.IsZero() {
			total = total.Add(p.UnrealizedPnL(mark))
		}
	}
	return total
}

// TotalNotional sums absolute exposure across all symbols at the given
// mark prices. Symbols without a mark fall back to their average entry.
func (b *Book) TotalNotional(marks map[string]decimal.Decimal) decimal.Decimal {
	b.mu.RLock()
	defer b.mu.RUnlock()

	total := decimal.Zero
	for sym, p := range b.positions {
		mark, ok := marks[sym]
		if !ok || mark.IsZero() {
			mark = p.AvgEntry
		}
		total = total.Add(p.Notional(mark))
	}
	return total
}
