package models

import "github.com/shopspring/decimal"

// Position is the net holding per symbol. It is mutated only by confirmed
// fills, under single-writer discipline per symbol.
type Position struct {
	Symbol      string          `json:"symbol"`
	Quantity    decimal.Decimal `json:"quantity"` // negative is short
	AvgEntry    decimal.Decimal `json:"avg_entry"`
	RealizedPnL decimal.Decimal `json:"realized_pnl"`
}

// ApplyFill folds a confirmed fill into the position.
func (p *Position) ApplyFill(f Fill) {
	qty := f.Quantity
	if f.Side == Sell {
		qty = qty.Neg()
	}
	switch {
	case p.Quantity.IsZero():
		p.Quantity = qty
		p.AvgEntry = f.Price
	case p.Quantity.Sign() == qty.Sign():
		// increasing exposure, recompute weighted average entry
		total := p.AvgEntry.Mul(p.Quantity.Abs()).Add(f.Price.Mul(qty.Abs()))
		p.Quantity = p.Quantity.Add(qty)
		p.AvgEntry = total.Div(p.Quantity.Abs())
	default:
		// reducing or flipping: realize pnl on the closed slice
		closed := decimal.Min(p.Quantity.Abs(), qty.Abs())
		diff := f.Price.Sub(p.AvgEntry)
		if p.Quantity.Sign() < 0 {
			diff = diff.Neg()
		}
		p.RealizedPnL = p.RealizedPnL.Add(diff.Mul(closed))
		p.Quantity = p.Quantity.Add(qty)
		if p.Quantity.IsZero() {
			p.AvgEntry = decimal.Zero
		} else if p.Quantity.Sign() == qty.Sign() {
			// flipped through zero, the remainder opens at the fill price
			p.AvgEntry = f.Price
		}
	}
}

// Notional returns the absolute exposure at the given mark price.
func (p *Position) Notional(mark decimal.Decimal) decimal.Decimal {
	return p.Quantity.Abs().Mul(mark)
}

// UnrealizedPnL returns the open profit at the given mark price.
func (p *Position) UnrealizedPnL(mark decimal.Decimal) decimal.Decimal {
	if p.Quantity.IsZero() {
		return decimal.Zero
	}
	diff := mark.Sub(p.AvgEntry)
	if p.Quantity.Sign() < 0 {
		diff = diff.Neg()
	}
	return diff.Mul(p.Quantity.Abs())
}

// Direction returns the direction of the open position.
func (p *Position) Direction() Direction {
	switch p.Quantity.Sign() {
	case 1:
		return Long
	case -1:
		return Short
	}
	return Flat
}
