package models

import (
	"fmt"
	"time"
)

// Tick is a single normalized market data point. Immutable once emitted.
type Tick struct {
	Symbol    string
	Timestamp int64 // unix milliseconds
	Bid       float64
	Ask       float64
	Last      float64
	Volume    float64
}

// Key identifies a tick for de-duplication: two ticks with the same
// timestamp, price and volume are considered the same exchange event.
func (t *Tick) Key() string {
	return fmt.Sprintf("%s|%d|%.8f|%.8f", t.Symbol, t.Timestamp, t.Last, t.Volume)
}

// Time converts the millisecond timestamp to time.Time.
func (t *Tick) Time() time.Time {
	return time.UnixMilli(t.Timestamp).UTC()
}
