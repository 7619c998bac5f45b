package models

import "time"

// Candle is an OHLCV aggregate over a fixed interval. Sequences of candles
// per symbol+timeframe are append-only and ordered by Bucket.
type Candle struct {
	Symbol    string
	Timeframe string
	Bucket    time.Time // interval start, truncated to the timeframe
	Open      float64
	High      float64
	Low       float64
	Close     float64
	Volume    float64
	// Gap marks that one or more buckets before this candle are missing.
	// Gaps are flagged, never interpolated.
	Gap bool
}

// Apply folds a tick into the candle.
func (c *Candle) Apply(t *Tick) {
	if c.Volume == 0 && c.Open == 0 {
		c.Open = t.Last
		c.High = t.Last
		c.Low = t.Last
	}
	if t.Last > c.High {
		c.High = t.Last
	}
	if t.Last < c.Low || c.Low == 0 {
		c.Low = t.Last
	}
	c.Close = t.Last
	c.Volume += t.Volume
}

// FeatureVector is a named set of numeric features derived from candle
// history. It is ephemeral and recomputed per evaluation cycle.
type FeatureVector struct {
	Symbol    string
	Timestamp time.Time
	Features  map[string]float64
}

// Get returns a feature value, defaulting to zero when absent.
func (fv *FeatureVector) Get(name string) float64 {
	return fv.Features[name]
}

// Lookup returns a feature value and whether it is present, so a genuine
// zero reading is distinguishable from a missing feature.
func (fv *FeatureVector) Lookup(name string) (float64, bool) {
	v, ok := fv.Features[name]
	return v, ok
}
