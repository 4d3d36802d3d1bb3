package engine

import "time"

// Bar represents a single OHLCV bar. Bars are input-only: the engine never
// mutates them, it only reads the current and previous bar during an update.
type Bar struct {
	Timestamp int64 // unix milliseconds
	Open      float64
	High      float64
	Low       float64
	Close     float64
	Volume    float64
}

// Typical is the typical price (HLC/3) used for money-flow weighting.
func (b Bar) Typical() float64 {
	return (b.High + b.Low + b.Close) / 3.0
}

// Range is the bar's high-low span.
func (b Bar) Range() float64 {
	return b.High - b.Low
}

// Time returns the bar's open time in UTC.
func (b Bar) Time() time.Time {
	return time.UnixMilli(b.Timestamp).UTC()
}
