package data

import (
	"go.uber.org/zap"

	"momentum-backtest/services/engine"
)

// wildJumpFactor flags a close-to-close move bigger than this ratio.
const wildJumpFactor = 1.5

// Quality summarizes a bar series inspection. Findings are advisory: the
// series is handed to the engine unchanged.
type Quality struct {
	Bars       int
	CadenceMs  int64
	Gaps       int
	Misaligned int
	BadOrder   int
	WildJumps  int
	Inverted   int // bars where low > high or OHLC outside [low, high]
}

// Inspect detects the series cadence and counts gaps, misaligned timestamps
// and suspicious prices. Input must already be sorted by timestamp.
func Inspect(bars []engine.Bar) Quality {
	q := Quality{Bars: len(bars)}
	if len(bars) < 2 {
		return q
	}
	q.CadenceMs = detectCadence(bars)

	for i := range bars {
		b := bars[i]
		if q.CadenceMs > 0 && b.Timestamp%q.CadenceMs != 0 {
			q.Misaligned++
		}
		if b.Low > b.High ||
			b.Open < b.Low || b.Open > b.High ||
			b.Close < b.Low || b.Close > b.High {
			q.Inverted++
		}
		if i == 0 {
			continue
		}
		prev := bars[i-1]
		if b.Timestamp <= prev.Timestamp {
			q.BadOrder++
		}
		if q.CadenceMs > 0 && b.Timestamp-prev.Timestamp > q.CadenceMs {
			q.Gaps++
		}
		if prev.Close > 0 {
			ratio := b.Close / prev.Close
			if ratio > wildJumpFactor || ratio < 1/wildJumpFactor {
				q.WildJumps++
			}
		}
	}
	return q
}

// detectCadence picks the most common delta between consecutive bars,
// sampling at most the first 2000 intervals.
func detectCadence(bars []engine.Bar) int64 {
	limit := len(bars)
	if limit > 2000 {
		limit = 2000
	}
	counts := make(map[int64]int)
	for i := 1; i < limit; i++ {
		d := bars[i].Timestamp - bars[i-1].Timestamp
		if d > 0 && d < int64(60*60*1000) {
			counts[d]++
		}
	}
	var best int64
	bestCount := 0
	for d, c := range counts {
		if c > bestCount || (c == bestCount && d < best) {
			best = d
			bestCount = c
		}
	}
	return best
}

// Clean reports whether the inspection found nothing worth flagging.
func (q Quality) Clean() bool {
	return q.Gaps == 0 && q.Misaligned == 0 && q.BadOrder == 0 &&
		q.WildJumps == 0 && q.Inverted == 0
}

// Log emits one warning per finding category.
func (q Quality) Log(log *zap.Logger) {
	if log == nil || q.Clean() {
		return
	}
	if q.Gaps > 0 {
		log.Warn("gaps in bar series", zap.Int("gaps", q.Gaps), zap.Int64("cadence_ms", q.CadenceMs))
	}
	if q.Misaligned > 0 {
		log.Warn("timestamps misaligned to cadence", zap.Int("bars", q.Misaligned))
	}
	if q.BadOrder > 0 {
		log.Warn("non-increasing timestamps", zap.Int("bars", q.BadOrder))
	}
	if q.WildJumps > 0 {
		log.Warn("wild close-to-close jumps", zap.Int("bars", q.WildJumps), zap.Float64("factor", wildJumpFactor))
	}
	if q.Inverted > 0 {
		log.Warn("bars with inconsistent ohlc bounds", zap.Int("bars", q.Inverted))
	}
}
