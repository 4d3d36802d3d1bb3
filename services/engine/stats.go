package engine

import "math"

// ProfitFactorSentinel stands in for an undefined profit factor when the
// ledger holds profit but no losses.
const ProfitFactorSentinel = 9999.0

const annualizationFactor = 252

// Streak describes the longest run of same-outcome trades: its length, the
// cumulative profit (negative for loss streaks) and the wall-clock span from
// the first trade's entry to the last trade's exit.
type Streak struct {
	Length  int
	Profit  float64
	StartTs int64
	EndTs   int64
}

// DurationMs is the streak's wall-clock duration in milliseconds.
func (s Streak) DurationMs() int64 {
	if s.Length == 0 {
		return 0
	}
	return s.EndTs - s.StartTs
}

// beats reports whether s outranks other: longer wins, ties go to the larger
// cumulative magnitude.
func (s Streak) beats(other Streak) bool {
	if s.Length != other.Length {
		return s.Length > other.Length
	}
	return math.Abs(s.Profit) > math.Abs(other.Profit)
}

// Statistics is a snapshot over the closed-trade ledger. It is recomputed in
// full on every refresh rather than patched incrementally, so that any
// historical amendment stays correct.
type Statistics struct {
	TotalTrades         int
	LongTrades          int
	ShortTrades         int
	Winners             int
	Losers              int
	ProfitTicks         float64
	ProfitCurrency      float64
	WinRate             float64 // percent
	ProfitFactor        float64
	MaxDrawdownPct      float64
	MaxDrawdownCurrency float64
	Returns             []float64 // per-trade profit over initial capital
	SharpeRatio         float64
	WinStreak           Streak
	LossStreak          Streak
}

// ComputeStatistics folds the ledger, in chronological order, into a fresh
// snapshot.
func ComputeStatistics(trades []*Trade, initialCapital float64) Statistics {
	var st Statistics
	st.Returns = make([]float64, 0, len(trades))

	var grossProfit, grossLoss float64
	equity := initialCapital
	peak := initialCapital

	var curWin, curLoss Streak

	for _, t := range trades {
		st.TotalTrades++
		if t.Direction == DirectionLong {
			st.LongTrades++
		} else {
			st.ShortTrades++
		}
		st.ProfitTicks += t.ProfitTicks
		st.ProfitCurrency += t.Profit
		if initialCapital > 0 {
			st.Returns = append(st.Returns, t.Profit/initialCapital)
		}

		if t.Win() {
			st.Winners++
			grossProfit += t.Profit
			// A win closes out any running loss streak.
			if curLoss.beats(st.LossStreak) {
				st.LossStreak = curLoss
			}
			curLoss = Streak{}
			if curWin.Length == 0 {
				curWin.StartTs = t.EntryTime
			}
			curWin.Length++
			curWin.Profit += t.Profit
			curWin.EndTs = t.ExitTime
		} else {
			st.Losers++
			grossLoss += math.Abs(t.Profit)
			if curWin.beats(st.WinStreak) {
				st.WinStreak = curWin
			}
			curWin = Streak{}
			if curLoss.Length == 0 {
				curLoss.StartTs = t.EntryTime
			}
			curLoss.Length++
			curLoss.Profit += t.Profit
			curLoss.EndTs = t.ExitTime
		}

		equity += t.Profit
		if equity > peak {
			peak = equity
		}
		if peak > 0 {
			ddPct := (peak - equity) / peak * 100
			if ddPct > st.MaxDrawdownPct {
				st.MaxDrawdownPct = ddPct
				st.MaxDrawdownCurrency = peak - equity
			}
		}
	}

	// Finalize whichever streak is still open at the end of the ledger.
	if curWin.beats(st.WinStreak) {
		st.WinStreak = curWin
	}
	if curLoss.beats(st.LossStreak) {
		st.LossStreak = curLoss
	}

	if st.TotalTrades > 0 {
		st.WinRate = float64(st.Winners) / float64(st.TotalTrades) * 100
	}

	switch {
	case grossLoss > 0:
		st.ProfitFactor = grossProfit / grossLoss
	case grossProfit > 0:
		st.ProfitFactor = ProfitFactorSentinel
	default:
		st.ProfitFactor = 0
	}

	st.SharpeRatio = sharpe(st.Returns)
	return st
}

// sharpe annualizes the mean per-trade return over its sample standard
// deviation. Fewer than two trades, or a flat return series, yields zero.
func sharpe(returns []float64) float64 {
	n := len(returns)
	if n < 2 {
		return 0
	}
	var mean float64
	for _, r := range returns {
		mean += r
	}
	mean /= float64(n)

	var variance float64
	for _, r := range returns {
		d := r - mean
		variance += d * d
	}
	variance /= float64(n - 1)

	sd := math.Sqrt(variance)
	if sd == 0 {
		return 0
	}
	return mean / sd * math.Sqrt(annualizationFactor)
}
