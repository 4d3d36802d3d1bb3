package engine

import (
	"math"
	"testing"
)

func closedTrade(profit float64, entryTs, exitTs int64, dir Direction) *Trade {
	return &Trade{
		Direction:   dir,
		EntryTime:   entryTs,
		ExitTime:    exitTs,
		Profit:      profit,
		ProfitTicks: profit / 12.5,
		ExitReason:  ExitSignal,
	}
}

func TestProfitFactor(t *testing.T) {
	trades := []*Trade{
		closedTrade(100, 0, 1, DirectionLong),
		closedTrade(50, 2, 3, DirectionShort),
		closedTrade(-50, 4, 5, DirectionLong),
	}
	st := ComputeStatistics(trades, 10000)
	if math.Abs(st.ProfitFactor-3.0) > 1e-9 {
		t.Fatalf("profit factor = %f, want 3.0", st.ProfitFactor)
	}
	if st.Winners != 2 || st.Losers != 1 {
		t.Fatalf("winners/losers = %d/%d", st.Winners, st.Losers)
	}
	if math.Abs(st.WinRate-200.0/3.0) > 1e-9 {
		t.Fatalf("win rate = %f", st.WinRate)
	}
}

func TestProfitFactorSentinels(t *testing.T) {
	lossless := []*Trade{closedTrade(100, 0, 1, DirectionLong)}
	if st := ComputeStatistics(lossless, 10000); st.ProfitFactor != ProfitFactorSentinel {
		t.Fatalf("lossless ledger should report the sentinel, got %f", st.ProfitFactor)
	}
	if st := ComputeStatistics(nil, 10000); st.ProfitFactor != 0 {
		t.Fatalf("empty ledger should report 0, got %f", st.ProfitFactor)
	}
	onlyLosses := []*Trade{closedTrade(-100, 0, 1, DirectionLong)}
	if st := ComputeStatistics(onlyLosses, 10000); st.ProfitFactor != 0 {
		t.Fatalf("loss-only ledger should report 0, got %f", st.ProfitFactor)
	}
}

func TestMaxDrawdownAgainstRunningPeak(t *testing.T) {
	trades := []*Trade{
		closedTrade(100, 0, 1, DirectionLong),  // equity 10100, new peak
		closedTrade(-200, 2, 3, DirectionLong), // 9900
		closedTrade(-300, 4, 5, DirectionLong), // 9600, max dd 500
		closedTrade(50, 6, 7, DirectionLong),   // 9650, dd shrinks, max holds
	}
	st := ComputeStatistics(trades, 10000)
	if math.Abs(st.MaxDrawdownCurrency-500) > 1e-9 {
		t.Fatalf("max drawdown currency = %f, want 500", st.MaxDrawdownCurrency)
	}
	want := 500.0 / 10100.0 * 100.0
	if math.Abs(st.MaxDrawdownPct-want) > 1e-9 {
		t.Fatalf("max drawdown pct = %f, want %f", st.MaxDrawdownPct, want)
	}
}

func TestStreaks(t *testing.T) {
	trades := []*Trade{
		closedTrade(10, 0, 10, DirectionLong),
		closedTrade(20, 10, 20, DirectionLong),
		closedTrade(-5, 20, 30, DirectionShort),
		closedTrade(-5, 30, 40, DirectionShort),
		closedTrade(-5, 40, 50, DirectionShort),
		closedTrade(30, 50, 60, DirectionLong),
	}
	st := ComputeStatistics(trades, 10000)
	if st.WinStreak.Length != 2 || math.Abs(st.WinStreak.Profit-30) > 1e-9 {
		t.Fatalf("win streak = %+v", st.WinStreak)
	}
	if st.LossStreak.Length != 3 || math.Abs(st.LossStreak.Profit+15) > 1e-9 {
		t.Fatalf("loss streak = %+v", st.LossStreak)
	}
	if st.LossStreak.StartTs != 20 || st.LossStreak.EndTs != 50 {
		t.Fatalf("loss streak span = %d..%d", st.LossStreak.StartTs, st.LossStreak.EndTs)
	}
	if st.LossStreak.DurationMs() != 30 {
		t.Fatalf("loss streak duration = %d", st.LossStreak.DurationMs())
	}
}

func TestStreakTieBreaksOnMagnitude(t *testing.T) {
	trades := []*Trade{
		closedTrade(10, 0, 1, DirectionLong),
		closedTrade(20, 1, 2, DirectionLong),
		closedTrade(-5, 2, 3, DirectionLong),
		closedTrade(50, 3, 4, DirectionLong),
		closedTrade(5, 4, 5, DirectionLong),
	}
	st := ComputeStatistics(trades, 10000)
	if st.WinStreak.Length != 2 || math.Abs(st.WinStreak.Profit-55) > 1e-9 {
		t.Fatalf("tie should go to the larger cumulative profit, got %+v", st.WinStreak)
	}
}

func TestSharpeRatio(t *testing.T) {
	// Fewer than two trades is defined as zero.
	one := []*Trade{closedTrade(100, 0, 1, DirectionLong)}
	if st := ComputeStatistics(one, 10000); st.SharpeRatio != 0 {
		t.Fatalf("single trade sharpe = %f, want 0", st.SharpeRatio)
	}

	// Identical returns have zero deviation, also defined as zero.
	same := []*Trade{
		closedTrade(100, 0, 1, DirectionLong),
		closedTrade(100, 1, 2, DirectionLong),
	}
	if st := ComputeStatistics(same, 10000); st.SharpeRatio != 0 {
		t.Fatalf("flat return series sharpe = %f, want 0", st.SharpeRatio)
	}

	// Returns 0.01 and 0.03: mean 0.02, sample sd sqrt(2e-4),
	// annualized sharpe = sqrt(2)*sqrt(252).
	trades := []*Trade{
		closedTrade(100, 0, 1, DirectionLong),
		closedTrade(300, 1, 2, DirectionLong),
	}
	st := ComputeStatistics(trades, 10000)
	expected := math.Sqrt(2 * 252)
	if math.Abs(st.SharpeRatio-expected) > 1e-9 {
		t.Fatalf("sharpe = %f, want %f", st.SharpeRatio, expected)
	}
}
