package engine

import (
	"math"
	"testing"
)

// downUpBars declines for 40 bars, then rises strongly, producing exactly one
// bullish regime flip when the lower threshold is disabled.
func downUpBars() []Bar {
	bars := make([]Bar, 100)
	price := 100.0
	base := int64(1700000000000)
	for i := range bars {
		if i < 40 {
			price *= 0.997
		} else {
			price *= 1.02
		}
		bars[i] = Bar{
			Timestamp: base + int64(i)*60000,
			Open:      price * 0.999,
			High:      price * 1.002,
			Low:       price * 0.998,
			Close:     price,
			Volume:    1500,
		}
	}
	return bars
}

func TestSignalEntryAfterConfirmation(t *testing.T) {
	p := DefaultParams()
	p.LowerThreshold = 0 // no bearish flips in this scenario
	p.WaitBars = 2
	e := New(p, nil)
	r := e.Replay(downUpBars())

	flipBar := -1
	for i, st := range r.States {
		if st.Regime == RegimeBullish {
			flipBar = i
			break
		}
	}
	if flipBar < 0 {
		t.Fatal("no bullish flip in the rising leg")
	}

	if len(r.Trades) != 0 {
		t.Fatalf("nothing should close in this scenario, got %d trades", len(r.Trades))
	}
	if r.Open == nil {
		t.Fatal("expected an open long at the end of the series")
	}
	if r.Open.Direction != DirectionLong {
		t.Fatalf("direction = %v, want Long", r.Open.Direction)
	}
	if r.Open.EntryBar != flipBar+p.WaitBars {
		t.Fatalf("entry bar = %d, want flip %d + wait %d", r.Open.EntryBar, flipBar, p.WaitBars)
	}
	if r.Open.TakeProfit != 0 {
		t.Fatalf("signal policy carries no fixed tp, got %f", r.Open.TakeProfit)
	}
	if r.Open.EntryPrice != downUpBars()[r.Open.EntryBar].Close {
		t.Fatal("entry must fill at the bar close")
	}
	if r.Open.StopLoss >= r.Open.EntryPrice {
		t.Fatalf("long stop %f not below entry %f", r.Open.StopLoss, r.Open.EntryPrice)
	}
	if r.Open.Risk > p.MaxRiskPerTrade {
		t.Fatalf("risk %f exceeds ceiling %f", r.Open.Risk, p.MaxRiskPerTrade)
	}
}

func TestLedgerInvariants(t *testing.T) {
	p := DefaultParams()
	e := New(p, nil)
	r := e.Replay(syntheticBars(600, 100))

	if len(r.Trades) == 0 {
		t.Fatal("cyclical series produced no trades")
	}

	segments := make(map[int]bool)
	prevExit := -1
	for k, tr := range r.Trades {
		if tr.Active() {
			t.Fatalf("trade %d in the ledger is still active", k)
		}
		if tr.ExitBar <= tr.EntryBar {
			t.Fatalf("trade %d exits on or before its entry bar (%d <= %d)",
				k, tr.ExitBar, tr.EntryBar)
		}
		// Trades never overlap, and no entry shares a bar with a close.
		if tr.EntryBar <= prevExit {
			t.Fatalf("trade %d entered at bar %d, previous exit at %d",
				k, tr.EntryBar, prevExit)
		}
		prevExit = tr.ExitBar
		if segments[tr.SegmentID] {
			t.Fatalf("segment %d opened more than one trade", tr.SegmentID)
		}
		segments[tr.SegmentID] = true
	}
	if r.Open != nil {
		if r.Open.EntryBar <= prevExit {
			t.Fatal("open trade overlaps the last closed trade")
		}
		if segments[r.Open.SegmentID] {
			t.Fatalf("segment %d opened more than one trade", r.Open.SegmentID)
		}
	}
	if r.Stats.TotalTrades != len(r.Trades) {
		t.Fatalf("stats count %d != ledger %d", r.Stats.TotalTrades, len(r.Trades))
	}
}

func TestReplayIsDeterministic(t *testing.T) {
	bars := syntheticBars(600, 100)
	p := DefaultParams()
	r1 := New(p, nil).Replay(bars)
	r2 := New(p, nil).Replay(bars)

	if len(r1.Trades) != len(r2.Trades) {
		t.Fatalf("trade counts differ: %d vs %d", len(r1.Trades), len(r2.Trades))
	}
	for k := range r1.Trades {
		if *r1.Trades[k] != *r2.Trades[k] {
			t.Fatalf("trade %d differs:\n%+v\n%+v", k, *r1.Trades[k], *r2.Trades[k])
		}
	}
	if r1.Stats.ProfitCurrency != r2.Stats.ProfitCurrency ||
		r1.Stats.SharpeRatio != r2.Stats.SharpeRatio ||
		r1.Stats.MaxDrawdownPct != r2.Stats.MaxDrawdownPct {
		t.Fatal("statistics differ between identical replays")
	}
}

func TestSetParamsReplaysFromScratch(t *testing.T) {
	bars := syntheticBars(600, 100)
	e := New(DefaultParams(), nil)
	first := e.Replay(bars)

	p := DefaultParams()
	p.Policy = PolicyRiskReward
	second := e.SetParams(p)
	if second.Bars != len(bars) {
		t.Fatalf("replay covered %d bars, want %d", second.Bars, len(bars))
	}
	for _, tr := range second.Trades {
		if tr.ExitReason == ExitSignal {
			t.Fatal("risk-reward replay still carries signal exits")
		}
	}

	// Switching back must reproduce the original run exactly.
	third := e.SetParams(DefaultParams())
	if len(third.Trades) != len(first.Trades) {
		t.Fatalf("trade counts differ after round trip: %d vs %d",
			len(third.Trades), len(first.Trades))
	}
	for k := range third.Trades {
		if *third.Trades[k] != *first.Trades[k] {
			t.Fatalf("trade %d differs after parameter round trip", k)
		}
	}
}

func TestStopLossExitFillsAtStopPrice(t *testing.T) {
	p := DefaultParams()
	e := New(p, nil)
	e.current = &Trade{
		EntryBar:   5,
		EntryPrice: 100,
		Direction:  DirectionLong,
		StopLoss:   96,
	}

	// No exits on the entry bar, even when the stop is inside the range.
	if closed := e.checkPriceExit(Bar{Open: 98, High: 99, Low: 95, Close: 96}, 5); closed != nil {
		t.Fatal("exit fired on the entry bar")
	}

	bar := Bar{Timestamp: 42, Open: 99, High: 99.5, Low: 96, Close: 97}
	closed := e.checkPriceExit(bar, 6)
	if closed == nil {
		t.Fatal("stop touch not detected")
	}
	if closed.ExitReason != ExitStopLoss || closed.ExitPrice != 96 {
		t.Fatalf("exit = %s at %f, want %s at 96", closed.ExitReason, closed.ExitPrice, ExitStopLoss)
	}
	// (96-100)/0.25 * 12.5 - 4 commission.
	if math.Abs(closed.Profit+204) > 1e-9 {
		t.Fatalf("profit = %f, want -204", closed.Profit)
	}
	if e.current != nil || len(e.ledger) != 1 || e.stats.TotalTrades != 1 {
		t.Fatal("ledger not updated after the close")
	}
}

func TestTakeProfitExitFillsAtTargetPrice(t *testing.T) {
	p := DefaultParams()
	p.Policy = PolicyRiskReward
	e := New(p, nil)
	e.current = &Trade{
		EntryBar:   5,
		EntryPrice: 100,
		Direction:  DirectionShort,
		StopLoss:   104,
		TakeProfit: 92,
	}
	closed := e.checkPriceExit(Bar{Timestamp: 43, Open: 95, High: 96, Low: 91, Close: 93}, 7)
	if closed == nil || closed.ExitReason != ExitTakeProfit || closed.ExitPrice != 92 {
		t.Fatalf("got %+v, want take-profit fill at 92", closed)
	}
	// (100-92)/0.25 * 12.5 - 4 commission, short.
	if math.Abs(closed.Profit-396) > 1e-9 {
		t.Fatalf("profit = %f, want 396", closed.Profit)
	}
}

func TestMaxHoldForcesExitAndCancelsReentry(t *testing.T) {
	p := DefaultParams()
	p.MaxHoldBars = 3
	e := New(p, nil)
	e.current = &Trade{EntryBar: 10, EntryPrice: 100, Direction: DirectionLong, StopLoss: 90}
	e.reentry = &pendingReentry{Bar: 13, Direction: DirectionShort}

	if closed := e.checkMaxHold(Bar{Close: 101}, 12); closed != nil {
		t.Fatal("forced exit fired before the hold limit")
	}
	closed := e.checkMaxHold(Bar{Timestamp: 99, Close: 101}, 13)
	if closed == nil || closed.ExitReason != ExitMaxBars || closed.ExitPrice != 101 {
		t.Fatalf("got %+v, want forced exit at the close", closed)
	}
	if e.reentry != nil {
		t.Fatal("forced exit must cancel the pending fast re-entry")
	}
}

func TestFastReentrySkipsConfirmationWait(t *testing.T) {
	p := DefaultParams()
	e := New(p, nil)
	e.scheduleReentry(10, DirectionShort, 0)

	bar := Bar{Timestamp: 44, Open: 100, High: 101, Low: 99, Close: 100}
	st := IndicatorState{Regime: RegimeBearish, ATR: 2}
	opened := e.tryEntry(bar, st, 11)
	if opened == nil || opened.Direction != DirectionShort {
		t.Fatalf("got %+v, want an immediate short", opened)
	}
	if e.reentry != nil {
		t.Fatal("re-entry not consumed")
	}

	// A re-entry whose bar has passed expires without opening anything.
	e.current = nil
	e.tracker.TradeOpened = true
	e.scheduleReentry(20, DirectionLong, 0)
	if opened := e.tryEntry(bar, IndicatorState{Regime: RegimeBullish, ATR: 2}, 25); opened != nil {
		t.Fatal("expired re-entry still opened a trade")
	}
	if e.reentry != nil {
		t.Fatal("expired re-entry not cleared")
	}

	// A regime disagreement at the re-entry bar discards it.
	e.scheduleReentry(30, DirectionLong, 0)
	if opened := e.tryEntry(bar, IndicatorState{Regime: RegimeBearish, ATR: 2}, 31); opened != nil {
		t.Fatal("re-entry opened against the regime")
	}
	if e.reentry != nil {
		t.Fatal("mismatched re-entry not cleared")
	}
}

func TestBarFaultIsRecoveredAndReplayContinues(t *testing.T) {
	bars := syntheticBars(10, 100)
	e := New(DefaultParams(), nil)

	for i := 0; i < 5; i++ {
		if _, err := e.ProcessBar(bars[i]); err != nil {
			t.Fatalf("bar %d: %v", i, err)
		}
	}

	// Desync the state series so the next update indexes out of range.
	e.calc.states = e.calc.states[:3]

	u, err := e.ProcessBar(bars[5])
	if err == nil {
		t.Fatal("expected an error from the faulted bar")
	}
	if u.BarIndex != 5 {
		t.Fatalf("update bar index = %d, want 5", u.BarIndex)
	}
	if got := e.Snapshot().Skipped; got != 1 {
		t.Fatalf("skipped = %d, want 1", got)
	}
	// Series stays aligned with the bar count, padded stale for the bad bar.
	if e.calc.Len() != 6 {
		t.Fatalf("state series length = %d, want 6", e.calc.Len())
	}
	if e.calc.At(5) != e.calc.At(2) {
		t.Fatal("faulted slot not padded from the last good state")
	}

	var skips int
	for _, ev := range e.Events() {
		if ev.Type == EventBarSkipped {
			skips++
		}
	}
	if skips != 1 {
		t.Fatalf("skip events = %d, want 1", skips)
	}

	for i := 6; i < len(bars); i++ {
		if _, err := e.ProcessBar(bars[i]); err != nil {
			t.Fatalf("bar %d after recovery: %v", i, err)
		}
	}
	res := e.Snapshot()
	if res.Bars != len(bars) || len(res.States) != len(bars) {
		t.Fatalf("bars=%d states=%d, want %d each", res.Bars, len(res.States), len(bars))
	}
	if res.Skipped != 1 {
		t.Fatalf("final skipped = %d, want 1", res.Skipped)
	}
}
