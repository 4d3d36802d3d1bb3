package engine

import "testing"

func TestTrackerSegmentsAndConfirmation(t *testing.T) {
	tr := NewTrendTracker()

	if flipped := tr.Observe(0, RegimeNeutral, RegimeNeutral); flipped {
		t.Fatal("neutral bar must not start a segment")
	}
	if !tr.Observe(1, RegimeBullish, RegimeNeutral) {
		t.Fatal("expected flip into bullish")
	}
	if tr.SegmentID != 1 || tr.LastBullBar != 1 || tr.BullConfirm != 0 {
		t.Fatalf("unexpected state after flip: %+v", tr)
	}

	tr.Observe(2, RegimeBullish, RegimeBullish)
	tr.Observe(3, RegimeBullish, RegimeBullish)
	if tr.BullConfirm != 2 {
		t.Fatalf("expected 2 confirmation bars, got %d", tr.BullConfirm)
	}
	if !tr.PendingLong(2) {
		t.Fatal("signal should be confirmed at wait=2")
	}

	// Signed flip increments the segment and clears the open-flag.
	tr.TradeOpened = true
	if !tr.Observe(4, RegimeBearish, RegimeBullish) {
		t.Fatal("expected flip into bearish")
	}
	if tr.SegmentID != 2 || tr.TradeOpened {
		t.Fatalf("flip must open a new segment: %+v", tr)
	}
	if tr.LastBullBar != -1 || tr.PendingLong(0) {
		t.Fatal("bullish signal must be cleared by the opposite flip")
	}
}

func TestTrackerInvalidatesBrokenSignal(t *testing.T) {
	tr := NewTrendTracker()
	tr.Observe(0, RegimeBullish, RegimeNeutral)
	tr.Observe(1, RegimeBullish, RegimeBullish)
	// Regime breaks before the wait threshold is met.
	tr.Observe(2, RegimeBearish, RegimeBullish)
	// The flip path handles signed breaks; a break to neutral is the
	// invalidation path.
	tr2 := NewTrendTracker()
	tr2.Observe(0, RegimeBullish, RegimeNeutral)
	tr2.Observe(1, RegimeNeutral, RegimeBullish)
	if tr2.LastBullBar != -1 || tr2.BullConfirm != 0 {
		t.Fatalf("broken signal should be invalidated: %+v", tr2)
	}
}
