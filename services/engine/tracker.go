package engine

// TrendTracker follows regime flips, counts confirmation bars after a signal
// and gates one trade per trend segment.
type TrendTracker struct {
	LastBullBar int
	LastBearBar int
	BullConfirm int
	BearConfirm int
	SegmentID   int
	TradeOpened bool // a trade was opened in the current segment
}

func NewTrendTracker() *TrendTracker {
	return &TrendTracker{LastBullBar: -1, LastBearBar: -1}
}

func (t *TrendTracker) Reset() {
	*t = TrendTracker{LastBullBar: -1, LastBearBar: -1}
}

// Observe processes bar i's regime against the previous bar's. It returns
// true when a flip into a non-neutral regime started a new segment.
func (t *TrendTracker) Observe(i, regime, prevRegime int) bool {
	flipped := false
	switch {
	case regime == RegimeBullish && prevRegime != RegimeBullish:
		t.LastBullBar = i
		t.BullConfirm = 0
		t.LastBearBar = -1
		t.BearConfirm = 0
		t.SegmentID++
		t.TradeOpened = false
		flipped = true
	case regime == RegimeBearish && prevRegime != RegimeBearish:
		t.LastBearBar = i
		t.BearConfirm = 0
		t.LastBullBar = -1
		t.BullConfirm = 0
		t.SegmentID++
		t.TradeOpened = false
		flipped = true
	default:
		// Confirmation counters advance while the regime holds; a break
		// before the wait threshold invalidates the pending signal.
		if t.LastBullBar >= 0 && i > t.LastBullBar {
			if regime == RegimeBullish {
				t.BullConfirm++
			} else {
				t.LastBullBar = -1
				t.BullConfirm = 0
			}
		}
		if t.LastBearBar >= 0 && i > t.LastBearBar {
			if regime == RegimeBearish {
				t.BearConfirm++
			} else {
				t.LastBearBar = -1
				t.BearConfirm = 0
			}
		}
	}
	return flipped
}

// PendingLong reports whether a bullish signal is confirmed through waitBars.
func (t *TrendTracker) PendingLong(waitBars int) bool {
	return t.LastBullBar >= 0 && t.BullConfirm >= waitBars
}

// PendingShort reports whether a bearish signal is confirmed through waitBars.
func (t *TrendTracker) PendingShort(waitBars int) bool {
	return t.LastBearBar >= 0 && t.BearConfirm >= waitBars
}
