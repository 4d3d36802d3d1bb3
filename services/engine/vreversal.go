package engine

import "math"

// Over-retracement guard: the oscillator may cross back past the original
// signal value by at most 5% of the excursion before the setup is rejected.
const vMaxRetracement = 1.05

// VReversalSignal tracks one counter-trend setup, keyed by the bar where its
// regime segment began. Exactly one live (unconfirmed) signal exists per
// segment; a new flip supersedes the previous signal, which stays in history
// for reporting but is no longer updated.
type VReversalSignal struct {
	SignalBar   int
	SignalValue float64 // oscillator at the flip
	Extreme     float64 // running extreme since the flip
	ExtremeBar  int
	Current     float64
	Regime      int
	Confirmed   bool
	Executed    bool
	ConfirmBar  int
}

// Excursion is the absolute oscillator move from signal to extreme.
func (s *VReversalSignal) Excursion() float64 {
	return math.Abs(s.Extreme - s.SignalValue)
}

// Retracement is the pullback from the extreme toward the current value as a
// fraction of the excursion. Zero excursion yields zero.
func (s *VReversalSignal) Retracement() float64 {
	exc := s.Excursion()
	if exc == 0 {
		return 0
	}
	return math.Abs(s.Extreme-s.Current) / exc
}

// track folds bar i's oscillator value into the running extreme.
func (s *VReversalSignal) track(i int, osc float64) {
	s.Current = osc
	if s.Regime == RegimeBullish && osc > s.Extreme {
		s.Extreme = osc
		s.ExtremeBar = i
	} else if s.Regime == RegimeBearish && osc < s.Extreme {
		s.Extreme = osc
		s.ExtremeBar = i
	}
}

// confirmed checks all four confirmation conditions at bar i: enough bars
// since the extreme itself, a large enough excursion, a retracement meeting
// both fraction thresholds, and no over-retracement past the signal value.
func (s *VReversalSignal) confirmed(i int, p *Params) bool {
	if i-s.ExtremeBar < p.VLookback {
		return false
	}
	if s.Excursion() < p.VMinMovement {
		return false
	}
	retr := s.Retracement()
	if retr < p.VConfirmation || retr < p.VRetracement {
		return false
	}
	return retr <= vMaxRetracement
}
