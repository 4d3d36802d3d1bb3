// Package engine implements a deterministic bar-by-bar trading-signal and
// trade-simulation engine: a composite momentum/money-flow oscillator with
// regime classification, trend-segment tracking, three mutually exclusive
// exit policies and full-ledger statistics aggregation.
package engine

import (
	"fmt"

	"go.uber.org/zap"
)

// Update is emitted for every processed bar: the new indicator slot, at most
// one trade-open event, at most one trade-close event and the refreshed
// statistics snapshot.
type Update struct {
	BarIndex int
	State    IndicatorState
	Opened   *Trade
	Closed   *Trade
	Stats    Statistics
}

// Result is the outcome of a full replay.
type Result struct {
	Trades  []*Trade
	Open    *Trade // still-active trade at the end of the series, if any
	Stats   Statistics
	States  []IndicatorState
	Events  []Event
	Bars    int
	Skipped int
}

// fast re-entry scheduled by a signal-based exit: one bar, one direction,
// no confirmation wait.
type pendingReentry struct {
	Bar       int
	Direction Direction
}

// Engine holds all mutable replay state. It is not safe for concurrent use;
// one engine drives exactly one logical replay stream.
type Engine struct {
	params Params
	log    *zap.Logger

	bars    []Bar
	calc    *Calculator
	tracker *TrendTracker

	current *Trade
	ledger  []*Trade
	stats   Statistics

	reentry *pendingReentry

	vsignals map[int]*VReversalSignal
	vorder   []int
	vlive    *VReversalSignal

	events  EventLog
	skipped int
}

// New builds an engine with the given parameters. A nil logger disables
// logging.
func New(params Params, log *zap.Logger) *Engine {
	if log == nil {
		log = zap.NewNop()
	}
	params.Normalize()
	e := &Engine{
		params:   params,
		log:      log,
		tracker:  NewTrendTracker(),
		vsignals: make(map[int]*VReversalSignal),
	}
	e.calc = NewCalculator(&e.params)
	return e
}

// Params returns the active (clamped) configuration.
func (e *Engine) Params() Params { return e.params }

// Trades returns the closed-trade ledger in chronological order.
func (e *Engine) Trades() []*Trade { return e.ledger }

// Current returns the open trade, or nil when flat.
func (e *Engine) Current() *Trade { return e.current }

// Stats returns the latest statistics snapshot.
func (e *Engine) Stats() Statistics { return e.stats }

// States returns the per-bar indicator series.
func (e *Engine) States() []IndicatorState { return e.calc.States() }

// Events returns the decision trail of the current replay.
func (e *Engine) Events() []Event { return e.events.Events }

// VSignals returns all V-reversal signals in the order they were created.
func (e *Engine) VSignals() []*VReversalSignal {
	out := make([]*VReversalSignal, 0, len(e.vorder))
	for _, bar := range e.vorder {
		out = append(out, e.vsignals[bar])
	}
	return out
}

// SetParams replaces the configuration and replays all bars seen so far from
// bar zero. Smoothing formulas are order-dependent, so partial recomputation
// after a parameter change is not possible.
func (e *Engine) SetParams(p Params) Result {
	p.Normalize()
	e.params = p
	bars := append([]Bar(nil), e.bars...)
	return e.Replay(bars)
}

func (e *Engine) resetState() {
	e.bars = e.bars[:0]
	e.calc.Reset()
	e.tracker.Reset()
	e.current = nil
	e.ledger = nil
	e.stats = Statistics{}
	e.reentry = nil
	e.vsignals = make(map[int]*VReversalSignal)
	e.vorder = nil
	e.vlive = nil
	e.events.Reset()
	e.skipped = 0
}

// Replay runs a clean pass over bars. Per-bar failures are logged and the
// bar is skipped for trading purposes; one bad bar never aborts the pass.
func (e *Engine) Replay(bars []Bar) Result {
	e.resetState()
	for _, b := range bars {
		if _, err := e.ProcessBar(b); err != nil {
			e.log.Warn("skipping bar after failed update",
				zap.Int("bar", len(e.bars)-1),
				zap.Error(err))
		}
	}
	return e.Snapshot()
}

// Snapshot packages the current replay state as a Result.
func (e *Engine) Snapshot() Result {
	return Result{
		Trades:  e.ledger,
		Open:    e.current,
		Stats:   e.stats,
		States:  e.calc.States(),
		Events:  e.events.Events,
		Bars:    len(e.bars),
		Skipped: e.skipped,
	}
}

// ProcessBar appends the next bar and runs one engine step: indicator
// update, trend tracking, exit checks, then entry checks. An internal fault
// is recovered at this boundary and returned as an error; the engine stays
// usable and the next bar proceeds.
func (e *Engine) ProcessBar(bar Bar) (u Update, err error) {
	e.bars = append(e.bars, bar)
	i := len(e.bars) - 1

	defer func() {
		if r := recover(); r != nil {
			e.skipped++
			// Keep the state series aligned with the bar series so later
			// bars index correctly; the slot stays stale for this bar.
			for e.calc.Len() <= i {
				e.calc.padStale()
			}
			e.events.Append(Event{Ts: bar.Timestamp, Bar: i, Type: EventBarSkipped})
			u = Update{BarIndex: i, State: e.calc.At(i), Stats: e.stats}
			err = fmt.Errorf("bar %d update failed: %v", i, r)
		}
	}()

	prevRegime := RegimeNeutral
	if i > 0 {
		prevRegime = e.calc.At(i - 1).Regime
	}
	st := e.calc.Update(e.bars, i)
	u = Update{BarIndex: i, State: st}

	if e.tracker.Observe(i, st.Regime, prevRegime) {
		e.events.Append(Event{Ts: bar.Timestamp, Bar: i, Type: EventRegimeFlip,
			Details: map[string]string{"regime": fmt.Sprintf("%d", st.Regime), "segment": fmt.Sprintf("%d", e.tracker.SegmentID)}})
		if e.params.Policy == PolicyVReversal {
			e.openVSignal(i, st)
		}
	}

	if e.current != nil {
		u.Closed = e.checkPriceExit(bar, i)
		if e.current != nil && e.params.Policy == PolicySignal {
			u.Closed = e.checkSignalExit(bar, i)
		}
		if e.current != nil {
			u.Closed = e.checkMaxHold(bar, i)
		}
	}

	// No entries on a bar that closed a trade; a signal exit schedules its
	// fast re-entry for the following bar instead.
	if e.current == nil && u.Closed == nil {
		switch e.params.Policy {
		case PolicySignal, PolicyRiskReward:
			u.Opened = e.tryEntry(bar, st, i)
		case PolicyVReversal:
			u.Opened = e.tryVReversalEntry(bar, st, i)
		}
	}

	u.Stats = e.stats
	return u, nil
}

// checkPriceExit applies stop-loss/take-profit touch detection using the
// bar's high/low. Price exits run before any signal-based exit.
func (e *Engine) checkPriceExit(bar Bar, i int) *Trade {
	t := e.current
	if i <= t.EntryBar {
		return nil
	}
	var res FirstTouchResult
	if t.Direction == DirectionLong {
		res = ResolveFirstTouchLong(bar, t.TakeProfit, t.StopLoss)
	} else {
		res = ResolveFirstTouchShort(bar, t.TakeProfit, t.StopLoss)
	}
	switch res {
	case TouchSL:
		return e.closeTrade(bar, i, t.StopLoss, ExitStopLoss)
	case TouchTP:
		return e.closeTrade(bar, i, t.TakeProfit, ExitTakeProfit)
	}
	return nil
}

// checkSignalExit closes the position on a confirmed opposite-direction
// signal that arrived after the entry bar, and schedules a fast re-entry in
// the new direction for the very next bar.
func (e *Engine) checkSignalExit(bar Bar, i int) *Trade {
	t := e.current
	wait := e.params.WaitBars
	switch t.Direction {
	case DirectionLong:
		if e.tracker.PendingShort(wait) && e.tracker.LastBearBar > t.EntryBar {
			closed := e.closeTrade(bar, i, bar.Close, ExitSignal)
			e.scheduleReentry(i, DirectionShort, bar.Timestamp)
			return closed
		}
	case DirectionShort:
		if e.tracker.PendingLong(wait) && e.tracker.LastBullBar > t.EntryBar {
			closed := e.closeTrade(bar, i, bar.Close, ExitSignal)
			e.scheduleReentry(i, DirectionLong, bar.Timestamp)
			return closed
		}
	}
	return nil
}

func (e *Engine) scheduleReentry(i int, dir Direction, ts int64) {
	e.reentry = &pendingReentry{Bar: i + 1, Direction: dir}
	e.events.Append(Event{Ts: ts, Bar: i, Type: EventFastReentry,
		Details: map[string]string{"direction": dir.String()}})
}

// checkMaxHold forces an exit at the configured maximum hold duration,
// regardless of policy, at the bar's close. Any pending fast re-entry is
// canceled.
func (e *Engine) checkMaxHold(bar Bar, i int) *Trade {
	if e.params.MaxHoldBars <= 0 {
		return nil
	}
	t := e.current
	if i-t.EntryBar < e.params.MaxHoldBars {
		return nil
	}
	e.reentry = nil
	return e.closeTrade(bar, i, bar.Close, ExitMaxBars)
}

// tryEntry handles Signal and RiskReward entries: a pending fast re-entry
// first (one bar only, no confirmation wait), then a confirmed signal gated
// to one trade per trend segment.
func (e *Engine) tryEntry(bar Bar, st IndicatorState, i int) *Trade {
	if r := e.reentry; r != nil {
		if i > r.Bar {
			e.reentry = nil
		} else if i == r.Bar {
			e.reentry = nil
			want := RegimeBullish
			if r.Direction == DirectionShort {
				want = RegimeBearish
			}
			if st.Regime == want {
				return e.openTrade(bar, st, i, r.Direction, false)
			}
			return nil
		}
	}

	if e.tracker.TradeOpened {
		return nil
	}
	if st.Regime == RegimeBullish && e.tracker.PendingLong(e.params.WaitBars) {
		return e.openTrade(bar, st, i, DirectionLong, false)
	}
	if st.Regime == RegimeBearish && e.tracker.PendingShort(e.params.WaitBars) {
		return e.openTrade(bar, st, i, DirectionShort, false)
	}
	return nil
}

// openVSignal records a fresh V-reversal setup at a regime flip. The
// previous live signal is superseded but kept in history.
func (e *Engine) openVSignal(i int, st IndicatorState) {
	sig := &VReversalSignal{
		SignalBar:   i,
		SignalValue: st.Oscillator,
		Extreme:     st.Oscillator,
		ExtremeBar:  i,
		Current:     st.Oscillator,
		Regime:      st.Regime,
	}
	e.vsignals[i] = sig
	e.vorder = append(e.vorder, i)
	e.vlive = sig
}

// tryVReversalEntry advances the live setup's extreme while flat and, on
// confirmation, opens a counter-trend trade: long when the regime is
// bearish, short when bullish.
func (e *Engine) tryVReversalEntry(bar Bar, st IndicatorState, i int) *Trade {
	sig := e.vlive
	if sig == nil || sig.Confirmed || e.tracker.TradeOpened {
		return nil
	}
	if i > sig.SignalBar {
		sig.track(i, st.Oscillator)
	}
	if !sig.confirmed(i, &e.params) {
		return nil
	}
	sig.Confirmed = true
	sig.ConfirmBar = i

	dir := DirectionShort
	if st.Regime == RegimeBearish {
		dir = DirectionLong
	}
	t := e.openTrade(bar, st, i, dir, true)
	if t != nil {
		sig.Executed = true
	}
	return t
}

// openTrade runs the risk gate and, if it passes, opens a position at the
// bar's close.
func (e *Engine) openTrade(bar Bar, st IndicatorState, i int, dir Direction, vreversal bool) *Trade {
	entry := bar.Close
	stop, risk, ok := riskCheck(bar, st.ATR, dir, entry, &e.params)
	if !ok {
		e.events.Append(Event{Ts: bar.Timestamp, Bar: i, Type: EventRiskRejected,
			Details: map[string]string{"risk": fmt.Sprintf("%.2f", risk)}})
		return nil
	}
	t := &Trade{
		EntryBar:   i,
		EntryTime:  bar.Timestamp,
		EntryPrice: entry,
		Direction:  dir,
		StopLoss:   stop,
		TakeProfit: takeProfitFor(dir, entry, stop, &e.params),
		Risk:       risk,
		SegmentID:  e.tracker.SegmentID,
		VReversal:  vreversal,
	}
	e.current = t
	e.tracker.TradeOpened = true
	e.events.Append(Event{Ts: bar.Timestamp, Bar: i, Type: EventTradeOpen,
		Details: map[string]string{"direction": dir.String()}})
	return t
}

// closeTrade freezes the open trade, appends it to the ledger and recomputes
// the statistics snapshot from the full ledger.
func (e *Engine) closeTrade(bar Bar, i int, price float64, reason string) *Trade {
	t := e.current
	t.close(i, bar.Timestamp, price, reason, &e.params)
	e.current = nil
	e.ledger = append(e.ledger, t)
	e.stats = ComputeStatistics(e.ledger, e.params.InitialCapital)
	e.events.Append(Event{Ts: bar.Timestamp, Bar: i, Type: EventTradeClose,
		Details: map[string]string{"reason": reason, "profit": fmt.Sprintf("%.2f", t.Profit)}})
	return t
}
