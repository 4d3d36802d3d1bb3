package engine

// Direction of a simulated trade.
type Direction int

const (
	DirectionLong Direction = iota
	DirectionShort
)

func (d Direction) String() string {
	if d == DirectionShort {
		return "Short"
	}
	return "Long"
}

// Exit reasons recorded on closed trades.
const (
	ExitStopLoss   = "Stop Loss"
	ExitTakeProfit = "Take Profit"
	ExitSignal     = "Signal TP"
	ExitMaxBars    = "MaxBars"
)

// Trade is created on entry, mutated only at exit and frozen once closed.
// A closed trade is never reopened.
type Trade struct {
	EntryBar    int
	EntryTime   int64
	EntryPrice  float64
	Direction   Direction
	StopLoss    float64
	TakeProfit  float64 // 0 when the active policy sets none
	ExitBar     int
	ExitTime    int64
	ExitPrice   float64
	ExitReason  string
	Profit      float64 // realized, currency, net of commission
	ProfitTicks float64
	Risk        float64 // currency at risk when the trade opened
	SegmentID   int
	VReversal   bool // counter-trend entry from a confirmed V-reversal
}

// Active reports whether the trade is still open.
func (t *Trade) Active() bool {
	return t.ExitReason == ""
}

// Win reports whether the closed trade realized a positive profit.
func (t *Trade) Win() bool {
	return t.Profit > 0
}

// close freezes the trade with the given exit. Profit per trade is
// (exit-entry)/tickSize * tickValue - commission, sign-flipped for shorts.
func (t *Trade) close(bar int, ts int64, exitPrice float64, reason string, p *Params) {
	t.ExitBar = bar
	t.ExitTime = ts
	t.ExitPrice = exitPrice
	t.ExitReason = reason

	ticks := (exitPrice - t.EntryPrice) / p.TickSize
	if t.Direction == DirectionShort {
		ticks = -ticks
	}
	t.ProfitTicks = ticks
	t.Profit = ticks*p.TickValue - p.Commission
}
