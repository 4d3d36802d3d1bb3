package engine

import "math"

// FirstTouchResult indicates which exit level a bar touched first.
type FirstTouchResult int

const (
	TouchNone FirstTouchResult = iota
	TouchTP
	TouchSL
)

// ResolveFirstTouchLong determines TP/SL hit order for a long position using
// the bar's high/low. A non-positive take-profit never participates. When
// both levels sit inside the bar the extremum closer to the open is assumed
// to have been reached first.
func ResolveFirstTouchLong(bar Bar, tp, sl float64) FirstTouchResult {
	hitTP := tp > 0 && bar.High >= tp
	hitSL := bar.Low <= sl
	if hitTP && hitSL {
		distHigh := math.Abs(bar.High - bar.Open)
		distLow := math.Abs(bar.Open - bar.Low)
		if distLow < distHigh {
			return TouchSL
		}
		return TouchTP
	}
	if hitSL {
		return TouchSL
	}
	if hitTP {
		return TouchTP
	}
	return TouchNone
}

// ResolveFirstTouchShort mirrors the long logic for shorts.
func ResolveFirstTouchShort(bar Bar, tp, sl float64) FirstTouchResult {
	hitTP := tp > 0 && bar.Low <= tp
	hitSL := bar.High >= sl
	if hitTP && hitSL {
		distHigh := math.Abs(bar.High - bar.Open)
		distLow := math.Abs(bar.Open - bar.Low)
		if distHigh < distLow {
			return TouchSL
		}
		return TouchTP
	}
	if hitSL {
		return TouchSL
	}
	if hitTP {
		return TouchTP
	}
	return TouchNone
}

// riskCheck computes the stop-loss level and currency risk for a candidate
// entry. The entry is rejected when the risk exceeds the configured ceiling.
// ATR falls back to a tenth of the bar range while the series is too short.
func riskCheck(bar Bar, atr float64, dir Direction, entry float64, p *Params) (stop, risk float64, ok bool) {
	if atr <= 0 {
		atr = 0.1 * bar.Range()
	}
	dist := atr * p.ATRMultiplier
	if dir == DirectionLong {
		stop = entry - dist
	} else {
		stop = entry + dist
	}
	ticks := math.Abs(entry-stop) / p.TickSize
	risk = ticks * p.TickValue
	return stop, risk, risk <= p.MaxRiskPerTrade
}

// takeProfitFor derives the fixed take-profit from the risk distance and the
// configured reward ratio. Only the RiskReward and VReversal policies carry a
// take-profit level.
func takeProfitFor(dir Direction, entry, stop float64, p *Params) float64 {
	if p.Policy == PolicySignal {
		return 0
	}
	dist := math.Abs(entry-stop) * p.RewardRatio
	if dir == DirectionLong {
		return entry + dist
	}
	return entry - dist
}
