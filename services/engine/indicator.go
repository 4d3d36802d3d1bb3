package engine

import "math"

// Regime classification of the current trend segment.
const (
	RegimeBullish = 1
	RegimeBearish = -1
	RegimeNeutral = 0
)

const (
	// Wilder smoothing period for the ATR series.
	atrPeriod = 30.0
	// Smoothing factor of the fast close average whose delta is the slope signal.
	fastAlpha = 0.2
	// Substituted when a bar carries no volume, so money flow stays defined.
	placeholderVolume = 1000.0
	// Volatility band: raw width is lagged this many bars, then scaled.
	bandLagBars    = 20
	bandMultiplier = 4.0
	// Trailing window of the range-weighted moving average.
	wmaWindow = 20
)

// IndicatorState holds every derived value for one bar. Each slot is a pure
// function of bars up to its index and the previous slot; there is no
// lookahead anywhere in the calculation.
type IndicatorState struct {
	UpSmoothed   float64
	DownSmoothed float64
	RMI          float64
	PosFlow      float64
	NegFlow      float64
	MFI          float64
	Oscillator   float64 // composite RMI/MFI blend, 0..100
	FastEMA      float64
	Slope        float64
	Regime       int
	TrueRange    float64
	ATR          float64
	BandRaw      float64 // pre-lag band width input
	BandWidth    float64 // half-width of the volatility band
	WeightedMA   float64
	BandMax      float64
	BandMin      float64
}

// Calculator produces the per-bar indicator series. Update must be called
// exactly once per bar index in increasing order; a parameter change requires
// a clean recompute from bar zero because every smoothing formula is
// order-dependent.
type Calculator struct {
	params *Params
	states []IndicatorState
}

func NewCalculator(params *Params) *Calculator {
	return &Calculator{params: params}
}

// States exposes the append-only series, one slot per bar index.
func (c *Calculator) States() []IndicatorState {
	return c.states
}

// At returns the state at bar index i.
func (c *Calculator) At(i int) IndicatorState {
	return c.states[i]
}

// Len is the number of bars computed so far.
func (c *Calculator) Len() int {
	return len(c.states)
}

// Reset drops all derived state ahead of a full replay.
func (c *Calculator) Reset() {
	c.states = c.states[:0]
}

// padStale repeats the previous slot so the series stays aligned with the
// bar series after a skipped bar.
func (c *Calculator) padStale() {
	var st IndicatorState
	if n := len(c.states); n > 0 {
		st = c.states[n-1]
	}
	c.states = append(c.states, st)
}

// strengthRatio is the RSI-shaped ratio used for both momentum and money
// flow. Division by zero resolves to the documented sentinels: 100 when the
// down side is empty, 0 when the up side is empty.
func strengthRatio(up, down float64) float64 {
	if down == 0 {
		return 100
	}
	if up == 0 {
		return 0
	}
	return 100 - 100/(1+up/down)
}

// wilder applies Wilder-style smoothing with period length.
func wilder(raw, prev, length float64) float64 {
	return (raw + (length-1)*prev) / length
}

// Update computes the indicator slot for bar index i. bars must hold at
// least i+1 entries and len(states) must equal i.
func (c *Calculator) Update(bars []Bar, i int) IndicatorState {
	var prev IndicatorState
	if i > 0 {
		prev = c.states[i-1]
	}

	bar := bars[i]
	length := float64(c.params.Length)

	var st IndicatorState

	// Directional momentum, Wilder-smoothed.
	var change float64
	if i > 0 {
		change = bar.Close - bars[i-1].Close
	}
	st.UpSmoothed = wilder(math.Max(change, 0), prev.UpSmoothed, length)
	st.DownSmoothed = wilder(math.Max(-change, 0), prev.DownSmoothed, length)
	st.RMI = strengthRatio(st.UpSmoothed, st.DownSmoothed)

	// Money flow: typical price times volume, signed by the direction of the
	// typical price against the previous bar.
	vol := bar.Volume
	if vol <= 0 {
		vol = placeholderVolume
	}
	var posRaw, negRaw float64
	if i > 0 {
		tp, prevTp := bar.Typical(), bars[i-1].Typical()
		if tp > prevTp {
			posRaw = tp * vol
		} else if tp < prevTp {
			negRaw = tp * vol
		}
	}
	st.PosFlow = wilder(posRaw, prev.PosFlow, length)
	st.NegFlow = wilder(negRaw, prev.NegFlow, length)
	st.MFI = strengthRatio(st.PosFlow, st.NegFlow)

	st.Oscillator = (st.RMI + st.MFI) / 2

	// Fast close average; its bar-over-bar delta is the slope signal.
	if i == 0 {
		st.FastEMA = bar.Close
	} else {
		st.FastEMA = prev.FastEMA + fastAlpha*(bar.Close-prev.FastEMA)
		st.Slope = st.FastEMA - prev.FastEMA
	}

	// Regime: rising-edge detector on the thresholds; absent a fresh edge the
	// regime persists from the previous bar.
	st.Regime = prev.Regime
	if st.Oscillator > c.params.UpperThreshold && st.Slope > 0 && prev.Oscillator <= c.params.UpperThreshold {
		st.Regime = RegimeBullish
	} else if st.Oscillator < c.params.LowerThreshold && st.Slope < 0 && prev.Oscillator >= c.params.LowerThreshold {
		st.Regime = RegimeBearish
	}

	// True range and Wilder ATR.
	if i == 0 {
		st.TrueRange = bar.Range()
		st.ATR = st.TrueRange
	} else {
		prevClose := bars[i-1].Close
		st.TrueRange = math.Max(bar.Range(), math.Max(math.Abs(bar.High-prevClose), math.Abs(bar.Low-prevClose)))
		st.ATR = wilder(st.TrueRange, prev.ATR, atrPeriod)
	}

	// Volatility band half-width: capped raw width, lagged, then scaled.
	st.BandRaw = math.Min(st.ATR*0.3, bar.Close*0.003)
	lagged := st.BandRaw
	if i >= bandLagBars {
		lagged = c.states[i-bandLagBars].BandRaw
	}
	st.BandWidth = lagged * bandMultiplier

	// Range-weighted moving average; degrades to the raw close while the
	// window is short of history.
	st.WeightedMA = bar.Close
	if i+1 >= wmaWindow {
		var sum, sumW float64
		for j := i - wmaWindow + 1; j <= i; j++ {
			w := bars[j].Range()
			sum += bars[j].Close * w
			sumW += w
		}
		if sumW > 0 {
			st.WeightedMA = sum / sumW
		}
	}
	st.BandMax = st.WeightedMA + st.BandWidth
	st.BandMin = st.WeightedMA - st.BandWidth

	c.states = append(c.states, st)
	return st
}
