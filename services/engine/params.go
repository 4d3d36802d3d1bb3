package engine

// ExitPolicy selects which of the three mutually exclusive trade-exit modes
// is active. Switching policies invalidates all derived state and forces a
// replay from bar zero.
type ExitPolicy int

const (
	PolicySignal ExitPolicy = iota
	PolicyRiskReward
	PolicyVReversal
)

func (p ExitPolicy) String() string {
	switch p {
	case PolicySignal:
		return "Signal"
	case PolicyRiskReward:
		return "RiskReward"
	case PolicyVReversal:
		return "VReversal"
	default:
		return "Unknown"
	}
}

// Params is the full configuration surface of the engine. Values assigned
// through the Set* methods are clamped to their valid bounds, never rejected.
type Params struct {
	Length          int     // oscillator smoothing length
	UpperThreshold  float64 // bullish regime threshold on the composite
	LowerThreshold  float64 // bearish regime threshold on the composite
	WaitBars        int     // confirmation bars before a signal entry
	Policy          ExitPolicy
	RewardRatio     float64 // take-profit distance as multiple of risk distance
	ATRMultiplier   float64 // stop-loss distance in ATRs
	VLookback       int     // bars required since the oscillator extreme
	VRetracement    float64 // reversal fraction of the excursion
	VConfirmation   float64 // confirmation fraction of the excursion
	VMinMovement    float64 // minimum signal-to-extreme excursion
	MaxHoldBars     int     // forced exit after this many bars, 0 disables
	InitialCapital  float64
	Commission      float64 // currency per closed trade
	TickSize        float64 // price units per tick
	TickValue       float64 // currency per tick
	MaxRiskPerTrade float64
}

// DefaultParams returns the stock configuration.
func DefaultParams() Params {
	return Params{
		Length:          14,
		UpperThreshold:  70,
		LowerThreshold:  30,
		WaitBars:        2,
		Policy:          PolicySignal,
		RewardRatio:     2.0,
		ATRMultiplier:   2.0,
		VLookback:       5,
		VRetracement:    0.5,
		VConfirmation:   0.3,
		VMinMovement:    5.0,
		MaxHoldBars:     0,
		InitialCapital:  10000,
		Commission:      4.0,
		TickSize:        0.25,
		TickValue:       12.5,
		MaxRiskPerTrade: 1000,
	}
}

func clampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func clampFloat(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func (p *Params) SetLength(n int) {
	if n < 1 {
		n = 1
	}
	p.Length = n
}

func (p *Params) SetThresholds(upper, lower float64) {
	p.UpperThreshold = clampFloat(upper, 0, 100)
	p.LowerThreshold = clampFloat(lower, 0, 100)
}

func (p *Params) SetWaitBars(n int) {
	if n < 0 {
		n = 0
	}
	p.WaitBars = n
}

func (p *Params) SetPolicy(policy ExitPolicy) {
	if policy < PolicySignal || policy > PolicyVReversal {
		policy = PolicySignal
	}
	p.Policy = policy
}

func (p *Params) SetRewardRatio(r float64) {
	if r < 0.5 {
		r = 0.5
	}
	p.RewardRatio = r
}

func (p *Params) SetATRMultiplier(m float64) {
	if m < 0.1 {
		m = 0.1
	}
	p.ATRMultiplier = m
}

func (p *Params) SetVLookback(n int) {
	p.VLookback = clampInt(n, 0, 20)
}

func (p *Params) SetVRetracement(f float64) {
	p.VRetracement = clampFloat(f, 0.2, 0.8)
}

func (p *Params) SetVConfirmation(f float64) {
	p.VConfirmation = clampFloat(f, 0.1, 0.8)
}

func (p *Params) SetVMinMovement(m float64) {
	p.VMinMovement = clampFloat(m, 1.0, 20.0)
}

func (p *Params) SetMaxHoldBars(n int) {
	if n < 0 {
		n = 0
	}
	p.MaxHoldBars = n
}

func (p *Params) SetInitialCapital(c float64) {
	if c <= 0 {
		c = 10000
	}
	p.InitialCapital = c
}

func (p *Params) SetCommission(c float64) {
	if c < 0 {
		c = 0
	}
	p.Commission = c
}

func (p *Params) SetTickSize(s float64) {
	if s <= 0 {
		s = 0.25
	}
	p.TickSize = s
}

func (p *Params) SetTickValue(v float64) {
	if v <= 0 {
		v = 12.5
	}
	p.TickValue = v
}

func (p *Params) SetMaxRiskPerTrade(r float64) {
	p.MaxRiskPerTrade = clampFloat(r, 100, 4000)
}

// Normalize runs every bound check in place. Used when a whole Params value
// arrives from the outside (CLI flags, HTTP payload) instead of through the
// individual setters.
func (p *Params) Normalize() {
	p.SetLength(p.Length)
	p.SetThresholds(p.UpperThreshold, p.LowerThreshold)
	p.SetWaitBars(p.WaitBars)
	p.SetPolicy(p.Policy)
	p.SetRewardRatio(p.RewardRatio)
	p.SetATRMultiplier(p.ATRMultiplier)
	p.SetVLookback(p.VLookback)
	p.SetVRetracement(p.VRetracement)
	p.SetVConfirmation(p.VConfirmation)
	p.SetVMinMovement(p.VMinMovement)
	p.SetMaxHoldBars(p.MaxHoldBars)
	p.SetInitialCapital(p.InitialCapital)
	p.SetCommission(p.Commission)
	p.SetTickSize(p.TickSize)
	p.SetTickValue(p.TickValue)
	p.SetMaxRiskPerTrade(p.MaxRiskPerTrade)
}
