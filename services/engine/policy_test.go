package engine

import (
	"math"
	"testing"
)

func TestResolveFirstTouchLong(t *testing.T) {
	cases := []struct {
		name   string
		bar    Bar
		tp, sl float64
		want   FirstTouchResult
	}{
		{"neither", Bar{Open: 100, High: 101, Low: 99, Close: 100}, 105, 95, TouchNone},
		{"tp only", Bar{Open: 100, High: 106, Low: 99, Close: 105}, 105, 95, TouchTP},
		{"sl only", Bar{Open: 100, High: 101, Low: 94, Close: 95}, 105, 95, TouchSL},
		{"both, low closer to open", Bar{Open: 100, High: 110, Low: 96, Close: 100}, 105, 96, TouchSL},
		{"both, high closer to open", Bar{Open: 100, High: 105, Low: 90, Close: 100}, 105, 91, TouchTP},
		{"zero tp ignored", Bar{Open: 100, High: 200, Low: 99, Close: 150}, 0, 95, TouchNone},
	}
	for _, c := range cases {
		if got := ResolveFirstTouchLong(c.bar, c.tp, c.sl); got != c.want {
			t.Fatalf("%s: got %v, want %v", c.name, got, c.want)
		}
	}
}

func TestResolveFirstTouchShort(t *testing.T) {
	cases := []struct {
		name   string
		bar    Bar
		tp, sl float64
		want   FirstTouchResult
	}{
		{"neither", Bar{Open: 100, High: 101, Low: 99, Close: 100}, 95, 105, TouchNone},
		{"tp only", Bar{Open: 100, High: 101, Low: 94, Close: 95}, 95, 105, TouchTP},
		{"sl only", Bar{Open: 100, High: 106, Low: 99, Close: 105}, 95, 105, TouchSL},
		{"both, high closer to open", Bar{Open: 100, High: 105, Low: 90, Close: 100}, 95, 105, TouchSL},
		{"both, low closer to open", Bar{Open: 100, High: 110, Low: 95, Close: 100}, 95, 108, TouchTP},
		{"zero tp ignored", Bar{Open: 100, High: 101, Low: 1, Close: 50}, 0, 105, TouchNone},
	}
	for _, c := range cases {
		if got := ResolveFirstTouchShort(c.bar, c.tp, c.sl); got != c.want {
			t.Fatalf("%s: got %v, want %v", c.name, got, c.want)
		}
	}
}

func TestRiskCheck(t *testing.T) {
	p := DefaultParams()
	bar := Bar{Open: 100, High: 102, Low: 98, Close: 101}

	stop, risk, ok := riskCheck(bar, 2.0, DirectionLong, 101, &p)
	if math.Abs(stop-97) > 1e-9 {
		t.Fatalf("long stop = %f, want 97", stop)
	}
	// 4 points / 0.25 tick = 16 ticks * 12.5 = 200 currency.
	if math.Abs(risk-200) > 1e-9 || !ok {
		t.Fatalf("risk = %f ok=%v, want 200 true", risk, ok)
	}

	stop, _, _ = riskCheck(bar, 2.0, DirectionShort, 101, &p)
	if math.Abs(stop-105) > 1e-9 {
		t.Fatalf("short stop = %f, want 105", stop)
	}

	// No ATR yet: fall back to a tenth of the bar range.
	stop, _, _ = riskCheck(bar, 0, DirectionLong, 101, &p)
	want := 101 - 0.1*bar.Range()*p.ATRMultiplier
	if math.Abs(stop-want) > 1e-9 {
		t.Fatalf("fallback stop = %f, want %f", stop, want)
	}

	// Risk past the ceiling rejects the entry.
	p.MaxRiskPerTrade = 100
	if _, risk, ok = riskCheck(bar, 2.0, DirectionLong, 101, &p); ok {
		t.Fatalf("risk %f should exceed ceiling 100", risk)
	}
}

func TestTakeProfitFor(t *testing.T) {
	p := DefaultParams()
	p.Policy = PolicyRiskReward
	p.RewardRatio = 2.0

	if tp := takeProfitFor(DirectionLong, 100, 96, &p); math.Abs(tp-108) > 1e-9 {
		t.Fatalf("long tp = %f, want 108", tp)
	}
	if tp := takeProfitFor(DirectionShort, 100, 104, &p); math.Abs(tp-92) > 1e-9 {
		t.Fatalf("short tp = %f, want 92", tp)
	}

	p.Policy = PolicySignal
	if tp := takeProfitFor(DirectionLong, 100, 96, &p); tp != 0 {
		t.Fatalf("signal policy has no fixed tp, got %f", tp)
	}
}
