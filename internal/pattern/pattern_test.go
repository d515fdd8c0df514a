package pattern

import (
	"math"
	"testing"

	"github.com/vladr1050/crypto-long-signals-bot/internal/indicator"
	"github.com/vladr1050/crypto-long-signals-bot/internal/model"
)

// frameOf builds a frame whose bars open at the previous close.
func frameOf(closes []float64, volume float64) *indicator.Frame {
	s := model.Series{Symbol: "ETH/USDC", Timeframe: "15m"}
	prev := closes[0]
	for _, c := range closes {
		s.Candles = append(s.Candles, model.Candle{
			Open: prev, High: math.Max(prev, c) + 0.1, Low: math.Min(prev, c) - 0.1,
			Close: c, Volume: volume,
		})
		prev = c
	}
	return indicator.NewFrame(s)
}

func ramp(start, step float64, n int) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = start + step*float64(i)
	}
	return out
}

func TestShortInputIsFalse(t *testing.T) {
	empty := indicator.NewFrame(model.Series{})
	one := frameOf([]float64{100}, 10)

	for _, f := range []*indicator.Frame{empty, one} {
		checks := map[string]bool{
			"TrendBullish":       TrendBullish(f, f),
			"RSINeutralBullish":  RSINeutralBullish(f),
			"RSIOversoldBounce":  RSIOversoldBounce(f),
			"BreakoutRetest":     BreakoutRetest(f),
			"BBSqueezeExpansion": BBSqueezeExpansion(f),
			"EMACrossover":       EMACrossover(f),
			"BullishCandle":      BullishCandle(f, 0),
			"PriceAboveEMA9":     PriceAboveEMA9(f),
			"PriceCrossAboveEMA": PriceCrossAboveEMA(f, 50),
			"VolumeAbove":        VolumeAbove(f, 20, 1.1),
			"EMAAbove":           EMAAbove(f, 20, 50),
		}
		for name, got := range checks {
			if got {
				t.Errorf("%s on %d bars: expected false", name, f.Len())
			}
		}
	}
	if !math.IsNaN(Support(empty, 20)) {
		t.Error("Support of empty frame should be NaN")
	}
}

func TestTrendBullish(t *testing.T) {
	up := frameOf(ramp(100, 1, 250), 10)
	if !TrendBullish(up, up) {
		t.Error("steady uptrend should pass the trend filter")
	}
	down := frameOf(ramp(400, -1, 250), 10)
	if TrendBullish(down, up) {
		t.Error("price below EMA200 on the trend frame must fail")
	}
	shortEntry := frameOf(ramp(100, 1, 40), 10)
	if TrendBullish(up, shortEntry) {
		t.Error("entry frame shorter than EMA50 warm-up must fail")
	}
}

func TestRSIOversoldBounce(t *testing.T) {
	// 30 straight losses (RSI 0) then +8:
	// avgGain = 8/14, avgLoss = 13/14 -> RSI ~= 38.1
	closes := append(ramp(200, -1, 30), 171+8)
	f := frameOf(closes, 10)
	if !RSIOversoldBounce(f) {
		t.Error("expected RSI to cross back above 30")
	}
	if !RSIInRange(f, RSIPeriod, 30, 50) {
		t.Errorf("RSI %.2f should be in [30,50)", indicator.Last(f.RSI(RSIPeriod)))
	}
	if RSINeutralBullish(f) {
		t.Error("RSI ~38 is not neutral-bullish")
	}

	still := frameOf(ramp(200, -1, 31), 10)
	if RSIOversoldBounce(still) {
		t.Error("no bounce while RSI stays at 0")
	}
}

func breakoutCandles() []model.Candle {
	var cs []model.Candle
	for i := 0; i < 22; i++ {
		cs = append(cs, model.Candle{Open: 99, High: 100, Low: 98, Close: 99, Volume: 10})
	}
	return append(cs,
		model.Candle{Open: 99.5, High: 101, Low: 99.5, Close: 100.5, Volume: 10},
		model.Candle{Open: 100.5, High: 101.2, Low: 100.2, Close: 101, Volume: 10},
		model.Candle{Open: 101, High: 102, Low: 100.8, Close: 101.5, Volume: 10},
	)
}

func TestBreakoutRetest(t *testing.T) {
	cs := breakoutCandles()
	if !BreakoutRetest(indicator.NewFrame(model.Series{Candles: cs})) {
		t.Fatal("expected breakout above 100 with retest at 100.2")
	}

	noRetest := append([]model.Candle(nil), cs...)
	noRetest[23].Low = 101
	if BreakoutRetest(indicator.NewFrame(model.Series{Candles: noRetest})) {
		t.Error("lows more than 0.5% above resistance are not a retest")
	}

	noBreak := append([]model.Candle(nil), cs...)
	noBreak[24].Close = 99.9
	if BreakoutRetest(indicator.NewFrame(model.Series{Candles: noBreak})) {
		t.Error("close below resistance is not a breakout")
	}
}

func TestBBSqueezeExpansion(t *testing.T) {
	build := func(lastVolume float64) *indicator.Frame {
		s := model.Series{}
		for i := 0; i < 40; i++ {
			c := 100.0
			if i%2 == 1 {
				c = 100.1
			}
			s.Candles = append(s.Candles, model.Candle{Open: c, High: c + 0.05, Low: c - 0.05, Close: c, Volume: 100})
		}
		s.Candles = append(s.Candles, model.Candle{Open: 100, High: 103.2, Low: 99.9, Close: 103, Volume: lastVolume})
		return indicator.NewFrame(s)
	}
	if !BBSqueezeExpansion(build(500)) {
		t.Error("expected width expansion with a volume spike")
	}
	if BBSqueezeExpansion(build(100)) {
		t.Error("expansion without volume must not trigger")
	}
}

func TestEMACrossover(t *testing.T) {
	// rally, pullback that drops EMA9 under EMA21 while both stay above EMA50, rally again
	closes := ramp(100, 1, 150)
	closes = append(closes, ramp(247, -2, 10)...)
	closes = append(closes, ramp(232, 3, 20)...)

	hit := -1
	for end := 160; end < len(closes); end++ {
		if EMACrossover(frameOf(closes[:end+1], 10)) {
			hit = end
			break
		}
	}
	if hit < 0 {
		t.Fatal("expected an EMA9/EMA21 crossover above EMA50 after the pullback")
	}
	if EMACrossover(frameOf(closes[:hit+2], 10)) {
		t.Error("crossover must fire only on the crossing bar")
	}
	if EMACrossover(frameOf(ramp(100, 1, 120), 10)) {
		t.Error("no crossover in a monotonic rally")
	}
}

func TestBullishCandle(t *testing.T) {
	base := func() []model.Candle {
		cs := make([]model.Candle, 19)
		for i := range cs {
			cs[i] = model.Candle{Open: 10, High: 10.1, Low: 9.9, Close: 10, Volume: 100}
		}
		return cs
	}
	frame := func(cs ...model.Candle) *indicator.Frame {
		return indicator.NewFrame(model.Series{Candles: append(base(), cs...)})
	}

	prevBear := model.Candle{Open: 10, High: 10.2, Low: 8.9, Close: 9, Volume: 100}
	engulf := model.Candle{Open: 8.9, High: 10.6, Low: 8.8, Close: 10.5, Volume: 100}
	if !BullishCandle(frame(prevBear, engulf), 0) {
		t.Error("engulfing should pass ungated")
	}
	if BullishCandle(frame(prevBear, engulf), 1.1) {
		t.Error("engulfing on average volume should fail the 1.1x gate")
	}
	engulf.Volume = 300
	if !BullishCandle(frame(prevBear, engulf), 1.1) {
		t.Error("engulfing on 3x volume should pass the gate")
	}

	flat := model.Candle{Open: 10, High: 10.1, Low: 9.9, Close: 10, Volume: 100}
	hammer := model.Candle{Open: 10, High: 10.25, Low: 9.5, Close: 10.2, Volume: 100}
	if !BullishCandle(frame(flat, hammer), 0) {
		t.Error("hammer should pass ungated")
	}
	plain := model.Candle{Open: 10, High: 10.5, Low: 9.95, Close: 10.1, Volume: 100}
	if BullishCandle(frame(flat, plain), 0) {
		t.Error("long upper wick is neither engulfing nor hammer")
	}
}

func TestVolumeAboveVsSurge(t *testing.T) {
	f := frameOf(ramp(100, 1, 25), 100)
	if VolumeAbove(f, 20, 1) {
		t.Error("VolumeAbove is strict")
	}
	if !VolumeSurge(f, 20, 1) {
		t.Error("VolumeSurge is inclusive")
	}
}

func TestPriceCrossAboveEMA(t *testing.T) {
	closes := append(ramp(200, -1, 60), 200)
	if !PriceCrossAboveEMA(frameOf(closes, 10), 50) {
		t.Error("jump above a falling EMA50 should cross")
	}
	if PriceCrossAboveEMA(frameOf(ramp(100, 1, 60), 10), 50) {
		t.Error("price already above EMA50 does not cross")
	}
}

func TestSupport(t *testing.T) {
	f := indicator.NewFrame(model.Series{Candles: []model.Candle{
		{Low: 5}, {Low: 3}, {Low: 4}, {Low: 6},
	}})
	if got := Support(f, 3); got != 3 {
		t.Errorf("Support(3) = %v, want 3", got)
	}
	if got := Support(f, 100); got != 3 {
		t.Errorf("Support(100) = %v, want 3", got)
	}
	if got := Support(f, 1); got != 6 {
		t.Errorf("Support(1) = %v, want 6", got)
	}
}
