// Package pattern holds the boolean chart conditions the detectors count as
// trend filters and entry triggers.
//
// Every evaluator reads a single *indicator.Frame and returns false when the
// frame is too short for the indicators it needs. None of them panic on short
// or empty input.
package pattern

import (
	"math"

	"github.com/vladr1050/crypto-long-signals-bot/internal/indicator"
)

// Shared indicator periods.
const (
	EMAFast    = 9
	EMASlow    = 21
	EMATrend   = 50
	EMALong    = 200
	RSIPeriod  = 14
	VolumeMA   = 20
	BandPeriod = 20
	BandMult   = 2.0
)

// Breakout-retest and squeeze parameters.
const (
	breakoutLookback = 20
	breakoutSkip     = 3
	retestBars       = 2
	retestTolerance  = 0.005

	squeezeLookback  = 10
	squeezeExpansion = 1.1
	squeezeVolume    = 1.2
)

// TrendBullish reports close > EMA200 on the trend frame and close > EMA50 on
// the entry frame.
func TrendBullish(trend, entry *indicator.Frame) bool {
	return AboveEMA(trend, EMALong) && AboveEMA(entry, EMATrend)
}

// AboveEMA reports whether the latest close is above EMA(period).
func AboveEMA(f *indicator.Frame, period int) bool {
	if f.Len() < period {
		return false
	}
	ema := indicator.Last(f.EMA(period))
	return indicator.Defined(ema) && f.Close() > ema
}

// PriceAboveEMA9 is the lenient momentum confirmation.
func PriceAboveEMA9(f *indicator.Frame) bool {
	return AboveEMA(f, EMAFast)
}

// RSINeutralBullish reports RSI(14) within [45, 65].
func RSINeutralBullish(f *indicator.Frame) bool {
	rsi, ok := lastRSI(f, RSIPeriod)
	return ok && rsi >= 45 && rsi <= 65
}

// RSIInRange reports lo <= RSI(period) < hi on the latest bar.
func RSIInRange(f *indicator.Frame, period int, lo, hi float64) bool {
	rsi, ok := lastRSI(f, period)
	return ok && rsi >= lo && rsi < hi
}

// RSIOversoldBounce reports RSI(14) below 30 on the prior bar and at or above
// 30 on the latest one.
func RSIOversoldBounce(f *indicator.Frame) bool {
	if f.Len() < RSIPeriod+2 {
		return false
	}
	rsi := f.RSI(RSIPeriod)
	prev, cur := indicator.Back(rsi, 1), indicator.Last(rsi)
	if !indicator.Defined(prev) || !indicator.Defined(cur) {
		return false
	}
	return prev < 30 && cur >= 30
}

func lastRSI(f *indicator.Frame, period int) (float64, bool) {
	if f.Len() < period+1 {
		return 0, false
	}
	rsi := indicator.Last(f.RSI(period))
	return rsi, indicator.Defined(rsi)
}

// BreakoutRetest reports a close above the highest high of the 20 bars that
// precede the latest 3, with one of the last 2 lows back within 0.5% of that
// level.
func BreakoutRetest(f *indicator.Frame) bool {
	n := f.Len()
	if n < breakoutLookback+breakoutSkip {
		return false
	}
	candles := f.Series().Candles
	resistance := math.Inf(-1)
	for _, c := range candles[n-breakoutSkip-breakoutLookback : n-breakoutSkip] {
		resistance = math.Max(resistance, c.High)
	}
	if resistance <= 0 || f.Close() <= resistance {
		return false
	}
	for _, c := range candles[n-retestBars:] {
		if math.Abs(c.Low-resistance) <= resistance*retestTolerance {
			return true
		}
	}
	return false
}

// BBSqueezeExpansion reports a Bollinger width ratio more than 1.1x its mean
// over the preceding 10 bars together with volume above 1.2x its 20-bar SMA.
func BBSqueezeExpansion(f *indicator.Frame) bool {
	n := f.Len()
	if n < BandPeriod+squeezeLookback {
		return false
	}
	width := f.Bands(BandPeriod, BandMult).WidthRatio()
	cur := width[n-1]
	if !indicator.Defined(cur) {
		return false
	}
	sum := 0.0
	for _, w := range width[n-1-squeezeLookback : n-1] {
		if !indicator.Defined(w) {
			return false
		}
		sum += w
	}
	avg := sum / squeezeLookback
	return cur > avg*squeezeExpansion && VolumeAbove(f, VolumeMA, squeezeVolume)
}

// EMACrossover reports EMA9 crossing above EMA21 on the latest bar with both
// averages above EMA50.
func EMACrossover(f *indicator.Frame) bool {
	if !EMACrossUp(f, EMAFast, EMASlow) || f.Len() < EMATrend {
		return false
	}
	e50 := indicator.Last(f.EMA(EMATrend))
	return indicator.Defined(e50) &&
		indicator.Last(f.EMA(EMAFast)) > e50 &&
		indicator.Last(f.EMA(EMASlow)) > e50
}

// EMACrossUp reports EMA(fast) <= EMA(slow) on the prior bar and > on the latest.
func EMACrossUp(f *indicator.Frame, fast, slow int) bool {
	if f.Len() < slow+1 {
		return false
	}
	ef, es := f.EMA(fast), f.EMA(slow)
	pf, ps := indicator.Back(ef, 1), indicator.Back(es, 1)
	cf, cs := indicator.Last(ef), indicator.Last(es)
	if !indicator.Defined(pf) || !indicator.Defined(ps) || !indicator.Defined(cf) || !indicator.Defined(cs) {
		return false
	}
	return pf <= ps && cf > cs
}

// EMAAbove reports EMA(fast) > EMA(slow) on the latest bar.
func EMAAbove(f *indicator.Frame, fast, slow int) bool {
	if f.Len() < slow {
		return false
	}
	a, b := indicator.Last(f.EMA(fast)), indicator.Last(f.EMA(slow))
	return indicator.Defined(a) && indicator.Defined(b) && a > b
}

// PriceCrossAboveEMA reports the close moving from at-or-below EMA(period) on
// the prior bar to above it on the latest bar.
func PriceCrossAboveEMA(f *indicator.Frame, period int) bool {
	if f.Len() < period+1 {
		return false
	}
	ema := f.EMA(period)
	closes := f.Closes()
	prevEMA, curEMA := indicator.Back(ema, 1), indicator.Last(ema)
	if !indicator.Defined(prevEMA) || !indicator.Defined(curEMA) {
		return false
	}
	return indicator.Back(closes, 1) <= prevEMA && indicator.Last(closes) > curEMA
}

// BullishCandle reports a bullish engulfing bar or a hammer on the latest bar.
// With gate > 0 the latest volume must also exceed gate x SMA20(volume).
func BullishCandle(f *indicator.Frame, gate float64) bool {
	if f.Len() < 2 {
		return false
	}
	s := f.Series()
	cur, _ := s.At(0)
	prev, _ := s.At(1)

	engulfing := prev.Bearish() && cur.Bullish() &&
		cur.Open <= prev.Close && cur.Close >= prev.Open

	body := math.Abs(cur.Close - cur.Open)
	lowerWick := math.Min(cur.Open, cur.Close) - cur.Low
	upperWick := cur.High - math.Max(cur.Open, cur.Close)
	hammer := body > 0 && lowerWick >= 2*body && upperWick < body

	if !engulfing && !hammer {
		return false
	}
	if gate <= 0 {
		return true
	}
	return VolumeAbove(f, VolumeMA, gate)
}

// VolumeAbove reports latest volume > mult x SMA(period) of volume.
func VolumeAbove(f *indicator.Frame, period int, mult float64) bool {
	vol, avg, ok := volumeVsAverage(f, period)
	return ok && vol > avg*mult
}

// VolumeSurge reports latest volume >= mult x SMA(period) of volume.
func VolumeSurge(f *indicator.Frame, period int, mult float64) bool {
	vol, avg, ok := volumeVsAverage(f, period)
	return ok && vol >= avg*mult
}

func volumeVsAverage(f *indicator.Frame, period int) (vol, avg float64, ok bool) {
	if period <= 0 || f.Len() < period {
		return 0, 0, false
	}
	avg = indicator.Last(f.VolumeSMA(period))
	if !indicator.Defined(avg) || avg <= 0 {
		return 0, 0, false
	}
	return indicator.Last(f.Volumes()), avg, true
}

// Support returns the lowest low over the last lookback bars (fewer when the
// series is shorter), or NaN for an empty frame.
func Support(f *indicator.Frame, lookback int) float64 {
	candles := f.Series().Candles
	if len(candles) == 0 || lookback <= 0 {
		return math.NaN()
	}
	if lookback > len(candles) {
		lookback = len(candles)
	}
	low := math.Inf(1)
	for _, c := range candles[len(candles)-lookback:] {
		low = math.Min(low, c.Low)
	}
	return low
}
