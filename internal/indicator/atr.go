package indicator

import "math"

// ATR calculates Average True Range with Wilder smoothing.
// The first bar only seeds the previous close, so the first value is
// available after period+1 bars.
type ATR struct {
	period    int
	count     int
	prevClose float64
	smma      *SMMA
}

// NewATR creates a new ATR indicator with the given period (typically 14).
func NewATR(period int) *ATR {
	return &ATR{period: period, smma: NewSMMA(period)}
}

func (a *ATR) Name() string { return "ATR" }

// UpdateBar feeds one bar.
func (a *ATR) UpdateBar(high, low, close float64) {
	a.count++
	if a.count == 1 {
		a.prevClose = close
		return
	}
	a.smma.Update(TrueRange(high, low, a.prevClose))
	a.prevClose = close
}

func (a *ATR) Value() float64 { return a.smma.Value() }
func (a *ATR) Ready() bool    { return a.smma.Ready() }

// PeekBar computes what Value() would be after one more bar without mutating state.
func (a *ATR) PeekBar(high, low float64) float64 {
	if a.count == 0 {
		return high - low
	}
	return a.smma.Peek(TrueRange(high, low, a.prevClose))
}

// TrueRange is max(high-low, |high-prevClose|, |low-prevClose|).
func TrueRange(high, low, prevClose float64) float64 {
	return math.Max(high-low, math.Max(math.Abs(high-prevClose), math.Abs(low-prevClose)))
}

// ATRSeries returns the ATR over parallel high/low/close slices; the first period
// entries are NaN. Mismatched slice lengths yield an all-NaN series.
func ATRSeries(high, low, close []float64, period int) []float64 {
	n := len(close)
	if period <= 0 || len(high) != n || len(low) != n {
		return nanSeries(n)
	}
	a := NewATR(period)
	out := make([]float64, n)
	for i := 0; i < n; i++ {
		a.UpdateBar(high[i], low[i], close[i])
		if a.Ready() {
			out[i] = a.Value()
		} else {
			out[i] = math.NaN()
		}
	}
	return out
}
