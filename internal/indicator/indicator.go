// Package indicator provides technical indicator calculations over price series.
//
// Streaming indicators implement the Indicator interface: they are fed one value
// at a time and expose the latest result. The series helpers (EMA, RSI, ATR,
// Bollinger, SMA) drive those streaming types over a whole slice and mark every
// warm-up position with NaN, so callers never index past valid data and short
// inputs never panic.
package indicator

import "math"

// Indicator is the interface for all scalar-fed streaming indicators.
type Indicator interface {
	// Name returns the indicator name (e.g., "EMA", "RSI").
	Name() string

	// Update feeds the next value and recalculates.
	Update(v float64)

	// Value returns the current calculated value. Returns 0 if not enough data.
	Value() float64

	// Ready returns true when enough data has been accumulated.
	Ready() bool

	// Peek computes what Value() would be if v were added next,
	// WITHOUT mutating internal state.
	Peek(v float64) float64
}

// Defined reports whether x is a usable indicator value.
func Defined(x float64) bool {
	return !math.IsNaN(x) && !math.IsInf(x, 0)
}

// Last returns the final entry of a series, or NaN if the series is empty.
func Last(series []float64) float64 {
	if len(series) == 0 {
		return math.NaN()
	}
	return series[len(series)-1]
}

// Back returns the entry n positions before the last one, or NaN if out of range.
func Back(series []float64, n int) float64 {
	i := len(series) - 1 - n
	if n < 0 || i < 0 {
		return math.NaN()
	}
	return series[i]
}

// run drives a streaming indicator across values, emitting NaN until it is ready.
func run(ind Indicator, values []float64) []float64 {
	out := make([]float64, len(values))
	for i, v := range values {
		ind.Update(v)
		if ind.Ready() {
			out[i] = ind.Value()
		} else {
			out[i] = math.NaN()
		}
	}
	return out
}

func nanSeries(n int) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = math.NaN()
	}
	return out
}
