package indicator

import "math"

// Bands holds Bollinger Band series of equal length.
type Bands struct {
	Upper  []float64
	Middle []float64
	Lower  []float64
}

// WidthRatio returns (upper-lower)/middle per bar, NaN where undefined or middle is 0.
func (b Bands) WidthRatio() []float64 {
	out := make([]float64, len(b.Middle))
	for i := range out {
		m := b.Middle[i]
		if !Defined(m) || m == 0 {
			out[i] = math.NaN()
			continue
		}
		out[i] = (b.Upper[i] - b.Lower[i]) / m
	}
	return out
}

// BollingerSeries computes rolling mean +/- mult x population standard deviation
// over period values. The first period-1 entries are NaN.
func BollingerSeries(values []float64, period int, mult float64) Bands {
	n := len(values)
	b := Bands{Upper: nanSeries(n), Middle: nanSeries(n), Lower: nanSeries(n)}
	if period <= 0 {
		return b
	}
	for i := period - 1; i < n; i++ {
		window := values[i-period+1 : i+1]
		mean := 0.0
		for _, v := range window {
			mean += v
		}
		mean /= float64(period)

		variance := 0.0
		for _, v := range window {
			d := v - mean
			variance += d * d
		}
		sd := math.Sqrt(variance / float64(period))

		b.Middle[i] = mean
		b.Upper[i] = mean + mult*sd
		b.Lower[i] = mean - mult*sd
	}
	return b
}
