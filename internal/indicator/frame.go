package indicator

import (
	"math"

	"github.com/vladr1050/crypto-long-signals-bot/internal/model"
)

type bandKey struct {
	period int
	mult   float64
}

// Frame is a memoizing view of indicators over one candle series.
// Evaluators that need the same EMA or RSI share one computation.
// A Frame is designed for single-goroutine usage; no locks needed.
type Frame struct {
	series model.Series

	closes  []float64
	volumes []float64

	ema   map[int][]float64
	rsi   map[int][]float64
	atr   map[int][]float64
	volMA map[int][]float64
	bands map[bandKey]Bands
}

// NewFrame wraps a series.
func NewFrame(s model.Series) *Frame {
	return &Frame{
		series: s,
		ema:    make(map[int][]float64),
		rsi:    make(map[int][]float64),
		atr:    make(map[int][]float64),
		volMA:  make(map[int][]float64),
		bands:  make(map[bandKey]Bands),
	}
}

// Series returns the underlying series.
func (f *Frame) Series() model.Series { return f.series }

// Len returns the number of bars.
func (f *Frame) Len() int { return f.series.Len() }

// Close returns the latest close, or NaN for an empty series.
func (f *Frame) Close() float64 {
	if f.Len() == 0 {
		return math.NaN()
	}
	return f.series.Last().Close
}

// Closes returns the close column.
func (f *Frame) Closes() []float64 {
	if f.closes == nil {
		f.closes = f.series.Closes()
	}
	return f.closes
}

// Volumes returns the volume column.
func (f *Frame) Volumes() []float64 {
	if f.volumes == nil {
		f.volumes = f.series.Volumes()
	}
	return f.volumes
}

// EMA returns the EMA(period) of closes.
func (f *Frame) EMA(period int) []float64 {
	if s, ok := f.ema[period]; ok {
		return s
	}
	s := EMASeries(f.Closes(), period)
	f.ema[period] = s
	return s
}

// RSI returns the RSI(period) of closes.
func (f *Frame) RSI(period int) []float64 {
	if s, ok := f.rsi[period]; ok {
		return s
	}
	s := RSISeries(f.Closes(), period)
	f.rsi[period] = s
	return s
}

// ATR returns the ATR(period) of the bars.
func (f *Frame) ATR(period int) []float64 {
	if s, ok := f.atr[period]; ok {
		return s
	}
	s := ATRSeries(f.series.Highs(), f.series.Lows(), f.Closes(), period)
	f.atr[period] = s
	return s
}

// VolumeSMA returns the SMA(period) of volumes.
func (f *Frame) VolumeSMA(period int) []float64 {
	if s, ok := f.volMA[period]; ok {
		return s
	}
	s := SMASeries(f.Volumes(), period)
	f.volMA[period] = s
	return s
}

// Bands returns Bollinger Bands(period, mult) of closes.
func (f *Frame) Bands(period int, mult float64) Bands {
	k := bandKey{period, mult}
	if b, ok := f.bands[k]; ok {
		return b
	}
	b := BollingerSeries(f.Closes(), period, mult)
	f.bands[k] = b
	return b
}
