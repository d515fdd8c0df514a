package indicator

// SMA calculates Simple Moving Average over a rolling window.
// Uses a preallocated circular buffer for zero-allocation hot path.
type SMA struct {
	period  int
	buf     []float64 // preallocated circular buffer
	idx     int       // current write position
	count   int       // total values received
	sum     float64
	current float64
}

// NewSMA creates a new SMA indicator with the given period.
func NewSMA(period int) *SMA {
	return &SMA{
		period: period,
		buf:    make([]float64, period),
	}
}

func (s *SMA) Name() string { return "SMA" }

func (s *SMA) Update(v float64) {
	if s.count >= s.period {
		// Subtract the oldest value being overwritten
		s.sum -= s.buf[s.idx]
	}

	s.buf[s.idx] = v
	s.sum += v
	s.idx = (s.idx + 1) % s.period
	s.count++

	if s.count >= s.period {
		s.current = s.sum / float64(s.period)
	}
}

func (s *SMA) Value() float64 { return s.current }
func (s *SMA) Ready() bool    { return s.count >= s.period }

// Peek computes what Value() would be with an additional value without mutating state.
func (s *SMA) Peek(v float64) float64 {
	if s.count < s.period {
		return (s.sum + v) / float64(s.count+1)
	}
	// Preview: replace the oldest value (at idx) with the new one
	return (s.sum - s.buf[s.idx] + v) / float64(s.period)
}

// SMASeries returns the rolling mean of values; the first period-1 entries are NaN.
func SMASeries(values []float64, period int) []float64 {
	if period <= 0 {
		return nanSeries(len(values))
	}
	return run(NewSMA(period), values)
}
