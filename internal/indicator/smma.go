package indicator

// SMMA calculates Smoothed Moving Average (Wilder-style smoothing).
// First value is SMA(period), then SMMA = (prev*(period-1) + value) / period.
type SMMA struct {
	period  int
	count   int
	sum     float64
	current float64
}

// NewSMMA creates a new SMMA indicator with the given period.
func NewSMMA(period int) *SMMA {
	return &SMMA{period: period}
}

func (s *SMMA) Name() string { return "SMMA" }

func (s *SMMA) Update(v float64) {
	s.count++

	if s.count <= s.period {
		s.sum += v
		if s.count == s.period {
			s.current = s.sum / float64(s.period)
		}
		return
	}

	s.current = (s.current*float64(s.period-1) + v) / float64(s.period)
}

func (s *SMMA) Value() float64 { return s.current }
func (s *SMMA) Ready() bool    { return s.period > 0 && s.count >= s.period }

// Peek computes what Value() would be with an additional value without mutating state.
func (s *SMMA) Peek(v float64) float64 {
	if s.count < s.period {
		return (s.sum + v) / float64(s.count+1)
	}
	return (s.current*float64(s.period-1) + v) / float64(s.period)
}

