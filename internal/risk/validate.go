package risk

import (
	"errors"
	"fmt"
	"math"

	"github.com/vladr1050/crypto-long-signals-bot/internal/model"
)

// ErrInvalidRiskParameters is wrapped by every validation and stop-placement failure.
var ErrInvalidRiskParameters = errors.New("invalid risk parameters")

// MaxRiskPct is the largest accepted per-trade risk percentage.
const MaxRiskPct = 5.0

// Bounds is the accepted stop distance range as a percentage of entry.
type Bounds struct {
	MinStopPct float64
	MaxStopPct float64
}

var (
	// StrictBounds apply to conservative and aggressive signals.
	StrictBounds = Bounds{MinStopPct: 0.5, MaxStopPct: 10}
	// LenientBounds apply to lenient signals.
	LenientBounds = Bounds{MinStopPct: 0.3, MaxStopPct: 15}
)

// BoundsFor returns the stop bounds of a strategy mode.
func BoundsFor(mode model.StrategyMode) Bounds {
	if mode == model.ModeLenient {
		return LenientBounds
	}
	return StrictBounds
}

// Validate checks the per-trade risk and the stop distance.
func Validate(riskPct, entry, stop float64, b Bounds) error {
	if riskPct <= 0 || riskPct > MaxRiskPct {
		return fmt.Errorf("%w: risk %.2f%% outside (0, %.1f]", ErrInvalidRiskParameters, riskPct, MaxRiskPct)
	}
	if entry <= 0 || stop <= 0 {
		return fmt.Errorf("%w: entry and stop must be positive", ErrInvalidRiskParameters)
	}
	if entry <= stop {
		return fmt.Errorf("%w: entry %.6f must be above stop %.6f", ErrInvalidRiskParameters, entry, stop)
	}
	pct := StopPct(entry, stop)
	if pct < b.MinStopPct {
		return fmt.Errorf("%w: stop %.2f%% from entry is closer than %.1f%%", ErrInvalidRiskParameters, pct, b.MinStopPct)
	}
	if pct > b.MaxStopPct {
		return fmt.Errorf("%w: stop %.2f%% from entry is further than %.1f%%", ErrInvalidRiskParameters, pct, b.MaxStopPct)
	}
	return nil
}

// Stop placement factors.
const (
	SwingBuffer   = 0.995
	ATRMultiplier = 1.5
)

// StopLoss places the stop at the higher of 0.5% under support and
// 1.5 x ATR under entry.
func StopLoss(support, entry, atr float64) (float64, error) {
	if math.IsNaN(support) || math.IsNaN(atr) || math.IsNaN(entry) {
		return 0, fmt.Errorf("%w: undefined support or ATR", ErrInvalidRiskParameters)
	}
	stop := math.Max(support*SwingBuffer, entry-ATRMultiplier*atr)
	if stop >= entry || stop <= 0 {
		return 0, fmt.Errorf("%w: stop %.6f not in (0, entry %.6f)", ErrInvalidRiskParameters, stop, entry)
	}
	return stop, nil
}
