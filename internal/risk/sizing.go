// Package risk sizes positions, places stops and targets, validates risk
// parameters and grades signals.
package risk

import (
	"math"
	"time"

	"github.com/shopspring/decimal"
)

// Rounding precision for persisted prices and ratios.
const (
	PricePlaces = 6
	RatioPlaces = 2
)

// PositionSize returns the base-asset quantity that loses riskPct of account
// when price travels from entry to stop. Zero when entry <= stop.
func PositionSize(account, riskPct, entry, stop float64) float64 {
	if entry <= stop {
		return 0
	}
	riskAmount := account * riskPct / 100
	return riskAmount / (entry - stop)
}

// AdaptivePositionSize scales the position by how the user's risk compares
// with the market risk of the stop distance. Zero when entry <= stop.
func AdaptivePositionSize(account, userRiskPct, entry, stop float64) float64 {
	if entry <= stop || entry <= 0 {
		return 0
	}
	realRiskPct := (entry - stop) / entry * 100
	positionValue := account * userRiskPct / realRiskPct
	return positionValue / entry
}

// MaxPositionValue is the quote-currency value of PositionSize.
func MaxPositionValue(account, riskPct, entry, stop float64) float64 {
	return PositionSize(account, riskPct, entry, stop) * entry
}

// Targets holds the two take-profit levels.
type Targets struct {
	TP1 float64 `json:"take_profit_1"`
	TP2 float64 `json:"take_profit_2"`
}

// TakeProfits returns explicit when supplied, otherwise 1R and 2R above entry.
// A degenerate entry <= stop returns entry for both.
func TakeProfits(entry, stop float64, explicit *Targets) Targets {
	if entry <= stop {
		return Targets{TP1: entry, TP2: entry}
	}
	if explicit != nil {
		return *explicit
	}
	r := entry - stop
	return Targets{TP1: entry + r, TP2: entry + 2*r}
}

// RiskReward returns reward/risk for a target, or 0 when risk is not positive.
func RiskReward(entry, stop, target float64) float64 {
	if entry <= stop {
		return 0
	}
	return (target - entry) / (entry - stop)
}

// StopPct is the stop distance as a percentage of entry.
func StopPct(entry, stop float64) float64 {
	if entry == 0 {
		return 0
	}
	return (entry - stop) / entry * 100
}

// Round rounds x half away from zero to places decimals.
func Round(x float64, places int32) float64 {
	if math.IsNaN(x) || math.IsInf(x, 0) {
		return x
	}
	f, _ := decimal.NewFromFloat(x).Round(places).Float64()
	return f
}

// Expiry is created + horizon.
func Expiry(created time.Time, horizon time.Duration) time.Time {
	return created.Add(horizon)
}

// ShouldExpire reports whether a signal created at created has been held
// longer than maxHold at now.
func ShouldExpire(created, now time.Time, maxHold time.Duration) bool {
	return now.Sub(created) > maxHold
}
