package model

import (
	"errors"
	"fmt"
	"time"
)

var (
	// ErrNotFound is returned by stores when a record does not exist.
	ErrNotFound = errors.New("not found")
	// ErrLiveSignalExists is returned when a symbol already holds a pending or active signal.
	ErrLiveSignalExists = errors.New("live signal already exists for symbol")
	// ErrInvalidTransition is returned for a status change the lifecycle does not allow.
	ErrInvalidTransition = errors.New("invalid signal status transition")
)

// Grade is the A/B/C conviction of a signal.
type Grade string

const (
	GradeA Grade = "A"
	GradeB Grade = "B"
	GradeC Grade = "C"
)

// Rank orders grades so that A > B > C. Unknown grades rank 0.
func (g Grade) Rank() int {
	switch g {
	case GradeA:
		return 3
	case GradeB:
		return 2
	case GradeC:
		return 1
	}
	return 0
}

// Label is the short human label used in messages.
func (g Grade) Label() string {
	switch g {
	case GradeA:
		return "Strong"
	case GradeB:
		return "Good"
	case GradeC:
		return "High-risk"
	}
	return string(g)
}

// StrategyMode selects the detector policy used by a scan cycle.
type StrategyMode string

const (
	ModeConservative StrategyMode = "conservative"
	ModeLenient      StrategyMode = "lenient"
	ModeAggressive   StrategyMode = "aggressive"
)

// ParseStrategyMode validates a mode string. "easy" is accepted as an alias of lenient.
func ParseStrategyMode(s string) (StrategyMode, error) {
	switch StrategyMode(s) {
	case ModeConservative, ModeLenient, ModeAggressive:
		return StrategyMode(s), nil
	case "easy":
		return ModeLenient, nil
	}
	return "", fmt.Errorf("unknown strategy mode %q", s)
}

// SignalProposal is a detector's output before persistence.
type SignalProposal struct {
	Symbol      string       `json:"symbol"`
	Timeframe   string       `json:"timeframe"`
	Entry       float64      `json:"entry_price"`
	StopLoss    float64      `json:"stop_loss"`
	TakeProfit1 float64      `json:"take_profit_1"`
	TakeProfit2 float64      `json:"take_profit_2"`
	Grade       Grade        `json:"grade"`
	RiskPct     float64      `json:"risk_pct"`
	RiskReward  float64      `json:"risk_reward_ratio"`
	Triggers    []string     `json:"triggers"`
	Reason      string       `json:"reason"`
	Mode        StrategyMode `json:"mode"`
	CreatedAt   time.Time    `json:"created_at"`
	ExpiresAt   time.Time    `json:"expires_at"`
}

// Validate checks the price ladder and time window of a proposal.
func (p SignalProposal) Validate() error {
	switch {
	case p.Symbol == "":
		return errors.New("proposal: empty symbol")
	case !(p.StopLoss > 0 && p.StopLoss < p.Entry):
		return fmt.Errorf("proposal %s: stop %.6f must be in (0, entry %.6f)", p.Symbol, p.StopLoss, p.Entry)
	case !(p.Entry < p.TakeProfit1 && p.TakeProfit1 < p.TakeProfit2):
		return fmt.Errorf("proposal %s: targets %.6f/%.6f must ascend above entry %.6f",
			p.Symbol, p.TakeProfit1, p.TakeProfit2, p.Entry)
	case !p.ExpiresAt.After(p.CreatedAt):
		return fmt.Errorf("proposal %s: expires_at must be after created_at", p.Symbol)
	}
	return nil
}

// Status is the persisted lifecycle state of a signal.
type Status string

const (
	StatusPending   Status = "pending"
	StatusActive    Status = "active"
	StatusTriggered Status = "triggered"
	StatusExpired   Status = "expired"
	StatusCancelled Status = "cancelled"
)

// Live reports whether the status is pending or active.
func (s Status) Live() bool {
	return s == StatusPending || s == StatusActive
}

// CanTransition reports whether from -> to is allowed.
// pending -> active|expired, active -> triggered|expired, anything not yet cancelled -> cancelled.
func CanTransition(from, to Status) bool {
	if to == StatusCancelled {
		return from != StatusCancelled
	}
	switch from {
	case StatusPending:
		return to == StatusActive || to == StatusExpired
	case StatusActive:
		return to == StatusTriggered || to == StatusExpired
	}
	return false
}

// Signal is a persisted proposal with lifecycle state.
type Signal struct {
	ID int64 `json:"id"`
	SignalProposal
	Status      Status     `json:"status"`
	SnoozeUntil *time.Time `json:"snooze_until,omitempty"`
	UpdatedAt   time.Time  `json:"updated_at"`
}

// Snoozed reports whether notifications for the signal are suppressed at now.
// Snoozing never changes Status or ExpiresAt.
func (s Signal) Snoozed(now time.Time) bool {
	return s.SnoozeUntil != nil && now.Before(*s.SnoozeUntil)
}

// Pair is a tradable symbol the scanner may evaluate.
type Pair struct {
	Symbol    string    `json:"symbol"`
	Enabled   bool      `json:"enabled"`
	CreatedAt time.Time `json:"created_at"`
}

// User is a notification recipient.
type User struct {
	TelegramID     int64     `json:"tg_id"`
	RiskPct        float64   `json:"risk_pct"`
	SignalsEnabled bool      `json:"signals_enabled"`
	CreatedAt      time.Time `json:"created_at"`
}

// Persisted setting keys.
const (
	SettingStrategyMode         = "strategy_mode"
	SettingSignalsEnabled       = "signals_enabled"
	SettingMaxConcurrentSignals = "max_concurrent_signals"
	SettingSignalExpiryHours    = "signal_expiry_hours"
	SettingDefaultRiskPct       = "default_risk_pct"
)
