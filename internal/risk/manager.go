package risk

import (
	"sync"
	"time"

	"github.com/vladr1050/crypto-long-signals-bot/internal/model"
)

// Limits defines the portfolio-level signal thresholds.
type Limits struct {
	MaxConcurrentSignals int           `json:"max_concurrent_signals"`
	MaxHolding           time.Duration `json:"max_holding"`
}

// DefaultLimits returns the defaults used when settings are absent.
func DefaultLimits() Limits {
	return Limits{
		MaxConcurrentSignals: 3,
		MaxHolding:           24 * time.Hour,
	}
}

// Reasons returned by ShouldGenerateSignal.
const (
	ReasonSymbolLive = "symbol already has a live signal"
	ReasonCapReached = "max concurrent signals reached"
)

// Manager gates new signals against live ones. Limits may be replaced at
// runtime when settings change.
type Manager struct {
	mu     sync.RWMutex
	limits Limits
}

// NewManager creates a Manager with the given limits.
func NewManager(limits Limits) *Manager {
	return &Manager{limits: limits}
}

// SetLimits replaces the limits.
func (m *Manager) SetLimits(l Limits) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.limits = l
}

// Limits returns the current limits.
func (m *Manager) Limits() Limits {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.limits
}

// ShouldGenerateSignal reports whether a new signal for symbol is allowed
// given the currently live signals. Returns false with a reason if not.
func (m *Manager) ShouldGenerateSignal(symbol string, live []model.Signal) (bool, string) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	count := 0
	for _, s := range live {
		if !s.Status.Live() {
			continue
		}
		if s.Symbol == symbol {
			return false, ReasonSymbolLive
		}
		count++
	}
	if m.limits.MaxConcurrentSignals > 0 && count >= m.limits.MaxConcurrentSignals {
		return false, ReasonCapReached
	}
	return true, ""
}

// Overdue returns the live signals held longer than MaxHolding at now.
func (m *Manager) Overdue(live []model.Signal, now time.Time) []model.Signal {
	m.mu.RLock()
	maxHold := m.limits.MaxHolding
	m.mu.RUnlock()
	if maxHold <= 0 {
		return nil
	}
	var out []model.Signal
	for _, s := range live {
		if s.Status.Live() && ShouldExpire(s.CreatedAt, now, maxHold) {
			out = append(out, s)
		}
	}
	return out
}
