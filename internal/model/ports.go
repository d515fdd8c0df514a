package model

import (
	"context"
	"time"
)

// ── Ports ──
// These interfaces decouple the scanner and detectors from concrete exchange,
// storage, and delivery implementations.

// MarketDataProvider fetches OHLCV series.
type MarketDataProvider interface {
	// GetOHLCV returns up to limit bars for one symbol and timeframe.
	GetOHLCV(ctx context.Context, symbol, timeframe string, limit int) (Series, error)

	// GetMultipleOHLCV fetches every symbol x timeframe combination.
	// A symbol whose fetch failed for any timeframe is omitted from the result;
	// the error is non-nil only when the whole call was aborted (e.g. ctx cancelled).
	GetMultipleOHLCV(ctx context.Context, symbols, timeframes []string, limit int) (MarketData, error)
}

// SymbolValidator checks that a symbol is listed and liquid enough to scan.
type SymbolValidator interface {
	ValidateSymbol(ctx context.Context, symbol string) (bool, error)
}

// PairStore persists the scanned pairs.
type PairStore interface {
	ListPairs(ctx context.Context) ([]Pair, error)
	EnabledPairs(ctx context.Context) ([]Pair, error)
	AddPair(ctx context.Context, symbol string) error
	// TogglePair flips the enabled flag and returns the new value.
	TogglePair(ctx context.Context, symbol string) (bool, error)
	// EnsurePairs inserts missing symbols as enabled; existing rows are left as is.
	EnsurePairs(ctx context.Context, symbols []string) error
}

// SignalStore persists signals and their lifecycle.
type SignalStore interface {
	// CreateSignal stores a proposal as a pending signal.
	// Returns ErrLiveSignalExists if the symbol already holds a pending/active signal.
	CreateSignal(ctx context.Context, p SignalProposal) (Signal, error)
	GetSignal(ctx context.Context, id int64) (Signal, error)
	// LiveSignals returns all pending and active signals.
	LiveSignals(ctx context.Context) ([]Signal, error)
	// RecentSignals returns the newest signals of any status.
	RecentSignals(ctx context.Context, limit int) ([]Signal, error)
	// UpdateStatus applies a lifecycle transition, rejecting ones CanTransition forbids.
	UpdateStatus(ctx context.Context, id int64, to Status) error
	// Snooze sets snooze_until; it does not touch status or expiry.
	Snooze(ctx context.Context, id int64, until time.Time) error
	// ExpireSignals moves live signals with expires_at <= now to expired.
	ExpireSignals(ctx context.Context, now time.Time) (int, error)
}

// UserStore persists notification recipients.
type UserStore interface {
	GetOrCreateUser(ctx context.Context, tgID int64, defaultRiskPct float64) (User, error)
	UpdateUser(ctx context.Context, u User) error
	UsersWithSignalsEnabled(ctx context.Context) ([]User, error)
}

// SettingsStore persists process-wide key/value settings.
type SettingsStore interface {
	// GetSetting returns the value and whether the key exists.
	GetSetting(ctx context.Context, key string) (string, bool, error)
	SetSetting(ctx context.Context, key, value string) error
}

// Repository is the full persistence boundary used by the scanner and API.
type Repository interface {
	PairStore
	SignalStore
	UserStore
	SettingsStore

	// Ping checks connectivity.
	Ping(ctx context.Context) error

	// Close releases underlying resources.
	Close() error
}

// Notifier delivers a signal to one recipient.
type Notifier interface {
	SendSignal(ctx context.Context, user User, sig Signal) error
}

// SignalPublisher broadcasts a signal to a recipient-less channel
// (websocket feed, pubsub, webhook).
type SignalPublisher interface {
	PublishSignal(ctx context.Context, sig Signal) error
}
