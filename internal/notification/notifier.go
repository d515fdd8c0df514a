// Package notification delivers signals and operational alerts to external
// channels (Telegram, webhooks, websocket clients, logs).
package notification

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/vladr1050/crypto-long-signals-bot/internal/model"
)

// AlertLevel represents the severity of an alert.
type AlertLevel string

const (
	AlertInfo     AlertLevel = "INFO"
	AlertWarning  AlertLevel = "WARNING"
	AlertCritical AlertLevel = "CRITICAL"
)

// Alert is an operational notification, e.g. a failed scan cycle.
type Alert struct {
	Level   AlertLevel `json:"level"`
	Title   string     `json:"title"`
	Message string     `json:"message"`
}

// Notifier is the interface for all alert backends.
type Notifier interface {
	// Send delivers an alert. Returns error if delivery fails.
	Send(ctx context.Context, alert Alert) error
}

// LogNotifier writes alerts and signals to the log. It is the fallback
// channel when no bot token is configured.
type LogNotifier struct {
	logger zerolog.Logger
}

var (
	_ Notifier       = (*LogNotifier)(nil)
	_ model.Notifier = (*LogNotifier)(nil)
)

// NewLogNotifier creates a log-based notifier.
func NewLogNotifier(logger zerolog.Logger) *LogNotifier {
	return &LogNotifier{logger: logger.With().Str("component", "notify").Logger()}
}

func (n *LogNotifier) Send(ctx context.Context, alert Alert) error {
	ev := n.logger.Info()
	switch alert.Level {
	case AlertWarning:
		ev = n.logger.Warn()
	case AlertCritical:
		ev = n.logger.Error()
	}
	ev.Str("title", alert.Title).Msg(alert.Message)
	return nil
}

// Name identifies the channel in logs and metrics.
func (n *LogNotifier) Name() string { return "log" }

func (n *LogNotifier) SendSignal(ctx context.Context, user model.User, sig model.Signal) error {
	n.logger.Info().
		Int64("user", user.TelegramID).
		Int64("signal_id", sig.ID).
		Str("symbol", sig.Symbol).
		Str("grade", string(sig.Grade)).
		Float64("entry", sig.Entry).
		Float64("stop", sig.StopLoss).
		Float64("tp1", sig.TakeProfit1).
		Float64("tp2", sig.TakeProfit2).
		Str("reason", sig.Reason).
		Msg("signal")
	return nil
}
