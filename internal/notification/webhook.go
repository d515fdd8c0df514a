package notification

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"github.com/vladr1050/crypto-long-signals-bot/internal/model"
)

// WebhookNotifier POSTs alerts and new signals to a generic HTTP endpoint.
type WebhookNotifier struct {
	url    string
	client *http.Client
	logger zerolog.Logger
}

var (
	_ Notifier              = (*WebhookNotifier)(nil)
	_ model.SignalPublisher = (*WebhookNotifier)(nil)
)

// NewWebhookNotifier creates a webhook notifier.
// url: The HTTP endpoint to POST to.
func NewWebhookNotifier(url string, logger zerolog.Logger) *WebhookNotifier {
	return &WebhookNotifier{
		url: url,
		client: &http.Client{
			Timeout: 10 * time.Second,
		},
		logger: logger.With().Str("component", "webhook").Logger(),
	}
}

func (w *WebhookNotifier) Send(ctx context.Context, alert Alert) error {
	return w.post(ctx, map[string]interface{}{
		"type":    "alert",
		"level":   string(alert.Level),
		"title":   alert.Title,
		"message": alert.Message,
		"ts":      time.Now().UTC().Format(time.RFC3339Nano),
	})
}

// PublishSignal posts {"type":"signal","signal":...}.
func (w *WebhookNotifier) PublishSignal(ctx context.Context, sig model.Signal) error {
	if err := w.post(ctx, map[string]interface{}{
		"type":   "signal",
		"signal": sig,
		"ts":     time.Now().UTC().Format(time.RFC3339Nano),
	}); err != nil {
		return err
	}
	w.logger.Info().Str("symbol", sig.Symbol).Int64("signal_id", sig.ID).Msg("signal posted")
	return nil
}

// Name identifies the channel in logs and metrics.
func (w *WebhookNotifier) Name() string { return "webhook" }

func (w *WebhookNotifier) post(ctx context.Context, payload interface{}) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("webhook: marshal: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("webhook: create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := w.client.Do(req)
	if err != nil {
		return fmt.Errorf("webhook: send: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("webhook: unexpected status %d", resp.StatusCode)
	}
	return nil
}
