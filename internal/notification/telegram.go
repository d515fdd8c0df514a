package notification

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/rs/zerolog"

	"github.com/vladr1050/crypto-long-signals-bot/internal/model"
)

// DefaultTelegramAPI is the Bot API base URL.
const DefaultTelegramAPI = "https://api.telegram.org"

// TelegramNotifier sends signals to users and alerts to the admin chat via
// the Telegram Bot API.
type TelegramNotifier struct {
	botToken    string
	adminChatID string
	baseURL     string
	maxHold     time.Duration
	client      *http.Client
	logger      zerolog.Logger
}

var (
	_ Notifier       = (*TelegramNotifier)(nil)
	_ model.Notifier = (*TelegramNotifier)(nil)
)

// NewTelegramNotifier creates a Telegram notifier.
// botToken: Bot API token from @BotFather
// adminChatID: chat that receives operational alerts (may be empty)
func NewTelegramNotifier(botToken, adminChatID string, logger zerolog.Logger) *TelegramNotifier {
	return &TelegramNotifier{
		botToken:    botToken,
		adminChatID: adminChatID,
		baseURL:     DefaultTelegramAPI,
		client: &http.Client{
			Timeout: 10 * time.Second,
		},
		logger: logger.With().Str("component", "telegram").Logger(),
	}
}

// WithBaseURL points the notifier at another Bot API endpoint.
func (t *TelegramNotifier) WithBaseURL(u string) *TelegramNotifier {
	t.baseURL = u
	return t
}

// WithMaxHolding sets the holding limit quoted in signal messages.
func (t *TelegramNotifier) WithMaxHolding(d time.Duration) *TelegramNotifier {
	t.maxHold = d
	return t
}

// Send delivers an alert to the admin chat. Without an admin chat it is a no-op.
func (t *TelegramNotifier) Send(ctx context.Context, alert Alert) error {
	if t.adminChatID == "" {
		return nil
	}
	if err := t.sendMessage(ctx, t.adminChatID, FormatAlert(alert)); err != nil {
		return err
	}
	t.logger.Info().Str("title", alert.Title).Msg("sent alert")
	return nil
}

// SendSignal delivers sig to user.
func (t *TelegramNotifier) SendSignal(ctx context.Context, user model.User, sig model.Signal) error {
	chatID := strconv.FormatInt(user.TelegramID, 10)
	if err := t.sendMessage(ctx, chatID, FormatSignal(sig, user, t.maxHold)); err != nil {
		return err
	}
	t.logger.Info().Int64("user", user.TelegramID).Str("symbol", sig.Symbol).
		Str("grade", string(sig.Grade)).Msg("signal sent")
	return nil
}

// Name identifies the channel in logs and metrics.
func (t *TelegramNotifier) Name() string { return "telegram" }

type telegramResponse struct {
	OK          bool   `json:"ok"`
	Description string `json:"description"`
}

func (t *TelegramNotifier) sendMessage(ctx context.Context, chatID, text string) error {
	body, err := json.Marshal(map[string]interface{}{
		"chat_id":    chatID,
		"text":       text,
		"parse_mode": "MarkdownV2",
	})
	if err != nil {
		return fmt.Errorf("telegram: marshal: %w", err)
	}

	url := fmt.Sprintf("%s/bot%s/sendMessage", t.baseURL, t.botToken)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("telegram: create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := t.client.Do(req)
	if err != nil {
		return fmt.Errorf("telegram: send: %w", err)
	}
	defer resp.Body.Close()

	var tr telegramResponse
	_ = json.NewDecoder(resp.Body).Decode(&tr)
	if resp.StatusCode != http.StatusOK || !tr.OK {
		return fmt.Errorf("telegram: unexpected status %d: %s", resp.StatusCode, tr.Description)
	}
	return nil
}
