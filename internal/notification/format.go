package notification

import (
	"bytes"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/vladr1050/crypto-long-signals-bot/internal/model"
	"github.com/vladr1050/crypto-long-signals-bot/internal/risk"
)

// referenceAccount is the account size the position hint is quoted for.
const referenceAccount = 1000.0

// FormatSignal renders sig for user as Telegram MarkdownV2. maxHold is the
// configured holding limit; zero falls back to the default limits.
func FormatSignal(sig model.Signal, user model.User, maxHold time.Duration) string {
	if maxHold <= 0 {
		maxHold = risk.DefaultLimits().MaxHolding
	}
	hold := maxHold.Hours()
	expiry := math.Round(sig.ExpiresAt.Sub(sig.CreatedAt).Hours())
	position := risk.AdaptivePositionSize(referenceAccount, user.RiskPct, sig.Entry, sig.StopLoss) * sig.Entry

	var b strings.Builder
	fmt.Fprintf(&b, "🟢 *%s* %s\n\n",
		escapeMarkdown("LONG Signal ("+sig.Grade.Label()+")"),
		escapeMarkdown(sig.Symbol+" ("+sig.Timeframe+")"))
	fmt.Fprintf(&b, "Entry: %s\n", bold(price(sig.Entry)))
	fmt.Fprintf(&b, "SL: %s %s\n", bold(price(sig.StopLoss)), escapeMarkdown("("+pct(sig.StopLoss, sig.Entry)+")"))
	fmt.Fprintf(&b, "TP1: %s %s\n", bold(price(sig.TakeProfit1)), escapeMarkdown("("+pct(sig.TakeProfit1, sig.Entry)+")"))
	fmt.Fprintf(&b, "TP2: %s %s\n\n", bold(price(sig.TakeProfit2)), escapeMarkdown("("+pct(sig.TakeProfit2, sig.Entry)+")"))
	fmt.Fprintf(&b, "Risk per trade: %s → Position: %s %s\n\n",
		bold(decimal.NewFromFloat(user.RiskPct).String()+"%"),
		bold("$"+decimal.NewFromFloat(position).StringFixed(2)),
		escapeMarkdown(fmt.Sprintf("per $%.0f", referenceAccount)))
	fmt.Fprintf(&b, "Why: %s\n", escapeMarkdown(sig.Reason))
	fmt.Fprintf(&b, "Risk level: %s\n\n", escapeMarkdown(risk.Describe(sig.Grade)))
	fmt.Fprintf(&b, "Expires: %s %s Max hold: %s\n\n",
		bold(fmt.Sprintf("%.0fh", expiry)), escapeMarkdown("|"), bold(fmt.Sprintf("%.0fh", hold)))
	b.WriteString(escapeMarkdown("Note: Move SL to BE at TP1 (50% partial)"))
	b.WriteString("\n\n")
	b.WriteString(escapeMarkdown("⚠️ Spot only. Not financial advice."))
	return b.String()
}

// FormatAlert renders an alert as Telegram MarkdownV2.
func FormatAlert(alert Alert) string {
	emoji := "ℹ️"
	switch alert.Level {
	case AlertWarning:
		emoji = "⚠️"
	case AlertCritical:
		emoji = "🚨"
	}
	return fmt.Sprintf("%s *%s*\n\n%s", emoji, escapeMarkdown(alert.Title), escapeMarkdown(alert.Message))
}

func bold(s string) string { return "*" + escapeMarkdown(s) + "*" }

func price(x float64) string { return decimal.NewFromFloat(x).String() }

// pct is the signed distance of level from entry in percent, one decimal.
func pct(level, entry float64) string {
	if entry == 0 {
		return "0.0%"
	}
	d := decimal.NewFromFloat((level - entry) / entry * 100).Round(1)
	s := d.StringFixed(1)
	if d.IsPositive() {
		s = "+" + s
	}
	return s + "%"
}

// escapeMarkdown escapes special characters for Telegram MarkdownV2.
func escapeMarkdown(s string) string {
	specials := []byte{'_', '*', '[', ']', '(', ')', '~', '`', '>', '#', '+', '-', '=', '|', '{', '}', '.', '!'}
	var buf bytes.Buffer
	for i := 0; i < len(s); i++ {
		for _, sp := range specials {
			if s[i] == sp {
				buf.WriteByte('\\')
				break
			}
		}
		buf.WriteByte(s[i])
	}
	return buf.String()
}
