// Package config loads process configuration from the environment (and an
// optional .env file) and validates it.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
)

// DefaultPairs are seeded into an empty repository.
var DefaultPairs = []string{"ETH/USDC", "BNB/USDC", "XRP/USDC", "SOL/USDC", "ADA/USDC"}

// Config holds all application configuration loaded from environment variables.
type Config struct {
	// Telegram
	BotToken    string
	AdminChatID string

	// Persistence
	DatabaseURL string `validate:"required"`

	// Binance (public market data works without keys)
	BinanceAPIKey    string
	BinanceSecretKey string

	// Scanning
	ScanInterval         time.Duration `validate:"gte=10s"`
	DefaultRiskPct       float64       `validate:"gt=0,lte=5"`
	DefaultPairs         []string      `validate:"min=1,dive,required,contains=/"`
	StrategyMode         string        `validate:"oneof=conservative lenient easy aggressive"`
	MaxConcurrentSignals int           `validate:"gte=0"`
	MaxHolding           time.Duration `validate:"gt=0"`
	SignalExpiry         time.Duration `validate:"gt=0"`
	MinVolume24h         float64       `validate:"gte=0"`
	TrendTimeframe       string        `validate:"oneof=1m 3m 5m 15m 30m 1h 2h 4h 6h 8h 12h 1d"`
	EntryTimeframe       string        `validate:"oneof=1m 3m 5m 15m 30m 1h 2h 4h 6h 8h 12h 1d"`
	ConfirmTimeframe     string        `validate:"oneof=1m 3m 5m 15m 30m 1h 2h 4h 6h 8h 12h 1d"`
	OHLCVLimit           int           `validate:"gte=200,lte=1000"`
	FetchConcurrency     int           `validate:"gte=1,lte=50"`
	FetchTimeout         time.Duration `validate:"gt=0"`

	// Infrastructure
	RedisAddr     string // empty disables cache and pubsub
	RedisPassword string
	CacheTTL      time.Duration `validate:"gt=0"`
	WebhookURL    string        `validate:"omitempty,url"`
	APIAddr       string        `validate:"required"`
	MetricsAddr   string        `validate:"required"`
	LogLevel      string        `validate:"oneof=trace debug info warn error"`
}

// Load reads .env (when present) and the environment, then validates.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("config: load .env: %w", err)
	}
	return FromEnv()
}

// FromEnv builds the config from environment variables only.
func FromEnv() (*Config, error) {
	var errs []error
	cfg := &Config{
		BotToken:    getEnv("BOT_TOKEN", ""),
		AdminChatID: getEnv("TELEGRAM_ADMIN_CHAT_ID", ""),
		DatabaseURL: getEnv("DATABASE_URL", "sqlite://data/signals.db"),

		BinanceAPIKey:    getEnv("BINANCE_API_KEY", ""),
		BinanceSecretKey: getEnv("BINANCE_API_SECRET", ""),

		ScanInterval:         seconds(getEnvInt("SCAN_INTERVAL_SEC", 180, &errs)),
		DefaultRiskPct:       getEnvFloat("DEFAULT_RISK_PCT", 0.7, &errs),
		StrategyMode:         strings.ToLower(getEnv("STRATEGY_MODE", "conservative")),
		MaxConcurrentSignals: getEnvInt("MAX_CONCURRENT_SIGNALS", 3, &errs),
		MaxHolding:           hours(getEnvInt("MAX_HOLDING_HOURS", 24, &errs)),
		SignalExpiry:         hours(getEnvInt("SIGNAL_EXPIRY_HOURS", 8, &errs)),
		MinVolume24h:         getEnvFloat("MIN_VOLUME_24H", 1_000_000, &errs),
		TrendTimeframe:       getEnv("TREND_TIMEFRAME", "1h"),
		EntryTimeframe:       getEnv("ENTRY_TIMEFRAME", "15m"),
		ConfirmTimeframe:     getEnv("CONFIRMATION_TIMEFRAME", "5m"),
		OHLCVLimit:           getEnvInt("OHLCV_LIMIT", 250, &errs),
		FetchConcurrency:     getEnvInt("FETCH_CONCURRENCY", 5, &errs),
		FetchTimeout:         seconds(getEnvInt("FETCH_TIMEOUT_SEC", 10, &errs)),

		RedisAddr:     getEnv("REDIS_ADDR", ""),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		CacheTTL:      seconds(getEnvInt("CACHE_TTL_SEC", 60, &errs)),
		WebhookURL:    getEnv("WEBHOOK_URL", ""),
		APIAddr:       getEnv("API_ADDR", ":8080"),
		MetricsAddr:   getEnv("METRICS_ADDR", ":9090"),
		LogLevel:      strings.ToLower(getEnv("LOG_LEVEL", "info")),
	}

	pairs, err := ParsePairs(getEnv("DEFAULT_PAIRS", ""))
	if err != nil {
		errs = append(errs, err)
	}
	if len(pairs) == 0 {
		pairs = append([]string(nil), DefaultPairs...)
	}
	cfg.DefaultPairs = pairs

	if len(errs) > 0 {
		return nil, errors.Join(errs...)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

var validate = validator.New()

// Validate checks the struct tags and reports every violating field.
func (c *Config) Validate() error {
	err := validate.Struct(c)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return fmt.Errorf("config: %w", err)
	}
	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		msgs = append(msgs, fmt.Sprintf("%s failed %q (value %v)", fe.Namespace(), fe.Tag(), fe.Value()))
	}
	return fmt.Errorf("config: invalid: %s", strings.Join(msgs, "; "))
}

// ParsePairs accepts "ETH/USDC, sol/usdc" or a JSON array. Symbols are
// upper-cased; empty input gives nil.
func ParsePairs(raw string) ([]string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, nil
	}
	var items []string
	if strings.HasPrefix(raw, "[") {
		if err := json.Unmarshal([]byte(raw), &items); err != nil {
			return nil, fmt.Errorf("config: DEFAULT_PAIRS: %w", err)
		}
	} else {
		items = strings.Split(raw, ",")
	}
	out := make([]string, 0, len(items))
	for _, it := range items {
		if s := strings.ToUpper(strings.TrimSpace(it)); s != "" {
			out = append(out, s)
		}
	}
	return out, nil
}

// Timeframes returns trend, entry and confirmation timeframes.
func (c *Config) Timeframes() (trend, entry, confirm string) {
	return c.TrendTimeframe, c.EntryTimeframe, c.ConfirmTimeframe
}

func seconds(n int) time.Duration { return time.Duration(n) * time.Second }
func hours(n int) time.Duration   { return time.Duration(n) * time.Hour }

func getEnv(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok && strings.TrimSpace(v) != "" {
		return strings.TrimSpace(v)
	}
	return fallback
}

func getEnvInt(key string, fallback int, errs *[]error) int {
	v := getEnv(key, "")
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		*errs = append(*errs, fmt.Errorf("config: %s=%q: not an integer", key, v))
		return fallback
	}
	return n
}

func getEnvFloat(key string, fallback float64, errs *[]error) float64 {
	v := getEnv(key, "")
	if v == "" {
		return fallback
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		*errs = append(*errs, fmt.Errorf("config: %s=%q: not a number", key, v))
		return fallback
	}
	return f
}
