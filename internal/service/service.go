// Package service wires the scanner process: repository, market data,
// cache, notifiers, publishers, the websocket hub, metrics and the control
// API. It owns their lifecycle.
package service

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	goredis "github.com/go-redis/redis/v8"
	"github.com/rs/zerolog"

	"github.com/vladr1050/crypto-long-signals-bot/config"
	"github.com/vladr1050/crypto-long-signals-bot/internal/api"
	"github.com/vladr1050/crypto-long-signals-bot/internal/bus"
	"github.com/vladr1050/crypto-long-signals-bot/internal/marketdata"
	"github.com/vladr1050/crypto-long-signals-bot/internal/marketdata/binance"
	"github.com/vladr1050/crypto-long-signals-bot/internal/metrics"
	"github.com/vladr1050/crypto-long-signals-bot/internal/model"
	"github.com/vladr1050/crypto-long-signals-bot/internal/notification"
	"github.com/vladr1050/crypto-long-signals-bot/internal/risk"
	"github.com/vladr1050/crypto-long-signals-bot/internal/scanner"
	"github.com/vladr1050/crypto-long-signals-bot/internal/store/redis"
	"github.com/vladr1050/crypto-long-signals-bot/internal/store/sqlstore"
	"github.com/vladr1050/crypto-long-signals-bot/internal/strategy"
)

const (
	livenessInterval = 15 * time.Second
	shutdownTimeout  = 10 * time.Second
	busBuffer        = 256
)

// Service is the top-level orchestrator of the scanner process.
type Service struct {
	cfg    *config.Config
	logger zerolog.Logger

	repo    *sqlstore.Store
	rdb     *goredis.Client // nil when Redis is disabled or unreachable
	feed    *bus.FanOut
	hub     *notification.Hub
	prom    *metrics.Metrics
	health  *metrics.HealthStatus
	scanner *scanner.Scanner
	api     *api.Server
	metrics *metrics.Server
}

// New opens the repository, connects to Redis when configured, builds every
// component and seeds default pairs and settings.
func New(ctx context.Context, cfg *config.Config, logger zerolog.Logger) (*Service, error) {
	svc := &Service{
		cfg:    cfg,
		logger: logger.With().Str("component", "service").Logger(),
		prom:   metrics.NewMetrics(),
		health: metrics.NewHealthStatus(cfg.ScanInterval),
	}

	repo, err := sqlstore.Open(ctx, cfg.DatabaseURL, logger)
	if err != nil {
		return nil, err
	}
	svc.repo = repo

	if err := seed(ctx, repo, cfg); err != nil {
		repo.Close()
		return nil, err
	}

	fetch := marketdata.Options{Concurrency: cfg.FetchConcurrency, Timeout: cfg.FetchTimeout}
	exchange := binance.New(binance.Config{
		APIKey:       cfg.BinanceAPIKey,
		SecretKey:    cfg.BinanceSecretKey,
		MinVolume24h: cfg.MinVolume24h,
		Fetch:        fetch,
		OnBreakerState: func(state int) {
			svc.prom.ExchangeBreakerState.Set(float64(state))
		},
	}, logger)

	var provider model.MarketDataProvider = exchange
	var publishers []model.SignalPublisher

	if cfg.RedisAddr != "" {
		svc.health.SetRedisEnabled(true)
		rdb, err := redis.Connect(ctx, redis.Config{Addr: cfg.RedisAddr, Password: cfg.RedisPassword}, logger)
		if err != nil {
			svc.logger.Warn().Err(err).Msg("redis unavailable, running without cache and pubsub")
		} else {
			svc.rdb = rdb
			provider = redis.NewCache(rdb, exchange, cfg.CacheTTL, fetch, logger)
			publishers = append(publishers, redis.NewPublisher(rdb, logger))
		}
	}

	var (
		notifier model.Notifier
		alerter  notification.Notifier
	)
	if cfg.BotToken != "" {
		tg := notification.NewTelegramNotifier(cfg.BotToken, cfg.AdminChatID, logger).WithMaxHolding(cfg.MaxHolding)
		notifier, alerter = tg, tg
	} else {
		svc.logger.Warn().Msg("BOT_TOKEN not set, signals are written to the log only")
		ln := notification.NewLogNotifier(logger)
		notifier, alerter = ln, ln
	}
	if cfg.WebhookURL != "" {
		publishers = append(publishers, notification.NewWebhookNotifier(cfg.WebhookURL, logger))
	}

	svc.feed = bus.New(busBuffer, logger)
	svc.feed.OnDrop = func(idx int) {
		svc.prom.FanoutDropsTotal.WithLabelValues(strconv.Itoa(idx)).Inc()
	}
	svc.hub = notification.NewHub(logger)
	publishers = append(publishers, svc.feed)

	trend, entry, confirm := cfg.Timeframes()
	scfg := scanner.Config{
		Interval:       cfg.ScanInterval,
		Timeframes:     strategy.Timeframes{Trend: trend, Entry: entry, Confirm: confirm},
		OHLCVLimit:     cfg.OHLCVLimit,
		DefaultRiskPct: cfg.DefaultRiskPct,
		DefaultExpiry:  cfg.SignalExpiry,
		Limits:         risk.Limits{MaxConcurrentSignals: cfg.MaxConcurrentSignals, MaxHolding: cfg.MaxHolding},
	}
	if m, err := model.ParseStrategyMode(cfg.StrategyMode); err == nil {
		scfg.DefaultMode = m
	}
	svc.scanner, err = scanner.New(scfg, scanner.Deps{
		Repo:       repo,
		Provider:   provider,
		Notifier:   notifier,
		Publishers: publishers,
		Alerter:    alerter,
		Metrics:    svc.prom,
		Health:     svc.health,
	}, logger)
	if err != nil {
		svc.close()
		return nil, err
	}

	svc.api = api.NewServer(cfg.APIAddr, api.Deps{
		Repo:           repo,
		Scanner:        svc.scanner,
		Validator:      exchange,
		Stream:         svc.hub.ServeWS,
		DefaultRiskPct: cfg.DefaultRiskPct,
	}, logger)
	svc.metrics = metrics.NewServer(cfg.MetricsAddr, svc.prom, svc.health, logger)

	return svc, nil
}

// seed inserts the default pairs and any setting that is not stored yet.
// Values changed at runtime survive restarts.
func seed(ctx context.Context, repo model.Repository, cfg *config.Config) error {
	if err := repo.EnsurePairs(ctx, cfg.DefaultPairs); err != nil {
		return fmt.Errorf("service: seed pairs: %w", err)
	}
	mode := cfg.StrategyMode
	if m, err := model.ParseStrategyMode(mode); err == nil {
		mode = string(m)
	}
	defaults := []struct{ key, value string }{
		{model.SettingStrategyMode, mode},
		{model.SettingSignalsEnabled, "true"},
		{model.SettingMaxConcurrentSignals, strconv.Itoa(cfg.MaxConcurrentSignals)},
		{model.SettingSignalExpiryHours, strconv.FormatFloat(cfg.SignalExpiry.Hours(), 'f', -1, 64)},
		{model.SettingDefaultRiskPct, strconv.FormatFloat(cfg.DefaultRiskPct, 'f', -1, 64)},
	}
	for _, d := range defaults {
		_, ok, err := repo.GetSetting(ctx, d.key)
		if err != nil {
			return fmt.Errorf("service: seed settings: %w", err)
		}
		if ok {
			continue
		}
		if err := repo.SetSetting(ctx, d.key, d.value); err != nil {
			return fmt.Errorf("service: seed settings: %w", err)
		}
	}
	return nil
}

// Run starts every subsystem and blocks until ctx is cancelled. On the way
// out the scanner is stopped first so an in-flight cycle can finish writing.
func (svc *Service) Run(ctx context.Context) error {
	if err := svc.scanner.Start(ctx); err != nil {
		return err
	}

	go svc.feed.Run(ctx)
	go svc.hub.Run(ctx, svc.feed.Subscribe())
	svc.health.StartLivenessChecker(ctx, svc.repo, svc.rdb, livenessInterval)
	svc.api.Start()
	svc.metrics.Start()

	svc.logger.Info().
		Dur("interval", svc.cfg.ScanInterval).
		Str("mode", svc.cfg.StrategyMode).
		Strs("pairs", svc.cfg.DefaultPairs).
		Str("api", svc.cfg.APIAddr).
		Str("metrics", svc.cfg.MetricsAddr).
		Bool("redis", svc.rdb != nil).
		Msg("signal scanner running")

	<-ctx.Done()
	svc.shutdown()
	return nil
}

func (svc *Service) shutdown() {
	svc.logger.Info().Msg("shutdown signal received, stopping scanner")
	svc.scanner.Stop()

	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := svc.api.Stop(ctx); err != nil && !errors.Is(err, context.DeadlineExceeded) {
		svc.logger.Warn().Err(err).Msg("api shutdown")
	}
	svc.metrics.Stop(ctx)
	svc.close()
	svc.logger.Info().Msg("shutdown complete")
}

func (svc *Service) close() {
	if svc.rdb != nil {
		if err := svc.rdb.Close(); err != nil {
			svc.logger.Warn().Err(err).Msg("close redis")
		}
	}
	if svc.repo != nil {
		if err := svc.repo.Close(); err != nil {
			svc.logger.Warn().Err(err).Msg("close repository")
		}
	}
}
