// Package scanner runs the periodic scan cycle: fetch candles for enabled
// pairs without a live signal, detect, dedupe, persist, notify, publish and
// expire. One symbol's failure never aborts the cycle.
package scanner

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/vladr1050/crypto-long-signals-bot/internal/metrics"
	"github.com/vladr1050/crypto-long-signals-bot/internal/model"
	"github.com/vladr1050/crypto-long-signals-bot/internal/notification"
	"github.com/vladr1050/crypto-long-signals-bot/internal/risk"
	"github.com/vladr1050/crypto-long-signals-bot/internal/strategy"
)

var (
	ErrAlreadyRunning = errors.New("scanner already running")
	ErrNotLive        = errors.New("signal is not live")
	ErrSnoozed        = errors.New("signal is snoozed")
)

// SignalDetector turns market data into proposals.
type SignalDetector interface {
	DetectSignals(ctx context.Context, data model.MarketData, riskPct float64) ([]model.SignalProposal, error)
}

// DetectorFactory builds the detector of a cycle from the persisted mode and expiry.
type DetectorFactory func(mode model.StrategyMode, expiry time.Duration) SignalDetector

// Config holds scanner settings. Zero fields take defaults.
type Config struct {
	Interval       time.Duration // default 180s
	Timeframes     strategy.Timeframes
	OHLCVLimit     int     // default 250
	DefaultRiskPct float64 // default 0.7
	DefaultMode    model.StrategyMode
	DefaultExpiry  time.Duration // default 8h
	Limits         risk.Limits
	Now            func() time.Time
}

func (c Config) withDefaults() Config {
	if c.Interval <= 0 {
		c.Interval = 180 * time.Second
	}
	if c.Timeframes == (strategy.Timeframes{}) {
		c.Timeframes = strategy.DefaultTimeframes
	}
	if c.OHLCVLimit <= 0 {
		c.OHLCVLimit = 250
	}
	if c.DefaultRiskPct <= 0 {
		c.DefaultRiskPct = 0.7
	}
	if c.DefaultMode == "" {
		c.DefaultMode = model.ModeConservative
	}
	if c.DefaultExpiry <= 0 {
		c.DefaultExpiry = 8 * time.Hour
	}
	if c.Limits == (risk.Limits{}) {
		c.Limits = risk.DefaultLimits()
	}
	if c.Now == nil {
		c.Now = time.Now
	}
	return c
}

// Deps are the ports the scanner drives. Repo and Provider are required.
type Deps struct {
	Repo       model.Repository
	Provider   model.MarketDataProvider
	Notifier   model.Notifier
	Publishers []model.SignalPublisher
	Alerter    notification.Notifier
	Detectors  DetectorFactory
	Metrics    *metrics.Metrics
	Health     *metrics.HealthStatus
}

// Scanner schedules and runs scan cycles. Cycles are serialized: a forced
// scan waits for a scheduled one in progress and vice versa.
type Scanner struct {
	cfg    Config
	deps   Deps
	risk   *risk.Manager
	logger zerolog.Logger

	cycleMu sync.Mutex

	mu       sync.RWMutex
	running  bool
	stop     chan struct{}
	nextScan time.Time
	stats    stats

	wg sync.WaitGroup
}

// New creates a Scanner.
func New(cfg Config, deps Deps, logger zerolog.Logger) (*Scanner, error) {
	if deps.Repo == nil || deps.Provider == nil {
		return nil, errors.New("scanner: repository and market data provider are required")
	}
	cfg = cfg.withDefaults()
	if deps.Detectors == nil {
		deps.Detectors = StrategyDetectors(cfg, logger)
	}
	return &Scanner{
		cfg:    cfg,
		deps:   deps,
		risk:   risk.NewManager(cfg.Limits),
		logger: logger.With().Str("component", "scanner").Logger(),
	}, nil
}

// StrategyDetectors returns the factory backed by strategy.Detector.
func StrategyDetectors(cfg Config, logger zerolog.Logger) DetectorFactory {
	cfg = cfg.withDefaults()
	return func(mode model.StrategyMode, expiry time.Duration) SignalDetector {
		return strategy.NewDetector(strategy.PolicyFor(mode, expiry), strategy.Config{
			Timeframes:     cfg.Timeframes,
			DefaultRiskPct: cfg.DefaultRiskPct,
			Now:            cfg.Now,
		}, logger)
	}
}

// Start runs a cycle immediately and then every Interval until ctx is
// cancelled or Stop is called. Cancelling ctx stops scheduling but a cycle
// already running completes, so persisted signals still get delivered and
// activated.
func (s *Scanner) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return ErrAlreadyRunning
	}
	s.running = true
	s.stop = make(chan struct{})
	stop := s.stop
	s.mu.Unlock()

	s.logger.Info().Dur("interval", s.cfg.Interval).Msg("scanner started")

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer func() {
			s.mu.Lock()
			s.running = false
			s.mu.Unlock()
		}()

		ticker := time.NewTicker(s.cfg.Interval)
		defer ticker.Stop()

		cycleCtx := context.WithoutCancel(ctx)
		s.scheduled(cycleCtx)
		for {
			select {
			case <-ctx.Done():
				return
			case <-stop:
				return
			case <-ticker.C:
				s.scheduled(cycleCtx)
			}
		}
	}()
	return nil
}

func (s *Scanner) scheduled(ctx context.Context) {
	s.mu.Lock()
	s.nextScan = s.cfg.Now().Add(s.cfg.Interval)
	s.mu.Unlock()
	if _, err := s.runCycle(ctx); err != nil {
		s.logger.Error().Err(err).Msg("scan cycle failed, retrying next tick")
	}
}

// Stop stops scheduling and waits for an in-flight cycle to finish.
func (s *Scanner) Stop() {
	s.mu.Lock()
	if s.running && s.stop != nil {
		close(s.stop)
		s.stop = nil
	}
	s.mu.Unlock()
	s.wg.Wait()
	s.logger.Info().Msg("scanner stopped")
}

// ForceScan runs one cycle now.
func (s *Scanner) ForceScan(ctx context.Context) (CycleReport, error) {
	return s.runCycle(ctx)
}

// Renotify resends a live, non-snoozed signal to every opted-in user and
// returns the number of successful deliveries.
func (s *Scanner) Renotify(ctx context.Context, id int64) (int, error) {
	sig, err := s.deps.Repo.GetSignal(ctx, id)
	if err != nil {
		return 0, err
	}
	if !sig.Status.Live() {
		return 0, fmt.Errorf("signal %d (%s): %w", id, sig.Status, ErrNotLive)
	}
	if sig.Snoozed(s.cfg.Now()) {
		return 0, fmt.Errorf("signal %d until %s: %w", id, sig.SnoozeUntil.Format(time.RFC3339), ErrSnoozed)
	}
	users, err := s.deps.Repo.UsersWithSignalsEnabled(ctx)
	if err != nil {
		return 0, fmt.Errorf("scanner: load users: %w", err)
	}
	ok, _ := s.deliver(ctx, sig, users, s.logger)
	return ok, nil
}

// Mode returns the persisted strategy mode, or the configured default.
func (s *Scanner) Mode(ctx context.Context) (model.StrategyMode, error) {
	set, err := s.loadSettings(ctx)
	if err != nil {
		return "", err
	}
	return set.mode, nil
}

// SetMode persists the strategy mode used from the next cycle on.
func (s *Scanner) SetMode(ctx context.Context, mode string) (model.StrategyMode, error) {
	m, err := model.ParseStrategyMode(mode)
	if err != nil {
		return "", err
	}
	if err := s.deps.Repo.SetSetting(ctx, model.SettingStrategyMode, string(m)); err != nil {
		return "", err
	}
	s.logger.Info().Str("mode", string(m)).Msg("strategy mode changed")
	return m, nil
}
