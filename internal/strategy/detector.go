// Package strategy turns multi-timeframe candle data into long signal
// proposals.
//
// A single Detector runs the shared decision procedure; a Policy value
// selects the trend filter, trigger set, trigger threshold, grading rule,
// horizon and risk bounds of a strategy mode (conservative, lenient or
// aggressive).
package strategy

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"sort"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/vladr1050/crypto-long-signals-bot/internal/indicator"
	"github.com/vladr1050/crypto-long-signals-bot/internal/model"
	"github.com/vladr1050/crypto-long-signals-bot/internal/pattern"
	"github.com/vladr1050/crypto-long-signals-bot/internal/risk"
)

// Abstention reasons. A Detector returns these (or a risk error) from
// DetectSymbol instead of a proposal; none of them fail a batch.
var (
	ErrDataUnavailable     = errors.New("required timeframe missing")
	ErrInsufficientHistory = errors.New("insufficient history")
	ErrTrendFilter         = errors.New("trend filter not met")
	ErrTooFewTriggers      = errors.New("too few triggers")
)

// Timeframes names the three series a detector reads.
type Timeframes struct {
	Trend   string
	Entry   string
	Confirm string
}

// DefaultTimeframes is 1h trend, 15m entry, 5m confirmation.
var DefaultTimeframes = Timeframes{Trend: "1h", Entry: "15m", Confirm: "5m"}

// List returns the timeframes in fetch order.
func (t Timeframes) List() []string {
	return []string{t.Trend, t.Entry, t.Confirm}
}

// Config holds the non-policy settings of a Detector.
type Config struct {
	Timeframes     Timeframes
	DefaultRiskPct float64
	// Workers bounds parallel symbol evaluation; 0 uses GOMAXPROCS.
	Workers int
	Now     func() time.Time
}

// Detector evaluates one Policy over market data.
type Detector struct {
	policy Policy
	cfg    Config
	logger zerolog.Logger
}

// NewDetector creates a Detector. Zero config fields take defaults.
func NewDetector(p Policy, cfg Config, logger zerolog.Logger) *Detector {
	if cfg.Timeframes == (Timeframes{}) {
		cfg.Timeframes = DefaultTimeframes
	}
	if cfg.DefaultRiskPct <= 0 {
		cfg.DefaultRiskPct = 0.7
	}
	if cfg.Workers <= 0 {
		cfg.Workers = runtime.GOMAXPROCS(0)
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Detector{
		policy: p,
		cfg:    cfg,
		logger: logger.With().Str("component", "detector").Str("mode", string(p.Mode)).Logger(),
	}
}

// Mode returns the policy mode.
func (d *Detector) Mode() model.StrategyMode { return d.policy.Mode }

// Policy returns the detector's policy.
func (d *Detector) Policy() Policy { return d.policy }

// DetectSignals evaluates every symbol independently and in parallel and
// returns the proposals sorted by symbol. Abstentions are logged at debug
// level; a panic in one symbol is recovered and logged without affecting the
// others. riskPct <= 0 selects the configured default. Only context
// cancellation is returned as an error.
func (d *Detector) DetectSignals(ctx context.Context, data model.MarketData, riskPct float64) ([]model.SignalProposal, error) {
	symbols := data.Symbols()
	sort.Strings(symbols)
	results := make([]*model.SignalProposal, len(symbols))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(d.cfg.Workers)
	for i, sym := range symbols {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			results[i] = d.safeDetect(sym, data[sym], riskPct)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	out := make([]model.SignalProposal, 0, len(results))
	for _, p := range results {
		if p != nil {
			out = append(out, *p)
		}
	}
	return out, nil
}

func (d *Detector) safeDetect(symbol string, tfs map[string]model.Series, riskPct float64) (p *model.SignalProposal) {
	defer func() {
		if r := recover(); r != nil {
			d.logger.Error().Str("symbol", symbol).Interface("panic", r).Msg("detector panic recovered")
			p = nil
		}
	}()

	p, err := d.DetectSymbol(symbol, tfs, riskPct)
	if err != nil {
		ev := d.logger.Debug()
		if errors.Is(err, risk.ErrInvalidRiskParameters) {
			ev = d.logger.Warn()
		}
		ev.Str("symbol", symbol).Err(err).Msg("no signal")
		return nil
	}
	d.logger.Info().
		Str("symbol", symbol).
		Str("grade", string(p.Grade)).
		Float64("rr", p.RiskReward).
		Strs("triggers", p.Triggers).
		Msg("signal detected")
	return p
}

// DetectSymbol runs the policy for one symbol. It returns a proposal or the
// reason for abstaining.
func (d *Detector) DetectSymbol(symbol string, tfs map[string]model.Series, riskPct float64) (*model.SignalProposal, error) {
	p := d.policy
	tf := d.cfg.Timeframes
	if riskPct <= 0 {
		riskPct = d.cfg.DefaultRiskPct
	}

	trend, ok1 := tfs[tf.Trend]
	entry, ok2 := tfs[tf.Entry]
	confirm, ok3 := tfs[tf.Confirm]
	if !ok1 || !ok2 || !ok3 || trend.Len() == 0 || entry.Len() == 0 || confirm.Len() == 0 {
		return nil, fmt.Errorf("%s: %w", symbol, ErrDataUnavailable)
	}
	if trend.Len() < p.MinBars.Trend || entry.Len() < p.MinBars.Entry || confirm.Len() < p.MinBars.Confirm {
		return nil, fmt.Errorf("%s: %w (%d/%d/%d bars)", symbol, ErrInsufficientHistory,
			trend.Len(), entry.Len(), confirm.Len())
	}

	fs := Frames{
		Trend:   indicator.NewFrame(trend),
		Entry:   indicator.NewFrame(entry),
		Confirm: indicator.NewFrame(confirm),
	}
	if !p.TrendFilter(fs) {
		return nil, fmt.Errorf("%s: %w", symbol, ErrTrendFilter)
	}

	var fired []Trigger
	for _, t := range p.Triggers {
		if t.Eval(fs) {
			fired = append(fired, t)
		}
	}
	if len(fired) < p.MinTriggers {
		return nil, fmt.Errorf("%s: %w (%d of %d)", symbol, ErrTooFewTriggers, len(fired), p.MinTriggers)
	}

	price := fs.Entry.Close()
	stop, err := risk.StopLoss(
		pattern.Support(fs.Entry, SupportLookback),
		price,
		indicator.Last(fs.Entry.ATR(ATRPeriod)),
	)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", symbol, err)
	}
	if err := risk.Validate(riskPct, price, stop, p.Bounds); err != nil {
		return nil, fmt.Errorf("%s: %w", symbol, err)
	}
	targets := risk.TakeProfits(price, stop, nil)

	grade := p.Grade(Setup{Frames: fs, Fired: fired, Entry: price, Stop: stop, Targets: targets})
	now := d.cfg.Now().UTC()

	prop := &model.SignalProposal{
		Symbol:      symbol,
		Timeframe:   tf.Entry,
		Entry:       risk.Round(price, risk.PricePlaces),
		StopLoss:    risk.Round(stop, risk.PricePlaces),
		TakeProfit1: risk.Round(targets.TP1, risk.PricePlaces),
		TakeProfit2: risk.Round(targets.TP2, risk.PricePlaces),
		Grade:       grade,
		RiskPct:     riskPct,
		RiskReward:  risk.Round(risk.RiskReward(price, stop, targets.TP1), risk.RatioPlaces),
		Triggers:    names(fired),
		Reason:      p.Reason(grade, fired),
		Mode:        p.Mode,
		CreatedAt:   now,
		ExpiresAt:   risk.Expiry(now, p.Horizon),
	}
	if err := prop.Validate(); err != nil {
		return nil, fmt.Errorf("%s: %w: %v", symbol, risk.ErrInvalidRiskParameters, err)
	}
	return prop, nil
}
