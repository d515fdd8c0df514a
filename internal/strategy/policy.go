package strategy

import (
	"strings"
	"time"

	"github.com/vladr1050/crypto-long-signals-bot/internal/indicator"
	"github.com/vladr1050/crypto-long-signals-bot/internal/model"
	"github.com/vladr1050/crypto-long-signals-bot/internal/pattern"
	"github.com/vladr1050/crypto-long-signals-bot/internal/risk"
)

// Frames holds the three timeframe views of one symbol.
type Frames struct {
	Trend   *indicator.Frame
	Entry   *indicator.Frame
	Confirm *indicator.Frame
}

// Trigger is one named entry condition.
type Trigger struct {
	Name  string
	Label string
	Eval  func(Frames) bool
}

// MinBars is the minimum history per timeframe before a policy evaluates.
type MinBars struct {
	Trend   int
	Entry   int
	Confirm int
}

// Setup carries the computed levels a grading rule may inspect.
type Setup struct {
	Frames  Frames
	Fired   []Trigger
	Entry   float64
	Stop    float64
	Targets risk.Targets
}

// Policy is the mode-specific configuration of the Detector.
type Policy struct {
	Mode        model.StrategyMode
	MinBars     MinBars
	TrendFilter func(Frames) bool
	Triggers    []Trigger
	MinTriggers int
	Grade       func(Setup) model.Grade
	Horizon     time.Duration
	Bounds      risk.Bounds
	Reason      func(model.Grade, []Trigger) string
}

// Supporting lookbacks for stop placement.
const (
	SupportLookback = 20
	ATRPeriod       = 14

	// MaxHolding is the longest a conservative signal may be held.
	MaxHolding = 24 * time.Hour
)

// Conservative requires the full trend gate and at least two of four
// structural triggers. Signals expire after expiry (8h when zero).
func Conservative(expiry time.Duration) Policy {
	if expiry <= 0 {
		expiry = 8 * time.Hour
	}
	return Policy{
		Mode:    model.ModeConservative,
		MinBars: MinBars{Trend: 200, Entry: 50, Confirm: 20},
		TrendFilter: func(fs Frames) bool {
			return pattern.TrendBullish(fs.Trend, fs.Entry) && pattern.RSINeutralBullish(fs.Trend)
		},
		Triggers: []Trigger{
			{Name: "breakout_retest", Label: "Breakout & retest of resistance",
				Eval: func(fs Frames) bool { return pattern.BreakoutRetest(fs.Entry) }},
			{Name: "bb_squeeze_expansion", Label: "BB squeeze expansion + volume",
				Eval: func(fs Frames) bool { return pattern.BBSqueezeExpansion(fs.Entry) }},
			{Name: "ema_crossover", Label: "EMA crossover above EMA50",
				Eval: func(fs Frames) bool { return pattern.EMACrossover(fs.Entry) }},
			{Name: "bullish_candle", Label: "Bullish candle + volume",
				Eval: func(fs Frames) bool { return pattern.BullishCandle(fs.Confirm, 1.1) }},
		},
		MinTriggers: 2,
		Grade:       heuristicGrade,
		Horizon:     expiry,
		Bounds:      risk.StrictBounds,
		Reason: func(g model.Grade, fired []Trigger) string {
			return setupLabel(g) + ": " + joinAnd(labels(fired))
		},
	}
}

// Lenient has no trend gate and fires on any single momentum trigger.
// Signals are always graded B.
func Lenient() Policy {
	return Policy{
		Mode:        model.ModeLenient,
		MinBars:     MinBars{Trend: 200, Entry: 50, Confirm: 20},
		TrendFilter: func(Frames) bool { return true },
		Triggers: []Trigger{
			{Name: "easy_ema_crossover", Label: "EMA9/EMA21 crossover",
				Eval: func(fs Frames) bool { return pattern.EMACrossUp(fs.Entry, pattern.EMAFast, pattern.EMASlow) }},
			{Name: "price_above_ema9", Label: "Price above EMA9",
				Eval: func(fs Frames) bool { return pattern.PriceAboveEMA9(fs.Entry) }},
			{Name: "volume_increase", Label: "Volume increase",
				Eval: func(fs Frames) bool { return pattern.VolumeAbove(fs.Entry, pattern.VolumeMA, 1.1) }},
			{Name: "bullish_candle", Label: "Bullish candle",
				Eval: func(fs Frames) bool { return pattern.BullishCandle(fs.Confirm, 0) }},
		},
		MinTriggers: 1,
		Grade:       func(Setup) model.Grade { return model.GradeB },
		Horizon:     24 * time.Hour,
		Bounds:      risk.LenientBounds,
		Reason: func(_ model.Grade, fired []Trigger) string {
			return "Easy signal: " + joinAnd(labels(fired))
		},
	}
}

// Aggressive trades oversold reversals: RSI must bounce off 30 and three of
// four reversal conditions must agree. Signals are always graded C.
func Aggressive() Policy {
	return Policy{
		Mode:        model.ModeAggressive,
		MinBars:     MinBars{Trend: 200, Entry: 50, Confirm: 30},
		TrendFilter: func(fs Frames) bool { return pattern.RSIOversoldBounce(fs.Entry) },
		Triggers: []Trigger{
			{Name: "rsi_bounce", Label: "RSI bounce from oversold",
				Eval: func(fs Frames) bool { return pattern.RSIInRange(fs.Entry, pattern.RSIPeriod, 30, 50) }},
			{Name: "ema_crossover", Label: "EMA crossover",
				Eval: func(fs Frames) bool { return pattern.PriceCrossAboveEMA(fs.Entry, pattern.EMATrend) }},
			{Name: "volume_surge", Label: "Volume surge",
				Eval: func(fs Frames) bool { return pattern.VolumeSurge(fs.Entry, pattern.VolumeMA, 1.5) }},
			{Name: "trend_strengthening", Label: "Trend strengthening",
				Eval: func(fs Frames) bool { return pattern.EMAAbove(fs.Entry, 20, pattern.EMATrend) }},
		},
		MinTriggers: 3,
		Grade:       func(Setup) model.Grade { return model.GradeC },
		Horizon:     18 * time.Hour,
		Bounds:      risk.StrictBounds,
		Reason: func(_ model.Grade, fired []Trigger) string {
			return "Aggressive signal: " + strings.Join(labels(fired), ", ")
		},
	}
}

// PolicyFor returns the policy of a mode. expiry only affects conservative.
func PolicyFor(mode model.StrategyMode, expiry time.Duration) Policy {
	switch mode {
	case model.ModeLenient:
		return Lenient()
	case model.ModeAggressive:
		return Aggressive()
	default:
		return Conservative(expiry)
	}
}

// heuristicGrade scores trend strength from EMA50 alignment on the entry and
// confirmation frames, volume from the entry frame, pattern quality from the
// trigger count and R:R from TP1.
func heuristicGrade(s Setup) model.Grade {
	trend := 1
	if pattern.AboveEMA(s.Frames.Entry, pattern.EMATrend) {
		trend = 2
		if pattern.AboveEMA(s.Frames.Confirm, pattern.EMATrend) {
			trend = 3
		}
	}
	volume := pattern.VolumeAbove(s.Frames.Entry, pattern.VolumeMA, 1.2)
	quality := risk.PatternQuality(len(s.Fired))
	rr := risk.RiskReward(s.Entry, s.Stop, s.Targets.TP1)
	return risk.GradeFor(trend, volume, quality, rr)
}

func setupLabel(g model.Grade) string {
	switch g {
	case model.GradeA:
		return "Strong setup"
	case model.GradeB:
		return "Good setup"
	case model.GradeC:
		return "High-risk setup"
	}
	return "Unknown grade"
}

func labels(ts []Trigger) []string {
	out := make([]string, len(ts))
	for i, t := range ts {
		out[i] = t.Label
	}
	return out
}

func names(ts []Trigger) []string {
	out := make([]string, len(ts))
	for i, t := range ts {
		out[i] = t.Name
	}
	return out
}

// joinAnd renders "a", "a and b", "a, b and c".
func joinAnd(parts []string) string {
	switch len(parts) {
	case 0:
		return ""
	case 1:
		return parts[0]
	}
	return strings.Join(parts[:len(parts)-1], ", ") + " and " + parts[len(parts)-1]
}
