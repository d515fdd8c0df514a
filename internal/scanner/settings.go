package scanner

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/rs/zerolog"

	"github.com/vladr1050/crypto-long-signals-bot/internal/model"
)

// cycleSettings is the snapshot of persisted settings a cycle runs with.
type cycleSettings struct {
	mode           model.StrategyMode
	signalsEnabled bool
	maxConcurrent  int
	expiry         time.Duration
	riskPct        float64
}

// loadSettings reads every setting once. A repository error fails the cycle;
// an unparsable value falls back to the default with a warning.
func (s *Scanner) loadSettings(ctx context.Context) (cycleSettings, error) {
	set := cycleSettings{
		mode:           s.cfg.DefaultMode,
		signalsEnabled: true,
		maxConcurrent:  s.cfg.Limits.MaxConcurrentSignals,
		expiry:         s.cfg.DefaultExpiry,
		riskPct:        s.cfg.DefaultRiskPct,
	}

	get := func(key string) (string, bool, error) {
		v, ok, err := s.deps.Repo.GetSetting(ctx, key)
		if err != nil {
			return "", false, fmt.Errorf("scanner: read setting %s: %w", key, err)
		}
		return v, ok, nil
	}
	warn := func(key, v string, err error) {
		s.logger.Warn().Str("key", key).Str("value", v).Err(err).Msg("ignoring invalid setting")
	}

	if v, ok, err := get(model.SettingStrategyMode); err != nil {
		return set, err
	} else if ok {
		if m, perr := model.ParseStrategyMode(v); perr == nil {
			set.mode = m
		} else {
			warn(model.SettingStrategyMode, v, perr)
		}
	}
	if v, ok, err := get(model.SettingSignalsEnabled); err != nil {
		return set, err
	} else if ok {
		if b, perr := strconv.ParseBool(v); perr == nil {
			set.signalsEnabled = b
		} else {
			warn(model.SettingSignalsEnabled, v, perr)
		}
	}
	if v, ok, err := get(model.SettingMaxConcurrentSignals); err != nil {
		return set, err
	} else if ok {
		if n, perr := strconv.Atoi(v); perr == nil && n >= 0 {
			set.maxConcurrent = n
		} else {
			warn(model.SettingMaxConcurrentSignals, v, perr)
		}
	}
	if v, ok, err := get(model.SettingSignalExpiryHours); err != nil {
		return set, err
	} else if ok {
		if h, perr := strconv.ParseFloat(v, 64); perr == nil && h > 0 {
			set.expiry = time.Duration(h * float64(time.Hour))
		} else {
			warn(model.SettingSignalExpiryHours, v, perr)
		}
	}
	if v, ok, err := get(model.SettingDefaultRiskPct); err != nil {
		return set, err
	} else if ok {
		if r, perr := strconv.ParseFloat(v, 64); perr == nil && r > 0 {
			set.riskPct = r
		} else {
			warn(model.SettingDefaultRiskPct, v, perr)
		}
	}
	return set, nil
}

func (c cycleSettings) log(ev *zerolog.Event) *zerolog.Event {
	return ev.Str("mode", string(c.mode)).
		Bool("signals_enabled", c.signalsEnabled).
		Int("max_concurrent", c.maxConcurrent).
		Dur("expiry", c.expiry)
}
