package scanner

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/rs/zerolog"

	"github.com/vladr1050/crypto-long-signals-bot/internal/logger"
	"github.com/vladr1050/crypto-long-signals-bot/internal/metrics"
	"github.com/vladr1050/crypto-long-signals-bot/internal/model"
	"github.com/vladr1050/crypto-long-signals-bot/internal/notification"
	"github.com/vladr1050/crypto-long-signals-bot/internal/risk"
)

// CycleReport summarizes one scan cycle.
type CycleReport struct {
	ScanID          string             `json:"scan_id"`
	Mode            model.StrategyMode `json:"mode"`
	StartedAt       time.Time          `json:"started_at"`
	FinishedAt      time.Time          `json:"finished_at"`
	DurationMs      int64              `json:"duration_ms"`
	SignalsDisabled bool               `json:"signals_disabled,omitempty"`
	Candidates      []string           `json:"candidates"`
	FetchFailed     []string           `json:"fetch_failed,omitempty"`
	Proposals       int                `json:"proposals"`
	Created         []int64            `json:"created"`
	Duplicates      int                `json:"duplicates"`
	Rejected        int                `json:"rejected"`
	Notified        int                `json:"notified"`
	NotifyFailed    int                `json:"notify_failed"`
	Published       int                `json:"published"`
	PublishFailed   int                `json:"publish_failed"`
	Expired         int                `json:"expired"`
	Errors          []string           `json:"errors,omitempty"`
}

type named interface{ Name() string }

func channelName(v interface{}) string {
	if n, ok := v.(named); ok {
		return n.Name()
	}
	return fmt.Sprintf("%T", v)
}

func (s *Scanner) runCycle(ctx context.Context) (CycleReport, error) {
	s.cycleMu.Lock()
	defer s.cycleMu.Unlock()

	scanID := logger.GenerateTraceID("scan")
	ctx = logger.WithTraceID(ctx, scanID)
	log := logger.FromContext(ctx, s.logger)

	rep := CycleReport{ScanID: scanID, StartedAt: s.cfg.Now().UTC()}
	err := s.cycle(ctx, &rep, log)
	rep.FinishedAt = s.cfg.Now().UTC()
	dur := rep.FinishedAt.Sub(rep.StartedAt)
	rep.DurationMs = dur.Milliseconds()

	result := metrics.ScanOK
	if err != nil {
		result = metrics.ScanError
		rep.Errors = append(rep.Errors, err.Error())
	}
	s.deps.Metrics.ObserveScan(result, dur)
	if s.deps.Health != nil {
		s.deps.Health.SetLastScanAt(rep.FinishedAt)
	}
	s.record(rep, err)

	if err != nil {
		log.Error().Err(err).Dur("duration", dur).Msg("scan cycle failed")
		if s.deps.Alerter != nil && ctx.Err() == nil {
			if aerr := s.deps.Alerter.Send(ctx, notification.Alert{
				Level:   notification.AlertCritical,
				Title:   "Scan cycle failed",
				Message: err.Error(),
			}); aerr != nil {
				log.Warn().Err(aerr).Msg("alert delivery failed")
			}
		}
		return rep, err
	}
	log.Info().
		Str("mode", string(rep.Mode)).
		Int("candidates", len(rep.Candidates)).
		Int("proposals", rep.Proposals).
		Int("created", len(rep.Created)).
		Int("duplicates", rep.Duplicates).
		Int("expired", rep.Expired).
		Dur("duration", dur).
		Msg("scan cycle complete")
	return rep, nil
}

func (s *Scanner) cycle(ctx context.Context, rep *CycleReport, log zerolog.Logger) error {
	set, err := s.loadSettings(ctx)
	if err != nil {
		return err
	}
	rep.Mode = set.mode
	set.log(log.Debug()).Msg("cycle settings")
	s.risk.SetLimits(risk.Limits{MaxConcurrentSignals: set.maxConcurrent, MaxHolding: s.cfg.Limits.MaxHolding})

	pairs, err := s.deps.Repo.EnabledPairs(ctx)
	if err != nil {
		return fmt.Errorf("scanner: load pairs: %w", err)
	}
	live, err := s.deps.Repo.LiveSignals(ctx)
	if err != nil {
		return fmt.Errorf("scanner: load live signals: %w", err)
	}
	rep.Candidates = candidates(pairs, live)

	switch {
	case !set.signalsEnabled:
		rep.SignalsDisabled = true
		log.Info().Msg("signals disabled, skipping detection")
	case len(rep.Candidates) == 0:
		log.Info().Int("pairs", len(pairs)).Int("live", len(live)).Msg("no candidates")
	default:
		if err := s.detectAndProcess(ctx, set, rep, log); err != nil {
			return err
		}
	}

	s.expire(ctx, rep, log)
	return nil
}

// candidates are enabled symbols without a live signal, in pair order.
func candidates(pairs []model.Pair, live []model.Signal) []string {
	busy := make(map[string]bool, len(live))
	for _, sig := range live {
		if sig.Status.Live() {
			busy[sig.Symbol] = true
		}
	}
	out := make([]string, 0, len(pairs))
	for _, p := range pairs {
		if p.Enabled && !busy[p.Symbol] {
			out = append(out, p.Symbol)
		}
	}
	return out
}

func (s *Scanner) detectAndProcess(ctx context.Context, set cycleSettings, rep *CycleReport, log zerolog.Logger) error {
	data, err := s.deps.Provider.GetMultipleOHLCV(ctx, rep.Candidates, s.cfg.Timeframes.List(), s.cfg.OHLCVLimit)
	if err != nil {
		return fmt.Errorf("scanner: fetch: %w", err)
	}
	for _, sym := range rep.Candidates {
		if _, ok := data[sym]; !ok {
			rep.FetchFailed = append(rep.FetchFailed, sym)
		}
	}
	if n := len(rep.FetchFailed); n > 0 {
		log.Warn().Strs("symbols", rep.FetchFailed).Msg("skipping symbols with failed fetches")
		if s.deps.Metrics != nil {
			s.deps.Metrics.FetchFailures.Add(float64(n))
		}
	}
	if len(data) == 0 {
		return nil
	}

	det := s.deps.Detectors(set.mode, set.expiry)
	props, err := det.DetectSignals(ctx, data, set.riskPct)
	if err != nil {
		return fmt.Errorf("scanner: detect: %w", err)
	}
	rep.Proposals = len(props)

	// Higher grades claim the concurrency cap first.
	sort.SliceStable(props, func(i, j int) bool { return props[i].Grade.Rank() > props[j].Grade.Rank() })

	var (
		users       []model.User
		usersLoaded bool
	)
	for _, p := range props {
		sig, ok := s.persist(ctx, p, rep, log)
		if !ok {
			continue
		}
		if !usersLoaded {
			usersLoaded = true
			users, err = s.deps.Repo.UsersWithSignalsEnabled(ctx)
			if err != nil {
				log.Error().Err(err).Msg("load users failed, signals will not be sent")
				rep.Errors = append(rep.Errors, err.Error())
			}
		}
		okN, failN := s.deliver(ctx, sig, users, log)
		rep.Notified += okN
		rep.NotifyFailed += failN
		okP, failP := s.publish(ctx, sig, log)
		rep.Published += okP
		rep.PublishFailed += failP

		if err := s.deps.Repo.UpdateStatus(ctx, sig.ID, model.StatusActive); err != nil {
			log.Error().Err(err).Int64("signal_id", sig.ID).Msg("activate signal failed")
			rep.Errors = append(rep.Errors, err.Error())
		}
	}
	return nil
}

// persist re-checks the dedupe rule against fresh live signals and stores the
// proposal. It reports false when the proposal was skipped.
func (s *Scanner) persist(ctx context.Context, p model.SignalProposal, rep *CycleReport, log zerolog.Logger) (model.Signal, bool) {
	live, err := s.deps.Repo.LiveSignals(ctx)
	if err != nil {
		log.Error().Err(err).Str("symbol", p.Symbol).Msg("reload live signals failed")
		rep.Errors = append(rep.Errors, err.Error())
		return model.Signal{}, false
	}
	if ok, reason := s.risk.ShouldGenerateSignal(p.Symbol, live); !ok {
		if reason == risk.ReasonSymbolLive {
			s.duplicate(rep)
		} else {
			rep.Rejected++
		}
		log.Info().Str("symbol", p.Symbol).Str("reason", reason).Msg("proposal skipped")
		return model.Signal{}, false
	}

	sig, err := s.deps.Repo.CreateSignal(ctx, p)
	if errors.Is(err, model.ErrLiveSignalExists) {
		s.duplicate(rep)
		log.Info().Str("symbol", p.Symbol).Msg("proposal skipped: live signal exists")
		return model.Signal{}, false
	}
	if err != nil {
		log.Error().Err(err).Str("symbol", p.Symbol).Msg("persist signal failed")
		rep.Errors = append(rep.Errors, err.Error())
		return model.Signal{}, false
	}

	rep.Created = append(rep.Created, sig.ID)
	if s.deps.Metrics != nil {
		s.deps.Metrics.Generated.WithLabelValues(string(sig.Mode), string(sig.Grade)).Inc()
	}
	log.Info().
		Int64("signal_id", sig.ID).
		Str("symbol", sig.Symbol).
		Str("grade", string(sig.Grade)).
		Float64("entry", sig.Entry).
		Float64("stop", sig.StopLoss).
		Msg("signal created")
	return sig, true
}

func (s *Scanner) duplicate(rep *CycleReport) {
	rep.Duplicates++
	if s.deps.Metrics != nil {
		s.deps.Metrics.Duplicates.Inc()
	}
}

// deliver sends sig to every user, each with their own risk percentage.
// Failures are logged and counted; the signal stays valid.
func (s *Scanner) deliver(ctx context.Context, sig model.Signal, users []model.User, log zerolog.Logger) (ok, failed int) {
	if s.deps.Notifier == nil {
		return 0, 0
	}
	ch := channelName(s.deps.Notifier)
	for _, u := range users {
		if !u.SignalsEnabled {
			continue
		}
		err := s.deps.Notifier.SendSignal(ctx, u, sig)
		s.deps.Metrics.ObserveNotification(ch, err)
		if err != nil {
			failed++
			log.Warn().Err(err).Int64("user", u.TelegramID).Int64("signal_id", sig.ID).Msg("notification failed")
			continue
		}
		ok++
	}
	return ok, failed
}

func (s *Scanner) publish(ctx context.Context, sig model.Signal, log zerolog.Logger) (ok, failed int) {
	for _, p := range s.deps.Publishers {
		err := p.PublishSignal(ctx, sig)
		s.deps.Metrics.ObserveNotification(channelName(p), err)
		if err != nil {
			failed++
			log.Warn().Err(err).Str("channel", channelName(p)).Int64("signal_id", sig.ID).Msg("publish failed")
			continue
		}
		ok++
	}
	return ok, failed
}

// expire sweeps signals past expires_at, then any live signal held beyond
// the maximum holding period.
func (s *Scanner) expire(ctx context.Context, rep *CycleReport, log zerolog.Logger) {
	now := s.cfg.Now()
	n, err := s.deps.Repo.ExpireSignals(ctx, now)
	if err != nil {
		log.Error().Err(err).Msg("expire signals failed")
		rep.Errors = append(rep.Errors, err.Error())
	}
	rep.Expired += n

	live, err := s.deps.Repo.LiveSignals(ctx)
	if err != nil {
		log.Error().Err(err).Msg("reload live signals failed")
		rep.Errors = append(rep.Errors, err.Error())
	} else {
		for _, sig := range s.risk.Overdue(live, now) {
			if err := s.deps.Repo.UpdateStatus(ctx, sig.ID, model.StatusExpired); err != nil {
				log.Warn().Err(err).Int64("signal_id", sig.ID).Msg("expire overdue signal failed")
				continue
			}
			rep.Expired++
			live = removeSignal(live, sig.ID)
		}
	}

	if s.deps.Metrics != nil {
		s.deps.Metrics.Expired.Add(float64(rep.Expired))
		if err == nil {
			s.deps.Metrics.LiveSignals.Set(float64(len(live)))
		}
	}
}

func removeSignal(list []model.Signal, id int64) []model.Signal {
	out := list[:0]
	for _, s := range list {
		if s.ID != id {
			out = append(out, s)
		}
	}
	return out
}
