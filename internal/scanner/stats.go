package scanner

import (
	"context"
	"fmt"
	"time"

	"github.com/vladr1050/crypto-long-signals-bot/internal/model"
)

type stats struct {
	scanCount        int64
	signalsGenerated int64
	lastScan         time.Time
	lastDuration     time.Duration
	lastError        string
	lastCycle        *CycleReport
}

func (s *Scanner) record(rep CycleReport, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stats.scanCount++
	s.stats.signalsGenerated += int64(len(rep.Created))
	s.stats.lastScan = rep.FinishedAt
	s.stats.lastDuration = rep.FinishedAt.Sub(rep.StartedAt)
	s.stats.lastError = ""
	if err != nil {
		s.stats.lastError = err.Error()
	}
	r := rep
	s.stats.lastCycle = &r
}

// Status is the scheduling state of the scanner.
type Status struct {
	Running          bool               `json:"running"`
	Mode             model.StrategyMode `json:"mode"`
	SignalsEnabled   bool               `json:"signals_enabled"`
	Interval         string             `json:"interval"`
	LastScan         *time.Time         `json:"last_scan,omitempty"`
	NextScan         *time.Time         `json:"next_scan,omitempty"`
	ScanCount        int64              `json:"scan_count"`
	SignalsGenerated int64              `json:"signals_generated"`
	LastError        string             `json:"last_error,omitempty"`
	EnabledPairs     []string           `json:"enabled_pairs"`
	LiveSignals      int                `json:"live_signals"`
	Timeframes       []string           `json:"timeframes"`
}

// Status reports scheduling state plus repository-derived counts. Repository
// errors leave those fields empty and are logged.
func (s *Scanner) Status(ctx context.Context) Status {
	s.mu.RLock()
	st := Status{
		Running:          s.running,
		Interval:         s.cfg.Interval.String(),
		ScanCount:        s.stats.scanCount,
		SignalsGenerated: s.stats.signalsGenerated,
		LastError:        s.stats.lastError,
		Timeframes:       s.cfg.Timeframes.List(),
		Mode:             s.cfg.DefaultMode,
		SignalsEnabled:   true,
	}
	if !s.stats.lastScan.IsZero() {
		t := s.stats.lastScan
		st.LastScan = &t
	}
	if s.running && !s.nextScan.IsZero() {
		t := s.nextScan
		st.NextScan = &t
	}
	s.mu.RUnlock()

	if set, err := s.loadSettings(ctx); err == nil {
		st.Mode = set.mode
		st.SignalsEnabled = set.signalsEnabled
	} else {
		s.logger.Warn().Err(err).Msg("status: settings unavailable")
	}
	if pairs, err := s.deps.Repo.EnabledPairs(ctx); err == nil {
		st.EnabledPairs = make([]string, 0, len(pairs))
		for _, p := range pairs {
			st.EnabledPairs = append(st.EnabledPairs, p.Symbol)
		}
	} else {
		s.logger.Warn().Err(err).Msg("status: pairs unavailable")
	}
	if live, err := s.deps.Repo.LiveSignals(ctx); err == nil {
		st.LiveSignals = len(live)
	} else {
		s.logger.Warn().Err(err).Msg("status: live signals unavailable")
	}
	return st
}

// Statistics aggregates scan history and the grade mix of live signals.
type Statistics struct {
	ScanCount         int64               `json:"scan_count"`
	SignalsGenerated  int64               `json:"signals_generated"`
	LastScan          *time.Time          `json:"last_scan,omitempty"`
	LastDurationMs    int64               `json:"last_duration_ms"`
	LastError         string              `json:"last_error,omitempty"`
	LastCycle         *CycleReport        `json:"last_cycle,omitempty"`
	LiveSignals       int                 `json:"live_signals"`
	GradeDistribution map[model.Grade]int `json:"grade_distribution"`
}

// Statistics returns the scan counters and the grade distribution of live signals.
func (s *Scanner) Statistics(ctx context.Context) (Statistics, error) {
	live, err := s.deps.Repo.LiveSignals(ctx)
	if err != nil {
		return Statistics{}, fmt.Errorf("scanner: statistics: %w", err)
	}
	dist := map[model.Grade]int{model.GradeA: 0, model.GradeB: 0, model.GradeC: 0}
	for _, sig := range live {
		dist[sig.Grade]++
	}

	s.mu.RLock()
	out := Statistics{
		ScanCount:         s.stats.scanCount,
		SignalsGenerated:  s.stats.signalsGenerated,
		LastDurationMs:    s.stats.lastDuration.Milliseconds(),
		LastError:         s.stats.lastError,
		LastCycle:         s.stats.lastCycle,
		LiveSignals:       len(live),
		GradeDistribution: dist,
	}
	if !s.stats.lastScan.IsZero() {
		t := s.stats.lastScan
		out.LastScan = &t
	}
	s.mu.RUnlock()
	return out, nil
}
