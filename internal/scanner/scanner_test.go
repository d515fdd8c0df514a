package scanner

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/rs/zerolog"

	"github.com/vladr1050/crypto-long-signals-bot/internal/metrics"
	"github.com/vladr1050/crypto-long-signals-bot/internal/model"
)

var t0 = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

type harness struct {
	repo     *memRepo
	provider *fakeProvider
	notifier *fakeNotifier
	pub      *fakePublisher
	alerter  *fakeAlerter
	metrics  *metrics.Metrics
	modes    []model.StrategyMode
	expiries []time.Duration
	grades   map[string]model.Grade
	sc       *Scanner
}

func newHarness(t *testing.T, symbols ...string) *harness {
	t.Helper()
	now := func() time.Time { return t0 }
	h := &harness{
		repo:     newMemRepo(now, symbols...),
		provider: &fakeProvider{fail: map[string]bool{}},
		notifier: &fakeNotifier{fail: map[int64]bool{}},
		pub:      &fakePublisher{},
		alerter:  &fakeAlerter{},
		metrics:  metrics.NewMetrics(),
		grades:   map[string]model.Grade{},
	}
	h.repo.users[1] = model.User{TelegramID: 1, RiskPct: 1.0, SignalsEnabled: true}
	h.repo.users[2] = model.User{TelegramID: 2, RiskPct: 0.5, SignalsEnabled: false}

	sc, err := New(Config{Interval: time.Hour, Now: now}, Deps{
		Repo:       h.repo,
		Provider:   h.provider,
		Notifier:   h.notifier,
		Publishers: []model.SignalPublisher{h.pub},
		Alerter:    h.alerter,
		Metrics:    h.metrics,
		Detectors: func(mode model.StrategyMode, expiry time.Duration) SignalDetector {
			h.modes = append(h.modes, mode)
			h.expiries = append(h.expiries, expiry)
			return &fakeDetector{mode: mode, expiry: expiry, grades: h.grades, now: t0}
		},
	}, zerolog.Nop())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	h.sc = sc
	return h
}

func liveSignal(symbol string, grade model.Grade, created time.Time) model.Signal {
	return model.Signal{
		SignalProposal: model.SignalProposal{
			Symbol: symbol, Timeframe: "15m", Entry: 10, StopLoss: 9, TakeProfit1: 11, TakeProfit2: 12,
			Grade: grade, Mode: model.ModeConservative,
			CreatedAt: created, ExpiresAt: created.Add(8 * time.Hour),
		},
		Status: model.StatusActive,
	}
}

func TestNewRequiresPorts(t *testing.T) {
	if _, err := New(Config{}, Deps{}, zerolog.Nop()); err == nil {
		t.Fatal("expected error without repository and provider")
	}
}

func TestCycleCreatesNotifiesAndActivates(t *testing.T) {
	h := newHarness(t, "ETH/USDC", "SOL/USDC", "XRP/USDC")
	h.provider.fail["SOL/USDC"] = true

	rep, err := h.sc.ForceScan(context.Background())
	if err != nil {
		t.Fatalf("ForceScan: %v", err)
	}
	if len(rep.Candidates) != 3 {
		t.Errorf("candidates = %v", rep.Candidates)
	}
	if len(rep.FetchFailed) != 1 || rep.FetchFailed[0] != "SOL/USDC" {
		t.Errorf("fetch failed = %v", rep.FetchFailed)
	}
	if len(rep.Created) != 2 {
		t.Fatalf("created = %v, want 2 signals", rep.Created)
	}
	for _, sym := range []string{"ETH/USDC", "XRP/USDC"} {
		if st := h.repo.status(sym); st != model.StatusActive {
			t.Errorf("%s status = %s, want active", sym, st)
		}
	}
	if h.repo.status("SOL/USDC") != "" {
		t.Error("no signal expected for the symbol whose fetch failed")
	}

	sent := h.notifier.all()
	if len(sent) != 2 || rep.Notified != 2 {
		t.Fatalf("sent %d notifications (report %d), want 2 (user 2 opted out)", len(sent), rep.Notified)
	}
	for _, s := range sent {
		if s.user.TelegramID != 1 || s.user.RiskPct != 1.0 {
			t.Errorf("unexpected recipient %+v", s.user)
		}
	}
	if rep.Published != 2 || len(h.pub.ids) != 2 {
		t.Errorf("published = %d", rep.Published)
	}
	if got := testutil.ToFloat64(h.metrics.FetchFailures); got != 1 {
		t.Errorf("fetch failures metric = %v", got)
	}
	if got := testutil.ToFloat64(h.metrics.LiveSignals); got != 2 {
		t.Errorf("live signals gauge = %v", got)
	}
	if got := testutil.ToFloat64(h.metrics.ScansTotal.WithLabelValues(metrics.ScanOK)); got != 1 {
		t.Errorf("scans ok = %v", got)
	}
}

func TestLiveSymbolIsNotFetched(t *testing.T) {
	h := newHarness(t, "ETH/USDC", "BTC/USDC")
	h.repo.put(liveSignal("ETH/USDC", model.GradeA, t0.Add(-time.Hour)))

	rep, err := h.sc.ForceScan(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if len(rep.Candidates) != 1 || rep.Candidates[0] != "BTC/USDC" {
		t.Fatalf("candidates = %v", rep.Candidates)
	}
	calls := h.provider.calls()
	if len(calls) != 1 || len(calls[0]) != 1 || calls[0][0] != "BTC/USDC" {
		t.Errorf("provider called with %v", calls)
	}
}

func TestConcurrencyCapPrefersHigherGrades(t *testing.T) {
	h := newHarness(t, "AAA/USDC", "BBB/USDC", "CCC/USDC")
	h.grades["AAA/USDC"] = model.GradeC
	h.grades["BBB/USDC"] = model.GradeA
	h.grades["CCC/USDC"] = model.GradeB
	h.repo.settings[model.SettingMaxConcurrentSignals] = "1"

	rep, err := h.sc.ForceScan(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if len(rep.Created) != 1 || rep.Rejected != 2 {
		t.Fatalf("created %v rejected %d", rep.Created, rep.Rejected)
	}
	if h.repo.status("BBB/USDC") != model.StatusActive {
		t.Error("grade A proposal should have claimed the only slot")
	}
}

func TestStoreDuplicateIsSkipped(t *testing.T) {
	h := newHarness(t, "ETH/USDC", "BTC/USDC")
	h.repo.raceOn["ETH/USDC"] = true

	rep, err := h.sc.ForceScan(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if rep.Duplicates != 1 || len(rep.Created) != 1 {
		t.Fatalf("duplicates %d created %v", rep.Duplicates, rep.Created)
	}
	for _, s := range h.notifier.all() {
		if s.sig.Symbol == "ETH/USDC" {
			t.Error("duplicate must not be notified")
		}
	}
	if got := testutil.ToFloat64(h.metrics.Duplicates); got != 1 {
		t.Errorf("duplicates metric = %v", got)
	}
}

func TestSignalsDisabledSkipsDetectionButExpires(t *testing.T) {
	h := newHarness(t, "ETH/USDC")
	h.repo.settings[model.SettingSignalsEnabled] = "false"
	old := liveSignal("BTC/USDC", model.GradeB, t0.Add(-9*time.Hour))
	old = h.repo.put(old)

	rep, err := h.sc.ForceScan(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if !rep.SignalsDisabled {
		t.Error("report should flag disabled signals")
	}
	if len(h.provider.calls()) != 0 || len(h.modes) != 0 {
		t.Error("disabled signals must not fetch or detect")
	}
	if rep.Expired != 1 {
		t.Errorf("expired = %d, want 1", rep.Expired)
	}
	got, _ := h.repo.GetSignal(context.Background(), old.ID)
	if got.Status != model.StatusExpired {
		t.Errorf("status = %s", got.Status)
	}
}

func TestOverdueSignalsExpire(t *testing.T) {
	h := newHarness(t)
	// Still inside its expiry window but held past the 24h maximum.
	sig := liveSignal("ETH/USDC", model.GradeA, t0.Add(-25*time.Hour))
	sig.ExpiresAt = t0.Add(time.Hour)
	sig = h.repo.put(sig)
	fresh := h.repo.put(liveSignal("SOL/USDC", model.GradeB, t0.Add(-time.Hour)))

	rep, err := h.sc.ForceScan(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if rep.Expired != 1 {
		t.Fatalf("expired = %d", rep.Expired)
	}
	if s, _ := h.repo.GetSignal(context.Background(), sig.ID); s.Status != model.StatusExpired {
		t.Errorf("overdue status = %s", s.Status)
	}
	if s, _ := h.repo.GetSignal(context.Background(), fresh.ID); s.Status != model.StatusActive {
		t.Errorf("fresh status = %s", s.Status)
	}
	if got := testutil.ToFloat64(h.metrics.LiveSignals); got != 1 {
		t.Errorf("live gauge = %v", got)
	}
}

func TestDeliveryFailuresDoNotAbortCycle(t *testing.T) {
	h := newHarness(t, "ETH/USDC", "BTC/USDC")
	h.notifier.fail[1] = true
	h.pub.err = errors.New("redis down")

	rep, err := h.sc.ForceScan(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if len(rep.Created) != 2 || rep.NotifyFailed != 2 || rep.PublishFailed != 2 {
		t.Fatalf("report %+v", rep)
	}
	for _, sym := range []string{"ETH/USDC", "BTC/USDC"} {
		if h.repo.status(sym) != model.StatusActive {
			t.Errorf("%s should still be active", sym)
		}
	}
	if got := testutil.ToFloat64(h.metrics.Notifications.WithLabelValues("fake", "error")); got != 2 {
		t.Errorf("notification errors metric = %v", got)
	}
}

func TestRepositoryFailureFailsCycleAndAlerts(t *testing.T) {
	h := newHarness(t, "ETH/USDC")
	h.repo.failPairs = errors.New("database is locked")

	if _, err := h.sc.ForceScan(context.Background()); err == nil {
		t.Fatal("expected cycle error")
	}
	if h.alerter.count() != 1 {
		t.Errorf("alerts = %d", h.alerter.count())
	}
	st, err := h.sc.Statistics(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if st.ScanCount != 1 || st.LastError == "" {
		t.Errorf("stats = %+v", st)
	}
	if got := testutil.ToFloat64(h.metrics.ScansTotal.WithLabelValues(metrics.ScanError)); got != 1 {
		t.Errorf("scan errors = %v", got)
	}

	// The next cycle recovers.
	h.repo.failPairs = nil
	if _, err := h.sc.ForceScan(context.Background()); err != nil {
		t.Fatalf("recovery cycle: %v", err)
	}
}

func TestSettingsDriveDetector(t *testing.T) {
	h := newHarness(t, "ETH/USDC")
	if _, err := h.sc.SetMode(context.Background(), "easy"); err != nil {
		t.Fatal(err)
	}
	h.repo.settings[model.SettingSignalExpiryHours] = "12"

	if _, err := h.sc.ForceScan(context.Background()); err != nil {
		t.Fatal(err)
	}
	if len(h.modes) != 1 || h.modes[0] != model.ModeLenient {
		t.Errorf("modes = %v", h.modes)
	}
	if h.expiries[0] != 12*time.Hour {
		t.Errorf("expiry = %s", h.expiries[0])
	}
	if m, _ := h.sc.Mode(context.Background()); m != model.ModeLenient {
		t.Errorf("Mode = %s", m)
	}
	if _, err := h.sc.SetMode(context.Background(), "yolo"); err == nil {
		t.Error("expected error for unknown mode")
	}
}

func TestInvalidSettingFallsBack(t *testing.T) {
	h := newHarness(t, "ETH/USDC")
	h.repo.settings[model.SettingStrategyMode] = "turbo"
	h.repo.settings[model.SettingMaxConcurrentSignals] = "many"

	rep, err := h.sc.ForceScan(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if rep.Mode != model.ModeConservative || len(rep.Created) != 1 {
		t.Errorf("mode %s created %v", rep.Mode, rep.Created)
	}
}

func TestRenotify(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	sig := h.repo.put(liveSignal("ETH/USDC", model.GradeA, t0))

	n, err := h.sc.Renotify(ctx, sig.ID)
	if err != nil || n != 1 {
		t.Fatalf("Renotify = %d, %v", n, err)
	}

	if err := h.repo.Snooze(ctx, sig.ID, t0.Add(30*time.Minute)); err != nil {
		t.Fatal(err)
	}
	if _, err := h.sc.Renotify(ctx, sig.ID); !errors.Is(err, ErrSnoozed) {
		t.Errorf("snoozed: err = %v", err)
	}

	if err := h.repo.UpdateStatus(ctx, sig.ID, model.StatusCancelled); err != nil {
		t.Fatal(err)
	}
	if _, err := h.sc.Renotify(ctx, sig.ID); !errors.Is(err, ErrNotLive) {
		t.Errorf("cancelled: err = %v", err)
	}
	if _, err := h.sc.Renotify(ctx, 999); !errors.Is(err, model.ErrNotFound) {
		t.Errorf("missing: err = %v", err)
	}
}

func TestStatisticsGradeDistribution(t *testing.T) {
	h := newHarness(t)
	h.repo.put(liveSignal("A1/USDC", model.GradeA, t0))
	h.repo.put(liveSignal("A2/USDC", model.GradeA, t0))
	h.repo.put(liveSignal("C1/USDC", model.GradeC, t0))

	st, err := h.sc.Statistics(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	want := map[model.Grade]int{model.GradeA: 2, model.GradeB: 0, model.GradeC: 1}
	for g, n := range want {
		if st.GradeDistribution[g] != n {
			t.Errorf("grade %s = %d, want %d", g, st.GradeDistribution[g], n)
		}
	}
	if st.LiveSignals != 3 {
		t.Errorf("live = %d", st.LiveSignals)
	}
}

func TestStartStop(t *testing.T) {
	h := newHarness(t, "ETH/USDC")
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := h.sc.Start(ctx); err != nil {
		t.Fatal(err)
	}
	if err := h.sc.Start(ctx); !errors.Is(err, ErrAlreadyRunning) {
		t.Errorf("second Start = %v", err)
	}

	deadline := time.Now().Add(2 * time.Second)
	for len(h.provider.calls()) == 0 {
		if time.Now().After(deadline) {
			t.Fatal("initial cycle did not run")
		}
		time.Sleep(5 * time.Millisecond)
	}

	h.sc.Stop()
	st := h.sc.Status(ctx)
	if st.Running {
		t.Error("scanner still running after Stop")
	}
	if st.ScanCount != 1 || st.LiveSignals != 1 || len(st.EnabledPairs) != 1 {
		t.Errorf("status = %+v", st)
	}

	// Restart after Stop is allowed.
	if err := h.sc.Start(ctx); err != nil {
		t.Fatalf("restart: %v", err)
	}
	h.sc.Stop()
}

func TestStopLetsRunningCycleFinish(t *testing.T) {
	h := newHarness(t, "ETH/USDC")
	h.provider.started = make(chan struct{}, 1)
	h.provider.release = make(chan struct{})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := h.sc.Start(ctx); err != nil {
		t.Fatal(err)
	}
	select {
	case <-h.provider.started:
	case <-time.After(2 * time.Second):
		t.Fatal("initial cycle did not fetch")
	}
	cancel()
	close(h.provider.release)
	h.sc.Stop()

	st, err := h.sc.Statistics(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if st.LastError != "" {
		t.Errorf("last error = %q", st.LastError)
	}
	if st.LastCycle == nil || len(st.LastCycle.Created) != 1 {
		t.Fatalf("last cycle = %+v", st.LastCycle)
	}
	if got := h.repo.status("ETH/USDC"); got != model.StatusActive {
		t.Errorf("status = %s, want active", got)
	}
	if len(h.notifier.all()) != 1 {
		t.Errorf("sent %d notifications, want 1", len(h.notifier.all()))
	}
	if n := h.alerter.count(); n != 0 {
		t.Errorf("alerts = %d, want 0", n)
	}
}
