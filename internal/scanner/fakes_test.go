package scanner

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/vladr1050/crypto-long-signals-bot/internal/model"
	"github.com/vladr1050/crypto-long-signals-bot/internal/notification"
)

// memRepo is an in-memory model.Repository.
type memRepo struct {
	mu       sync.Mutex
	pairs    map[string]bool
	signals  map[int64]model.Signal
	nextID   int64
	users    map[int64]model.User
	settings map[string]string
	now      func() time.Time

	failPairs error
	raceOn    map[string]bool // CreateSignal reports ErrLiveSignalExists
	activated []int64
}

func newMemRepo(now func() time.Time, symbols ...string) *memRepo {
	r := &memRepo{
		pairs:    map[string]bool{},
		signals:  map[int64]model.Signal{},
		users:    map[int64]model.User{},
		settings: map[string]string{},
		raceOn:   map[string]bool{},
		now:      now,
	}
	for _, s := range symbols {
		r.pairs[s] = true
	}
	return r
}

func (r *memRepo) ListPairs(ctx context.Context) ([]model.Pair, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []model.Pair
	for s, en := range r.pairs {
		out = append(out, model.Pair{Symbol: s, Enabled: en})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Symbol < out[j].Symbol })
	return out, nil
}

func (r *memRepo) EnabledPairs(ctx context.Context) ([]model.Pair, error) {
	if r.failPairs != nil {
		return nil, r.failPairs
	}
	all, _ := r.ListPairs(ctx)
	var out []model.Pair
	for _, p := range all {
		if p.Enabled {
			out = append(out, p)
		}
	}
	return out, nil
}

func (r *memRepo) AddPair(ctx context.Context, symbol string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.pairs[symbol] = true
	return nil
}

func (r *memRepo) TogglePair(ctx context.Context, symbol string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	en, ok := r.pairs[symbol]
	if !ok {
		return false, model.ErrNotFound
	}
	r.pairs[symbol] = !en
	return !en, nil
}

func (r *memRepo) EnsurePairs(ctx context.Context, symbols []string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, s := range symbols {
		if _, ok := r.pairs[s]; !ok {
			r.pairs[s] = true
		}
	}
	return nil
}

func (r *memRepo) CreateSignal(ctx context.Context, p model.SignalProposal) (model.Signal, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.raceOn[p.Symbol] {
		return model.Signal{}, model.ErrLiveSignalExists
	}
	for _, s := range r.signals {
		if s.Symbol == p.Symbol && s.Status.Live() {
			return model.Signal{}, model.ErrLiveSignalExists
		}
	}
	r.nextID++
	sig := model.Signal{ID: r.nextID, SignalProposal: p, Status: model.StatusPending, UpdatedAt: r.now()}
	r.signals[sig.ID] = sig
	return sig, nil
}

func (r *memRepo) put(sig model.Signal) model.Signal {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.nextID++
	sig.ID = r.nextID
	r.signals[sig.ID] = sig
	return sig
}

func (r *memRepo) GetSignal(ctx context.Context, id int64) (model.Signal, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.signals[id]
	if !ok {
		return model.Signal{}, model.ErrNotFound
	}
	return s, nil
}

func (r *memRepo) LiveSignals(ctx context.Context) ([]model.Signal, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []model.Signal
	for _, s := range r.signals {
		if s.Status.Live() {
			out = append(out, s)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (r *memRepo) RecentSignals(ctx context.Context, limit int) ([]model.Signal, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []model.Signal
	for _, s := range r.signals {
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (r *memRepo) UpdateStatus(ctx context.Context, id int64, to model.Status) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.signals[id]
	if !ok {
		return model.ErrNotFound
	}
	if !model.CanTransition(s.Status, to) {
		return model.ErrInvalidTransition
	}
	s.Status = to
	r.signals[id] = s
	if to == model.StatusActive {
		r.activated = append(r.activated, id)
	}
	return nil
}

func (r *memRepo) Snooze(ctx context.Context, id int64, until time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.signals[id]
	if !ok {
		return model.ErrNotFound
	}
	s.SnoozeUntil = &until
	r.signals[id] = s
	return nil
}

func (r *memRepo) ExpireSignals(ctx context.Context, now time.Time) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for id, s := range r.signals {
		if s.Status.Live() && !s.ExpiresAt.After(now) {
			s.Status = model.StatusExpired
			r.signals[id] = s
			n++
		}
	}
	return n, nil
}

func (r *memRepo) GetOrCreateUser(ctx context.Context, tgID int64, risk float64) (model.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	u, ok := r.users[tgID]
	if !ok {
		u = model.User{TelegramID: tgID, RiskPct: risk, SignalsEnabled: true}
		r.users[tgID] = u
	}
	return u, nil
}

func (r *memRepo) UpdateUser(ctx context.Context, u model.User) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.users[u.TelegramID]; !ok {
		return model.ErrNotFound
	}
	r.users[u.TelegramID] = u
	return nil
}

func (r *memRepo) UsersWithSignalsEnabled(ctx context.Context) ([]model.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []model.User
	for _, u := range r.users {
		if u.SignalsEnabled {
			out = append(out, u)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].TelegramID < out[j].TelegramID })
	return out, nil
}

func (r *memRepo) GetSetting(ctx context.Context, key string) (string, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	v, ok := r.settings[key]
	return v, ok, nil
}

func (r *memRepo) SetSetting(ctx context.Context, key, value string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.settings[key] = value
	return nil
}

func (r *memRepo) Ping(ctx context.Context) error { return nil }
func (r *memRepo) Close() error                   { return nil }

func (r *memRepo) status(symbol string) model.Status {
	r.mu.Lock()
	defer r.mu.Unlock()
	var last model.Signal
	for _, s := range r.signals {
		if s.Symbol == symbol && s.ID > last.ID {
			last = s
		}
	}
	return last.Status
}

// fakeProvider returns one-bar series for every requested symbol except failing ones.
// With release set, each fetch signals started and blocks until release is closed.
type fakeProvider struct {
	mu        sync.Mutex
	fail      map[string]bool
	requested [][]string
	started   chan struct{}
	release   chan struct{}
}

func (p *fakeProvider) GetOHLCV(ctx context.Context, symbol, tf string, limit int) (model.Series, error) {
	return model.Series{Symbol: symbol, Timeframe: tf, Candles: []model.Candle{{Close: 100}}}, nil
}

func (p *fakeProvider) GetMultipleOHLCV(ctx context.Context, symbols, tfs []string, limit int) (model.MarketData, error) {
	p.mu.Lock()
	p.requested = append(p.requested, append([]string(nil), symbols...))
	p.mu.Unlock()
	if p.release != nil {
		select {
		case p.started <- struct{}{}:
		default:
		}
		<-p.release
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	md := model.MarketData{}
	for _, sym := range symbols {
		if p.fail[sym] {
			continue
		}
		for _, tf := range tfs {
			s, _ := p.GetOHLCV(ctx, sym, tf, limit)
			md.Set(s)
		}
	}
	return md, nil
}

func (p *fakeProvider) calls() [][]string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([][]string(nil), p.requested...)
}

// fakeDetector proposes a signal for every symbol it is given.
type fakeDetector struct {
	mode   model.StrategyMode
	expiry time.Duration
	grades map[string]model.Grade
	now    time.Time
}

func (d *fakeDetector) DetectSignals(ctx context.Context, data model.MarketData, riskPct float64) ([]model.SignalProposal, error) {
	syms := data.Symbols()
	sort.Strings(syms)
	var out []model.SignalProposal
	for _, sym := range syms {
		g := d.grades[sym]
		if g == "" {
			g = model.GradeB
		}
		out = append(out, model.SignalProposal{
			Symbol: sym, Timeframe: "15m",
			Entry: 100, StopLoss: 97, TakeProfit1: 103, TakeProfit2: 106,
			Grade: g, RiskPct: riskPct, RiskReward: 1,
			Triggers: []string{"breakout_retest"}, Reason: "test", Mode: d.mode,
			CreatedAt: d.now, ExpiresAt: d.now.Add(d.expiry),
		})
	}
	return out, nil
}

type sent struct {
	user model.User
	sig  model.Signal
}

type fakeNotifier struct {
	mu   sync.Mutex
	sent []sent
	fail map[int64]bool
}

func (n *fakeNotifier) Name() string { return "fake" }

func (n *fakeNotifier) SendSignal(ctx context.Context, u model.User, sig model.Signal) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.fail[u.TelegramID] {
		return errors.New("chat not found")
	}
	n.sent = append(n.sent, sent{u, sig})
	return nil
}

func (n *fakeNotifier) all() []sent {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]sent(nil), n.sent...)
}

type fakePublisher struct {
	mu  sync.Mutex
	ids []int64
	err error
}

func (p *fakePublisher) PublishSignal(ctx context.Context, sig model.Signal) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return p.err
	}
	p.ids = append(p.ids, sig.ID)
	return nil
}

type fakeAlerter struct {
	mu     sync.Mutex
	titles []string
}

func (a *fakeAlerter) Send(ctx context.Context, alert notification.Alert) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.titles = append(a.titles, alert.Title)
	return nil
}

func (a *fakeAlerter) count() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.titles)
}
