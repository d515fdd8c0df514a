package sqlstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/vladr1050/crypto-long-signals-bot/internal/model"
)

const signalColumns = `id, symbol, timeframe, entry_price, stop_loss, take_profit_1, take_profit_2,
	grade, risk_pct, risk_reward, triggers, reason, mode, status, snooze_until,
	created_at, expires_at, updated_at`

// CreateSignal persists p as pending. The partial unique index rejects a
// second live signal for the symbol with model.ErrLiveSignalExists.
func (s *Store) CreateSignal(ctx context.Context, p model.SignalProposal) (model.Signal, error) {
	triggers, err := json.Marshal(p.Triggers)
	if err != nil {
		return model.Signal{}, fmt.Errorf("sqlstore: encode triggers: %w", err)
	}
	now := unix(s.now())

	var id int64
	err = s.queryRow(ctx, `
		INSERT INTO signals (symbol, timeframe, entry_price, stop_loss, take_profit_1, take_profit_2,
			grade, risk_pct, risk_reward, triggers, reason, mode, status, created_at, expires_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		RETURNING id
	`, p.Symbol, p.Timeframe, p.Entry, p.StopLoss, p.TakeProfit1, p.TakeProfit2,
		string(p.Grade), p.RiskPct, p.RiskReward, string(triggers), p.Reason, string(p.Mode),
		string(model.StatusPending), unix(p.CreatedAt), unix(p.ExpiresAt), now).Scan(&id)
	if err != nil {
		if isUniqueViolation(err) {
			return model.Signal{}, fmt.Errorf("sqlstore: %s: %w", p.Symbol, model.ErrLiveSignalExists)
		}
		return model.Signal{}, fmt.Errorf("sqlstore: insert signal %s: %w", p.Symbol, err)
	}
	return s.GetSignal(ctx, id)
}

// GetSignal loads one signal by id.
func (s *Store) GetSignal(ctx context.Context, id int64) (model.Signal, error) {
	sig, err := scanSignal(s.queryRow(ctx, `SELECT `+signalColumns+` FROM signals WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return model.Signal{}, fmt.Errorf("sqlstore: signal %d: %w", id, model.ErrNotFound)
	}
	if err != nil {
		return model.Signal{}, fmt.Errorf("sqlstore: get signal %d: %w", id, err)
	}
	return sig, nil
}

// LiveSignals returns pending and active signals, oldest first.
func (s *Store) LiveSignals(ctx context.Context) ([]model.Signal, error) {
	return s.signals(ctx, `SELECT `+signalColumns+` FROM signals
		WHERE status IN (?, ?) ORDER BY created_at, id`,
		string(model.StatusPending), string(model.StatusActive))
}

// RecentSignals returns the newest limit signals of any status.
func (s *Store) RecentSignals(ctx context.Context, limit int) ([]model.Signal, error) {
	if limit <= 0 {
		limit = 50
	}
	return s.signals(ctx, `SELECT `+signalColumns+` FROM signals
		ORDER BY created_at DESC, id DESC LIMIT ?`, limit)
}

// UpdateStatus applies a lifecycle transition. The update is conditional on
// the status that was read, so a concurrent change yields ErrInvalidTransition
// instead of a lost update.
func (s *Store) UpdateStatus(ctx context.Context, id int64, to model.Status) error {
	cur, err := s.GetSignal(ctx, id)
	if err != nil {
		return err
	}
	if !model.CanTransition(cur.Status, to) {
		return fmt.Errorf("sqlstore: signal %d %s -> %s: %w", id, cur.Status, to, model.ErrInvalidTransition)
	}
	res, err := s.exec(ctx, `UPDATE signals SET status = ?, updated_at = ? WHERE id = ? AND status = ?`,
		string(to), unix(s.now()), id, string(cur.Status))
	if err != nil {
		return fmt.Errorf("sqlstore: update signal %d: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("sqlstore: signal %d changed concurrently: %w", id, model.ErrInvalidTransition)
	}
	return nil
}

// Snooze sets snooze_until only.
func (s *Store) Snooze(ctx context.Context, id int64, until time.Time) error {
	res, err := s.exec(ctx, `UPDATE signals SET snooze_until = ?, updated_at = ? WHERE id = ?`,
		unix(until), unix(s.now()), id)
	if err != nil {
		return fmt.Errorf("sqlstore: snooze signal %d: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("sqlstore: signal %d: %w", id, model.ErrNotFound)
	}
	return nil
}

// ExpireSignals moves live signals whose expiry has passed to expired.
func (s *Store) ExpireSignals(ctx context.Context, now time.Time) (int, error) {
	res, err := s.exec(ctx, `UPDATE signals SET status = ?, updated_at = ?
		WHERE status IN (?, ?) AND expires_at <= ?`,
		string(model.StatusExpired), unix(now),
		string(model.StatusPending), string(model.StatusActive), unix(now))
	if err != nil {
		return 0, fmt.Errorf("sqlstore: expire signals: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("sqlstore: expire signals: %w", err)
	}
	if n > 0 {
		s.logger.Info().Int64("count", n).Msg("signals expired")
	}
	return int(n), nil
}

func (s *Store) signals(ctx context.Context, q string, args ...any) ([]model.Signal, error) {
	rows, err := s.query(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("sqlstore: query signals: %w", err)
	}
	defer rows.Close()

	var out []model.Signal
	for rows.Next() {
		sig, err := scanSignal(rows)
		if err != nil {
			return nil, fmt.Errorf("sqlstore: scan signal: %w", err)
		}
		out = append(out, sig)
	}
	return out, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanSignal(r scanner) (model.Signal, error) {
	var (
		sig                       model.Signal
		grade, triggers, mode, st string
		snooze                    sql.NullInt64
		created, expires, updated int64
	)
	err := r.Scan(&sig.ID, &sig.Symbol, &sig.Timeframe, &sig.Entry, &sig.StopLoss,
		&sig.TakeProfit1, &sig.TakeProfit2, &grade, &sig.RiskPct, &sig.RiskReward,
		&triggers, &sig.Reason, &mode, &st, &snooze, &created, &expires, &updated)
	if err != nil {
		return model.Signal{}, err
	}
	if err := json.Unmarshal([]byte(triggers), &sig.Triggers); err != nil {
		return model.Signal{}, fmt.Errorf("decode triggers: %w", err)
	}
	sig.Grade = model.Grade(grade)
	sig.Mode = model.StrategyMode(mode)
	sig.Status = model.Status(st)
	sig.CreatedAt = fromUnix(created)
	sig.ExpiresAt = fromUnix(expires)
	sig.UpdatedAt = fromUnix(updated)
	if snooze.Valid {
		t := fromUnix(snooze.Int64)
		sig.SnoozeUntil = &t
	}
	return sig, nil
}
