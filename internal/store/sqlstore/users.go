package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/vladr1050/crypto-long-signals-bot/internal/model"
)

// GetOrCreateUser returns the user, creating it with defaultRiskPct and
// signals enabled on first contact.
func (s *Store) GetOrCreateUser(ctx context.Context, tgID int64, defaultRiskPct float64) (model.User, error) {
	if _, err := s.exec(ctx, `
		INSERT INTO users (tg_id, risk_pct, signals_enabled, created_at) VALUES (?, ?, ?, ?)
		ON CONFLICT (tg_id) DO NOTHING
	`, tgID, defaultRiskPct, true, unix(s.now())); err != nil {
		return model.User{}, fmt.Errorf("sqlstore: create user %d: %w", tgID, err)
	}
	return s.getUser(ctx, tgID)
}

func (s *Store) getUser(ctx context.Context, tgID int64) (model.User, error) {
	var (
		u       model.User
		created int64
	)
	err := s.queryRow(ctx, `SELECT tg_id, risk_pct, signals_enabled, created_at FROM users WHERE tg_id = ?`, tgID).
		Scan(&u.TelegramID, &u.RiskPct, &u.SignalsEnabled, &created)
	if errors.Is(err, sql.ErrNoRows) {
		return model.User{}, fmt.Errorf("sqlstore: user %d: %w", tgID, model.ErrNotFound)
	}
	if err != nil {
		return model.User{}, fmt.Errorf("sqlstore: get user %d: %w", tgID, err)
	}
	u.CreatedAt = fromUnix(created)
	return u, nil
}

// UpdateUser stores risk and opt-in of an existing user.
func (s *Store) UpdateUser(ctx context.Context, u model.User) error {
	res, err := s.exec(ctx, `UPDATE users SET risk_pct = ?, signals_enabled = ? WHERE tg_id = ?`,
		u.RiskPct, u.SignalsEnabled, u.TelegramID)
	if err != nil {
		return fmt.Errorf("sqlstore: update user %d: %w", u.TelegramID, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("sqlstore: user %d: %w", u.TelegramID, model.ErrNotFound)
	}
	return nil
}

// UsersWithSignalsEnabled returns opted-in users.
func (s *Store) UsersWithSignalsEnabled(ctx context.Context) ([]model.User, error) {
	rows, err := s.query(ctx, `
		SELECT tg_id, risk_pct, signals_enabled, created_at FROM users
		WHERE signals_enabled = ? ORDER BY tg_id
	`, true)
	if err != nil {
		return nil, fmt.Errorf("sqlstore: query users: %w", err)
	}
	defer rows.Close()

	var out []model.User
	for rows.Next() {
		var (
			u       model.User
			created int64
		)
		if err := rows.Scan(&u.TelegramID, &u.RiskPct, &u.SignalsEnabled, &created); err != nil {
			return nil, fmt.Errorf("sqlstore: scan user: %w", err)
		}
		u.CreatedAt = fromUnix(created)
		out = append(out, u)
	}
	return out, rows.Err()
}
