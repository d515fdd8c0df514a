package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/vladr1050/crypto-long-signals-bot/internal/model"
)

// ListPairs returns all pairs ordered by symbol.
func (s *Store) ListPairs(ctx context.Context) ([]model.Pair, error) {
	return s.pairs(ctx, `SELECT symbol, enabled, created_at FROM pairs ORDER BY symbol`)
}

// EnabledPairs returns enabled pairs ordered by symbol.
func (s *Store) EnabledPairs(ctx context.Context) ([]model.Pair, error) {
	return s.pairs(ctx, `SELECT symbol, enabled, created_at FROM pairs WHERE enabled = ? ORDER BY symbol`, true)
}

func (s *Store) pairs(ctx context.Context, q string, args ...any) ([]model.Pair, error) {
	rows, err := s.query(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("sqlstore: query pairs: %w", err)
	}
	defer rows.Close()

	var out []model.Pair
	for rows.Next() {
		var (
			p       model.Pair
			created int64
		)
		if err := rows.Scan(&p.Symbol, &p.Enabled, &created); err != nil {
			return nil, fmt.Errorf("sqlstore: scan pair: %w", err)
		}
		p.CreatedAt = fromUnix(created)
		out = append(out, p)
	}
	return out, rows.Err()
}

// AddPair inserts symbol as enabled, re-enabling it if it already exists.
func (s *Store) AddPair(ctx context.Context, symbol string) error {
	_, err := s.exec(ctx, `
		INSERT INTO pairs (symbol, enabled, created_at) VALUES (?, ?, ?)
		ON CONFLICT (symbol) DO UPDATE SET enabled = excluded.enabled
	`, model.NormalizeSymbol(symbol), true, unix(s.now()))
	if err != nil {
		return fmt.Errorf("sqlstore: add pair %s: %w", symbol, err)
	}
	return nil
}

// TogglePair flips enabled and returns the new value.
func (s *Store) TogglePair(ctx context.Context, symbol string) (bool, error) {
	var enabled bool
	err := s.queryRow(ctx, `UPDATE pairs SET enabled = NOT enabled WHERE symbol = ? RETURNING enabled`,
		model.NormalizeSymbol(symbol)).Scan(&enabled)
	if errors.Is(err, sql.ErrNoRows) {
		return false, fmt.Errorf("sqlstore: pair %s: %w", symbol, model.ErrNotFound)
	}
	if err != nil {
		return false, fmt.Errorf("sqlstore: toggle pair %s: %w", symbol, err)
	}
	return enabled, nil
}

// EnsurePairs inserts any missing symbols as enabled.
func (s *Store) EnsurePairs(ctx context.Context, symbols []string) error {
	now := unix(s.now())
	for _, sym := range symbols {
		if _, err := s.exec(ctx, `
			INSERT INTO pairs (symbol, enabled, created_at) VALUES (?, ?, ?)
			ON CONFLICT (symbol) DO NOTHING
		`, model.NormalizeSymbol(sym), true, now); err != nil {
			return fmt.Errorf("sqlstore: ensure pair %s: %w", sym, err)
		}
	}
	return nil
}
