package database

import (
	"context"
	"database/sql"
	"fmt"

	"roulette/internal/game"
)

const (
	DEFAULT_HISTORY_LIMIT = 20
	MAX_HISTORY_LIMIT     = 200
)

// SpinStore keeps the history of resolved spins. It is write-only from the
// tables' point of view; balances are never restored from it.
type SpinStore struct {
	db *sql.DB
}

func NewSpinStore(db *sql.DB) *SpinStore {
	return &SpinStore{db: db}
}

func (s *SpinStore) Name() string { return "postgres-history" }

func (s *SpinStore) RecordSpin(ctx context.Context, rec game.SpinRecord) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO roulette_spins (session_id, bet, number, payout, balance_after, resolved_at)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		rec.SessionID, rec.Bet, rec.Number, rec.Payout, rec.BalanceAfter, rec.ResolvedAt,
	)
	if err != nil {
		return fmt.Errorf("insert spin: %w", err)
	}
	return nil
}

// RecentSpins returns the newest spins of a session, newest first.
func (s *SpinStore) RecentSpins(ctx context.Context, sessionID string, limit int) ([]game.SpinRecord, error) {
	if limit <= 0 {
		limit = DEFAULT_HISTORY_LIMIT
	}
	if limit > MAX_HISTORY_LIMIT {
		limit = MAX_HISTORY_LIMIT
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT session_id, bet, number, payout, balance_after, resolved_at
		FROM roulette_spins
		WHERE session_id = $1
		ORDER BY resolved_at DESC, id DESC
		LIMIT $2`,
		sessionID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("query spins: %w", err)
	}
	defer rows.Close()

	spins := make([]game.SpinRecord, 0, limit)
	for rows.Next() {
		var rec game.SpinRecord
		if err := rows.Scan(&rec.SessionID, &rec.Bet, &rec.Number, &rec.Payout, &rec.BalanceAfter, &rec.ResolvedAt); err != nil {
			return nil, fmt.Errorf("scan spin: %w", err)
		}
		spins = append(spins, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate spins: %w", err)
	}
	return spins, nil
}
