package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/lib/pq"

	"github.com/Techizta/mintiq-miniapp-sub000/internal/market"
)

// Store implementa a contabilidade de mercados/apostas em Postgres.
// Serialização por mercado via lock pessimista na linha de markets.
type Store struct{ db *sql.DB }

func New(db *sql.DB) *Store { return &Store{db: db} }

func (s *Store) Create(ctx context.Context, m market.Market) error {
	status := m.Status
	if status == "" {
		status = market.StatusOpen
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO markets (id, label_a, label_b, pool_a, pool_b, participants, status, deadline, settled, created_at)
		VALUES ($1,$2,$3,0,0,0,$4,$5,false,NOW())`,
		m.ID, m.LabelA, m.LabelB, string(status), m.Deadline,
	)
	if pqErr, ok := err.(*pq.Error); ok && pqErr.Code == "23505" {
		return fmt.Errorf("market %s: %w", m.ID, market.ErrConflict)
	}
	return err
}

func (s *Store) Get(ctx context.Context, id string) (market.Market, error) {
	return scanMarket(s.db.QueryRowContext(ctx, selectMarket+` WHERE id=$1`, id))
}

func (s *Store) AddStake(ctx context.Context, st market.Stake) (market.Market, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return market.Market{}, err
	}
	defer tx.Rollback()

	m, err := scanMarket(tx.QueryRowContext(ctx, selectMarket+` WHERE id=$1 FOR UPDATE`, st.MarketID))
	if err != nil {
		return market.Market{}, err
	}
	if !m.AcceptsStakes(time.Now()) {
		return market.Market{}, market.ErrMarketClosed
	}

	col := "pool_a"
	if st.Outcome == market.OutcomeB {
		col = "pool_b"
	}
	if _, err = tx.ExecContext(ctx, fmt.Sprintf(`
		UPDATE markets SET %s = %s + $1, participants = participants + 1 WHERE id=$2`, col, col),
		st.Amount, st.MarketID); err != nil {
		return market.Market{}, err
	}

	if _, err = tx.ExecContext(ctx, `
		INSERT INTO stakes (id, market_id, user_id, outcome, amount, placed_at, payout, settled)
		VALUES ($1,$2,$3,$4,$5,NOW(),0,false)`,
		st.ID, st.MarketID, st.UserID, string(st.Outcome), st.Amount); err != nil {
		return market.Market{}, err
	}

	m, err = scanMarket(tx.QueryRowContext(ctx, selectMarket+` WHERE id=$1`, st.MarketID))
	if err != nil {
		return market.Market{}, err
	}

	if err = tx.Commit(); err != nil {
		return market.Market{}, err
	}
	return m, nil
}

func (s *Store) Lock(ctx context.Context, id string) error {
	_, err := s.db.ExecContext(ctx, `UPDATE markets SET status=$1 WHERE id=$2 AND status=$3`,
		string(market.StatusLocked), id, string(market.StatusOpen))
	return err
}

func (s *Store) Resolve(ctx context.Context, id string, winning market.Outcome) (market.Market, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return market.Market{}, err
	}
	defer tx.Rollback()

	m, err := scanMarket(tx.QueryRowContext(ctx, selectMarket+` WHERE id=$1 FOR UPDATE`, id))
	if err != nil {
		return market.Market{}, err
	}

	switch {
	case m.Settled:
		return market.Market{}, market.ErrAlreadySettled
	case m.Status == market.StatusResolved && m.WinningOutcome != winning:
		return market.Market{}, fmt.Errorf("market %s resolved as %s: %w", id, m.WinningOutcome, market.ErrConflict)
	case m.Status != market.StatusResolved:
		if _, err = tx.ExecContext(ctx, `UPDATE markets SET status=$1, winning_outcome=$2 WHERE id=$3`,
			string(market.StatusResolved), string(winning), id); err != nil {
			return market.Market{}, err
		}
		m.Status = market.StatusResolved
		m.WinningOutcome = winning
	}

	if err = tx.Commit(); err != nil {
		return market.Market{}, err
	}
	return m, nil
}

func (s *Store) Stakes(ctx context.Context, marketID string) ([]market.Stake, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, market_id, user_id, outcome, amount, placed_at, payout, settled
		FROM stakes WHERE market_id=$1 ORDER BY placed_at, id`, marketID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []market.Stake
	for rows.Next() {
		var st market.Stake
		var outcome string
		if err := rows.Scan(&st.ID, &st.MarketID, &st.UserID, &outcome, &st.Amount, &st.PlacedAt, &st.Payout, &st.Settled); err != nil {
			return nil, err
		}
		st.Outcome = market.Outcome(outcome)
		out = append(out, st)
	}
	return out, rows.Err()
}

// SettleStake grava o payout uma única vez: o UPDATE condicional em
// settled=false faz a escrita ser exatamente-uma-vez mesmo com retomadas.
func (s *Store) SettleStake(ctx context.Context, stakeID string, payout int64) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE stakes SET payout=$1, settled=true WHERE id=$2 AND settled=false`, payout, stakeID)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return market.ErrAlreadySettled
	}
	return nil
}

func (s *Store) MarkSettled(ctx context.Context, id string) error {
	_, err := s.db.ExecContext(ctx, `UPDATE markets SET settled=true WHERE id=$1`, id)
	return err
}

const selectMarket = `
	SELECT id, label_a, label_b, pool_a, pool_b, participants, status, deadline,
	       COALESCE(winning_outcome, ''), settled, created_at
	FROM markets`

func scanMarket(row *sql.Row) (market.Market, error) {
	var m market.Market
	var status, winning string
	err := row.Scan(&m.ID, &m.LabelA, &m.LabelB, &m.PoolA, &m.PoolB, &m.Participants,
		&status, &m.Deadline, &winning, &m.Settled, &m.CreatedAt)
	if err == sql.ErrNoRows {
		return market.Market{}, market.ErrNotFound
	}
	if err != nil {
		return market.Market{}, err
	}
	m.Status = market.Status(status)
	m.WinningOutcome = market.Outcome(winning)
	return m, nil
}
