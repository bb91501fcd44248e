package postgres

import (
	"context"
	"database/sql"

	"github.com/Techizta/mintiq-miniapp-sub000/internal/referral"
)

// Store guarda arestas de indicação em Postgres.
type Store struct{ db *sql.DB }

func New(db *sql.DB) *Store { return &Store{db: db} }

func (s *Store) Referrer(ctx context.Context, userID string) (string, bool, error) {
	var referrerID string
	err := s.db.QueryRowContext(ctx, `SELECT referrer_id FROM referral_edges WHERE user_id=$1`, userID).Scan(&referrerID)
	if err == sql.ErrNoRows {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return referrerID, true, nil
}

func (s *Store) Link(ctx context.Context, referrerID, userID string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO referral_edges(referrer_id, user_id, earned_total, created_at)
		VALUES($1,$2,0,NOW())`, referrerID, userID)
	return err
}

func (s *Store) AddEarned(ctx context.Context, referrerID, userID string, amount int64) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE referral_edges SET earned_total = earned_total + $1
		WHERE referrer_id=$2 AND user_id=$3`, amount, referrerID, userID)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return referral.ErrEdgeNotFound
	}
	return nil
}
