package postgres

import (
	"context"
	"database/sql"
	"time"

	"github.com/Techizta/mintiq-miniapp-sub000/internal/rewards"
)

// Store guarda boosters em Postgres (uma linha por usuário; ativar por cima
// de um booster vigente é rejeitado).
type Store struct{ db *sql.DB }

func New(db *sql.DB) *Store { return &Store{db: db} }

func (s *Store) Active(ctx context.Context, userID string, now time.Time) (rewards.Booster, bool, error) {
	var b rewards.Booster
	err := s.db.QueryRowContext(ctx, `
		SELECT user_id, multiplier, expires_at FROM boosters WHERE user_id=$1 AND expires_at > $2`,
		userID, now).Scan(&b.UserID, &b.Multiplier, &b.ExpiresAt)
	if err == sql.ErrNoRows {
		return rewards.Booster{}, false, nil
	}
	if err != nil {
		return rewards.Booster{}, false, err
	}
	return b, true, nil
}

func (s *Store) Activate(ctx context.Context, b rewards.Booster, now time.Time) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	var expires time.Time
	err = tx.QueryRowContext(ctx, `SELECT expires_at FROM boosters WHERE user_id=$1 FOR UPDATE`, b.UserID).Scan(&expires)
	switch {
	case err == sql.ErrNoRows:
		if _, err = tx.ExecContext(ctx, `
			INSERT INTO boosters(user_id, multiplier, expires_at) VALUES($1,$2,$3)`,
			b.UserID, b.Multiplier, b.ExpiresAt); err != nil {
			return err
		}
	case err != nil:
		return err
	case now.Before(expires):
		return rewards.ErrBoosterActive
	default:
		if _, err = tx.ExecContext(ctx, `
			UPDATE boosters SET multiplier=$1, expires_at=$2 WHERE user_id=$3`,
			b.Multiplier, b.ExpiresAt, b.UserID); err != nil {
			return err
		}
	}

	return tx.Commit()
}
