package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/lib/pq"

	"github.com/Techizta/mintiq-miniapp-sub000/internal/ledger"
)

// Store implementa o ledger de pontos em Postgres.
// Serialização por usuário via lock pessimista na linha de user_balances;
// idempotência via unique(tx_id) em point_transactions.
type Store struct{ db *sql.DB }

func New(db *sql.DB) *Store { return &Store{db: db} }

func (s *Store) GetOrCreate(ctx context.Context, userID string) (ledger.Balance, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return ledger.Balance{}, err
	}
	defer tx.Rollback()

	b, err := scanBalance(tx.QueryRowContext(ctx, `
		SELECT user_id, balance, total_earned, total_spent, total_won, tier_points, updated_at
		FROM user_balances WHERE user_id=$1`, userID))
	if err == sql.ErrNoRows {
		if _, err = tx.ExecContext(ctx, `
			INSERT INTO user_balances(user_id, balance, total_earned, total_spent, total_won, tier_points, updated_at)
			VALUES($1,0,0,0,0,0,NOW())`, userID); err != nil {
			return ledger.Balance{}, err
		}
		b = ledger.Balance{UserID: userID}
	} else if err != nil {
		return ledger.Balance{}, err
	}

	if err = tx.Commit(); err != nil {
		return ledger.Balance{}, err
	}
	return b, nil
}

func (s *Store) Debit(ctx context.Context, userID string, amount int64, reason ledger.Reason, txID string) (ledger.Tx, error) {
	if amount <= 0 {
		return ledger.Tx{}, ledger.ErrInvalidAmount
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return ledger.Tx{}, err
	}
	defer tx.Rollback()

	// Lock da linha do usuário serializa débitos/créditos concorrentes
	if err := lockUser(ctx, tx, userID); err != nil {
		return ledger.Tx{}, err
	}

	// Replay idempotente: devolve o resultado já registrado
	if prev, ok, err := lookupTx(ctx, tx, txID); err != nil {
		return ledger.Tx{}, err
	} else if ok {
		if err = tx.Commit(); err != nil {
			return ledger.Tx{}, err
		}
		return prev, nil
	}

	spent := int64(0)
	if reason == ledger.ReasonStake {
		spent = amount
	}
	res, err := tx.ExecContext(ctx, `
		UPDATE user_balances
		SET balance = balance - $2, total_spent = total_spent + $3, updated_at = NOW()
		WHERE user_id = $1 AND balance >= $2`, userID, amount, spent)
	if err != nil {
		return ledger.Tx{}, err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return ledger.Tx{}, err
	}
	if affected == 0 {
		return ledger.Tx{}, ledger.ErrInsufficientFunds
	}

	out, err := insertTx(ctx, tx, txID, userID, "DEBIT", amount, reason)
	if err != nil {
		return ledger.Tx{}, err
	}

	if err = tx.Commit(); err != nil {
		return ledger.Tx{}, err
	}
	return out, nil
}

func (s *Store) Credit(ctx context.Context, userID string, amount int64, reason ledger.Reason, txID string) (ledger.Tx, error) {
	if amount <= 0 {
		return ledger.Tx{}, ledger.ErrInvalidAmount
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return ledger.Tx{}, err
	}
	defer tx.Rollback()

	if err := lockUser(ctx, tx, userID); err != nil {
		return ledger.Tx{}, err
	}

	if prev, ok, err := lookupTx(ctx, tx, txID); err != nil {
		return ledger.Tx{}, err
	} else if ok {
		if err = tx.Commit(); err != nil {
			return ledger.Tx{}, err
		}
		return prev, nil
	}

	var won, earned, tierPts, spentBack int64
	switch {
	case reason == ledger.ReasonPayout:
		won = amount
	case reason.Earning():
		earned = amount
	case reason == ledger.ReasonStakeRefund:
		// estorno desfaz o gasto do débito compensado
		spentBack = amount
	}
	if reason.Earning() {
		tierPts = amount
	}

	if _, err = tx.ExecContext(ctx, `
		UPDATE user_balances
		SET balance = balance + $2,
		    total_won = total_won + $3,
		    total_earned = total_earned + $4,
		    total_spent = total_spent - $5,
		    tier_points = tier_points + $6,
		    updated_at = NOW()
		WHERE user_id = $1`, userID, amount, won, earned, spentBack, tierPts); err != nil {
		return ledger.Tx{}, err
	}

	out, err := insertTx(ctx, tx, txID, userID, "CREDIT", amount, reason)
	if err != nil {
		return ledger.Tx{}, err
	}

	if err = tx.Commit(); err != nil {
		return ledger.Tx{}, err
	}
	return out, nil
}

// lockUser garante que a linha exista e a tranca até o fim da transação.
func lockUser(ctx context.Context, tx *sql.Tx, userID string) error {
	var id string
	err := tx.QueryRowContext(ctx, `SELECT user_id FROM user_balances WHERE user_id=$1 FOR UPDATE`, userID).Scan(&id)
	if err == sql.ErrNoRows {
		if _, err = tx.ExecContext(ctx, `
			INSERT INTO user_balances(user_id, balance, total_earned, total_spent, total_won, tier_points, updated_at)
			VALUES($1,0,0,0,0,0,NOW())
			ON CONFLICT (user_id) DO NOTHING`, userID); err != nil {
			return err
		}
		return tx.QueryRowContext(ctx, `SELECT user_id FROM user_balances WHERE user_id=$1 FOR UPDATE`, userID).Scan(&id)
	}
	return err
}

func lookupTx(ctx context.Context, tx *sql.Tx, txID string) (ledger.Tx, bool, error) {
	var newBalance int64
	err := tx.QueryRowContext(ctx, `SELECT new_balance FROM point_transactions WHERE tx_id=$1`, txID).Scan(&newBalance)
	if err == sql.ErrNoRows {
		return ledger.Tx{}, false, nil
	}
	if err != nil {
		return ledger.Tx{}, false, err
	}
	return ledger.Tx{TxID: txID, NewBalance: newBalance, Applied: false}, true, nil
}

func insertTx(ctx context.Context, tx *sql.Tx, txID, userID, kind string, amount int64, reason ledger.Reason) (ledger.Tx, error) {
	var newBalance int64
	if err := tx.QueryRowContext(ctx, `SELECT balance FROM user_balances WHERE user_id=$1`, userID).Scan(&newBalance); err != nil {
		return ledger.Tx{}, err
	}

	_, err := tx.ExecContext(ctx, `
		INSERT INTO point_transactions(tx_id, user_id, kind, amount, reason, new_balance, created_at)
		VALUES($1,$2,$3,$4,$5,$6,NOW())`, txID, userID, kind, amount, string(reason), newBalance)
	if err != nil {
		// corrida entre dois replays do mesmo txID: quem perdeu o insert
		// reexecuta a operação inteira
		if pqErr, ok := err.(*pq.Error); ok && pqErr.Code == "23505" {
			return ledger.Tx{}, fmt.Errorf("tx %s already recorded: %w", txID, ledger.ErrConflict)
		}
		return ledger.Tx{}, err
	}
	return ledger.Tx{TxID: txID, NewBalance: newBalance, Applied: true}, nil
}

func scanBalance(row *sql.Row) (ledger.Balance, error) {
	var b ledger.Balance
	err := row.Scan(&b.UserID, &b.Balance, &b.TotalEarned, &b.TotalSpent, &b.TotalWon, &b.TierPoints, &b.UpdatedAt)
	return b, err
}
