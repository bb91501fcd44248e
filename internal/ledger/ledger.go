package ledger

import (
	"context"
	"errors"
	"time"
)

var (
	ErrInsufficientFunds = errors.New("insufficient funds")
	ErrInvalidAmount     = errors.New("invalid amount")
	ErrNotFound          = errors.New("not found")
	// ErrConflict sinaliza disputa de concorrência; a operação composta
	// inteira pode ser reexecutada com a mesma chave de idempotência.
	ErrConflict = errors.New("concurrency conflict")
)

// Reason é o código de motivo gravado em cada transação do ledger.
// Toda mutação de saldo é atribuível a exatamente uma transação.
type Reason string

const (
	ReasonStake              Reason = "stake"
	ReasonStakeRefund        Reason = "stake_refund"
	ReasonPayout             Reason = "payout"
	ReasonTaskReward         Reason = "task_reward"
	ReasonReferralCommission Reason = "referral_commission"
	ReasonAdjustment         Reason = "adjustment"
)

// Earning indica se o crédito conta como ganho do usuário (alimenta os
// totais acumulados e os pontos de tier). Estornos de aposta não contam.
func (r Reason) Earning() bool {
	switch r {
	case ReasonPayout, ReasonTaskReward, ReasonReferralCommission:
		return true
	default:
		return false
	}
}

// Balance é o agregado autoritativo de saldo de um usuário.
// O saldo nunca fica negativo; totais acumulados só crescem.
type Balance struct {
	UserID      string
	Balance     int64
	TotalEarned int64
	TotalSpent  int64
	TotalWon    int64
	TierPoints  int64
	UpdatedAt   time.Time
}

// Tx é o resultado de um débito ou crédito. Applied=false significa que a
// transação com esse txID já havia sido aplicada antes (replay idempotente).
type Tx struct {
	TxID       string
	NewBalance int64
	Applied    bool
}

// Store é o ledger de pontos. Débitos e créditos do mesmo usuário são
// serializados (lock por usuário / por linha) e idempotentes por txID:
// reaplicar um txID devolve o resultado registrado sem mutar saldo.
type Store interface {
	// GetOrCreate devolve o saldo do usuário, criando a conta zerada se preciso.
	GetOrCreate(ctx context.Context, userID string) (Balance, error)

	// Debit falha com ErrInsufficientFunds quando amount > saldo.
	Debit(ctx context.Context, userID string, amount int64, reason Reason, txID string) (Tx, error)

	// Credit nunca falha pelo valor em si; incrementa o total acumulado
	// correspondente ao motivo (won/earned) e registra a transação.
	Credit(ctx context.Context, userID string, amount int64, reason Reason, txID string) (Tx, error)
}
