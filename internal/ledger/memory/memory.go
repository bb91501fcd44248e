package memory

import (
	"context"
	"sync"
	"time"

	"github.com/Techizta/mintiq-miniapp-sub000/internal/ledger"
)

// Store é o ledger em memória. Cada conta tem seu próprio mutex, então
// mutações do mesmo usuário são serializadas e usuários distintos não se
// bloqueiam. Usado nos testes e no modo local sem Postgres.
type Store struct {
	mu       sync.Mutex // protege o mapa de contas
	accounts map[string]*account

	// Now é injetável nos testes.
	Now func() time.Time
}

type account struct {
	mu  sync.Mutex
	bal ledger.Balance
	txs map[string]ledger.Tx // txID -> resultado registrado
}

func New() *Store {
	return &Store{
		accounts: make(map[string]*account),
		Now:      time.Now,
	}
}

func (s *Store) acct(userID string) *account {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.accounts[userID]
	if !ok {
		a = &account{
			bal: ledger.Balance{UserID: userID},
			txs: make(map[string]ledger.Tx),
		}
		s.accounts[userID] = a
	}
	return a
}

func (s *Store) GetOrCreate(_ context.Context, userID string) (ledger.Balance, error) {
	a := s.acct(userID)
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.bal, nil
}

func (s *Store) Debit(_ context.Context, userID string, amount int64, reason ledger.Reason, txID string) (ledger.Tx, error) {
	if amount <= 0 {
		return ledger.Tx{}, ledger.ErrInvalidAmount
	}

	a := s.acct(userID)
	a.mu.Lock()
	defer a.mu.Unlock()

	if prev, ok := a.txs[txID]; ok {
		return ledger.Tx{TxID: txID, NewBalance: prev.NewBalance, Applied: false}, nil
	}

	if a.bal.Balance < amount {
		return ledger.Tx{}, ledger.ErrInsufficientFunds
	}

	a.bal.Balance -= amount
	if reason == ledger.ReasonStake {
		a.bal.TotalSpent += amount
	}
	a.bal.UpdatedAt = s.Now()

	tx := ledger.Tx{TxID: txID, NewBalance: a.bal.Balance, Applied: true}
	a.txs[txID] = tx
	return tx, nil
}

func (s *Store) Credit(_ context.Context, userID string, amount int64, reason ledger.Reason, txID string) (ledger.Tx, error) {
	if amount <= 0 {
		return ledger.Tx{}, ledger.ErrInvalidAmount
	}

	a := s.acct(userID)
	a.mu.Lock()
	defer a.mu.Unlock()

	if prev, ok := a.txs[txID]; ok {
		return ledger.Tx{TxID: txID, NewBalance: prev.NewBalance, Applied: false}, nil
	}

	a.bal.Balance += amount
	switch {
	case reason == ledger.ReasonPayout:
		a.bal.TotalWon += amount
	case reason.Earning():
		a.bal.TotalEarned += amount
	case reason == ledger.ReasonStakeRefund:
		// estorno de aposta desfaz o gasto registrado pelo débito compensado
		a.bal.TotalSpent -= amount
	}
	if reason.Earning() {
		a.bal.TierPoints += amount
	}
	a.bal.UpdatedAt = s.Now()

	tx := ledger.Tx{TxID: txID, NewBalance: a.bal.Balance, Applied: true}
	a.txs[txID] = tx
	return tx, nil
}
