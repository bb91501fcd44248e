package memory

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/Techizta/mintiq-miniapp-sub000/internal/market"
)

// Store é a contabilidade de mercados em memória. Cada mercado tem seu
// próprio mutex, então apostas no mesmo mercado são serializadas e mercados
// distintos não se bloqueiam. Usado nos testes e no modo local sem Postgres.
type Store struct {
	mu      sync.Mutex // protege os mapas
	markets map[string]*entry
	stakes  map[string]string // stakeID -> marketID

	// Now é injetável nos testes.
	Now func() time.Time
}

type entry struct {
	mu     sync.Mutex
	m      market.Market
	stakes []*market.Stake
	byID   map[string]*market.Stake
}

func New() *Store {
	return &Store{
		markets: make(map[string]*entry),
		stakes:  make(map[string]string),
		Now:     time.Now,
	}
}

func (s *Store) entry(id string) (*entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.markets[id]
	if !ok {
		return nil, market.ErrNotFound
	}
	return e, nil
}

func (s *Store) Create(_ context.Context, m market.Market) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.markets[m.ID]; ok {
		return fmt.Errorf("market %s: %w", m.ID, market.ErrConflict)
	}
	if m.Status == "" {
		m.Status = market.StatusOpen
	}
	s.markets[m.ID] = &entry{m: m, byID: make(map[string]*market.Stake)}
	return nil
}

func (s *Store) Get(_ context.Context, id string) (market.Market, error) {
	e, err := s.entry(id)
	if err != nil {
		return market.Market{}, err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.m, nil
}

func (s *Store) AddStake(_ context.Context, st market.Stake) (market.Market, error) {
	e, err := s.entry(st.MarketID)
	if err != nil {
		return market.Market{}, err
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if !e.m.AcceptsStakes(s.Now()) {
		return market.Market{}, market.ErrMarketClosed
	}

	cp := st
	if cp.PlacedAt.IsZero() {
		cp.PlacedAt = s.Now()
	}
	if st.Outcome == market.OutcomeA {
		e.m.PoolA += st.Amount
	} else {
		e.m.PoolB += st.Amount
	}
	e.m.Participants++
	e.stakes = append(e.stakes, &cp)
	e.byID[cp.ID] = &cp

	s.mu.Lock()
	s.stakes[cp.ID] = cp.MarketID
	s.mu.Unlock()

	return e.m, nil
}

func (s *Store) Lock(_ context.Context, id string) error {
	e, err := s.entry(id)
	if err != nil {
		return err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.m.Status == market.StatusOpen {
		e.m.Status = market.StatusLocked
	}
	return nil
}

func (s *Store) Resolve(_ context.Context, id string, winning market.Outcome) (market.Market, error) {
	e, err := s.entry(id)
	if err != nil {
		return market.Market{}, err
	}
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.m.Settled {
		return market.Market{}, market.ErrAlreadySettled
	}
	if e.m.Status == market.StatusResolved {
		if e.m.WinningOutcome != winning {
			return market.Market{}, fmt.Errorf("market %s resolved as %s: %w", id, e.m.WinningOutcome, market.ErrConflict)
		}
		return e.m, nil // retomada após falha parcial
	}

	e.m.Status = market.StatusResolved
	e.m.WinningOutcome = winning
	return e.m, nil
}

func (s *Store) Stakes(_ context.Context, marketID string) ([]market.Stake, error) {
	e, err := s.entry(marketID)
	if err != nil {
		return nil, err
	}
	e.mu.Lock()
	defer e.mu.Unlock()

	out := make([]market.Stake, 0, len(e.stakes))
	for _, st := range e.stakes {
		out = append(out, *st)
	}
	return out, nil
}

func (s *Store) SettleStake(_ context.Context, stakeID string, payout int64) error {
	s.mu.Lock()
	marketID, ok := s.stakes[stakeID]
	s.mu.Unlock()
	if !ok {
		return market.ErrNotFound
	}

	e, err := s.entry(marketID)
	if err != nil {
		return err
	}
	e.mu.Lock()
	defer e.mu.Unlock()

	st := e.byID[stakeID]
	if st.Settled {
		return market.ErrAlreadySettled
	}
	st.Payout = payout
	st.Settled = true
	return nil
}

func (s *Store) MarkSettled(_ context.Context, id string) error {
	e, err := s.entry(id)
	if err != nil {
		return err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	e.m.Settled = true
	return nil
}
