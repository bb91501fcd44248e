package memory

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/Techizta/mintiq-miniapp-sub000/internal/referral"
)

// Store guarda arestas de indicação em memória (testes e modo local).
type Store struct {
	mu    sync.Mutex
	edges map[string]*referral.Edge // userID indicado -> aresta
}

func New() *Store {
	return &Store{edges: make(map[string]*referral.Edge)}
}

func (s *Store) Referrer(_ context.Context, userID string) (string, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.edges[userID]
	if !ok {
		return "", false, nil
	}
	return e.ReferrerID, true, nil
}

func (s *Store) Link(_ context.Context, referrerID, userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.edges[userID]; ok {
		return fmt.Errorf("user %s already has a referrer", userID)
	}
	s.edges[userID] = &referral.Edge{ReferrerID: referrerID, UserID: userID, CreatedAt: time.Now()}
	return nil
}

func (s *Store) AddEarned(_ context.Context, referrerID, userID string, amount int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.edges[userID]
	if !ok || e.ReferrerID != referrerID {
		return fmt.Errorf("edge %s<-%s not found", referrerID, userID)
	}
	e.EarnedTotal += amount
	return nil
}

// Earned devolve o total já comissionado por uma aresta (apoio aos testes).
func (s *Store) Earned(userID string) int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	if e, ok := s.edges[userID]; ok {
		return e.EarnedTotal
	}
	return 0
}
