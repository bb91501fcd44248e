package memory

import (
	"context"
	"sync"
	"time"

	"github.com/Techizta/mintiq-miniapp-sub000/internal/rewards"
)

// Store guarda boosters em memória (testes e modo local).
type Store struct {
	mu       sync.Mutex
	boosters map[string]rewards.Booster
}

func New() *Store {
	return &Store{boosters: make(map[string]rewards.Booster)}
}

func (s *Store) Active(_ context.Context, userID string, now time.Time) (rewards.Booster, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.boosters[userID]
	if !ok || !b.ActiveAt(now) {
		return rewards.Booster{}, false, nil
	}
	return b, true, nil
}

func (s *Store) Activate(_ context.Context, b rewards.Booster, now time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if cur, ok := s.boosters[b.UserID]; ok && cur.ActiveAt(now) {
		return rewards.ErrBoosterActive
	}
	s.boosters[b.UserID] = b
	return nil
}
