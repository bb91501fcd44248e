package schedule

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/Techizta/mintiq-miniapp-sub000/internal/market"
)

// Locker trava um mercado para novas apostas.
type Locker interface {
	Lock(ctx context.Context, marketID string) error
}

// Scheduler agenda o travamento automático de cada mercado no deadline.
// O travamento é defesa em profundidade: a validação de aposta também checa
// o deadline, então um timer perdido não deixa passar aposta atrasada.
type Scheduler struct {
	log    *zap.Logger
	locker Locker

	mu     sync.Mutex
	timers map[string]*time.Timer
	closed bool

	// OnLocked é chamado depois de cada travamento bem-sucedido (métricas).
	OnLocked func()
	// OnAfterLock recebe o id do mercado travado (invalidação de cache).
	OnAfterLock func(marketID string)
}

func New(log *zap.Logger, locker Locker) *Scheduler {
	return &Scheduler{
		log:    log,
		locker: locker,
		timers: make(map[string]*time.Timer),
	}
}

// Schedule agenda o travamento do mercado no deadline dado. Deadline já
// vencido dispara imediatamente. Reagendar o mesmo mercado substitui o timer
// anterior.
func (s *Scheduler) Schedule(marketID string, deadline time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	if t, ok := s.timers[marketID]; ok {
		t.Stop()
	}

	d := time.Until(deadline)
	if d < 0 {
		d = 0
	}
	s.timers[marketID] = time.AfterFunc(d, func() { s.fire(marketID) })
}

// Cancel remove o timer de um mercado (resolvido antes do deadline).
func (s *Scheduler) Cancel(marketID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if t, ok := s.timers[marketID]; ok {
		t.Stop()
		delete(s.timers, marketID)
	}
}

// Stop cancela todos os timers pendentes. Usado no shutdown.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	for id, t := range s.timers {
		t.Stop()
		delete(s.timers, id)
	}
}

func (s *Scheduler) fire(marketID string) {
	s.mu.Lock()
	delete(s.timers, marketID)
	s.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	err := s.locker.Lock(ctx, marketID)
	switch {
	case err == nil:
		s.log.Info("market locked at deadline", zap.String("marketId", marketID))
		if s.OnLocked != nil {
			s.OnLocked()
		}
		if s.OnAfterLock != nil {
			s.OnAfterLock(marketID)
		}
	case errors.Is(err, market.ErrNotFound):
		// timer sobreviveu a um mercado removido
	default:
		s.log.Error("deadline lock failed", zap.String("marketId", marketID), zap.Error(err))
	}
}
