package market

import (
	"context"
	"errors"
	"fmt"
	"time"
)

var (
	ErrNotFound       = errors.New("market not found")
	ErrMarketClosed   = errors.New("market closed")
	ErrAlreadySettled = errors.New("already settled")
	ErrConflict       = errors.New("concurrency conflict")
)

// Outcome identifica um dos dois lados do mercado.
type Outcome string

const (
	OutcomeA Outcome = "A"
	OutcomeB Outcome = "B"
)

func ParseOutcome(s string) (Outcome, error) {
	switch Outcome(s) {
	case OutcomeA, OutcomeB:
		return Outcome(s), nil
	default:
		return "", fmt.Errorf("invalid outcome %q", s)
	}
}

type Status string

const (
	StatusOpen     Status = "OPEN"
	StatusLocked   Status = "LOCKED"
	StatusResolved Status = "RESOLVED"
)

// Market é um mercado binário com prazo. Invariante: PoolA+PoolB é sempre
// igual à soma das apostas aceitas.
type Market struct {
	ID             string
	LabelA         string
	LabelB         string
	PoolA          int64
	PoolB          int64
	Participants   int64
	Status         Status
	Deadline       time.Time
	WinningOutcome Outcome // vazio até resolver
	Settled        bool    // pagamentos aplicados exatamente uma vez
	CreatedAt      time.Time
}

// Pool devolve o total apostado no lado informado.
func (m *Market) Pool(o Outcome) int64 {
	if o == OutcomeA {
		return m.PoolA
	}
	return m.PoolB
}

// AcceptsStakes informa se o mercado ainda aceita apostas no instante dado.
func (m *Market) AcceptsStakes(now time.Time) bool {
	return m.Status == StatusOpen && now.Before(m.Deadline)
}

// Stake é uma aposta aceita. Valor e lado são imutáveis após a criação;
// Payout é escrito exatamente uma vez, na liquidação.
type Stake struct {
	ID       string
	MarketID string
	UserID   string
	Outcome  Outcome
	Amount   int64
	PlacedAt time.Time
	Payout   int64 // válido apenas quando Settled
	Settled  bool
}

// Store é a contabilidade de pools e apostas. Mutações do mesmo mercado são
// serializadas (lock por mercado / por linha).
type Store interface {
	Create(ctx context.Context, m Market) error
	Get(ctx context.Context, id string) (Market, error)

	// AddStake rejeita com ErrMarketClosed quando o mercado não está OPEN ou
	// o prazo já passou; senão incrementa o pool do lado escolhido e o
	// contador de participantes e persiste a aposta — tudo atômico.
	AddStake(ctx context.Context, s Stake) (Market, error)

	// Lock fecha o mercado para novas apostas (disparado pelo scheduler no
	// deadline ou pelo início da resolução).
	Lock(ctx context.Context, id string) error

	// Resolve marca o resultado vencedor. Reaplicar com o mesmo resultado é
	// um no-op; mercado já liquidado devolve ErrAlreadySettled.
	Resolve(ctx context.Context, id string, winning Outcome) (Market, error)

	// Stakes lista todas as apostas do mercado, na ordem de colocação.
	Stakes(ctx context.Context, marketID string) ([]Stake, error)

	// SettleStake grava o payout de uma aposta exatamente uma vez.
	// Reaplicar devolve ErrAlreadySettled.
	SettleStake(ctx context.Context, stakeID string, payout int64) error

	// MarkSettled marca o mercado como liquidado após processar toda aposta.
	MarkSettled(ctx context.Context, id string) error
}
