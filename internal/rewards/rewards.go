package rewards

import (
	"context"
	"errors"
	"math"
	"time"
)

// ErrBoosterActive é devolvido ao tentar ativar um booster com outro ainda
// vigente — substituir encurtaria silenciosamente a janela já paga.
var ErrBoosterActive = errors.New("booster already active")

// Tier é um nível de standing com multiplicador de recompensa fixo e a taxa
// de comissão de indicação correspondente.
type Tier struct {
	Name           string
	MinPoints      int64
	Multiplier     float64
	CommissionRate float64
}

// Tabela ordenada por MinPoints crescente; o tier do usuário é a última
// entrada cujo piso ele alcançou.
var tiers = []Tier{
	{Name: "bronze", MinPoints: 0, Multiplier: 1.0, CommissionRate: 0.03},
	{Name: "silver", MinPoints: 1_000, Multiplier: 1.05, CommissionRate: 0.04},
	{Name: "gold", MinPoints: 5_000, Multiplier: 1.10, CommissionRate: 0.05},
	{Name: "platinum", MinPoints: 20_000, Multiplier: 1.25, CommissionRate: 0.06},
	{Name: "diamond", MinPoints: 100_000, Multiplier: 1.50, CommissionRate: 0.07},
}

// TierFor devolve o tier correspondente aos pontos acumulados.
func TierFor(points int64) Tier {
	cur := tiers[0]
	for _, t := range tiers[1:] {
		if points < t.MinPoints {
			break
		}
		cur = t
	}
	return cur
}

// Booster é um multiplicador temporário ativado pelo usuário.
// No máximo um ativo por usuário.
type Booster struct {
	UserID     string
	Multiplier float64
	ExpiresAt  time.Time
}

func (b Booster) ActiveAt(t time.Time) bool { return t.Before(b.ExpiresAt) }

// BoosterStore guarda o booster corrente de cada usuário.
type BoosterStore interface {
	// Active devolve o booster vigente no instante dado, se houver.
	Active(ctx context.Context, userID string, now time.Time) (Booster, bool, error)
	// Activate registra um booster novo; falha com ErrBoosterActive se já
	// houver um vigente.
	Activate(ctx context.Context, b Booster, now time.Time) error
}

// Resolver calcula o multiplicador efetivo de recompensa de um usuário:
// tier (pelos pontos acumulados) vezes booster ativo.
type Resolver struct {
	boosters BoosterStore
	now      func() time.Time
}

func NewResolver(boosters BoosterStore) *Resolver {
	return &Resolver{boosters: boosters, now: time.Now}
}

// WithClock troca o relógio do resolver (testes).
func (r *Resolver) WithClock(now func() time.Time) *Resolver {
	r.now = now
	return r
}

// Resolve aplica tier e booster sobre base e devolve o valor final em pontos
// inteiros (piso). A base aqui é só a porção de ganho — nunca a aposta
// devolvida.
func (r *Resolver) Resolve(ctx context.Context, userID string, tierPoints int64, base int64) (int64, error) {
	if base <= 0 {
		return 0, nil
	}

	mult := TierFor(tierPoints).Multiplier
	if b, ok, err := r.boosters.Active(ctx, userID, r.now()); err != nil {
		return 0, err
	} else if ok {
		mult *= b.Multiplier
	}

	return int64(math.Floor(float64(base) * mult)), nil
}
