package referral

import (
	"context"
	"errors"
	"math"
	"time"

	"go.uber.org/zap"

	"github.com/Techizta/mintiq-miniapp-sub000/internal/ledger"
	"github.com/Techizta/mintiq-miniapp-sub000/internal/rewards"
	"github.com/Techizta/mintiq-miniapp-sub000/pkg/contracts/events"
)

var ErrEdgeNotFound = errors.New("referral edge not found")

// Edge liga um usuário ao seu referenciador e acumula o total já comissionado.
type Edge struct {
	ReferrerID  string
	UserID      string
	EarnedTotal int64
	CreatedAt   time.Time
}

// Store guarda as arestas de indicação. Um usuário tem no máximo um
// referenciador; a propagação é estritamente de um nível.
type Store interface {
	Referrer(ctx context.Context, userID string) (string, bool, error)
	Link(ctx context.Context, referrerID, userID string) error
	AddEarned(ctx context.Context, referrerID, userID string, amount int64) error
}

// Publisher emite o evento de comissão para consumidores externos.
type Publisher interface {
	PublishReferralCommission(ctx context.Context, e events.ReferralCommissionCredited) error
}

// Cascade propaga uma porcentagem dos ganhos líquidos de um usuário para o
// seu referenciador, via ledger. Idempotente por transação de origem: o txID
// derivado garante que um retry não credite a comissão duas vezes.
type Cascade struct {
	log    *zap.Logger
	edges  Store
	ledger ledger.Store
	publ   Publisher // opcional

	// rateFor deriva a taxa de comissão dos pontos de tier do referenciador.
	rateFor func(tierPoints int64) float64
}

func NewCascade(log *zap.Logger, edges Store, led ledger.Store, publ Publisher) *Cascade {
	return &Cascade{
		log:    log,
		edges:  edges,
		ledger: led,
		publ:   publ,
		rateFor: func(tierPoints int64) float64 {
			return rewards.TierFor(tierPoints).CommissionRate
		},
	}
}

// WithRate troca a derivação de taxa (testes e campanhas promocionais).
func (c *Cascade) WithRate(rateFor func(tierPoints int64) float64) *Cascade {
	c.rateFor = rateFor
	return c
}

// OnEarning processa um crédito de ganho (payout, recompensa de tarefa) do
// usuário. O crédito original não é reduzido; a comissão é um crédito extra
// ao referenciador, marcada referral_commission.
func (c *Cascade) OnEarning(ctx context.Context, userID string, amount int64, originTxID string) error {
	if amount <= 0 {
		return nil
	}

	referrerID, ok, err := c.edges.Referrer(ctx, userID)
	if err != nil {
		return err
	}
	if !ok {
		return nil
	}

	refBal, err := c.ledger.GetOrCreate(ctx, referrerID)
	if err != nil {
		return err
	}

	commission := int64(math.Floor(float64(amount) * c.rateFor(refBal.TierPoints)))
	if commission <= 0 {
		return nil
	}

	txID := "refcom:" + originTxID
	tx, err := c.ledger.Credit(ctx, referrerID, commission, ledger.ReasonReferralCommission, txID)
	if err != nil {
		return err
	}
	if !tx.Applied {
		// retry de uma cascata já aplicada: nada mais a fazer
		return nil
	}

	if err := c.edges.AddEarned(ctx, referrerID, userID, commission); err != nil {
		// o crédito já está protegido pelo txID; só registra a divergência
		c.log.Warn("referral earned total update failed",
			zap.String("referrerId", referrerID), zap.Error(err))
	}

	if c.publ != nil {
		ev := events.ReferralCommissionCredited{
			ReferrerID: referrerID,
			UserID:     userID,
			Amount:     commission,
			OriginTxID: originTxID,
			TxID:       txID,
			Ts:         time.Now(),
		}
		if err := c.publ.PublishReferralCommission(ctx, ev); err != nil {
			c.log.Warn("referral commission publish failed", zap.Error(err))
		}
	}

	return nil
}
