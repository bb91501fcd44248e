package settlement

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"go.uber.org/zap"

	"github.com/Techizta/mintiq-miniapp-sub000/internal/ledger"
	"github.com/Techizta/mintiq-miniapp-sub000/internal/market"
	"github.com/Techizta/mintiq-miniapp-sub000/internal/referral"
	"github.com/Techizta/mintiq-miniapp-sub000/internal/rewards"
	"github.com/Techizta/mintiq-miniapp-sub000/pkg/contracts/events"
)

// Publisher emite os eventos de liquidação.
type Publisher interface {
	PublishMarketResolved(ctx context.Context, e events.MarketResolved) error
	PublishPayoutCredited(ctx context.Context, e events.PayoutCredited) error
}

// Engine liquida mercados resolvidos: distribui o pool (menos a taxa) entre
// os vencedores, proporcional à aposta, aplicando tier/booster só sobre a
// porção de ganho. A passada inteira é idempotente e retomável: apostas já
// liquidadas são puladas e todo crédito usa txID derivado do stakeID.
type Engine struct {
	log     *zap.Logger
	markets market.Store
	ledger  ledger.Store
	rewards *rewards.Resolver
	cascade *referral.Cascade // opcional
	publ    Publisher         // opcional
	feeRate float64

	// Callbacks de métricas
	OnSettled func()
	OnPayout  func(amount int64)
}

func NewEngine(log *zap.Logger, markets market.Store, led ledger.Store, rew *rewards.Resolver, casc *referral.Cascade, publ Publisher, feeRate float64) *Engine {
	return &Engine{
		log:     log,
		markets: markets,
		ledger:  led,
		rewards: rew,
		cascade: casc,
		publ:    publ,
		feeRate: feeRate,
	}
}

// Settle executa a passada de liquidação de um mercado. Reinvocar depois de
// uma queda no meio da passada produz o mesmo estado final de uma execução
// limpa; mercado já liquidado é um no-op.
func (e *Engine) Settle(ctx context.Context, marketID string, winning market.Outcome) error {
	m, err := e.markets.Get(ctx, marketID)
	if err != nil {
		return fmt.Errorf("load market: %w", err)
	}
	if m.Settled {
		e.log.Info("market already settled, skipping", zap.String("marketId", marketID))
		return nil
	}

	m, err = e.markets.Resolve(ctx, marketID, winning)
	if err != nil {
		if errors.Is(err, market.ErrAlreadySettled) {
			return nil
		}
		return fmt.Errorf("resolve market: %w", err)
	}

	// Snapshot final dos pools: é daqui que sai o payout autoritativo,
	// não da prévia exibida na hora da aposta.
	total := m.PoolA + m.PoolB
	fee := int64(math.Floor(float64(total) * e.feeRate))
	distributable := total - fee
	winningPool := m.Pool(winning)

	stakes, err := e.markets.Stakes(ctx, marketID)
	if err != nil {
		return fmt.Errorf("load stakes: %w", err)
	}

	var winners, losers int
	for i := range stakes {
		st := stakes[i]
		if st.Settled {
			continue // retomada: já processada numa passada anterior
		}

		if st.Outcome != winning || winningPool == 0 {
			if err := e.settleStake(ctx, st, 0); err != nil {
				return err
			}
			losers++
			continue
		}

		raw := distributable * st.Amount / winningPool
		payout := raw
		if winnings := raw - st.Amount; winnings > 0 {
			bal, err := e.ledger.GetOrCreate(ctx, st.UserID)
			if err != nil {
				return fmt.Errorf("load balance for %s: %w", st.UserID, err)
			}
			boosted, err := e.rewards.Resolve(ctx, st.UserID, bal.TierPoints, winnings)
			if err != nil {
				return fmt.Errorf("resolve multiplier for %s: %w", st.UserID, err)
			}
			payout = st.Amount + boosted
		}

		if err := e.settleStake(ctx, st, payout); err != nil {
			return err
		}
		winners++
	}

	if err := e.markets.MarkSettled(ctx, marketID); err != nil {
		return fmt.Errorf("mark settled: %w", err)
	}
	if e.OnSettled != nil {
		e.OnSettled()
	}

	e.log.Info("market settled",
		zap.String("marketId", marketID),
		zap.String("winning", string(winning)),
		zap.Int64("total", total),
		zap.Int64("fee", fee),
		zap.Int("winners", winners),
		zap.Int("losers", losers),
	)

	if e.publ != nil {
		ev := events.MarketResolved{
			MarketID:       marketID,
			WinningOutcome: string(winning),
			PoolA:          m.PoolA,
			PoolB:          m.PoolB,
			Fee:            fee,
			Distributable:  distributable,
			WinnersSettled: winners,
			LosersSettled:  losers,
			Ts:             time.Now(),
		}
		if err := e.publ.PublishMarketResolved(ctx, ev); err != nil {
			e.log.Warn("market_resolved publish failed", zap.Error(err))
		}
	}

	return nil
}

// settleStake credita o payout (se houver) e grava o resultado na aposta,
// ambos idempotentes: o crédito pela chave settle:<stakeID>, a escrita pelo
// guard de settled.
func (e *Engine) settleStake(ctx context.Context, st market.Stake, payout int64) error {
	txID := "settle:" + st.ID

	if payout > 0 {
		tx, err := e.ledger.Credit(ctx, st.UserID, payout, ledger.ReasonPayout, txID)
		if err != nil {
			return fmt.Errorf("credit payout for stake %s: %w", st.ID, err)
		}

		if e.publ != nil && tx.Applied {
			ev := events.PayoutCredited{
				StakeID:  st.ID,
				UserID:   st.UserID,
				MarketID: st.MarketID,
				Amount:   payout,
				TxID:     txID,
				Ts:       time.Now(),
			}
			if err := e.publ.PublishPayoutCredited(ctx, ev); err != nil {
				e.log.Warn("payout_credited publish failed", zap.String("stakeId", st.ID), zap.Error(err))
			}
		}

		// cascata de indicação: at-least-once, idempotente pelo txID de origem
		if e.cascade != nil {
			if err := e.cascade.OnEarning(ctx, st.UserID, payout, txID); err != nil {
				e.log.Warn("referral cascade failed", zap.String("stakeId", st.ID), zap.Error(err))
			}
		}

		if e.OnPayout != nil && tx.Applied {
			e.OnPayout(payout)
		}
	}

	if err := e.markets.SettleStake(ctx, st.ID, payout); err != nil {
		if errors.Is(err, market.ErrAlreadySettled) {
			return nil
		}
		return fmt.Errorf("settle stake %s: %w", st.ID, err)
	}
	return nil
}
