package betting

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/Techizta/mintiq-miniapp-sub000/internal/ledger"
	"github.com/Techizta/mintiq-miniapp-sub000/internal/market"
	"github.com/Techizta/mintiq-miniapp-sub000/internal/pricing"
	"github.com/Techizta/mintiq-miniapp-sub000/pkg/contracts/events"
)

var (
	// ErrValidation cobre valor/lado inválido e aposta abaixo do mínimo.
	ErrValidation = errors.New("validation error")
	// ErrConflict é devolvido depois de esgotar as tentativas internas;
	// o chamador pode reemitir a mesma requisição com segurança.
	ErrConflict = errors.New("concurrency conflict")
)

// Params são os parâmetros de negócio do serviço de apostas.
type Params struct {
	MinStake        int64
	ProtectionFloor int64 // saldo que nunca pode ser apostado
	FeeRate         float64
	ConflictRetries int
}

// Publisher emite o evento de aposta aceita.
type Publisher interface {
	PublishStakePlaced(ctx context.Context, e events.StakePlaced) error
}

// SnapshotCache recebe o snapshot do mercado após cada aposta aceita
// (cache de leitura + broadcast).
type SnapshotCache interface {
	SetMarket(ctx context.Context, m market.Market, feeRate float64) error
}

// Service valida e executa apostas como uma unidade atômica sobre o ledger e
// a contabilidade de pools. Nenhum estado parcial fica visível ao chamador:
// se o pool falhar depois do débito, o débito é compensado com estorno.
type Service struct {
	log     *zap.Logger
	params  Params
	ledger  ledger.Store
	markets market.Store
	publ    Publisher     // opcional
	cache   SnapshotCache // opcional

	// Callbacks de métricas (counters no main, estilo processor)
	OnPlaced   func()
	OnRejected func(reason string)
}

func NewService(log *zap.Logger, params Params, led ledger.Store, markets market.Store, publ Publisher, cache SnapshotCache) *Service {
	if params.ConflictRetries <= 0 {
		params.ConflictRetries = 3
	}
	return &Service{
		log:     log,
		params:  params,
		ledger:  led,
		markets: markets,
		publ:    publ,
		cache:   cache,
	}
}

// Preview é a prévia ao vivo de uma aposta: odds atuais, multiplicador e
// ganho potencial com os pools exatamente como estão agora. Não é um payout
// garantido e nunca é persistido como tal.
type Preview struct {
	OddsA        int
	OddsB        int
	Multiplier   float64
	PotentialWin int64
}

func (s *Service) Preview(ctx context.Context, marketID string, outcome market.Outcome, amount int64) (Preview, error) {
	if amount < 0 {
		return Preview{}, fmt.Errorf("%w: negative amount", ErrValidation)
	}

	m, err := s.markets.Get(ctx, marketID)
	if err != nil {
		return Preview{}, err
	}

	my := m.Pool(outcome)
	other := m.PoolA + m.PoolB - my
	a, b := pricing.Odds(m.PoolA, m.PoolB)

	return Preview{
		OddsA:        a,
		OddsB:        b,
		Multiplier:   pricing.Multiplier(my, other, s.params.FeeRate),
		PotentialWin: pricing.PotentialWin(amount, my, other, s.params.FeeRate),
	}, nil
}

// PlaceResult é o resultado de uma aposta aceita.
type PlaceResult struct {
	StakeID    string
	TxID       string
	NewBalance int64
	Market     market.Market
}

// PlaceBet valida e executa a aposta. Ordem de validação: mínimo, saldo
// protegido, mercado aberto. A operação composta débito→pool→stake é
// tudo-ou-nada; conflitos de concorrência são retentados internamente.
func (s *Service) PlaceBet(ctx context.Context, userID, marketID string, outcome market.Outcome, amount int64) (PlaceResult, error) {
	if amount < s.params.MinStake {
		s.reject("below_minimum")
		return PlaceResult{}, fmt.Errorf("%w: amount below minimum of %d", ErrValidation, s.params.MinStake)
	}

	bal, err := s.ledger.GetOrCreate(ctx, userID)
	if err != nil {
		return PlaceResult{}, err
	}
	if amount > bal.Balance-s.params.ProtectionFloor {
		s.reject("insufficient_funds")
		return PlaceResult{}, ledger.ErrInsufficientFunds
	}

	m, err := s.markets.Get(ctx, marketID)
	if err != nil {
		return PlaceResult{}, err
	}
	if !m.AcceptsStakes(time.Now()) {
		s.reject("market_closed")
		return PlaceResult{}, market.ErrMarketClosed
	}

	var res PlaceResult
	for attempt := 0; attempt < s.params.ConflictRetries; attempt++ {
		res, err = s.placeOnce(ctx, userID, marketID, outcome, amount)
		if err == nil {
			break
		}
		if !errors.Is(err, ledger.ErrConflict) && !errors.Is(err, market.ErrConflict) {
			if errors.Is(err, market.ErrMarketClosed) {
				s.reject("market_closed")
			} else if errors.Is(err, ledger.ErrInsufficientFunds) {
				s.reject("insufficient_funds")
			}
			return PlaceResult{}, err
		}
		// backoff linear antes de reexecutar a operação inteira
		s.log.Warn("stake placement conflict, retrying",
			zap.String("marketId", marketID), zap.Int("attempt", attempt+1))
		time.Sleep(time.Duration(50*(attempt+1)) * time.Millisecond)
	}
	if err != nil {
		s.reject("conflict")
		return PlaceResult{}, fmt.Errorf("placement retries exhausted: %w", ErrConflict)
	}

	if s.OnPlaced != nil {
		s.OnPlaced()
	}

	if s.publ != nil {
		ev := events.StakePlaced{
			StakeID:  res.StakeID,
			UserID:   userID,
			MarketID: marketID,
			Outcome:  string(outcome),
			Amount:   amount,
			TxID:     res.TxID,
			TsUnixMs: time.Now().UnixMilli(),
		}
		if err := s.publ.PublishStakePlaced(ctx, ev); err != nil {
			s.log.Warn("stake_placed publish failed", zap.String("stakeId", res.StakeID), zap.Error(err))
		}
	}

	if s.cache != nil {
		if err := s.cache.SetMarket(ctx, res.Market, s.params.FeeRate); err != nil {
			s.log.Warn("market snapshot cache failed", zap.String("marketId", marketID), zap.Error(err))
		}
	}

	return res, nil
}

// placeOnce executa uma tentativa da operação composta. Cada tentativa usa
// um stakeID novo porque a anterior foi integralmente compensada; o txID
// derivado do stakeID protege contra replay da mesma tentativa no ledger.
func (s *Service) placeOnce(ctx context.Context, userID, marketID string, outcome market.Outcome, amount int64) (PlaceResult, error) {
	stakeID := uuid.NewString()
	txID := "stake:" + stakeID

	tx, err := s.ledger.Debit(ctx, userID, amount, ledger.ReasonStake, txID)
	if err != nil {
		return PlaceResult{}, fmt.Errorf("ledger debit: %w", err)
	}

	m, err := s.markets.AddStake(ctx, market.Stake{
		ID:       stakeID,
		MarketID: marketID,
		UserID:   userID,
		Outcome:  outcome,
		Amount:   amount,
		PlacedAt: time.Now(),
	})
	if err != nil {
		// aplicação parcial é violação de correção: compensa o débito
		if _, cerr := s.ledger.Credit(ctx, userID, amount, ledger.ReasonStakeRefund, "refund:"+stakeID); cerr != nil {
			s.log.Error("stake debit compensation failed",
				zap.String("stakeId", stakeID),
				zap.String("userId", userID),
				zap.Int64("amount", amount),
				zap.Error(cerr))
		}
		return PlaceResult{}, fmt.Errorf("pool accounting: %w", err)
	}

	return PlaceResult{StakeID: stakeID, TxID: tx.TxID, NewBalance: tx.NewBalance, Market: m}, nil
}

func (s *Service) reject(reason string) {
	if s.OnRejected != nil {
		s.OnRejected(reason)
	}
}
