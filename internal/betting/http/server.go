package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/Techizta/mintiq-miniapp-sub000/internal/betting"
	"github.com/Techizta/mintiq-miniapp-sub000/internal/betting/cache"
	"github.com/Techizta/mintiq-miniapp-sub000/internal/betting/dto"
	"github.com/Techizta/mintiq-miniapp-sub000/internal/ledger"
	"github.com/Techizta/mintiq-miniapp-sub000/internal/market"
	"github.com/Techizta/mintiq-miniapp-sub000/internal/pricing"
	"github.com/Techizta/mintiq-miniapp-sub000/internal/referral"
	"github.com/Techizta/mintiq-miniapp-sub000/internal/rewards"
	"github.com/Techizta/mintiq-miniapp-sub000/internal/schedule"
	"github.com/Techizta/mintiq-miniapp-sub000/pkg/contracts/events"
)

// ResolvePublisher enfileira o pedido de resolução para o settlement-worker.
type ResolvePublisher interface {
	PublishResolveRequested(ctx context.Context, e events.MarketResolveRequested) error
}

// SnapshotCache é a visão de leitura do cache de mercados. Invalidate precisa
// ser chamado sempre que o status muda fora do fluxo de aposta, senão o cache
// serviria um snapshot OPEN de um mercado já travado até o TTL vencer.
type SnapshotCache interface {
	GetMarket(ctx context.Context, marketID string) (cache.Snapshot, bool, error)
	Invalidate(ctx context.Context, marketID string) error
}

// Server expõe a API pública do wager-service.
type Server struct {
	log       *zap.Logger
	bets      *betting.Service
	markets   market.Store
	ledger    ledger.Store
	boosters  rewards.BoosterStore
	referrals referral.Store
	cache     SnapshotCache       // opcional
	sched     *schedule.Scheduler // opcional
	publ      ResolvePublisher    // opcional
}

func NewServer(log *zap.Logger, bets *betting.Service, markets market.Store, led ledger.Store, boosters rewards.BoosterStore, refs referral.Store, mc SnapshotCache, sched *schedule.Scheduler, publ ResolvePublisher) *Server {
	return &Server{
		log:       log,
		bets:      bets,
		markets:   markets,
		ledger:    led,
		boosters:  boosters,
		referrals: refs,
		cache:     mc,
		sched:     sched,
		publ:      publ,
	}
}

func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Get("/v1/markets/{id}", s.getMarket)
	r.Get("/v1/markets/{id}/preview", s.previewBet)
	r.Post("/v1/bets", s.placeBet)
	r.Get("/v1/balance", s.getBalance)
	r.Post("/v1/boosters/activate", s.activateBooster)
	r.Post("/v1/referrals", s.linkReferral)
	r.Post("/v1/admin/markets", s.createMarket)
	r.Post("/v1/admin/markets/{id}/resolve", s.requestResolve)
	return r
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	msg := "internal error"
	switch {
	case errors.Is(err, betting.ErrValidation):
		status, msg = http.StatusBadRequest, "invalid request"
	case errors.Is(err, market.ErrNotFound), errors.Is(err, ledger.ErrNotFound):
		status, msg = http.StatusNotFound, "not found"
	case errors.Is(err, market.ErrMarketClosed):
		status, msg = http.StatusConflict, "market closed"
	case errors.Is(err, market.ErrAlreadySettled):
		status, msg = http.StatusConflict, "market already settled"
	case errors.Is(err, rewards.ErrBoosterActive):
		status, msg = http.StatusConflict, "booster already active"
	case errors.Is(err, ledger.ErrInsufficientFunds):
		status, msg = http.StatusUnprocessableEntity, "insufficient funds"
	case errors.Is(err, betting.ErrConflict):
		status, msg = http.StatusServiceUnavailable, "try again"
	}
	writeJSON(w, status, map[string]string{"error": msg})
}

// getMarket serve o snapshot do mercado, preferencialmente do cache.
func (s *Server) getMarket(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	if s.cache != nil {
		if snap, ok, _ := s.cache.GetMarket(r.Context(), id); ok {
			writeJSON(w, http.StatusOK, dto.MarketResponse{
				MarketID:     snap.MarketID,
				LabelA:       snap.LabelA,
				LabelB:       snap.LabelB,
				PoolA:        snap.PoolA,
				PoolB:        snap.PoolB,
				OddsA:        snap.OddsA,
				OddsB:        snap.OddsB,
				Participants: snap.Participants,
				Status:       snap.Status,
				Deadline:     snap.Deadline,
			})
			return
		}
	}

	m, err := s.markets.Get(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	a, b := pricing.Odds(m.PoolA, m.PoolB)
	writeJSON(w, http.StatusOK, dto.MarketResponse{
		MarketID:     m.ID,
		LabelA:       m.LabelA,
		LabelB:       m.LabelB,
		PoolA:        m.PoolA,
		PoolB:        m.PoolB,
		OddsA:        a,
		OddsB:        b,
		Participants: int(m.Participants),
		Status:       string(m.Status),
		Deadline:     m.Deadline,
	})
}

func (s *Server) previewBet(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	outcome, err := market.ParseOutcome(r.URL.Query().Get("outcome"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid outcome"})
		return
	}
	amount, err := strconv.ParseInt(r.URL.Query().Get("amount"), 10, 64)
	if err != nil || amount < 0 {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid amount"})
		return
	}

	p, err := s.bets.Preview(r.Context(), id, outcome, amount)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, dto.PreviewResponse{
		MarketID:     id,
		Outcome:      string(outcome),
		Amount:       amount,
		OddsA:        p.OddsA,
		OddsB:        p.OddsB,
		Multiplier:   p.Multiplier,
		PotentialWin: p.PotentialWin,
	})
}

func (s *Server) placeBet(w http.ResponseWriter, r *http.Request) {
	var req dto.PlaceBetRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "bad json"})
		return
	}
	if req.UserID == "" || req.MarketID == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid payload"})
		return
	}
	outcome, err := market.ParseOutcome(req.Outcome)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid outcome"})
		return
	}

	res, err := s.bets.PlaceBet(r.Context(), req.UserID, req.MarketID, outcome, req.Amount)
	if err != nil {
		writeError(w, err)
		return
	}

	a, b := pricing.Odds(res.Market.PoolA, res.Market.PoolB)
	writeJSON(w, http.StatusCreated, dto.PlaceBetResponse{
		StakeID:    res.StakeID,
		TxID:       res.TxID,
		NewBalance: res.NewBalance,
		OddsA:      a,
		OddsB:      b,
	})
}

func (s *Server) getBalance(w http.ResponseWriter, r *http.Request) {
	userID := r.URL.Query().Get("userId")
	if userID == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "userId required"})
		return
	}

	bal, err := s.ledger.GetOrCreate(r.Context(), userID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, dto.BalanceResponse{
		UserID:      bal.UserID,
		Balance:     bal.Balance,
		TotalEarned: bal.TotalEarned,
		TotalSpent:  bal.TotalSpent,
		TotalWon:    bal.TotalWon,
		TierPoints:  bal.TierPoints,
		Tier:        rewards.TierFor(bal.TierPoints).Name,
	})
}

func (s *Server) activateBooster(w http.ResponseWriter, r *http.Request) {
	var req dto.ActivateBoosterRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "bad json"})
		return
	}
	if req.UserID == "" || req.Multiplier <= 1 || req.Minutes <= 0 {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid payload"})
		return
	}

	now := time.Now()
	b := rewards.Booster{
		UserID:     req.UserID,
		Multiplier: req.Multiplier,
		ExpiresAt:  now.Add(time.Duration(req.Minutes) * time.Minute),
	}
	if err := s.boosters.Activate(r.Context(), b, now); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{
		"userId":    b.UserID,
		"expiresAt": b.ExpiresAt,
	})
}

func (s *Server) linkReferral(w http.ResponseWriter, r *http.Request) {
	var req dto.LinkReferralRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "bad json"})
		return
	}
	if req.ReferrerID == "" || req.UserID == "" || req.ReferrerID == req.UserID {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid payload"})
		return
	}

	if err := s.referrals.Link(r.Context(), req.ReferrerID, req.UserID); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{
		"referrerId": req.ReferrerID,
		"userId":     req.UserID,
	})
}

func (s *Server) createMarket(w http.ResponseWriter, r *http.Request) {
	var req dto.CreateMarketRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "bad json"})
		return
	}
	if req.LabelA == "" || req.LabelB == "" || !req.Deadline.After(time.Now()) {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid payload"})
		return
	}

	m := market.Market{
		ID:        req.ID,
		LabelA:    req.LabelA,
		LabelB:    req.LabelB,
		Status:    market.StatusOpen,
		Deadline:  req.Deadline,
		CreatedAt: time.Now(),
	}
	if m.ID == "" {
		m.ID = uuid.NewString()
	}

	if err := s.markets.Create(r.Context(), m); err != nil {
		if errors.Is(err, market.ErrConflict) {
			writeJSON(w, http.StatusConflict, map[string]string{"error": "market exists"})
			return
		}
		writeError(w, err)
		return
	}
	if s.sched != nil {
		s.sched.Schedule(m.ID, m.Deadline)
	}

	s.log.Info("market created",
		zap.String("marketId", m.ID), zap.Time("deadline", m.Deadline))

	writeJSON(w, http.StatusCreated, dto.MarketResponse{
		MarketID: m.ID,
		LabelA:   m.LabelA,
		LabelB:   m.LabelB,
		OddsA:    50,
		OddsB:    50,
		Status:   string(m.Status),
		Deadline: m.Deadline,
	})
}

// requestResolve não liquida nada: trava o mercado e enfileira o pedido para
// o settlement-worker processar de forma assíncrona e idempotente.
func (s *Server) requestResolve(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	var req dto.ResolveMarketRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "bad json"})
		return
	}
	winning, err := market.ParseOutcome(req.WinningOutcome)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid outcome"})
		return
	}

	m, err := s.markets.Get(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	if m.Settled {
		writeError(w, market.ErrAlreadySettled)
		return
	}

	if err := s.markets.Lock(r.Context(), id); err != nil {
		writeError(w, err)
		return
	}
	if s.sched != nil {
		s.sched.Cancel(id)
	}
	// o snapshot cacheado ainda diz OPEN; derruba para a leitura cair no store
	if s.cache != nil {
		if err := s.cache.Invalidate(r.Context(), id); err != nil {
			s.log.Warn("market snapshot invalidate failed", zap.String("marketId", id), zap.Error(err))
		}
	}

	if s.publ != nil {
		ev := events.MarketResolveRequested{
			MarketID:       id,
			WinningOutcome: string(winning),
			RequestedBy:    req.RequestedBy,
			Ts:             time.Now(),
		}
		if err := s.publ.PublishResolveRequested(r.Context(), ev); err != nil {
			s.log.Error("resolve request publish failed", zap.String("marketId", id), zap.Error(err))
			writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal error"})
			return
		}
	}

	writeJSON(w, http.StatusAccepted, dto.ResolveAcceptedResponse{
		MarketID:       id,
		WinningOutcome: string(winning),
		Status:         "RESOLVE_REQUESTED",
	})
}
