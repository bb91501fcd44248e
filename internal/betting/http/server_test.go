package httpapi_test

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/Techizta/mintiq-miniapp-sub000/internal/betting"
	"github.com/Techizta/mintiq-miniapp-sub000/internal/betting/cache"
	"github.com/Techizta/mintiq-miniapp-sub000/internal/betting/dto"
	httpapi "github.com/Techizta/mintiq-miniapp-sub000/internal/betting/http"
	"github.com/Techizta/mintiq-miniapp-sub000/internal/ledger"
	ledgermem "github.com/Techizta/mintiq-miniapp-sub000/internal/ledger/memory"
	"github.com/Techizta/mintiq-miniapp-sub000/internal/market"
	marketmem "github.com/Techizta/mintiq-miniapp-sub000/internal/market/memory"
	refmem "github.com/Techizta/mintiq-miniapp-sub000/internal/referral/memory"
	rewardsmem "github.com/Techizta/mintiq-miniapp-sub000/internal/rewards/memory"
	"github.com/Techizta/mintiq-miniapp-sub000/pkg/contracts/events"
)

// fakeSnapshotCache simula o cache Redis de snapshots em memória.
type fakeSnapshotCache struct {
	mu    sync.Mutex
	snaps map[string]cache.Snapshot
}

func newFakeSnapshotCache() *fakeSnapshotCache {
	return &fakeSnapshotCache{snaps: make(map[string]cache.Snapshot)}
}

func (c *fakeSnapshotCache) GetMarket(_ context.Context, marketID string) (cache.Snapshot, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	snap, ok := c.snaps[marketID]
	return snap, ok, nil
}

func (c *fakeSnapshotCache) Invalidate(_ context.Context, marketID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.snaps, marketID)
	return nil
}

func (c *fakeSnapshotCache) put(snap cache.Snapshot) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.snaps[snap.MarketID] = snap
}

type captureResolvePublisher struct {
	requested []events.MarketResolveRequested
}

func (p *captureResolvePublisher) PublishResolveRequested(_ context.Context, e events.MarketResolveRequested) error {
	p.requested = append(p.requested, e)
	return nil
}

type env struct {
	led     *ledgermem.Store
	markets *marketmem.Store
	publ    *captureResolvePublisher
	handler http.Handler
}

func newEnv(t *testing.T) *env {
	t.Helper()
	led := ledgermem.New()
	markets := marketmem.New()
	publ := &captureResolvePublisher{}

	params := betting.Params{MinStake: 10, FeeRate: 0.10, ConflictRetries: 3}
	svc := betting.NewService(zap.NewNop(), params, led, markets, nil, nil)
	srv := httpapi.NewServer(zap.NewNop(), svc, markets, led, rewardsmem.New(), refmem.New(), nil, nil, publ)

	err := markets.Create(context.Background(), market.Market{
		ID:       "m1",
		LabelA:   "yes",
		LabelB:   "no",
		Status:   market.StatusOpen,
		Deadline: time.Now().Add(time.Hour),
	})
	if err != nil {
		t.Fatalf("create market: %v", err)
	}

	return &env{led: led, markets: markets, publ: publ, handler: srv.Router()}
}

func (e *env) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	rec := httptest.NewRecorder()
	e.handler.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.NewDecoder(rec.Body).Decode(&v); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	return v
}

func TestPlaceBetEndpoint(t *testing.T) {
	t.Parallel()

	e := newEnv(t)
	_, _ = e.led.Credit(context.Background(), "u1", 1000, ledger.ReasonTaskReward, "tx-seed")

	rec := e.do(t, http.MethodPost, "/v1/bets", dto.PlaceBetRequest{
		UserID: "u1", MarketID: "m1", Outcome: "A", Amount: 100,
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("status: want 201, got %d (%s)", rec.Code, rec.Body)
	}
	res := decode[dto.PlaceBetResponse](t, rec)
	if res.NewBalance != 900 || res.StakeID == "" {
		t.Fatalf("response: %+v", res)
	}
	if res.OddsA != 100 || res.OddsB != 0 {
		t.Fatalf("odds after single-sided stake: (%d,%d)", res.OddsA, res.OddsB)
	}
}

func TestPlaceBetEndpoint_ErrorMapping(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name string
		prep func(e *env)
		req  dto.PlaceBetRequest
		want int
	}{
		{
			name: "below_minimum",
			req:  dto.PlaceBetRequest{UserID: "u1", MarketID: "m1", Outcome: "A", Amount: 5},
			want: http.StatusBadRequest,
		},
		{
			name: "invalid_outcome",
			req:  dto.PlaceBetRequest{UserID: "u1", MarketID: "m1", Outcome: "C", Amount: 100},
			want: http.StatusBadRequest,
		},
		{
			name: "insufficient_funds",
			req:  dto.PlaceBetRequest{UserID: "u1", MarketID: "m1", Outcome: "A", Amount: 100},
			want: http.StatusUnprocessableEntity,
		},
		{
			name: "unknown_market",
			prep: func(e *env) {
				_, _ = e.led.Credit(context.Background(), "u1", 1000, ledger.ReasonTaskReward, "tx-seed")
			},
			req:  dto.PlaceBetRequest{UserID: "u1", MarketID: "nope", Outcome: "A", Amount: 100},
			want: http.StatusNotFound,
		},
		{
			name: "market_locked",
			prep: func(e *env) {
				_, _ = e.led.Credit(context.Background(), "u1", 1000, ledger.ReasonTaskReward, "tx-seed")
				_ = e.markets.Lock(context.Background(), "m1")
			},
			req:  dto.PlaceBetRequest{UserID: "u1", MarketID: "m1", Outcome: "A", Amount: 100},
			want: http.StatusConflict,
		},
	}

	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			e := newEnv(t)
			if tc.prep != nil {
				tc.prep(e)
			}
			rec := e.do(t, http.MethodPost, "/v1/bets", tc.req)
			if rec.Code != tc.want {
				t.Fatalf("status: want %d, got %d (%s)", tc.want, rec.Code, rec.Body)
			}
		})
	}
}

func TestGetMarketEndpoint(t *testing.T) {
	t.Parallel()

	e := newEnv(t)
	ctx := context.Background()
	_, _ = e.markets.AddStake(ctx, market.Stake{ID: "s1", MarketID: "m1", UserID: "u1", Outcome: market.OutcomeA, Amount: 125000})
	_, _ = e.markets.AddStake(ctx, market.Stake{ID: "s2", MarketID: "m1", UserID: "u2", Outcome: market.OutcomeB, Amount: 98000})

	rec := e.do(t, http.MethodGet, "/v1/markets/m1", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status: %d", rec.Code)
	}
	m := decode[dto.MarketResponse](t, rec)
	if m.OddsA != 56 || m.OddsB != 44 {
		t.Fatalf("odds: want (56,44), got (%d,%d)", m.OddsA, m.OddsB)
	}
	if m.PoolA != 125000 || m.PoolB != 98000 || m.Participants != 2 {
		t.Fatalf("market: %+v", m)
	}

	if rec := e.do(t, http.MethodGet, "/v1/markets/ghost", nil); rec.Code != http.StatusNotFound {
		t.Fatalf("ghost market: want 404, got %d", rec.Code)
	}
}

func TestPreviewEndpoint(t *testing.T) {
	t.Parallel()

	e := newEnv(t)
	ctx := context.Background()
	_, _ = e.markets.AddStake(ctx, market.Stake{ID: "s1", MarketID: "m1", UserID: "u1", Outcome: market.OutcomeA, Amount: 125000})
	_, _ = e.markets.AddStake(ctx, market.Stake{ID: "s2", MarketID: "m1", UserID: "u2", Outcome: market.OutcomeB, Amount: 98000})

	rec := e.do(t, http.MethodGet, "/v1/markets/m1/preview?outcome=A&amount=100", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status: %d (%s)", rec.Code, rec.Body)
	}
	p := decode[dto.PreviewResponse](t, rec)
	if p.PotentialWin != 160 {
		t.Fatalf("potential win: want 160, got %d", p.PotentialWin)
	}

	if rec := e.do(t, http.MethodGet, "/v1/markets/m1/preview?outcome=X&amount=100", nil); rec.Code != http.StatusBadRequest {
		t.Fatalf("bad outcome: want 400, got %d", rec.Code)
	}
	if rec := e.do(t, http.MethodGet, "/v1/markets/m1/preview?outcome=A&amount=-5", nil); rec.Code != http.StatusBadRequest {
		t.Fatalf("negative amount: want 400, got %d", rec.Code)
	}
}

func TestBalanceEndpoint(t *testing.T) {
	t.Parallel()

	e := newEnv(t)
	_, _ = e.led.Credit(context.Background(), "u1", 6000, ledger.ReasonTaskReward, "tx-seed")

	rec := e.do(t, http.MethodGet, "/v1/balance?userId=u1", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status: %d", rec.Code)
	}
	b := decode[dto.BalanceResponse](t, rec)
	if b.Balance != 6000 || b.Tier != "gold" {
		t.Fatalf("balance: %+v", b)
	}

	if rec := e.do(t, http.MethodGet, "/v1/balance", nil); rec.Code != http.StatusBadRequest {
		t.Fatalf("missing userId: want 400, got %d", rec.Code)
	}
}

func TestBoosterActivateEndpoint(t *testing.T) {
	t.Parallel()

	e := newEnv(t)
	req := dto.ActivateBoosterRequest{UserID: "u1", Multiplier: 2.0, Minutes: 60}

	if rec := e.do(t, http.MethodPost, "/v1/boosters/activate", req); rec.Code != http.StatusCreated {
		t.Fatalf("first activation: want 201, got %d", rec.Code)
	}
	// segundo booster com o primeiro ainda vigente
	if rec := e.do(t, http.MethodPost, "/v1/boosters/activate", req); rec.Code != http.StatusConflict {
		t.Fatalf("second activation: want 409, got %d", rec.Code)
	}
}

func TestCreateMarketEndpoint(t *testing.T) {
	t.Parallel()

	e := newEnv(t)
	req := dto.CreateMarketRequest{ID: "m2", LabelA: "up", LabelB: "down", Deadline: time.Now().Add(time.Hour)}

	if rec := e.do(t, http.MethodPost, "/v1/admin/markets", req); rec.Code != http.StatusCreated {
		t.Fatalf("create: want 201, got %d", rec.Code)
	}
	if rec := e.do(t, http.MethodPost, "/v1/admin/markets", req); rec.Code != http.StatusConflict {
		t.Fatalf("duplicate create: want 409, got %d", rec.Code)
	}

	past := dto.CreateMarketRequest{LabelA: "up", LabelB: "down", Deadline: time.Now().Add(-time.Hour)}
	if rec := e.do(t, http.MethodPost, "/v1/admin/markets", past); rec.Code != http.StatusBadRequest {
		t.Fatalf("past deadline: want 400, got %d", rec.Code)
	}
}

func TestResolveEndpoint(t *testing.T) {
	t.Parallel()

	e := newEnv(t)

	rec := e.do(t, http.MethodPost, "/v1/admin/markets/m1/resolve", dto.ResolveMarketRequest{WinningOutcome: "A"})
	if rec.Code != http.StatusAccepted {
		t.Fatalf("resolve: want 202, got %d (%s)", rec.Code, rec.Body)
	}
	if len(e.publ.requested) != 1 || e.publ.requested[0].MarketID != "m1" || e.publ.requested[0].WinningOutcome != "A" {
		t.Fatalf("resolve request events: %+v", e.publ.requested)
	}

	// o mercado fica travado imediatamente; apostas param de entrar
	m, _ := e.markets.Get(context.Background(), "m1")
	if m.Status != market.StatusLocked {
		t.Fatalf("market status after resolve request: %s", m.Status)
	}

	if rec := e.do(t, http.MethodPost, "/v1/admin/markets/m1/resolve", dto.ResolveMarketRequest{WinningOutcome: "X"}); rec.Code != http.StatusBadRequest {
		t.Fatalf("bad outcome: want 400, got %d", rec.Code)
	}
}

func TestResolveInvalidatesCachedSnapshot(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	led := ledgermem.New()
	markets := marketmem.New()
	snaps := newFakeSnapshotCache()
	publ := &captureResolvePublisher{}

	params := betting.Params{MinStake: 10, FeeRate: 0.10, ConflictRetries: 3}
	svc := betting.NewService(zap.NewNop(), params, led, markets, nil, nil)
	srv := httpapi.NewServer(zap.NewNop(), svc, markets, led, rewardsmem.New(), refmem.New(), snaps, nil, publ)
	e := &env{led: led, markets: markets, publ: publ, handler: srv.Router()}

	if err := markets.Create(ctx, market.Market{
		ID:       "m1",
		LabelA:   "yes",
		LabelB:   "no",
		Status:   market.StatusOpen,
		Deadline: time.Now().Add(time.Hour),
	}); err != nil {
		t.Fatalf("create market: %v", err)
	}

	// snapshot gravado na última aposta, antes da resolução
	snaps.put(cache.Snapshot{MarketID: "m1", Status: string(market.StatusOpen), OddsA: 50, OddsB: 50})

	rec := e.do(t, http.MethodGet, "/v1/markets/m1", nil)
	if got := decode[dto.MarketResponse](t, rec); got.Status != string(market.StatusOpen) {
		t.Fatalf("cached status before resolve: %s", got.Status)
	}

	rec = e.do(t, http.MethodPost, "/v1/admin/markets/m1/resolve", dto.ResolveMarketRequest{WinningOutcome: "A"})
	if rec.Code != http.StatusAccepted {
		t.Fatalf("resolve: want 202, got %d (%s)", rec.Code, rec.Body)
	}

	// o snapshot OPEN não pode sobreviver à resolução; a leitura cai no store
	if _, ok, _ := snaps.GetMarket(ctx, "m1"); ok {
		t.Fatal("stale snapshot survived resolve request")
	}
	rec = e.do(t, http.MethodGet, "/v1/markets/m1", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("get after resolve: %d", rec.Code)
	}
	if got := decode[dto.MarketResponse](t, rec); got.Status != string(market.StatusLocked) {
		t.Fatalf("status after resolve request: want LOCKED, got %s", got.Status)
	}
}

func TestReferralLinkEndpoint(t *testing.T) {
	t.Parallel()

	e := newEnv(t)

	rec := e.do(t, http.MethodPost, "/v1/referrals", dto.LinkReferralRequest{ReferrerID: "ref", UserID: "u1"})
	if rec.Code != http.StatusCreated {
		t.Fatalf("link: want 201, got %d", rec.Code)
	}

	self := dto.LinkReferralRequest{ReferrerID: "u2", UserID: "u2"}
	if rec := e.do(t, http.MethodPost, "/v1/referrals", self); rec.Code != http.StatusBadRequest {
		t.Fatalf("self referral: want 400, got %d", rec.Code)
	}
}

func TestConcurrentBetsThroughHandler(t *testing.T) {
	t.Parallel()

	e := newEnv(t)
	ctx := context.Background()
	for i := 0; i < 10; i++ {
		_, _ = e.led.Credit(ctx, fmt.Sprintf("u%d", i), 1000, ledger.ReasonTaskReward, fmt.Sprintf("tx-seed-%d", i))
	}

	done := make(chan int, 10)
	for i := 0; i < 10; i++ {
		go func(i int) {
			rec := e.do(t, http.MethodPost, "/v1/bets", dto.PlaceBetRequest{
				UserID: fmt.Sprintf("u%d", i), MarketID: "m1", Outcome: "A", Amount: 100,
			})
			done <- rec.Code
		}(i)
	}
	for i := 0; i < 10; i++ {
		if code := <-done; code != http.StatusCreated {
			t.Fatalf("concurrent bet status: %d", code)
		}
	}

	m, _ := e.markets.Get(ctx, "m1")
	if m.PoolA != 1000 || m.Participants != 10 {
		t.Fatalf("pool after concurrent bets: %+v", m)
	}
}
