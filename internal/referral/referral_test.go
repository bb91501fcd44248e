package referral_test

import (
	"context"
	"testing"

	"go.uber.org/zap"

	"github.com/Techizta/mintiq-miniapp-sub000/internal/ledger"
	ledgermem "github.com/Techizta/mintiq-miniapp-sub000/internal/ledger/memory"
	"github.com/Techizta/mintiq-miniapp-sub000/internal/referral"
	refmem "github.com/Techizta/mintiq-miniapp-sub000/internal/referral/memory"
)

func flatRate(rate float64) func(int64) float64 {
	return func(int64) float64 { return rate }
}

func TestCascade_CreditsReferrerWithoutReducingOriginal(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	led := ledgermem.New()
	edges := refmem.New()
	casc := referral.NewCascade(zap.NewNop(), edges, led, nil).WithRate(flatRate(0.10))

	if err := edges.Link(ctx, "ref", "u1"); err != nil {
		t.Fatalf("link: %v", err)
	}

	// pagamento de 1000 creditado ao usuário
	tx, err := led.Credit(ctx, "u1", 1000, ledger.ReasonPayout, "settle:s1")
	if err != nil {
		t.Fatalf("payout credit: %v", err)
	}

	if err := casc.OnEarning(ctx, "u1", 1000, tx.TxID); err != nil {
		t.Fatalf("cascade: %v", err)
	}

	refBal, _ := led.GetOrCreate(ctx, "ref")
	if refBal.Balance != 100 {
		t.Fatalf("referrer commission: want 100, got %d", refBal.Balance)
	}
	if refBal.TotalEarned != 100 {
		t.Fatalf("referrer totalEarned: want 100, got %d", refBal.TotalEarned)
	}

	userBal, _ := led.GetOrCreate(ctx, "u1")
	if userBal.Balance != 1000 {
		t.Fatalf("original credit must be unaffected: got %d", userBal.Balance)
	}

	if got := edges.Earned("u1"); got != 100 {
		t.Fatalf("edge earned total: want 100, got %d", got)
	}
}

func TestCascade_IdempotentPerOriginTx(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	led := ledgermem.New()
	edges := refmem.New()
	casc := referral.NewCascade(zap.NewNop(), edges, led, nil).WithRate(flatRate(0.10))

	_ = edges.Link(ctx, "ref", "u1")

	// retry da mesma transação de origem: comissão única
	for i := 0; i < 3; i++ {
		if err := casc.OnEarning(ctx, "u1", 1000, "settle:s1"); err != nil {
			t.Fatalf("cascade attempt %d: %v", i, err)
		}
	}

	refBal, _ := led.GetOrCreate(ctx, "ref")
	if refBal.Balance != 100 {
		t.Fatalf("commission after retries: want 100, got %d", refBal.Balance)
	}
	if got := edges.Earned("u1"); got != 100 {
		t.Fatalf("edge earned after retries: want 100, got %d", got)
	}
}

func TestCascade_NoReferrerIsNoop(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	led := ledgermem.New()
	casc := referral.NewCascade(zap.NewNop(), refmem.New(), led, nil)

	if err := casc.OnEarning(ctx, "orphan", 1000, "settle:s1"); err != nil {
		t.Fatalf("cascade without edge: %v", err)
	}
}

func TestCascade_RateDerivesFromReferrerTier(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	led := ledgermem.New()
	edges := refmem.New()
	casc := referral.NewCascade(zap.NewNop(), edges, led, nil)

	_ = edges.Link(ctx, "ref", "u1")

	// referenciador bronze: 3%
	if err := casc.OnEarning(ctx, "u1", 1000, "settle:s1"); err != nil {
		t.Fatalf("cascade: %v", err)
	}
	refBal, _ := led.GetOrCreate(ctx, "ref")
	if refBal.Balance != 30 {
		t.Fatalf("bronze commission: want 30, got %d", refBal.Balance)
	}

	// sobe para gold (5000 pontos de tier via ganhos): 5%
	_, _ = led.Credit(ctx, "ref", 5000, ledger.ReasonTaskReward, "tx-tier-up")
	if err := casc.OnEarning(ctx, "u1", 1000, "settle:s2"); err != nil {
		t.Fatalf("cascade: %v", err)
	}
	refBal, _ = led.GetOrCreate(ctx, "ref")
	if refBal.Balance != 30+5000+50 {
		t.Fatalf("gold commission: want %d, got %d", 30+5000+50, refBal.Balance)
	}
}

func TestCascade_ZeroCommissionSkipped(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	led := ledgermem.New()
	edges := refmem.New()
	casc := referral.NewCascade(zap.NewNop(), edges, led, nil).WithRate(flatRate(0.03))

	_ = edges.Link(ctx, "ref", "u1")

	// floor(10 * 0.03) = 0: nenhum crédito é emitido
	if err := casc.OnEarning(ctx, "u1", 10, "settle:s1"); err != nil {
		t.Fatalf("cascade: %v", err)
	}
	refBal, _ := led.GetOrCreate(ctx, "ref")
	if refBal.Balance != 0 {
		t.Fatalf("zero commission: want 0, got %d", refBal.Balance)
	}
}
