package memory

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/Techizta/mintiq-miniapp-sub000/internal/ledger"
)

func TestLedger_DebitCredit(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	s := New()

	if _, err := s.Credit(ctx, "u1", 1000, ledger.ReasonTaskReward, "tx-seed"); err != nil {
		t.Fatalf("seed credit: %v", err)
	}

	tx, err := s.Debit(ctx, "u1", 300, ledger.ReasonStake, "tx-debit")
	if err != nil {
		t.Fatalf("debit: %v", err)
	}
	if tx.NewBalance != 700 || !tx.Applied {
		t.Fatalf("debit result: want balance 700 applied, got %+v", tx)
	}

	bal, _ := s.GetOrCreate(ctx, "u1")
	if bal.TotalSpent != 300 || bal.TotalEarned != 1000 || bal.TierPoints != 1000 {
		t.Fatalf("running totals wrong: %+v", bal)
	}
}

func TestLedger_DebitInsufficientFunds(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	s := New()

	_, err := s.Debit(ctx, "poor", 1, ledger.ReasonStake, "tx-1")
	if !errors.Is(err, ledger.ErrInsufficientFunds) {
		t.Fatalf("want ErrInsufficientFunds, got %v", err)
	}

	bal, _ := s.GetOrCreate(ctx, "poor")
	if bal.Balance != 0 {
		t.Fatalf("balance mutated on failed debit: %d", bal.Balance)
	}
}

func TestLedger_InvalidAmount(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	s := New()

	if _, err := s.Debit(ctx, "u", 0, ledger.ReasonStake, "tx-a"); !errors.Is(err, ledger.ErrInvalidAmount) {
		t.Fatalf("debit zero: want ErrInvalidAmount, got %v", err)
	}
	if _, err := s.Credit(ctx, "u", -5, ledger.ReasonPayout, "tx-b"); !errors.Is(err, ledger.ErrInvalidAmount) {
		t.Fatalf("credit negative: want ErrInvalidAmount, got %v", err)
	}
}

func TestLedger_IdempotentReplay(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	s := New()
	_, _ = s.Credit(ctx, "u1", 500, ledger.ReasonTaskReward, "tx-seed")

	first, err := s.Debit(ctx, "u1", 100, ledger.ReasonStake, "tx-dup")
	if err != nil {
		t.Fatalf("first debit: %v", err)
	}

	replay, err := s.Debit(ctx, "u1", 100, ledger.ReasonStake, "tx-dup")
	if err != nil {
		t.Fatalf("replay debit: %v", err)
	}
	if replay.Applied {
		t.Fatal("replay must not apply again")
	}
	if replay.NewBalance != first.NewBalance {
		t.Fatalf("replay balance: want %d, got %d", first.NewBalance, replay.NewBalance)
	}

	bal, _ := s.GetOrCreate(ctx, "u1")
	if bal.Balance != 400 {
		t.Fatalf("balance after replay: want 400, got %d", bal.Balance)
	}
}

func TestLedger_ConcurrentDebitsNeverGoNegative(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	s := New()
	_, _ = s.Credit(ctx, "u1", 100, ledger.ReasonTaskReward, "tx-seed")

	const workers = 50
	var wg sync.WaitGroup
	var okCount int64
	var mu sync.Mutex

	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			_, err := s.Debit(ctx, "u1", 10, ledger.ReasonStake, uniqueTx(n))
			if err == nil {
				mu.Lock()
				okCount++
				mu.Unlock()
			}
		}(i)
	}
	wg.Wait()

	bal, _ := s.GetOrCreate(ctx, "u1")
	if bal.Balance < 0 {
		t.Fatalf("balance went negative: %d", bal.Balance)
	}
	if okCount != 10 {
		t.Fatalf("accepted debits: want 10, got %d", okCount)
	}
	if bal.Balance != 0 {
		t.Fatalf("final balance: want 0, got %d", bal.Balance)
	}
}

func uniqueTx(n int) string {
	return "tx-" + string(rune('a'+n%26)) + "-" + string(rune('0'+n/26))
}
