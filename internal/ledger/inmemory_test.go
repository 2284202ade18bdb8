package ledger

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"
)

func TestInMemoryLedger_DonateCreditsExactly(t *testing.T) {
	l := NewInMemory()
	ctx := context.Background()

	if err := l.EnsureAccount(ctx, "ct001"); err != nil {
		t.Fatalf("ensure account: %v", err)
	}
	SeedBalance(l, "CT001", 10_000)

	res, err := l.Donate(ctx, "ct001", 5_000, "simulated_bank")
	if err != nil {
		t.Fatalf("donate failed: %v", err)
	}
	if res.Balance != 15_000 {
		t.Fatalf("expected balance 15000, got %d", res.Balance)
	}
	if res.Transaction.Status != StatusCompleted {
		t.Fatalf("expected completed transaction, got %s", res.Transaction.Status)
	}
	if res.Transaction.TagCode != "CT001" {
		t.Fatalf("expected normalized code CT001, got %s", res.Transaction.TagCode)
	}
}

func TestInMemoryLedger_DonateRejectsInvalidAmount(t *testing.T) {
	l := NewInMemory()
	ctx := context.Background()
	l.EnsureAccount(ctx, "CT001")

	for _, amount := range []int64{0, -500} {
		if _, err := l.Donate(ctx, "CT001", amount, "simulated_bank"); !errors.Is(err, ErrInvalidAmount) {
			t.Fatalf("amount %d: expected ErrInvalidAmount, got %v", amount, err)
		}
	}
}

func TestInMemoryLedger_DonateUnknownTag(t *testing.T) {
	l := NewInMemory()
	if _, err := l.Donate(context.Background(), "NOPE", 100, "simulated_bank"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestInMemoryLedger_TransferMovesBothBalances(t *testing.T) {
	l := NewInMemory()
	ctx := context.Background()
	l.EnsureAccount(ctx, "CT001")
	l.EnsureAccount(ctx, "CT002")
	SeedBalance(l, "CT001", 10_000)

	res, err := l.Transfer(ctx, "ct001", "ct002", 1_500)
	if err != nil {
		t.Fatalf("transfer failed: %v", err)
	}
	if res.FromBalance != 8_500 {
		t.Fatalf("expected from balance 8500, got %d", res.FromBalance)
	}
	if res.ToBalance != 1_500 {
		t.Fatalf("expected to balance 1500, got %d", res.ToBalance)
	}

	total := res.FromBalance + res.ToBalance
	if total != 10_000 {
		t.Fatalf("ledger not balanced, total=%d", total)
	}
}

func TestInMemoryLedger_TransferSameTag(t *testing.T) {
	l := NewInMemory()
	ctx := context.Background()
	l.EnsureAccount(ctx, "CT001")
	SeedBalance(l, "CT001", 1_000)

	if _, err := l.Transfer(ctx, "CT001", "ct001", 100); !errors.Is(err, ErrSameTag) {
		t.Fatalf("expected ErrSameTag, got %v", err)
	}
}

func TestInMemoryLedger_TransferInsufficientFundsLeavesBalancesUntouched(t *testing.T) {
	l := NewInMemory()
	ctx := context.Background()
	l.EnsureAccount(ctx, "CT001")
	l.EnsureAccount(ctx, "CT002")
	SeedBalance(l, "CT001", 15_000)

	if _, err := l.Transfer(ctx, "CT001", "CT002", 20_000); !errors.Is(err, ErrInsufficientFunds) {
		t.Fatalf("expected ErrInsufficientFunds, got %v", err)
	}

	from, _ := l.Balance(ctx, "CT001")
	to, _ := l.Balance(ctx, "CT002")
	if from != 15_000 || to != 0 {
		t.Fatalf("balances changed on failed transfer: from=%d to=%d", from, to)
	}
}

func TestInMemoryLedger_AdjustEnforcesNonNegativity(t *testing.T) {
	l := NewInMemory()
	ctx := context.Background()
	l.EnsureAccount(ctx, "CT001")
	SeedBalance(l, "CT001", 500)

	if _, err := l.Adjust(ctx, "CT001", -600, true); !errors.Is(err, ErrInsufficientFunds) {
		t.Fatalf("expected ErrInsufficientFunds, got %v", err)
	}

	balance, err := l.Adjust(ctx, "CT001", -600, false)
	if err != nil {
		t.Fatalf("unenforced adjust failed: %v", err)
	}
	if balance != -100 {
		t.Fatalf("expected balance -100, got %d", balance)
	}
}

func TestInMemoryLedger_PendingLifecycle(t *testing.T) {
	l := NewInMemory()
	ctx := context.Background()
	l.EnsureAccount(ctx, "CT003")

	pending, err := l.InitiatePending(ctx, "CT003", 3_000, "card", "evt_1", time.Now().Add(time.Hour))
	if err != nil {
		t.Fatalf("initiate pending: %v", err)
	}
	if pending.Status != StatusPending {
		t.Fatalf("expected pending status, got %s", pending.Status)
	}

	// Balance must be untouched until confirmation arrives.
	if balance, _ := l.Balance(ctx, "CT003"); balance != 0 {
		t.Fatalf("pending donation touched balance: %d", balance)
	}

	res, err := l.CompletePending(ctx, "evt_1")
	if err != nil {
		t.Fatalf("complete pending: %v", err)
	}
	if res.Replayed {
		t.Fatal("first confirmation flagged as replay")
	}
	if res.Balance != 3_000 {
		t.Fatalf("expected balance 3000, got %d", res.Balance)
	}
}

func TestInMemoryLedger_CompletePendingIsIdempotent(t *testing.T) {
	l := NewInMemory()
	ctx := context.Background()
	l.EnsureAccount(ctx, "CT003")

	if _, err := l.InitiatePending(ctx, "CT003", 3_000, "card", "evt_1", time.Now().Add(time.Hour)); err != nil {
		t.Fatalf("initiate pending: %v", err)
	}

	first, err := l.CompletePending(ctx, "evt_1")
	if err != nil {
		t.Fatalf("first confirmation: %v", err)
	}
	second, err := l.CompletePending(ctx, "evt_1")
	if err != nil {
		t.Fatalf("second confirmation: %v", err)
	}

	if !second.Replayed {
		t.Fatal("redelivered confirmation not flagged as replay")
	}
	if second.Transaction.ID != first.Transaction.ID {
		t.Fatal("replay produced a different transaction")
	}
	if balance, _ := l.Balance(ctx, "CT003"); balance != 3_000 {
		t.Fatalf("double credit: balance %d, want 3000", balance)
	}
}

func TestInMemoryLedger_CompletePendingUnknownReference(t *testing.T) {
	l := NewInMemory()
	if _, err := l.CompletePending(context.Background(), "evt_missing"); !errors.Is(err, ErrUnknownPayment) {
		t.Fatalf("expected ErrUnknownPayment, got %v", err)
	}
}

func TestInMemoryLedger_CompletePendingExpired(t *testing.T) {
	l := NewInMemory()
	ctx := context.Background()
	l.EnsureAccount(ctx, "CT003")

	now := time.Now()
	SetClock(l, func() time.Time { return now })

	if _, err := l.InitiatePending(ctx, "CT003", 3_000, "card", "evt_exp", now.Add(time.Minute)); err != nil {
		t.Fatalf("initiate pending: %v", err)
	}

	SetClock(l, func() time.Time { return now.Add(2 * time.Minute) })

	if _, err := l.CompletePending(ctx, "evt_exp"); !errors.Is(err, ErrExpired) {
		t.Fatalf("expected ErrExpired, got %v", err)
	}
	// Still expired on any later delivery, and no credit happened.
	if _, err := l.CompletePending(ctx, "evt_exp"); !errors.Is(err, ErrExpired) {
		t.Fatalf("expected ErrExpired on redelivery, got %v", err)
	}
	if balance, _ := l.Balance(ctx, "CT003"); balance != 0 {
		t.Fatalf("expired confirmation credited balance: %d", balance)
	}
}

func TestInMemoryLedger_DuplicateExternalReference(t *testing.T) {
	l := NewInMemory()
	ctx := context.Background()
	l.EnsureAccount(ctx, "CT003")

	expiry := time.Now().Add(time.Hour)
	if _, err := l.InitiatePending(ctx, "CT003", 1_000, "card", "evt_dup", expiry); err != nil {
		t.Fatalf("initiate pending: %v", err)
	}
	if _, err := l.InitiatePending(ctx, "CT003", 1_000, "card", "evt_dup", expiry); !errors.Is(err, ErrDuplicateReference) {
		t.Fatalf("expected ErrDuplicateReference, got %v", err)
	}
}

func TestInMemoryLedger_ConcurrentOverdrain(t *testing.T) {
	l := NewInMemory()
	ctx := context.Background()
	l.EnsureAccount(ctx, "CT001")
	l.EnsureAccount(ctx, "CT002")

	const initial = int64(10_000)
	const workers = 20
	const amount = int64(1_000) // workers*amount > initial

	SeedBalance(l, "CT001", initial)

	var wg sync.WaitGroup
	var mu sync.Mutex
	var succeeded int64

	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := l.Transfer(ctx, "CT001", "CT002", amount)
			switch {
			case err == nil:
				mu.Lock()
				succeeded += amount
				mu.Unlock()
			case errors.Is(err, ErrInsufficientFunds):
				// expected for the losing subset
			default:
				t.Errorf("transfer %d: unexpected error %v", i, err)
			}
		}(i)
	}
	wg.Wait()

	from, _ := l.Balance(ctx, "CT001")
	to, _ := l.Balance(ctx, "CT002")

	if from < 0 {
		t.Fatalf("source balance went negative: %d", from)
	}
	if from != initial-succeeded {
		t.Fatalf("source balance %d, want %d", from, initial-succeeded)
	}
	if to != succeeded {
		t.Fatalf("destination balance %d, want %d", to, succeeded)
	}
}

func TestInMemoryLedger_ConcurrentDonations(t *testing.T) {
	l := NewInMemory()
	ctx := context.Background()
	l.EnsureAccount(ctx, "CT001")

	const workers = 10
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			if _, err := l.Donate(ctx, "CT001", 500, fmt.Sprintf("donor-%d", i)); err != nil {
				t.Errorf("donate %d: %v", i, err)
			}
		}(i)
	}
	wg.Wait()

	if balance, _ := l.Balance(ctx, "CT001"); balance != workers*500 {
		t.Fatalf("balance %d, want %d", balance, workers*500)
	}
}
