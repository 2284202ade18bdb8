package ledger

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

type inMemoryLedger struct {
	mu           sync.Mutex
	balances     map[string]int64
	transactions map[string]Transaction
	byRef        map[string]string
	now          func() time.Time
}

// NewInMemory creates a concurrency-safe in-memory ledger. All operations
// serialize on a single mutex, so the balance read-decide-write sequence is
// atomic per call. Suitable for tests and development mode.
func NewInMemory() Ledger {
	return &inMemoryLedger{
		balances:     make(map[string]int64),
		transactions: make(map[string]Transaction),
		byRef:        make(map[string]string),
		now:          time.Now,
	}
}

func (l *inMemoryLedger) EnsureAccount(_ context.Context, code string) error {
	code = NormalizeCode(code)
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, exists := l.balances[code]; !exists {
		l.balances[code] = 0
	}
	return nil
}

func (l *inMemoryLedger) Balance(_ context.Context, code string) (int64, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	balance, exists := l.balances[NormalizeCode(code)]
	if !exists {
		return 0, ErrNotFound
	}
	return balance, nil
}

func (l *inMemoryLedger) Adjust(_ context.Context, code string, delta int64, enforceNonNegative bool) (int64, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.adjustLocked(NormalizeCode(code), delta, enforceNonNegative)
}

// adjustLocked applies a signed delta. Callers must hold l.mu.
func (l *inMemoryLedger) adjustLocked(code string, delta int64, enforceNonNegative bool) (int64, error) {
	balance, exists := l.balances[code]
	if !exists {
		return 0, ErrNotFound
	}
	next := balance + delta
	if enforceNonNegative && next < 0 {
		return 0, ErrInsufficientFunds
	}
	l.balances[code] = next
	return next, nil
}

func (l *inMemoryLedger) Donate(_ context.Context, code string, amount int64, source string) (DonationOutcome, error) {
	if amount <= 0 {
		return DonationOutcome{}, ErrInvalidAmount
	}
	code = NormalizeCode(code)

	l.mu.Lock()
	defer l.mu.Unlock()

	balance, err := l.adjustLocked(code, amount, true)
	if err != nil {
		return DonationOutcome{}, err
	}

	now := l.now().UTC()
	tx := Transaction{
		ID:          uuid.NewString(),
		Source:      source,
		TagCode:     code,
		Amount:      amount,
		Kind:        KindDonation,
		Status:      StatusCompleted,
		CreatedAt:   now,
		CompletedAt: now,
	}
	l.transactions[tx.ID] = tx

	return DonationOutcome{Transaction: tx, Balance: balance}, nil
}

func (l *inMemoryLedger) Transfer(_ context.Context, fromCode, toCode string, amount int64) (TransferOutcome, error) {
	if amount <= 0 {
		return TransferOutcome{}, ErrInvalidAmount
	}
	fromCode = NormalizeCode(fromCode)
	toCode = NormalizeCode(toCode)
	if fromCode == toCode {
		return TransferOutcome{}, ErrSameTag
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	fromBalance, ok := l.balances[fromCode]
	if !ok {
		return TransferOutcome{}, ErrNotFound
	}
	toBalance, ok := l.balances[toCode]
	if !ok {
		return TransferOutcome{}, ErrNotFound
	}
	if fromBalance < amount {
		return TransferOutcome{}, ErrInsufficientFunds
	}

	fromBalance -= amount
	toBalance += amount
	l.balances[fromCode] = fromBalance
	l.balances[toCode] = toBalance

	now := l.now().UTC()
	tx := Transaction{
		ID:          uuid.NewString(),
		Source:      fromCode,
		TagCode:     toCode,
		Amount:      amount,
		Kind:        KindTransfer,
		Status:      StatusCompleted,
		CreatedAt:   now,
		CompletedAt: now,
	}
	l.transactions[tx.ID] = tx

	return TransferOutcome{Transaction: tx, FromBalance: fromBalance, ToBalance: toBalance}, nil
}

func (l *inMemoryLedger) InitiatePending(_ context.Context, code string, amount int64, provider, externalRef string, expiresAt time.Time) (Transaction, error) {
	if amount <= 0 {
		return Transaction{}, ErrInvalidAmount
	}
	code = NormalizeCode(code)

	l.mu.Lock()
	defer l.mu.Unlock()

	if _, exists := l.balances[code]; !exists {
		return Transaction{}, ErrNotFound
	}
	if _, exists := l.byRef[externalRef]; exists {
		return Transaction{}, ErrDuplicateReference
	}

	tx := Transaction{
		ID:          uuid.NewString(),
		Source:      provider,
		TagCode:     code,
		Amount:      amount,
		Kind:        KindDonation,
		Status:      StatusPending,
		Provider:    provider,
		ExternalRef: externalRef,
		CreatedAt:   l.now().UTC(),
		ExpiresAt:   expiresAt.UTC(),
	}
	l.transactions[tx.ID] = tx
	l.byRef[externalRef] = tx.ID

	return tx, nil
}

func (l *inMemoryLedger) CompletePending(_ context.Context, externalRef string) (ConfirmOutcome, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	txID, ok := l.byRef[externalRef]
	if !ok {
		return ConfirmOutcome{}, ErrUnknownPayment
	}
	tx := l.transactions[txID]

	switch tx.Status {
	case StatusCompleted:
		return ConfirmOutcome{Transaction: tx, Balance: l.balances[tx.TagCode], Replayed: true}, nil
	case StatusFailed:
		return ConfirmOutcome{}, ErrExpired
	}

	if !tx.ExpiresAt.IsZero() && l.now().After(tx.ExpiresAt) {
		tx.Status = StatusFailed
		l.transactions[txID] = tx
		return ConfirmOutcome{}, ErrExpired
	}

	balance, err := l.adjustLocked(tx.TagCode, tx.Amount, true)
	if err != nil {
		return ConfirmOutcome{}, err
	}

	tx.Status = StatusCompleted
	tx.CompletedAt = l.now().UTC()
	l.transactions[txID] = tx

	return ConfirmOutcome{Transaction: tx, Balance: balance}, nil
}
