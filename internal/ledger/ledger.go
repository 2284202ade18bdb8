package ledger

import (
	"context"
	"errors"
	"strings"
	"time"
)

var (
	// ErrNotFound occurs when a tag code has no ledger account.
	ErrNotFound = errors.New("tag not found")

	// ErrInvalidAmount occurs when an amount is not a positive number of cents.
	ErrInvalidAmount = errors.New("amount must be a positive number of cents")

	// ErrInsufficientFunds occurs when a debit would drive a balance negative.
	ErrInsufficientFunds = errors.New("insufficient funds")

	// ErrSameTag occurs when a transfer names the same tag on both sides.
	ErrSameTag = errors.New("source and destination tag must differ")

	// ErrUnknownPayment indicates no pending transaction matches the external reference.
	ErrUnknownPayment = errors.New("unknown payment reference")

	// ErrDuplicateReference indicates the external reference is already registered
	// against another pending transaction.
	ErrDuplicateReference = errors.New("external reference already registered")

	// ErrExpired indicates a pending transaction passed its expiry before confirmation.
	ErrExpired = errors.New("pending payment expired")

	// ErrConflict indicates a concurrent balance update could not be applied after
	// bounded retries.
	ErrConflict = errors.New("concurrent balance update, retries exhausted")
)

const (
	// KindDonation credits a tag from an external source.
	KindDonation = "donation"
	// KindTransfer moves value between two tags.
	KindTransfer = "transfer"
	// KindSpend debits a tag toward a merchant.
	KindSpend = "spend"
)

const (
	// StatusPending marks a transaction awaiting external confirmation.
	StatusPending = "pending"
	// StatusCompleted marks a finalized transaction whose amount is reflected in balances.
	StatusCompleted = "completed"
	// StatusFailed marks a transaction that will never complete.
	StatusFailed = "failed"
)

// Transaction is a single balance-affecting record. Once Status reaches
// completed or failed the record is immutable.
type Transaction struct {
	ID          string
	Source      string
	TagCode     string
	Amount      int64
	Kind        string
	Status      string
	Provider    string
	ExternalRef string
	CreatedAt   time.Time
	CompletedAt time.Time
	ExpiresAt   time.Time
}

// DonationOutcome captures a completed credit and the resulting balance.
type DonationOutcome struct {
	Transaction Transaction
	Balance     int64
}

// TransferOutcome captures a completed transfer and both resulting balances.
type TransferOutcome struct {
	Transaction Transaction
	FromBalance int64
	ToBalance   int64
}

// ConfirmOutcome captures the result of a provider confirmation. Replayed is
// true when the confirmation had already been applied and no balance changed.
type ConfirmOutcome struct {
	Transaction Transaction
	Balance     int64
	Replayed    bool
}

// Ledger defines the contract implemented by ledger backends. Tag codes are
// normalized internally, callers may pass any casing.
type Ledger interface {
	EnsureAccount(ctx context.Context, code string) error
	Balance(ctx context.Context, code string) (int64, error)
	Adjust(ctx context.Context, code string, delta int64, enforceNonNegative bool) (int64, error)
	Donate(ctx context.Context, code string, amount int64, source string) (DonationOutcome, error)
	Transfer(ctx context.Context, fromCode, toCode string, amount int64) (TransferOutcome, error)
	InitiatePending(ctx context.Context, code string, amount int64, provider, externalRef string, expiresAt time.Time) (Transaction, error)
	CompletePending(ctx context.Context, externalRef string) (ConfirmOutcome, error)
}

// NormalizeCode upper-cases and trims a tag code. Lookups are case-insensitive
// everywhere, so every backend stores codes in this form.
func NormalizeCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}
