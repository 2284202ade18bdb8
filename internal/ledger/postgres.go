package ledger

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

const (
	serializationFailureCode = "40001"
	maxTransferAttempts      = 3
)

// PostgresLedger persists accounts and transactions in PostgreSQL. Balance
// mutations run inside a transaction with row locks so two operations on the
// same tag never interleave.
type PostgresLedger struct {
	db *pgxpool.Pool
}

// NewPostgresLedger constructs a Postgres-backed ledger implementation.
func NewPostgresLedger(db *pgxpool.Pool) *PostgresLedger {
	return &PostgresLedger{db: db}
}

// EnsureAccount guarantees an account row exists for the provided tag code.
func (l *PostgresLedger) EnsureAccount(ctx context.Context, code string) error {
	_, err := l.db.Exec(ctx, `INSERT INTO tag_accounts (code, balance) VALUES ($1, 0)
        ON CONFLICT (code) DO NOTHING`, NormalizeCode(code))
	return err
}

// Balance returns the current balance for the tag code.
func (l *PostgresLedger) Balance(ctx context.Context, code string) (int64, error) {
	var balance int64
	err := l.db.QueryRow(ctx, `SELECT balance FROM tag_accounts WHERE code = $1`, NormalizeCode(code)).Scan(&balance)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, ErrNotFound
	}
	return balance, err
}

// Adjust applies a signed delta in a single statement. The balance check and
// the write are one atomic unit, the CHECK constraint backstops the guard.
func (l *PostgresLedger) Adjust(ctx context.Context, code string, delta int64, enforceNonNegative bool) (int64, error) {
	code = NormalizeCode(code)

	query := `UPDATE tag_accounts SET balance = balance + $2 WHERE code = $1 RETURNING balance`
	if enforceNonNegative {
		query = `UPDATE tag_accounts SET balance = balance + $2
            WHERE code = $1 AND balance + $2 >= 0 RETURNING balance`
	}

	var balance int64
	err := l.db.QueryRow(ctx, query, code, delta).Scan(&balance)
	if errors.Is(err, pgx.ErrNoRows) {
		// Distinguish a missing account from a rejected debit.
		var exists bool
		if probeErr := l.db.QueryRow(ctx, `SELECT true FROM tag_accounts WHERE code = $1`, code).Scan(&exists); probeErr != nil {
			if errors.Is(probeErr, pgx.ErrNoRows) {
				return 0, ErrNotFound
			}
			return 0, probeErr
		}
		return 0, ErrInsufficientFunds
	}
	return balance, err
}

// Donate credits the tag and records a completed donation in one transaction.
func (l *PostgresLedger) Donate(ctx context.Context, code string, amount int64, source string) (DonationOutcome, error) {
	if amount <= 0 {
		return DonationOutcome{}, ErrInvalidAmount
	}
	code = NormalizeCode(code)

	tx, err := l.db.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return DonationOutcome{}, err
	}
	defer tx.Rollback(ctx) // nolint:errcheck

	balance, err := creditLocked(ctx, tx, code, amount)
	if err != nil {
		return DonationOutcome{}, err
	}

	record := Transaction{
		ID:          uuid.NewString(),
		Source:      source,
		TagCode:     code,
		Amount:      amount,
		Kind:        KindDonation,
		Status:      StatusCompleted,
		CreatedAt:   time.Now().UTC(),
		CompletedAt: time.Now().UTC(),
	}
	if err := insertTransaction(ctx, tx, record); err != nil {
		return DonationOutcome{}, err
	}

	if err := tx.Commit(ctx); err != nil {
		return DonationOutcome{}, err
	}

	return DonationOutcome{Transaction: record, Balance: balance}, nil
}

// Transfer debits one tag and credits the other atomically. Rows are locked in
// a stable order to avoid deadlocks between opposing transfers; serialization
// failures are retried a bounded number of times before surfacing ErrConflict.
func (l *PostgresLedger) Transfer(ctx context.Context, fromCode, toCode string, amount int64) (TransferOutcome, error) {
	if amount <= 0 {
		return TransferOutcome{}, ErrInvalidAmount
	}
	fromCode = NormalizeCode(fromCode)
	toCode = NormalizeCode(toCode)
	if fromCode == toCode {
		return TransferOutcome{}, ErrSameTag
	}

	var lastErr error
	for attempt := 0; attempt < maxTransferAttempts; attempt++ {
		outcome, err := l.transferOnce(ctx, fromCode, toCode, amount)
		if err == nil {
			return outcome, nil
		}
		if !isSerializationFailure(err) {
			return TransferOutcome{}, err
		}
		lastErr = err
	}
	return TransferOutcome{}, fmt.Errorf("%w: %v", ErrConflict, lastErr)
}

func (l *PostgresLedger) transferOnce(ctx context.Context, fromCode, toCode string, amount int64) (TransferOutcome, error) {
	tx, err := l.db.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return TransferOutcome{}, err
	}
	defer tx.Rollback(ctx) // nolint:errcheck

	first, second := fromCode, toCode
	if second < first {
		first, second = second, first
	}
	balances := map[string]int64{}
	for _, code := range []string{first, second} {
		var balance int64
		if err := tx.QueryRow(ctx, `SELECT balance FROM tag_accounts WHERE code = $1 FOR UPDATE`, code).Scan(&balance); err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return TransferOutcome{}, ErrNotFound
			}
			return TransferOutcome{}, err
		}
		balances[code] = balance
	}

	if balances[fromCode] < amount {
		return TransferOutcome{}, ErrInsufficientFunds
	}

	fromBalance := balances[fromCode] - amount
	toBalance := balances[toCode] + amount
	if _, err := tx.Exec(ctx, `UPDATE tag_accounts SET balance = $2 WHERE code = $1`, fromCode, fromBalance); err != nil {
		return TransferOutcome{}, err
	}
	if _, err := tx.Exec(ctx, `UPDATE tag_accounts SET balance = $2 WHERE code = $1`, toCode, toBalance); err != nil {
		return TransferOutcome{}, err
	}

	record := Transaction{
		ID:          uuid.NewString(),
		Source:      fromCode,
		TagCode:     toCode,
		Amount:      amount,
		Kind:        KindTransfer,
		Status:      StatusCompleted,
		CreatedAt:   time.Now().UTC(),
		CompletedAt: time.Now().UTC(),
	}
	if err := insertTransaction(ctx, tx, record); err != nil {
		return TransferOutcome{}, err
	}

	if err := tx.Commit(ctx); err != nil {
		return TransferOutcome{}, err
	}

	return TransferOutcome{Transaction: record, FromBalance: fromBalance, ToBalance: toBalance}, nil
}

// InitiatePending records a donation intent awaiting provider confirmation.
// The balance is untouched until CompletePending.
func (l *PostgresLedger) InitiatePending(ctx context.Context, code string, amount int64, provider, externalRef string, expiresAt time.Time) (Transaction, error) {
	if amount <= 0 {
		return Transaction{}, ErrInvalidAmount
	}
	code = NormalizeCode(code)

	var exists bool
	if err := l.db.QueryRow(ctx, `SELECT true FROM tag_accounts WHERE code = $1`, code).Scan(&exists); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Transaction{}, ErrNotFound
		}
		return Transaction{}, err
	}

	record := Transaction{
		ID:          uuid.NewString(),
		Source:      provider,
		TagCode:     code,
		Amount:      amount,
		Kind:        KindDonation,
		Status:      StatusPending,
		Provider:    provider,
		ExternalRef: externalRef,
		CreatedAt:   time.Now().UTC(),
		ExpiresAt:   expiresAt.UTC(),
	}

	_, err := l.db.Exec(ctx, `INSERT INTO tag_transactions
        (id, source, tag_code, amount, kind, status, provider, external_ref, created_at, expires_at)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		record.ID, record.Source, record.TagCode, record.Amount, record.Kind,
		record.Status, record.Provider, record.ExternalRef, record.CreatedAt, record.ExpiresAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return Transaction{}, ErrDuplicateReference
		}
		return Transaction{}, err
	}

	return record, nil
}

// CompletePending finalizes the pending transaction matching the external
// reference and credits the tag exactly once. The row lock on the transaction
// makes concurrent redeliveries serialize, the status check makes them no-ops.
func (l *PostgresLedger) CompletePending(ctx context.Context, externalRef string) (ConfirmOutcome, error) {
	tx, err := l.db.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return ConfirmOutcome{}, err
	}
	defer tx.Rollback(ctx) // nolint:errcheck

	var record Transaction
	var completedAt, expiresAt *time.Time
	err = tx.QueryRow(ctx, `SELECT id, source, tag_code, amount, kind, status, provider, created_at, completed_at, expires_at
        FROM tag_transactions WHERE external_ref = $1 FOR UPDATE`, externalRef).Scan(
		&record.ID, &record.Source, &record.TagCode, &record.Amount, &record.Kind,
		&record.Status, &record.Provider, &record.CreatedAt, &completedAt, &expiresAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return ConfirmOutcome{}, ErrUnknownPayment
	}
	if err != nil {
		return ConfirmOutcome{}, err
	}
	record.ExternalRef = externalRef
	if completedAt != nil {
		record.CompletedAt = *completedAt
	}
	if expiresAt != nil {
		record.ExpiresAt = *expiresAt
	}

	switch record.Status {
	case StatusCompleted:
		balance, err := l.Balance(ctx, record.TagCode)
		if err != nil {
			return ConfirmOutcome{}, err
		}
		return ConfirmOutcome{Transaction: record, Balance: balance, Replayed: true}, nil
	case StatusFailed:
		return ConfirmOutcome{}, ErrExpired
	}

	if !record.ExpiresAt.IsZero() && time.Now().After(record.ExpiresAt) {
		if _, err := tx.Exec(ctx, `UPDATE tag_transactions SET status = $2 WHERE id = $1`, record.ID, StatusFailed); err != nil {
			return ConfirmOutcome{}, err
		}
		if err := tx.Commit(ctx); err != nil {
			return ConfirmOutcome{}, err
		}
		return ConfirmOutcome{}, ErrExpired
	}

	balance, err := creditLocked(ctx, tx, record.TagCode, record.Amount)
	if err != nil {
		return ConfirmOutcome{}, err
	}

	record.Status = StatusCompleted
	record.CompletedAt = time.Now().UTC()
	if _, err := tx.Exec(ctx, `UPDATE tag_transactions SET status = $2, completed_at = $3 WHERE id = $1`,
		record.ID, record.Status, record.CompletedAt); err != nil {
		return ConfirmOutcome{}, err
	}

	if err := tx.Commit(ctx); err != nil {
		return ConfirmOutcome{}, err
	}

	return ConfirmOutcome{Transaction: record, Balance: balance}, nil
}

func creditLocked(ctx context.Context, tx pgx.Tx, code string, amount int64) (int64, error) {
	var balance int64
	err := tx.QueryRow(ctx, `UPDATE tag_accounts SET balance = balance + $2 WHERE code = $1 RETURNING balance`,
		code, amount).Scan(&balance)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, ErrNotFound
	}
	return balance, err
}

func insertTransaction(ctx context.Context, tx pgx.Tx, record Transaction) error {
	_, err := tx.Exec(ctx, `INSERT INTO tag_transactions
        (id, source, tag_code, amount, kind, status, provider, external_ref, created_at, completed_at)
        VALUES ($1, $2, $3, $4, $5, $6, $7, NULLIF($8, ''), $9, $10)`,
		record.ID, record.Source, record.TagCode, record.Amount, record.Kind,
		record.Status, record.Provider, record.ExternalRef, record.CreatedAt, record.CompletedAt)
	return err
}

func isSerializationFailure(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == serializationFailureCode
}
