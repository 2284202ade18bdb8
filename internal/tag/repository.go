package tag

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/givetag/givetag/internal/ledger"
)

var (
	// ErrNotFound occurs when no tag exists for a code.
	ErrNotFound = errors.New("tag not found")

	// ErrExists occurs when issuing a tag whose code is already taken.
	ErrExists = errors.New("tag code already issued")
)

// Repository persists tag records keyed by normalized code.
type Repository interface {
	Create(ctx context.Context, t Tag) error
	Get(ctx context.Context, code string) (Tag, error)
}

// PostgresRepository stores tags in PostgreSQL.
type PostgresRepository struct {
	db *pgxpool.Pool
}

// NewPostgresRepository builds a repository backed by PostgreSQL.
func NewPostgresRepository(db *pgxpool.Pool) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// Create inserts a tag record.
func (r *PostgresRepository) Create(ctx context.Context, t Tag) error {
	_, err := r.db.Exec(ctx, `INSERT INTO tags
        (code, wallet_id, display_name, beneficiary_type, org_id, pin_hash, biometric_ref, created_at)
        VALUES ($1, $2, $3, $4, NULLIF($5, ''), $6, NULLIF($7, ''), $8)`,
		ledger.NormalizeCode(t.Code), t.WalletID, t.DisplayName, t.BeneficiaryType,
		t.OrgID, t.PINHash, t.BiometricRef, t.CreatedAt.UTC())
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return ErrExists
		}
		return err
	}
	return nil
}

// Get fetches a tag by code, case-insensitively.
func (r *PostgresRepository) Get(ctx context.Context, code string) (Tag, error) {
	row := r.db.QueryRow(ctx, `SELECT code, wallet_id, display_name, beneficiary_type,
        COALESCE(org_id, ''), pin_hash, COALESCE(biometric_ref, ''), created_at
        FROM tags WHERE code = $1`, ledger.NormalizeCode(code))

	var t Tag
	var createdAt time.Time
	if err := row.Scan(&t.Code, &t.WalletID, &t.DisplayName, &t.BeneficiaryType,
		&t.OrgID, &t.PINHash, &t.BiometricRef, &createdAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Tag{}, ErrNotFound
		}
		return Tag{}, err
	}
	t.CreatedAt = createdAt.UTC()
	return t, nil
}
