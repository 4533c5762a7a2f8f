package ledger

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"github.com/FACorreiaa/money-diary/internal/apperr"
	"github.com/FACorreiaa/money-diary/pkg/db"
)

// Repository reads accounts and writes transactions. It works on a pool or on
// an open pgx.Tx, so the import commit can run every statement in one unit.
type Repository struct {
	db db.Querier
}

// NewRepository creates a ledger repository over q.
func NewRepository(q db.Querier) *Repository {
	return &Repository{db: q}
}

// GetAccount loads an account by id.
func (r *Repository) GetAccount(ctx context.Context, id uuid.UUID) (*Account, error) {
	query := `
		SELECT id, user_id, bank_id, type_id, name, currency, current_balance, active, created_at
		FROM moneydiary.accounts
		WHERE id = $1`

	a := &Account{}
	err := r.db.QueryRow(ctx, query, id).Scan(
		&a.ID,
		&a.UserID,
		&a.BankID,
		&a.TypeID,
		&a.Name,
		&a.Currency,
		&a.CurrentBalance,
		&a.Active,
		&a.CreatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrAccountNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get account: %w", err)
	}
	return a, nil
}

// GetOwnedAccount loads an account and checks it belongs to userID.
func (r *Repository) GetOwnedAccount(ctx context.Context, userID, id uuid.UUID) (*Account, error) {
	a, err := r.GetAccount(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := EnsureOwner(KindAccount, a, userID); err != nil {
		return nil, err
	}
	return a, nil
}

// AdjustBalance adds delta to the cached balance of an account.
func (r *Repository) AdjustBalance(ctx context.Context, accountID uuid.UUID, delta decimal.Decimal) error {
	query := `
		UPDATE moneydiary.accounts
		SET current_balance = current_balance + $2, updated_at = NOW()
		WHERE id = $1`

	tag, err := r.db.Exec(ctx, query, accountID, delta)
	if err != nil {
		return fmt.Errorf("failed to adjust balance: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrAccountNotFound
	}
	return nil
}

// InsertTransaction persists t, assigning an id when missing.
func (r *Repository) InsertTransaction(ctx context.Context, t *Transaction) error {
	if t.Amount.IsZero() {
		return ErrZeroAmount
	}
	if t.ID == uuid.Nil {
		t.ID = uuid.New()
	}
	if t.Status == 0 {
		t.Status = StatusCleared
	}

	query := `
		INSERT INTO moneydiary.transactions (
			id, user_id, account_id, amount, transaction_date, description, notes,
			subcategory_id, transfer_account_id, status_id, external_id, content_hash,
			import_source, file_import_id, is_recurring, is_planned
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)
		RETURNING created_at`

	err := r.db.QueryRow(ctx, query,
		t.ID,
		t.UserID,
		t.AccountID,
		t.Amount,
		t.TransactionDate,
		t.Description,
		t.Notes,
		t.SubcategoryID,
		t.TransferAccountID,
		t.Status,
		t.ExternalID,
		t.ContentHash,
		t.ImportSource,
		t.FileImportID,
		t.IsRecurring,
		t.IsPlanned,
	).Scan(&t.CreatedAt)
	if err != nil {
		return apperr.Internal(err, "failed to insert transaction")
	}
	return nil
}

// ExternalIDExists reports whether the user already has a transaction with externalID.
func (r *Repository) ExternalIDExists(ctx context.Context, userID uuid.UUID, externalID string) (bool, error) {
	query := `
		SELECT EXISTS (
			SELECT 1 FROM moneydiary.transactions WHERE user_id = $1 AND external_id = $2
		)`
	return r.exists(ctx, query, userID, externalID)
}

// ContentHashExists reports whether the user already has a transaction with hash.
func (r *Repository) ContentHashExists(ctx context.Context, userID uuid.UUID, hash string) (bool, error) {
	query := `
		SELECT EXISTS (
			SELECT 1 FROM moneydiary.transactions WHERE user_id = $1 AND content_hash = $2
		)`
	return r.exists(ctx, query, userID, hash)
}

// ExactMatchExists checks the literal (user, account, amount, date, description) tuple.
func (r *Repository) ExactMatchExists(ctx context.Context, userID, accountID uuid.UUID, amount decimal.Decimal, date time.Time, description string) (bool, error) {
	query := `
		SELECT EXISTS (
			SELECT 1 FROM moneydiary.transactions
			WHERE user_id = $1 AND account_id = $2 AND amount = $3
			  AND transaction_date = $4 AND description = $5
		)`
	return r.exists(ctx, query, userID, accountID, amount, date, description)
}

// DescriptionsOn returns the stored descriptions sharing (user, account, amount, date).
func (r *Repository) DescriptionsOn(ctx context.Context, userID, accountID uuid.UUID, amount decimal.Decimal, date time.Time) ([]string, error) {
	query := `
		SELECT description FROM moneydiary.transactions
		WHERE user_id = $1 AND account_id = $2 AND amount = $3 AND transaction_date = $4`

	rows, err := r.db.Query(ctx, query, userID, accountID, amount, date)
	if err != nil {
		return nil, fmt.Errorf("failed to query descriptions: %w", err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var d string
		if err := rows.Scan(&d); err != nil {
			return nil, fmt.Errorf("failed to scan description: %w", err)
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

func (r *Repository) exists(ctx context.Context, query string, args ...any) (bool, error) {
	var found bool
	if err := r.db.QueryRow(ctx, query, args...).Scan(&found); err != nil {
		return false, fmt.Errorf("failed to run existence check: %w", err)
	}
	return found, nil
}
