package budget

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"github.com/FACorreiaa/money-diary/pkg/db"
)

// Budget is the monthly budget record.
type Budget struct {
	ID        uuid.UUID
	YearMonth string
	Total     decimal.Decimal
}

// Item is the amount budgeted for one subcategory.
type Item struct {
	SubcategoryID    uuid.UUID
	SubcategoryName  string
	SubcategoryOrder int
	CategoryID       uuid.UUID
	CategoryName     string
	CategoryOrder    int
	IsIncome         bool
	Amount           decimal.Decimal
}

// Entry is a transaction with its classification, as read for a roll-up.
type Entry struct {
	TransactionID    uuid.UUID
	Date             time.Time
	Amount           decimal.Decimal
	Description      string
	Currency         string
	CategoryID       *uuid.UUID
	CategoryName     *string
	CategoryOrder    int
	IsIncome         bool
	SubcategoryID    *uuid.UUID
	SubcategoryName  *string
	SubcategoryOrder int
	PatternID        *uuid.UUID
	PatternName      *string
}

// Repository reads budgets and classified transactions.
type Repository struct {
	db db.Querier
}

// NewRepository creates a new budget repository
func NewRepository(q db.Querier) *Repository {
	return &Repository{db: q}
}

// Budget returns the user's budget for yearMonth with its items. A month
// without a budget returns nil and no items.
func (r *Repository) Budget(ctx context.Context, userID uuid.UUID, yearMonth string) (*Budget, []Item, error) {
	b := &Budget{YearMonth: yearMonth}
	err := r.db.QueryRow(ctx, `
		SELECT id, total FROM moneydiary.budgets
		WHERE user_id = $1 AND year_month = $2`,
		userID, yearMonth,
	).Scan(&b.ID, &b.Total)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil, nil
	}
	if err != nil {
		return nil, nil, fmt.Errorf("failed to get budget: %w", err)
	}

	rows, err := r.db.Query(ctx, `
		SELECT s.id, s.name, s.display_order, c.id, c.name, c.display_order, c.is_income, bi.amount
		FROM moneydiary.budget_items bi
		JOIN moneydiary.subcategories s ON s.id = bi.subcategory_id
		JOIN moneydiary.categories c ON c.id = s.category_id
		WHERE bi.budget_id = $1`,
		b.ID,
	)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to list budget items: %w", err)
	}
	defer rows.Close()

	var items []Item
	for rows.Next() {
		var it Item
		if err := rows.Scan(
			&it.SubcategoryID,
			&it.SubcategoryName,
			&it.SubcategoryOrder,
			&it.CategoryID,
			&it.CategoryName,
			&it.CategoryOrder,
			&it.IsIncome,
			&it.Amount,
		); err != nil {
			return nil, nil, fmt.Errorf("failed to scan budget item: %w", err)
		}
		items = append(items, it)
	}
	return b, items, rows.Err()
}

// entrySelect joins a transaction to its subcategory, category and the
// pattern of its latest match.
const entrySelect = `
	SELECT t.id, t.transaction_date, t.amount, t.description, a.currency,
		c.id, c.name, COALESCE(c.display_order, 0), COALESCE(c.is_income, FALSE),
		s.id, s.name, COALESCE(s.display_order, 0),
		dp.id, dp.name
	FROM moneydiary.transactions t
	JOIN moneydiary.accounts a ON a.id = t.account_id
	LEFT JOIN moneydiary.subcategories s ON s.id = t.subcategory_id
	LEFT JOIN moneydiary.categories c ON c.id = s.category_id
	LEFT JOIN LATERAL (
		SELECT pm.pattern_id FROM audit.pattern_matches pm
		WHERE pm.transaction_id = t.id
		ORDER BY pm.applied_at DESC, pm.id DESC
		LIMIT 1
	) m ON TRUE
	LEFT JOIN moneydiary.description_patterns dp ON dp.id = m.pattern_id`

func scanEntry(row pgx.Row) (*Entry, error) {
	e := &Entry{}
	err := row.Scan(
		&e.TransactionID,
		&e.Date,
		&e.Amount,
		&e.Description,
		&e.Currency,
		&e.CategoryID,
		&e.CategoryName,
		&e.CategoryOrder,
		&e.IsIncome,
		&e.SubcategoryID,
		&e.SubcategoryName,
		&e.SubcategoryOrder,
		&e.PatternID,
		&e.PatternName,
	)
	return e, err
}

// Entries returns the user's transactions dated in [from, to).
func (r *Repository) Entries(ctx context.Context, userID uuid.UUID, from, to time.Time) ([]Entry, error) {
	query := entrySelect + `
		WHERE t.user_id = $1 AND t.transaction_date >= $2 AND t.transaction_date < $3
		ORDER BY t.transaction_date, t.created_at, t.id`

	rows, err := r.db.Query(ctx, query, userID, from, to)
	if err != nil {
		return nil, fmt.Errorf("failed to list month transactions: %w", err)
	}
	defer rows.Close()

	var out []Entry
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan month transaction: %w", err)
		}
		out = append(out, *e)
	}
	return out, rows.Err()
}

// LatestSalary returns the most recent salary transaction dated in
// [from, to), or nil.
func (r *Repository) LatestSalary(ctx context.Context, userID uuid.UUID, from, to time.Time) (*Entry, error) {
	query := entrySelect + `
		WHERE t.user_id = $1 AND t.transaction_date >= $2 AND t.transaction_date < $3
			AND lower(c.name) = lower($4) AND lower(s.name) = lower($5)
		ORDER BY t.transaction_date DESC, t.created_at DESC, t.id
		LIMIT 1`

	e, err := scanEntry(r.db.QueryRow(ctx, query, userID, from, to, SalaryCategory, SalarySubcategory))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get latest salary: %w", err)
	}
	return e, nil
}
