// Package admin holds the maintenance operations run from the admin CLI.
package admin

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"github.com/FACorreiaa/money-diary/pkg/db"
)

// DemoAccountName names the account created by Seed.
const DemoAccountName = "Demo account"

// Category is one entry of the default taxonomy.
type Category struct {
	Name          string
	IsIncome      bool
	Subcategories []string
}

// DefaultTaxonomy is seeded for new users. Income / Zweicom tags the salary
// carried over by the budget summary.
var DefaultTaxonomy = []Category{
	{Name: "Income", IsIncome: true, Subcategories: []string{"Zweicom", "Other income"}},
	{Name: "Housing", Subcategories: []string{"Rent", "Utilities"}},
	{Name: "Food", Subcategories: []string{"Groceries", "Restaurants"}},
	{Name: "Transport", Subcategories: []string{"Fuel", "Public transport"}},
	{Name: "Leisure", Subcategories: []string{"Subscriptions", "Travel"}},
}

// SeedResult reports what Seed created.
type SeedResult struct {
	Categories     int
	Subcategories  int
	AccountID      uuid.UUID
	AccountCreated bool
}

// Drift is an account whose stored balance differs from its transactions.
type Drift struct {
	AccountID uuid.UUID
	Name      string
	Stored    decimal.Decimal
	Computed  decimal.Decimal
}

// Repository runs admin maintenance against the database.
type Repository struct {
	pool db.Pool
}

func NewRepository(pool db.Pool) *Repository {
	return &Repository{pool: pool}
}

// Seed creates the default taxonomy and a demo account for userID. Running
// it again creates nothing new.
func (r *Repository) Seed(ctx context.Context, userID uuid.UUID, currency string) (*SeedResult, error) {
	res := &SeedResult{}
	err := db.InTx(ctx, r.pool, func(tx pgx.Tx) error {
		for i, c := range DefaultTaxonomy {
			var catID uuid.UUID
			var inserted bool
			err := tx.QueryRow(ctx, `
				INSERT INTO moneydiary.categories (user_id, name, display_order, is_expense, is_income)
				VALUES ($1, $2, $3, $4, $5)
				ON CONFLICT (user_id, name) DO UPDATE SET name = EXCLUDED.name
				RETURNING id, (xmax = 0)`,
				userID, c.Name, i, !c.IsIncome, c.IsIncome,
			).Scan(&catID, &inserted)
			if err != nil {
				return fmt.Errorf("failed to seed category %q: %w", c.Name, err)
			}
			if inserted {
				res.Categories++
			}

			for j, name := range c.Subcategories {
				tag, err := tx.Exec(ctx, `
					INSERT INTO moneydiary.subcategories (user_id, category_id, name, display_order, is_expense, is_income)
					VALUES ($1, $2, $3, $4, $5, $6)
					ON CONFLICT (category_id, name) DO NOTHING`,
					userID, catID, name, j, !c.IsIncome, c.IsIncome,
				)
				if err != nil {
					return fmt.Errorf("failed to seed subcategory %q: %w", name, err)
				}
				res.Subcategories += int(tag.RowsAffected())
			}
		}

		err := tx.QueryRow(ctx, `
			SELECT id FROM moneydiary.accounts
			WHERE user_id = $1 AND name = $2
			ORDER BY created_at
			LIMIT 1`,
			userID, DemoAccountName,
		).Scan(&res.AccountID)
		if err == nil {
			return nil
		}
		if !errors.Is(err, pgx.ErrNoRows) {
			return fmt.Errorf("failed to look up demo account: %w", err)
		}

		res.AccountID = uuid.New()
		res.AccountCreated = true
		_, err = tx.Exec(ctx, `
			INSERT INTO moneydiary.accounts (id, user_id, name, currency)
			VALUES ($1, $2, $3, $4)`,
			res.AccountID, userID, DemoAccountName, currency,
		)
		if err != nil {
			return fmt.Errorf("failed to create demo account: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return res, nil
}

// Drifts lists the user's accounts whose current_balance is not the sum of
// their transactions plus mirrored transfers.
func (r *Repository) Drifts(ctx context.Context, userID uuid.UUID) ([]Drift, error) {
	rows, err := r.pool.Query(ctx, `
		WITH movements AS (
			SELECT account_id, amount FROM moneydiary.transactions WHERE user_id = $1
			UNION ALL
			SELECT transfer_account_id, -amount FROM moneydiary.transactions
			WHERE user_id = $1 AND transfer_account_id IS NOT NULL AND amount < 0
		)
		SELECT a.id, a.name, a.current_balance, COALESCE(SUM(m.amount), 0)
		FROM moneydiary.accounts a
		LEFT JOIN movements m ON m.account_id = a.id
		WHERE a.user_id = $1
		GROUP BY a.id, a.name, a.current_balance
		HAVING a.current_balance <> COALESCE(SUM(m.amount), 0)
		ORDER BY a.name`,
		userID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to compute account drift: %w", err)
	}
	defer rows.Close()

	var out []Drift
	for rows.Next() {
		var d Drift
		if err := rows.Scan(&d.AccountID, &d.Name, &d.Stored, &d.Computed); err != nil {
			return nil, fmt.Errorf("failed to scan account drift: %w", err)
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

// Reconcile overwrites the stored balances of drifted accounts.
func (r *Repository) Reconcile(ctx context.Context, drifts []Drift) error {
	return db.InTx(ctx, r.pool, func(tx pgx.Tx) error {
		for _, d := range drifts {
			if _, err := tx.Exec(ctx, `
				UPDATE moneydiary.accounts SET current_balance = $2, updated_at = NOW()
				WHERE id = $1`,
				d.AccountID, d.Computed,
			); err != nil {
				return fmt.Errorf("failed to reconcile account %s: %w", d.AccountID, err)
			}
		}
		return nil
	})
}
