package categorization

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/FACorreiaa/money-diary/pkg/db"
)

// Target is a stored transaction a pattern may be applied to.
type Target struct {
	ID            uuid.UUID
	Description   string
	SubcategoryID *uuid.UUID
}

// Application is one pattern write: the transaction's new subcategory plus
// its audit row.
type Application struct {
	TransactionID     uuid.UUID
	SubcategoryID     uuid.UUID
	PatternID         uuid.UUID
	MatchedText       string
	WasManualOverride bool
}

// Repository defines pattern persistence.
type Repository interface {
	CreatePattern(ctx context.Context, p *Pattern) error
	GetPattern(ctx context.Context, id uuid.UUID) (*Pattern, error)
	ListPatterns(ctx context.Context, userID uuid.UUID, activeOnly bool, skip, limit int) ([]Pattern, error)
	PatternsByID(ctx context.Context, userID uuid.UUID, ids []uuid.UUID) ([]Pattern, error)
	UpdatePattern(ctx context.Context, p *Pattern) error
	DeletePattern(ctx context.Context, id uuid.UUID) error
	SubcategoryOwner(ctx context.Context, id uuid.UUID) (uuid.UUID, error)
	ClassifiedDescriptions(ctx context.Context, userID uuid.UUID) ([]Labeled, error)
	Targets(ctx context.Context, userID uuid.UUID, ids []uuid.UUID) ([]Target, error)
	Uncategorized(ctx context.Context, userID uuid.UUID) ([]Target, error)
	Apply(ctx context.Context, apps []Application) error
}

// PostgresRepository implements Repository with pgx.
type PostgresRepository struct {
	pool db.Pool
}

// NewPostgresRepository creates a new pattern repository.
func NewPostgresRepository(pool db.Pool) *PostgresRepository {
	return &PostgresRepository{pool: pool}
}

const patternColumns = `
	id, user_id, name, pattern, pattern_type, subcategory_id, priority, is_case_sensitive,
	is_active, auto_apply, notes, created_at, updated_at`

func scanPattern(row pgx.Row) (*Pattern, error) {
	p := &Pattern{}
	err := row.Scan(
		&p.ID,
		&p.UserID,
		&p.Name,
		&p.Pattern,
		&p.Type,
		&p.SubcategoryID,
		&p.Priority,
		&p.IsCaseSensitive,
		&p.IsActive,
		&p.AutoApply,
		&p.Notes,
		&p.CreatedAt,
		&p.UpdatedAt,
	)
	return p, err
}

func collectPatterns(rows pgx.Rows) ([]Pattern, error) {
	defer rows.Close()
	var out []Pattern
	for rows.Next() {
		p, err := scanPattern(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan pattern: %w", err)
		}
		out = append(out, *p)
	}
	return out, rows.Err()
}

// CreatePattern inserts p, assigning its id and timestamps.
func (r *PostgresRepository) CreatePattern(ctx context.Context, p *Pattern) error {
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	query := `
		INSERT INTO moneydiary.description_patterns (
			id, user_id, name, pattern, pattern_type, subcategory_id, priority,
			is_case_sensitive, is_active, auto_apply, notes
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		RETURNING created_at, updated_at`

	err := r.pool.QueryRow(ctx, query,
		p.ID, p.UserID, p.Name, p.Pattern, p.Type, p.SubcategoryID, p.Priority,
		p.IsCaseSensitive, p.IsActive, p.AutoApply, p.Notes,
	).Scan(&p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to create pattern: %w", err)
	}
	return nil
}

// GetPattern loads a pattern by id.
func (r *PostgresRepository) GetPattern(ctx context.Context, id uuid.UUID) (*Pattern, error) {
	query := `SELECT ` + patternColumns + ` FROM moneydiary.description_patterns WHERE id = $1`

	p, err := scanPattern(r.pool.QueryRow(ctx, query, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrPatternNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get pattern: %w", err)
	}
	return p, nil
}

// ListPatterns returns the user's patterns in evaluation order. A zero limit
// means no limit.
func (r *PostgresRepository) ListPatterns(ctx context.Context, userID uuid.UUID, activeOnly bool, skip, limit int) ([]Pattern, error) {
	query := `
		SELECT ` + patternColumns + `
		FROM moneydiary.description_patterns
		WHERE user_id = $1 AND (NOT $2 OR is_active)
		ORDER BY priority DESC, name ASC, id ASC
		OFFSET $3 LIMIT NULLIF($4, 0)`

	rows, err := r.pool.Query(ctx, query, userID, activeOnly, skip, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list patterns: %w", err)
	}
	return collectPatterns(rows)
}

// PatternsByID returns the listed patterns owned by the user.
func (r *PostgresRepository) PatternsByID(ctx context.Context, userID uuid.UUID, ids []uuid.UUID) ([]Pattern, error) {
	query := `
		SELECT ` + patternColumns + `
		FROM moneydiary.description_patterns
		WHERE user_id = $1 AND id = ANY($2)
		ORDER BY priority DESC, name ASC, id ASC`

	rows, err := r.pool.Query(ctx, query, userID, ids)
	if err != nil {
		return nil, fmt.Errorf("failed to load patterns: %w", err)
	}
	return collectPatterns(rows)
}

// UpdatePattern replaces the mutable attributes of p.
func (r *PostgresRepository) UpdatePattern(ctx context.Context, p *Pattern) error {
	query := `
		UPDATE moneydiary.description_patterns
		SET name = $2, pattern = $3, pattern_type = $4, subcategory_id = $5, priority = $6,
			is_case_sensitive = $7, is_active = $8, auto_apply = $9, notes = $10, updated_at = NOW()
		WHERE id = $1
		RETURNING updated_at`

	err := r.pool.QueryRow(ctx, query,
		p.ID, p.Name, p.Pattern, p.Type, p.SubcategoryID, p.Priority,
		p.IsCaseSensitive, p.IsActive, p.AutoApply, p.Notes,
	).Scan(&p.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrPatternNotFound
	}
	if err != nil {
		return fmt.Errorf("failed to update pattern: %w", err)
	}
	return nil
}

// DeletePattern removes a pattern. Its audit rows keep a null pattern id.
func (r *PostgresRepository) DeletePattern(ctx context.Context, id uuid.UUID) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM moneydiary.description_patterns WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete pattern: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrPatternNotFound
	}
	return nil
}

// SubcategoryOwner returns the user owning a subcategory.
func (r *PostgresRepository) SubcategoryOwner(ctx context.Context, id uuid.UUID) (uuid.UUID, error) {
	var owner uuid.UUID
	err := r.pool.QueryRow(ctx, `SELECT user_id FROM moneydiary.subcategories WHERE id = $1`, id).Scan(&owner)
	if errors.Is(err, pgx.ErrNoRows) {
		return uuid.Nil, ErrSubcategoryNotFound
	}
	if err != nil {
		return uuid.Nil, fmt.Errorf("failed to get subcategory: %w", err)
	}
	return owner, nil
}

// ClassifiedDescriptions returns every transaction of the user that has
// both a description and a subcategory.
func (r *PostgresRepository) ClassifiedDescriptions(ctx context.Context, userID uuid.UUID) ([]Labeled, error) {
	query := `
		SELECT description, subcategory_id
		FROM moneydiary.transactions
		WHERE user_id = $1 AND subcategory_id IS NOT NULL AND btrim(description) <> ''
		ORDER BY transaction_date, id`

	rows, err := r.pool.Query(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to load classified descriptions: %w", err)
	}
	defer rows.Close()

	var out []Labeled
	for rows.Next() {
		var l Labeled
		if err := rows.Scan(&l.Description, &l.SubcategoryID); err != nil {
			return nil, fmt.Errorf("failed to scan classified description: %w", err)
		}
		out = append(out, l)
	}
	return out, rows.Err()
}

// Targets returns the user's transactions with a non-blank description,
// restricted to ids when ids is non-empty.
func (r *PostgresRepository) Targets(ctx context.Context, userID uuid.UUID, ids []uuid.UUID) ([]Target, error) {
	query := `
		SELECT id, description, subcategory_id
		FROM moneydiary.transactions
		WHERE user_id = $1 AND btrim(description) <> ''
		  AND (cardinality($2::uuid[]) = 0 OR id = ANY($2))
		ORDER BY transaction_date, id`

	if ids == nil {
		ids = []uuid.UUID{}
	}
	return r.targets(ctx, query, userID, ids)
}

// Uncategorized returns the user's transactions without a subcategory.
func (r *PostgresRepository) Uncategorized(ctx context.Context, userID uuid.UUID) ([]Target, error) {
	query := `
		SELECT id, description, subcategory_id
		FROM moneydiary.transactions
		WHERE user_id = $1 AND subcategory_id IS NULL AND btrim(description) <> ''
		ORDER BY transaction_date, id`
	return r.targets(ctx, query, userID)
}

func (r *PostgresRepository) targets(ctx context.Context, query string, args ...any) ([]Target, error) {
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to load transactions: %w", err)
	}
	defer rows.Close()

	var out []Target
	for rows.Next() {
		var t Target
		if err := rows.Scan(&t.ID, &t.Description, &t.SubcategoryID); err != nil {
			return nil, fmt.Errorf("failed to scan transaction: %w", err)
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

// Apply writes every application in one database transaction.
func (r *PostgresRepository) Apply(ctx context.Context, apps []Application) error {
	if len(apps) == 0 {
		return nil
	}
	return db.InTx(ctx, r.pool, func(tx pgx.Tx) error {
		w := NewMatchWriter(tx)
		for _, a := range apps {
			if err := w.Write(ctx, a); err != nil {
				return err
			}
		}
		return nil
	})
}

// MatchWriter writes pattern applications through any Querier, so the
// import commit can classify rows inside its own transaction.
type MatchWriter struct {
	db db.Querier
}

func NewMatchWriter(q db.Querier) *MatchWriter {
	return &MatchWriter{db: q}
}

// Write sets the transaction's subcategory and appends the audit row.
func (w *MatchWriter) Write(ctx context.Context, a Application) error {
	_, err := w.db.Exec(ctx, `
		UPDATE moneydiary.transactions
		SET subcategory_id = $2, updated_at = NOW()
		WHERE id = $1`, a.TransactionID, a.SubcategoryID)
	if err != nil {
		return fmt.Errorf("failed to set subcategory: %w", err)
	}
	return w.Record(ctx, PatternMatch{
		TransactionID:     a.TransactionID,
		PatternID:         a.PatternID,
		MatchedText:       a.MatchedText,
		AppliedAt:         time.Now().UTC(),
		WasManualOverride: a.WasManualOverride,
	})
}

// Record appends a PatternMatch audit row.
func (w *MatchWriter) Record(ctx context.Context, m PatternMatch) error {
	_, err := w.db.Exec(ctx, `
		INSERT INTO audit.pattern_matches (transaction_id, pattern_id, matched_text, applied_at, was_manual_override)
		VALUES ($1, $2, $3, $4, $5)`,
		m.TransactionID, m.PatternID, m.MatchedText, m.AppliedAt, m.WasManualOverride)
	if err != nil {
		return fmt.Errorf("failed to record pattern match: %w", err)
	}
	return nil
}
