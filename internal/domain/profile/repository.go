package profile

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/FACorreiaa/money-diary/pkg/db"
)

// Repository defines profile persistence.
type Repository interface {
	Create(ctx context.Context, p *Profile) error
	Get(ctx context.Context, id uuid.UUID) (*Profile, error)
	List(ctx context.Context, userID uuid.UUID, accountID *uuid.UUID) ([]Profile, error)
	GetDefault(ctx context.Context, userID, accountID uuid.UUID) (*Profile, error)
	Update(ctx context.Context, p *Profile) error
	Delete(ctx context.Context, id uuid.UUID) error
	CountActiveImports(ctx context.Context, id uuid.UUID) (int, error)
}

// PostgresRepository implements Repository with pgx.
type PostgresRepository struct {
	pool db.Pool
}

// NewPostgresRepository creates a new profile repository.
func NewPostgresRepository(pool db.Pool) *PostgresRepository {
	return &PostgresRepository{pool: pool}
}

const profileColumns = `
	id, user_id, account_id, name, file_type, delimiter, encoding, has_header, date_format,
	decimal_separator, amount_schema, type_detection, positive_is_income, debit_is_expense,
	sheet_name, header_row, start_row, skip_empty_rows, is_default, created_at, updated_at`

const mappingColumns = `
	id, profile_id, source_column_name, source_column_index, target_field, is_required, position,
	transformation_rule, default_value, regex_pattern, min_value, max_value`

// Create inserts the profile and its mappings, demoting any other default
// for the same (user, account) first.
func (r *PostgresRepository) Create(ctx context.Context, p *Profile) error {
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}

	return db.InTx(ctx, r.pool, func(tx pgx.Tx) error {
		if p.IsDefault {
			if err := demoteDefaults(ctx, tx, p); err != nil {
				return err
			}
		}

		query := `
			INSERT INTO moneydiary.import_profiles (
				id, user_id, account_id, name, file_type, delimiter, encoding, has_header, date_format,
				decimal_separator, amount_schema, type_detection, positive_is_income, debit_is_expense,
				sheet_name, header_row, start_row, skip_empty_rows, is_default
			)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19)
			RETURNING created_at, updated_at`

		err := tx.QueryRow(ctx, query,
			p.ID, p.UserID, p.AccountID, p.Name, p.FileType, p.Delimiter, p.Encoding, p.HasHeader, p.DateFormat,
			p.DecimalSeparator, p.AmountSchema, p.TypeDetection, p.PositiveIsIncome, p.DebitIsExpense,
			p.SheetName, p.HeaderRow, p.StartRow, p.SkipEmptyRows, p.IsDefault,
		).Scan(&p.CreatedAt, &p.UpdatedAt)
		if err != nil {
			return mapWriteError(err, "failed to create profile")
		}

		return insertMappings(ctx, tx, p)
	})
}

// Get loads a profile with its mappings.
func (r *PostgresRepository) Get(ctx context.Context, id uuid.UUID) (*Profile, error) {
	query := `SELECT ` + profileColumns + ` FROM moneydiary.import_profiles WHERE id = $1`

	p, err := scanProfile(r.pool.QueryRow(ctx, query, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrProfileNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get profile: %w", err)
	}

	if err := r.loadMappings(ctx, []*Profile{p}); err != nil {
		return nil, err
	}
	return p, nil
}

// List returns the user's profiles, optionally filtered by account.
func (r *PostgresRepository) List(ctx context.Context, userID uuid.UUID, accountID *uuid.UUID) ([]Profile, error) {
	query := `
		SELECT ` + profileColumns + `
		FROM moneydiary.import_profiles
		WHERE user_id = $1 AND ($2::uuid IS NULL OR account_id = $2)
		ORDER BY is_default DESC, name ASC, id ASC`

	rows, err := r.pool.Query(ctx, query, userID, accountID)
	if err != nil {
		return nil, fmt.Errorf("failed to list profiles: %w", err)
	}
	defer rows.Close()

	var out []Profile
	for rows.Next() {
		p, err := scanProfile(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan profile: %w", err)
		}
		out = append(out, *p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate profiles: %w", err)
	}

	ptrs := make([]*Profile, len(out))
	for i := range out {
		ptrs[i] = &out[i]
	}
	if err := r.loadMappings(ctx, ptrs); err != nil {
		return nil, err
	}
	return out, nil
}

// GetDefault returns the default profile for (user, account).
func (r *PostgresRepository) GetDefault(ctx context.Context, userID, accountID uuid.UUID) (*Profile, error) {
	query := `
		SELECT ` + profileColumns + `
		FROM moneydiary.import_profiles
		WHERE user_id = $1 AND account_id = $2 AND is_default`

	p, err := scanProfile(r.pool.QueryRow(ctx, query, userID, accountID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNoDefault
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get default profile: %w", err)
	}

	if err := r.loadMappings(ctx, []*Profile{p}); err != nil {
		return nil, err
	}
	return p, nil
}

// Update replaces the profile's settings and its whole mapping set.
func (r *PostgresRepository) Update(ctx context.Context, p *Profile) error {
	return db.InTx(ctx, r.pool, func(tx pgx.Tx) error {
		if p.IsDefault {
			if err := demoteDefaults(ctx, tx, p); err != nil {
				return err
			}
		}

		query := `
			UPDATE moneydiary.import_profiles SET
				account_id = $2, name = $3, file_type = $4, delimiter = $5, encoding = $6, has_header = $7,
				date_format = $8, decimal_separator = $9, amount_schema = $10, type_detection = $11,
				positive_is_income = $12, debit_is_expense = $13, sheet_name = $14, header_row = $15,
				start_row = $16, skip_empty_rows = $17, is_default = $18, updated_at = NOW()
			WHERE id = $1
			RETURNING updated_at`

		err := tx.QueryRow(ctx, query,
			p.ID, p.AccountID, p.Name, p.FileType, p.Delimiter, p.Encoding, p.HasHeader,
			p.DateFormat, p.DecimalSeparator, p.AmountSchema, p.TypeDetection,
			p.PositiveIsIncome, p.DebitIsExpense, p.SheetName, p.HeaderRow,
			p.StartRow, p.SkipEmptyRows, p.IsDefault,
		).Scan(&p.UpdatedAt)
		if errors.Is(err, pgx.ErrNoRows) {
			return ErrProfileNotFound
		}
		if err != nil {
			return mapWriteError(err, "failed to update profile")
		}

		if _, err := tx.Exec(ctx, `DELETE FROM moneydiary.column_mappings WHERE profile_id = $1`, p.ID); err != nil {
			return fmt.Errorf("failed to clear mappings: %w", err)
		}
		return insertMappings(ctx, tx, p)
	})
}

// Delete removes a profile; mappings cascade.
func (r *PostgresRepository) Delete(ctx context.Context, id uuid.UUID) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM moneydiary.import_profiles WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete profile: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrProfileNotFound
	}
	return nil
}

// CountActiveImports counts non-terminal file imports referencing the profile.
func (r *PostgresRepository) CountActiveImports(ctx context.Context, id uuid.UUID) (int, error) {
	query := `
		SELECT COUNT(*) FROM moneydiary.file_imports
		WHERE profile_id = $1 AND status IN ('PENDING', 'PROCESSING')`

	var n int
	if err := r.pool.QueryRow(ctx, query, id).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count active imports: %w", err)
	}
	return n, nil
}

func demoteDefaults(ctx context.Context, tx pgx.Tx, p *Profile) error {
	query := `
		UPDATE moneydiary.import_profiles
		SET is_default = FALSE, updated_at = NOW()
		WHERE user_id = $1 AND account_id = $2 AND is_default AND id <> $3`

	if _, err := tx.Exec(ctx, query, p.UserID, p.AccountID, p.ID); err != nil {
		return fmt.Errorf("failed to demote default profiles: %w", err)
	}
	return nil
}

func insertMappings(ctx context.Context, tx pgx.Tx, p *Profile) error {
	query := `
		INSERT INTO moneydiary.column_mappings (` + mappingColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`

	for i := range p.Mappings {
		m := &p.Mappings[i]
		if m.ID == uuid.Nil {
			m.ID = uuid.New()
		}
		m.ProfileID = p.ID
		_, err := tx.Exec(ctx, query,
			m.ID, m.ProfileID, m.SourceColumnName, m.SourceColumnIndex, m.TargetField, m.IsRequired, m.Position,
			m.TransformationRule, m.DefaultValue, m.RegexPattern, m.MinValue, m.MaxValue,
		)
		if err != nil {
			return fmt.Errorf("failed to insert mapping %s: %w", m.TargetField, err)
		}
	}
	return nil
}

func (r *PostgresRepository) loadMappings(ctx context.Context, profiles []*Profile) error {
	if len(profiles) == 0 {
		return nil
	}
	ids := make([]uuid.UUID, len(profiles))
	byID := make(map[uuid.UUID]*Profile, len(profiles))
	for i, p := range profiles {
		ids[i] = p.ID
		byID[p.ID] = p
		p.Mappings = []ColumnMapping{}
	}

	query := `
		SELECT ` + mappingColumns + `
		FROM moneydiary.column_mappings
		WHERE profile_id = ANY($1)
		ORDER BY profile_id, position, target_field`

	rows, err := r.pool.Query(ctx, query, ids)
	if err != nil {
		return fmt.Errorf("failed to load mappings: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var m ColumnMapping
		err := rows.Scan(
			&m.ID, &m.ProfileID, &m.SourceColumnName, &m.SourceColumnIndex, &m.TargetField, &m.IsRequired,
			&m.Position, &m.TransformationRule, &m.DefaultValue, &m.RegexPattern, &m.MinValue, &m.MaxValue,
		)
		if err != nil {
			return fmt.Errorf("failed to scan mapping: %w", err)
		}
		if p, ok := byID[m.ProfileID]; ok {
			p.Mappings = append(p.Mappings, m)
		}
	}
	return rows.Err()
}

func scanProfile(row pgx.Row) (*Profile, error) {
	p := &Profile{}
	err := row.Scan(
		&p.ID, &p.UserID, &p.AccountID, &p.Name, &p.FileType, &p.Delimiter, &p.Encoding, &p.HasHeader,
		&p.DateFormat, &p.DecimalSeparator, &p.AmountSchema, &p.TypeDetection, &p.PositiveIsIncome,
		&p.DebitIsExpense, &p.SheetName, &p.HeaderRow, &p.StartRow, &p.SkipEmptyRows, &p.IsDefault,
		&p.CreatedAt, &p.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return p, nil
}

func mapWriteError(err error, msg string) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" && pgErr.ConstraintName == "uq_import_profiles_default" {
		return ErrDefaultClash
	}
	return fmt.Errorf("%s: %w", msg, err)
}
