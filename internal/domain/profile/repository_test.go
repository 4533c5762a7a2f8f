package profile

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var profileCols = []string{
	"id", "user_id", "account_id", "name", "file_type", "delimiter", "encoding", "has_header", "date_format",
	"decimal_separator", "amount_schema", "type_detection", "positive_is_income", "debit_is_expense",
	"sheet_name", "header_row", "start_row", "skip_empty_rows", "is_default", "created_at", "updated_at",
}

var mappingCols = []string{
	"id", "profile_id", "source_column_name", "source_column_index", "target_field", "is_required", "position",
	"transformation_rule", "default_value", "regex_pattern", "min_value", "max_value",
}

// ============================================================================
// Create
// ============================================================================

func TestPostgresRepository_CreateDefaultDemotesOthers(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := NewPostgresRepository(mock)
	p := validProfile()
	p.UserID = uuid.New()
	p.IsDefault = true
	now := time.Now()

	mock.ExpectBegin()
	mock.ExpectExec("UPDATE moneydiary.import_profiles").
		WithArgs(p.UserID, p.AccountID, pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	mock.ExpectQuery("INSERT INTO moneydiary.import_profiles").
		WithArgs(pgxmock.AnyArg(), p.UserID, p.AccountID, p.Name, p.FileType, p.Delimiter, p.Encoding, p.HasHeader, p.DateFormat,
			p.DecimalSeparator, p.AmountSchema, p.TypeDetection, p.PositiveIsIncome, p.DebitIsExpense,
			p.SheetName, p.HeaderRow, p.StartRow, p.SkipEmptyRows, true).
		WillReturnRows(pgxmock.NewRows([]string{"created_at", "updated_at"}).AddRow(now, now))
	for _, m := range p.Mappings {
		mock.ExpectExec("INSERT INTO moneydiary.column_mappings").
			WithArgs(pgxmock.AnyArg(), pgxmock.AnyArg(), m.SourceColumnName, m.SourceColumnIndex, m.TargetField, m.IsRequired, m.Position,
				m.TransformationRule, m.DefaultValue, m.RegexPattern, m.MinValue, m.MaxValue).
			WillReturnResult(pgxmock.NewResult("INSERT", 1))
	}
	mock.ExpectCommit()

	require.NoError(t, repo.Create(context.Background(), p))
	assert.NotEqual(t, uuid.Nil, p.ID)
	for _, m := range p.Mappings {
		assert.Equal(t, p.ID, m.ProfileID)
	}
	assert.NoError(t, mock.ExpectationsWereMet())
}

// ============================================================================
// Get
// ============================================================================

func TestPostgresRepository_GetLoadsMappings(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := NewPostgresRepository(mock)
	id, userID, accountID := uuid.New(), uuid.New(), uuid.New()
	now := time.Now()

	mock.ExpectQuery("FROM moneydiary.import_profiles WHERE id").
		WithArgs(id).
		WillReturnRows(pgxmock.NewRows(profileCols).AddRow(
			id, userID, accountID, "Banco", FileCSV, ",", "utf-8", true, nil,
			".", SingleColumn, ByAmountSign, true, true,
			nil, 1, 2, true, false, now, now,
		))
	mock.ExpectQuery("FROM moneydiary.column_mappings").
		WithArgs([]uuid.UUID{id}).
		WillReturnRows(pgxmock.NewRows(mappingCols).
			AddRow(uuid.New(), id, strPtr("fecha"), nil, TargetDate, true, 1, nil, nil, nil, nil, nil).
			AddRow(uuid.New(), id, strPtr("monto"), nil, TargetAmount, true, 2, nil, nil, nil, nil, nil))

	p, err := repo.Get(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, "Banco", p.Name)
	require.Len(t, p.Mappings, 2)
	assert.Equal(t, TargetDate, p.Mappings[0].TargetField)
	assert.Equal(t, "monto", *p.Mappings[1].SourceColumnName)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresRepository_GetMissing(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	id := uuid.New()
	mock.ExpectQuery("FROM moneydiary.import_profiles").
		WithArgs(id).
		WillReturnError(pgx.ErrNoRows)

	_, err = NewPostgresRepository(mock).Get(context.Background(), id)
	assert.ErrorIs(t, err, ErrProfileNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

// ============================================================================
// Delete / active imports
// ============================================================================

func TestPostgresRepository_Delete(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := NewPostgresRepository(mock)
	id := uuid.New()

	mock.ExpectExec("DELETE FROM moneydiary.import_profiles").
		WithArgs(id).
		WillReturnResult(pgxmock.NewResult("DELETE", 1))
	require.NoError(t, repo.Delete(context.Background(), id))

	mock.ExpectExec("DELETE FROM moneydiary.import_profiles").
		WithArgs(id).
		WillReturnResult(pgxmock.NewResult("DELETE", 0))
	assert.ErrorIs(t, repo.Delete(context.Background(), id), ErrProfileNotFound)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresRepository_CountActiveImports(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	id := uuid.New()
	mock.ExpectQuery("status IN \\('PENDING', 'PROCESSING'\\)").
		WithArgs(id).
		WillReturnRows(pgxmock.NewRows([]string{"count"}).AddRow(2))

	n, err := NewPostgresRepository(mock).CountActiveImports(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.NoError(t, mock.ExpectationsWereMet())
}
