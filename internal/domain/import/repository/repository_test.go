package repository

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/FACorreiaa/money-diary/pkg/db"
)

var importCols = []string{
	"id", "user_id", "profile_id", "account_id", "filename", "file_type", "fingerprint", "archive_key", "status",
	"record_count", "success_count", "error_count", "duplicate_count", "error_message", "started_at", "completed_at",
}

func importRow(f FileImport) []any {
	return []any{
		f.ID, f.UserID, f.ProfileID, f.AccountID, f.Filename, f.FileType, f.Fingerprint, f.ArchiveKey, f.Status,
		f.RecordCount, f.SuccessCount, f.ErrorCount, f.DuplicateCount, f.ErrorMessage, f.StartedAt, f.CompletedAt,
	}
}

func TestRepository_CreateStartsProcessing(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := NewRepository(mock)
	fp := "abc"
	f := &FileImport{UserID: uuid.New(), AccountID: uuid.New(), Filename: "jan.csv", FileType: "CSV", Fingerprint: &fp, RecordCount: 3}
	started := time.Date(2024, 2, 1, 9, 0, 0, 0, time.UTC)

	mock.ExpectQuery("INSERT INTO moneydiary.file_imports").
		WithArgs(pgxmock.AnyArg(), f.UserID, f.ProfileID, f.AccountID, "jan.csv", "CSV", f.Fingerprint, StatusProcessing, 3).
		WillReturnRows(pgxmock.NewRows([]string{"started_at"}).AddRow(started))

	require.NoError(t, repo.Create(context.Background(), f))
	assert.NotEqual(t, uuid.Nil, f.ID)
	assert.Equal(t, StatusProcessing, f.Status)
	assert.Equal(t, started, f.StartedAt)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRepository_FinishIgnoresAlreadyTerminal(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := NewRepository(mock)
	f := &FileImport{ID: uuid.New(), Status: StatusCompleted, RecordCount: 2, SuccessCount: 2}

	mock.ExpectQuery("UPDATE moneydiary.file_imports").
		WithArgs(f.ID, StatusCompleted, 2, 2, 0, 0, f.ErrorMessage, f.ArchiveKey).
		WillReturnError(pgx.ErrNoRows)

	require.NoError(t, repo.Finish(context.Background(), f))
	assert.Nil(t, f.CompletedAt)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRepository_RecordErrorsInOneTransaction(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := NewRepository(mock)
	importID := uuid.New()
	col := "amount"
	errs := []ImportError{
		{RowNumber: 4, ColumnName: &col, ErrorType: "validation", ErrorMessage: "amount: invalid number"},
		{RowNumber: 7, ErrorType: "selection", ErrorMessage: "row 7 is not part of the preview"},
	}

	mock.ExpectBegin()
	for _, e := range errs {
		mock.ExpectExec("INSERT INTO audit.import_errors").
			WithArgs(importID, e.RowNumber, e.ColumnName, e.ErrorType, e.ErrorMessage, e.RawData).
			WillReturnResult(pgxmock.NewResult("INSERT", 1))
	}
	mock.ExpectCommit()

	require.NoError(t, repo.RecordErrors(context.Background(), importID, errs))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRepository_RecordErrorsRollsBack(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := NewRepository(mock)
	importID := uuid.New()

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO audit.import_errors").
		WithArgs(importID, 2, pgxmock.AnyArg(), "validation", "x", pgxmock.AnyArg()).
		WillReturnError(errors.New("disk full"))
	mock.ExpectRollback()

	err = repo.RecordErrors(context.Background(), importID, []ImportError{{RowNumber: 2, ErrorType: "validation", ErrorMessage: "x"}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "disk full")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRepository_RecordErrorsEmptyIsNoop(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	require.NoError(t, NewRepository(mock).RecordErrors(context.Background(), uuid.New(), nil))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRepository_Get(t *testing.T) {
	t.Run("found", func(t *testing.T) {
		mock, err := pgxmock.NewPool()
		require.NoError(t, err)
		defer mock.Close()

		done := time.Now()
		want := FileImport{
			ID: uuid.New(), UserID: uuid.New(), AccountID: uuid.New(), Filename: "jan.xlsx", FileType: "XLSX",
			Status: StatusCompleted, RecordCount: 5, SuccessCount: 4, DuplicateCount: 1,
			StartedAt: done.Add(-time.Second), CompletedAt: &done,
		}
		mock.ExpectQuery("SELECT .+ FROM moneydiary.file_imports WHERE id").
			WithArgs(want.ID).
			WillReturnRows(pgxmock.NewRows(importCols).AddRow(importRow(want)...))

		got, err := NewRepository(mock).Get(context.Background(), want.ID)
		require.NoError(t, err)
		assert.Equal(t, want.ID, got.ID)
		assert.Equal(t, StatusCompleted, got.Status)
		assert.Equal(t, 4, got.SuccessCount)
		assert.Equal(t, 1, got.DuplicateCount)
	})

	t.Run("missing", func(t *testing.T) {
		mock, err := pgxmock.NewPool()
		require.NoError(t, err)
		defer mock.Close()

		id := uuid.New()
		mock.ExpectQuery("SELECT .+ FROM moneydiary.file_imports").
			WithArgs(id).
			WillReturnError(pgx.ErrNoRows)

		_, err = NewRepository(mock).Get(context.Background(), id)
		assert.ErrorIs(t, err, ErrImportNotFound)
	})
}

func TestRepository_ListPages(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	userID := uuid.New()
	a := FileImport{ID: uuid.New(), UserID: userID, AccountID: uuid.New(), Filename: "b.csv", FileType: "CSV", Status: StatusFailed, StartedAt: time.Now()}
	b := FileImport{ID: uuid.New(), UserID: userID, AccountID: uuid.New(), Filename: "a.csv", FileType: "CSV", Status: StatusCompleted, StartedAt: time.Now().Add(-time.Hour)}

	mock.ExpectQuery("SELECT .+ FROM moneydiary.file_imports\\s+WHERE user_id = \\$1\\s+ORDER BY started_at DESC").
		WithArgs(userID, 10, 20).
		WillReturnRows(pgxmock.NewRows(importCols).AddRow(importRow(a)...).AddRow(importRow(b)...))

	got, err := NewRepository(mock).List(context.Background(), userID, 10, 20)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "b.csv", got[0].Filename)
	assert.Equal(t, "a.csv", got[1].Filename)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRepository_ErrorsInRowOrder(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	importID := uuid.New()
	col := "date"
	now := time.Now()
	mock.ExpectQuery("FROM audit.import_errors").
		WithArgs(importID).
		WillReturnRows(pgxmock.NewRows([]string{"id", "import_id", "row_number", "column_name", "error_type", "error_message", "raw_data", "created_at"}).
			AddRow(int64(1), importID, 3, &col, "validation", "date: invalid", (*string)(nil), now))

	got, err := NewRepository(mock).Errors(context.Background(), importID)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, 3, got[0].RowNumber)
	assert.Equal(t, "date", *got[0].ColumnName)
}

func TestRepository_FailStale(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	cutoff := time.Now().Add(-time.Hour)
	mock.ExpectExec("UPDATE moneydiary.file_imports\\s+SET status = 'FAILED'").
		WithArgs(cutoff, AbandonedMessage).
		WillReturnResult(pgxmock.NewResult("UPDATE", 2))

	n, err := NewRepository(mock).FailStale(context.Background(), cutoff)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRepository_UnitRollsBackOnError(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	boom := errors.New("boom")
	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO moneydiary.transactions").WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectRollback()

	err = NewRepository(mock).Unit(context.Background(), func(q db.Querier) error {
		if _, err := q.Exec(context.Background(), "INSERT INTO moneydiary.transactions DEFAULT VALUES"); err != nil {
			return err
		}
		return boom
	})
	assert.ErrorIs(t, err, boom)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestErrorsCSV(t *testing.T) {
	col := "amount"
	raw := `{"monto":"abc"}`
	out, err := ErrorsCSV([]ImportError{
		{ID: 9, RowNumber: 4, ColumnName: &col, ErrorType: "validation", ErrorMessage: "amount: invalid number", RawData: &raw},
	})
	require.NoError(t, err)

	lines := strings.Split(strings.TrimSpace(string(out)), "\n")
	require.Len(t, lines, 2)
	assert.Equal(t, "row_number,column_name,error_type,error_message,raw_data", lines[0])
	assert.Equal(t, `4,amount,validation,amount: invalid number,"{""monto"":""abc""}"`, lines[1])

	empty, err := ErrorsCSV(nil)
	require.NoError(t, err)
	assert.Equal(t, "row_number,column_name,error_type,error_message,raw_data", strings.TrimSpace(string(empty)))
}
