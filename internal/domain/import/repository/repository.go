// Package repository persists file imports and their row errors.
package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/gocarina/gocsv"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/FACorreiaa/money-diary/internal/apperr"
	"github.com/FACorreiaa/money-diary/pkg/db"
)

// Status is the lifecycle state of a FileImport.
type Status string

const (
	StatusPending    Status = "PENDING"
	StatusProcessing Status = "PROCESSING"
	StatusCompleted  Status = "COMPLETED"
	StatusFailed     Status = "FAILED"
	StatusCancelled  Status = "CANCELLED"
)

// Terminal reports whether no further transition is allowed.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed || s == StatusCancelled
}

// AbandonedMessage is recorded on imports the reaper fails.
const AbandonedMessage = "import abandoned"

var ErrImportNotFound = apperr.New(apperr.KindNotFound, "IMPORT_NOT_FOUND", "file import not found")

// FileImport is one commit of a statement file.
type FileImport struct {
	ID             uuid.UUID  `json:"id"`
	UserID         uuid.UUID  `json:"user_id"`
	ProfileID      *uuid.UUID `json:"profile_id,omitempty"`
	AccountID      uuid.UUID  `json:"account_id"`
	Filename       string     `json:"filename"`
	FileType       string     `json:"file_type"`
	Fingerprint    *string    `json:"fingerprint,omitempty"`
	ArchiveKey     *string    `json:"archive_key,omitempty"`
	Status         Status     `json:"status"`
	RecordCount    int        `json:"record_count"`
	SuccessCount   int        `json:"success_count"`
	ErrorCount     int        `json:"error_count"`
	DuplicateCount int        `json:"duplicate_count"`
	ErrorMessage   *string    `json:"error_message,omitempty"`
	StartedAt      time.Time  `json:"started_at"`
	CompletedAt    *time.Time `json:"completed_at,omitempty"`
}

func (f *FileImport) OwnerID() uuid.UUID { return f.UserID }
func (f *FileImport) Created() time.Time { return f.StartedAt }

// ImportError is a rejected row of a FileImport.
type ImportError struct {
	ID           int64     `json:"id" csv:"-"`
	ImportID     uuid.UUID `json:"import_id" csv:"-"`
	RowNumber    int       `json:"row_number" csv:"row_number"`
	ColumnName   *string   `json:"column_name,omitempty" csv:"column_name"`
	ErrorType    string    `json:"error_type" csv:"error_type"`
	ErrorMessage string    `json:"error_message" csv:"error_message"`
	RawData      *string   `json:"raw_data,omitempty" csv:"raw_data"`
	CreatedAt    time.Time `json:"created_at" csv:"-"`
}

// Repository stores FileImports. Writes that belong to a commit go through
// Unit instead.
type Repository struct {
	pool db.Pool
}

func NewRepository(pool db.Pool) *Repository {
	return &Repository{pool: pool}
}

const importColumns = `
	id, user_id, profile_id, account_id, filename, file_type, fingerprint, archive_key, status,
	record_count, success_count, error_count, duplicate_count, error_message, started_at, completed_at`

func scanImport(row pgx.Row) (*FileImport, error) {
	f := &FileImport{}
	err := row.Scan(
		&f.ID,
		&f.UserID,
		&f.ProfileID,
		&f.AccountID,
		&f.Filename,
		&f.FileType,
		&f.Fingerprint,
		&f.ArchiveKey,
		&f.Status,
		&f.RecordCount,
		&f.SuccessCount,
		&f.ErrorCount,
		&f.DuplicateCount,
		&f.ErrorMessage,
		&f.StartedAt,
		&f.CompletedAt,
	)
	return f, err
}

// Create inserts f in PROCESSING state.
func (r *Repository) Create(ctx context.Context, f *FileImport) error {
	if f.ID == uuid.Nil {
		f.ID = uuid.New()
	}
	f.Status = StatusProcessing

	query := `
		INSERT INTO moneydiary.file_imports (
			id, user_id, profile_id, account_id, filename, file_type, fingerprint, status, record_count
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING started_at`

	err := r.pool.QueryRow(ctx, query,
		f.ID, f.UserID, f.ProfileID, f.AccountID, f.Filename, f.FileType, f.Fingerprint, f.Status, f.RecordCount,
	).Scan(&f.StartedAt)
	if err != nil {
		return fmt.Errorf("failed to create file import: %w", err)
	}
	return nil
}

// Finish moves a PROCESSING import to its terminal state with final counts.
// An import already finished, by the reaper for example, is left as is.
func (r *Repository) Finish(ctx context.Context, f *FileImport) error {
	query := `
		UPDATE moneydiary.file_imports
		SET status = $2, record_count = $3, success_count = $4, error_count = $5,
			duplicate_count = $6, error_message = $7, archive_key = $8, completed_at = NOW()
		WHERE id = $1 AND status = 'PROCESSING'
		RETURNING completed_at`

	err := r.pool.QueryRow(ctx, query,
		f.ID, f.Status, f.RecordCount, f.SuccessCount, f.ErrorCount, f.DuplicateCount, f.ErrorMessage, f.ArchiveKey,
	).Scan(&f.CompletedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to finish file import: %w", err)
	}
	return nil
}

// RecordErrors appends the row errors of an import.
func (r *Repository) RecordErrors(ctx context.Context, importID uuid.UUID, errs []ImportError) error {
	if len(errs) == 0 {
		return nil
	}
	return db.InTx(ctx, r.pool, func(tx pgx.Tx) error {
		for _, e := range errs {
			_, err := tx.Exec(ctx, `
				INSERT INTO audit.import_errors (import_id, row_number, column_name, error_type, error_message, raw_data)
				VALUES ($1, $2, $3, $4, $5, $6)`,
				importID, e.RowNumber, e.ColumnName, e.ErrorType, e.ErrorMessage, e.RawData)
			if err != nil {
				return fmt.Errorf("failed to record import error: %w", err)
			}
		}
		return nil
	})
}

// Get loads an import by id.
func (r *Repository) Get(ctx context.Context, id uuid.UUID) (*FileImport, error) {
	query := `SELECT ` + importColumns + ` FROM moneydiary.file_imports WHERE id = $1`

	f, err := scanImport(r.pool.QueryRow(ctx, query, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrImportNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get file import: %w", err)
	}
	return f, nil
}

// List returns the user's imports, newest first.
func (r *Repository) List(ctx context.Context, userID uuid.UUID, limit, offset int) ([]FileImport, error) {
	query := `
		SELECT ` + importColumns + `
		FROM moneydiary.file_imports
		WHERE user_id = $1
		ORDER BY started_at DESC, id
		LIMIT $2 OFFSET $3`

	rows, err := r.pool.Query(ctx, query, userID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to list file imports: %w", err)
	}
	defer rows.Close()

	imports := []FileImport{}
	for rows.Next() {
		f, err := scanImport(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan file import: %w", err)
		}
		imports = append(imports, *f)
	}
	return imports, rows.Err()
}

// Errors returns an import's row errors in row order.
func (r *Repository) Errors(ctx context.Context, importID uuid.UUID) ([]ImportError, error) {
	query := `
		SELECT id, import_id, row_number, column_name, error_type, error_message, raw_data, created_at
		FROM audit.import_errors
		WHERE import_id = $1
		ORDER BY row_number, id`

	rows, err := r.pool.Query(ctx, query, importID)
	if err != nil {
		return nil, fmt.Errorf("failed to list import errors: %w", err)
	}
	defer rows.Close()

	out := []ImportError{}
	for rows.Next() {
		var e ImportError
		if err := rows.Scan(&e.ID, &e.ImportID, &e.RowNumber, &e.ColumnName, &e.ErrorType, &e.ErrorMessage, &e.RawData, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan import error: %w", err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// FailStale fails imports that have not finished since before cutoff.
func (r *Repository) FailStale(ctx context.Context, cutoff time.Time) (int, error) {
	tag, err := r.pool.Exec(ctx, `
		UPDATE moneydiary.file_imports
		SET status = 'FAILED', error_message = $2, completed_at = NOW()
		WHERE status IN ('PENDING', 'PROCESSING') AND started_at < $1`,
		cutoff, AbandonedMessage)
	if err != nil {
		return 0, fmt.Errorf("failed to fail stale imports: %w", err)
	}
	return int(tag.RowsAffected()), nil
}

// Unit runs fn inside one database transaction. Every row of a confirm is
// written through the Querier it receives.
func (r *Repository) Unit(ctx context.Context, fn func(q db.Querier) error) error {
	return db.InTx(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(tx)
	})
}

// ErrorsCSV renders row errors as CSV.
func ErrorsCSV(errs []ImportError) ([]byte, error) {
	if errs == nil {
		errs = []ImportError{}
	}
	out, err := gocsv.MarshalBytes(&errs)
	if err != nil {
		return nil, fmt.Errorf("failed to render import errors: %w", err)
	}
	return out, nil
}
