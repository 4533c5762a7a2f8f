package service

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/FACorreiaa/money-diary/internal/domain/import/dedup"
	"github.com/FACorreiaa/money-diary/internal/domain/import/normalizer"
	"github.com/FACorreiaa/money-diary/internal/domain/import/repository"
	"github.com/FACorreiaa/money-diary/internal/domain/profile"
	"github.com/FACorreiaa/money-diary/pkg/money"
)

// Error types recorded on ImportError rows.
const (
	ErrorTypeValidation = "validation"
	ErrorTypeSelection  = "selection"
	ErrorTypeTransfer   = "transfer"
)

// RowError is a failed row in an ImportReport.
type RowError struct {
	RowNumber int     `json:"row_number"`
	Column    *string `json:"column,omitempty"`
	ErrorType string  `json:"error_type"`
	Message   string  `json:"message"`
}

// DuplicateRow is a row skipped by the duplicate detector.
type DuplicateRow struct {
	RowNumber int          `json:"row_number"`
	Reason    dedup.Reason `json:"reason"`
}

// ImportReport summarizes one commit.
type ImportReport struct {
	ImportID          uuid.UUID         `json:"import_id"`
	Status            repository.Status `json:"status"`
	Total             int               `json:"total"`
	SuccessfulImports int               `json:"successful_imports"`
	FailedImports     int               `json:"failed_imports"`
	DuplicateCount    int               `json:"duplicate_count"`
	SkippedInvalid    int               `json:"skipped_invalid"`
	IgnoredCount      int               `json:"ignored_count"`
	CategorizedCount  int               `json:"categorized_count"`
	BalanceDelta      string            `json:"balance_delta"`
	Errors            []RowError        `json:"errors"`
	Duplicates        []DuplicateRow    `json:"duplicates"`
	Error             string            `json:"error,omitempty"`

	delta decimal.Decimal
	saved []repository.ImportError
}

func newReport(importID uuid.UUID, total, skippedInvalid, ignored int) *ImportReport {
	return &ImportReport{
		ImportID:       importID,
		Status:         repository.StatusProcessing,
		Total:          total,
		SkippedInvalid: skippedInvalid,
		IgnoredCount:   ignored,
		BalanceDelta:   money.Format(decimal.Zero),
		Errors:         []RowError{},
		Duplicates:     []DuplicateRow{},
	}
}

func (r *ImportReport) succeeded(amount decimal.Decimal, categorized bool) {
	r.SuccessfulImports++
	r.delta = r.delta.Add(amount)
	r.BalanceDelta = money.Format(r.delta)
	if categorized {
		r.CategorizedCount++
	}
}

func (r *ImportReport) duplicate(row int, reason dedup.Reason) {
	r.DuplicateCount++
	r.Duplicates = append(r.Duplicates, DuplicateRow{RowNumber: row, Reason: reason})
}

// failed records one failed row with its errors. raw is stored with the
// ImportError rows, never returned to the client.
func (r *ImportReport) failed(row int, errorType string, errs []normalizer.FieldError, raw *string) {
	r.FailedImports++
	for _, e := range errs {
		var column *string
		if e.Field != "" {
			f := e.Field
			column = &f
		}
		r.Errors = append(r.Errors, RowError{RowNumber: row, Column: column, ErrorType: errorType, Message: e.Message})
		r.saved = append(r.saved, repository.ImportError{
			RowNumber:    row,
			ColumnName:   column,
			ErrorType:    errorType,
			ErrorMessage: e.Message,
			RawData:      raw,
		})
	}
}

// rollback forgets everything the aborted unit wrote.
func (r *ImportReport) rollback(cause string) {
	r.Status = repository.StatusFailed
	r.Error = cause
	r.SuccessfulImports = 0
	r.CategorizedCount = 0
	r.delta = decimal.Zero
	r.BalanceDelta = money.Format(decimal.Zero)
}

// PreviewRow is one previewed row.
type PreviewRow struct {
	RowNumber         int               `json:"row_number"`
	TransactionDate   *string           `json:"transaction_date"`
	Amount            *string           `json:"amount"`
	Description       string            `json:"description"`
	Notes             *string           `json:"notes,omitempty"`
	ExternalID        *string           `json:"external_id,omitempty"`
	SubcategoryID     *uuid.UUID        `json:"subcategory_id,omitempty"`
	TransferAccountID *uuid.UUID        `json:"transfer_account_id,omitempty"`
	IsValid           bool              `json:"is_valid"`
	ValidationErrors  []string          `json:"validation_errors"`
	RawData           map[string]string `json:"raw_data"`
}

func newPreviewRow(r normalizer.NormalizedRow) PreviewRow {
	out := PreviewRow{
		RowNumber:         r.RowNumber,
		Description:       r.Description,
		Notes:             r.Notes,
		ExternalID:        r.ExternalID,
		SubcategoryID:     r.SubcategoryID,
		TransferAccountID: r.TransferAccountID,
		IsValid:           r.IsValid,
		ValidationErrors:  r.Messages(),
		RawData:           r.Raw,
	}
	if r.Date != nil {
		d := r.Date.Format(time.DateOnly)
		out.TransactionDate = &d
	}
	if !r.Amount.IsZero() {
		a := money.Format(r.Amount)
		out.Amount = &a
	}
	return out
}

// PreviewResponse is returned by Preview.
type PreviewResponse struct {
	PreviewID    string       `json:"preview_id"`
	TotalRecords int          `json:"total_records"`
	ValidCount   int          `json:"valid_count"`
	InvalidCount int          `json:"invalid_count"`
	IgnoredCount int          `json:"ignored_count"`
	AccountID    uuid.UUID    `json:"account_id"`
	AccountName  string       `json:"account_name"`
	ProfileName  string       `json:"profile_name"`
	Fingerprint  string       `json:"fingerprint"`
	ExpiresAt    time.Time    `json:"expires_at"`
	Rows         []PreviewRow `json:"rows"`
}

// DetectResponse is a profile suggestion for an uploaded file.
type DetectResponse struct {
	Detected    bool             `json:"detected"`
	Profile     *profile.Profile `json:"profile,omitempty"`
	Headers     []string         `json:"headers"`
	HeaderRow   int              `json:"header_row"`
	Fingerprint string           `json:"fingerprint"`
	SampleRows  [][]string       `json:"sample_rows"`
	Dialect     *DialectOut      `json:"dialect,omitempty"`
}

// DialectOut is the regional formatting guessed from sample rows.
type DialectOut struct {
	DecimalSeparator   string  `json:"decimal_separator"`
	ThousandsSeparator string  `json:"thousands_separator"`
	DateFormat         string  `json:"date_format"`
	CurrencyHint       string  `json:"currency_hint,omitempty"`
	Confidence         float64 `json:"confidence"`
}
