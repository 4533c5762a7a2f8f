package service

import (
	"bytes"
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"

	"github.com/FACorreiaa/money-diary/internal/apperr"
	"github.com/FACorreiaa/money-diary/internal/domain/categorization"
	"github.com/FACorreiaa/money-diary/internal/domain/import/dedup"
	"github.com/FACorreiaa/money-diary/internal/domain/import/normalizer"
	"github.com/FACorreiaa/money-diary/internal/domain/import/repository"
	"github.com/FACorreiaa/money-diary/internal/domain/ledger"
	"github.com/FACorreiaa/money-diary/internal/domain/profile"
	"github.com/FACorreiaa/money-diary/pkg/db"
	"github.com/FACorreiaa/money-diary/pkg/storage"
)

// ImportSource tags transactions created by file imports.
const ImportSource = "file_import"

// batch is a set of normalized rows about to be committed.
type batch struct {
	userID          uuid.UUID
	account         *ledger.Account
	profileID       *uuid.UUID
	filename        string
	format          profile.FileType
	fingerprint     string
	rows            []normalizer.NormalizedRow
	missing         []int
	skippedInvalid  int
	ignored         int
	allowDuplicates bool
	data            []byte
}

// commit opens a FileImport, writes every valid row of b in one unit and
// records the outcome. When the unit fails nothing it wrote survives, the
// import is marked FAILED and the report is returned with the error.
func (s *Service) commit(ctx context.Context, b *batch) (*ImportReport, error) {
	ctx, span := tracer.Start(ctx, "import.commit")
	defer span.End()

	fi := &repository.FileImport{
		UserID:      b.userID,
		ProfileID:   b.profileID,
		AccountID:   b.account.ID,
		Filename:    b.filename,
		FileType:    string(b.format),
		Fingerprint: &b.fingerprint,
		RecordCount: len(b.rows) + len(b.missing),
	}
	if err := s.deps.Imports.Create(ctx, fi); err != nil {
		return nil, err
	}
	report := newReport(fi.ID, fi.RecordCount, b.skippedInvalid, b.ignored)

	valid := make([]normalizer.NormalizedRow, 0, len(b.rows))
	for _, row := range b.rows {
		if !row.IsValid {
			report.failed(row.RowNumber, ErrorTypeValidation, row.Errors, rawJSON(row.Raw))
			continue
		}
		valid = append(valid, row)
	}
	for _, num := range b.missing {
		report.failed(num, ErrorTypeSelection, []normalizer.FieldError{
			{Message: fmt.Sprintf("row %d is not part of the preview", num)},
		}, nil)
	}

	err := s.writeRows(ctx, b, fi.ID, valid, report)
	span.SetAttributes(
		attribute.String("import.id", fi.ID.String()),
		attribute.Int("rows.valid", len(valid)),
		attribute.Bool("allow_duplicates", b.allowDuplicates),
	)
	return s.finish(ctx, b, fi, report, err)
}

func (s *Service) writeRows(ctx context.Context, b *batch, importID uuid.UUID, rows []normalizer.NormalizedRow, report *ImportReport) error {
	engine, err := s.deps.Classifier.Engine(ctx, b.userID)
	if err != nil {
		return err
	}
	if s.opts.ConfirmTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.opts.ConfirmTimeout)
		defer cancel()
	}

	return s.deps.Imports.Unit(ctx, func(q db.Querier) error {
		l := s.deps.Ledger(q)
		for _, row := range rows {
			if err := ctx.Err(); err != nil {
				return err
			}
			if err := s.writeRow(ctx, q, l, engine, b, importID, row, report); err != nil {
				return fmt.Errorf("row %d: %w", row.RowNumber, err)
			}
		}
		return nil
	})
}

func (s *Service) writeRow(ctx context.Context, q db.Querier, l Ledger, engine *categorization.Engine, b *batch, importID uuid.UUID, row normalizer.NormalizedRow, report *ImportReport) error {
	candidate := dedup.Candidate{
		UserID:      b.userID,
		AccountID:   b.account.ID,
		Amount:      row.Amount,
		Description: row.Description,
		Date:        *row.Date,
		ExternalID:  row.ExternalID,
	}
	if !b.allowDuplicates {
		dup, reason, err := s.detector.Check(ctx, l, candidate)
		if err != nil {
			return err
		}
		if dup {
			report.duplicate(row.RowNumber, reason)
			return nil
		}
	}

	if row.TransferAccountID != nil {
		if _, err := l.GetOwnedAccount(ctx, b.userID, *row.TransferAccountID); err != nil {
			switch apperr.KindOf(err) {
			case apperr.KindNotFound, apperr.KindAuthorization:
				report.failed(row.RowNumber, ErrorTypeTransfer, []normalizer.FieldError{
					{Field: "transfer_account_id", Message: "transfer account not found"},
				}, rawJSON(row.Raw))
				return nil
			}
			return err
		}
	}

	hash := dedup.ContentHash(candidate)
	source := ImportSource
	txn := &ledger.Transaction{
		UserID:            b.userID,
		AccountID:         b.account.ID,
		Amount:            row.Amount,
		TransactionDate:   *row.Date,
		Description:       row.Description,
		Notes:             row.Notes,
		SubcategoryID:     row.SubcategoryID,
		TransferAccountID: row.TransferAccountID,
		ExternalID:        row.ExternalID,
		ContentHash:       &hash,
		ImportSource:      &source,
		FileImportID:      &importID,
	}
	if err := l.InsertTransaction(ctx, txn); err != nil {
		return err
	}
	if err := l.AdjustBalance(ctx, b.account.ID, row.Amount); err != nil {
		return err
	}
	if row.TransferAccountID != nil && row.Amount.IsNegative() {
		if err := l.AdjustBalance(ctx, *row.TransferAccountID, row.Amount.Neg()); err != nil {
			return err
		}
	}

	_, categorized, err := s.deps.Classifier.Classify(ctx, q, engine, txn)
	if err != nil {
		return err
	}
	report.succeeded(row.Amount, categorized)
	return nil
}

// finish records the terminal state of fi. It runs even when ctx is done.
func (s *Service) finish(ctx context.Context, b *batch, fi *repository.FileImport, report *ImportReport, cause error) (*ImportReport, error) {
	ctx = context.WithoutCancel(ctx)

	var result *apperr.Error
	if cause != nil {
		result = apperr.Wrap(ErrImportFailed, cause)
		if errors.Is(cause, context.DeadlineExceeded) {
			result = apperr.Wrap(ErrImportTimeout, cause)
		}
		report.rollback(result.Message)
		msg := cause.Error()
		fi.Status = repository.StatusFailed
		fi.ErrorMessage = &msg
	} else {
		report.Status = repository.StatusCompleted
		fi.Status = repository.StatusCompleted
		fi.ArchiveKey = s.archiveUpload(ctx, b, fi.ID)
	}
	fi.SuccessCount = report.SuccessfulImports
	fi.ErrorCount = report.FailedImports
	fi.DuplicateCount = report.DuplicateCount

	if err := s.deps.Imports.RecordErrors(ctx, fi.ID, report.saved); err != nil {
		s.logger.Error("failed to record import errors", "import_id", fi.ID, "error", err)
	}
	if err := s.deps.Imports.Finish(ctx, fi); err != nil {
		s.logger.Error("failed to finish import", "import_id", fi.ID, "status", fi.Status, "error", err)
	}

	s.metrics.ImportFinished(string(fi.Status))
	s.metrics.ImportRows("imported", report.SuccessfulImports)
	s.metrics.ImportRows("duplicate", report.DuplicateCount)
	s.metrics.ImportRows("failed", report.FailedImports)

	if result != nil {
		s.logger.Error("import rolled back",
			"user_id", b.userID,
			"import_id", fi.ID,
			"error", cause,
		)
		return report, result
	}
	s.logger.Info("import committed",
		"user_id", b.userID,
		"import_id", fi.ID,
		"account_id", b.account.ID,
		"total", report.Total,
		"imported", report.SuccessfulImports,
		"duplicates", report.DuplicateCount,
		"failed", report.FailedImports,
		"categorized", report.CategorizedCount,
	)
	return report, nil
}

// archiveUpload stores the original upload and returns its key. Archive
// failures are logged and leave the import without a key.
func (s *Service) archiveUpload(ctx context.Context, b *batch, importID uuid.UUID) *string {
	if s.archive == nil || len(b.data) == 0 {
		return nil
	}
	key := storage.ImportKey(b.userID, importID, b.filename)
	if _, err := s.archive.Put(ctx, key, contentType(b.format), bytes.NewReader(b.data)); err != nil {
		s.logger.Warn("failed to archive upload", "import_id", importID, "error", err)
		return nil
	}
	return &key
}

func contentType(format profile.FileType) string {
	switch format {
	case profile.FileXLSX:
		return "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	case profile.FileXLS:
		return "application/vnd.ms-excel"
	default:
		return "text/csv"
	}
}
