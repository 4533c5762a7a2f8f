// Package service drives statement imports: a file is decoded and
// normalized into a preview session, then a selection of its rows is
// committed in one database unit.
package service

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"slices"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/FACorreiaa/money-diary/internal/apperr"
	"github.com/FACorreiaa/money-diary/internal/domain/categorization"
	"github.com/FACorreiaa/money-diary/internal/domain/import/decoder"
	"github.com/FACorreiaa/money-diary/internal/domain/import/dedup"
	"github.com/FACorreiaa/money-diary/internal/domain/import/normalizer"
	"github.com/FACorreiaa/money-diary/internal/domain/import/preview"
	"github.com/FACorreiaa/money-diary/internal/domain/import/repository"
	"github.com/FACorreiaa/money-diary/internal/domain/import/sniffer"
	"github.com/FACorreiaa/money-diary/internal/domain/ledger"
	"github.com/FACorreiaa/money-diary/internal/domain/profile"
	"github.com/FACorreiaa/money-diary/pkg/db"
	"github.com/FACorreiaa/money-diary/pkg/metrics"
	"github.com/FACorreiaa/money-diary/pkg/storage"
)

var tracer = otel.Tracer("moneydiary/import")

var (
	ErrImportFailed  = apperr.New(apperr.KindInternal, "IMPORT_FAILED", "import failed and was rolled back")
	ErrImportTimeout = apperr.New(apperr.KindInternal, "IMPORT_TIMEOUT", "import deadline exceeded and was rolled back")
	ErrNoProfile     = apperr.New(apperr.KindValidation, "IMPORT_NO_PROFILE", "no default import profile for account and columns could not be detected")
	ErrNoHeader      = apperr.New(apperr.KindParse, "IMPORT_NO_HEADER", "could not find a header row")
)

const (
	defaultListLimit = 50
	maxListLimit     = 200
)

// Profiles resolves import profiles of a user.
type Profiles interface {
	Get(ctx context.Context, userID, id uuid.UUID) (*profile.Profile, error)
	GetDefault(ctx context.Context, userID, accountID uuid.UUID) (*profile.Profile, error)
}

// Accounts resolves accounts and their ownership.
type Accounts interface {
	GetOwnedAccount(ctx context.Context, userID, id uuid.UUID) (*ledger.Account, error)
}

// Ignores lists the user's pattern ignores.
type Ignores interface {
	List(ctx context.Context, userID uuid.UUID) ([]normalizer.PatternIgnore, error)
}

// Classifier runs the user's patterns against committed transactions.
type Classifier interface {
	Engine(ctx context.Context, userID uuid.UUID) (*categorization.Engine, error)
	Classify(ctx context.Context, q db.Querier, engine *categorization.Engine, txn *ledger.Transaction) (*categorization.Match, bool, error)
}

// Imports stores FileImports and runs the commit unit.
type Imports interface {
	Create(ctx context.Context, f *repository.FileImport) error
	Finish(ctx context.Context, f *repository.FileImport) error
	RecordErrors(ctx context.Context, importID uuid.UUID, errs []repository.ImportError) error
	Get(ctx context.Context, id uuid.UUID) (*repository.FileImport, error)
	List(ctx context.Context, userID uuid.UUID, limit, offset int) ([]repository.FileImport, error)
	Errors(ctx context.Context, importID uuid.UUID) ([]repository.ImportError, error)
	Unit(ctx context.Context, fn func(q db.Querier) error) error
}

// Ledger is the view of accounts and transactions inside a commit unit.
type Ledger interface {
	dedup.Lookup
	GetOwnedAccount(ctx context.Context, userID, id uuid.UUID) (*ledger.Account, error)
	InsertTransaction(ctx context.Context, t *ledger.Transaction) error
	AdjustBalance(ctx context.Context, accountID uuid.UUID, delta decimal.Decimal) error
}

// LedgerFunc binds a Ledger to the querier of a unit.
type LedgerFunc func(q db.Querier) Ledger

// Deps are the collaborators of the import service.
type Deps struct {
	Profiles   Profiles
	Accounts   Accounts
	Ignores    Ignores
	Classifier Classifier
	Imports    Imports
	Ledger     LedgerFunc
	Previews   preview.Store
}

// Options tune the import pipeline.
type Options struct {
	PreviewTTL        time.Duration
	ConfirmTimeout    time.Duration
	HeaderSearchDepth int
	JaccardThreshold  float64
}

// Service implements the preview/commit protocol.
type Service struct {
	deps     Deps
	opts     Options
	archive  storage.Storage
	detector *dedup.Detector
	decoder  decoder.Decoder
	metrics  *metrics.Metrics
	logger   *slog.Logger
	now      func() time.Time
}

// NewService creates the import service.
func NewService(deps Deps, opts Options, m *metrics.Metrics, logger *slog.Logger) *Service {
	if opts.PreviewTTL <= 0 {
		opts.PreviewTTL = 30 * time.Minute
	}
	return &Service{
		deps:     deps,
		opts:     opts,
		detector: dedup.NewDetector(opts.JaccardThreshold),
		decoder:  decoder.Decoder{HeaderSearchDepth: opts.HeaderSearchDepth},
		metrics:  m,
		logger:   logger,
		now:      time.Now,
	}
}

// WithArchive stores the original bytes of every committed upload in st.
func (s *Service) WithArchive(st storage.Storage) *Service {
	s.archive = st
	return s
}

type parsed struct {
	format      profile.FileType
	fingerprint string
	rows        []normalizer.NormalizedRow
	ignored     int
}

// parse decodes data under p and normalizes every row, keeping invalid rows
// and counting the ones suppressed by pattern ignores.
func (s *Service) parse(ctx context.Context, userID uuid.UUID, p *profile.Profile, filename string, data []byte) (*parsed, error) {
	table, err := s.decoder.Decode(data, filename, p)
	if err != nil {
		return nil, err
	}
	ignores, err := s.deps.Ignores.List(ctx, userID)
	if err != nil {
		return nil, err
	}

	n := normalizer.New(p, normalizer.NewIgnoreFilter(ignores))
	out := &parsed{format: table.Format, fingerprint: table.Fingerprint, rows: []normalizer.NormalizedRow{}}
	for raw := range table.Rows() {
		row, keep := n.Normalize(raw)
		if !keep {
			out.ignored++
			continue
		}
		out.rows = append(out.rows, row)
	}
	return out, nil
}

// Preview parses a file under one of the user's profiles and holds the
// result until it is confirmed or expires.
func (s *Service) Preview(ctx context.Context, userID, profileID uuid.UUID, filename string, data []byte) (*PreviewResponse, error) {
	ctx, span := tracer.Start(ctx, "import.Preview")
	defer span.End()

	p, err := s.deps.Profiles.Get(ctx, userID, profileID)
	if err != nil {
		return nil, err
	}
	account, err := s.deps.Accounts.GetOwnedAccount(ctx, userID, p.AccountID)
	if err != nil {
		return nil, err
	}
	result, err := s.parse(ctx, userID, p, filename, data)
	if err != nil {
		return nil, err
	}

	id, err := preview.NewToken()
	if err != nil {
		return nil, apperr.Internal(err, "failed to create preview")
	}
	now := s.now()
	session := &preview.Session{
		ID:          id,
		UserID:      userID,
		ProfileID:   p.ID,
		AccountID:   account.ID,
		Filename:    filename,
		FileType:    result.format,
		Fingerprint: result.fingerprint,
		Rows:        result.rows,
		Ignored:     result.ignored,
		CreatedAt:   now,
		ExpiresAt:   now.Add(s.opts.PreviewTTL),
	}
	if s.archive != nil {
		session.Data = data
	}
	if err := s.deps.Previews.Put(ctx, session); err != nil {
		return nil, err
	}
	s.observePreviews(ctx)

	resp := &PreviewResponse{
		PreviewID:    session.ID,
		TotalRecords: len(result.rows),
		IgnoredCount: result.ignored,
		AccountID:    account.ID,
		AccountName:  account.Name,
		ProfileName:  p.Name,
		Fingerprint:  result.fingerprint,
		ExpiresAt:    session.ExpiresAt,
		Rows:         make([]PreviewRow, 0, len(result.rows)),
	}
	for _, r := range result.rows {
		if r.IsValid {
			resp.ValidCount++
		} else {
			resp.InvalidCount++
		}
		resp.Rows = append(resp.Rows, newPreviewRow(r))
	}

	span.SetAttributes(attribute.Int("rows.total", resp.TotalRecords), attribute.Int("rows.invalid", resp.InvalidCount))
	s.logger.Info("import previewed",
		"user_id", userID,
		"profile_id", p.ID,
		"rows", resp.TotalRecords,
		"invalid", resp.InvalidCount,
		"ignored", resp.IgnoredCount,
	)
	return resp, nil
}

// ConfirmRequest selects and edits previewed rows for commit.
type ConfirmRequest struct {
	PreviewID string `json:"preview_id" validate:"required"`
	// SelectedTransactions lists row numbers. Nil selects every valid row.
	SelectedTransactions []int                           `json:"selected_transactions"`
	Modifications        map[int]normalizer.Modification `json:"modifications"`
	AllowDuplicates      bool                            `json:"allow_duplicates"`
}

// Confirm commits a previewed file. The session is consumed even when the
// commit fails.
func (s *Service) Confirm(ctx context.Context, userID uuid.UUID, req ConfirmRequest) (*ImportReport, error) {
	ctx, span := tracer.Start(ctx, "import.Confirm")
	defer span.End()

	session, err := s.deps.Previews.Take(ctx, userID, req.PreviewID, s.now())
	s.observePreviews(ctx)
	if err != nil {
		return nil, err
	}

	p, err := s.deps.Profiles.Get(ctx, userID, session.ProfileID)
	if err != nil {
		return nil, err
	}
	account, err := s.deps.Accounts.GetOwnedAccount(ctx, userID, session.AccountID)
	if err != nil {
		return nil, err
	}

	rows, skipped, missing := selectRows(normalizer.New(p, nil), session.Rows, req.SelectedTransactions, req.Modifications)
	profileID := p.ID
	return s.commit(ctx, &batch{
		userID:          userID,
		account:         account,
		profileID:       &profileID,
		filename:        session.Filename,
		format:          session.FileType,
		fingerprint:     session.Fingerprint,
		rows:            rows,
		missing:         missing,
		skippedInvalid:  skipped,
		ignored:         session.Ignored,
		allowDuplicates: req.AllowDuplicates,
		data:            session.Data,
	})
}

// ImportFile parses and commits a file in one call, with the same outcome as
// a preview confirmed with defaults.
func (s *Service) ImportFile(ctx context.Context, userID, profileID uuid.UUID, filename string, data []byte) (*ImportReport, error) {
	ctx, span := tracer.Start(ctx, "import.ImportFile")
	defer span.End()

	p, err := s.deps.Profiles.Get(ctx, userID, profileID)
	if err != nil {
		return nil, err
	}
	account, err := s.deps.Accounts.GetOwnedAccount(ctx, userID, p.AccountID)
	if err != nil {
		return nil, err
	}
	result, err := s.parse(ctx, userID, p, filename, data)
	if err != nil {
		return nil, err
	}

	rows, skipped, _ := selectRows(nil, result.rows, nil, nil)
	return s.commit(ctx, &batch{
		userID:         userID,
		account:        account,
		profileID:      &p.ID,
		filename:       filename,
		format:         result.format,
		fingerprint:    result.fingerprint,
		rows:           rows,
		skippedInvalid: skipped,
		ignored:        result.ignored,
		data:           data,
	})
}

// ImportWithDuplicates commits a file into an account using its default
// profile, or one detected from the file when the account has none.
func (s *Service) ImportWithDuplicates(ctx context.Context, userID, accountID uuid.UUID, allowDuplicates bool, filename string, data []byte) (*ImportReport, error) {
	ctx, span := tracer.Start(ctx, "import.ImportWithDuplicates")
	defer span.End()

	account, err := s.deps.Accounts.GetOwnedAccount(ctx, userID, accountID)
	if err != nil {
		return nil, err
	}
	p, profileID, err := s.profileFor(ctx, userID, accountID, filename, data)
	if err != nil {
		return nil, err
	}
	result, err := s.parse(ctx, userID, p, filename, data)
	if err != nil {
		return nil, err
	}

	rows, skipped, _ := selectRows(nil, result.rows, nil, nil)
	return s.commit(ctx, &batch{
		userID:          userID,
		account:         account,
		profileID:       profileID,
		filename:        filename,
		format:          result.format,
		fingerprint:     result.fingerprint,
		rows:            rows,
		skippedInvalid:  skipped,
		ignored:         result.ignored,
		allowDuplicates: allowDuplicates,
		data:            data,
	})
}

// profileFor returns the account's default profile, or an unsaved one
// derived from the file. The returned id is nil for a derived profile.
func (s *Service) profileFor(ctx context.Context, userID, accountID uuid.UUID, filename string, data []byte) (*profile.Profile, *uuid.UUID, error) {
	p, err := s.deps.Profiles.GetDefault(ctx, userID, accountID)
	if err == nil {
		return p, &p.ID, nil
	}
	if !errors.Is(err, profile.ErrNoDefault) {
		return nil, nil, err
	}

	draft, _, err := s.detect(filename, data)
	if err != nil || draft == nil {
		if errors.Is(err, decoder.ErrEmptyFile) {
			return nil, nil, err
		}
		return nil, nil, ErrNoProfile
	}
	draft.Profile.UserID = userID
	draft.Profile.AccountID = accountID
	s.logger.Info("using detected import profile", "user_id", userID, "account_id", accountID, "header_row", draft.Profile.HeaderRow)
	return draft.Profile, nil, nil
}

func (s *Service) detect(filename string, data []byte) (*sniffer.ProfileDraft, *sniffer.Layout, error) {
	grid, err := decoder.ReadGrid(data, filename, decoder.Options{})
	if err != nil {
		return nil, nil, err
	}
	layout, err := sniffer.DetectLayout(grid.Records, s.opts.HeaderSearchDepth)
	if err != nil {
		return nil, nil, apperr.Wrap(ErrNoHeader, err)
	}
	layout.Delimiter = grid.Delimiter

	draft, ok := sniffer.SuggestProfile(layout, grid.Format)
	if !ok {
		return nil, layout, nil
	}
	return draft, layout, nil
}

// Detect sniffs a file and suggests a profile for it. Detected is false when
// no date or amount column could be identified.
func (s *Service) Detect(ctx context.Context, userID uuid.UUID, filename string, data []byte) (*DetectResponse, error) {
	_, span := tracer.Start(ctx, "import.Detect")
	defer span.End()

	draft, layout, err := s.detect(filename, data)
	if err != nil {
		return nil, err
	}

	resp := &DetectResponse{
		Headers:     layout.Headers,
		HeaderRow:   layout.HeaderRow(),
		Fingerprint: layout.Fingerprint,
		SampleRows:  layout.SampleRows,
	}
	if draft != nil {
		resp.Detected = true
		resp.Profile = draft.Profile
		resp.Dialect = &DialectOut{
			DecimalSeparator:   string(draft.Dialect.DecimalSeparator),
			ThousandsSeparator: string(draft.Dialect.ThousandsSeparator),
			DateFormat:         draft.Dialect.DateFormat,
			CurrencyHint:       draft.Dialect.CurrencyHint,
			Confidence:         draft.Dialect.Confidence,
		}
	}
	s.logger.Debug("file sniffed", "user_id", userID, "detected", resp.Detected, "header_row", resp.HeaderRow)
	return resp, nil
}

// ListImports returns the user's imports, newest first.
func (s *Service) ListImports(ctx context.Context, userID uuid.UUID, limit, offset int) ([]repository.FileImport, error) {
	if limit <= 0 {
		limit = defaultListLimit
	}
	limit = min(limit, maxListLimit)
	return s.deps.Imports.List(ctx, userID, limit, max(offset, 0))
}

// GetImport returns one of the user's imports. Imports of other users are
// reported as missing.
func (s *Service) GetImport(ctx context.Context, userID, id uuid.UUID) (*repository.FileImport, error) {
	f, err := s.deps.Imports.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if ledger.EnsureOwner(ledger.KindFileImport, f, userID) != nil {
		return nil, repository.ErrImportNotFound
	}
	return f, nil
}

// ListImportErrors returns the row errors of one of the user's imports.
func (s *Service) ListImportErrors(ctx context.Context, userID, id uuid.UUID) ([]repository.ImportError, error) {
	if _, err := s.GetImport(ctx, userID, id); err != nil {
		return nil, err
	}
	return s.deps.Imports.Errors(ctx, id)
}

// PreviewSweep drops expired preview sessions and refreshes the gauge.
func (s *Service) PreviewSweep(ctx context.Context) (int, error) {
	n, err := s.deps.Previews.Sweep(ctx, s.now())
	if err != nil {
		return 0, err
	}
	s.observePreviews(ctx)
	return n, nil
}

func (s *Service) observePreviews(ctx context.Context) {
	n, err := s.deps.Previews.Count(ctx, s.now())
	if err != nil {
		s.logger.Warn("failed to count preview sessions", "error", err)
		return
	}
	s.metrics.SetPreviewSessions(n)
}

// selectRows applies modifications and picks the rows to commit, in file
// order. Without a selection every valid row is taken and the invalid ones
// are counted as skipped. Selected row numbers absent from rows are
// returned as missing.
func selectRows(n *normalizer.Normalizer, rows []normalizer.NormalizedRow, selected []int, mods map[int]normalizer.Modification) ([]normalizer.NormalizedRow, int, []int) {
	edited := make([]normalizer.NormalizedRow, len(rows))
	index := make(map[int]int, len(rows))
	for i, r := range rows {
		if m, ok := mods[r.RowNumber]; ok && n != nil {
			r = n.ApplyModification(r, m)
		}
		edited[i] = r
		index[r.RowNumber] = i
	}

	var chosen []normalizer.NormalizedRow
	if selected == nil {
		skipped := 0
		for _, r := range edited {
			if r.IsValid {
				chosen = append(chosen, r)
			} else {
				skipped++
			}
		}
		return chosen, skipped, nil
	}

	var missing []int
	seen := make(map[int]bool, len(selected))
	for _, num := range selected {
		if seen[num] {
			continue
		}
		seen[num] = true
		if i, ok := index[num]; ok {
			chosen = append(chosen, edited[i])
		} else {
			missing = append(missing, num)
		}
	}
	slices.SortFunc(chosen, func(a, b normalizer.NormalizedRow) int { return a.RowNumber - b.RowNumber })
	slices.Sort(missing)
	return chosen, 0, missing
}

func rawJSON(raw map[string]string) *string {
	if len(raw) == 0 {
		return nil
	}
	b, err := json.Marshal(raw)
	if err != nil {
		return nil
	}
	s := string(b)
	return &s
}
