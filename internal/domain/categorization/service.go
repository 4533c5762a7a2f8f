package categorization

import (
	"context"
	"log/slog"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/FACorreiaa/money-diary/internal/domain/import/normalizer"
	"github.com/FACorreiaa/money-diary/internal/domain/ledger"
	"github.com/FACorreiaa/money-diary/pkg/db"
	"github.com/FACorreiaa/money-diary/pkg/metrics"
)

var tracer = otel.Tracer("moneydiary/categorization")

const (
	DefaultListLimit = 100
	MaxListLimit     = 500
)

// IgnoreStore persists pattern ignores.
type IgnoreStore interface {
	Create(ctx context.Context, ig normalizer.PatternIgnore) (*normalizer.PatternIgnore, error)
	List(ctx context.Context, userID uuid.UUID) ([]normalizer.PatternIgnore, error)
	Delete(ctx context.Context, userID, id uuid.UUID) error
}

// Service implements the pattern engine operations.
type Service struct {
	repo    Repository
	ignores IgnoreStore
	miner   Miner
	metrics *metrics.Metrics
	logger  *slog.Logger
}

// NewService creates a new categorization service.
func NewService(repo Repository, ignores IgnoreStore, miner Miner, m *metrics.Metrics, logger *slog.Logger) *Service {
	return &Service{repo: repo, ignores: ignores, miner: miner, metrics: m, logger: logger}
}

// checkSubcategory reports subcategories of other users as missing.
func (s *Service) checkSubcategory(ctx context.Context, userID, id uuid.UUID) error {
	owner, err := s.repo.SubcategoryOwner(ctx, id)
	if err != nil {
		return err
	}
	if owner != userID {
		return ErrSubcategoryNotFound
	}
	return nil
}

// CreatePattern validates and stores a pattern.
func (s *Service) CreatePattern(ctx context.Context, userID uuid.UUID, p *Pattern) (*Pattern, error) {
	p.ID = uuid.Nil
	p.UserID = userID
	if err := p.Validate(); err != nil {
		return nil, err
	}
	if err := s.checkSubcategory(ctx, userID, p.SubcategoryID); err != nil {
		return nil, err
	}
	if err := s.repo.CreatePattern(ctx, p); err != nil {
		return nil, err
	}
	s.logger.Info("pattern created", "user_id", userID, "pattern_id", p.ID, "type", p.Type)
	return p, nil
}

// GetPattern returns a pattern owned by the user.
func (s *Service) GetPattern(ctx context.Context, userID, id uuid.UUID) (*Pattern, error) {
	p, err := s.repo.GetPattern(ctx, id)
	if err != nil {
		return nil, err
	}
	if p.UserID != userID {
		return nil, ErrPatternNotFound
	}
	return p, nil
}

// ListPatterns pages through the user's patterns in evaluation order.
func (s *Service) ListPatterns(ctx context.Context, userID uuid.UUID, activeOnly bool, skip, limit int) ([]Pattern, error) {
	if limit <= 0 {
		limit = DefaultListLimit
	}
	limit = min(limit, MaxListLimit)
	patterns, err := s.repo.ListPatterns(ctx, userID, activeOnly, max(skip, 0), limit)
	if err != nil {
		return nil, err
	}
	if patterns == nil {
		patterns = []Pattern{}
	}
	return patterns, nil
}

// UpdatePattern replaces a pattern's attributes.
func (s *Service) UpdatePattern(ctx context.Context, userID, id uuid.UUID, p *Pattern) (*Pattern, error) {
	current, err := s.GetPattern(ctx, userID, id)
	if err != nil {
		return nil, err
	}
	p.ID = id
	p.UserID = userID
	p.CreatedAt = current.CreatedAt
	if err := p.Validate(); err != nil {
		return nil, err
	}
	if p.SubcategoryID != current.SubcategoryID {
		if err := s.checkSubcategory(ctx, userID, p.SubcategoryID); err != nil {
			return nil, err
		}
	}
	if err := s.repo.UpdatePattern(ctx, p); err != nil {
		return nil, err
	}
	s.logger.Info("pattern updated", "user_id", userID, "pattern_id", id)
	return p, nil
}

// DeletePattern removes a pattern owned by the user.
func (s *Service) DeletePattern(ctx context.Context, userID, id uuid.UUID) error {
	if _, err := s.GetPattern(ctx, userID, id); err != nil {
		return err
	}
	if err := s.repo.DeletePattern(ctx, id); err != nil {
		return err
	}
	s.logger.Info("pattern deleted", "user_id", userID, "pattern_id", id)
	return nil
}

// Engine compiles the user's active patterns.
func (s *Service) Engine(ctx context.Context, userID uuid.UUID) (*Engine, error) {
	patterns, err := s.repo.ListPatterns(ctx, userID, true, 0, 0)
	if err != nil {
		return nil, err
	}
	return Compile(patterns), nil
}

// TestPatterns evaluates description against the user's active patterns, or
// against the listed ones (active or not) when ids is non-empty.
func (s *Service) TestPatterns(ctx context.Context, userID uuid.UUID, description string, ids []uuid.UUID) (*TestResult, error) {
	var (
		patterns []Pattern
		err      error
	)
	if len(ids) > 0 {
		patterns, err = s.repo.PatternsByID(ctx, userID, ids)
	} else {
		patterns, err = s.repo.ListPatterns(ctx, userID, true, 0, 0)
	}
	if err != nil {
		return nil, err
	}

	results := Compile(patterns).Evaluate(description)
	res := &TestResult{Description: description, Results: results}
	for i := range results {
		if results[i].Matched {
			res.BestMatch = &results[i]
			break
		}
	}
	return res, nil
}

// Suggest mines pattern candidates from the user's classified history,
// skipping those the existing patterns already cover.
func (s *Service) Suggest(ctx context.Context, userID uuid.UUID, minOccurrences, limit int) ([]Suggestion, error) {
	ctx, span := tracer.Start(ctx, "categorization.Suggest")
	defer span.End()

	rows, err := s.repo.ClassifiedDescriptions(ctx, userID)
	if err != nil {
		return nil, err
	}
	existing, err := s.repo.ListPatterns(ctx, userID, true, 0, 0)
	if err != nil {
		return nil, err
	}

	suggestions := FilterCovered(s.miner.Suggest(rows, minOccurrences, 0), existing)
	if limit > 0 && len(suggestions) > limit {
		suggestions = suggestions[:limit]
	}
	if suggestions == nil {
		suggestions = []Suggestion{}
	}
	span.SetAttributes(attribute.Int("history.rows", len(rows)), attribute.Int("suggestions", len(suggestions)))
	return suggestions, nil
}

// ApplyPattern retroactively applies one pattern to the user's transactions,
// or to the listed ones. It returns the number of transactions updated.
func (s *Service) ApplyPattern(ctx context.Context, userID, id uuid.UUID, txIDs []uuid.UUID) (int, error) {
	ctx, span := tracer.Start(ctx, "categorization.ApplyPattern")
	defer span.End()

	p, err := s.GetPattern(ctx, userID, id)
	if err != nil {
		return 0, err
	}
	targets, err := s.repo.Targets(ctx, userID, txIDs)
	if err != nil {
		return 0, err
	}

	apps := plan(Compile([]Pattern{*p}), targets)
	if err := s.repo.Apply(ctx, apps); err != nil {
		return 0, err
	}
	s.metrics.PatternsApplied(len(apps))
	span.SetAttributes(attribute.Int("applied", len(apps)))
	s.logger.Info("pattern applied", "user_id", userID, "pattern_id", id, "applied", len(apps))
	return len(apps), nil
}

// ApplyAll classifies the user's uncategorized transactions with every
// active auto-apply pattern.
func (s *Service) ApplyAll(ctx context.Context, userID uuid.UUID) (int, error) {
	ctx, span := tracer.Start(ctx, "categorization.ApplyAll")
	defer span.End()

	patterns, err := s.repo.ListPatterns(ctx, userID, true, 0, 0)
	if err != nil {
		return 0, err
	}
	auto := patterns[:0:0]
	for _, p := range patterns {
		if p.AutoApply {
			auto = append(auto, p)
		}
	}
	if len(auto) == 0 {
		return 0, nil
	}

	targets, err := s.repo.Uncategorized(ctx, userID)
	if err != nil {
		return 0, err
	}
	apps := plan(Compile(auto), targets)
	if err := s.repo.Apply(ctx, apps); err != nil {
		return 0, err
	}
	s.metrics.PatternsApplied(len(apps))
	s.logger.Info("patterns applied to uncategorized transactions", "user_id", userID, "applied", len(apps))
	return len(apps), nil
}

func plan(engine *Engine, targets []Target) []Application {
	var apps []Application
	for _, t := range targets {
		m := engine.Match(t.Description)
		if m == nil {
			continue
		}
		apps = append(apps, Application{
			TransactionID:     t.ID,
			SubcategoryID:     m.Pattern.SubcategoryID,
			PatternID:         m.Pattern.ID,
			MatchedText:       m.MatchedText,
			WasManualOverride: t.SubcategoryID != nil && *t.SubcategoryID != m.Pattern.SubcategoryID,
		})
	}
	return apps
}

// Classify runs engine against a just-inserted transaction through q. When
// the first matching pattern auto-applies, the subcategory is written and the
// match recorded; a subcategory already set on txn that differs from the
// pattern's is flagged as a manual override in the audit row. The match is
// returned either way; nil means nothing matched.
func (s *Service) Classify(ctx context.Context, q db.Querier, engine *Engine, txn *ledger.Transaction) (*Match, bool, error) {
	m := engine.Match(txn.Description)
	if m == nil || !m.Pattern.AutoApply {
		return m, false, nil
	}
	err := NewMatchWriter(q).Write(ctx, Application{
		TransactionID:     txn.ID,
		SubcategoryID:     m.Pattern.SubcategoryID,
		PatternID:         m.Pattern.ID,
		MatchedText:       m.MatchedText,
		WasManualOverride: txn.SubcategoryID != nil && *txn.SubcategoryID != m.Pattern.SubcategoryID,
	})
	if err != nil {
		return nil, false, err
	}
	sub := m.Pattern.SubcategoryID
	txn.SubcategoryID = &sub
	return m, true, nil
}

// CreateIgnore stores a pattern ignore for the user.
func (s *Service) CreateIgnore(ctx context.Context, userID uuid.UUID, matchText string, description *string) (*normalizer.PatternIgnore, error) {
	if normalizer.CompileGlob(matchText) == nil {
		return nil, errMatchTextRequired
	}
	return s.ignores.Create(ctx, normalizer.PatternIgnore{UserID: userID, MatchText: matchText, Description: description})
}

// ListIgnores returns the user's pattern ignores.
func (s *Service) ListIgnores(ctx context.Context, userID uuid.UUID) ([]normalizer.PatternIgnore, error) {
	ignores, err := s.ignores.List(ctx, userID)
	if err != nil {
		return nil, err
	}
	if ignores == nil {
		ignores = []normalizer.PatternIgnore{}
	}
	return ignores, nil
}

// DeleteIgnore removes one of the user's pattern ignores.
func (s *Service) DeleteIgnore(ctx context.Context, userID, id uuid.UUID) error {
	return s.ignores.Delete(ctx, userID, id)
}
