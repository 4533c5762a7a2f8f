package categorization

import (
	"context"
	"io"
	"log/slog"
	"testing"

	"github.com/google/uuid"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/FACorreiaa/money-diary/internal/apperr"
	"github.com/FACorreiaa/money-diary/internal/domain/import/normalizer"
	"github.com/FACorreiaa/money-diary/internal/domain/ledger"
)

type fakeRepo struct {
	patterns     map[uuid.UUID]*Pattern
	subOwners    map[uuid.UUID]uuid.UUID
	history      []Labeled
	targets      []Target
	targetIDs    []uuid.UUID
	applied      []Application
	applyCalls   int
	updatedCount int
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{patterns: map[uuid.UUID]*Pattern{}, subOwners: map[uuid.UUID]uuid.UUID{}}
}

func (f *fakeRepo) add(p Pattern) Pattern {
	cp := p
	f.patterns[p.ID] = &cp
	return p
}

func (f *fakeRepo) CreatePattern(_ context.Context, p *Pattern) error {
	p.ID = uuid.New()
	cp := *p
	f.patterns[p.ID] = &cp
	return nil
}

func (f *fakeRepo) GetPattern(_ context.Context, id uuid.UUID) (*Pattern, error) {
	p, ok := f.patterns[id]
	if !ok {
		return nil, ErrPatternNotFound
	}
	cp := *p
	return &cp, nil
}

func (f *fakeRepo) ListPatterns(_ context.Context, userID uuid.UUID, activeOnly bool, skip, limit int) ([]Pattern, error) {
	var out []Pattern
	for _, p := range f.patterns {
		if p.UserID == userID && (!activeOnly || p.IsActive) {
			out = append(out, *p)
		}
	}
	SortForEvaluation(out)
	if skip > len(out) {
		return nil, nil
	}
	out = out[skip:]
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (f *fakeRepo) PatternsByID(_ context.Context, userID uuid.UUID, ids []uuid.UUID) ([]Pattern, error) {
	var out []Pattern
	for _, id := range ids {
		if p, ok := f.patterns[id]; ok && p.UserID == userID {
			out = append(out, *p)
		}
	}
	return out, nil
}

func (f *fakeRepo) UpdatePattern(_ context.Context, p *Pattern) error {
	f.updatedCount++
	cp := *p
	f.patterns[p.ID] = &cp
	return nil
}

func (f *fakeRepo) DeletePattern(_ context.Context, id uuid.UUID) error {
	delete(f.patterns, id)
	return nil
}

func (f *fakeRepo) SubcategoryOwner(_ context.Context, id uuid.UUID) (uuid.UUID, error) {
	owner, ok := f.subOwners[id]
	if !ok {
		return uuid.Nil, ErrSubcategoryNotFound
	}
	return owner, nil
}

func (f *fakeRepo) ClassifiedDescriptions(context.Context, uuid.UUID) ([]Labeled, error) {
	return f.history, nil
}

func (f *fakeRepo) Targets(_ context.Context, _ uuid.UUID, ids []uuid.UUID) ([]Target, error) {
	f.targetIDs = ids
	return f.targets, nil
}

func (f *fakeRepo) Uncategorized(context.Context, uuid.UUID) ([]Target, error) {
	var out []Target
	for _, t := range f.targets {
		if t.SubcategoryID == nil {
			out = append(out, t)
		}
	}
	return out, nil
}

func (f *fakeRepo) Apply(_ context.Context, apps []Application) error {
	f.applyCalls++
	f.applied = append(f.applied, apps...)
	return nil
}

type fakeIgnores struct {
	created []normalizer.PatternIgnore
}

func (f *fakeIgnores) Create(_ context.Context, ig normalizer.PatternIgnore) (*normalizer.PatternIgnore, error) {
	ig.ID = uuid.New()
	f.created = append(f.created, ig)
	return &ig, nil
}

func (f *fakeIgnores) List(context.Context, uuid.UUID) ([]normalizer.PatternIgnore, error) {
	return nil, nil
}

func (f *fakeIgnores) Delete(context.Context, uuid.UUID, uuid.UUID) error {
	return normalizer.ErrIgnoreNotFound
}

func newTestService(repo *fakeRepo) (*Service, *fakeIgnores) {
	ignores := &fakeIgnores{}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewService(repo, ignores, NewMiner(0, 0), nil, logger), ignores
}

func owned(userID uuid.UUID, name, text string, t PatternType, priority int) Pattern {
	p := pattern(name, text, t, priority)
	p.UserID = userID
	return p
}

// ============================================================================
// CRUD
// ============================================================================

func TestService_CreatePattern(t *testing.T) {
	repo := newFakeRepo()
	svc, _ := newTestService(repo)
	userID, other := uuid.New(), uuid.New()
	mine, theirs := uuid.New(), uuid.New()
	repo.subOwners[mine] = userID
	repo.subOwners[theirs] = other

	p := &Pattern{Name: " Uber ", Pattern: "uber", Type: TypeContains, SubcategoryID: mine, IsActive: true}
	created, err := svc.CreatePattern(context.Background(), userID, p)
	require.NoError(t, err)
	assert.NotEqual(t, uuid.Nil, created.ID)
	assert.Equal(t, userID, created.UserID)
	assert.Equal(t, "Uber", created.Name)

	_, err = svc.CreatePattern(context.Background(), userID, &Pattern{Name: "x", Pattern: "x", Type: TypeContains, SubcategoryID: theirs})
	assert.ErrorIs(t, err, ErrSubcategoryNotFound)

	_, err = svc.CreatePattern(context.Background(), userID, &Pattern{Name: "x", Pattern: "([", Type: TypeRegex, SubcategoryID: mine})
	assert.ErrorIs(t, err, ErrInvalidRegex)
	assert.Equal(t, apperr.KindValidation, apperr.KindOf(err))
}

func TestService_GetPattern_OtherUser(t *testing.T) {
	repo := newFakeRepo()
	svc, _ := newTestService(repo)
	p := repo.add(owned(uuid.New(), "rent", "rent", TypeContains, 0))

	_, err := svc.GetPattern(context.Background(), uuid.New(), p.ID)
	assert.ErrorIs(t, err, ErrPatternNotFound)

	got, err := svc.GetPattern(context.Background(), p.UserID, p.ID)
	require.NoError(t, err)
	assert.Equal(t, p.ID, got.ID)
}

func TestService_UpdatePattern_KeepsSubcategoryWithoutOwnerCheck(t *testing.T) {
	repo := newFakeRepo()
	svc, _ := newTestService(repo)
	p := repo.add(owned(uuid.New(), "rent", "rent", TypeContains, 0))

	upd := p
	upd.Priority = 40
	got, err := svc.UpdatePattern(context.Background(), p.UserID, p.ID, &upd)
	require.NoError(t, err)
	assert.Equal(t, 40, got.Priority)
	assert.Equal(t, 1, repo.updatedCount)

	upd.SubcategoryID = uuid.New()
	_, err = svc.UpdatePattern(context.Background(), p.UserID, p.ID, &upd)
	assert.ErrorIs(t, err, ErrSubcategoryNotFound)
	assert.Equal(t, 1, repo.updatedCount)
}

func TestService_DeletePattern_OtherUser(t *testing.T) {
	repo := newFakeRepo()
	svc, _ := newTestService(repo)
	p := repo.add(owned(uuid.New(), "rent", "rent", TypeContains, 0))

	assert.ErrorIs(t, svc.DeletePattern(context.Background(), uuid.New(), p.ID), ErrPatternNotFound)
	require.Contains(t, repo.patterns, p.ID)

	require.NoError(t, svc.DeletePattern(context.Background(), p.UserID, p.ID))
	assert.NotContains(t, repo.patterns, p.ID)
}

func TestService_ListPatterns_ClampsLimit(t *testing.T) {
	repo := newFakeRepo()
	svc, _ := newTestService(repo)
	userID := uuid.New()
	for i := range 3 {
		repo.add(owned(userID, string(rune('a'+i)), "x", TypeContains, 0))
	}

	got, err := svc.ListPatterns(context.Background(), userID, false, 0, 2)
	require.NoError(t, err)
	assert.Len(t, got, 2)

	got, err = svc.ListPatterns(context.Background(), userID, false, 5, 0)
	require.NoError(t, err)
	assert.NotNil(t, got)
	assert.Empty(t, got)
}

// ============================================================================
// Test and suggest
// ============================================================================

func TestService_TestPatterns(t *testing.T) {
	repo := newFakeRepo()
	svc, _ := newTestService(repo)
	userID := uuid.New()
	p1 := repo.add(owned(userID, "P1", "uber", TypeContains, 10))
	p2 := repo.add(owned(userID, "P2", "^uber ?eats", TypeRegex, 20))
	inactive := owned(userID, "P3", "lima", TypeEndsWith, 99)
	inactive.IsActive = false
	repo.add(inactive)

	res, err := svc.TestPatterns(context.Background(), userID, "UBER EATS LIMA", nil)
	require.NoError(t, err)
	require.Len(t, res.Results, 2)
	require.NotNil(t, res.BestMatch)
	assert.Equal(t, p2.ID, res.BestMatch.PatternID)
	assert.Equal(t, "UBER EATS", res.BestMatch.MatchedText)

	res, err = svc.TestPatterns(context.Background(), userID, "UBER EATS LIMA", []uuid.UUID{p1.ID, inactive.ID})
	require.NoError(t, err)
	require.Len(t, res.Results, 2)
	assert.Equal(t, inactive.ID, res.BestMatch.PatternID, "listed patterns are tested even when inactive")

	res, err = svc.TestPatterns(context.Background(), userID, "rent", nil)
	require.NoError(t, err)
	assert.Nil(t, res.BestMatch)
}

func TestService_Suggest_FiltersCoveredAndLimits(t *testing.T) {
	repo := newFakeRepo()
	svc, _ := newTestService(repo)
	userID, groceries := uuid.New(), uuid.New()
	repo.history = append(labeled(groceries, "Jumbo online", "Jumbo express"), groceryHistory(groceries)...)

	all, err := svc.Suggest(context.Background(), userID, 3, 0)
	require.NoError(t, err)
	_, idx := find(all, "supermercado", TypeContains)
	require.Equal(t, 0, idx)

	existing := owned(userID, "super", "supermercado", TypeContains, 0)
	existing.SubcategoryID = groceries
	repo.add(existing)

	filtered, err := svc.Suggest(context.Background(), userID, 3, 0)
	require.NoError(t, err)
	_, idx = find(filtered, "supermercado", TypeContains)
	assert.Equal(t, -1, idx)
	assert.Less(t, len(filtered), len(all))

	limited, err := svc.Suggest(context.Background(), userID, 3, 1)
	require.NoError(t, err)
	require.Len(t, limited, 1)
	assert.Equal(t, filtered[0], limited[0])
}

func TestService_Suggest_EmptyHistory(t *testing.T) {
	svc, _ := newTestService(newFakeRepo())
	got, err := svc.Suggest(context.Background(), uuid.New(), 3, 20)
	require.NoError(t, err)
	assert.NotNil(t, got)
	assert.Empty(t, got)
}

// ============================================================================
// Apply
// ============================================================================

func TestService_ApplyPattern(t *testing.T) {
	repo := newFakeRepo()
	svc, _ := newTestService(repo)
	userID := uuid.New()
	p := repo.add(owned(userID, "netflix", "netflix", TypeContains, 0))

	other := uuid.New()
	same := p.SubcategoryID
	repo.targets = []Target{
		{ID: uuid.New(), Description: "NETFLIX.COM"},
		{ID: uuid.New(), Description: "netflix march", SubcategoryID: &other},
		{ID: uuid.New(), Description: "netflix april", SubcategoryID: &same},
		{ID: uuid.New(), Description: "spotify"},
	}

	ids := []uuid.UUID{repo.targets[0].ID}
	n, err := svc.ApplyPattern(context.Background(), userID, p.ID, ids)
	require.NoError(t, err)
	assert.Equal(t, 3, n)
	assert.Equal(t, ids, repo.targetIDs)

	require.Len(t, repo.applied, 3)
	assert.False(t, repo.applied[0].WasManualOverride)
	assert.True(t, repo.applied[1].WasManualOverride)
	assert.False(t, repo.applied[2].WasManualOverride)
	for _, a := range repo.applied {
		assert.Equal(t, p.SubcategoryID, a.SubcategoryID)
		assert.Equal(t, p.ID, a.PatternID)
	}
	assert.Equal(t, "NETFLIX", repo.applied[0].MatchedText)
}

func TestService_ApplyPattern_OtherUser(t *testing.T) {
	repo := newFakeRepo()
	svc, _ := newTestService(repo)
	p := repo.add(owned(uuid.New(), "netflix", "netflix", TypeContains, 0))

	_, err := svc.ApplyPattern(context.Background(), uuid.New(), p.ID, nil)
	assert.ErrorIs(t, err, ErrPatternNotFound)
	assert.Zero(t, repo.applyCalls)
}

func TestService_ApplyAll_OnlyAutoApplyOnUncategorized(t *testing.T) {
	repo := newFakeRepo()
	svc, _ := newTestService(repo)
	userID := uuid.New()
	auto := repo.add(owned(userID, "uber", "uber", TypeContains, 0))
	manual := owned(userID, "rent", "rent", TypeContains, 0)
	manual.AutoApply = false
	repo.add(manual)

	sub := uuid.New()
	repo.targets = []Target{
		{ID: uuid.New(), Description: "UBER TRIP"},
		{ID: uuid.New(), Description: "uber eats", SubcategoryID: &sub},
		{ID: uuid.New(), Description: "monthly rent"},
	}

	n, err := svc.ApplyAll(context.Background(), userID)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	require.Len(t, repo.applied, 1)
	assert.Equal(t, repo.targets[0].ID, repo.applied[0].TransactionID)
	assert.Equal(t, auto.ID, repo.applied[0].PatternID)
}

func TestService_ApplyAll_NoAutoPatterns(t *testing.T) {
	repo := newFakeRepo()
	svc, _ := newTestService(repo)
	n, err := svc.ApplyAll(context.Background(), uuid.New())
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.Zero(t, repo.applyCalls)
}

// ============================================================================
// Classify
// ============================================================================

func TestService_Classify_WritesSubcategoryAndAudit(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	svc, _ := newTestService(newFakeRepo())
	p := pattern("uber", "uber", TypeContains, 0)
	engine := Compile([]Pattern{p})
	txn := &ledger.Transaction{ID: uuid.New(), Description: "UBER TRIP 12"}

	mock.ExpectExec("UPDATE moneydiary.transactions").
		WithArgs(txn.ID, p.SubcategoryID).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	mock.ExpectExec("INSERT INTO audit.pattern_matches").
		WithArgs(txn.ID, p.ID, "UBER", pgxmock.AnyArg(), false).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	m, applied, err := svc.Classify(context.Background(), mock, engine, txn)
	require.NoError(t, err)
	assert.True(t, applied)
	require.NotNil(t, m)
	require.NotNil(t, txn.SubcategoryID)
	assert.Equal(t, p.SubcategoryID, *txn.SubcategoryID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestService_Classify_SkipsWithoutWriting(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	svc, _ := newTestService(newFakeRepo())
	suggestOnly := pattern("rent", "rent", TypeContains, 0)
	suggestOnly.AutoApply = false
	engine := Compile([]Pattern{suggestOnly, pattern("uber", "uber", TypeContains, 0)})

	tests := []struct {
		name    string
		txn     *ledger.Transaction
		matched bool
	}{
		{"no match", &ledger.Transaction{ID: uuid.New(), Description: "coffee"}, false},
		{"suggestion only", &ledger.Transaction{ID: uuid.New(), Description: "rent march"}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			before := tt.txn.SubcategoryID
			m, applied, err := svc.Classify(context.Background(), mock, engine, tt.txn)
			require.NoError(t, err)
			assert.False(t, applied)
			assert.Equal(t, tt.matched, m != nil)
			assert.Equal(t, before, tt.txn.SubcategoryID)
		})
	}
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestService_Classify_PresetSubcategory(t *testing.T) {
	p := pattern("uber", "uber", TypeContains, 0)
	engine := Compile([]Pattern{p})
	other := uuid.New()
	same := p.SubcategoryID

	tests := []struct {
		name     string
		preset   *uuid.UUID
		override bool
	}{
		{"different subcategory is an override", &other, true},
		{"same subcategory is not", &same, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mock, err := pgxmock.NewPool()
			require.NoError(t, err)
			defer mock.Close()

			svc, _ := newTestService(newFakeRepo())
			preset := *tt.preset
			txn := &ledger.Transaction{ID: uuid.New(), Description: "uber trip", SubcategoryID: &preset}

			mock.ExpectExec("UPDATE moneydiary.transactions").
				WithArgs(txn.ID, p.SubcategoryID).
				WillReturnResult(pgxmock.NewResult("UPDATE", 1))
			mock.ExpectExec("INSERT INTO audit.pattern_matches").
				WithArgs(txn.ID, p.ID, "uber", pgxmock.AnyArg(), tt.override).
				WillReturnResult(pgxmock.NewResult("INSERT", 1))

			m, applied, err := svc.Classify(context.Background(), mock, engine, txn)
			require.NoError(t, err)
			assert.True(t, applied)
			require.NotNil(t, m)
			require.NotNil(t, txn.SubcategoryID)
			assert.Equal(t, p.SubcategoryID, *txn.SubcategoryID)
			assert.NoError(t, mock.ExpectationsWereMet())
		})
	}
}

// ============================================================================
// Ignores
// ============================================================================

func TestService_CreateIgnore(t *testing.T) {
	svc, ignores := newTestService(newFakeRepo())
	userID := uuid.New()

	_, err := svc.CreateIgnore(context.Background(), userID, "   ", nil)
	assert.Equal(t, apperr.KindValidation, apperr.KindOf(err))
	assert.Empty(t, ignores.created)

	ig, err := svc.CreateIgnore(context.Background(), userID, "TRANSFER*", nil)
	require.NoError(t, err)
	assert.Equal(t, userID, ig.UserID)
	assert.Equal(t, "TRANSFER*", ig.MatchText)
}

func TestService_ListAndDeleteIgnores(t *testing.T) {
	svc, _ := newTestService(newFakeRepo())

	got, err := svc.ListIgnores(context.Background(), uuid.New())
	require.NoError(t, err)
	assert.NotNil(t, got)

	err = svc.DeleteIgnore(context.Background(), uuid.New(), uuid.New())
	assert.ErrorIs(t, err, normalizer.ErrIgnoreNotFound)
}
