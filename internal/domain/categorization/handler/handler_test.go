package handler

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/FACorreiaa/money-diary/internal/domain/categorization"
	"github.com/FACorreiaa/money-diary/internal/domain/import/normalizer"
	"github.com/FACorreiaa/money-diary/pkg/httpx"
	"github.com/FACorreiaa/money-diary/pkg/interceptors"
)

type stubService struct {
	created     *categorization.Pattern
	listArgs    []int
	minOcc      int
	limit       int
	applyIDs    []uuid.UUID
	applyCalled bool
	err         error
}

func (s *stubService) CreatePattern(_ context.Context, userID uuid.UUID, p *categorization.Pattern) (*categorization.Pattern, error) {
	if s.err != nil {
		return nil, s.err
	}
	p.ID = uuid.New()
	p.UserID = userID
	s.created = p
	return p, nil
}

func (s *stubService) GetPattern(context.Context, uuid.UUID, uuid.UUID) (*categorization.Pattern, error) {
	return nil, categorization.ErrPatternNotFound
}

func (s *stubService) ListPatterns(_ context.Context, _ uuid.UUID, activeOnly bool, skip, limit int) ([]categorization.Pattern, error) {
	active := 0
	if activeOnly {
		active = 1
	}
	s.listArgs = []int{active, skip, limit}
	return []categorization.Pattern{}, nil
}

func (s *stubService) UpdatePattern(_ context.Context, _, id uuid.UUID, p *categorization.Pattern) (*categorization.Pattern, error) {
	p.ID = id
	return p, nil
}

func (s *stubService) DeletePattern(context.Context, uuid.UUID, uuid.UUID) error { return nil }

func (s *stubService) TestPatterns(_ context.Context, _ uuid.UUID, description string, _ []uuid.UUID) (*categorization.TestResult, error) {
	return &categorization.TestResult{Description: description, Results: []categorization.Evaluation{}}, nil
}

func (s *stubService) Suggest(_ context.Context, _ uuid.UUID, minOccurrences, limit int) ([]categorization.Suggestion, error) {
	s.minOcc, s.limit = minOccurrences, limit
	return []categorization.Suggestion{}, nil
}

func (s *stubService) ApplyPattern(_ context.Context, _, _ uuid.UUID, txIDs []uuid.UUID) (int, error) {
	s.applyCalled = true
	s.applyIDs = txIDs
	return 4, nil
}

func (s *stubService) ApplyAll(context.Context, uuid.UUID) (int, error) { return 7, nil }

func (s *stubService) CreateIgnore(_ context.Context, userID uuid.UUID, matchText string, description *string) (*normalizer.PatternIgnore, error) {
	return &normalizer.PatternIgnore{ID: uuid.New(), UserID: userID, MatchText: matchText, Description: description}, nil
}

func (s *stubService) ListIgnores(context.Context, uuid.UUID) ([]normalizer.PatternIgnore, error) {
	return []normalizer.PatternIgnore{}, nil
}

func (s *stubService) DeleteIgnore(context.Context, uuid.UUID, uuid.UUID) error {
	return normalizer.ErrIgnoreNotFound
}

func newRouter(svc PatternService, userID uuid.UUID) http.Handler {
	h := NewPatternHandler(svc, slog.New(slog.NewTextHandler(io.Discard, nil)))
	r := chi.NewRouter()
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			next.ServeHTTP(w, req.WithContext(interceptors.WithUserID(req.Context(), userID.String())))
		})
	})
	r.Route("/description-patterns", h.Routes)
	r.Route("/pattern-ignores", h.IgnoreRoutes)
	return r
}

func do(t *testing.T, h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var rdr io.Reader
	if body != "" {
		rdr = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, rdr)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestCreate_DefaultsActiveAndAutoApply(t *testing.T) {
	svc := &stubService{}
	userID := uuid.New()
	sub := uuid.New()

	body := `{"name":"Uber","pattern":"uber","pattern_type":"CONTAINS","subcategory_id":"` + sub.String() + `","priority":10}`
	rec := do(t, newRouter(svc, userID), http.MethodPost, "/description-patterns/", body)

	require.Equal(t, http.StatusCreated, rec.Code)
	require.NotNil(t, svc.created)
	assert.True(t, svc.created.IsActive)
	assert.True(t, svc.created.AutoApply)
	assert.Equal(t, categorization.TypeContains, svc.created.Type)
	assert.Equal(t, userID, svc.created.UserID)

	var got categorization.Pattern
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&got))
	assert.Equal(t, sub, got.SubcategoryID)
}

func TestCreate_ExplicitFalseFlags(t *testing.T) {
	svc := &stubService{}
	body := `{"name":"Rent","pattern":"rent","pattern_type":"CONTAINS","subcategory_id":"` + uuid.NewString() + `","is_active":false,"auto_apply":false}`
	rec := do(t, newRouter(svc, uuid.New()), http.MethodPost, "/description-patterns/", body)

	require.Equal(t, http.StatusCreated, rec.Code)
	assert.False(t, svc.created.IsActive)
	assert.False(t, svc.created.AutoApply)
}

func TestCreate_ServiceValidationError(t *testing.T) {
	svc := &stubService{err: categorization.ErrInvalidRegex}
	body := `{"name":"Bad","pattern":"([","pattern_type":"REGEX","subcategory_id":"` + uuid.NewString() + `"}`
	rec := do(t, newRouter(svc, uuid.New()), http.MethodPost, "/description-patterns/", body)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	var errBody httpx.ErrorBody
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&errBody))
	assert.Equal(t, "invalid regex", errBody.Error.Message)
}

func TestCreate_MissingName(t *testing.T) {
	body := `{"pattern":"uber","pattern_type":"CONTAINS"}`
	rec := do(t, newRouter(&stubService{}, uuid.New()), http.MethodPost, "/description-patterns/", body)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestList_QueryParameters(t *testing.T) {
	svc := &stubService{}
	rec := do(t, newRouter(svc, uuid.New()), http.MethodGet, "/description-patterns/?active_only=true&skip=5&limit=50", "")

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, []int{1, 5, 50}, svc.listArgs)
	assert.JSONEq(t, `[]`, rec.Body.String())
}

func TestGet_NotFoundAndBadID(t *testing.T) {
	router := newRouter(&stubService{}, uuid.New())

	rec := do(t, router, http.MethodGet, "/description-patterns/"+uuid.NewString(), "")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = do(t, router, http.MethodGet, "/description-patterns/not-a-uuid", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestSuggest_Defaults(t *testing.T) {
	svc := &stubService{}
	rec := do(t, newRouter(svc, uuid.New()), http.MethodPost, "/description-patterns/suggestions", `{}`)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, defaultMinOccurrences, svc.minOcc)
	assert.Equal(t, defaultSuggestionLimit, svc.limit)
}

func TestApply_EmptyBodyMeansAll(t *testing.T) {
	svc := &stubService{}
	rec := do(t, newRouter(svc, uuid.New()), http.MethodPost, "/description-patterns/"+uuid.NewString()+"/apply", "")

	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, svc.applyCalled)
	assert.Nil(t, svc.applyIDs)
	assert.JSONEq(t, `{"applied_count":4}`, rec.Body.String())
}

func TestApply_WithTransactionIDs(t *testing.T) {
	svc := &stubService{}
	txID := uuid.New()
	body := `{"transaction_ids":["` + txID.String() + `"]}`
	rec := do(t, newRouter(svc, uuid.New()), http.MethodPost, "/description-patterns/"+uuid.NewString()+"/apply", body)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, []uuid.UUID{txID}, svc.applyIDs)
}

func TestApplyAll(t *testing.T) {
	rec := do(t, newRouter(&stubService{}, uuid.New()), http.MethodPost, "/description-patterns/apply-all", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"applied_count":7}`, rec.Body.String())
}

func TestIgnores(t *testing.T) {
	router := newRouter(&stubService{}, uuid.New())

	rec := do(t, router, http.MethodPost, "/pattern-ignores/", `{"match_text":"TRANSFER*"}`)
	require.Equal(t, http.StatusCreated, rec.Code)
	var ig normalizer.PatternIgnore
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&ig))
	assert.Equal(t, "TRANSFER*", ig.MatchText)

	rec = do(t, router, http.MethodPost, "/pattern-ignores/", `{}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(t, router, http.MethodDelete, "/pattern-ignores/"+uuid.NewString(), "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestUnauthenticated(t *testing.T) {
	h := NewPatternHandler(&stubService{}, slog.New(slog.NewTextHandler(io.Discard, nil)))
	r := chi.NewRouter()
	r.Route("/description-patterns", h.Routes)

	rec := do(t, r, http.MethodGet, "/description-patterns/", "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}
