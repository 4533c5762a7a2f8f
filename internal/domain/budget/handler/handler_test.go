package handler

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/FACorreiaa/money-diary/internal/domain/budget"
	"github.com/FACorreiaa/money-diary/pkg/interceptors"
)

type stubService struct {
	userID    uuid.UUID
	yearMonth string
	called    bool
}

func (s *stubService) Summary(_ context.Context, userID uuid.UUID, yearMonth string) (*budget.Summary, error) {
	s.called = true
	s.userID, s.yearMonth = userID, yearMonth
	if _, err := budget.ParseMonth(yearMonth, time.Now()); err != nil {
		return nil, err
	}
	return &budget.Summary{YearMonth: yearMonth, Net: "0.00", Categories: []budget.CategorySummary{}}, nil
}

func newRouter(svc SummaryService, userID uuid.UUID) http.Handler {
	h := NewBudgetHandler(svc, slog.New(slog.NewTextHandler(io.Discard, nil)))
	r := chi.NewRouter()
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			next.ServeHTTP(w, req.WithContext(interceptors.WithUserID(req.Context(), userID.String())))
		})
	})
	r.Route("/budget-summary", h.Routes)
	return r
}

func TestSummary(t *testing.T) {
	userID := uuid.New()
	tests := []struct {
		name       string
		query      string
		status     int
		wantCalled bool
	}{
		{name: "own month", query: "?year_month=2024-03", status: http.StatusOK, wantCalled: true},
		{name: "explicit self", query: "?user_id=" + userID.String() + "&year_month=2024-03", status: http.StatusOK, wantCalled: true},
		{name: "other user", query: "?user_id=" + uuid.NewString(), status: http.StatusForbidden},
		{name: "bad user id", query: "?user_id=nope", status: http.StatusBadRequest},
		{name: "bad month", query: "?year_month=2024-3", status: http.StatusBadRequest, wantCalled: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := &stubService{}
			rec := httptest.NewRecorder()
			newRouter(svc, userID).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/budget-summary"+tt.query, nil))

			require.Equal(t, tt.status, rec.Code, rec.Body.String())
			assert.Equal(t, tt.wantCalled, svc.called)
			if tt.wantCalled {
				assert.Equal(t, userID, svc.userID)
			}
		})
	}
}

func TestSummary_BadMonthMessage(t *testing.T) {
	rec := httptest.NewRecorder()
	newRouter(&stubService{}, uuid.New()).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/budget-summary?year_month=March", nil))

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "year_month must be formatted YYYY-MM")
}
