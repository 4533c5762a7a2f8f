package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/FACorreiaa/money-diary/internal/apperr"
	"github.com/FACorreiaa/money-diary/internal/domain/budget"
	"github.com/FACorreiaa/money-diary/pkg/httpx"
	"github.com/FACorreiaa/money-diary/pkg/interceptors"
)

// SummaryService computes month roll-ups.
type SummaryService interface {
	Summary(ctx context.Context, userID uuid.UUID, yearMonth string) (*budget.Summary, error)
}

// BudgetHandler serves /budget-summary.
type BudgetHandler struct {
	svc    SummaryService
	logger *slog.Logger
}

// NewBudgetHandler creates a new budget handler.
func NewBudgetHandler(svc SummaryService, logger *slog.Logger) *BudgetHandler {
	return &BudgetHandler{svc: svc, logger: logger}
}

func (h *BudgetHandler) Routes(r chi.Router) {
	r.Get("/", h.Summary)
}

// Summary handles GET /budget-summary?user_id=&year_month=. A user_id other
// than the caller's is refused.
func (h *BudgetHandler) Summary(w http.ResponseWriter, r *http.Request) {
	userID, err := interceptors.UserID(r)
	if err != nil {
		httpx.Error(w, r, h.logger, err)
		return
	}
	requested, err := httpx.QueryUUID(r, "user_id")
	if err != nil {
		httpx.Error(w, r, h.logger, err)
		return
	}
	if requested != nil && *requested != userID {
		httpx.Error(w, r, h.logger, apperr.WithMessage(apperr.ErrForbidden, "cannot read another user's budget summary"))
		return
	}

	summary, err := h.svc.Summary(r.Context(), userID, r.URL.Query().Get("year_month"))
	if err != nil {
		httpx.Error(w, r, h.logger, err)
		return
	}
	httpx.JSON(w, http.StatusOK, summary)
}
