package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/FACorreiaa/money-diary/internal/domain/categorization"
	"github.com/FACorreiaa/money-diary/internal/domain/import/normalizer"
	"github.com/FACorreiaa/money-diary/pkg/httpx"
	"github.com/FACorreiaa/money-diary/pkg/interceptors"
)

const (
	defaultSuggestionLimit = 20
	defaultMinOccurrences  = 3
)

// PatternService is the subset of categorization.Service used over HTTP.
type PatternService interface {
	CreatePattern(ctx context.Context, userID uuid.UUID, p *categorization.Pattern) (*categorization.Pattern, error)
	GetPattern(ctx context.Context, userID, id uuid.UUID) (*categorization.Pattern, error)
	ListPatterns(ctx context.Context, userID uuid.UUID, activeOnly bool, skip, limit int) ([]categorization.Pattern, error)
	UpdatePattern(ctx context.Context, userID, id uuid.UUID, p *categorization.Pattern) (*categorization.Pattern, error)
	DeletePattern(ctx context.Context, userID, id uuid.UUID) error
	TestPatterns(ctx context.Context, userID uuid.UUID, description string, ids []uuid.UUID) (*categorization.TestResult, error)
	Suggest(ctx context.Context, userID uuid.UUID, minOccurrences, limit int) ([]categorization.Suggestion, error)
	ApplyPattern(ctx context.Context, userID, id uuid.UUID, txIDs []uuid.UUID) (int, error)
	ApplyAll(ctx context.Context, userID uuid.UUID) (int, error)
	CreateIgnore(ctx context.Context, userID uuid.UUID, matchText string, description *string) (*normalizer.PatternIgnore, error)
	ListIgnores(ctx context.Context, userID uuid.UUID) ([]normalizer.PatternIgnore, error)
	DeleteIgnore(ctx context.Context, userID, id uuid.UUID) error
}

// PatternHandler serves /description-patterns and /pattern-ignores.
type PatternHandler struct {
	svc    PatternService
	logger *slog.Logger
}

// NewPatternHandler creates a new pattern handler.
func NewPatternHandler(svc PatternService, logger *slog.Logger) *PatternHandler {
	return &PatternHandler{svc: svc, logger: logger}
}

// Routes mounts the description pattern endpoints.
func (h *PatternHandler) Routes(r chi.Router) {
	r.Post("/", h.Create)
	r.Get("/", h.List)
	r.Post("/test", h.Test)
	r.Post("/suggestions", h.Suggest)
	r.Post("/apply-all", h.ApplyAll)
	r.Get("/{id}", h.Get)
	r.Put("/{id}", h.Update)
	r.Delete("/{id}", h.Delete)
	r.Post("/{id}/apply", h.Apply)
}

// IgnoreRoutes mounts the pattern ignore endpoints.
func (h *PatternHandler) IgnoreRoutes(r chi.Router) {
	r.Get("/", h.ListIgnores)
	r.Post("/", h.CreateIgnore)
	r.Delete("/{id}", h.DeleteIgnore)
}

type PatternRequest struct {
	Name            string    `json:"name" validate:"required,max=120"`
	Pattern         string    `json:"pattern" validate:"required,max=2000"`
	PatternType     string    `json:"pattern_type" validate:"required"`
	SubcategoryID   uuid.UUID `json:"subcategory_id"`
	Priority        int       `json:"priority"`
	IsCaseSensitive bool      `json:"is_case_sensitive"`
	IsActive        *bool     `json:"is_active"`
	AutoApply       *bool     `json:"auto_apply"`
	Notes           *string   `json:"notes" validate:"omitempty,max=1000"`
}

func (req *PatternRequest) toPattern() *categorization.Pattern {
	p := &categorization.Pattern{
		Name:            req.Name,
		Pattern:         req.Pattern,
		Type:            categorization.PatternType(req.PatternType),
		SubcategoryID:   req.SubcategoryID,
		Priority:        req.Priority,
		IsCaseSensitive: req.IsCaseSensitive,
		IsActive:        true,
		AutoApply:       true,
		Notes:           req.Notes,
	}
	if req.IsActive != nil {
		p.IsActive = *req.IsActive
	}
	if req.AutoApply != nil {
		p.AutoApply = *req.AutoApply
	}
	return p
}

type TestRequest struct {
	Description string      `json:"description" validate:"required"`
	PatternIDs  []uuid.UUID `json:"pattern_ids"`
}

type SuggestRequest struct {
	Limit          int `json:"limit" validate:"min=0,max=200"`
	MinOccurrences int `json:"min_occurrences" validate:"min=0"`
}

type ApplyRequest struct {
	TransactionIDs []uuid.UUID `json:"transaction_ids"`
}

type ApplyResponse struct {
	AppliedCount int `json:"applied_count"`
}

type IgnoreRequest struct {
	MatchText   string  `json:"match_text" validate:"required,max=500"`
	Description *string `json:"description" validate:"omitempty,max=1000"`
}

// Create handles POST /description-patterns.
func (h *PatternHandler) Create(w http.ResponseWriter, r *http.Request) {
	userID, err := interceptors.UserID(r)
	if err != nil {
		httpx.Error(w, r, h.logger, err)
		return
	}
	var req PatternRequest
	if err := httpx.Decode(r, &req); err != nil {
		httpx.Error(w, r, h.logger, err)
		return
	}

	p, err := h.svc.CreatePattern(r.Context(), userID, req.toPattern())
	if err != nil {
		httpx.Error(w, r, h.logger, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, p)
}

// List handles GET /description-patterns?active_only=&skip=&limit=.
func (h *PatternHandler) List(w http.ResponseWriter, r *http.Request) {
	userID, err := interceptors.UserID(r)
	if err != nil {
		httpx.Error(w, r, h.logger, err)
		return
	}
	activeOnly, err := httpx.QueryBool(r, "active_only", false)
	if err != nil {
		httpx.Error(w, r, h.logger, err)
		return
	}
	skip, err := httpx.QueryInt(r, "skip", 0)
	if err != nil {
		httpx.Error(w, r, h.logger, err)
		return
	}
	limit, err := httpx.QueryInt(r, "limit", categorization.DefaultListLimit)
	if err != nil {
		httpx.Error(w, r, h.logger, err)
		return
	}

	patterns, err := h.svc.ListPatterns(r.Context(), userID, activeOnly, skip, limit)
	if err != nil {
		httpx.Error(w, r, h.logger, err)
		return
	}
	httpx.JSON(w, http.StatusOK, patterns)
}

// Get handles GET /description-patterns/{id}.
func (h *PatternHandler) Get(w http.ResponseWriter, r *http.Request) {
	userID, err := interceptors.UserID(r)
	if err != nil {
		httpx.Error(w, r, h.logger, err)
		return
	}
	id, err := httpx.PathUUID(r, "id")
	if err != nil {
		httpx.Error(w, r, h.logger, err)
		return
	}

	p, err := h.svc.GetPattern(r.Context(), userID, id)
	if err != nil {
		httpx.Error(w, r, h.logger, err)
		return
	}
	httpx.JSON(w, http.StatusOK, p)
}

// Update handles PUT /description-patterns/{id}.
func (h *PatternHandler) Update(w http.ResponseWriter, r *http.Request) {
	userID, err := interceptors.UserID(r)
	if err != nil {
		httpx.Error(w, r, h.logger, err)
		return
	}
	id, err := httpx.PathUUID(r, "id")
	if err != nil {
		httpx.Error(w, r, h.logger, err)
		return
	}
	var req PatternRequest
	if err := httpx.Decode(r, &req); err != nil {
		httpx.Error(w, r, h.logger, err)
		return
	}

	p, err := h.svc.UpdatePattern(r.Context(), userID, id, req.toPattern())
	if err != nil {
		httpx.Error(w, r, h.logger, err)
		return
	}
	httpx.JSON(w, http.StatusOK, p)
}

// Delete handles DELETE /description-patterns/{id}.
func (h *PatternHandler) Delete(w http.ResponseWriter, r *http.Request) {
	userID, err := interceptors.UserID(r)
	if err != nil {
		httpx.Error(w, r, h.logger, err)
		return
	}
	id, err := httpx.PathUUID(r, "id")
	if err != nil {
		httpx.Error(w, r, h.logger, err)
		return
	}

	if err := h.svc.DeletePattern(r.Context(), userID, id); err != nil {
		httpx.Error(w, r, h.logger, err)
		return
	}
	httpx.NoContent(w)
}

// Test handles POST /description-patterns/test.
func (h *PatternHandler) Test(w http.ResponseWriter, r *http.Request) {
	userID, err := interceptors.UserID(r)
	if err != nil {
		httpx.Error(w, r, h.logger, err)
		return
	}
	var req TestRequest
	if err := httpx.Decode(r, &req); err != nil {
		httpx.Error(w, r, h.logger, err)
		return
	}

	res, err := h.svc.TestPatterns(r.Context(), userID, req.Description, req.PatternIDs)
	if err != nil {
		httpx.Error(w, r, h.logger, err)
		return
	}
	httpx.JSON(w, http.StatusOK, res)
}

// Suggest handles POST /description-patterns/suggestions.
func (h *PatternHandler) Suggest(w http.ResponseWriter, r *http.Request) {
	userID, err := interceptors.UserID(r)
	if err != nil {
		httpx.Error(w, r, h.logger, err)
		return
	}
	var req SuggestRequest
	if err := httpx.Decode(r, &req); err != nil {
		httpx.Error(w, r, h.logger, err)
		return
	}
	if req.Limit == 0 {
		req.Limit = defaultSuggestionLimit
	}
	if req.MinOccurrences == 0 {
		req.MinOccurrences = defaultMinOccurrences
	}

	suggestions, err := h.svc.Suggest(r.Context(), userID, req.MinOccurrences, req.Limit)
	if err != nil {
		httpx.Error(w, r, h.logger, err)
		return
	}
	httpx.JSON(w, http.StatusOK, suggestions)
}

// Apply handles POST /description-patterns/{id}/apply. An empty body
// applies the pattern to every transaction.
func (h *PatternHandler) Apply(w http.ResponseWriter, r *http.Request) {
	userID, err := interceptors.UserID(r)
	if err != nil {
		httpx.Error(w, r, h.logger, err)
		return
	}
	id, err := httpx.PathUUID(r, "id")
	if err != nil {
		httpx.Error(w, r, h.logger, err)
		return
	}
	var req ApplyRequest
	if r.ContentLength != 0 {
		if err := httpx.Decode(r, &req); err != nil {
			httpx.Error(w, r, h.logger, err)
			return
		}
	}

	n, err := h.svc.ApplyPattern(r.Context(), userID, id, req.TransactionIDs)
	if err != nil {
		httpx.Error(w, r, h.logger, err)
		return
	}
	httpx.JSON(w, http.StatusOK, ApplyResponse{AppliedCount: n})
}

// ApplyAll handles POST /description-patterns/apply-all.
func (h *PatternHandler) ApplyAll(w http.ResponseWriter, r *http.Request) {
	userID, err := interceptors.UserID(r)
	if err != nil {
		httpx.Error(w, r, h.logger, err)
		return
	}

	n, err := h.svc.ApplyAll(r.Context(), userID)
	if err != nil {
		httpx.Error(w, r, h.logger, err)
		return
	}
	httpx.JSON(w, http.StatusOK, ApplyResponse{AppliedCount: n})
}

// ListIgnores handles GET /pattern-ignores.
func (h *PatternHandler) ListIgnores(w http.ResponseWriter, r *http.Request) {
	userID, err := interceptors.UserID(r)
	if err != nil {
		httpx.Error(w, r, h.logger, err)
		return
	}

	ignores, err := h.svc.ListIgnores(r.Context(), userID)
	if err != nil {
		httpx.Error(w, r, h.logger, err)
		return
	}
	httpx.JSON(w, http.StatusOK, ignores)
}

// CreateIgnore handles POST /pattern-ignores.
func (h *PatternHandler) CreateIgnore(w http.ResponseWriter, r *http.Request) {
	userID, err := interceptors.UserID(r)
	if err != nil {
		httpx.Error(w, r, h.logger, err)
		return
	}
	var req IgnoreRequest
	if err := httpx.Decode(r, &req); err != nil {
		httpx.Error(w, r, h.logger, err)
		return
	}

	ig, err := h.svc.CreateIgnore(r.Context(), userID, req.MatchText, req.Description)
	if err != nil {
		httpx.Error(w, r, h.logger, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, ig)
}

// DeleteIgnore handles DELETE /pattern-ignores/{id}.
func (h *PatternHandler) DeleteIgnore(w http.ResponseWriter, r *http.Request) {
	userID, err := interceptors.UserID(r)
	if err != nil {
		httpx.Error(w, r, h.logger, err)
		return
	}
	id, err := httpx.PathUUID(r, "id")
	if err != nil {
		httpx.Error(w, r, h.logger, err)
		return
	}

	if err := h.svc.DeleteIgnore(r.Context(), userID, id); err != nil {
		httpx.Error(w, r, h.logger, err)
		return
	}
	httpx.NoContent(w)
}
