package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/FACorreiaa/money-diary/internal/apperr"
	"github.com/FACorreiaa/money-diary/internal/domain/profile"
	"github.com/FACorreiaa/money-diary/pkg/httpx"
	"github.com/FACorreiaa/money-diary/pkg/interceptors"
)

// ProfileService is the subset of profile.Service used over HTTP.
type ProfileService interface {
	Create(ctx context.Context, userID uuid.UUID, p *profile.Profile) (*profile.Profile, error)
	Get(ctx context.Context, userID, id uuid.UUID) (*profile.Profile, error)
	List(ctx context.Context, userID uuid.UUID, accountID *uuid.UUID) ([]profile.Profile, error)
	GetDefault(ctx context.Context, userID, accountID uuid.UUID) (*profile.Profile, error)
	Update(ctx context.Context, userID, id uuid.UUID, p *profile.Profile) (*profile.Profile, error)
	Delete(ctx context.Context, userID, id uuid.UUID) error
}

// ProfileHandler serves /import-profiles.
type ProfileHandler struct {
	svc    ProfileService
	logger *slog.Logger
}

// NewProfileHandler creates a new profile handler.
func NewProfileHandler(svc ProfileService, logger *slog.Logger) *ProfileHandler {
	return &ProfileHandler{svc: svc, logger: logger}
}

// Routes mounts the profile endpoints on r. The detect endpoint is mounted
// by the import handler, which owns file sniffing.
func (h *ProfileHandler) Routes(r chi.Router) {
	r.Post("/", h.Create)
	r.Get("/", h.List)
	r.Get("/default", h.GetDefault)
	r.Get("/{id}", h.Get)
	r.Put("/{id}", h.Update)
	r.Delete("/{id}", h.Delete)
}

type MappingRequest struct {
	SourceColumnName   *string `json:"source_column_name" validate:"omitempty,max=200"`
	SourceColumnIndex  *int    `json:"source_column_index" validate:"omitempty,min=0"`
	TargetField        string  `json:"target_field" validate:"required"`
	IsRequired         bool    `json:"is_required"`
	Position           int     `json:"position" validate:"min=0"`
	TransformationRule *string `json:"transformation_rule"`
	DefaultValue       *string `json:"default_value"`
	RegexPattern       *string `json:"regex_pattern" validate:"omitempty,max=512"`
	MinValue           *string `json:"min_value"`
	MaxValue           *string `json:"max_value"`
}

type ProfileRequest struct {
	AccountID        uuid.UUID        `json:"account_id"`
	Name             string           `json:"name" validate:"required,max=120"`
	FileType         string           `json:"file_type"`
	Delimiter        string           `json:"delimiter"`
	Encoding         string           `json:"encoding"`
	HasHeader        *bool            `json:"has_header"`
	DateFormat       *string          `json:"date_format"`
	DecimalSeparator string           `json:"decimal_separator"`
	AmountSchema     string           `json:"amount_schema" validate:"required"`
	TypeDetection    string           `json:"type_detection"`
	PositiveIsIncome *bool            `json:"positive_is_income"`
	DebitIsExpense   *bool            `json:"debit_is_expense"`
	SheetName        *string          `json:"sheet_name"`
	HeaderRow        *int             `json:"header_row"`
	StartRow         *int             `json:"start_row"`
	SkipEmptyRows    *bool            `json:"skip_empty_rows"`
	IsDefault        bool             `json:"is_default"`
	Mappings         []MappingRequest `json:"mappings" validate:"dive"`
}

func boolOr(b *bool, def bool) bool {
	if b == nil {
		return def
	}
	return *b
}

// ToProfile converts the request, applying defaults for omitted fields.
func (req *ProfileRequest) ToProfile() (*profile.Profile, error) {
	if req.AccountID == uuid.Nil {
		return nil, apperr.WithField(apperr.Validation("account_id is required"), "account_id")
	}

	p := &profile.Profile{
		AccountID:        req.AccountID,
		Name:             req.Name,
		FileType:         profile.FileType(req.FileType),
		Delimiter:        req.Delimiter,
		Encoding:         req.Encoding,
		HasHeader:        boolOr(req.HasHeader, true),
		DateFormat:       req.DateFormat,
		DecimalSeparator: req.DecimalSeparator,
		AmountSchema:     profile.AmountSchema(req.AmountSchema),
		TypeDetection:    profile.TypeDetection(req.TypeDetection),
		PositiveIsIncome: boolOr(req.PositiveIsIncome, true),
		DebitIsExpense:   boolOr(req.DebitIsExpense, true),
		SheetName:        req.SheetName,
		SkipEmptyRows:    boolOr(req.SkipEmptyRows, true),
		IsDefault:        req.IsDefault,
		Mappings:         make([]profile.ColumnMapping, 0, len(req.Mappings)),
	}

	p.HeaderRow = 1
	if req.HeaderRow != nil {
		p.HeaderRow = *req.HeaderRow
	}
	switch {
	case req.StartRow != nil:
		p.StartRow = *req.StartRow
	case p.HasHeader:
		p.StartRow = p.HeaderRow + 1
	default:
		p.StartRow = 1
	}

	for _, m := range req.Mappings {
		p.Mappings = append(p.Mappings, profile.ColumnMapping{
			SourceColumnName:   m.SourceColumnName,
			SourceColumnIndex:  m.SourceColumnIndex,
			TargetField:        profile.TargetField(m.TargetField),
			IsRequired:         m.IsRequired,
			Position:           m.Position,
			TransformationRule: m.TransformationRule,
			DefaultValue:       m.DefaultValue,
			RegexPattern:       m.RegexPattern,
			MinValue:           m.MinValue,
			MaxValue:           m.MaxValue,
		})
	}
	return p, nil
}

func (h *ProfileHandler) decode(r *http.Request) (*profile.Profile, error) {
	var req ProfileRequest
	if err := httpx.Decode(r, &req); err != nil {
		return nil, err
	}
	return req.ToProfile()
}

// Create handles POST /import-profiles.
func (h *ProfileHandler) Create(w http.ResponseWriter, r *http.Request) {
	userID, err := interceptors.UserID(r)
	if err != nil {
		httpx.Error(w, r, h.logger, err)
		return
	}
	p, err := h.decode(r)
	if err != nil {
		httpx.Error(w, r, h.logger, err)
		return
	}

	created, err := h.svc.Create(r.Context(), userID, p)
	if err != nil {
		httpx.Error(w, r, h.logger, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, created)
}

// List handles GET /import-profiles?account_id=.
func (h *ProfileHandler) List(w http.ResponseWriter, r *http.Request) {
	userID, err := interceptors.UserID(r)
	if err != nil {
		httpx.Error(w, r, h.logger, err)
		return
	}
	accountID, err := httpx.QueryUUID(r, "account_id")
	if err != nil {
		httpx.Error(w, r, h.logger, err)
		return
	}

	profiles, err := h.svc.List(r.Context(), userID, accountID)
	if err != nil {
		httpx.Error(w, r, h.logger, err)
		return
	}
	httpx.JSON(w, http.StatusOK, profiles)
}

// GetDefault handles GET /import-profiles/default?account_id=.
func (h *ProfileHandler) GetDefault(w http.ResponseWriter, r *http.Request) {
	userID, err := interceptors.UserID(r)
	if err != nil {
		httpx.Error(w, r, h.logger, err)
		return
	}
	accountID, err := httpx.QueryUUID(r, "account_id")
	if err != nil {
		httpx.Error(w, r, h.logger, err)
		return
	}
	if accountID == nil {
		httpx.Error(w, r, h.logger, apperr.WithField(apperr.Validation("account_id is required"), "account_id"))
		return
	}

	p, err := h.svc.GetDefault(r.Context(), userID, *accountID)
	if err != nil {
		httpx.Error(w, r, h.logger, err)
		return
	}
	httpx.JSON(w, http.StatusOK, p)
}

// Get handles GET /import-profiles/{id}.
func (h *ProfileHandler) Get(w http.ResponseWriter, r *http.Request) {
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

	p, err := h.svc.Get(r.Context(), userID, id)
	if err != nil {
		httpx.Error(w, r, h.logger, err)
		return
	}
	httpx.JSON(w, http.StatusOK, p)
}

// Update handles PUT /import-profiles/{id}.
func (h *ProfileHandler) Update(w http.ResponseWriter, r *http.Request) {
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
	p, err := h.decode(r)
	if err != nil {
		httpx.Error(w, r, h.logger, err)
		return
	}

	updated, err := h.svc.Update(r.Context(), userID, id, p)
	if err != nil {
		httpx.Error(w, r, h.logger, err)
		return
	}
	httpx.JSON(w, http.StatusOK, updated)
}

// Delete handles DELETE /import-profiles/{id}.
func (h *ProfileHandler) Delete(w http.ResponseWriter, r *http.Request) {
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

	if err := h.svc.Delete(r.Context(), userID, id); err != nil {
		httpx.Error(w, r, h.logger, err)
		return
	}
	httpx.NoContent(w)
}
