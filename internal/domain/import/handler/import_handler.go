package handler

import (
	"context"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/FACorreiaa/money-diary/internal/apperr"
	"github.com/FACorreiaa/money-diary/internal/domain/import/repository"
	"github.com/FACorreiaa/money-diary/internal/domain/import/service"
	"github.com/FACorreiaa/money-diary/pkg/httpx"
	"github.com/FACorreiaa/money-diary/pkg/interceptors"
)

const fileField = "file"

// ImportService is the subset of service.Service used over HTTP.
type ImportService interface {
	Preview(ctx context.Context, userID, profileID uuid.UUID, filename string, data []byte) (*service.PreviewResponse, error)
	Confirm(ctx context.Context, userID uuid.UUID, req service.ConfirmRequest) (*service.ImportReport, error)
	ImportFile(ctx context.Context, userID, profileID uuid.UUID, filename string, data []byte) (*service.ImportReport, error)
	ImportWithDuplicates(ctx context.Context, userID, accountID uuid.UUID, allowDuplicates bool, filename string, data []byte) (*service.ImportReport, error)
	Detect(ctx context.Context, userID uuid.UUID, filename string, data []byte) (*service.DetectResponse, error)
	ListImports(ctx context.Context, userID uuid.UUID, limit, offset int) ([]repository.FileImport, error)
	GetImport(ctx context.Context, userID, id uuid.UUID) (*repository.FileImport, error)
	ListImportErrors(ctx context.Context, userID, id uuid.UUID) ([]repository.ImportError, error)
}

// ImportHandler serves the statement upload endpoints and the import history.
type ImportHandler struct {
	svc       ImportService
	maxUpload int64
	logger    *slog.Logger
}

// NewImportHandler creates a new import handler. maxUpload bounds every file
// upload in bytes.
func NewImportHandler(svc ImportService, maxUpload int64, logger *slog.Logger) *ImportHandler {
	return &ImportHandler{svc: svc, maxUpload: maxUpload, logger: logger}
}

// TransactionRoutes mounts the upload endpoints under /transactions.
func (h *ImportHandler) TransactionRoutes(r chi.Router) {
	r.Post("/preview-import", h.Preview)
	r.Post("/confirm-import", h.Confirm)
	r.Post("/import-excel", h.ImportFile)
	r.Post("/import-excel-with-duplicates", h.ImportWithDuplicates)
}

// FileImportRoutes mounts the import history under /file-imports.
func (h *ImportHandler) FileImportRoutes(r chi.Router) {
	r.Get("/", h.ListImports)
	r.Get("/{id}", h.GetImport)
	r.Get("/{id}/errors", h.ListImportErrors)
}

// Preview handles POST /transactions/preview-import (multipart: profile_id, file).
func (h *ImportHandler) Preview(w http.ResponseWriter, r *http.Request) {
	userID, err := interceptors.UserID(r)
	if err != nil {
		httpx.Error(w, r, h.logger, err)
		return
	}
	up, err := httpx.ReadUpload(w, r, fileField, h.maxUpload)
	if err != nil {
		httpx.Error(w, r, h.logger, err)
		return
	}
	profileID, err := httpx.FormUUID(r, "profile_id")
	if err != nil {
		httpx.Error(w, r, h.logger, err)
		return
	}

	resp, err := h.svc.Preview(r.Context(), userID, profileID, up.Filename, up.Data)
	if err != nil {
		httpx.Error(w, r, h.logger, err)
		return
	}
	httpx.JSON(w, http.StatusOK, resp)
}

// Confirm handles POST /transactions/confirm-import.
func (h *ImportHandler) Confirm(w http.ResponseWriter, r *http.Request) {
	userID, err := interceptors.UserID(r)
	if err != nil {
		httpx.Error(w, r, h.logger, err)
		return
	}
	var req service.ConfirmRequest
	if err := httpx.Decode(r, &req); err != nil {
		httpx.Error(w, r, h.logger, err)
		return
	}

	report, err := h.svc.Confirm(r.Context(), userID, req)
	h.writeReport(w, r, report, err)
}

// ImportFile handles POST /transactions/import-excel (multipart: profile_id, file).
func (h *ImportHandler) ImportFile(w http.ResponseWriter, r *http.Request) {
	userID, err := interceptors.UserID(r)
	if err != nil {
		httpx.Error(w, r, h.logger, err)
		return
	}
	up, err := httpx.ReadUpload(w, r, fileField, h.maxUpload)
	if err != nil {
		httpx.Error(w, r, h.logger, err)
		return
	}
	profileID, err := httpx.FormUUID(r, "profile_id")
	if err != nil {
		httpx.Error(w, r, h.logger, err)
		return
	}

	report, err := h.svc.ImportFile(r.Context(), userID, profileID, up.Filename, up.Data)
	h.writeReport(w, r, report, err)
}

// ImportWithDuplicates handles POST /transactions/import-excel-with-duplicates
// (multipart: account_id, allow_duplicates, file).
func (h *ImportHandler) ImportWithDuplicates(w http.ResponseWriter, r *http.Request) {
	userID, err := interceptors.UserID(r)
	if err != nil {
		httpx.Error(w, r, h.logger, err)
		return
	}
	up, err := httpx.ReadUpload(w, r, fileField, h.maxUpload)
	if err != nil {
		httpx.Error(w, r, h.logger, err)
		return
	}
	accountID, err := httpx.FormUUID(r, "account_id")
	if err != nil {
		httpx.Error(w, r, h.logger, err)
		return
	}
	allow, err := httpx.FormBool(r, "allow_duplicates")
	if err != nil {
		httpx.Error(w, r, h.logger, err)
		return
	}

	report, err := h.svc.ImportWithDuplicates(r.Context(), userID, accountID, allow, up.Filename, up.Data)
	h.writeReport(w, r, report, err)
}

// Detect handles POST /import-profiles/detect (multipart: file).
func (h *ImportHandler) Detect(w http.ResponseWriter, r *http.Request) {
	userID, err := interceptors.UserID(r)
	if err != nil {
		httpx.Error(w, r, h.logger, err)
		return
	}
	up, err := httpx.ReadUpload(w, r, fileField, h.maxUpload)
	if err != nil {
		httpx.Error(w, r, h.logger, err)
		return
	}

	resp, err := h.svc.Detect(r.Context(), userID, up.Filename, up.Data)
	if err != nil {
		httpx.Error(w, r, h.logger, err)
		return
	}
	httpx.JSON(w, http.StatusOK, resp)
}

// ListImports handles GET /file-imports?limit=&offset=.
func (h *ImportHandler) ListImports(w http.ResponseWriter, r *http.Request) {
	userID, err := interceptors.UserID(r)
	if err != nil {
		httpx.Error(w, r, h.logger, err)
		return
	}
	limit, err := httpx.QueryInt(r, "limit", 0)
	if err != nil {
		httpx.Error(w, r, h.logger, err)
		return
	}
	offset, err := httpx.QueryInt(r, "offset", 0)
	if err != nil {
		httpx.Error(w, r, h.logger, err)
		return
	}

	imports, err := h.svc.ListImports(r.Context(), userID, limit, offset)
	if err != nil {
		httpx.Error(w, r, h.logger, err)
		return
	}
	httpx.JSON(w, http.StatusOK, imports)
}

// GetImport handles GET /file-imports/{id}.
func (h *ImportHandler) GetImport(w http.ResponseWriter, r *http.Request) {
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

	fi, err := h.svc.GetImport(r.Context(), userID, id)
	if err != nil {
		httpx.Error(w, r, h.logger, err)
		return
	}
	httpx.JSON(w, http.StatusOK, fi)
}

// ListImportErrors handles GET /file-imports/{id}/errors. It answers with CSV
// when the client sends Accept: text/csv or ?format=csv.
func (h *ImportHandler) ListImportErrors(w http.ResponseWriter, r *http.Request) {
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

	errs, err := h.svc.ListImportErrors(r.Context(), userID, id)
	if err != nil {
		httpx.Error(w, r, h.logger, err)
		return
	}
	if !wantsCSV(r) {
		httpx.JSON(w, http.StatusOK, errs)
		return
	}

	body, err := repository.ErrorsCSV(errs)
	if err != nil {
		httpx.Error(w, r, h.logger, err)
		return
	}
	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", `attachment; filename="import-`+id.String()+`-errors.csv"`)
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(body); err != nil {
		h.logger.Warn("failed to write error export", "import_id", id, "error", err)
	}
}

// writeReport answers a commit. A rolled back import still returns its
// report, with the status of the error.
func (h *ImportHandler) writeReport(w http.ResponseWriter, r *http.Request, report *service.ImportReport, err error) {
	if err == nil {
		httpx.JSON(w, http.StatusOK, report)
		return
	}
	if report == nil {
		httpx.Error(w, r, h.logger, err)
		return
	}
	h.logger.Error("import request failed",
		"path", r.URL.Path,
		"import_id", report.ImportID,
		"error", err,
	)
	httpx.JSON(w, httpx.StatusFor(apperr.KindOf(err)), report)
}

func wantsCSV(r *http.Request) bool {
	if strings.EqualFold(r.URL.Query().Get("format"), "csv") {
		return true
	}
	return strings.Contains(r.Header.Get("Accept"), "text/csv")
}
