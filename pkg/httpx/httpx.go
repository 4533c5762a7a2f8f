// Package httpx holds the JSON request/response helpers shared by handlers.
package httpx

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"reflect"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/FACorreiaa/money-diary/internal/apperr"
)

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// ErrorBody is the JSON shape of every error response.
type ErrorBody struct {
	Error ErrorDetail `json:"error"`
}

type ErrorDetail struct {
	Kind    string `json:"kind"`
	Message string `json:"message"`
	Field   string `json:"field,omitempty"`
}

// JSON writes v with the given status.
func JSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v == nil {
		return
	}
	_ = json.NewEncoder(w).Encode(v)
}

// NoContent writes 204.
func NoContent(w http.ResponseWriter) {
	w.WriteHeader(http.StatusNoContent)
}

// StatusFor maps an error kind to its HTTP status.
func StatusFor(kind apperr.Kind) int {
	switch kind {
	case apperr.KindValidation, apperr.KindParse:
		return http.StatusBadRequest
	case apperr.KindUnauthenticated:
		return http.StatusUnauthorized
	case apperr.KindAuthorization:
		return http.StatusForbidden
	case apperr.KindNotFound:
		return http.StatusNotFound
	case apperr.KindConflict:
		return http.StatusConflict
	case apperr.KindGone:
		return http.StatusGone
	default:
		return http.StatusInternalServerError
	}
}

// Error writes err as a JSON error. Internal errors are logged and their
// details withheld from the client.
func Error(w http.ResponseWriter, r *http.Request, logger *slog.Logger, err error) {
	e, ok := apperr.As(err)
	if !ok || e.Kind == apperr.KindInternal {
		logger.ErrorContext(r.Context(), "request failed",
			"method", r.Method,
			"path", r.URL.Path,
			"error", err,
		)
		JSON(w, http.StatusInternalServerError, ErrorBody{Error: ErrorDetail{
			Kind:    apperr.KindInternal.String(),
			Message: apperr.ErrInternal.Message,
		}})
		return
	}

	JSON(w, StatusFor(e.Kind), ErrorBody{Error: ErrorDetail{
		Kind:    e.Kind.String(),
		Message: e.Message,
		Field:   e.Field,
	}})
}

// Decode reads a JSON body into dst and runs its validate tags.
func Decode(r *http.Request, dst any) error {
	dec := json.NewDecoder(r.Body)
	if err := dec.Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return apperr.Validation("request body is required")
		}
		return apperr.Validation("malformed JSON body")
	}
	return Validate(dst)
}

// Validate runs struct validation and converts the first failure into a
// validation error naming the JSON field.
func Validate(v any) error {
	err := validate.Struct(v)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) && len(verrs) > 0 {
		fe := verrs[0]
		return apperr.WithField(apperr.Validation("field '%s' failed on '%s'", fe.Field(), fe.Tag()), fe.Field())
	}
	return apperr.Validation("invalid request")
}

// PathUUID parses a chi URL parameter as a UUID.
func PathUUID(r *http.Request, name string) (uuid.UUID, error) {
	id, err := uuid.Parse(chi.URLParam(r, name))
	if err != nil {
		return uuid.Nil, apperr.WithField(apperr.Validation("%s must be a valid UUID", name), name)
	}
	return id, nil
}

// QueryUUID parses an optional UUID query parameter.
func QueryUUID(r *http.Request, name string) (*uuid.UUID, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return nil, nil
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		return nil, apperr.WithField(apperr.Validation("%s must be a valid UUID", name), name)
	}
	return &id, nil
}

// QueryInt parses an optional non-negative integer query parameter.
func QueryInt(r *http.Request, name string, def int) (int, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return def, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return 0, apperr.WithField(apperr.Validation("%s must be a non-negative integer", name), name)
	}
	return n, nil
}

// QueryBool parses an optional boolean query parameter.
func QueryBool(r *http.Request, name string, def bool) (bool, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return def, nil
	}
	b, err := strconv.ParseBool(raw)
	if err != nil {
		return false, apperr.WithField(apperr.Validation("%s must be true or false", name), name)
	}
	return b, nil
}

// Upload is a file read from a multipart form.
type Upload struct {
	Filename string
	Data     []byte
}

// ReadUpload parses a multipart request and reads the named file fully into
// memory, enforcing maxBytes.
func ReadUpload(w http.ResponseWriter, r *http.Request, field string, maxBytes int64) (*Upload, error) {
	r.Body = http.MaxBytesReader(w, r.Body, maxBytes+1<<20)
	if err := r.ParseMultipartForm(maxBytes); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return nil, apperr.Validation("file exceeds the %d byte upload limit", maxBytes)
		}
		return nil, apperr.Validation("request must be multipart/form-data")
	}

	file, header, err := r.FormFile(field)
	if err != nil {
		return nil, apperr.WithField(apperr.Validation("%s is required", field), field)
	}
	defer file.Close()

	data, err := io.ReadAll(io.LimitReader(file, maxBytes+1))
	if err != nil {
		return nil, apperr.Internal(err, "failed to read upload")
	}
	if int64(len(data)) > maxBytes {
		return nil, apperr.Validation("file exceeds the %d byte upload limit", maxBytes)
	}
	if len(data) == 0 {
		return nil, apperr.WithField(apperr.Validation("file is empty"), field)
	}
	return &Upload{Filename: header.Filename, Data: data}, nil
}

// FormUUID parses a required UUID multipart/form field.
func FormUUID(r *http.Request, name string) (uuid.UUID, error) {
	raw := r.FormValue(name)
	if raw == "" {
		return uuid.Nil, apperr.WithField(apperr.Validation("%s is required", name), name)
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, apperr.WithField(apperr.Validation("%s must be a valid UUID", name), name)
	}
	return id, nil
}

// FormBool parses an optional boolean form field.
func FormBool(r *http.Request, name string) (bool, error) {
	raw := r.FormValue(name)
	if raw == "" {
		return false, nil
	}
	b, err := strconv.ParseBool(raw)
	if err != nil {
		return false, apperr.WithField(apperr.Validation("%s must be true or false", name), name)
	}
	return b, nil
}
