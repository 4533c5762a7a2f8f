package httpx

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/FACorreiaa/money-diary/internal/apperr"
)

func discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) ErrorDetail {
	t.Helper()
	var body ErrorBody
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	return body.Error
}

func TestStatusFor(t *testing.T) {
	tests := []struct {
		kind apperr.Kind
		want int
	}{
		{apperr.KindValidation, http.StatusBadRequest},
		{apperr.KindParse, http.StatusBadRequest},
		{apperr.KindUnauthenticated, http.StatusUnauthorized},
		{apperr.KindAuthorization, http.StatusForbidden},
		{apperr.KindNotFound, http.StatusNotFound},
		{apperr.KindConflict, http.StatusConflict},
		{apperr.KindGone, http.StatusGone},
		{apperr.KindInternal, http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.kind.String(), func(t *testing.T) {
			assert.Equal(t, tt.want, StatusFor(tt.kind))
		})
	}
}

func TestError_DomainError(t *testing.T) {
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	err := apperr.WithField(apperr.Validation("amount must be a number"), "amount")

	Error(rec, req, discard(), err)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	got := decodeBody(t, rec)
	assert.Equal(t, "validation", got.Kind)
	assert.Equal(t, "amount must be a number", got.Message)
	assert.Equal(t, "amount", got.Field)
}

func TestError_HidesInternalDetail(t *testing.T) {
	var logs bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&logs, nil))
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/transactions/confirm-import", nil)

	Error(rec, req, logger, errors.New("pq: connection reset"))

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	got := decodeBody(t, rec)
	assert.Equal(t, "internal", got.Kind)
	assert.NotContains(t, got.Message, "connection reset")
	assert.Contains(t, logs.String(), "connection reset")
}

type createReq struct {
	Name  string `json:"name" validate:"required,max=5"`
	Count int    `json:"count" validate:"min=0"`
}

func TestDecode(t *testing.T) {
	tests := []struct {
		name      string
		body      string
		wantErr   string
		wantField string
	}{
		{name: "ok", body: `{"name":"abc","count":1}`},
		{name: "empty", body: ``, wantErr: "request body is required"},
		{name: "malformed", body: `{"name":`, wantErr: "malformed JSON body"},
		{name: "missing name", body: `{"count":1}`, wantErr: "field 'name' failed on 'required'", wantField: "name"},
		{name: "negative", body: `{"name":"a","count":-1}`, wantErr: "field 'count' failed on 'min'", wantField: "count"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(tt.body))
			var dst createReq
			err := Decode(req, &dst)
			if tt.wantErr == "" {
				require.NoError(t, err)
				assert.Equal(t, "abc", dst.Name)
				return
			}
			e, ok := apperr.As(err)
			require.True(t, ok)
			assert.Equal(t, apperr.KindValidation, e.Kind)
			assert.Equal(t, tt.wantErr, e.Message)
			assert.Equal(t, tt.wantField, e.Field)
		})
	}
}

func TestPathAndQueryParams(t *testing.T) {
	id := uuid.New()
	r := chi.NewRouter()
	var gotPath uuid.UUID
	var gotQuery *uuid.UUID
	var skip int
	var active bool
	r.Get("/things/{id}", func(w http.ResponseWriter, req *http.Request) {
		var err error
		gotPath, err = PathUUID(req, "id")
		require.NoError(t, err)
		gotQuery, err = QueryUUID(req, "account_id")
		require.NoError(t, err)
		skip, err = QueryInt(req, "skip", 0)
		require.NoError(t, err)
		active, err = QueryBool(req, "active", false)
		require.NoError(t, err)
	})

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/things/"+id.String()+"?account_id="+id.String()+"&skip=20&active=true", nil))
	assert.Equal(t, id, gotPath)
	require.NotNil(t, gotQuery)
	assert.Equal(t, id, *gotQuery)
	assert.Equal(t, 20, skip)
	assert.True(t, active)

	bad := httptest.NewRequest(http.MethodGet, "/?skip=-1&account_id=x&active=maybe", nil)
	_, err := QueryInt(bad, "skip", 0)
	assert.Equal(t, apperr.KindValidation, apperr.KindOf(err))
	_, err = QueryUUID(bad, "account_id")
	assert.Equal(t, apperr.KindValidation, apperr.KindOf(err))
	_, err = QueryBool(bad, "active", false)
	assert.Equal(t, apperr.KindValidation, apperr.KindOf(err))

	none := httptest.NewRequest(http.MethodGet, "/", nil)
	q, err := QueryUUID(none, "account_id")
	require.NoError(t, err)
	assert.Nil(t, q)
	n, err := QueryInt(none, "limit", 100)
	require.NoError(t, err)
	assert.Equal(t, 100, n)
}

func uploadRequest(t *testing.T, field, filename string, data []byte, form map[string]string) *http.Request {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	for k, v := range form {
		require.NoError(t, mw.WriteField(k, v))
	}
	if field != "" {
		fw, err := mw.CreateFormFile(field, filename)
		require.NoError(t, err)
		_, err = fw.Write(data)
		require.NoError(t, err)
	}
	require.NoError(t, mw.Close())
	req := httptest.NewRequest(http.MethodPost, "/", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return req
}

func TestReadUpload(t *testing.T) {
	profileID := uuid.New()
	req := uploadRequest(t, "file", "march.csv", []byte("fecha,monto\n"), map[string]string{
		"profile_id":       profileID.String(),
		"allow_duplicates": "true",
	})

	up, err := ReadUpload(httptest.NewRecorder(), req, "file", 1024)
	require.NoError(t, err)
	assert.Equal(t, "march.csv", up.Filename)
	assert.Equal(t, "fecha,monto\n", string(up.Data))

	gotID, err := FormUUID(req, "profile_id")
	require.NoError(t, err)
	assert.Equal(t, profileID, gotID)
	allow, err := FormBool(req, "allow_duplicates")
	require.NoError(t, err)
	assert.True(t, allow)
}

func TestReadUpload_Rejects(t *testing.T) {
	tests := []struct {
		name    string
		req     func(t *testing.T) *http.Request
		wantMsg string
	}{
		{
			name:    "not multipart",
			req:     func(*testing.T) *http.Request { return httptest.NewRequest(http.MethodPost, "/", strings.NewReader("{}")) },
			wantMsg: "request must be multipart/form-data",
		},
		{
			name:    "missing file",
			req:     func(t *testing.T) *http.Request { return uploadRequest(t, "", "", nil, map[string]string{"x": "y"}) },
			wantMsg: "file is required",
		},
		{
			name:    "empty file",
			req:     func(t *testing.T) *http.Request { return uploadRequest(t, "file", "a.csv", nil, nil) },
			wantMsg: "file is empty",
		},
		{
			name:    "too large",
			req:     func(t *testing.T) *http.Request { return uploadRequest(t, "file", "a.csv", bytes.Repeat([]byte("x"), 2048), nil) },
			wantMsg: "file exceeds the 1024 byte upload limit",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ReadUpload(httptest.NewRecorder(), tt.req(t), "file", 1024)
			e, ok := apperr.As(err)
			require.True(t, ok)
			assert.Equal(t, apperr.KindValidation, e.Kind)
			assert.Equal(t, tt.wantMsg, e.Message)
		})
	}
}

func TestFormUUID_Required(t *testing.T) {
	req := uploadRequest(t, "file", "a.csv", []byte("x"), nil)
	_, err := ReadUpload(httptest.NewRecorder(), req, "file", 1024)
	require.NoError(t, err)

	_, err = FormUUID(req, "profile_id")
	e, ok := apperr.As(err)
	require.True(t, ok)
	assert.Equal(t, "profile_id is required", e.Message)
	assert.Equal(t, "profile_id", e.Field)
}
