// Package interceptors holds the HTTP middleware chain: authentication,
// request logging, rate limiting, CORS and metrics.
package interceptors

import (
	"context"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/FACorreiaa/money-diary/internal/apperr"
	"github.com/FACorreiaa/money-diary/pkg/httpx"
)

type contextKey string

const userIDKey contextKey = "user_id"

// WithUserID stores the authenticated user id on ctx.
func WithUserID(ctx context.Context, userID string) context.Context {
	return context.WithValue(ctx, userIDKey, userID)
}

// GetUserIDFromContext returns the authenticated user id.
func GetUserIDFromContext(ctx context.Context) (string, bool) {
	v, ok := ctx.Value(userIDKey).(string)
	return v, ok
}

// UserID returns the authenticated user as a UUID.
func UserID(r *http.Request) (uuid.UUID, error) {
	raw, ok := GetUserIDFromContext(r.Context())
	if !ok || raw == "" {
		return uuid.Nil, apperr.ErrUnauthenticated
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, apperr.ErrUnauthenticated
	}
	return id, nil
}

// Auth validates HS256 bearer tokens whose subject is the user id.
func Auth(secret []byte, issuer string, logger *slog.Logger) func(http.Handler) http.Handler {
	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(issuer),
		jwt.WithExpirationRequired(),
		jwt.WithLeeway(30*time.Second),
	)
	keyFunc := func(*jwt.Token) (any, error) { return secret, nil }

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			header := r.Header.Get("Authorization")
			raw, found := strings.CutPrefix(header, "Bearer ")
			if !found || raw == "" {
				httpx.Error(w, r, logger, apperr.ErrUnauthenticated)
				return
			}

			claims := &jwt.RegisteredClaims{}
			if _, err := parser.ParseWithClaims(raw, claims, keyFunc); err != nil {
				logger.DebugContext(r.Context(), "rejected token", "error", err)
				httpx.Error(w, r, logger, apperr.ErrUnauthenticated)
				return
			}
			if _, err := uuid.Parse(claims.Subject); err != nil {
				httpx.Error(w, r, logger, apperr.ErrUnauthenticated)
				return
			}

			next.ServeHTTP(w, r.WithContext(WithUserID(r.Context(), claims.Subject)))
		})
	}
}

// IssueToken signs a token for userID. Used by the admin CLI and tests.
func IssueToken(secret []byte, issuer string, userID uuid.UUID, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := jwt.RegisteredClaims{
		Subject:   userID.String(),
		Issuer:    issuer,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(secret)
}
