// Package preview holds parsed-but-uncommitted imports between the preview
// and confirm calls. Sessions are taken at most once.
package preview

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/FACorreiaa/money-diary/internal/apperr"
	"github.com/FACorreiaa/money-diary/internal/domain/import/normalizer"
	"github.com/FACorreiaa/money-diary/internal/domain/profile"
)

var (
	ErrNotFound = apperr.New(apperr.KindNotFound, "PREVIEW_NOT_FOUND", "preview not found")
	ErrExpired  = apperr.New(apperr.KindGone, "PREVIEW_EXPIRED", "preview expired")
)

// Session is a previewed file waiting for confirmation.
type Session struct {
	ID          string                     `json:"id"`
	UserID      uuid.UUID                  `json:"user_id"`
	ProfileID   uuid.UUID                  `json:"profile_id"`
	AccountID   uuid.UUID                  `json:"account_id"`
	Filename    string                     `json:"filename"`
	FileType    profile.FileType           `json:"file_type"`
	Fingerprint string                     `json:"fingerprint"`
	Rows        []normalizer.NormalizedRow `json:"rows"`
	Ignored     int                        `json:"ignored"`
	Data        []byte                     `json:"data,omitempty"` // kept only when uploads are archived
	CreatedAt   time.Time                  `json:"created_at"`
	ExpiresAt   time.Time                  `json:"expires_at"`
}

func (s *Session) Expired(now time.Time) bool {
	return !now.Before(s.ExpiresAt)
}

// Store keeps sessions until they are taken or expire.
type Store interface {
	Put(ctx context.Context, s *Session) error
	// Take removes and returns the user's session. Sessions of other users
	// are reported as missing and left in place.
	Take(ctx context.Context, userID uuid.UUID, id string, now time.Time) (*Session, error)
	// Sweep drops every session expired at now.
	Sweep(ctx context.Context, now time.Time) (int, error)
	Count(ctx context.Context, now time.Time) (int, error)
}

// NewToken returns a random 128-bit hex token.
func NewToken() (string, error) {
	var b [16]byte
	if _, err := rand.Read(b[:]); err != nil {
		return "", fmt.Errorf("failed to mint preview token: %w", err)
	}
	return hex.EncodeToString(b[:]), nil
}
