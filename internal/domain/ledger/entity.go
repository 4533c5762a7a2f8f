// Package ledger holds the records every other domain hangs off: accounts
// and the transactions they own, plus the traits shared by all user-scoped
// entities.
package ledger

import (
	"time"

	"github.com/google/uuid"

	"github.com/FACorreiaa/money-diary/internal/apperr"
)

// Kind tags every persisted entity type.
type Kind string

const (
	KindAccount            Kind = "account"
	KindTransaction        Kind = "transaction"
	KindImportProfile      Kind = "import_profile"
	KindFileImport         Kind = "file_import"
	KindDescriptionPattern Kind = "description_pattern"
	KindPatternIgnore      Kind = "pattern_ignore"
	KindSubcategory        Kind = "subcategory"
	KindBudget             Kind = "budget"
)

// UserScoped is implemented by every entity owned by a single user.
type UserScoped interface {
	OwnerID() uuid.UUID
}

// Timestamped is implemented by entities that record their creation time.
type Timestamped interface {
	Created() time.Time
}

// EnsureOwner returns an authorization error when v belongs to someone else.
func EnsureOwner[T UserScoped](kind Kind, v T, userID uuid.UUID) error {
	if v.OwnerID() != userID {
		return apperr.WithMessage(apperr.ErrForbidden, "%s does not belong to the user", kind)
	}
	return nil
}
