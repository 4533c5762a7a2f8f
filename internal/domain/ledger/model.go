package ledger

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/FACorreiaa/money-diary/internal/apperr"
)

var (
	ErrAccountNotFound     = apperr.New(apperr.KindNotFound, "ACCOUNT_NOT_FOUND", "account not found")
	ErrAccountInactive     = apperr.New(apperr.KindValidation, "ACCOUNT_INACTIVE", "account is inactive")
	ErrTransactionNotFound = apperr.New(apperr.KindNotFound, "TRANSACTION_NOT_FOUND", "transaction not found")
	ErrZeroAmount          = apperr.New(apperr.KindValidation, "ZERO_AMOUNT", "transaction amount must not be zero")
)

// Account is a bank account whose CurrentBalance is a cache of the sum of
// its transactions, maintained in the same database transaction that
// inserts them.
type Account struct {
	ID             uuid.UUID       `json:"id"`
	UserID         uuid.UUID       `json:"user_id"`
	BankID         *int32          `json:"bank_id,omitempty"`
	TypeID         *int32          `json:"type_id,omitempty"`
	Name           string          `json:"name"`
	Currency       string          `json:"currency"`
	CurrentBalance decimal.Decimal `json:"current_balance"`
	Active         bool            `json:"active"`
	CreatedAt      time.Time       `json:"created_at"`
}

func (a *Account) OwnerID() uuid.UUID { return a.UserID }
func (a *Account) Created() time.Time { return a.CreatedAt }

// TransactionStatus mirrors status_id.
type TransactionStatus int16

const (
	StatusCleared TransactionStatus = 1
	StatusPending TransactionStatus = 2
)

// Transaction is a signed movement: income > 0, expense < 0.
type Transaction struct {
	ID                uuid.UUID         `json:"id"`
	UserID            uuid.UUID         `json:"user_id"`
	AccountID         uuid.UUID         `json:"account_id"`
	Amount            decimal.Decimal   `json:"amount"`
	TransactionDate   time.Time         `json:"transaction_date"`
	Description       string            `json:"description"`
	Notes             *string           `json:"notes,omitempty"`
	SubcategoryID     *uuid.UUID        `json:"subcategory_id,omitempty"`
	TransferAccountID *uuid.UUID        `json:"transfer_account_id,omitempty"`
	Status            TransactionStatus `json:"status_id"`
	ExternalID        *string           `json:"external_id,omitempty"`
	ContentHash       *string           `json:"content_hash,omitempty"`
	ImportSource      *string           `json:"import_source,omitempty"`
	FileImportID      *uuid.UUID        `json:"file_import_id,omitempty"`
	IsRecurring       bool              `json:"is_recurring"`
	IsPlanned         bool              `json:"is_planned"`
	CreatedAt         time.Time         `json:"created_at"`
}

func (t *Transaction) OwnerID() uuid.UUID { return t.UserID }
func (t *Transaction) Created() time.Time { return t.CreatedAt }
