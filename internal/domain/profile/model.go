// Package profile stores the per-account import profiles that describe how a
// bank's statement file maps onto transactions.
package profile

import (
	"reflect"
	"time"

	"github.com/google/uuid"

	"github.com/FACorreiaa/money-diary/internal/apperr"
)

type AmountSchema string

const (
	SingleColumn    AmountSchema = "SINGLE_COLUMN"
	SeparateColumns AmountSchema = "SEPARATE_COLUMNS"
	DebitCredit     AmountSchema = "DEBIT_CREDIT"
)

type TypeDetection string

const (
	ByAmountSign    TypeDetection = "BY_AMOUNT_SIGN"
	ByColumnType    TypeDetection = "BY_COLUMN_TYPE"
	ByExplicitField TypeDetection = "BY_EXPLICIT_FIELD"
)

type FileType string

const (
	FileCSV  FileType = "csv"
	FileXLSX FileType = "xlsx"
	FileXLS  FileType = "xls"
)

type TargetField string

const (
	TargetDate            TargetField = "date"
	TargetAmount          TargetField = "amount"
	TargetDebitAmount     TargetField = "debit_amount"
	TargetCreditAmount    TargetField = "credit_amount"
	TargetIncomeAmount    TargetField = "income_amount"
	TargetExpenseAmount   TargetField = "expense_amount"
	TargetDescription     TargetField = "description"
	TargetNotes           TargetField = "notes"
	TargetReference       TargetField = "reference"
	TargetTransactionType TargetField = "transaction_type"
	TargetAccountNumber   TargetField = "account_number"
)

var knownTargets = map[TargetField]bool{
	TargetDate: true, TargetAmount: true, TargetDebitAmount: true, TargetCreditAmount: true,
	TargetIncomeAmount: true, TargetExpenseAmount: true, TargetDescription: true, TargetNotes: true,
	TargetReference: true, TargetTransactionType: true, TargetAccountNumber: true,
}

// IsAmount reports whether the target holds a money cell.
func (t TargetField) IsAmount() bool {
	switch t {
	case TargetAmount, TargetDebitAmount, TargetCreditAmount, TargetIncomeAmount, TargetExpenseAmount:
		return true
	}
	return false
}

// Transformation rule tokens accepted on a mapping.
const (
	RulePositive = "positive"
	RuleNegative = "negative"
	RuleAbs      = "abs"
	RuleInvert   = "invert"
	RuleTrim     = "trim"
	RuleUpper    = "upper"
	RuleLower    = "lower"
)

var knownRules = map[string]bool{
	RulePositive: true, RuleNegative: true, RuleAbs: true, RuleInvert: true,
	RuleTrim: true, RuleUpper: true, RuleLower: true,
}

var (
	ErrProfileNotFound = apperr.New(apperr.KindNotFound, "PROFILE_NOT_FOUND", "import profile not found")
	ErrNoDefault       = apperr.New(apperr.KindNotFound, "PROFILE_NO_DEFAULT", "no default import profile for account")
	ErrActiveImport    = apperr.New(apperr.KindConflict, "PROFILE_ACTIVE_IMPORT", "profile has an import in progress")
	ErrDefaultClash    = apperr.New(apperr.KindConflict, "PROFILE_DEFAULT_CLASH", "another default profile exists for this account")
)

// Profile describes how to read one bank's statement files.
type Profile struct {
	ID               uuid.UUID       `json:"id"`
	UserID           uuid.UUID       `json:"user_id"`
	AccountID        uuid.UUID       `json:"account_id"`
	Name             string          `json:"name"`
	FileType         FileType        `json:"file_type"`
	Delimiter        string          `json:"delimiter"`
	Encoding         string          `json:"encoding"`
	HasHeader        bool            `json:"has_header"`
	DateFormat       *string         `json:"date_format,omitempty"`
	DecimalSeparator string          `json:"decimal_separator"`
	AmountSchema     AmountSchema    `json:"amount_schema"`
	TypeDetection    TypeDetection   `json:"type_detection"`
	PositiveIsIncome bool            `json:"positive_is_income"`
	DebitIsExpense   bool            `json:"debit_is_expense"`
	SheetName        *string         `json:"sheet_name,omitempty"`
	HeaderRow        int             `json:"header_row"`
	StartRow         int             `json:"start_row"`
	SkipEmptyRows    bool            `json:"skip_empty_rows"`
	IsDefault        bool            `json:"is_default"`
	Mappings         []ColumnMapping `json:"mappings"`
	CreatedAt        time.Time       `json:"created_at"`
	UpdatedAt        time.Time       `json:"updated_at"`
}

func (p *Profile) OwnerID() uuid.UUID { return p.UserID }
func (p *Profile) Created() time.Time { return p.CreatedAt }

// ColumnMapping binds one source column to a transaction field. Column
// indexes are 0-based; rows are 1-based.
type ColumnMapping struct {
	ID                 uuid.UUID   `json:"-"`
	ProfileID          uuid.UUID   `json:"-"`
	SourceColumnName   *string     `json:"source_column_name,omitempty"`
	SourceColumnIndex  *int        `json:"source_column_index,omitempty"`
	TargetField        TargetField `json:"target_field"`
	IsRequired         bool        `json:"is_required"`
	Position           int         `json:"position"`
	TransformationRule *string     `json:"transformation_rule,omitempty"`
	DefaultValue       *string     `json:"default_value,omitempty"`
	RegexPattern       *string     `json:"regex_pattern,omitempty"`
	MinValue           *string     `json:"min_value,omitempty"`
	MaxValue           *string     `json:"max_value,omitempty"`
}

// Mapping returns the mapping for target, or nil.
func (p *Profile) Mapping(target TargetField) *ColumnMapping {
	for i := range p.Mappings {
		if p.Mappings[i].TargetField == target {
			return &p.Mappings[i]
		}
	}
	return nil
}

// Has reports whether every target is mapped.
func (p *Profile) Has(targets ...TargetField) bool {
	for _, t := range targets {
		if p.Mapping(t) == nil {
			return false
		}
	}
	return true
}

// ApplyDefaults fills zero-valued text settings. Row numbers are left alone
// so that an explicit 0 still fails validation.
func (p *Profile) ApplyDefaults() {
	if p.FileType == "" {
		p.FileType = FileCSV
	}
	if p.Delimiter == "" {
		p.Delimiter = ","
	}
	if p.Encoding == "" {
		p.Encoding = "utf-8"
	}
	if p.DecimalSeparator == "" {
		p.DecimalSeparator = "."
	}
	if p.TypeDetection == "" {
		p.TypeDetection = ByAmountSign
	}
	for i := range p.Mappings {
		if p.Mappings[i].Position == 0 {
			p.Mappings[i].Position = i + 1
		}
	}
}

// SameSettings reports whether two profiles carry identical user-editable
// settings and mappings.
func SameSettings(a, b *Profile) bool {
	strip := func(p *Profile) Profile {
		cp := *p
		cp.ID, cp.UserID = uuid.Nil, uuid.Nil
		cp.CreatedAt, cp.UpdatedAt = time.Time{}, time.Time{}
		cp.Mappings = make([]ColumnMapping, len(p.Mappings))
		for i, m := range p.Mappings {
			m.ID, m.ProfileID = uuid.Nil, uuid.Nil
			cp.Mappings[i] = m
		}
		return cp
	}
	return reflect.DeepEqual(strip(a), strip(b))
}
