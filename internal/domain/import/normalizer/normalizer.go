// Package normalizer turns decoded statement rows into signed, dated
// transactions under an import profile. Row problems are collected as
// values on the row and never abort the file.
package normalizer

import (
	"fmt"
	"regexp"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/FACorreiaa/money-diary/internal/domain/import/decoder"
	"github.com/FACorreiaa/money-diary/internal/domain/profile"
	"github.com/FACorreiaa/money-diary/pkg/money"
)

// MaxDescriptionLength is the longest description accepted, in characters.
const MaxDescriptionLength = 2000

// FieldError is a row-scoped validation failure.
type FieldError struct {
	Field   string `json:"field,omitempty"`
	Message string `json:"message"`
}

// NormalizedRow is a statement row after parsing and validation.
type NormalizedRow struct {
	RowNumber         int               `json:"row_number"`
	Date              *time.Time        `json:"date,omitempty"`
	Amount            decimal.Decimal   `json:"amount"`
	Description       string            `json:"description"`
	Notes             *string           `json:"notes,omitempty"`
	ExternalID        *string           `json:"external_id,omitempty"`
	SubcategoryID     *uuid.UUID        `json:"subcategory_id,omitempty"`
	TransferAccountID *uuid.UUID        `json:"transfer_account_id,omitempty"`
	Raw               map[string]string `json:"raw"`
	IsValid           bool              `json:"is_valid"`
	Errors            []FieldError      `json:"errors,omitempty"`
}

// Messages returns the row's error messages in order.
func (r NormalizedRow) Messages() []string {
	out := make([]string, len(r.Errors))
	for i, e := range r.Errors {
		out[i] = e.Message
	}
	return out
}

func (r *NormalizedRow) addError(field, format string, args ...any) {
	r.Errors = append(r.Errors, FieldError{Field: field, Message: fmt.Sprintf(format, args...)})
}

func (r *NormalizedRow) dropErrors(fields ...string) {
	kept := r.Errors[:0]
	for _, e := range r.Errors {
		drop := false
		for _, f := range fields {
			if e.Field == f {
				drop = true
				break
			}
		}
		if !drop {
			kept = append(kept, e)
		}
	}
	r.Errors = kept
}

func (r *NormalizedRow) revalidate() {
	r.IsValid = len(r.Errors) == 0
}

// Normalizer applies one profile's rules to decoded rows. It is safe for
// concurrent use once built.
type Normalizer struct {
	profile *profile.Profile
	dates   DateParser
	ignores *IgnoreFilter
	regexes map[profile.TargetField]*regexp.Regexp
}

// New builds a normalizer for p. ignores may be nil.
func New(p *profile.Profile, ignores *IgnoreFilter) *Normalizer {
	n := &Normalizer{
		profile: p,
		dates:   NewDateParser(p.DateFormat),
		ignores: ignores,
		regexes: make(map[profile.TargetField]*regexp.Regexp),
	}
	for _, m := range p.Mappings {
		if m.RegexPattern == nil || *m.RegexPattern == "" {
			continue
		}
		if re, err := regexp.Compile(*m.RegexPattern); err == nil {
			n.regexes[m.TargetField] = re
		}
	}
	return n
}

// Normalize parses raw. The second result is false when the row matched a
// pattern ignore and must be dropped without being counted.
func (n *Normalizer) Normalize(raw decoder.RawRow) (NormalizedRow, bool) {
	row := NormalizedRow{RowNumber: raw.Number, Raw: raw.Raw}

	cells := n.prepare(raw.Cells, &row)

	description := cells[profile.TargetDescription]
	if n.ignores.Match(description) {
		return NormalizedRow{}, false
	}

	var errs []FieldError

	dateCell := cells[profile.TargetDate]
	if dateCell == "" {
		errs = append(errs, FieldError{Field: string(profile.TargetDate), Message: "date required"})
	} else if d, ok := n.dates.Parse(dateCell); !ok {
		errs = append(errs, FieldError{Field: string(profile.TargetDate), Message: fmt.Sprintf("invalid date: %s", dateCell)})
	} else if msg := n.checkDateBounds(d); msg != "" {
		errs = append(errs, FieldError{Field: string(profile.TargetDate), Message: msg})
	} else {
		row.Date = &d
	}

	if amount, _, ok := n.resolveAmount(cells, raw.Native, &errs); ok {
		row.Amount = amount
	}

	row.Description = description
	if utf8.RuneCountInString(description) > MaxDescriptionLength {
		errs = append(errs, FieldError{
			Field:   string(profile.TargetDescription),
			Message: fmt.Sprintf("description exceeds %d characters", MaxDescriptionLength),
		})
	}
	row.Notes = optional(cells[profile.TargetNotes])
	row.ExternalID = optional(cells[profile.TargetReference])

	row.Errors = append(row.Errors, errs...)
	row.revalidate()
	return row, true
}

// prepare fills defaults, applies text rules and checks required cells and
// regex constraints for every mapping.
func (n *Normalizer) prepare(in map[profile.TargetField]string, row *NormalizedRow) map[profile.TargetField]string {
	cells := make(map[profile.TargetField]string, len(n.profile.Mappings))
	for _, m := range n.profile.Mappings {
		v := strings.TrimSpace(in[m.TargetField])
		if v == "" && m.DefaultValue != nil {
			v = *m.DefaultValue
		}
		if m.TransformationRule != nil {
			switch *m.TransformationRule {
			case profile.RuleTrim:
				v = strings.Join(strings.Fields(v), " ")
			case profile.RuleUpper:
				v = strings.ToUpper(v)
			case profile.RuleLower:
				v = strings.ToLower(v)
			}
		}
		cells[m.TargetField] = v

		if v == "" {
			// date and amount columns report their own missing values
			if m.IsRequired && m.TargetField != profile.TargetDate && !m.TargetField.IsAmount() {
				row.addError(string(m.TargetField), "%s required", m.TargetField)
			}
			continue
		}
		if re, ok := n.regexes[m.TargetField]; ok && !re.MatchString(v) {
			row.addError(string(m.TargetField), "%s: value '%s' does not match pattern", m.TargetField, v)
		}
	}
	return cells
}

func (n *Normalizer) checkDateBounds(d time.Time) string {
	m := n.profile.Mapping(profile.TargetDate)
	if m == nil {
		return ""
	}
	if m.MinValue != nil && *m.MinValue != "" {
		if lo, ok := n.dates.Parse(*m.MinValue); ok && d.Before(lo) {
			return fmt.Sprintf("date: %s is before %s", d.Format(time.DateOnly), lo.Format(time.DateOnly))
		}
	}
	if m.MaxValue != nil && *m.MaxValue != "" {
		if hi, ok := n.dates.Parse(*m.MaxValue); ok && d.After(hi) {
			return fmt.Sprintf("date: %s is after %s", d.Format(time.DateOnly), hi.Format(time.DateOnly))
		}
	}
	return ""
}

// Modification is a user edit to a previewed row. Nil fields are unchanged.
type Modification struct {
	Date              *string    `json:"date,omitempty"`
	Amount            *string    `json:"amount,omitempty"`
	Description       *string    `json:"description,omitempty"`
	Notes             *string    `json:"notes,omitempty"`
	ExternalID        *string    `json:"external_id,omitempty"`
	SubcategoryID     *uuid.UUID `json:"subcategory_id,omitempty"`
	TransferAccountID *uuid.UUID `json:"transfer_account_id,omitempty"`
}

// ApplyModification applies m to row and re-validates the edited fields.
// Amounts are taken as signed final values.
func (n *Normalizer) ApplyModification(row NormalizedRow, m Modification) NormalizedRow {
	row.Errors = append([]FieldError(nil), row.Errors...)

	if m.Date != nil {
		row.dropErrors(string(profile.TargetDate))
		row.Date = nil
		if d, ok := n.dates.Parse(*m.Date); ok {
			row.Date = &d
		} else {
			row.addError(string(profile.TargetDate), "invalid date: %s", *m.Date)
		}
	}

	if m.Amount != nil {
		row.dropErrors(fieldAmount, string(profile.TargetTransactionType),
			string(profile.TargetDebitAmount), string(profile.TargetCreditAmount),
			string(profile.TargetIncomeAmount), string(profile.TargetExpenseAmount))
		sep := n.profile.DecimalSeparator
		if money.IsCanonical(*m.Amount) {
			sep = "."
		}
		switch v, err := money.Parse(*m.Amount, sep); {
		case err != nil && strings.TrimSpace(*m.Amount) == "":
			row.addError(fieldAmount, "amount required")
		case err != nil:
			row.addError(fieldAmount, "invalid amount: %s", *m.Amount)
		case v.IsZero():
			row.addError(fieldAmount, "amount must not be zero")
		default:
			row.Amount = v
		}
	}

	if m.Description != nil {
		row.dropErrors(string(profile.TargetDescription))
		row.Description = strings.TrimSpace(*m.Description)
		if utf8.RuneCountInString(row.Description) > MaxDescriptionLength {
			row.addError(string(profile.TargetDescription), "description exceeds %d characters", MaxDescriptionLength)
		}
	}
	if m.Notes != nil {
		row.dropErrors(string(profile.TargetNotes))
		row.Notes = optional(*m.Notes)
	}
	if m.ExternalID != nil {
		row.dropErrors(string(profile.TargetReference))
		row.ExternalID = optional(*m.ExternalID)
	}
	if m.SubcategoryID != nil {
		row.SubcategoryID = m.SubcategoryID
	}
	if m.TransferAccountID != nil {
		row.TransferAccountID = m.TransferAccountID
	}

	row.revalidate()
	return row
}

// Ignored reports whether description matches one of the normalizer's
// ignore patterns.
func (n *Normalizer) Ignored(description string) bool {
	return n.ignores.Match(description)
}

func optional(s string) *string {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	return &s
}
