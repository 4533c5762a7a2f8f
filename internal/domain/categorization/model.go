// Package categorization assigns subcategories to transactions from
// user-defined description patterns and mines new pattern suggestions from
// already classified history.
package categorization

import (
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/FACorreiaa/money-diary/internal/apperr"
)

// PatternType is how a pattern's text is compared with a description.
type PatternType string

const (
	TypeContains   PatternType = "CONTAINS"
	TypeStartsWith PatternType = "STARTS_WITH"
	TypeEndsWith   PatternType = "ENDS_WITH"
	TypeRegex      PatternType = "REGEX"
	TypeExact      PatternType = "EXACT"
)

func (t PatternType) Valid() bool {
	switch t {
	case TypeContains, TypeStartsWith, TypeEndsWith, TypeRegex, TypeExact:
		return true
	}
	return false
}

const (
	// MaxRegexLength bounds REGEX pattern text.
	MaxRegexLength = 512
	// MaxMatchInput is the number of description characters patterns see.
	MaxMatchInput = 2000
)

var (
	ErrPatternNotFound     = apperr.New(apperr.KindNotFound, "PATTERN_NOT_FOUND", "pattern not found")
	ErrSubcategoryNotFound = apperr.New(apperr.KindNotFound, "SUBCATEGORY_NOT_FOUND", "subcategory not found")
	ErrInvalidRegex        = apperr.New(apperr.KindValidation, "INVALID_REGEX", "invalid regex")

	errMatchTextRequired = apperr.WithField(apperr.Validation("match_text is required"), "match_text")
)

// Pattern is a DescriptionPattern row.
type Pattern struct {
	ID              uuid.UUID   `json:"id"`
	UserID          uuid.UUID   `json:"user_id"`
	Name            string      `json:"name"`
	Pattern         string      `json:"pattern"`
	Type            PatternType `json:"pattern_type"`
	SubcategoryID   uuid.UUID   `json:"subcategory_id"`
	Priority        int         `json:"priority"`
	IsCaseSensitive bool        `json:"is_case_sensitive"`
	IsActive        bool        `json:"is_active"`
	AutoApply       bool        `json:"auto_apply"`
	Notes           *string     `json:"notes,omitempty"`
	CreatedAt       time.Time   `json:"created_at"`
	UpdatedAt       time.Time   `json:"updated_at"`
}

func (p *Pattern) OwnerID() uuid.UUID { return p.UserID }
func (p *Pattern) Created() time.Time { return p.CreatedAt }

// PatternMatch is the audit row appended whenever a pattern writes a
// subcategory to a transaction.
type PatternMatch struct {
	TransactionID     uuid.UUID `json:"transaction_id"`
	PatternID         uuid.UUID `json:"pattern_id"`
	MatchedText       string    `json:"matched_text"`
	AppliedAt         time.Time `json:"applied_at"`
	WasManualOverride bool      `json:"was_manual_override"`
}

// Validate checks the pattern's own fields. Subcategory ownership is checked
// by the service.
func (p *Pattern) Validate() error {
	p.Name = strings.TrimSpace(p.Name)
	if p.Name == "" {
		return apperr.WithField(apperr.Validation("name is required"), "name")
	}
	if p.Pattern == "" {
		return apperr.WithField(apperr.Validation("pattern is required"), "pattern")
	}
	if !p.Type.Valid() {
		return apperr.WithField(apperr.Validation("unknown pattern_type '%s'", p.Type), "pattern_type")
	}
	if p.SubcategoryID == uuid.Nil {
		return apperr.WithField(apperr.Validation("subcategory_id is required"), "subcategory_id")
	}
	if p.Type == TypeRegex {
		if len(p.Pattern) > MaxRegexLength {
			return apperr.WithField(apperr.WithMessage(ErrInvalidRegex, "invalid regex: longer than %d characters", MaxRegexLength), "pattern")
		}
		if _, err := compileRegex(p.Pattern, p.IsCaseSensitive); err != nil {
			return apperr.WithField(apperr.WithMessage(ErrInvalidRegex, "invalid regex: %v", err), "pattern")
		}
	}
	return nil
}

func compileRegex(expr string, caseSensitive bool) (*regexp.Regexp, error) {
	if !caseSensitive {
		expr = "(?i)" + expr
	}
	return regexp.Compile(expr)
}

// Evaluation is the outcome of testing one pattern against a description.
type Evaluation struct {
	PatternID     uuid.UUID   `json:"pattern_id"`
	Name          string      `json:"name"`
	Type          PatternType `json:"pattern_type"`
	Priority      int         `json:"priority"`
	SubcategoryID uuid.UUID   `json:"subcategory_id"`
	Matched       bool        `json:"matched"`
	MatchedText   string      `json:"matched_text,omitempty"`
	Error         string      `json:"error,omitempty"`
}

// TestResult answers the test-patterns operation.
type TestResult struct {
	Description string       `json:"description"`
	Results     []Evaluation `json:"results"`
	BestMatch   *Evaluation  `json:"best_match"`
}

// Suggestion is a mined pattern candidate.
type Suggestion struct {
	Pattern           string      `json:"pattern"`
	Type              PatternType `json:"pattern_type"`
	SubcategoryID     uuid.UUID   `json:"subcategory_id"`
	Count             int         `json:"count"`
	Confidence        float64     `json:"confidence"`
	SampleDescription string      `json:"sample_description"`
}
