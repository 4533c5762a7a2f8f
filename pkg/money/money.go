// Package money holds the fixed-scale decimal helpers used for every amount and
// balance: localized parsing of bank statement cells, two-digit rounding and
// currency-aware display.
package money

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"

	gomoney "github.com/Rhymond/go-money"
	"github.com/shopspring/decimal"
)

// Scale is the number of fractional digits kept for money.
const Scale = 2

const (
	EUR = "EUR"
	USD = "USD"
	CLP = "CLP"
	PEN = "PEN"
)

var (
	ErrEmpty   = errors.New("amount is empty")
	ErrInvalid = errors.New("amount is not a number")
)

var canonicalNumber = regexp.MustCompile(`^-?\d+(\.\d+)?$`)

// IsCanonical reports whether s is a plain machine-formatted number such as
// the raw value of a spreadsheet cell ("1234.5", "-12").
func IsCanonical(s string) bool {
	return canonicalNumber.MatchString(strings.TrimSpace(s))
}

// Parse converts a localized amount cell into a decimal rounded to Scale.
// Currency symbols, ISO currency codes and whitespace are stripped from the
// edges, the thousands separator implied by decimalSeparator is dropped and
// accounting negatives "(1.234,56)" are understood. A sign is only accepted
// as the first or last character of the number; anything else left over
// makes the cell invalid.
func Parse(raw, decimalSeparator string) (decimal.Decimal, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return decimal.Zero, ErrEmpty
	}
	invalid := fmt.Errorf("%w: %q", ErrInvalid, raw)

	s = trimCurrency(s)
	negative := false
	if strings.HasPrefix(s, "(") && strings.HasSuffix(s, ")") {
		negative = true
		s = trimCurrency(s[1 : len(s)-1])
	}

	// at most one sign, at either end
	if r, size := utf8.DecodeRuneInString(s); r == '-' || r == '−' || r == '+' {
		negative = negative != (r != '+')
		s = trimCurrency(s[size:])
	} else if r, size := utf8.DecodeLastRuneInString(s); r == '-' || r == '−' {
		negative = !negative
		s = trimCurrency(s[:len(s)-size])
	}

	var b strings.Builder
	b.Grow(len(s))
	digits := 0
	for _, r := range s {
		switch {
		case r >= '0' && r <= '9':
			b.WriteRune(r)
			digits++
		case r == '.' || r == ',':
			b.WriteRune(r)
		case unicode.IsSpace(r) || r == '\'':
			// grouping
		default:
			return decimal.Zero, invalid
		}
	}
	if digits == 0 {
		return decimal.Zero, invalid
	}

	cleaned := b.String()
	if decimalSeparator == "," {
		cleaned = strings.ReplaceAll(cleaned, ".", "")
		cleaned = strings.Replace(cleaned, ",", ".", 1)
	} else {
		cleaned = strings.ReplaceAll(cleaned, ",", "")
	}

	d, err := decimal.NewFromString(cleaned)
	if err != nil {
		return decimal.Zero, invalid
	}
	if negative {
		d = d.Neg()
	}
	return Round(d), nil
}

// trimCurrency strips whitespace, currency symbols and known ISO codes from
// both ends of s.
func trimCurrency(s string) string {
	for {
		before := s
		s = strings.TrimFunc(s, func(r rune) bool {
			return unicode.IsSpace(r) || unicode.Is(unicode.Sc, r)
		})
		if len(s) >= 3 && isCurrencyCode(s[:3]) && (len(s) == 3 || !isLetter(s[3])) {
			s = s[3:]
		}
		if n := len(s); n >= 3 && isCurrencyCode(s[n-3:]) && (n == 3 || !isLetter(s[n-4])) {
			s = s[:n-3]
		}
		if s == before {
			return s
		}
	}
}

func isLetter(c byte) bool {
	return c >= 'A' && c <= 'Z' || c >= 'a' && c <= 'z'
}

func isCurrencyCode(code string) bool {
	for i := 0; i < len(code); i++ {
		if code[i] < 'A' || code[i] > 'Z' {
			return false
		}
	}
	return gomoney.GetCurrency(code) != nil
}

// Round rounds d half away from zero to Scale digits.
func Round(d decimal.Decimal) decimal.Decimal {
	return d.Round(Scale)
}

// Format renders d with exactly Scale fractional digits ("2399.50").
func Format(d decimal.Decimal) string {
	return d.StringFixed(Scale)
}

// Sum adds values without leaving decimal arithmetic.
func Sum(values ...decimal.Decimal) decimal.Decimal {
	total := decimal.Zero
	for _, v := range values {
		total = total.Add(v)
	}
	return total
}

// Cents converts d into minor units of currencyCode.
func Cents(d decimal.Decimal, currencyCode string) int64 {
	c := currency(currencyCode)
	return d.Shift(int32(c.Fraction)).Round(0).IntPart()
}

// Display formats d for humans using the currency's grapheme and separators,
// e.g. "€1,234.56" or "$1,500,000".
func Display(d decimal.Decimal, currencyCode string) string {
	c := currency(currencyCode)
	return gomoney.New(Cents(d, c.Code), c.Code).Display()
}

func currency(code string) *gomoney.Currency {
	if c := gomoney.GetCurrency(strings.ToUpper(code)); c != nil {
		return c
	}
	return gomoney.GetCurrency(EUR)
}
