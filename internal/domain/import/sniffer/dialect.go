package sniffer

import (
	"strings"
)

// RegionalDialect represents inferred regional formatting for amounts and dates
type RegionalDialect struct {
	DecimalSeparator   rune    // '.' (US) or ',' (EU)
	ThousandsSeparator rune    // ',' (US) or '.' (EU)
	DateFormat         string  // "YYYY-MM-DD", "DD/MM/YYYY", "MM/DD/YYYY", ...
	CurrencyHint       string  // "EUR", "USD", "BRL", "CLP" if detected
	Confidence         float64 // 0.0-1.0 confidence score
	IsEuropeanFormat   bool    // true if comma is decimal separator
}

// ProbeDialect analyzes sample rows to infer the regional "dialect" of the file.
// It examines amount columns for decimal separators and date columns for format.
func ProbeDialect(sampleRows [][]string, amountIdx int, dateIdx int) *RegionalDialect {
	dialect := &RegionalDialect{
		DecimalSeparator:   '.',
		ThousandsSeparator: ',',
		DateFormat:         "MM/DD/YYYY",
		Confidence:         0.5,
	}

	europeanHints := 0
	usHints := 0
	dateIsDD := false
	dateIsMM := false
	dateIsISO := false
	dateSep := "/"

	for _, row := range sampleRows {
		if amountIdx >= 0 && amountIdx < len(row) {
			if val := row[amountIdx]; val != "" {
				hint := analyzeAmountFormat(val)
				if hint > 0 {
					europeanHints++
				} else if hint < 0 {
					usHints++
				}
			}
		}

		if dateIdx >= 0 && dateIdx < len(row) {
			if dateVal := strings.TrimSpace(row[dateIdx]); dateVal != "" {
				switch {
				case isISODate(dateVal):
					dateIsISO = true
				case analyzeDateFormat(dateVal):
					dateIsDD = true
				default:
					dateIsMM = true
				}
				if strings.Contains(dateVal, "-") {
					dateSep = "-"
				}
			}
		}

		for _, cell := range row {
			switch {
			case strings.Contains(cell, "€") || strings.Contains(cell, "EUR"):
				dialect.CurrencyHint = "EUR"
				europeanHints++
			case strings.Contains(cell, "R$") || strings.Contains(cell, "BRL"):
				dialect.CurrencyHint = "BRL"
				europeanHints++
			case strings.Contains(cell, "CLP"):
				dialect.CurrencyHint = "CLP"
				europeanHints++
			case strings.Contains(cell, "$"):
				if dialect.CurrencyHint == "" {
					dialect.CurrencyHint = "USD"
				}
				usHints++
			}
		}
	}

	if europeanHints > usHints {
		dialect.DecimalSeparator = ','
		dialect.ThousandsSeparator = '.'
		dialect.IsEuropeanFormat = true
	}

	if total := europeanHints + usHints; total > 0 {
		dialect.Confidence = float64(max(europeanHints, usHints)) / float64(total)
	}

	switch {
	case dateIsISO && !dateIsDD && !dateIsMM:
		dialect.DateFormat = "YYYY-MM-DD"
	case dateIsDD && !dateIsMM, dialect.IsEuropeanFormat:
		dialect.DateFormat = "DD" + dateSep + "MM" + dateSep + "YYYY"
	default:
		dialect.DateFormat = "MM/DD/YYYY"
	}

	return dialect
}

// analyzeAmountFormat returns: >0 for European, <0 for US, 0 for ambiguous
func analyzeAmountFormat(val string) int {
	cleaned := strings.Map(func(r rune) rune {
		if r >= '0' && r <= '9' || r == ',' || r == '.' || r == '-' {
			return r
		}
		return -1
	}, val)
	cleaned = strings.TrimPrefix(cleaned, "-")
	if cleaned == "" {
		return 0
	}

	hasComma := strings.Contains(cleaned, ",")
	hasDot := strings.Contains(cleaned, ".")

	switch {
	case hasComma && hasDot:
		// the last separator is the decimal one
		if strings.LastIndex(cleaned, ",") > strings.LastIndex(cleaned, ".") {
			return 1
		}
		return -1
	case hasComma:
		if len(cleaned[strings.LastIndex(cleaned, ",")+1:]) <= 2 {
			return 1
		}
	case hasDot:
		if len(cleaned[strings.LastIndex(cleaned, ".")+1:]) <= 2 {
			return -1
		}
	}
	return 0
}

func isISODate(v string) bool {
	return len(v) >= 10 && v[4] == '-' && v[7] == '-' && isDigits(v[:4])
}

// analyzeDateFormat returns true if the date is definitely DD-first (day > 12)
func analyzeDateFormat(dateVal string) bool {
	parts := strings.FieldsFunc(dateVal, func(r rune) bool {
		return r == '/' || r == '-' || r == '.'
	})
	if len(parts) < 2 {
		return false
	}
	day := 0
	for _, c := range strings.TrimSpace(parts[0]) {
		if c < '0' || c > '9' {
			break
		}
		day = day*10 + int(c-'0')
	}
	return day > 12 && day <= 31
}

func isDigits(s string) bool {
	for _, c := range s {
		if c < '0' || c > '9' {
			return false
		}
	}
	return s != ""
}
