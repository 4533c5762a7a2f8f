package sniffer

import (
	"strings"

	"github.com/FACorreiaa/money-diary/internal/domain/profile"
)

// ColumnSuggestions provides auto-detected column indices
type ColumnSuggestions struct {
	DateCol       int  // Suggested date column index (-1 if not found)
	DescCol       int  // Suggested description column index
	AmountCol     int  // Suggested single amount column (-1 if separate debit/credit)
	DebitCol      int  // Suggested debit column index
	CreditCol     int  // Suggested credit column index
	ReferenceCol  int  // Suggested reference/document column (-1 if not found)
	TypeCol       int  // Suggested transaction type column (-1 if not found)
	IsDoubleEntry bool // True if separate debit/credit columns detected
}

// SuggestColumns attempts to auto-match columns based on header names
func SuggestColumns(headers []string) *ColumnSuggestions {
	s := &ColumnSuggestions{
		DateCol:      -1,
		DescCol:      -1,
		AmountCol:    -1,
		DebitCol:     -1,
		CreditCol:    -1,
		ReferenceCol: -1,
		TypeCol:      -1,
	}

	for i, header := range headers {
		h := strings.ToLower(strings.TrimSpace(header))
		if h == "" {
			continue
		}

		switch {
		case s.DateCol == -1 && (strings.Contains(h, "data mov") || strings.Contains(h, "date") ||
			strings.Contains(h, "fecha") || h == "data"):
			s.DateCol = i
		case s.DescCol == -1 && (strings.Contains(h, "descri") || strings.Contains(h, "merchant") ||
			strings.Contains(h, "detalle") || strings.Contains(h, "glosa") || strings.Contains(h, "concepto") ||
			h == "nome" || h == "name"):
			s.DescCol = i
		case s.DebitCol == -1 && (strings.Contains(h, "débito") || strings.Contains(h, "debito") ||
			strings.Contains(h, "debit") || strings.Contains(h, "cargo") || strings.Contains(h, "withdrawal")):
			s.DebitCol = i
		case s.CreditCol == -1 && (strings.Contains(h, "crédito") || strings.Contains(h, "credito") ||
			strings.Contains(h, "credit") || strings.Contains(h, "abono") || strings.Contains(h, "deposit")):
			s.CreditCol = i
		case s.AmountCol == -1 && (h == "amount" || h == "valor" || h == "importe" || h == "montante" ||
			h == "monto" || strings.HasPrefix(h, "monto ") || strings.HasPrefix(h, "amount ")):
			s.AmountCol = i
		case s.ReferenceCol == -1 && (strings.Contains(h, "refer") || strings.Contains(h, "documento") ||
			h == "id" || strings.Contains(h, "transaction id")):
			s.ReferenceCol = i
		case s.TypeCol == -1 && (h == "tipo" || h == "type" || strings.Contains(h, "dr/cr")):
			s.TypeCol = i
		}
	}

	s.IsDoubleEntry = s.DebitCol != -1 && s.CreditCol != -1
	return s
}

// ProfileDraft is a suggested profile derived from a sniffed file.
type ProfileDraft struct {
	Profile *profile.Profile
	Dialect *RegionalDialect
	Layout  *Layout
}

// SuggestProfile derives an import profile from a detected layout. ok is
// false when no date column or no amount column could be identified.
func SuggestProfile(layout *Layout, fileType profile.FileType) (*ProfileDraft, bool) {
	cols := SuggestColumns(layout.Headers)
	if cols.DateCol == -1 || (cols.AmountCol == -1 && !cols.IsDoubleEntry) {
		return nil, false
	}

	amountIdx := cols.AmountCol
	if amountIdx == -1 {
		amountIdx = cols.DebitCol
	}
	dialect := ProbeDialect(layout.SampleRows, amountIdx, cols.DateCol)

	delimiter := ","
	if layout.Delimiter != 0 {
		delimiter = string(layout.Delimiter)
	}
	dateFormat := dialect.DateFormat

	p := &profile.Profile{
		Name:             "Detected profile",
		FileType:         fileType,
		Delimiter:        delimiter,
		Encoding:         "utf-8",
		HasHeader:        true,
		DateFormat:       &dateFormat,
		DecimalSeparator: string(dialect.DecimalSeparator),
		TypeDetection:    profile.ByAmountSign,
		PositiveIsIncome: true,
		DebitIsExpense:   true,
		HeaderRow:        layout.HeaderRow(),
		StartRow:         layout.HeaderRow() + 1,
		SkipEmptyRows:    true,
	}

	add := func(idx int, target profile.TargetField, required bool) {
		if idx < 0 {
			return
		}
		name := layout.Headers[idx]
		col := idx
		p.Mappings = append(p.Mappings, profile.ColumnMapping{
			SourceColumnName:  &name,
			SourceColumnIndex: &col,
			TargetField:       target,
			IsRequired:        required,
			Position:          len(p.Mappings) + 1,
		})
	}

	add(cols.DateCol, profile.TargetDate, true)
	add(cols.DescCol, profile.TargetDescription, false)
	if cols.AmountCol != -1 {
		p.AmountSchema = profile.SingleColumn
		add(cols.AmountCol, profile.TargetAmount, true)
	} else {
		p.AmountSchema = profile.DebitCredit
		add(cols.DebitCol, profile.TargetDebitAmount, false)
		add(cols.CreditCol, profile.TargetCreditAmount, false)
	}
	add(cols.ReferenceCol, profile.TargetReference, false)

	return &ProfileDraft{Profile: p, Dialect: dialect, Layout: layout}, true
}
