package profile

import (
	"regexp"
	"strings"

	"golang.org/x/text/encoding/htmlindex"

	"github.com/FACorreiaa/money-diary/internal/apperr"
)

var allowedDelimiters = map[string]bool{",": true, ";": true, "\t": true, "|": true}

func invalid(field, format string, args ...any) error {
	return apperr.WithField(apperr.Validation(format, args...), field)
}

// Validate checks a profile's settings and that its mapping set fits the
// declared amount schema. It returns the first violation found.
func Validate(p *Profile) error {
	if strings.TrimSpace(p.Name) == "" {
		return invalid("name", "name is required")
	}
	if !allowedDelimiters[p.Delimiter] {
		return invalid("delimiter", "delimiter must be one of , ; \\t |")
	}
	if p.DecimalSeparator != "." && p.DecimalSeparator != "," {
		return invalid("decimal_separator", "decimal_separator must be '.' or ','")
	}
	if p.HeaderRow < 1 {
		return invalid("header_row", "header_row must be >= 1")
	}
	if p.StartRow < 1 {
		return invalid("start_row", "start_row must be >= 1")
	}
	switch p.FileType {
	case FileCSV, FileXLSX, FileXLS:
	default:
		return invalid("file_type", "unknown file_type '%s'", p.FileType)
	}
	switch p.AmountSchema {
	case SingleColumn, SeparateColumns, DebitCredit:
	default:
		return invalid("amount_schema", "unknown amount_schema '%s'", p.AmountSchema)
	}
	switch p.TypeDetection {
	case ByAmountSign, ByColumnType, ByExplicitField:
	default:
		return invalid("type_detection", "unknown type_detection '%s'", p.TypeDetection)
	}
	if _, err := htmlindex.Get(p.Encoding); err != nil {
		return invalid("encoding", "unsupported encoding '%s'", p.Encoding)
	}

	return validateMappings(p)
}

func validateMappings(p *Profile) error {
	if len(p.Mappings) == 0 {
		return invalid("mappings", "At least one column mapping is required")
	}

	seen := make(map[TargetField]bool, len(p.Mappings))
	for _, m := range p.Mappings {
		if !knownTargets[m.TargetField] {
			return invalid("mappings", "unknown target_field '%s'", m.TargetField)
		}
		if seen[m.TargetField] {
			return invalid("mappings", "target_field '%s' is mapped more than once", m.TargetField)
		}
		seen[m.TargetField] = true

		hasName := m.SourceColumnName != nil && *m.SourceColumnName != ""
		hasIndex := m.SourceColumnIndex != nil && *m.SourceColumnIndex >= 0
		if !hasName && !hasIndex {
			return invalid("mappings", "mapping must declare source_column_name or source_column_index")
		}
		if !p.HasHeader && !hasIndex {
			return invalid("mappings", "mapping for '%s' needs source_column_index when the file has no header", m.TargetField)
		}
		if m.RegexPattern != nil && *m.RegexPattern != "" {
			if _, err := regexp.Compile(*m.RegexPattern); err != nil {
				return invalid("mappings", "invalid regex_pattern for target '%s'", m.TargetField)
			}
		}
		if m.TransformationRule != nil && *m.TransformationRule != "" && !knownRules[*m.TransformationRule] {
			return invalid("mappings", "unknown transformation_rule '%s'", *m.TransformationRule)
		}
	}

	date := p.Mapping(TargetDate)
	if date == nil {
		return invalid("mappings", "Profile must contain a mapping with target 'date'")
	}
	if !date.IsRequired {
		return invalid("mappings", "Mapping with target 'date' must be required")
	}

	hasAmount := p.Has(TargetAmount)
	hasDebitCredit := p.Has(TargetDebitAmount, TargetCreditAmount)
	hasIncomeExpense := p.Has(TargetIncomeAmount, TargetExpenseAmount)
	anySplit := seen[TargetDebitAmount] || seen[TargetCreditAmount] || seen[TargetIncomeAmount] || seen[TargetExpenseAmount]

	if hasAmount && anySplit {
		return invalid("mappings", "Profile cannot mix 'amount' with split amount columns")
	}
	switch p.AmountSchema {
	case SingleColumn:
		if !hasAmount {
			return invalid("mappings", "Profile must contain a mapping with target 'amount' or a debit/credit or income/expense pair")
		}
	case SeparateColumns, DebitCredit:
		if !hasDebitCredit && !hasIncomeExpense {
			return invalid("mappings", "Profile must contain a mapping with target 'amount' or a debit/credit or income/expense pair")
		}
	}

	if p.TypeDetection == ByExplicitField && !seen[TargetTransactionType] {
		return invalid("mappings", "type_detection BY_EXPLICIT_FIELD requires a mapping with target 'transaction_type'")
	}
	return nil
}
