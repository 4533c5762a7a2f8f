package profile

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/FACorreiaa/money-diary/internal/apperr"
)

func strPtr(s string) *string { return &s }
func intPtr(i int) *int       { return &i }

func named(target TargetField, column string, required bool) ColumnMapping {
	return ColumnMapping{TargetField: target, SourceColumnName: strPtr(column), IsRequired: required}
}

func validProfile() *Profile {
	p := &Profile{
		AccountID:        uuid.New(),
		Name:             "Banco Estado",
		HasHeader:        true,
		AmountSchema:     SingleColumn,
		PositiveIsIncome: true,
		HeaderRow:        1,
		StartRow:         2,
		Mappings: []ColumnMapping{
			named(TargetDate, "fecha", true),
			named(TargetDescription, "descripcion", false),
			named(TargetAmount, "monto", true),
		},
	}
	p.ApplyDefaults()
	return p
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(p *Profile)
		wantErr string
	}{
		{"valid single column", func(p *Profile) {}, ""},
		{
			"valid debit credit",
			func(p *Profile) {
				p.AmountSchema = DebitCredit
				p.Mappings = []ColumnMapping{
					named(TargetDate, "Fecha", true),
					named(TargetDebitAmount, "Débito", false),
					named(TargetCreditAmount, "Crédito", false),
				}
			},
			"",
		},
		{
			"valid separate income expense",
			func(p *Profile) {
				p.AmountSchema = SeparateColumns
				p.Mappings = []ColumnMapping{
					named(TargetDate, "Fecha", true),
					named(TargetIncomeAmount, "Ingreso", false),
					named(TargetExpenseAmount, "Gasto", false),
				}
			},
			"",
		},
		{"no mappings", func(p *Profile) { p.Mappings = nil }, "At least one column mapping is required"},
		{
			"missing date",
			func(p *Profile) { p.Mappings = p.Mappings[1:] },
			"Profile must contain a mapping with target 'date'",
		},
		{
			"optional date",
			func(p *Profile) { p.Mappings[0].IsRequired = false },
			"Mapping with target 'date' must be required",
		},
		{
			"single column without amount",
			func(p *Profile) { p.Mappings = p.Mappings[:2] },
			"Profile must contain a mapping with target 'amount' or a debit/credit or income/expense pair",
		},
		{
			"split schema with half pair",
			func(p *Profile) {
				p.AmountSchema = DebitCredit
				p.Mappings = []ColumnMapping{named(TargetDate, "Fecha", true), named(TargetDebitAmount, "Débito", false)}
			},
			"Profile must contain a mapping with target 'amount' or a debit/credit or income/expense pair",
		},
		{
			"amount mixed with split",
			func(p *Profile) { p.Mappings = append(p.Mappings, named(TargetCreditAmount, "abono", false)) },
			"Profile cannot mix 'amount' with split amount columns",
		},
		{"bad delimiter", func(p *Profile) { p.Delimiter = ":" }, "delimiter must be one of"},
		{"bad decimal", func(p *Profile) { p.DecimalSeparator = "'" }, "decimal_separator must be '.' or ','"},
		{"header row zero", func(p *Profile) { p.HeaderRow = 0 }, "header_row must be >= 1"},
		{"start row zero", func(p *Profile) { p.StartRow = 0 }, "start_row must be >= 1"},
		{"unknown schema", func(p *Profile) { p.AmountSchema = "TRIPLE" }, "unknown amount_schema 'TRIPLE'"},
		{"unknown detection", func(p *Profile) { p.TypeDetection = "GUESS" }, "unknown type_detection 'GUESS'"},
		{"unknown file type", func(p *Profile) { p.FileType = "pdf" }, "unknown file_type 'pdf'"},
		{"unknown encoding", func(p *Profile) { p.Encoding = "klingon-8" }, "unsupported encoding 'klingon-8'"},
		{"latin1 encoding", func(p *Profile) { p.Encoding = "ISO-8859-1" }, ""},
		{
			"unknown target",
			func(p *Profile) { p.Mappings = append(p.Mappings, named("balance", "saldo", false)) },
			"unknown target_field 'balance'",
		},
		{
			"duplicate target",
			func(p *Profile) { p.Mappings = append(p.Mappings, named(TargetDescription, "glosa", false)) },
			"target_field 'description' is mapped more than once",
		},
		{
			"no source column",
			func(p *Profile) { p.Mappings[1].SourceColumnName = nil },
			"mapping must declare source_column_name or source_column_index",
		},
		{
			"headerless needs index",
			func(p *Profile) { p.HasHeader = false },
			"needs source_column_index when the file has no header",
		},
		{
			"bad regex",
			func(p *Profile) { p.Mappings[1].RegexPattern = strPtr("([") },
			"invalid regex_pattern for target 'description'",
		},
		{
			"bad rule",
			func(p *Profile) { p.Mappings[2].TransformationRule = strPtr("double") },
			"unknown transformation_rule 'double'",
		},
		{
			"explicit field without column",
			func(p *Profile) { p.TypeDetection = ByExplicitField },
			"requires a mapping with target 'transaction_type'",
		},
		{
			"index only mapping",
			func(p *Profile) {
				p.HasHeader = false
				p.StartRow = 1
				for i := range p.Mappings {
					p.Mappings[i].SourceColumnName = nil
					p.Mappings[i].SourceColumnIndex = intPtr(i)
				}
			},
			"",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := validProfile()
			tt.mutate(p)

			err := Validate(p)
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
			assert.Equal(t, apperr.KindValidation, apperr.KindOf(err))
		})
	}
}

func TestSameSettings(t *testing.T) {
	a := validProfile()
	b := validProfile()
	b.AccountID = a.AccountID
	b.ID = uuid.New()
	b.Mappings[0].ID = uuid.New()

	assert.True(t, SameSettings(a, b))

	b.Mappings[2].TransformationRule = strPtr(RuleNegative)
	assert.False(t, SameSettings(a, b))
}
