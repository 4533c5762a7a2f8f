package sniffer

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/FACorreiaa/money-diary/internal/domain/profile"
)

func TestFindHeaderRow(t *testing.T) {
	tests := []struct {
		name    string
		grid    [][]string
		want    int
		wantErr error
	}{
		{
			name: "header on first line",
			grid: [][]string{{"fecha", "descripcion", "monto"}, {"2024-01-15", "Super", "-100.50"}},
			want: 0,
		},
		{
			name: "metadata before header",
			grid: [][]string{
				{"Banco de Chile"},
				{"Cuenta", "0012345"},
				{"Fecha", "Descripción", "Monto"},
				{"2024-01-15", "Super", "-100,50"},
			},
			want: 2,
		},
		{
			name: "no keywords uses widest line",
			grid: [][]string{{"x"}, {"a", "b", "c"}, {"1", "2"}},
			want: 1,
		},
		{
			name:    "single column file",
			grid:    [][]string{{"only"}, {"one"}},
			wantErr: ErrNoHeadersFound,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := FindHeaderRow(tt.grid, 20)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestFindHeaderRow_RespectsDepth(t *testing.T) {
	grid := [][]string{{"x"}, {"y"}, {"fecha", "monto"}}
	_, err := FindHeaderRow(grid, 2)
	assert.ErrorIs(t, err, ErrNoHeadersFound)
}

func TestDetectDelimiter(t *testing.T) {
	tests := []struct {
		name string
		text string
		want rune
	}{
		{"comma", "fecha,descripcion,monto\n2024-01-15,Super,-100.50", ','},
		{"semicolon with decimal commas", "fecha;descripcion;monto\n15/01/2024;Super;-100,50", ';'},
		{"tab", "fecha\tmonto\n2024-01-15\t5", '\t'},
		{"pipe", "\uFEFFfecha|monto\n2024-01-15|5", '|'},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := DetectDelimiter(tt.text)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}

	_, err := DetectDelimiter("no delimiters here")
	assert.ErrorIs(t, err, ErrInvalidDelimiter)
}

func TestFingerprint_IgnoresCaseAndPunctuation(t *testing.T) {
	a := Fingerprint([]string{"Fecha", "Descripción", "Monto ($)"})
	b := Fingerprint([]string{" fecha ", "DESCRIPCIÓN", "monto"})
	c := Fingerprint([]string{"Fecha", "Monto"})

	assert.Equal(t, a, b)
	assert.NotEqual(t, a, c)
	assert.Len(t, a, 64)
}

func TestDetectLayout(t *testing.T) {
	grid := [][]string{
		{"Cartola"},
		{"\uFEFFFecha", " Detalle ", "Débito", "Crédito"},
		{"2024-03-02", "Pago luz", "55000", ""},
		{"2024-03-05", "Sueldo", "", "1200000"},
	}

	layout, err := DetectLayout(grid, 20)
	require.NoError(t, err)
	assert.Equal(t, 1, layout.HeaderIndex)
	assert.Equal(t, 2, layout.HeaderRow())
	assert.Equal(t, []string{"Fecha", "Detalle", "Débito", "Crédito"}, layout.Headers)
	assert.Len(t, layout.SampleRows, 2)

	_, err = DetectLayout(nil, 20)
	assert.ErrorIs(t, err, ErrEmptyFile)
}

func TestSuggestColumns(t *testing.T) {
	s := SuggestColumns([]string{"Fecha", "Detalle", "Débito", "Crédito", "N° Documento"})
	assert.Equal(t, 0, s.DateCol)
	assert.Equal(t, 1, s.DescCol)
	assert.Equal(t, 2, s.DebitCol)
	assert.Equal(t, 3, s.CreditCol)
	assert.Equal(t, 4, s.ReferenceCol)
	assert.Equal(t, -1, s.AmountCol)
	assert.True(t, s.IsDoubleEntry)

	s = SuggestColumns([]string{"Date", "Description", "Amount"})
	assert.Equal(t, 2, s.AmountCol)
	assert.False(t, s.IsDoubleEntry)
}

func TestProbeDialect(t *testing.T) {
	tests := []struct {
		name       string
		rows       [][]string
		wantSep    rune
		wantFormat string
	}{
		{
			name:       "european amounts and day-first dates",
			rows:       [][]string{{"15/01/2024", "1.234,56"}, {"16/01/2024", "-10,00"}},
			wantSep:    ',',
			wantFormat: "DD/MM/YYYY",
		},
		{
			name:       "us amounts and iso dates",
			rows:       [][]string{{"2024-01-15", "1,234.56"}, {"2024-01-16", "-10.00"}},
			wantSep:    '.',
			wantFormat: "YYYY-MM-DD",
		},
		{
			name:       "dashed european dates",
			rows:       [][]string{{"25-12-2024", "€ 12,50"}},
			wantSep:    ',',
			wantFormat: "DD-MM-YYYY",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := ProbeDialect(tt.rows, 1, 0)
			assert.Equal(t, tt.wantSep, d.DecimalSeparator)
			assert.Equal(t, tt.wantFormat, d.DateFormat)
		})
	}
}

func TestSuggestProfile(t *testing.T) {
	layout := LayoutAt([][]string{
		{"fecha", "descripcion", "monto"},
		{"2024-01-15", "Supermercado", "-100.50"},
		{"2024-01-16", "Deposito salario", "2500.00"},
	}, 0)
	layout.Delimiter = ','

	draft, ok := SuggestProfile(layout, profile.FileCSV)
	require.True(t, ok)

	p := draft.Profile
	assert.Equal(t, profile.SingleColumn, p.AmountSchema)
	assert.Equal(t, ",", p.Delimiter)
	assert.Equal(t, ".", p.DecimalSeparator)
	assert.Equal(t, 1, p.HeaderRow)
	assert.Equal(t, 2, p.StartRow)
	require.NotNil(t, p.DateFormat)
	assert.Equal(t, "YYYY-MM-DD", *p.DateFormat)
	require.NotNil(t, p.Mapping(profile.TargetAmount))
	assert.Equal(t, 2, *p.Mapping(profile.TargetAmount).SourceColumnIndex)
	assert.NoError(t, profile.Validate(p))
}

func TestSuggestProfile_DebitCredit(t *testing.T) {
	layout := LayoutAt([][]string{{"Fecha", "Detalle", "Débito", "Crédito"}}, 0)

	draft, ok := SuggestProfile(layout, profile.FileXLSX)
	require.True(t, ok)
	assert.Equal(t, profile.DebitCredit, draft.Profile.AmountSchema)
	assert.True(t, draft.Profile.Has(profile.TargetDebitAmount, profile.TargetCreditAmount))
	assert.NoError(t, profile.Validate(draft.Profile))
}

func TestSuggestProfile_MissingColumns(t *testing.T) {
	_, ok := SuggestProfile(LayoutAt([][]string{{"Detalle", "Saldo"}}, 0), profile.FileCSV)
	assert.False(t, ok)
}
