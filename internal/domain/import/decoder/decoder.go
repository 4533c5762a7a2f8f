// Package decoder turns an uploaded statement (CSV, XLSX or XLS) into an
// ordered sequence of raw rows keyed by the profile's target fields.
package decoder

import (
	"fmt"
	"iter"
	"slices"
	"strings"

	"github.com/FACorreiaa/money-diary/internal/apperr"
	"github.com/FACorreiaa/money-diary/internal/domain/import/sniffer"
	"github.com/FACorreiaa/money-diary/internal/domain/profile"
)

// DefaultHeaderSearchDepth is how many leading rows are scanned for a header
// when the configured header row lacks a named column.
const DefaultHeaderSearchDepth = 20

var (
	ErrEmptyFile    = apperr.New(apperr.KindValidation, "FILE_EMPTY", "file is empty")
	ErrLooksLikeCSV = apperr.New(apperr.KindParse, "FILE_IS_CSV", "file appears to be CSV, not Excel")
)

// RawRow is one source row with its cells resolved to target fields.
type RawRow struct {
	Number int                            // 1-based row in the source file
	Cells  map[profile.TargetField]string // trimmed, empty when the column is absent
	Raw    map[string]string              // header (or column_N) to cell
	Native bool                           // cells come from a workbook
}

// Empty reports whether every mapped cell is blank.
func (r RawRow) Empty() bool {
	for _, v := range r.Cells {
		if v != "" {
			return false
		}
	}
	return true
}

// Table is a decoded file ready for row iteration.
type Table struct {
	Format      profile.FileType
	Header      []string
	HeaderRow   int // 1-based, zero without a header
	Fingerprint string

	records   [][]string
	start     int // index of the first data record
	columns   map[profile.TargetField]int
	native    bool
	skipEmpty bool
}

// Rows yields the data rows in file order.
func (t *Table) Rows() iter.Seq[RawRow] {
	return func(yield func(RawRow) bool) {
		for i := t.start; i < len(t.records); i++ {
			record := t.records[i]
			if t.skipEmpty && blank(record) {
				continue
			}
			if !yield(t.row(i, record)) {
				return
			}
		}
	}
}

// Count returns how many rows Rows will yield.
func (t *Table) Count() int {
	n := 0
	for range t.Rows() {
		n++
	}
	return n
}

func (t *Table) row(i int, record []string) RawRow {
	r := RawRow{
		Number: i + 1,
		Cells:  make(map[profile.TargetField]string, len(t.columns)),
		Raw:    make(map[string]string, len(record)),
		Native: t.native,
	}
	for target, col := range t.columns {
		r.Cells[target] = cell(record, col)
	}
	for c, v := range record {
		r.Raw[t.columnName(c)] = v
	}
	return r
}

func (t *Table) columnName(c int) string {
	if c < len(t.Header) && t.Header[c] != "" {
		return t.Header[c]
	}
	return fmt.Sprintf("column_%d", c+1)
}

// Decoder reads statement files under a profile.
type Decoder struct {
	HeaderSearchDepth int
}

// Decode reads data with the default header search depth.
func Decode(data []byte, filename string, p *profile.Profile) (*Table, error) {
	return Decoder{}.Decode(data, filename, p)
}

// Decode reads data under p and resolves its mappings to columns.
func (d Decoder) Decode(data []byte, filename string, p *profile.Profile) (*Table, error) {
	opts := Options{Encoding: p.Encoding}
	if p.Delimiter != "" {
		opts.Delimiter = []rune(p.Delimiter)[0]
	}
	if p.SheetName != nil {
		opts.Sheet = *p.SheetName
	}

	grid, err := ReadGrid(data, filename, opts)
	if err != nil {
		return nil, err
	}

	t := &Table{
		Format:    grid.Format,
		records:   grid.Records,
		native:    grid.Native,
		skipEmpty: p.SkipEmptyRows,
		start:     max(p.StartRow-1, 0),
	}

	if !p.HasHeader {
		t.columns = indexColumns(p)
		t.Fingerprint = sniffer.Fingerprint(nil)
		return t, nil
	}

	headerIdx := p.HeaderRow - 1
	if headerIdx < 0 || headerIdx >= len(grid.Records) {
		return nil, apperr.Parse("header row %d is beyond the end of the file", p.HeaderRow)
	}

	columns, missing := resolveColumns(p, grid.Records[headerIdx])
	if missing != "" {
		idx, ok := d.searchHeader(p, grid.Records)
		if !ok {
			return nil, apperr.Parse("column '%s' not found in header", missing)
		}
		headerIdx = idx
		columns, _ = resolveColumns(p, grid.Records[headerIdx])
	}

	t.Header = grid.Records[headerIdx]
	t.HeaderRow = headerIdx + 1
	t.Fingerprint = sniffer.Fingerprint(t.Header)
	t.columns = columns
	t.start = max(t.start, headerIdx+1)
	return t, nil
}

// resolveColumns maps every target to its column in header. Names match
// case-sensitively; a mapping whose name is absent falls back to its index.
// missing names the first required column that could not be placed.
func resolveColumns(p *profile.Profile, header []string) (map[profile.TargetField]int, string) {
	columns := make(map[profile.TargetField]int, len(p.Mappings))
	missing := ""
	for _, m := range p.Mappings {
		if m.SourceColumnName != nil && *m.SourceColumnName != "" {
			if idx := slices.Index(header, strings.TrimSpace(*m.SourceColumnName)); idx >= 0 {
				columns[m.TargetField] = idx
				continue
			}
		}
		if m.SourceColumnIndex != nil && *m.SourceColumnIndex >= 0 {
			columns[m.TargetField] = *m.SourceColumnIndex
			continue
		}
		if m.IsRequired && missing == "" && m.SourceColumnName != nil {
			missing = *m.SourceColumnName
		}
	}
	return columns, missing
}

// searchHeader looks for the first row holding every named required column.
func (d Decoder) searchHeader(p *profile.Profile, records [][]string) (int, bool) {
	depth := d.HeaderSearchDepth
	if depth <= 0 {
		depth = DefaultHeaderSearchDepth
	}

	var names []string
	for _, m := range p.Mappings {
		if m.IsRequired && m.SourceColumnName != nil && *m.SourceColumnName != "" {
			names = append(names, strings.TrimSpace(*m.SourceColumnName))
		}
	}

	for i := 0; i < min(depth, len(records)); i++ {
		found := true
		for _, n := range names {
			if !slices.Contains(records[i], n) {
				found = false
				break
			}
		}
		if found {
			return i, true
		}
	}
	return 0, false
}

func indexColumns(p *profile.Profile) map[profile.TargetField]int {
	columns := make(map[profile.TargetField]int, len(p.Mappings))
	for _, m := range p.Mappings {
		if m.SourceColumnIndex != nil && *m.SourceColumnIndex >= 0 {
			columns[m.TargetField] = *m.SourceColumnIndex
		}
	}
	return columns
}

func cell(record []string, col int) string {
	if col < 0 || col >= len(record) {
		return ""
	}
	return record[col]
}

func blank(record []string) bool {
	for _, c := range record {
		if c != "" {
			return false
		}
	}
	return true
}
