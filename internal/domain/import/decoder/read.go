package decoder

import (
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"github.com/extrame/xls"
	"github.com/gocarina/gocsv"
	"github.com/xuri/excelize/v2"
	"golang.org/x/text/encoding/htmlindex"
	"golang.org/x/text/transform"

	"github.com/FACorreiaa/money-diary/internal/apperr"
	"github.com/FACorreiaa/money-diary/internal/domain/import/sniffer"
	"github.com/FACorreiaa/money-diary/internal/domain/profile"
)

const sniffWindow = 1024

var (
	zipMagic = []byte("PK\x03\x04")
	oleMagic = []byte{0xD0, 0xCF, 0x11, 0xE0, 0xA1, 0xB1, 0x1A, 0xE1}
)

// Options control how raw bytes are turned into a grid of cells.
type Options struct {
	Delimiter rune   // zero detects it from the text
	Encoding  string // WHATWG label, empty means utf-8
	Sheet     string // workbook sheet, empty means the first one
}

// Grid is a file read into records. Records keep their source position:
// Records[i] is row i+1 of the file, blank lines included.
type Grid struct {
	Format    profile.FileType
	Records   [][]string
	Delimiter rune
	// Native is set for workbooks, whose numeric cells carry machine
	// formatted values rather than localized text.
	Native bool
}

// FormatOf picks the reader for a file from its suffix, falling back to the
// content when the suffix is unknown.
func FormatOf(filename string, data []byte) profile.FileType {
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".csv", ".txt", ".tsv":
		return profile.FileCSV
	case ".xlsx", ".xlsm":
		return profile.FileXLSX
	case ".xls":
		return profile.FileXLS
	}
	switch {
	case bytes.HasPrefix(data, zipMagic):
		return profile.FileXLSX
	case bytes.HasPrefix(data, oleMagic):
		return profile.FileXLS
	case looksDelimited(data):
		return profile.FileCSV
	default:
		return profile.FileXLSX
	}
}

// looksDelimited reports whether the start of data, read as UTF-8, contains
// a field delimiter.
func looksDelimited(data []byte) bool {
	head := data[:min(len(data), sniffWindow)]
	return strings.ContainsAny(string(bytes.ToValidUTF8(head, nil)), ",;\t")
}

// ReadGrid reads data into a grid of trimmed cells.
func ReadGrid(data []byte, filename string, opts Options) (*Grid, error) {
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, ErrEmptyFile
	}

	format := FormatOf(filename, data)
	if format == profile.FileCSV {
		return readCSV(data, opts)
	}

	records, actual, err := readWorkbook(data, format, opts.Sheet)
	if err != nil {
		return nil, err
	}
	return &Grid{Format: actual, Records: records, Native: true}, nil
}

func readCSV(data []byte, opts Options) (*Grid, error) {
	text, err := decodeText(data, opts.Encoding)
	if err != nil {
		return nil, err
	}

	delimiter := opts.Delimiter
	if delimiter == 0 {
		if delimiter, err = sniffer.DetectDelimiter(text); err != nil {
			delimiter = ','
		}
	}

	reader := gocsv.LazyCSVReader(strings.NewReader(text))
	cr, ok := reader.(*csv.Reader)
	if !ok {
		return nil, apperr.Internal(errors.New("unexpected csv reader"), "could not read csv")
	}
	cr.Comma = delimiter
	cr.FieldsPerRecord = -1

	var records [][]string
	for {
		record, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			var perr *csv.ParseError
			if errors.As(err, &perr) {
				return nil, apperr.Parse("malformed csv at line %d: %v", perr.StartLine, perr.Err)
			}
			return nil, apperr.Parse("could not read csv: %v", err)
		}

		// blank lines are skipped by the reader; keep records on their
		// physical line so row numbers match the file
		line, _ := cr.FieldPos(0)
		for len(records) < line-1 {
			records = append(records, nil)
		}
		records = append(records, trimAll(record))
	}

	if len(records) == 0 {
		return nil, ErrEmptyFile
	}
	return &Grid{Format: profile.FileCSV, Records: records, Delimiter: delimiter}, nil
}

// decodeText converts data from the named encoding to UTF-8 and drops a
// leading byte order mark.
func decodeText(data []byte, encoding string) (string, error) {
	if encoding == "" {
		encoding = "utf-8"
	}
	enc, err := htmlindex.Get(encoding)
	if err != nil {
		return "", apperr.WithField(apperr.Parse("unsupported encoding '%s'", encoding), "encoding")
	}

	name, _ := htmlindex.Name(enc)
	if name != "utf-8" {
		decoded, _, err := transform.Bytes(enc.NewDecoder(), data)
		if err != nil {
			return "", apperr.Parse("could not decode file as %s", encoding)
		}
		data = decoded
	}
	data = bytes.TrimPrefix(data, []byte("\uFEFF"))
	if !utf8.Valid(data) {
		data = bytes.ToValidUTF8(data, []byte("\uFFFD"))
	}
	return string(data), nil
}

// readWorkbook tries the reader matching format first and the other binary
// reader second, since banks often export one under the other's suffix.
func readWorkbook(data []byte, format profile.FileType, sheet string) ([][]string, profile.FileType, error) {
	readers := []struct {
		format profile.FileType
		read   func([]byte, string) ([][]string, error)
	}{
		{profile.FileXLSX, readXLSX},
		{profile.FileXLS, readXLS},
	}
	if format == profile.FileXLS {
		readers[0], readers[1] = readers[1], readers[0]
	}

	var firstErr error
	for _, r := range readers {
		records, err := r.read(data, sheet)
		if err == nil {
			return records, r.format, nil
		}
		if errors.Is(err, errSheetNotFound) {
			return nil, "", apperr.WithField(apperr.Parse("sheet '%s' not found", sheet), "sheet_name")
		}
		if firstErr == nil {
			firstErr = err
		}
	}

	if looksDelimited(data) {
		return nil, "", ErrLooksLikeCSV
	}
	return nil, "", apperr.Parse("could not read workbook: %v", firstErr)
}

var errSheetNotFound = errors.New("sheet not found")

func readXLSX(data []byte, sheet string) ([][]string, error) {
	opts := excelize.Options{RawCellValue: true}
	f, err := excelize.OpenReader(bytes.NewReader(data), opts)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, errors.New("workbook has no sheets")
	}
	name := sheets[0]
	if sheet != "" {
		if idx, _ := f.GetSheetIndex(sheet); idx < 0 {
			return nil, errSheetNotFound
		}
		name = sheet
	}

	rows, err := f.GetRows(name, opts)
	if err != nil {
		return nil, fmt.Errorf("read sheet %s: %w", name, err)
	}
	for i := range rows {
		rows[i] = trimAll(rows[i])
	}
	return rows, nil
}

func readXLS(data []byte, sheet string) (records [][]string, err error) {
	// the BIFF reader panics on some malformed inputs
	defer func() {
		if r := recover(); r != nil {
			records, err = nil, fmt.Errorf("malformed xls: %v", r)
		}
	}()

	wb, err := xls.OpenReader(bytes.NewReader(data), "utf-8")
	if err != nil {
		return nil, err
	}

	var ws *xls.WorkSheet
	for i := 0; i < wb.NumSheets(); i++ {
		s := wb.GetSheet(i)
		if s == nil {
			continue
		}
		if sheet == "" || s.Name == sheet {
			ws = s
			break
		}
	}
	if ws == nil {
		if sheet != "" {
			return nil, errSheetNotFound
		}
		return nil, errors.New("workbook has no sheets")
	}

	for i := 0; i <= int(ws.MaxRow); i++ {
		row := ws.Row(i)
		if row == nil {
			records = append(records, nil)
			continue
		}
		record := make([]string, 0, row.LastCol()+1)
		for c := 0; c <= row.LastCol(); c++ {
			record = append(record, strings.TrimSpace(row.Col(c)))
		}
		records = append(records, trimTrailing(record))
	}
	return records, nil
}

func trimAll(record []string) []string {
	for i, c := range record {
		record[i] = strings.TrimSpace(c)
	}
	return record
}

func trimTrailing(record []string) []string {
	end := len(record)
	for end > 0 && record[end-1] == "" {
		end--
	}
	return record[:end]
}
