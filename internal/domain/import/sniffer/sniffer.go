// Package sniffer detects the layout of bank statement files: delimiter,
// header row, column roles and regional number/date dialect. It also derives
// the header fingerprint recorded on every file import.
package sniffer

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"strings"
	"unicode"
)

// Common bank statement header keywords (multi-language)
var headerKeywords = []string{
	// Portuguese
	"data mov", "descrição", "descricao", "débito", "debito", "crédito", "credito",
	"data valor", "saldo", "categoria", "valor",
	// English
	"date", "description", "amount", "debit", "credit", "balance", "category", "merchant", "reference",
	// Spanish
	"fecha", "descripción", "descripcion", "detalle", "glosa", "importe", "monto", "cargo", "abono",
	"referencia", "documento",
}

var delimiters = []rune{';', '\t', ',', '|'}

var (
	ErrEmptyFile        = errors.New("file is empty")
	ErrNoHeadersFound   = errors.New("could not find data headers")
	ErrInvalidDelimiter = errors.New("could not detect valid delimiter")
)

// Layout is the detected shape of a statement grid.
type Layout struct {
	Delimiter   rune       // zero for workbooks
	HeaderIndex int        // 0-based index of the header record
	Headers     []string   // trimmed header cells
	Fingerprint string     // sha256 of the normalized headers
	SampleRows  [][]string // first data rows after the header
}

// HeaderRow returns the 1-based header row number.
func (l *Layout) HeaderRow() int { return l.HeaderIndex + 1 }

// DetectDelimiter picks the delimiter that appears most often in the first
// non-empty lines of text.
func DetectDelimiter(text string) (rune, error) {
	counts := make(map[rune]int, len(delimiters))
	for i, line := range strings.Split(text, "\n") {
		if i > 20 {
			break
		}
		line = cleanLine(line, i == 0)
		if line == "" {
			continue
		}
		d, n := detectDelimiter(line)
		if n > 0 {
			counts[d] += n
		}
	}
	best, bestCount := rune(0), 0
	for _, d := range delimiters {
		if counts[d] > bestCount {
			best, bestCount = d, counts[d]
		}
	}
	if best == 0 {
		return 0, ErrInvalidDelimiter
	}
	return best, nil
}

// DetectLayout locates the header among the first depth records of grid.
func DetectLayout(grid [][]string, depth int) (*Layout, error) {
	if len(grid) == 0 {
		return nil, ErrEmptyFile
	}
	idx, err := FindHeaderRow(grid, depth)
	if err != nil {
		return nil, err
	}
	return LayoutAt(grid, idx), nil
}

// LayoutAt builds the layout for a known header index.
func LayoutAt(grid [][]string, idx int) *Layout {
	headers := make([]string, len(grid[idx]))
	for i, h := range grid[idx] {
		headers[i] = strings.TrimSpace(strings.TrimPrefix(h, "\uFEFF"))
	}
	end := min(idx+1+5, len(grid))
	return &Layout{
		HeaderIndex: idx,
		Headers:     headers,
		Fingerprint: Fingerprint(headers),
		SampleRows:  grid[idx+1 : end],
	}
}

// FindHeaderRow returns the 0-based index of the record that most looks like
// a header: lines carrying header keywords win, wider lines break ties, and
// without any keyword the widest line is used.
func FindHeaderRow(grid [][]string, depth int) (int, error) {
	if depth <= 0 {
		depth = 20
	}

	keywordIndex, keywordScore, keywordCount := -1, 0, 0
	fallbackIndex, fallbackCount := -1, 0

	for i, record := range grid {
		if i >= depth {
			break
		}
		count := nonEmpty(record)
		if count == 0 {
			continue
		}
		lower := strings.ToLower(strings.Join(record, " "))
		matches := 0
		for _, kw := range headerKeywords {
			if strings.Contains(lower, kw) {
				matches++
			}
		}

		if matches > 0 {
			score := count*10 + matches
			if keywordIndex == -1 || score > keywordScore {
				keywordIndex, keywordScore, keywordCount = i, score, count
			}
		} else if count > fallbackCount {
			fallbackIndex, fallbackCount = i, count
		}
	}

	if keywordIndex >= 0 && keywordCount >= 2 {
		return keywordIndex, nil
	}
	if fallbackIndex >= 0 && fallbackCount >= 2 {
		return fallbackIndex, nil
	}
	return 0, ErrNoHeadersFound
}

// Fingerprint hashes the normalized header names so files exported by the
// same bank produce the same value.
func Fingerprint(headers []string) string {
	var normalized []string
	for _, h := range headers {
		clean := strings.Map(func(r rune) rune {
			if unicode.IsLetter(r) || unicode.IsDigit(r) {
				return unicode.ToLower(r)
			}
			return -1
		}, h)
		if clean != "" {
			normalized = append(normalized, clean)
		}
	}
	hash := sha256.Sum256([]byte(strings.Join(normalized, "|")))
	return hex.EncodeToString(hash[:])
}

func nonEmpty(record []string) int {
	n := 0
	for _, c := range record {
		if strings.TrimSpace(c) != "" {
			n++
		}
	}
	return n
}

func cleanLine(line string, firstLine bool) string {
	line = strings.TrimRight(line, "\r")
	if firstLine {
		line = strings.TrimPrefix(line, "\uFEFF")
	}
	return strings.TrimSpace(line)
}

func detectDelimiter(line string) (rune, int) {
	bestDelimiter := rune(0)
	bestCount := 0
	for _, d := range delimiters {
		count := strings.Count(line, string(d))
		if count > bestCount {
			bestCount = count
			bestDelimiter = d
		}
	}
	return bestDelimiter, bestCount
}
