package normalizer

import (
	"math"
	"strconv"
	"strings"
	"time"
)

// dateLayouts is the fixed parse order for statement dates. Unpadded
// variants follow their padded form.
var dateLayouts = []string{
	"2006-01-02",
	"02/01/2006", "2/1/2006",
	"02-01-2006", "2-1-2006",
	"01/02/2006", "1/2/2006",
	"02/01/06", "2/1/06",
	"20060102",
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
	"02/01/2006 15:04:05",
	"02.01.2006",
	"2006/01/02",
}

var excelEpoch = time.Date(1899, 12, 30, 0, 0, 0, 0, time.UTC)

// Serial day numbers Excel can represent (1900-01-01 .. 9999-12-31).
const (
	minSerial = 1
	maxSerial = 2958465
)

// Layout translates a date format written with YYYY/YY/MM/DD tokens (or
// strftime verbs) into a Go layout. Strings that are already Go layouts pass
// through unchanged.
func Layout(format string) string {
	r := strings.NewReplacer(
		"YYYY", "2006", "yyyy", "2006",
		"%Y", "2006", "%y", "06", "%m", "01", "%d", "02",
		"YY", "06", "yy", "06",
		"MM", "01",
		"DD", "02", "dd", "02",
	)
	return r.Replace(strings.TrimSpace(format))
}

// DateParser parses statement dates, trying a preferred layout first.
type DateParser struct {
	layouts []string
}

// NewDateParser builds a parser that tries format (if any) before the fixed
// layouts.
func NewDateParser(format *string) DateParser {
	layouts := dateLayouts
	if format != nil && strings.TrimSpace(*format) != "" {
		layouts = append([]string{Layout(*format)}, dateLayouts...)
	}
	return DateParser{layouts: layouts}
}

// Parse returns the date in value at midnight UTC. Numeric values that no
// layout accepts are read as Excel serial day numbers.
func (p DateParser) Parse(value string) (time.Time, bool) {
	v := strings.TrimSpace(value)
	if v == "" {
		return time.Time{}, false
	}
	for _, layout := range p.layouts {
		if t, err := time.Parse(layout, v); err == nil {
			return midnight(t), true
		}
	}
	return fromSerial(v)
}

func fromSerial(v string) (time.Time, bool) {
	f, err := strconv.ParseFloat(v, 64)
	if err != nil || math.IsNaN(f) || f < minSerial || f > maxSerial {
		return time.Time{}, false
	}
	return excelEpoch.AddDate(0, 0, int(math.Floor(f))), true
}

func midnight(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}
