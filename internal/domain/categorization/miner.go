package categorization

import (
	"cmp"
	"slices"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/google/uuid"
)

const (
	DefaultPrefixMin = 4
	DefaultPrefixMax = 19

	minWordLength = 3
	minSupport    = 2
)

// Labeled is a classified description from the user's history.
type Labeled struct {
	Description   string
	SubcategoryID uuid.UUID
}

// Miner proposes patterns from classified history.
type Miner struct {
	PrefixMin int
	PrefixMax int
}

// NewMiner returns a miner for prefixes of prefixMin..prefixMax characters.
// Out-of-range values fall back to the defaults.
func NewMiner(prefixMin, prefixMax int) Miner {
	if prefixMin < 1 {
		prefixMin = DefaultPrefixMin
	}
	if prefixMax < prefixMin {
		prefixMax = max(DefaultPrefixMax, prefixMin)
	}
	return Miner{PrefixMin: prefixMin, PrefixMax: prefixMax}
}

type candidate struct {
	count  int
	sample string
}

// Suggest partitions rows by subcategory and, for every partition with at
// least minOccurrences rows, emits frequent words as CONTAINS candidates and
// shared prefixes as STARTS_WITH candidates. The best limit candidates are
// returned, ranked by confidence and then occurrence count.
func (m Miner) Suggest(rows []Labeled, minOccurrences, limit int) []Suggestion {
	partitions := make(map[uuid.UUID][]string)
	var order []uuid.UUID
	for _, r := range rows {
		d := strings.Join(strings.Fields(r.Description), " ")
		if d == "" || r.SubcategoryID == uuid.Nil {
			continue
		}
		if _, ok := partitions[r.SubcategoryID]; !ok {
			order = append(order, r.SubcategoryID)
		}
		partitions[r.SubcategoryID] = append(partitions[r.SubcategoryID], d)
	}

	var out []Suggestion
	for _, sub := range order {
		descs := partitions[sub]
		if len(descs) < minOccurrences {
			continue
		}
		size := float64(len(descs))
		emit := func(t PatternType, found map[string]*candidate, keys []string) {
			for _, k := range keys {
				c := found[k]
				if c.count < minSupport {
					continue
				}
				out = append(out, Suggestion{
					Pattern:           k,
					Type:              t,
					SubcategoryID:     sub,
					Count:             c.count,
					Confidence:        min(float64(c.count)/size, 1.0),
					SampleDescription: c.sample,
				})
			}
		}

		words, wordKeys := frequentWords(descs)
		emit(TypeContains, words, wordKeys)
		prefixes, prefixKeys := m.commonPrefixes(descs)
		emit(TypeStartsWith, prefixes, prefixKeys)
	}

	rankSuggestions(out)
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}

// frequentWords counts, per word longer than two characters, the number of
// descriptions containing it.
func frequentWords(descs []string) (map[string]*candidate, []string) {
	found := make(map[string]*candidate)
	var keys []string
	for _, d := range descs {
		seen := make(map[string]bool)
		for _, w := range strings.Fields(strings.ToLower(d)) {
			w = strings.TrimFunc(w, func(r rune) bool { return !unicode.IsLetter(r) && !unicode.IsDigit(r) })
			if utf8.RuneCountInString(w) < minWordLength || seen[w] {
				continue
			}
			seen[w] = true
			c, ok := found[w]
			if !ok {
				c = &candidate{sample: d}
				found[w] = c
				keys = append(keys, w)
			}
			c.count++
		}
	}
	return found, keys
}

// commonPrefixes counts lower-cased prefixes of PrefixMin up to
// min(PrefixMax, longest description) characters. A prefix ending in
// whitespace is skipped; the one a rune shorter already covers it.
func (m Miner) commonPrefixes(descs []string) (map[string]*candidate, []string) {
	longest := 0
	lowered := make([][]rune, len(descs))
	for i, d := range descs {
		lowered[i] = []rune(strings.ToLower(d))
		longest = max(longest, len(lowered[i]))
	}

	found := make(map[string]*candidate)
	var keys []string
	for n := m.PrefixMin; n <= min(m.PrefixMax, longest); n++ {
		for i, r := range lowered {
			if len(r) < n || unicode.IsSpace(r[n-1]) {
				continue
			}
			p := string(r[:n])
			c, ok := found[p]
			if !ok {
				c = &candidate{sample: descs[i]}
				found[p] = c
				keys = append(keys, p)
			}
			c.count++
		}
	}
	return found, keys
}

func rankSuggestions(s []Suggestion) {
	slices.SortStableFunc(s, func(a, b Suggestion) int {
		if c := cmp.Compare(b.Confidence, a.Confidence); c != 0 {
			return c
		}
		if c := cmp.Compare(b.Count, a.Count); c != 0 {
			return c
		}
		// more specific first on ties
		if a.Type != b.Type {
			if a.Type == TypeContains {
				return -1
			}
			if b.Type == TypeContains {
				return 1
			}
		}
		if c := cmp.Compare(len(b.Pattern), len(a.Pattern)); c != 0 {
			return c
		}
		return strings.Compare(a.Pattern, b.Pattern)
	})
}
