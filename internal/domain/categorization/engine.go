package categorization

import (
	"bytes"
	"cmp"
	"regexp"
	"slices"
	"strings"

	"github.com/cloudflare/ahocorasick"
)

// Match is the first pattern that matched a description.
type Match struct {
	Pattern     Pattern
	MatchedText string
}

type compiled struct {
	Pattern
	needle string
	re     *regexp.Regexp
	inert  bool
}

// Engine evaluates a fixed set of patterns in priority order. It is
// immutable once compiled and safe for concurrent use.
//
// CONTAINS patterns are prefiltered with a single Aho-Corasick pass over the
// lower-cased description, so a description only pays for the substring
// checks whose needles actually occur in it.
type Engine struct {
	patterns []compiled
	matcher  *ahocorasick.Matcher
	// slot maps a pattern to its dictionary entry in matcher, or -1.
	slot []int
}

// SortForEvaluation orders patterns by priority descending, then name, then id.
func SortForEvaluation(patterns []Pattern) {
	slices.SortStableFunc(patterns, func(a, b Pattern) int {
		if c := cmp.Compare(b.Priority, a.Priority); c != 0 {
			return c
		}
		if c := strings.Compare(a.Name, b.Name); c != 0 {
			return c
		}
		return bytes.Compare(a.ID[:], b.ID[:])
	})
}

// Compile builds an engine over patterns. The caller decides which patterns
// take part (usually the user's active ones). A REGEX pattern that does not
// compile stays in the engine but never matches.
func Compile(patterns []Pattern) *Engine {
	sorted := slices.Clone(patterns)
	SortForEvaluation(sorted)

	e := &Engine{
		patterns: make([]compiled, 0, len(sorted)),
		slot:     make([]int, 0, len(sorted)),
	}
	dictionary := make(map[string]int)
	var needles [][]byte

	for _, p := range sorted {
		c := compiled{Pattern: p}
		slot := -1

		switch p.Type {
		case TypeRegex:
			re, err := compileRegex(p.Pattern, p.IsCaseSensitive)
			c.re = re
			c.inert = err != nil || len(p.Pattern) > MaxRegexLength
		default:
			c.needle = p.Pattern
			if !p.IsCaseSensitive {
				c.needle = strings.ToLower(p.Pattern)
			}
			c.inert = c.needle == "" || !p.Type.Valid()
		}

		if p.Type == TypeContains && !c.inert {
			key := strings.ToLower(p.Pattern)
			idx, ok := dictionary[key]
			if !ok {
				idx = len(needles)
				dictionary[key] = idx
				needles = append(needles, []byte(key))
			}
			slot = idx
		}

		e.patterns = append(e.patterns, c)
		e.slot = append(e.slot, slot)
	}

	if len(needles) > 0 {
		e.matcher = ahocorasick.NewMatcher(needles)
	}
	return e
}

// input is a description prepared once for every pattern it is tested against.
type input struct {
	raw   string
	lower string
	hits  map[int]bool
}

func (e *Engine) prepare(description string) input {
	in := input{raw: truncate(description)}
	in.lower = strings.ToLower(in.raw)
	if e.matcher != nil {
		found := e.matcher.MatchThreadSafe([]byte(in.lower))
		in.hits = make(map[int]bool, len(found))
		for _, idx := range found {
			in.hits[idx] = true
		}
	}
	return in
}

// test reports whether pattern i matches and the text it matched.
func (e *Engine) test(i int, in input) (string, bool) {
	c := &e.patterns[i]
	if c.inert {
		return "", false
	}

	text := in.raw
	if !c.IsCaseSensitive {
		text = in.lower
	}

	switch c.Type {
	case TypeContains:
		if slot := e.slot[i]; slot >= 0 && !in.hits[slot] {
			return "", false
		}
		idx := strings.Index(text, c.needle)
		if idx < 0 {
			return "", false
		}
		return in.span(text, idx, len(c.needle)), true
	case TypeStartsWith:
		return c.Pattern.Pattern, strings.HasPrefix(text, c.needle)
	case TypeEndsWith:
		return c.Pattern.Pattern, strings.HasSuffix(text, c.needle)
	case TypeExact:
		return c.Pattern.Pattern, text == c.needle
	case TypeRegex:
		loc := c.re.FindStringIndex(in.raw)
		if loc == nil {
			return "", false
		}
		return in.raw[loc[0]:loc[1]], true
	}
	return "", false
}

// span returns the matched bytes from the original description when
// lower-casing kept byte offsets intact.
func (in input) span(text string, idx, n int) string {
	if len(in.lower) == len(in.raw) {
		return in.raw[idx : idx+n]
	}
	return text[idx : idx+n]
}

// Match returns the first pattern in evaluation order that matches, or nil.
func (e *Engine) Match(description string) *Match {
	if len(e.patterns) == 0 {
		return nil
	}
	in := e.prepare(description)
	for i := range e.patterns {
		if text, ok := e.test(i, in); ok {
			return &Match{Pattern: e.patterns[i].Pattern, MatchedText: text}
		}
	}
	return nil
}

// MatchBatch runs Match over many descriptions.
func (e *Engine) MatchBatch(descriptions []string) []*Match {
	results := make([]*Match, len(descriptions))
	for i, d := range descriptions {
		results[i] = e.Match(d)
	}
	return results
}

// Evaluate tests every pattern, in evaluation order.
func (e *Engine) Evaluate(description string) []Evaluation {
	in := e.prepare(description)
	out := make([]Evaluation, len(e.patterns))
	for i := range e.patterns {
		c := &e.patterns[i]
		ev := Evaluation{
			PatternID:     c.ID,
			Name:          c.Name,
			Type:          c.Type,
			Priority:      c.Priority,
			SubcategoryID: c.SubcategoryID,
		}
		if c.inert && c.Type == TypeRegex {
			ev.Error = "invalid regex"
		}
		ev.MatchedText, ev.Matched = e.test(i, in)
		if !ev.Matched {
			ev.MatchedText = ""
		}
		out[i] = ev
	}
	return out
}

// Len returns the number of compiled patterns.
func (e *Engine) Len() int { return len(e.patterns) }

// truncate cuts s to its first MaxMatchInput characters.
func truncate(s string) string {
	n := 0
	for i := range s {
		if n == MaxMatchInput {
			return s[:i]
		}
		n++
	}
	return s
}
