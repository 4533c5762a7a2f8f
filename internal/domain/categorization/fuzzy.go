package categorization

import (
	"github.com/google/uuid"
	"github.com/lithammer/fuzzysearch/fuzzy"
)

// maxNearDistance is the largest edit distance at which an existing pattern
// still counts as the same text as a candidate it is a subsequence of.
const maxNearDistance = 2

// FilterCovered drops suggestions the user's existing patterns already take
// care of: either the candidate's sample description is classified into the
// same subcategory by the current patterns, or an existing pattern for that
// subcategory is a near-identical spelling of the candidate ("supermercad"
// against "supermercado").
func FilterCovered(suggestions []Suggestion, existing []Pattern) []Suggestion {
	if len(existing) == 0 {
		return suggestions
	}
	engine := Compile(existing)
	bySub := make(map[uuid.UUID][]string)
	for _, p := range existing {
		bySub[p.SubcategoryID] = append(bySub[p.SubcategoryID], p.Pattern)
	}

	out := suggestions[:0:0]
	for _, s := range suggestions {
		if m := engine.Match(s.SampleDescription); m != nil && m.Pattern.SubcategoryID == s.SubcategoryID {
			continue
		}
		if nearDuplicate(s.Pattern, bySub[s.SubcategoryID]) {
			continue
		}
		out = append(out, s)
	}
	return out
}

func nearDuplicate(candidate string, patterns []string) bool {
	near := func(source, target string) bool {
		rank := fuzzy.RankMatchNormalizedFold(source, target)
		return rank >= 0 && rank <= maxNearDistance
	}
	for _, p := range patterns {
		if near(p, candidate) || near(candidate, p) {
			return true
		}
	}
	return false
}
