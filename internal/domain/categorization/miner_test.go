package categorization

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func labeled(sub uuid.UUID, descs ...string) []Labeled {
	out := make([]Labeled, len(descs))
	for i, d := range descs {
		out[i] = Labeled{Description: d, SubcategoryID: sub}
	}
	return out
}

func find(s []Suggestion, text string, t PatternType) (Suggestion, int) {
	for i, sg := range s {
		if sg.Pattern == text && sg.Type == t {
			return sg, i
		}
	}
	return Suggestion{}, -1
}

func groceryHistory(sub uuid.UUID) []Labeled {
	return labeled(sub,
		"Lider supermercado 001",
		"Jumbo supermercado centro",
		"Tottus supermercado",
		"Unimarc supermercado sur",
		"Acuenta supermercado",
		"Santa Isabel supermercado",
		"Mayorista supermercado 10",
		"Lider express 2",
		"Verduleria don pepe",
		"Panaderia Lider",
	)
}

func TestMiner_FrequentWordOutranksShortPrefix(t *testing.T) {
	groceries := uuid.New()
	got := NewMiner(DefaultPrefixMin, DefaultPrefixMax).Suggest(groceryHistory(groceries), 5, 0)
	require.NotEmpty(t, got)

	word, wordIdx := find(got, "supermercado", TypeContains)
	require.Equal(t, 0, wordIdx)
	assert.Equal(t, 7, word.Count)
	assert.InDelta(t, 0.7, word.Confidence, 1e-9)
	assert.Equal(t, groceries, word.SubcategoryID)
	assert.Equal(t, "Lider supermercado 001", word.SampleDescription)

	prefix, prefixIdx := find(got, "lide", TypeStartsWith)
	require.Greater(t, prefixIdx, wordIdx)
	assert.Equal(t, 2, prefix.Count)
	assert.InDelta(t, 0.2, prefix.Confidence, 1e-9)

	lider, liderIdx := find(got, "lider", TypeContains)
	require.Greater(t, liderIdx, 0)
	assert.Equal(t, 3, lider.Count)
	assert.Less(t, liderIdx, prefixIdx)
}

func TestMiner_PrefixRules(t *testing.T) {
	sub := uuid.New()
	got := NewMiner(DefaultPrefixMin, DefaultPrefixMax).Suggest(groceryHistory(sub), 1, 0)

	_, idx := find(got, "lider", TypeStartsWith)
	assert.GreaterOrEqual(t, idx, 0)
	_, idx = find(got, "lider ", TypeStartsWith)
	assert.Equal(t, -1, idx, "prefixes ending in whitespace are skipped")
	_, idx = find(got, "lider s", TypeStartsWith)
	assert.Equal(t, -1, idx, "a prefix seen once is not a candidate")

	short := NewMiner(4, 4).Suggest(groceryHistory(sub), 1, 0)
	_, idx = find(short, "lider", TypeStartsWith)
	assert.Equal(t, -1, idx, "prefix length is capped")
	_, idx = find(short, "lide", TypeStartsWith)
	assert.GreaterOrEqual(t, idx, 0)
}

func TestMiner_WordRules(t *testing.T) {
	sub := uuid.New()
	rows := labeled(sub, "pago de luz", "pago de agua", "Pago, de gas")
	got := NewMiner(DefaultPrefixMin, DefaultPrefixMax).Suggest(rows, 1, 0)

	pago, idx := find(got, "pago", TypeContains)
	require.GreaterOrEqual(t, idx, 0, "punctuation is trimmed from words")
	assert.Equal(t, 3, pago.Count)
	assert.InDelta(t, 1.0, pago.Confidence, 1e-9)

	_, idx = find(got, "de", TypeContains)
	assert.Equal(t, -1, idx, "words of two characters are ignored")
}

func TestMiner_MinOccurrencesAndLimit(t *testing.T) {
	big, small := uuid.New(), uuid.New()
	rows := append(groceryHistory(big), labeled(small, "netflix.com", "netflix.com")...)

	got := NewMiner(DefaultPrefixMin, DefaultPrefixMax).Suggest(rows, 3, 0)
	for _, s := range got {
		assert.Equal(t, big, s.SubcategoryID, "partition below min_occurrences is skipped")
	}

	limited := NewMiner(DefaultPrefixMin, DefaultPrefixMax).Suggest(rows, 3, 2)
	require.Len(t, limited, 2)
	assert.Equal(t, got[:2], limited)
}

func TestMiner_IgnoresUnlabeledAndBlank(t *testing.T) {
	rows := []Labeled{
		{Description: "uber trip", SubcategoryID: uuid.Nil},
		{Description: "   ", SubcategoryID: uuid.New()},
	}
	assert.Empty(t, NewMiner(0, 0).Suggest(rows, 1, 10))
}

func TestNewMiner_Defaults(t *testing.T) {
	m := NewMiner(0, 0)
	assert.Equal(t, DefaultPrefixMin, m.PrefixMin)
	assert.Equal(t, DefaultPrefixMax, m.PrefixMax)

	m = NewMiner(5, 12)
	assert.Equal(t, 5, m.PrefixMin)
	assert.Equal(t, 12, m.PrefixMax)
}
