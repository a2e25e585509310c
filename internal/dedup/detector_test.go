package dedup

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newDetector(t *testing.T, tokenizer string) *Detector {
	t.Helper()
	d, err := NewDetector(Options{Tokenizer: tokenizer})
	require.NoError(t, err)
	return d
}

func TestNormalize(t *testing.T) {
	t.Parallel()

	cases := []struct{ in, want string }{
		{in: "Hello, World!", want: "hello world"},
		{in: "  PM\u200b announces  ", want: "pm announces"},
		{in: "ព័ត៌មាន\u17d4ថ្មី\u17d5", want: "ព័ត៌មាន ថ្មី"},
		{in: "\ufeffBreaking: \"Quake\"", want: "breaking quake"},
		{in: "", want: ""},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, Normalize(tc.in), tc.in)
	}
}

func TestIsDuplicateSelf(t *testing.T) {
	t.Parallel()

	titles := []string{
		"PM announces new policy",
		"ព័ត៌មានថ្មីៗពីភ្នំពេញ",
		"!!!",
		"a",
	}
	for _, tok := range []string{TokenizerWord, TokenizerNGram} {
		d := newDetector(t, tok)
		for _, title := range titles {
			m := d.IsDuplicate(title, []string{title})
			assert.True(t, m.Duplicate, "%s/%s", tok, title)
			assert.Equal(t, title, m.Title)
			assert.InDelta(t, 1.0, m.Score, 0)
		}
	}
}

func TestIsDuplicateNearMatch(t *testing.T) {
	t.Parallel()

	for _, tok := range []string{TokenizerWord, TokenizerNGram} {
		d := newDetector(t, tok)
		score := d.Similarity("PM announces new policy", "PM announces new policy today")
		assert.Greater(t, score, 0.85, tok)

		m := d.IsDuplicate("PM announces new policy today", []string{"Floods hit the north", "PM announces new policy"})
		assert.True(t, m.Duplicate, tok)
		assert.Equal(t, "PM announces new policy", m.Title)
	}
}

func TestIsDuplicateDistinct(t *testing.T) {
	t.Parallel()

	d := newDetector(t, TokenizerNGram)
	m := d.IsDuplicate("Floods hit northern provinces", []string{"Central bank raises interest rates"})
	assert.False(t, m.Duplicate)
	assert.Less(t, m.Score, d.Threshold())
}

func TestIsDuplicateEmpty(t *testing.T) {
	t.Parallel()

	d := newDetector(t, TokenizerNGram)
	assert.False(t, d.IsDuplicate("", []string{"", "x"}).Duplicate)
	assert.False(t, d.IsDuplicate("something new", nil).Duplicate)
}

func TestSimilaritySymmetric(t *testing.T) {
	t.Parallel()

	pairs := [][2]string{
		{"PM announces new policy", "PM announces new policy today"},
		{"Floods hit the north", "Northern floods hit farmers"},
		{"ព័ត៌មានថ្មី", "ព័ត៌មានថ្មីៗ ភ្នំពេញ"},
		{"", "anything"},
	}
	for _, tok := range []string{TokenizerWord, TokenizerNGram} {
		for _, p := range pairs {
			// fresh detectors so the memo cannot mask asymmetry
			ab := newDetector(t, tok).Similarity(p[0], p[1])
			ba := newDetector(t, tok).Similarity(p[1], p[0])
			assert.Equal(t, ab, ba, "%s %q %q", tok, p[0], p[1])
		}
	}
}

func TestCosineEmptyVectors(t *testing.T) {
	t.Parallel()

	assert.Zero(t, Cosine(nil, map[string]float64{"a": 1}))
	assert.Zero(t, Cosine(map[string]float64{}, map[string]float64{}))
}

func TestNGramTokens(t *testing.T) {
	t.Parallel()

	tok := NewNGramTokenizer(3, []string{"the"}, 2)
	assert.Equal(t, []string{"pm", "new", "new"}, tok.Tokens("the pm new"))
}

func TestWordTokensFilters(t *testing.T) {
	t.Parallel()

	tok := NewWordTokenizer([]string{"the"}, 2)
	assert.Equal(t, []string{"pm", "announces", "policy"}, tok.Tokens("the pm announces a policy"))
}

func TestUnknownTokenizer(t *testing.T) {
	t.Parallel()

	_, err := NewDetector(Options{Tokenizer: "bigram"})
	require.Error(t, err)
}
