package dedup

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

var zeroWidth = runes.Predicate(func(r rune) bool {
	switch r {
	case '\u200b', '\u200c', '\u200d', '\ufeff':
		return true
	}
	return false
})

// Khmer sentence and repetition signs that unicode.IsPunct does not cover.
func isKhmerSign(r rune) bool {
	switch r {
	case '\u17d4', '\u17d5', '\u17d6', '\u17d7':
		return true
	}
	return false
}

// Normalize canonicalizes a title for comparison: NFC, no zero-width marks,
// punctuation turned into spaces, lowercase, single spaces.
func Normalize(text string) string {
	if text == "" {
		return ""
	}
	t := transform.Chain(runes.Remove(zeroWidth), norm.NFC)
	cleaned, _, err := transform.String(t, text)
	if err != nil {
		cleaned = text
	}

	var b strings.Builder
	b.Grow(len(cleaned))
	for _, r := range cleaned {
		if unicode.IsPunct(r) || isKhmerSign(r) {
			b.WriteRune(' ')
			continue
		}
		b.WriteRune(unicode.ToLower(r))
	}
	return strings.Join(strings.Fields(b.String()), " ")
}
