package dedup

import (
	"fmt"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/rivo/uniseg"
)

// Tokenizer splits a normalized title into comparison tokens.
type Tokenizer interface {
	Tokens(normalized string) []string
}

// Tokenizer names accepted by NewTokenizer.
const (
	TokenizerWord  = "word"
	TokenizerNGram = "ngram"
)

var defaultStopwords = []string{
	// Khmer function words
	"និង", "នៃ", "បាន", "ជា", "គឺ", "ដែល", "ក្នុង", "លើ", "ដោយ", "មាន",
	"មិន", "ថា", "នេះ", "នោះ", "មួយ", "ពីរ", "បី", "សំរាប់", "អំពី",
	"នៅ", "ក៏", "តែ", "នូវ", "ហើយ", "ឬ", "ឯ", "ផង", "ដែរ", "ចំពោះ",
	"ដើម្បី", "ដូច", "គ្នា", "អ្វី", "យ៉ាង", "ណា", "បន្ទាប់", "មក",
	// English
	"a", "an", "the", "of", "to", "in", "on", "at", "by", "for", "and", "or", "is", "are", "was", "with", "as",
}

// DefaultStopwords returns a copy of the built-in stopword list.
func DefaultStopwords() []string {
	out := make([]string, len(defaultStopwords))
	copy(out, defaultStopwords)
	return out
}

type filter struct {
	stop   map[string]struct{}
	minLen int
}

func newFilter(stopwords []string, minLen int) filter {
	stop := make(map[string]struct{}, len(stopwords))
	for _, w := range stopwords {
		stop[strings.ToLower(w)] = struct{}{}
	}
	return filter{stop: stop, minLen: minLen}
}

func (f filter) keep(tok string) bool {
	if _, ok := f.stop[tok]; ok {
		return false
	}
	return utf8.RuneCountInString(tok) >= f.minLen
}

// WordTokenizer segments text on UAX #29 word boundaries, which handles
// scripts written without spaces better than strings.Fields.
type WordTokenizer struct {
	filter filter
}

// NewWordTokenizer builds a word tokenizer.
func NewWordTokenizer(stopwords []string, minLen int) *WordTokenizer {
	return &WordTokenizer{filter: newFilter(stopwords, minLen)}
}

// Tokens implements Tokenizer.
func (w *WordTokenizer) Tokens(normalized string) []string {
	var (
		tokens []string
		state  = -1
		word   string
		rest   = normalized
	)
	for len(rest) > 0 {
		word, rest, state = uniseg.FirstWordInString(rest, state)
		if !hasLetterOrDigit(word) {
			continue
		}
		if w.filter.keep(word) {
			tokens = append(tokens, word)
		}
	}
	return tokens
}

// NGramTokenizer emits every whole word plus its character n-grams.
type NGramTokenizer struct {
	n      int
	filter filter
}

// NewNGramTokenizer builds a character n-gram tokenizer.
func NewNGramTokenizer(n int, stopwords []string, minLen int) *NGramTokenizer {
	if n < 2 {
		n = 3
	}
	return &NGramTokenizer{n: n, filter: newFilter(stopwords, minLen)}
}

// Tokens implements Tokenizer.
func (g *NGramTokenizer) Tokens(normalized string) []string {
	var tokens []string
	for _, word := range strings.Fields(normalized) {
		if !g.filter.keep(word) {
			continue
		}
		tokens = append(tokens, word)
		rs := []rune(word)
		if len(rs) < g.n {
			continue
		}
		for i := 0; i+g.n <= len(rs); i++ {
			tokens = append(tokens, string(rs[i:i+g.n]))
		}
	}
	return tokens
}

// NewTokenizer resolves a tokenizer by name.
func NewTokenizer(name string, n int, stopwords []string, minLen int) (Tokenizer, error) {
	if stopwords == nil {
		stopwords = defaultStopwords
	}
	switch name {
	case TokenizerWord:
		return NewWordTokenizer(stopwords, minLen), nil
	case TokenizerNGram, "":
		return NewNGramTokenizer(n, stopwords, minLen), nil
	default:
		return nil, fmt.Errorf("unknown tokenizer %q", name)
	}
}

func hasLetterOrDigit(s string) bool {
	for _, r := range s {
		if unicode.IsLetter(r) || unicode.IsDigit(r) || unicode.Is(unicode.Mn, r) || unicode.Is(unicode.Mc, r) {
			return true
		}
	}
	return false
}
