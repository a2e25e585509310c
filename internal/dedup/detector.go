package dedup

import (
	"fmt"
	"maps"
	"math"
	"slices"

	lru "github.com/hashicorp/golang-lru/v2"
)

// DefaultThreshold is the similarity at or above which titles are duplicates.
const DefaultThreshold = 0.8

// Match is the outcome of a duplicate check.
type Match struct {
	Duplicate bool
	Title     string
	Score     float64
}

// Options configures a Detector.
type Options struct {
	Threshold      float64
	Tokenizer      string
	NGram          int
	MinTokenLength int
	Stopwords      []string
	CacheSize      int
}

// Detector finds near-duplicate titles with TF cosine similarity.
// It is safe for concurrent use.
type Detector struct {
	threshold float64
	tokenizer Tokenizer
	memo      *lru.Cache[[2]string, float64]
}

// NewDetector builds a detector; zero options fall back to defaults.
func NewDetector(opts Options) (*Detector, error) {
	if opts.Threshold <= 0 {
		opts.Threshold = DefaultThreshold
	}
	if opts.NGram <= 0 {
		opts.NGram = 3
	}
	if opts.MinTokenLength <= 0 {
		opts.MinTokenLength = 2
	}
	if opts.CacheSize <= 0 {
		opts.CacheSize = 4096
	}
	tok, err := NewTokenizer(opts.Tokenizer, opts.NGram, opts.Stopwords, opts.MinTokenLength)
	if err != nil {
		return nil, err
	}
	memo, err := lru.New[[2]string, float64](opts.CacheSize)
	if err != nil {
		return nil, fmt.Errorf("similarity cache: %w", err)
	}
	return &Detector{threshold: opts.Threshold, tokenizer: tok, memo: memo}, nil
}

// Threshold returns the configured duplicate threshold.
func (d *Detector) Threshold() float64 {
	return d.threshold
}

// IsDuplicate compares candidate against recent in order and stops at the
// first title whose similarity reaches the threshold.
func (d *Detector) IsDuplicate(candidate string, recent []string) Match {
	if candidate == "" {
		return Match{}
	}
	norm := Normalize(candidate)
	for _, title := range recent {
		if title == candidate || (norm != "" && Normalize(title) == norm) {
			return Match{Duplicate: true, Title: title, Score: 1.0}
		}
	}
	if norm == "" {
		return Match{}
	}

	candVec := d.vector(norm)
	best := Match{}
	for _, title := range recent {
		other := Normalize(title)
		if other == "" {
			continue
		}
		score := d.similarity(norm, other, candVec)
		if score > best.Score {
			best = Match{Title: title, Score: score}
		}
		if score >= d.threshold {
			best.Duplicate = true
			return best
		}
	}
	return best
}

// Similarity returns the cosine similarity of two raw titles.
func (d *Detector) Similarity(a, b string) float64 {
	na, nb := Normalize(a), Normalize(b)
	return d.similarity(na, nb, nil)
}

func (d *Detector) similarity(a, b string, aVec map[string]float64) float64 {
	key := memoKey(a, b)
	if v, ok := d.memo.Get(key); ok {
		return v
	}
	if aVec == nil {
		aVec = d.vector(a)
	}
	score := Cosine(aVec, d.vector(b))
	d.memo.Add(key, score)
	return score
}

func (d *Detector) vector(normalized string) map[string]float64 {
	return TermFrequency(d.tokenizer.Tokens(normalized))
}

// memoKey orders the pair so sim(a,b) and sim(b,a) share an entry.
func memoKey(a, b string) [2]string {
	if b < a {
		a, b = b, a
	}
	return [2]string{a, b}
}

// TermFrequency builds a relative frequency vector.
func TermFrequency(tokens []string) map[string]float64 {
	if len(tokens) == 0 {
		return map[string]float64{}
	}
	counts := make(map[string]float64, len(tokens))
	for _, t := range tokens {
		counts[t]++
	}
	total := float64(len(tokens))
	for k := range counts {
		counts[k] /= total
	}
	return counts
}

// Cosine computes dot(a,b)/(|a||b|), zero when either vector is empty.
// Terms are summed in sorted order so the result does not depend on map
// iteration or argument order.
func Cosine(a, b map[string]float64) float64 {
	if len(a) == 0 || len(b) == 0 {
		return 0
	}
	var dot float64
	for _, k := range slices.Sorted(maps.Keys(a)) {
		if vb, ok := b[k]; ok {
			dot += a[k] * vb
		}
	}
	na, nb := norm2(a), norm2(b)
	if na == 0 || nb == 0 {
		return 0
	}
	score := dot / (na * nb)
	if score > 1 {
		score = 1
	}
	return score
}

func norm2(v map[string]float64) float64 {
	var sum float64
	for _, k := range slices.Sorted(maps.Keys(v)) {
		sum += v[k] * v[k]
	}
	return math.Sqrt(sum)
}
