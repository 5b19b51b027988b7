package retrieval

import (
	"math"
	"strings"
	"unicode"
)

const (
	DefaultK1 = 1.2
	DefaultB  = 0.75
)

// BM25Params are the term frequency saturation (K1) and length
// normalisation (B) tunables.
type BM25Params struct {
	K1 float64
	B  float64
}

func (p BM25Params) withDefaults() BM25Params {
	if p.K1 <= 0 {
		p.K1 = DefaultK1
	}
	if p.B < 0 || p.B > 1 {
		p.B = DefaultB
	}
	return p
}

var stopWords = map[string]bool{
	"a": true, "an": true, "and": true, "are": true, "as": true, "at": true,
	"be": true, "by": true, "for": true, "from": true, "in": true, "is": true,
	"it": true, "of": true, "on": true, "or": true, "the": true, "to": true,
	"with": true,
}

// Tokenize lowercases text and splits it on anything that is not a letter or
// digit. Stop words are dropped.
func Tokenize(text string) []string {
	fields := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	tokens := fields[:0]
	for _, f := range fields {
		if !stopWords[f] {
			tokens = append(tokens, f)
		}
	}
	return tokens
}

type bm25Doc struct {
	key    int
	length int
	tf     map[string]int
}

// BM25Index is an immutable inverted index. Build it once per corpus
// snapshot; Score is safe for concurrent use.
type BM25Index struct {
	params    BM25Params
	docs      []bm25Doc
	df        map[string]int
	avgLength float64
}

// NewBM25Index indexes texts; keys[i] identifies texts[i] in score results.
func NewBM25Index(params BM25Params, keys []int, texts []string) *BM25Index {
	idx := &BM25Index{
		params: params.withDefaults(),
		docs:   make([]bm25Doc, 0, len(texts)),
		df:     make(map[string]int),
	}
	var total int
	for i, text := range texts {
		tokens := Tokenize(text)
		tf := make(map[string]int, len(tokens))
		for _, t := range tokens {
			tf[t]++
		}
		for t := range tf {
			idx.df[t]++
		}
		idx.docs = append(idx.docs, bm25Doc{key: keys[i], length: len(tokens), tf: tf})
		total += len(tokens)
	}
	if len(idx.docs) > 0 {
		idx.avgLength = float64(total) / float64(len(idx.docs))
	}
	return idx
}

func (idx *BM25Index) Len() int {
	return len(idx.docs)
}

// idf uses the smoothed form that never goes negative for very common terms.
func (idx *BM25Index) idf(term string) float64 {
	n := float64(len(idx.docs))
	df := float64(idx.df[term])
	return math.Log(1 + (n-df+0.5)/(df+0.5))
}

// Score returns the positive BM25 score of every document keyed by its key.
// Documents with no query term are omitted.
func (idx *BM25Index) Score(query string) map[int]float64 {
	terms := Tokenize(query)
	if len(terms) == 0 || len(idx.docs) == 0 {
		return nil
	}
	seen := make(map[string]bool, len(terms))
	unique := terms[:0]
	for _, t := range terms {
		if !seen[t] && idx.df[t] > 0 {
			seen[t] = true
			unique = append(unique, t)
		}
	}
	if len(unique) == 0 {
		return nil
	}

	k1, b := idx.params.K1, idx.params.B
	scores := make(map[int]float64)
	for _, doc := range idx.docs {
		var score float64
		norm := 1.0
		if idx.avgLength > 0 {
			norm = 1 - b + b*float64(doc.length)/idx.avgLength
		}
		for _, t := range unique {
			tf := float64(doc.tf[t])
			if tf == 0 {
				continue
			}
			score += idx.idf(t) * (tf * (k1 + 1)) / (tf + k1*norm)
		}
		if score > 0 && score > scores[doc.key] {
			scores[doc.key] = score
		}
	}
	return scores
}
