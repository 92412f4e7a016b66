package qdrant

import (
	"hash/fnv"
	"math"
	"sort"
	"strings"
	"unicode"
)

type sparseVector struct {
	Indices []uint32  `json:"indices"`
	Values  []float32 `json:"values"`
}

func (v sparseVector) empty() bool {
	return len(v.Indices) == 0
}

const (
	docBM25K1      = 1.2
	queryBM25K     = 1.2
	titleBoost     = 1.5
	maxSparseTerms = 256
)

// encodeSparseDocument builds the lexical vector of a chunk. Title terms
// count for more than body terms.
func encodeSparseDocument(content string, title string) sparseVector {
	termFreq := make(map[uint32]float64, 64)
	appendTermFreq(termFreq, tokenizeAlphaNum(content), 1.0)
	appendTermFreq(termFreq, tokenizeAlphaNum(title), titleBoost)
	return termFreqToSparse(termFreq, docBM25K1)
}

func encodeSparseQuery(query string) sparseVector {
	termFreq := make(map[uint32]float64, 32)
	appendTermFreq(termFreq, tokenizeAlphaNum(query), 1.0)
	return termFreqToSparse(termFreq, queryBM25K)
}

func appendTermFreq(dst map[uint32]float64, tokens []string, tokenWeight float64) {
	for _, token := range tokens {
		if token == "" {
			continue
		}
		dst[hashToken(token)] += tokenWeight
	}
}

// termFreqToSparse saturates term frequencies BM25-style and keeps the
// heaviest maxSparseTerms terms, returned in index order.
func termFreqToSparse(tf map[uint32]float64, k float64) sparseVector {
	if len(tf) == 0 {
		return sparseVector{}
	}

	type term struct {
		idx    uint32
		weight float64
	}
	terms := make([]term, 0, len(tf))
	for idx, freq := range tf {
		weight := (freq * (k + 1.0)) / (freq + k)
		if math.IsNaN(weight) || math.IsInf(weight, 0) {
			weight = 0
		}
		terms = append(terms, term{idx: idx, weight: weight})
	}
	if len(terms) > maxSparseTerms {
		sort.Slice(terms, func(i, j int) bool {
			if terms[i].weight == terms[j].weight {
				return terms[i].idx < terms[j].idx
			}
			return terms[i].weight > terms[j].weight
		})
		terms = terms[:maxSparseTerms]
	}
	sort.Slice(terms, func(i, j int) bool { return terms[i].idx < terms[j].idx })

	out := sparseVector{
		Indices: make([]uint32, 0, len(terms)),
		Values:  make([]float32, 0, len(terms)),
	}
	for _, t := range terms {
		out.Indices = append(out.Indices, t.idx)
		out.Values = append(out.Values, float32(t.weight))
	}
	return out
}

func hashToken(token string) uint32 {
	h := fnv.New32a()
	_, _ = h.Write([]byte(token))
	sum := h.Sum32()
	if sum == 0 {
		return 1
	}
	return sum
}

func tokenizeAlphaNum(s string) []string {
	if s == "" {
		return nil
	}
	out := make([]string, 0, 24)
	var b strings.Builder
	for _, r := range s {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(unicode.ToLower(r))
			continue
		}
		if b.Len() > 0 {
			out = append(out, b.String())
			b.Reset()
		}
	}
	if b.Len() > 0 {
		out = append(out, b.String())
	}
	return out
}
