package retrieval

import (
	"math"
	"sort"
	"strings"
)

// BM25 Okapi parameters.
const (
	bm25K1      = 1.5
	bm25B       = 0.75
	bm25Epsilon = 0.25
)

// bm25Index is an Okapi BM25 index over a tokenized corpus. Fields are
// exported for gob serialization; the struct is otherwise internal to the
// package.
type bm25Index struct {
	CorpusSize int
	AvgDocLen  float64
	DocLens    []int
	TermFreqs  []map[string]int
	IDF        map[string]float64
}

// newBM25 builds the index from an already tokenized corpus.
func newBM25(corpus [][]string) *bm25Index {
	idx := &bm25Index{
		CorpusSize: len(corpus),
		DocLens:    make([]int, len(corpus)),
		TermFreqs:  make([]map[string]int, len(corpus)),
		IDF:        make(map[string]float64),
	}
	docFreq := make(map[string]int)
	total := 0
	for i, doc := range corpus {
		idx.DocLens[i] = len(doc)
		total += len(doc)
		tf := make(map[string]int, len(doc))
		for _, term := range doc {
			tf[term]++
		}
		idx.TermFreqs[i] = tf
		for term := range tf {
			docFreq[term]++
		}
	}
	if idx.CorpusSize > 0 {
		idx.AvgDocLen = float64(total) / float64(idx.CorpusSize)
	}

	// Okapi IDF with the rank_bm25 negative-IDF floor: terms whose IDF goes
	// negative are clamped to epsilon times the average IDF.
	var idfSum float64
	var negative []string
	n := float64(idx.CorpusSize)
	for term, df := range docFreq {
		idf := math.Log((n - float64(df) + 0.5) / (float64(df) + 0.5))
		idx.IDF[term] = idf
		idfSum += idf
		if idf < 0 {
			negative = append(negative, term)
		}
	}
	if len(docFreq) > 0 {
		eps := bm25Epsilon * idfSum / float64(len(docFreq))
		for _, term := range negative {
			idx.IDF[term] = eps
		}
	}
	return idx
}

// scores returns the BM25 score of the query against every document.
func (x *bm25Index) scores(query []string) []float64 {
	out := make([]float64, x.CorpusSize)
	for _, term := range query {
		idf, ok := x.IDF[term]
		if !ok {
			continue
		}
		for i, tf := range x.TermFreqs {
			f := float64(tf[term])
			if f == 0 {
				continue
			}
			norm := 1 - bm25B + bm25B*float64(x.DocLens[i])/x.AvgDocLen
			out[i] += idf * f * (bm25K1 + 1) / (f + bm25K1*norm)
		}
	}
	return out
}

// tokenize lowercases and splits on whitespace. This must match the
// tokenization used when the index was built.
func tokenize(text string) []string {
	return strings.Fields(strings.ToLower(text))
}

// topPositive returns the indices of the top n positive scores, descending.
func topPositive(scores []float64, n int) []int {
	idxs := make([]int, 0, len(scores))
	for i, s := range scores {
		if s > 0 {
			idxs = append(idxs, i)
		}
	}
	sort.SliceStable(idxs, func(a, b int) bool { return scores[idxs[a]] > scores[idxs[b]] })
	if len(idxs) > n {
		idxs = idxs[:n]
	}
	return idxs
}
