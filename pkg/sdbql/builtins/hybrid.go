package builtins

import (
	"math"
	"sort"
	"strings"
)

// Tokenize lowercases and splits text on runs of non-alphanumeric
// characters, the tokenizer FULLTEXT/BM25 and full-text indexing share.
func Tokenize(text string) []string {
	text = strings.ToLower(text)
	var tokens []string
	var cur strings.Builder
	flush := func() {
		if cur.Len() > 0 {
			tokens = append(tokens, cur.String())
			cur.Reset()
		}
	}
	for _, r := range text {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			cur.WriteRune(r)
		} else {
			flush()
		}
	}
	flush()
	return tokens
}

// BM25Corpus precomputes the document-frequency statistics Score
// needs across one scored document set.
type BM25Corpus struct {
	docTokens map[string][]string
	docFreq   map[string]int
	avgLen    float64
}

// NewBM25Corpus builds a corpus from docID -> field text.
func NewBM25Corpus(texts map[string]string) *BM25Corpus {
	c := &BM25Corpus{docTokens: make(map[string][]string), docFreq: make(map[string]int)}
	var total int
	for id, text := range texts {
		toks := Tokenize(text)
		c.docTokens[id] = toks
		total += len(toks)
		seen := make(map[string]bool)
		for _, t := range toks {
			if !seen[t] {
				c.docFreq[t]++
				seen[t] = true
			}
		}
	}
	if len(texts) > 0 {
		c.avgLen = float64(total) / float64(len(texts))
	}
	return c
}

const (
	bm25K1 = 1.2
	bm25B  = 0.75
)

// Score computes BM25(docID, query) against the corpus.
func (c *BM25Corpus) Score(docID, query string) float64 {
	toks, ok := c.docTokens[docID]
	if !ok || len(toks) == 0 {
		return 0
	}
	n := len(c.docTokens)
	tf := make(map[string]int)
	for _, t := range toks {
		tf[t]++
	}
	docLen := float64(len(toks))

	var score float64
	for _, qt := range Tokenize(query) {
		df := c.docFreq[qt]
		if df == 0 {
			continue
		}
		idf := math.Log(1 + (float64(n)-float64(df)+0.5)/(float64(df)+0.5))
		f := float64(tf[qt])
		denom := f + bm25K1*(1-bm25B+bm25B*docLen/maxFloat(c.avgLen, 1))
		if denom == 0 {
			continue
		}
		score += idf * (f * (bm25K1 + 1)) / denom
	}
	return score
}

func maxFloat(a, b float64) float64 {
	if a > b {
		return a
	}
	return b
}

// FusionMethod selects how Fuse combines a vector-search rank list with
// a full-text rank list.
type FusionMethod string

const (
	FusionWeightedSum FusionMethod = "weighted_sum"
	FusionRRF         FusionMethod = "rrf"
)

// ScoredID is one candidate's identity plus its raw score, as produced
// by a single-modality ranking (vector or full-text).
type ScoredID struct {
	ID    string
	Score float64
}

// rrfK is the standard reciprocal-rank-fusion damping constant.
const rrfK = 60.0

// Fuse combines vecResults and textResults into one ranked list per
// spec.md §4.M's HYBRID_SEARCH, normalizing each modality's scores to
// [0,1] before combining under weighted-sum, or using rank position
// directly under RRF.
func Fuse(method FusionMethod, vecResults, textResults []ScoredID, vecWeight, textWeight float64) []ScoredID {
	combined := make(map[string]float64)

	switch method {
	case FusionRRF:
		for rank, r := range vecResults {
			combined[r.ID] += 1 / (rrfK + float64(rank+1))
		}
		for rank, r := range textResults {
			combined[r.ID] += 1 / (rrfK + float64(rank+1))
		}
	default: // weighted sum
		vecNorm := normalizeScores(vecResults)
		textNorm := normalizeScores(textResults)
		for id, s := range vecNorm {
			combined[id] += vecWeight * s
		}
		for id, s := range textNorm {
			combined[id] += textWeight * s
		}
	}

	out := make([]ScoredID, 0, len(combined))
	for id, s := range combined {
		out = append(out, ScoredID{ID: id, Score: s})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Score != out[j].Score {
			return out[i].Score > out[j].Score
		}
		return out[i].ID < out[j].ID
	})
	return out
}

func normalizeScores(results []ScoredID) map[string]float64 {
	out := make(map[string]float64, len(results))
	if len(results) == 0 {
		return out
	}
	min, max := results[0].Score, results[0].Score
	for _, r := range results {
		if r.Score < min {
			min = r.Score
		}
		if r.Score > max {
			max = r.Score
		}
	}
	span := max - min
	for _, r := range results {
		if span == 0 {
			out[r.ID] = 1
		} else {
			out[r.ID] = (r.Score - min) / span
		}
	}
	return out
}
