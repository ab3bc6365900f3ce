package builtins

import "testing"

func TestBM25ScoresMatchingDocHigher(t *testing.T) {
	corpus := NewBM25Corpus(map[string]string{
		"a": "the quick brown fox jumps over the lazy dog",
		"b": "a completely unrelated sentence about weather",
	})
	scoreA := corpus.Score("a", "quick fox")
	scoreB := corpus.Score("b", "quick fox")
	if scoreA <= scoreB {
		t.Errorf("expected doc a to score higher for 'quick fox': a=%v b=%v", scoreA, scoreB)
	}
}

func TestFuseWeightedSum(t *testing.T) {
	vec := []ScoredID{{ID: "x", Score: 1.0}, {ID: "y", Score: 0.0}}
	text := []ScoredID{{ID: "x", Score: 0.0}, {ID: "y", Score: 1.0}}
	out := Fuse(FusionWeightedSum, vec, text, 0.5, 0.5)
	if len(out) != 2 {
		t.Fatalf("expected 2 fused results, got %d", len(out))
	}
	if out[0].Score != out[1].Score {
		t.Errorf("expected equal weighted-sum scores for symmetric inputs, got %v vs %v", out[0].Score, out[1].Score)
	}
}

func TestFuseRRFFavorsTopRankedBoth(t *testing.T) {
	vec := []ScoredID{{ID: "x", Score: 10}, {ID: "y", Score: 1}}
	text := []ScoredID{{ID: "x", Score: 10}, {ID: "y", Score: 1}}
	out := Fuse(FusionRRF, vec, text, 0, 0)
	if out[0].ID != "x" {
		t.Errorf("expected x (top-ranked in both lists) to win RRF, got %q", out[0].ID)
	}
}
