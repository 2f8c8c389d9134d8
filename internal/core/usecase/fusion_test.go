package usecase

import (
	"math"
	"testing"

	"github.com/kirillkom/kb-retrieval/internal/core/domain"
)

func TestFuseRRFSumsContributionsAcrossSources(t *testing.T) {
	vector := []domain.SourceResult{
		{ID: "A", Similarity: 0.92},
		{ID: "B", Similarity: 0.88},
	}
	keyword := []domain.SourceResult{
		{ID: "B", Rank: -8.0},
		{ID: "C", Rank: -5.0},
	}

	fused := fuseRRF(vector, keyword, SourceWeights{Vector: 0.6, Keyword: 0.4}, 60)
	if len(fused) != 3 {
		t.Fatalf("expected 3 fused results, got %d", len(fused))
	}

	byID := map[string]domain.FusedResult{}
	for _, f := range fused {
		byID[f.ID] = f
	}

	wantB := 0.6/61 + 0.4/60
	if got := byID["B"].HybridScore; math.Abs(got-wantB) > 1e-12 {
		t.Fatalf("B fused score = %v, want %v", got, wantB)
	}
	if got := byID["A"].HybridScore; math.Abs(got-0.6/60) > 1e-12 {
		t.Fatalf("A fused score = %v, want %v", got, 0.6/60)
	}
	if got := byID["C"].HybridScore; math.Abs(got-0.4/61) > 1e-12 {
		t.Fatalf("C fused score = %v, want %v", got, 0.4/61)
	}

	if byID["B"].HybridScore <= byID["A"].HybridScore || byID["B"].HybridScore <= byID["C"].HybridScore {
		t.Fatalf("expected B to outrank A and C")
	}
	if fused[0].ID != "B" {
		t.Fatalf("expected B first, got %s", fused[0].ID)
	}

	if byID["A"].MatchType != domain.MatchVector {
		t.Fatalf("A match type = %s, want vector", byID["A"].MatchType)
	}
	if byID["B"].MatchType != domain.MatchBoth {
		t.Fatalf("B match type = %s, want both", byID["B"].MatchType)
	}
	if byID["C"].MatchType != domain.MatchKeyword {
		t.Fatalf("C match type = %s, want keyword", byID["C"].MatchType)
	}
}

func TestFuseRRFTieBreaksByVectorThenKeywordRank(t *testing.T) {
	// Same fused score from symmetric positions; the vector-ranked item
	// must come first.
	vector := []domain.SourceResult{{ID: "vec", Similarity: 0.9}}
	keyword := []domain.SourceResult{{ID: "kw", Rank: -3.0}}

	fused := fuseRRF(vector, keyword, SourceWeights{Vector: 0.5, Keyword: 0.5}, 60)
	if len(fused) != 2 {
		t.Fatalf("expected 2 fused results, got %d", len(fused))
	}
	if fused[0].ID != "vec" {
		t.Fatalf("expected vector-ranked item first on tie, got %s", fused[0].ID)
	}
}

func TestNormalizeKeywordRanksMoreNegativeIsBetter(t *testing.T) {
	scores := normalizeKeywordRanks([]domain.SourceResult{
		{ID: "best", Rank: -10},
		{ID: "mid", Rank: -6},
		{ID: "worst", Rank: -2},
	})
	if scores[0] != 1.0 {
		t.Fatalf("best rank should normalize to 1.0, got %v", scores[0])
	}
	if scores[2] != 0.0 {
		t.Fatalf("worst rank should normalize to 0.0, got %v", scores[2])
	}
	if scores[1] <= scores[2] || scores[1] >= scores[0] {
		t.Fatalf("middle rank should fall between, got %v", scores[1])
	}
}

func TestNormalizeKeywordRanksDegenerateCases(t *testing.T) {
	single := normalizeKeywordRanks([]domain.SourceResult{{ID: "only", Rank: -4}})
	if single[0] != 1.0 {
		t.Fatalf("single result should normalize to 1.0, got %v", single[0])
	}

	equal := normalizeKeywordRanks([]domain.SourceResult{
		{ID: "a", Rank: -4},
		{ID: "b", Rank: -4},
	})
	for i, s := range equal {
		if s != 1.0 {
			t.Fatalf("equal ranks should normalize to 1.0, index %d got %v", i, s)
		}
	}
}
