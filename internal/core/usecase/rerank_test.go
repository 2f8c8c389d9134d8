package usecase

import (
	"context"
	"testing"
	"time"

	"github.com/kirillkom/kb-retrieval/internal/core/domain"
)

type qualityFake struct {
	scores map[string]float64
	err    error
}

func (f *qualityFake) ScoreOf(_ context.Context, id string) (float64, bool, error) {
	if f.err != nil {
		return 0, false, f.err
	}
	score, ok := f.scores[id]
	return score, ok, nil
}

func TestRerankDiversityDemotesNearDuplicate(t *testing.T) {
	reranker := NewReranker(nil)

	fused := []domain.FusedResult{
		{ID: "r0", Title: "ceramic capacitor 10uf x7r", VectorScore: 0.900, MatchType: domain.MatchVector},
		{ID: "r1", Title: "ceramic capacitor 10uf x7r", VectorScore: 0.896, MatchType: domain.MatchVector},
		{ID: "r2", Title: "tantalum capacitor array kit", VectorScore: 0.888, MatchType: domain.MatchVector},
	}

	out := reranker.Rerank(context.Background(), "film inductor", nil, fused, GeneralWeights())

	var dup domain.RerankedResult
	for _, r := range out {
		if r.ID == "r1" {
			dup = r
		}
	}
	if dup.DiversityPenalty != 0.3 {
		t.Fatalf("expected fixed diversity penalty 0.3, got %v", dup.DiversityPenalty)
	}
	if dup.NewRank < 2 {
		t.Fatalf("expected duplicate pushed out of top-2, got rank %d", dup.NewRank)
	}
	if out[0].ID != "r0" {
		t.Fatalf("expected higher-ranked duplicate to keep its position, got %s", out[0].ID)
	}

	// The penalty is single and fixed, never cumulative.
	for _, r := range out {
		if r.DiversityPenalty != 0 && r.DiversityPenalty != 0.3 {
			t.Fatalf("penalty must be binary, got %v", r.DiversityPenalty)
		}
	}
}

func TestRerankQualityDefaultsWhenAbsent(t *testing.T) {
	reranker := NewReranker(&qualityFake{scores: map[string]float64{"known": 0.9}})

	fused := []domain.FusedResult{
		{ID: "known", Title: "a", VectorScore: 0.5, MatchType: domain.MatchVector},
		{ID: "unknown", Title: "b", VectorScore: 0.5, MatchType: domain.MatchVector},
	}
	out := reranker.Rerank(context.Background(), "q", nil, fused, GeneralWeights())

	byID := map[string]domain.RerankedResult{}
	for _, r := range out {
		byID[r.ID] = r
	}
	if byID["known"].QualityScore != 0.9 {
		t.Fatalf("expected provider quality 0.9, got %v", byID["known"].QualityScore)
	}
	if byID["unknown"].QualityScore != 0.5 {
		t.Fatalf("expected default quality 0.5, got %v", byID["unknown"].QualityScore)
	}
	if out[0].ID != "known" {
		t.Fatalf("expected higher-quality item first, got %s", out[0].ID)
	}
}

func TestRerankBoostsCompose(t *testing.T) {
	reranker := NewReranker(nil)

	fused := []domain.FusedResult{{
		ID:          "boosted",
		Title:       "yageo resistor 10k",
		VectorScore: 0.5,
		MatchType:   domain.MatchVector,
		Metadata:    domain.ItemMetadata{Manufacturer: "Yageo", Category: "resistor"},
	}}

	out := reranker.Rerank(context.Background(), "yageo resistor", nil, fused, GeneralWeights())
	got := out[0].BoostFactors
	want := map[string]bool{"exact_match": true, "manufacturer": true, "category": true}
	if len(got) != len(want) {
		t.Fatalf("expected all three boosts, got %v", got)
	}
	for _, b := range got {
		if !want[b] {
			t.Fatalf("unexpected boost %q", b)
		}
	}
}

func TestRerankFreshnessStepFunction(t *testing.T) {
	reranker := NewReranker(nil)
	now := time.Now()
	reranker.now = func() time.Time { return now }

	cases := []struct {
		age  time.Duration
		want float64
	}{
		{3 * 24 * time.Hour, 1.0},
		{20 * 24 * time.Hour, 0.8},
		{60 * 24 * time.Hour, 0.6},
		{200 * 24 * time.Hour, 0.4},
		{500 * 24 * time.Hour, 0.2},
	}
	for _, tc := range cases {
		got := freshnessSignal(now, now.Add(-tc.age))
		if got != tc.want {
			t.Fatalf("freshness at age %v = %v, want %v", tc.age, got, tc.want)
		}
	}
	if got := freshnessSignal(now, time.Time{}); got != 0.5 {
		t.Fatalf("unknown freshness = %v, want 0.5", got)
	}
}

func TestWeightsForPresetFallsBackToGeneral(t *testing.T) {
	if WeightsForPreset("nonsense") != GeneralWeights() {
		t.Fatalf("expected general preset fallback")
	}
	if WeightsForPreset("price").DiversityThreshold != 0.95 {
		t.Fatalf("expected widened diversity threshold for price preset")
	}
}
