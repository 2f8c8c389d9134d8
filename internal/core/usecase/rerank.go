package usecase

import (
	"context"
	"sort"
	"strings"
	"time"

	"github.com/kirillkom/kb-retrieval/internal/core/domain"
	"github.com/kirillkom/kb-retrieval/internal/core/ports"
)

const defaultQualityScore = 0.5

// RerankWeights tunes the multi-signal rescoring pass.
type RerankWeights struct {
	Similarity     float64
	Quality        float64
	KeywordOverlap float64
	Freshness      float64
	Diversity      float64

	DiversityThreshold float64
	DiversityPenalty   float64

	ExactMatchBoost   float64
	ManufacturerBoost float64
	CategoryBoost     float64
}

// GeneralWeights is the balanced default, with the exact-match boost on.
func GeneralWeights() RerankWeights {
	return RerankWeights{
		Similarity:     0.40,
		Quality:        0.25,
		KeywordOverlap: 0.20,
		Freshness:      0.10,
		Diversity:      0.05,

		DiversityThreshold: 0.9,
		DiversityPenalty:   0.3,

		ExactMatchBoost:   1.2,
		ManufacturerBoost: 1.15,
		CategoryBoost:     1.1,
	}
}

// PriceLookupWeights favors freshness and quality; the diversity threshold
// widens to 0.95 so comparable items survive side by side.
func PriceLookupWeights() RerankWeights {
	w := GeneralWeights()
	w.Similarity = 0.30
	w.Quality = 0.30
	w.KeywordOverlap = 0.15
	w.Freshness = 0.20
	w.DiversityThreshold = 0.95
	return w
}

// DescriptionWeights favors quality and diversity for generation inputs.
func DescriptionWeights() RerankWeights {
	w := GeneralWeights()
	w.Quality = 0.35
	w.Similarity = 0.30
	w.KeywordOverlap = 0.15
	w.Freshness = 0.05
	w.Diversity = 0.15
	return w
}

// ClassificationWeights favors keyword and category signals.
func ClassificationWeights() RerankWeights {
	w := GeneralWeights()
	w.KeywordOverlap = 0.35
	w.Similarity = 0.30
	w.Quality = 0.15
	w.Freshness = 0.05
	w.CategoryBoost = 1.2
	return w
}

// Reranker preset names.
const (
	PresetGeneral        = "general"
	PresetPriceLookup    = "price"
	PresetDescription    = "description"
	PresetClassification = "classification"
)

// WeightsForPreset resolves a preset name; unknown names fall back to the
// general preset.
func WeightsForPreset(preset string) RerankWeights {
	switch strings.ToLower(strings.TrimSpace(preset)) {
	case PresetPriceLookup, "price_lookup":
		return PriceLookupWeights()
	case PresetDescription, "description_generation":
		return DescriptionWeights()
	case PresetClassification:
		return ClassificationWeights()
	default:
		return GeneralWeights()
	}
}

// Reranker rescoring order: weighted base from similarity, quality,
// keyword overlap and freshness; multiplicative boosts; then a top-down
// diversity pass that applies a single fixed penalty on the first
// near-duplicate above the Jaccard threshold.
type Reranker struct {
	quality ports.QualityScoreProvider
	now     func() time.Time
}

func NewReranker(quality ports.QualityScoreProvider) *Reranker {
	return &Reranker{
		quality: quality,
		now:     time.Now,
	}
}

func (r *Reranker) Rerank(
	ctx context.Context,
	query string,
	queryTerms []string,
	fused []domain.FusedResult,
	weights RerankWeights,
) []domain.RerankedResult {
	out := make([]domain.RerankedResult, len(fused))
	queryLower := strings.ToLower(query)
	termSet := make(map[string]struct{}, len(queryTerms))
	for _, term := range queryTerms {
		termSet[strings.ToLower(term)] = struct{}{}
	}

	for i, f := range fused {
		quality := r.qualityScore(ctx, f.ID)
		base := weights.Similarity*similaritySignal(f) +
			weights.Quality*quality +
			weights.KeywordOverlap*overlapSignal(termSet, f) +
			weights.Freshness*freshnessSignal(r.now(), f.UpdatedAt)

		boosted, boosts := applyBoosts(base, queryLower, f, weights)

		out[i] = domain.RerankedResult{
			FusedResult:  f,
			OriginalRank: i,
			QualityScore: quality,
			BoostFactors: boosts,
			RerankScore:  boosted,
		}
	}

	applyDiversityPenalty(out, weights)

	sort.SliceStable(out, func(i, j int) bool {
		if out[i].RerankScore != out[j].RerankScore {
			return out[i].RerankScore > out[j].RerankScore
		}
		return out[i].OriginalRank < out[j].OriginalRank
	})
	for i := range out {
		out[i].NewRank = i
	}
	return out
}

func (r *Reranker) qualityScore(ctx context.Context, id string) float64 {
	if r.quality == nil {
		return defaultQualityScore
	}
	score, found, err := r.quality.ScoreOf(ctx, id)
	if err != nil || !found {
		return defaultQualityScore
	}
	if score < 0 {
		return 0
	}
	if score > 1 {
		return 1
	}
	return score
}

func similaritySignal(f domain.FusedResult) float64 {
	if f.MatchType == domain.MatchKeyword {
		return f.KeywordScore
	}
	return f.VectorScore
}

func overlapSignal(termSet map[string]struct{}, f domain.FusedResult) float64 {
	return tokenOverlap(termSet, toTokenSet(f.Title+" "+f.Text))
}

// freshnessSignal steps down with age; unknown timestamps score 0.5.
func freshnessSignal(now, updatedAt time.Time) float64 {
	if updatedAt.IsZero() {
		return 0.5
	}
	age := now.Sub(updatedAt)
	switch {
	case age < 7*24*time.Hour:
		return 1.0
	case age < 30*24*time.Hour:
		return 0.8
	case age < 90*24*time.Hour:
		return 0.6
	case age < 365*24*time.Hour:
		return 0.4
	default:
		return 0.2
	}
}

func applyBoosts(base float64, queryLower string, f domain.FusedResult, w RerankWeights) (float64, []string) {
	var boosts []string
	score := base

	if queryLower != "" && strings.Contains(strings.ToLower(f.Title), queryLower) {
		score *= w.ExactMatchBoost
		boosts = append(boosts, "exact_match")
	}
	if m := strings.ToLower(f.Metadata.Manufacturer); m != "" && strings.Contains(queryLower, m) {
		score *= w.ManufacturerBoost
		boosts = append(boosts, "manufacturer")
	}
	if c := strings.ToLower(f.Metadata.Category); c != "" && strings.Contains(queryLower, c) {
		score *= w.CategoryBoost
		boosts = append(boosts, "category")
	}
	return score, boosts
}

// applyDiversityPenalty walks a provisional score order top-down and, on
// the first higher-ranked near-duplicate title, applies one fixed penalty.
// The penalty is binary, never cumulative.
func applyDiversityPenalty(results []domain.RerankedResult, w RerankWeights) {
	if w.Diversity <= 0 || w.DiversityPenalty <= 0 || len(results) < 2 {
		return
	}

	order := make([]*domain.RerankedResult, len(results))
	for i := range results {
		order[i] = &results[i]
	}
	sort.SliceStable(order, func(i, j int) bool {
		if order[i].RerankScore != order[j].RerankScore {
			return order[i].RerankScore > order[j].RerankScore
		}
		return order[i].OriginalRank < order[j].OriginalRank
	})

	tokenSets := make([]map[string]struct{}, len(order))
	for i, r := range order {
		tokenSets[i] = whitespaceTokenSet(r.Title)
	}

	for i := 1; i < len(order); i++ {
		for j := 0; j < i; j++ {
			if jaccard(tokenSets[i], tokenSets[j]) >= w.DiversityThreshold {
				order[i].DiversityPenalty = w.DiversityPenalty
				order[i].RerankScore *= 1 - w.DiversityPenalty*w.Diversity
				break
			}
		}
	}
}
