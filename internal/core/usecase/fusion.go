package usecase

import (
	"sort"

	"github.com/kirillkom/kb-retrieval/internal/core/domain"
)

const defaultRRFK = 60

// SourceWeights splits influence between the retrieval sources.
type SourceWeights struct {
	Vector  float64
	Keyword float64
}

func DefaultSourceWeights() SourceWeights {
	return SourceWeights{Vector: 0.6, Keyword: 0.4}
}

type fusedAccumulator struct {
	result domain.FusedResult
}

// fuseRRF merges the two ranked lists with reciprocal rank fusion: an item
// at 0-based rank r in a source with weight w contributes w/(K+r) to its
// fused score; items in both sources sum both contributions.
func fuseRRF(vector, keyword []domain.SourceResult, weights SourceWeights, rrfK int) []domain.FusedResult {
	if rrfK <= 0 {
		rrfK = defaultRRFK
	}

	acc := make(map[string]*fusedAccumulator, len(vector)+len(keyword))

	for rank, hit := range vector {
		a := accumulatorFor(acc, hit)
		a.result.HybridScore += weights.Vector / float64(rrfK+rank)
		a.result.VectorScore = hit.Similarity
		a.result.VectorRank = rank
		a.result.MatchType = domain.MatchVector
	}

	keywordScores := normalizeKeywordRanks(keyword)
	for rank, hit := range keyword {
		a := accumulatorFor(acc, hit)
		a.result.HybridScore += weights.Keyword / float64(rrfK+rank)
		a.result.KeywordScore = keywordScores[rank]
		a.result.KeywordRank = rank
		if a.result.MatchType == domain.MatchVector {
			a.result.MatchType = domain.MatchBoth
		} else {
			a.result.MatchType = domain.MatchKeyword
		}
	}

	out := make([]domain.FusedResult, 0, len(acc))
	for _, a := range acc {
		out = append(out, a.result)
	}

	sort.SliceStable(out, func(i, j int) bool {
		if out[i].HybridScore != out[j].HybridScore {
			return out[i].HybridScore > out[j].HybridScore
		}
		if out[i].VectorRank != out[j].VectorRank {
			return rankOrDistant(out[i].VectorRank) < rankOrDistant(out[j].VectorRank)
		}
		return rankOrDistant(out[i].KeywordRank) < rankOrDistant(out[j].KeywordRank)
	})

	return out
}

func accumulatorFor(acc map[string]*fusedAccumulator, hit domain.SourceResult) *fusedAccumulator {
	a, ok := acc[hit.ID]
	if !ok {
		a = &fusedAccumulator{result: domain.FusedResult{
			ID:          hit.ID,
			VectorRank:  -1,
			KeywordRank: -1,
		}}
		acc[hit.ID] = a
	}
	mergeHitFields(&a.result, hit)
	return a
}

func mergeHitFields(dst *domain.FusedResult, hit domain.SourceResult) {
	if dst.Title == "" {
		dst.Title = hit.Title
	}
	if dst.Text == "" {
		dst.Text = hit.Text
	}
	if dst.Metadata.Category == "" && dst.Metadata.Manufacturer == "" {
		dst.Metadata = hit.Metadata
	}
	if dst.UpdatedAt.IsZero() {
		dst.UpdatedAt = hit.UpdatedAt
	}
}

// normalizeKeywordRanks maps BM25-style rank scores (more negative is
// better) onto [0,1] with 1 meaning the best rank. A single result or a
// zero range degenerates; both special-case to 1.0 instead of propagating
// an undefined ratio.
func normalizeKeywordRanks(keyword []domain.SourceResult) []float64 {
	out := make([]float64, len(keyword))
	if len(keyword) == 0 {
		return out
	}

	minRank, maxRank := keyword[0].Rank, keyword[0].Rank
	for _, hit := range keyword[1:] {
		if hit.Rank < minRank {
			minRank = hit.Rank
		}
		if hit.Rank > maxRank {
			maxRank = hit.Rank
		}
	}

	span := maxRank - minRank
	if span == 0 {
		for i := range out {
			out[i] = 1.0
		}
		return out
	}
	for i, hit := range keyword {
		out[i] = (maxRank - hit.Rank) / span
	}
	return out
}

func rankOrDistant(rank int) int {
	if rank < 0 {
		return int(^uint(0) >> 1)
	}
	return rank
}
