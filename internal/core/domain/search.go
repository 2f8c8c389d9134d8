package domain

import "time"

// MatchType records which retrieval source produced a fused result.
type MatchType string

const (
	MatchVector  MatchType = "vector"
	MatchKeyword MatchType = "keyword"
	MatchBoth    MatchType = "both"
)

// SearchFilter narrows retrieval to a category and/or manufacturer.
type SearchFilter struct {
	Category     string
	Manufacturer string
}

func (f SearchFilter) IsZero() bool {
	return f.Category == "" && f.Manufacturer == ""
}

// SourceResult is a raw hit from a single retrieval source. Similarity is
// populated for vector hits, Rank for keyword hits; metadata rides along
// for downstream reranking.
type SourceResult struct {
	ID         string       `json:"id"`
	Title      string       `json:"title"`
	Text       string       `json:"text"`
	Similarity float64      `json:"similarity,omitempty"`
	Rank       float64      `json:"rank,omitempty"`
	Metadata   ItemMetadata `json:"metadata"`
	UpdatedAt  time.Time    `json:"updated_at,omitzero"`
}

// FusedResult is a SourceResult after reciprocal rank fusion.
type FusedResult struct {
	ID           string       `json:"id"`
	Title        string       `json:"title"`
	Text         string       `json:"text"`
	HybridScore  float64      `json:"hybrid_score"`
	VectorScore  float64      `json:"vector_score"`
	KeywordScore float64      `json:"keyword_score"`
	MatchType    MatchType    `json:"match_type"`
	Metadata     ItemMetadata `json:"metadata"`
	UpdatedAt    time.Time    `json:"updated_at,omitzero"`

	// 0-based per-source ranks for deterministic tie-breaking; -1 when
	// the source did not return the item.
	VectorRank  int `json:"-"`
	KeywordRank int `json:"-"`
}

// RerankedResult is a FusedResult after multi-signal rescoring.
type RerankedResult struct {
	FusedResult

	OriginalRank     int      `json:"original_rank"`
	NewRank          int      `json:"new_rank"`
	QualityScore     float64  `json:"quality_score"`
	DiversityPenalty float64  `json:"diversity_penalty"`
	BoostFactors     []string `json:"boost_factors,omitempty"`
	RerankScore      float64  `json:"rerank_score"`
}
