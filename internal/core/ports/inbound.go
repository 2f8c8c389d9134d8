package ports

import (
	"context"

	"github.com/kirillkom/kb-retrieval/internal/core/domain"
)

// SearchService is the inbound contract for hybrid retrieval.
type SearchService interface {
	Search(ctx context.Context, query string, limit int, preset string, filter domain.SearchFilter) ([]domain.RerankedResult, error)
}

// AnswerService is the inbound contract for answer synthesis.
type AnswerService interface {
	Answer(ctx context.Context, query string, kind string, filter domain.SearchFilter) (domain.ExtractedAnswer, error)
}

// FeedbackService records rejections and checks candidate values against
// learned negative examples. Check methods never fail: a broken store
// reads as "no match".
type FeedbackService interface {
	RecordRejection(ctx context.Context, field, wrongValue, correctValue, reason string) error
	RecordAnswerFeedback(ctx context.Context, query, badAnswer string, originalConfidence float64) error
	Check(ctx context.Context, field, value string) domain.NegativeCheck
	CheckAnswer(ctx context.Context, query, answer string) domain.NegativeCheck
	Deactivate(ctx context.Context, id string) error
}

// Indexer is the inbound contract for asynchronous batch indexing.
type Indexer interface {
	EnqueueItems(ctx context.Context, items []domain.EmbeddingItem) error
}

// CacheAdmin exposes cache maintenance to the HTTP layer.
type CacheAdmin interface {
	Invalidate()
	Stats() map[string]CacheStats
}

// CacheStats reports counters for one cache instance.
type CacheStats struct {
	Hits      uint64  `json:"hits"`
	Misses    uint64  `json:"misses"`
	Evictions uint64  `json:"evictions"`
	Size      int     `json:"size"`
	HitRate   float64 `json:"hit_rate"`
}
