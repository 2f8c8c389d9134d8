package ports

import (
	"context"

	"github.com/kirillkom/kb-retrieval/internal/core/domain"
)

// EmbeddingProvider turns text into fixed-length vectors. Implementations
// surface domain.ErrRateLimited / domain.ErrTemporary / domain.ErrPermanent
// so callers can decide on retries. Callers truncate to MaxInputLength
// before embedding.
type EmbeddingProvider interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	MaxInputLength() int
}

// VectorIndex stores and queries embedding vectors. Query results arrive
// ranked best-first with similarity already converted from the index's
// distance metric (similarity = 1 - distance for cosine).
type VectorIndex interface {
	Upsert(ctx context.Context, id string, vector []float32, meta domain.ItemMetadata, text string) error
	Query(ctx context.Context, vector []float32, k int, filter domain.SearchFilter) ([]domain.SourceResult, error)
	Delete(ctx context.Context, ids []string) error
	Count(ctx context.Context) (int, error)
}

// KeywordIndex performs BM25-style full-text matching. Ranks follow the
// index's native sign convention; the hybrid engine normalizes them
// before fusion.
type KeywordIndex interface {
	Match(ctx context.Context, query string, limit int, filter domain.SearchFilter) ([]domain.SourceResult, error)
}

// KeywordWriter feeds the keyword index during batch indexing.
type KeywordWriter interface {
	Index(ctx context.Context, item domain.EmbeddingItem) error
	DeleteKeyword(ctx context.Context, ids []string) error
}

// KBItemStore hydrates item metadata for evidence and reranking.
type KBItemStore interface {
	GetByID(ctx context.Context, id string) (*domain.KBItem, error)
	GetByIDs(ctx context.Context, ids []string) ([]domain.KBItem, error)
}

// KBItemWriter persists item rows during batch indexing.
type KBItemWriter interface {
	Upsert(ctx context.Context, item *domain.KBItem) error
}

// DocumentChunkStore hydrates document passages for answer evidence.
type DocumentChunkStore interface {
	GetByID(ctx context.Context, id string) (*domain.DocumentChunk, error)
}

// QualityScoreProvider supplies an externally computed quality score in
// [0,1]. A missing score reports found=false and callers fall back to 0.5.
type QualityScoreProvider interface {
	ScoreOf(ctx context.Context, id string) (score float64, found bool, err error)
}

// NegativeExampleStore persists feedback-derived negative examples.
type NegativeExampleStore interface {
	FindByFieldValue(ctx context.Context, field, wrongValue string) (*domain.NegativeExample, error)
	ListActiveByField(ctx context.Context, field string) ([]domain.NegativeExample, error)
	Insert(ctx context.Context, example *domain.NegativeExample) error
	IncrementFrequency(ctx context.Context, id string, correctValue, reason string) error
	Deactivate(ctx context.Context, id string) error
}

// Completer is the optional generative backend. The answer synthesizer
// falls back to extraction-only mode when none is configured.
type Completer interface {
	Complete(ctx context.Context, systemPrompt, userPrompt string, temperature float64, maxTokens int) (string, error)
}

// IndexQueue hands item batches to the asynchronous indexing worker.
type IndexQueue interface {
	PublishIndexRequest(ctx context.Context, items []domain.EmbeddingItem) error
	SubscribeIndexRequests(ctx context.Context, handler func(context.Context, []domain.EmbeddingItem) error) error
}
