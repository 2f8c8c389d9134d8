package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/kirillkom/kb-retrieval/internal/cache"
	"github.com/kirillkom/kb-retrieval/internal/core/domain"
	"github.com/kirillkom/kb-retrieval/internal/core/ports"
)

// HybridSearchConfig tunes the hybrid engine.
type HybridSearchConfig struct {
	Weights        SourceWeights
	RRFK           int
	MinSimilarity  float64
	CandidateLimit int
	// Timeout is the total sub-search budget, split evenly across the
	// parallel vector and keyword searches.
	Timeout time.Duration
}

func DefaultHybridSearchConfig() HybridSearchConfig {
	return HybridSearchConfig{
		Weights:        DefaultSourceWeights(),
		RRFK:           defaultRRFK,
		MinSimilarity:  0.3,
		CandidateLimit: 30,
		Timeout:        10 * time.Second,
	}
}

func (c HybridSearchConfig) normalize() HybridSearchConfig {
	out := c
	def := DefaultHybridSearchConfig()
	if out.Weights.Vector <= 0 && out.Weights.Keyword <= 0 {
		out.Weights = def.Weights
	}
	if out.RRFK <= 0 {
		out.RRFK = def.RRFK
	}
	if out.CandidateLimit <= 0 {
		out.CandidateLimit = def.CandidateLimit
	}
	if out.Timeout <= 0 {
		out.Timeout = def.Timeout
	}
	return out
}

// HybridSearchUseCase runs semantic and keyword retrieval concurrently and
// fuses the two ranked lists. A failing or timed-out source degrades to an
// empty list for that source only; the call never hard-fails on backend
// trouble.
type HybridSearchUseCase struct {
	embedder ports.EmbeddingProvider
	vector   ports.VectorIndex
	keyword  ports.KeywordIndex
	expander *QueryExpander
	reranker *Reranker
	caches   *cache.Service
	cfg      HybridSearchConfig
	logger   *slog.Logger
}

func NewHybridSearchUseCase(
	embedder ports.EmbeddingProvider,
	vector ports.VectorIndex,
	keyword ports.KeywordIndex,
	expander *QueryExpander,
	reranker *Reranker,
	caches *cache.Service,
	cfg HybridSearchConfig,
	logger *slog.Logger,
) *HybridSearchUseCase {
	if logger == nil {
		logger = slog.Default()
	}
	return &HybridSearchUseCase{
		embedder: embedder,
		vector:   vector,
		keyword:  keyword,
		expander: expander,
		reranker: reranker,
		caches:   caches,
		cfg:      cfg.normalize(),
		logger:   logger,
	}
}

func (uc *HybridSearchUseCase) Search(
	ctx context.Context,
	query string,
	limit int,
	preset string,
	filter domain.SearchFilter,
) ([]domain.RerankedResult, error) {
	if query == "" {
		return nil, domain.WrapError(domain.ErrInvalidInput, "hybrid search", errors.New("empty query"))
	}
	if limit <= 0 {
		limit = 10
	}

	cacheKey := []string{
		"hybrid", query, strconv.Itoa(limit), preset,
		filter.Category, filter.Manufacturer,
	}
	if uc.caches != nil {
		if cached, ok := uc.caches.GetResults(cacheKey...); ok {
			return cached, nil
		}
	}

	expanded := uc.expander.Expand(query)
	terms := uc.expander.KeywordTerms(expanded)

	fused, err := uc.retrieveAndFuse(ctx, expanded, terms, filter)
	if err != nil {
		return nil, err
	}

	reranked := uc.reranker.Rerank(ctx, query, terms, fused, WeightsForPreset(preset))
	if len(reranked) > limit {
		reranked = reranked[:limit]
	}

	if uc.caches != nil {
		uc.caches.SetResults(reranked, cacheKey...)
	}
	return reranked, nil
}

func (uc *HybridSearchUseCase) retrieveAndFuse(
	ctx context.Context,
	expanded domain.ExpandedQuery,
	terms []string,
	filter domain.SearchFilter,
) ([]domain.FusedResult, error) {
	perSourceBudget := uc.cfg.Timeout / 2

	var vectorHits, keywordHits []domain.SourceResult

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		hits, err := uc.vectorSearch(gctx, expanded, filter, perSourceBudget)
		if err != nil {
			uc.logger.Warn("vector_search_degraded", "error", err)
			return nil
		}
		vectorHits = hits
		return nil
	})
	g.Go(func() error {
		hits, err := uc.keywordSearch(gctx, terms, filter, perSourceBudget)
		if err != nil {
			uc.logger.Warn("keyword_search_degraded", "error", err)
			return nil
		}
		keywordHits = hits
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	vectorHits = uc.filterBySimilarity(vectorHits)
	return fuseRRF(vectorHits, keywordHits, uc.cfg.Weights, uc.cfg.RRFK), nil
}

func (uc *HybridSearchUseCase) vectorSearch(
	ctx context.Context,
	expanded domain.ExpandedQuery,
	filter domain.SearchFilter,
	budget time.Duration,
) ([]domain.SourceResult, error) {
	ctx, cancel := context.WithTimeout(ctx, budget)
	defer cancel()

	vector, err := uc.embedQuery(ctx, expanded.Expanded)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}

	hits, err := uc.vector.Query(ctx, vector, uc.cfg.CandidateLimit, filter)
	if err != nil {
		return nil, fmt.Errorf("vector query: %w", err)
	}
	return hits, nil
}

func (uc *HybridSearchUseCase) keywordSearch(
	ctx context.Context,
	terms []string,
	filter domain.SearchFilter,
	budget time.Duration,
) ([]domain.SourceResult, error) {
	ctx, cancel := context.WithTimeout(ctx, budget)
	defer cancel()

	hits, err := uc.keyword.Match(ctx, strings.Join(terms, " "), uc.cfg.CandidateLimit, filter)
	if err != nil {
		return nil, fmt.Errorf("keyword match: %w", err)
	}
	return hits, nil
}

func (uc *HybridSearchUseCase) embedQuery(ctx context.Context, text string) ([]float32, error) {
	if uc.caches != nil {
		if vector, ok := uc.caches.GetEmbedding(text); ok {
			return vector, nil
		}
	}

	truncated := truncateForProvider(text, uc.embedder.MaxInputLength())
	vector, err := uc.embedder.Embed(ctx, truncated)
	if err != nil {
		return nil, err
	}
	if uc.caches != nil {
		uc.caches.SetEmbedding(text, vector)
	}
	return vector, nil
}

func (uc *HybridSearchUseCase) filterBySimilarity(hits []domain.SourceResult) []domain.SourceResult {
	if uc.cfg.MinSimilarity <= 0 {
		return hits
	}
	out := hits[:0]
	for _, hit := range hits {
		if hit.Similarity >= uc.cfg.MinSimilarity {
			out = append(out, hit)
		}
	}
	return out
}

func truncateForProvider(text string, maxLen int) string {
	if maxLen <= 0 || len(text) <= maxLen {
		return text
	}
	runes := []rune(text)
	if len(runes) <= maxLen {
		return text
	}
	return string(runes[:maxLen])
}
