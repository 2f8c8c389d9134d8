package cache

import (
	"sync/atomic"

	"github.com/kirillkom/kb-retrieval/internal/core/domain"
	"github.com/kirillkom/kb-retrieval/internal/core/ports"
)

// ServiceConfig sizes the three cache instances independently.
type ServiceConfig struct {
	Embedding Config
	Results   Config
	Answers   Config
}

// Service bundles the retrieval pipeline's three caches. The results and
// answers caches share an epoch counter embedded in every key, so
// Invalidate is O(1): prior entries become unreachable and age out of the
// LRU naturally, no sweep needed. Embedding vectors are query-content
// addressed and survive invalidation.
type Service struct {
	embedding *Cache[[]float32]
	results   *Cache[[]domain.RerankedResult]
	answers   *Cache[domain.ExtractedAnswer]
	epoch     atomic.Uint64
}

func NewService(cfg ServiceConfig) *Service {
	return &Service{
		embedding: New[[]float32](cfg.Embedding),
		results:   New[[]domain.RerankedResult](cfg.Results),
		answers:   New[domain.ExtractedAnswer](cfg.Answers),
	}
}

func (s *Service) GetEmbedding(text string) ([]float32, bool) {
	return s.embedding.Get(Key("emb", text))
}

func (s *Service) SetEmbedding(text string, vector []float32) {
	s.embedding.Set(Key("emb", text), vector)
}

func (s *Service) GetResults(parts ...string) ([]domain.RerankedResult, bool) {
	return s.results.Get(VersionedKey(s.epoch.Load(), parts...))
}

func (s *Service) SetResults(value []domain.RerankedResult, parts ...string) {
	s.results.Set(VersionedKey(s.epoch.Load(), parts...), value)
}

func (s *Service) GetAnswer(parts ...string) (domain.ExtractedAnswer, bool) {
	return s.answers.Get(VersionedKey(s.epoch.Load(), parts...))
}

func (s *Service) SetAnswer(value domain.ExtractedAnswer, parts ...string) {
	s.answers.Set(VersionedKey(s.epoch.Load(), parts...), value)
}

// Invalidate makes all cached results and answers unreachable.
func (s *Service) Invalidate() {
	s.epoch.Add(1)
}

// Epoch returns the current invalidation epoch.
func (s *Service) Epoch() uint64 {
	return s.epoch.Load()
}

func (s *Service) Stats() map[string]ports.CacheStats {
	return map[string]ports.CacheStats{
		"embedding": toPortStats(s.embedding.Stats()),
		"results":   toPortStats(s.results.Stats()),
		"answers":   toPortStats(s.answers.Stats()),
	}
}

func toPortStats(s Stats) ports.CacheStats {
	return ports.CacheStats{
		Hits:      s.Hits,
		Misses:    s.Misses,
		Evictions: s.Evictions,
		Size:      s.Size,
		HitRate:   s.HitRate,
	}
}
