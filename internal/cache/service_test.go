package cache

import (
	"testing"
	"time"

	"github.com/kirillkom/kb-retrieval/internal/core/domain"
)

func testServiceConfig() ServiceConfig {
	cfg := Config{MaxSize: 8, TTL: time.Minute}
	return ServiceConfig{Embedding: cfg, Results: cfg, Answers: cfg}
}

func TestServiceInvalidateHidesResults(t *testing.T) {
	svc := NewService(testServiceConfig())

	svc.SetResults([]domain.RerankedResult{{OriginalRank: 0}}, "resistor", "5")
	if _, ok := svc.GetResults("resistor", "5"); !ok {
		t.Fatalf("expected results hit before invalidation")
	}

	svc.Invalidate()

	if _, ok := svc.GetResults("resistor", "5"); ok {
		t.Fatalf("expected results miss after invalidation")
	}
}

func TestServiceEmbeddingSurvivesInvalidation(t *testing.T) {
	svc := NewService(testServiceConfig())

	svc.SetEmbedding("resistor", []float32{0.1, 0.2})
	svc.Invalidate()

	if _, ok := svc.GetEmbedding("resistor"); !ok {
		t.Fatalf("expected embedding cache to survive invalidation")
	}
}

func TestServiceStatsTracksAllInstances(t *testing.T) {
	svc := NewService(testServiceConfig())

	svc.SetAnswer(domain.NotFoundAnswer(), "q")
	svc.GetAnswer("q")
	svc.GetAnswer("other")

	stats := svc.Stats()
	answers, ok := stats["answers"]
	if !ok {
		t.Fatalf("expected answers stats")
	}
	if answers.Hits != 1 || answers.Misses != 1 {
		t.Fatalf("unexpected counters: hits=%d misses=%d", answers.Hits, answers.Misses)
	}
	if answers.HitRate != 0.5 {
		t.Fatalf("expected hit rate 0.5, got %f", answers.HitRate)
	}
}
