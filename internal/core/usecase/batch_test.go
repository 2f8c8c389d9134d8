package usecase

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/kirillkom/kb-retrieval/internal/core/domain"
)

// flakyEmbedder fails each item a configured number of times before
// succeeding; permanentIDs always fail with a non-retryable error.
type flakyEmbedder struct {
	mu           sync.Mutex
	failuresLeft map[string]int
	attempts     map[string]int
	permanentIDs map[string]bool
	maxIn        int
}

func newFlakyEmbedder() *flakyEmbedder {
	return &flakyEmbedder{
		failuresLeft: map[string]int{},
		attempts:     map[string]int{},
		permanentIDs: map[string]bool{},
	}
}

func (f *flakyEmbedder) Embed(_ context.Context, text string) ([]float32, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.attempts[text]++
	if f.permanentIDs[text] {
		return nil, domain.WrapError(domain.ErrPermanent, "embed", context.DeadlineExceeded)
	}
	if f.failuresLeft[text] > 0 {
		f.failuresLeft[text]--
		return nil, domain.WrapError(domain.ErrTemporary, "embed", context.DeadlineExceeded)
	}
	return []float32{1, 2}, nil
}

func (f *flakyEmbedder) MaxInputLength() int {
	if f.maxIn > 0 {
		return f.maxIn
	}
	return 8192
}

func (f *flakyEmbedder) attemptsFor(text string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.attempts[text]
}

func fastBatchConfig() BatchConfig {
	return BatchConfig{
		Concurrency: 2,
		MaxRetries:  3,
		BaseBackoff: time.Millisecond,
		WaveDelay:   0,
	}
}

func batchItems(n int) []domain.EmbeddingItem {
	items := make([]domain.EmbeddingItem, n)
	for i := range items {
		items[i] = domain.EmbeddingItem{
			ID:   string(rune('a' + i)),
			Text: string(rune('a' + i)),
		}
	}
	return items
}

func TestBatchRetriesTransientFailuresToSuccess(t *testing.T) {
	embedder := newFlakyEmbedder()
	items := batchItems(5)
	for _, item := range items {
		embedder.failuresLeft[item.Text] = 1
	}

	b := NewBatchEmbedder(embedder, fastBatchConfig(), nil)
	outcome, err := b.Run(context.Background(), items, nil)
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if len(outcome.Results) != len(items) {
		t.Fatalf("expected %d successes, got %d", len(items), len(outcome.Results))
	}
	if len(outcome.Failures) != 0 {
		t.Fatalf("expected no failures, got %v", outcome.Failures)
	}
	for _, item := range items {
		if got := embedder.attemptsFor(item.Text); got > 3 {
			t.Fatalf("item %s attempted %d times, max is 3", item.ID, got)
		}
	}
}

func TestBatchReportsPermanentFailureWithReason(t *testing.T) {
	embedder := newFlakyEmbedder()
	items := batchItems(3)
	embedder.permanentIDs[items[1].Text] = true

	b := NewBatchEmbedder(embedder, fastBatchConfig(), nil)
	outcome, err := b.Run(context.Background(), items, nil)
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	if len(outcome.Results) != 2 {
		t.Fatalf("expected 2 successes, got %d", len(outcome.Results))
	}
	if len(outcome.Failures) != 1 {
		t.Fatalf("expected 1 failure, got %d", len(outcome.Failures))
	}
	failure := outcome.Failures[0]
	if failure.ID != items[1].ID || failure.Reason == "" {
		t.Fatalf("expected failed item with reason, got %+v", failure)
	}
	for _, result := range outcome.Results {
		if result.ID == items[1].ID {
			t.Fatalf("failed item must not appear in results")
		}
	}
	// Permanent errors fail immediately, no retries.
	if got := embedder.attemptsFor(items[1].Text); got != 1 {
		t.Fatalf("permanent failure attempted %d times, want 1", got)
	}
}

func TestBatchEmitsProgressPerWave(t *testing.T) {
	embedder := newFlakyEmbedder()
	items := batchItems(4)

	progress := make(chan domain.BatchProgress, 8)
	b := NewBatchEmbedder(embedder, fastBatchConfig(), nil)
	outcome, err := b.Run(context.Background(), items, progress)
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	close(progress)

	var updates []domain.BatchProgress
	for p := range progress {
		updates = append(updates, p)
	}
	if len(updates) != 2 {
		t.Fatalf("expected 2 wave updates, got %d", len(updates))
	}
	last := updates[len(updates)-1]
	if last.Completed != 4 || last.TotalBatches != 2 || last.CurrentBatch != 2 {
		t.Fatalf("unexpected final progress: %+v", last)
	}
	if outcome.Stats.Successful != 4 {
		t.Fatalf("expected stats to count successes, got %+v", outcome.Stats)
	}
	if outcome.Stats.AvgPerItem < 0 {
		t.Fatalf("expected non-negative avg per item")
	}
}

func TestBatchStopsAtWaveBoundaryOnCancel(t *testing.T) {
	embedder := newFlakyEmbedder()
	items := batchItems(6)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	b := NewBatchEmbedder(embedder, fastBatchConfig(), nil)
	outcome, err := b.Run(ctx, items, nil)
	if err == nil {
		t.Fatalf("expected cancellation error")
	}
	if len(outcome.Results) != 0 {
		t.Fatalf("expected no waves to start after cancellation, got %d results", len(outcome.Results))
	}
}

func TestBatchKeepsWaveInsertionOrder(t *testing.T) {
	embedder := newFlakyEmbedder()
	items := batchItems(5)

	b := NewBatchEmbedder(embedder, fastBatchConfig(), nil)
	outcome, err := b.Run(context.Background(), items, nil)
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	for i, result := range outcome.Results {
		if result.ID != items[i].ID {
			t.Fatalf("expected wave-insertion order, position %d got %s", i, result.ID)
		}
	}
}
