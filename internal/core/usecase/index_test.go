package usecase

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/kirillkom/kb-retrieval/internal/cache"
	"github.com/kirillkom/kb-retrieval/internal/core/domain"
)

type indexQueueFake struct {
	published [][]domain.EmbeddingItem
	err       error
}

func (f *indexQueueFake) PublishIndexRequest(_ context.Context, items []domain.EmbeddingItem) error {
	if f.err != nil {
		return f.err
	}
	f.published = append(f.published, items)
	return nil
}

func (f *indexQueueFake) SubscribeIndexRequests(context.Context, func(context.Context, []domain.EmbeddingItem) error) error {
	return nil
}

type upsertRecorder struct {
	mu       sync.Mutex
	upserted map[string][]float32
	deleted  []string
}

func (r *upsertRecorder) Upsert(_ context.Context, id string, vector []float32, _ domain.ItemMetadata, _ string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.upserted == nil {
		r.upserted = map[string][]float32{}
	}
	r.upserted[id] = vector
	return nil
}

func (r *upsertRecorder) Query(context.Context, []float32, int, domain.SearchFilter) ([]domain.SourceResult, error) {
	return nil, nil
}

func (r *upsertRecorder) Delete(_ context.Context, ids []string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.deleted = append(r.deleted, ids...)
	return nil
}

func (r *upsertRecorder) Count(context.Context) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.upserted), nil
}

type keywordWriterFake struct {
	mu      sync.Mutex
	indexed []string
	deleted []string
}

func (f *keywordWriterFake) Index(_ context.Context, item domain.EmbeddingItem) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.indexed = append(f.indexed, item.ID)
	return nil
}

func (f *keywordWriterFake) DeleteKeyword(_ context.Context, ids []string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deleted = append(f.deleted, ids...)
	return nil
}

type itemWriterFake struct {
	mu   sync.Mutex
	rows map[string]domain.KBItem
}

func (f *itemWriterFake) Upsert(_ context.Context, item *domain.KBItem) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.rows == nil {
		f.rows = map[string]domain.KBItem{}
	}
	f.rows[item.ID] = *item
	return nil
}

func TestEnqueueItemsValidates(t *testing.T) {
	queue := &indexQueueFake{}
	uc := NewIndexUseCase(queue, nil, nil, nil, nil, nil, nil)
	ctx := context.Background()

	if err := uc.EnqueueItems(ctx, nil); !domain.IsKind(err, domain.ErrInvalidInput) {
		t.Fatalf("expected invalid input for empty batch, got %v", err)
	}
	if err := uc.EnqueueItems(ctx, []domain.EmbeddingItem{{ID: "a"}}); !domain.IsKind(err, domain.ErrInvalidInput) {
		t.Fatalf("expected invalid input for missing text, got %v", err)
	}

	items := []domain.EmbeddingItem{{ID: "a", Text: "resistor"}}
	if err := uc.EnqueueItems(ctx, items); err != nil {
		t.Fatalf("EnqueueItems() error = %v", err)
	}
	if len(queue.published) != 1 || queue.published[0][0].ID != "a" {
		t.Fatalf("expected one published batch, got %+v", queue.published)
	}
}

func TestProcessBatchUpsertsAndInvalidates(t *testing.T) {
	embedder := &embedderFake{}
	batch := NewBatchEmbedder(embedder, fastBatchConfig(), nil)
	vector := &upsertRecorder{}
	keyword := &keywordWriterFake{}
	store := &itemWriterFake{}
	caches := cache.NewService(cache.ServiceConfig{})
	uc := NewIndexUseCase(&indexQueueFake{}, batch, vector, keyword, store, caches, nil)

	before := caches.Epoch()
	items := []domain.EmbeddingItem{
		{ID: "a", Text: "resistor 5w"},
		{ID: "b", Text: "capacitor 10uf"},
		{ID: "c", Text: "inductor 3mh"},
	}
	outcome, err := uc.ProcessBatch(context.Background(), items)
	if err != nil {
		t.Fatalf("ProcessBatch() error = %v", err)
	}
	if outcome.Stats.Successful != 3 || outcome.Stats.Failed != 0 {
		t.Fatalf("unexpected stats: %+v", outcome.Stats)
	}
	if len(vector.upserted) != 3 {
		t.Fatalf("expected 3 vector upserts, got %d", len(vector.upserted))
	}
	if len(keyword.indexed) != 3 {
		t.Fatalf("expected 3 keyword docs, got %d", len(keyword.indexed))
	}
	if len(store.rows) != 3 || store.rows["a"].Text != "resistor 5w" {
		t.Fatalf("expected 3 persisted item rows, got %+v", store.rows)
	}
	if caches.Epoch() != before+1 {
		t.Fatalf("expected one cache invalidation, epoch %d -> %d", before, caches.Epoch())
	}
}

func TestProcessBatchKeepsGoingPastItemFailures(t *testing.T) {
	embedder := newFlakyEmbedder()
	embedder.permanentIDs["bad"] = true
	batch := NewBatchEmbedder(embedder, fastBatchConfig(), nil)
	vector := &upsertRecorder{}
	uc := NewIndexUseCase(&indexQueueFake{}, batch, vector, nil, nil, nil, nil)

	items := []domain.EmbeddingItem{
		{ID: "ok", Text: "resistor"},
		{ID: "bad", Text: "bad"},
	}
	outcome, err := uc.ProcessBatch(context.Background(), items)
	if err != nil {
		t.Fatalf("ProcessBatch() error = %v", err)
	}
	if outcome.Stats.Successful != 1 || outcome.Stats.Failed != 1 {
		t.Fatalf("unexpected stats: %+v", outcome.Stats)
	}
	if _, ok := vector.upserted["ok"]; !ok {
		t.Fatalf("surviving item must still be upserted")
	}
	if _, ok := vector.upserted["bad"]; ok {
		t.Fatalf("failed item must not be upserted")
	}
}

func TestDeleteItemsClearsBothIndexes(t *testing.T) {
	vector := &upsertRecorder{}
	keyword := &keywordWriterFake{}
	caches := cache.NewService(cache.ServiceConfig{})
	uc := NewIndexUseCase(&indexQueueFake{}, nil, vector, keyword, nil, caches, nil)

	before := caches.Epoch()
	if err := uc.DeleteItems(context.Background(), []string{"a", "b"}); err != nil {
		t.Fatalf("DeleteItems() error = %v", err)
	}
	if len(vector.deleted) != 2 || len(keyword.deleted) != 2 {
		t.Fatalf("expected deletes in both indexes, got vector=%v keyword=%v", vector.deleted, keyword.deleted)
	}
	if caches.Epoch() != before+1 {
		t.Fatalf("expected cache invalidation on delete")
	}

	if err := uc.DeleteItems(context.Background(), nil); err != nil {
		t.Fatalf("DeleteItems() with empty ids error = %v", err)
	}
}

func TestEnqueuePublishFailureWrapped(t *testing.T) {
	queue := &indexQueueFake{err: errors.New("broker down")}
	uc := NewIndexUseCase(queue, nil, nil, nil, nil, nil, nil)

	err := uc.EnqueueItems(context.Background(), []domain.EmbeddingItem{{ID: "a", Text: "x"}})
	if err == nil || !errors.Is(err, queue.err) {
		t.Fatalf("expected wrapped publish error, got %v", err)
	}
}
