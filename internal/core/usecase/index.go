package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/kirillkom/kb-retrieval/internal/cache"
	"github.com/kirillkom/kb-retrieval/internal/core/domain"
	"github.com/kirillkom/kb-retrieval/internal/core/ports"
)

// IndexUseCase orchestrates asynchronous batch indexing: the API enqueues
// item batches, the worker embeds them in waves and upserts vectors and
// keyword documents, then invalidates the result caches.
type IndexUseCase struct {
	queue   ports.IndexQueue
	batch   *BatchEmbedder
	vector  ports.VectorIndex
	keyword ports.KeywordWriter
	items   ports.KBItemWriter
	caches  *cache.Service
	logger  *slog.Logger
}

func NewIndexUseCase(
	queue ports.IndexQueue,
	batch *BatchEmbedder,
	vector ports.VectorIndex,
	keyword ports.KeywordWriter,
	items ports.KBItemWriter,
	caches *cache.Service,
	logger *slog.Logger,
) *IndexUseCase {
	if logger == nil {
		logger = slog.Default()
	}
	return &IndexUseCase{
		queue:   queue,
		batch:   batch,
		vector:  vector,
		keyword: keyword,
		items:   items,
		caches:  caches,
		logger:  logger,
	}
}

// EnqueueItems validates and hands a batch to the indexing queue.
func (uc *IndexUseCase) EnqueueItems(ctx context.Context, items []domain.EmbeddingItem) error {
	if len(items) == 0 {
		return domain.WrapError(domain.ErrInvalidInput, "enqueue items", errors.New("empty batch"))
	}
	for _, item := range items {
		if item.ID == "" || item.Text == "" {
			return domain.WrapError(domain.ErrInvalidInput, "enqueue items",
				fmt.Errorf("item %q missing id or text", item.ID))
		}
	}
	if err := uc.queue.PublishIndexRequest(ctx, items); err != nil {
		return fmt.Errorf("publish index request: %w", err)
	}
	return nil
}

// ProcessBatch is the worker-side handler: embed, upsert, invalidate.
// Per-item embedding failures are reported in the outcome and logged; they
// never abort the batch.
func (uc *IndexUseCase) ProcessBatch(ctx context.Context, items []domain.EmbeddingItem) (domain.BatchOutcome, error) {
	progress := make(chan domain.BatchProgress, 1)
	done := make(chan struct{})
	go func() {
		defer close(done)
		for p := range progress {
			uc.logger.Info("index_batch_progress",
				"completed", p.Completed,
				"total", p.Total,
				"failed", p.Failed,
				"batch", p.CurrentBatch,
				"batches", p.TotalBatches,
				"eta_ms", p.ETA.Milliseconds(),
			)
		}
	}()

	outcome, err := uc.batch.Run(ctx, items, progress)
	close(progress)
	<-done
	if err != nil {
		return outcome, fmt.Errorf("batch embedding: %w", err)
	}

	byID := make(map[string]domain.EmbeddingItem, len(items))
	for _, item := range items {
		byID[item.ID] = item
	}

	for _, result := range outcome.Results {
		item := byID[result.ID]
		if err := uc.vector.Upsert(ctx, item.ID, result.Vector, item.Metadata, item.Text); err != nil {
			return outcome, fmt.Errorf("upsert vector %s: %w", item.ID, err)
		}
		if uc.keyword != nil {
			if err := uc.keyword.Index(ctx, item); err != nil {
				return outcome, fmt.Errorf("index keyword %s: %w", item.ID, err)
			}
		}
		if uc.items != nil {
			row := domain.KBItem{
				ID:        item.ID,
				Title:     item.Title,
				Text:      item.Text,
				Metadata:  item.Metadata,
				UpdatedAt: time.Now().UTC(),
			}
			if err := uc.items.Upsert(ctx, &row); err != nil {
				return outcome, fmt.Errorf("upsert item %s: %w", item.ID, err)
			}
		}
	}

	if uc.caches != nil && len(outcome.Results) > 0 {
		uc.caches.Invalidate()
	}

	uc.logger.Info("index_batch_done",
		"successful", outcome.Stats.Successful,
		"failed", outcome.Stats.Failed,
		"duration_ms", outcome.Stats.Duration.Milliseconds(),
	)
	return outcome, nil
}

// DeleteItems removes items from both indexes and invalidates caches.
func (uc *IndexUseCase) DeleteItems(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	if err := uc.vector.Delete(ctx, ids); err != nil {
		return fmt.Errorf("delete vectors: %w", err)
	}
	if uc.keyword != nil {
		if err := uc.keyword.DeleteKeyword(ctx, ids); err != nil {
			return fmt.Errorf("delete keyword docs: %w", err)
		}
	}
	if uc.caches != nil {
		uc.caches.Invalidate()
	}
	return nil
}
