package usecase

import (
	"context"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/kirillkom/kb-retrieval/internal/core/domain"
	"github.com/kirillkom/kb-retrieval/internal/core/ports"
)

// BatchConfig makes the wave size and backoff curve explicit configuration.
type BatchConfig struct {
	// Concurrency is the wave size: requests per concurrent burst.
	Concurrency int
	// MaxRetries bounds attempts per item, first attempt included.
	MaxRetries  int
	BaseBackoff time.Duration
	// WaveDelay is the fixed pause between waves, smoothing provider
	// rate limits on top of per-request retry.
	WaveDelay time.Duration
}

func DefaultBatchConfig() BatchConfig {
	return BatchConfig{
		Concurrency: 5,
		MaxRetries:  3,
		BaseBackoff: time.Second,
		WaveDelay:   200 * time.Millisecond,
	}
}

func (c BatchConfig) normalize() BatchConfig {
	out := c
	def := DefaultBatchConfig()
	if out.Concurrency <= 0 {
		out.Concurrency = def.Concurrency
	}
	if out.MaxRetries <= 0 {
		out.MaxRetries = def.MaxRetries
	}
	if out.BaseBackoff <= 0 {
		out.BaseBackoff = def.BaseBackoff
	}
	if out.WaveDelay < 0 {
		out.WaveDelay = 0
	}
	return out
}

// BatchEmbedder fans items out to the embedding provider in sequential
// waves. Within a wave all requests run concurrently and are collected
// with allSettled semantics: one failure never aborts the wave.
// Cancellation is honored at wave boundaries only; requests of a started
// wave always run to completion.
type BatchEmbedder struct {
	provider ports.EmbeddingProvider
	cfg      BatchConfig
	limiter  *rate.Limiter
	logger   *slog.Logger
}

func NewBatchEmbedder(provider ports.EmbeddingProvider, cfg BatchConfig, logger *slog.Logger) *BatchEmbedder {
	cfg = cfg.normalize()
	if logger == nil {
		logger = slog.Default()
	}
	var limiter *rate.Limiter
	if cfg.WaveDelay > 0 {
		limiter = rate.NewLimiter(rate.Every(cfg.WaveDelay), 1)
	}
	return &BatchEmbedder{
		provider: provider,
		cfg:      cfg,
		limiter:  limiter,
		logger:   logger,
	}
}

type waveSlot struct {
	result  *domain.EmbeddingResult
	failure *domain.EmbeddingFailure
}

// Run embeds every item and reports per-wave progress on the optional
// channel. Sends never block; a slow subscriber just misses updates.
// Results keep wave-insertion order.
func (b *BatchEmbedder) Run(
	ctx context.Context,
	items []domain.EmbeddingItem,
	progress chan<- domain.BatchProgress,
) (domain.BatchOutcome, error) {
	outcome := domain.BatchOutcome{
		Results:  make([]domain.EmbeddingResult, 0, len(items)),
		Failures: make([]domain.EmbeddingFailure, 0),
	}
	if len(items) == 0 {
		return outcome, nil
	}

	start := time.Now()
	totalWaves := (len(items) + b.cfg.Concurrency - 1) / b.cfg.Concurrency
	var waveDurations time.Duration

	for wave := 0; wave < totalWaves; wave++ {
		if err := ctx.Err(); err != nil {
			b.finishStats(&outcome, start)
			return outcome, err
		}
		if b.limiter != nil && wave > 0 {
			if err := b.limiter.Wait(ctx); err != nil {
				b.finishStats(&outcome, start)
				return outcome, err
			}
		}

		lo := wave * b.cfg.Concurrency
		hi := lo + b.cfg.Concurrency
		if hi > len(items) {
			hi = len(items)
		}

		waveStart := time.Now()
		slots := b.runWave(ctx, items[lo:hi])
		waveDurations += time.Since(waveStart)

		for _, slot := range slots {
			if slot.result != nil {
				outcome.Results = append(outcome.Results, *slot.result)
			}
			if slot.failure != nil {
				outcome.Failures = append(outcome.Failures, *slot.failure)
			}
		}

		if progress != nil {
			avgWave := waveDurations / time.Duration(wave+1)
			update := domain.BatchProgress{
				Completed:    hi,
				Total:        len(items),
				Successful:   len(outcome.Results),
				Failed:       len(outcome.Failures),
				CurrentBatch: wave + 1,
				TotalBatches: totalWaves,
				ETA:          avgWave * time.Duration(totalWaves-wave-1),
			}
			select {
			case progress <- update:
			default:
			}
		}
	}

	b.finishStats(&outcome, start)
	return outcome, nil
}

func (b *BatchEmbedder) runWave(ctx context.Context, items []domain.EmbeddingItem) []waveSlot {
	// Requests of a started wave run to completion even if the caller
	// cancels; cancellation is re-checked at the next wave boundary.
	waveCtx := context.WithoutCancel(ctx)

	slots := make([]waveSlot, len(items))
	g := new(errgroup.Group)
	for i := range items {
		g.Go(func() error {
			item := items[i]
			vector, err := b.embedWithRetry(waveCtx, item)
			if err != nil {
				b.logger.Warn("batch_embed_item_failed", "id", item.ID, "error", err)
				slots[i].failure = &domain.EmbeddingFailure{ID: item.ID, Reason: err.Error()}
				return nil
			}
			slots[i].result = &domain.EmbeddingResult{ID: item.ID, Vector: vector}
			return nil
		})
	}
	_ = g.Wait()
	return slots
}

func (b *BatchEmbedder) embedWithRetry(ctx context.Context, item domain.EmbeddingItem) ([]float32, error) {
	text := truncateForProvider(item.Text, b.provider.MaxInputLength())

	var lastErr error
	backoff := b.cfg.BaseBackoff
	for attempt := 0; attempt < b.cfg.MaxRetries; attempt++ {
		vector, err := b.provider.Embed(ctx, text)
		if err == nil {
			return vector, nil
		}
		lastErr = err
		if !domain.IsRetryable(err) || attempt == b.cfg.MaxRetries-1 {
			return nil, err
		}

		timer := time.NewTimer(backoff)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, ctx.Err()
		case <-timer.C:
		}
		backoff *= 2
	}
	return nil, lastErr
}

func (b *BatchEmbedder) finishStats(outcome *domain.BatchOutcome, start time.Time) {
	outcome.Stats = domain.BatchStats{
		Successful: len(outcome.Results),
		Failed:     len(outcome.Failures),
		Duration:   time.Since(start),
	}
	if total := len(outcome.Results) + len(outcome.Failures); total > 0 {
		outcome.Stats.AvgPerItem = outcome.Stats.Duration / time.Duration(total)
	}
}
