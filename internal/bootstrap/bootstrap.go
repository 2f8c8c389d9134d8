package bootstrap

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/kirillkom/kb-retrieval/internal/cache"
	"github.com/kirillkom/kb-retrieval/internal/config"
	"github.com/kirillkom/kb-retrieval/internal/core/ports"
	"github.com/kirillkom/kb-retrieval/internal/core/usecase"
	"github.com/kirillkom/kb-retrieval/internal/infrastructure/keyword/bleve"
	"github.com/kirillkom/kb-retrieval/internal/infrastructure/llm/ollama"
	natsqueue "github.com/kirillkom/kb-retrieval/internal/infrastructure/queue/nats"
	"github.com/kirillkom/kb-retrieval/internal/infrastructure/repository/postgres"
	"github.com/kirillkom/kb-retrieval/internal/infrastructure/resilience"
	"github.com/kirillkom/kb-retrieval/internal/infrastructure/vector/qdrant"
)

// App owns every wired dependency of the retrieval pipeline. Both binaries
// build the same graph; the API serves it over HTTP while the indexer
// consumes the queue.
type App struct {
	SearchUC   *usecase.HybridSearchUseCase
	AnswerUC   *usecase.AnswerUseCase
	FeedbackUC *usecase.FeedbackUseCase
	IndexUC    *usecase.IndexUseCase

	Items  ports.KBItemStore
	Caches *cache.Service
	Queue  *natsqueue.Queue
	Logger *slog.Logger

	closeFn func()
}

func New(ctx context.Context, cfg config.Config, logger *slog.Logger) (*App, error) {
	if logger == nil {
		logger = slog.Default()
	}

	db, err := postgres.OpenDB(cfg.PostgresDSN)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	if err := postgres.EnsureSchema(ctx, db); err != nil {
		db.Close()
		return nil, fmt.Errorf("ensure schema: %w", err)
	}

	itemRepo := postgres.NewItemRepository(db)
	chunkRepo := postgres.NewChunkRepository(db)
	negativeRepo := postgres.NewNegativeExampleRepository(db)
	qualityRepo := postgres.NewQualityScoreRepository(db)

	executor := resilience.NewExecutor(resilience.DefaultConfig())

	queue, err := natsqueue.NewWithOptions(cfg.NATSURL, cfg.NATSSubject, natsqueue.Options{
		ResilienceExecutor: executor,
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("connect queue: %w", err)
	}

	keywordIndex, err := bleve.Open(cfg.KeywordIndexPath)
	if err != nil {
		queue.Close()
		db.Close()
		return nil, fmt.Errorf("open keyword index: %w", err)
	}

	ollamaClient := ollama.New(cfg.OllamaURL, cfg.OllamaGenModel, cfg.OllamaEmbedModel,
		ollama.WithExecutor(executor))
	embedder := ollama.NewEmbedder(ollamaClient, cfg.EmbedMaxInput)

	var completer ports.Completer
	if cfg.AnswerGenerative {
		completer = ollama.NewGenerator(ollamaClient)
	}

	vectorIndex := qdrant.New(cfg.QdrantURL, cfg.QdrantCollection)

	caches := cache.NewService(cache.ServiceConfig{
		Embedding: cache.Config{MaxSize: cfg.CacheEmbeddingSize, TTL: cfg.CacheEmbeddingTTL},
		Results:   cache.Config{MaxSize: cfg.CacheResultsSize, TTL: cfg.CacheResultsTTL},
		Answers:   cache.Config{MaxSize: cfg.CacheAnswersSize, TTL: cfg.CacheAnswersTTL},
	})

	expander := usecase.NewQueryExpander()
	reranker := usecase.NewReranker(qualityRepo)

	searchUC := usecase.NewHybridSearchUseCase(
		embedder, vectorIndex, keywordIndex, expander, reranker, caches,
		usecase.HybridSearchConfig{
			Weights: usecase.SourceWeights{
				Vector:  cfg.SearchVectorWeight,
				Keyword: cfg.SearchKeywordWeight,
			},
			RRFK:           cfg.SearchRRFK,
			MinSimilarity:  cfg.SearchMinSimilarity,
			CandidateLimit: cfg.SearchCandidateLimit,
			Timeout:        cfg.SearchTimeout,
		},
		logger,
	)

	feedbackUC := usecase.NewFeedbackUseCase(negativeRepo, usecase.DefaultFeedbackConfig(), logger)

	answerUC := usecase.NewAnswerUseCase(
		searchUC, chunkRepo, completer, feedbackUC, caches,
		usecase.AnswerConfig{
			MinSimilarity: cfg.AnswerMinSimilarity,
			MaxEvidence:   cfg.AnswerMaxEvidence,
			Temperature:   cfg.AnswerTemperature,
			MaxTokens:     cfg.AnswerMaxTokens,
		},
		logger,
	)

	batch := usecase.NewBatchEmbedder(embedder, usecase.BatchConfig{
		Concurrency: cfg.BatchConcurrency,
		MaxRetries:  cfg.BatchMaxRetries,
		BaseBackoff: cfg.BatchBaseBackoff,
		WaveDelay:   cfg.BatchWaveDelay,
	}, logger)

	indexUC := usecase.NewIndexUseCase(queue, batch, vectorIndex, keywordIndex, itemRepo, caches, logger)

	return &App{
		SearchUC:   searchUC,
		AnswerUC:   answerUC,
		FeedbackUC: feedbackUC,
		IndexUC:    indexUC,
		Items:      itemRepo,
		Caches:     caches,
		Queue:      queue,
		Logger:     logger,
		closeFn: func() {
			queue.Close()
			if err := keywordIndex.Close(); err != nil {
				logger.Warn("close keyword index", "error", err)
			}
			if err := db.Close(); err != nil {
				logger.Warn("close postgres", "error", err)
			}
		},
	}, nil
}

func (a *App) Close() {
	if a.closeFn != nil {
		a.closeFn()
	}
}
