package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/kirillkom/kb-retrieval/internal/bootstrap"
	"github.com/kirillkom/kb-retrieval/internal/config"
	"github.com/kirillkom/kb-retrieval/internal/core/domain"
	"github.com/kirillkom/kb-retrieval/internal/observability/logging"
	"github.com/kirillkom/kb-retrieval/internal/observability/metrics"
)

const serviceName = "kb-retrieval-indexer"

func main() {
	cfg := config.Load()
	logger := logging.NewJSONLogger(serviceName, cfg.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app, err := bootstrap.New(ctx, cfg, logger)
	if err != nil {
		logger.Error("bootstrap failed", "error", err)
		os.Exit(1)
	}
	defer app.Close()

	m := metrics.NewIndexerMetrics(serviceName)
	metricsServer := &http.Server{
		Addr:    ":" + cfg.IndexerMetricsPort,
		Handler: m.Handler(),
	}
	go func() {
		if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("metrics server failed", "error", err)
		}
	}()
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = metricsServer.Shutdown(shutdownCtx)
	}()

	logger.Info("indexer subscribed", "subject", cfg.NATSSubject)
	err = app.Queue.SubscribeIndexRequests(ctx, func(handlerCtx context.Context, items []domain.EmbeddingItem) error {
		processCtx, cancel := context.WithTimeout(handlerCtx, 5*time.Minute)
		defer cancel()

		m.StartBatch(serviceName, len(items))
		start := time.Now()
		outcome, err := app.IndexUC.ProcessBatch(processCtx, items)
		m.FinishBatch(serviceName, time.Since(start), outcome.Stats.Successful, outcome.Stats.Failed, err)
		return err
	})
	if err != nil {
		logger.Error("indexer subscribe failed", "error", err)
		os.Exit(1)
	}
}
