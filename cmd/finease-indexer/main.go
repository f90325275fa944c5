package main

import (
	"context"
	"errors"
	"os"
	"time"

	"finease/internal/cli"
	"finease/internal/config"
	"finease/internal/log"
	"finease/internal/search"
	"finease/internal/worker"
)

const (
	startupTimeout  = 2 * time.Minute
	shutdownTimeout = 30 * time.Second
)

func main() {
	cli.LoadEnvFile()
	cfg, logger := cli.LoadConfig(os.Stdout, (*config.Config).ValidateIndexer)
	logger = logger.WithComponent(log.ComponentIndexer)
	logger.Info("Starting finease-indexer", log.FieldOperation, log.OpStartup)

	startCtx, cancelStart := context.WithTimeout(context.Background(), startupTimeout)
	res := cli.OpenBackend(startCtx, logger, cfg, true)
	cancelStart()

	fail := func(msg string, err error) {
		logger.Error(msg, log.FieldError, err)
		_ = res.Cleanup()
		os.Exit(1)
	}

	index, err := search.New(cfg.ElasticsearchURLs, cfg.ElasticsearchIndex)
	if err != nil {
		fail("Failed to create Elasticsearch client", err)
	}

	ctx, done := cli.GracefulShutdown(logger, shutdownTimeout, func(context.Context) {
		if err := res.Cleanup(); err != nil {
			logger.Error("Backend cleanup error", log.FieldError, err)
		}
	})

	if err := index.EnsureIndex(ctx); err != nil {
		fail("Failed to create search index", err)
	}

	w := worker.NewIndexWorker(res.Store, index)

	// The startup pass catches up on events published while the indexer
	// was down.
	if _, err := w.Reindex(ctx); err != nil {
		logger.Error("Startup reindex failed", log.FieldError, err)
	}

	stop, err := w.Schedule(ctx, cfg.ReindexSchedule)
	if err != nil {
		fail("Failed to schedule reindex", err)
	}
	defer stop()

	go func() {
		err := res.Publisher.ConsumeTransactionEvents(ctx, w.HandleEvent)
		if err != nil && !errors.Is(err, context.Canceled) {
			logger.Error("Event consumption stopped", log.FieldError, err)
		}
	}()

	logger.Info("Indexer running",
		"index", index.Name(),
		"schedule", cfg.ReindexSchedule,
		"queue", cfg.AMQPQueue)

	cli.WaitForShutdown(ctx, done)
	logger.Info("Indexer stopped")
}
