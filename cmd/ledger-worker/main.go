package main

import (
	"context"
	"errors"
	"time"

	"ledger/internal/amqp"
	"ledger/internal/backend"
	"ledger/internal/cache"
	"ledger/internal/cli"
	"ledger/internal/config"
	"ledger/internal/log"
	"ledger/internal/worker"
)

const (
	seenCacheSize        = 10000
	seenCacheTTL         = 24 * time.Hour
	cacheCleanupInterval = 10 * time.Minute
)

func main() {
	cli.LoadEnvFile()

	cfg, err := cli.LoadConfig((*config.Config).ValidateWorker)
	if err != nil {
		cli.Fatal(log.Discard(), "Configuration validation failed", err)
	}
	logger := cli.SetupLogger(cfg.LogLevel)
	logger.Info("Starting ledger-worker", log.FieldOperation, log.OpStartup)

	ctx, stop := cli.SignalContext(context.Background(), logger)
	defer stop()

	backendCfg, err := backend.FromAppConfig(cfg)
	if err != nil {
		cli.Fatal(logger, "Invalid backend configuration", err)
	}
	sink, err := backend.NewFactory(logger).CreateExportSink(ctx, backendCfg)
	if err != nil {
		cli.Fatal(logger, "Failed to initialize export sink", err)
	}

	seen := cache.NewLRUCache[string](seenCacheSize, seenCacheTTL)
	caches := cache.NewManager(logger)
	caches.Register(seen)
	caches.StartCleanup(cacheCleanupInterval)
	defer caches.Stop()

	exporter := worker.NewExportWorker(sink, seen, logger)
	if err := exporter.StartupSync(ctx); err != nil {
		// Not fatal: duplicates are possible until the sheet is readable again.
		logger.Error("Failed startup sync", log.FieldError, err)
	}

	client, err := amqp.NewClient(ctx, cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue, logger)
	if err != nil {
		cli.Fatal(logger, "Failed to initialize AMQP client", err)
	}
	defer client.Close()

	if err := client.ConsumeEvents(ctx, exporter.HandleEventMessage); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("Message consumption failed", log.FieldError, err)
	}
	logger.Info("Worker stopped", log.FieldOperation, log.OpShutdown)
}
