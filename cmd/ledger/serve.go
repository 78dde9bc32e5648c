package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"ledger/internal/amqp"
	"ledger/internal/auth"
	"ledger/internal/backend"
	"ledger/internal/cache"
	"ledger/internal/cli"
	"ledger/internal/core"
	apphttp "ledger/internal/http"
	"ledger/internal/log"
	"ledger/internal/services"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

const (
	shutdownTimeout      = 30 * time.Second
	cacheCleanupInterval = time.Minute
)

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API and the event relay",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := cli.LoadConfig(nil)
			if err != nil {
				return err
			}
			logger := cli.SetupLogger(cfg.LogLevel)

			ctx, stop := cli.SignalContext(cmd.Context(), logger)
			defer stop()

			backendCfg, err := backend.FromAppConfig(cfg)
			if err != nil {
				return err
			}
			store, err := backend.NewFactory(logger).CreateStore(ctx, backendCfg)
			if err != nil {
				return err
			}
			defer func() {
				if err := store.Cleanup(); err != nil {
					logger.Error("Failed to close store", log.FieldError, err)
				}
			}()

			outcomes := cache.NewLRUCache[[]core.Outcome](cfg.CacheSize, cfg.CacheTTL)
			caches := cache.NewManager(logger)
			caches.Register(outcomes)
			caches.StartCleanup(cacheCleanupInterval)
			defer caches.Stop()

			ledger := services.NewLedgerService(store.Store,
				services.WithOutcomeCache(outcomes),
				services.WithLogger(logger))

			verifier, err := auth.NewVerifier(cfg.JWTSecret)
			if err != nil {
				return err
			}

			srv := apphttp.NewServer(apphttp.Config{
				Addr:               ":" + cfg.Port,
				Ledger:             ledger,
				Store:              store.Store,
				Verifier:           verifier,
				RateLimitPerMinute: cfg.RateLimitPerMinute,
				Logger:             logger,
			})

			g, gctx := errgroup.WithContext(ctx)

			g.Go(func() error {
				logger.Info("Starting ledger server",
					"port", cfg.Port,
					"backend", cfg.DataBackend,
					log.FieldOperation, log.OpStartup)
				if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					return fmt.Errorf("http server: %w", err)
				}
				return nil
			})

			g.Go(func() error {
				<-gctx.Done()
				shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
				defer cancel()
				if err := srv.Shutdown(shutdownCtx); err != nil {
					return fmt.Errorf("server shutdown: %w", err)
				}
				logger.Info("Server stopped gracefully", log.FieldOperation, log.OpShutdown)
				return nil
			})

			if cfg.RelayEnabled() {
				client, err := amqp.NewClient(gctx, cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue, logger)
				if err != nil {
					stop()
					_ = g.Wait()
					return fmt.Errorf("connect AMQP: %w", err)
				}
				defer client.Close()

				relayCfg := services.DefaultEventRelayConfig()
				relayCfg.BatchSize = cfg.RelayBatchSize
				relayCfg.PollInterval = cfg.RelayInterval
				relay := services.NewEventRelay(store.Store, client, relayCfg, logger)
				g.Go(func() error { return relay.Run(gctx) })
			} else {
				logger.Info("AMQP_URL not set, ledger events stay in the outbox")
			}

			return g.Wait()
		},
	}
}
