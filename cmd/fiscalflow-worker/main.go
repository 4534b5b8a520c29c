package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"fiscalflow/internal/amqp"
	"fiscalflow/internal/backend"
	"fiscalflow/internal/config"
	"fiscalflow/internal/entity"
	"fiscalflow/internal/log"
	"fiscalflow/internal/services"
	"fiscalflow/internal/worker"
)

func main() {
	// Load .env file for local development (ignore errors in production/docker)
	_ = godotenv.Load()

	cfg := config.Load()

	logger := log.New(log.Config{
		Level:     log.ParseLevel(cfg.LogLevel),
		Component: log.ComponentWorker,
	})
	log.SetDefault(logger)

	logger.Info("Starting fiscalflow-worker", log.FieldOperation, log.OpStartup)

	if err := cfg.Validate(); err != nil {
		logger.Error("Configuration validation failed", log.FieldError, err)
		os.Exit(1)
	}
	if cfg.DataBackend == string(backend.MemoryBackend) {
		logger.Warn("Worker runs on a private in-memory store; repairs are not visible to the server")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	backendCfg, err := backend.FromAppConfig(cfg)
	if err != nil {
		logger.Error("Invalid backend configuration", log.FieldError, err)
		os.Exit(1)
	}
	// The server may write behind a cache of its own; the worker reads the
	// store directly.
	backendCfg.CacheSize = 0
	res, err := backend.NewFactory(logger.Slog()).CreateBackend(ctx, backendCfg)
	if err != nil {
		logger.Error("Failed to create backend", log.FieldError, err, log.FieldBackend, cfg.DataBackend)
		os.Exit(1)
	}
	if res.Cleanup != nil {
		defer res.Cleanup()
	}

	h := entity.NewHandle(res.Store, entity.WithLogger(logger.Slog()))
	expenses := services.New(h, services.Options{Logger: logger}).Expenses()

	reconciler := worker.NewReconcileWorker(cfg.ReconcileInterval)
	reconciler.Register(expenses.Kind().Name, expenses)

	if err := reconciler.Start(ctx); err != nil {
		logger.Error("Failed to start reconcile worker", log.FieldError, err)
		os.Exit(1)
	}

	if cfg.AMQPURL != "" {
		amqpClient, err := amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue)
		if err != nil {
			logger.Error("Failed to initialize AMQP client", log.FieldError, err)
			os.Exit(1)
		}
		defer amqpClient.Close()

		go func() {
			if err := amqpClient.ConsumeWithRetry(ctx, reconciler.HandleMessage); err != nil && !errors.Is(err, context.Canceled) {
				logger.Error("Message consumption failed", log.FieldError, err)
				cancel()
			}
		}()
		logger.Info("Consuming entity change events", "queue", cfg.AMQPQueue)
	} else {
		logger.Info("AMQP disabled, relying on periodic sweeps", "interval", cfg.ReconcileInterval)
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigChan:
		logger.Info("Shutdown signal received", "signal", sig.String())
	case <-ctx.Done():
		logger.Info("Context cancelled")
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := reconciler.Stop(shutdownCtx); err != nil {
		logger.Warn("Shutdown timeout reached", log.FieldError, err)
	}
	cancel()
	logger.Info("Worker shutdown complete", log.FieldOperation, log.OpShutdown)
}
