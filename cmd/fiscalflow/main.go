package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"fiscalflow/internal/amqp"
	"fiscalflow/internal/backend"
	"fiscalflow/internal/cache"
	"fiscalflow/internal/config"
	"fiscalflow/internal/core"
	"fiscalflow/internal/entity"
	apphttp "fiscalflow/internal/http"
	"fiscalflow/internal/kv"
	"fiscalflow/internal/kv/cached"
	"fiscalflow/internal/log"
	"fiscalflow/internal/middleware/ratelimit"
	"fiscalflow/internal/services"
)

func main() {
	// Load .env file for local development (ignore errors in production/docker)
	_ = godotenv.Load()

	cfg := config.Load()

	logger := log.New(log.Config{
		Level:     log.ParseLevel(cfg.LogLevel),
		Component: log.ComponentApp,
	})
	log.SetDefault(logger)

	if err := cfg.Validate(); err != nil {
		logger.Error("Configuration validation failed", log.FieldError, err)
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	backendCfg, err := backend.FromAppConfig(cfg)
	if err != nil {
		logger.Error("Invalid backend configuration", log.FieldError, err)
		os.Exit(1)
	}
	res, err := backend.NewFactory(logger.Slog()).CreateBackend(ctx, backendCfg)
	if err != nil {
		logger.Error("Failed to create backend", log.FieldError, err, log.FieldBackend, cfg.DataBackend)
		os.Exit(1)
	}
	if res.Cleanup != nil {
		defer func() {
			if err := res.Cleanup(); err != nil {
				logger.Error("Backend cleanup failed", log.FieldError, err)
			}
		}()
	}

	opts := apphttp.Options{
		Logger: logger,
		RateLimit: ratelimit.Config{
			RequestsPerSecond: cfg.RateLimitRPS,
			Burst:             cfg.RateLimitBurst,
		},
		TrustedProxies: cfg.TrustedProxies,
		Ready: func(ctx context.Context) error {
			_, err := kv.Exists(ctx, res.Store, entity.IndexKey(core.ExpenseIndex))
			return err
		},
	}

	cacheManager := cache.NewManager()
	if c, ok := res.Store.(*cached.Store); ok {
		cacheManager.Register(c.Cache())
		cacheManager.StartCleanup(cfg.CacheTTL)
		defer cacheManager.Stop()
		opts.CacheStats = c.Cache().Stats
	}

	var seeds []core.Expense
	if cfg.SeedDir != "" {
		path := filepath.Join(cfg.SeedDir, core.ExpenseIndex+".json")
		seeds, err = entity.LoadSeedFile[core.Expense](path)
		if err != nil {
			logger.Error("Failed to load seed file", log.FieldError, err, "path", path)
			os.Exit(1)
		}
		logger.Info("Loaded seed records", log.FieldIndex, core.ExpenseIndex, log.FieldCount, len(seeds))
	}

	svcOpts := services.Options{Seeds: seeds, PageLimit: cfg.ListPageLimit, Logger: logger}
	if cfg.AMQPURL != "" {
		amqpClient, err := amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue)
		if err != nil {
			logger.Warn("Failed to initialize AMQP client, continuing without change events", log.FieldError, err)
		} else {
			defer amqpClient.Close()
			svcOpts.Publisher = amqpClient
			logger.Info("Initialized AMQP client", "exchange", cfg.AMQPExchange, "queue", cfg.AMQPQueue)
		}
	}

	h := entity.NewHandle(res.Store, entity.WithLogger(logger.Slog()))
	svc := services.New(h, svcOpts)

	if seeded, err := svc.Expenses().Seed(ctx); err != nil {
		logger.Error("Seeding expenses failed", log.FieldError, err)
		os.Exit(1)
	} else if seeded {
		logger.Info("Seeded expenses", log.FieldOperation, log.OpSeed, log.FieldCount, len(seeds))
	}

	srv := apphttp.NewServer(":"+cfg.Port, svc, opts)
	srv.MaxHeaderBytes = 1 << 16

	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
		sig := <-sigChan
		logger.Info("Shutdown signal received", "signal", sig.String())

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer shutdownCancel()

		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error("Server shutdown error", log.FieldError, err)
		}
		cancel()
	}()

	logger.Info("Starting fiscalflow server",
		log.FieldOperation, log.OpStartup,
		"port", cfg.Port,
		log.FieldBackend, cfg.DataBackend,
		"amqp_enabled", svcOpts.Publisher != nil)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("Server error", log.FieldError, err, "port", cfg.Port)
		os.Exit(1)
	}

	<-ctx.Done()
	logger.Info("Server stopped gracefully")
}
