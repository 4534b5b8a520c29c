package backend

import (
	"context"
	"fmt"
	"log/slog"

	"fiscalflow/internal/entity"
	"fiscalflow/internal/kv"
	"fiscalflow/internal/kv/bolt"
	"fiscalflow/internal/kv/cached"
	"fiscalflow/internal/kv/dynamo"
	"fiscalflow/internal/kv/memory"
	"fiscalflow/internal/kv/sqlite"
	"fiscalflow/internal/log"
)

// DefaultFactory implements the Factory interface
type DefaultFactory struct {
	logger *slog.Logger
}

// NewFactory creates a new backend factory
func NewFactory(logger *slog.Logger) Factory {
	if logger == nil {
		logger = slog.Default()
	}
	return &DefaultFactory{
		logger: logger.With(log.FieldComponent, log.ComponentBackend),
	}
}

// CreateBackend implements Factory.CreateBackend
func (f *DefaultFactory) CreateBackend(ctx context.Context, config Config) (*BackendResult, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}

	var (
		store kv.Store
		err   error
	)
	switch config.Type {
	case MemoryBackend:
		store = memory.New()
	case SQLiteBackend:
		store, err = sqlite.Open(config.SQLiteDBPath)
	case BoltBackend:
		store, err = bolt.Open(config.BoltDBPath)
	case DynamoDBBackend:
		store, err = dynamo.NewFromConfig(ctx, dynamo.Config{
			Table:    config.DynamoDBTable,
			Region:   config.AWSRegion,
			Endpoint: config.DynamoDBEndpoint,
		})
	default:
		return nil, fmt.Errorf("unsupported backend type: %s", config.Type)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to initialize %s backend: %w", config.Type, err)
	}

	if config.CacheSize > 0 {
		// Indexes are rewritten by the reconcile worker from another process.
		store = cached.New(store, config.CacheSize, config.CacheTTL, cached.WithBypass(entity.IndexKey("")))
	}

	f.logger.InfoContext(ctx, "Initialized backend",
		log.FieldBackend, config.Type.String(),
		"cache_size", config.CacheSize)

	return &BackendResult{
		Store:   store,
		Cleanup: cleanupFor(store),
	}, nil
}

func cleanupFor(store kv.Store) CleanupFunc {
	if c, ok := store.(kv.Closer); ok {
		return c.Close
	}
	return nil
}
