// Package wiring builds the backends selected by configuration.
package wiring

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"
	"github.com/zatekoja/handoff/backend/internal/adapters/blob"
	"github.com/zatekoja/handoff/backend/internal/adapters/cache"
	"github.com/zatekoja/handoff/backend/internal/adapters/events"
	"github.com/zatekoja/handoff/backend/internal/adapters/locks"
	"github.com/zatekoja/handoff/backend/internal/adapters/retrieval"
	"github.com/zatekoja/handoff/backend/internal/domain/providers"
	"github.com/zatekoja/handoff/backend/internal/infrastructure/clients/blobstorage"
	"github.com/zatekoja/handoff/backend/internal/infrastructure/clients/milvus"
	"github.com/zatekoja/handoff/backend/internal/infrastructure/clients/pgvector"
	"github.com/zatekoja/handoff/backend/internal/infrastructure/clients/redis"
	"github.com/zatekoja/handoff/backend/internal/infrastructure/clients/typesense"
	"github.com/zatekoja/handoff/backend/pkg/config"
)

// Coordination bundles the pieces that need Redis when several replicas run
type Coordination struct {
	Bus    providers.EventBus
	Locker providers.NoteLocker
	Cache  providers.CacheProvider
	Close  func()
}

// BuildCoordination prefers Redis and falls back to in-process implementations
func BuildCoordination(cfg *config.Config, logger *zerolog.Logger) Coordination {
	if cfg.Redis.Enabled {
		client, err := redis.NewClient(&cfg.Redis)
		if err == nil {
			logger.Info().Msg("Redis coordination enabled")
			return Coordination{
				Bus:    events.NewRedisEventBus(client),
				Locker: locks.NewRedisLocker(client),
				Cache:  cache.NewRedisAdapter(client),
				Close:  func() { _ = client.Close() },
			}
		}
		// single-replica fallback; two replicas without Redis could run a note twice
		logger.Warn().Err(err).Msg("Redis unavailable, using in-process bus and locks")
	}
	return Coordination{
		Bus:    events.NewLocalEventBus(),
		Locker: locks.NewLocalLocker(),
		Close:  func() {},
	}
}

// BuildBlobStore opens the azure or local audio store
func BuildBlobStore(ctx context.Context, cfg *config.BlobConfig) (providers.BlobStore, error) {
	switch cfg.Backend {
	case "azure":
		client, err := blobstorage.NewClient(ctx, cfg)
		if err != nil {
			return nil, err
		}
		return blob.NewAzureStore(client), nil
	case "local", "":
		return blob.NewLocalStore(cfg.LocalDir)
	default:
		return nil, fmt.Errorf("unsupported BLOB_BACKEND %q", cfg.Backend)
	}
}

// BuildRetrievalIndex opens the configured vector backend and makes sure its
// schema matches the embedding dimensions. The returned func releases it.
func BuildRetrievalIndex(ctx context.Context, cfg *config.Config) (providers.RetrievalIndex, func(), error) {
	dims := cfg.OpenAI.EmbeddingDimensions

	switch cfg.VectorStore.Backend {
	case "pgvector":
		dsn := cfg.VectorStore.DSN
		if dsn == "" {
			dsn = cfg.Database.DatabaseURL()
		}
		client, err := pgvector.NewClient(ctx, dsn)
		if err != nil {
			return nil, nil, err
		}
		if err := retrieval.EnsureSchema(ctx, client.Pool(), dims); err != nil {
			client.Close()
			return nil, nil, err
		}
		return retrieval.NewPgVectorIndex(client.Pool()), client.Close, nil

	case "typesense":
		client, err := typesense.NewClient(&cfg.Typesense)
		if err != nil {
			return nil, nil, err
		}
		if err := client.InitSchema(ctx, dims); err != nil {
			return nil, nil, err
		}
		return retrieval.NewTypesenseIndex(client), func() {}, nil

	case "milvus":
		client, err := milvus.NewClient(ctx, &cfg.Milvus)
		if err != nil {
			return nil, nil, err
		}
		if err := client.EnsureCollection(ctx, dims); err != nil {
			_ = client.Close()
			return nil, nil, err
		}
		return retrieval.NewMilvusIndex(client, dims), func() { _ = client.Close() }, nil

	default:
		return retrieval.NewMemoryIndex(), func() {}, nil
	}
}

// IndexIsVolatile reports whether the index loses its entries on restart and must be rebuilt from Postgres
func IndexIsVolatile(backend string) bool {
	switch backend {
	case "pgvector", "typesense", "milvus":
		return false
	default:
		return true
	}
}
