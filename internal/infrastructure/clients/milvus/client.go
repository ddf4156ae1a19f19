package milvus

import (
	"context"
	"fmt"
	"time"

	"github.com/milvus-io/milvus-sdk-go/v2/client"
	"github.com/milvus-io/milvus-sdk-go/v2/entity"
	"github.com/rs/zerolog/log"
	"github.com/zatekoja/handoff/backend/pkg/config"
	"github.com/zatekoja/handoff/backend/pkg/retry"
)

// Field names of the report embedding collection
const (
	FieldReportID  = "report_id"
	FieldPatientID = "patient_id"
	FieldCreatedAt = "created_at"
	FieldVector    = "vector"
)

// Client wraps a Milvus connection bound to one collection
type Client struct {
	client     client.Client
	collection string
}

// NewClient connects to Milvus with exponential backoff retry
func NewClient(ctx context.Context, cfg *config.MilvusConfig) (*Client, error) {
	var mc client.Client
	err := retry.DoWithLog(ctx, retry.DefaultConfig(), "Milvus",
		func() error {
			dialCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
			defer cancel()
			c, err := client.NewClient(dialCtx, client.Config{
				Address:  cfg.Address,
				Username: cfg.Username,
				Password: cfg.Password,
			})
			if err != nil {
				return err
			}
			mc = c
			return nil
		},
		func(attempt int, err error, nextDelay time.Duration) {
			log.Warn().Err(err).Int("attempt", attempt).Dur("next_delay", nextDelay).Msg("Milvus connection attempt failed")
		},
	)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to Milvus after retries: %w", err)
	}

	log.Info().Str("address", cfg.Address).Msg("Successfully connected to Milvus")
	return &Client{client: mc, collection: cfg.Collection}, nil
}

// Client returns the SDK client
func (c *Client) Client() client.Client {
	return c.client
}

// Collection returns the collection name
func (c *Client) Collection() string {
	return c.collection
}

// EnsureCollection creates the collection and its cosine HNSW index, then loads it
func (c *Client) EnsureCollection(ctx context.Context, dimensions int) error {
	has, err := c.client.HasCollection(ctx, c.collection)
	if err != nil {
		return fmt.Errorf("has collection: %w", err)
	}
	if !has {
		schema := entity.NewSchema().
			WithName(c.collection).
			WithDescription("patient-scoped report embeddings").
			WithField(entity.NewField().WithName(FieldReportID).WithDataType(entity.FieldTypeVarChar).WithMaxLength(64).WithIsPrimaryKey(true)).
			WithField(entity.NewField().WithName(FieldPatientID).WithDataType(entity.FieldTypeVarChar).WithMaxLength(64)).
			WithField(entity.NewField().WithName(FieldCreatedAt).WithDataType(entity.FieldTypeInt64)).
			WithField(entity.NewField().WithName(FieldVector).WithDataType(entity.FieldTypeFloatVector).WithDim(int64(dimensions)))

		if err := c.client.CreateCollection(ctx, schema, int32(2)); err != nil {
			return fmt.Errorf("create collection: %w", err)
		}

		idx, err := entity.NewIndexHNSW(entity.COSINE, 8, 200)
		if err != nil {
			return fmt.Errorf("new hnsw index: %w", err)
		}
		if err := c.client.CreateIndex(ctx, c.collection, FieldVector, idx, false); err != nil {
			return fmt.Errorf("create index: %w", err)
		}
		log.Info().Str("collection", c.collection).Int("dimensions", dimensions).Msg("Created Milvus collection")
	}

	if err := c.client.LoadCollection(ctx, c.collection, false); err != nil {
		return fmt.Errorf("load collection: %w", err)
	}
	return nil
}

// Close closes the connection
func (c *Client) Close() error {
	return c.client.Close()
}
