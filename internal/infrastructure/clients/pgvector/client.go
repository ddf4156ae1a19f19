package pgvector

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog/log"
	"github.com/zatekoja/handoff/backend/pkg/retry"
)

// Client holds the pgx pool used for vector similarity queries
type Client struct {
	pool *pgxpool.Pool
}

// NewClient connects to PostgreSQL with the pgvector extension installed
func NewClient(ctx context.Context, url string) (*Client, error) {
	poolCfg, err := pgxpool.ParseConfig(url)
	if err != nil {
		return nil, fmt.Errorf("failed to parse pgvector DSN: %w", err)
	}
	poolCfg.MaxConns = 10
	poolCfg.MaxConnIdleTime = 5 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create pgvector pool: %w", err)
	}

	err = retry.DoWithLog(ctx, retry.DefaultConfig(), "pgvector",
		func() error {
			pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
			defer cancel()
			return pool.Ping(pingCtx)
		},
		func(attempt int, err error, nextDelay time.Duration) {
			log.Warn().Err(err).Int("attempt", attempt).Dur("next_delay", nextDelay).Msg("pgvector connection attempt failed")
		},
	)
	if err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to connect to pgvector after retries: %w", err)
	}

	log.Info().Msg("Successfully connected to pgvector")
	return &Client{pool: pool}, nil
}

// Pool returns the underlying pool
func (c *Client) Pool() *pgxpool.Pool {
	return c.pool
}

// Close releases every pooled connection
func (c *Client) Close() {
	c.pool.Close()
}
