package postgres

import (
	"context"
	_ "embed"
	"fmt"
	"strings"

	"github.com/lib/pq"
	"github.com/rs/zerolog/log"
)

//go:embed schema.sql
var schemaSQL string

// SchemaSQL renders the schema with the change-feed channel filled in.
func SchemaSQL(notifyChannel string) string {
	return strings.ReplaceAll(schemaSQL, "{{channel}}", pq.QuoteLiteral(notifyChannel))
}

// Migrate creates the notes, reports and tasks tables and the triggers that
// publish row changes on notifyChannel. Every statement is idempotent.
func (c *Client) Migrate(ctx context.Context, notifyChannel string) error {
	if notifyChannel == "" {
		return fmt.Errorf("notify channel is required")
	}
	if _, err := c.db.ExecContext(ctx, SchemaSQL(notifyChannel)); err != nil {
		return fmt.Errorf("failed to apply schema: %w", err)
	}
	log.Info().Str("channel", notifyChannel).Msg("Database schema is up to date")
	return nil
}
