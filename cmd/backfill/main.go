package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/zatekoja/handoff/backend/internal/adapters/database"
	"github.com/zatekoja/handoff/backend/internal/application/services"
	"github.com/zatekoja/handoff/backend/internal/infrastructure/clients/openai"
	"github.com/zatekoja/handoff/backend/internal/infrastructure/clients/postgres"
	"github.com/zatekoja/handoff/backend/internal/infrastructure/observability"
	"github.com/zatekoja/handoff/backend/internal/infrastructure/wiring"
	"github.com/zatekoja/handoff/backend/pkg/config"
	"github.com/zatekoja/handoff/backend/pkg/secrets"
)

type backfillOptions struct {
	workers  int
	reportID string
}

func newRootCommand() *cobra.Command {
	opts := &backfillOptions{}
	cmd := &cobra.Command{
		Use:   "backfill",
		Short: "Embed reports that were stored without a vector",
		Long: `Embed every report whose vector is still missing and upsert it into the
configured retrieval index. With --report, embed or re-index a single report.`,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runBackfill(cmd.Context(), opts)
		},
	}

	cmd.Flags().IntVar(&opts.workers, "workers", 4, "Number of concurrent workers")
	cmd.Flags().StringVar(&opts.reportID, "report", "", "Single report ID to embed or re-index")

	return cmd
}

func main() {
	observability.InitLogger("handoff-backfill", os.Getenv("APP_ENV"))

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := newRootCommand().ExecuteContext(ctx); err != nil {
		cancel()
		os.Exit(1)
	}
}

func runBackfill(ctx context.Context, opts *backfillOptions) error {
	logger := observability.GetLogger()

	if _, err := secrets.ApplyVaultSecrets(ctx, secrets.LoadVaultConfigFromEnv("")); err != nil {
		return fmt.Errorf("loading secrets from vault: %w", err)
	}

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	pgClient, err := postgres.NewClient(&cfg.Database)
	if err != nil {
		return err
	}
	defer pgClient.Close()

	index, closeIndex, err := wiring.BuildRetrievalIndex(ctx, cfg)
	if err != nil {
		return fmt.Errorf("opening %s retrieval index: %w", cfg.VectorStore.Backend, err)
	}
	defer closeIndex()

	ai, err := openai.NewClient(&cfg.OpenAI)
	if err != nil {
		return err
	}
	defer ai.Close()

	reports := database.NewReportAdapter(pgClient)
	embedder := services.NewReportEmbedder(reports, ai, index, cfg.Pipeline.EmbeddingTimeout)
	svc := services.NewEmbeddingSweepService(reports, embedder, opts.workers)

	start := time.Now()

	if opts.reportID != "" {
		if err := svc.EmbedReport(ctx, opts.reportID); err != nil {
			return fmt.Errorf("embedding report %s: %w", opts.reportID, err)
		}
		logger.Info().Str("report_id", opts.reportID).Dur("elapsed", time.Since(start)).Msg("Report embedded")
		return nil
	}

	logger.Info().Int("workers", opts.workers).Msg("Starting embedding backfill")
	summary, err := svc.SweepMissing(ctx)
	if err != nil {
		return fmt.Errorf("backfill: %w", err)
	}
	logger.Info().
		Dur("elapsed", time.Since(start)).
		Int("total", summary.Total).
		Int("embedded", summary.Embedded).
		Int("failed", summary.Failed).
		Msg("Backfill complete")
	if summary.Failed > 0 {
		return fmt.Errorf("%d of %d reports could not be embedded", summary.Failed, summary.Total)
	}
	return nil
}
