package services

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/zatekoja/handoff/backend/internal/domain/repositories"
	"github.com/zatekoja/handoff/backend/internal/infrastructure/observability"
	"golang.org/x/sync/errgroup"
)

const sweepBatchSize = 100

// SweepSummary counts the outcome of an embedding sweep
type SweepSummary struct {
	Total    int `json:"total"`
	Embedded int `json:"embedded"`
	Failed   int `json:"failed"`
}

// EmbeddingSweepService embeds reports left without a vector
type EmbeddingSweepService struct {
	reports  repositories.ReportRepository
	embedder *ReportEmbedder
	workers  int
}

// NewEmbeddingSweepService creates a sweep with bounded parallelism
func NewEmbeddingSweepService(reports repositories.ReportRepository, embedder *ReportEmbedder, workers int) *EmbeddingSweepService {
	if workers <= 0 {
		workers = 1
	}
	return &EmbeddingSweepService{reports: reports, embedder: embedder, workers: workers}
}

// EmbedReport embeds one report, or re-indexes it if it already has a vector
func (s *EmbeddingSweepService) EmbedReport(ctx context.Context, reportID string) error {
	report, err := s.reports.GetByID(ctx, reportID)
	if err != nil {
		return err
	}
	return s.embedder.Embed(ctx, report)
}

// SweepMissing makes one pass over reports with a null vector.
// Reports that fail are counted once and not retried within the pass.
func (s *EmbeddingSweepService) SweepMissing(ctx context.Context) (*SweepSummary, error) {
	logger := observability.LoggerFromContext(ctx)
	seen := make(map[string]struct{})
	var embedded, failed int64

	for {
		page, err := s.reports.ListMissingEmbedding(ctx, sweepBatchSize)
		if err != nil {
			return nil, fmt.Errorf("failed to list reports missing embeddings: %w", err)
		}

		g, gctx := errgroup.WithContext(ctx)
		g.SetLimit(s.workers)
		fresh := 0
		for _, report := range page {
			if _, ok := seen[report.ID]; ok {
				continue
			}
			seen[report.ID] = struct{}{}
			fresh++

			report := report
			g.Go(func() error {
				if err := s.embedder.Embed(gctx, report); err != nil {
					atomic.AddInt64(&failed, 1)
					logger.Warn().Err(err).Str("report_id", report.ID).Msg("sweep failed to embed report")
					return nil
				}
				atomic.AddInt64(&embedded, 1)
				return nil
			})
		}
		_ = g.Wait()

		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if fresh == 0 || len(page) < sweepBatchSize {
			break
		}
	}

	summary := &SweepSummary{
		Total:    len(seen),
		Embedded: int(embedded),
		Failed:   int(failed),
	}
	if summary.Total > 0 {
		logger.Info().Int("total", summary.Total).Int("embedded", summary.Embedded).Int("failed", summary.Failed).Msg("embedding sweep finished")
	}
	return summary, nil
}

// ReindexEmbedded upserts every report that already has a vector into the index.
// Volatile indexes call it at startup; the embedding model is not called.
func (s *EmbeddingSweepService) ReindexEmbedded(ctx context.Context) (*SweepSummary, error) {
	logger := observability.LoggerFromContext(ctx)
	summary := &SweepSummary{}
	var failed int64
	after := ""

	for {
		page, err := s.reports.ListEmbedded(ctx, after, sweepBatchSize)
		if err != nil {
			return nil, fmt.Errorf("failed to list embedded reports: %w", err)
		}

		g, gctx := errgroup.WithContext(ctx)
		g.SetLimit(s.workers)
		for _, report := range page {
			report := report
			g.Go(func() error {
				if err := s.embedder.Embed(gctx, report); err != nil {
					atomic.AddInt64(&failed, 1)
					logger.Warn().Err(err).Str("report_id", report.ID).Msg("failed to re-index report")
				}
				return nil
			})
		}
		_ = g.Wait()

		if err := ctx.Err(); err != nil {
			return nil, err
		}
		summary.Total += len(page)
		if len(page) < sweepBatchSize {
			break
		}
		after = page[len(page)-1].ID
	}

	summary.Failed = int(failed)
	summary.Embedded = summary.Total - summary.Failed
	logger.Info().Int("total", summary.Total).Int("failed", summary.Failed).Msg("retrieval index rebuilt")
	return summary, nil
}

// Run sweeps on every tick until ctx is cancelled
func (s *EmbeddingSweepService) Run(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := s.SweepMissing(ctx); err != nil && ctx.Err() == nil {
				observability.LoggerFromContext(ctx).Error().Err(err).Msg("embedding sweep failed")
			}
		}
	}
}
