package services

import (
	"context"
	"time"

	"github.com/zatekoja/handoff/backend/internal/domain/entities"
	"github.com/zatekoja/handoff/backend/internal/domain/providers"
	"github.com/zatekoja/handoff/backend/internal/domain/repositories"
	"github.com/zatekoja/handoff/backend/internal/infrastructure/observability"
	apperrors "github.com/zatekoja/handoff/backend/pkg/errors"
)

// ReportEmbedder embeds a report and makes it searchable.
// The pipeline and the embedding sweep share it.
type ReportEmbedder struct {
	reports  repositories.ReportRepository
	embedder providers.EmbeddingProvider
	index    providers.RetrievalIndex
	timeout  time.Duration
	now      func() time.Time
}

// NewReportEmbedder creates a report embedder
func NewReportEmbedder(
	reports repositories.ReportRepository,
	embedder providers.EmbeddingProvider,
	index providers.RetrievalIndex,
	timeout time.Duration,
) *ReportEmbedder {
	return &ReportEmbedder{
		reports:  reports,
		embedder: embedder,
		index:    index,
		timeout:  timeout,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// Embed stores a vector on the report, then upserts its retrieval entry.
// A report that already has a vector is only re-indexed.
func (e *ReportEmbedder) Embed(ctx context.Context, report *entities.Report) error {
	if !report.HasEmbedding() {
		callCtx, cancel := withOptionalTimeout(ctx, e.timeout)
		vector, err := e.embedder.Embed(callCtx, CanonicalReportText(report), entities.EmbeddingModeDocument)
		cancel()
		if err != nil {
			return err
		}
		if dims := e.embedder.Dimensions(); dims > 0 && len(vector) != dims {
			return apperrors.NewMalformedResponseError("embedding has unexpected dimensions", nil)
		}

		at := e.now()
		model := e.embedder.Model()
		if err := e.reports.SetEmbedding(ctx, report.ID, vector, model, at); err != nil {
			return err
		}
		report.Embedding = vector
		report.EmbeddingModel = &model
		report.EmbeddedAt = &at
	}

	if err := e.index.Upsert(ctx, entities.RetrievalEntry{
		ReportID:  report.ID,
		PatientID: report.PatientID,
		Vector:    report.Embedding,
		CreatedAt: report.CreatedAt,
	}); err != nil {
		return err
	}

	observability.LoggerFromContext(ctx).Debug().
		Str("report_id", report.ID).
		Str("patient_id", report.PatientID).
		Msg("report indexed")
	return nil
}

func withOptionalTimeout(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if d <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, d)
}
