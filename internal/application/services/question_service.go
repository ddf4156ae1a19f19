package services

import (
	"context"
	"strings"
	"time"

	"github.com/zatekoja/handoff/backend/internal/domain/entities"
	"github.com/zatekoja/handoff/backend/internal/domain/providers"
	"github.com/zatekoja/handoff/backend/internal/domain/repositories"
	"github.com/zatekoja/handoff/backend/internal/infrastructure/observability"
	apperrors "github.com/zatekoja/handoff/backend/pkg/errors"
	"go.opentelemetry.io/otel/attribute"
)

// NotFoundAnswer is returned without calling the answer model when nothing relevant was retrieved.
const NotFoundAnswer = "I could not find that information in this patient's charts."

// AnswerSystemInstruction constrains the answer model to the retrieved reports.
const AnswerSystemInstruction = `You are a clinical handoff assistant answering questions about one patient.
Answer only from the reports provided in the context. Do not use outside knowledge and do not guess.
If the context does not contain the answer, say explicitly that the information is not in the charts.
Cite the report label, for example [Report 1], for every statement you make.
Keep the answer short and factual.`

// QuestionOptions tunes retrieval
type QuestionOptions struct {
	TopK          int
	MinSimilarity float64
	Timeout       time.Duration
}

// QuestionService answers questions from a patient's own reports
type QuestionService struct {
	embedder providers.EmbeddingProvider
	index    providers.RetrievalIndex
	reports  repositories.ReportRepository
	answerer providers.AnswerProvider
	opts     QuestionOptions
	metrics  *observability.Metrics
}

// NewQuestionService creates a question service
func NewQuestionService(
	embedder providers.EmbeddingProvider,
	index providers.RetrievalIndex,
	reports repositories.ReportRepository,
	answerer providers.AnswerProvider,
	opts QuestionOptions,
	metrics *observability.Metrics,
) *QuestionService {
	if opts.TopK <= 0 {
		opts.TopK = 3
	}
	return &QuestionService{
		embedder: embedder,
		index:    index,
		reports:  reports,
		answerer: answerer,
		opts:     opts,
		metrics:  metrics,
	}
}

// Ask embeds the question, retrieves the patient's closest reports and
// answers from them. Sources follow the order of the context blocks.
func (s *QuestionService) Ask(ctx context.Context, patientID, question string) (*entities.Answer, error) {
	patientID = strings.TrimSpace(patientID)
	question = strings.TrimSpace(question)
	if patientID == "" {
		return nil, apperrors.NewValidationError("patient id is required")
	}
	if question == "" {
		return nil, apperrors.NewValidationError("question is required")
	}

	ctx, span := observability.StartSpan(ctx, "qa.ask", attribute.String("patient.id", patientID))
	defer span.End()
	ctx, cancel := withOptionalTimeout(ctx, s.opts.Timeout)
	defer cancel()
	logger := observability.LoggerFromContext(ctx).With().Str("patient_id", patientID).Logger()

	vector, err := s.embedder.Embed(ctx, question, entities.EmbeddingModeQuery)
	if err != nil {
		observability.RecordError(span, err)
		return nil, err
	}

	matches, err := s.index.Search(ctx, entities.RetrievalQuery{
		PatientID:     patientID,
		Vector:        vector,
		TopK:          s.opts.TopK,
		MinSimilarity: s.opts.MinSimilarity,
	})
	if err != nil {
		observability.RecordError(span, err)
		return nil, err
	}
	for _, m := range matches {
		if m.PatientID != patientID {
			logger.Error().Str("report_id", m.ReportID).Str("match_patient_id", m.PatientID).Msg("retrieval returned another patient's report")
			return nil, apperrors.NewScopeViolationError("retrieval returned a report outside the patient scope")
		}
	}
	if len(matches) == 0 {
		return s.notFound(ctx), nil
	}

	ids := make([]string, len(matches))
	for i, m := range matches {
		ids[i] = m.ReportID
	}
	loaded, err := s.reports.GetByIDs(ctx, patientID, ids)
	if err != nil {
		observability.RecordError(span, err)
		return nil, err
	}
	byID := make(map[string]*entities.Report, len(loaded))
	for _, r := range loaded {
		if r.PatientID != patientID {
			logger.Error().Str("report_id", r.ID).Msg("report store returned another patient's report")
			return nil, apperrors.NewScopeViolationError("report outside the patient scope")
		}
		byID[r.ID] = r
	}

	blocks := make([]AnswerContextBlock, 0, len(matches))
	sources := make([]entities.AnswerSource, 0, len(matches))
	for _, m := range matches {
		r, ok := byID[m.ReportID]
		if !ok {
			logger.Warn().Str("report_id", m.ReportID).Msg("indexed report no longer in store")
			continue
		}
		blocks = append(blocks, AnswerContextBlock{Report: r, Similarity: m.Similarity})
		sources = append(sources, entities.AnswerSource{
			ReportID:   r.ID,
			ShiftType:  r.ShiftType,
			CreatedAt:  r.CreatedAt,
			Similarity: m.Similarity,
		})
	}
	if len(blocks) == 0 {
		return s.notFound(ctx), nil
	}

	text, err := s.answerer.Answer(ctx, AnswerSystemInstruction, BuildAnswerContext(blocks), question)
	if err != nil {
		observability.RecordError(span, err)
		return nil, err
	}

	observability.RecordQuestion(ctx, s.metrics, true)
	logger.Info().Int("sources", len(sources)).Msg("question answered")
	return &entities.Answer{Text: text, Found: true, Sources: sources}, nil
}

func (s *QuestionService) notFound(ctx context.Context) *entities.Answer {
	observability.RecordQuestion(ctx, s.metrics, false)
	return &entities.Answer{Text: NotFoundAnswer, Found: false, Sources: []entities.AnswerSource{}}
}
