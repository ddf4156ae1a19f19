package services

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"github.com/zatekoja/handoff/backend/internal/adapters/retrieval"
	"github.com/zatekoja/handoff/backend/internal/domain/entities"
	apperrors "github.com/zatekoja/handoff/backend/pkg/errors"
)

type questionHarness struct {
	reports  *memReportRepo
	index    *retrieval.MemoryIndex
	embedder *mockEmbedder
	answerer *mockAnswerer
	svc      *QuestionService
}

func newQuestionHarness() *questionHarness {
	h := &questionHarness{
		reports:  newMemReportRepo(),
		index:    retrieval.NewMemoryIndex(),
		embedder: new(mockEmbedder),
		answerer: new(mockAnswerer),
	}
	h.svc = NewQuestionService(h.embedder, h.index, h.reports, h.answerer,
		QuestionOptions{TopK: 3, MinSimilarity: 0.3, Timeout: time.Second}, nil)
	return h
}

func (h *questionHarness) addReport(t *testing.T, id, patientID, summary string, vec []float32, created time.Time) {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, h.reports.CreateWithTasks(ctx, &entities.Report{
		ID: id, PatientID: patientID, NoteID: "note-" + id, Summary: summary,
		ShiftType: entities.ShiftForTime(created), Consciousness: entities.ConsciousnessAlert, CreatedAt: created,
	}, nil))
	require.NoError(t, h.reports.SetEmbedding(ctx, id, vec, "m", created))
	require.NoError(t, h.index.Upsert(ctx, entities.RetrievalEntry{ReportID: id, PatientID: patientID, Vector: vec, CreatedAt: created}))
}

func TestAsk_AnswersFromPatientReportsInSimilarityOrder(t *testing.T) {
	h := newQuestionHarness()
	day := time.Date(2026, 1, 10, 9, 0, 0, 0, time.UTC)
	h.addReport(t, "r-far", "p1", "Ate breakfast.", []float32{0.6, 0.8, 0}, day)
	h.addReport(t, "r-near", "p1", "Pain 3, stable.", []float32{1, 0, 0}, day.Add(8*time.Hour))
	h.addReport(t, "r-other", "p2", "Other patient.", []float32{1, 0, 0}, day)

	h.embedder.On("Embed", mock.Anything, "How is the pain?", entities.EmbeddingModeQuery).Return([]float32{1, 0, 0}, nil).Once()
	h.answerer.On("Answer", mock.Anything, AnswerSystemInstruction,
		mock.MatchedBy(func(ctx string) bool {
			return strings.Index(ctx, "(id r-near)") < strings.Index(ctx, "(id r-far)") &&
				!strings.Contains(ctx, "r-other")
		}), "How is the pain?").
		Return("Pain is 3/10 [Report 1].", nil).Once()

	answer, err := h.svc.Ask(context.Background(), "p1", "How is the pain?")
	require.NoError(t, err)
	assert.True(t, answer.Found)
	assert.Equal(t, "Pain is 3/10 [Report 1].", answer.Text)
	require.Len(t, answer.Sources, 2)
	assert.Equal(t, "r-near", answer.Sources[0].ReportID)
	assert.Equal(t, entities.ShiftEvening, answer.Sources[0].ShiftType)
	assert.Equal(t, "r-far", answer.Sources[1].ReportID)
	assert.Greater(t, answer.Sources[0].Similarity, answer.Sources[1].Similarity)
	h.answerer.AssertExpectations(t)
}

func TestAsk_BelowFloorShortCircuits(t *testing.T) {
	h := newQuestionHarness()
	h.addReport(t, "r1", "p1", "Unrelated.", []float32{0, 1, 0}, time.Now())
	h.embedder.On("Embed", mock.Anything, mock.Anything, entities.EmbeddingModeQuery).Return([]float32{1, 0, 0}, nil).Once()

	answer, err := h.svc.Ask(context.Background(), "p1", "Any allergies?")
	require.NoError(t, err)
	assert.False(t, answer.Found)
	assert.Equal(t, NotFoundAnswer, answer.Text)
	assert.Empty(t, answer.Sources)
	h.answerer.AssertNotCalled(t, "Answer", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestAsk_NeverReturnsOtherPatient(t *testing.T) {
	h := newQuestionHarness()
	h.addReport(t, "r2", "p2", "Closest but other patient.", []float32{1, 0, 0}, time.Now())
	h.embedder.On("Embed", mock.Anything, mock.Anything, mock.Anything).Return([]float32{1, 0, 0}, nil).Once()

	answer, err := h.svc.Ask(context.Background(), "p1", "Pain?")
	require.NoError(t, err)
	assert.False(t, answer.Found)
}

// leakyIndex ignores the patient filter to exercise the service guard
type leakyIndex struct{}

func (leakyIndex) Upsert(context.Context, entities.RetrievalEntry) error { return nil }

func (leakyIndex) Search(context.Context, entities.RetrievalQuery) ([]entities.RetrievalMatch, error) {
	return []entities.RetrievalMatch{{ReportID: "r2", PatientID: "p2", Similarity: 0.9}}, nil
}

func TestAsk_ScopeViolation(t *testing.T) {
	embedder := new(mockEmbedder)
	answerer := new(mockAnswerer)
	embedder.On("Embed", mock.Anything, mock.Anything, mock.Anything).Return([]float32{1, 0, 0}, nil)
	svc := NewQuestionService(embedder, leakyIndex{}, newMemReportRepo(), answerer, QuestionOptions{TopK: 3, MinSimilarity: 0.3}, nil)

	_, err := svc.Ask(context.Background(), "p1", "Pain?")
	assert.True(t, apperrors.IsType(err, apperrors.ErrorTypeScopeViolation))
	answerer.AssertNotCalled(t, "Answer", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestAsk_AdapterFailuresPropagate(t *testing.T) {
	h := newQuestionHarness()
	h.addReport(t, "r1", "p1", "Stable.", []float32{1, 0, 0}, time.Now())
	h.embedder.On("Embed", mock.Anything, mock.Anything, mock.Anything).Return([]float32{1, 0, 0}, nil)
	h.answerer.On("Answer", mock.Anything, mock.Anything, mock.Anything, mock.Anything).
		Return("", apperrors.NewTransientError("openai answer: status 503", nil))

	answer, err := h.svc.Ask(context.Background(), "p1", "Pain?")
	assert.Nil(t, answer)
	assert.True(t, apperrors.IsTransient(err))
}

func TestAsk_Validation(t *testing.T) {
	h := newQuestionHarness()
	_, err := h.svc.Ask(context.Background(), "p1", "   ")
	assert.True(t, apperrors.IsType(err, apperrors.ErrorTypeValidation))
	_, err = h.svc.Ask(context.Background(), "", "Pain?")
	assert.True(t, apperrors.IsType(err, apperrors.ErrorTypeValidation))
}
