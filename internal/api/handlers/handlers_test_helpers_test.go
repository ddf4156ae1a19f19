package handlers_test

import (
	"context"

	"github.com/stretchr/testify/mock"
	"github.com/zatekoja/handoff/backend/internal/application/services"
	"github.com/zatekoja/handoff/backend/internal/domain/entities"
)

type MockNoteService struct {
	mock.Mock
}

func (m *MockNoteService) SubmitNote(ctx context.Context, in services.SubmitNoteInput) (*entities.Note, error) {
	args := m.Called(ctx, in)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*entities.Note), args.Error(1)
}

func (m *MockNoteService) RetryNote(ctx context.Context, noteID string) (*entities.Note, error) {
	args := m.Called(ctx, noteID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*entities.Note), args.Error(1)
}

func (m *MockNoteService) GetNote(ctx context.Context, noteID string) (*entities.Note, error) {
	args := m.Called(ctx, noteID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*entities.Note), args.Error(1)
}

func (m *MockNoteService) GetReport(ctx context.Context, noteID string) (*services.ReportView, error) {
	args := m.Called(ctx, noteID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*services.ReportView), args.Error(1)
}

type MockQuestionService struct {
	mock.Mock
}

func (m *MockQuestionService) Ask(ctx context.Context, patientID, question string) (*entities.Answer, error) {
	args := m.Called(ctx, patientID, question)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*entities.Answer), args.Error(1)
}

type MockSweeper struct {
	mock.Mock
}

func (m *MockSweeper) EmbedReport(ctx context.Context, reportID string) error {
	return m.Called(ctx, reportID).Error(0)
}

func (m *MockSweeper) SweepMissing(ctx context.Context) (*services.SweepSummary, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*services.SweepSummary), args.Error(1)
}
