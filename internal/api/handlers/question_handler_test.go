package handlers_test

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"github.com/zatekoja/handoff/backend/internal/api/handlers"
	"github.com/zatekoja/handoff/backend/internal/domain/entities"
	apperrors "github.com/zatekoja/handoff/backend/pkg/errors"
)

func askRequest(body string) *http.Request {
	req := httptest.NewRequest(http.MethodPost, "/api/patients/p1/questions", strings.NewReader(body))
	req.SetPathValue("id", "p1")
	return req
}

func TestQuestionHandler_Ask(t *testing.T) {
	svc := new(MockQuestionService)
	h := handlers.NewQuestionHandler(svc)
	svc.On("Ask", mock.Anything, "p1", "How is the pain?").Return(&entities.Answer{
		Text:    "Pain 3/10 [Report 1].",
		Found:   true,
		Sources: []entities.AnswerSource{{ReportID: "r1", ShiftType: entities.ShiftDay, Similarity: 0.8}},
	}, nil)

	w := httptest.NewRecorder()
	h.Ask(w, askRequest(`{"question":"  How is the pain? "}`))

	require.Equal(t, http.StatusOK, w.Code)
	var resp entities.Answer
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.True(t, resp.Found)
	assert.Equal(t, "Pain 3/10 [Report 1].", resp.Text)
	require.Len(t, resp.Sources, 1)
	assert.Equal(t, "r1", resp.Sources[0].ReportID)
}

func TestQuestionHandler_Errors(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
		wantBody   string
	}{
		{"adapter down", apperrors.NewTransientError("openai answer: status 503 upstream body", nil), http.StatusServiceUnavailable, "could not reach the assistant"},
		{"store down", apperrors.NewInternalError("failed to load reports", nil), http.StatusServiceUnavailable, "could not reach the assistant"},
		{"scope violation", apperrors.NewScopeViolationError("leak"), http.StatusInternalServerError, "internal server error"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := new(MockQuestionService)
			h := handlers.NewQuestionHandler(svc)
			svc.On("Ask", mock.Anything, "p1", "Pain?").Return(nil, tt.err)

			w := httptest.NewRecorder()
			h.Ask(w, askRequest(`{"question":"Pain?"}`))

			assert.Equal(t, tt.wantStatus, w.Code)
			assert.Contains(t, w.Body.String(), tt.wantBody)
			assert.NotContains(t, w.Body.String(), "upstream body")
		})
	}
}

func TestQuestionHandler_BadRequest(t *testing.T) {
	svc := new(MockQuestionService)
	h := handlers.NewQuestionHandler(svc)

	for _, body := range []string{`not json`, `{"question":"   "}`, `{"question":"` + strings.Repeat("a", 1001) + `"}`} {
		w := httptest.NewRecorder()
		h.Ask(w, askRequest(body))
		assert.Equal(t, http.StatusBadRequest, w.Code)
	}
	svc.AssertNotCalled(t, "Ask", mock.Anything, mock.Anything, mock.Anything)
}
