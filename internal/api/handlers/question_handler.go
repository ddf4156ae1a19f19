package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/zatekoja/handoff/backend/internal/domain/entities"
	apperrors "github.com/zatekoja/handoff/backend/pkg/errors"
)

const (
	maxQuestionLength  = 1000
	assistantDownError = "could not reach the assistant, try again"
)

// QuestionService answers patient-scoped questions.
type QuestionService interface {
	Ask(ctx context.Context, patientID, question string) (*entities.Answer, error)
}

// QuestionHandler serves the Q&A endpoint.
type QuestionHandler struct {
	service QuestionService
}

// NewQuestionHandler creates a question handler.
func NewQuestionHandler(service QuestionService) *QuestionHandler {
	return &QuestionHandler{service: service}
}

type questionRequest struct {
	Question string `json:"question"`
}

// Ask handles POST /api/patients/{id}/questions
func (h *QuestionHandler) Ask(w http.ResponseWriter, r *http.Request) {
	patientID := r.PathValue("id")
	if patientID == "" {
		respondWithError(w, http.StatusBadRequest, "patient ID is required")
		return
	}

	var payload questionRequest
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		respondWithError(w, http.StatusBadRequest, "invalid request payload")
		return
	}
	payload.Question = strings.TrimSpace(payload.Question)
	if payload.Question == "" {
		respondWithError(w, http.StatusBadRequest, "question is required")
		return
	}
	if len(payload.Question) > maxQuestionLength {
		respondWithError(w, http.StatusBadRequest, "question is too long")
		return
	}

	answer, err := h.service.Ask(r.Context(), patientID, payload.Question)
	if err != nil {
		// no partial answers: anything but bad input or a scope breach reads as unavailable
		if apperrors.IsType(err, apperrors.ErrorTypeValidation) || apperrors.IsType(err, apperrors.ErrorTypeScopeViolation) {
			respondWithAppError(w, r, err)
			return
		}
		logAppError(r, err, http.StatusServiceUnavailable)
		respondWithError(w, http.StatusServiceUnavailable, assistantDownError)
		return
	}

	respondWithJSON(w, http.StatusOK, answer)
}
