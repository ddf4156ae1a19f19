package handlers

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/zatekoja/handoff/backend/internal/application/services"
	"github.com/zatekoja/handoff/backend/internal/domain/entities"
)

// NoteService is what the note handler needs from the application layer.
type NoteService interface {
	SubmitNote(ctx context.Context, in services.SubmitNoteInput) (*entities.Note, error)
	RetryNote(ctx context.Context, noteID string) (*entities.Note, error)
	GetNote(ctx context.Context, noteID string) (*entities.Note, error)
	GetReport(ctx context.Context, noteID string) (*services.ReportView, error)
}

// NoteHandler serves uploads, status polling, retries and reports.
type NoteHandler struct {
	service        NoteService
	maxUploadBytes int64
}

// NewNoteHandler creates a note handler; maxUploadBytes bounds the multipart body.
func NewNoteHandler(service NoteService, maxUploadBytes int64) *NoteHandler {
	if maxUploadBytes <= 0 {
		maxUploadBytes = 25 << 20
	}
	return &NoteHandler{service: service, maxUploadBytes: maxUploadBytes}
}

type noteAccepted struct {
	NoteID string             `json:"note_id"`
	State  entities.NoteState `json:"state"`
}

// SubmitNote handles POST /api/patients/{id}/notes
func (h *NoteHandler) SubmitNote(w http.ResponseWriter, r *http.Request) {
	patientID := r.PathValue("id")
	if patientID == "" {
		respondWithError(w, http.StatusBadRequest, "patient ID is required")
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, h.maxUploadBytes)
	if err := r.ParseMultipartForm(h.maxUploadBytes); err != nil {
		var tooLarge *http.MaxBytesError
		// multipart does not always wrap the reader error
		if errors.As(err, &tooLarge) || strings.Contains(err.Error(), "request body too large") {
			respondWithError(w, http.StatusRequestEntityTooLarge, "recording is too large")
			return
		}
		respondWithError(w, http.StatusBadRequest, "invalid multipart form")
		return
	}

	file, header, err := r.FormFile("audio")
	if err != nil {
		respondWithError(w, http.StatusBadRequest, "audio file is required")
		return
	}
	defer file.Close()

	audio, err := io.ReadAll(file)
	if err != nil {
		respondWithError(w, http.StatusBadRequest, "failed to read audio file")
		return
	}

	var duration float64
	if raw := strings.TrimSpace(r.FormValue("duration_seconds")); raw != "" {
		duration, err = strconv.ParseFloat(raw, 64)
		if err != nil {
			respondWithError(w, http.StatusBadRequest, "invalid duration_seconds")
			return
		}
	}

	note, err := h.service.SubmitNote(r.Context(), services.SubmitNoteInput{
		PatientID:       patientID,
		AuthorID:        strings.TrimSpace(r.FormValue("author_id")),
		Audio:           audio,
		ContentType:     header.Header.Get("Content-Type"),
		Filename:        header.Filename,
		DurationSeconds: duration,
	})
	if err != nil {
		respondWithAppError(w, r, err)
		return
	}

	respondWithJSON(w, http.StatusAccepted, noteAccepted{NoteID: note.ID, State: note.State})
}

// GetNote handles GET /api/notes/{id}
func (h *NoteHandler) GetNote(w http.ResponseWriter, r *http.Request) {
	noteID := r.PathValue("id")
	if noteID == "" {
		respondWithError(w, http.StatusBadRequest, "note ID is required")
		return
	}

	note, err := h.service.GetNote(r.Context(), noteID)
	if err != nil {
		respondWithAppError(w, r, err)
		return
	}
	respondWithJSON(w, http.StatusOK, note)
}

// RetryNote handles POST /api/notes/{id}/retry
func (h *NoteHandler) RetryNote(w http.ResponseWriter, r *http.Request) {
	noteID := r.PathValue("id")
	if noteID == "" {
		respondWithError(w, http.StatusBadRequest, "note ID is required")
		return
	}

	note, err := h.service.RetryNote(r.Context(), noteID)
	if err != nil {
		respondWithAppError(w, r, err)
		return
	}
	respondWithJSON(w, http.StatusAccepted, noteAccepted{NoteID: note.ID, State: note.State})
}

// GetReport handles GET /api/notes/{id}/report
func (h *NoteHandler) GetReport(w http.ResponseWriter, r *http.Request) {
	noteID := r.PathValue("id")
	if noteID == "" {
		respondWithError(w, http.StatusBadRequest, "note ID is required")
		return
	}

	view, err := h.service.GetReport(r.Context(), noteID)
	if err != nil {
		respondWithAppError(w, r, err)
		return
	}
	respondWithJSON(w, http.StatusOK, view)
}
