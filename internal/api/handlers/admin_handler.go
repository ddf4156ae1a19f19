package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/zatekoja/handoff/backend/internal/application/services"
)

// EmbeddingSweeper re-embeds reports left without a vector.
type EmbeddingSweeper interface {
	EmbedReport(ctx context.Context, reportID string) error
	SweepMissing(ctx context.Context) (*services.SweepSummary, error)
}

// AdminHandler exposes maintenance operations.
type AdminHandler struct {
	sweeper EmbeddingSweeper
}

// NewAdminHandler creates an admin handler.
func NewAdminHandler(sweeper EmbeddingSweeper) *AdminHandler {
	return &AdminHandler{sweeper: sweeper}
}

type sweepRequest struct {
	ReportID string `json:"report_id"`
}

// SweepEmbeddings handles POST /api/admin/embeddings/sweep
// An empty body sweeps every report missing a vector.
func (h *AdminHandler) SweepEmbeddings(w http.ResponseWriter, r *http.Request) {
	var payload sweepRequest
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil && !errors.Is(err, io.EOF) {
		respondWithError(w, http.StatusBadRequest, "invalid request payload")
		return
	}

	if reportID := strings.TrimSpace(payload.ReportID); reportID != "" {
		if err := h.sweeper.EmbedReport(r.Context(), reportID); err != nil {
			respondWithAppError(w, r, err)
			return
		}
		respondWithJSON(w, http.StatusOK, services.SweepSummary{Total: 1, Embedded: 1})
		return
	}

	summary, err := h.sweeper.SweepMissing(r.Context())
	if err != nil {
		respondWithAppError(w, r, err)
		return
	}
	respondWithJSON(w, http.StatusOK, summary)
}
