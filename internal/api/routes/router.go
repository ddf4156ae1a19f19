package routes

import (
	"net/http"

	"github.com/zatekoja/handoff/backend/internal/api/handlers"
	"github.com/zatekoja/handoff/backend/internal/api/middleware"
	"github.com/zatekoja/handoff/backend/internal/infrastructure/observability"
)

// Router holds all route handlers
type Router struct {
	mux *http.ServeMux

	noteHandler     *handlers.NoteHandler
	questionHandler *handlers.QuestionHandler
	adminHandler    *handlers.AdminHandler
	sseHandler      *handlers.SSEHandler

	allowedOrigins []string
	metrics        *observability.Metrics
}

// NewRouter creates a new router
func NewRouter(
	noteHandler *handlers.NoteHandler,
	questionHandler *handlers.QuestionHandler,
	adminHandler *handlers.AdminHandler,
	sseHandler *handlers.SSEHandler,
	allowedOrigins []string,
	metrics *observability.Metrics,
) *Router {
	return &Router{
		mux:             http.NewServeMux(),
		noteHandler:     noteHandler,
		questionHandler: questionHandler,
		adminHandler:    adminHandler,
		sseHandler:      sseHandler,
		allowedOrigins:  allowedOrigins,
		metrics:         metrics,
	}
}

// SetupRoutes configures all application routes
func (r *Router) SetupRoutes() http.Handler {
	r.mux.HandleFunc("GET /health", func(w http.ResponseWriter, req *http.Request) {
		w.WriteHeader(http.StatusOK)
		if _, err := w.Write([]byte("OK")); err != nil {
			return
		}
	})

	// Notes
	r.mux.HandleFunc("POST /api/patients/{id}/notes", r.noteHandler.SubmitNote)
	r.mux.HandleFunc("GET /api/notes/{id}", r.noteHandler.GetNote)
	r.mux.HandleFunc("POST /api/notes/{id}/retry", r.noteHandler.RetryNote)
	r.mux.HandleFunc("GET /api/notes/{id}/report", r.noteHandler.GetReport)

	// Q&A
	r.mux.HandleFunc("POST /api/patients/{id}/questions", r.questionHandler.Ask)

	if r.adminHandler != nil {
		r.mux.HandleFunc("POST /api/admin/embeddings/sweep", r.adminHandler.SweepEmbeddings)
	}

	// Live updates
	if r.sseHandler != nil {
		r.mux.HandleFunc("GET /api/stream/notes/{id}", r.sseHandler.StreamNoteUpdates)
		r.mux.HandleFunc("GET /api/stream/patients/{id}", r.sseHandler.StreamPatientUpdates)
	}

	// Apply middleware in reverse order (last middleware wraps first)
	var handler http.Handler = r.mux
	handler = middleware.LoggingMiddleware(handler)
	handler = middleware.ObservabilityMiddleware(r.metrics)(handler)

	// CORS wraps everything so preflight never reaches the mux
	handler = middleware.CORSMiddleware(r.allowedOrigins)(handler)

	return handler
}
