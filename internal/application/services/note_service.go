package services

import (
	"context"
	"encoding/json"
	"fmt"
	"mime"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/zatekoja/handoff/backend/internal/domain/entities"
	"github.com/zatekoja/handoff/backend/internal/domain/providers"
	"github.com/zatekoja/handoff/backend/internal/domain/repositories"
	"github.com/zatekoja/handoff/backend/internal/infrastructure/observability"
	apperrors "github.com/zatekoja/handoff/backend/pkg/errors"
)

const reportCacheTTL = 10 * time.Minute

// SubmitNoteInput is an uploaded recording for a patient
type SubmitNoteInput struct {
	PatientID       string
	AuthorID        string
	Audio           []byte
	ContentType     string
	Filename        string
	DurationSeconds float64
}

// ReportView is a report with its tasks
type ReportView struct {
	Report *entities.Report `json:"report"`
	Tasks  []*entities.Task `json:"tasks"`
}

// NoteService accepts recordings and exposes their progress
type NoteService struct {
	notes   repositories.NoteRepository
	reports repositories.ReportRepository
	blobs   providers.BlobStore
	queue   NoteEnqueuer
	cache   providers.CacheProvider
	metrics *observability.Metrics
	now     func() time.Time
}

// NewNoteService creates a note service; cache and metrics may be nil
func NewNoteService(
	notes repositories.NoteRepository,
	reports repositories.ReportRepository,
	blobs providers.BlobStore,
	queue NoteEnqueuer,
	cache providers.CacheProvider,
	metrics *observability.Metrics,
) *NoteService {
	return &NoteService{
		notes:   notes,
		reports: reports,
		blobs:   blobs,
		queue:   queue,
		cache:   cache,
		metrics: metrics,
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// SubmitNote stores the audio, then the note row, then enqueues it.
// The blob is written first so the orchestrator never sees a note without audio.
func (s *NoteService) SubmitNote(ctx context.Context, in SubmitNoteInput) (*entities.Note, error) {
	if strings.TrimSpace(in.PatientID) == "" {
		return nil, apperrors.NewValidationError("patient id is required")
	}
	if strings.TrimSpace(in.AuthorID) == "" {
		return nil, apperrors.NewValidationError("author id is required")
	}
	if len(in.Audio) == 0 {
		return nil, apperrors.NewValidationError("audio is empty")
	}
	if in.DurationSeconds < 0 {
		return nil, apperrors.NewValidationError("duration cannot be negative")
	}

	id := uuid.New().String()
	blobPath := fmt.Sprintf("notes/%s/%s%s", in.PatientID, id, audioExtension(in.ContentType, in.Filename))
	if err := s.blobs.Put(ctx, blobPath, in.Audio, in.ContentType); err != nil {
		return nil, err
	}

	now := s.now()
	note := &entities.Note{
		ID:              id,
		PatientID:       in.PatientID,
		AuthorID:        in.AuthorID,
		BlobPath:        blobPath,
		DurationSeconds: in.DurationSeconds,
		State:           entities.NoteStateUploaded,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	if err := s.notes.Create(ctx, note); err != nil {
		return nil, err
	}
	observability.RecordNoteSubmitted(ctx, s.metrics)

	logger := observability.LoggerFromContext(ctx)
	if !s.queue.Enqueue(note.ID) {
		logger.Warn().Str("note_id", note.ID).Msg("pipeline queue full, note left for resume sweep")
	} else {
		logger.Info().Str("note_id", note.ID).Str("patient_id", note.PatientID).Msg("note submitted")
	}
	return note, nil
}

// RetryNote resumes a failed note from its failed stage.
// Processed notes are left alone; unrecoverable notes must be re-recorded.
func (s *NoteService) RetryNote(ctx context.Context, noteID string) (*entities.Note, error) {
	note, err := s.notes.GetByID(ctx, noteID)
	if err != nil {
		return nil, err
	}

	if note.State == entities.NoteStateProcessed {
		return note, nil
	}
	if note.Unrecoverable {
		return nil, apperrors.NewUnrecoverableInputError("the recording could not be processed, please record the note again", nil)
	}

	if next, ok := note.State.RetryState(); ok {
		err := s.notes.TransitionState(ctx, note.ID, entities.StateUpdate{From: note.State, To: next, ClearFailure: true})
		if err != nil && !apperrors.IsType(err, apperrors.ErrorTypeConflict) {
			return nil, err
		}
		// a conflict means a concurrent retry already moved it
		if err == nil {
			note.State = next
			note.FailureReason = nil
		}
	}

	if !s.queue.Enqueue(note.ID) {
		observability.LoggerFromContext(ctx).Warn().Str("note_id", note.ID).Msg("pipeline queue full, retry left for resume sweep")
	}
	return note, nil
}

// GetNote returns the note with its current state
func (s *NoteService) GetNote(ctx context.Context, noteID string) (*entities.Note, error) {
	return s.notes.GetByID(ctx, noteID)
}

// GetReport returns the extracted report and tasks for a note.
// Only fully embedded reports are cached since embedding mutates the row.
func (s *NoteService) GetReport(ctx context.Context, noteID string) (*ReportView, error) {
	key := "report:" + noteID
	if s.cache != nil {
		if data, ok, err := s.cache.Get(ctx, key); err == nil && ok {
			var view ReportView
			if err := json.Unmarshal(data, &view); err == nil {
				return &view, nil
			}
		}
	}

	report, err := s.reports.GetByNoteID(ctx, noteID)
	if err != nil {
		return nil, err
	}
	tasks, err := s.reports.ListTasksByNoteID(ctx, noteID)
	if err != nil {
		return nil, err
	}
	view := &ReportView{Report: report, Tasks: tasks}

	if s.cache != nil && report.HasEmbedding() {
		if data, err := json.Marshal(view); err == nil {
			if err := s.cache.Set(ctx, key, data, reportCacheTTL); err != nil {
				observability.LoggerFromContext(ctx).Debug().Err(err).Msg("failed to cache report")
			}
		}
	}
	return view, nil
}

func audioExtension(contentType, filename string) string {
	if ext := strings.ToLower(filepath.Ext(filename)); ext != "" && len(ext) <= 6 {
		return ext
	}
	if contentType != "" {
		if exts, err := mime.ExtensionsByType(contentType); err == nil && len(exts) > 0 {
			return exts[0]
		}
	}
	return ".webm"
}
