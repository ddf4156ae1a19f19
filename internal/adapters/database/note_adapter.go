package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/doug-martin/goqu/v9"
	_ "github.com/doug-martin/goqu/v9/dialect/postgres"
	"github.com/zatekoja/handoff/backend/internal/domain/entities"
	"github.com/zatekoja/handoff/backend/internal/domain/repositories"
	"github.com/zatekoja/handoff/backend/internal/infrastructure/clients/postgres"
	apperrors "github.com/zatekoja/handoff/backend/pkg/errors"
)

var noteColumns = []interface{}{
	"id", "patient_id", "author_id", "blob_path", "duration_seconds",
	"transcript", "detected_language", "transcript_confidence", "translated_transcript",
	"state", "failure_reason", "unrecoverable", "attempts",
	"created_at", "updated_at", "processed_at",
}

// NoteAdapter implements the NoteRepository interface
type NoteAdapter struct {
	client *postgres.Client
	db     *goqu.Database
}

// NewNoteAdapter creates a new note adapter
func NewNoteAdapter(client *postgres.Client) repositories.NoteRepository {
	return &NoteAdapter{
		client: client,
		db:     goqu.New("postgres", client.DB()),
	}
}

// Create inserts a note row. The blob must already be stored.
func (a *NoteAdapter) Create(ctx context.Context, note *entities.Note) error {
	if note.BlobPath == "" {
		return apperrors.NewValidationError("note blob path is required")
	}

	record := goqu.Record{
		"id":               note.ID,
		"patient_id":       note.PatientID,
		"author_id":        note.AuthorID,
		"blob_path":        note.BlobPath,
		"duration_seconds": note.DurationSeconds,
		"state":            string(note.State),
		"unrecoverable":    false,
		"attempts":         0,
		"created_at":       note.CreatedAt,
		"updated_at":       note.UpdatedAt,
	}

	query, args, err := a.db.Insert("notes").Rows(record).ToSQL()
	if err != nil {
		return apperrors.NewInternalError("failed to build insert query", err)
	}

	if _, err := a.client.DB().ExecContext(ctx, query, args...); err != nil {
		if isUniqueViolation(err) {
			return apperrors.NewConflictError(fmt.Sprintf("note %s already exists", note.ID))
		}
		return apperrors.NewInternalError("failed to create note", err)
	}
	return nil
}

// GetByID retrieves a note by ID
func (a *NoteAdapter) GetByID(ctx context.Context, id string) (*entities.Note, error) {
	query, args, err := a.db.Select(noteColumns...).
		From("notes").
		Where(goqu.Ex{"id": id}).
		ToSQL()
	if err != nil {
		return nil, apperrors.NewInternalError("failed to build query", err)
	}

	note := &entities.Note{}
	err = a.client.DB().GetContext(ctx, note, query, args...)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperrors.NewNotFoundError(fmt.Sprintf("note with id %s not found", id))
	}
	if err != nil {
		return nil, apperrors.NewInternalError("failed to get note", err)
	}
	return note, nil
}

// TransitionState performs a compare-and-set on the note's state.
func (a *NoteAdapter) TransitionState(ctx context.Context, id string, update entities.StateUpdate) error {
	if !entities.CanTransition(update.From, update.To) {
		return apperrors.NewValidationError(fmt.Sprintf("illegal note transition %s -> %s", update.From, update.To))
	}

	record := goqu.Record{
		"state":      string(update.To),
		"updated_at": goqu.L("NOW()"),
	}
	if update.Transcript != nil {
		record["transcript"] = *update.Transcript
	}
	if update.DetectedLanguage != nil {
		record["detected_language"] = *update.DetectedLanguage
	}
	if update.TranscriptConfidence != nil {
		record["transcript_confidence"] = *update.TranscriptConfidence
	}
	if update.TranslatedTranscript != nil {
		record["translated_transcript"] = *update.TranslatedTranscript
	}
	if update.ClearFailure {
		record["failure_reason"] = nil
		record["unrecoverable"] = false
	}
	if update.FailureReason != nil {
		record["failure_reason"] = *update.FailureReason
		record["unrecoverable"] = update.Unrecoverable
	}
	if update.To == entities.NoteStateProcessed {
		record["processed_at"] = goqu.L("NOW()")
	}

	query, args, err := a.db.Update("notes").
		Set(record).
		Where(goqu.Ex{"id": id, "state": string(update.From)}).
		ToSQL()
	if err != nil {
		return apperrors.NewInternalError("failed to build update query", err)
	}

	result, err := a.client.DB().ExecContext(ctx, query, args...)
	if err != nil {
		return apperrors.NewInternalError("failed to update note state", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return apperrors.NewInternalError("failed to read affected rows", err)
	}
	if rows == 0 {
		return apperrors.NewConflictError(fmt.Sprintf("note %s is no longer in state %s", id, update.From))
	}
	return nil
}

// IncrementAttempts bumps the run counter
func (a *NoteAdapter) IncrementAttempts(ctx context.Context, id string) error {
	query, args, err := a.db.Update("notes").
		Set(goqu.Record{"attempts": goqu.L("attempts + 1")}).
		Where(goqu.Ex{"id": id}).
		ToSQL()
	if err != nil {
		return apperrors.NewInternalError("failed to build update query", err)
	}

	result, err := a.client.DB().ExecContext(ctx, query, args...)
	if err != nil {
		return apperrors.NewInternalError("failed to increment attempts", err)
	}
	if rows, _ := result.RowsAffected(); rows == 0 {
		return apperrors.NewNotFoundError(fmt.Sprintf("note with id %s not found", id))
	}
	return nil
}

// ListStale returns notes stuck in a non-terminal state
func (a *NoteAdapter) ListStale(ctx context.Context, before time.Time, limit int) ([]*entities.Note, error) {
	query, args, err := a.db.Select(noteColumns...).
		From("notes").
		Where(
			goqu.C("state").NotIn(
				string(entities.NoteStateProcessed),
				string(entities.NoteStateFailedTranscription),
				string(entities.NoteStateFailedExtraction),
			),
			goqu.C("updated_at").Lt(before),
		).
		Order(goqu.C("updated_at").Asc()).
		Limit(uint(limit)).
		ToSQL()
	if err != nil {
		return nil, apperrors.NewInternalError("failed to build query", err)
	}

	var notes []*entities.Note
	if err := a.client.DB().SelectContext(ctx, &notes, query, args...); err != nil {
		return nil, apperrors.NewInternalError("failed to list stale notes", err)
	}
	return notes, nil
}
