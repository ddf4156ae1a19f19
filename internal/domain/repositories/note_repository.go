package repositories

import (
	"context"
	"time"

	"github.com/zatekoja/handoff/backend/internal/domain/entities"
)

// NoteRepository persists voice notes and their pipeline state.
type NoteRepository interface {
	Create(ctx context.Context, note *entities.Note) error
	GetByID(ctx context.Context, id string) (*entities.Note, error)

	// TransitionState applies update only if the note is still in update.From.
	// A stale expected state returns a conflict error and writes nothing.
	TransitionState(ctx context.Context, id string, update entities.StateUpdate) error

	// IncrementAttempts records the start of an orchestrator run.
	IncrementAttempts(ctx context.Context, id string) error

	// ListStale returns non-terminal notes not updated since before.
	ListStale(ctx context.Context, before time.Time, limit int) ([]*entities.Note, error)
}
