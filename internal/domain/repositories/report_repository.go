package repositories

import (
	"context"
	"time"

	"github.com/zatekoja/handoff/backend/internal/domain/entities"
)

// ReportRepository persists extracted reports and their tasks.
type ReportRepository interface {
	// CreateWithTasks writes the report and every task in a single transaction.
	// A second report for the same note returns a conflict error.
	CreateWithTasks(ctx context.Context, report *entities.Report, tasks []*entities.Task) error

	GetByID(ctx context.Context, id string) (*entities.Report, error)
	GetByNoteID(ctx context.Context, noteID string) (*entities.Report, error)

	// GetByIDs loads reports belonging to patientID; ids of other patients are ignored.
	GetByIDs(ctx context.Context, patientID string, ids []string) ([]*entities.Report, error)

	ListTasksByNoteID(ctx context.Context, noteID string) ([]*entities.Task, error)

	// ListMissingEmbedding returns reports whose vector is still null.
	ListMissingEmbedding(ctx context.Context, limit int) ([]*entities.Report, error)

	// ListEmbedded pages through reports that have a vector, ordered by id after afterID.
	ListEmbedded(ctx context.Context, afterID string, limit int) ([]*entities.Report, error)

	SetEmbedding(ctx context.Context, reportID string, vector []float32, model string, at time.Time) error
}
