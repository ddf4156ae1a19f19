package providers

import (
	"context"

	"github.com/zatekoja/handoff/backend/internal/domain/entities"
)

// RetrievalIndex is a patient-scoped vector similarity index.
// Implementations must filter by patient inside the query itself.
type RetrievalIndex interface {
	Upsert(ctx context.Context, entry entities.RetrievalEntry) error
	Search(ctx context.Context, query entities.RetrievalQuery) ([]entities.RetrievalMatch, error)
}
