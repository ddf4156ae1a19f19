package retrieval

import (
	"sort"

	"github.com/zatekoja/handoff/backend/internal/domain/entities"
	apperrors "github.com/zatekoja/handoff/backend/pkg/errors"
)

func validateEntry(entry entities.RetrievalEntry) error {
	if entry.ReportID == "" || entry.PatientID == "" {
		return apperrors.NewValidationError("retrieval entry requires report and patient ids")
	}
	if len(entry.Vector) == 0 {
		return apperrors.NewValidationError("retrieval entry requires a vector")
	}
	return nil
}

func validateQuery(q entities.RetrievalQuery) error {
	if q.PatientID == "" {
		return apperrors.NewValidationError("retrieval query requires a patient id")
	}
	if len(q.Vector) == 0 {
		return apperrors.NewValidationError("retrieval query requires a vector")
	}
	if q.TopK <= 0 {
		return apperrors.NewValidationError("retrieval query requires a positive top-k")
	}
	return nil
}

// finalize drops matches below the floor or for another patient, then keeps the best TopK.
func finalize(matches []entities.RetrievalMatch, q entities.RetrievalQuery) []entities.RetrievalMatch {
	out := matches[:0]
	for _, m := range matches {
		if m.PatientID != q.PatientID || m.Similarity < q.MinSimilarity {
			continue
		}
		out = append(out, m)
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Similarity > out[j].Similarity
	})
	if len(out) > q.TopK {
		out = out[:q.TopK]
	}
	return out
}
