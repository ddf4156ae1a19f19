package retrieval

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/typesense/typesense-go/v3/typesense/api"
	"github.com/typesense/typesense-go/v3/typesense/api/pointer"
	"github.com/zatekoja/handoff/backend/internal/domain/entities"
	"github.com/zatekoja/handoff/backend/internal/domain/providers"
	"github.com/zatekoja/handoff/backend/internal/infrastructure/clients/typesense"
	apperrors "github.com/zatekoja/handoff/backend/pkg/errors"
)

// TypesenseIndex uses Typesense nearest-neighbour search with a patient filter
type TypesenseIndex struct {
	client *typesense.Client
}

// NewTypesenseIndex creates the index on the configured collection
func NewTypesenseIndex(client *typesense.Client) providers.RetrievalIndex {
	return &TypesenseIndex{client: client}
}

// Upsert indexes the entry as a document keyed by report id
func (i *TypesenseIndex) Upsert(ctx context.Context, entry entities.RetrievalEntry) error {
	if err := validateEntry(entry); err != nil {
		return err
	}
	if err := validateTypesenseID(entry.PatientID); err != nil {
		return err
	}
	doc := map[string]interface{}{
		"id":         entry.ReportID,
		"patient_id": entry.PatientID,
		"created_at": entry.CreatedAt.Unix(),
		"embedding":  entry.Vector,
	}
	if _, err := i.client.Client().Collection(i.client.Collection()).Documents().Upsert(ctx, doc, &api.DocumentIndexParameters{}); err != nil {
		return apperrors.NewTransientError("failed to index retrieval entry", err)
	}
	return nil
}

// Search runs a vector query restricted by filter_by on patient_id
func (i *TypesenseIndex) Search(ctx context.Context, q entities.RetrievalQuery) ([]entities.RetrievalMatch, error) {
	if err := validateQuery(q); err != nil {
		return nil, err
	}
	if err := validateTypesenseID(q.PatientID); err != nil {
		return nil, err
	}

	// multi_search takes the vector in the POST body; GET query strings are capped well below 1536 floats
	searches := api.MultiSearchSearchesParameter{
		Searches: []api.MultiSearchCollectionParameters{{
			Collection:    pointer.String(i.client.Collection()),
			Q:             pointer.String("*"),
			FilterBy:      pointer.String(patientFilter(q.PatientID)),
			VectorQuery:   pointer.String(buildVectorQuery(q.Vector, q.TopK)),
			PerPage:       pointer.Int(q.TopK),
			IncludeFields: pointer.String("id,patient_id"),
		}},
	}
	result, err := i.client.Client().MultiSearch.Perform(ctx, &api.MultiSearchParams{}, searches)
	if err != nil {
		return nil, apperrors.NewTransientError("failed to query typesense", err)
	}
	matches, err := matchesFromMultiSearch(result)
	if err != nil {
		return nil, err
	}
	return finalize(matches, q), nil
}

// matchesFromMultiSearch surfaces per-search failures; multi_search answers 200 even when the search itself failed
func matchesFromMultiSearch(result *api.MultiSearchResult) ([]entities.RetrievalMatch, error) {
	if result == nil || len(result.Results) == 0 {
		return nil, apperrors.NewTransientError("typesense returned no search result", nil)
	}
	item := result.Results[0]
	if item.Error != nil {
		return nil, apperrors.NewTransientError("typesense search failed", errors.New(*item.Error))
	}
	if item.Hits == nil {
		return nil, nil
	}

	var matches []entities.RetrievalMatch
	for _, hit := range *item.Hits {
		if hit.Document == nil || hit.VectorDistance == nil {
			continue
		}
		if m, ok := matchFromDocument(*hit.Document, *hit.VectorDistance); ok {
			matches = append(matches, m)
		}
	}
	return matches, nil
}

// validateTypesenseID rejects ids that cannot be quoted in a filter_by value
func validateTypesenseID(patientID string) error {
	if strings.Contains(patientID, "`") {
		return apperrors.NewValidationError("patient id must not contain backticks")
	}
	return nil
}

// patientFilter quotes the id with backticks as Typesense filter syntax requires
func patientFilter(patientID string) string {
	return fmt.Sprintf("patient_id:=`%s`", patientID)
}

func buildVectorQuery(vector []float32, k int) string {
	parts := make([]string, len(vector))
	for i, v := range vector {
		parts[i] = strconv.FormatFloat(float64(v), 'f', -1, 32)
	}
	return fmt.Sprintf("embedding:([%s], k:%d)", strings.Join(parts, ","), k)
}

// matchFromDocument converts a cosine distance (0..2) into similarity
func matchFromDocument(doc map[string]interface{}, distance float32) (entities.RetrievalMatch, bool) {
	reportID, _ := doc["id"].(string)
	patientID, _ := doc["patient_id"].(string)
	if reportID == "" || patientID == "" {
		return entities.RetrievalMatch{}, false
	}
	return entities.RetrievalMatch{
		ReportID:   reportID,
		PatientID:  patientID,
		Similarity: 1 - float64(distance),
	}, true
}
