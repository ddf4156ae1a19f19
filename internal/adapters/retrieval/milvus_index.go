package retrieval

import (
	"context"
	"fmt"
	"strings"

	"github.com/milvus-io/milvus-sdk-go/v2/client"
	"github.com/milvus-io/milvus-sdk-go/v2/entity"
	"github.com/zatekoja/handoff/backend/internal/domain/entities"
	"github.com/zatekoja/handoff/backend/internal/domain/providers"
	"github.com/zatekoja/handoff/backend/internal/infrastructure/clients/milvus"
	apperrors "github.com/zatekoja/handoff/backend/pkg/errors"
)

// milvusAPI is the part of client.Client the index uses
type milvusAPI interface {
	Upsert(ctx context.Context, collName string, partitionName string, columns ...entity.Column) (entity.Column, error)
	Search(ctx context.Context, collName string, partitions []string, expr string, outputFields []string,
		vectors []entity.Vector, vectorField string, metricType entity.MetricType, topK int, sp entity.SearchParam,
		opts ...client.SearchQueryOptionFunc) ([]client.SearchResult, error)
}

// MilvusIndex searches a cosine HNSW collection with a patient_id expression
type MilvusIndex struct {
	api        milvusAPI
	collection string
	dimensions int
}

// NewMilvusIndex creates the index over a connected client
func NewMilvusIndex(c *milvus.Client, dimensions int) providers.RetrievalIndex {
	return &MilvusIndex{api: c.Client(), collection: c.Collection(), dimensions: dimensions}
}

// Upsert writes one row keyed by report id
func (i *MilvusIndex) Upsert(ctx context.Context, entry entities.RetrievalEntry) error {
	if err := validateEntry(entry); err != nil {
		return err
	}
	if len(entry.Vector) != i.dimensions {
		return apperrors.NewValidationError(fmt.Sprintf("vector has %d dimensions, collection expects %d", len(entry.Vector), i.dimensions))
	}
	_, err := i.api.Upsert(ctx, i.collection, "",
		entity.NewColumnVarChar(milvus.FieldReportID, []string{entry.ReportID}),
		entity.NewColumnVarChar(milvus.FieldPatientID, []string{entry.PatientID}),
		entity.NewColumnInt64(milvus.FieldCreatedAt, []int64{entry.CreatedAt.Unix()}),
		entity.NewColumnFloatVector(milvus.FieldVector, i.dimensions, [][]float32{entry.Vector}),
	)
	if err != nil {
		return apperrors.NewTransientError("failed to upsert milvus entry", err)
	}
	return nil
}

// Search restricts candidates to the patient before ranking
func (i *MilvusIndex) Search(ctx context.Context, q entities.RetrievalQuery) ([]entities.RetrievalMatch, error) {
	if err := validateQuery(q); err != nil {
		return nil, err
	}

	sp, err := entity.NewIndexHNSWSearchParam(74)
	if err != nil {
		return nil, apperrors.NewInternalError("failed to build search params", err)
	}
	results, err := i.api.Search(ctx, i.collection, []string{}, patientExpr(q.PatientID),
		[]string{milvus.FieldReportID, milvus.FieldPatientID},
		[]entity.Vector{entity.FloatVector(q.Vector)},
		milvus.FieldVector, entity.COSINE, q.TopK, sp)
	if err != nil {
		return nil, apperrors.NewTransientError("failed to query milvus", err)
	}

	var matches []entities.RetrievalMatch
	for _, r := range results {
		cols := map[string]entity.Column{}
		for _, c := range r.Fields {
			cols[c.Name()] = c
		}
		reportIDs, _ := cols[milvus.FieldReportID].(*entity.ColumnVarChar)
		patientIDs, _ := cols[milvus.FieldPatientID].(*entity.ColumnVarChar)
		if reportIDs == nil || patientIDs == nil {
			continue
		}
		for n := 0; n < r.ResultCount && n < len(r.Scores); n++ {
			if n >= len(reportIDs.Data()) || n >= len(patientIDs.Data()) {
				break
			}
			matches = append(matches, entities.RetrievalMatch{
				ReportID:   reportIDs.Data()[n],
				PatientID:  patientIDs.Data()[n],
				Similarity: float64(r.Scores[n]),
			})
		}
	}
	return finalize(matches, q), nil
}

var milvusStringEscaper = strings.NewReplacer(`\`, `\\`, `"`, `\"`)

func patientExpr(patientID string) string {
	return fmt.Sprintf(`%s == "%s"`, milvus.FieldPatientID, milvusStringEscaper.Replace(patientID))
}
