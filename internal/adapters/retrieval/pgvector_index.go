package retrieval

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"
	"github.com/zatekoja/handoff/backend/internal/domain/entities"
	"github.com/zatekoja/handoff/backend/internal/domain/providers"
	apperrors "github.com/zatekoja/handoff/backend/pkg/errors"
)

// PgVectorIndex stores entries in a pgvector column and ranks by cosine distance
type PgVectorIndex struct {
	pool *pgxpool.Pool
}

// NewPgVectorIndex creates the index over an existing pool
func NewPgVectorIndex(pool *pgxpool.Pool) providers.RetrievalIndex {
	return &PgVectorIndex{pool: pool}
}

// EnsureSchema creates the extension, table and HNSW index when missing
func EnsureSchema(ctx context.Context, pool *pgxpool.Pool, dimensions int) error {
	statements := []string{
		`CREATE EXTENSION IF NOT EXISTS vector`,
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS retrieval_entries (
			report_id  TEXT PRIMARY KEY,
			patient_id TEXT NOT NULL,
			embedding  vector(%d) NOT NULL,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`, dimensions),
		`CREATE INDEX IF NOT EXISTS retrieval_entries_patient_idx ON retrieval_entries (patient_id)`,
		`CREATE INDEX IF NOT EXISTS retrieval_entries_embedding_idx ON retrieval_entries USING hnsw (embedding vector_cosine_ops)`,
	}
	for _, stmt := range statements {
		if _, err := pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("pgvector schema: %w", err)
		}
	}
	return nil
}

// Upsert inserts or replaces the entry for a report
func (i *PgVectorIndex) Upsert(ctx context.Context, entry entities.RetrievalEntry) error {
	if err := validateEntry(entry); err != nil {
		return err
	}
	_, err := i.pool.Exec(ctx, `
		INSERT INTO retrieval_entries (report_id, patient_id, embedding, created_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (report_id)
		DO UPDATE SET
			patient_id = EXCLUDED.patient_id,
			embedding = EXCLUDED.embedding,
			created_at = EXCLUDED.created_at
	`, entry.ReportID, entry.PatientID, pgvector.NewVector(entry.Vector), entry.CreatedAt)
	if err != nil {
		return apperrors.NewTransientError("failed to upsert retrieval entry", err)
	}
	return nil
}

// patientSearchSQL ranks exactly over one patient's rows. The materialized CTE
// keeps the planner off the HNSW index, whose approximate scan would apply the
// patient filter only after picking ef_search candidates from every patient.
const patientSearchSQL = `
	WITH candidates AS MATERIALIZED (
		SELECT report_id, patient_id, embedding <=> $1 AS distance
		FROM retrieval_entries
		WHERE patient_id = $2
	)
	SELECT report_id, patient_id, 1 - distance AS similarity
	FROM candidates
	WHERE 1 - distance >= $3
	ORDER BY distance
	LIMIT $4
`

// Search filters by patient in SQL before ranking
func (i *PgVectorIndex) Search(ctx context.Context, q entities.RetrievalQuery) ([]entities.RetrievalMatch, error) {
	if err := validateQuery(q); err != nil {
		return nil, err
	}

	rows, err := i.pool.Query(ctx, patientSearchSQL, pgvector.NewVector(q.Vector), q.PatientID, q.MinSimilarity, q.TopK)
	if err != nil {
		return nil, apperrors.NewTransientError("failed to query retrieval index", err)
	}
	defer rows.Close()

	var matches []entities.RetrievalMatch
	for rows.Next() {
		var m entities.RetrievalMatch
		if err := rows.Scan(&m.ReportID, &m.PatientID, &m.Similarity); err != nil {
			return nil, apperrors.NewInternalError("failed to scan retrieval match", err)
		}
		matches = append(matches, m)
	}
	if err := rows.Err(); err != nil {
		return nil, apperrors.NewTransientError("failed to read retrieval matches", err)
	}
	return finalize(matches, q), nil
}
