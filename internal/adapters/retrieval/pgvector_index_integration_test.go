//go:build integration

package retrieval

import (
	"context"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/zatekoja/handoff/backend/internal/domain/entities"
	"github.com/zatekoja/handoff/backend/internal/infrastructure/clients/pgvector"
)

func newTestPgVectorClient(t *testing.T) *pgvector.Client {
	t.Helper()
	url := os.Getenv("TEST_PGVECTOR_URL")
	if url == "" {
		if os.Getenv("TEST_DB_HOST") == "" {
			t.Skip("Skipping integration test: TEST_PGVECTOR_URL and TEST_DB_HOST not set")
		}
		url = fmt.Sprintf("postgres://%s:%s@%s:5432/%s?sslmode=disable",
			envOr("TEST_DB_USER", "postgres"), envOr("TEST_DB_PASSWORD", "postgres"),
			os.Getenv("TEST_DB_HOST"), envOr("TEST_DB_NAME", "handoff_test"))
	}

	client, err := pgvector.NewClient(context.Background(), url)
	require.NoError(t, err)
	t.Cleanup(client.Close)
	require.NoError(t, EnsureSchema(context.Background(), client.Pool(), 3))
	return client
}

func TestPgVectorIndexIntegration(t *testing.T) {
	ctx := context.Background()
	client := newTestPgVectorClient(t)

	index := NewPgVectorIndex(client.Pool())
	patientA, patientB := "p-"+uuid.NewString(), "p-"+uuid.NewString()
	near, far, foreign := uuid.NewString(), uuid.NewString(), uuid.NewString()

	for _, entry := range []entities.RetrievalEntry{
		{ReportID: near, PatientID: patientA, Vector: []float32{1, 0, 0}, CreatedAt: time.Now()},
		{ReportID: far, PatientID: patientA, Vector: []float32{0, 1, 0}, CreatedAt: time.Now()},
		{ReportID: foreign, PatientID: patientB, Vector: []float32{1, 0, 0}, CreatedAt: time.Now()},
	} {
		require.NoError(t, index.Upsert(ctx, entry))
	}

	matches, err := index.Search(ctx, entities.RetrievalQuery{
		PatientID: patientA, Vector: []float32{1, 0.1, 0}, TopK: 3, MinSimilarity: 0.3,
	})
	require.NoError(t, err)
	require.Len(t, matches, 1)
	assert.Equal(t, near, matches[0].ReportID)
	assert.Equal(t, patientA, matches[0].PatientID)
	assert.Greater(t, matches[0].Similarity, 0.9)
}

func TestPgVectorIndexIntegration_PatientRecallUnderCrowdedIndex(t *testing.T) {
	ctx := context.Background()
	client := newTestPgVectorClient(t)
	index := NewPgVectorIndex(client.Pool())

	// more neighbours than hnsw.ef_search (40) for another patient, all closer to the query
	crowd := "p-" + uuid.NewString()
	for n := 0; n < 200; n++ {
		require.NoError(t, index.Upsert(ctx, entities.RetrievalEntry{
			ReportID: uuid.NewString(), PatientID: crowd,
			Vector: []float32{1, float32(n) * 0.0001, 0}, CreatedAt: time.Now(),
		}))
	}
	patient, own := "p-"+uuid.NewString(), uuid.NewString()
	require.NoError(t, index.Upsert(ctx, entities.RetrievalEntry{
		ReportID: own, PatientID: patient, Vector: []float32{1, 0.5, 0}, CreatedAt: time.Now(),
	}))

	matches, err := index.Search(ctx, entities.RetrievalQuery{
		PatientID: patient, Vector: []float32{1, 0, 0}, TopK: 3, MinSimilarity: 0.3,
	})
	require.NoError(t, err)
	require.Len(t, matches, 1)
	assert.Equal(t, own, matches[0].ReportID)
	assert.Equal(t, patient, matches[0].PatientID)
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
