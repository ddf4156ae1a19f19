package config

import (
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	for _, key := range []string{"VECTOR_BACKEND", "BLOB_BACKEND", "QA_TOP_K", "QA_MIN_SIMILARITY", "PIPELINE_TRANSLATION_DIALECTS"} {
		os.Unsetenv(key)
	}

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "pgvector", cfg.VectorStore.Backend)
	assert.Equal(t, "local", cfg.Blob.Backend)
	assert.Equal(t, 3, cfg.QA.TopK)
	assert.Equal(t, 0.3, cfg.QA.MinSimilarity)
	assert.Equal(t, 2, cfg.Pipeline.TranscriptionAttempts)
	assert.Equal(t, 4, cfg.Pipeline.Workers)
	assert.Equal(t, "en", cfg.Pipeline.TranslationTarget)
	assert.Contains(t, cfg.Pipeline.TranslationDialects, "ar-eg")
	assert.Equal(t, int64(25<<20), cfg.Server.MaxUploadBytes)
	assert.Equal(t, "http://localhost:8108", cfg.Typesense.URL)
}

func TestLoad_Overrides(t *testing.T) {
	t.Setenv("VECTOR_BACKEND", "Milvus")
	t.Setenv("QA_MIN_SIMILARITY", "0.45")
	t.Setenv("PIPELINE_TRANSLATION_DIALECTS", " ar-eg , , ar-ma")
	t.Setenv("PIPELINE_EXTRACTION_TIMEOUT", "15s")
	t.Setenv("MILVUS_ADDRESS", "milvus:19530")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "milvus", cfg.VectorStore.Backend)
	assert.Equal(t, 0.45, cfg.QA.MinSimilarity)
	assert.Equal(t, []string{"ar-eg", "ar-ma"}, cfg.Pipeline.TranslationDialects)
	assert.Equal(t, 15*time.Second, cfg.Pipeline.ExtractionTimeout)
	assert.Equal(t, "milvus:19530", cfg.Milvus.Address)
}

func TestLoad_InvalidBackends(t *testing.T) {
	t.Setenv("VECTOR_BACKEND", "faiss")
	_, err := Load()
	assert.Error(t, err)

	t.Setenv("VECTOR_BACKEND", "memory")
	t.Setenv("BLOB_BACKEND", "azure")
	t.Setenv("AZURE_STORAGE_CONNECTION_STRING", "")
	t.Setenv("AZURE_STORAGE_ACCOUNT_URL", "")
	_, err = Load()
	assert.Error(t, err)
}

func TestLoad_ShiftTimezone(t *testing.T) {
	t.Setenv("PIPELINE_SHIFT_TIMEZONE", "Africa/Lagos")
	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "Africa/Lagos", cfg.Pipeline.ShiftTimezone)

	t.Setenv("PIPELINE_SHIFT_TIMEZONE", "Mars/Olympus")
	_, err = Load()
	assert.ErrorContains(t, err, "PIPELINE_SHIFT_TIMEZONE")
}

func TestDatabaseConfig_URLs(t *testing.T) {
	db := DatabaseConfig{Host: "db", Port: 5433, User: "u", Password: "p", Database: "handoff", SSLMode: "disable"}
	assert.Equal(t, "host=db port=5433 user=u password=p dbname=handoff sslmode=disable", db.DatabaseDSN())
	assert.Equal(t, "postgres://u:p@db:5433/handoff?sslmode=disable", db.DatabaseURL())
}
