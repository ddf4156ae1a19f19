package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
	_ "time/tzdata"
)

// Config holds all application configuration
type Config struct {
	Server      ServerConfig
	Database    DatabaseConfig
	Redis       RedisConfig
	Typesense   TypesenseConfig
	Milvus      MilvusConfig
	VectorStore VectorStoreConfig
	Blob        BlobConfig
	OpenAI      OpenAIConfig
	Pipeline    PipelineConfig
	QA          QAConfig
	OTEL        OTELConfig
}

// ServerConfig holds server configuration
type ServerConfig struct {
	Host            string
	Port            int
	MaxUploadBytes  int64
	ShutdownTimeout time.Duration
	AllowedOrigins  []string
}

// DatabaseConfig holds database configuration
type DatabaseConfig struct {
	Host          string
	Port          int
	User          string
	Password      string
	Database      string
	SSLMode       string
	NotifyChannel string
	AutoMigrate   bool
}

// RedisConfig holds Redis configuration
type RedisConfig struct {
	Enabled  bool
	Host     string
	Port     int
	Password string
	DB       int
}

// TypesenseConfig holds Typesense configuration
type TypesenseConfig struct {
	URL        string
	APIKey     string
	Collection string
}

// MilvusConfig holds Milvus configuration
type MilvusConfig struct {
	Address    string
	Username   string
	Password   string
	Collection string
}

// VectorStoreConfig selects the retrieval index backend.
// Backend is one of pgvector, typesense, milvus or memory.
type VectorStoreConfig struct {
	Backend string
	// DSN for the pgvector pool; empty reuses the Database settings.
	DSN string
}

// BlobConfig selects where uploaded audio is stored.
// Backend is azure or local.
type BlobConfig struct {
	Backend          string
	ConnectionString string
	AccountURL       string
	Container        string
	LocalDir         string
}

// OpenAIConfig holds configuration for the OpenAI-compatible adapters
type OpenAIConfig struct {
	APIKey                  string
	BaseURL                 string
	TranscriptionModel      string
	ChatModel               string
	EmbeddingModel          string
	EmbeddingDimensions     int
	EmbeddingDocumentPrefix string
	EmbeddingQueryPrefix    string
	RequestsPerMinute       int
	Timeout                 time.Duration
}

// PipelineConfig holds orchestration settings
type PipelineConfig struct {
	Workers                 int
	QueueSize               int
	TranscriptionAttempts   int
	ExtractionAttempts      int
	ExtractionStrictRetries int
	TranscriptionTimeout    time.Duration
	TranslationTimeout      time.Duration
	ExtractionTimeout       time.Duration
	EmbeddingTimeout        time.Duration
	TranslationDialects     []string
	TranslationTarget       string
	// ShiftTimezone is the IANA zone whose wall clock labels day/evening/night shifts.
	ShiftTimezone          string
	LockTTL                time.Duration
	ResumeGrace            time.Duration
	ResumeInterval         time.Duration
	EmbeddingSweepInterval time.Duration
	SweepWorkers           int
}

// QAConfig holds retrieval-augmented answering settings
type QAConfig struct {
	TopK          int
	MinSimilarity float64
	Timeout       time.Duration
}

// OTELConfig holds OpenTelemetry configuration
type OTELConfig struct {
	ServiceName    string
	ServiceVersion string
	Endpoint       string
	Enabled        bool
}

// Load loads configuration from environment variables
func Load() (*Config, error) {
	cfg := &Config{
		Server: ServerConfig{
			Host:            getEnv("SERVER_HOST", "0.0.0.0"),
			Port:            getEnvAsInt("SERVER_PORT", 8080),
			MaxUploadBytes:  int64(getEnvAsInt("SERVER_MAX_UPLOAD_MB", 25)) << 20,
			ShutdownTimeout: getEnvAsDuration("SERVER_SHUTDOWN_TIMEOUT", 15*time.Second),
			AllowedOrigins:  getEnvAsList("ALLOWED_ORIGINS", []string{"*"}),
		},
		Database: DatabaseConfig{
			Host:          getEnv("DB_HOST", "localhost"),
			Port:          getEnvAsInt("DB_PORT", 5432),
			User:          getEnv("DB_USER", "postgres"),
			Password:      getEnv("DB_PASSWORD", ""),
			Database:      getEnv("DB_NAME", "handoff"),
			SSLMode:       getEnv("DB_SSLMODE", "disable"),
			NotifyChannel: getEnv("DB_NOTIFY_CHANNEL", "handoff_changes"),
			AutoMigrate:   getEnvAsBool("DB_AUTO_MIGRATE", true),
		},
		Redis: RedisConfig{
			Enabled:  getEnvAsBool("REDIS_ENABLED", true),
			Host:     getEnv("REDIS_HOST", "localhost"),
			Port:     getEnvAsInt("REDIS_PORT", 6379),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getEnvAsInt("REDIS_DB", 0),
		},
		Typesense: TypesenseConfig{
			URL:        getEnv("TYPESENSE_URL", "http://localhost:8108"),
			APIKey:     getEnv("TYPESENSE_API_KEY", "xyz"),
			Collection: getEnv("TYPESENSE_COLLECTION", "report_embeddings"),
		},
		Milvus: MilvusConfig{
			Address:    getEnv("MILVUS_ADDRESS", "localhost:19530"),
			Username:   getEnv("MILVUS_USERNAME", ""),
			Password:   getEnv("MILVUS_PASSWORD", ""),
			Collection: getEnv("MILVUS_COLLECTION", "report_embeddings"),
		},
		VectorStore: VectorStoreConfig{
			Backend: strings.ToLower(getEnv("VECTOR_BACKEND", "pgvector")),
			DSN:     getEnv("VECTOR_DSN", ""),
		},
		Blob: BlobConfig{
			Backend:          strings.ToLower(getEnv("BLOB_BACKEND", "local")),
			ConnectionString: getEnv("AZURE_STORAGE_CONNECTION_STRING", ""),
			AccountURL:       getEnv("AZURE_STORAGE_ACCOUNT_URL", ""),
			Container:        getEnv("BLOB_CONTAINER", "voice-notes"),
			LocalDir:         getEnv("BLOB_LOCAL_DIR", "./data/audio"),
		},
		OpenAI: OpenAIConfig{
			APIKey:                  getEnv("OPENAI_API_KEY", ""),
			BaseURL:                 getEnv("OPENAI_BASE_URL", ""),
			TranscriptionModel:      getEnv("OPENAI_TRANSCRIPTION_MODEL", "whisper-1"),
			ChatModel:               getEnv("OPENAI_MODEL", "gpt-4o-mini"),
			EmbeddingModel:          getEnv("OPENAI_EMBEDDING_MODEL", "text-embedding-3-small"),
			EmbeddingDimensions:     getEnvAsInt("OPENAI_EMBEDDING_DIMENSIONS", 1536),
			EmbeddingDocumentPrefix: getEnv("OPENAI_EMBEDDING_DOCUMENT_PREFIX", ""),
			EmbeddingQueryPrefix:    getEnv("OPENAI_EMBEDDING_QUERY_PREFIX", ""),
			RequestsPerMinute:       getEnvAsInt("OPENAI_REQUESTS_PER_MINUTE", 60),
			Timeout:                 getEnvAsDuration("OPENAI_TIMEOUT", 60*time.Second),
		},
		Pipeline: PipelineConfig{
			Workers:                 getEnvAsInt("PIPELINE_WORKERS", 4),
			QueueSize:               getEnvAsInt("PIPELINE_QUEUE_SIZE", 100),
			TranscriptionAttempts:   getEnvAsInt("PIPELINE_TRANSCRIPTION_ATTEMPTS", 2),
			ExtractionAttempts:      getEnvAsInt("PIPELINE_EXTRACTION_ATTEMPTS", 3),
			ExtractionStrictRetries: getEnvAsInt("PIPELINE_EXTRACTION_STRICT_RETRIES", 1),
			TranscriptionTimeout:    getEnvAsDuration("PIPELINE_TRANSCRIPTION_TIMEOUT", 90*time.Second),
			TranslationTimeout:      getEnvAsDuration("PIPELINE_TRANSLATION_TIMEOUT", 45*time.Second),
			ExtractionTimeout:       getEnvAsDuration("PIPELINE_EXTRACTION_TIMEOUT", 60*time.Second),
			EmbeddingTimeout:        getEnvAsDuration("PIPELINE_EMBEDDING_TIMEOUT", 20*time.Second),
			TranslationDialects:     getEnvAsList("PIPELINE_TRANSLATION_DIALECTS", []string{"ar-eg", "ar-sa", "ar-ae", "ar-lb", "ar-ma", "ar"}),
			TranslationTarget:       getEnv("PIPELINE_TRANSLATION_TARGET", "en"),
			ShiftTimezone:           getEnv("PIPELINE_SHIFT_TIMEZONE", "UTC"),
			LockTTL:                 getEnvAsDuration("PIPELINE_LOCK_TTL", 10*time.Minute),
			ResumeGrace:             getEnvAsDuration("PIPELINE_RESUME_GRACE", 5*time.Minute),
			ResumeInterval:          getEnvAsDuration("PIPELINE_RESUME_INTERVAL", time.Minute),
			EmbeddingSweepInterval:  getEnvAsDuration("PIPELINE_EMBEDDING_SWEEP_INTERVAL", 10*time.Minute),
			SweepWorkers:            getEnvAsInt("PIPELINE_SWEEP_WORKERS", 4),
		},
		QA: QAConfig{
			TopK:          getEnvAsInt("QA_TOP_K", 3),
			MinSimilarity: getEnvAsFloat("QA_MIN_SIMILARITY", 0.3),
			Timeout:       getEnvAsDuration("QA_TIMEOUT", 45*time.Second),
		},
		OTEL: OTELConfig{
			ServiceName:    getEnv("OTEL_SERVICE_NAME", "handoff"),
			ServiceVersion: getEnv("OTEL_SERVICE_VERSION", "1.0.0"),
			Endpoint:       getEnv("OTEL_ENDPOINT", ""),
			Enabled:        getEnvAsBool("OTEL_ENABLED", false),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate rejects settings the pipeline cannot run with
func (c *Config) Validate() error {
	switch c.VectorStore.Backend {
	case "pgvector", "typesense", "milvus", "memory":
	default:
		return fmt.Errorf("unsupported VECTOR_BACKEND %q", c.VectorStore.Backend)
	}
	switch c.Blob.Backend {
	case "local":
	case "azure":
		if c.Blob.ConnectionString == "" && c.Blob.AccountURL == "" {
			return fmt.Errorf("azure blob backend requires AZURE_STORAGE_CONNECTION_STRING or AZURE_STORAGE_ACCOUNT_URL")
		}
	default:
		return fmt.Errorf("unsupported BLOB_BACKEND %q", c.Blob.Backend)
	}
	if c.Pipeline.Workers < 1 {
		return fmt.Errorf("PIPELINE_WORKERS must be at least 1")
	}
	if _, err := time.LoadLocation(c.Pipeline.ShiftTimezone); err != nil {
		return fmt.Errorf("invalid PIPELINE_SHIFT_TIMEZONE %q: %w", c.Pipeline.ShiftTimezone, err)
	}
	if c.OpenAI.EmbeddingDimensions < 1 {
		return fmt.Errorf("OPENAI_EMBEDDING_DIMENSIONS must be positive")
	}
	if c.QA.MinSimilarity < 0 || c.QA.MinSimilarity > 1 {
		return fmt.Errorf("QA_MIN_SIMILARITY must be between 0 and 1")
	}
	return nil
}

// DatabaseDSN returns the PostgreSQL connection string
func (c *DatabaseConfig) DatabaseDSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Database, c.SSLMode,
	)
}

// DatabaseURL returns the connection string in URL form, as pgx expects
func (c *DatabaseConfig) DatabaseURL() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s",
		c.User, c.Password, c.Host, c.Port, c.Database, c.SSLMode)
}

// RedisAddr returns the Redis address
func (c *RedisConfig) RedisAddr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolVal, err := strconv.ParseBool(value); err == nil {
			return boolVal
		}
	}
	return defaultValue
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}

// getEnvAsList splits a comma separated value, dropping blanks
func getEnvAsList(key string, defaultValue []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	var out []string
	for _, part := range strings.Split(value, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	if len(out) == 0 {
		return defaultValue
	}
	return out
}
