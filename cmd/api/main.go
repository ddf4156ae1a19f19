package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/zatekoja/handoff/backend/internal/adapters/database"
	"github.com/zatekoja/handoff/backend/internal/api/handlers"
	"github.com/zatekoja/handoff/backend/internal/api/routes"
	"github.com/zatekoja/handoff/backend/internal/application/services"
	"github.com/zatekoja/handoff/backend/internal/infrastructure/clients/openai"
	"github.com/zatekoja/handoff/backend/internal/infrastructure/clients/postgres"
	"github.com/zatekoja/handoff/backend/internal/infrastructure/observability"
	"github.com/zatekoja/handoff/backend/internal/infrastructure/wiring"
	"github.com/zatekoja/handoff/backend/pkg/config"
	"github.com/zatekoja/handoff/backend/pkg/secrets"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	observability.InitLogger("handoff-api", os.Getenv("APP_ENV"))
	logger := observability.GetLogger()

	// Vault fills in API keys and connection strings before config is read
	vaultResult, err := secrets.ApplyVaultSecrets(ctx, secrets.LoadVaultConfigFromEnv(""))
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to load secrets from Vault")
	}
	if vaultResult.Enabled {
		logger.Info().Str("path", vaultResult.Path).Int("loaded", vaultResult.Loaded).Int("skipped", vaultResult.Skipped).Msg("Vault secrets applied")
	}

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to load configuration")
	}

	// Initialize OpenTelemetry if enabled
	if cfg.OTEL.Enabled && cfg.OTEL.Endpoint != "" {
		shutdown, err := observability.Setup(ctx, cfg.OTEL.ServiceName, cfg.OTEL.ServiceVersion, cfg.OTEL.Endpoint)
		if err != nil {
			logger.Warn().Err(err).Msg("Failed to set up OpenTelemetry")
		} else {
			defer func() {
				ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				if err := shutdown(ctx); err != nil {
					log.Error().Err(err).Msg("Error shutting down OpenTelemetry")
				}
			}()
		}
	}

	metrics, err := observability.InitMetrics()
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to initialize metrics")
	}

	pgClient, err := postgres.NewClient(&cfg.Database)
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to initialize PostgreSQL client")
	}
	defer pgClient.Close()

	if cfg.Database.AutoMigrate {
		if err := pgClient.Migrate(ctx, cfg.Database.NotifyChannel); err != nil {
			logger.Fatal().Err(err).Msg("Failed to migrate database")
		}
	}

	coord := wiring.BuildCoordination(cfg, logger)
	defer coord.Close()

	blobs, err := wiring.BuildBlobStore(ctx, &cfg.Blob)
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to initialize blob store")
	}

	index, closeIndex, err := wiring.BuildRetrievalIndex(ctx, cfg)
	if err != nil {
		logger.Fatal().Err(err).Str("backend", cfg.VectorStore.Backend).Msg("Failed to initialize retrieval index")
	}
	defer closeIndex()

	ai, err := openai.NewClient(&cfg.OpenAI)
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to initialize OpenAI client")
	}
	defer ai.Close()

	notes := database.NewNoteAdapter(pgClient)
	reports := database.NewReportAdapter(pgClient)

	embedder := services.NewReportEmbedder(reports, ai, index, cfg.Pipeline.EmbeddingTimeout)
	orchestrator := services.NewPipelineOrchestrator(services.PipelineDeps{
		Notes:       notes,
		Reports:     reports,
		Blobs:       blobs,
		Transcriber: ai,
		Translator:  ai,
		Extractor:   ai,
		Embedder:    embedder,
		Locker:      coord.Locker,
		Metrics:     metrics,
	}, services.PipelineOptionsFromConfig(&cfg.Pipeline))

	queue := services.NewPipelineQueue(orchestrator, cfg.Pipeline.Workers, cfg.Pipeline.QueueSize)
	if err := metrics.ObserveQueueDepth(queue.Depth); err != nil {
		logger.Warn().Err(err).Msg("Failed to register queue depth gauge")
	}

	// workers stop after the HTTP server; a cancelled run leaves its note for the resume sweep
	workerCtx, stopWorkers := context.WithCancel(context.Background())
	defer stopWorkers()
	queue.Start(workerCtx)

	noteService := services.NewNoteService(notes, reports, blobs, queue, coord.Cache, metrics)
	questionService := services.NewQuestionService(ai, index, reports, ai, services.QuestionOptions{
		TopK:          cfg.QA.TopK,
		MinSimilarity: cfg.QA.MinSimilarity,
		Timeout:       cfg.QA.Timeout,
	}, metrics)
	sweepService := services.NewEmbeddingSweepService(reports, embedder, cfg.Pipeline.SweepWorkers)
	resumeService := services.NewResumeSweepService(notes, queue, cfg.Pipeline.ResumeGrace)

	if wiring.IndexIsVolatile(cfg.VectorStore.Backend) {
		if _, err := sweepService.ReindexEmbedded(ctx); err != nil {
			logger.Fatal().Err(err).Msg("Failed to rebuild in-memory retrieval index")
		}
	}

	go resumeService.Run(ctx, cfg.Pipeline.ResumeInterval)
	go sweepService.Run(ctx, cfg.Pipeline.EmbeddingSweepInterval)

	// Row changes reach SSE clients through LISTEN/NOTIFY
	listener, err := pgClient.Listen(cfg.Database.NotifyChannel)
	if err != nil {
		logger.Warn().Err(err).Msg("Change feed disabled")
	} else {
		defer listener.Close()
		relay := services.NewChangeFeedRelay(coord.Bus)
		go relay.Run(ctx, listener.Notify, listener.Ping)
	}

	sseHandler := handlers.NewSSEHandler(coord.Bus)
	router := routes.NewRouter(
		handlers.NewNoteHandler(noteService, cfg.Server.MaxUploadBytes),
		handlers.NewQuestionHandler(questionService),
		handlers.NewAdminHandler(sweepService),
		sseHandler,
		cfg.Server.AllowedOrigins,
		metrics,
	)

	serverAddr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	server := &http.Server{
		Addr:              serverAddr,
		Handler:           router.SetupRoutes(),
		ReadHeaderTimeout: 15 * time.Second,
		// no WriteTimeout: SSE streams stay open
		IdleTimeout: 60 * time.Second,
	}

	go func() {
		logger.Info().Str("addr", serverAddr).Str("vector_backend", cfg.VectorStore.Backend).Msg("Server starting")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal().Err(err).Msg("Server failed to start")
		}
	}()

	<-ctx.Done()
	logger.Info().Int("sse_clients", sseHandler.GetClientCount()).Msg("Server shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	// closing the bus ends open SSE streams so Shutdown does not wait on them
	if err := coord.Bus.Close(); err != nil {
		logger.Warn().Err(err).Msg("Error closing event bus")
	}
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("Error during server shutdown")
	}

	stopWorkers()
	done := make(chan struct{})
	go func() {
		queue.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-shutdownCtx.Done():
		logger.Warn().Msg("Pipeline workers did not stop in time; the resume sweep will pick their notes up")
	}

	logger.Info().Msg("Server stopped")
}
