package services

import (
	"context"
	"errors"
	"fmt"
	"path"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/zatekoja/handoff/backend/internal/domain/entities"
	"github.com/zatekoja/handoff/backend/internal/domain/providers"
	"github.com/zatekoja/handoff/backend/internal/domain/repositories"
	"github.com/zatekoja/handoff/backend/internal/infrastructure/observability"
	"github.com/zatekoja/handoff/backend/pkg/config"
	apperrors "github.com/zatekoja/handoff/backend/pkg/errors"
	"github.com/zatekoja/handoff/backend/pkg/retry"
	"go.opentelemetry.io/otel/attribute"
)

const (
	stageTranscription = "transcription"
	stageTranslation   = "translation"
	stageExtraction    = "extraction"
	stageEmbedding     = "embedding"

	maxDerivedTitleRunes = 80
)

// PipelineOptions tunes attempts, timeouts and translation policy
type PipelineOptions struct {
	TranscriptionAttempts   int
	ExtractionAttempts      int
	ExtractionStrictRetries int
	TranscriptionTimeout    time.Duration
	TranslationTimeout      time.Duration
	ExtractionTimeout       time.Duration
	EmbeddingTimeout        time.Duration
	TranslationDialects     []string
	TranslationTarget       string
	LockTTL                 time.Duration
	// RetryDelay is the first backoff between attempts of one stage.
	RetryDelay time.Duration
	// ShiftLocation is the ward's wall clock used to label shifts; UTC when nil.
	ShiftLocation *time.Location
}

// PipelineOptionsFromConfig maps the pipeline config section
func PipelineOptionsFromConfig(cfg *config.PipelineConfig) PipelineOptions {
	return PipelineOptions{
		TranscriptionAttempts:   cfg.TranscriptionAttempts,
		ExtractionAttempts:      cfg.ExtractionAttempts,
		ExtractionStrictRetries: cfg.ExtractionStrictRetries,
		TranscriptionTimeout:    cfg.TranscriptionTimeout,
		TranslationTimeout:      cfg.TranslationTimeout,
		ExtractionTimeout:       cfg.ExtractionTimeout,
		EmbeddingTimeout:        cfg.EmbeddingTimeout,
		TranslationDialects:     cfg.TranslationDialects,
		TranslationTarget:       cfg.TranslationTarget,
		LockTTL:                 cfg.LockTTL,
		ShiftLocation:           shiftLocation(cfg.ShiftTimezone),
	}
}

// shiftLocation falls back to UTC; config.Validate has already rejected unknown zones
func shiftLocation(name string) *time.Location {
	loc, err := time.LoadLocation(name)
	if err != nil {
		return time.UTC
	}
	return loc
}

// PipelineDeps are the collaborators of the orchestrator
type PipelineDeps struct {
	Notes       repositories.NoteRepository
	Reports     repositories.ReportRepository
	Blobs       providers.BlobStore
	Transcriber providers.TranscriptionProvider
	Translator  providers.TranslationProvider
	Extractor   providers.ExtractionProvider
	Embedder    *ReportEmbedder
	Locker      providers.NoteLocker
	Metrics     *observability.Metrics
}

// PipelineOrchestrator drives a note from upload to a terminal state.
// Every stage persists its outcome with a conditional state update, so a run
// that dies part way leaves the note resumable from its last state.
type PipelineOrchestrator struct {
	deps PipelineDeps
	opts PipelineOptions
	now  func() time.Time
}

// NewPipelineOrchestrator creates an orchestrator
func NewPipelineOrchestrator(deps PipelineDeps, opts PipelineOptions) *PipelineOrchestrator {
	if opts.TranslationTarget == "" {
		opts.TranslationTarget = "en"
	}
	if opts.LockTTL <= 0 {
		opts.LockTTL = 10 * time.Minute
	}
	if opts.RetryDelay <= 0 {
		opts.RetryDelay = 500 * time.Millisecond
	}
	if opts.ShiftLocation == nil {
		opts.ShiftLocation = time.UTC
	}
	return &PipelineOrchestrator{
		deps: deps,
		opts: opts,
		now:  func() time.Time { return time.Now().UTC() },
	}
}

// noteRun is the state carried through one orchestrator run
type noteRun struct {
	note   *entities.Note
	logger zerolog.Logger
}

// Run advances the note as far as it can go. Stage failures are recorded on
// the note and Run returns nil; errors are returned only when the run could
// not record its outcome, leaving the note for the resume sweep.
func (o *PipelineOrchestrator) Run(ctx context.Context, noteID string) error {
	ctx, span := observability.StartSpan(ctx, "pipeline.run", attribute.String("note.id", noteID))
	defer span.End()

	release, ok, err := o.deps.Locker.TryLock(ctx, noteID, o.opts.LockTTL)
	if err != nil {
		observability.RecordError(span, err)
		return err
	}
	logger := observability.LoggerFromContext(ctx).With().Str("note_id", noteID).Logger()
	if !ok {
		logger.Debug().Msg("note is being processed by another run")
		return nil
	}
	defer release()

	note, err := o.deps.Notes.GetByID(ctx, noteID)
	if err != nil {
		observability.RecordError(span, err)
		return err
	}
	if note.State.IsTerminal() {
		return nil
	}
	if err := o.deps.Notes.IncrementAttempts(ctx, noteID); err != nil {
		logger.Warn().Err(err).Msg("failed to record attempt")
	}

	run := &noteRun{
		note:   note,
		logger: logger.With().Str("patient_id", note.PatientID).Logger(),
	}

	for !run.note.State.IsTerminal() {
		from := run.note.State
		var stepErr error
		switch from {
		case entities.NoteStateUploaded:
			stepErr = o.advance(ctx, run, entities.StateUpdate{From: from, To: entities.NoteStateTranscribing})
		case entities.NoteStateTranscribing:
			stepErr = o.transcribe(ctx, run)
		case entities.NoteStateTranslating:
			stepErr = o.translate(ctx, run)
		case entities.NoteStateExtracting:
			stepErr = o.extract(ctx, run)
		case entities.NoteStateEmbedding:
			stepErr = o.embed(ctx, run)
		default:
			stepErr = apperrors.NewInternalError(fmt.Sprintf("unknown note state %q", from), nil)
		}

		if stepErr != nil {
			if apperrors.IsType(stepErr, apperrors.ErrorTypeConflict) {
				run.logger.Info().Str("state", string(from)).Msg("note changed under this run, stopping")
				return nil
			}
			run.logger.Error().Err(stepErr).Str("state", string(from)).Msg("pipeline run interrupted")
			observability.RecordError(span, stepErr)
			return stepErr
		}
	}

	run.logger.Info().Str("state", string(run.note.State)).Msg("pipeline run finished")
	return nil
}

// advance persists a transition and mirrors it on the in-memory note
func (o *PipelineOrchestrator) advance(ctx context.Context, run *noteRun, update entities.StateUpdate) error {
	if err := o.deps.Notes.TransitionState(ctx, run.note.ID, update); err != nil {
		return err
	}
	n := run.note
	n.State = update.To
	if update.Transcript != nil {
		n.Transcript = update.Transcript
	}
	if update.DetectedLanguage != nil {
		n.DetectedLanguage = update.DetectedLanguage
	}
	if update.TranscriptConfidence != nil {
		n.TranscriptConfidence = update.TranscriptConfidence
	}
	if update.TranslatedTranscript != nil {
		n.TranslatedTranscript = update.TranslatedTranscript
	}
	if update.ClearFailure {
		n.FailureReason = nil
		n.Unrecoverable = false
	}
	if update.FailureReason != nil {
		n.FailureReason = update.FailureReason
		n.Unrecoverable = update.Unrecoverable
	}
	run.logger.Debug().Str("from", string(update.From)).Str("to", string(update.To)).Msg("note state advanced")
	return nil
}

// fail records a stage failure unless the run itself is shutting down
func (o *PipelineOrchestrator) fail(ctx context.Context, run *noteRun, stage string, to entities.NoteState, cause error) error {
	if ctx.Err() != nil {
		return ctx.Err()
	}
	reason := fmt.Sprintf("%s failed: %v", stage, cause)
	unrecoverable := apperrors.IsType(cause, apperrors.ErrorTypeUnrecoverableInput)
	run.logger.Warn().Err(cause).Str("stage", stage).Bool("unrecoverable", unrecoverable).Msg("pipeline stage failed")
	return o.advance(ctx, run, entities.StateUpdate{
		From:          run.note.State,
		To:            to,
		FailureReason: &reason,
		Unrecoverable: unrecoverable,
	})
}

func (o *PipelineOrchestrator) stageRetry(attempts int) retry.Config {
	cfg := retry.StageConfig(attempts, apperrors.IsTransient)
	cfg.InitialDelay = o.opts.RetryDelay
	return cfg
}

func (o *PipelineOrchestrator) logAttempt(run *noteRun, stage string) func(int, error, time.Duration) {
	return func(attempt int, err error, next time.Duration) {
		run.logger.Warn().Err(err).Str("stage", stage).Int("attempt", attempt).Dur("retry_in", next).Msg("stage attempt failed")
	}
}

func (o *PipelineOrchestrator) transcribe(ctx context.Context, run *noteRun) error {
	started := time.Now()
	note := run.note

	// resume: the transcript survived a previous run
	if note.Transcript != nil && *note.Transcript != "" {
		observability.RecordStage(ctx, o.deps.Metrics, stageTranscription, "skipped", time.Since(started))
		return o.advance(ctx, run, entities.StateUpdate{
			From:         note.State,
			To:           o.afterTranscription(note.DetectedLanguage),
			ClearFailure: true,
		})
	}

	var result *entities.Transcription
	err := retry.DoWithLog(ctx, o.stageRetry(o.opts.TranscriptionAttempts), stageTranscription, func() error {
		audio, err := o.deps.Blobs.Get(ctx, note.BlobPath)
		if err != nil {
			if apperrors.IsNotFound(err) {
				return apperrors.NewUnrecoverableInputError("audio recording is missing", err)
			}
			return err
		}
		if len(audio) == 0 {
			return apperrors.NewUnrecoverableInputError("audio recording is empty", nil)
		}

		callCtx, cancel := withOptionalTimeout(ctx, o.opts.TranscriptionTimeout)
		defer cancel()
		result, err = o.deps.Transcriber.Transcribe(callCtx, audio, path.Base(note.BlobPath))
		if err != nil && errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil {
			return apperrors.NewTransientError("transcription timed out", err)
		}
		return err
	}, o.logAttempt(run, stageTranscription))

	if err == nil && strings.TrimSpace(result.Text) == "" {
		err = apperrors.NewUnrecoverableInputError("no speech found in recording", nil)
	}
	if err != nil {
		observability.RecordStage(ctx, o.deps.Metrics, stageTranscription, "failed", time.Since(started))
		return o.fail(ctx, run, stageTranscription, entities.NoteStateFailedTranscription, err)
	}
	observability.RecordStage(ctx, o.deps.Metrics, stageTranscription, "ok", time.Since(started))

	text := strings.TrimSpace(result.Text)
	language := normalizeLanguageTag(result.Language)
	confidence := result.Confidence
	update := entities.StateUpdate{
		From:                 note.State,
		To:                   o.afterTranscription(&language),
		Transcript:           &text,
		TranscriptConfidence: &confidence,
		ClearFailure:         true,
	}
	if language != "" {
		update.DetectedLanguage = &language
	}
	run.logger.Info().Str("language", language).Float64("confidence", confidence).Msg("note transcribed")
	return o.advance(ctx, run, update)
}

func (o *PipelineOrchestrator) afterTranscription(language *string) entities.NoteState {
	if language != nil && needsTranslation(*language, o.opts.TranslationDialects) {
		return entities.NoteStateTranslating
	}
	return entities.NoteStateExtracting
}

// translate never fails the note; extraction falls back to the original transcript
func (o *PipelineOrchestrator) translate(ctx context.Context, run *noteRun) error {
	started := time.Now()
	note := run.note
	update := entities.StateUpdate{From: note.State, To: entities.NoteStateExtracting}

	if note.TranslatedTranscript != nil && *note.TranslatedTranscript != "" {
		observability.RecordStage(ctx, o.deps.Metrics, stageTranslation, "skipped", time.Since(started))
		return o.advance(ctx, run, update)
	}

	source := ""
	if note.Transcript != nil {
		source = *note.Transcript
	}
	callCtx, cancel := withOptionalTimeout(ctx, o.opts.TranslationTimeout)
	translated, err := o.deps.Translator.Translate(callCtx, source, o.opts.TranslationTarget)
	cancel()

	translated = strings.TrimSpace(translated)
	switch {
	case err != nil:
		if ctx.Err() != nil {
			return ctx.Err()
		}
		observability.RecordStage(ctx, o.deps.Metrics, stageTranslation, "failed", time.Since(started))
		run.logger.Warn().Err(err).Msg("translation failed, extracting from original transcript")
	case translated == "":
		observability.RecordStage(ctx, o.deps.Metrics, stageTranslation, "failed", time.Since(started))
		run.logger.Warn().Msg("translation returned no text, extracting from original transcript")
	default:
		observability.RecordStage(ctx, o.deps.Metrics, stageTranslation, "ok", time.Since(started))
		update.TranslatedTranscript = &translated
	}
	return o.advance(ctx, run, update)
}

func (o *PipelineOrchestrator) extract(ctx context.Context, run *noteRun) error {
	started := time.Now()
	note := run.note
	toEmbedding := entities.StateUpdate{From: note.State, To: entities.NoteStateEmbedding, ClearFailure: true}

	existing, err := o.deps.Reports.GetByNoteID(ctx, note.ID)
	if err == nil && existing != nil {
		observability.RecordStage(ctx, o.deps.Metrics, stageExtraction, "skipped", time.Since(started))
		return o.advance(ctx, run, toEmbedding)
	}
	if err != nil && !apperrors.IsNotFound(err) {
		return err
	}

	text, language := note.ExtractionInput(o.opts.TranslationTarget)
	if strings.TrimSpace(text) == "" {
		observability.RecordStage(ctx, o.deps.Metrics, stageExtraction, "failed", time.Since(started))
		return o.fail(ctx, run, stageExtraction, entities.NoteStateFailedExtraction,
			apperrors.NewValidationError("note has no transcript to extract from"))
	}

	extraction, err := o.runExtraction(ctx, run, entities.ExtractionRequest{Text: text, Language: language})
	if err != nil {
		observability.RecordStage(ctx, o.deps.Metrics, stageExtraction, "failed", time.Since(started))
		return o.fail(ctx, run, stageExtraction, entities.NoteStateFailedExtraction, err)
	}

	report, tasks := o.buildReport(note, extraction, language)
	if err := o.deps.Reports.CreateWithTasks(ctx, report, tasks); err != nil {
		if !apperrors.IsType(err, apperrors.ErrorTypeConflict) {
			return err
		}
		// an earlier run already committed the report for this note
		run.logger.Info().Msg("report already exists for note")
	} else {
		run.logger.Info().Str("report_id", report.ID).Int("tasks", len(tasks)).Msg("report extracted")
	}
	observability.RecordStage(ctx, o.deps.Metrics, stageExtraction, "ok", time.Since(started))
	return o.advance(ctx, run, toEmbedding)
}

// runExtraction retries transient errors, then falls back to strict mode on malformed output
func (o *PipelineOrchestrator) runExtraction(ctx context.Context, run *noteRun, req entities.ExtractionRequest) (*entities.Extraction, error) {
	strictLeft := o.opts.ExtractionStrictRetries
	for {
		var extraction *entities.Extraction
		err := retry.DoWithLog(ctx, o.stageRetry(o.opts.ExtractionAttempts), stageExtraction, func() error {
			callCtx, cancel := withOptionalTimeout(ctx, o.opts.ExtractionTimeout)
			defer cancel()
			var err error
			extraction, err = o.deps.Extractor.Extract(callCtx, req)
			if err != nil && errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil {
				return apperrors.NewTransientError("extraction timed out", err)
			}
			return err
		}, o.logAttempt(run, stageExtraction))
		if err == nil {
			return extraction, nil
		}
		if !apperrors.IsType(err, apperrors.ErrorTypeMalformedResponse) || strictLeft <= 0 {
			return nil, err
		}
		strictLeft--
		req.Strict = true
		run.logger.Warn().Err(err).Msg("malformed extraction, retrying with strict prompt")
	}
}

func (o *PipelineOrchestrator) buildReport(note *entities.Note, ex *entities.Extraction, language string) (*entities.Report, []*entities.Task) {
	now := o.now()
	report := &entities.Report{
		ID:            uuid.New().String(),
		PatientID:     note.PatientID,
		NoteID:        note.ID,
		AuthorID:      note.AuthorID,
		ShiftType:     entities.ShiftForTime(note.CreatedAt.In(o.opts.ShiftLocation)),
		Summary:       strings.TrimSpace(ex.Summary),
		PainScore:     entities.ValidPainScore(ex.PainScore),
		Consciousness: entities.ParseConsciousness(ex.Consciousness),
		RiskFactors:   cleanList(ex.RiskFactors),
		AccessLines:   cleanList(ex.AccessLines),
		PendingLabs:   cleanList(ex.PendingLabs),
		ActionItems:   cleanList(ex.ActionItems),
		Language:      language,
		CreatedAt:     now,
	}

	tasks := make([]*entities.Task, 0, len(ex.Tasks))
	for _, t := range ex.Tasks {
		category := strings.TrimSpace(t.Category)
		if category == "" {
			category = entities.DefaultTaskCategory
		}
		tasks = append(tasks, &entities.Task{
			ID:          uuid.New().String(),
			Title:       taskTitle(t, category),
			Description: strings.TrimSpace(t.Description),
			Priority:    entities.ParseTaskPriority(t.Priority),
			Category:    category,
			Status:      entities.TaskStatusPending,
			NoteID:      note.ID,
			PatientID:   note.PatientID,
			CreatedAt:   now,
		})
	}
	return report, tasks
}

// taskTitle keeps every extracted task; untitled ones borrow the description or category
func taskTitle(t entities.ExtractedTask, category string) string {
	if title := strings.TrimSpace(t.Title); title != "" {
		return title
	}
	desc := strings.TrimSpace(t.Description)
	if desc == "" {
		return category
	}
	if r := []rune(desc); len(r) > maxDerivedTitleRunes {
		return strings.TrimSpace(string(r[:maxDerivedTitleRunes])) + "..."
	}
	return desc
}

// embed never fails the note; the embedding sweep picks up reports left without a vector
func (o *PipelineOrchestrator) embed(ctx context.Context, run *noteRun) error {
	started := time.Now()
	report, err := o.deps.Reports.GetByNoteID(ctx, run.note.ID)
	if err != nil {
		return err
	}

	if err := o.deps.Embedder.Embed(ctx, report); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		observability.RecordStage(ctx, o.deps.Metrics, stageEmbedding, "failed", time.Since(started))
		run.logger.Warn().Err(err).Str("report_id", report.ID).Msg("embedding failed, report left for sweep")
	} else {
		observability.RecordStage(ctx, o.deps.Metrics, stageEmbedding, "ok", time.Since(started))
	}
	return o.advance(ctx, run, entities.StateUpdate{From: run.note.State, To: entities.NoteStateProcessed})
}

func cleanList(items []string) []string {
	out := make([]string, 0, len(items))
	for _, item := range items {
		if s := strings.TrimSpace(item); s != "" {
			out = append(out, s)
		}
	}
	return out
}

func normalizeLanguageTag(tag string) string {
	return strings.ReplaceAll(strings.ToLower(strings.TrimSpace(tag)), "_", "-")
}

// needsTranslation matches the full tag, or the primary subtag when the rule has no region
func needsTranslation(language string, dialects []string) bool {
	tag := normalizeLanguageTag(language)
	if tag == "" {
		return false
	}
	primary := tag
	if i := strings.Index(tag, "-"); i > 0 {
		primary = tag[:i]
	}
	for _, d := range dialects {
		rule := normalizeLanguageTag(d)
		if rule == "" {
			continue
		}
		if rule == tag {
			return true
		}
		if !strings.Contains(rule, "-") && rule == primary {
			return true
		}
	}
	return false
}
