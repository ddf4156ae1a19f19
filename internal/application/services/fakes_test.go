package services

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/stretchr/testify/mock"
	"github.com/zatekoja/handoff/backend/internal/domain/entities"
	apperrors "github.com/zatekoja/handoff/backend/pkg/errors"
)

// memNoteRepo mirrors the conditional update semantics of the database adapter
type memNoteRepo struct {
	mu          sync.Mutex
	notes       map[string]*entities.Note
	transitions []entities.StateUpdate
}

func newMemNoteRepo(notes ...*entities.Note) *memNoteRepo {
	r := &memNoteRepo{notes: make(map[string]*entities.Note)}
	for _, n := range notes {
		r.notes[n.ID] = n
	}
	return r
}

func (r *memNoteRepo) Create(_ context.Context, note *entities.Note) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.notes[note.ID]; ok {
		return apperrors.NewConflictError("note exists")
	}
	cp := *note
	r.notes[note.ID] = &cp
	return nil
}

func (r *memNoteRepo) GetByID(_ context.Context, id string) (*entities.Note, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	n, ok := r.notes[id]
	if !ok {
		return nil, apperrors.NewNotFoundError("note not found")
	}
	cp := *n
	return &cp, nil
}

func (r *memNoteRepo) TransitionState(_ context.Context, id string, u entities.StateUpdate) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	n, ok := r.notes[id]
	if !ok {
		return apperrors.NewNotFoundError("note not found")
	}
	if !entities.CanTransition(u.From, u.To) {
		return apperrors.NewValidationError("invalid transition")
	}
	if n.State != u.From {
		return apperrors.NewConflictError("stale state")
	}
	n.State = u.To
	if u.Transcript != nil {
		n.Transcript = u.Transcript
	}
	if u.DetectedLanguage != nil {
		n.DetectedLanguage = u.DetectedLanguage
	}
	if u.TranscriptConfidence != nil {
		n.TranscriptConfidence = u.TranscriptConfidence
	}
	if u.TranslatedTranscript != nil {
		n.TranslatedTranscript = u.TranslatedTranscript
	}
	if u.ClearFailure {
		n.FailureReason = nil
		n.Unrecoverable = false
	}
	if u.FailureReason != nil {
		n.FailureReason = u.FailureReason
		n.Unrecoverable = u.Unrecoverable
	}
	if u.To == entities.NoteStateProcessed {
		now := time.Now()
		n.ProcessedAt = &now
	}
	n.UpdatedAt = time.Now()
	r.transitions = append(r.transitions, u)
	return nil
}

func (r *memNoteRepo) IncrementAttempts(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if n, ok := r.notes[id]; ok {
		n.Attempts++
	}
	return nil
}

func (r *memNoteRepo) ListStale(_ context.Context, before time.Time, limit int) ([]*entities.Note, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*entities.Note
	for _, n := range r.notes {
		if !n.State.IsTerminal() && n.UpdatedAt.Before(before) {
			cp := *n
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UpdatedAt.Before(out[j].UpdatedAt) })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (r *memNoteRepo) states() []entities.NoteState {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]entities.NoteState, 0, len(r.transitions))
	for _, t := range r.transitions {
		out = append(out, t.To)
	}
	return out
}

type memReportRepo struct {
	mu            sync.Mutex
	reports       map[string]*entities.Report
	tasks         map[string][]*entities.Task
	setEmbedCalls int
}

func newMemReportRepo() *memReportRepo {
	return &memReportRepo{reports: make(map[string]*entities.Report), tasks: make(map[string][]*entities.Task)}
}

func (r *memReportRepo) CreateWithTasks(_ context.Context, report *entities.Report, tasks []*entities.Task) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, existing := range r.reports {
		if existing.NoteID == report.NoteID {
			return apperrors.NewConflictError("report exists for note")
		}
	}
	cp := *report
	r.reports[report.ID] = &cp
	r.tasks[report.NoteID] = tasks
	return nil
}

func (r *memReportRepo) GetByID(_ context.Context, id string) (*entities.Report, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if rep, ok := r.reports[id]; ok {
		cp := *rep
		return &cp, nil
	}
	return nil, apperrors.NewNotFoundError("report not found")
}

func (r *memReportRepo) GetByNoteID(_ context.Context, noteID string) (*entities.Report, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, rep := range r.reports {
		if rep.NoteID == noteID {
			cp := *rep
			return &cp, nil
		}
	}
	return nil, apperrors.NewNotFoundError("report not found")
}

func (r *memReportRepo) GetByIDs(_ context.Context, patientID string, ids []string) ([]*entities.Report, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*entities.Report
	for _, id := range ids {
		if rep, ok := r.reports[id]; ok && rep.PatientID == patientID {
			cp := *rep
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (r *memReportRepo) ListTasksByNoteID(_ context.Context, noteID string) ([]*entities.Task, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.tasks[noteID], nil
}

func (r *memReportRepo) ListMissingEmbedding(_ context.Context, limit int) ([]*entities.Report, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*entities.Report
	for _, rep := range r.reports {
		if !rep.HasEmbedding() {
			cp := *rep
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (r *memReportRepo) ListEmbedded(_ context.Context, afterID string, limit int) ([]*entities.Report, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*entities.Report
	for _, rep := range r.reports {
		if rep.HasEmbedding() && rep.ID > afterID {
			cp := *rep
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (r *memReportRepo) SetEmbedding(_ context.Context, id string, vector []float32, model string, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	rep, ok := r.reports[id]
	if !ok {
		return apperrors.NewNotFoundError("report not found")
	}
	rep.Embedding = vector
	rep.EmbeddingModel = &model
	rep.EmbeddedAt = &at
	r.setEmbedCalls++
	return nil
}

func (r *memReportRepo) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.reports)
}

// AI adapter mocks

type mockTranscriber struct{ mock.Mock }

func (m *mockTranscriber) Transcribe(ctx context.Context, audio []byte, filename string) (*entities.Transcription, error) {
	args := m.Called(ctx, audio, filename)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*entities.Transcription), args.Error(1)
}

type mockTranslator struct{ mock.Mock }

func (m *mockTranslator) Translate(ctx context.Context, text, target string) (string, error) {
	args := m.Called(ctx, text, target)
	return args.String(0), args.Error(1)
}

type mockExtractor struct{ mock.Mock }

func (m *mockExtractor) Extract(ctx context.Context, req entities.ExtractionRequest) (*entities.Extraction, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*entities.Extraction), args.Error(1)
}

type mockEmbedder struct{ mock.Mock }

func (m *mockEmbedder) Embed(ctx context.Context, text string, mode entities.EmbeddingMode) ([]float32, error) {
	args := m.Called(ctx, text, mode)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]float32), args.Error(1)
}

func (m *mockEmbedder) Model() string   { return "test-embedding" }
func (m *mockEmbedder) Dimensions() int { return 3 }

type mockAnswerer struct{ mock.Mock }

func (m *mockAnswerer) Answer(ctx context.Context, system, contextText, question string) (string, error) {
	args := m.Called(ctx, system, contextText, question)
	return args.String(0), args.Error(1)
}

type recordingQueue struct {
	mu   sync.Mutex
	ids  []string
	full bool
}

func (q *recordingQueue) Enqueue(noteID string) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.full {
		return false
	}
	q.ids = append(q.ids, noteID)
	return true
}

func (q *recordingQueue) enqueued() []string {
	q.mu.Lock()
	defer q.mu.Unlock()
	return append([]string(nil), q.ids...)
}
