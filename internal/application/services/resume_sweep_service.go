package services

import (
	"context"
	"time"

	"github.com/zatekoja/handoff/backend/internal/domain/repositories"
	"github.com/zatekoja/handoff/backend/internal/infrastructure/observability"
)

const resumeBatchSize = 100

// ResumeSweepService re-enqueues notes stuck in a non-terminal state,
// e.g. after a crash, a shutdown mid-run or a full queue.
type ResumeSweepService struct {
	notes repositories.NoteRepository
	queue NoteEnqueuer
	grace time.Duration
	now   func() time.Time
}

// NewResumeSweepService creates a resume sweep; grace protects in-flight runs
func NewResumeSweepService(notes repositories.NoteRepository, queue NoteEnqueuer, grace time.Duration) *ResumeSweepService {
	return &ResumeSweepService{
		notes: notes,
		queue: queue,
		grace: grace,
		now:   func() time.Time { return time.Now().UTC() },
	}
}

// SweepOnce enqueues stale notes and returns how many were accepted
func (s *ResumeSweepService) SweepOnce(ctx context.Context) (int, error) {
	stale, err := s.notes.ListStale(ctx, s.now().Add(-s.grace), resumeBatchSize)
	if err != nil {
		return 0, err
	}

	logger := observability.LoggerFromContext(ctx)
	enqueued := 0
	for _, note := range stale {
		if note.State.IsTerminal() {
			continue
		}
		if !s.queue.Enqueue(note.ID) {
			logger.Warn().Int("pending", len(stale)-enqueued).Msg("pipeline queue full, resume sweep paused")
			break
		}
		enqueued++
	}
	if enqueued > 0 {
		logger.Info().Int("enqueued", enqueued).Msg("resumed stale notes")
	}
	return enqueued, nil
}

// Run sweeps once immediately and then on every tick
func (s *ResumeSweepService) Run(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		return
	}
	sweep := func() {
		if _, err := s.SweepOnce(ctx); err != nil && ctx.Err() == nil {
			observability.LoggerFromContext(ctx).Error().Err(err).Msg("resume sweep failed")
		}
	}
	sweep()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			sweep()
		}
	}
}
