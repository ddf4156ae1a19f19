package services

import (
	"context"
	"sync"

	"github.com/zatekoja/handoff/backend/internal/infrastructure/observability"
)

// NoteRunner processes one note; PipelineOrchestrator implements it
type NoteRunner interface {
	Run(ctx context.Context, noteID string) error
}

// NoteEnqueuer hands a note to the worker pool without blocking
type NoteEnqueuer interface {
	Enqueue(noteID string) bool
}

// PipelineQueue is a bounded worker pool feeding the orchestrator
type PipelineQueue struct {
	runner  NoteRunner
	jobs    chan string
	workers int
	wg      sync.WaitGroup
	once    sync.Once
}

// NewPipelineQueue creates a queue with the given worker count and capacity
func NewPipelineQueue(runner NoteRunner, workers, size int) *PipelineQueue {
	if workers <= 0 {
		workers = 1
	}
	if size <= 0 {
		size = 1
	}
	return &PipelineQueue{
		runner:  runner,
		jobs:    make(chan string, size),
		workers: workers,
	}
}

// Start launches the workers; they stop when ctx is cancelled
func (q *PipelineQueue) Start(ctx context.Context) {
	q.once.Do(func() {
		for i := 0; i < q.workers; i++ {
			q.wg.Add(1)
			go q.work(ctx, i)
		}
		observability.GetLogger().Info().Int("workers", q.workers).Int("capacity", cap(q.jobs)).Msg("pipeline queue started")
	})
}

func (q *PipelineQueue) work(ctx context.Context, worker int) {
	defer q.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case noteID := <-q.jobs:
			if err := q.runner.Run(ctx, noteID); err != nil {
				observability.LoggerFromContext(ctx).Error().Err(err).
					Int("worker", worker).
					Str("note_id", noteID).
					Msg("note run returned an error")
			}
		}
	}
}

// Enqueue reports false when the queue is full; the note stays where it is
// and the resume sweep picks it up later.
func (q *PipelineQueue) Enqueue(noteID string) bool {
	select {
	case q.jobs <- noteID:
		return true
	default:
		return false
	}
}

// Depth is the number of notes waiting for a worker
func (q *PipelineQueue) Depth() int {
	return len(q.jobs)
}

// Wait blocks until every worker has exited
func (q *PipelineQueue) Wait() {
	q.wg.Wait()
}
