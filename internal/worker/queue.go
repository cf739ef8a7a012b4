package worker

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/pyorchestrator/pyorchestrator/internal/metrics"
)

var ErrQueueFull = errors.New("run queue is full")

// Queue hands run ids from triggers to the worker. Dispatch never
// blocks the caller.
type Queue struct {
	runs chan uuid.UUID
}

func NewQueue(size int) *Queue {
	if size < 1 {
		size = 1
	}
	return &Queue{runs: make(chan uuid.UUID, size)}
}

// Dispatch enqueues a run for execution.
func (q *Queue) Dispatch(runID uuid.UUID) error {
	select {
	case q.runs <- runID:
		metrics.RunQueueDepth.Set(float64(len(q.runs)))
		return nil
	default:
		return ErrQueueFull
	}
}

// ClaimNext waits for the next dispatched run.
func (q *Queue) ClaimNext(ctx context.Context) (uuid.UUID, error) {
	select {
	case id := <-q.runs:
		metrics.RunQueueDepth.Set(float64(len(q.runs)))
		return id, nil
	case <-ctx.Done():
		return uuid.Nil, ctx.Err()
	}
}

// Len returns the number of runs waiting to be claimed.
func (q *Queue) Len() int {
	return len(q.runs)
}
