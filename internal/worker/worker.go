package worker

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/pyorchestrator/pyorchestrator/pkg/log"
)

type RunClaimer interface {
	ClaimNext(ctx context.Context) (uuid.UUID, error)
}

type RunExecutor func(ctx context.Context, runID uuid.UUID)

type Worker struct {
	claimer      RunClaimer
	pool         *Pool
	retryBackoff time.Duration
	executor     RunExecutor
}

func NewWorker(claimer RunClaimer, pool *Pool, retryBackoff time.Duration, executor RunExecutor) *Worker {
	if claimer == nil {
		panic("worker requires run claimer")
	}
	if pool == nil {
		pool = NewPool(1)
	}
	if retryBackoff <= 0 {
		retryBackoff = time.Second
	}
	if executor == nil {
		executor = func(context.Context, uuid.UUID) {}
	}

	return &Worker{
		claimer:      claimer,
		pool:         pool,
		retryBackoff: retryBackoff,
		executor:     executor,
	}
}

// Run claims runs and executes them on the pool until ctx is done,
// then waits for in-flight runs to return.
func (w *Worker) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			w.pool.Wait()
			return nil
		default:
		}

		runID, err := w.claimer.ClaimNext(ctx)
		if err != nil {
			if ctx.Err() != nil {
				w.pool.Wait()
				return nil
			}
			log.Error("failed to claim next run", "error", err)
		}

		if err != nil || runID == uuid.Nil {
			if sleepErr := sleepWithContext(ctx, w.retryBackoff); sleepErr != nil {
				w.pool.Wait()
				return nil
			}
			continue
		}

		if err := w.pool.Submit(ctx, func() {
			w.executor(ctx, runID)
		}); err != nil {
			if ctx.Err() != nil {
				log.Warn("run claimed during shutdown left pending", "run_id", runID)
				w.pool.Wait()
				return nil
			}
			return err
		}
	}
}

func sleepWithContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
