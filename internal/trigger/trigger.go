// Package trigger creates pending runs and hands them to the worker
// queue. It backs "run now" requests and scheduled fires alike.
package trigger

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/pyorchestrator/pyorchestrator/internal/event"
	"github.com/pyorchestrator/pyorchestrator/internal/models"
	"github.com/pyorchestrator/pyorchestrator/pkg/log"
)

type Store interface {
	GetProject(ctx context.Context, id uuid.UUID) (*models.Project, error)
	GetSchedule(ctx context.Context, id uuid.UUID) (*models.Schedule, error)
	CreateRun(ctx context.Context, projectID uuid.UUID, scheduleID *uuid.UUID) (*models.Run, error)
	UpdateRunStatus(ctx context.Context, id uuid.UUID, status models.RunStatus, logOutput string) (*models.Run, error)
}

type Dispatcher interface {
	Dispatch(runID uuid.UUID) error
}

type Trigger struct {
	store      Store
	dispatcher Dispatcher
	bus        event.Bus
}

func New(store Store, dispatcher Dispatcher, bus event.Bus) *Trigger {
	if store == nil || dispatcher == nil {
		panic("trigger requires store and dispatcher")
	}
	if bus == nil {
		bus = event.Nop{}
	}
	return &Trigger{store: store, dispatcher: dispatcher, bus: bus}
}

// Project runs a project now, outside of any schedule.
func (t *Trigger) Project(ctx context.Context, projectID uuid.UUID) (*models.Run, error) {
	if _, err := t.store.GetProject(ctx, projectID); err != nil {
		return nil, err
	}
	return t.Launch(ctx, projectID, nil)
}

// Schedule runs a schedule now, attributing the run to it.
func (t *Trigger) Schedule(ctx context.Context, scheduleID uuid.UUID) (*models.Run, error) {
	sched, err := t.store.GetSchedule(ctx, scheduleID)
	if err != nil {
		return nil, err
	}
	return t.Launch(ctx, sched.ProjectID, &sched.ID)
}

// Launch records a pending run and dispatches it. When dispatch
// fails the run is failed immediately rather than left pending.
func (t *Trigger) Launch(ctx context.Context, projectID uuid.UUID, scheduleID *uuid.UUID) (*models.Run, error) {
	run, err := t.store.CreateRun(ctx, projectID, scheduleID)
	if err != nil {
		return nil, fmt.Errorf("create run: %w", err)
	}

	if err := t.dispatcher.Dispatch(run.ID); err != nil {
		log.Error("failed to dispatch run", "run_id", run.ID, "project_id", projectID, "error", err)

		msg := fmt.Sprintf("dispatch failed: %v", err)
		if failed, updateErr := t.store.UpdateRunStatus(ctx, run.ID, models.RunStatusFailed, msg); updateErr == nil {
			run = failed
		} else {
			log.Error("failed to fail undispatched run", "run_id", run.ID, "error", updateErr)
		}
		return run, fmt.Errorf("dispatch run %s: %w", run.ID, err)
	}

	ev := event.Event{Type: event.TypeRunQueued, ProjectID: projectID, RunID: run.ID}
	if scheduleID != nil {
		ev.ScheduleID = *scheduleID
	}
	t.bus.Publish(ev)

	log.Info("run queued", "run_id", run.ID, "project_id", projectID, "schedule_id", scheduleID)
	return run, nil
}
