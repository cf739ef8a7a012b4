package trigger

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/pyorchestrator/pyorchestrator/internal/models"
	"github.com/pyorchestrator/pyorchestrator/internal/store"
	"github.com/pyorchestrator/pyorchestrator/internal/testutil"
	"github.com/pyorchestrator/pyorchestrator/internal/worker"
	"github.com/stretchr/testify/require"
)

type failingDispatcher struct{ err error }

func (f failingDispatcher) Dispatch(uuid.UUID) error { return f.err }

func setup(t *testing.T) (*store.Store, *models.Project) {
	t.Helper()
	s := store.New(testutil.OpenTestDB(t))
	p := testutil.LocalProject("nightly", t.TempDir())
	require.NoError(t, s.CreateProject(context.Background(), p))
	return s, p
}

func TestProjectCreatesManualRun(t *testing.T) {
	ctx := context.Background()
	s, p := setup(t)
	queue := worker.NewQueue(4)

	run, err := New(s, queue, nil).Project(ctx, p.ID)
	require.NoError(t, err)
	require.Equal(t, models.RunStatusPending, run.Status)
	require.Nil(t, run.ScheduleID)

	claimed, err := queue.ClaimNext(ctx)
	require.NoError(t, err)
	require.Equal(t, run.ID, claimed)
}

func TestProjectUnknown(t *testing.T) {
	s, _ := setup(t)

	_, err := New(s, worker.NewQueue(1), nil).Project(context.Background(), uuid.New())
	require.ErrorIs(t, err, store.ErrNotFound)
}

func TestScheduleAttributesRun(t *testing.T) {
	ctx := context.Background()
	s, p := setup(t)
	sched := &models.Schedule{Name: "hourly", ProjectID: p.ID, Kind: models.ScheduleKindCron, CronExpression: "0 * * * *"}
	require.NoError(t, s.CreateSchedule(ctx, sched))

	run, err := New(s, worker.NewQueue(1), nil).Schedule(ctx, sched.ID)
	require.NoError(t, err)
	require.NotNil(t, run.ScheduleID)
	require.Equal(t, sched.ID, *run.ScheduleID)
	require.Equal(t, p.ID, run.ProjectID)
}

func TestLaunchFailsRunWhenDispatchFails(t *testing.T) {
	ctx := context.Background()
	s, p := setup(t)

	run, err := New(s, failingDispatcher{err: worker.ErrQueueFull}, nil).Launch(ctx, p.ID, nil)
	require.ErrorIs(t, err, worker.ErrQueueFull)
	require.NotNil(t, run)

	got, err := s.GetRun(ctx, run.ID)
	require.NoError(t, err)
	require.Equal(t, models.RunStatusFailed, got.Status)
	require.NotNil(t, got.EndTime)
	require.Contains(t, got.LogOutput, "dispatch failed")
}

func TestLaunchWithFullQueue(t *testing.T) {
	ctx := context.Background()
	s, p := setup(t)
	trig := New(s, worker.NewQueue(1), nil)

	_, err := trig.Launch(ctx, p.ID, nil)
	require.NoError(t, err)

	_, err = trig.Launch(ctx, p.ID, nil)
	require.True(t, errors.Is(err, worker.ErrQueueFull))

	runs, err := s.ListRuns(ctx, &store.ListRunsRequest{ProjectID: p.ID, Status: models.RunStatusPending})
	require.NoError(t, err)
	require.Len(t, runs, 1)
}
