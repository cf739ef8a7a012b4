package scheduler

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/pyorchestrator/pyorchestrator/internal/models"
	"github.com/pyorchestrator/pyorchestrator/internal/recurrence"
	"github.com/pyorchestrator/pyorchestrator/internal/store"
	"github.com/pyorchestrator/pyorchestrator/internal/testutil"
	"github.com/stretchr/testify/suite"
)

type launch struct {
	projectID  uuid.UUID
	scheduleID uuid.UUID
}

type recordingLauncher struct {
	mu       sync.Mutex
	launches []launch
	hook     func()
	fired    chan launch
}

func (l *recordingLauncher) Launch(_ context.Context, projectID uuid.UUID, scheduleID *uuid.UUID) (*models.Run, error) {
	if l.hook != nil {
		l.hook()
	}

	rec := launch{projectID: projectID, scheduleID: *scheduleID}
	l.mu.Lock()
	l.launches = append(l.launches, rec)
	l.mu.Unlock()

	if l.fired != nil {
		select {
		case l.fired <- rec:
		default:
		}
	}
	return &models.Run{ID: uuid.New(), ProjectID: projectID, ScheduleID: scheduleID}, nil
}

func (l *recordingLauncher) count() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.launches)
}

type clock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *clock) now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *clock) set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = t
}

type SchedulerSuite struct {
	suite.Suite
	launcher *recordingLauncher
	clock    *clock
	sched    *Scheduler
	start    time.Time
}

func TestSchedulerSuite(t *testing.T) {
	suite.Run(t, new(SchedulerSuite))
}

func (s *SchedulerSuite) SetupTest() {
	s.start = time.Date(2026, time.March, 4, 10, 15, 0, 0, time.UTC)
	s.launcher = &recordingLauncher{}
	s.clock = &clock{t: s.start}
	s.sched = New(s.launcher, nil)
	s.sched.now = s.clock.now
}

func (s *SchedulerSuite) TearDownTest() {
	s.sched.Shutdown()
}

func (s *SchedulerSuite) TestScheduleJobComputesNext() {
	id, project := uuid.New(), uuid.New()

	next, err := s.sched.ScheduleJob(id, project, "0 * * * *", "")
	s.Require().NoError(err)
	s.True(next.Equal(time.Date(2026, time.March, 4, 11, 0, 0, 0, time.UTC)))

	job, ok := s.sched.Job(id)
	s.Require().True(ok)
	s.Equal(project, job.ProjectID)
	s.Equal(models.DefaultTimezone, job.Timezone)
	s.True(job.Next.Equal(next))
}

func (s *SchedulerSuite) TestScheduleJobReplaces() {
	id := uuid.New()
	_, err := s.sched.ScheduleJob(id, uuid.New(), "0 * * * *", "UTC")
	s.Require().NoError(err)

	next, err := s.sched.ScheduleJob(id, uuid.New(), "30 9 * * MON,WED,FRI", "America/New_York")
	s.Require().NoError(err)

	s.Len(s.sched.Jobs(), 1)
	job, _ := s.sched.Job(id)
	s.Equal("30 9 * * MON,WED,FRI", job.Expression)
	s.True(job.Next.Equal(next))
}

func (s *SchedulerSuite) TestInvalidInputLeavesRegistryUnchanged() {
	id := uuid.New()
	_, err := s.sched.ScheduleJob(id, uuid.New(), "0 * * * *", "UTC")
	s.Require().NoError(err)
	before, _ := s.sched.Job(id)

	_, err = s.sched.ScheduleJob(id, uuid.New(), "not a cron", "UTC")
	s.ErrorIs(err, recurrence.ErrInvalidRecurrence)

	_, err = s.sched.ScheduleJob(id, uuid.New(), "0 * * * *", "Nowhere/Special")
	s.ErrorIs(err, recurrence.ErrUnknownTimezone)

	_, err = s.sched.ScheduleJob(uuid.New(), uuid.New(), "61 * * * *", "UTC")
	s.ErrorIs(err, recurrence.ErrInvalidRecurrence)

	after, _ := s.sched.Job(id)
	s.Equal(before.Expression, after.Expression)
	s.Equal(before.ProjectID, after.ProjectID)
	s.Len(s.sched.Jobs(), 1)
}

func (s *SchedulerSuite) TestRemoveMissingJob() {
	s.ErrorIs(s.sched.RemoveJob(uuid.New()), ErrJobNotFound)
}

func (s *SchedulerSuite) TestFireDueLaunchesAndAdvances() {
	id, project := uuid.New(), uuid.New()
	next, err := s.sched.ScheduleJob(id, project, "0 * * * *", "UTC")
	s.Require().NoError(err)

	s.Zero(s.sched.fireDue(context.Background(), next.Add(-time.Second)))

	s.Equal(1, s.sched.fireDue(context.Background(), next))
	s.Require().Equal(1, s.launcher.count())
	s.Equal(launch{projectID: project, scheduleID: id}, s.launcher.launches[0])

	job, _ := s.sched.Job(id)
	s.True(job.Next.Equal(next.Add(time.Hour)))
}

func (s *SchedulerSuite) TestFireDueDoesNotBackfill() {
	id := uuid.New()
	next, err := s.sched.ScheduleJob(id, uuid.New(), "0 * * * *", "UTC")
	s.Require().NoError(err)

	late := next.Add(10*time.Hour + 5*time.Minute)
	s.Equal(1, s.sched.fireDue(context.Background(), late))
	s.Equal(1, s.launcher.count())

	job, _ := s.sched.Job(id)
	s.True(job.Next.After(late))
}

func (s *SchedulerSuite) TestScheduleThenRemoveNeverFires() {
	id := uuid.New()
	_, err := s.sched.ScheduleJob(id, uuid.New(), "* * * * *", "UTC")
	s.Require().NoError(err)
	s.Require().NoError(s.sched.RemoveJob(id))

	s.Zero(s.sched.fireDue(context.Background(), s.start.Add(24*time.Hour)))
	s.Zero(s.launcher.count())
	s.Empty(s.sched.Jobs())
}

func (s *SchedulerSuite) TestRemoveWaitsForInFlightFire() {
	id := uuid.New()
	next, err := s.sched.ScheduleJob(id, uuid.New(), "* * * * *", "UTC")
	s.Require().NoError(err)

	entered := make(chan struct{})
	release := make(chan struct{})
	var once sync.Once
	s.launcher.hook = func() {
		once.Do(func() { close(entered) })
		<-release
	}

	go s.sched.fireDue(context.Background(), next)
	<-entered

	removed := make(chan error, 1)
	go func() { removed <- s.sched.RemoveJob(id) }()

	select {
	case <-removed:
		s.FailNow("remove returned while a fire was in progress")
	case <-time.After(50 * time.Millisecond):
	}

	close(release)
	s.NoError(<-removed)

	s.launcher.hook = nil
	s.Zero(s.sched.fireDue(context.Background(), next.Add(time.Hour)))
	s.Equal(1, s.launcher.count())
}

func (s *SchedulerSuite) TestSeedSkipsBadSchedules() {
	ctx := context.Background()
	st := store.New(testutil.OpenTestDB(s.T()))
	p := testutil.LocalProject("reports", s.T().TempDir())
	s.Require().NoError(st.CreateProject(ctx, p))

	good := &models.Schedule{Name: "hourly", ProjectID: p.ID, Kind: models.ScheduleKindCron, CronExpression: "0 * * * *"}
	zoned := &models.Schedule{Name: "morning", ProjectID: p.ID, Kind: models.ScheduleKindCron, CronExpression: "0 9 * * *", Timezone: "Europe/Berlin"}
	bad := &models.Schedule{Name: "broken", ProjectID: p.ID, Kind: models.ScheduleKindCron, CronExpression: "every day"}
	for _, sc := range []*models.Schedule{good, zoned, bad} {
		s.Require().NoError(st.CreateSchedule(ctx, sc))
	}

	n, err := s.sched.Seed(ctx, st)
	s.Require().NoError(err)
	s.Equal(2, n)

	_, ok := s.sched.Job(bad.ID)
	s.False(ok)
	job, ok := s.sched.Job(zoned.ID)
	s.Require().True(ok)
	s.Equal("Europe/Berlin", job.Timezone)
}

type failingLister struct{}

func (failingLister) ListSchedules(context.Context) (models.Schedules, error) {
	return nil, errors.New("database unavailable")
}

func (s *SchedulerSuite) TestSeedListFailure() {
	_, err := s.sched.Seed(context.Background(), failingLister{})
	s.Error(err)
}

func (s *SchedulerSuite) TestStartFiresDueJobsAndShutdownStops() {
	s.launcher.fired = make(chan launch, 4)

	id := uuid.New()
	next, err := s.sched.ScheduleJob(id, uuid.New(), "0 * * * *", "UTC")
	s.Require().NoError(err)
	s.clock.set(next.Add(time.Minute))

	s.Require().NoError(s.sched.Start(context.Background()))
	s.ErrorIs(s.sched.Start(context.Background()), ErrAlreadyStarted)

	select {
	case got := <-s.launcher.fired:
		s.Equal(id, got.scheduleID)
	case <-time.After(2 * time.Second):
		s.FailNow("expected the due job to fire")
	}

	s.sched.Shutdown()
	s.sched.Shutdown()
	s.Equal(1, s.launcher.count())
}

func (s *SchedulerSuite) TestMutationWakesLoop() {
	_, err := s.sched.ScheduleJob(uuid.New(), uuid.New(), "0 * * * *", "UTC")
	s.Require().NoError(err)
	s.Len(s.sched.wake, 1)

	s.Equal(maxSleep, s.sched.sleepDuration(s.start))
	s.Zero(s.sched.sleepDuration(s.start.Add(2 * time.Hour)))
}
