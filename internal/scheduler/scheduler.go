// Package scheduler keeps the live registry of cron-triggered jobs and
// launches a run for each job when its next fire instant arrives.
package scheduler

import (
	"context"
	"errors"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/pyorchestrator/pyorchestrator/internal/event"
	"github.com/pyorchestrator/pyorchestrator/internal/metrics"
	"github.com/pyorchestrator/pyorchestrator/internal/models"
	"github.com/pyorchestrator/pyorchestrator/internal/recurrence"
	"github.com/pyorchestrator/pyorchestrator/pkg/log"
)

var (
	ErrJobNotFound    = errors.New("scheduled job not found")
	ErrAlreadyStarted = errors.New("scheduler already started")
)

// maxSleep bounds how long the loop sleeps so wall-clock changes are
// observed.
const maxSleep = time.Minute

type Launcher interface {
	Launch(ctx context.Context, projectID uuid.UUID, scheduleID *uuid.UUID) (*models.Run, error)
}

type ScheduleLister interface {
	ListSchedules(ctx context.Context) (models.Schedules, error)
}

// Job is a snapshot of a registered schedule.
type Job struct {
	ScheduleID uuid.UUID `json:"schedule_id"`
	ProjectID  uuid.UUID `json:"project_id"`
	Expression string    `json:"expression"`
	Timezone   string    `json:"timezone"`
	Next       time.Time `json:"next_fire_time"`

	schedule *recurrence.Schedule
}

type Scheduler struct {
	launcher Launcher
	bus      event.Bus
	now      func() time.Time

	mu   sync.Mutex
	jobs map[uuid.UUID]*Job
	wake chan struct{}

	runMu  sync.Mutex
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func New(launcher Launcher, bus event.Bus) *Scheduler {
	if launcher == nil {
		panic("scheduler requires a launcher")
	}
	if bus == nil {
		bus = event.Nop{}
	}
	return &Scheduler{
		launcher: launcher,
		bus:      bus,
		now:      time.Now,
		jobs:     make(map[uuid.UUID]*Job),
		wake:     make(chan struct{}, 1),
	}
}

// ScheduleJob registers the schedule, replacing any existing job with
// the same id, and returns its next fire instant. An invalid
// expression or timezone leaves the registry untouched.
func (s *Scheduler) ScheduleJob(scheduleID, projectID uuid.UUID, expr, timezone string) (time.Time, error) {
	if strings.TrimSpace(timezone) == "" {
		timezone = models.DefaultTimezone
	}

	sched, err := recurrence.Parse(expr, timezone)
	if err != nil {
		return time.Time{}, err
	}

	next, err := sched.Next(s.now())
	if err != nil {
		return time.Time{}, err
	}

	s.mu.Lock()
	_, replaced := s.jobs[scheduleID]
	s.jobs[scheduleID] = &Job{
		ScheduleID: scheduleID,
		ProjectID:  projectID,
		Expression: strings.TrimSpace(expr),
		Timezone:   timezone,
		Next:       next,
		schedule:   sched,
	}
	metrics.ScheduledJobs.Set(float64(len(s.jobs)))
	s.mu.Unlock()

	s.notify()

	log.Info(
		"job scheduled",
		"schedule_id", scheduleID,
		"expression", expr,
		"timezone", timezone,
		"next", next,
		"replaced", replaced,
	)

	return next, nil
}

// RemoveJob deregisters a schedule. Once it returns, the job can no
// longer fire. A missing job is reported as ErrJobNotFound.
func (s *Scheduler) RemoveJob(scheduleID uuid.UUID) error {
	s.mu.Lock()
	_, ok := s.jobs[scheduleID]
	delete(s.jobs, scheduleID)
	metrics.ScheduledJobs.Set(float64(len(s.jobs)))
	s.mu.Unlock()

	if !ok {
		log.Warn("job not found for removal", "schedule_id", scheduleID)
		return ErrJobNotFound
	}

	s.notify()
	log.Info("job removed", "schedule_id", scheduleID)
	return nil
}

// Job returns a snapshot of a registered job.
func (s *Scheduler) Job(scheduleID uuid.UUID) (Job, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	j, ok := s.jobs[scheduleID]
	if !ok {
		return Job{}, false
	}
	return *j, true
}

// Jobs returns snapshots of every registered job ordered by next fire.
func (s *Scheduler) Jobs() []Job {
	s.mu.Lock()
	jobs := make([]Job, 0, len(s.jobs))
	for _, j := range s.jobs {
		jobs = append(jobs, *j)
	}
	s.mu.Unlock()

	sort.Slice(jobs, func(i, k int) bool {
		if jobs[i].Next.Equal(jobs[k].Next) {
			return jobs[i].ScheduleID.String() < jobs[k].ScheduleID.String()
		}
		return jobs[i].Next.Before(jobs[k].Next)
	})
	return jobs
}

// Seed registers every persisted schedule. Schedules that fail to
// parse are logged and skipped.
func (s *Scheduler) Seed(ctx context.Context, lister ScheduleLister) (int, error) {
	schedules, err := lister.ListSchedules(ctx)
	if err != nil {
		return 0, err
	}

	registered := 0
	for _, sched := range schedules {
		if _, err := s.ScheduleJob(sched.ID, sched.ProjectID, sched.CronExpression, sched.Timezone); err != nil {
			log.Error(
				"skipping unschedulable schedule",
				"schedule_id", sched.ID,
				"name", sched.Name,
				"expression", sched.CronExpression,
				"error", err,
			)
			continue
		}
		registered++
	}

	log.Info("scheduler seeded", "registered", registered, "total", len(schedules))
	return registered, nil
}

// Start launches the firing loop.
func (s *Scheduler) Start(ctx context.Context) error {
	s.runMu.Lock()
	defer s.runMu.Unlock()

	if s.cancel != nil {
		return ErrAlreadyStarted
	}

	loopCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel

	s.wg.Add(1)
	go s.run(loopCtx)

	log.Info("scheduler started")
	return nil
}

// Shutdown stops the firing loop and waits for an in-progress fire
// to finish. Runs already dispatched keep going.
func (s *Scheduler) Shutdown() {
	s.runMu.Lock()
	cancel := s.cancel
	s.cancel = nil
	s.runMu.Unlock()

	if cancel == nil {
		return
	}

	cancel()
	s.wg.Wait()
	log.Info("scheduler stopped")
}

func (s *Scheduler) run(ctx context.Context) {
	defer s.wg.Done()

	for {
		timer := time.NewTimer(s.sleepDuration(s.now()))

		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-s.wake:
			timer.Stop()
		case <-timer.C:
		}

		if ctx.Err() != nil {
			return
		}

		s.fireDue(ctx, s.now())
	}
}

func (s *Scheduler) sleepDuration(now time.Time) time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()

	d := maxSleep
	for _, j := range s.jobs {
		if until := j.Next.Sub(now); until < d {
			d = until
		}
	}
	if d < 0 {
		d = 0
	}
	return d
}

// fireDue launches every job whose next instant is not after now and
// advances it past now. Missed instants are not backfilled: a job
// fires at most once per call. The registry lock is held throughout,
// so removals and replacements never interleave with a fire.
func (s *Scheduler) fireDue(ctx context.Context, now time.Time) int {
	// an in-progress fire completes even if shutdown begins
	ctx = context.WithoutCancel(ctx)

	s.mu.Lock()
	defer s.mu.Unlock()

	fired := 0
	for id, j := range s.jobs {
		if j.Next.After(now) {
			continue
		}

		scheduleID := j.ScheduleID
		if run, err := s.launcher.Launch(ctx, j.ProjectID, &scheduleID); err != nil {
			log.Error("scheduled launch failed", "schedule_id", scheduleID, "error", err)
		} else {
			log.Info("schedule fired", "schedule_id", scheduleID, "run_id", run.ID, "due", j.Next)
		}

		fired++
		metrics.ScheduleFiresTotal.WithLabelValues(scheduleID.String()).Inc()
		s.bus.Publish(event.Event{Type: event.TypeScheduleFired, ProjectID: j.ProjectID, ScheduleID: scheduleID})

		next, err := j.schedule.Next(now)
		if err != nil {
			log.Error("schedule will not fire again, removing", "schedule_id", scheduleID, "error", err)
			delete(s.jobs, id)
			continue
		}
		j.Next = next
	}

	metrics.ScheduledJobs.Set(float64(len(s.jobs)))
	return fired
}

func (s *Scheduler) notify() {
	select {
	case s.wake <- struct{}{}:
	default:
	}
}
