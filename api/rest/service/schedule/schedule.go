package schedule

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/pyorchestrator/pyorchestrator/internal/event"
	"github.com/pyorchestrator/pyorchestrator/internal/models"
	"github.com/pyorchestrator/pyorchestrator/internal/recurrence"
	"github.com/pyorchestrator/pyorchestrator/internal/scheduler"
	"github.com/pyorchestrator/pyorchestrator/internal/store"
	"github.com/pyorchestrator/pyorchestrator/pkg/log"
)

var ErrInvalidSchedule = errors.New("invalid schedule")

type JobRegistry interface {
	ScheduleJob(scheduleID, projectID uuid.UUID, expr, timezone string) (time.Time, error)
	RemoveJob(scheduleID uuid.UUID) error
	Job(scheduleID uuid.UUID) (scheduler.Job, bool)
}

type Runner interface {
	Schedule(ctx context.Context, scheduleID uuid.UUID) (*models.Run, error)
}

type Service struct {
	store  *store.Store
	jobs   JobRegistry
	runner Runner
	bus    event.Bus
}

func New(s *store.Store, jobs JobRegistry, runner Runner, bus event.Bus) *Service {
	if bus == nil {
		bus = event.Nop{}
	}
	return &Service{store: s, jobs: jobs, runner: runner, bus: bus}
}

// Request describes a schedule either as a raw cron expression or,
// for the weekly kind, as a time of day and a weekday set.
type Request struct {
	Name           string              `json:"name" yaml:"name"`
	ProjectID      uuid.UUID           `json:"project_id" yaml:"-"`
	Kind           models.ScheduleKind `json:"kind,omitempty" yaml:"kind,omitempty"`
	CronExpression string              `json:"cron_expression,omitempty" yaml:"cron,omitempty"`
	TimeOfDay      string              `json:"time_of_day,omitempty" yaml:"time_of_day,omitempty"`
	Weekdays       []string            `json:"weekdays,omitempty" yaml:"weekdays,omitempty"`
	Timezone       string              `json:"timezone,omitempty" yaml:"timezone,omitempty"`
}

// View is a persisted schedule together with its live next fire time.
type View struct {
	*models.Schedule
	NextFireTime *time.Time `json:"next_fire_time,omitempty"`
}

// Build validates the request and produces the schedule it describes.
// The weekly form is compiled into CronExpression.
func (r *Request) Build() (*models.Schedule, error) {
	name := strings.TrimSpace(r.Name)
	if name == "" {
		return nil, fmt.Errorf("%w: name is required", ErrInvalidSchedule)
	}
	if r.ProjectID == uuid.Nil {
		return nil, fmt.Errorf("%w: project_id is required", ErrInvalidSchedule)
	}

	tz := strings.TrimSpace(r.Timezone)
	if tz == "" {
		tz = models.DefaultTimezone
	}

	kind := r.Kind
	if kind == "" {
		kind = models.ScheduleKindCron
		if strings.TrimSpace(r.CronExpression) == "" && (r.TimeOfDay != "" || len(r.Weekdays) > 0) {
			kind = models.ScheduleKindWeekly
		}
	}

	sched := &models.Schedule{
		Name:      name,
		ProjectID: r.ProjectID,
		Kind:      kind,
		Timezone:  tz,
	}

	switch kind {
	case models.ScheduleKindCron:
		sched.CronExpression = strings.Join(strings.Fields(r.CronExpression), " ")
		if sched.CronExpression == "" {
			return nil, fmt.Errorf("%w: cron_expression is required", ErrInvalidSchedule)
		}
	case models.ScheduleKindWeekly:
		expr, err := recurrence.Compile(r.TimeOfDay, r.Weekdays)
		if err != nil {
			return nil, err
		}
		sched.CronExpression = expr
		sched.TimeOfDay = strings.TrimSpace(r.TimeOfDay)
		sched.Weekdays = weekdaysField(expr)
	default:
		return nil, fmt.Errorf("%w: unknown kind %q", ErrInvalidSchedule, kind)
	}

	if err := recurrence.Validate(sched.CronExpression, sched.Timezone); err != nil {
		return nil, err
	}

	return sched, nil
}

// weekdaysField keeps the normalized weekday set of a compiled
// expression, e.g. "MON,WED,FRI".
func weekdaysField(expr string) string {
	fields := strings.Fields(expr)
	return fields[len(fields)-1]
}

func (s *Service) List(ctx context.Context) ([]*View, error) {
	schedules, err := s.store.ListSchedules(ctx)
	if err != nil {
		return nil, err
	}
	return s.views(schedules), nil
}

func (s *Service) ListByProject(ctx context.Context, projectID uuid.UUID) ([]*View, error) {
	schedules, err := s.store.GetSchedulesByProject(ctx, projectID)
	if err != nil {
		return nil, err
	}
	return s.views(schedules), nil
}

func (s *Service) Get(ctx context.Context, id uuid.UUID) (*View, error) {
	sched, err := s.store.GetSchedule(ctx, id)
	if err != nil {
		return nil, err
	}
	return s.view(sched), nil
}

// Create persists the schedule and registers its live job.
func (s *Service) Create(ctx context.Context, req *Request) (*View, error) {
	sched, err := req.Build()
	if err != nil {
		return nil, err
	}

	if err := s.ensureProject(ctx, sched.ProjectID); err != nil {
		return nil, err
	}

	if err := s.store.CreateSchedule(ctx, sched); err != nil {
		return nil, err
	}

	if _, err := s.jobs.ScheduleJob(sched.ID, sched.ProjectID, sched.CronExpression, sched.Timezone); err != nil {
		if delErr := s.store.DeleteSchedule(ctx, sched.ID); delErr != nil {
			log.Error("failed to roll back unschedulable schedule", "schedule_id", sched.ID, "error", delErr)
		}
		return nil, err
	}

	if err := s.ensureStillOwned(ctx, sched); err != nil {
		return nil, err
	}

	log.Info("schedule created", "id", sched.ID, "project_id", sched.ProjectID, "expression", sched.CronExpression)
	s.bus.Publish(event.Event{Type: event.TypeScheduleCreated, ProjectID: sched.ProjectID, ScheduleID: sched.ID})
	return s.view(sched), nil
}

// Update replaces the schedule and its live job.
func (s *Service) Update(ctx context.Context, id uuid.UUID, req *Request) (*View, error) {
	existing, err := s.store.GetSchedule(ctx, id)
	if err != nil {
		return nil, err
	}

	if req.ProjectID == uuid.Nil {
		req.ProjectID = existing.ProjectID
	}

	sched, err := req.Build()
	if err != nil {
		return nil, err
	}

	if err := s.ensureProject(ctx, sched.ProjectID); err != nil {
		return nil, err
	}

	sched.ID = existing.ID
	sched.CreatedAt = existing.CreatedAt
	if err := s.store.UpdateSchedule(ctx, sched); err != nil {
		return nil, err
	}

	if _, err := s.jobs.ScheduleJob(sched.ID, sched.ProjectID, sched.CronExpression, sched.Timezone); err != nil {
		return nil, err
	}

	if err := s.ensureStillOwned(ctx, sched); err != nil {
		return nil, err
	}

	log.Info("schedule updated", "id", sched.ID, "expression", sched.CronExpression, "timezone", sched.Timezone)
	s.bus.Publish(event.Event{Type: event.TypeScheduleUpdated, ProjectID: sched.ProjectID, ScheduleID: sched.ID})
	return s.Get(ctx, id)
}

// Delete removes the live job before deleting the schedule and its runs.
func (s *Service) Delete(ctx context.Context, id uuid.UUID) error {
	sched, err := s.store.GetSchedule(ctx, id)
	if err != nil {
		return err
	}

	if err := s.jobs.RemoveJob(id); err != nil {
		if !errors.Is(err, scheduler.ErrJobNotFound) {
			return err
		}
		log.Warn("schedule had no live job during delete", "schedule_id", id)
	}

	if err := s.store.DeleteSchedule(ctx, id); err != nil {
		return err
	}

	log.Info("schedule deleted", "id", id)
	s.bus.Publish(event.Event{Type: event.TypeScheduleDeleted, ProjectID: sched.ProjectID, ScheduleID: id})
	return nil
}

// Run triggers the schedule immediately.
func (s *Service) Run(ctx context.Context, id uuid.UUID) (*models.Run, error) {
	return s.runner.Schedule(ctx, id)
}

func (s *Service) ensureProject(ctx context.Context, id uuid.UUID) error {
	if _, err := s.store.GetProject(ctx, id); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return fmt.Errorf("%w: project %s does not exist", ErrInvalidSchedule, id)
		}
		return err
	}
	return nil
}

// ensureStillOwned runs after a job is registered. If the project was
// deleted in the meantime its cascade may have missed the job, so the
// job and any surviving row are dropped here.
func (s *Service) ensureStillOwned(ctx context.Context, sched *models.Schedule) error {
	err := s.ensureProject(ctx, sched.ProjectID)
	if err == nil || !errors.Is(err, ErrInvalidSchedule) {
		return err
	}

	if rmErr := s.jobs.RemoveJob(sched.ID); rmErr != nil && !errors.Is(rmErr, scheduler.ErrJobNotFound) {
		log.Error("failed to remove job of deleted project", "schedule_id", sched.ID, "error", rmErr)
	}
	if delErr := s.store.DeleteSchedule(ctx, sched.ID); delErr != nil && !errors.Is(delErr, store.ErrNotFound) {
		log.Error("failed to remove schedule of deleted project", "schedule_id", sched.ID, "error", delErr)
	}

	log.Warn("project deleted while its schedule was saved", "schedule_id", sched.ID, "project_id", sched.ProjectID)
	return err
}

func (s *Service) views(schedules models.Schedules) []*View {
	views := make([]*View, len(schedules))
	for i, sched := range schedules {
		views[i] = s.view(sched)
	}
	return views
}

func (s *Service) view(sched *models.Schedule) *View {
	v := &View{Schedule: sched}
	if job, ok := s.jobs.Job(sched.ID); ok {
		next := job.Next
		v.NextFireTime = &next
	}
	return v
}
