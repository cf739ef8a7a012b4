package manifest

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/pyorchestrator/pyorchestrator/api/rest/service/project"
	"github.com/pyorchestrator/pyorchestrator/api/rest/service/schedule"
	"github.com/pyorchestrator/pyorchestrator/internal/manifest"
	"github.com/pyorchestrator/pyorchestrator/internal/models"
	"github.com/pyorchestrator/pyorchestrator/internal/store"
	"github.com/pyorchestrator/pyorchestrator/pkg/log"
)

type Action string

const (
	ActionCreated   Action = "created"
	ActionUpdated   Action = "updated"
	ActionDeleted   Action = "deleted"
	ActionUnchanged Action = "unchanged"
)

type ProjectService interface {
	GetByName(ctx context.Context, name string) (*models.Project, error)
	Create(ctx context.Context, req *project.Request) (*models.Project, error)
	Update(ctx context.Context, id uuid.UUID, req *project.Request) (*models.Project, error)
}

type ScheduleService interface {
	ListByProject(ctx context.Context, projectID uuid.UUID) ([]*schedule.View, error)
	Create(ctx context.Context, req *schedule.Request) (*schedule.View, error)
	Update(ctx context.Context, id uuid.UUID, req *schedule.Request) (*schedule.View, error)
	Delete(ctx context.Context, id uuid.UUID) error
}

// Service applies manifest documents by upserting projects and their
// schedules by name through the regular services, so every change
// registers or removes live jobs the same way the REST handlers do.
type Service struct {
	projects  ProjectService
	schedules ScheduleService
}

func New(projects ProjectService, schedules ScheduleService) *Service {
	return &Service{projects: projects, schedules: schedules}
}

type ApplyRequest struct {
	Documents []manifest.Document `json:"documents"`
	// Prune deletes schedules of an applied project that the manifest
	// no longer lists.
	Prune bool `json:"prune,omitempty"`
}

type ScheduleResult struct {
	Name         string     `json:"name"`
	ID           uuid.UUID  `json:"id"`
	Action       Action     `json:"action"`
	NextFireTime *time.Time `json:"next_fire_time,omitempty"`
}

type ProjectResult struct {
	Name      string           `json:"name"`
	ID        uuid.UUID        `json:"id"`
	Action    Action           `json:"action"`
	Schedules []ScheduleResult `json:"schedules,omitempty"`
}

type ApplyResponse struct {
	Projects []ProjectResult `json:"projects"`
}

// Apply validates every document up front and then applies them in
// order. It stops at the first failing document; documents applied
// before it stay applied.
func (s *Service) Apply(ctx context.Context, req *ApplyRequest) (*ApplyResponse, error) {
	if req == nil || len(req.Documents) == 0 {
		return nil, fmt.Errorf("%w: no documents", manifest.ErrInvalidManifest)
	}

	for i := range req.Documents {
		if err := req.Documents[i].Validate(); err != nil {
			return nil, fmt.Errorf("document %d: %w", i, err)
		}
	}

	resp := &ApplyResponse{Projects: make([]ProjectResult, 0, len(req.Documents))}
	for i := range req.Documents {
		doc := &req.Documents[i]
		res, err := s.applyDocument(ctx, doc, req.Prune)
		if err != nil {
			return resp, fmt.Errorf("project %q: %w", doc.Project.Name, err)
		}
		resp.Projects = append(resp.Projects, *res)
	}

	return resp, nil
}

func (s *Service) applyDocument(ctx context.Context, doc *manifest.Document, prune bool) (*ProjectResult, error) {
	preq := &project.Request{
		Name:            doc.Project.Name,
		SourceType:      doc.Project.SourceType,
		SourcePath:      doc.Project.SourcePath,
		SourceURL:       doc.Project.SourceURL,
		MainScript:      doc.Project.MainScript,
		Arguments:       doc.Project.Arguments,
		EnvironmentType: doc.Project.EnvironmentType,
		Env:             doc.Project.EnvMap(),
	}

	var (
		p      *models.Project
		action = ActionUpdated
	)
	existing, err := s.projects.GetByName(ctx, doc.Project.Name)
	switch {
	case errors.Is(err, store.ErrNotFound):
		action = ActionCreated
		p, err = s.projects.Create(ctx, preq)
	case err != nil:
		return nil, err
	default:
		p, err = s.projects.Update(ctx, existing.ID, preq)
	}
	if err != nil {
		return nil, err
	}

	res := &ProjectResult{Name: p.Name, ID: p.ID, Action: action}

	current, err := s.schedules.ListByProject(ctx, p.ID)
	if err != nil {
		return res, err
	}
	byName := make(map[string]*schedule.View, len(current))
	for _, v := range current {
		byName[v.Name] = v
	}

	listed := make(map[string]struct{}, len(doc.Schedules))
	for _, sd := range doc.Schedules {
		listed[sd.Name] = struct{}{}
		sreq := &schedule.Request{
			Name:           sd.Name,
			ProjectID:      p.ID,
			Kind:           sd.ScheduleKind(),
			CronExpression: sd.Cron,
			TimeOfDay:      sd.TimeOfDay,
			Weekdays:       sd.Weekdays,
			Timezone:       sd.Timezone,
		}

		var (
			view    *schedule.View
			sAction = ActionUpdated
		)
		if prev, ok := byName[sd.Name]; ok {
			view, err = s.schedules.Update(ctx, prev.ID, sreq)
		} else {
			sAction = ActionCreated
			view, err = s.schedules.Create(ctx, sreq)
		}
		if err != nil {
			return res, fmt.Errorf("schedule %q: %w", sd.Name, err)
		}

		res.Schedules = append(res.Schedules, ScheduleResult{
			Name:         view.Name,
			ID:           view.ID,
			Action:       sAction,
			NextFireTime: view.NextFireTime,
		})
	}

	for _, v := range current {
		if _, ok := listed[v.Name]; ok {
			continue
		}
		if !prune {
			res.Schedules = append(res.Schedules, ScheduleResult{Name: v.Name, ID: v.ID, Action: ActionUnchanged, NextFireTime: v.NextFireTime})
			continue
		}
		if err := s.schedules.Delete(ctx, v.ID); err != nil {
			return res, fmt.Errorf("schedule %q: %w", v.Name, err)
		}
		res.Schedules = append(res.Schedules, ScheduleResult{Name: v.Name, ID: v.ID, Action: ActionDeleted})
	}

	log.Info("manifest applied", "project", p.Name, "action", action, "schedules", len(res.Schedules))
	return res, nil
}
