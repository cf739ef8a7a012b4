package project

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/pyorchestrator/pyorchestrator/internal/event"
	"github.com/pyorchestrator/pyorchestrator/internal/models"
	"github.com/pyorchestrator/pyorchestrator/internal/scheduler"
	"github.com/pyorchestrator/pyorchestrator/internal/source"
	"github.com/pyorchestrator/pyorchestrator/internal/store"
	"github.com/pyorchestrator/pyorchestrator/pkg/log"
)

var (
	ErrInvalidProject = errors.New("invalid project")
	ErrNameTaken      = errors.New("project name already in use")
)

type JobRemover interface {
	RemoveJob(scheduleID uuid.UUID) error
}

type Runner interface {
	Project(ctx context.Context, projectID uuid.UUID) (*models.Run, error)
}

type SourceResolver interface {
	Resolve(ctx context.Context, p *models.Project) (*source.Result, error)
}

type EnvironmentPreparer interface {
	Prepare(ctx context.Context, path string, kind models.EnvironmentType) error
}

type Service struct {
	store   *store.Store
	jobs    JobRemover
	runner  Runner
	sources SourceResolver
	envs    EnvironmentPreparer
	bus     event.Bus
}

func New(s *store.Store, jobs JobRemover, runner Runner, sources SourceResolver, envs EnvironmentPreparer, bus event.Bus) *Service {
	if bus == nil {
		bus = event.Nop{}
	}
	return &Service{store: s, jobs: jobs, runner: runner, sources: sources, envs: envs, bus: bus}
}

type Request struct {
	Name            string                 `json:"name" yaml:"name"`
	SourceType      models.SourceType      `json:"source_type" yaml:"source_type"`
	SourcePath      string                 `json:"source_path,omitempty" yaml:"source_path,omitempty"`
	SourceURL       string                 `json:"source_url,omitempty" yaml:"source_url,omitempty"`
	MainScript      string                 `json:"main_script" yaml:"main_script"`
	Arguments       string                 `json:"arguments,omitempty" yaml:"arguments,omitempty"`
	EnvironmentType models.EnvironmentType `json:"environment_type" yaml:"environment_type"`
	Env             map[string]any         `json:"env,omitempty" yaml:"env,omitempty"`
}

func (r *Request) normalize() {
	r.Name = strings.TrimSpace(r.Name)
	r.SourcePath = strings.TrimSpace(r.SourcePath)
	r.SourceURL = strings.TrimSpace(r.SourceURL)
	r.MainScript = strings.TrimSpace(r.MainScript)
	r.Arguments = strings.TrimSpace(r.Arguments)
	if r.SourceType == "" {
		r.SourceType = models.SourceTypeLocal
	}
	if r.EnvironmentType == "" {
		r.EnvironmentType = models.EnvironmentTypeUV
	}
}

// Validate checks the request in isolation; it does not consult the store.
func (r *Request) Validate() error {
	r.normalize()

	switch {
	case r.Name == "":
		return fmt.Errorf("%w: name is required", ErrInvalidProject)
	case r.MainScript == "":
		return fmt.Errorf("%w: main_script is required", ErrInvalidProject)
	}

	switch r.SourceType {
	case models.SourceTypeLocal:
		if r.SourcePath == "" {
			return fmt.Errorf("%w: source_path is required for %s projects", ErrInvalidProject, r.SourceType)
		}
	case models.SourceTypeRemoteGit:
		if r.SourceURL == "" {
			return fmt.Errorf("%w: source_url is required for %s projects", ErrInvalidProject, r.SourceType)
		}
		if source.RepoName(r.SourceURL) == "" {
			return fmt.Errorf("%w: cannot derive a repository name from %q", ErrInvalidProject, r.SourceURL)
		}
	default:
		return fmt.Errorf("%w: unknown source_type %q", ErrInvalidProject, r.SourceType)
	}

	switch r.EnvironmentType {
	case models.EnvironmentTypeUV, models.EnvironmentTypeVenvPip:
	default:
		return fmt.Errorf("%w: unknown environment_type %q", ErrInvalidProject, r.EnvironmentType)
	}

	return nil
}

func (r *Request) apply(p *models.Project) {
	p.Name = r.Name
	p.SourceType = r.SourceType
	p.SourcePath = r.SourcePath
	p.SourceURL = r.SourceURL
	p.MainScript = r.MainScript
	p.Arguments = r.Arguments
	p.EnvironmentType = r.EnvironmentType
	p.Env = r.Env
}

func (s *Service) List(ctx context.Context) (models.Projects, error) {
	return s.store.ListProjects(ctx)
}

func (s *Service) Get(ctx context.Context, id uuid.UUID) (*models.Project, error) {
	return s.store.GetProject(ctx, id)
}

func (s *Service) GetByName(ctx context.Context, name string) (*models.Project, error) {
	return s.store.GetProjectByName(ctx, strings.TrimSpace(name))
}

func (s *Service) Create(ctx context.Context, req *Request) (*models.Project, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	if err := s.ensureNameFree(ctx, req.Name, uuid.Nil); err != nil {
		return nil, err
	}

	p := &models.Project{}
	req.apply(p)

	if err := s.store.CreateProject(ctx, p); err != nil {
		return nil, err
	}

	log.Info("project created", "id", p.ID, "name", p.Name, "source_type", p.SourceType)
	s.bus.Publish(event.Event{Type: event.TypeProjectCreated, ProjectID: p.ID})
	return p, nil
}

func (s *Service) Update(ctx context.Context, id uuid.UUID, req *Request) (*models.Project, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	p, err := s.store.GetProject(ctx, id)
	if err != nil {
		return nil, err
	}

	if err := s.ensureNameFree(ctx, req.Name, id); err != nil {
		return nil, err
	}

	req.apply(p)
	if err := s.store.UpdateProject(ctx, p); err != nil {
		return nil, err
	}

	log.Info("project updated", "id", p.ID, "name", p.Name)
	return s.store.GetProject(ctx, id)
}

// Delete removes the project with its schedules and runs, then the live
// job of every schedule the deletion removed. A schedule created while
// the project is being deleted drops its own job; see schedule.Service.
// A job missing from the scheduler is logged and the cascade continues.
func (s *Service) Delete(ctx context.Context, id uuid.UUID) error {
	scheduleIDs, err := s.store.DeleteProject(ctx, id)
	if err != nil {
		return err
	}

	for _, scheduleID := range scheduleIDs {
		if err := s.jobs.RemoveJob(scheduleID); err != nil {
			if !errors.Is(err, scheduler.ErrJobNotFound) {
				return err
			}
			log.Warn("schedule had no live job during project delete", "project_id", id, "schedule_id", scheduleID)
		}
	}

	log.Info("project deleted", "id", id, "schedules", len(scheduleIDs))
	s.bus.Publish(event.Event{Type: event.TypeProjectDeleted, ProjectID: id})
	return nil
}

// Run triggers the project immediately.
func (s *Service) Run(ctx context.Context, id uuid.UUID) (*models.Run, error) {
	return s.runner.Project(ctx, id)
}

type PrepareResult struct {
	ProjectID   uuid.UUID              `json:"project_id"`
	Path        string                 `json:"path"`
	Environment models.EnvironmentType `json:"environment_type"`
	Narrative   []string               `json:"narrative,omitempty"`
}

// Prepare resolves the project's source and prepares its environment
// without running the script.
func (s *Service) Prepare(ctx context.Context, id uuid.UUID) (*PrepareResult, error) {
	p, err := s.store.GetProject(ctx, id)
	if err != nil {
		return nil, err
	}

	resolved, err := s.sources.Resolve(ctx, p)
	if err != nil {
		return nil, err
	}

	res := &PrepareResult{
		ProjectID:   p.ID,
		Path:        resolved.Path,
		Environment: p.EnvironmentType,
		Narrative:   resolved.Narrative,
	}

	if err := s.envs.Prepare(ctx, resolved.Path, p.EnvironmentType); err != nil {
		return res, err
	}

	res.Narrative = append(res.Narrative, fmt.Sprintf("Prepared %s environment in %s", p.EnvironmentType, resolved.Path))
	s.bus.Publish(event.Event{Type: event.TypeEnvironmentReady, ProjectID: p.ID})
	return res, nil
}

// Runs lists the project's runs, most recent first.
func (s *Service) Runs(ctx context.Context, id uuid.UUID, limit, offset int) (models.Runs, error) {
	if _, err := s.store.GetProject(ctx, id); err != nil {
		return nil, err
	}
	return s.store.ListRuns(ctx, &store.ListRunsRequest{ProjectID: id, Limit: limit, Offset: offset})
}

func (s *Service) ensureNameFree(ctx context.Context, name string, self uuid.UUID) error {
	existing, err := s.store.GetProjectByName(ctx, name)
	switch {
	case errors.Is(err, store.ErrNotFound):
		return nil
	case err != nil:
		return err
	case existing.ID != self:
		return fmt.Errorf("%w: %q", ErrNameTaken, name)
	default:
		return nil
	}
}
