// Package executor runs a persisted Run to a terminal status: it
// resolves the project's source, prepares its environment, runs the
// entry script and records the outcome.
package executor

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/pyorchestrator/pyorchestrator/internal/environment"
	"github.com/pyorchestrator/pyorchestrator/internal/event"
	"github.com/pyorchestrator/pyorchestrator/internal/metrics"
	"github.com/pyorchestrator/pyorchestrator/internal/models"
	"github.com/pyorchestrator/pyorchestrator/internal/source"
	"github.com/pyorchestrator/pyorchestrator/internal/store"
	"github.com/pyorchestrator/pyorchestrator/pkg/log"
)

var (
	ErrProjectNotFound = errors.New("project not found")
	ErrPathNotFound    = errors.New("project path not found")
)

// Store is the persistence the engine needs.
type Store interface {
	GetRun(ctx context.Context, id uuid.UUID) (*models.Run, error)
	GetProject(ctx context.Context, id uuid.UUID) (*models.Project, error)
	UpdateRunStatus(ctx context.Context, id uuid.UUID, status models.RunStatus, logOutput string) (*models.Run, error)
}

type SourceResolver interface {
	Resolve(ctx context.Context, p *models.Project) (*source.Result, error)
}

type EnvironmentPreparer interface {
	Prepare(ctx context.Context, path string, kind models.EnvironmentType) error
	Command(kind models.EnvironmentType, path, script string, args []string) (environment.Command, error)
}

type Engine struct {
	store   Store
	sources SourceResolver
	envs    EnvironmentPreparer
	runner  environment.Runner
	bus     event.Bus
	locks   *projectLocks
}

type Option func(*Engine)

// WithEventBus publishes run lifecycle events to bus.
func WithEventBus(bus event.Bus) Option {
	return func(e *Engine) {
		if bus != nil {
			e.bus = bus
		}
	}
}

// WithProjectLocks serializes runs of the same project from
// environment preparation through script exit.
func WithProjectLocks() Option {
	return func(e *Engine) {
		e.locks = newProjectLocks()
	}
}

func New(s Store, sources SourceResolver, envs EnvironmentPreparer, runner environment.Runner, opts ...Option) *Engine {
	if s == nil || sources == nil || envs == nil {
		panic("executor requires store, source resolver and environment preparer")
	}
	if runner == nil {
		runner = environment.ExecRunner{}
	}

	e := &Engine{
		store:   s,
		sources: sources,
		envs:    envs,
		runner:  runner,
		bus:     event.Nop{},
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Execute drives the run to completed or failed. It never returns an
// error or panics; the outcome is recorded on the run. Cancelling ctx
// does not stop an in-flight script.
func (e *Engine) Execute(ctx context.Context, runID uuid.UUID) {
	ctx = context.WithoutCancel(ctx)

	run, err := e.store.GetRun(ctx, runID)
	if err != nil {
		log.Warn("run not found, skipping execution", "run_id", runID, "error", err)
		return
	}
	if run.Status.Terminal() {
		log.Warn("run already finished, skipping execution", "run_id", runID, "status", run.Status)
		return
	}

	x := &execution{engine: e, run: run, started: time.Now()}
	defer x.settle(ctx)

	if _, err := e.store.UpdateRunStatus(ctx, runID, models.RunStatusRunning, ""); err != nil {
		if errors.Is(err, store.ErrRunFinalized) {
			log.Warn("run finalized concurrently, skipping execution", "run_id", runID)
			x.done = true
			return
		}
		x.fail(ctx, err)
		return
	}

	metrics.RunsActive.Inc()
	x.active = true
	e.publish(event.TypeRunStarted, run, nil)
	log.Info("run started", "run_id", runID, "project_id", run.ProjectID)

	e.execute(ctx, x)
}

func (e *Engine) execute(ctx context.Context, x *execution) {
	project, err := e.store.GetProject(ctx, x.run.ProjectID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			x.fail(ctx, fmt.Errorf("%w: %s", ErrProjectNotFound, x.run.ProjectID))
		} else {
			x.fail(ctx, err)
		}
		return
	}
	x.project = project

	resolved, err := e.sources.Resolve(ctx, project)
	if resolved != nil {
		x.narrative = append(x.narrative, resolved.Narrative...)
		if resolved.Action != source.ActionNone {
			metrics.SourceSyncsTotal.WithLabelValues(string(resolved.Action), outcome(err)).Inc()
		}
	}
	if err != nil {
		x.fail(ctx, err)
		return
	}

	if info, statErr := os.Stat(resolved.Path); statErr != nil || !info.IsDir() {
		x.fail(ctx, fmt.Errorf("%w: %s", ErrPathNotFound, resolved.Path))
		return
	}

	if e.locks != nil {
		unlock := e.locks.lock(project.ID)
		defer unlock()
	}

	x.note("Preparing %s environment in %s", project.EnvironmentType, resolved.Path)
	prepStart := time.Now()
	err = e.envs.Prepare(ctx, resolved.Path, project.EnvironmentType)
	metrics.EnvironmentPrepareDurationSeconds.
		WithLabelValues(string(project.EnvironmentType), outcome(err)).
		Observe(time.Since(prepStart).Seconds())
	if err != nil {
		x.fail(ctx, err)
		return
	}

	cmd, err := e.envs.Command(project.EnvironmentType, resolved.Path, project.MainScript, environment.SplitArguments(project.Arguments))
	if err != nil {
		x.fail(ctx, err)
		return
	}
	cmd.Env = append(cmd.Env, project.Environ()...)

	x.note("Running %s", cmd)
	result, err := e.runner.Run(ctx, cmd)
	if err != nil {
		x.fail(ctx, err)
		return
	}

	if result.ExitCode == 0 {
		x.finish(ctx, models.RunStatusCompleted, result.Stdout)
		return
	}

	x.note("Exit code %d", result.ExitCode)
	x.finish(ctx, models.RunStatusFailed, result.Stderr)
}

func (e *Engine) publish(t event.Type, run *models.Run, payload any) {
	ev := event.Event{Type: t, ProjectID: run.ProjectID, RunID: run.ID}
	if run.ScheduleID != nil {
		ev.ScheduleID = *run.ScheduleID
	}
	if payload != nil {
		if data, err := json.Marshal(payload); err == nil {
			ev.Payload = data
		}
	}
	e.bus.Publish(ev)
}

// execution accumulates the narrative of a single run and guarantees
// a single terminal transition.
type execution struct {
	engine    *Engine
	run       *models.Run
	project   *models.Project
	narrative []string
	started   time.Time
	active    bool
	done      bool
}

func (x *execution) note(format string, args ...any) {
	x.narrative = append(x.narrative, fmt.Sprintf(format, args...))
}

func (x *execution) fail(ctx context.Context, err error) {
	x.finish(ctx, models.RunStatusFailed, err.Error())
}

func (x *execution) finish(ctx context.Context, status models.RunStatus, output string) {
	if x.done {
		return
	}
	x.done = true

	if x.active {
		metrics.RunsActive.Dec()
	}

	lines := append([]string{}, x.narrative...)
	if output = strings.TrimRight(output, "\n"); output != "" {
		lines = append(lines, output)
	}
	logOutput := strings.Join(lines, "\n")

	if _, err := x.engine.store.UpdateRunStatus(ctx, x.run.ID, status, logOutput); err != nil {
		log.Error("failed to record run outcome", "run_id", x.run.ID, "status", status, "error", err)
		return
	}

	elapsed := time.Since(x.started)
	metrics.RunsTotal.WithLabelValues(x.run.ProjectID.String(), string(status)).Inc()
	metrics.RunDurationSeconds.WithLabelValues(x.run.ProjectID.String(), string(status)).Observe(elapsed.Seconds())

	if status == models.RunStatusCompleted {
		log.Info("run completed", "run_id", x.run.ID, "duration", elapsed)
		x.engine.publish(event.TypeRunCompleted, x.run, map[string]any{"status": status})
		return
	}

	log.Warn("run failed", "run_id", x.run.ID, "duration", elapsed, "reason", lastLine(logOutput))
	x.engine.publish(event.TypeRunFailed, x.run, map[string]any{"status": status, "reason": lastLine(logOutput)})
}

// settle turns a panic, or a path that returned without recording an
// outcome, into a failed run.
func (x *execution) settle(ctx context.Context) {
	if r := recover(); r != nil {
		log.Error("run panicked", "run_id", x.run.ID, "panic", r)
		x.finish(ctx, models.RunStatusFailed, fmt.Sprintf("unexpected error: %v", r))
		return
	}
	if !x.done {
		x.finish(ctx, models.RunStatusFailed, "execution ended without a result")
	}
}

func outcome(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}

func lastLine(s string) string {
	s = strings.TrimSpace(s)
	if i := strings.LastIndex(s, "\n"); i >= 0 {
		return s[i+1:]
	}
	return s
}
