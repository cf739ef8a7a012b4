// Package app wires the stores, services, scheduler and workers of a
// pyorchestrator instance together.
package app

import (
	"context"
	"errors"
	"time"

	"github.com/pyorchestrator/pyorchestrator/api"
	"github.com/pyorchestrator/pyorchestrator/api/rest/service/manifest"
	"github.com/pyorchestrator/pyorchestrator/api/rest/service/project"
	"github.com/pyorchestrator/pyorchestrator/api/rest/service/run"
	"github.com/pyorchestrator/pyorchestrator/api/rest/service/schedule"
	"github.com/pyorchestrator/pyorchestrator/api/rest/service/stats"
	"github.com/pyorchestrator/pyorchestrator/internal/environment"
	"github.com/pyorchestrator/pyorchestrator/internal/event"
	"github.com/pyorchestrator/pyorchestrator/internal/executor"
	"github.com/pyorchestrator/pyorchestrator/internal/scheduler"
	"github.com/pyorchestrator/pyorchestrator/internal/source"
	"github.com/pyorchestrator/pyorchestrator/internal/store"
	"github.com/pyorchestrator/pyorchestrator/internal/trigger"
	"github.com/pyorchestrator/pyorchestrator/internal/worker"
	"github.com/pyorchestrator/pyorchestrator/pkg/env"
	"github.com/pyorchestrator/pyorchestrator/pkg/log"
	"gorm.io/gorm"
)

const interruptedNarrative = "\nRun interrupted: the orchestrator stopped before it finished"

// App is a fully wired instance.
type App struct {
	vars env.Environment

	Store     *store.Store
	Bus       event.Bus
	Queue     *worker.Queue
	Trigger   *trigger.Trigger
	Scheduler *scheduler.Scheduler
	Engine    *executor.Engine
	Sources   *source.Resolver
	Preparer  *environment.Preparer
	Projects  *project.Service
	Schedules *schedule.Service
	Server    *api.Server
}

// New wires an instance on the given connection. The runner executes
// environment setup and scripts; nil means os/exec.
func New(vars env.Environment, conn *gorm.DB, runner environment.Runner) *App {
	if runner == nil {
		runner = environment.ExecRunner{}
	}

	a := &App{
		vars:  vars,
		Store: store.New(conn),
		Bus:   event.New(),
		Queue: worker.NewQueue(vars.QueueSize),
	}

	a.Sources = Resolver(vars)
	a.Preparer = environment.NewPreparer(runner, vars.UVBin, vars.PythonBin)
	a.Trigger = trigger.New(a.Store, a.Queue, a.Bus)
	a.Scheduler = scheduler.New(a.Trigger, a.Bus)

	opts := []executor.Option{executor.WithEventBus(a.Bus)}
	if vars.SerializeProjectRuns {
		opts = append(opts, executor.WithProjectLocks())
	}
	a.Engine = executor.New(a.Store, a.Sources, a.Preparer, runner, opts...)

	a.Projects = project.New(a.Store, a.Scheduler, a.Trigger, a.Sources, a.Preparer, a.Bus)
	a.Schedules = schedule.New(a.Store, a.Scheduler, a.Trigger, a.Bus)

	a.Server = api.New(&api.Dependencies{
		Projects:  a.Projects,
		Schedules: a.Schedules,
		Runs:      run.New(a.Store),
		Stats:     stats.New(conn),
		Manifests: manifest.New(a.Projects, a.Schedules),
		Jobs:      a.Scheduler,
		Queue:     a.Queue,
		Bus:       a.Bus,
	})

	return a
}

// Resolver builds the source resolver from the git settings.
func Resolver(vars env.Environment) *source.Resolver {
	return source.NewResolver(vars.WorkspaceDir, source.Auth{
		Username:         vars.GitUsername,
		Password:         vars.GitPassword,
		SSHKeyPath:       vars.GitSSHKeyPath,
		SSHKeyPassphrase: vars.GitSSHKeyPassphrase,
		KnownHostsPath:   vars.GitKnownHostsPath,
	})
}

// Recover fails runs a previous process left unfinished and registers
// every persisted schedule.
func (a *App) Recover(ctx context.Context) error {
	failed, err := a.Store.FailInterruptedRuns(ctx, interruptedNarrative)
	if err != nil {
		return err
	}
	if failed > 0 {
		log.Warn("failed runs interrupted by a previous shutdown", "count", failed)
	}

	_, err = a.Scheduler.Seed(ctx, a.Store)
	return err
}

// Run recovers state, then serves until ctx is done or a component
// fails, and finally shuts down gracefully.
func (a *App) Run(ctx context.Context) error {
	if err := a.Recover(ctx); err != nil {
		return err
	}

	workerCtx, stopWorker := context.WithCancel(context.Background())
	defer stopWorker()

	var (
		errs       = make(chan error, 2)
		workerDone = make(chan struct{})
	)

	w := worker.NewWorker(a.Queue, worker.NewPool(a.vars.MaxConcurrentRuns), time.Second, a.Engine.Execute)
	go func() {
		defer close(workerDone)
		log.Info("launching execution routine", "max_concurrent_runs", a.vars.MaxConcurrentRuns)
		if err := w.Run(workerCtx); err != nil {
			errs <- err
		}
	}()

	if err := a.Scheduler.Start(ctx); err != nil {
		return err
	}

	go func() {
		log.Info("spinning up api")
		errs <- a.Server.Start(a.vars.Port)
	}()

	var runErr error
	select {
	case <-ctx.Done():
	case runErr = <-errs:
	}

	a.shutdown(stopWorker, workerDone)
	return runErr
}

func (a *App) shutdown(stopWorker context.CancelFunc, workerDone <-chan struct{}) {
	grace := a.vars.ShutdownGrace
	ctx, cancel := context.WithTimeout(context.Background(), grace)
	defer cancel()

	if err := a.Server.Shutdown(ctx); err != nil && !errors.Is(err, context.DeadlineExceeded) {
		log.Error("api shutdown failure", "error", err)
	}

	a.Scheduler.Shutdown()

	stopWorker()
	select {
	case <-workerDone:
		log.Info("execution routine stopped")
	case <-ctx.Done():
		log.Warn("in-flight runs still executing at shutdown", "grace", grace)
	}
}
