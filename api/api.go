package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"

	"github.com/labstack/echo-contrib/prometheus"
	"github.com/labstack/echo/v4"
	"github.com/pyorchestrator/pyorchestrator/api/rest/bind"
	eventctrl "github.com/pyorchestrator/pyorchestrator/api/rest/controller/event"
	jobctrl "github.com/pyorchestrator/pyorchestrator/api/rest/controller/job"
	manifestctrl "github.com/pyorchestrator/pyorchestrator/api/rest/controller/manifest"
	projectctrl "github.com/pyorchestrator/pyorchestrator/api/rest/controller/project"
	runctrl "github.com/pyorchestrator/pyorchestrator/api/rest/controller/run"
	schedulectrl "github.com/pyorchestrator/pyorchestrator/api/rest/controller/schedule"
	statsctrl "github.com/pyorchestrator/pyorchestrator/api/rest/controller/stats"
	"github.com/pyorchestrator/pyorchestrator/api/rest/service/manifest"
	"github.com/pyorchestrator/pyorchestrator/api/rest/service/project"
	"github.com/pyorchestrator/pyorchestrator/api/rest/service/run"
	"github.com/pyorchestrator/pyorchestrator/api/rest/service/schedule"
	"github.com/pyorchestrator/pyorchestrator/api/rest/service/stats"
	"github.com/pyorchestrator/pyorchestrator/api/rest/v1"
	"github.com/pyorchestrator/pyorchestrator/internal/event"
	"github.com/pyorchestrator/pyorchestrator/internal/scheduler"
	"github.com/pyorchestrator/pyorchestrator/pkg/log"
)

type JobRegistry interface {
	Jobs() []scheduler.Job
}

type QueueInspector interface {
	Len() int
}

// Dependencies are the services the API serves.
type Dependencies struct {
	Projects  *project.Service
	Schedules *schedule.Service
	Runs      *run.Service
	Stats     *stats.Service
	Manifests *manifest.Service
	Jobs      JobRegistry
	Queue     QueueInspector
	Bus       event.Bus
}

// Server is pyorchestrator's HTTP API.
type Server struct {
	echo        *echo.Echo
	metricsOnce sync.Once
}

// New builds the API routes without starting a listener.
func New(deps *Dependencies) *Server {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	bus := deps.Bus
	if bus == nil {
		bus = event.Nop{}
	}

	// health
	e.GET("/health", Health(deps.Jobs, deps.Queue))

	// REST
	rest.Bind(e.Group("/v1"), &bind.Controllers{
		Projects:  projectctrl.New(deps.Projects, deps.Schedules),
		Schedules: schedulectrl.New(deps.Schedules),
		Runs:      runctrl.New(deps.Runs),
		Jobs:      jobctrl.New(deps.Jobs),
		Stats:     statsctrl.New(deps.Stats),
		Manifests: manifestctrl.New(deps.Manifests),
		Events:    eventctrl.New(bus),
	})

	return &Server{echo: e}
}

// Handler exposes the router, e.g. for httptest.
func (s *Server) Handler() http.Handler {
	return s.echo
}

// Start launches pyorchestrator's API on port and blocks until the
// server stops. A graceful Shutdown is not reported as an error.
func (s *Server) Start(port int) error {
	// metrics
	s.metricsOnce.Do(func() {
		prometheus.NewPrometheus("pyorchestrator", nil).Use(s.echo)
	})

	log.Info("api listening", "port", port)
	if err := s.echo.Start(fmt.Sprintf(":%v", port)); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown stops accepting requests and waits for in-flight ones.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.echo.Shutdown(ctx)
}
