package bind

import (
	"github.com/labstack/echo/v4"
	"github.com/pyorchestrator/pyorchestrator/api/rest/controller/event"
	"github.com/pyorchestrator/pyorchestrator/api/rest/controller/job"
	"github.com/pyorchestrator/pyorchestrator/api/rest/controller/manifest"
	"github.com/pyorchestrator/pyorchestrator/api/rest/controller/project"
	"github.com/pyorchestrator/pyorchestrator/api/rest/controller/run"
	"github.com/pyorchestrator/pyorchestrator/api/rest/controller/schedule"
	"github.com/pyorchestrator/pyorchestrator/api/rest/controller/stats"
)

// Controllers groups the handlers mounted under /v1.
type Controllers struct {
	Projects  *project.Controller
	Schedules *schedule.Controller
	Runs      *run.Controller
	Jobs      *job.Controller
	Stats     *stats.Controller
	Manifests *manifest.Controller
	Events    *event.Controller
}

func All(g *echo.Group, c *Controllers) {
	Projects(g, c.Projects)
	Schedules(g, c.Schedules)
	Runs(g, c.Runs)

	g.GET("/jobs", c.Jobs.List)
	g.GET("/stats", c.Stats.Get)
	g.POST("/manifests/apply", c.Manifests.Apply)
	g.GET("/events", c.Events.Stream)
}

func Projects(g *echo.Group, ctrl *project.Controller) {
	g.GET("/projects", ctrl.List)
	g.POST("/projects", ctrl.Post)
	g.GET("/projects/:id", ctrl.Get)
	g.PUT("/projects/:id", ctrl.Put)
	g.DELETE("/projects/:id", ctrl.Delete)
	g.POST("/projects/:id/run", ctrl.Run)
	g.POST("/projects/:id/prepare", ctrl.Prepare)
	g.GET("/projects/:id/runs", ctrl.Runs)
	g.GET("/projects/:id/schedules", ctrl.Schedules)
}

func Schedules(g *echo.Group, ctrl *schedule.Controller) {
	g.GET("/schedules", ctrl.List)
	g.POST("/schedules", ctrl.Post)
	g.GET("/schedules/:id", ctrl.Get)
	g.PUT("/schedules/:id", ctrl.Put)
	g.DELETE("/schedules/:id", ctrl.Delete)
	g.POST("/schedules/:id/run", ctrl.Run)
}

func Runs(g *echo.Group, ctrl *run.Controller) {
	g.GET("/runs", ctrl.List)
	g.GET("/runs/:id", ctrl.Get)
	g.GET("/runs/:id/logs", ctrl.Logs)
}
