package api

import (
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
)

var startedAt time.Time

func init() {
	startedAt = time.Now()
}

// HealthResponse defines the data the Health
// REST endpoint returns.
type HealthResponse struct {
	Status        Status        `json:"status"`
	Uptime        time.Duration `json:"uptime"`
	ScheduledJobs int           `json:"scheduled_jobs"`
	QueuedRuns    int           `json:"queued_runs"`
}

// Health is used to determine if pyorchestrator is healthy.
// The response also includes the uptime, the number of live
// scheduled jobs and the runs waiting for a worker.
func Health(jobs JobRegistry, queue QueueInspector) echo.HandlerFunc {
	return func(c echo.Context) error {
		resp := HealthResponse{
			Status: Healthy,
			Uptime: time.Since(startedAt),
		}
		if jobs != nil {
			resp.ScheduledJobs = len(jobs.Jobs())
		}
		if queue != nil {
			resp.QueuedRuns = queue.Len()
		}
		return c.JSON(http.StatusOK, resp)
	}
}

// Status enumerates the health statues of pyorchestrator.
type Status string

const (
	// Healthy implies pyorchestrator is having no major issues.
	Healthy Status = "healthy"
)
