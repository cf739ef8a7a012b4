package event

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/pyorchestrator/pyorchestrator/internal/event"
	"github.com/pyorchestrator/pyorchestrator/pkg/log"
)

const keepAlive = 15 * time.Second

type Controller struct {
	bus       event.Bus
	keepAlive time.Duration
}

func New(bus event.Bus) *Controller {
	return &Controller{bus: bus, keepAlive: keepAlive}
}

func (ctrl *Controller) Stream(c echo.Context) error {
	ctx := c.Request().Context()
	filter, err := parseFilter(c)
	if err != nil {
		return err
	}

	ch, err := ctrl.bus.Subscribe(ctx, filter)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}

	c.Response().Header().Set(echo.HeaderContentType, "text/event-stream")
	c.Response().Header().Set(echo.HeaderCacheControl, "no-cache")
	c.Response().Header().Set(echo.HeaderConnection, "keep-alive")
	c.Response().Header().Set("X-Accel-Buffering", "no") // Disable buffering in Nginx

	// Send a comment to keep the connection alive (and for testing connectivity)
	if _, err := fmt.Fprintf(c.Response(), ": ping\n\n"); err != nil {
		return nil
	}
	c.Response().Flush()

	ticker := time.NewTicker(ctrl.keepAlive)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if _, err := fmt.Fprintf(c.Response(), ": ping\n\n"); err != nil {
				return nil
			}
			c.Response().Flush()
		case e, ok := <-ch:
			if !ok {
				return nil
			}

			data, err := json.Marshal(e)
			if err != nil {
				log.Error("failed to marshal event for SSE stream", "type", e.Type, "error", err)
				continue
			}

			if _, err := fmt.Fprintf(c.Response(), "event: %s\ndata: %s\n\n", e.Type, data); err != nil {
				return nil
			}
			c.Response().Flush()
		}
	}
}

// parseFilter reads the project_id, schedule_id, run_id and types
// query parameters.
func parseFilter(c echo.Context) (event.Filter, error) {
	filter := event.Filter{}

	for param, dst := range map[string]*uuid.UUID{
		"project_id":  &filter.ProjectID,
		"schedule_id": &filter.ScheduleID,
		"run_id":      &filter.RunID,
	} {
		raw := c.QueryParam(param)
		if raw == "" {
			continue
		}
		id, err := uuid.Parse(raw)
		if err != nil {
			return filter, echo.NewHTTPError(http.StatusBadRequest, "invalid "+param)
		}
		*dst = id
	}

	if typesStr := c.QueryParam("types"); typesStr != "" {
		for _, s := range strings.Split(typesStr, ",") {
			if s = strings.TrimSpace(s); s != "" {
				filter.Types = append(filter.Types, event.Type(s))
			}
		}
	}

	return filter, nil
}
