package run

import (
	"net/http"
	"strconv"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/pyorchestrator/pyorchestrator/api/rest/controller/httperr"
	"github.com/pyorchestrator/pyorchestrator/api/rest/service/run"
	"github.com/pyorchestrator/pyorchestrator/internal/models"
)

type Controller struct {
	svc *run.Service
}

func New(svc *run.Service) *Controller {
	return &Controller{svc: svc}
}

func (ctrl *Controller) List(c echo.Context) error {
	req := &run.ListRequest{Status: models.RunStatus(c.QueryParam("status"))}

	for param, dst := range map[string]*uuid.UUID{
		"project_id":  &req.ProjectID,
		"schedule_id": &req.ScheduleID,
	} {
		raw := c.QueryParam(param)
		if raw == "" {
			continue
		}
		id, err := uuid.Parse(raw)
		if err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "invalid "+param)
		}
		*dst = id
	}

	req.Limit, _ = strconv.Atoi(c.QueryParam("limit"))
	req.Offset, _ = strconv.Atoi(c.QueryParam("offset"))

	runs, err := ctrl.svc.List(c.Request().Context(), req)
	if err != nil {
		return httperr.From(err)
	}
	return c.JSON(http.StatusOK, runs)
}

func (ctrl *Controller) Get(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return httperr.BadID(err)
	}

	r, err := ctrl.svc.Get(c.Request().Context(), id)
	if err != nil {
		return httperr.From(err)
	}
	return c.JSON(http.StatusOK, r)
}

// Logs returns the run log as plain text.
func (ctrl *Controller) Logs(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return httperr.BadID(err)
	}

	r, err := ctrl.svc.Get(c.Request().Context(), id)
	if err != nil {
		return httperr.From(err)
	}
	return c.String(http.StatusOK, r.LogOutput)
}
