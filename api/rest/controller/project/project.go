package project

import (
	"net/http"
	"strconv"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/pyorchestrator/pyorchestrator/api/rest/controller/httperr"
	"github.com/pyorchestrator/pyorchestrator/api/rest/service/project"
	"github.com/pyorchestrator/pyorchestrator/api/rest/service/schedule"
)

type Controller struct {
	svc       *project.Service
	schedules *schedule.Service
}

func New(svc *project.Service, schedules *schedule.Service) *Controller {
	return &Controller{svc: svc, schedules: schedules}
}

func (ctrl *Controller) List(c echo.Context) error {
	projects, err := ctrl.svc.List(c.Request().Context())
	if err != nil {
		return httperr.From(err)
	}
	return c.JSON(http.StatusOK, projects)
}

func (ctrl *Controller) Get(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return httperr.BadID(err)
	}

	p, err := ctrl.svc.Get(c.Request().Context(), id)
	if err != nil {
		return httperr.From(err)
	}
	return c.JSON(http.StatusOK, p)
}

func (ctrl *Controller) Post(c echo.Context) error {
	req := &project.Request{}
	if err := c.Bind(req); err != nil {
		return err
	}

	p, err := ctrl.svc.Create(c.Request().Context(), req)
	if err != nil {
		return httperr.From(err)
	}
	return c.JSON(http.StatusCreated, p)
}

func (ctrl *Controller) Put(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return httperr.BadID(err)
	}

	req := &project.Request{}
	if err := c.Bind(req); err != nil {
		return err
	}

	p, err := ctrl.svc.Update(c.Request().Context(), id, req)
	if err != nil {
		return httperr.From(err)
	}
	return c.JSON(http.StatusOK, p)
}

func (ctrl *Controller) Delete(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return httperr.BadID(err)
	}

	if err := ctrl.svc.Delete(c.Request().Context(), id); err != nil {
		return httperr.From(err)
	}
	return c.NoContent(http.StatusNoContent)
}

// Run triggers the project now. A run that could not be queued is
// returned alongside the error status so callers can inspect it.
func (ctrl *Controller) Run(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return httperr.BadID(err)
	}

	run, err := ctrl.svc.Run(c.Request().Context(), id)
	if err != nil {
		if run != nil {
			return c.JSON(httperr.Status(err), run)
		}
		return httperr.From(err)
	}
	return c.JSON(http.StatusAccepted, run)
}

func (ctrl *Controller) Prepare(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return httperr.BadID(err)
	}

	res, err := ctrl.svc.Prepare(c.Request().Context(), id)
	if err != nil {
		if res != nil {
			return c.JSON(httperr.Status(err), struct {
				*project.PrepareResult
				Error string `json:"error"`
			}{res, err.Error()})
		}
		return httperr.From(err)
	}
	return c.JSON(http.StatusOK, res)
}

func (ctrl *Controller) Runs(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return httperr.BadID(err)
	}

	limit, _ := strconv.Atoi(c.QueryParam("limit"))
	offset, _ := strconv.Atoi(c.QueryParam("offset"))

	runs, err := ctrl.svc.Runs(c.Request().Context(), id, limit, offset)
	if err != nil {
		return httperr.From(err)
	}
	return c.JSON(http.StatusOK, runs)
}

func (ctrl *Controller) Schedules(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return httperr.BadID(err)
	}

	ctx := c.Request().Context()
	if _, err := ctrl.svc.Get(ctx, id); err != nil {
		return httperr.From(err)
	}

	views, err := ctrl.schedules.ListByProject(ctx, id)
	if err != nil {
		return httperr.From(err)
	}
	return c.JSON(http.StatusOK, views)
}
