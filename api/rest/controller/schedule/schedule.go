package schedule

import (
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/pyorchestrator/pyorchestrator/api/rest/controller/httperr"
	"github.com/pyorchestrator/pyorchestrator/api/rest/service/schedule"
)

type Controller struct {
	svc *schedule.Service
}

func New(svc *schedule.Service) *Controller {
	return &Controller{svc: svc}
}

// List returns every schedule, or only a project's when project_id
// is given.
func (ctrl *Controller) List(c echo.Context) error {
	var (
		views []*schedule.View
		err   error
		ctx   = c.Request().Context()
	)

	if raw := c.QueryParam("project_id"); raw != "" {
		id, perr := uuid.Parse(raw)
		if perr != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "invalid project_id")
		}
		views, err = ctrl.svc.ListByProject(ctx, id)
	} else {
		views, err = ctrl.svc.List(ctx)
	}
	if err != nil {
		return httperr.From(err)
	}

	return c.JSON(http.StatusOK, views)
}

func (ctrl *Controller) Get(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return httperr.BadID(err)
	}

	view, err := ctrl.svc.Get(c.Request().Context(), id)
	if err != nil {
		return httperr.From(err)
	}
	return c.JSON(http.StatusOK, view)
}

func (ctrl *Controller) Post(c echo.Context) error {
	req := &schedule.Request{}
	if err := c.Bind(req); err != nil {
		return err
	}

	view, err := ctrl.svc.Create(c.Request().Context(), req)
	if err != nil {
		return httperr.From(err)
	}
	return c.JSON(http.StatusCreated, view)
}

func (ctrl *Controller) Put(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return httperr.BadID(err)
	}

	req := &schedule.Request{}
	if err := c.Bind(req); err != nil {
		return err
	}

	view, err := ctrl.svc.Update(c.Request().Context(), id, req)
	if err != nil {
		return httperr.From(err)
	}
	return c.JSON(http.StatusOK, view)
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
