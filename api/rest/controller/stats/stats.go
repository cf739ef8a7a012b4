package stats

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/pyorchestrator/pyorchestrator/api/rest/controller/httperr"
	"github.com/pyorchestrator/pyorchestrator/api/rest/service/stats"
)

type Controller struct {
	svc *stats.Service
}

func New(svc *stats.Service) *Controller {
	return &Controller{svc: svc}
}

// Get returns aggregated project and run statistics.
func (ctrl *Controller) Get(c echo.Context) error {
	resp, err := ctrl.svc.Get(c.Request().Context())
	if err != nil {
		return httperr.From(err)
	}
	return c.JSON(http.StatusOK, resp)
}
