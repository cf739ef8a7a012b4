package job

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/pyorchestrator/pyorchestrator/internal/scheduler"
)

type Registry interface {
	Jobs() []scheduler.Job
}

type Controller struct {
	registry Registry
}

func New(registry Registry) *Controller {
	return &Controller{registry: registry}
}

// List returns the scheduler's live jobs ordered by next fire time.
func (ctrl *Controller) List(c echo.Context) error {
	return c.JSON(http.StatusOK, ctrl.registry.Jobs())
}
