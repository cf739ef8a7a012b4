package manifest

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/pyorchestrator/pyorchestrator/api/rest/controller/httperr"
	"github.com/pyorchestrator/pyorchestrator/api/rest/service/manifest"
)

type Controller struct {
	svc *manifest.Service
}

func New(svc *manifest.Service) *Controller {
	return &Controller{svc: svc}
}

// Apply upserts the posted manifest documents. Projects applied before
// a failing document are reported with the error.
func (ctrl *Controller) Apply(c echo.Context) error {
	req := &manifest.ApplyRequest{}
	if err := c.Bind(req); err != nil {
		return err
	}

	resp, err := ctrl.svc.Apply(c.Request().Context(), req)
	if err != nil {
		if resp != nil && len(resp.Projects) > 0 {
			return c.JSON(httperr.Status(err), struct {
				*manifest.ApplyResponse
				Error string `json:"error"`
			}{resp, err.Error()})
		}
		return httperr.From(err)
	}
	return c.JSON(http.StatusOK, resp)
}
