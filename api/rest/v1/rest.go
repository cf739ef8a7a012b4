package rest

import (
	"github.com/labstack/echo/v4"
	"github.com/pyorchestrator/pyorchestrator/api/rest/bind"
)

// Bind the REST endpoints to the versioned endpoint group.
func Bind(group *echo.Group, controllers *bind.Controllers) {
	bind.All(group, controllers)
}
