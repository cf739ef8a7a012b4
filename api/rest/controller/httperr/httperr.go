// Package httperr maps service errors onto HTTP status codes.
package httperr

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/pyorchestrator/pyorchestrator/api/rest/service/project"
	"github.com/pyorchestrator/pyorchestrator/api/rest/service/run"
	"github.com/pyorchestrator/pyorchestrator/api/rest/service/schedule"
	"github.com/pyorchestrator/pyorchestrator/internal/environment"
	"github.com/pyorchestrator/pyorchestrator/internal/manifest"
	"github.com/pyorchestrator/pyorchestrator/internal/recurrence"
	"github.com/pyorchestrator/pyorchestrator/internal/source"
	"github.com/pyorchestrator/pyorchestrator/internal/store"
	"github.com/pyorchestrator/pyorchestrator/internal/worker"
	"github.com/pyorchestrator/pyorchestrator/pkg/log"
)

var badRequest = []error{
	project.ErrInvalidProject,
	schedule.ErrInvalidSchedule,
	run.ErrInvalidFilter,
	manifest.ErrInvalidManifest,
	recurrence.ErrInvalidRecurrence,
	recurrence.ErrUnknownTimezone,
	recurrence.ErrIncompleteStructuredSchedule,
}

// Status returns the HTTP status for err.
func Status(err error) int {
	switch {
	case errors.Is(err, store.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, project.ErrNameTaken):
		return http.StatusConflict
	case errors.Is(err, worker.ErrQueueFull):
		return http.StatusServiceUnavailable
	case errors.Is(err, source.ErrSourceSync),
		errors.Is(err, environment.ErrEnvironment),
		errors.Is(err, environment.ErrUnsupportedEnvironment):
		return http.StatusUnprocessableEntity
	}

	for _, target := range badRequest {
		if errors.Is(err, target) {
			return http.StatusBadRequest
		}
	}

	return http.StatusInternalServerError
}

// From converts a service error into an echo HTTP error. Client errors
// carry the error text; server errors are logged and hidden.
func From(err error) error {
	if err == nil {
		return nil
	}

	code := Status(err)
	if code == http.StatusInternalServerError {
		log.Error("request failed", "error", err)
		return echo.ErrInternalServerError.SetInternal(err)
	}

	return echo.NewHTTPError(code, err.Error()).SetInternal(err)
}

// BadID reports an unparsable path identifier.
func BadID(err error) error {
	return echo.NewHTTPError(http.StatusBadRequest, "invalid id").SetInternal(err)
}
