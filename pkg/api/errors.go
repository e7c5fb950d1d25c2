package api

import (
	"errors"
	"log/slog"
	"net/http"

	echo "github.com/labstack/echo/v5"

	"github.com/mediateca/vodrag/pkg/services"
)

// mapServiceError translates service errors into the HTTP responses clients
// key on. Anything unrecognized is logged and reported as a 500 without
// leaking internals.
func mapServiceError(err error) *echo.HTTPError {
	var validErr *services.ValidationError
	switch {
	case errors.As(err, &validErr):
		return echo.NewHTTPError(http.StatusBadRequest, validErr.Error())
	case errors.Is(err, services.ErrInvalidInput):
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	case errors.Is(err, services.ErrNotFound):
		return echo.NewHTTPError(http.StatusNotFound, "resource not found")
	case errors.Is(err, services.ErrAlreadyExists):
		return echo.NewHTTPError(http.StatusBadRequest, "resource already exists")
	default:
		slog.Error("Unhandled service error", "error", err)
		return echo.NewHTTPError(http.StatusInternalServerError, "internal server error")
	}
}
