package api

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	echo "github.com/labstack/echo/v5"

	"github.com/codeready-toolchain/equityresearch/pkg/services"
)

// ErrorResponse is the body of every failed request.
type ErrorResponse struct {
	Error string `json:"error"`
}

// mapServiceError maps service-layer errors to HTTP error responses.
func mapServiceError(err error) *echo.HTTPError {
	var validErr *services.ValidationError
	if errors.As(err, &validErr) {
		return echo.NewHTTPError(http.StatusBadRequest, validErr.Message)
	}
	if errors.Is(err, services.ErrInvalidSession) {
		return echo.NewHTTPError(http.StatusNotFound, "invalid session")
	}
	if errors.Is(err, services.ErrNotFound) {
		return echo.NewHTTPError(http.StatusNotFound, "report not found")
	}
	if errors.Is(err, services.ErrUnavailable) {
		return echo.NewHTTPError(http.StatusServiceUnavailable, "research queue is full, try again later")
	}

	// Unexpected error
	slog.Error("Unexpected service error", "error", err)
	return echo.NewHTTPError(http.StatusInternalServerError, "internal server error")
}

// writeError sends err as an ErrorResponse.
func writeError(c *echo.Context, err error) error {
	he := mapServiceError(err)
	return c.JSON(he.Code, &ErrorResponse{Error: fmt.Sprint(he.Message)})
}

// badRequest sends a 400 with message.
func badRequest(c *echo.Context, message string) error {
	return c.JSON(http.StatusBadRequest, &ErrorResponse{Error: message})
}
