package api

import (
	"net/http"

	echo "github.com/labstack/echo/v5"

	"github.com/mediateca/vodrag/pkg/version"
)

func (s *Server) healthHandler(c *echo.Context) error {
	return c.JSON(http.StatusOK, &HealthResponse{
		Status:  "healthy",
		Version: version.GitCommit,
	})
}
