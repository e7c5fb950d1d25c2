package api

import (
	"net/http"

	echo "github.com/labstack/echo/v5"

	"github.com/mediateca/vodrag/pkg/models"
)

// getSettingsHandler handles GET /api/v1/settings/:component. The response
// is a flat map of setting key to the typed value.
func (s *Server) getSettingsHandler(c *echo.Context) error {
	component := c.Param("component")

	values, err := s.settingsService.TypedMap(c.Request().Context(), component)
	if err != nil {
		return mapServiceError(err)
	}

	return c.JSON(http.StatusOK, values)
}

// createSettingHandler handles POST /api/v1/settings.
func (s *Server) createSettingHandler(c *echo.Context) error {
	var req models.Setting
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}

	setting, err := s.settingsService.Create(c.Request().Context(), req)
	if err != nil {
		return mapServiceError(err)
	}

	return c.JSON(http.StatusOK, setting)
}

// updateSettingHandler handles PUT /api/v1/settings/:component/:section/:key.
// Only the value changes; its type stays whatever the setting was created with.
func (s *Server) updateSettingHandler(c *echo.Context) error {
	var req UpdateSettingRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}

	setting, err := s.settingsService.Update(
		c.Request().Context(),
		c.Param("component"),
		c.Param("section"),
		c.Param("key"),
		req.Value,
	)
	if err != nil {
		return mapServiceError(err)
	}

	return c.JSON(http.StatusOK, setting)
}

// deleteSettingHandler handles DELETE /api/v1/settings/:component/:section/:key.
func (s *Server) deleteSettingHandler(c *echo.Context) error {
	err := s.settingsService.Delete(
		c.Request().Context(),
		c.Param("component"),
		c.Param("section"),
		c.Param("key"),
	)
	if err != nil {
		return mapServiceError(err)
	}

	return c.JSON(http.StatusOK, &StatusResponse{Status: "deleted"})
}
