package api

import (
	"net/http"
	"strconv"

	echo "github.com/labstack/echo/v5"
)

// listChannelsHandler handles GET /api/v1/channels.
func (s *Server) listChannelsHandler(c *echo.Context) error {
	skip := intQueryParam(c, "skip", 0)
	limit := intQueryParam(c, "limit", 100)

	channels, err := s.channelService.List(c.Request().Context(), skip, limit)
	if err != nil {
		return mapServiceError(err)
	}

	return c.JSON(http.StatusOK, channels)
}

// createChannelHandler handles POST /api/v1/channels.
func (s *Server) createChannelHandler(c *echo.Context) error {
	var req CreateChannelRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}

	channel, err := s.channelService.Create(c.Request().Context(), req.URL)
	if err != nil {
		return mapServiceError(err)
	}

	return c.JSON(http.StatusCreated, channel)
}

// getChannelHandler handles GET /api/v1/channels/:id. The response carries
// the channel plus its video counters.
func (s *Server) getChannelHandler(c *echo.Context) error {
	id, err := channelIDParam(c)
	if err != nil {
		return err
	}

	stats, err := s.channelService.GetStats(c.Request().Context(), id)
	if err != nil {
		return mapServiceError(err)
	}

	return c.JSON(http.StatusOK, stats)
}

// updateChannelHandler handles PATCH /api/v1/channels/:id. The name field is
// optional; a body without it returns the channel unchanged.
func (s *Server) updateChannelHandler(c *echo.Context) error {
	id, err := channelIDParam(c)
	if err != nil {
		return err
	}

	var req UpdateChannelRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}

	if req.Name == nil {
		channel, err := s.channelService.Get(c.Request().Context(), id)
		if err != nil {
			return mapServiceError(err)
		}
		return c.JSON(http.StatusOK, channel)
	}

	channel, err := s.channelService.UpdateName(c.Request().Context(), id, *req.Name)
	if err != nil {
		return mapServiceError(err)
	}

	return c.JSON(http.StatusOK, channel)
}

// deleteChannelHandler handles DELETE /api/v1/channels/:id. Videos, segments,
// and chunks of the channel go with it via cascade.
func (s *Server) deleteChannelHandler(c *echo.Context) error {
	id, err := channelIDParam(c)
	if err != nil {
		return err
	}

	if err := s.channelService.Delete(c.Request().Context(), id); err != nil {
		return mapServiceError(err)
	}

	return c.NoContent(http.StatusNoContent)
}

func channelIDParam(c *echo.Context) (int64, error) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		return 0, echo.NewHTTPError(http.StatusBadRequest, "invalid channel id")
	}
	return id, nil
}

// intQueryParam parses a non-negative integer query parameter, falling back
// when the parameter is absent or malformed.
func intQueryParam(c *echo.Context, name string, fallback int) int {
	v := c.QueryParam(name)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		return fallback
	}
	return n
}
