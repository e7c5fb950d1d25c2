package api

import (
	"net/http"
	"strconv"

	echo "github.com/labstack/echo/v5"
)

// listVideosHandler handles GET /api/v1/videos. channel_id narrows the
// listing to a single channel.
func (s *Server) listVideosHandler(c *echo.Context) error {
	channelID, err := optionalChannelID(c)
	if err != nil {
		return err
	}
	skip := intQueryParam(c, "skip", 0)
	limit := intQueryParam(c, "limit", 100)

	videos, err := s.videoService.List(c.Request().Context(), channelID, skip, limit)
	if err != nil {
		return mapServiceError(err)
	}

	return c.JSON(http.StatusOK, videos)
}

// getVideoHandler handles GET /api/v1/videos/:id. The response carries the
// video plus its segment and chunk counts.
func (s *Server) getVideoHandler(c *echo.Context) error {
	videoID := c.Param("id")
	if videoID == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "video id is required")
	}

	detail, err := s.videoService.GetDetail(c.Request().Context(), videoID)
	if err != nil {
		return mapServiceError(err)
	}

	return c.JSON(http.StatusOK, detail)
}

// pendingDownloadHandler handles GET /api/v1/videos/pending/download.
func (s *Server) pendingDownloadHandler(c *echo.Context) error {
	channelID, err := optionalChannelID(c)
	if err != nil {
		return err
	}

	videos, err := s.videoService.PendingDownload(c.Request().Context(), channelID)
	if err != nil {
		return mapServiceError(err)
	}

	return c.JSON(http.StatusOK, videos)
}

// pendingTranscriptionHandler handles GET /api/v1/videos/pending/transcription.
func (s *Server) pendingTranscriptionHandler(c *echo.Context) error {
	videos, err := s.videoService.PendingTranscription(c.Request().Context())
	if err != nil {
		return mapServiceError(err)
	}

	return c.JSON(http.StatusOK, videos)
}

// optionalChannelID parses the channel_id query parameter when present.
func optionalChannelID(c *echo.Context) (*int64, error) {
	v := c.QueryParam("channel_id")
	if v == "" {
		return nil, nil
	}
	id, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return nil, echo.NewHTTPError(http.StatusBadRequest, "invalid channel_id")
	}
	return &id, nil
}
