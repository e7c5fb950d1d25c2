package api

import (
	"net/http"

	"github.com/google/uuid"
	echo "github.com/labstack/echo/v5"

	"github.com/mediateca/vodrag/pkg/models"
)

// pipelineStatsHandler handles GET /api/v1/pipeline/stats.
func (s *Server) pipelineStatsHandler(c *echo.Context) error {
	stats, err := s.taskService.PipelineStats(c.Request().Context())
	if err != nil {
		return mapServiceError(err)
	}

	return c.JSON(http.StatusOK, stats)
}

// listTasksHandler handles GET /api/v1/pipeline/tasks.
func (s *Server) listTasksHandler(c *echo.Context) error {
	var status *models.TaskStatus
	if v := c.QueryParam("status"); v != "" {
		st := models.TaskStatus(v)
		status = &st
	}
	page := intQueryParam(c, "page", 1)
	pageSize := intQueryParam(c, "page_size", 0)

	tasks, err := s.taskService.List(c.Request().Context(), status, page, pageSize)
	if err != nil {
		return mapServiceError(err)
	}

	return c.JSON(http.StatusOK, tasks)
}

// createTaskHandler handles POST /api/v1/pipeline/tasks. Only pipeline tasks
// are accepted here; embed_question tasks are enqueued internally by the
// chat path.
func (s *Server) createTaskHandler(c *echo.Context) error {
	var req CreateTaskRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}

	download := true
	if req.Download != nil {
		download = *req.Download
	}

	task, err := s.taskService.EnqueuePipeline(c.Request().Context(), req.TaskType, models.PipelineRequest{
		ChannelURL: req.ChannelURL,
		MaxVideos:  req.MaxVideos,
		Language:   req.Language,
		Download:   download,
	})
	if err != nil {
		return mapServiceError(err)
	}

	return c.JSON(http.StatusOK, &TaskSubmitResponse{
		TaskID: task.ID,
		Status: task.Status,
	})
}

// getTaskHandler handles GET /api/v1/pipeline/tasks/:id.
func (s *Server) getTaskHandler(c *echo.Context) error {
	id, err := taskIDParam(c)
	if err != nil {
		return err
	}

	task, err := s.taskService.Get(c.Request().Context(), id)
	if err != nil {
		return mapServiceError(err)
	}

	return c.JSON(http.StatusOK, task)
}

// deleteTaskHandler handles DELETE /api/v1/pipeline/tasks/:id.
func (s *Server) deleteTaskHandler(c *echo.Context) error {
	id, err := taskIDParam(c)
	if err != nil {
		return err
	}

	if err := s.taskService.Delete(c.Request().Context(), id); err != nil {
		return mapServiceError(err)
	}

	return c.NoContent(http.StatusNoContent)
}

func taskIDParam(c *echo.Context) (uuid.UUID, error) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return uuid.Nil, echo.NewHTTPError(http.StatusBadRequest, "invalid task id")
	}
	return id, nil
}
