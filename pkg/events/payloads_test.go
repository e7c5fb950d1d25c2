package events

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mediateca/vodrag/pkg/models"
)

func TestNewTaskUpdate(t *testing.T) {
	errMsg := "yt-dlp exited with status 1"
	completed := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	task := models.Task{
		ID:           uuid.New(),
		Type:         models.TaskTypePipeline,
		Status:       models.TaskStatusFailed,
		Progress:     40,
		ErrorMessage: &errMsg,
		CompletedAt:  &completed,
	}

	payload := NewTaskUpdate(task)
	assert.Equal(t, SSEEventTaskUpdate, payload.Type)
	assert.Equal(t, task.ID, payload.Task.ID)
	assert.Equal(t, "pipeline", payload.Task.TaskType)
	assert.Equal(t, "failed", payload.Task.Status)
	assert.Equal(t, 40, payload.Task.Progress)
	require.NotNil(t, payload.Task.ErrorMessage)
	assert.Equal(t, errMsg, *payload.Task.ErrorMessage)
	assert.Nil(t, payload.Task.Result)
	assert.Equal(t, &completed, payload.Task.CompletedAt)
}

func TestTaskUpdateJSONShape(t *testing.T) {
	task := models.Task{
		ID:     uuid.MustParse("5e5342cc-50a0-4d0a-9f3e-000000000000"),
		Type:   models.TaskTypePipeline,
		Status: models.TaskStatusCompleted,
	}

	data, err := json.Marshal(NewTaskUpdate(task))
	require.NoError(t, err)

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Equal(t, "task_update", decoded["type"])

	inner, ok := decoded["task"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "completed", inner["status"])
	// Null fields stay present so clients see a stable shape.
	assert.Contains(t, inner, "error_message")
	assert.Contains(t, inner, "result")
}
