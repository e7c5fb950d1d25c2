package e2e

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/mediateca/vodrag/pkg/models"
)

// ────────────────────────────────────────────────────────────
// HTTP Client Helpers
// ────────────────────────────────────────────────────────────

func (app *TestApp) do(t *testing.T, method, path string, body any, expectedStatus int) []byte {
	t.Helper()

	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(context.Background(), method, app.BaseURL+path, reader)
	require.NoError(t, err)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()

	payload, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	require.Equal(t, expectedStatus, resp.StatusCode,
		"%s %s: unexpected status (body: %s)", method, path, payload)
	return payload
}

func (app *TestApp) postJSON(t *testing.T, path string, body any, expectedStatus int) map[string]any {
	t.Helper()
	return decodeMap(t, app.do(t, http.MethodPost, path, body, expectedStatus))
}

func (app *TestApp) putJSON(t *testing.T, path string, body any, expectedStatus int) map[string]any {
	t.Helper()
	return decodeMap(t, app.do(t, http.MethodPut, path, body, expectedStatus))
}

func (app *TestApp) getJSON(t *testing.T, path string, expectedStatus int) map[string]any {
	t.Helper()
	return decodeMap(t, app.do(t, http.MethodGet, path, nil, expectedStatus))
}

func (app *TestApp) getJSONArray(t *testing.T, path string, expectedStatus int) []any {
	t.Helper()
	var result []any
	require.NoError(t, json.Unmarshal(app.do(t, http.MethodGet, path, nil, expectedStatus), &result))
	return result
}

func (app *TestApp) deleteReq(t *testing.T, path string, expectedStatus int) {
	t.Helper()
	app.do(t, http.MethodDelete, path, nil, expectedStatus)
}

func decodeMap(t *testing.T, payload []byte) map[string]any {
	t.Helper()
	var result map[string]any
	require.NoError(t, json.Unmarshal(payload, &result))
	return result
}

// GetHealth calls GET /health.
func (app *TestApp) GetHealth(t *testing.T) map[string]any {
	t.Helper()
	return app.getJSON(t, "/health", http.StatusOK)
}

// ────────────────────────────────────────────────────────────
// Task Helpers
// ────────────────────────────────────────────────────────────

// EnqueuePipeline submits a pipeline task over the API and returns its ID.
func (app *TestApp) EnqueuePipeline(t *testing.T, channelURL string, maxVideos int) string {
	t.Helper()
	resp := app.postJSON(t, "/api/v1/pipeline/tasks", map[string]any{
		"task_type":   "pipeline",
		"channel_url": channelURL,
		"max_videos":  maxVideos,
	}, http.StatusOK)
	taskID, _ := resp["task_id"].(string)
	require.NotEmpty(t, taskID)
	return taskID
}

// EnqueueEmbedQuestion inserts an embed_question task directly, the way the
// ask path does, and returns its ID.
func (app *TestApp) EnqueueEmbedQuestion(t *testing.T, question string) string {
	t.Helper()
	task, err := app.Stores.Tasks.Enqueue(context.Background(),
		models.TaskTypeEmbedQuestion, models.EmbedQuestionRequest{Question: question})
	require.NoError(t, err)
	return task.ID.String()
}

// GetTask retrieves one task over the API.
func (app *TestApp) GetTask(t *testing.T, taskID string) map[string]any {
	t.Helper()
	return app.getJSON(t, "/api/v1/pipeline/tasks/"+taskID, http.StatusOK)
}

// WaitForTaskStatus polls the task endpoint until the task reaches one of
// the expected statuses, returning the final task document.
func (app *TestApp) WaitForTaskStatus(t *testing.T, taskID string, expected ...string) map[string]any {
	t.Helper()
	var task map[string]any
	var actual string
	require.Eventually(t, func() bool {
		task = app.GetTask(t, taskID)
		actual, _ = task["status"].(string)
		for _, exp := range expected {
			if actual == exp {
				return true
			}
		}
		return false
	}, 30*time.Second, 100*time.Millisecond,
		"task %s did not reach status %v (last: %s)", taskID, expected, actual)
	return task
}

// ────────────────────────────────────────────────────────────
// Ask Stream Helpers
// ────────────────────────────────────────────────────────────

// streamedEvent is one decoded line of an ndjson ask response.
type streamedEvent struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

// AskStream posts a question and returns the full decoded event sequence.
// The call blocks until the server closes the stream.
func (app *TestApp) AskStream(t *testing.T, body map[string]any) []streamedEvent {
	t.Helper()

	data, err := json.Marshal(body)
	require.NoError(t, err)
	req, err := http.NewRequestWithContext(context.Background(),
		http.MethodPost, app.BaseURL+"/api/v1/chat/ask_stream", bytes.NewReader(data))
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")

	client := &http.Client{Timeout: 60 * time.Second}
	resp, err := client.Do(req)
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()
	require.Equal(t, http.StatusOK, resp.StatusCode, "ask_stream: unexpected status")
	require.Equal(t, "application/x-ndjson", resp.Header.Get("Content-Type"))

	var events []streamedEvent
	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 0, 1024*1024), 1024*1024)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		var ev streamedEvent
		require.NoError(t, json.Unmarshal([]byte(line), &ev), "bad stream line: %s", line)
		events = append(events, ev)
	}
	require.NoError(t, scanner.Err())
	return events
}

// eventTypes lists the event types in order.
func eventTypes(events []streamedEvent) []string {
	types := make([]string, len(events))
	for i, ev := range events {
		types[i] = ev.Type
	}
	return types
}

// contentText concatenates the data of all content events.
func contentText(t *testing.T, events []streamedEvent) string {
	t.Helper()
	var sb strings.Builder
	for _, ev := range events {
		if ev.Type != "content" {
			continue
		}
		var delta string
		require.NoError(t, json.Unmarshal(ev.Data, &delta))
		sb.WriteString(delta)
	}
	return sb.String()
}

// sessionID extracts the session_id event's payload.
func sessionID(t *testing.T, events []streamedEvent) string {
	t.Helper()
	require.NotEmpty(t, events)
	require.Equal(t, "session_id", events[0].Type, "first event must carry the session id")
	var id string
	require.NoError(t, json.Unmarshal(events[0].Data, &id))
	require.NotEmpty(t, id)
	return id
}

// sourcesOf decodes the sources event, failing when it is absent.
func sourcesOf(t *testing.T, events []streamedEvent) []models.ChatSource {
	t.Helper()
	for _, ev := range events {
		if ev.Type != "sources" {
			continue
		}
		var sources []models.ChatSource
		require.NoError(t, json.Unmarshal(ev.Data, &sources))
		return sources
	}
	t.Fatal("no sources event in stream")
	return nil
}

// ────────────────────────────────────────────────────────────
// SSE Helpers
// ────────────────────────────────────────────────────────────

// sseEvent is one named server-sent event.
type sseEvent struct {
	Name string
	Data []byte
}

// SSEStream is an open subscription to /api/v1/pipeline/events.
type SSEStream struct {
	events <-chan sseEvent
	cancel context.CancelFunc
}

// OpenEvents subscribes to the pipeline event stream and waits for the
// initial connected event. Closed via t.Cleanup.
func (app *TestApp) OpenEvents(t *testing.T) *SSEStream {
	t.Helper()

	ctx, cancel := context.WithCancel(context.Background())
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, app.BaseURL+"/api/v1/pipeline/events", nil)
	require.NoError(t, err)

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	events := make(chan sseEvent, 32)
	go func() {
		defer close(events)
		defer func() { _ = resp.Body.Close() }()
		scanner := bufio.NewScanner(resp.Body)
		var name string
		for scanner.Scan() {
			line := scanner.Text()
			switch {
			case strings.HasPrefix(line, "event: "):
				name = strings.TrimPrefix(line, "event: ")
			case strings.HasPrefix(line, "data: "):
				select {
				case events <- sseEvent{Name: name, Data: []byte(strings.TrimPrefix(line, "data: "))}:
				case <-ctx.Done():
					return
				}
			}
		}
	}()

	stream := &SSEStream{events: events, cancel: cancel}
	t.Cleanup(stream.Close)

	first := stream.Next(t, 5*time.Second)
	require.Equal(t, "connected", first.Name)
	return stream
}

// Next returns the next event or fails the test after the timeout.
func (s *SSEStream) Next(t *testing.T, timeout time.Duration) sseEvent {
	t.Helper()
	select {
	case ev, ok := <-s.events:
		require.True(t, ok, "event stream closed")
		return ev
	case <-time.After(timeout):
		t.Fatal("timed out waiting for SSE event")
		return sseEvent{}
	}
}

// WaitForTaskUpdate reads events until a task_update for the given task and
// status arrives, skipping heartbeats and unrelated updates. Returns the
// decoded task payload.
func (s *SSEStream) WaitForTaskUpdate(t *testing.T, taskID, status string, timeout time.Duration) map[string]any {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for {
		remaining := time.Until(deadline)
		require.Positive(t, remaining, "timed out waiting for task_update %s/%s", taskID, status)

		ev := s.Next(t, remaining)
		if ev.Name != "task_update" {
			continue
		}
		var payload struct {
			Task map[string]any `json:"task"`
		}
		require.NoError(t, json.Unmarshal(ev.Data, &payload))
		if payload.Task["id"] == taskID && payload.Task["status"] == status {
			return payload.Task
		}
	}
}

// Close terminates the subscription.
func (s *SSEStream) Close() { s.cancel() }

// ────────────────────────────────────────────────────────────
// Database Helpers
// ────────────────────────────────────────────────────────────

// ChunkCounts returns (total, embedded, summary-embedded) chunk counts for
// one video.
func (app *TestApp) ChunkCounts(t *testing.T, videoID string) (int, int, int) {
	t.Helper()
	var total, embedded, summarized int
	err := app.DB.QueryRow(context.Background(),
		`SELECT count(*), count(embedding), count(summary_embedding)
		 FROM chunks WHERE video_id = $1`, videoID).
		Scan(&total, &embedded, &summarized)
	require.NoError(t, err)
	return total, embedded, summarized
}

// CancelTask flips a task to failed, the way an external cancel request does.
func (app *TestApp) CancelTask(t *testing.T, taskID string) {
	t.Helper()
	id, err := uuid.Parse(taskID)
	require.NoError(t, err)
	require.NoError(t, app.Stores.Tasks.Fail(context.Background(), id, "cancelled by user"))
}
