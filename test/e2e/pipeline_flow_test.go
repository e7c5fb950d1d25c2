package e2e

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mediateca/vodrag/pkg/media"
)

// ────────────────────────────────────────────────────────────
// Pipeline flow — full ingest → transcribe → chunk → embed run.
//
// A scripted channel listing with two videos goes through the worker:
// audio is "downloaded" (stub files), the mock STT returns a fixed
// transcript, the chunker packs it, each chunk gets a mock summary,
// and both text and summary vectors land in the database. Assertions
// cover the task document, the library endpoints, the stats rollup,
// and the external call counts. A second run of the same channel must
// be a no-op.
// ────────────────────────────────────────────────────────────

func testVideos() []media.VideoMeta {
	published := time.Date(2026, 5, 12, 10, 0, 0, 0, time.UTC)
	return []media.VideoMeta{
		{
			ID:          "vid-alpha",
			Title:       "Concurrencia explicada paso a paso",
			Description: "Canales, bloqueos y patrones de diseño.",
			Duration:    610,
			PublishedAt: &published,
		},
		{
			ID:          "vid-beta",
			Title:       "Del prototipo a producción",
			Description: "Cómo desplegar sin sorpresas.",
			Duration:    545,
			PublishedAt: &published,
		},
	}
}

func TestE2E_PipelineFlow(t *testing.T) {
	fetcher := NewScriptedFetcher(t, testVideos()...)
	app := NewTestApp(t, WithFetcher(fetcher))

	health := app.GetHealth(t)
	assert.Equal(t, "healthy", health["status"])

	// ── First run: everything is new ──
	taskID := app.EnqueuePipeline(t, "https://www.youtube.com/@canaldeprueba", 5)
	task := app.WaitForTaskStatus(t, taskID, "completed")

	assert.EqualValues(t, 100, task["progress"])
	assert.Nil(t, task["result"], "a fully successful run carries no result note")
	assert.Nil(t, task["error_message"])
	assert.NotEmpty(t, task["completed_at"])

	// Channel registered under the handle from the URL.
	channels := app.getJSONArray(t, "/api/v1/channels", http.StatusOK)
	require.Len(t, channels, 1)
	channel := channels[0].(map[string]any)
	assert.Equal(t, "canaldeprueba", channel["name"])
	assert.Equal(t, "https://www.youtube.com/@canaldeprueba", channel["url"])

	// Both videos downloaded and transcribed.
	videos := app.getJSONArray(t, "/api/v1/videos", http.StatusOK)
	require.Len(t, videos, 2)
	for _, raw := range videos {
		v := raw.(map[string]any)
		assert.Equal(t, true, v["downloaded"], "video %s", v["video_id"])
		assert.Equal(t, true, v["transcribed"], "video %s", v["video_id"])
		assert.NotEmpty(t, v["audio_path"])
	}

	// Transcript segments stored in order.
	segments, err := app.Stores.Videos.Segments(context.Background(), "vid-alpha")
	require.NoError(t, err)
	require.Len(t, segments, 4)
	assert.Equal(t, 0.0, segments[0].StartTime)
	assert.Contains(t, segments[1].Text, "concurrencia")

	// Every chunk of both videos has a text vector and a summary vector.
	totalChunks := 0
	for _, videoID := range []string{"vid-alpha", "vid-beta"} {
		total, embedded, summarized := app.ChunkCounts(t, videoID)
		require.Positive(t, total, "video %s has no chunks", videoID)
		assert.Equal(t, total, embedded, "video %s", videoID)
		assert.Equal(t, total, summarized, "video %s", videoID)
		totalChunks += total
	}

	// Stats rollup matches what the run produced.
	stats := app.getJSON(t, "/api/v1/pipeline/stats", http.StatusOK)
	assert.EqualValues(t, 1, stats["total_channels"])
	assert.EqualValues(t, 2, stats["total_videos"])
	assert.EqualValues(t, 2, stats["videos_downloaded"])
	assert.EqualValues(t, 2, stats["videos_transcribed"])
	assert.EqualValues(t, totalChunks, stats["total_chunks"])
	assert.EqualValues(t, totalChunks, stats["chunks_embedded"])

	// Nothing left pending.
	assert.Empty(t, app.getJSONArray(t, "/api/v1/videos/pending/download", http.StatusOK))
	assert.Empty(t, app.getJSONArray(t, "/api/v1/videos/pending/transcription", http.StatusOK))

	// External call counts: one listing, one download and one transcription
	// per video, one summary per chunk.
	assert.Equal(t, 1, fetcher.ListCalls())
	assert.Equal(t, 2, fetcher.DownloadCalls())
	assert.Equal(t, 2, app.Models.TranscriptionCalls())
	assert.Equal(t, totalChunks, app.Models.ChatCalls())

	// ── Second run: same channel, no new videos ──
	taskID2 := app.EnqueuePipeline(t, "https://www.youtube.com/@canaldeprueba", 5)
	task2 := app.WaitForTaskStatus(t, taskID2, "completed")
	assert.Nil(t, task2["result"])

	assert.Equal(t, 2, fetcher.ListCalls())
	assert.Equal(t, 2, fetcher.DownloadCalls(), "no re-download on a repeat run")
	assert.Equal(t, 2, app.Models.TranscriptionCalls(), "no re-transcription on a repeat run")

	statsAfter := app.getJSON(t, "/api/v1/pipeline/stats", http.StatusOK)
	assert.Equal(t, stats, statsAfter, "repeat run must not change the library")
}

func TestE2E_PipelinePartialFailure(t *testing.T) {
	fetcher := NewScriptedFetcher(t, testVideos()...)
	fetcher.FailDownload("vid-beta")
	app := NewTestApp(t, WithFetcher(fetcher))

	taskID := app.EnqueuePipeline(t, "https://www.youtube.com/@canaldeprueba", 5)
	task := app.WaitForTaskStatus(t, taskID, "completed")

	// One of two videos made it; the task completes with a shortfall note.
	assert.Equal(t, "1/2 processed", task["error_message"])
	assert.Nil(t, task["result"])
	assert.EqualValues(t, 100, task["progress"])

	total, embedded, _ := app.ChunkCounts(t, "vid-alpha")
	assert.Positive(t, total)
	assert.Equal(t, total, embedded)

	betaChunks, _, _ := app.ChunkCounts(t, "vid-beta")
	assert.Zero(t, betaChunks, "failed video must not produce chunks")

	// The failed video stays visible as pending download for a later run.
	pending := app.getJSONArray(t, "/api/v1/videos/pending/download", http.StatusOK)
	require.Len(t, pending, 1)
	assert.Equal(t, "vid-beta", pending[0].(map[string]any)["video_id"])
}

func TestE2E_PipelineAllVideosFail(t *testing.T) {
	fetcher := NewScriptedFetcher(t, testVideos()[:1]...)
	fetcher.FailDownload("vid-alpha")
	app := NewTestApp(t, WithFetcher(fetcher))

	taskID := app.EnqueuePipeline(t, "https://www.youtube.com/@canaldeprueba", 5)
	task := app.WaitForTaskStatus(t, taskID, "failed")

	assert.Equal(t, "all videos failed to process", task["error_message"])
}

func TestE2E_TaskValidation(t *testing.T) {
	app := NewTestApp(t)

	// Wrong task type.
	app.postJSON(t, "/api/v1/pipeline/tasks", map[string]any{
		"task_type":   "embed_question",
		"channel_url": "https://www.youtube.com/@canaldeprueba",
	}, http.StatusBadRequest)

	// Missing channel URL.
	app.postJSON(t, "/api/v1/pipeline/tasks", map[string]any{
		"task_type": "pipeline",
	}, http.StatusBadRequest)

	// Unknown task ID.
	app.getJSON(t, "/api/v1/pipeline/tasks/00000000-0000-0000-0000-000000000000", http.StatusNotFound)
}

func TestE2E_EmbedQuestionRequiresText(t *testing.T) {
	app := NewTestApp(t)

	// A blank question fails at execution time, not at enqueue.
	taskID := app.EnqueueEmbedQuestion(t, "   ")
	task := app.WaitForTaskStatus(t, taskID, "failed")
	assert.Equal(t, "question_to_embed is required", task["error_message"])
}
