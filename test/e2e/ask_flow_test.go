package e2e

import (
	"net/http"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// ────────────────────────────────────────────────────────────
// Ask flow — streaming question answering over an ingested library.
//
// Each scenario ingests a small channel first, then drives the ndjson
// stream end to end: intent classification, question embedding through
// the task queue, hybrid retrieval, token streaming, and conversation
// persistence. The mock model server scripts the intent and the final
// answer so every event is predictable.
// ────────────────────────────────────────────────────────────

// ingestLibrary runs a full pipeline over the scripted channel and
// returns the registered channel ID.
func ingestLibrary(t *testing.T, app *TestApp) float64 {
	t.Helper()

	taskID := app.EnqueuePipeline(t, "https://www.youtube.com/@canaldeprueba", 5)
	app.WaitForTaskStatus(t, taskID, "completed")

	channels := app.getJSONArray(t, "/api/v1/channels", http.StatusOK)
	require.Len(t, channels, 1)
	return channels[0].(map[string]any)["id"].(float64)
}

func TestE2E_AskContentFlow(t *testing.T) {
	fetcher := NewScriptedFetcher(t, testVideos()...)
	app := NewTestApp(t, WithFetcher(fetcher))
	channelID := ingestLibrary(t, app)

	// ── First question: fresh session, grounded answer with sources ──
	question := "¿Qué se explica sobre concurrencia en estos videos?"
	events := app.AskStream(t, map[string]any{
		"question":   question,
		"channel_id": channelID,
	})

	sid := sessionID(t, events)
	types := eventTypes(events)
	require.Contains(t, types, "sources")
	require.Contains(t, types, "content")
	assert.NotContains(t, types, "error")
	assert.Less(t, indexOf(types, "sources"), indexOf(types, "content"),
		"sources must arrive before the first answer token")

	assert.Equal(t, defaultAnswerReply, contentText(t, events))

	sources := sourcesOf(t, events)
	require.NotEmpty(t, sources)
	for _, src := range sources {
		assert.Contains(t, []string{"vid-alpha", "vid-beta"}, src.VideoID)
		assert.True(t, strings.HasPrefix(src.URL, "https://www.youtube.com/watch?v="),
			"source URL %q is not a watch link", src.URL)
		assert.GreaterOrEqual(t, src.End, src.Start)
	}

	// The finished exchange is visible once the stream has ended.
	session := app.getJSON(t, "/api/v1/chat/sessions/"+sid, http.StatusOK)
	messages := session["messages"].([]any)
	require.Len(t, messages, 2)
	userMsg := messages[0].(map[string]any)
	assistantMsg := messages[1].(map[string]any)
	assert.Equal(t, "user", userMsg["role"])
	assert.Equal(t, question, userMsg["content"])
	assert.Equal(t, "assistant", assistantMsg["role"])
	assert.Equal(t, defaultAnswerReply, assistantMsg["content"])
	assert.NotEmpty(t, assistantMsg["sources"])

	// ── Follow-up on the same session: prior turns feed the prompt ──
	events2 := app.AskStream(t, map[string]any{
		"question":   "¿Y qué más se recomienda al respecto?",
		"channel_id": channelID,
		"session_id": sid,
	})
	assert.Equal(t, sid, sessionID(t, events2))
	assert.Equal(t, defaultAnswerReply, contentText(t, events2))

	prompt := app.Models.LastAnswerPrompt()
	assert.Contains(t, prompt, "Conversation so far:")
	assert.Contains(t, prompt, question, "the previous user turn must be in the follow-up prompt")

	session2 := app.getJSON(t, "/api/v1/chat/sessions/"+sid, http.StatusOK)
	assert.Len(t, session2["messages"].([]any), 4)

	// Session listing shows one conversation with both exchanges.
	sessions := app.getJSONArray(t, "/api/v1/chat/sessions", http.StatusOK)
	require.Len(t, sessions, 1)
	assert.EqualValues(t, 4, sessions[0].(map[string]any)["message_count"])
}

func TestE2E_AskMetadataFlow(t *testing.T) {
	fetcher := NewScriptedFetcher(t, testVideos()...)
	app := NewTestApp(t, WithFetcher(fetcher))
	app.Models.SetIntentReply("METADATA")

	// ── Empty library: the generated query returns no rows ──
	created := app.postJSON(t, "/api/v1/channels", map[string]any{
		"url": "https://www.youtube.com/@canaldeprueba",
	}, http.StatusCreated)
	channelID := created["id"].(float64)

	events := app.AskStream(t, map[string]any{
		"question":   "¿Cuántos videos hay en la biblioteca?",
		"channel_id": channelID,
	})
	require.Equal(t, []string{"session_id", "content"}, eventTypes(events),
		"metadata answers carry no sources")
	assert.Equal(t, "The database query returned no results.", contentText(t, events))

	// ── Populated library: rows are summarized by the model ──
	ingestLibrary(t, app)

	events = app.AskStream(t, map[string]any{
		"question":   "¿Qué videos hay en la biblioteca?",
		"channel_id": channelID,
	})
	require.Equal(t, []string{"session_id", "content"}, eventTypes(events))
	assert.Equal(t, defaultSQLSummary, contentText(t, events))

	// ── Write statements never reach the database ──
	app.Models.SetSQLReply("DROP TABLE videos")

	events = app.AskStream(t, map[string]any{
		"question":   "Borra todos los videos",
		"channel_id": channelID,
	})
	assert.Equal(t, "I can only perform read operations (SELECT).", contentText(t, events))

	videos := app.getJSONArray(t, "/api/v1/videos", http.StatusOK)
	assert.Len(t, videos, 2, "the library must be intact")
}

func TestE2E_AskGlobalFlow(t *testing.T) {
	fetcher := NewScriptedFetcher(t, testVideos()...)
	app := NewTestApp(t, WithFetcher(fetcher))
	channelID := ingestLibrary(t, app)
	app.Models.SetIntentReply("CONTENT_GLOBAL")

	events := app.AskStream(t, map[string]any{
		"question":   "Dame los puntos principales de estos videos",
		"channel_id": channelID,
	})

	sessionID(t, events)
	types := eventTypes(events)
	require.Contains(t, types, "sources")
	assert.Less(t, indexOf(types, "sources"), indexOf(types, "content"))
	assert.Equal(t, defaultAnswerReply, contentText(t, events))

	// Global answers cite the summarized chunks of every scoped video.
	sources := sourcesOf(t, events)
	require.NotEmpty(t, sources)
	seen := map[string]bool{}
	for _, src := range sources {
		seen[src.VideoID] = true
	}
	assert.True(t, seen["vid-alpha"])
	assert.True(t, seen["vid-beta"])
}

func TestE2E_AskEmptyScope(t *testing.T) {
	app := NewTestApp(t)

	// A channel with no processed videos yields the fixed no-results answer.
	created := app.postJSON(t, "/api/v1/channels", map[string]any{
		"url": "https://www.youtube.com/@canalvacio",
	}, http.StatusCreated)

	events := app.AskStream(t, map[string]any{
		"question":   "¿De qué trata este canal?",
		"channel_id": created["id"].(float64),
	})
	require.Equal(t, []string{"session_id", "content"}, eventTypes(events))
	assert.Equal(t, "I couldn't find any relevant information in the selected videos.",
		contentText(t, events))
}

func TestE2E_AskValidation(t *testing.T) {
	app := NewTestApp(t)

	// Validation failures surface as plain HTTP errors, never as streams.
	app.postJSON(t, "/api/v1/chat/ask_stream", map[string]any{
		"question":   "",
		"channel_id": 1,
	}, http.StatusBadRequest)

	app.postJSON(t, "/api/v1/chat/ask_stream", map[string]any{
		"question": "hola",
	}, http.StatusBadRequest)
}

// indexOf returns the position of the first occurrence of v, or -1.
func indexOf(items []string, v string) int {
	for i, item := range items {
		if item == v {
			return i
		}
	}
	return -1
}
