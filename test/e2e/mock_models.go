package e2e

import (
	"encoding/json"
	"fmt"
	"hash/fnv"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/mediateca/vodrag/pkg/stt"
)

// Default scripted replies. Tests override them per scenario.
const (
	defaultIntentReply  = "CONTENT"
	defaultSQLReply     = "SELECT title FROM videos ORDER BY title"
	defaultSQLSummary   = "La biblioteca contiene los videos listados."
	defaultChunkSummary = "El fragmento explica un tema tratado en el video."
	defaultAnswerReply  = "Según los videos seleccionados, la respuesta es esta."
)

// Chat prompts are routed by the fixed marker each caller embeds, so one
// server answers intent classification, SQL generation, SQL summarization,
// chunk summaries, and answer synthesis within a single scenario.
const (
	markerIntent     = "Classify the following user question"
	markerSummary    = "Summarize the following video transcript fragment"
	markerSQL        = "You are a SQL expert"
	markerSQLResults = "Database Results:"
)

// ModelServer fakes the three OpenAI-compatible model services behind one
// httptest server: chat completions, embeddings, and audio transcription.
// The real HTTP clients are pointed at it, so the full wire path — request
// encoding, SSE streaming, multipart upload, vector decoding — is exercised.
type ModelServer struct {
	srv        *httptest.Server
	dimensions int

	mu sync.Mutex

	intentReply     string
	sqlReply        string
	sqlSummaryReply string
	summaryReply    string
	answerReply     string

	// Transcript returned for every transcription call.
	segments []stt.Segment

	// Optional transcription gate: onTranscribe is signalled when a call
	// arrives, then the handler blocks until release is closed.
	onTranscribe chan<- struct{}
	release      <-chan struct{}

	chatCalls          int
	embeddingCalls     int
	embeddedTexts      int
	transcriptionCalls int
	answerPrompts      []string
}

// NewModelServer starts the mock model server. It is shut down via t.Cleanup.
func NewModelServer(t *testing.T) *ModelServer {
	t.Helper()

	m := &ModelServer{
		dimensions:      384,
		intentReply:     defaultIntentReply,
		sqlReply:        defaultSQLReply,
		sqlSummaryReply: defaultSQLSummary,
		summaryReply:    defaultChunkSummary,
		answerReply:     defaultAnswerReply,
		segments: []stt.Segment{
			{Start: 0, End: 12.5, Text: "Hola y bienvenidos a este video sobre programación."},
			{Start: 12.5, End: 27.0, Text: "Hoy hablamos de concurrencia y de cómo usarla bien."},
			{Start: 27.0, End: 41.8, Text: "Primero repasamos los conceptos básicos del modelo."},
			{Start: 41.8, End: 55.0, Text: "Y al final veremos un ejemplo completo en producción."},
		},
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/v1/chat/completions", m.handleChat)
	mux.HandleFunc("/v1/embeddings", m.handleEmbeddings)
	mux.HandleFunc("/v1/audio/transcriptions", m.handleTranscription)

	m.srv = httptest.NewServer(mux)
	t.Cleanup(m.srv.Close)
	return m
}

// URL is the server's base address, without any path.
func (m *ModelServer) URL() string { return m.srv.URL }

// SetIntentReply scripts the intent classification reply.
func (m *ModelServer) SetIntentReply(s string) { m.set(&m.intentReply, s) }

// SetSQLReply scripts the generated SQL query.
func (m *ModelServer) SetSQLReply(s string) { m.set(&m.sqlReply, s) }

// SetSQLSummaryReply scripts the answer built from database results.
func (m *ModelServer) SetSQLSummaryReply(s string) { m.set(&m.sqlSummaryReply, s) }

// SetAnswerReply scripts the synthesized answer. Streaming calls deliver it
// split into several deltas.
func (m *ModelServer) SetAnswerReply(s string) { m.set(&m.answerReply, s) }

// SetSegments scripts the transcript returned for every transcription call.
func (m *ModelServer) SetSegments(segments []stt.Segment) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.segments = segments
}

// GateTranscription makes every transcription call signal onTranscribe and
// then block until release is closed. Pass a buffered onTranscribe channel.
func (m *ModelServer) GateTranscription(onTranscribe chan<- struct{}, release <-chan struct{}) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onTranscribe = onTranscribe
	m.release = release
}

// ChatCalls returns the number of chat completion calls, streamed included.
func (m *ModelServer) ChatCalls() int { return m.count(&m.chatCalls) }

// EmbeddingCalls returns the number of embeddings calls.
func (m *ModelServer) EmbeddingCalls() int { return m.count(&m.embeddingCalls) }

// EmbeddedTexts returns the total number of texts across all embeddings calls.
func (m *ModelServer) EmbeddedTexts() int { return m.count(&m.embeddedTexts) }

// TranscriptionCalls returns the number of transcription calls.
func (m *ModelServer) TranscriptionCalls() int { return m.count(&m.transcriptionCalls) }

// LastAnswerPrompt returns the most recent prompt routed to answer synthesis,
// or "" when none arrived yet.
func (m *ModelServer) LastAnswerPrompt() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.answerPrompts) == 0 {
		return ""
	}
	return m.answerPrompts[len(m.answerPrompts)-1]
}

func (m *ModelServer) set(field *string, value string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	*field = value
}

func (m *ModelServer) count(field *int) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return *field
}

type mockChatRequest struct {
	Messages []struct {
		Role    string `json:"role"`
		Content string `json:"content"`
	} `json:"messages"`
	Stream bool `json:"stream"`
}

func (m *ModelServer) handleChat(w http.ResponseWriter, r *http.Request) {
	var req mockChatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "bad chat request", http.StatusBadRequest)
		return
	}

	var prompt strings.Builder
	for _, msg := range req.Messages {
		prompt.WriteString(msg.Content)
		prompt.WriteString("\n")
	}
	text := prompt.String()

	m.mu.Lock()
	m.chatCalls++
	var reply string
	switch {
	case strings.Contains(text, markerIntent):
		reply = m.intentReply
	case strings.Contains(text, markerSummary):
		reply = m.summaryReply
	case strings.Contains(text, markerSQL):
		reply = m.sqlReply
	case strings.Contains(text, markerSQLResults):
		reply = m.sqlSummaryReply
	default:
		reply = m.answerReply
		m.answerPrompts = append(m.answerPrompts, text)
	}
	m.mu.Unlock()

	if req.Stream {
		m.streamChat(w, reply)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{
		"choices": []map[string]any{
			{"message": map[string]string{"role": "assistant", "content": reply}},
		},
	})
}

// streamChat writes the reply as SSE deltas, one word per chunk, terminated
// by the [DONE] sentinel.
func (m *ModelServer) streamChat(w http.ResponseWriter, reply string) {
	w.Header().Set("Content-Type", "text/event-stream")
	flusher, _ := w.(http.Flusher)

	for _, delta := range strings.SplitAfter(reply, " ") {
		if delta == "" {
			continue
		}
		chunk, _ := json.Marshal(map[string]any{
			"choices": []map[string]any{
				{"delta": map[string]string{"content": delta}},
			},
		})
		fmt.Fprintf(w, "data: %s\n\n", chunk)
		if flusher != nil {
			flusher.Flush()
		}
	}
	fmt.Fprint(w, "data: [DONE]\n\n")
	if flusher != nil {
		flusher.Flush()
	}
}

func (m *ModelServer) handleEmbeddings(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Input []string `json:"input"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "bad embeddings request", http.StatusBadRequest)
		return
	}

	m.mu.Lock()
	m.embeddingCalls++
	m.embeddedTexts += len(req.Input)
	dims := m.dimensions
	m.mu.Unlock()

	data := make([]map[string]any, len(req.Input))
	for i, text := range req.Input {
		data[i] = map[string]any{"index": i, "embedding": deterministicVector(text, dims)}
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{"data": data})
}

func (m *ModelServer) handleTranscription(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(32 << 20); err != nil {
		http.Error(w, "bad multipart request", http.StatusBadRequest)
		return
	}

	m.mu.Lock()
	m.transcriptionCalls++
	onTranscribe := m.onTranscribe
	release := m.release
	segments := make([]stt.Segment, len(m.segments))
	copy(segments, m.segments)
	m.mu.Unlock()

	if onTranscribe != nil {
		onTranscribe <- struct{}{}
	}
	if release != nil {
		select {
		case <-release:
		case <-r.Context().Done():
			return
		}
	}

	texts := make([]string, len(segments))
	for i, s := range segments {
		texts[i] = s.Text
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{
		"text":     strings.Join(texts, " "),
		"segments": segments,
	})
}

// deterministicVector derives a stable pseudo-random vector from the text, so
// equal inputs always embed to equal vectors. Normalization happens in the
// encoder client, as it would against a real model.
func deterministicVector(text string, dims int) []float32 {
	h := fnv.New64a()
	_, _ = h.Write([]byte(text))
	state := h.Sum64() | 1

	v := make([]float32, dims)
	for i := range v {
		// xorshift64
		state ^= state << 13
		state ^= state >> 7
		state ^= state << 17
		v[i] = float32(state%1000) / 1000.0
	}
	return v
}
