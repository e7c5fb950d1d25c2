package stt

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mediateca/vodrag/pkg/config"
)

func newTestTranscriber(server *httptest.Server) *HTTPTranscriber {
	cfg := config.DefaultSTTConfig()
	cfg.BaseURL = server.URL
	cfg.Model = "whisper-test"
	cfg.VADFilter = true
	return NewHTTPTranscriber(cfg)
}

func writeAudioFile(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "clip.wav")
	require.NoError(t, os.WriteFile(path, []byte("RIFF-fake-audio"), 0o644))
	return path
}

func TestHTTPTranscriber_Transcribe(t *testing.T) {
	t.Run("multipart form carries file and options", func(t *testing.T) {
		var gotPath string
		form := map[string]string{}
		var fileContent []byte
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			gotPath = r.URL.Path
			require.NoError(t, r.ParseMultipartForm(1<<20))
			for name, values := range r.MultipartForm.Value {
				form[name] = values[0]
			}
			file, _, err := r.FormFile("file")
			require.NoError(t, err)
			defer file.Close()
			fileContent = make([]byte, 32)
			n, _ := file.Read(fileContent)
			fileContent = fileContent[:n]

			_ = json.NewEncoder(w).Encode(map[string]any{
				"text": "hola mundo",
				"segments": []Segment{
					{Start: 0, End: 2.5, Text: "hola"},
					{Start: 2.5, End: 5, Text: "mundo"},
				},
			})
		}))
		defer server.Close()

		tr := newTestTranscriber(server)
		segments, err := tr.Transcribe(context.Background(), writeAudioFile(t), "es")
		require.NoError(t, err)

		assert.Equal(t, "/v1/audio/transcriptions", gotPath)
		assert.Equal(t, "whisper-test", form["model"])
		assert.Equal(t, "verbose_json", form["response_format"])
		assert.Equal(t, "true", form["vad_filter"])
		assert.Equal(t, "es", form["language"])
		assert.Equal(t, "RIFF-fake-audio", string(fileContent))

		require.Len(t, segments, 2)
		assert.Equal(t, Segment{Start: 0, End: 2.5, Text: "hola"}, segments[0])
	})

	t.Run("no language field when hint empty", func(t *testing.T) {
		var hasLanguage bool
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			require.NoError(t, r.ParseMultipartForm(1<<20))
			_, hasLanguage = r.MultipartForm.Value["language"]
			_ = json.NewEncoder(w).Encode(map[string]any{"text": "", "segments": []Segment{}})
		}))
		defer server.Close()

		tr := newTestTranscriber(server)
		_, err := tr.Transcribe(context.Background(), writeAudioFile(t), "")
		require.NoError(t, err)
		assert.False(t, hasLanguage, "empty hint must leave detection to the model")
	})

	t.Run("missing audio file returns error", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(_ http.ResponseWriter, _ *http.Request) {
			t.Error("no request expected")
		}))
		defer server.Close()

		tr := newTestTranscriber(server)
		_, err := tr.Transcribe(context.Background(), "/does/not/exist.wav", "")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "failed to open audio file")
	})

	t.Run("HTTP 400 returns error with body", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusBadRequest)
			_, _ = w.Write([]byte("unsupported codec"))
		}))
		defer server.Close()

		tr := newTestTranscriber(server)
		_, err := tr.Transcribe(context.Background(), writeAudioFile(t), "")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "400")
		assert.Contains(t, err.Error(), "unsupported codec")
	})

	t.Run("context cancellation", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			_ = json.NewEncoder(w).Encode(map[string]any{"text": "", "segments": []Segment{}})
		}))
		defer server.Close()

		tr := newTestTranscriber(server)
		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		_, err := tr.Transcribe(ctx, writeAudioFile(t), "")
		require.Error(t, err)
	})
}
