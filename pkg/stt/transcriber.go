// Package stt transcribes audio files through an OpenAI-compatible
// transcription endpoint (faster-whisper-server, speaches, or the
// hosted OpenAI API).
package stt

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/mediateca/vodrag/pkg/config"
	"github.com/mediateca/vodrag/pkg/metrics"
)

// Segment is one timed span of transcribed speech.
type Segment struct {
	Start float64 `json:"start"`
	End   float64 `json:"end"`
	Text  string  `json:"text"`
}

// Transcriber converts an audio file into timed segments. The language
// hint may be empty, in which case the model detects it.
type Transcriber interface {
	Transcribe(ctx context.Context, audioPath, language string) ([]Segment, error)
}

// HTTPTranscriber posts audio to a /v1/audio/transcriptions endpoint and
// requests verbose_json so segment timestamps come back.
type HTTPTranscriber struct {
	baseURL   string
	model     string
	vadFilter bool
	timeout   time.Duration
	client    *http.Client
}

var _ Transcriber = (*HTTPTranscriber)(nil)

// NewHTTPTranscriber creates a transcriber from config.
func NewHTTPTranscriber(cfg *config.STTConfig) *HTTPTranscriber {
	return &HTTPTranscriber{
		baseURL:   strings.TrimRight(cfg.BaseURL, "/"),
		model:     cfg.Model,
		vadFilter: cfg.VADFilter,
		timeout:   cfg.Timeout,
		client:    &http.Client{},
	}
}

type transcriptionResponse struct {
	Text     string    `json:"text"`
	Segments []Segment `json:"segments"`
}

// Transcribe uploads the file and returns its segments in order.
func (t *HTTPTranscriber) Transcribe(ctx context.Context, audioPath, language string) ([]Segment, error) {
	ctx, cancel := context.WithTimeout(ctx, t.timeout)
	defer cancel()

	start := time.Now()
	segments, err := t.transcribe(ctx, audioPath, language)
	if err != nil {
		metrics.RecordModelRequest("transcription", "error", time.Since(start))
		return nil, err
	}
	metrics.RecordModelRequest("transcription", "success", time.Since(start))
	return segments, nil
}

func (t *HTTPTranscriber) transcribe(ctx context.Context, audioPath, language string) ([]Segment, error) {
	file, err := os.Open(audioPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open audio file: %w", err)
	}
	defer file.Close()

	// Stream the multipart body through a pipe so large audio files are
	// never buffered whole in memory.
	pr, pw := io.Pipe()
	writer := multipart.NewWriter(pw)
	go func() {
		err := t.writeForm(writer, file, audioPath, language)
		if cerr := writer.Close(); err == nil {
			err = cerr
		}
		pw.CloseWithError(err)
	}()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.baseURL+"/v1/audio/transcriptions", pr)
	if err != nil {
		return nil, fmt.Errorf("failed to create transcription request: %w", err)
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())

	resp, err := t.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("transcription request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, fmt.Errorf("transcription API returned %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var parsed transcriptionResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("failed to decode transcription response: %w", err)
	}
	return parsed.Segments, nil
}

func (t *HTTPTranscriber) writeForm(writer *multipart.Writer, file io.Reader, audioPath, language string) error {
	part, err := writer.CreateFormFile("file", filepath.Base(audioPath))
	if err != nil {
		return fmt.Errorf("failed to create form file: %w", err)
	}
	if _, err := io.Copy(part, file); err != nil {
		return fmt.Errorf("failed to copy audio into request: %w", err)
	}

	fields := map[string]string{
		"model":           t.model,
		"response_format": "verbose_json",
		"vad_filter":      strconv.FormatBool(t.vadFilter),
	}
	if language != "" {
		fields["language"] = language
	}
	for name, value := range fields {
		if err := writer.WriteField(name, value); err != nil {
			return fmt.Errorf("failed to write form field %s: %w", name, err)
		}
	}
	return nil
}
