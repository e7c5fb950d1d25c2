package llm

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/mediateca/vodrag/pkg/config"
	"github.com/mediateca/vodrag/pkg/metrics"
)

// OpenAIClient talks to any OpenAI-compatible chat completions API
// (OpenAI, OpenRouter, Groq, Ollama, vLLM, LM Studio, ...).
type OpenAIClient struct {
	baseURL     string
	model       string
	apiKey      string
	temperature float64
	timeout     time.Duration
	client      *http.Client
}

var _ Client = (*OpenAIClient)(nil)

// NewOpenAIClient creates a chat client from config. The /chat/completions
// path is appended to the base URL automatically.
func NewOpenAIClient(cfg *config.LLMConfig) *OpenAIClient {
	return &OpenAIClient{
		baseURL:     strings.TrimRight(cfg.BaseURL, "/"),
		model:       cfg.Model,
		apiKey:      cfg.APIKey,
		temperature: cfg.Temperature,
		timeout:     cfg.Timeout,
		client:      &http.Client{},
	}
}

// chatRequest is the wire shape of a chat completions request.
type chatRequest struct {
	Model       string    `json:"model"`
	Messages    []Message `json:"messages"`
	Temperature float64   `json:"temperature"`
	Stream      bool      `json:"stream,omitempty"`
}

// chatResponse is the wire shape of both full responses and stream chunks.
type chatResponse struct {
	Choices []struct {
		Message *Message `json:"message"`
		Delta   *Message `json:"delta"`
	} `json:"choices"`
}

// Generate returns the complete response for the conversation.
func (c *OpenAIClient) Generate(ctx context.Context, messages []Message) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	start := time.Now()
	resp, err := c.send(ctx, chatRequest{
		Model:       c.model,
		Messages:    withSystemDefault(messages),
		Temperature: c.temperature,
	})
	if err != nil {
		metrics.RecordModelRequest("chat", "error", time.Since(start))
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		metrics.RecordModelRequest("chat", "error", time.Since(start))
		return "", httpError(resp)
	}

	var parsed chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		metrics.RecordModelRequest("chat", "error", time.Since(start))
		return "", fmt.Errorf("failed to decode chat response: %w", err)
	}
	if len(parsed.Choices) == 0 || parsed.Choices[0].Message == nil {
		metrics.RecordModelRequest("chat", "error", time.Since(start))
		return "", fmt.Errorf("chat response contained no choices")
	}

	metrics.RecordModelRequest("chat", "success", time.Since(start))
	return parsed.Choices[0].Message.Content, nil
}

// Stream sends response deltas to ch as they arrive and returns the full
// accumulated text. ch is closed when streaming completes or on error.
//
// SSE format expected:
//
//	data: {"id":"...","choices":[...]}\n
//	data: [DONE]\n
func (c *OpenAIClient) Stream(ctx context.Context, messages []Message, ch chan<- string) (string, error) {
	start := time.Now()
	resp, err := c.send(ctx, chatRequest{
		Model:       c.model,
		Messages:    withSystemDefault(messages),
		Temperature: c.temperature,
		Stream:      true,
	})
	if err != nil {
		close(ch)
		metrics.RecordModelRequest("chat_stream", "error", time.Since(start))
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		close(ch)
		metrics.RecordModelRequest("chat_stream", "error", time.Since(start))
		return "", httpError(resp)
	}

	full, err := c.readSSE(ctx, resp.Body, ch)
	if err != nil {
		metrics.RecordModelRequest("chat_stream", "error", time.Since(start))
		return full, err
	}
	metrics.RecordModelRequest("chat_stream", "success", time.Since(start))
	return full, nil
}

// readSSE reads an SSE stream, sends content deltas to ch, and returns the
// accumulated text. It closes ch when done.
func (c *OpenAIClient) readSSE(ctx context.Context, body io.Reader, ch chan<- string) (string, error) {
	defer close(ch)

	scanner := bufio.NewScanner(body)
	// Increase buffer for large SSE payloads.
	scanner.Buffer(make([]byte, 0, 1024*1024), 1024*1024)

	var full strings.Builder
	for scanner.Scan() {
		line := scanner.Text()
		if !strings.HasPrefix(line, "data: ") {
			continue
		}
		data := strings.TrimPrefix(line, "data: ")

		// End-of-stream sentinel.
		if data == "[DONE]" {
			break
		}

		var chunk chatResponse
		if err := json.Unmarshal([]byte(data), &chunk); err != nil {
			// Skip malformed chunks.
			continue
		}
		if len(chunk.Choices) == 0 || chunk.Choices[0].Delta == nil {
			continue
		}

		delta := chunk.Choices[0].Delta.Content
		if delta == "" {
			continue
		}
		full.WriteString(delta)

		select {
		case ch <- delta:
		case <-ctx.Done():
			return full.String(), ctx.Err()
		}
	}
	if err := scanner.Err(); err != nil {
		return full.String(), fmt.Errorf("failed to read chat stream: %w", err)
	}
	return full.String(), nil
}

func (c *OpenAIClient) send(ctx context.Context, body chatRequest) (*http.Response, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("failed to encode chat request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/chat/completions", bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("failed to create chat request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("chat request failed: %w", err)
	}
	return resp, nil
}

// withSystemDefault prepends the default system prompt when the conversation
// has no system message.
func withSystemDefault(messages []Message) []Message {
	for _, m := range messages {
		if m.Role == RoleSystem {
			return messages
		}
	}
	out := make([]Message, 0, len(messages)+1)
	out = append(out, System(DefaultSystemPrompt))
	return append(out, messages...)
}

func httpError(resp *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	return fmt.Errorf("chat API returned %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
}
