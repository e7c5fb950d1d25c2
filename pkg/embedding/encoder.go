// Package embedding turns text into fixed-size vectors via an
// OpenAI-compatible embeddings endpoint. Vectors are L2-normalized
// before they are returned so that L2 distance in the database behaves
// like cosine distance.
package embedding

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/mediateca/vodrag/pkg/config"
	"github.com/mediateca/vodrag/pkg/metrics"
)

// Encoder produces one embedding vector per input text, in input order.
type Encoder interface {
	Encode(ctx context.Context, texts []string) ([][]float32, error)
}

// HTTPEncoder calls an OpenAI-compatible /embeddings endpoint.
type HTTPEncoder struct {
	baseURL    string
	model      string
	apiKey     string
	dimensions int
	timeout    time.Duration
	client     *http.Client
}

var _ Encoder = (*HTTPEncoder)(nil)

// NewHTTPEncoder creates an encoder from config.
func NewHTTPEncoder(cfg *config.EmbeddingConfig) *HTTPEncoder {
	return &HTTPEncoder{
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		model:      cfg.Model,
		apiKey:     cfg.APIKey,
		dimensions: cfg.Dimensions,
		timeout:    cfg.Timeout,
		client:     &http.Client{},
	}
}

type embeddingRequest struct {
	Model string   `json:"model"`
	Input []string `json:"input"`
}

type embeddingResponse struct {
	Data []struct {
		Index     int       `json:"index"`
		Embedding []float32 `json:"embedding"`
	} `json:"data"`
}

// Encode embeds all texts in a single request and returns the vectors in
// input order, each L2-normalized.
func (e *HTTPEncoder) Encode(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	ctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	start := time.Now()
	vectors, err := e.encode(ctx, texts)
	if err != nil {
		metrics.RecordModelRequest("embeddings", "error", time.Since(start))
		return nil, err
	}
	metrics.RecordModelRequest("embeddings", "success", time.Since(start))
	return vectors, nil
}

func (e *HTTPEncoder) encode(ctx context.Context, texts []string) ([][]float32, error) {
	payload, err := json.Marshal(embeddingRequest{Model: e.model, Input: texts})
	if err != nil {
		return nil, fmt.Errorf("failed to encode embeddings request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.baseURL+"/embeddings", bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("failed to create embeddings request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if e.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+e.apiKey)
	}

	resp, err := e.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("embeddings request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, fmt.Errorf("embeddings API returned %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var parsed embeddingResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("failed to decode embeddings response: %w", err)
	}
	if len(parsed.Data) != len(texts) {
		return nil, fmt.Errorf("embeddings API returned %d vectors for %d inputs", len(parsed.Data), len(texts))
	}

	// The API may return data out of order; index is authoritative.
	sort.Slice(parsed.Data, func(i, j int) bool { return parsed.Data[i].Index < parsed.Data[j].Index })

	vectors := make([][]float32, len(parsed.Data))
	for i, d := range parsed.Data {
		if e.dimensions > 0 && len(d.Embedding) != e.dimensions {
			return nil, fmt.Errorf("embeddings API returned %d dimensions, expected %d", len(d.Embedding), e.dimensions)
		}
		vectors[i] = normalize(d.Embedding)
	}
	return vectors, nil
}

// normalize scales v to unit L2 norm in place. Zero vectors pass through
// unchanged.
func normalize(v []float32) []float32 {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	if sum == 0 {
		return v
	}
	norm := float32(math.Sqrt(sum))
	for i := range v {
		v[i] /= norm
	}
	return v
}
