package embedding

import (
	"context"
	"encoding/json"
	"math"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mediateca/vodrag/pkg/config"
)

func newTestEncoder(server *httptest.Server, dims int) *HTTPEncoder {
	cfg := config.DefaultEmbeddingConfig()
	cfg.BaseURL = server.URL + "/v1"
	cfg.Model = "test-embedder"
	cfg.Dimensions = dims
	return NewHTTPEncoder(cfg)
}

func embeddingsPayload(items ...map[string]any) map[string]any {
	return map[string]any{"data": items}
}

func TestHTTPEncoder_Encode(t *testing.T) {
	t.Run("vectors returned normalized in input order", func(t *testing.T) {
		var gotBody struct {
			Model string   `json:"model"`
			Input []string `json:"input"`
		}
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			require.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))
			_ = json.NewEncoder(w).Encode(embeddingsPayload(
				map[string]any{"index": 0, "embedding": []float32{3, 4}},
				map[string]any{"index": 1, "embedding": []float32{0, 5}},
			))
		}))
		defer server.Close()

		encoder := newTestEncoder(server, 2)
		vectors, err := encoder.Encode(context.Background(), []string{"uno", "dos"})
		require.NoError(t, err)
		require.Len(t, vectors, 2)

		assert.Equal(t, "test-embedder", gotBody.Model)
		assert.Equal(t, []string{"uno", "dos"}, gotBody.Input)

		assert.InDelta(t, 0.6, vectors[0][0], 1e-6)
		assert.InDelta(t, 0.8, vectors[0][1], 1e-6)
		assert.InDelta(t, 0.0, vectors[1][0], 1e-6)
		assert.InDelta(t, 1.0, vectors[1][1], 1e-6)
	})

	t.Run("out-of-order data reordered by index", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			_ = json.NewEncoder(w).Encode(embeddingsPayload(
				map[string]any{"index": 1, "embedding": []float32{0, 1}},
				map[string]any{"index": 0, "embedding": []float32{1, 0}},
			))
		}))
		defer server.Close()

		encoder := newTestEncoder(server, 2)
		vectors, err := encoder.Encode(context.Background(), []string{"primero", "segundo"})
		require.NoError(t, err)
		assert.Equal(t, float32(1), vectors[0][0], "index 0 must map to the first input")
		assert.Equal(t, float32(1), vectors[1][1])
	})

	t.Run("empty input skips the request", func(t *testing.T) {
		called := false
		server := httptest.NewServer(http.HandlerFunc(func(_ http.ResponseWriter, _ *http.Request) {
			called = true
		}))
		defer server.Close()

		encoder := newTestEncoder(server, 2)
		vectors, err := encoder.Encode(context.Background(), nil)
		require.NoError(t, err)
		assert.Nil(t, vectors)
		assert.False(t, called)
	})

	t.Run("zero vector passes through", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			_ = json.NewEncoder(w).Encode(embeddingsPayload(
				map[string]any{"index": 0, "embedding": []float32{0, 0}},
			))
		}))
		defer server.Close()

		encoder := newTestEncoder(server, 2)
		vectors, err := encoder.Encode(context.Background(), []string{"vacío"})
		require.NoError(t, err)
		assert.Equal(t, []float32{0, 0}, vectors[0])
	})

	t.Run("count mismatch returns error", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			_ = json.NewEncoder(w).Encode(embeddingsPayload(
				map[string]any{"index": 0, "embedding": []float32{1, 0}},
			))
		}))
		defer server.Close()

		encoder := newTestEncoder(server, 2)
		_, err := encoder.Encode(context.Background(), []string{"uno", "dos"})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "1 vectors for 2 inputs")
	})

	t.Run("dimension mismatch returns error", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			_ = json.NewEncoder(w).Encode(embeddingsPayload(
				map[string]any{"index": 0, "embedding": []float32{1, 0, 0}},
			))
		}))
		defer server.Close()

		encoder := newTestEncoder(server, 2)
		_, err := encoder.Encode(context.Background(), []string{"uno"})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "3 dimensions, expected 2")
	})

	t.Run("HTTP 429 returns error with body", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusTooManyRequests)
			_, _ = w.Write([]byte("rate limited"))
		}))
		defer server.Close()

		encoder := newTestEncoder(server, 2)
		_, err := encoder.Encode(context.Background(), []string{"uno"})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "429")
		assert.Contains(t, err.Error(), "rate limited")
	})
}

func TestNormalize(t *testing.T) {
	v := normalize([]float32{2, 0, 0})
	assert.Equal(t, []float32{1, 0, 0}, v)

	var sum float64
	for _, x := range normalize([]float32{0.3, -1.2, 4.5, 0.01}) {
		sum += float64(x) * float64(x)
	}
	assert.InDelta(t, 1.0, math.Sqrt(sum), 1e-6)
}
