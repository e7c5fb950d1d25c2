package services

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/pgvector/pgvector-go"
	"github.com/stretchr/testify/require"

	"github.com/mediateca/vodrag/pkg/config"
	"github.com/mediateca/vodrag/pkg/llm"
	"github.com/mediateca/vodrag/pkg/models"
	"github.com/mediateca/vodrag/pkg/store"
)

const embeddingDims = 384

// fakeLLM serves scripted responses in call order and records the prompt of
// every call. Stream chops its response into word-sized deltas.
type fakeLLM struct {
	mu        sync.Mutex
	responses []string
	prompts   []string
	genErr    error
	streamErr error
}

func (f *fakeLLM) next() string {
	if len(f.responses) == 0 {
		return ""
	}
	r := f.responses[0]
	f.responses = f.responses[1:]
	return r
}

func (f *fakeLLM) Generate(_ context.Context, messages []llm.Message) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.prompts = append(f.prompts, messages[len(messages)-1].Content)
	if f.genErr != nil {
		return "", f.genErr
	}
	return f.next(), nil
}

func (f *fakeLLM) Stream(ctx context.Context, messages []llm.Message, ch chan<- string) (string, error) {
	defer close(ch)

	f.mu.Lock()
	f.prompts = append(f.prompts, messages[len(messages)-1].Content)
	if f.streamErr != nil {
		f.mu.Unlock()
		return "", f.streamErr
	}
	full := f.next()
	f.mu.Unlock()

	for _, delta := range strings.SplitAfter(full, " ") {
		select {
		case ch <- delta:
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
	return full, nil
}

func testRAGConfig() *config.RAGConfig {
	return &config.RAGConfig{
		TopK:                  5,
		VectorWeight:          0.7,
		TextWeight:            0.3,
		EmbedWaitPollInterval: 50 * time.Millisecond,
		EmbedWaitTimeout:      5 * time.Second,
		MaxVideosPerChat:      50,
		MaxSummariesPerVideo:  3,
		ChatContextMessages:   4,
	}
}

// testVector builds an embedding with the seed at index 0 so distances
// between seeds are predictable.
func testVector(seed float32) pgvector.Vector {
	vals := make([]float32, embeddingDims)
	vals[0] = seed
	return pgvector.NewVector(vals)
}

// seedSearchableVideo creates one channel with one video whose two chunks
// carry summaries and embeddings, so hybrid search has something to find.
// The first chunk sits at vector seed 1, the second at seed 5.
func seedSearchableVideo(t *testing.T, stores *store.Stores) (*models.Channel, string) {
	t.Helper()
	ctx := context.Background()

	channel, err := stores.Channels.Create(ctx, "canal", "https://www.youtube.com/@canal")
	require.NoError(t, err)

	video := &models.Video{VideoID: "vid00000001", ChannelID: channel.ID, Title: "Introducción a Go"}
	created, err := stores.Videos.Insert(ctx, video)
	require.NoError(t, err)
	require.True(t, created)

	first := "El video explica qué son las goroutines y cómo se lanzan."
	second := "El video cierra comparando canales con mutexes."
	err = stores.Chunks.Replace(ctx, video.VideoID, []models.Chunk{
		{VideoID: video.VideoID, ChunkIndex: 0, StartTime: 0, EndTime: 30,
			Text: "hoy vamos a hablar de las goroutines", Summary: &first},
		{VideoID: video.VideoID, ChunkIndex: 1, StartTime: 30, EndTime: 60,
			Text: "los canales comunican goroutines entre sí", Summary: &second},
	})
	require.NoError(t, err)

	pending, err := stores.Chunks.PendingEmbedding(ctx, []string{video.VideoID})
	require.NoError(t, err)
	require.Len(t, pending, 2)

	batch := make([]store.ChunkEmbedding, len(pending))
	for i, ch := range pending {
		sv := testVector(float32(1 + 4*ch.ChunkIndex))
		batch[i] = store.ChunkEmbedding{
			ChunkID:          ch.ID,
			Embedding:        testVector(float32(1 + 4*ch.ChunkIndex)),
			SummaryEmbedding: &sv,
		}
	}
	require.NoError(t, stores.Chunks.UpdateEmbeddings(ctx, batch))

	return channel, video.VideoID
}
