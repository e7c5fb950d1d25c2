package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mediateca/vodrag/pkg/config"
	"github.com/mediateca/vodrag/pkg/llm"
	"github.com/mediateca/vodrag/pkg/media"
	"github.com/mediateca/vodrag/pkg/models"
	"github.com/mediateca/vodrag/pkg/store"
	"github.com/mediateca/vodrag/pkg/stt"
	testdb "github.com/mediateca/vodrag/test/database"
)

const embeddingDims = 384

func testPipelineConfig(audioDir string) *config.PipelineConfig {
	return &config.PipelineConfig{
		AudioDir:         audioDir,
		Language:         "es",
		TargetTokens:     64,
		OverlapTokens:    16,
		AvgCharsPerToken: 4,
		EmbedBatchSize:   8,
	}
}

// testSegments yields exactly one chunk under testPipelineConfig: three
// 87-char segments cross the 64-token target on the third one, and the
// single segment left after the slide stays below the residual floor.
func testSegments() []stt.Segment {
	text := strings.TrimSpace(strings.Repeat("palabra ", 11))
	return []stt.Segment{
		{Start: 0, End: 20, Text: text},
		{Start: 20, End: 40, Text: text},
		{Start: 40, End: 60, Text: text},
	}
}

func videoMeta(id, title string) media.VideoMeta {
	published := time.Date(2024, 3, 10, 0, 0, 0, 0, time.UTC)
	return media.VideoMeta{ID: id, Title: title, Duration: 600, PublishedAt: &published}
}

type fakeFetcher struct {
	metas     []media.VideoMeta
	audioDir  string
	listErr   error
	downloads int
}

func (f *fakeFetcher) ListChannel(_ context.Context, _ string, maxVideos int) ([]media.VideoMeta, error) {
	if f.listErr != nil {
		return nil, f.listErr
	}
	if len(f.metas) > maxVideos {
		return f.metas[:maxVideos], nil
	}
	return f.metas, nil
}

// DownloadAudio writes a real file because the transcribe stage stats the
// audio path before calling the transcriber.
func (f *fakeFetcher) DownloadAudio(_ context.Context, videoID string) (string, error) {
	f.downloads++
	path := filepath.Join(f.audioDir, videoID+".wav")
	if err := os.WriteFile(path, []byte("RIFF"), 0o644); err != nil {
		return "", err
	}
	return path, nil
}

type fakeTranscriber struct {
	segments  []stt.Segment
	err       error
	failPaths map[string]bool
	calls     int
}

func (f *fakeTranscriber) Transcribe(_ context.Context, audioPath, _ string) ([]stt.Segment, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	if f.failPaths[audioPath] {
		return nil, errors.New("transcription backend rejected the file")
	}
	return f.segments, nil
}

type fakeEncoder struct {
	dims      int
	failAfter int // fail every call after this many successes, 0 never fails
	calls     int
}

func (f *fakeEncoder) Encode(_ context.Context, texts []string) ([][]float32, error) {
	f.calls++
	if f.failAfter > 0 && f.calls > f.failAfter {
		return nil, errors.New("encoder unavailable")
	}
	out := make([][]float32, len(texts))
	for i := range texts {
		v := make([]float32, f.dims)
		v[0] = 1
		out[i] = v
	}
	return out, nil
}

type fakeLLM struct {
	response string
	err      error
	calls    int
}

func (f *fakeLLM) Generate(_ context.Context, _ []llm.Message) (string, error) {
	f.calls++
	if f.err != nil {
		return "", f.err
	}
	return f.response, nil
}

func (f *fakeLLM) Stream(ctx context.Context, messages []llm.Message, ch chan<- string) (string, error) {
	defer close(ch)
	return f.Generate(ctx, messages)
}

type executorFixture struct {
	executor    *Executor
	stores      *store.Stores
	fetcher     *fakeFetcher
	transcriber *fakeTranscriber
	encoder     *fakeEncoder
	llm         *fakeLLM
}

func newExecutorFixture(t *testing.T, metas []media.VideoMeta) *executorFixture {
	t.Helper()
	stores, _ := testdb.NewTestStores(t)
	audioDir := t.TempDir()

	fx := &executorFixture{
		stores:      stores,
		fetcher:     &fakeFetcher{metas: metas, audioDir: audioDir},
		transcriber: &fakeTranscriber{segments: testSegments()},
		encoder:     &fakeEncoder{dims: embeddingDims},
		llm:         &fakeLLM{response: "Resumen de una frase."},
	}
	fx.executor = NewExecutor(testPipelineConfig(audioDir), stores, fx.fetcher, fx.transcriber, fx.encoder, fx.llm)
	return fx
}

func claimTask(ctx context.Context, t *testing.T, stores *store.Stores, taskType models.TaskType, request any) *models.Task {
	t.Helper()
	_, err := stores.Tasks.Enqueue(ctx, taskType, request)
	require.NoError(t, err)
	task, err := stores.Tasks.ClaimOne(ctx)
	require.NoError(t, err)
	require.NotNil(t, task)
	return task
}

func TestExecutePipelineEndToEnd(t *testing.T) {
	fx := newExecutorFixture(t, []media.VideoMeta{
		videoMeta("vid00000001", "Primera parte"),
		videoMeta("vid00000002", "Segunda parte"),
	})
	ctx := context.Background()

	task := claimTask(ctx, t, fx.stores, models.TaskTypePipeline, models.PipelineRequest{
		ChannelURL: "https://www.youtube.com/@canal",
		MaxVideos:  10,
		Download:   true,
	})

	res := fx.executor.Execute(ctx, task)
	require.Equal(t, models.TaskStatusCompleted, res.Status)
	assert.Nil(t, res.ErrorMessage)

	channels, err := fx.stores.Channels.List(ctx, 0, 10)
	require.NoError(t, err)
	require.Len(t, channels, 1)
	assert.Equal(t, "canal", channels[0].Name)

	for _, videoID := range []string{"vid00000001", "vid00000002"} {
		detail, err := fx.stores.Videos.GetDetail(ctx, videoID)
		require.NoError(t, err)
		assert.True(t, detail.Downloaded, videoID)
		assert.True(t, detail.Transcribed, videoID)
		assert.Equal(t, 3, detail.SegmentCount, videoID)
		assert.Equal(t, 1, detail.ChunkCount, videoID)
	}

	pending, err := fx.stores.Chunks.PendingEmbedding(ctx, nil)
	require.NoError(t, err)
	assert.Empty(t, pending, "every chunk ends up with text and summary vectors")

	assert.Equal(t, 2, fx.fetcher.downloads)
	assert.Equal(t, 2, fx.llm.calls, "one summary per chunk")
	// Two Encode calls per video: chunk texts, then chunk summaries.
	assert.Equal(t, 4, fx.encoder.calls)

	reloaded, err := fx.stores.Tasks.Get(ctx, task.ID)
	require.NoError(t, err)
	assert.Equal(t, 100, reloaded.Progress)
}

func TestExecutePipelinePartialFailure(t *testing.T) {
	fx := newExecutorFixture(t, []media.VideoMeta{
		videoMeta("vid00000001", "Primera parte"),
		videoMeta("vid00000002", "Segunda parte"),
	})
	fx.transcriber.failPaths = map[string]bool{
		filepath.Join(fx.fetcher.audioDir, "vid00000002.wav"): true,
	}
	ctx := context.Background()

	task := claimTask(ctx, t, fx.stores, models.TaskTypePipeline, models.PipelineRequest{
		ChannelURL: "https://www.youtube.com/@canal",
		Download:   true,
	})

	res := fx.executor.Execute(ctx, task)
	require.Equal(t, models.TaskStatusCompleted, res.Status)
	require.NotNil(t, res.ErrorMessage)
	assert.Equal(t, "1/2 processed", *res.ErrorMessage)

	good, err := fx.stores.Videos.GetDetail(ctx, "vid00000001")
	require.NoError(t, err)
	assert.True(t, good.Transcribed)
	assert.Equal(t, 1, good.ChunkCount)

	bad, err := fx.stores.Videos.Get(ctx, "vid00000002")
	require.NoError(t, err)
	assert.True(t, bad.Downloaded)
	assert.False(t, bad.Transcribed)
}

func TestExecutePipelineAllVideosFail(t *testing.T) {
	fx := newExecutorFixture(t, []media.VideoMeta{videoMeta("vid00000001", "Primera parte")})
	fx.transcriber.err = errors.New("whisper backend unavailable")
	ctx := context.Background()

	task := claimTask(ctx, t, fx.stores, models.TaskTypePipeline, models.PipelineRequest{
		ChannelURL: "https://www.youtube.com/@canal",
		Download:   true,
	})

	res := fx.executor.Execute(ctx, task)
	require.Equal(t, models.TaskStatusFailed, res.Status)
	require.NotNil(t, res.ErrorMessage)
	assert.Equal(t, "all videos failed to process", *res.ErrorMessage)
}

func TestExecutePipelineSkipsKnownVideos(t *testing.T) {
	fx := newExecutorFixture(t, []media.VideoMeta{videoMeta("vid00000001", "Primera parte")})
	ctx := context.Background()
	req := models.PipelineRequest{ChannelURL: "https://www.youtube.com/@canal", Download: true}

	first := claimTask(ctx, t, fx.stores, models.TaskTypePipeline, req)
	res := fx.executor.Execute(ctx, first)
	require.Equal(t, models.TaskStatusCompleted, res.Status)
	require.Equal(t, 1, fx.transcriber.calls)

	second := claimTask(ctx, t, fx.stores, models.TaskTypePipeline, req)
	res = fx.executor.Execute(ctx, second)
	require.Equal(t, models.TaskStatusCompleted, res.Status)
	assert.Nil(t, res.ErrorMessage)
	assert.Equal(t, 1, fx.transcriber.calls, "already ingested videos are not reprocessed")
	assert.Equal(t, 1, fx.fetcher.downloads)
}

func TestExecutePipelineExternalCancel(t *testing.T) {
	fx := newExecutorFixture(t, []media.VideoMeta{videoMeta("vid00000001", "Primera parte")})
	ctx := context.Background()

	task := claimTask(ctx, t, fx.stores, models.TaskTypePipeline, models.PipelineRequest{
		ChannelURL: "https://www.youtube.com/@canal",
	})
	require.NoError(t, fx.stores.Tasks.Fail(ctx, task.ID, "cancelled by user"))

	res := fx.executor.Execute(ctx, task)
	require.Equal(t, models.TaskStatusFailed, res.Status)
	require.NotNil(t, res.ErrorMessage)
	assert.Equal(t, "task cancelled", *res.ErrorMessage)
	assert.Zero(t, fx.transcriber.calls)
}

func TestExecuteEmbedQuestion(t *testing.T) {
	fx := newExecutorFixture(t, nil)
	ctx := context.Background()

	task := claimTask(ctx, t, fx.stores, models.TaskTypeEmbedQuestion, models.EmbedQuestionRequest{
		Question: "¿Qué es una goroutine?",
	})

	res := fx.executor.Execute(ctx, task)
	require.Equal(t, models.TaskStatusCompleted, res.Status)
	require.NotNil(t, res.Result)

	var vector []float32
	require.NoError(t, json.Unmarshal([]byte(*res.Result), &vector))
	assert.Len(t, vector, embeddingDims)
	assert.Equal(t, 1, fx.encoder.calls)
}

func TestExecuteRequestValidation(t *testing.T) {
	executor := NewExecutor(testPipelineConfig(t.TempDir()), nil, nil, nil, nil, nil)
	ctx := context.Background()

	tests := []struct {
		name    string
		task    *models.Task
		wantErr string
	}{
		{
			name:    "pipeline without channel url",
			task:    &models.Task{ID: uuid.New(), Type: models.TaskTypePipeline, Request: json.RawMessage(`{}`)},
			wantErr: "channel_url is required",
		},
		{
			name:    "pipeline with malformed request",
			task:    &models.Task{ID: uuid.New(), Type: models.TaskTypePipeline, Request: json.RawMessage(`{"channel_url": 5}`)},
			wantErr: "invalid pipeline request",
		},
		{
			name:    "embed question without text",
			task:    &models.Task{ID: uuid.New(), Type: models.TaskTypeEmbedQuestion, Request: json.RawMessage(`{"question_to_embed": "   "}`)},
			wantErr: "question_to_embed is required",
		},
		{
			name:    "unsupported task type",
			task:    &models.Task{ID: uuid.New(), Type: "cleanup", Request: json.RawMessage(`{}`)},
			wantErr: "unsupported task type: cleanup",
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			res := executor.Execute(ctx, tc.task)
			require.Equal(t, models.TaskStatusFailed, res.Status)
			require.NotNil(t, res.ErrorMessage)
			assert.Contains(t, *res.ErrorMessage, tc.wantErr)
		})
	}
}

func TestEmbedChunksStopsOnFailure(t *testing.T) {
	stores, _ := testdb.NewTestStores(t)
	ctx := context.Background()

	cfg := testPipelineConfig(t.TempDir())
	cfg.EmbedBatchSize = 1
	encoder := &fakeEncoder{dims: embeddingDims, failAfter: 2}
	executor := NewExecutor(cfg, stores, nil, nil, encoder, nil)

	ch, err := stores.Channels.Create(ctx, "canal", "https://www.youtube.com/@canal")
	require.NoError(t, err)
	_, err = stores.Videos.Insert(ctx, &models.Video{VideoID: "vid00000001", ChannelID: ch.ID, Title: "Primera parte"})
	require.NoError(t, err)

	s1, s2 := "resumen uno", "resumen dos"
	require.NoError(t, stores.Chunks.Replace(ctx, "vid00000001", []models.Chunk{
		{VideoID: "vid00000001", ChunkIndex: 0, EndTime: 30, Text: "primer fragmento", Summary: &s1},
		{VideoID: "vid00000001", ChunkIndex: 1, StartTime: 30, EndTime: 60, Text: "segundo fragmento", Summary: &s2},
	}))

	// Batch size one: the first chunk needs two Encode calls, the third
	// call fails and strands the second chunk for a later run.
	embedded, err := executor.embedChunks(ctx, []string{"vid00000001"})
	require.NoError(t, err)
	assert.Equal(t, 1, embedded)

	pending, err := stores.Chunks.PendingEmbedding(ctx, []string{"vid00000001"})
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, 1, pending[0].ChunkIndex)
}
