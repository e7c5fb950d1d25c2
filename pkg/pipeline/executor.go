// Package pipeline executes the queued video work: channel ingest,
// transcription, chunking, and embedding, one video at a time so that a
// failed video never blocks the completion of earlier ones.
package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"

	"github.com/mediateca/vodrag/pkg/config"
	"github.com/mediateca/vodrag/pkg/embedding"
	"github.com/mediateca/vodrag/pkg/llm"
	"github.com/mediateca/vodrag/pkg/media"
	"github.com/mediateca/vodrag/pkg/models"
	"github.com/mediateca/vodrag/pkg/queue"
	"github.com/mediateca/vodrag/pkg/store"
	"github.com/mediateca/vodrag/pkg/stt"
)

// ingestProgress is the task progress after the ingest phase; the
// remaining range is divided evenly across the per-video slices.
const ingestProgress = 10

// defaultMaxVideos bounds a pipeline request that does not set a cap.
const defaultMaxVideos = 10

// errTaskCancelled aborts the per-video loop when the task row was
// externally flipped to failed.
var errTaskCancelled = errors.New("task cancelled")

// Executor runs pipeline and embed_question tasks. One executor serves
// one worker; the model clients behind it are process-wide singletons.
type Executor struct {
	stores         *store.Stores
	fetcher        media.Fetcher
	transcriber    stt.Transcriber
	encoder        embedding.Encoder
	llm            llm.Client
	chunker        *Chunker
	language       string
	embedBatchSize int
}

var _ queue.Executor = (*Executor)(nil)

// NewExecutor creates the task executor.
func NewExecutor(cfg *config.PipelineConfig, stores *store.Stores, fetcher media.Fetcher, transcriber stt.Transcriber, encoder embedding.Encoder, llmClient llm.Client) *Executor {
	return &Executor{
		stores:         stores,
		fetcher:        fetcher,
		transcriber:    transcriber,
		encoder:        encoder,
		llm:            llmClient,
		chunker:        NewChunker(cfg),
		language:       cfg.Language,
		embedBatchSize: cfg.EmbedBatchSize,
	}
}

// Execute routes a claimed task by type.
func (e *Executor) Execute(ctx context.Context, task *models.Task) *queue.ExecutionResult {
	switch task.Type {
	case models.TaskTypePipeline:
		return e.runPipeline(ctx, task)
	case models.TaskTypeEmbedQuestion:
		return e.runEmbedQuestion(ctx, task)
	default:
		return queue.FailedResult(fmt.Sprintf("unsupported task type: %s", task.Type))
	}
}

// runPipeline ingests a channel and then processes each new video
// through transcribe, chunk, and embed before moving to the next.
func (e *Executor) runPipeline(ctx context.Context, task *models.Task) *queue.ExecutionResult {
	req, err := task.PipelineRequest()
	if err != nil {
		return queue.FailedResult(fmt.Sprintf("invalid pipeline request: %v", err))
	}
	if req.ChannelURL == "" {
		return queue.FailedResult("channel_url is required")
	}
	if req.MaxVideos <= 0 {
		req.MaxVideos = defaultMaxVideos
	}
	language := req.Language
	if language == "" {
		language = e.language
	}

	reporter := newTaskReporter(e.stores.Tasks, task.ID)

	ing, err := e.ingest(ctx, req)
	if err != nil {
		return queue.FailedResult(err.Error())
	}

	total := len(ing.NewVideoIDs)
	if total == 0 {
		slog.Info("No new videos to process", "task_id", task.ID, "fetched", ing.Fetched)
		return queue.CompletedResult(nil, nil)
	}
	reporter.Update(ctx, ingestProgress, fmt.Sprintf("%d new videos", total))

	slice := float64(100-ingestProgress) / float64(total)
	success := 0

	for i, videoID := range ing.NewVideoIDs {
		if e.taskCancelled(ctx, task.ID) {
			slog.Info("Task cancelled externally", "task_id", task.ID)
			return queue.FailedResult("task cancelled")
		}

		base := float64(ingestProgress) + float64(i)*slice
		if err := e.processVideo(ctx, task.ID, videoID, language, reporter, base, slice); err != nil {
			if errors.Is(err, errTaskCancelled) {
				slog.Info("Task cancelled externally", "task_id", task.ID)
				return queue.FailedResult("task cancelled")
			}
			slog.Error("Video processing failed", "task_id", task.ID, "video_id", videoID, "error", err)
			continue
		}
		success++
	}

	switch {
	case success == 0:
		return queue.FailedResult("all videos failed to process")
	case success < total:
		msg := fmt.Sprintf("%d/%d processed", success, total)
		return queue.CompletedResult(nil, &msg)
	default:
		return queue.CompletedResult(nil, nil)
	}
}

// processVideo runs the three per-video stages in order. Transcribe and
// chunk failures fail the video; an embed shortfall leaves chunks
// pending for a later run but still counts the video as processed.
func (e *Executor) processVideo(ctx context.Context, taskID uuid.UUID, videoID, language string, reporter Reporter, base, slice float64) error {
	if err := e.transcribeVideo(ctx, videoID, language); err != nil {
		return err
	}
	reporter.Update(ctx, int(base+0.4*slice), "")

	if e.taskCancelled(ctx, taskID) {
		return errTaskCancelled
	}
	if err := e.chunkVideo(ctx, videoID); err != nil {
		return err
	}
	reporter.Update(ctx, int(base+0.7*slice), "")

	if e.taskCancelled(ctx, taskID) {
		return errTaskCancelled
	}
	if _, err := e.embedChunks(ctx, []string{videoID}); err != nil {
		return err
	}
	reporter.Update(ctx, int(base+slice), "")
	return nil
}

// taskCancelled re-reads the task row. An external writer cancels a
// running task by flipping its status to failed.
func (e *Executor) taskCancelled(ctx context.Context, taskID uuid.UUID) bool {
	t, err := e.stores.Tasks.Get(ctx, taskID)
	if err != nil {
		slog.Warn("Failed to re-read task status", "task_id", taskID, "error", err)
		return false
	}
	return t.Status == models.TaskStatusFailed
}

// runEmbedQuestion encodes one question and stores the JSON vector in
// the task result, where the ask path polls for it.
func (e *Executor) runEmbedQuestion(ctx context.Context, task *models.Task) *queue.ExecutionResult {
	req, err := task.EmbedQuestionRequest()
	if err != nil {
		return queue.FailedResult(fmt.Sprintf("invalid embed request: %v", err))
	}
	if strings.TrimSpace(req.Question) == "" {
		return queue.FailedResult("question_to_embed is required")
	}

	vectors, err := e.encoder.Encode(ctx, []string{req.Question})
	if err != nil {
		return queue.FailedResult(fmt.Sprintf("failed to embed question: %v", err))
	}

	payload, err := json.Marshal(vectors[0])
	if err != nil {
		return queue.FailedResult(fmt.Sprintf("failed to encode result: %v", err))
	}
	result := string(payload)
	return queue.CompletedResult(&result, nil)
}
