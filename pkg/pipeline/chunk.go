package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/mediateca/vodrag/pkg/llm"
	"github.com/mediateca/vodrag/pkg/metrics"
)

const summaryPrompt = `Summarize the following video transcript fragment in exactly one sentence.
Reply with that sentence only, in the same language as the fragment.

Fragment:
%s

Summary:`

// chunkVideo rebuilds the chunk sequence for one video from its stored
// segments. Each chunk gets a one-sentence LLM summary; a failed summary
// leaves that chunk unsummarized rather than failing the stage. The
// rebuild is idempotent: old chunks are deleted and the new sequence is
// inserted in one transaction.
func (e *Executor) chunkVideo(ctx context.Context, videoID string) error {
	segments, err := e.stores.Videos.Segments(ctx, videoID)
	if err != nil {
		return fmt.Errorf("failed to load segments: %w", err)
	}
	if len(segments) == 0 {
		slog.Warn("No segments to chunk", "video_id", videoID)
		return nil
	}

	start := time.Now()
	chunks := e.chunker.Pack(videoID, segments)

	for i := range chunks {
		summary, err := e.summarizeChunk(ctx, chunks[i].Text)
		if err != nil {
			slog.Warn("Chunk summary failed", "video_id", videoID, "chunk_index", i, "error", err)
			continue
		}
		chunks[i].Summary = &summary
	}

	if err := e.stores.Chunks.Replace(ctx, videoID, chunks); err != nil {
		metrics.RecordStage("chunk", "error", time.Since(start))
		return fmt.Errorf("failed to store chunks: %w", err)
	}

	metrics.RecordStage("chunk", "success", time.Since(start))
	slog.Info("Chunked video", "video_id", videoID, "chunks", len(chunks))
	return nil
}

func (e *Executor) summarizeChunk(ctx context.Context, text string) (string, error) {
	reply, err := e.llm.Generate(ctx, []llm.Message{llm.User(fmt.Sprintf(summaryPrompt, text))})
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(reply), nil
}
