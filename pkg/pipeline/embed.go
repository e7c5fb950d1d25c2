package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/pgvector/pgvector-go"

	"github.com/mediateca/vodrag/pkg/metrics"
	"github.com/mediateca/vodrag/pkg/store"
)

// embedChunks encodes every chunk of the given videos that is still
// missing a text or summary embedding. Chunks are processed in batches;
// a failed batch breaks the loop and leaves the remaining chunks pending
// for a later run. Returns how many chunks were embedded.
func (e *Executor) embedChunks(ctx context.Context, videoIDs []string) (int, error) {
	pending, err := e.stores.Chunks.PendingEmbedding(ctx, videoIDs)
	if err != nil {
		return 0, fmt.Errorf("failed to load pending chunks: %w", err)
	}
	if len(pending) == 0 {
		return 0, nil
	}

	start := time.Now()
	embedded := 0

	for lo := 0; lo < len(pending); lo += e.embedBatchSize {
		hi := min(lo+e.embedBatchSize, len(pending))
		batch := pending[lo:hi]

		texts := make([]string, len(batch))
		summaries := make([]string, len(batch))
		for i, ch := range batch {
			texts[i] = ch.Text
			if ch.Summary != nil {
				summaries[i] = *ch.Summary
			}
		}

		textVecs, err := e.encoder.Encode(ctx, texts)
		if err != nil {
			slog.Error("Chunk embedding batch failed", "error", err)
			break
		}
		summaryVecs, err := e.encoder.Encode(ctx, summaries)
		if err != nil {
			slog.Error("Summary embedding batch failed", "error", err)
			break
		}

		updates := make([]store.ChunkEmbedding, len(batch))
		for i, ch := range batch {
			updates[i] = store.ChunkEmbedding{
				ChunkID:   ch.ID,
				Embedding: pgvector.NewVector(textVecs[i]),
			}
			// The summary vector is only stored for real summaries; an
			// empty string would otherwise index as a meaningless point.
			if ch.Summary != nil && strings.TrimSpace(*ch.Summary) != "" {
				v := pgvector.NewVector(summaryVecs[i])
				updates[i].SummaryEmbedding = &v
			}
		}

		if err := e.stores.Chunks.UpdateEmbeddings(ctx, updates); err != nil {
			slog.Error("Failed to store embeddings", "error", err)
			break
		}

		embedded += len(batch)
		metrics.RecordChunksEmbedded(len(batch))
	}

	status := "success"
	if embedded < len(pending) {
		status = "partial"
	}
	metrics.RecordStage("embed", status, time.Since(start))
	slog.Info("Embedded chunks", "embedded", embedded, "pending", len(pending))
	return embedded, nil
}
