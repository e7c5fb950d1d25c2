package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/mediateca/vodrag/pkg/metrics"
	"github.com/mediateca/vodrag/pkg/models"
)

// transcribeVideo runs speech-to-text for one video and stores the
// resulting segments together with the transcribed flag in a single
// transaction. A video that is already transcribed is skipped. A missing
// audio file fails this video only, not the whole task.
func (e *Executor) transcribeVideo(ctx context.Context, videoID, language string) error {
	video, err := e.stores.Videos.Get(ctx, videoID)
	if err != nil {
		return fmt.Errorf("failed to load video: %w", err)
	}
	if video.Transcribed {
		slog.Info("Video already transcribed", "video_id", videoID)
		return nil
	}
	if !video.Downloaded || video.AudioPath == nil {
		return fmt.Errorf("video %s has no downloaded audio", videoID)
	}
	if _, err := os.Stat(*video.AudioPath); err != nil {
		return fmt.Errorf("audio file not found: %s", *video.AudioPath)
	}

	start := time.Now()
	sttSegments, err := e.transcriber.Transcribe(ctx, *video.AudioPath, language)
	if err != nil {
		metrics.RecordStage("transcribe", "error", time.Since(start))
		return fmt.Errorf("transcription failed: %w", err)
	}

	segments := make([]models.Segment, 0, len(sttSegments))
	for _, s := range sttSegments {
		segments = append(segments, models.Segment{
			VideoID:   videoID,
			StartTime: s.Start,
			EndTime:   s.End,
			Text:      strings.TrimSpace(s.Text),
		})
	}

	if err := e.stores.Videos.SaveTranscript(ctx, videoID, segments); err != nil {
		metrics.RecordStage("transcribe", "error", time.Since(start))
		return fmt.Errorf("failed to save transcript: %w", err)
	}

	metrics.RecordStage("transcribe", "success", time.Since(start))
	slog.Info("Transcribed video", "video_id", videoID, "segments", len(segments))
	return nil
}
