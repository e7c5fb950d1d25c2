package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/mediateca/vodrag/pkg/metrics"
	"github.com/mediateca/vodrag/pkg/models"
)

// ingestResult summarizes one ingest run.
type ingestResult struct {
	ChannelID   int64
	NewVideoIDs []string
	Fetched     int
	Downloaded  int
	Failed      int
}

// ingest fetches the channel listing, registers the channel and any new
// videos, and (when requested) downloads normalized audio for each new
// video. Download failures are tolerated: the video row stays with
// downloaded=false and the pipeline moves on.
func (e *Executor) ingest(ctx context.Context, req *models.PipelineRequest) (*ingestResult, error) {
	metas, err := e.fetcher.ListChannel(ctx, req.ChannelURL, req.MaxVideos)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch channel listing: %w", err)
	}

	channel, err := e.stores.Channels.GetOrCreate(ctx, models.ChannelNameFromURL(req.ChannelURL), req.ChannelURL)
	if err != nil {
		return nil, fmt.Errorf("failed to register channel: %w", err)
	}

	res := &ingestResult{ChannelID: channel.ID, Fetched: len(metas)}
	for _, m := range metas {
		video := &models.Video{
			VideoID:     m.ID,
			ChannelID:   channel.ID,
			Title:       m.Title,
			Description: m.Description,
			PublishedAt: m.PublishedAt,
			Duration:    &m.Duration,
		}
		created, err := e.stores.Videos.Insert(ctx, video)
		if err != nil {
			return nil, fmt.Errorf("failed to register video %s: %w", m.ID, err)
		}
		if created {
			res.NewVideoIDs = append(res.NewVideoIDs, m.ID)
		}
	}
	slog.Info("Registered videos", "channel_id", channel.ID, "fetched", res.Fetched, "new", len(res.NewVideoIDs))

	if !req.Download {
		return res, nil
	}

	for _, videoID := range res.NewVideoIDs {
		start := time.Now()
		audioPath, err := e.fetcher.DownloadAudio(ctx, videoID)
		if err != nil {
			slog.Error("Audio download failed", "video_id", videoID, "error", err)
			metrics.RecordStage("download", "error", time.Since(start))
			res.Failed++
			continue
		}
		if err := e.stores.Videos.MarkDownloaded(ctx, videoID, audioPath); err != nil {
			slog.Error("Failed to mark video downloaded", "video_id", videoID, "error", err)
			metrics.RecordStage("download", "error", time.Since(start))
			res.Failed++
			continue
		}
		metrics.RecordStage("download", "success", time.Since(start))
		res.Downloaded++
	}

	return res, nil
}
