package services

import (
	"context"
	"fmt"
	"time"

	"github.com/mediateca/vodrag/pkg/models"
	"github.com/mediateca/vodrag/pkg/store"
)

// VideoService exposes the video catalog.
type VideoService struct {
	videos *store.VideoStore
}

// NewVideoService creates a new VideoService.
func NewVideoService(videos *store.VideoStore) *VideoService {
	return &VideoService{videos: videos}
}

// List returns a page of videos, optionally restricted to one channel.
func (s *VideoService) List(httpCtx context.Context, channelID *int64, skip, limit int) ([]models.Video, error) {
	ctx, cancel := context.WithTimeout(httpCtx, 5*time.Second)
	defer cancel()

	videos, err := s.videos.List(ctx, channelID, skip, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list videos: %w", err)
	}
	return videos, nil
}

// GetDetail returns one video with its segment and chunk counts.
func (s *VideoService) GetDetail(httpCtx context.Context, videoID string) (*models.VideoDetail, error) {
	ctx, cancel := context.WithTimeout(httpCtx, 5*time.Second)
	defer cancel()

	detail, err := s.videos.GetDetail(ctx, videoID)
	if err != nil {
		if store.IsNotFound(err) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get video: %w", err)
	}
	return detail, nil
}

// PendingDownload returns videos not yet downloaded, optionally for one channel.
func (s *VideoService) PendingDownload(httpCtx context.Context, channelID *int64) ([]models.Video, error) {
	ctx, cancel := context.WithTimeout(httpCtx, 5*time.Second)
	defer cancel()

	videos, err := s.videos.PendingDownload(ctx, channelID)
	if err != nil {
		return nil, fmt.Errorf("failed to list pending downloads: %w", err)
	}
	return videos, nil
}

// PendingTranscription returns downloaded videos without a transcript.
func (s *VideoService) PendingTranscription(httpCtx context.Context) ([]models.Video, error) {
	ctx, cancel := context.WithTimeout(httpCtx, 5*time.Second)
	defer cancel()

	videos, err := s.videos.PendingTranscription(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list pending transcriptions: %w", err)
	}
	return videos, nil
}
