package services

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/mediateca/vodrag/pkg/models"
	"github.com/mediateca/vodrag/pkg/store"
)

// ChannelService manages the channel catalog.
type ChannelService struct {
	channels *store.ChannelStore
}

// NewChannelService creates a new ChannelService.
func NewChannelService(channels *store.ChannelStore) *ChannelService {
	return &ChannelService{channels: channels}
}

// List returns a page of channels ordered by creation time.
func (s *ChannelService) List(httpCtx context.Context, skip, limit int) ([]models.Channel, error) {
	ctx, cancel := context.WithTimeout(httpCtx, 5*time.Second)
	defer cancel()

	channels, err := s.channels.List(ctx, skip, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list channels: %w", err)
	}
	return channels, nil
}

// Get returns one channel by id.
func (s *ChannelService) Get(httpCtx context.Context, id int64) (*models.Channel, error) {
	ctx, cancel := context.WithTimeout(httpCtx, 5*time.Second)
	defer cancel()

	channel, err := s.channels.Get(ctx, id)
	if err != nil {
		if store.IsNotFound(err) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get channel: %w", err)
	}
	return channel, nil
}

// GetStats returns one channel with its processing counters.
func (s *ChannelService) GetStats(httpCtx context.Context, id int64) (*models.ChannelStats, error) {
	ctx, cancel := context.WithTimeout(httpCtx, 5*time.Second)
	defer cancel()

	stats, err := s.channels.GetStats(ctx, id)
	if err != nil {
		if store.IsNotFound(err) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get channel stats: %w", err)
	}
	return stats, nil
}

// Create registers a channel by URL. The display name is derived from the
// URL handle.
func (s *ChannelService) Create(httpCtx context.Context, url string) (*models.Channel, error) {
	url = strings.TrimSpace(url)
	if url == "" {
		return nil, NewValidationError("url", "required")
	}

	ctx, cancel := context.WithTimeout(httpCtx, 5*time.Second)
	defer cancel()

	channel, err := s.channels.Create(ctx, models.ChannelNameFromURL(url), url)
	if err != nil {
		if store.IsUniqueViolation(err) {
			return nil, ErrAlreadyExists
		}
		return nil, fmt.Errorf("failed to create channel: %w", err)
	}
	return channel, nil
}

// UpdateName renames a channel.
func (s *ChannelService) UpdateName(httpCtx context.Context, id int64, name string) (*models.Channel, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, NewValidationError("name", "required")
	}

	ctx, cancel := context.WithTimeout(httpCtx, 5*time.Second)
	defer cancel()

	channel, err := s.channels.UpdateName(ctx, id, name)
	if err != nil {
		if store.IsNotFound(err) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to update channel: %w", err)
	}
	return channel, nil
}

// Delete removes a channel and, through cascade, its videos and derived rows.
func (s *ChannelService) Delete(httpCtx context.Context, id int64) error {
	ctx, cancel := context.WithTimeout(httpCtx, 5*time.Second)
	defer cancel()

	if err := s.channels.Delete(ctx, id); err != nil {
		if store.IsNotFound(err) {
			return ErrNotFound
		}
		return fmt.Errorf("failed to delete channel: %w", err)
	}
	return nil
}
