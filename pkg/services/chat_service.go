package services

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/mediateca/vodrag/pkg/models"
	"github.com/mediateca/vodrag/pkg/store"
)

// maxSessionMessages bounds the history returned by the detail endpoint.
const maxSessionMessages = 500

// ChatService manages chat sessions and their history.
type ChatService struct {
	chats *store.ChatStore
}

// NewChatService creates a new ChatService.
func NewChatService(chats *store.ChatStore) *ChatService {
	return &ChatService{chats: chats}
}

// ListSessions returns a page of sessions, newest first, with message counts.
func (s *ChatService) ListSessions(httpCtx context.Context, skip, limit int) ([]models.ChatSessionInfo, error) {
	ctx, cancel := context.WithTimeout(httpCtx, 5*time.Second)
	defer cancel()

	sessions, err := s.chats.List(ctx, skip, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list sessions: %w", err)
	}
	return sessions, nil
}

// GetSessionDetail returns one session with its messages and video scope.
func (s *ChatService) GetSessionDetail(httpCtx context.Context, id uuid.UUID) (*models.ChatSessionDetail, error) {
	ctx, cancel := context.WithTimeout(httpCtx, 5*time.Second)
	defer cancel()

	session, err := s.chats.Get(ctx, id)
	if err != nil {
		if store.IsNotFound(err) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get session: %w", err)
	}

	messages, err := s.chats.Messages(ctx, id, maxSessionMessages)
	if err != nil {
		return nil, fmt.Errorf("failed to load session messages: %w", err)
	}

	videoIDs, err := s.chats.SessionVideos(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to load session videos: %w", err)
	}

	return &models.ChatSessionDetail{
		ChatSession: *session,
		Messages:    messages,
		VideoIDs:    videoIDs,
	}, nil
}

// DeleteSession removes a session and its messages.
func (s *ChatService) DeleteSession(httpCtx context.Context, id uuid.UUID) error {
	ctx, cancel := context.WithTimeout(httpCtx, 5*time.Second)
	defer cancel()

	if err := s.chats.Delete(ctx, id); err != nil {
		if store.IsNotFound(err) {
			return ErrNotFound
		}
		return fmt.Errorf("failed to delete session: %w", err)
	}
	return nil
}
