package store

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/mediateca/vodrag/pkg/models"
)

// ChatStore persists chat sessions, messages, and the session-video scope.
type ChatStore struct {
	pool *pgxpool.Pool
}

// NewChatStore creates a ChatStore using an existing pool.
func NewChatStore(pool *pgxpool.Pool) *ChatStore {
	return &ChatStore{pool: pool}
}

// GetOrCreate resolves the session to converse in. A parseable session ID
// that exists wins; anything else (missing, malformed, unknown) creates a new
// session titled after the question. Clients have been observed sending the
// UUID wrapped in quotes, so those are stripped before parsing.
func (s *ChatStore) GetOrCreate(ctx context.Context, sessionID *string, question string, channelID *int64) (*models.ChatSession, error) {
	if sessionID != nil {
		raw := strings.Trim(strings.TrimSpace(*sessionID), `'"`)
		if id, err := uuid.Parse(raw); err == nil {
			session, err := s.Get(ctx, id)
			if err == nil {
				return session, nil
			}
			if !IsNotFound(err) {
				return nil, err
			}
		}
	}

	session := &models.ChatSession{
		ID:        uuid.New(),
		ChannelID: channelID,
		Title:     question,
	}
	err := s.pool.QueryRow(ctx,
		`INSERT INTO chat_sessions (id, channel_id, title)
		 VALUES ($1, $2, $3)
		 RETURNING created_at`,
		session.ID, session.ChannelID, session.Title,
	).Scan(&session.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to create chat session: %w", err)
	}
	return session, nil
}

// Get returns a session by ID.
func (s *ChatStore) Get(ctx context.Context, id uuid.UUID) (*models.ChatSession, error) {
	var session models.ChatSession
	err := s.pool.QueryRow(ctx,
		`SELECT id, channel_id, title, created_at FROM chat_sessions WHERE id = $1`, id,
	).Scan(&session.ID, &session.ChannelID, &session.Title, &session.CreatedAt)
	if err != nil {
		if IsNotFound(err) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to get chat session: %w", err)
	}
	return &session, nil
}

// List returns sessions with their message counts, newest first.
func (s *ChatStore) List(ctx context.Context, skip, limit int) ([]models.ChatSessionInfo, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT cs.id, cs.channel_id, cs.title, cs.created_at,
		        (SELECT count(*) FROM chat_messages m WHERE m.session_id = cs.id)
		 FROM chat_sessions cs
		 ORDER BY cs.created_at DESC
		 OFFSET $1 LIMIT $2`,
		skip, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list chat sessions: %w", err)
	}
	defer rows.Close()

	var sessions []models.ChatSessionInfo
	for rows.Next() {
		var info models.ChatSessionInfo
		err := rows.Scan(&info.ID, &info.ChannelID, &info.Title, &info.CreatedAt, &info.MessageCount)
		if err != nil {
			return nil, fmt.Errorf("failed to scan chat session: %w", err)
		}
		sessions = append(sessions, info)
	}
	return sessions, rows.Err()
}

// MessageCount returns the number of messages in a session.
func (s *ChatStore) MessageCount(ctx context.Context, sessionID uuid.UUID) (int, error) {
	var count int
	err := s.pool.QueryRow(ctx,
		`SELECT count(*) FROM chat_messages WHERE session_id = $1`, sessionID,
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count messages: %w", err)
	}
	return count, nil
}

// Messages returns the session's messages oldest first, up to limit.
func (s *ChatStore) Messages(ctx context.Context, sessionID uuid.UUID, limit int) ([]models.ChatMessage, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, session_id, role, content, sources, created_at
		 FROM chat_messages
		 WHERE session_id = $1
		 ORDER BY created_at ASC, id ASC
		 LIMIT $2`,
		sessionID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list messages: %w", err)
	}
	defer rows.Close()

	return collectMessages(rows)
}

// RecentContext returns the last n messages of a session in chronological
// order, for use as conversation context.
func (s *ChatStore) RecentContext(ctx context.Context, sessionID uuid.UUID, n int) ([]models.ChatMessage, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, session_id, role, content, sources, created_at
		 FROM chat_messages
		 WHERE session_id = $1
		 ORDER BY created_at DESC, id DESC
		 LIMIT $2`,
		sessionID, n)
	if err != nil {
		return nil, fmt.Errorf("failed to load chat context: %w", err)
	}
	defer rows.Close()

	messages, err := collectMessages(rows)
	if err != nil {
		return nil, err
	}

	// Reverse to chronological order (oldest first).
	for i, j := 0, len(messages)-1; i < j; i, j = i+1, j-1 {
		messages[i], messages[j] = messages[j], messages[i]
	}
	return messages, nil
}

// AddMessagePair writes the user question and the assistant answer in one
// transaction, so every assistant message is preceded by its trigger.
func (s *ChatStore) AddMessagePair(ctx context.Context, sessionID uuid.UUID, question, answer string, sources json.RawMessage) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin message transaction: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	_, err = tx.Exec(ctx,
		`INSERT INTO chat_messages (session_id, role, content)
		 VALUES ($1, $2, $3)`,
		sessionID, models.RoleUser, question)
	if err != nil {
		return fmt.Errorf("failed to insert user message: %w", err)
	}

	_, err = tx.Exec(ctx,
		`INSERT INTO chat_messages (session_id, role, content, sources)
		 VALUES ($1, $2, $3, $4)`,
		sessionID, models.RoleAssistant, answer, sources)
	if err != nil {
		return fmt.Errorf("failed to insert assistant message: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit messages: %w", err)
	}
	return nil
}

// ReplaceSessionVideos swaps the set of videos the session is restricted to.
func (s *ChatStore) ReplaceSessionVideos(ctx context.Context, sessionID uuid.UUID, videoIDs []string) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin session videos transaction: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	if _, err := tx.Exec(ctx, `DELETE FROM chat_videos WHERE chat_id = $1`, sessionID); err != nil {
		return fmt.Errorf("failed to clear session videos: %w", err)
	}

	if len(videoIDs) > 0 {
		_, err = tx.Exec(ctx,
			`INSERT INTO chat_videos (chat_id, video_id)
			 SELECT $1, unnest($2::text[])`,
			sessionID, videoIDs)
		if err != nil {
			return fmt.Errorf("failed to insert session videos: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit session videos: %w", err)
	}
	return nil
}

// SessionVideos returns the video IDs the session is restricted to.
func (s *ChatStore) SessionVideos(ctx context.Context, sessionID uuid.UUID) ([]string, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT video_id FROM chat_videos WHERE chat_id = $1 ORDER BY video_id`,
		sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to list session videos: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan session video: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// Delete removes a session and its messages. Returns pgx.ErrNoRows when it
// does not exist.
func (s *ChatStore) Delete(ctx context.Context, id uuid.UUID) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM chat_sessions WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete chat session: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

func collectMessages(rows pgx.Rows) ([]models.ChatMessage, error) {
	var messages []models.ChatMessage
	for rows.Next() {
		var m models.ChatMessage
		err := rows.Scan(&m.ID, &m.SessionID, &m.Role, &m.Content, &m.Sources, &m.CreatedAt)
		if err != nil {
			return nil, fmt.Errorf("failed to scan message: %w", err)
		}
		messages = append(messages, m)
	}
	return messages, rows.Err()
}
