package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Chat message roles.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// ChatSession groups the messages of one conversation, optionally scoped to a
// channel and a subset of its videos (chat_videos).
type ChatSession struct {
	ID        uuid.UUID `json:"id"`
	ChannelID *int64    `json:"channel_id,omitempty"`
	Title     string    `json:"title"`
	CreatedAt time.Time `json:"created_at"`
}

// ChatSessionInfo is a session plus its message count, as returned by the
// session listing endpoints.
type ChatSessionInfo struct {
	ChatSession
	MessageCount int `json:"message_count"`
}

// ChatSessionDetail is a session with its full message history and the
// video subset it is scoped to.
type ChatSessionDetail struct {
	ChatSession
	Messages []ChatMessage `json:"messages"`
	VideoIDs []string      `json:"video_ids"`
}

// ChatMessage is one turn of a session. Messages are totally ordered by
// created_at; the assistant turn carries the sources it cited.
type ChatMessage struct {
	ID        int64           `json:"id"`
	SessionID uuid.UUID       `json:"session_id"`
	Role      string          `json:"role"`
	Content   string          `json:"content"`
	Sources   json.RawMessage `json:"sources,omitempty"`
	CreatedAt time.Time       `json:"created_at"`
}

// ChatSource is one retrieved chunk reference cited in an answer, with a
// timestamped deep link into the source video.
type ChatSource struct {
	VideoID string  `json:"video_id"`
	Start   float64 `json:"start"`
	End     float64 `json:"end"`
	URL     string  `json:"url"`
	Score   float64 `json:"score"`
}
