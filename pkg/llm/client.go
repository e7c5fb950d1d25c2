// Package llm provides the chat-completion client used for chunk summaries,
// intent classification, SQL generation, and answer synthesis.
package llm

import "context"

// Message roles.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// DefaultSystemPrompt is used when a caller supplies no system message.
const DefaultSystemPrompt = "You are a helpful assistant."

// Message is one chat turn.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// System builds a system message.
func System(content string) Message {
	return Message{Role: RoleSystem, Content: content}
}

// User builds a user message.
func User(content string) Message {
	return Message{Role: RoleUser, Content: content}
}

// Assistant builds an assistant message.
func Assistant(content string) Message {
	return Message{Role: RoleAssistant, Content: content}
}

// Client is a chat-completion model. Implementations are process-local
// singletons, safe for concurrent use.
type Client interface {
	// Generate returns the complete response for the conversation.
	Generate(ctx context.Context, messages []Message) (string, error)

	// Stream sends response deltas to ch as they arrive and returns the full
	// accumulated text. The channel is closed when streaming completes or on
	// error.
	Stream(ctx context.Context, messages []Message, ch chan<- string) (string, error)
}
