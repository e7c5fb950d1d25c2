package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/mediateca/vodrag/pkg/config"
	"github.com/mediateca/vodrag/pkg/llm"
	"github.com/mediateca/vodrag/pkg/models"
	"github.com/mediateca/vodrag/pkg/store"
)

// Question intents. Everything unrecognized falls back to intentContent.
const (
	intentMetadata      = "METADATA"
	intentContent       = "CONTENT"
	intentContentGlobal = "CONTENT_GLOBAL"
)

// Stream event types emitted by AskStream.
const (
	EventSessionID = "session_id"
	EventSources   = "sources"
	EventContent   = "content"
	EventError     = "error"
)

// StreamEvent is one newline-delimited JSON object of the ask stream.
type StreamEvent struct {
	Type string `json:"type"`
	Data any    `json:"data"`
}

// AskRequest is the input of one streaming question.
type AskRequest struct {
	Question  string   `json:"question"`
	ChannelID int64    `json:"channel_id"`
	VideoIDs  []string `json:"video_ids"`
	SessionID *string  `json:"session_id,omitempty"`
}

// errClientGone marks an emit that failed because the subscriber left.
var errClientGone = errors.New("client disconnected")

const classifyIntentPrompt = `Classify the following user question into one of the categories:

- METADATA: Questions about the video library itself.
- CONTENT: Questions about specific topics discussed in the videos.
- CONTENT_GLOBAL: Questions asking for summaries, main points, or overviews.

Return ONLY one of: METADATA, CONTENT, CONTENT_GLOBAL.

Question:
%s

Category:`

const answerPromptTemplate = `You are an expert assistant answering questions strictly using the provided video context.

Your goal is to produce answers that are:
- Factually accurate
- Well-structured
- Easy to follow
- Grounded only in the given information

Strict rules:
- Use ONLY the information explicitly present in the context.
- Do NOT introduce external knowledge, assumptions, or general facts.
- If the context does not contain enough information, state this clearly.
- Do NOT merge or confuse information from unrelated fragments.

How to use the context:
- Use the *Summaries* to understand the main idea of each fragment.
- Use the *Transcripts* to extract details, explanations, or exact wording.
- Prefer summaries for high-level reasoning and structure.
- Prefer transcripts for precision and evidence.

Answer structure guidelines:
- Start with a direct, clear answer to the question.
- If the answer is complex, break it into logical sections.
- Use bullet points or numbered lists when appropriate.
- When multiple fragments contribute, synthesize them coherently.
- Avoid redundancy unless it improves clarity.

Conversation context:
%s
Video context:
%s

User question:
%s

Answer:`

const globalPromptTemplate = `You are given summarized segments from one or more YouTube videos.

Your task is to identify the main points discussed across the selected videos
and present them as a concise, structured list of bullet points.

Rules:
- Do NOT invent information.
- Base your answer strictly on the provided summaries.
- Group related ideas across videos when appropriate.
- Focus on recurring themes, arguments, and conclusions.

Summaries:
%s

Main points:`

// Fixed answers for empty retrieval outcomes.
const (
	noResultsAnswer   = "I couldn't find any relevant information in the selected videos."
	noSummariesAnswer = "I do not have enough summarized information to extract the main points from the selected videos."
)

// RAGService orchestrates the streaming question flow: session handling,
// intent routing, retrieval, answer generation, and persistence.
type RAGService struct {
	chats     *store.ChatStore
	videos    *store.VideoStore
	chunks    *store.ChunkStore
	tasks     *store.TaskStore
	retriever *RetrieverService
	sqlAgent  *SQLAgentService
	llm       llm.Client
	cfg       *config.RAGConfig
}

// NewRAGService creates a new RAGService.
func NewRAGService(
	chats *store.ChatStore,
	videos *store.VideoStore,
	chunks *store.ChunkStore,
	tasks *store.TaskStore,
	retriever *RetrieverService,
	sqlAgent *SQLAgentService,
	llmClient llm.Client,
	cfg *config.RAGConfig,
) *RAGService {
	return &RAGService{
		chats:     chats,
		videos:    videos,
		chunks:    chunks,
		tasks:     tasks,
		retriever: retriever,
		sqlAgent:  sqlAgent,
		llm:       llmClient,
		cfg:       cfg,
	}
}

// AskStream answers one question as a stream of events. The session upsert,
// the video scope update, and the question embedding enqueue all happen
// before the first event so a submission failure surfaces as a plain HTTP
// error instead of a broken stream. The returned channel is closed when the
// stream ends; the conversation pair is persisted only when the stream ran
// to normal completion.
func (s *RAGService) AskStream(httpCtx context.Context, req AskRequest) (<-chan StreamEvent, error) {
	req.Question = strings.TrimSpace(req.Question)
	if req.Question == "" {
		return nil, NewValidationError("question", "required")
	}
	if req.ChannelID <= 0 {
		return nil, NewValidationError("channel_id", "required")
	}

	ctx, cancel := context.WithTimeout(httpCtx, 5*time.Second)
	defer cancel()

	session, err := s.chats.GetOrCreate(ctx, req.SessionID, req.Question, &req.ChannelID)
	if err != nil {
		return nil, fmt.Errorf("failed to open chat session: %w", err)
	}
	if len(req.VideoIDs) > 0 {
		if err := s.chats.ReplaceSessionVideos(ctx, session.ID, req.VideoIDs); err != nil {
			return nil, fmt.Errorf("failed to update session videos: %w", err)
		}
	}

	task, err := s.tasks.Enqueue(ctx, models.TaskTypeEmbedQuestion,
		models.EmbedQuestionRequest{Question: req.Question})
	if err != nil {
		return nil, fmt.Errorf("failed to enqueue embedding task: %w", err)
	}

	events := make(chan StreamEvent, 8)
	go s.stream(httpCtx, session, task.ID, req, events)
	return events, nil
}

// stream produces the event sequence for one question. It runs on the
// request context: a client disconnect cancels emission and skips the
// conversation write.
func (s *RAGService) stream(ctx context.Context, session *models.ChatSession, taskID uuid.UUID, req AskRequest, events chan<- StreamEvent) {
	defer close(events)

	emit := func(ev StreamEvent) error {
		select {
		case events <- ev:
			return nil
		case <-ctx.Done():
			return errClientGone
		}
	}

	if emit(StreamEvent{Type: EventSessionID, Data: session.ID}) != nil {
		return
	}

	intent := s.classifyIntent(ctx, req.Question)
	slog.Info("Classified question", "session_id", session.ID, "intent", intent)

	videoIDs, err := s.videos.ChatVideoIDs(ctx, req.ChannelID, req.VideoIDs, s.cfg.MaxVideosPerChat)
	if err != nil {
		slog.Error("Failed to resolve chat videos", "session_id", session.ID, "error", err)
		emit(StreamEvent{Type: EventError, Data: "failed to resolve chat videos"})
		return
	}

	var (
		answer  string
		sources []models.ChatSource
	)
	switch intent {
	case intentMetadata:
		answer, err = s.sqlAgent.Answer(ctx, req.Question)
		if err == nil {
			err = emit(StreamEvent{Type: EventContent, Data: answer})
		}
	case intentContentGlobal:
		answer, sources, err = s.answerGlobal(ctx, videoIDs, emit)
	default:
		answer, sources, err = s.answerContent(ctx, session, taskID, req.Question, videoIDs, emit)
	}

	if errors.Is(err, errClientGone) {
		slog.Info("Client disconnected mid-stream", "session_id", session.ID)
		return
	}
	if err != nil {
		slog.Error("Ask stream failed", "session_id", session.ID, "error", err)
		emit(StreamEvent{Type: EventError, Data: err.Error()})
		return
	}

	s.persistExchange(session.ID, req.Question, answer, sources)
}

// persistExchange writes the finished (user, assistant) pair. It runs on a
// fresh context so a disconnect right after the last token does not lose a
// fully delivered answer.
func (s *RAGService) persistExchange(sessionID uuid.UUID, question, answer string, sources []models.ChatSource) {
	if sources == nil {
		sources = []models.ChatSource{}
	}
	sourcesJSON, err := json.Marshal(sources)
	if err != nil {
		slog.Error("Failed to encode sources", "session_id", sessionID, "error", err)
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := s.chats.AddMessagePair(ctx, sessionID, question, answer, sourcesJSON); err != nil {
		slog.Error("Failed to persist conversation", "session_id", sessionID, "error", err)
	}
}

// answerContent runs the retrieval path: wait for the question embedding,
// search the summary index, then stream the grounded answer.
func (s *RAGService) answerContent(ctx context.Context, session *models.ChatSession, taskID uuid.UUID, question string, videoIDs []string, emit func(StreamEvent) error) (string, []models.ChatSource, error) {
	vector, err := s.waitForEmbedding(ctx, taskID)
	if err != nil {
		return "", nil, err
	}

	chatContext, err := s.chats.RecentContext(ctx, session.ID, s.cfg.ChatContextMessages)
	if err != nil {
		return "", nil, err
	}

	chunks, err := s.retriever.Search(ctx, question, vector, videoIDs, store.SearchTargetSummaries)
	if err != nil {
		return "", nil, err
	}
	if len(chunks) == 0 {
		return noResultsAnswer, nil, emit(StreamEvent{Type: EventContent, Data: noResultsAnswer})
	}

	sources := make([]models.ChatSource, len(chunks))
	for i, ch := range chunks {
		sources[i] = models.ChatSource{
			VideoID: ch.VideoID,
			Start:   ch.StartTime,
			End:     ch.EndTime,
			URL:     watchURL(ch.VideoID, ch.StartTime),
			Score:   ch.Score,
		}
	}
	if err := emit(StreamEvent{Type: EventSources, Data: sources}); err != nil {
		return "", nil, err
	}

	prompt := buildAnswerPrompt(question, chunks, chatContext)
	answer, err := s.streamCompletion(ctx, prompt, emit)
	return answer, sources, err
}

// answerGlobal runs the cross-video path: collect per-video summaries and
// stream a main-points digest built from them.
func (s *RAGService) answerGlobal(ctx context.Context, videoIDs []string, emit func(StreamEvent) error) (string, []models.ChatSource, error) {
	chunks, err := s.chunks.VideoSummaries(ctx, videoIDs, s.cfg.MaxSummariesPerVideo)
	if err != nil {
		return "", nil, err
	}
	if len(chunks) == 0 {
		return noSummariesAnswer, nil, emit(StreamEvent{Type: EventContent, Data: noSummariesAnswer})
	}

	sources := make([]models.ChatSource, len(chunks))
	for i, ch := range chunks {
		sources[i] = models.ChatSource{
			VideoID: ch.VideoID,
			Start:   ch.StartTime,
			End:     ch.EndTime,
			URL:     watchURL(ch.VideoID, ch.StartTime),
		}
	}
	if err := emit(StreamEvent{Type: EventSources, Data: sources}); err != nil {
		return "", nil, err
	}

	prompt := fmt.Sprintf(globalPromptTemplate, summariesBlock(chunks))
	answer, err := s.streamCompletion(ctx, prompt, emit)
	return answer, sources, err
}

// streamCompletion forwards LLM deltas as content events and returns the
// accumulated answer. The forwarder keeps draining after a failed emit so
// the model call can observe its own context cancellation.
func (s *RAGService) streamCompletion(ctx context.Context, prompt string, emit func(StreamEvent) error) (string, error) {
	tokens := make(chan string, 16)
	done := make(chan struct{})

	var emitErr error
	go func() {
		defer close(done)
		for tok := range tokens {
			if emitErr == nil {
				emitErr = emit(StreamEvent{Type: EventContent, Data: tok})
			}
		}
	}()

	answer, err := s.llm.Stream(ctx, []llm.Message{llm.User(prompt)}, tokens)
	<-done
	if err != nil {
		return "", fmt.Errorf("failed to stream answer: %w", err)
	}
	return answer, emitErr
}

// waitForEmbedding polls the embed_question task until the worker stores
// the query vector in its result.
func (s *RAGService) waitForEmbedding(ctx context.Context, taskID uuid.UUID) ([]float32, error) {
	deadline := time.Now().Add(s.cfg.EmbedWaitTimeout)
	ticker := time.NewTicker(s.cfg.EmbedWaitPollInterval)
	defer ticker.Stop()

	for {
		task, err := s.tasks.Get(ctx, taskID)
		if err != nil {
			return nil, fmt.Errorf("failed to poll embedding task: %w", err)
		}
		switch {
		case task.Status == models.TaskStatusCompleted && task.Result != nil:
			var vector []float32
			if err := json.Unmarshal([]byte(*task.Result), &vector); err != nil {
				return nil, fmt.Errorf("failed to decode question embedding: %w", err)
			}
			return vector, nil
		case task.Status == models.TaskStatusFailed:
			return nil, errors.New("embedding task failed in worker")
		}

		if time.Now().After(deadline) {
			return nil, errors.New("timed out waiting for embedding worker")
		}
		select {
		case <-ctx.Done():
			return nil, errClientGone
		case <-ticker.C:
		}
	}
}

// classifyIntent asks the model to route the question. Any failure or
// off-list reply falls back to the retrieval path.
func (s *RAGService) classifyIntent(ctx context.Context, question string) string {
	prompt := fmt.Sprintf(classifyIntentPrompt, question)
	response, err := s.llm.Generate(ctx, []llm.Message{llm.User(prompt)})
	if err != nil {
		slog.Warn("Intent classification failed, using content path", "error", err)
		return intentContent
	}

	switch intent := strings.ToUpper(strings.TrimSpace(response)); intent {
	case intentMetadata, intentContent, intentContentGlobal:
		return intent
	default:
		return intentContent
	}
}

// buildAnswerPrompt assembles the grounded answer prompt from the retrieved
// chunks and the recent conversation.
func buildAnswerPrompt(question string, chunks []store.ScoredChunk, chatContext []models.ChatMessage) string {
	var chatBlock strings.Builder
	if len(chatContext) > 0 {
		chatBlock.WriteString("Conversation so far:\n")
		for _, msg := range chatContext {
			role := "Assistant"
			if msg.Role == models.RoleUser {
				role = "User"
			}
			fmt.Fprintf(&chatBlock, "%s: %s\n", role, msg.Content)
		}
		chatBlock.WriteString("\n")
	}

	blocks := make([]string, 0, len(chunks))
	for i, ch := range chunks {
		var b strings.Builder
		fmt.Fprintf(&b, "[Context %d | %s | %.1fs-%.1fs]\n", i+1, ch.VideoID, ch.StartTime, ch.EndTime)
		if ch.Summary != nil && strings.TrimSpace(*ch.Summary) != "" {
			fmt.Fprintf(&b, "Summary:\n%s\n\n", strings.TrimSpace(*ch.Summary))
		}
		fmt.Fprintf(&b, "Transcript:\n%s", strings.TrimSpace(ch.Text))
		blocks = append(blocks, b.String())
	}

	return fmt.Sprintf(answerPromptTemplate, chatBlock.String(), strings.Join(blocks, "\n\n"), question)
}

// summariesBlock renders the grouped per-video summary list.
func summariesBlock(chunks []models.Chunk) string {
	var lines []string
	current := ""
	for _, ch := range chunks {
		if ch.VideoID != current {
			current = ch.VideoID
			lines = append(lines, fmt.Sprintf("\nVideo %s:", ch.VideoID))
		}
		if ch.Summary != nil && strings.TrimSpace(*ch.Summary) != "" {
			lines = append(lines, "- "+*ch.Summary)
		}
	}
	return strings.Join(lines, "\n")
}

// watchURL builds a deep link into the video at the chunk's start time.
func watchURL(videoID string, start float64) string {
	return fmt.Sprintf("https://www.youtube.com/watch?v=%s&t=%ds", videoID, int(start))
}
